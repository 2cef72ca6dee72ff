package vault

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/patterm/internal/common"
)

type lockEntry struct {
	ch   chan struct{}
	refs int
}

// lockTable hands out one mutex per patient. Entries are dropped once no
// goroutine holds or waits for them.
type lockTable struct {
	mu    sync.Mutex
	locks map[string]*lockEntry
}

func newLockTable() *lockTable {
	return &lockTable{locks: make(map[string]*lockEntry)}
}

// acquire waits at most timeout for the lock of id. It fails with
// common.ErrVaultBusy on timeout and with ctx.Err() when ctx ends first.
func (t *lockTable) acquire(ctx context.Context, id string, timeout time.Duration) (func(), error) {
	t.mu.Lock()
	e, ok := t.locks[id]
	if !ok {
		e = &lockEntry{ch: make(chan struct{}, 1)}
		t.locks[id] = e
	}
	e.refs++
	t.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case e.ch <- struct{}{}:
		return func() { t.release(id, e, true) }, nil
	case <-timer.C:
		t.release(id, e, false)
		return nil, common.ErrVaultBusy
	case <-ctx.Done():
		t.release(id, e, false)
		return nil, ctx.Err()
	}
}

func (t *lockTable) release(id string, e *lockEntry, held bool) {
	if held {
		<-e.ch
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(t.locks, id)
	}
}

func (t *lockTable) size() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.locks)
}

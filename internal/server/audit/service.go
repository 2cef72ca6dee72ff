// Package audit is the Audit Log: a single global hash chain of every
// sensitive operation. One goroutine owns the chain head and serializes
// appends.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	auditrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/audit"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

var ErrClosed = errors.New("audit log closed")

type head struct {
	seq  int64
	hash string
}

type appendRequest struct {
	ctx   context.Context
	entry models.AuditEntry
	resp  chan appendResponse
}

type appendResponse struct {
	entry models.AuditEntry
	err   error
}

type Service struct {
	repo          auditrepo.Repository
	clock         timex.Clock
	log           logging.Logger
	checkpointKey []byte

	requests chan appendRequest
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once

	// mu guards current for readers; only the writer goroutine changes it.
	mu      sync.RWMutex
	current head
}

// NewService loads the chain head from repo and starts the writer.
// checkpointKey signs checkpoints and may be nil when they are not used.
func NewService(ctx context.Context, repo auditrepo.Repository, clock timex.Clock, log logging.Logger, checkpointKey []byte) (*Service, error) {
	s := &Service{
		repo:          repo,
		clock:         clock,
		log:           log.With("module", "audit"),
		checkpointKey: checkpointKey,
		requests:      make(chan appendRequest),
		quit:          make(chan struct{}),
		done:          make(chan struct{}),
	}

	h, err := s.loadHead(ctx)
	if err != nil {
		return nil, err
	}
	s.current = h

	go s.run()
	return s, nil
}

func (s *Service) loadHead(ctx context.Context) (head, error) {
	last, err := s.repo.Last(ctx)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return head{seq: 0, hash: GenesisHash}, nil
		}
		return head{}, fmt.Errorf("load audit head: %w", err)
	}
	return head{seq: last.Seq, hash: last.Hash}, nil
}

// Append records one entry and returns it as stored. Any failure is
// reported as common.ErrAuditAppendFailure and leaves the head unchanged.
func (s *Service) Append(ctx context.Context, actorID, action, resourceID, outcome string) (*models.AuditEntry, error) {
	req := appendRequest{
		ctx: ctx,
		entry: models.AuditEntry{
			ActorID:    actorID,
			Action:     action,
			ResourceID: resourceID,
			Outcome:    outcome,
		},
		resp: make(chan appendResponse, 1),
	}

	select {
	case s.requests <- req:
	case <-s.quit:
		return nil, fmt.Errorf("%w: %w", common.ErrAuditAppendFailure, ErrClosed)
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: %w", common.ErrAuditAppendFailure, ctx.Err())
	}

	// once accepted the request is always answered
	r := <-req.resp
	if r.err != nil {
		return nil, r.err
	}
	return &r.entry, nil
}

func (s *Service) run() {
	defer close(s.done)
	for {
		select {
		case req := <-s.requests:
			e, err := s.write(req.ctx, req.entry)
			req.resp <- appendResponse{entry: e, err: err}
		case <-s.quit:
			return
		}
	}
}

func (s *Service) write(ctx context.Context, e models.AuditEntry) (models.AuditEntry, error) {
	s.mu.RLock()
	h := s.current
	s.mu.RUnlock()

	e.Seq = h.seq + 1
	e.PrevHash = h.hash
	e.Timestamp = normalizeTime(s.clock.Now())
	e.Hash = ComputeHash(e)

	if err := s.repo.Append(ctx, e); err != nil {
		s.log.Error(ctx, "audit append failed", "seq", e.Seq, "action", e.Action, "error", err, "alert", true)

		// someone else may have advanced the stored chain
		if errors.Is(err, common.ErrConflict) {
			if reloaded, lerr := s.loadHead(ctx); lerr == nil {
				s.mu.Lock()
				s.current = reloaded
				s.mu.Unlock()
			}
		}
		return models.AuditEntry{}, fmt.Errorf("%w: %w", common.ErrAuditAppendFailure, err)
	}

	s.mu.Lock()
	s.current = head{seq: e.Seq, hash: e.Hash}
	s.mu.Unlock()

	return e, nil
}

// Head returns the sequence number and hash of the last appended entry
// (0 and GenesisHash for an empty log).
func (s *Service) Head() (int64, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.current.seq, s.current.hash
}

// Close stops the writer. Appends after Close fail.
func (s *Service) Close() {
	s.once.Do(func() {
		close(s.quit)
		<-s.done
	})
}

// Entries returns the stored entries with from <= seq <= to.
func (s *Service) Entries(ctx context.Context, from, to int64) ([]models.AuditEntry, error) {
	list, err := s.repo.Range(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	return list, nil
}

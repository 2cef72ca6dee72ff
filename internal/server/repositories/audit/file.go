package audit

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/filex"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

const maxLineSize = 1 << 20

// ErrLogBroken is returned by appends after a failed write could not be
// rolled back. The file must be repaired by reopening it.
var ErrLogBroken = errors.New("audit log file left in unknown state")

// logFile is the part of *os.File the repository writes through.
type logFile interface {
	io.ReadWriteSeeker
	io.Closer
	Sync() error
	Truncate(size int64) error
}

// FileRepository appends one JSON object per line and fsyncs after every
// entry. Each line carries every hashed field, so the file can be verified
// without any other store.
type FileRepository struct {
	mu   sync.Mutex
	path string
	f    logFile
	last *models.AuditEntry

	// size is the length of the file up to the last complete entry.
	size   int64
	broken error
}

// OpenFileRepository opens or creates the log at path. A trailing line
// without a newline is an append that never completed and is cut off.
func OpenFileRepository(path string) (*FileRepository, error) {
	if err := filex.EnsureDir(filepath.Dir(path)); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	r := &FileRepository{path: path, f: f}
	if err := r.recover(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return r, nil
}

func (r *FileRepository) recover() error {
	data, err := io.ReadAll(r.f)
	if err != nil {
		return fmt.Errorf("read audit log: %w", err)
	}

	end := bytes.LastIndexByte(data, '\n') + 1
	if end < len(data) {
		if err := r.f.Truncate(int64(end)); err != nil {
			return fmt.Errorf("truncate partial audit entry: %w", err)
		}
	}
	if _, err := r.f.Seek(int64(end), io.SeekStart); err != nil {
		return err
	}
	r.size = int64(end)

	complete := data[:end]
	if len(complete) == 0 {
		return nil
	}
	lines := bytes.Split(bytes.TrimSuffix(complete, []byte{'\n'}), []byte{'\n'})
	var e models.AuditEntry
	if err := json.Unmarshal(lines[len(lines)-1], &e); err != nil {
		return fmt.Errorf("decode last audit entry: %w", err)
	}
	r.last = &e
	return nil
}

func (r *FileRepository) Append(ctx context.Context, e models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.broken != nil {
		return fmt.Errorf("%w: %w", ErrLogBroken, r.broken)
	}

	var want int64 = 1
	if r.last != nil {
		want = r.last.Seq + 1
	}
	if e.Seq != want {
		return fmt.Errorf("audit seq %d, expected %d: %w", e.Seq, want, common.ErrConflict)
	}

	line, err := json.Marshal(e)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	if _, err := r.f.Write(line); err != nil {
		return r.rollback(fmt.Errorf("write audit entry: %w", err))
	}
	if err := r.f.Sync(); err != nil {
		return r.rollback(fmt.Errorf("sync audit log: %w", err))
	}

	r.size += int64(len(line))
	r.last = &e
	return nil
}

// rollback cuts the file back to the last complete entry after a failed
// append, so neither a partial line nor an unsynced copy of the entry stays
// behind. If that fails too, later appends are refused.
func (r *FileRepository) rollback(cause error) error {
	err := r.f.Truncate(r.size)
	if err == nil {
		_, err = r.f.Seek(r.size, io.SeekStart)
	}
	if err == nil {
		err = r.f.Sync()
	}
	if err != nil {
		r.broken = err
		return errors.Join(cause, fmt.Errorf("%w: %w", ErrLogBroken, err))
	}
	return cause
}

func (r *FileRepository) Last(ctx context.Context) (*models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.last == nil {
		return nil, common.ErrNotFound
	}
	e := *r.last
	return &e, nil
}

// Range rereads the file so that entries are checked as they are on disk.
func (r *FileRepository) Range(ctx context.Context, from, to int64) ([]models.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	f, err := os.Open(r.path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), maxLineSize)

	var out []models.AuditEntry
	for line := 1; sc.Scan(); line++ {
		var e models.AuditEntry
		if err := json.Unmarshal(sc.Bytes(), &e); err != nil {
			return nil, fmt.Errorf("audit log line %d: %w", line, err)
		}
		if e.Seq > to {
			break
		}
		if e.Seq >= from {
			out = append(out, e)
		}
	}
	if err := sc.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("scan audit log: %w", err)
	}
	return out, nil
}

func (r *FileRepository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.f.Close()
}

package audit

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type MemoryRepository struct {
	mu      sync.RWMutex
	entries []models.AuditEntry
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (r *MemoryRepository) Append(ctx context.Context, e models.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if want := int64(len(r.entries)) + 1; e.Seq != want {
		return fmt.Errorf("audit seq %d, expected %d: %w", e.Seq, want, common.ErrConflict)
	}
	r.entries = append(r.entries, e)
	return nil
}

func (r *MemoryRepository) Last(ctx context.Context) (*models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(r.entries) == 0 {
		return nil, common.ErrNotFound
	}
	e := r.entries[len(r.entries)-1]
	return &e, nil
}

func (r *MemoryRepository) Range(ctx context.Context, from, to int64) ([]models.AuditEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []models.AuditEntry
	for _, e := range r.entries {
		if e.Seq >= from && e.Seq <= to {
			out = append(out, e)
		}
	}
	return out, nil
}

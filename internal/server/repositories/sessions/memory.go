package sessions

import (
	"context"
	"sync"
	"time"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]models.Session
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]models.Session)}
}

func (r *MemoryRepository) Create(ctx context.Context, s *models.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[s.TokenHash]; ok {
		return common.ErrAlreadyExists
	}
	r.items[s.TokenHash] = *s
	return nil
}

func (r *MemoryRepository) Find(ctx context.Context, tokenHash string) (*models.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[tokenHash]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) Revoke(ctx context.Context, tokenHash string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.items[tokenHash]
	if !ok {
		return common.ErrNotFound
	}
	if !s.Revoked {
		s.Revoked = true
		s.RevokedAt = &at
		r.items[tokenHash] = s
	}
	return nil
}

package credentials

import (
	"context"
	"fmt"
	"sync"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]models.Credential
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]models.Credential)}
}

func (r *MemoryRepository) Create(ctx context.Context, c *models.Credential) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[c.UserID]; ok {
		return fmt.Errorf("user %s: %w", c.UserID, common.ErrAlreadyExists)
	}
	r.items[c.UserID] = *c
	return nil
}

func (r *MemoryRepository) Find(ctx context.Context, userID string) (*models.Credential, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.items[userID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &c, nil
}

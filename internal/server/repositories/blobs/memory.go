package blobs

import (
	"bytes"
	"context"
	"sync"

	"github.com/dmitrijs2005/patterm/internal/common"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string][]byte
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string][]byte)}
}

func (r *MemoryRepository) Get(ctx context.Context, patientID string) ([]byte, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.items[patientID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return bytes.Clone(b), nil
}

func (r *MemoryRepository) Put(ctx context.Context, patientID string, data []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[patientID] = bytes.Clone(data)
	return nil
}

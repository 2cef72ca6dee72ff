package keys

import (
	"bytes"
	"context"
	"sync"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[string]models.PatientKey
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[string]models.PatientKey)}
}

func (r *MemoryRepository) PutIfAbsent(ctx context.Context, k *models.PatientKey) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[k.PatientID]; ok {
		return common.ErrAlreadyExists
	}
	stored := *k
	stored.Wrapped = bytes.Clone(k.Wrapped)
	r.items[k.PatientID] = stored
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, patientID string) (*models.PatientKey, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	k, ok := r.items[patientID]
	if !ok {
		return nil, common.ErrNotFound
	}
	k.Wrapped = bytes.Clone(k.Wrapped)
	return &k, nil
}

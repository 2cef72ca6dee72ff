package consent

import (
	"context"
	"sort"
	"sync"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type pair struct {
	patientID  string
	facilityID string
}

type MemoryRepository struct {
	mu    sync.RWMutex
	items map[pair]models.ConsentStatus
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{items: make(map[pair]models.ConsentStatus)}
}

func (r *MemoryRepository) Set(ctx context.Context, s models.ConsentStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.items[pair{s.PatientID, s.FacilityID}] = s
	return nil
}

func (r *MemoryRepository) Get(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.items[pair{patientID, facilityID}]
	if !ok {
		return nil, common.ErrNotFound
	}
	return &s, nil
}

func (r *MemoryRepository) List(ctx context.Context, patientID string) ([]models.ConsentStatus, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := []models.ConsentStatus{}
	for k, s := range r.items {
		if k.patientID == patientID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].FacilityID < out[j].FacilityID })
	return out, nil
}

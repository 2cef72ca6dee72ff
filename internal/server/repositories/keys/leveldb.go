package keys

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

const levelDBKeyPrefix = "patient_key:"

type levelDBValue struct {
	Wrapped   []byte    `json:"wrapped"`
	CreatedAt time.Time `json:"created_at"`
}

// LevelDBRepository is an embedded key store living in its own directory.
// PutIfAbsent is serialized by a mutex, which is enough because a LevelDB
// directory is only ever opened by one process.
type LevelDBRepository struct {
	mu sync.Mutex
	db *leveldb.DB
}

func OpenLevelDBRepository(path string) (*LevelDBRepository, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("open key store: %w", err)
	}
	return &LevelDBRepository{db: db}, nil
}

func (r *LevelDBRepository) PutIfAbsent(ctx context.Context, k *models.PatientKey) error {
	key := []byte(levelDBKeyPrefix + k.PatientID)

	data, err := json.Marshal(levelDBValue{Wrapped: k.Wrapped, CreatedAt: k.CreatedAt})
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	exists, err := r.db.Has(key, nil)
	if err != nil {
		return fmt.Errorf("key store: %w", err)
	}
	if exists {
		return common.ErrAlreadyExists
	}

	if err := r.db.Put(key, data, &opt.WriteOptions{Sync: true}); err != nil {
		return fmt.Errorf("key store: %w", err)
	}
	return nil
}

func (r *LevelDBRepository) Get(ctx context.Context, patientID string) (*models.PatientKey, error) {
	data, err := r.db.Get([]byte(levelDBKeyPrefix+patientID), nil)
	if err != nil {
		if errors.Is(err, leveldb.ErrNotFound) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("key store: %w", err)
	}

	var v levelDBValue
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("decode key for %s: %w", patientID, err)
	}
	return &models.PatientKey{PatientID: patientID, Wrapped: v.Wrapped, CreatedAt: v.CreatedAt}, nil
}

func (r *LevelDBRepository) Close() error {
	return r.db.Close()
}

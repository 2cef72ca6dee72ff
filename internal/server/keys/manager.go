// Package keys is the Key Manager: it creates each patient's symmetric
// secret once and hands out Keys that can seal and open data.
package keys

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	keyrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/keys"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

type Manager struct {
	repo    keyrepo.Repository
	wrapper Wrapper
	clock   timex.Clock
	log     logging.Logger
}

func NewManager(repo keyrepo.Repository, wrapper Wrapper, clock timex.Clock, log logging.Logger) *Manager {
	return &Manager{repo: repo, wrapper: wrapper, clock: clock, log: log.With("module", "keys")}
}

// Get returns the key of patientID or common.ErrKeyNotFound.
func (m *Manager) Get(ctx context.Context, patientID string) (*Key, error) {
	stored, err := m.repo.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, fmt.Errorf("patient %s: %w", patientID, common.ErrKeyNotFound)
		}
		return nil, fmt.Errorf("key store: %w", err)
	}
	return m.unwrap(ctx, stored)
}

// GetOrCreate returns the existing key of patientID or generates and stores
// a new one. Keys are never replaced: when two callers race, both end up
// with the one that was stored first.
func (m *Manager) GetOrCreate(ctx context.Context, patientID string) (*Key, error) {
	k, err := m.Get(ctx, patientID)
	if err == nil || !errors.Is(err, common.ErrKeyNotFound) {
		return k, err
	}

	secret := common.GenerateRandByteArray(common.PatientKeyBytes)
	wrapped, err := m.wrapper.Wrap(secret)
	if err != nil {
		common.WipeByteArray(secret)
		return nil, fmt.Errorf("wrap key: %w", err)
	}

	err = m.repo.PutIfAbsent(ctx, &models.PatientKey{
		PatientID: patientID,
		Wrapped:   wrapped,
		CreatedAt: m.clock.Now(),
	})
	if err != nil {
		common.WipeByteArray(secret)
		if errors.Is(err, common.ErrAlreadyExists) {
			return m.Get(ctx, patientID)
		}
		return nil, fmt.Errorf("key store: %w", err)
	}

	m.log.Info(ctx, "patient key created", "patient_id", patientID)
	return &Key{patientID: patientID, secret: secret}, nil
}

func (m *Manager) unwrap(ctx context.Context, stored *models.PatientKey) (*Key, error) {
	secret, err := m.wrapper.Unwrap(stored.Wrapped)
	if err != nil || len(secret) != common.PatientKeyBytes {
		m.log.Error(ctx, "patient key unreadable", "patient_id", stored.PatientID, "error", err, "alert", true)
		return nil, fmt.Errorf("patient %s key: %w", stored.PatientID, common.ErrVaultCorruption)
	}
	return &Key{patientID: stored.PatientID, secret: secret}, nil
}

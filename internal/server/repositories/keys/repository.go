// Package keys declares the patient key store. It is kept apart from the
// blob store and only ever holds wrapped secrets.
package keys

import (
	"context"

	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type Repository interface {
	// PutIfAbsent stores k unless a key for the patient already exists, in
	// which case common.ErrAlreadyExists is returned and nothing changes.
	PutIfAbsent(ctx context.Context, k *models.PatientKey) error

	// Get returns common.ErrNotFound for a patient without a key.
	Get(ctx context.Context, patientID string) (*models.PatientKey, error)
}

// Package consent declares the Consent Index store: one row per
// patient/facility pair ever granted, with its current state.
package consent

import (
	"context"

	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type Repository interface {
	// Set upserts the status of one patient/facility pair.
	Set(ctx context.Context, s models.ConsentStatus) error

	// Get returns common.ErrNotFound if the pair was never recorded.
	Get(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error)

	// List returns every recorded pair of patientID ordered by facility.
	List(ctx context.Context, patientID string) ([]models.ConsentStatus, error)
}

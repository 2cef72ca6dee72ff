// Package consent is the Consent Index: a non-sensitive lookup of which
// facilities a patient has shared their record with. It mirrors the consent
// set inside the encrypted record and is only written by the vault.
package consent

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	consentrepo "github.com/dmitrijs2005/patterm/internal/server/repositories/consent"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

type Index struct {
	repo  consentrepo.Repository
	clock timex.Clock
	log   logging.Logger
}

func NewIndex(repo consentrepo.Repository, clock timex.Clock, log logging.Logger) *Index {
	return &Index{repo: repo, clock: clock, log: log.With("module", "consent")}
}

// Grant marks facilityID as consented for patientID and returns the stored
// status.
func (i *Index) Grant(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error) {
	return i.set(ctx, patientID, facilityID, true)
}

// Revoke withdraws consent. Revoking a pair that was never granted is
// recorded too, so List reflects the explicit decision.
func (i *Index) Revoke(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error) {
	return i.set(ctx, patientID, facilityID, false)
}

func (i *Index) set(ctx context.Context, patientID, facilityID string, granted bool) (*models.ConsentStatus, error) {
	s := models.ConsentStatus{
		PatientID:  patientID,
		FacilityID: facilityID,
		Granted:    granted,
		UpdatedAt:  i.clock.Now(),
	}
	if err := i.repo.Set(ctx, s); err != nil {
		return nil, fmt.Errorf("consent index: %w", err)
	}
	i.log.Debug(ctx, "consent index updated", "patient_id", patientID, "facility_id", facilityID, "granted", granted)
	return &s, nil
}

// Check reports whether facilityID currently holds consent for patientID.
// Store errors are returned so the caller can fail closed.
func (i *Index) Check(ctx context.Context, patientID, facilityID string) (bool, error) {
	if facilityID == "" {
		return false, nil
	}
	s, err := i.repo.Get(ctx, patientID, facilityID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("consent index: %w", err)
	}
	return s.Granted, nil
}

// List returns every recorded share status of patientID.
func (i *Index) List(ctx context.Context, patientID string) ([]models.ConsentStatus, error) {
	list, err := i.repo.List(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("consent index: %w", err)
	}
	return list, nil
}

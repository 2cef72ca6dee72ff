package vault

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/server/audit"
	"github.com/dmitrijs2005/patterm/internal/server/models"
)

// UpdateConsent grants or revokes facilityID's access to the record and
// updates the consent index in the same locked unit. When one side fails
// the other is rolled back, so the index never claims a consent the record
// does not hold.
func (v *Vault) UpdateConsent(ctx context.Context, actorID, patientID, facilityID string, granted bool) (*models.ConsentStatus, error) {
	if facilityID == "" {
		return nil, fmt.Errorf("%w: facility_id: required", common.ErrValidation)
	}

	action := audit.ActionConsentRevoked
	if granted {
		action = audit.ActionConsentGranted
	}

	var status *models.ConsentStatus
	err := v.withLock(ctx, patientID, func(ctx context.Context) error {
		var opErr error
		status, opErr = v.updateConsent(ctx, patientID, facilityID, granted)
		return v.finish(ctx, actorID, action, patientID, opErr)
	})
	if err != nil {
		return nil, err
	}
	return status, nil
}

func (v *Vault) updateConsent(ctx context.Context, patientID, facilityID string, granted bool) (*models.ConsentStatus, error) {
	rec, k, original, err := v.load(ctx, patientID)
	if err != nil {
		return nil, err
	}
	defer k.Wipe()

	changed := rec.SetConsent(facilityID, granted)

	if granted {
		// record first: a failed index write leaves a denial, never a leak
		if changed {
			if err := v.store(ctx, k, rec); err != nil {
				return nil, err
			}
		}
		status, err := v.consent.Grant(ctx, patientID, facilityID)
		if err != nil {
			if changed {
				v.rollbackBlob(ctx, patientID, original)
			}
			return nil, err
		}
		return status, nil
	}

	status, err := v.consent.Revoke(ctx, patientID, facilityID)
	if err != nil {
		return nil, err
	}
	if changed {
		if err := v.store(ctx, k, rec); err != nil {
			// the record still holds the consent, restore the index entry
			if _, gerr := v.consent.Grant(ctx, patientID, facilityID); gerr != nil {
				v.log.Error(ctx, "consent index restore failed",
					"patient_id", patientID, "facility_id", facilityID, "error", gerr, "alert", true)
			}
			return nil, err
		}
	}
	return status, nil
}

func (v *Vault) rollbackBlob(ctx context.Context, patientID string, original []byte) {
	if err := v.blobs.Put(ctx, patientID, original); err != nil {
		v.log.Error(ctx, "consent rollback failed", "patient_id", patientID, "error", err, "alert", true)
	}
}

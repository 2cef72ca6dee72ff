// Package vault is the Patient Vault: one encrypted record per patient.
// Every operation runs under the patient's lock, persists by whole-blob
// replacement and is recorded in the audit log before the lock is
// released.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/audit"
	"github.com/dmitrijs2005/patterm/internal/server/keys"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	"github.com/dmitrijs2005/patterm/internal/server/repositories/blobs"
	"github.com/dmitrijs2005/patterm/internal/timex"
)

const DefaultLockTimeout = 2 * time.Second

type KeyManager interface {
	Get(ctx context.Context, patientID string) (*keys.Key, error)
	GetOrCreate(ctx context.Context, patientID string) (*keys.Key, error)
}

type AuditLog interface {
	Append(ctx context.Context, actorID, action, resourceID, outcome string) (*models.AuditEntry, error)
}

type ConsentIndex interface {
	Grant(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error)
	Revoke(ctx context.Context, patientID, facilityID string) (*models.ConsentStatus, error)
}

type Vault struct {
	blobs       blobs.Repository
	keys        KeyManager
	audit       AuditLog
	consent     ConsentIndex
	clock       timex.Clock
	log         logging.Logger
	locks       *lockTable
	lockTimeout time.Duration
}

func New(b blobs.Repository, km KeyManager, al AuditLog, ci ConsentIndex, clock timex.Clock, log logging.Logger, lockTimeout time.Duration) *Vault {
	if lockTimeout <= 0 {
		lockTimeout = DefaultLockTimeout
	}
	return &Vault{
		blobs:       b,
		keys:        km,
		audit:       al,
		consent:     ci,
		clock:       clock,
		log:         log.With("module", "vault"),
		locks:       newLockTable(),
		lockTimeout: lockTimeout,
	}
}

// NoteInput is a treatment note as submitted by its author. When
// ExpectedVersion is set the append fails with common.ErrConflict unless it
// equals the latest stored version.
type NoteInput struct {
	Summary         string
	NextSteps       string
	ExpectedVersion *int
}

// withLock runs fn while holding the lock of patientID. fn gets a context
// that is no longer cancelled by the caller.
func (v *Vault) withLock(ctx context.Context, patientID string, fn func(ctx context.Context) error) error {
	unlock, err := v.locks.acquire(ctx, patientID, v.lockTimeout)
	if err != nil {
		if errors.Is(err, common.ErrVaultBusy) {
			v.log.Warn(ctx, "vault lock timeout", "patient_id", patientID, "timeout", v.lockTimeout)
		}
		return err
	}
	defer unlock()

	return fn(context.WithoutCancel(ctx))
}

// finish records the outcome of opErr and returns the error the caller
// sees. A failed append is reported alongside opErr.
func (v *Vault) finish(ctx context.Context, actorID, action, patientID string, opErr error) error {
	_, auditErr := v.audit.Append(ctx, actorID, action, patientID, audit.Outcome(opErr))
	err := errors.Join(auditErr, opErr)

	if common.NeedsOperatorAttention(err) {
		v.log.Error(ctx, "vault operation needs attention",
			"action", action, "patient_id", patientID, "actor_id", actorID, "kind", common.KindOf(err), "error", err, "alert", true)
	}
	return err
}

func (v *Vault) load(ctx context.Context, patientID string) (*models.PatientRecord, *keys.Key, []byte, error) {
	blob, err := v.blobs.Get(ctx, patientID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, nil, nil, fmt.Errorf("patient %s: %w", patientID, common.ErrNotFound)
		}
		return nil, nil, nil, fmt.Errorf("blob store: %w", err)
	}

	k, err := v.keys.Get(ctx, patientID)
	if err != nil {
		return nil, nil, nil, err
	}

	rec, err := decodeRecord(k, blob)
	if err != nil {
		k.Wipe()
		return nil, nil, nil, err
	}
	return rec, k, blob, nil
}

func (v *Vault) store(ctx context.Context, k *keys.Key, rec *models.PatientRecord) error {
	blob, err := encodeRecord(k, rec)
	if err != nil {
		return err
	}
	if err := v.blobs.Put(ctx, k.PatientID(), blob); err != nil {
		return fmt.Errorf("blob store: %w", err)
	}
	return nil
}

// update loads the record of patientID, applies fn and persists the result
// when fn reports a change.
func (v *Vault) update(ctx context.Context, patientID string, fn func(rec *models.PatientRecord) (bool, error)) error {
	rec, k, _, err := v.load(ctx, patientID)
	if err != nil {
		return err
	}
	defer k.Wipe()

	changed, err := fn(rec)
	if err != nil || !changed {
		return err
	}
	return v.store(ctx, k, rec)
}

// Create initializes an empty record for profile.PatientID. It fails with
// common.ErrAlreadyExists when the patient already has a record.
func (v *Vault) Create(ctx context.Context, actorID string, profile models.Profile) (*models.PatientRecord, error) {
	if profile.PatientID == "" {
		return nil, fmt.Errorf("%w: patient_id: required", common.ErrValidation)
	}
	if err := profile.Validate(v.clock.Now()); err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrValidation, err)
	}
	patientID := profile.PatientID

	var rec *models.PatientRecord
	err := v.withLock(ctx, patientID, func(ctx context.Context) error {
		opErr := v.create(ctx, profile)
		if opErr == nil {
			rec = models.NewPatientRecord(profile)
		}
		return v.finish(ctx, actorID, audit.ActionPatientCreated, patientID, opErr)
	})
	if err != nil {
		return nil, err
	}

	v.log.Info(ctx, "patient record created", "patient_id", patientID, "actor_id", actorID)
	return rec, nil
}

func (v *Vault) create(ctx context.Context, profile models.Profile) error {
	_, err := v.blobs.Get(ctx, profile.PatientID)
	if err == nil {
		return fmt.Errorf("patient %s: %w", profile.PatientID, common.ErrAlreadyExists)
	}
	if !errors.Is(err, common.ErrNotFound) {
		return fmt.Errorf("blob store: %w", err)
	}

	k, err := v.keys.GetOrCreate(ctx, profile.PatientID)
	if err != nil {
		return err
	}
	defer k.Wipe()

	return v.store(ctx, k, models.NewPatientRecord(profile))
}

// Read returns a decrypted snapshot of the record.
func (v *Vault) Read(ctx context.Context, actorID, patientID string) (*models.PatientRecord, error) {
	var rec *models.PatientRecord
	err := v.withLock(ctx, patientID, func(ctx context.Context) error {
		r, k, _, opErr := v.load(ctx, patientID)
		if opErr == nil {
			k.Wipe()
		}
		if err := v.finish(ctx, actorID, audit.ActionRecordRead, patientID, opErr); err != nil {
			return err
		}
		rec = r
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// AppendAppointment adds ref to the record. A slot that is already on the
// record yields common.ErrConflict.
func (v *Vault) AppendAppointment(ctx context.Context, actorID, patientID string, ref models.AppointmentRef) error {
	if err := ref.Validate(); err != nil {
		return fmt.Errorf("%w: %w", common.ErrValidation, err)
	}

	return v.withLock(ctx, patientID, func(ctx context.Context) error {
		opErr := v.update(ctx, patientID, func(rec *models.PatientRecord) (bool, error) {
			if rec.HasSlot(ref.SlotID) {
				return false, fmt.Errorf("slot %s already booked: %w", ref.SlotID, common.ErrConflict)
			}
			rec.Appointments = append(rec.Appointments, ref)
			return true, nil
		})
		return v.finish(ctx, actorID, audit.ActionAppointmentAppended, patientID, opErr)
	})
}

// AppendTreatmentNote appends the next note version, authored by actorID.
func (v *Vault) AppendTreatmentNote(ctx context.Context, actorID, patientID string, in NoteInput) (*models.TreatmentNote, error) {
	if in.Summary == "" {
		return nil, fmt.Errorf("%w: summary: required", common.ErrValidation)
	}

	var note models.TreatmentNote
	err := v.withLock(ctx, patientID, func(ctx context.Context) error {
		opErr := v.update(ctx, patientID, func(rec *models.PatientRecord) (bool, error) {
			latest := rec.LatestNoteVersion()
			if in.ExpectedVersion != nil && *in.ExpectedVersion != latest {
				return false, fmt.Errorf("note version %d, latest is %d: %w", *in.ExpectedVersion, latest, common.ErrConflict)
			}
			note = models.TreatmentNote{
				Version:   latest + 1,
				AuthorID:  actorID,
				CreatedAt: v.clock.Now(),
				Summary:   in.Summary,
				NextSteps: in.NextSteps,
			}
			rec.TreatmentNotes = append(rec.TreatmentNotes, note)
			return true, nil
		})
		return v.finish(ctx, actorID, audit.ActionTreatmentNoteAppended, patientID, opErr)
	})
	if err != nil {
		return nil, err
	}
	return &note, nil
}

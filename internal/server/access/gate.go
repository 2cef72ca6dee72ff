// Package access is the Access Control Gate. Every vault operation passes
// through it: the session is validated, the role and consent rules are
// evaluated, and only then is the vault called. Nothing is cached between
// calls.
package access

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/patterm/internal/common"
	"github.com/dmitrijs2005/patterm/internal/logging"
	"github.com/dmitrijs2005/patterm/internal/server/audit"
	"github.com/dmitrijs2005/patterm/internal/server/models"
	"github.com/dmitrijs2005/patterm/internal/server/vault"
)

type SessionValidator interface {
	Validate(ctx context.Context, token string) (*models.Session, error)
}

type ConsentChecker interface {
	Check(ctx context.Context, patientID, facilityID string) (bool, error)
	List(ctx context.Context, patientID string) ([]models.ConsentStatus, error)
}

type ChainVerifier interface {
	Verify(ctx context.Context, from, to int64) (audit.VerifyResult, error)
}

type Gate struct {
	sessions SessionValidator
	consent  ConsentChecker
	vault    *vault.Vault
	audit    ChainVerifier
	log      logging.Logger
}

func NewGate(sv SessionValidator, cc ConsentChecker, v *vault.Vault, av ChainVerifier, log logging.Logger) *Gate {
	return &Gate{sessions: sv, consent: cc, vault: v, audit: av, log: log.With("module", "access")}
}

// Authorize runs the session and role checks for op on patientID and
// returns the validated session. Denials are logged with their reason and
// returned as plain common.ErrAuthorization.
func (g *Gate) Authorize(ctx context.Context, token string, op Operation, patientID string) (*models.Session, error) {
	s, err := g.sessions.Validate(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrAuthentication) {
			g.log.Info(ctx, "request not authenticated", "op", op.String(), "reason", err)
			return nil, common.ErrAuthentication
		}
		return nil, err
	}

	if err := g.check(ctx, s, op, patientID); err != nil {
		if errors.Is(err, common.ErrRoleDenied) || errors.Is(err, common.ErrConsentDenied) {
			g.log.Warn(ctx, "request denied",
				"op", op.String(), "user_id", s.UserID, "role", s.Role.String(),
				"facility_id", s.FacilityID, "patient_id", patientID, "reason", err)
			return nil, common.ErrAuthorization
		}
		return nil, err
	}
	return s, nil
}

// check returns common.ErrRoleDenied or common.ErrConsentDenied for a
// denied request, or another error when the decision could not be made.
func (g *Gate) check(ctx context.Context, s *models.Session, op Operation, patientID string) error {
	switch ScopeFor(s.Role, op) {
	case ScopeSelf:
		if s.UserID != patientID {
			return common.ErrRoleDenied
		}
		return nil
	case ScopeFacility:
		if s.FacilityID == "" {
			return common.ErrRoleDenied
		}
		return nil
	case ScopeFacilityConsent:
		if s.FacilityID == "" {
			return common.ErrRoleDenied
		}
		ok, err := g.consent.Check(ctx, patientID, s.FacilityID)
		if err != nil {
			return fmt.Errorf("consent check: %w", err)
		}
		if !ok {
			return common.ErrConsentDenied
		}
		return nil
	case ScopeSystem:
		return nil
	default:
		return common.ErrRoleDenied
	}
}

func (g *Gate) CreateRecord(ctx context.Context, token string, profile models.Profile) (*models.PatientRecord, error) {
	s, err := g.Authorize(ctx, token, OpCreateRecord, profile.PatientID)
	if err != nil {
		return nil, err
	}
	return g.vault.Create(ctx, s.UserID, profile)
}

func (g *Gate) ReadRecord(ctx context.Context, token, patientID string) (*models.PatientRecord, error) {
	s, err := g.Authorize(ctx, token, OpReadRecord, patientID)
	if err != nil {
		return nil, err
	}
	return g.vault.Read(ctx, s.UserID, patientID)
}

// AppendAppointment additionally requires facility staff to book at their
// own facility.
func (g *Gate) AppendAppointment(ctx context.Context, token, patientID string, ref models.AppointmentRef) error {
	s, err := g.Authorize(ctx, token, OpAppendAppointment, patientID)
	if err != nil {
		return err
	}
	if s.Role.FacilityScoped() && ref.FacilityID != s.FacilityID {
		g.log.Warn(ctx, "request denied", "op", OpAppendAppointment.String(), "user_id", s.UserID,
			"facility_id", s.FacilityID, "patient_id", patientID, "reason", "foreign facility")
		return common.ErrAuthorization
	}
	return g.vault.AppendAppointment(ctx, s.UserID, patientID, ref)
}

func (g *Gate) UpdateConsent(ctx context.Context, token, patientID, facilityID string, granted bool) (*models.ConsentStatus, error) {
	s, err := g.Authorize(ctx, token, OpUpdateConsent, patientID)
	if err != nil {
		return nil, err
	}
	return g.vault.UpdateConsent(ctx, s.UserID, patientID, facilityID, granted)
}

func (g *Gate) AppendTreatmentNote(ctx context.Context, token, patientID string, in vault.NoteInput) (*models.TreatmentNote, error) {
	s, err := g.Authorize(ctx, token, OpAppendTreatmentNote, patientID)
	if err != nil {
		return nil, err
	}
	return g.vault.AppendTreatmentNote(ctx, s.UserID, patientID, in)
}

// ListConsents returns the share status of every facility the patient has
// decided on. It reads only the consent index.
func (g *Gate) ListConsents(ctx context.Context, token, patientID string) ([]models.ConsentStatus, error) {
	if _, err := g.Authorize(ctx, token, OpListConsents, patientID); err != nil {
		return nil, err
	}
	return g.consent.List(ctx, patientID)
}

func (g *Gate) VerifyAuditChain(ctx context.Context, token string, from, to int64) (audit.VerifyResult, error) {
	if _, err := g.Authorize(ctx, token, OpVerifyAuditChain, ""); err != nil {
		return audit.VerifyResult{}, err
	}
	return g.audit.Verify(ctx, from, to)
}

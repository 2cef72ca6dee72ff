package audit

import "github.com/dmitrijs2005/patterm/internal/common"

// Actions recorded by the vault.
const (
	ActionPatientCreated        = "patient_created"
	ActionRecordRead            = "record_read"
	ActionAppointmentAppended   = "appointment_appended"
	ActionConsentGranted        = "consent_granted"
	ActionConsentRevoked        = "consent_revoked"
	ActionTreatmentNoteAppended = "treatment_note_appended"
)

const OutcomeSuccess = "success"

// Outcome renders err as an audit outcome: "success" or "failure:<kind>".
func Outcome(err error) string {
	if err == nil {
		return OutcomeSuccess
	}
	return "failure:" + string(common.KindOf(err))
}

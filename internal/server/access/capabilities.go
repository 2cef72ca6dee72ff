package access

import "github.com/dmitrijs2005/patterm/internal/server/models"

// Operation is a gated request kind.
type Operation int

const (
	OpCreateRecord Operation = iota + 1
	OpReadRecord
	OpAppendAppointment
	OpUpdateConsent
	OpAppendTreatmentNote
	OpListConsents
	OpVerifyAuditChain
)

var opNames = map[Operation]string{
	OpCreateRecord:        "create_record",
	OpReadRecord:          "read_record",
	OpAppendAppointment:   "append_appointment",
	OpUpdateConsent:       "update_consent",
	OpAppendTreatmentNote: "append_treatment_note",
	OpListConsents:        "list_consents",
	OpVerifyAuditChain:    "verify_audit_chain",
}

func (o Operation) String() string { return opNames[o] }

// Scope is the rule a session must satisfy for an operation.
type Scope int

const (
	// ScopeNone denies.
	ScopeNone Scope = iota
	// ScopeSelf allows a patient to act on their own record only.
	ScopeSelf
	// ScopeFacilityConsent allows facility staff when the patient has
	// granted consent to the session's facility.
	ScopeFacilityConsent
	// ScopeFacility allows facility staff without a consent check. Used
	// for registering new patients at the front desk.
	ScopeFacility
	// ScopeSystem allows operations that touch no patient data.
	ScopeSystem
)

// capabilities is the full role × operation table. Missing entries are
// ScopeNone.
var capabilities = map[models.Role]map[Operation]Scope{
	models.RolePatient: {
		OpCreateRecord:      ScopeSelf,
		OpReadRecord:        ScopeSelf,
		OpAppendAppointment: ScopeSelf,
		OpUpdateConsent:     ScopeSelf,
		OpListConsents:      ScopeSelf,
	},
	models.RoleProvider: {
		OpReadRecord:          ScopeFacilityConsent,
		OpAppendAppointment:   ScopeFacilityConsent,
		OpAppendTreatmentNote: ScopeFacilityConsent,
	},
	models.RoleClinicAdmin: {
		OpCreateRecord:      ScopeFacility,
		OpReadRecord:        ScopeFacilityConsent,
		OpAppendAppointment: ScopeFacilityConsent,
	},
	models.RolePlatformAdmin: {
		OpVerifyAuditChain: ScopeSystem,
	},
}

// ScopeFor returns the rule that applies to role for op.
func ScopeFor(role models.Role, op Operation) Scope {
	return capabilities[role][op]
}

package grpc

import (
	"time"

	"github.com/dmitrijs2005/patterm/internal/server/models"
)

type Empty struct{}

type IssueSessionRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

type SessionInfo struct {
	Token      string      `json:"token,omitempty"`
	UserID     string      `json:"user_id"`
	Role       models.Role `json:"role"`
	FacilityID string      `json:"facility_id,omitempty"`
	ExpiresAt  time.Time   `json:"expires_at"`
}

type CreateRecordRequest struct {
	Profile models.Profile `json:"profile"`
}

type PatientRequest struct {
	PatientID string `json:"patient_id"`
}

type RecordResponse struct {
	Record *models.PatientRecord `json:"record"`
}

type AppendAppointmentRequest struct {
	PatientID   string                `json:"patient_id"`
	Appointment models.AppointmentRef `json:"appointment"`
}

type UpdateConsentRequest struct {
	PatientID  string `json:"patient_id"`
	FacilityID string `json:"facility_id"`
	Granted    bool   `json:"granted"`
}

type ConsentResponse struct {
	Status *models.ConsentStatus `json:"status"`
}

type ListConsentsResponse struct {
	Consents []models.ConsentStatus `json:"consents"`
}

type AppendTreatmentNoteRequest struct {
	PatientID       string `json:"patient_id"`
	Summary         string `json:"summary"`
	NextSteps       string `json:"next_steps,omitempty"`
	ExpectedVersion *int   `json:"expected_version,omitempty"`
}

type NoteResponse struct {
	Note *models.TreatmentNote `json:"note"`
}

type VerifyAuditChainRequest struct {
	From int64 `json:"from"`
	To   int64 `json:"to"`
}

type VerifyAuditChainResponse struct {
	Valid     bool  `json:"valid"`
	InvalidAt int64 `json:"invalid_at,omitempty"`
	Checked   int64 `json:"checked"`
}

type PingResponse struct {
	Status string `json:"status"`
}

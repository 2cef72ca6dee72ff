package models

import "time"

// ConsentStatus is the Consent Index view of one patient/facility pair.
type ConsentStatus struct {
	PatientID  string    `json:"patient_id"`
	FacilityID string    `json:"facility_id"`
	Granted    bool      `json:"granted"`
	UpdatedAt  time.Time `json:"updated_at"`
}

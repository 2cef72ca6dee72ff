package models

import "time"

// PatientKey is a patient secret as persisted: wrapped, never raw.
type PatientKey struct {
	PatientID string
	Wrapped   []byte
	CreatedAt time.Time
}

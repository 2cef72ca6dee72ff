package models

import (
	"fmt"
	"net/mail"
	"slices"
	"strings"
	"time"

	"github.com/hengadev/errsx"
)

// DateLayout is the layout of Profile.DateOfBirth.
const DateLayout = "2006-01-02"

type Profile struct {
	PatientID   string `json:"patient_id"`
	Email       string `json:"email,omitempty"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	DateOfBirth string `json:"date_of_birth"`
	PhoneNumber string `json:"phone_number,omitempty"`
}

// Validate returns an errsx.Map of invalid fields, or nil. A date of birth
// after now is rejected.
func (p Profile) Validate(now time.Time) error {
	errs := errsx.Map{}

	if strings.TrimSpace(p.FirstName) == "" {
		errs.Set("first_name", fmt.Errorf("required"))
	}
	if strings.TrimSpace(p.LastName) == "" {
		errs.Set("last_name", fmt.Errorf("required"))
	}
	if dob, err := time.Parse(DateLayout, p.DateOfBirth); err != nil {
		errs.Set("date_of_birth", fmt.Errorf("expected YYYY-MM-DD, got %q", p.DateOfBirth))
	} else if dob.After(now) {
		errs.Set("date_of_birth", fmt.Errorf("in the future"))
	}
	if p.Email != "" {
		if _, err := mail.ParseAddress(p.Email); err != nil {
			errs.Set("email", fmt.Errorf("invalid address"))
		}
	}

	return errs.AsError()
}

// AppointmentRef points at a slot booked through the scheduling service.
type AppointmentRef struct {
	SlotID     string    `json:"slot_id"`
	FacilityID string    `json:"facility_id"`
	Start      time.Time `json:"start"`
	End        time.Time `json:"end"`
	IsVirtual  bool      `json:"is_virtual"`
}

func (a AppointmentRef) Validate() error {
	errs := errsx.Map{}

	if a.SlotID == "" {
		errs.Set("slot_id", fmt.Errorf("required"))
	}
	if a.FacilityID == "" {
		errs.Set("facility_id", fmt.Errorf("required"))
	}
	if a.Start.IsZero() || !a.End.After(a.Start) {
		errs.Set("end", fmt.Errorf("must be after start"))
	}

	return errs.AsError()
}

// TreatmentNote is immutable once appended. Versions start at 1 and have no
// gaps.
type TreatmentNote struct {
	Version   int       `json:"version"`
	AuthorID  string    `json:"author_id"`
	CreatedAt time.Time `json:"created_at"`
	Summary   string    `json:"summary"`
	NextSteps string    `json:"next_steps,omitempty"`
}

// PatientRecord is the decrypted vault payload.
type PatientRecord struct {
	Profile        Profile          `json:"profile"`
	Appointments   []AppointmentRef `json:"appointments"`
	Consents       []string         `json:"consents"`
	TreatmentNotes []TreatmentNote  `json:"treatment_notes"`
}

// NewPatientRecord returns an empty record for profile.
func NewPatientRecord(profile Profile) *PatientRecord {
	return &PatientRecord{
		Profile:        profile,
		Appointments:   []AppointmentRef{},
		Consents:       []string{},
		TreatmentNotes: []TreatmentNote{},
	}
}

// SetConsent adds or removes facilityID from the sorted consent set and
// reports whether the set changed.
func (r *PatientRecord) SetConsent(facilityID string, granted bool) bool {
	i, found := slices.BinarySearch(r.Consents, facilityID)
	switch {
	case granted && !found:
		r.Consents = slices.Insert(r.Consents, i, facilityID)
		return true
	case !granted && found:
		r.Consents = slices.Delete(r.Consents, i, i+1)
		return true
	}
	return false
}

func (r *PatientRecord) HasSlot(slotID string) bool {
	return slices.ContainsFunc(r.Appointments, func(a AppointmentRef) bool { return a.SlotID == slotID })
}

// LatestNoteVersion is 0 for a record without notes.
func (r *PatientRecord) LatestNoteVersion() int {
	if len(r.TreatmentNotes) == 0 {
		return 0
	}
	return r.TreatmentNotes[len(r.TreatmentNotes)-1].Version
}

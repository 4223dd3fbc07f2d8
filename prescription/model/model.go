package model

import (
	"errors"
	"fmt"
	"strings"
)

// ClinicalRecord is a prescription as written by a practitioner for a patient.
type ClinicalRecord struct {
	ID             string          `json:"id"`
	PatientID      string          `json:"patientId"`
	PractitionerID string          `json:"doctorId"`
	CreatedAt      Instant         `json:"createdAt"`
	Medicines      []MedicineEntry `json:"medicines"`
	Notes          string          `json:"notes,omitempty"`
	Instructions   string          `json:"instructions,omitempty"`
	IntakeFormID   string          `json:"diseaseFormId,omitempty"`
	AppointmentID  string          `json:"appointmentId,omitempty"`
	ArchiveURL     string          `json:"pdfUrl,omitempty"`
	// UpdatedAt is unset until the record is first edited.
	UpdatedAt      Instant         `json:"updatedAt"`
}

// MedicineEntry is one line of the medicine table. All fields are free text.
type MedicineEntry struct {
	Name     string `json:"name"`
	Dosage   string `json:"dosage"`
	Duration string `json:"duration"`
}

// PatientProfile holds the patient details printed on a prescription.
type PatientProfile struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Age       *int    `json:"age,omitempty"`
	Gender    string  `json:"gender,omitempty"`
	Phone     string  `json:"phone,omitempty"`
	Address   string  `json:"address,omitempty"`
	UpdatedAt Instant `json:"updatedAt"`
}

// PractitionerProfile holds the prescribing doctor's details.
type PractitionerProfile struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Specialization string `json:"specialization,omitempty"`
	Qualification  string `json:"qualification,omitempty"`
}

// NoteText joins notes and instructions into the text of the notes block.
// It is empty when neither carries any non-blank text.
func (r ClinicalRecord) NoteText() string {
	notes := strings.TrimSpace(r.Notes)
	instructions := strings.TrimSpace(r.Instructions)
	switch {
	case notes == "":
		return instructions
	case instructions == "":
		return notes
	default:
		return notes + "\n\n" + instructions
	}
}

// Validate checks the fields a record needs before it is stored.
func (r ClinicalRecord) Validate() error {
	if strings.TrimSpace(r.PatientID) == "" {
		return errors.New("patientId is required")
	}
	if strings.TrimSpace(r.PractitionerID) == "" {
		return errors.New("doctorId is required")
	}
	for i, m := range r.Medicines {
		if strings.TrimSpace(m.Name) == "" && strings.TrimSpace(m.Dosage) == "" && strings.TrimSpace(m.Duration) == "" {
			return fmt.Errorf("medicines[%d] is empty", i)
		}
	}
	return nil
}

// Validate checks the fields a patient needs before it is stored.
func (p PatientProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	if p.Age != nil && *p.Age < 0 {
		return errors.New("age must not be negative")
	}
	return nil
}

// Validate checks the fields a practitioner needs before it is stored.
func (p PractitionerProfile) Validate() error {
	if strings.TrimSpace(p.Name) == "" {
		return errors.New("name is required")
	}
	return nil
}

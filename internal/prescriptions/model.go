package prescriptions

import (
	"fmt"
	"time"

	"clinicrx/internal/feedback"
	"clinicrx/internal/shared/auth"
	"clinicrx/prescription/model"
	"clinicrx/prescription/render"
)

// Actor is the authenticated caller. Patients only ever see their own
// prescriptions.
type Actor struct {
	ID   string
	Role auth.Role
}

func (a Actor) canSee(rec model.ClinicalRecord) bool {
	return a.Role != auth.RolePatient || rec.PatientID == a.ID
}

// PatientPatch carries the patient fields an update replaces. Nil fields are
// left unchanged.
type PatientPatch struct {
	Name    *string
	Age     *int
	Gender  *string
	Phone   *string
	Address *string
}

func (p PatientPatch) apply(dst *model.PatientProfile) {
	setString(&dst.Name, p.Name)
	setString(&dst.Gender, p.Gender)
	setString(&dst.Phone, p.Phone)
	setString(&dst.Address, p.Address)
	if p.Age != nil {
		age := *p.Age
		dst.Age = &age
	}
}

// PrescriptionPatch carries the editable parts of a prescription.
type PrescriptionPatch struct {
	Medicines    *[]model.MedicineEntry
	Notes        *string
	Instructions *string
}

func (p PrescriptionPatch) apply(dst *model.ClinicalRecord) {
	if p.Medicines != nil {
		dst.Medicines = append([]model.MedicineEntry(nil), (*p.Medicines)...)
	}
	setString(&dst.Notes, p.Notes)
	setString(&dst.Instructions, p.Instructions)
}

func setString(dst *string, v *string) {
	if v != nil {
		*dst = *v
	}
}

// VisitKind names what a prescription closes out.
type VisitKind string

const (
	VisitAppointment VisitKind = "appointment"
	VisitDiseaseForm VisitKind = "diseaseForm"
)

// VisitCompleted is the status recorded once a prescription is written.
const VisitCompleted = "Completed"

// ParseVisitKind accepts the kinds above.
func ParseVisitKind(s string) (VisitKind, error) {
	switch k := VisitKind(s); k {
	case VisitAppointment, VisitDiseaseForm:
		return k, nil
	default:
		return "", fmt.Errorf("%w: unknown visit kind %q", ErrInvalidInput, s)
	}
}

// VisitStatus is the state of an appointment or disease form that a
// prescription was written against.
type VisitStatus struct {
	Kind           VisitKind `json:"kind"`
	RefID          string    `json:"id"`
	Status         string    `json:"status"`
	PrescriptionID string    `json:"prescriptionId"`
	CompletedAt    time.Time `json:"completedAt"`
}

// visits lists the appointment and disease form rec closes.
func visits(rec model.ClinicalRecord, at time.Time) []VisitStatus {
	var out []VisitStatus
	if rec.AppointmentID != "" {
		out = append(out, VisitStatus{Kind: VisitAppointment, RefID: rec.AppointmentID, Status: VisitCompleted, PrescriptionID: rec.ID, CompletedAt: at})
	}
	if rec.IntakeFormID != "" {
		out = append(out, VisitStatus{Kind: VisitDiseaseForm, RefID: rec.IntakeFormID, Status: VisitCompleted, PrescriptionID: rec.ID, CompletedAt: at})
	}
	return out
}

// Archive records one archived rendering of a prescription.
type Archive struct {
	ID             string
	PrescriptionID string
	Format         render.Format
	URL            string
	SizeBytes      int64
	CreatedBy      string
	CreatedAt      time.Time
}

// Bundle is a prescription together with the profiles printed on it.
type Bundle struct {
	Record       model.ClinicalRecord
	Patient      model.PatientProfile
	Practitioner model.PractitionerProfile
}

// Document is a rendered prescription ready for download.
type Document struct {
	Artifact render.Artifact
	FileName string
}

// ArchiveResult is returned by Service.Archive.
type ArchiveResult struct {
	URL     string
	Archive Archive
	Notices []feedback.Notification
}

// SaveResult is returned by Service.SaveLocal. Path is empty when the save
// failed; the failure is described in Notices.
type SaveResult struct {
	Path    string
	Notices []feedback.Notification
}

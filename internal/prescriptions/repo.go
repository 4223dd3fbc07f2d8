package prescriptions

import (
	"context"

	"clinicrx/prescription/model"
)

// Repo defines persistence for patients, practitioners, prescriptions and
// their archives.
type Repo interface {
	CreatePatient(ctx context.Context, p model.PatientProfile) error
	GetPatient(ctx context.Context, id string) (model.PatientProfile, error)
	// UpdatePatient and DeletePatient return ErrNotFound for unknown ids.
	UpdatePatient(ctx context.Context, p model.PatientProfile) error
	DeletePatient(ctx context.Context, id string) error

	CreatePractitioner(ctx context.Context, p model.PractitionerProfile) error
	GetPractitioner(ctx context.Context, id string) (model.PractitionerProfile, error)

	CreatePrescription(ctx context.Context, rec model.ClinicalRecord) error
	GetPrescription(ctx context.Context, id string) (model.ClinicalRecord, error)
	// ListByPatient and ListByDoctor return newest first.
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]model.ClinicalRecord, error)
	ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]model.ClinicalRecord, error)
	ListAll(ctx context.Context, limit, offset int) ([]model.ClinicalRecord, error)
	// UpdatePrescription stores the medicines, notes, instructions and
	// updatedAt of rec. Other fields are never rewritten.
	UpdatePrescription(ctx context.Context, rec model.ClinicalRecord) error
	SetArchiveURL(ctx context.Context, id, url string) error

	CreateArchive(ctx context.Context, a Archive) error
	ListArchives(ctx context.Context, prescriptionID string) ([]Archive, error)

	// CompleteVisit upserts the status of an appointment or disease form.
	CompleteVisit(ctx context.Context, v VisitStatus) error
	GetVisit(ctx context.Context, kind VisitKind, refID string) (VisitStatus, error)
}

package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"clinicrx/internal/archive"
	"clinicrx/internal/delivery"
	"clinicrx/internal/feedback"
	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/metrics"
	"clinicrx/internal/shared/storage/object"
	"clinicrx/internal/shared/telemetry"
	"clinicrx/prescription/model"
	"clinicrx/prescription/render"
)

const (
	defaultListLimit = 20
	maxListLimit     = 50
)

// Service coordinates storage, rendering, archival and local delivery of
// prescriptions.
type Service struct {
	Repo     Repo
	Renderer *render.Renderer
	Archiver archive.Archiver
	// LocalStore receives documents saved through SaveLocal.
	LocalStore object.Store
	// Sink sees every notification in addition to the per-call recorder.
	Sink  feedback.Sink
	Now   func() time.Time
	NewID func() string
}

func (s *Service) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now().UTC()
}

func (s *Service) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Service) renderer() *render.Renderer {
	if s.Renderer != nil {
		return s.Renderer
	}
	return &render.Renderer{}
}

func (s *Service) sink(rec *feedback.Recorder, fields map[string]any) feedback.Sink {
	if s.Sink != nil {
		return feedback.Multi{rec, s.Sink}
	}
	return feedback.Multi{rec, feedback.LogSink{Fields: fields}}
}

// CreatePatient validates and stores a patient profile.
func (s *Service) CreatePatient(ctx context.Context, p model.PatientProfile) (model.PatientProfile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return model.PatientProfile{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(p.ID) == "" {
		p.ID = s.newID()
	}
	if err := s.Repo.CreatePatient(ctx, p); err != nil {
		return model.PatientProfile{}, fmt.Errorf("create patient: %w", err)
	}
	telemetry.Info("patient created", map[string]any{"patient_id": p.ID})
	return p, nil
}

// GetPatient returns a patient. Patients may only read their own profile.
func (s *Service) GetPatient(ctx context.Context, actor Actor, id string) (model.PatientProfile, error) {
	if actor.Role == auth.RolePatient && actor.ID != id {
		return model.PatientProfile{}, ErrNotFound
	}
	return s.Repo.GetPatient(ctx, id)
}

// UpdatePatient applies patch to a stored patient and stamps updatedAt.
func (s *Service) UpdatePatient(ctx context.Context, id string, patch PatientPatch) (model.PatientProfile, error) {
	p, err := s.Repo.GetPatient(ctx, id)
	if err != nil {
		return model.PatientProfile{}, err
	}
	patch.apply(&p)
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return model.PatientProfile{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	p.UpdatedAt = model.At(s.now())
	if err := s.Repo.UpdatePatient(ctx, p); err != nil {
		return model.PatientProfile{}, fmt.Errorf("update patient: %w", err)
	}
	telemetry.Info("patient updated", map[string]any{"patient_id": p.ID})
	return p, nil
}

// DeletePatient removes a patient profile. Their prescriptions are kept and
// render with a placeholder patient.
func (s *Service) DeletePatient(ctx context.Context, id string) error {
	if err := s.Repo.DeletePatient(ctx, id); err != nil {
		if errors.Is(err, ErrNotFound) {
			return err
		}
		return fmt.Errorf("delete patient: %w", err)
	}
	telemetry.Info("patient deleted", map[string]any{"patient_id": id})
	return nil
}

// CreatePractitioner validates and stores a practitioner profile.
func (s *Service) CreatePractitioner(ctx context.Context, p model.PractitionerProfile) (model.PractitionerProfile, error) {
	p.Name = strings.TrimSpace(p.Name)
	if err := p.Validate(); err != nil {
		return model.PractitionerProfile{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if strings.TrimSpace(p.ID) == "" {
		p.ID = s.newID()
	}
	if err := s.Repo.CreatePractitioner(ctx, p); err != nil {
		return model.PractitionerProfile{}, fmt.Errorf("create practitioner: %w", err)
	}
	telemetry.Info("practitioner created", map[string]any{"practitioner_id": p.ID})
	return p, nil
}

func (s *Service) GetPractitioner(ctx context.Context, id string) (model.PractitionerProfile, error) {
	return s.Repo.GetPractitioner(ctx, id)
}

// CreatePrescription stores a new prescription. The referenced patient and
// practitioner must exist. A doctor always prescribes as themselves.
func (s *Service) CreatePrescription(ctx context.Context, actor Actor, rec model.ClinicalRecord) (model.ClinicalRecord, error) {
	if actor.Role == auth.RoleDoctor && strings.TrimSpace(rec.PractitionerID) == "" {
		rec.PractitionerID = actor.ID
	}
	if err := rec.Validate(); err != nil {
		return model.ClinicalRecord{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if actor.Role == auth.RoleDoctor && rec.PractitionerID != actor.ID {
		return model.ClinicalRecord{}, fmt.Errorf("%w: doctors may only prescribe as themselves", ErrForbidden)
	}
	if _, err := s.Repo.GetPatient(ctx, rec.PatientID); err != nil {
		return model.ClinicalRecord{}, missingRef(err, "patient", rec.PatientID)
	}
	if _, err := s.Repo.GetPractitioner(ctx, rec.PractitionerID); err != nil {
		return model.ClinicalRecord{}, missingRef(err, "doctor", rec.PractitionerID)
	}

	rec.ID = s.newID()
	if !rec.CreatedAt.IsSet() {
		rec.CreatedAt = model.At(s.now())
	}
	rec.ArchiveURL = ""
	if err := s.Repo.CreatePrescription(ctx, rec); err != nil {
		return model.ClinicalRecord{}, fmt.Errorf("create prescription: %w", err)
	}
	fields := map[string]any{"prescription_id": rec.ID, "patient_id": rec.PatientID, "medicines": len(rec.Medicines)}
	if rec.AppointmentID != "" {
		fields["appointment_id"] = rec.AppointmentID
	}
	telemetry.Info("prescription created", fields)
	s.completeVisits(ctx, rec)
	return rec, nil
}

// completeVisits marks the appointment and disease form the prescription
// was written against as Completed. The prescription is already stored, so
// failures are logged rather than returned.
func (s *Service) completeVisits(ctx context.Context, rec model.ClinicalRecord) {
	for _, v := range visits(rec, s.now()) {
		if err := s.Repo.CompleteVisit(ctx, v); err != nil {
			telemetry.Error("visit not completed", map[string]any{
				"prescription_id": rec.ID,
				"kind":            string(v.Kind),
				"ref_id":          v.RefID,
				"error":           err,
			})
		}
	}
}

// UpdatePrescription edits medicines, notes and instructions and stamps
// updatedAt. Doctors may only edit their own prescriptions.
func (s *Service) UpdatePrescription(ctx context.Context, actor Actor, id string, patch PrescriptionPatch) (model.ClinicalRecord, error) {
	if actor.Role == auth.RolePatient {
		return model.ClinicalRecord{}, ErrForbidden
	}
	rec, err := s.GetPrescription(ctx, actor, id)
	if err != nil {
		return model.ClinicalRecord{}, err
	}
	if actor.Role == auth.RoleDoctor && rec.PractitionerID != actor.ID {
		return model.ClinicalRecord{}, fmt.Errorf("%w: doctors may only edit their own prescriptions", ErrForbidden)
	}
	patch.apply(&rec)
	if err := rec.Validate(); err != nil {
		return model.ClinicalRecord{}, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	rec.UpdatedAt = model.At(s.now())
	if err := s.Repo.UpdatePrescription(ctx, rec); err != nil {
		return model.ClinicalRecord{}, fmt.Errorf("update prescription: %w", err)
	}
	telemetry.Info("prescription updated", map[string]any{"prescription_id": rec.ID, "medicines": len(rec.Medicines)})
	return rec, nil
}

// Visit returns the recorded status of an appointment or disease form.
// Patients only see visits closed by their own prescriptions.
func (s *Service) Visit(ctx context.Context, actor Actor, kind VisitKind, refID string) (VisitStatus, error) {
	v, err := s.Repo.GetVisit(ctx, kind, refID)
	if err != nil {
		return VisitStatus{}, err
	}
	if actor.Role == auth.RolePatient {
		if _, err := s.GetPrescription(ctx, actor, v.PrescriptionID); err != nil {
			return VisitStatus{}, ErrNotFound
		}
	}
	return v, nil
}

func missingRef(err error, kind, id string) error {
	if errors.Is(err, ErrNotFound) {
		return fmt.Errorf("%w: %s %s not found", ErrInvalidInput, kind, id)
	}
	return fmt.Errorf("load %s: %w", kind, err)
}

// GetPrescription returns a prescription visible to actor.
func (s *Service) GetPrescription(ctx context.Context, actor Actor, id string) (model.ClinicalRecord, error) {
	rec, err := s.Repo.GetPrescription(ctx, id)
	if err != nil {
		return model.ClinicalRecord{}, err
	}
	if !actor.canSee(rec) {
		return model.ClinicalRecord{}, ErrNotFound
	}
	return rec, nil
}

// ListByPatient returns a patient's prescriptions, newest first.
func (s *Service) ListByPatient(ctx context.Context, actor Actor, patientID string, limit, offset int) ([]model.ClinicalRecord, error) {
	if actor.Role == auth.RolePatient && actor.ID != patientID {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(patientID) == "" {
		return nil, fmt.Errorf("%w: patientId is required", ErrInvalidInput)
	}
	limit, offset = clampPage(limit, offset)
	return s.Repo.ListByPatient(ctx, patientID, limit, offset)
}

// ListByDoctor returns a practitioner's prescriptions, newest first.
func (s *Service) ListByDoctor(ctx context.Context, actor Actor, doctorID string, limit, offset int) ([]model.ClinicalRecord, error) {
	if actor.Role == auth.RolePatient {
		return nil, ErrForbidden
	}
	if strings.TrimSpace(doctorID) == "" {
		return nil, fmt.Errorf("%w: doctorId is required", ErrInvalidInput)
	}
	limit, offset = clampPage(limit, offset)
	return s.Repo.ListByDoctor(ctx, doctorID, limit, offset)
}

// ListAll returns every prescription, newest first. Only admins and
// receptionists see the clinic-wide list.
func (s *Service) ListAll(ctx context.Context, actor Actor, limit, offset int) ([]model.ClinicalRecord, error) {
	if actor.Role != auth.RoleAdmin && actor.Role != auth.RoleReceptionist {
		return nil, ErrForbidden
	}
	limit, offset = clampPage(limit, offset)
	return s.Repo.ListAll(ctx, limit, offset)
}

// Archives lists archived renderings of a prescription, newest first.
func (s *Service) Archives(ctx context.Context, actor Actor, id string) ([]Archive, error) {
	if _, err := s.GetPrescription(ctx, actor, id); err != nil {
		return nil, err
	}
	return s.Repo.ListArchives(ctx, id)
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}

// Bundle loads a prescription with its patient and practitioner. Missing
// profiles render as placeholders.
func (s *Service) Bundle(ctx context.Context, actor Actor, id string) (Bundle, error) {
	rec, err := s.GetPrescription(ctx, actor, id)
	if err != nil {
		return Bundle{}, err
	}
	b := Bundle{Record: rec}
	b.Patient, err = s.Repo.GetPatient(ctx, rec.PatientID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Bundle{}, fmt.Errorf("load patient: %w", err)
	}
	b.Practitioner, err = s.Repo.GetPractitioner(ctx, rec.PractitionerID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Bundle{}, fmt.Errorf("load doctor: %w", err)
	}
	return b, nil
}

// Document renders a prescription in format and names the download.
func (s *Service) Document(ctx context.Context, actor Actor, id string, format render.Format) (Document, error) {
	b, err := s.Bundle(ctx, actor, id)
	if err != nil {
		return Document{}, err
	}
	return s.render(ctx, b, format)
}

func (s *Service) render(ctx context.Context, b Bundle, format render.Format) (Document, error) {
	start := time.Now()
	art, err := s.renderer().Render(ctx, format, b.Record, b.Patient, b.Practitioner)
	metrics.ObserveRenderDurationMs(metrics.SinceMillis(start))
	if err != nil {
		metrics.IncRenderFailed()
		telemetry.Error("render failed", map[string]any{"prescription_id": b.Record.ID, "format": string(format), "error": err})
		return Document{}, fmt.Errorf("render prescription: %w", err)
	}
	metrics.IncRendered()
	return Document{
		Artifact: art,
		FileName: delivery.FileName(b.Patient.Name, format, s.now()),
	}, nil
}

// Archive renders the prescription, uploads it once and records the
// resulting URL on the prescription. Upload failures are reported through
// the notices and returned. When recording fails after a successful upload
// the result still carries the URL.
func (s *Service) Archive(ctx context.Context, actor Actor, id string, format render.Format) (ArchiveResult, error) {
	if s.Archiver == nil {
		return ArchiveResult{}, fmt.Errorf("no archiver configured")
	}
	b, err := s.Bundle(ctx, actor, id)
	if err != nil {
		return ArchiveResult{}, err
	}
	doc, err := s.render(ctx, b, format)
	if err != nil {
		return ArchiveResult{}, err
	}

	rec := &feedback.Recorder{}
	label := strings.ToUpper(string(format))
	url, err := feedback.Track(ctx, s.sink(rec, map[string]any{"prescription_id": id}),
		"Uploading "+label+"...", label+" upload failed: ",
		func(ctx context.Context) (string, error) {
			return s.Archiver.Archive(ctx, doc.Artifact, doc.FileName)
		})
	if err != nil {
		metrics.IncArchiveFailed()
		return ArchiveResult{Notices: rec.Notifications()}, err
	}
	metrics.IncArchived()

	entry := Archive{
		ID:             s.newID(),
		PrescriptionID: id,
		Format:         format,
		URL:            url,
		SizeBytes:      int64(len(doc.Artifact.Data)),
		CreatedBy:      actor.ID,
		CreatedAt:      s.now(),
	}
	if err := s.Repo.SetArchiveURL(ctx, id, url); err != nil {
		return s.unrecorded(id, url, rec, fmt.Errorf("record archive url: %w", err))
	}
	if err := s.Repo.CreateArchive(ctx, entry); err != nil {
		return s.unrecorded(id, url, rec, fmt.Errorf("record archive: %w", err))
	}
	telemetry.Info("prescription archived", map[string]any{"prescription_id": id, "format": string(format), "archive_id": entry.ID})
	return ArchiveResult{URL: url, Archive: entry, Notices: rec.Notifications()}, nil
}

// unrecorded reports an upload that succeeded but could not be stored. The
// URL is logged and returned alongside the error so it can be recovered.
func (s *Service) unrecorded(id, url string, rec *feedback.Recorder, err error) (ArchiveResult, error) {
	telemetry.Error("archive not recorded", map[string]any{"prescription_id": id, "url": url, "error": err})
	return ArchiveResult{URL: url, Notices: rec.Notifications()}, err
}

// SaveLocal renders the prescription and writes it to the local store. A
// failed save is not an error: the result carries an empty path and the
// failure notice.
func (s *Service) SaveLocal(ctx context.Context, actor Actor, id string, format render.Format) (SaveResult, error) {
	b, err := s.Bundle(ctx, actor, id)
	if err != nil {
		return SaveResult{}, err
	}
	doc, err := s.render(ctx, b, format)
	if err != nil {
		return SaveResult{}, err
	}

	rec := &feedback.Recorder{}
	d := &delivery.Deliverer{
		Store: s.LocalStore,
		Sink:  s.sink(rec, map[string]any{"prescription_id": id}),
		Now:   s.now,
	}
	path := d.Save(ctx, doc.Artifact, b.Patient.Name)
	metrics.IncLocalSave(path != "")
	return SaveResult{Path: path, Notices: rec.Notifications()}, nil
}

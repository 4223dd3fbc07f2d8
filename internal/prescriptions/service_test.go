package prescriptions

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"clinicrx/internal/archive"
	"clinicrx/internal/feedback"
	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/storage/object/local"
	"clinicrx/prescription/model"
	"clinicrx/prescription/render"
)

var fixedNow = time.Date(2026, 3, 4, 10, 30, 0, 0, time.UTC)

type fakeArchiver struct {
	calls     int
	fileNames []string
	formats   []render.Format
	url       string
	err       error
}

func (f *fakeArchiver) Archive(_ context.Context, art render.Artifact, fileName string) (string, error) {
	f.calls++
	f.fileNames = append(f.fileNames, fileName)
	f.formats = append(f.formats, art.Format)
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func sequentialIDs(prefix string) func() string {
	n := 0
	return func() string {
		n++
		return fmt.Sprintf("%s-%d", prefix, n)
	}
}

func newTestService(t *testing.T) (*Service, *MemoryRepo) {
	t.Helper()
	repo := NewMemoryRepo()
	svc := &Service{
		Repo:       repo,
		Renderer:   &render.Renderer{Now: func() time.Time { return fixedNow }},
		LocalStore: local.New(t.TempDir()),
		Sink:       feedback.Discard,
		Now:        func() time.Time { return fixedNow },
		NewID:      sequentialIDs("id"),
	}
	return svc, repo
}

func seed(t *testing.T, svc *Service) (model.PatientProfile, model.PractitionerProfile) {
	t.Helper()
	ctx := context.Background()
	age := 34
	patient, err := svc.CreatePatient(ctx, model.PatientProfile{Name: "Asha Rao", Age: &age, Gender: "Female"})
	if err != nil {
		t.Fatalf("create patient: %v", err)
	}
	doctor, err := svc.CreatePractitioner(ctx, model.PractitionerProfile{Name: "Meera Iyer", Specialization: "General Medicine"})
	if err != nil {
		t.Fatalf("create practitioner: %v", err)
	}
	return patient, doctor
}

func createRx(t *testing.T, svc *Service, patient model.PatientProfile, doctor model.PractitionerProfile) model.ClinicalRecord {
	t.Helper()
	rec, err := svc.CreatePrescription(context.Background(), Actor{ID: doctor.ID, Role: auth.RoleDoctor}, model.ClinicalRecord{
		PatientID:      patient.ID,
		PractitionerID: doctor.ID,
		Medicines:      []model.MedicineEntry{{Name: "Paracetamol", Dosage: "500mg", Duration: "5 days"}},
		Notes:          "Rest",
	})
	if err != nil {
		t.Fatalf("create prescription: %v", err)
	}
	return rec
}

func TestCreatePrescription(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	doctorActor := Actor{ID: doctor.ID, Role: auth.RoleDoctor}

	tests := []struct {
		name    string
		actor   Actor
		rec     model.ClinicalRecord
		wantErr error
	}{
		{name: "missing patient id", actor: doctorActor, rec: model.ClinicalRecord{PractitionerID: doctor.ID}, wantErr: ErrInvalidInput},
		{name: "unknown patient", actor: doctorActor, rec: model.ClinicalRecord{PatientID: "nobody", PractitionerID: doctor.ID}, wantErr: ErrInvalidInput},
		{name: "unknown doctor", actor: Actor{Role: auth.RoleAdmin}, rec: model.ClinicalRecord{PatientID: patient.ID, PractitionerID: "nobody"}, wantErr: ErrInvalidInput},
		{name: "doctor as someone else", actor: Actor{ID: "other", Role: auth.RoleDoctor}, rec: model.ClinicalRecord{PatientID: patient.ID, PractitionerID: doctor.ID}, wantErr: ErrForbidden},
		{name: "empty medicine row", actor: doctorActor, rec: model.ClinicalRecord{PatientID: patient.ID, Medicines: []model.MedicineEntry{{}}}, wantErr: ErrInvalidInput},
		{name: "doctor defaults to self", actor: doctorActor, rec: model.ClinicalRecord{PatientID: patient.ID}},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, err := svc.CreatePrescription(context.Background(), tt.actor, tt.rec)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got.ID == "" || got.PractitionerID != doctor.ID {
				t.Fatalf("record = %+v", got)
			}
			if !got.CreatedAt.Time().Equal(fixedNow) {
				t.Fatalf("createdAt = %v", got.CreatedAt.Time())
			}
		})
	}
}

func TestPatientSeesOnlyOwnPrescriptions(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)
	ctx := context.Background()

	if _, err := svc.GetPrescription(ctx, Actor{ID: patient.ID, Role: auth.RolePatient}, rec.ID); err != nil {
		t.Fatalf("own prescription: %v", err)
	}
	if _, err := svc.GetPrescription(ctx, Actor{ID: "someone-else", Role: auth.RolePatient}, rec.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.ListByPatient(ctx, Actor{ID: "someone-else", Role: auth.RolePatient}, patient.ID, 0, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
	if _, err := svc.ListByDoctor(ctx, Actor{ID: patient.ID, Role: auth.RolePatient}, doctor.ID, 0, 0); !errors.Is(err, ErrForbidden) {
		t.Fatalf("err = %v, want ErrForbidden", err)
	}
}

func TestListNewestFirst(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	ctx := context.Background()
	admin := Actor{Role: auth.RoleAdmin}

	for i := 0; i < 3; i++ {
		at := fixedNow.Add(time.Duration(i) * time.Hour)
		if _, err := svc.CreatePrescription(ctx, admin, model.ClinicalRecord{
			PatientID:      patient.ID,
			PractitionerID: doctor.ID,
			CreatedAt:      model.At(at),
			Notes:          fmt.Sprintf("visit %d", i),
		}); err != nil {
			t.Fatalf("create: %v", err)
		}
	}
	recs, err := svc.ListByPatient(ctx, admin, patient.ID, 2, 0)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(recs) != 2 || recs[0].Notes != "visit 2" || recs[1].Notes != "visit 1" {
		t.Fatalf("recs = %+v", recs)
	}
	byDoctor, err := svc.ListByDoctor(ctx, admin, doctor.ID, 0, 2)
	if err != nil {
		t.Fatalf("list by doctor: %v", err)
	}
	if len(byDoctor) != 1 || byDoctor[0].Notes != "visit 0" {
		t.Fatalf("byDoctor = %+v", byDoctor)
	}
}

func TestDocumentNamesDownload(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)

	tests := []struct {
		format      render.Format
		contentType string
		ext         string
	}{
		{format: render.FormatPDF, contentType: "application/pdf", ext: ".pdf"},
		{format: render.FormatJPEG, contentType: "image/jpeg", ext: ".jpg"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(string(tt.format), func(t *testing.T) {
			doc, err := svc.Document(context.Background(), Actor{Role: auth.RoleAdmin}, rec.ID, tt.format)
			if err != nil {
				t.Fatalf("document: %v", err)
			}
			want := fmt.Sprintf("RX_Asha_Rao_%d%s", fixedNow.UnixMilli(), tt.ext)
			if doc.FileName != want {
				t.Fatalf("file name = %q, want %q", doc.FileName, want)
			}
			if doc.Artifact.ContentType != tt.contentType || len(doc.Artifact.Data) == 0 {
				t.Fatalf("artifact = %s (%d bytes)", doc.Artifact.ContentType, len(doc.Artifact.Data))
			}
		})
	}
}

func TestArchiveRecordsURL(t *testing.T) {
	svc, repo := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)
	fake := &fakeArchiver{url: "https://res.example.com/demo/raw/upload/fl_attachment/v1/prescriptions/rx.pdf"}
	svc.Archiver = fake

	res, err := svc.Archive(context.Background(), Actor{ID: doctor.ID, Role: auth.RoleDoctor}, rec.ID, render.FormatPDF)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if res.URL != fake.url || len(res.Notices) != 0 {
		t.Fatalf("result = %+v", res)
	}
	if fake.calls != 1 || !strings.HasSuffix(fake.fileNames[0], ".pdf") {
		t.Fatalf("archiver calls = %d names = %v", fake.calls, fake.fileNames)
	}

	stored, err := repo.GetPrescription(context.Background(), rec.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if stored.ArchiveURL != fake.url {
		t.Fatalf("archive url = %q", stored.ArchiveURL)
	}
	archives, err := svc.Archives(context.Background(), Actor{Role: auth.RoleAdmin}, rec.ID)
	if err != nil {
		t.Fatalf("archives: %v", err)
	}
	if len(archives) != 1 || archives[0].CreatedBy != doctor.ID || archives[0].Format != render.FormatPDF {
		t.Fatalf("archives = %+v", archives)
	}
}

func TestArchiveFailureNotifiesAndKeepsRecord(t *testing.T) {
	svc, repo := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)
	fake := &fakeArchiver{err: &archive.UploadError{StatusCode: 400, Message: "X"}}
	svc.Archiver = fake

	res, err := svc.Archive(context.Background(), Actor{Role: auth.RoleAdmin}, rec.ID, render.FormatPDF)
	var uploadErr *archive.UploadError
	if !errors.As(err, &uploadErr) || uploadErr.Message != "X" {
		t.Fatalf("err = %v", err)
	}
	if fake.calls != 1 {
		t.Fatalf("archiver calls = %d, want 1", fake.calls)
	}
	if len(res.Notices) != 1 || res.Notices[0].Message != "PDF upload failed: X" || res.Notices[0].Kind != feedback.KindError {
		t.Fatalf("notices = %+v", res.Notices)
	}
	stored, _ := repo.GetPrescription(context.Background(), rec.ID)
	if stored.ArchiveURL != "" {
		t.Fatalf("archive url set after failure: %q", stored.ArchiveURL)
	}
}

func TestSaveLocal(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)

	res, err := svc.SaveLocal(context.Background(), Actor{Role: auth.RoleAdmin}, rec.ID, render.FormatJPEG)
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if res.Path == "" {
		t.Fatalf("expected saved path, notices = %+v", res.Notices)
	}
	if _, err := os.Stat(res.Path); err != nil {
		t.Fatalf("saved file missing: %v", err)
	}
	want := fmt.Sprintf("Prescription saved as RX_Asha_Rao_%d.jpg", fixedNow.UnixMilli())
	if len(res.Notices) != 1 || res.Notices[0].Message != want {
		t.Fatalf("notices = %+v", res.Notices)
	}
}

func TestSaveLocalFailureIsNotAnError(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)
	svc.LocalStore = nil

	res, err := svc.SaveLocal(context.Background(), Actor{Role: auth.RoleAdmin}, rec.ID, render.FormatPDF)
	if err != nil {
		t.Fatalf("save returned error: %v", err)
	}
	if res.Path != "" {
		t.Fatalf("path = %q, want empty", res.Path)
	}
	if len(res.Notices) != 1 || res.Notices[0].Kind != feedback.KindError ||
		!strings.HasPrefix(res.Notices[0].Message, "Failed to save prescription: ") {
		t.Fatalf("notices = %+v", res.Notices)
	}
}

func TestBundleRendersWithMissingProfiles(t *testing.T) {
	svc, repo := newTestService(t)
	if err := repo.CreatePrescription(context.Background(), model.ClinicalRecord{ID: "orphan", PatientID: "gone", PractitionerID: "gone"}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	doc, err := svc.Document(context.Background(), Actor{Role: auth.RoleAdmin}, "orphan", render.FormatPDF)
	if err != nil {
		t.Fatalf("document: %v", err)
	}
	if !strings.HasPrefix(doc.FileName, "RX_Unknown_") {
		t.Fatalf("file name = %q", doc.FileName)
	}
}

func TestUpdatePrescriptionStampsUpdatedAt(t *testing.T) {
	svc, repo := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)
	edited := fixedNow.Add(2 * time.Hour)
	svc.Now = func() time.Time { return edited }
	ctx := context.Background()

	notes := "Rest and fluids"
	medicines := []model.MedicineEntry{{Name: "Ibuprofen", Dosage: "200mg", Duration: "3 days"}}
	got, err := svc.UpdatePrescription(ctx, Actor{ID: doctor.ID, Role: auth.RoleDoctor}, rec.ID, PrescriptionPatch{
		Medicines: &medicines,
		Notes:     &notes,
	})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !got.UpdatedAt.Time().Equal(edited) || !got.CreatedAt.Time().Equal(fixedNow) {
		t.Fatalf("timestamps = created %v updated %v", got.CreatedAt.Time(), got.UpdatedAt.Time())
	}
	stored, _ := repo.GetPrescription(ctx, rec.ID)
	if stored.Notes != notes || len(stored.Medicines) != 1 || stored.Medicines[0].Name != "Ibuprofen" || !stored.UpdatedAt.IsSet() {
		t.Fatalf("stored = %+v", stored)
	}

	empty := []model.MedicineEntry{{}}
	tests := []struct {
		name    string
		actor   Actor
		id      string
		patch   PrescriptionPatch
		wantErr error
	}{
		{name: "other doctor", actor: Actor{ID: "doc-2", Role: auth.RoleDoctor}, id: rec.ID, wantErr: ErrForbidden},
		{name: "patient", actor: Actor{ID: patient.ID, Role: auth.RolePatient}, id: rec.ID, wantErr: ErrForbidden},
		{name: "empty medicine row", actor: Actor{Role: auth.RoleAdmin}, id: rec.ID, patch: PrescriptionPatch{Medicines: &empty}, wantErr: ErrInvalidInput},
		{name: "unknown prescription", actor: Actor{Role: auth.RoleAdmin}, id: "missing", wantErr: ErrNotFound},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.UpdatePrescription(ctx, tt.actor, tt.id, tt.patch); !errors.Is(err, tt.wantErr) {
				t.Fatalf("err = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestUpdateAndDeletePatient(t *testing.T) {
	svc, repo := newTestService(t)
	patient, doctor := seed(t, svc)
	rec := createRx(t, svc, patient, doctor)
	ctx := context.Background()

	phone := "98450 00000"
	blank := "  "
	if _, err := svc.UpdatePatient(ctx, patient.ID, PatientPatch{Name: &blank}); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("blank name err = %v, want ErrInvalidInput", err)
	}
	updated, err := svc.UpdatePatient(ctx, patient.ID, PatientPatch{Phone: &phone})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.Phone != phone || updated.Name != "Asha Rao" || *updated.Age != 34 || !updated.UpdatedAt.Time().Equal(fixedNow) {
		t.Fatalf("updated = %+v", updated)
	}

	if err := svc.DeletePatient(ctx, patient.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := repo.GetPatient(ctx, patient.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("patient still stored: %v", err)
	}
	if err := svc.DeletePatient(ctx, patient.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete err = %v, want ErrNotFound", err)
	}
	if _, err := svc.UpdatePatient(ctx, patient.ID, PatientPatch{Phone: &phone}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("update after delete err = %v, want ErrNotFound", err)
	}

	doc, err := svc.Document(ctx, Actor{Role: auth.RoleAdmin}, rec.ID, render.FormatPDF)
	if err != nil {
		t.Fatalf("prescription of deleted patient: %v", err)
	}
	if !strings.HasPrefix(doc.FileName, "RX_Unknown_") {
		t.Fatalf("file name = %q", doc.FileName)
	}
}

func TestListAllForStaffOnly(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	createRx(t, svc, patient, doctor)
	createRx(t, svc, patient, doctor)
	ctx := context.Background()

	for _, role := range []auth.Role{auth.RoleAdmin, auth.RoleReceptionist} {
		recs, err := svc.ListAll(ctx, Actor{ID: "staff", Role: role}, 0, 0)
		if err != nil {
			t.Fatalf("%s list: %v", role, err)
		}
		if len(recs) != 2 {
			t.Fatalf("%s saw %d prescriptions, want 2", role, len(recs))
		}
	}
	for _, role := range []auth.Role{auth.RoleDoctor, auth.RolePatient} {
		if _, err := svc.ListAll(ctx, Actor{ID: "x", Role: role}, 0, 0); !errors.Is(err, ErrForbidden) {
			t.Fatalf("%s err = %v, want ErrForbidden", role, err)
		}
	}
}

func TestCreatePrescriptionCompletesVisits(t *testing.T) {
	svc, _ := newTestService(t)
	patient, doctor := seed(t, svc)
	ctx := context.Background()

	rec, err := svc.CreatePrescription(ctx, Actor{ID: doctor.ID, Role: auth.RoleDoctor}, model.ClinicalRecord{
		PatientID:     patient.ID,
		AppointmentID: "appt-9",
		IntakeFormID:  "form-3",
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	for _, tt := range []struct {
		kind VisitKind
		ref  string
	}{{VisitAppointment, "appt-9"}, {VisitDiseaseForm, "form-3"}} {
		v, err := svc.Visit(ctx, Actor{Role: auth.RoleReceptionist}, tt.kind, tt.ref)
		if err != nil {
			t.Fatalf("visit %s: %v", tt.kind, err)
		}
		if v.Status != VisitCompleted || v.PrescriptionID != rec.ID || !v.CompletedAt.Equal(fixedNow) {
			t.Fatalf("visit %s = %+v", tt.kind, v)
		}
	}
	if _, err := svc.Visit(ctx, Actor{ID: patient.ID, Role: auth.RolePatient}, VisitAppointment, "appt-9"); err != nil {
		t.Fatalf("own visit: %v", err)
	}
	if _, err := svc.Visit(ctx, Actor{ID: "someone-else", Role: auth.RolePatient}, VisitAppointment, "appt-9"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := svc.Visit(ctx, Actor{Role: auth.RoleAdmin}, VisitAppointment, "appt-unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

// unrecordedRepo fails the writes that follow a successful upload.
type unrecordedRepo struct {
	*MemoryRepo
	failURL bool
}

func (r *unrecordedRepo) SetArchiveURL(ctx context.Context, id, url string) error {
	if r.failURL {
		return errors.New("connection reset")
	}
	return r.MemoryRepo.SetArchiveURL(ctx, id, url)
}

func (r *unrecordedRepo) CreateArchive(context.Context, Archive) error {
	return errors.New("connection reset")
}

func TestArchiveKeepsURLWhenRecordFails(t *testing.T) {
	for _, failURL := range []bool{true, false} {
		svc, repo := newTestService(t)
		patient, doctor := seed(t, svc)
		rec := createRx(t, svc, patient, doctor)
		svc.Repo = &unrecordedRepo{MemoryRepo: repo, failURL: failURL}
		fake := &fakeArchiver{url: "https://res.example.com/demo/raw/upload/fl_attachment/v1/prescriptions/rx.pdf"}
		svc.Archiver = fake

		res, err := svc.Archive(context.Background(), Actor{Role: auth.RoleAdmin}, rec.ID, render.FormatPDF)
		if err == nil || !strings.Contains(err.Error(), "connection reset") {
			t.Fatalf("failURL=%v: err = %v", failURL, err)
		}
		if res.URL != fake.url {
			t.Fatalf("failURL=%v: url lost, result = %+v", failURL, res)
		}
		if fake.calls != 1 {
			t.Fatalf("failURL=%v: archiver calls = %d", failURL, fake.calls)
		}
	}
}

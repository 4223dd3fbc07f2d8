package prescriptions

import (
	"context"
	"sort"
	"sync"

	"clinicrx/prescription/model"
)

// MemoryRepo is an in-memory Repo for development and tests.
type MemoryRepo struct {
	mu            sync.RWMutex
	patients      map[string]model.PatientProfile
	practitioners map[string]model.PractitionerProfile
	records       map[string]model.ClinicalRecord
	archives      map[string][]Archive
	visits        map[visitKey]VisitStatus
}

type visitKey struct {
	kind VisitKind
	ref  string
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		patients:      make(map[string]model.PatientProfile),
		practitioners: make(map[string]model.PractitionerProfile),
		records:       make(map[string]model.ClinicalRecord),
		archives:      make(map[string][]Archive),
		visits:        make(map[visitKey]VisitStatus),
	}
}

func (r *MemoryRepo) CreatePatient(ctx context.Context, p model.PatientProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.patients[p.ID] = p
	return nil
}

func (r *MemoryRepo) GetPatient(ctx context.Context, id string) (model.PatientProfile, error) {
	if err := ctx.Err(); err != nil {
		return model.PatientProfile{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.patients[id]
	if !ok {
		return model.PatientProfile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) UpdatePatient(ctx context.Context, p model.PatientProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[p.ID]; !ok {
		return ErrNotFound
	}
	r.patients[p.ID] = p
	return nil
}

func (r *MemoryRepo) DeletePatient(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.patients[id]; !ok {
		return ErrNotFound
	}
	delete(r.patients, id)
	return nil
}

func (r *MemoryRepo) CreatePractitioner(ctx context.Context, p model.PractitionerProfile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.practitioners[p.ID] = p
	return nil
}

func (r *MemoryRepo) GetPractitioner(ctx context.Context, id string) (model.PractitionerProfile, error) {
	if err := ctx.Err(); err != nil {
		return model.PractitionerProfile{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.practitioners[id]
	if !ok {
		return model.PractitionerProfile{}, ErrNotFound
	}
	return p, nil
}

func (r *MemoryRepo) CreatePrescription(ctx context.Context, rec model.ClinicalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rec.Medicines = append([]model.MedicineEntry(nil), rec.Medicines...)
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[rec.ID] = rec
	return nil
}

func (r *MemoryRepo) GetPrescription(ctx context.Context, id string) (model.ClinicalRecord, error) {
	if err := ctx.Err(); err != nil {
		return model.ClinicalRecord{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return model.ClinicalRecord{}, ErrNotFound
	}
	rec.Medicines = append([]model.MedicineEntry(nil), rec.Medicines...)
	return rec, nil
}

func (r *MemoryRepo) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]model.ClinicalRecord, error) {
	return r.list(ctx, func(rec model.ClinicalRecord) bool { return rec.PatientID == patientID }, limit, offset)
}

func (r *MemoryRepo) ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]model.ClinicalRecord, error) {
	return r.list(ctx, func(rec model.ClinicalRecord) bool { return rec.PractitionerID == doctorID }, limit, offset)
}

func (r *MemoryRepo) ListAll(ctx context.Context, limit, offset int) ([]model.ClinicalRecord, error) {
	return r.list(ctx, func(model.ClinicalRecord) bool { return true }, limit, offset)
}

func (r *MemoryRepo) UpdatePrescription(ctx context.Context, rec model.ClinicalRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.records[rec.ID]
	if !ok {
		return ErrNotFound
	}
	stored.Medicines = append([]model.MedicineEntry(nil), rec.Medicines...)
	stored.Notes = rec.Notes
	stored.Instructions = rec.Instructions
	stored.UpdatedAt = rec.UpdatedAt
	r.records[rec.ID] = stored
	return nil
}

func (r *MemoryRepo) list(ctx context.Context, match func(model.ClinicalRecord) bool, limit, offset int) ([]model.ClinicalRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []model.ClinicalRecord
	for _, rec := range r.records {
		if match(rec) {
			out = append(out, rec)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CreatedAt.Time(), out[j].CreatedAt.Time()
		if ti.Equal(tj) {
			return out[i].ID > out[j].ID
		}
		return ti.After(tj)
	})
	if offset >= len(out) {
		return []model.ClinicalRecord{}, nil
	}
	out = out[offset:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (r *MemoryRepo) SetArchiveURL(ctx context.Context, id, url string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.ArchiveURL = url
	r.records[id] = rec
	return nil
}

func (r *MemoryRepo) CreateArchive(ctx context.Context, a Archive) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.archives[a.PrescriptionID] = append(r.archives[a.PrescriptionID], a)
	return nil
}

func (r *MemoryRepo) ListArchives(ctx context.Context, prescriptionID string) ([]Archive, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	src := r.archives[prescriptionID]
	out := make([]Archive, 0, len(src))
	for i := len(src) - 1; i >= 0; i-- {
		out = append(out, src[i])
	}
	return out, nil
}

func (r *MemoryRepo) CompleteVisit(ctx context.Context, v VisitStatus) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[v.PrescriptionID]; !ok {
		return ErrNotFound
	}
	r.visits[visitKey{kind: v.Kind, ref: v.RefID}] = v
	return nil
}

func (r *MemoryRepo) GetVisit(ctx context.Context, kind VisitKind, refID string) (VisitStatus, error) {
	if err := ctx.Err(); err != nil {
		return VisitStatus{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.visits[visitKey{kind: kind, ref: refID}]
	if !ok {
		return VisitStatus{}, ErrNotFound
	}
	return v, nil
}

var _ Repo = (*MemoryRepo)(nil)

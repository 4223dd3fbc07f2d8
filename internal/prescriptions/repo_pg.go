package prescriptions

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"clinicrx/prescription/model"
	"clinicrx/prescription/render"
)

// PGRepo implements Repo using Postgres.
type PGRepo struct {
	DB *sql.DB
}

func (r *PGRepo) CreatePatient(ctx context.Context, p model.PatientProfile) error {
	const query = `
INSERT INTO patients (id, name, age, gender, phone, address, created_at)
VALUES ($1, $2, $3, $4, $5, $6, now())`
	var age sql.NullInt64
	if p.Age != nil {
		age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
	}
	_, err := r.DB.ExecContext(ctx, query,
		p.ID,
		p.Name,
		age,
		nullableString(p.Gender),
		nullableString(p.Phone),
		nullableString(p.Address),
	)
	return err
}

func (r *PGRepo) GetPatient(ctx context.Context, id string) (model.PatientProfile, error) {
	const query = `
SELECT id, name, age, gender, phone, address, updated_at
FROM patients
WHERE id = $1
LIMIT 1`
	var p model.PatientProfile
	var age sql.NullInt64
	var gender, phone, address sql.NullString
	var updatedAt sql.NullTime
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &age, &gender, &phone, &address, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PatientProfile{}, ErrNotFound
		}
		return model.PatientProfile{}, err
	}
	if age.Valid {
		v := int(age.Int64)
		p.Age = &v
	}
	p.Gender = gender.String
	p.Phone = phone.String
	p.Address = address.String
	p.UpdatedAt = instantOf(updatedAt)
	return p, nil
}

func (r *PGRepo) UpdatePatient(ctx context.Context, p model.PatientProfile) error {
	const query = `
UPDATE patients
SET name = $2, age = $3, gender = $4, phone = $5, address = $6, updated_at = $7
WHERE id = $1`
	var age sql.NullInt64
	if p.Age != nil {
		age = sql.NullInt64{Int64: int64(*p.Age), Valid: true}
	}
	return r.execOne(ctx, query,
		p.ID,
		p.Name,
		age,
		nullableString(p.Gender),
		nullableString(p.Phone),
		nullableString(p.Address),
		p.UpdatedAt.Or(time.Now().UTC()),
	)
}

func (r *PGRepo) DeletePatient(ctx context.Context, id string) error {
	return r.execOne(ctx, `DELETE FROM patients WHERE id = $1`, id)
}

func (r *PGRepo) CreatePractitioner(ctx context.Context, p model.PractitionerProfile) error {
	const query = `
INSERT INTO practitioners (id, name, specialization, qualification, created_at)
VALUES ($1, $2, $3, $4, now())`
	_, err := r.DB.ExecContext(ctx, query,
		p.ID,
		p.Name,
		nullableString(p.Specialization),
		nullableString(p.Qualification),
	)
	return err
}

func (r *PGRepo) GetPractitioner(ctx context.Context, id string) (model.PractitionerProfile, error) {
	const query = `
SELECT id, name, specialization, qualification
FROM practitioners
WHERE id = $1
LIMIT 1`
	var p model.PractitionerProfile
	var specialization, qualification sql.NullString
	err := r.DB.QueryRowContext(ctx, query, id).Scan(&p.ID, &p.Name, &specialization, &qualification)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.PractitionerProfile{}, ErrNotFound
		}
		return model.PractitionerProfile{}, err
	}
	p.Specialization = specialization.String
	p.Qualification = qualification.String
	return p, nil
}

func (r *PGRepo) CreatePrescription(ctx context.Context, rec model.ClinicalRecord) error {
	const query = `
INSERT INTO prescriptions (
    id,
    patient_id,
    doctor_id,
    medicines,
    notes,
    instructions,
    disease_form_id,
    appointment_id,
    archive_url,
    created_at
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	raw, err := encodeMedicines(rec.Medicines)
	if err != nil {
		return err
	}
	_, err = r.DB.ExecContext(ctx, query,
		rec.ID,
		rec.PatientID,
		rec.PractitionerID,
		raw,
		nullableString(rec.Notes),
		nullableString(rec.Instructions),
		nullableString(rec.IntakeFormID),
		nullableString(rec.AppointmentID),
		nullableString(rec.ArchiveURL),
		rec.CreatedAt.Or(time.Now().UTC()),
	)
	return err
}

const prescriptionColumns = `id, patient_id, doctor_id, medicines, notes, instructions, disease_form_id, appointment_id, archive_url, created_at, updated_at`

func (r *PGRepo) GetPrescription(ctx context.Context, id string) (model.ClinicalRecord, error) {
	query := `
SELECT ` + prescriptionColumns + `
FROM prescriptions
WHERE id = $1
LIMIT 1`
	rec, err := scanPrescription(r.DB.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.ClinicalRecord{}, ErrNotFound
		}
		return model.ClinicalRecord{}, err
	}
	return rec, nil
}

func (r *PGRepo) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]model.ClinicalRecord, error) {
	query := `
SELECT ` + prescriptionColumns + `
FROM prescriptions
WHERE patient_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`
	return r.list(ctx, query, patientID, limitArg(limit), offset)
}

func (r *PGRepo) ListByDoctor(ctx context.Context, doctorID string, limit, offset int) ([]model.ClinicalRecord, error) {
	query := `
SELECT ` + prescriptionColumns + `
FROM prescriptions
WHERE doctor_id = $1
ORDER BY created_at DESC, id DESC
LIMIT $2 OFFSET $3`
	return r.list(ctx, query, doctorID, limitArg(limit), offset)
}

func (r *PGRepo) ListAll(ctx context.Context, limit, offset int) ([]model.ClinicalRecord, error) {
	query := `
SELECT ` + prescriptionColumns + `
FROM prescriptions
ORDER BY created_at DESC, id DESC
LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limitArg(limit), offset)
}

// limitArg maps a non-positive limit to NULL, which Postgres reads as no limit.
func limitArg(limit int) any {
	if limit > 0 {
		return limit
	}
	return nil
}

func (r *PGRepo) list(ctx context.Context, query string, args ...any) ([]model.ClinicalRecord, error) {
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []model.ClinicalRecord{}
	for rows.Next() {
		rec, err := scanPrescription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *PGRepo) UpdatePrescription(ctx context.Context, rec model.ClinicalRecord) error {
	const query = `
UPDATE prescriptions
SET medicines = $2, notes = $3, instructions = $4, updated_at = $5
WHERE id = $1`
	raw, err := encodeMedicines(rec.Medicines)
	if err != nil {
		return err
	}
	return r.execOne(ctx, query,
		rec.ID,
		raw,
		nullableString(rec.Notes),
		nullableString(rec.Instructions),
		rec.UpdatedAt.Or(time.Now().UTC()),
	)
}

func (r *PGRepo) SetArchiveURL(ctx context.Context, id, url string) error {
	return r.execOne(ctx, `UPDATE prescriptions SET archive_url = $2 WHERE id = $1`, id, url)
}

// execOne runs a statement that must touch a row, returning ErrNotFound
// when it touches none.
func (r *PGRepo) execOne(ctx context.Context, query string, args ...any) error {
	res, err := r.DB.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *PGRepo) CreateArchive(ctx context.Context, a Archive) error {
	const query = `
INSERT INTO prescription_archives (id, prescription_id, format, url, size_bytes, created_by, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err := r.DB.ExecContext(ctx, query,
		a.ID,
		a.PrescriptionID,
		string(a.Format),
		a.URL,
		a.SizeBytes,
		nullableString(a.CreatedBy),
		a.CreatedAt,
	)
	return err
}

func (r *PGRepo) ListArchives(ctx context.Context, prescriptionID string) ([]Archive, error) {
	const query = `
SELECT id, prescription_id, format, url, size_bytes, created_by, created_at
FROM prescription_archives
WHERE prescription_id = $1
ORDER BY created_at DESC`
	rows, err := r.DB.QueryContext(ctx, query, prescriptionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []Archive{}
	for rows.Next() {
		var a Archive
		var format string
		var createdBy sql.NullString
		if err := rows.Scan(&a.ID, &a.PrescriptionID, &format, &a.URL, &a.SizeBytes, &createdBy, &a.CreatedAt); err != nil {
			return nil, err
		}
		a.Format = render.Format(format)
		a.CreatedBy = createdBy.String
		out = append(out, a)
	}
	return out, rows.Err()
}

func (r *PGRepo) CompleteVisit(ctx context.Context, v VisitStatus) error {
	const query = `
INSERT INTO visit_completions (kind, ref_id, status, prescription_id, completed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (kind, ref_id) DO UPDATE
SET status = EXCLUDED.status, prescription_id = EXCLUDED.prescription_id, completed_at = EXCLUDED.completed_at`
	_, err := r.DB.ExecContext(ctx, query, string(v.Kind), v.RefID, v.Status, v.PrescriptionID, v.CompletedAt)
	return err
}

func (r *PGRepo) GetVisit(ctx context.Context, kind VisitKind, refID string) (VisitStatus, error) {
	const query = `
SELECT kind, ref_id, status, prescription_id, completed_at
FROM visit_completions
WHERE kind = $1 AND ref_id = $2`
	var v VisitStatus
	var k string
	err := r.DB.QueryRowContext(ctx, query, string(kind), refID).Scan(&k, &v.RefID, &v.Status, &v.PrescriptionID, &v.CompletedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return VisitStatus{}, ErrNotFound
		}
		return VisitStatus{}, err
	}
	v.Kind = VisitKind(k)
	v.CompletedAt = v.CompletedAt.UTC()
	return v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPrescription(row rowScanner) (model.ClinicalRecord, error) {
	var rec model.ClinicalRecord
	var medicines []byte
	var notes, instructions, formID, appointmentID, archiveURL sql.NullString
	var createdAt time.Time
	var updatedAt sql.NullTime
	if err := row.Scan(
		&rec.ID,
		&rec.PatientID,
		&rec.PractitionerID,
		&medicines,
		&notes,
		&instructions,
		&formID,
		&appointmentID,
		&archiveURL,
		&createdAt,
		&updatedAt,
	); err != nil {
		return model.ClinicalRecord{}, err
	}
	if len(medicines) > 0 {
		if err := json.Unmarshal(medicines, &rec.Medicines); err != nil {
			return model.ClinicalRecord{}, fmt.Errorf("decode medicines: %w", err)
		}
	}
	rec.Notes = notes.String
	rec.Instructions = instructions.String
	rec.IntakeFormID = formID.String
	rec.AppointmentID = appointmentID.String
	rec.ArchiveURL = archiveURL.String
	rec.CreatedAt = model.At(createdAt.UTC())
	rec.UpdatedAt = instantOf(updatedAt)
	return rec, nil
}

func encodeMedicines(medicines []model.MedicineEntry) ([]byte, error) {
	if medicines == nil {
		medicines = []model.MedicineEntry{}
	}
	raw, err := json.Marshal(medicines)
	if err != nil {
		return nil, fmt.Errorf("encode medicines: %w", err)
	}
	return raw, nil
}

func instantOf(t sql.NullTime) model.Instant {
	if !t.Valid {
		return model.Instant{}
	}
	return model.At(t.Time.UTC())
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

var _ Repo = (*PGRepo)(nil)

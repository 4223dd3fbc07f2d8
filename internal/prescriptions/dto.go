package prescriptions

import (
	"time"

	"clinicrx/internal/feedback"
	"clinicrx/prescription/model"
)

type createPatientRequest struct {
	Name    string `json:"name"`
	Age     *int   `json:"age"`
	Gender  string `json:"gender"`
	Phone   string `json:"phone"`
	Address string `json:"address"`
}

func (r createPatientRequest) toModel() model.PatientProfile {
	return model.PatientProfile{
		Name:    r.Name,
		Age:     r.Age,
		Gender:  r.Gender,
		Phone:   r.Phone,
		Address: r.Address,
	}
}

type updatePatientRequest struct {
	Name    *string `json:"name"`
	Age     *int    `json:"age"`
	Gender  *string `json:"gender"`
	Phone   *string `json:"phone"`
	Address *string `json:"address"`
}

func (r updatePatientRequest) toPatch() PatientPatch {
	return PatientPatch{Name: r.Name, Age: r.Age, Gender: r.Gender, Phone: r.Phone, Address: r.Address}
}

type createPractitionerRequest struct {
	Name           string `json:"name"`
	Specialization string `json:"specialization"`
	Qualification  string `json:"qualification"`
}

type createPrescriptionRequest struct {
	PatientID     string                `json:"patientId"`
	DoctorID      string                `json:"doctorId"`
	Medicines     []model.MedicineEntry `json:"medicines"`
	Notes         string                `json:"notes"`
	Instructions  string                `json:"instructions"`
	DiseaseFormID string                `json:"diseaseFormId"`
	AppointmentID string                `json:"appointmentId"`
}

func (r createPrescriptionRequest) toModel() model.ClinicalRecord {
	return model.ClinicalRecord{
		PatientID:      r.PatientID,
		PractitionerID: r.DoctorID,
		Medicines:      r.Medicines,
		Notes:          r.Notes,
		Instructions:   r.Instructions,
		IntakeFormID:   r.DiseaseFormID,
		AppointmentID:  r.AppointmentID,
	}
}

type updatePrescriptionRequest struct {
	Medicines    *[]model.MedicineEntry `json:"medicines"`
	Notes        *string                `json:"notes"`
	Instructions *string                `json:"instructions"`
}

func (r updatePrescriptionRequest) toPatch() PrescriptionPatch {
	return PrescriptionPatch{Medicines: r.Medicines, Notes: r.Notes, Instructions: r.Instructions}
}

type archiveResponse struct {
	ID        string    `json:"id"`
	Format    string    `json:"format"`
	URL       string    `json:"url"`
	SizeBytes int64     `json:"sizeBytes"`
	CreatedBy string    `json:"createdBy,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

func toArchiveResponse(a Archive) archiveResponse {
	return archiveResponse{
		ID:        a.ID,
		Format:    string(a.Format),
		URL:       a.URL,
		SizeBytes: a.SizeBytes,
		CreatedBy: a.CreatedBy,
		CreatedAt: a.CreatedAt,
	}
}

type archiveResultResponse struct {
	URL     string                  `json:"url"`
	Archive archiveResponse         `json:"archive"`
	Notices []feedback.Notification `json:"notices"`
}

type saveResultResponse struct {
	Path    string                  `json:"path"`
	Saved   bool                    `json:"saved"`
	Notices []feedback.Notification `json:"notices"`
}

func nonNilNotices(n []feedback.Notification) []feedback.Notification {
	if n == nil {
		return []feedback.Notification{}
	}
	return n
}

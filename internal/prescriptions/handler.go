package prescriptions

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"clinicrx/internal/archive"
	"clinicrx/internal/shared/auth"
	"clinicrx/internal/shared/server/middleware"
	"clinicrx/internal/shared/server/respond"
	"clinicrx/prescription/model"
	"clinicrx/prescription/render"
)

// Handler wires HTTP handlers to the service.
type Handler struct {
	Svc   *Service
	Authz *auth.Authorizer
}

// NewHandler constructs a Handler.
func NewHandler(svc *Service, authz *auth.Authorizer) *Handler {
	return &Handler{Svc: svc, Authz: authz}
}

// RegisterRoutes attaches patient, practitioner and prescription routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	can := func(resource, action string) gin.HandlerFunc {
		return middleware.Authorize(h.Authz, resource, action)
	}

	rg.POST("/patients", can(auth.ResourcePatients, auth.ActionCreate), h.createPatient)
	rg.GET("/patients/:id", can(auth.ResourcePatients, auth.ActionRead), h.getPatient)
	rg.PUT("/patients/:id", can(auth.ResourcePatients, auth.ActionUpdate), h.updatePatient)
	rg.DELETE("/patients/:id", can(auth.ResourcePatients, auth.ActionDelete), h.deletePatient)
	rg.GET("/patients/:id/prescriptions", can(auth.ResourcePrescriptions, auth.ActionRead), h.listByPatient)

	rg.POST("/practitioners", can(auth.ResourcePractitioners, auth.ActionCreate), h.createPractitioner)
	rg.GET("/practitioners/:id", can(auth.ResourcePractitioners, auth.ActionRead), h.getPractitioner)

	rg.POST("/prescriptions", can(auth.ResourcePrescriptions, auth.ActionCreate), h.createPrescription)
	rg.GET("/prescriptions", can(auth.ResourcePrescriptions, auth.ActionRead), h.listPrescriptions)
	rg.GET("/prescriptions/:id", can(auth.ResourcePrescriptions, auth.ActionRead), h.getPrescription)
	rg.PUT("/prescriptions/:id", can(auth.ResourcePrescriptions, auth.ActionUpdate), h.updatePrescription)
	rg.GET("/prescriptions/:id/archives", can(auth.ResourcePrescriptions, auth.ActionRead), h.listArchives)
	rg.GET("/prescriptions/:id/document", can(auth.ResourcePrescriptions, auth.ActionRender), h.document)
	rg.POST("/prescriptions/:id/archive", can(auth.ResourcePrescriptions, auth.ActionArchive), h.archive)
	rg.POST("/prescriptions/:id/save", can(auth.ResourcePrescriptions, auth.ActionRender), h.save)

	rg.GET("/visits/:kind/:id", can(auth.ResourcePrescriptions, auth.ActionRead), h.getVisit)
}

func actorFrom(c *gin.Context) Actor {
	return Actor{ID: middleware.UserIDFromContext(c), Role: middleware.RoleFromContext(c)}
}

func (h *Handler) createPatient(c *gin.Context) {
	var req createPatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p, err := h.Svc.CreatePatient(c.Request.Context(), req.toModel())
	if err != nil {
		writeError(c, err, "failed to create patient")
		return
	}
	respond.JSON(c, http.StatusCreated, p)
}

func (h *Handler) getPatient(c *gin.Context) {
	p, err := h.Svc.GetPatient(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch patient")
		return
	}
	respond.OK(c, p)
}

func (h *Handler) updatePatient(c *gin.Context) {
	var req updatePatientRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p, err := h.Svc.UpdatePatient(c.Request.Context(), c.Param("id"), req.toPatch())
	if err != nil {
		writeError(c, err, "failed to update patient")
		return
	}
	respond.OK(c, p)
}

func (h *Handler) deletePatient(c *gin.Context) {
	if err := h.Svc.DeletePatient(c.Request.Context(), c.Param("id")); err != nil {
		writeError(c, err, "failed to delete patient")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *Handler) createPractitioner(c *gin.Context) {
	var req createPractitionerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	p, err := h.Svc.CreatePractitioner(c.Request.Context(), model.PractitionerProfile{
		Name:           req.Name,
		Specialization: req.Specialization,
		Qualification:  req.Qualification,
	})
	if err != nil {
		writeError(c, err, "failed to create practitioner")
		return
	}
	respond.JSON(c, http.StatusCreated, p)
}

func (h *Handler) getPractitioner(c *gin.Context) {
	p, err := h.Svc.GetPractitioner(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch practitioner")
		return
	}
	respond.OK(c, p)
}

func (h *Handler) createPrescription(c *gin.Context) {
	var req createPrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	rec, err := h.Svc.CreatePrescription(c.Request.Context(), actorFrom(c), req.toModel())
	if err != nil {
		writeError(c, err, "failed to create prescription")
		return
	}
	c.Set(middleware.PrescriptionIDKey, rec.ID)
	respond.JSON(c, http.StatusCreated, rec)
}

func (h *Handler) getPrescription(c *gin.Context) {
	rec, err := h.Svc.GetPrescription(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch prescription")
		return
	}
	respond.OK(c, rec)
}

func (h *Handler) listByPatient(c *gin.Context) {
	limit, offset := pageParams(c)
	recs, err := h.Svc.ListByPatient(c.Request.Context(), actorFrom(c), c.Param("id"), limit, offset)
	if err != nil {
		writeError(c, err, "failed to list prescriptions")
		return
	}
	respond.OK(c, recs)
}

func (h *Handler) updatePrescription(c *gin.Context) {
	var req updatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	c.Set(middleware.PrescriptionIDKey, c.Param("id"))
	rec, err := h.Svc.UpdatePrescription(c.Request.Context(), actorFrom(c), c.Param("id"), req.toPatch())
	if err != nil {
		writeError(c, err, "failed to update prescription")
		return
	}
	respond.OK(c, rec)
}

// listPrescriptions lists by doctorId when given. Without it doctors get
// their own, patients theirs, and staff the whole clinic.
func (h *Handler) listPrescriptions(c *gin.Context) {
	ctx := c.Request.Context()
	doctorID := strings.TrimSpace(c.Query("doctorId"))
	actor := actorFrom(c)
	limit, offset := pageParams(c)

	var recs []model.ClinicalRecord
	var err error
	switch {
	case doctorID != "":
		recs, err = h.Svc.ListByDoctor(ctx, actor, doctorID, limit, offset)
	case actor.Role == auth.RoleDoctor:
		recs, err = h.Svc.ListByDoctor(ctx, actor, actor.ID, limit, offset)
	case actor.Role == auth.RolePatient:
		recs, err = h.Svc.ListByPatient(ctx, actor, actor.ID, limit, offset)
	default:
		recs, err = h.Svc.ListAll(ctx, actor, limit, offset)
	}
	if err != nil {
		writeError(c, err, "failed to list prescriptions")
		return
	}
	respond.OK(c, recs)
}

func (h *Handler) listArchives(c *gin.Context) {
	archives, err := h.Svc.Archives(c.Request.Context(), actorFrom(c), c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to list archives")
		return
	}
	resp := make([]archiveResponse, 0, len(archives))
	for _, a := range archives {
		resp = append(resp, toArchiveResponse(a))
	}
	respond.OK(c, resp)
}

func (h *Handler) getVisit(c *gin.Context) {
	kind, err := ParseVisitKind(c.Param("kind"))
	if err != nil {
		writeError(c, err, "failed to fetch visit")
		return
	}
	v, err := h.Svc.Visit(c.Request.Context(), actorFrom(c), kind, c.Param("id"))
	if err != nil {
		writeError(c, err, "failed to fetch visit")
		return
	}
	respond.OK(c, v)
}

func (h *Handler) document(c *gin.Context) {
	id, format, ok := documentParams(c)
	if !ok {
		return
	}
	doc, err := h.Svc.Document(c.Request.Context(), actorFrom(c), id, format)
	if err != nil {
		writeError(c, err, "failed to render prescription")
		return
	}
	c.Header(middleware.HeaderPrescriptionID, id)
	c.Header(middleware.HeaderDocumentPages, strconv.Itoa(doc.Artifact.Pages))
	respond.Attachment(c, doc.Artifact.ContentType, doc.FileName, doc.Artifact.Data)
}

func (h *Handler) archive(c *gin.Context) {
	id, format, ok := documentParams(c)
	if !ok {
		return
	}
	res, err := h.Svc.Archive(c.Request.Context(), actorFrom(c), id, format)
	if err != nil {
		var uploadErr *archive.UploadError
		if errors.As(err, &uploadErr) {
			respond.Error(c, http.StatusBadGateway, "upload_failed", uploadErr.Error(), gin.H{"notices": nonNilNotices(res.Notices)})
			return
		}
		if res.URL != "" {
			respond.Error(c, http.StatusInternalServerError, "archive_not_recorded", "document uploaded but not recorded", gin.H{
				"url":     res.URL,
				"notices": nonNilNotices(res.Notices),
			})
			return
		}
		writeError(c, err, "failed to archive prescription")
		return
	}
	respond.JSON(c, http.StatusCreated, archiveResultResponse{
		URL:     res.URL,
		Archive: toArchiveResponse(res.Archive),
		Notices: nonNilNotices(res.Notices),
	})
}

func (h *Handler) save(c *gin.Context) {
	id, format, ok := documentParams(c)
	if !ok {
		return
	}
	res, err := h.Svc.SaveLocal(c.Request.Context(), actorFrom(c), id, format)
	if err != nil {
		writeError(c, err, "failed to save prescription")
		return
	}
	respond.OK(c, saveResultResponse{
		Path:    res.Path,
		Saved:   res.Path != "",
		Notices: nonNilNotices(res.Notices),
	})
}

func documentParams(c *gin.Context) (string, render.Format, bool) {
	id := c.Param("id")
	c.Set(middleware.PrescriptionIDKey, id)
	format, err := render.ParseFormat(c.DefaultQuery("format", string(render.FormatPDF)))
	if err != nil {
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
		return "", "", false
	}
	c.Set(middleware.FormatKey, string(format))
	return id, format, true
}

func pageParams(c *gin.Context) (int, int) {
	limit, offset := 0, 0
	if v := c.Query("limit"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			limit = parsed
		}
	}
	if v := c.Query("offset"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			offset = parsed
		}
	}
	return limit, offset
}

func writeError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, ErrNotFound):
		respond.Error(c, http.StatusNotFound, "not_found", "not found", nil)
	case errors.Is(err, ErrInvalidInput):
		respond.Error(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case errors.Is(err, ErrForbidden):
		respond.Error(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case errors.Is(err, render.ErrRender):
		respond.Error(c, http.StatusInternalServerError, "render_failed", err.Error(), nil)
	case errors.Is(err, archive.ErrUpload):
		respond.Error(c, http.StatusBadGateway, "upload_failed", err.Error(), nil)
	default:
		respond.Error(c, http.StatusInternalServerError, "internal_error", fallback, nil)
	}
}

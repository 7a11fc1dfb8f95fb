package patient

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/service/patient"
	"github.com/jwalitptl/consult-api/pkg/auth"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/validator"
)

type Handler struct {
	service   *patient.Service
	validator *validator.Validator
}

func NewHandler(service *patient.Service, v *validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	patients := r.Group("/patients")
	{
		patients.POST("/profile", h.CreateProfile)
		patients.GET("/:id/profile", h.GetProfile)
		patients.GET("/:id/records", h.ListMedicalRecords)
		patients.GET("/:id/records/:recordId", h.GetMedicalRecord)
		patients.GET("/:id/lab-results", h.ListLabResults)
	}
}

// canAccess allows clinical staff, and patients reading their own data.
func canAccess(c *gin.Context, patientID string) bool {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		return false
	}
	switch model.Role(claims.Role) {
	case model.RoleDoctor, model.RoleNurse, model.RoleAdmin, model.RoleStaff:
		return true
	}
	return claims.UserID == patientID
}

func (h *Handler) CreateProfile(c *gin.Context) {
	var req model.CreatePatientProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if claims := auth.ClaimsFrom(c); claims != nil && claims.Role == string(model.RolePatient) {
		req.UserID = claims.UserID
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}

	profile, err := h.service.CreateProfile(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Created(c, profile)
}

func (h *Handler) GetProfile(c *gin.Context) {
	id := c.Param("id")
	if !canAccess(c, id) {
		handler.Error(c, apperrors.Forbidden("not allowed to read this patient's data"))
		return
	}
	profile, err := h.service.GetProfile(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, profile)
}

func (h *Handler) ListMedicalRecords(c *gin.Context) {
	id := c.Param("id")
	if !canAccess(c, id) {
		handler.Error(c, apperrors.Forbidden("not allowed to read this patient's data"))
		return
	}
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	p.Normalize()

	records, err := h.service.ListMedicalRecords(c.Request.Context(), id, p)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Paginated(c, records, p.Page, p.Limit, int64(len(records)))
}

func (h *Handler) GetMedicalRecord(c *gin.Context) {
	id := c.Param("id")
	if !canAccess(c, id) {
		handler.Error(c, apperrors.Forbidden("not allowed to read this patient's data"))
		return
	}
	record, err := h.service.GetMedicalRecord(c.Request.Context(), id, c.Param("recordId"))
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, record)
}

func (h *Handler) ListLabResults(c *gin.Context) {
	id := c.Param("id")
	if !canAccess(c, id) {
		handler.Error(c, apperrors.Forbidden("not allowed to read this patient's data"))
		return
	}
	var p model.Pagination
	if err := c.ShouldBindQuery(&p); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	p.Normalize()

	labs, err := h.service.ListLabResults(c.Request.Context(), id, p)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Paginated(c, labs, p.Page, p.Limit, int64(len(labs)))
}

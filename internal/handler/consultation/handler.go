package consultation

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/service/consultation"
	"github.com/jwalitptl/consult-api/pkg/auth"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/validator"
)

type Handler struct {
	service   *consultation.Service
	validator *validator.Validator
}

func NewHandler(service *consultation.Service, v *validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	consultations := r.Group("/consultations")
	{
		consultations.POST("/initiate", h.Initiate)
		consultations.POST("/:id/join", h.Join)
		consultations.PATCH("/:id/status", h.UpdateStatus)
		consultations.POST("/:id/notes", h.AttachNotes)
		consultations.POST("/:id/prescription", h.CreatePrescription)
		consultations.POST("/:id/lab-result", h.AttachLabResult)
		consultations.GET("/:id/summary", h.Summary)
	}
}

func (h *Handler) Initiate(c *gin.Context) {
	var req model.InitiateConsultationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if claims := auth.ClaimsFrom(c); claims != nil && claims.Role == string(model.RolePatient) {
		req.PatientID = claims.UserID
	}

	session, err := h.service.Initiate(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Created(c, session)
}

func (h *Handler) Join(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		handler.Error(c, apperrors.Unauthorized(nil))
		return
	}
	session, err := h.service.Join(c.Request.Context(), c.Param("id"), claims.UserID)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, session)
}

func (h *Handler) UpdateStatus(c *gin.Context) {
	var req model.ConsultationStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	session, err := h.service.UpdateStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, session)
}

func (h *Handler) AttachNotes(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		handler.Error(c, apperrors.Unauthorized(nil))
		return
	}
	var req model.ConsultationNotesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	session, err := h.service.AttachNotes(c.Request.Context(), c.Param("id"), claims.UserID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, session)
}

func (h *Handler) CreatePrescription(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		handler.Error(c, apperrors.Unauthorized(nil))
		return
	}
	var req model.CreatePrescriptionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	prescription, err := h.service.CreatePrescription(c.Request.Context(), c.Param("id"), claims.UserID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Created(c, prescription)
}

func (h *Handler) AttachLabResult(c *gin.Context) {
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		handler.Error(c, apperrors.Unauthorized(nil))
		return
	}
	var req model.AttachLabResultRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	lab, err := h.service.AttachLabResult(c.Request.Context(), c.Param("id"), claims.UserID, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Created(c, lab)
}

func (h *Handler) Summary(c *gin.Context) {
	summary, err := h.service.Summary(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, summary)
}

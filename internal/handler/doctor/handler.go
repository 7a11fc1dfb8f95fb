package doctor

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/service/doctor"
	"github.com/jwalitptl/consult-api/pkg/auth"
	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
	"github.com/jwalitptl/consult-api/pkg/validator"
)

type Handler struct {
	service   *doctor.Service
	validator *validator.Validator
}

func NewHandler(service *doctor.Service, v *validator.Validator) *Handler {
	return &Handler{service: service, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	doctors := r.Group("/doctors")
	{
		doctors.POST("/profile", h.CreateProfile)
		doctors.GET("/:id/profile", h.GetProfile)
		doctors.PUT("/:id/schedule", h.UpdateSchedule)
	}
}

func (h *Handler) CreateProfile(c *gin.Context) {
	var req model.CreateDoctorProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if claims := auth.ClaimsFrom(c); claims != nil && claims.Role == string(model.RoleDoctor) {
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
	profile, err := h.service.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, profile)
}

// UpdateSchedule is restricted to the profile's own doctor and admins.
func (h *Handler) UpdateSchedule(c *gin.Context) {
	id := c.Param("id")
	claims := auth.ClaimsFrom(c)
	if claims == nil {
		handler.Error(c, apperrors.Unauthorized(nil))
		return
	}
	if claims.Role != string(model.RoleAdmin) && claims.UserID != id {
		handler.Error(c, apperrors.Forbidden("not allowed to modify this schedule"))
		return
	}

	var req model.UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	profile, err := h.service.UpdateSchedule(c.Request.Context(), id, &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, profile)
}

package appointment

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/service/appointment"
	"github.com/jwalitptl/consult-api/internal/service/availability"
	"github.com/jwalitptl/consult-api/pkg/auth"
	"github.com/jwalitptl/consult-api/pkg/validator"
)

type Handler struct {
	service      *appointment.Service
	availability availability.Service
	validator    *validator.Validator
}

func NewHandler(service *appointment.Service, avail availability.Service, v *validator.Validator) *Handler {
	return &Handler{service: service, availability: avail, validator: v}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	appointments := r.Group("/appointments")
	{
		appointments.GET("/availability", h.GetAvailability)
		appointments.POST("", h.Create)
		appointments.GET("", h.List)
		appointments.GET("/:id", h.Get)
		appointments.PATCH("/:id", h.Update)
		appointments.DELETE("/:id", h.Delete)
		appointments.PATCH("/:id/status", h.ChangeStatus)
		appointments.POST("/:id/reschedule", h.Reschedule)
	}
}

func (h *Handler) Create(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if err := h.validator.Validate(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if claims := auth.ClaimsFrom(c); claims != nil && claims.Role == string(model.RolePatient) {
		// Patients book for themselves.
		req.PatientID = claims.UserID
	}

	apt, err := h.service.Create(c.Request.Context(), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Created(c, apt)
}

func (h *Handler) Get(c *gin.Context) {
	apt, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, apt)
}

func (h *Handler) List(c *gin.Context) {
	var filters model.AppointmentFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	filters.Pagination.Normalize()

	appointments, total, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Paginated(c, appointments, filters.Page, filters.Limit, total)
}

func (h *Handler) Update(c *gin.Context) {
	var req model.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	apt, err := h.service.Update(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, apt)
}

func (h *Handler) ChangeStatus(c *gin.Context) {
	var req model.StatusChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	if req.By == "" {
		if claims := auth.ClaimsFrom(c); claims != nil {
			switch model.Role(claims.Role) {
			case model.RolePatient:
				req.By = model.CancelledByPatient
			case model.RoleDoctor:
				req.By = model.CancelledByDoctor
			case model.RoleAdmin:
				req.By = model.CancelledByAdmin
			}
		}
	}

	apt, err := h.service.ChangeStatus(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, apt)
}

func (h *Handler) Reschedule(c *gin.Context) {
	var req model.CreateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	apt, err := h.service.Reschedule(c.Request.Context(), c.Param("id"), &req)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Created(c, apt)
}

func (h *Handler) Delete(c *gin.Context) {
	deletedBy := ""
	if claims := auth.ClaimsFrom(c); claims != nil {
		deletedBy = claims.UserID
	}
	if err := h.service.SoftDelete(c.Request.Context(), c.Param("id"), deletedBy); err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, nil)
}

func (h *Handler) GetAvailability(c *gin.Context) {
	doctorID := c.Query("doctorId")
	if doctorID == "" {
		handler.BadRequest(c, "doctorId is required")
		return
	}
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		handler.BadRequest(c, "invalid date, expected YYYY-MM-DD")
		return
	}

	day, err := h.availability.ListSlots(c.Request.Context(), doctorID, date)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.OK(c, day)
}

package audit

import (
	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/internal/model"
	"github.com/jwalitptl/consult-api/internal/service/audit"
)

type Handler struct {
	service audit.Service
}

func NewHandler(service audit.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	logs := r.Group("/audit")
	{
		logs.GET("/logs", h.List)
	}
}

func (h *Handler) List(c *gin.Context) {
	var filters model.AuditFilters
	if err := c.ShouldBindQuery(&filters); err != nil {
		handler.BadRequest(c, err.Error())
		return
	}
	filters.Pagination.Normalize()

	entries, err := h.service.List(c.Request.Context(), &filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	handler.Paginated(c, entries, filters.Page, filters.Limit, int64(len(entries)))
}

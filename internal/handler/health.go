package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// Pinger checks one backing dependency.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	deps map[string]Pinger
}

func NewHealthHandler(deps map[string]Pinger) *HealthHandler {
	return &HealthHandler{deps: deps}
}

// Check reports liveness plus the state of each backing dependency.
// Degraded dependencies flip the status code to 503 so orchestrators
// can rotate the instance.
func (h *HealthHandler) Check(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	checks := make(gin.H, len(h.deps))
	for name, dep := range h.deps {
		if err := dep.Ping(ctx); err != nil {
			checks[name] = "unhealthy: " + err.Error()
			status = http.StatusServiceUnavailable
			continue
		}
		checks[name] = "healthy"
	}

	c.JSON(status, gin.H{
		"status":    map[bool]string{true: "healthy", false: "degraded"}[status == http.StatusOK],
		"checks":    checks,
		"timestamp": time.Now().UTC(),
	})
}

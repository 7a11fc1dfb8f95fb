package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Logger logs one line per request with latency and outcome.
func Logger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		if raw := c.Request.URL.RawQuery; raw != "" {
			path = path + "?" + raw
		}

		c.Next()

		fields := map[string]interface{}{
			"request_id": c.GetString(handler.RequestIDKey),
			"client_ip":  c.ClientIP(),
			"method":     c.Request.Method,
			"path":       path,
			"status":     c.Writer.Status(),
			"latency_ms": time.Since(start).Milliseconds(),
		}

		status := c.Writer.Status()
		switch {
		case status >= 500:
			var err error
			if len(c.Errors) > 0 {
				err = c.Errors.Last().Err
			}
			log.Error(err, "request failed", fields)
		case status >= 400:
			log.Warn("request rejected", fields)
		default:
			log.Info("request processed", fields)
		}
	}
}

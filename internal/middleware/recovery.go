package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
	"github.com/jwalitptl/consult-api/pkg/logger"
)

// Recovery converts panics into 500 responses with a stack trace in
// the log.
func Recovery(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error(fmt.Errorf("%v", r), "request panic recovered", map[string]interface{}{
					"stack":      string(debug.Stack()),
					"method":     c.Request.Method,
					"path":       c.Request.URL.Path,
					"request_id": c.GetString(handler.RequestIDKey),
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, &handler.Response{
					Success:    false,
					StatusCode: http.StatusInternalServerError,
					Message:    "internal server error",
					Timestamp:  time.Now().UTC(),
					Metadata:   handler.Metadata{RequestID: c.GetString(handler.RequestIDKey)},
				})
			}
		}()
		c.Next()
	}
}

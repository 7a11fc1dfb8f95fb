package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/jwalitptl/consult-api/internal/handler"
)

const DefaultMaxBodySize = 1 << 20 // 1MB

// SizeLimit rejects oversized request bodies before they reach a
// handler.
func SizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, &handler.Response{
				Success:    false,
				StatusCode: http.StatusRequestEntityTooLarge,
				Message:    "request body too large",
				Timestamp:  time.Now().UTC(),
			})
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jwalitptl/consult-api/internal/handler"
)

const HeaderXRequestID = "X-Request-ID"

// RequestID tags every request with an id, honoring one supplied by
// the caller. The id is echoed in the response header and envelope
// metadata.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(HeaderXRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(handler.RequestIDKey, rid)
		c.Header(HeaderXRequestID, rid)
		c.Next()
	}
}

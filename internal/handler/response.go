package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "github.com/jwalitptl/consult-api/pkg/errors"
)

// RequestIDKey is set by the request-id middleware and echoed in the
// response metadata.
const RequestIDKey = "requestId"

type Metadata struct {
	RequestID string `json:"requestId,omitempty"`
	Page      int    `json:"page,omitempty"`
	Limit     int    `json:"limit,omitempty"`
	Total     int64  `json:"total,omitempty"`
}

// Response is the envelope every endpoint returns.
type Response struct {
	Success    bool        `json:"success"`
	StatusCode int         `json:"statusCode"`
	Message    string      `json:"message,omitempty"`
	Data       interface{} `json:"data,omitempty"`
	Timestamp  time.Time   `json:"timestamp"`
	Metadata   Metadata    `json:"metadata"`
}

func metadataFrom(c *gin.Context) Metadata {
	return Metadata{RequestID: c.GetString(RequestIDKey)}
}

func OK(c *gin.Context, data interface{}) {
	respond(c, http.StatusOK, "", data, metadataFrom(c))
}

func Created(c *gin.Context, data interface{}) {
	respond(c, http.StatusCreated, "", data, metadataFrom(c))
}

// Paginated returns a list response with paging metadata.
func Paginated(c *gin.Context, data interface{}, page, limit int, total int64) {
	meta := metadataFrom(c)
	meta.Page = page
	meta.Limit = limit
	meta.Total = total
	respond(c, http.StatusOK, "", data, meta)
}

// Error maps the application error taxonomy onto HTTP status codes.
func Error(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	message := "internal server error"

	switch apperrors.CodeOf(err) {
	case apperrors.ErrValidation:
		status = http.StatusBadRequest
		message = err.Error()
	case apperrors.ErrUnauthorized:
		status = http.StatusUnauthorized
		message = "unauthorized"
	case apperrors.ErrForbidden:
		status = http.StatusForbidden
		message = err.Error()
	case apperrors.ErrNotFound:
		status = http.StatusNotFound
		message = err.Error()
	case apperrors.ErrConflict, apperrors.ErrIllegalTransition:
		status = http.StatusConflict
		message = err.Error()
	case apperrors.ErrLocked:
		status = http.StatusLocked
		message = err.Error()
	case apperrors.ErrUpstream:
		status = http.StatusBadGateway
		message = "upstream collaborator unavailable"
	}

	c.Error(err)
	respondAbort(c, status, message)
}

// BadRequest rejects malformed input before it reaches a service.
func BadRequest(c *gin.Context, message string) {
	respondAbort(c, http.StatusBadRequest, message)
}

func respond(c *gin.Context, status int, message string, data interface{}, meta Metadata) {
	c.JSON(status, &Response{
		Success:    status < http.StatusBadRequest,
		StatusCode: status,
		Message:    message,
		Data:       data,
		Timestamp:  time.Now().UTC(),
		Metadata:   meta,
	})
}

func respondAbort(c *gin.Context, status int, message string) {
	c.AbortWithStatusJSON(status, &Response{
		Success:    false,
		StatusCode: status,
		Message:    message,
		Timestamp:  time.Now().UTC(),
		Metadata:   metadataFrom(c),
	})
}

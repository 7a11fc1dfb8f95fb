package errors

import (
	"errors"
	"fmt"
)

// ErrorCode classifies an application error for transport mapping.
type ErrorCode int

const (
	ErrValidation ErrorCode = iota + 1000
	ErrUnauthorized
	ErrForbidden
	ErrNotFound
	ErrConflict
	ErrIllegalTransition
	ErrLocked
	ErrUpstream
	ErrInternal
)

// AppError represents an application error
type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Err     error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// CodeOf returns the error code of err, or ErrInternal when err is not an AppError.
func CodeOf(err error) ErrorCode {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrInternal
}

// Is reports whether err carries the given code.
func Is(err error, code ErrorCode) bool {
	return CodeOf(err) == code
}

func Validation(message string, err error) *AppError {
	return &AppError{Code: ErrValidation, Message: message, Err: err}
}

func Unauthorized(err error) *AppError {
	return &AppError{Code: ErrUnauthorized, Message: "unauthorized", Err: err}
}

func Forbidden(message string) *AppError {
	return &AppError{Code: ErrForbidden, Message: message}
}

func NotFound(resource string, err error) *AppError {
	return &AppError{Code: ErrNotFound, Message: fmt.Sprintf("%s not found", resource), Err: err}
}

func Conflict(message string, err error) *AppError {
	return &AppError{Code: ErrConflict, Message: message, Err: err}
}

// IllegalTransition rejects a state-machine transition, naming the offending pair.
func IllegalTransition(entity, from, to string) *AppError {
	return &AppError{
		Code:    ErrIllegalTransition,
		Message: fmt.Sprintf("illegal %s transition from %q to %q", entity, from, to),
	}
}

func Locked(message string) *AppError {
	return &AppError{Code: ErrLocked, Message: message}
}

func Upstream(message string, err error) *AppError {
	return &AppError{Code: ErrUpstream, Message: message, Err: err}
}

func Internal(err error) *AppError {
	return &AppError{Code: ErrInternal, Message: "internal server error", Err: err}
}

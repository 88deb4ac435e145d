// Package apierrors implements the error taxonomy: every error that can
// cross a component boundary carries a stable machine-readable code, an
// HTTP status, and a human message. It replaces exception-based control
// flow with an explicit result type.
package apierrors

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a stable, machine-readable error classification.
type Code string

const (
	CodeValidation       Code = "VALIDATION_ERROR"
	CodeNotFound         Code = "NOT_FOUND"
	CodeConflict         Code = "CONFLICT"
	CodeUnauthorized     Code = "UNAUTHORIZED"
	CodeForbidden        Code = "FORBIDDEN"
	CodeTokenExpired     Code = "TOKEN_EXPIRED"
	CodeTokenInvalid     Code = "TOKEN_INVALID"
	CodeRateLimited      Code = "RATE_LIMIT_EXCEEDED"
	CodeTransient        Code = "TRANSIENT"
	CodePermanent        Code = "PERMANENT"
	CodeInternal         Code = "INTERNAL_ERROR"
)

// httpStatus maps each code to its external HTTP status. TRANSIENT maps
// to 503 externally even though internally it is a retry signal, not a
// user-facing failure category.
var httpStatus = map[Code]int{
	CodeValidation:   http.StatusBadRequest,
	CodeNotFound:     http.StatusNotFound,
	CodeConflict:     http.StatusConflict,
	CodeUnauthorized: http.StatusUnauthorized,
	CodeForbidden:    http.StatusForbidden,
	CodeTokenExpired: http.StatusUnauthorized,
	CodeTokenInvalid: http.StatusUnauthorized,
	CodeRateLimited:  http.StatusTooManyRequests,
	CodeTransient:    http.StatusServiceUnavailable,
	CodePermanent:    http.StatusUnprocessableEntity,
	CodeInternal:     http.StatusInternalServerError,
}

// Error is the concrete error type carried across component boundaries.
type Error struct {
	Code       Code
	Message    string
	Details    any
	RetryAfter int // seconds; only meaningful for CodeRateLimited
	cause      error
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.cause }

// HTTPStatus returns the external HTTP status code for this error.
func (e *Error) HTTPStatus() int {
	if s, ok := httpStatus[e.Code]; ok {
		return s
	}
	return http.StatusInternalServerError
}

// IsRetryable reports whether the queue should re-enqueue with backoff
// (TRANSIENT) rather than marking the job permanently failed (PERMANENT).
func (e *Error) IsRetryable() bool {
	return e.Code == CodeTransient
}

func newErr(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, cause: cause}
}

func Validation(message string) *Error          { return newErr(CodeValidation, message, nil) }
func NotFound(message string) *Error            { return newErr(CodeNotFound, message, nil) }
func Conflict(message string) *Error            { return newErr(CodeConflict, message, nil) }
func Unauthorized(message string) *Error        { return newErr(CodeUnauthorized, message, nil) }
func Forbidden(message string) *Error           { return newErr(CodeForbidden, message, nil) }
func TokenExpired(message string) *Error        { return newErr(CodeTokenExpired, message, nil) }
func TokenInvalid(message string) *Error        { return newErr(CodeTokenInvalid, message, nil) }
func Internal(message string, cause error) *Error {
	return newErr(CodeInternal, message, cause)
}

// Transient wraps a retryable upstream/IO failure.
func Transient(message string, cause error) *Error {
	return newErr(CodeTransient, message, cause)
}

// Permanent wraps a non-retryable domain failure.
func Permanent(message string, cause error) *Error {
	return newErr(CodePermanent, message, cause)
}

// RateLimited builds a CodeRateLimited error carrying a Retry-After hint.
func RateLimited(message string, retryAfterSeconds int) *Error {
	e := newErr(CodeRateLimited, message, nil)
	e.RetryAfter = retryAfterSeconds
	return e
}

// As is a thin wrapper over errors.As for the common call pattern.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable reports whether err (of any shape) should be retried by the
// queue. Errors that are not *Error are treated as non-retryable.
func IsRetryable(err error) bool {
	e, ok := As(err)
	return ok && e.IsRetryable()
}

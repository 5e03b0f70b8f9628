// Package apperr defines the single error type the external interface layer
// maps to HTTP status codes, grounded on internal/agent's ToolError kind
// taxonomy rather than one bespoke error type per package.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an AppError for transport mapping and logging.
type Kind string

const (
	KindUnauthorized  Kind = "unauthorized"
	KindNotFound      Kind = "not_found"
	KindBadRequest    Kind = "bad_request"
	KindConflict      Kind = "conflict"
	KindTimeout       Kind = "timeout"
	KindSandbox       Kind = "sandbox_error"
	KindToolExecution Kind = "tool_execution_error"
	KindLLMProvider   Kind = "llm_provider_error"
	KindInternal      Kind = "internal"
)

// AppError is the one error type the HTTP layer inspects to decide a status
// code and a safe-to-return message.
type AppError struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// New builds an AppError of the given kind.
func New(kind Kind, message string) *AppError {
	return &AppError{Kind: kind, Message: message}
}

// Wrap builds an AppError of the given kind around an underlying error.
func Wrap(kind Kind, message string, err error) *AppError {
	return &AppError{Kind: kind, Message: message, Err: err}
}

func Unauthorized(message string) *AppError { return New(KindUnauthorized, message) }
func NotFound(message string) *AppError     { return New(KindNotFound, message) }
func BadRequest(message string) *AppError   { return New(KindBadRequest, message) }
func Conflict(message string) *AppError     { return New(KindConflict, message) }
func Timeout(message string) *AppError      { return New(KindTimeout, message) }
func Internal(err error) *AppError          { return Wrap(KindInternal, "internal error", err) }

// As extracts an *AppError from err, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// HTTPStatus maps a Kind to the status code the transport layer responds
// with. tool_execution_error is intentionally absent: tool failures are
// caught and returned as ToolResult.IsError, never surfaced as a transport
// error.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindBadRequest, KindConflict:
		return http.StatusBadRequest
	case KindTimeout:
		return http.StatusRequestTimeout
	case KindLLMProvider:
		return http.StatusTooManyRequests
	case KindSandbox, KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// StatusFor resolves the HTTP status for any error: an *AppError maps via
// its Kind, anything else defaults to 500.
func StatusFor(err error) int {
	if appErr, ok := As(err); ok {
		return HTTPStatus(appErr.Kind)
	}
	return http.StatusInternalServerError
}

// SafeMessage returns the message the client may see: an *AppError's own
// message, or a generic fallback for unclassified errors to avoid leaking
// internals.
func SafeMessage(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Message
	}
	return "internal error"
}

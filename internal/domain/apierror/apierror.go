// Package apierror defines the error taxonomy surfaced by the gateway API.
package apierror

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error into the wire-level error.type value.
type Kind string

const (
	KindValidation     Kind = "validation_error"
	KindAuthentication Kind = "authentication_error"
	KindNotFound       Kind = "not_found"
	KindUpstream       Kind = "upstream_error"
	KindTimeout        Kind = "timeout"
	KindContentFilter  Kind = "content_filter"
	KindStream         Kind = "stream_error"
	KindInternal       Kind = "internal_error"
)

// Error is the gateway-wide error carrying the taxonomy kind and an
// optional machine readable code.
type Error struct {
	Kind    Kind   `json:"type"`
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
	Cause   error  `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the error kind to an HTTP status code.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindAuthentication:
		return http.StatusUnauthorized
	case KindNotFound:
		return http.StatusNotFound
	case KindUpstream:
		return http.StatusBadGateway
	case KindTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// WithCause attaches an underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithCode attaches a machine readable code.
func (e *Error) WithCode(code string) *Error {
	e.Code = code
	return e
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Validation creates a validation_error.
func Validation(format string, args ...any) *Error {
	return New(KindValidation, format, args...)
}

// Authentication creates an authentication_error.
func Authentication(format string, args ...any) *Error {
	return New(KindAuthentication, format, args...)
}

// NotFound creates a not_found error.
func NotFound(format string, args ...any) *Error {
	return New(KindNotFound, format, args...)
}

// Upstream creates an upstream_error.
func Upstream(format string, args ...any) *Error {
	return New(KindUpstream, format, args...)
}

// Timeout creates a timeout error.
func Timeout(format string, args ...any) *Error {
	return New(KindTimeout, format, args...)
}

// Internal creates an internal_error.
func Internal(format string, args ...any) *Error {
	return New(KindInternal, format, args...)
}

// FromError returns err as *Error, wrapping unknown errors as internal_error.
func FromError(err error) *Error {
	if err == nil {
		return nil
	}
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr
	}
	return Internal("%s", err.Error()).WithCause(err)
}

// KindOf returns the kind of err, or KindInternal for unclassified errors.
func KindOf(err error) Kind {
	return FromError(err).Kind
}

// Package apperr defines the typed error-kind taxonomy used across the
// service: every layer returns (or wraps into) an *Error, and the HTTP
// surface maps Kind to a status code in one place (see HTTPStatus).
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind closes the set of error categories the service distinguishes.
type Kind string

const (
	KindNotFound            Kind = "not_found"
	KindValidation           Kind = "validation_error"
	KindConflict             Kind = "conflict"
	KindUnauthorized         Kind = "unauthorized"
	KindForbidden            Kind = "forbidden"
	KindTimeTravelViolation  Kind = "time_travel_violation"
	KindDataLeakage          Kind = "data_leakage"
	KindInsufficientData     Kind = "insufficient_data"
	KindArtifactLoadFailure  Kind = "artifact_load_failure"
	KindInternal             Kind = "internal_error"
)

// Error is the taxonomy's carrier type. Code is a stable machine-
// readable sub-classification (e.g. "missing_field") layered on top of
// Kind; Message is safe to surface to API callers.
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func new_(kind Kind, code, message string, wrapped error) *Error {
	return &Error{Kind: kind, Code: code, Message: message, Err: wrapped}
}

func NotFound(code, message string) *Error { return new_(KindNotFound, code, message, nil) }

func Validation(code, message string) *Error { return new_(KindValidation, code, message, nil) }

func Conflict(code, message string) *Error { return new_(KindConflict, code, message, nil) }

func Unauthorized(code, message string) *Error { return new_(KindUnauthorized, code, message, nil) }

func Forbidden(code, message string) *Error { return new_(KindForbidden, code, message, nil) }

func TimeTravelViolation(code, message string) *Error {
	return new_(KindTimeTravelViolation, code, message, nil)
}

func DataLeakage(code, message string) *Error { return new_(KindDataLeakage, code, message, nil) }

func InsufficientData(code, message string) *Error {
	return new_(KindInsufficientData, code, message, nil)
}

func ArtifactLoadFailure(code, message string, wrapped error) *Error {
	return new_(KindArtifactLoadFailure, code, message, wrapped)
}

func Internal(code, message string, wrapped error) *Error {
	return new_(KindInternal, code, message, wrapped)
}

// Wrap attaches a Kind/code/message to an underlying error, preserving
// it for Unwrap and %w-style inspection.
func Wrap(kind Kind, code, message string, err error) *Error {
	return new_(kind, code, message, err)
}

// As extracts an *Error from err, following the chain via errors.As.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// KindOf returns the Kind of err if it (or something it wraps) is an
// *Error, and KindInternal otherwise — callers that only need the HTTP
// status never have to type-assert.
func KindOf(err error) Kind {
	if e, ok := As(err); ok {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps a Kind to the status code the HTTP surface returns.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation, KindTimeTravelViolation, KindDataLeakage, KindInsufficientData:
		return http.StatusBadRequest
	case KindConflict:
		return http.StatusConflict
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindForbidden:
		return http.StatusForbidden
	case KindArtifactLoadFailure:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Package apperr defines the error taxonomy shared by the mutation engine,
// the lifecycle controller and the HTTP layer.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind categorizes an engine failure for propagation and HTTP mapping.
type Kind string

const (
	// KindNotFound means a session, exercise or set id did not resolve.
	KindNotFound Kind = "not_found"
	// KindForbidden means the session exists but belongs to another user.
	KindForbidden Kind = "forbidden"
	// KindInvalidState means the operation is illegal in the session's
	// current lifecycle state (mutating a finished session, double finish).
	KindInvalidState Kind = "invalid_state"
	// KindValidation means the request itself is malformed: bad enum,
	// negative numeric, duplicate order, unaddressable id.
	KindValidation Kind = "validation"
	// KindStore means the underlying transaction could not commit. This is
	// the only kind a caller may safely retry.
	KindStore Kind = "store"
)

// Error is a categorized engine error. The engine surfaces exactly one per
// failed call, never a partial result.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the cause for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Cause
}

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// Retryable reports whether the caller may retry the identical request.
func (e *Error) Retryable() bool {
	return e.Kind == KindStore
}

// New creates an error of the given kind.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an error of the given kind around a cause.
func Wrap(kind Kind, cause error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// KindOf extracts the kind from an error chain. Unrecognized errors are
// reported as KindStore since they originate below the engine.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindStore
}

// Is reports whether the error chain contains an Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

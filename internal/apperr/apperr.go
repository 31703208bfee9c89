// Package apperr defines the error taxonomy shared by the back-office services
// and its mapping onto transport signals.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies an error for propagation and presentation.
type Kind string

const (
	KindAuthorization     Kind = "authorization"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_state_transition"
	KindImpersonation     Kind = "impersonation"
	KindSystem            Kind = "system"
)

// Error is a classified error. Code is a stable, user-facing marker
// (for example "cannot_impersonate_admin").
type Error struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches sentinels by kind and code so that copies carrying a cause
// still compare equal to the bare sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Code == t.Code
}

// New returns a classified error without a cause.
func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

// Wrap attaches a cause to a sentinel, keeping its classification.
func Wrap(sentinel *Error, err error) *Error {
	return &Error{Kind: sentinel.Kind, Code: sentinel.Code, Message: sentinel.Message, Err: err}
}

// Validation builds a ValidationError for a missing or malformed input.
func Validation(code, message string) *Error {
	return New(KindValidation, code, message)
}

// NotFound builds a NotFoundError for the named entity.
func NotFound(entity string) *Error {
	return New(KindNotFound, entity+"_not_found", entity+" not found")
}

// System wraps an unexpected failure, typically from persistence.
func System(op string, err error) *Error {
	return &Error{Kind: KindSystem, Code: "system_error", Message: op, Err: err}
}

var (
	// ErrUnauthorized is returned whenever no valid admin session is present.
	ErrUnauthorized = New(KindAuthorization, "unauthorized", "admin session required")

	// ErrInvalidTransition is returned for review actions on a non-pending record.
	ErrInvalidTransition = New(KindInvalidTransition, "invalid_state_transition", "record is no longer pending")
)

// KindOf reports the kind of err, KindSystem for unclassified errors.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindSystem
}

// CodeOf reports the user-facing code of err, "system_error" for unclassified errors.
func CodeOf(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Code != "" {
		return e.Code
	}
	return "system_error"
}

// HTTPStatus maps err onto a response status code.
func HTTPStatus(err error) int {
	switch KindOf(err) {
	case KindAuthorization:
		return http.StatusForbidden
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidTransition:
		return http.StatusConflict
	case KindImpersonation:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

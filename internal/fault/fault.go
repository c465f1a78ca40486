// Package fault defines the error kinds surfaced by the session and filing
// operations. Every failure carries a human-readable message and matches
// exactly one kind with errors.Is.
package fault

import (
	"errors"
	"strings"
)

var (
	ErrValidation             = errors.New("validation failed")
	ErrAuthentication         = errors.New("authentication failed")
	ErrAuthorization          = errors.New("not authorized")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrEnrollmentConflict     = errors.New("enrollment conflict")
	ErrTransport              = errors.New("transport failure")
	ErrUnauthenticated        = errors.New("not authenticated")
	ErrNotFound               = errors.New("not found")
)

var generic = map[error]string{
	ErrValidation:             "Please correct the highlighted fields and try again.",
	ErrAuthentication:         "Login failed. Please try again.",
	ErrAuthorization:          "You do not have permission to perform this action.",
	ErrInvalidStateTransition: "This submission has already been reviewed.",
	ErrEnrollmentConflict:     "Enrollment failed. Please try again.",
	ErrTransport:              "The service is unavailable. Please try again later.",
	ErrUnauthenticated:        "Your session has expired. Please log in again.",
	ErrNotFound:               "The requested item was not found.",
}

var labels = map[error]string{
	ErrValidation:             "validation",
	ErrAuthentication:         "authentication",
	ErrAuthorization:          "authorization",
	ErrInvalidStateTransition: "invalid_state_transition",
	ErrEnrollmentConflict:     "enrollment_conflict",
	ErrTransport:              "transport",
	ErrUnauthenticated:        "unauthenticated",
	ErrNotFound:               "not_found",
}

// Error is a typed failure. Error() returns the message meant for display.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return GenericMessage(e.Kind)
}

// Is reports whether target is the kind of this error.
func (e *Error) Is(target error) bool { return target == e.Kind }

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error { return e.Err }

// New builds an error of the given kind. An empty message falls back to the
// generic message of the kind.
func New(kind error, message string) error {
	return &Error{Kind: kind, Message: strings.TrimSpace(message)}
}

// Wrap builds an error of the given kind around cause.
func Wrap(kind error, cause error, message string) error {
	return &Error{Kind: kind, Message: strings.TrimSpace(message), Err: cause}
}

// GenericMessage returns the fallback message for a kind.
func GenericMessage(kind error) string {
	if msg, ok := generic[kind]; ok {
		return msg
	}
	return "Something went wrong. Please try again."
}

// KindOf returns the kind of err, or nil when err carries none.
func KindOf(err error) error {
	for _, kind := range []error{
		ErrValidation,
		ErrAuthentication,
		ErrAuthorization,
		ErrInvalidStateTransition,
		ErrEnrollmentConflict,
		ErrUnauthenticated,
		ErrNotFound,
		ErrTransport,
	} {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

// Classify keeps typed failures as they are and reports anything else (a
// dropped connection, a timeout, a decode error) as ErrTransport.
func Classify(err error) error {
	if err == nil || KindOf(err) != nil {
		return err
	}
	return Wrap(ErrTransport, err, "")
}

// Label returns a short snake_case name for the kind of err, "ok" for nil and
// "unknown" for untyped errors. Used as a metric label.
func Label(err error) string {
	if err == nil {
		return "ok"
	}
	if l, ok := labels[KindOf(err)]; ok {
		return l
	}
	return "unknown"
}

// Package apperr is the error taxonomy shared by the inventory core.
//
// Callers branch on Kind, never on message text:
//
//	switch apperr.KindOf(err) {
//	case apperr.Conflict:
//		// refresh and retry once
//	}
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	Validation            Kind = "VALIDATION"
	NotFound              Kind = "NOT_FOUND"
	InvalidTransition     Kind = "INVALID_TRANSITION"
	Conflict              Kind = "CONFLICT"
	DependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
	Forbidden             Kind = "FORBIDDEN"
)

// Error carries a Kind plus a short caller-facing message. State is set for
// InvalidTransition so the UI can show what the record looks like now.
type Error struct {
	Kind    Kind
	Message string
	State   string
	Err     error
}

func (e *Error) Error() string {
	msg := string(e.Kind) + ": " + e.Message
	if e.State != "" {
		msg += " (current state " + e.State + ")"
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func Validationf(format string, args ...any) error {
	return &Error{Kind: Validation, Message: fmt.Sprintf(format, args...)}
}

func NotFoundf(format string, args ...any) error {
	return &Error{Kind: NotFound, Message: fmt.Sprintf(format, args...)}
}

func Transition(state, format string, args ...any) error {
	return &Error{Kind: InvalidTransition, Message: fmt.Sprintf(format, args...), State: state}
}

func Conflictf(format string, args ...any) error {
	return &Error{Kind: Conflict, Message: fmt.Sprintf(format, args...)}
}

// Forbiddenf is returned when the capability check says no.
func Forbiddenf(format string, args ...any) error {
	return &Error{Kind: Forbidden, Message: fmt.Sprintf(format, args...)}
}

// Unavailable wraps a failing collaborator (sink, publisher, webhook).
func Unavailable(dep string, err error) error {
	return &Error{Kind: DependencyUnavailable, Message: dep + " unavailable", Err: err}
}

// KindOf returns the Kind of the first *Error in err's chain, or "" when there is none.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ""
}

func Is(err error, k Kind) bool { return err != nil && KindOf(err) == k }

// StateOf returns the state recorded on an InvalidTransition error.
func StateOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.State
	}
	return ""
}

// Public is the message safe to show to any role; internals are never included.
func Public(err error) string {
	var e *Error
	if errors.As(err, &e) {
		switch e.Kind {
		case Conflict:
			return e.Message + "; refresh and retry"
		case DependencyUnavailable:
			return "service temporarily unavailable"
		}
		return e.Message
	}
	return "internal error"
}

// Package apperr defines the error kinds shared by the service layer.
//
// Services never panic for expected conditions. They return an *Error whose Kind tells the caller
// how to react: validation and not-found errors are the client's fault, conflict and
// upstream_timeout are retryable, configuration errors point at a deployment defect.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
	KindInvalidTransition Kind = "invalid_transition"
	KindConflict          Kind = "conflict"
	KindPersistence       Kind = "persistence"
	KindConfiguration     Kind = "configuration"
	KindUpstream          Kind = "upstream"
	KindUpstreamTimeout   Kind = "upstream_timeout"
	KindInternal          Kind = "internal"
)

// Error wraps an underlying error with the operation and kind.
type Error struct {
	Op      string         // Operation name, e.g. "SnoozeStep"
	Kind    Kind           // Classification used by callers and the HTTP layer
	Message string         // Human-readable message
	Details map[string]any // Optional structured context
	Err     error          // Underlying error
}

func (e *Error) Error() string {
	switch {
	case e.Message != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Message, e.Err)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	default:
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// WithDetails attaches structured context and returns the same error.
func (e *Error) WithDetails(details map[string]any) *Error {
	e.Details = details
	return e
}

func New(op string, kind Kind, message string) *Error {
	return &Error{Op: op, Kind: kind, Message: message}
}

func Newf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Op: op, Kind: kind, Message: fmt.Sprintf(format, args...)}
}

func Wrap(op string, kind Kind, err error) *Error {
	return &Error{Op: op, Kind: kind, Err: err}
}

func Validation(op, message string) *Error {
	return New(op, KindValidation, message)
}

func NotFound(op, message string) *Error {
	return New(op, KindNotFound, message)
}

func InvalidTransition(op, from, to string) *Error {
	return Newf(op, KindInvalidTransition, "invalid transition: %s -> %s", from, to).
		WithDetails(map[string]any{"from": from, "to": to})
}

// Persistence wraps a store failure, keeping the store's message.
func Persistence(op string, err error) *Error {
	return &Error{Op: op, Kind: KindPersistence, Message: "store operation failed", Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindInternal.
func KindOf(err error) Kind {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr.Kind
	}
	return KindInternal
}

func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}

// Retryable reports whether a caller may retry the same call unchanged.
func Retryable(err error) bool {
	switch KindOf(err) {
	case KindConflict, KindUpstreamTimeout:
		return true
	default:
		return false
	}
}

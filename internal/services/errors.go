// Package services holds the business rules of the chat: message and
// presence stores, sessions, and the delivery dispatcher with SMS duplicate
// suppression.
//
// Every failure returned here is either a store error propagated unchanged
// or an *Error whose Kind is one of the sentinels below, so handlers can map
// with errors.Is and always show the Reason to the user.
package services

import (
	"errors"
	"fmt"
)

// Error kinds.
var (
	// ErrValidation covers empty content and missing or malformed identifiers.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound indicates a referenced profile or message does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTransport is a failed notifier subscription or event channel.
	ErrTransport = errors.New("transport failure")

	// ErrDuplicateSuppressed is a deliberate rejection of a repeated SMS.
	ErrDuplicateSuppressed = errors.New("duplicate send suppressed")

	// ErrGateway is a non-success verdict from the SMS gateway. It never
	// fails a dispatch; it is reported alongside the saved message.
	ErrGateway = errors.New("sms gateway failure")

	// ErrUnauthorized is an invalid or expired session token.
	ErrUnauthorized = errors.New("invalid or expired session")

	// ErrForbidden is a session acting outside its role.
	ErrForbidden = errors.New("forbidden")
)

// Error carries a kind, the operation that failed and a human-readable reason.
type Error struct {
	Kind   error
	Op     string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	msg := e.Reason
	if msg == "" {
		msg = e.Kind.Error()
	}
	if e.Op != "" {
		msg = e.Op + ": " + msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap exposes both the kind and the cause to errors.Is/As.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Reason returns the user-facing text of err.
func Reason(err error) string {
	var se *Error
	if errors.As(err, &se) && se.Reason != "" {
		return se.Reason
	}
	if err == nil {
		return ""
	}
	return err.Error()
}

func newErr(kind error, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Reason: fmt.Sprintf(format, args...)}
}

func validationErr(op, format string, args ...any) error {
	return newErr(ErrValidation, op, format, args...)
}

func notFoundErr(op, format string, args ...any) error {
	return newErr(ErrNotFound, op, format, args...)
}

func forbiddenErr(op, format string, args ...any) error {
	return newErr(ErrForbidden, op, format, args...)
}

// TransportError wraps a notifier failure.
func TransportError(op string, err error) error {
	return &Error{Kind: ErrTransport, Op: op, Reason: "realtime channel unavailable", Err: err}
}

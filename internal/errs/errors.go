// Package errs defines the error taxonomy shared by the messaging core.
// Handlers map each kind to an HTTP status; services return these so that
// failures reach the caller with enough structure for a specific message.
package errs

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthentication means the handshake or token is invalid. Connections
	// failing this are rejected before any handler runs.
	ErrAuthentication = errors.New("authentication failed")

	// ErrAuthorization means the actor lacks the required role or membership.
	// Rejected with no side effects.
	ErrAuthorization = errors.New("not authorized")

	// ErrNotFound means the message, group, user, or membership is absent.
	ErrNotFound = errors.New("not found")

	// ErrValidation means required fields are missing or malformed, e.g. an
	// incomplete key-wrapping quadruple or empty content.
	ErrValidation = errors.New("validation failed")

	// ErrInvariant means the operation would break a structural rule, e.g.
	// leave a group with active members but zero active admins.
	ErrInvariant = errors.New("invariant violation")
)

// Authentication wraps a reason into an ErrAuthentication.
func Authentication(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrAuthentication, args)...)
}

// Authorization wraps a reason into an ErrAuthorization.
func Authorization(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrAuthorization, args)...)
}

// NotFound wraps a reason into an ErrNotFound.
func NotFound(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrNotFound, args)...)
}

// Validation wraps a reason into an ErrValidation.
func Validation(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrValidation, args)...)
}

// Invariant wraps a reason into an ErrInvariant.
func Invariant(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, prepend(ErrInvariant, args)...)
}

func prepend(err error, args []any) []any {
	return append([]any{err}, args...)
}

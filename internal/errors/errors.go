// Package errors provides standardized domain errors that express sync intent
// rather than infrastructure details. These errors should be used by use cases
// and mapped to appropriate HTTP status codes by handlers.
package errors

import (
	"errors"
	"fmt"
)

// Standard domain errors that can be used across all domain modules.
var (
	// ErrNotFound indicates the requested resource does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicate indicates an entity with the same identifier already exists.
	ErrDuplicate = errors.New("duplicate")

	// ErrInvalidInput indicates the input data is invalid or fails validation.
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates the request lacks valid authentication credentials.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrTransient indicates a retryable infrastructure failure (network,
	// timeout, 5xx). Entries hitting it stay Pending and back off.
	ErrTransient = errors.New("transient failure")

	// ErrRejected indicates a permanent rejection (schema, authorization).
	// Entries hitting it are quarantined, never retried.
	ErrRejected = errors.New("permanent rejection")

	// ErrConflictDetected indicates the central authority holds a newer
	// version of the entity than the one the change was based on.
	ErrConflictDetected = errors.New("conflict detected")

	// ErrQuarantined indicates the entry exhausted its attempts or was
	// permanently rejected and now requires operator action.
	ErrQuarantined = errors.New("quarantined")

	// ErrNotClaimed indicates an atomic claim lost the race: the entry was
	// already in flight or no longer pending.
	ErrNotClaimed = errors.New("entry not claimed")
)

// New creates a new error with the given message.
// This is a convenience wrapper around errors.New for consistency.
func New(message string) error {
	return errors.New(message)
}

// Wrap wraps an error with additional context while preserving the error chain.
// Use this to add context at each layer without losing the original error type.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Is reports whether any error in err's tree matches target.
// This is a convenience wrapper around errors.Is.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's tree that matches target.
// This is a convenience wrapper around errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

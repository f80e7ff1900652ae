package domain

import (
	"github.com/edgepos/edgesync/internal/errors"
)

// Outbox errors.
var (
	// ErrEntryNotFound indicates an outbox entry with the specified ID was not found.
	ErrEntryNotFound = errors.Wrap(errors.ErrNotFound, "outbox entry not found")

	// ErrSubmissionNotFound indicates no critical submission exists for the entry.
	ErrSubmissionNotFound = errors.Wrap(errors.ErrNotFound, "critical submission not found")

	// ErrEntryNotClaimed indicates the conditional InFlight claim did not
	// apply because another worker holds the entry or it left Pending.
	ErrEntryNotClaimed = errors.Wrap(errors.ErrNotClaimed, "outbox entry not claimed")

	// ErrInvalidOperation indicates an unknown change operation.
	ErrInvalidOperation = errors.Wrap(errors.ErrInvalidInput, "invalid operation")

	// ErrEmptyEntityType indicates a missing entity type on enqueue.
	ErrEmptyEntityType = errors.Wrap(errors.ErrInvalidInput, "entity type cannot be empty")

	// ErrEmptyEntityID indicates a missing entity id on enqueue.
	ErrEmptyEntityID = errors.Wrap(errors.ErrInvalidInput, "entity id cannot be empty")

	// ErrNegativePriority indicates a priority below zero on enqueue.
	ErrNegativePriority = errors.Wrap(errors.ErrInvalidInput, "priority cannot be negative")
)

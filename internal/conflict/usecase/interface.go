// Package usecase implements conflict resolution. When the central authority
// rejects a change because a newer remote version exists, the resolver applies
// the entity type's policy: discard the local change, retransmit it, or park
// the pair for operator review.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// ConflictRepository defines the interface for conflict record persistence.
type ConflictRepository interface {
	Create(ctx context.Context, record *conflictDomain.Record) error
	Get(ctx context.Context, id uuid.UUID) (*conflictDomain.Record, error)
	ListOpen(ctx context.Context, limit int) ([]*conflictDomain.Record, error)
	Resolve(ctx context.Context, id uuid.UUID, resolution conflictDomain.Resolution, now time.Time) error
	Escalate(ctx context.Context, id uuid.UUID, now time.Time) error
}

// EntryStore is the subset of outbox entry operations the resolver needs to
// unblock or retire entries whose conflict was decided.
type EntryStore interface {
	Get(ctx context.Context, id uuid.UUID) (*outboxDomain.Entry, error)
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) error
	MarkConflict(ctx context.Context, id uuid.UUID, reason string) error
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) error
}

// ConflictUseCase defines the conflict resolution business logic.
type ConflictUseCase interface {
	// HandleRemoteConflict applies the entity type's policy to a conflict the
	// central authority reported for an in-flight entry, records the outcome
	// and transitions the entry accordingly.
	HandleRemoteConflict(
		ctx context.Context,
		entry *outboxDomain.Entry,
		remote conflictDomain.Version,
	) (*conflictDomain.Record, error)

	// ResolveManual closes an open conflict with an operator-chosen winner.
	// A local win requeues the blocked entry; a remote win retires it.
	ResolveManual(ctx context.Context, recordID uuid.UUID, resolution conflictDomain.Resolution) error

	Get(ctx context.Context, recordID uuid.UUID) (*conflictDomain.Record, error)
	ListOpen(ctx context.Context, limit int) ([]*conflictDomain.Record, error)
}

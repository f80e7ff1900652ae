// Package usecase defines the interfaces and implementations for outbox
// business logic. Use cases orchestrate between repositories and the
// transaction manager so that business writes and their intent-to-sync
// records commit atomically.
package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// EntryRepository defines the interface for outbox entry persistence operations.
type EntryRepository interface {
	Create(ctx context.Context, entry *outboxDomain.Entry) error
	Get(ctx context.Context, id uuid.UUID) (*outboxDomain.Entry, error)
	NextSequence(ctx context.Context, entityType, entityID string) (int64, error)
	// UnresolvedByEntity returns the oldest non-Done entry for an entity key,
	// or nil when the key has no unresolved local writes.
	UnresolvedByEntity(ctx context.Context, entityType, entityID string) (*outboxDomain.Entry, error)
	PeekReady(ctx context.Context, now time.Time, limit int) ([]*outboxDomain.Entry, error)
	ClaimInFlight(ctx context.Context, id uuid.UUID, now, leaseExpiresAt time.Time) error
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) error
	MarkConflict(ctx context.Context, id uuid.UUID, reason string) error
	MarkQuarantined(ctx context.Context, id uuid.UUID, reason string) error
	Requeue(ctx context.Context, id uuid.UUID, now time.Time) error
	ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error)
	ListByStatus(ctx context.Context, status outboxDomain.EntryStatus, limit int) ([]*outboxDomain.Entry, error)
	Stats(ctx context.Context) (*outboxDomain.QueueStats, error)
}

// IdempotencyRepository defines the interface for the applied-change ledger.
type IdempotencyRepository interface {
	Record(ctx context.Context, record *outboxDomain.IdempotencyRecord) error
	Get(ctx context.Context, id uuid.UUID) (*outboxDomain.IdempotencyRecord, error)
	Exists(ctx context.Context, id uuid.UUID) (bool, error)
	Count(ctx context.Context) (int64, error)
}

// CriticalRepository defines the interface for critical submission persistence.
type CriticalRepository interface {
	Create(ctx context.Context, submission *outboxDomain.CriticalSubmission) error
	Get(ctx context.Context, entryID uuid.UUID) (*outboxDomain.CriticalSubmission, error)
	Update(ctx context.Context, submission *outboxDomain.CriticalSubmission) error
}

// WatermarkRepository defines the interface for the inbound change-feed cursor.
type WatermarkRepository interface {
	Get(ctx context.Context) (int64, error)
	Save(ctx context.Context, watermark int64, now time.Time) error
}

// OutboxUseCase defines the business operations on the write-ahead outbox.
type OutboxUseCase interface {
	// Enqueue records an intent-to-sync. When called inside a transaction
	// started by the TxManager, the entry commits atomically with the
	// caller's business write.
	Enqueue(ctx context.Context, input *outboxDomain.EnqueueInput) (*outboxDomain.Entry, error)
	Get(ctx context.Context, id uuid.UUID) (*outboxDomain.Entry, error)
	GetCriticalSubmission(ctx context.Context, entryID uuid.UUID) (*outboxDomain.CriticalSubmission, error)
	// Requeue returns a quarantined or conflicted entry to the pending queue
	// with a fresh attempt budget.
	Requeue(ctx context.Context, id uuid.UUID) error
	ListByStatus(ctx context.Context, status outboxDomain.EntryStatus, limit int) ([]*outboxDomain.Entry, error)
	Stats(ctx context.Context) (*outboxDomain.QueueStats, error)
}

// Package domain defines the write-ahead outbox entities: pending local
// changes, the idempotency ledger, and critical submission state.
//
// An outbox entry is written in the same local transaction as the business
// change it describes, so a committed sale always has a durable
// intent-to-sync record. The entry id doubles as the idempotency key for
// every delivery attempt of that logical change.
package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Operation identifies the kind of change an outbox entry carries.
type Operation string

const (
	OperationCreate Operation = "create"
	OperationUpdate Operation = "update"
	OperationDelete Operation = "delete"
	OperationUpsert Operation = "upsert"
)

// IsValid reports whether the operation is one of the known kinds.
func (o Operation) IsValid() bool {
	switch o {
	case OperationCreate, OperationUpdate, OperationDelete, OperationUpsert:
		return true
	}
	return false
}

// EntryStatus represents the lifecycle state of an outbox entry.
type EntryStatus string

const (
	// EntryStatusPending means the entry is waiting for transmission.
	EntryStatusPending EntryStatus = "pending"

	// EntryStatusInFlight means a worker holds a lease and is transmitting.
	EntryStatusInFlight EntryStatus = "in_flight"

	// EntryStatusDone means the central authority acknowledged the change.
	EntryStatusDone EntryStatus = "done"

	// EntryStatusConflict means the authority reported a newer remote
	// version; the conflict resolver owns the entry until it decides.
	EntryStatusConflict EntryStatus = "conflict"

	// EntryStatusQuarantined means the entry cannot be retried automatically
	// and requires operator attention. Later entries for the same entity key
	// stay blocked behind it.
	EntryStatusQuarantined EntryStatus = "quarantined"
)

// IsTerminal reports whether the status ends automatic processing.
func (s EntryStatus) IsTerminal() bool {
	return s == EntryStatusDone || s == EntryStatusQuarantined
}

// Entry is one pending or historical local change awaiting propagation to
// the central authority.
//
// Entries are immutable after creation except for the status, attempt and
// lease fields. Entries for the same (EntityType, EntityID) are transmitted
// in non-decreasing Sequence order.
type Entry struct {
	ID             uuid.UUID // locally generated, used as the idempotency key
	EntityType     string
	EntityID       string
	Operation      Operation
	Payload        []byte // self-contained snapshot of the change
	Priority       int    // higher = more urgent
	Sequence       int64  // monotonic per (EntityType, EntityID)
	Status         EntryStatus
	AttemptCount   int
	NextAttemptAt  time.Time  // earliest eligible transmission time
	LeaseExpiresAt *time.Time // set while InFlight; expiry reverts to Pending
	LastAttemptAt  *time.Time
	LastError      *string
	CreatedAt      time.Time
}

// Key returns the per-entity ordering key.
func (e *Entry) Key() string {
	return EntityKey(e.EntityType, e.EntityID)
}

// EntityKey builds the ordering key for an entity type and id.
func EntityKey(entityType, entityID string) string {
	return fmt.Sprintf("%s/%s", entityType, entityID)
}

// EnqueueInput carries the parameters business services pass when recording
// an intent-to-sync alongside their own write.
type EnqueueInput struct {
	EntityType string
	EntityID   string
	Operation  Operation
	Payload    []byte
	Priority   int
}

// IdempotencyRecord marks an entry id as applied by the central authority.
// Redelivery of a recorded id is a no-op that replays ServerResult.
type IdempotencyRecord struct {
	ID           uuid.UUID
	ServerResult string
	AppliedAt    time.Time
}

// CriticalState represents the reconciliation state of a critical submission
// (tax invoice, mobile-money payment).
type CriticalState string

const (
	CriticalStatePending CriticalState = "pending"

	// CriticalStateSubmitted means a send was attempted and the outcome is
	// ambiguous until a status query answers. Submitted may only advance via
	// an explicit status query, never by interpreting a timeout.
	CriticalStateSubmitted CriticalState = "submitted"

	CriticalStateConfirmed CriticalState = "confirmed"
	CriticalStateRejected  CriticalState = "rejected"

	// CriticalStateUnknown means reconciliation was exhausted without a
	// definitive answer and the submission needs operator review.
	CriticalStateUnknown CriticalState = "unknown"
)

// CriticalSubmission extends an outbox entry with ambiguity-safe delivery
// state for financial-authority operations.
type CriticalSubmission struct {
	EntryID     uuid.UUID
	State       CriticalState
	QueryCount  int // status queries issued so far
	Reason      *string
	SubmittedAt *time.Time
	ResolvedAt  *time.Time
	CreatedAt   time.Time
}

// QueueStats is the operator-facing summary of the outbox backlog.
type QueueStats struct {
	Pending       int64
	InFlight      int64
	Done          int64
	Conflict      int64
	Quarantined   int64
	OldestPending *time.Time
	LastDoneAt    *time.Time
}

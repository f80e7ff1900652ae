package syncer

import (
	"time"

	"github.com/google/uuid"
)

// EventKind labels a sync lifecycle event.
type EventKind string

const (
	EventEntryDone        EventKind = "entry_done"
	EventEntryRetry       EventKind = "entry_retry"
	EventEntryQuarantined EventKind = "entry_quarantined"
	EventEntryConflict    EventKind = "entry_conflict"
	EventInboundApplied   EventKind = "inbound_applied"
)

// Event reports one sync lifecycle transition. Events are advisory: the
// durable state lives in the outbox, and a dropped event loses nothing.
type Event struct {
	Kind       EventKind
	EntryID    uuid.UUID
	EntityType string
	EntityID   string
	Reason     string
	At         time.Time
}

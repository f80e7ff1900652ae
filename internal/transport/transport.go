// Package transport carries outbox entries to the central sync gateway and
// pulls the inbound change feed. Every gateway response is classified into an
// outcome the scheduler can act on without inspecting HTTP details.
package transport

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// Outcome classifies a gateway response to a change submission.
type Outcome int

const (
	// OutcomeAccepted means the change was applied (or had already been
	// applied under the same idempotency key).
	OutcomeAccepted Outcome = iota

	// OutcomeRejected means the gateway refused the change for a permanent
	// reason; retrying the same bytes cannot succeed.
	OutcomeRejected

	// OutcomeConflict means a newer remote version exists for the entity.
	OutcomeConflict

	// OutcomeTransient means the failure is temporary (gateway overload,
	// upstream error) and the entry should be retried with backoff.
	OutcomeTransient
)

// String returns the outcome name for logs and metrics labels.
func (o Outcome) String() string {
	switch o {
	case OutcomeAccepted:
		return "accepted"
	case OutcomeRejected:
		return "rejected"
	case OutcomeConflict:
		return "conflict"
	default:
		return "transient"
	}
}

// ChangeRequest is one outbox entry on the wire.
type ChangeRequest struct {
	IdempotencyKey  uuid.UUID       `json:"idempotency_key"`
	EntityType      string          `json:"entity_type"`
	EntityID        string          `json:"entity_id"`
	Operation       string          `json:"operation"`
	Sequence        int64           `json:"sequence"`
	Payload         json.RawMessage `json:"payload"`
	ClientUpdatedAt time.Time       `json:"client_updated_at"`
}

// NewChangeRequest builds the wire representation of an outbox entry. The
// entry id is the idempotency key for every delivery attempt.
func NewChangeRequest(entry *outboxDomain.Entry) *ChangeRequest {
	return &ChangeRequest{
		IdempotencyKey:  entry.ID,
		EntityType:      entry.EntityType,
		EntityID:        entry.EntityID,
		Operation:       string(entry.Operation),
		Sequence:        entry.Sequence,
		Payload:         entry.Payload,
		ClientUpdatedAt: entry.CreatedAt,
	}
}

// RemoteVersion describes the winning remote state in a conflict response.
type RemoteVersion struct {
	Payload   json.RawMessage `json:"payload"`
	UpdatedAt time.Time       `json:"updated_at"`
	UpdatedBy string          `json:"updated_by"`
}

// SendResult is the classified response to a change submission.
type SendResult struct {
	Outcome      Outcome
	Reason       string
	Remote       *RemoteVersion // set when Outcome is OutcomeConflict
	FeedPosition int64          // set when Outcome is OutcomeAccepted
}

// StatusResult answers a reconciliation query for an idempotency key.
type StatusResult struct {
	// Known reports whether the gateway has seen the key at all. An unknown
	// key means the original submission never arrived and a resend is safe.
	Known  bool
	Result string // "accepted" or "rejected" when Known
	Reason string
}

// InboundChange is one centrally-originated change from the pull feed.
type InboundChange struct {
	Position   int64           `json:"position"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Operation  string          `json:"operation"`
	Payload    json.RawMessage `json:"payload"`
	UpdatedAt  time.Time       `json:"updated_at"`
	UpdatedBy  string          `json:"updated_by"`
}

// ChangeFeed is a page of the inbound change feed.
type ChangeFeed struct {
	Changes   []InboundChange `json:"changes"`
	NextSince int64           `json:"next_since"`
}

// Transport defines the node-to-gateway protocol operations.
type Transport interface {
	// SendChange submits one change. A non-nil error means the request
	// itself failed (connection, timeout) and nothing is known about
	// whether the gateway saw it.
	SendChange(ctx context.Context, change *ChangeRequest) (*SendResult, error)

	// QueryStatus asks whether the gateway has applied an idempotency key.
	QueryStatus(ctx context.Context, idempotencyKey uuid.UUID) (*StatusResult, error)

	// PullChanges fetches inbound changes after the given feed position.
	PullChanges(ctx context.Context, since int64, limit int) (*ChangeFeed, error)
}

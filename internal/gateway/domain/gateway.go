// Package domain defines the central gateway's entities: registered edge
// nodes, the applied-change ledger that makes ingestion idempotent, and the
// per-entity version register used for conflict detection.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Node is an edge node registered with the gateway. Nodes authenticate with
// an id and a key whose Argon2id hash is stored here.
type Node struct {
	ID        string
	KeyHash   string
	Name      string
	IsActive  bool
	CreatedAt time.Time
}

// ChangeResult is the recorded verdict for an ingested change.
type ChangeResult string

const (
	ChangeResultAccepted ChangeResult = "accepted"
	ChangeResultRejected ChangeResult = "rejected"
)

// AppliedChange records one idempotency key's verdict. Redelivery of a
// recorded key replays the verdict without re-applying anything.
type AppliedChange struct {
	IdempotencyKey uuid.UUID
	NodeID         string
	EntityType     string
	EntityID       string
	Operation      string
	Payload        []byte
	Result         ChangeResult
	Reason         *string
	FeedPosition   int64
	AppliedAt      time.Time
}

// EntityVersion is the gateway's current state of one entity.
type EntityVersion struct {
	EntityType string
	EntityID   string
	Version    int64
	Payload    []byte
	UpdatedBy  string // originating node id; "" for centrally managed data
	UpdatedAt  time.Time
}

// ChangeSubmission is an inbound change from a node, already authenticated.
type ChangeSubmission struct {
	IdempotencyKey  uuid.UUID
	EntityType      string
	EntityID        string
	Operation       string
	Payload         []byte
	ClientUpdatedAt time.Time
}

// IngestStatus classifies the outcome of an ingestion attempt.
type IngestStatus string

const (
	IngestAccepted IngestStatus = "accepted"
	IngestRejected IngestStatus = "rejected"
	IngestConflict IngestStatus = "conflict"
)

// IngestResult is the gateway's answer to a change submission.
type IngestResult struct {
	Status       IngestStatus
	Reason       string
	FeedPosition int64
	Remote       *EntityVersion // set when Status is IngestConflict
}

// FeedEntry is one accepted change exposed through the pull feed.
type FeedEntry struct {
	Position   int64
	EntityType string
	EntityID   string
	Operation  string
	Payload    []byte
	UpdatedBy  string
	UpdatedAt  time.Time
}

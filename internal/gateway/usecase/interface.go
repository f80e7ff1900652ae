// Package usecase implements the gateway's business logic: node registration
// and authentication, idempotent change ingestion with conflict detection,
// and the accepted-change feed.
package usecase

import (
	"context"

	"github.com/google/uuid"

	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// NodeRepository defines node persistence operations.
type NodeRepository interface {
	Create(ctx context.Context, node *gatewayDomain.Node) error
	Get(ctx context.Context, id string) (*gatewayDomain.Node, error)
	SetActive(ctx context.Context, id string, active bool) error
}

// ChangeRepository defines the applied-change ledger operations.
type ChangeRepository interface {
	Create(ctx context.Context, change *gatewayDomain.AppliedChange) error
	Get(ctx context.Context, key uuid.UUID) (*gatewayDomain.AppliedChange, error)
	NextFeedPosition(ctx context.Context) (int64, error)
	ListAccepted(ctx context.Context, after int64, limit int) ([]*gatewayDomain.FeedEntry, error)
}

// VersionRepository defines the entity version register operations.
type VersionRepository interface {
	Get(ctx context.Context, entityType, entityID string) (*gatewayDomain.EntityVersion, error)
	Upsert(ctx context.Context, version *gatewayDomain.EntityVersion) error
}

// KeyService generates and verifies node keys.
type KeyService interface {
	GenerateKey() (plainKey string, hashedKey string, err error)
	CompareKey(plainKey string, hashedKey string) bool
}

// NodeUseCase defines node management operations.
type NodeUseCase interface {
	// Register creates a node and returns it with its plain key. The plain
	// key is shown once and never stored. An empty id generates one.
	Register(ctx context.Context, id, name string) (*gatewayDomain.Node, string, error)

	// Authenticate verifies a node id and key pair.
	Authenticate(ctx context.Context, id, plainKey string) (*gatewayDomain.Node, error)

	// Deactivate disables a node. Its pending changes are no longer accepted.
	Deactivate(ctx context.Context, id string) error
}

// SyncUseCase defines change ingestion and feed operations.
type SyncUseCase interface {
	// IngestChange applies one change from an authenticated node. Redelivery
	// of a recorded idempotency key replays the recorded verdict. A conflict
	// is reported but not recorded, so the node can resend after resolving.
	IngestChange(
		ctx context.Context,
		nodeID string,
		submission *gatewayDomain.ChangeSubmission,
	) (*gatewayDomain.IngestResult, error)

	// GetStatus returns the recorded verdict for an idempotency key.
	GetStatus(ctx context.Context, key uuid.UUID) (*gatewayDomain.AppliedChange, error)

	// ListChanges returns accepted changes after the given feed position,
	// plus the position to resume from.
	ListChanges(ctx context.Context, since int64, limit int) ([]*gatewayDomain.FeedEntry, int64, error)
}

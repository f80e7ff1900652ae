// Package replica maintains the node's local copy of centrally-originated
// master data (prices, catalog, promotions). The sync worker's inbound pull
// hands each feed change to the Applier, which either upserts the local copy
// or, when the node has its own unresolved write for the same entity, routes
// the pair through the conflict resolver instead of blindly overwriting.
package replica

import (
	"context"
	"time"
)

// Entity is one locally mirrored record of central master data.
type Entity struct {
	EntityType string
	EntityID   string
	Payload    []byte
	// UpdatedBy is the node that produced the version, or "" for central.
	UpdatedBy string
	UpdatedAt time.Time
	// SyncedAt is when this node applied the version locally.
	SyncedAt time.Time
}

// Store defines persistence for the local master-data mirror. Application is
// keyed upserts, so replaying a feed page after a partial failure is safe.
type Store interface {
	Upsert(ctx context.Context, entity *Entity) error
	Get(ctx context.Context, entityType, entityID string) (*Entity, error)
	Delete(ctx context.Context, entityType, entityID string) error
}

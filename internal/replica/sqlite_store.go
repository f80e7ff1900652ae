package replica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
)

// SQLiteStore implements the mirror store for SQLite. Timestamps are stored
// as unix nanoseconds in INTEGER columns.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite replica store.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Upsert writes or replaces the local copy of an entity.
func (s *SQLiteStore) Upsert(ctx context.Context, entity *Entity) error {
	querier := database.GetTx(ctx, s.db)

	query := `INSERT INTO replica_entities (entity_type, entity_id, payload, updated_by, updated_at, synced_at)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON CONFLICT (entity_type, entity_id) DO UPDATE SET
				payload = excluded.payload,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at,
				synced_at = excluded.synced_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		entity.EntityType,
		entity.EntityID,
		entity.Payload,
		entity.UpdatedBy,
		entity.UpdatedAt.UnixNano(),
		entity.SyncedAt.UnixNano(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert replica entity")
	}
	return nil
}

// Get retrieves the local copy of an entity, or nil when the node has never
// seen it.
func (s *SQLiteStore) Get(ctx context.Context, entityType, entityID string) (*Entity, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT entity_type, entity_id, payload, updated_by, updated_at, synced_at
			  FROM replica_entities WHERE entity_type = ? AND entity_id = ?`

	var entity Entity
	var updatedAt, syncedAt int64
	err := querier.QueryRowContext(ctx, query, entityType, entityID).Scan(
		&entity.EntityType,
		&entity.EntityID,
		&entity.Payload,
		&entity.UpdatedBy,
		&updatedAt,
		&syncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to get replica entity")
	}

	entity.UpdatedAt = time.Unix(0, updatedAt).UTC()
	entity.SyncedAt = time.Unix(0, syncedAt).UTC()
	return &entity, nil
}

// Delete removes the local copy. Deleting an entity the node never mirrored
// is not an error; inbound deletes must be replay-safe.
func (s *SQLiteStore) Delete(ctx context.Context, entityType, entityID string) error {
	querier := database.GetTx(ctx, s.db)

	query := `DELETE FROM replica_entities WHERE entity_type = ? AND entity_id = ?`

	if _, err := querier.ExecContext(ctx, query, entityType, entityID); err != nil {
		return apperrors.Wrap(err, "failed to delete replica entity")
	}
	return nil
}

package replica

import (
	"context"
	"database/sql"
	"errors"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
)

// PostgreSQLStore implements the mirror store for PostgreSQL.
type PostgreSQLStore struct {
	db *sql.DB
}

// NewPostgreSQLStore creates a new PostgreSQL replica store.
func NewPostgreSQLStore(db *sql.DB) *PostgreSQLStore {
	return &PostgreSQLStore{db: db}
}

// Upsert writes or replaces the local copy of an entity.
func (s *PostgreSQLStore) Upsert(ctx context.Context, entity *Entity) error {
	querier := database.GetTx(ctx, s.db)

	query := `INSERT INTO replica_entities (entity_type, entity_id, payload, updated_by, updated_at, synced_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (entity_type, entity_id) DO UPDATE SET
				payload = EXCLUDED.payload,
				updated_by = EXCLUDED.updated_by,
				updated_at = EXCLUDED.updated_at,
				synced_at = EXCLUDED.synced_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		entity.EntityType,
		entity.EntityID,
		entity.Payload,
		entity.UpdatedBy,
		entity.UpdatedAt,
		entity.SyncedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert replica entity")
	}
	return nil
}

// Get retrieves the local copy of an entity, or nil when the node has never
// seen it.
func (s *PostgreSQLStore) Get(ctx context.Context, entityType, entityID string) (*Entity, error) {
	querier := database.GetTx(ctx, s.db)

	query := `SELECT entity_type, entity_id, payload, updated_by, updated_at, synced_at
			  FROM replica_entities WHERE entity_type = $1 AND entity_id = $2`

	var entity Entity
	err := querier.QueryRowContext(ctx, query, entityType, entityID).Scan(
		&entity.EntityType,
		&entity.EntityID,
		&entity.Payload,
		&entity.UpdatedBy,
		&entity.UpdatedAt,
		&entity.SyncedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to get replica entity")
	}
	return &entity, nil
}

// Delete removes the local copy. Missing rows are not an error.
func (s *PostgreSQLStore) Delete(ctx context.Context, entityType, entityID string) error {
	querier := database.GetTx(ctx, s.db)

	query := `DELETE FROM replica_entities WHERE entity_type = $1 AND entity_id = $2`

	if _, err := querier.ExecContext(ctx, query, entityType, entityID); err != nil {
		return apperrors.Wrap(err, "failed to delete replica entity")
	}
	return nil
}

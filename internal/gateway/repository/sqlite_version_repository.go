package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// SQLiteVersionRepository implements the entity version register for SQLite.
type SQLiteVersionRepository struct {
	db *sql.DB
}

// NewSQLiteVersionRepository creates a new SQLite entity version repository.
func NewSQLiteVersionRepository(db *sql.DB) *SQLiteVersionRepository {
	return &SQLiteVersionRepository{db: db}
}

// Get retrieves the current version of an entity, or nil when the entity is
// unknown to the gateway.
func (r *SQLiteVersionRepository) Get(
	ctx context.Context,
	entityType, entityID string,
) (*gatewayDomain.EntityVersion, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT entity_type, entity_id, version, payload, updated_by, updated_at
			  FROM entity_versions WHERE entity_type = ? AND entity_id = ?`

	var version gatewayDomain.EntityVersion
	var updatedAt int64

	err := querier.QueryRowContext(ctx, query, entityType, entityID).Scan(
		&version.EntityType,
		&version.EntityID,
		&version.Version,
		&version.Payload,
		&version.UpdatedBy,
		&updatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to get entity version")
	}

	version.UpdatedAt = time.Unix(0, updatedAt).UTC()
	return &version, nil
}

// Upsert writes the new current version of an entity.
func (r *SQLiteVersionRepository) Upsert(ctx context.Context, version *gatewayDomain.EntityVersion) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO entity_versions (entity_type, entity_id, version, payload, updated_by, updated_at)
			  VALUES (?, ?, ?, ?, ?, ?)
			  ON CONFLICT (entity_type, entity_id) DO UPDATE SET
				version = excluded.version,
				payload = excluded.payload,
				updated_by = excluded.updated_by,
				updated_at = excluded.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		version.EntityType,
		version.EntityID,
		version.Version,
		version.Payload,
		version.UpdatedBy,
		version.UpdatedAt.UnixNano(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert entity version")
	}
	return nil
}

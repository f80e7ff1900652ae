package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// PostgreSQLVersionRepository implements the entity version register for PostgreSQL.
type PostgreSQLVersionRepository struct {
	db *sql.DB
}

// NewPostgreSQLVersionRepository creates a new PostgreSQL entity version repository.
func NewPostgreSQLVersionRepository(db *sql.DB) *PostgreSQLVersionRepository {
	return &PostgreSQLVersionRepository{db: db}
}

// Get retrieves the current version of an entity, or nil when the entity is
// unknown to the gateway.
func (r *PostgreSQLVersionRepository) Get(
	ctx context.Context,
	entityType, entityID string,
) (*gatewayDomain.EntityVersion, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT entity_type, entity_id, version, payload, updated_by, updated_at
			  FROM entity_versions WHERE entity_type = $1 AND entity_id = $2`

	var version gatewayDomain.EntityVersion
	err := querier.QueryRowContext(ctx, query, entityType, entityID).Scan(
		&version.EntityType,
		&version.EntityID,
		&version.Version,
		&version.Payload,
		&version.UpdatedBy,
		&version.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to get entity version")
	}
	return &version, nil
}

// Upsert writes the new current version of an entity.
func (r *PostgreSQLVersionRepository) Upsert(ctx context.Context, version *gatewayDomain.EntityVersion) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO entity_versions (entity_type, entity_id, version, payload, updated_by, updated_at)
			  VALUES ($1, $2, $3, $4, $5, $6)
			  ON CONFLICT (entity_type, entity_id) DO UPDATE SET
				version = EXCLUDED.version,
				payload = EXCLUDED.payload,
				updated_by = EXCLUDED.updated_by,
				updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(
		ctx,
		query,
		version.EntityType,
		version.EntityID,
		version.Version,
		version.Payload,
		version.UpdatedBy,
		version.UpdatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to upsert entity version")
	}
	return nil
}

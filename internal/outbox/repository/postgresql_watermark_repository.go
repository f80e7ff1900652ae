package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
)

// PostgreSQLWatermarkRepository persists the inbound change-feed cursor for PostgreSQL.
type PostgreSQLWatermarkRepository struct {
	db *sql.DB
}

// NewPostgreSQLWatermarkRepository creates a new PostgreSQL watermark repository.
func NewPostgreSQLWatermarkRepository(db *sql.DB) *PostgreSQLWatermarkRepository {
	return &PostgreSQLWatermarkRepository{db: db}
}

// Get returns the last pulled watermark, or zero when nothing was pulled yet.
func (r *PostgreSQLWatermarkRepository) Get(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var watermark int64
	err := querier.QueryRowContext(ctx, `SELECT watermark FROM sync_watermarks WHERE id = 1`).Scan(&watermark)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, apperrors.Wrap(err, "failed to get watermark")
	}
	return watermark, nil
}

// Save upserts the watermark after a successful inbound pull.
func (r *PostgreSQLWatermarkRepository) Save(ctx context.Context, watermark int64, now time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO sync_watermarks (id, watermark, updated_at)
			  VALUES (1, $1, $2)
			  ON CONFLICT (id) DO UPDATE SET watermark = EXCLUDED.watermark, updated_at = EXCLUDED.updated_at`

	_, err := querier.ExecContext(ctx, query, watermark, now)
	if err != nil {
		return apperrors.Wrap(err, "failed to save watermark")
	}
	return nil
}

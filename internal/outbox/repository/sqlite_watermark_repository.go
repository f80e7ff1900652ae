package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
)

// SQLiteWatermarkRepository persists the inbound change-feed cursor for SQLite.
type SQLiteWatermarkRepository struct {
	db *sql.DB
}

// NewSQLiteWatermarkRepository creates a new SQLite watermark repository.
func NewSQLiteWatermarkRepository(db *sql.DB) *SQLiteWatermarkRepository {
	return &SQLiteWatermarkRepository{db: db}
}

// Get returns the last pulled watermark, or zero when nothing was pulled yet.
func (r *SQLiteWatermarkRepository) Get(ctx context.Context) (int64, error) {
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
func (r *SQLiteWatermarkRepository) Save(ctx context.Context, watermark int64, now time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO sync_watermarks (id, watermark, updated_at)
			  VALUES (1, ?, ?)
			  ON CONFLICT (id) DO UPDATE SET watermark = excluded.watermark, updated_at = excluded.updated_at`

	_, err := querier.ExecContext(ctx, query, watermark, timeToUnix(now))
	if err != nil {
		return apperrors.Wrap(err, "failed to save watermark")
	}
	return nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// SQLiteIdempotencyRepository implements the idempotency ledger for SQLite.
type SQLiteIdempotencyRepository struct {
	db *sql.DB
}

// NewSQLiteIdempotencyRepository creates a new SQLite idempotency ledger.
func NewSQLiteIdempotencyRepository(db *sql.DB) *SQLiteIdempotencyRepository {
	return &SQLiteIdempotencyRepository{db: db}
}

// Record stores an acknowledgment. Recording the same id twice is a no-op,
// which makes crash-window redelivery (ack received, Done mark lost) safe.
func (r *SQLiteIdempotencyRepository) Record(
	ctx context.Context,
	record *outboxDomain.IdempotencyRecord,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO idempotency_records (id, server_result, applied_at)
			  VALUES (?, ?, ?)
			  ON CONFLICT (id) DO NOTHING`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID.String(),
		record.ServerResult,
		timeToUnix(record.AppliedAt),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to record idempotency entry")
	}
	return nil
}

// Get retrieves a ledger record by entry id.
func (r *SQLiteIdempotencyRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*outboxDomain.IdempotencyRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, server_result, applied_at FROM idempotency_records WHERE id = ?`

	var record outboxDomain.IdempotencyRecord
	var rawID string
	var appliedAt int64

	err := querier.QueryRowContext(ctx, query, id.String()).Scan(&rawID, &record.ServerResult, &appliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "idempotency record not found")
		}
		return nil, apperrors.Wrap(err, "failed to get idempotency record")
	}

	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse idempotency record id")
	}
	record.ID = parsed
	record.AppliedAt = unixToTime(appliedAt)
	return &record, nil
}

// Exists reports whether an entry id has already been acknowledged.
func (r *SQLiteIdempotencyRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COUNT(*) FROM idempotency_records WHERE id = ?`

	var count int64
	if err := querier.QueryRowContext(ctx, query, id.String()).Scan(&count); err != nil {
		return false, apperrors.Wrap(err, "failed to check idempotency record")
	}
	return count > 0, nil
}

// Count returns the total number of acknowledged entries.
func (r *SQLiteIdempotencyRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	if err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency_records`).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count idempotency records")
	}
	return count, nil
}

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

// PostgreSQLIdempotencyRepository implements the idempotency ledger for PostgreSQL.
type PostgreSQLIdempotencyRepository struct {
	db *sql.DB
}

// NewPostgreSQLIdempotencyRepository creates a new PostgreSQL idempotency ledger.
func NewPostgreSQLIdempotencyRepository(db *sql.DB) *PostgreSQLIdempotencyRepository {
	return &PostgreSQLIdempotencyRepository{db: db}
}

// Record stores an acknowledgment. Recording the same id twice is a no-op.
func (r *PostgreSQLIdempotencyRepository) Record(
	ctx context.Context,
	record *outboxDomain.IdempotencyRecord,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO idempotency_records (id, server_result, applied_at)
			  VALUES ($1, $2, $3)
			  ON CONFLICT (id) DO NOTHING`

	_, err := querier.ExecContext(ctx, query, record.ID, record.ServerResult, record.AppliedAt)
	if err != nil {
		return apperrors.Wrap(err, "failed to record idempotency entry")
	}
	return nil
}

// Get retrieves a ledger record by entry id.
func (r *PostgreSQLIdempotencyRepository) Get(
	ctx context.Context,
	id uuid.UUID,
) (*outboxDomain.IdempotencyRecord, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, server_result, applied_at FROM idempotency_records WHERE id = $1`

	var record outboxDomain.IdempotencyRecord
	err := querier.QueryRowContext(ctx, query, id).Scan(&record.ID, &record.ServerResult, &record.AppliedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperrors.Wrap(apperrors.ErrNotFound, "idempotency record not found")
		}
		return nil, apperrors.Wrap(err, "failed to get idempotency record")
	}
	return &record, nil
}

// Exists reports whether an entry id has already been acknowledged.
func (r *PostgreSQLIdempotencyRepository) Exists(ctx context.Context, id uuid.UUID) (bool, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency_records WHERE id = $1`, id).Scan(&count)
	if err != nil {
		return false, apperrors.Wrap(err, "failed to check idempotency record")
	}
	return count > 0, nil
}

// Count returns the total number of acknowledged entries.
func (r *PostgreSQLIdempotencyRepository) Count(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var count int64
	if err := querier.QueryRowContext(ctx, `SELECT COUNT(*) FROM idempotency_records`).Scan(&count); err != nil {
		return 0, apperrors.Wrap(err, "failed to count idempotency records")
	}
	return count, nil
}

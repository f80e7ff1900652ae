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

// PostgreSQLCriticalRepository implements critical submission persistence for PostgreSQL.
type PostgreSQLCriticalRepository struct {
	db *sql.DB
}

// NewPostgreSQLCriticalRepository creates a new PostgreSQL critical submission repository.
func NewPostgreSQLCriticalRepository(db *sql.DB) *PostgreSQLCriticalRepository {
	return &PostgreSQLCriticalRepository{db: db}
}

// Create inserts a new critical submission row for an outbox entry.
// Call inside the enqueue transaction.
func (r *PostgreSQLCriticalRepository) Create(
	ctx context.Context,
	submission *outboxDomain.CriticalSubmission,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO critical_submissions (entry_id, state, query_count, reason, submitted_at,
				resolved_at, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := querier.ExecContext(
		ctx,
		query,
		submission.EntryID,
		string(submission.State),
		submission.QueryCount,
		submission.Reason,
		submission.SubmittedAt,
		submission.ResolvedAt,
		submission.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create critical submission")
	}
	return nil
}

// Get retrieves the critical submission for an outbox entry.
func (r *PostgreSQLCriticalRepository) Get(
	ctx context.Context,
	entryID uuid.UUID,
) (*outboxDomain.CriticalSubmission, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT entry_id, state, query_count, reason, submitted_at, resolved_at, created_at
			  FROM critical_submissions WHERE entry_id = $1`

	var submission outboxDomain.CriticalSubmission
	var state string

	err := querier.QueryRowContext(ctx, query, entryID).Scan(
		&submission.EntryID,
		&state,
		&submission.QueryCount,
		&submission.Reason,
		&submission.SubmittedAt,
		&submission.ResolvedAt,
		&submission.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outboxDomain.ErrSubmissionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get critical submission")
	}

	submission.State = outboxDomain.CriticalState(state)
	return &submission, nil
}

// Update persists the submission's state machine fields.
func (r *PostgreSQLCriticalRepository) Update(
	ctx context.Context,
	submission *outboxDomain.CriticalSubmission,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE critical_submissions
			  SET state = $1, query_count = $2, reason = $3, submitted_at = $4, resolved_at = $5
			  WHERE entry_id = $6`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(submission.State),
		submission.QueryCount,
		submission.Reason,
		submission.SubmittedAt,
		submission.ResolvedAt,
		submission.EntryID,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update critical submission")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read rows affected")
	}
	if count == 0 {
		return outboxDomain.ErrSubmissionNotFound
	}
	return nil
}

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

// SQLiteCriticalRepository implements critical submission persistence for SQLite.
type SQLiteCriticalRepository struct {
	db *sql.DB
}

// NewSQLiteCriticalRepository creates a new SQLite critical submission repository.
func NewSQLiteCriticalRepository(db *sql.DB) *SQLiteCriticalRepository {
	return &SQLiteCriticalRepository{db: db}
}

// Create inserts a new critical submission row for an outbox entry.
// Call inside the enqueue transaction.
func (r *SQLiteCriticalRepository) Create(
	ctx context.Context,
	submission *outboxDomain.CriticalSubmission,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO critical_submissions (entry_id, state, query_count, reason, submitted_at,
				resolved_at, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		submission.EntryID.String(),
		string(submission.State),
		submission.QueryCount,
		submission.Reason,
		nullableTimeToUnix(submission.SubmittedAt),
		nullableTimeToUnix(submission.ResolvedAt),
		timeToUnix(submission.CreatedAt),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create critical submission")
	}
	return nil
}

// Get retrieves the critical submission for an outbox entry.
func (r *SQLiteCriticalRepository) Get(
	ctx context.Context,
	entryID uuid.UUID,
) (*outboxDomain.CriticalSubmission, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT entry_id, state, query_count, reason, submitted_at, resolved_at, created_at
			  FROM critical_submissions WHERE entry_id = ?`

	var submission outboxDomain.CriticalSubmission
	var rawID, state string
	var submittedAt, resolvedAt sql.NullInt64
	var createdAt int64

	err := querier.QueryRowContext(ctx, query, entryID.String()).Scan(
		&rawID,
		&state,
		&submission.QueryCount,
		&submission.Reason,
		&submittedAt,
		&resolvedAt,
		&createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outboxDomain.ErrSubmissionNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get critical submission")
	}

	parsed, err := uuid.Parse(rawID)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse critical submission id")
	}
	submission.EntryID = parsed
	submission.State = outboxDomain.CriticalState(state)
	submission.SubmittedAt = nullableUnixToTime(submittedAt)
	submission.ResolvedAt = nullableUnixToTime(resolvedAt)
	submission.CreatedAt = unixToTime(createdAt)
	return &submission, nil
}

// Update persists the submission's state machine fields.
func (r *SQLiteCriticalRepository) Update(
	ctx context.Context,
	submission *outboxDomain.CriticalSubmission,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE critical_submissions
			  SET state = ?, query_count = ?, reason = ?, submitted_at = ?, resolved_at = ?
			  WHERE entry_id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(submission.State),
		submission.QueryCount,
		submission.Reason,
		nullableTimeToUnix(submission.SubmittedAt),
		nullableTimeToUnix(submission.ResolvedAt),
		submission.EntryID.String(),
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

package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
)

// PostgreSQLConflictRepository implements conflict record persistence for PostgreSQL.
type PostgreSQLConflictRepository struct {
	db *sql.DB
}

// NewPostgreSQLConflictRepository creates a new PostgreSQL conflict record repository.
func NewPostgreSQLConflictRepository(db *sql.DB) *PostgreSQLConflictRepository {
	return &PostgreSQLConflictRepository{db: db}
}

// Create inserts a new conflict record.
func (r *PostgreSQLConflictRepository) Create(ctx context.Context, record *conflictDomain.Record) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO conflict_records (id, entry_id, entity_type, entity_id, local_payload,
				remote_payload, status, resolution, detected_at, resolved_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID,
		record.EntryID,
		record.EntityType,
		record.EntityID,
		record.LocalPayload,
		record.RemotePayload,
		string(record.Status),
		resolutionToNullString(record.Resolution),
		record.DetectedAt,
		record.ResolvedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create conflict record")
	}
	return nil
}

// Get retrieves a conflict record by id.
func (r *PostgreSQLConflictRepository) Get(ctx context.Context, id uuid.UUID) (*conflictDomain.Record, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entry_id, entity_type, entity_id, local_payload, remote_payload, status,
				resolution, detected_at, resolved_at
			  FROM conflict_records WHERE id = $1`

	record, err := scanPostgresConflict(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conflictDomain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get conflict record")
	}
	return record, nil
}

// ListOpen retrieves open conflicts, oldest first.
func (r *PostgreSQLConflictRepository) ListOpen(
	ctx context.Context,
	limit int,
) ([]*conflictDomain.Record, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entry_id, entity_type, entity_id, local_payload, remote_payload, status,
				resolution, detected_at, resolved_at
			  FROM conflict_records WHERE status = $1 ORDER BY detected_at ASC LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, string(conflictDomain.StatusOpen), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list open conflicts")
	}
	defer func() { _ = rows.Close() }()

	var records []*conflictDomain.Record
	for rows.Next() {
		record, err := scanPostgresConflict(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan conflict record")
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate conflict records")
	}
	return records, nil
}

// Resolve closes an open conflict with the given winner.
func (r *PostgreSQLConflictRepository) Resolve(
	ctx context.Context,
	id uuid.UUID,
	resolution conflictDomain.Resolution,
	now time.Time,
) error {
	return r.close(ctx, id, conflictDomain.StatusResolved, &resolution, now)
}

// Escalate marks an open conflict as needing operator attention.
func (r *PostgreSQLConflictRepository) Escalate(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.close(ctx, id, conflictDomain.StatusEscalated, nil, now)
}

func (r *PostgreSQLConflictRepository) close(
	ctx context.Context,
	id uuid.UUID,
	status conflictDomain.Status,
	resolution *conflictDomain.Resolution,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE conflict_records SET status = $1, resolution = $2, resolved_at = $3
			  WHERE id = $4 AND status = $5`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(status),
		resolutionToNullString(resolution),
		now,
		id,
		string(conflictDomain.StatusOpen),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to close conflict record")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read rows affected")
	}
	if count == 0 {
		if _, err := r.Get(ctx, id); err != nil {
			return err
		}
		return conflictDomain.ErrAlreadyResolved
	}
	return nil
}

func scanPostgresConflict(row rowScanner) (*conflictDomain.Record, error) {
	var record conflictDomain.Record
	var status string
	var resolution sql.NullString
	var resolvedAt sql.NullTime

	err := row.Scan(
		&record.ID,
		&record.EntryID,
		&record.EntityType,
		&record.EntityID,
		&record.LocalPayload,
		&record.RemotePayload,
		&status,
		&resolution,
		&record.DetectedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	record.Status = conflictDomain.Status(status)
	if resolution.Valid {
		value := conflictDomain.Resolution(resolution.String)
		record.Resolution = &value
	}
	if resolvedAt.Valid {
		value := resolvedAt.Time.UTC()
		record.ResolvedAt = &value
	}
	return &record, nil
}

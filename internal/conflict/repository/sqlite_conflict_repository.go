// Package repository provides conflict record persistence for SQLite and
// PostgreSQL. SQLite stores timestamps as integer unix nanoseconds.
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

// SQLiteConflictRepository implements conflict record persistence for SQLite.
type SQLiteConflictRepository struct {
	db *sql.DB
}

// NewSQLiteConflictRepository creates a new SQLite conflict record repository.
func NewSQLiteConflictRepository(db *sql.DB) *SQLiteConflictRepository {
	return &SQLiteConflictRepository{db: db}
}

// Create inserts a new conflict record.
func (r *SQLiteConflictRepository) Create(ctx context.Context, record *conflictDomain.Record) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO conflict_records (id, entry_id, entity_type, entity_id, local_payload,
				remote_payload, status, resolution, detected_at, resolved_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		record.ID.String(),
		record.EntryID.String(),
		record.EntityType,
		record.EntityID,
		record.LocalPayload,
		record.RemotePayload,
		string(record.Status),
		resolutionToNullString(record.Resolution),
		record.DetectedAt.UnixNano(),
		nullableTimeToUnix(record.ResolvedAt),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create conflict record")
	}
	return nil
}

// Get retrieves a conflict record by id.
func (r *SQLiteConflictRepository) Get(ctx context.Context, id uuid.UUID) (*conflictDomain.Record, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entry_id, entity_type, entity_id, local_payload, remote_payload, status,
				resolution, detected_at, resolved_at
			  FROM conflict_records WHERE id = ?`

	record, err := scanSQLiteConflict(querier.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, conflictDomain.ErrRecordNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get conflict record")
	}
	return record, nil
}

// ListOpen retrieves open conflicts, oldest first.
func (r *SQLiteConflictRepository) ListOpen(ctx context.Context, limit int) ([]*conflictDomain.Record, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, entry_id, entity_type, entity_id, local_payload, remote_payload, status,
				resolution, detected_at, resolved_at
			  FROM conflict_records WHERE status = ? ORDER BY detected_at ASC LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, string(conflictDomain.StatusOpen), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list open conflicts")
	}
	defer func() { _ = rows.Close() }()

	var records []*conflictDomain.Record
	for rows.Next() {
		record, err := scanSQLiteConflict(rows)
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
func (r *SQLiteConflictRepository) Resolve(
	ctx context.Context,
	id uuid.UUID,
	resolution conflictDomain.Resolution,
	now time.Time,
) error {
	return r.close(ctx, id, conflictDomain.StatusResolved, &resolution, now)
}

// Escalate marks an open conflict as needing operator attention.
func (r *SQLiteConflictRepository) Escalate(ctx context.Context, id uuid.UUID, now time.Time) error {
	return r.close(ctx, id, conflictDomain.StatusEscalated, nil, now)
}

func (r *SQLiteConflictRepository) close(
	ctx context.Context,
	id uuid.UUID,
	status conflictDomain.Status,
	resolution *conflictDomain.Resolution,
	now time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE conflict_records SET status = ?, resolution = ?, resolved_at = ?
			  WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(status),
		resolutionToNullString(resolution),
		now.UnixNano(),
		id.String(),
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

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteConflict(row rowScanner) (*conflictDomain.Record, error) {
	var record conflictDomain.Record
	var id, entryID, status string
	var resolution sql.NullString
	var detectedAt int64
	var resolvedAt sql.NullInt64

	err := row.Scan(
		&id,
		&entryID,
		&record.EntityType,
		&record.EntityID,
		&record.LocalPayload,
		&record.RemotePayload,
		&status,
		&resolution,
		&detectedAt,
		&resolvedAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	parsedEntry, err := uuid.Parse(entryID)
	if err != nil {
		return nil, err
	}

	record.ID = parsed
	record.EntryID = parsedEntry
	record.Status = conflictDomain.Status(status)
	record.DetectedAt = time.Unix(0, detectedAt).UTC()
	if resolution.Valid {
		value := conflictDomain.Resolution(resolution.String)
		record.Resolution = &value
	}
	if resolvedAt.Valid {
		value := time.Unix(0, resolvedAt.Int64).UTC()
		record.ResolvedAt = &value
	}
	return &record, nil
}

func resolutionToNullString(resolution *conflictDomain.Resolution) sql.NullString {
	if resolution == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: string(*resolution), Valid: true}
}

func nullableTimeToUnix(value *time.Time) sql.NullInt64 {
	if value == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: value.UnixNano(), Valid: true}
}

// Package repository implements data persistence for the write-ahead outbox,
// the idempotency ledger, critical submissions and the inbound watermark.
//
// Provides SQLite and PostgreSQL implementations with transaction support via
// database.GetTx(). SQLite stores timestamps as unix nanoseconds, PostgreSQL
// uses native TIMESTAMPTZ columns.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// sqliteEntryColumns is the canonical column list for outbox entry scans.
const sqliteEntryColumns = `id, entity_type, entity_id, operation, payload, priority, sequence,
	status, attempt_count, next_attempt_at, lease_expires_at, last_attempt_at, last_error, created_at`

// SQLiteEntryRepository implements outbox entry persistence for SQLite.
type SQLiteEntryRepository struct {
	db *sql.DB
}

// NewSQLiteEntryRepository creates a new SQLite outbox entry repository.
func NewSQLiteEntryRepository(db *sql.DB) *SQLiteEntryRepository {
	return &SQLiteEntryRepository{db: db}
}

// Create inserts a new outbox entry. Call inside the caller's transaction so
// the business write and its intent-to-sync commit or roll back together.
func (r *SQLiteEntryRepository) Create(ctx context.Context, entry *outboxDomain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_entries (id, entity_type, entity_id, operation, payload, priority,
				sequence, status, attempt_count, next_attempt_at, lease_expires_at, last_attempt_at,
				last_error, created_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.ID.String(),
		entry.EntityType,
		entry.EntityID,
		string(entry.Operation),
		entry.Payload,
		entry.Priority,
		entry.Sequence,
		string(entry.Status),
		entry.AttemptCount,
		timeToUnix(entry.NextAttemptAt),
		nullableTimeToUnix(entry.LeaseExpiresAt),
		nullableTimeToUnix(entry.LastAttemptAt),
		entry.LastError,
		timeToUnix(entry.CreatedAt),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox entry")
	}
	return nil
}

// NextSequence returns the next per-entity sequence number. Call inside the
// enqueue transaction; the UNIQUE (entity_type, entity_id, sequence)
// constraint fails the transaction if two writers race.
func (r *SQLiteEntryRepository) NextSequence(
	ctx context.Context,
	entityType, entityID string,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COALESCE(MAX(sequence), 0) + 1 FROM outbox_entries
			  WHERE entity_type = ? AND entity_id = ?`

	var sequence int64
	if err := querier.QueryRowContext(ctx, query, entityType, entityID).Scan(&sequence); err != nil {
		return 0, apperrors.Wrap(err, "failed to compute next sequence")
	}
	return sequence, nil
}

// Get retrieves an outbox entry by ID.
func (r *SQLiteEntryRepository) Get(ctx context.Context, id uuid.UUID) (*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + sqliteEntryColumns + ` FROM outbox_entries WHERE id = ?`

	entry, err := scanSQLiteEntry(querier.QueryRowContext(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outboxDomain.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox entry")
	}
	return entry, nil
}

// PeekReady returns pending entries eligible for transmission at the given
// time, ordered by (priority desc, sequence asc, created_at asc).
//
// An entry is withheld while any earlier-sequence sibling for the same
// entity key is unresolved, which both enforces per-entity ordering and
// guarantees at most one in-flight entry per key.
func (r *SQLiteEntryRepository) PeekReady(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + sqliteEntryColumns + `
			  FROM outbox_entries e
			  WHERE e.status = ?
			    AND e.next_attempt_at <= ?
			    AND NOT EXISTS (
			      SELECT 1 FROM outbox_entries b
			      WHERE b.entity_type = e.entity_type
			        AND b.entity_id = e.entity_id
			        AND b.sequence < e.sequence
			        AND b.status != ?
			    )
			  ORDER BY e.priority DESC, e.sequence ASC, e.created_at ASC
			  LIMIT ?`

	rows, err := querier.QueryContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		timeToUnix(now),
		string(outboxDomain.EntryStatusDone),
		limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to peek ready entries")
	}
	defer rows.Close() //nolint:errcheck

	return collectSQLiteEntries(rows)
}

// UnresolvedByEntity returns the oldest entry for an entity key that has not
// reached Done, or nil when every local write for the key is retired. The
// inbound applier uses this to detect a pending local edit before overwriting
// the local copy with a central change.
func (r *SQLiteEntryRepository) UnresolvedByEntity(
	ctx context.Context,
	entityType, entityID string,
) (*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + sqliteEntryColumns + `
			  FROM outbox_entries
			  WHERE entity_type = ? AND entity_id = ? AND status != ?
			  ORDER BY sequence ASC LIMIT 1`

	entry, err := scanSQLiteEntry(querier.QueryRowContext(
		ctx, query, entityType, entityID, string(outboxDomain.EntryStatusDone),
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, apperrors.Wrap(err, "failed to find unresolved entry")
	}
	return entry, nil
}

// ClaimInFlight atomically claims a pending entry for transmission, taking a
// lease. Returns ErrEntryNotClaimed when another worker already holds the
// entry or it left Pending.
func (r *SQLiteEntryRepository) ClaimInFlight(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
	leaseExpiresAt time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = ?, lease_expires_at = ?, last_attempt_at = ?, attempt_count = attempt_count + 1
			  WHERE id = ? AND status = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusInFlight),
		timeToUnix(leaseExpiresAt),
		timeToUnix(now),
		id.String(),
		string(outboxDomain.EntryStatusPending),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to claim outbox entry")
	}
	return claimed(result)
}

// MarkDone marks an entry as acknowledged by the central authority and
// releases its lease.
func (r *SQLiteEntryRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, outboxDomain.EntryStatusDone, nil, nil)
}

// MarkFailed records a transient failure and reschedules the entry for the
// given next attempt time.
func (r *SQLiteEntryRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	cause string,
	nextAttemptAt time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = ?, lease_expires_at = NULL, last_error = ?, next_attempt_at = ?
			  WHERE id = ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		cause,
		timeToUnix(nextAttemptAt),
		id.String(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox entry failed")
	}
	return affected(result)
}

// MarkConflict parks an entry for the conflict resolver.
func (r *SQLiteEntryRepository) MarkConflict(ctx context.Context, id uuid.UUID, cause string) error {
	return r.setStatus(ctx, id, outboxDomain.EntryStatusConflict, &cause, nil)
}

// MarkQuarantined moves an entry to quarantine for operator attention.
func (r *SQLiteEntryRepository) MarkQuarantined(ctx context.Context, id uuid.UUID, cause string) error {
	return r.setStatus(ctx, id, outboxDomain.EntryStatusQuarantined, &cause, nil)
}

// Requeue returns a quarantined or conflicted entry to Pending with a fresh
// attempt budget. Operator action.
func (r *SQLiteEntryRepository) Requeue(ctx context.Context, id uuid.UUID, now time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = ?, attempt_count = 0, lease_expires_at = NULL, last_error = NULL, next_attempt_at = ?
			  WHERE id = ? AND status IN (?, ?)`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		timeToUnix(now),
		id.String(),
		string(outboxDomain.EntryStatusQuarantined),
		string(outboxDomain.EntryStatusConflict),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to requeue outbox entry")
	}
	return affected(result)
}

// ReleaseExpiredLeases reverts InFlight entries whose lease expired back to
// Pending so a restarted worker can claim them again. Returns the number of
// entries released.
func (r *SQLiteEntryRepository) ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = ?, lease_expires_at = NULL
			  WHERE status = ? AND lease_expires_at <= ?`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		string(outboxDomain.EntryStatusInFlight),
		timeToUnix(now),
	)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to release expired leases")
	}
	released, err := result.RowsAffected()
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to count released leases")
	}
	return released, nil
}

// ListByStatus returns entries in the given status, oldest first.
func (r *SQLiteEntryRepository) ListByStatus(
	ctx context.Context,
	status outboxDomain.EntryStatus,
	limit int,
) ([]*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + sqliteEntryColumns + `
			  FROM outbox_entries WHERE status = ? ORDER BY created_at ASC LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outbox entries")
	}
	defer rows.Close() //nolint:errcheck

	return collectSQLiteEntries(rows)
}

// Stats summarizes the backlog for dashboards and alerting.
func (r *SQLiteEntryRepository) Stats(ctx context.Context) (*outboxDomain.QueueStats, error) {
	querier := database.GetTx(ctx, r.db)

	stats := &outboxDomain.QueueStats{}

	query := `SELECT status, COUNT(*) FROM outbox_entries GROUP BY status`
	rows, err := querier.QueryContext(ctx, query)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to count outbox entries")
	}
	defer rows.Close() //nolint:errcheck

	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			return nil, apperrors.Wrap(err, "failed to scan status count")
		}
		switch outboxDomain.EntryStatus(status) {
		case outboxDomain.EntryStatusPending:
			stats.Pending = count
		case outboxDomain.EntryStatusInFlight:
			stats.InFlight = count
		case outboxDomain.EntryStatusDone:
			stats.Done = count
		case outboxDomain.EntryStatusConflict:
			stats.Conflict = count
		case outboxDomain.EntryStatusQuarantined:
			stats.Quarantined = count
		}
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate status counts")
	}

	var oldest sql.NullInt64
	err = querier.QueryRowContext(
		ctx,
		`SELECT MIN(created_at) FROM outbox_entries WHERE status = ?`,
		string(outboxDomain.EntryStatusPending),
	).Scan(&oldest)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find oldest pending entry")
	}
	stats.OldestPending = nullableUnixToTime(oldest)

	var lastDone sql.NullInt64
	err = querier.QueryRowContext(
		ctx,
		`SELECT MAX(last_attempt_at) FROM outbox_entries WHERE status = ?`,
		string(outboxDomain.EntryStatusDone),
	).Scan(&lastDone)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find last synced entry")
	}
	stats.LastDoneAt = nullableUnixToTime(lastDone)

	return stats, nil
}

// setStatus applies a terminal or parked status and clears the lease.
func (r *SQLiteEntryRepository) setStatus(
	ctx context.Context,
	id uuid.UUID,
	status outboxDomain.EntryStatus,
	cause *string,
	_ *time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = ?, lease_expires_at = NULL, last_error = COALESCE(?, last_error)
			  WHERE id = ?`

	result, err := querier.ExecContext(ctx, query, string(status), cause, id.String())
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox entry status")
	}
	return affected(result)
}

// scanner abstracts *sql.Row and *sql.Rows for shared scan code.
type scanner interface {
	Scan(dest ...any) error
}

func scanSQLiteEntry(s scanner) (*outboxDomain.Entry, error) {
	var entry outboxDomain.Entry
	var id, operation, status string
	var nextAttemptAt, createdAt int64
	var leaseExpiresAt, lastAttemptAt sql.NullInt64

	err := s.Scan(
		&id,
		&entry.EntityType,
		&entry.EntityID,
		&operation,
		&entry.Payload,
		&entry.Priority,
		&entry.Sequence,
		&status,
		&entry.AttemptCount,
		&nextAttemptAt,
		&leaseExpiresAt,
		&lastAttemptAt,
		&entry.LastError,
		&createdAt,
	)
	if err != nil {
		return nil, err
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, err
	}
	entry.ID = parsed
	entry.Operation = outboxDomain.Operation(operation)
	entry.Status = outboxDomain.EntryStatus(status)
	entry.NextAttemptAt = unixToTime(nextAttemptAt)
	entry.LeaseExpiresAt = nullableUnixToTime(leaseExpiresAt)
	entry.LastAttemptAt = nullableUnixToTime(lastAttemptAt)
	entry.CreatedAt = unixToTime(createdAt)
	return &entry, nil
}

func collectSQLiteEntries(rows *sql.Rows) ([]*outboxDomain.Entry, error) {
	var entries []*outboxDomain.Entry
	for rows.Next() {
		entry, err := scanSQLiteEntry(rows)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan outbox entry")
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate outbox entries")
	}
	return entries, nil
}

// affected maps zero updated rows to ErrEntryNotFound.
func affected(result sql.Result) error {
	count, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read rows affected")
	}
	if count == 0 {
		return outboxDomain.ErrEntryNotFound
	}
	return nil
}

// claimed maps zero updated rows to ErrEntryNotClaimed.
func claimed(result sql.Result) error {
	count, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read rows affected")
	}
	if count == 0 {
		return outboxDomain.ErrEntryNotClaimed
	}
	return nil
}

// timeToUnix converts a time to the unix-nanosecond representation stored in
// SQLite integer columns.
func timeToUnix(t time.Time) int64 {
	return t.UnixNano()
}

func unixToTime(n int64) time.Time {
	return time.Unix(0, n).UTC()
}

func nullableTimeToUnix(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UnixNano()
}

func nullableUnixToTime(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := unixToTime(n.Int64)
	return &t
}

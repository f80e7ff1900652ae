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

const postgresEntryColumns = `id, entity_type, entity_id, operation, payload, priority, sequence,
	status, attempt_count, next_attempt_at, lease_expires_at, last_attempt_at, last_error, created_at`

// PostgreSQLEntryRepository implements outbox entry persistence for PostgreSQL.
type PostgreSQLEntryRepository struct {
	db *sql.DB
}

// NewPostgreSQLEntryRepository creates a new PostgreSQL outbox entry repository.
func NewPostgreSQLEntryRepository(db *sql.DB) *PostgreSQLEntryRepository {
	return &PostgreSQLEntryRepository{db: db}
}

// Create inserts a new outbox entry. Call inside the caller's transaction so
// the business write and its intent-to-sync commit or roll back together.
func (r *PostgreSQLEntryRepository) Create(ctx context.Context, entry *outboxDomain.Entry) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO outbox_entries (id, entity_type, entity_id, operation, payload, priority,
				sequence, status, attempt_count, next_attempt_at, lease_expires_at, last_attempt_at,
				last_error, created_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := querier.ExecContext(
		ctx,
		query,
		entry.ID,
		entry.EntityType,
		entry.EntityID,
		string(entry.Operation),
		entry.Payload,
		entry.Priority,
		entry.Sequence,
		string(entry.Status),
		entry.AttemptCount,
		entry.NextAttemptAt,
		entry.LeaseExpiresAt,
		entry.LastAttemptAt,
		entry.LastError,
		entry.CreatedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to create outbox entry")
	}
	return nil
}

// NextSequence returns the next per-entity sequence number. Call inside the
// enqueue transaction; the UNIQUE (entity_type, entity_id, sequence)
// constraint fails the transaction if two writers race.
func (r *PostgreSQLEntryRepository) NextSequence(
	ctx context.Context,
	entityType, entityID string,
) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT COALESCE(MAX(sequence), 0) + 1 FROM outbox_entries
			  WHERE entity_type = $1 AND entity_id = $2`

	var sequence int64
	if err := querier.QueryRowContext(ctx, query, entityType, entityID).Scan(&sequence); err != nil {
		return 0, apperrors.Wrap(err, "failed to compute next sequence")
	}
	return sequence, nil
}

// Get retrieves an outbox entry by ID.
func (r *PostgreSQLEntryRepository) Get(ctx context.Context, id uuid.UUID) (*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresEntryColumns + ` FROM outbox_entries WHERE id = $1`

	entry, err := scanPostgresEntry(querier.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, outboxDomain.ErrEntryNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get outbox entry")
	}
	return entry, nil
}

// PeekReady returns pending entries eligible for transmission at the given
// time, ordered by (priority desc, sequence asc, created_at asc), withholding
// entries whose earlier-sequence siblings are unresolved.
func (r *PostgreSQLEntryRepository) PeekReady(
	ctx context.Context,
	now time.Time,
	limit int,
) ([]*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresEntryColumns + `
			  FROM outbox_entries e
			  WHERE e.status = $1
			    AND e.next_attempt_at <= $2
			    AND NOT EXISTS (
			      SELECT 1 FROM outbox_entries b
			      WHERE b.entity_type = e.entity_type
			        AND b.entity_id = e.entity_id
			        AND b.sequence < e.sequence
			        AND b.status != $3
			    )
			  ORDER BY e.priority DESC, e.sequence ASC, e.created_at ASC
			  LIMIT $4`

	rows, err := querier.QueryContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		now,
		string(outboxDomain.EntryStatusDone),
		limit,
	)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to peek ready entries")
	}
	defer rows.Close() //nolint:errcheck

	return collectPostgresEntries(rows)
}

// UnresolvedByEntity returns the oldest entry for an entity key that has not
// reached Done, or nil when every local write for the key is retired.
func (r *PostgreSQLEntryRepository) UnresolvedByEntity(
	ctx context.Context,
	entityType, entityID string,
) (*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresEntryColumns + `
			  FROM outbox_entries
			  WHERE entity_type = $1 AND entity_id = $2 AND status != $3
			  ORDER BY sequence ASC LIMIT 1`

	entry, err := scanPostgresEntry(querier.QueryRowContext(
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
// lease. Returns ErrEntryNotClaimed when the conditional update misses.
func (r *PostgreSQLEntryRepository) ClaimInFlight(
	ctx context.Context,
	id uuid.UUID,
	now time.Time,
	leaseExpiresAt time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, lease_expires_at = $2, last_attempt_at = $3, attempt_count = attempt_count + 1
			  WHERE id = $4 AND status = $5`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusInFlight),
		leaseExpiresAt,
		now,
		id,
		string(outboxDomain.EntryStatusPending),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to claim outbox entry")
	}
	return claimed(result)
}

// MarkDone marks an entry as acknowledged and releases its lease.
func (r *PostgreSQLEntryRepository) MarkDone(ctx context.Context, id uuid.UUID) error {
	return r.setStatus(ctx, id, outboxDomain.EntryStatusDone, nil)
}

// MarkFailed records a transient failure and reschedules the entry.
func (r *PostgreSQLEntryRepository) MarkFailed(
	ctx context.Context,
	id uuid.UUID,
	cause string,
	nextAttemptAt time.Time,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, lease_expires_at = NULL, last_error = $2, next_attempt_at = $3
			  WHERE id = $4`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		cause,
		nextAttemptAt,
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to mark outbox entry failed")
	}
	return affected(result)
}

// MarkConflict parks an entry for the conflict resolver.
func (r *PostgreSQLEntryRepository) MarkConflict(ctx context.Context, id uuid.UUID, cause string) error {
	return r.setStatus(ctx, id, outboxDomain.EntryStatusConflict, &cause)
}

// MarkQuarantined moves an entry to quarantine for operator attention.
func (r *PostgreSQLEntryRepository) MarkQuarantined(ctx context.Context, id uuid.UUID, cause string) error {
	return r.setStatus(ctx, id, outboxDomain.EntryStatusQuarantined, &cause)
}

// Requeue returns a quarantined or conflicted entry to Pending with a fresh
// attempt budget. Operator action.
func (r *PostgreSQLEntryRepository) Requeue(ctx context.Context, id uuid.UUID, now time.Time) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, attempt_count = 0, lease_expires_at = NULL, last_error = NULL, next_attempt_at = $2
			  WHERE id = $3 AND status IN ($4, $5)`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		now,
		id,
		string(outboxDomain.EntryStatusQuarantined),
		string(outboxDomain.EntryStatusConflict),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to requeue outbox entry")
	}
	return affected(result)
}

// ReleaseExpiredLeases reverts InFlight entries whose lease expired back to
// Pending. Returns the number of entries released.
func (r *PostgreSQLEntryRepository) ReleaseExpiredLeases(ctx context.Context, now time.Time) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, lease_expires_at = NULL
			  WHERE status = $2 AND lease_expires_at <= $3`

	result, err := querier.ExecContext(
		ctx,
		query,
		string(outboxDomain.EntryStatusPending),
		string(outboxDomain.EntryStatusInFlight),
		now,
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
func (r *PostgreSQLEntryRepository) ListByStatus(
	ctx context.Context,
	status outboxDomain.EntryStatus,
	limit int,
) ([]*outboxDomain.Entry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT ` + postgresEntryColumns + `
			  FROM outbox_entries WHERE status = $1 ORDER BY created_at ASC LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, string(status), limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list outbox entries")
	}
	defer rows.Close() //nolint:errcheck

	return collectPostgresEntries(rows)
}

// Stats summarizes the backlog for dashboards and alerting.
func (r *PostgreSQLEntryRepository) Stats(ctx context.Context) (*outboxDomain.QueueStats, error) {
	querier := database.GetTx(ctx, r.db)

	stats := &outboxDomain.QueueStats{}

	rows, err := querier.QueryContext(ctx, `SELECT status, COUNT(*) FROM outbox_entries GROUP BY status`)
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

	err = querier.QueryRowContext(
		ctx,
		`SELECT MIN(created_at) FROM outbox_entries WHERE status = $1`,
		string(outboxDomain.EntryStatusPending),
	).Scan(&stats.OldestPending)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find oldest pending entry")
	}

	err = querier.QueryRowContext(
		ctx,
		`SELECT MAX(last_attempt_at) FROM outbox_entries WHERE status = $1`,
		string(outboxDomain.EntryStatusDone),
	).Scan(&stats.LastDoneAt)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to find last synced entry")
	}

	return stats, nil
}

func (r *PostgreSQLEntryRepository) setStatus(
	ctx context.Context,
	id uuid.UUID,
	status outboxDomain.EntryStatus,
	cause *string,
) error {
	querier := database.GetTx(ctx, r.db)

	query := `UPDATE outbox_entries
			  SET status = $1, lease_expires_at = NULL, last_error = COALESCE($2, last_error)
			  WHERE id = $3`

	result, err := querier.ExecContext(ctx, query, string(status), cause, id)
	if err != nil {
		return apperrors.Wrap(err, "failed to update outbox entry status")
	}
	return affected(result)
}

func scanPostgresEntry(s scanner) (*outboxDomain.Entry, error) {
	var entry outboxDomain.Entry
	var operation, status string

	err := s.Scan(
		&entry.ID,
		&entry.EntityType,
		&entry.EntityID,
		&operation,
		&entry.Payload,
		&entry.Priority,
		&entry.Sequence,
		&status,
		&entry.AttemptCount,
		&entry.NextAttemptAt,
		&entry.LeaseExpiresAt,
		&entry.LastAttemptAt,
		&entry.LastError,
		&entry.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	entry.Operation = outboxDomain.Operation(operation)
	entry.Status = outboxDomain.EntryStatus(status)
	return &entry, nil
}

func collectPostgresEntries(rows *sql.Rows) ([]*outboxDomain.Entry, error) {
	var entries []*outboxDomain.Entry
	for rows.Next() {
		entry, err := scanPostgresEntry(rows)
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

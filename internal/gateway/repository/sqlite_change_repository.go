package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// SQLiteChangeRepository implements the applied-change ledger for SQLite.
type SQLiteChangeRepository struct {
	db *sql.DB
}

// NewSQLiteChangeRepository creates a new SQLite applied-change repository.
func NewSQLiteChangeRepository(db *sql.DB) *SQLiteChangeRepository {
	return &SQLiteChangeRepository{db: db}
}

// Create records a verdict for an idempotency key.
func (r *SQLiteChangeRepository) Create(ctx context.Context, change *gatewayDomain.AppliedChange) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO applied_changes (idempotency_key, node_id, entity_type, entity_id, operation,
				payload, result, reason, feed_position, applied_at)
			  VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		change.IdempotencyKey.String(),
		change.NodeID,
		change.EntityType,
		change.EntityID,
		change.Operation,
		change.Payload,
		string(change.Result),
		change.Reason,
		change.FeedPosition,
		change.AppliedAt.UnixNano(),
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to record applied change")
	}
	return nil
}

// Get retrieves the recorded verdict for an idempotency key.
func (r *SQLiteChangeRepository) Get(ctx context.Context, key uuid.UUID) (*gatewayDomain.AppliedChange, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT idempotency_key, node_id, entity_type, entity_id, operation, payload, result,
				reason, feed_position, applied_at
			  FROM applied_changes WHERE idempotency_key = ?`

	var change gatewayDomain.AppliedChange
	var key2, result string
	var appliedAt int64

	err := querier.QueryRowContext(ctx, query, key.String()).Scan(
		&key2,
		&change.NodeID,
		&change.EntityType,
		&change.EntityID,
		&change.Operation,
		&change.Payload,
		&result,
		&change.Reason,
		&change.FeedPosition,
		&appliedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gatewayDomain.ErrChangeNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get applied change")
	}

	parsed, err := uuid.Parse(key2)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to parse idempotency key")
	}
	change.IdempotencyKey = parsed
	change.Result = gatewayDomain.ChangeResult(result)
	change.AppliedAt = time.Unix(0, appliedAt).UTC()
	return &change, nil
}

// NextFeedPosition returns the next position in the accepted-change feed.
// Call inside the ingestion transaction.
func (r *SQLiteChangeRepository) NextFeedPosition(ctx context.Context) (int64, error) {
	querier := database.GetTx(ctx, r.db)

	var position int64
	err := querier.QueryRowContext(
		ctx,
		`SELECT COALESCE(MAX(feed_position), 0) + 1 FROM applied_changes`,
	).Scan(&position)
	if err != nil {
		return 0, apperrors.Wrap(err, "failed to compute next feed position")
	}
	return position, nil
}

// ListAccepted retrieves accepted changes after the given feed position.
func (r *SQLiteChangeRepository) ListAccepted(
	ctx context.Context,
	after int64,
	limit int,
) ([]*gatewayDomain.FeedEntry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT feed_position, entity_type, entity_id, operation, payload, node_id, applied_at
			  FROM applied_changes
			  WHERE result = 'accepted' AND feed_position > ?
			  ORDER BY feed_position ASC LIMIT ?`

	rows, err := querier.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list feed entries")
	}
	defer func() { _ = rows.Close() }()

	var entries []*gatewayDomain.FeedEntry
	for rows.Next() {
		var entry gatewayDomain.FeedEntry
		var updatedAt int64
		err := rows.Scan(
			&entry.Position,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Operation,
			&entry.Payload,
			&entry.UpdatedBy,
			&updatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan feed entry")
		}
		entry.UpdatedAt = time.Unix(0, updatedAt).UTC()
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate feed entries")
	}
	return entries, nil
}

package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/google/uuid"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// PostgreSQLChangeRepository implements the applied-change ledger for PostgreSQL.
type PostgreSQLChangeRepository struct {
	db *sql.DB
}

// NewPostgreSQLChangeRepository creates a new PostgreSQL applied-change repository.
func NewPostgreSQLChangeRepository(db *sql.DB) *PostgreSQLChangeRepository {
	return &PostgreSQLChangeRepository{db: db}
}

// Create records a verdict for an idempotency key.
func (r *PostgreSQLChangeRepository) Create(ctx context.Context, change *gatewayDomain.AppliedChange) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO applied_changes (idempotency_key, node_id, entity_type, entity_id, operation,
				payload, result, reason, feed_position, applied_at)
			  VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`

	_, err := querier.ExecContext(
		ctx,
		query,
		change.IdempotencyKey,
		change.NodeID,
		change.EntityType,
		change.EntityID,
		change.Operation,
		change.Payload,
		string(change.Result),
		change.Reason,
		change.FeedPosition,
		change.AppliedAt,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to record applied change")
	}
	return nil
}

// Get retrieves the recorded verdict for an idempotency key.
func (r *PostgreSQLChangeRepository) Get(ctx context.Context, key uuid.UUID) (*gatewayDomain.AppliedChange, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT idempotency_key, node_id, entity_type, entity_id, operation, payload, result,
				reason, feed_position, applied_at
			  FROM applied_changes WHERE idempotency_key = $1`

	var change gatewayDomain.AppliedChange
	var result string

	err := querier.QueryRowContext(ctx, query, key).Scan(
		&change.IdempotencyKey,
		&change.NodeID,
		&change.EntityType,
		&change.EntityID,
		&change.Operation,
		&change.Payload,
		&result,
		&change.Reason,
		&change.FeedPosition,
		&change.AppliedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gatewayDomain.ErrChangeNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get applied change")
	}

	change.Result = gatewayDomain.ChangeResult(result)
	return &change, nil
}

// NextFeedPosition returns the next position in the accepted-change feed.
// Call inside the ingestion transaction.
func (r *PostgreSQLChangeRepository) NextFeedPosition(ctx context.Context) (int64, error) {
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
func (r *PostgreSQLChangeRepository) ListAccepted(
	ctx context.Context,
	after int64,
	limit int,
) ([]*gatewayDomain.FeedEntry, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT feed_position, entity_type, entity_id, operation, payload, node_id, applied_at
			  FROM applied_changes
			  WHERE result = 'accepted' AND feed_position > $1
			  ORDER BY feed_position ASC LIMIT $2`

	rows, err := querier.QueryContext(ctx, query, after, limit)
	if err != nil {
		return nil, apperrors.Wrap(err, "failed to list feed entries")
	}
	defer func() { _ = rows.Close() }()

	var entries []*gatewayDomain.FeedEntry
	for rows.Next() {
		var entry gatewayDomain.FeedEntry
		err := rows.Scan(
			&entry.Position,
			&entry.EntityType,
			&entry.EntityID,
			&entry.Operation,
			&entry.Payload,
			&entry.UpdatedBy,
			&entry.UpdatedAt,
		)
		if err != nil {
			return nil, apperrors.Wrap(err, "failed to scan feed entry")
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.Wrap(err, "failed to iterate feed entries")
	}
	return entries, nil
}

// Package repository provides gateway persistence for SQLite and PostgreSQL.
// Small deployments run the gateway on SQLite; PostgreSQL serves multi-store
// installations. SQLite stores timestamps as integer unix nanoseconds.
package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// SQLiteNodeRepository implements node persistence for SQLite.
type SQLiteNodeRepository struct {
	db *sql.DB
}

// NewSQLiteNodeRepository creates a new SQLite node repository.
func NewSQLiteNodeRepository(db *sql.DB) *SQLiteNodeRepository {
	return &SQLiteNodeRepository{db: db}
}

// Create registers a new node.
func (r *SQLiteNodeRepository) Create(ctx context.Context, node *gatewayDomain.Node) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO gateway_nodes (id, key_hash, name, is_active, created_at)
			  VALUES (?, ?, ?, ?, ?)`

	_, err := querier.ExecContext(
		ctx,
		query,
		node.ID,
		node.KeyHash,
		node.Name,
		boolToInt(node.IsActive),
		node.CreatedAt.UnixNano(),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return gatewayDomain.ErrDuplicateNode
		}
		return apperrors.Wrap(err, "failed to create node")
	}
	return nil
}

// Get retrieves a node by id.
func (r *SQLiteNodeRepository) Get(ctx context.Context, id string) (*gatewayDomain.Node, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, key_hash, name, is_active, created_at FROM gateway_nodes WHERE id = ?`

	var node gatewayDomain.Node
	var isActive int
	var createdAt int64

	err := querier.QueryRowContext(ctx, query, id).Scan(
		&node.ID, &node.KeyHash, &node.Name, &isActive, &createdAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gatewayDomain.ErrNodeNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get node")
	}

	node.IsActive = isActive != 0
	node.CreatedAt = time.Unix(0, createdAt).UTC()
	return &node, nil
}

// SetActive enables or disables a node.
func (r *SQLiteNodeRepository) SetActive(ctx context.Context, id string, active bool) error {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE gateway_nodes SET is_active = ? WHERE id = ?`,
		boolToInt(active),
		id,
	)
	if err != nil {
		return apperrors.Wrap(err, "failed to update node")
	}

	count, err := result.RowsAffected()
	if err != nil {
		return apperrors.Wrap(err, "failed to read rows affected")
	}
	if count == 0 {
		return gatewayDomain.ErrNodeNotFound
	}
	return nil
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}

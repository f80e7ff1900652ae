package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/edgepos/edgesync/internal/database"
	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

// PostgreSQLNodeRepository implements node persistence for PostgreSQL.
type PostgreSQLNodeRepository struct {
	db *sql.DB
}

// NewPostgreSQLNodeRepository creates a new PostgreSQL node repository.
func NewPostgreSQLNodeRepository(db *sql.DB) *PostgreSQLNodeRepository {
	return &PostgreSQLNodeRepository{db: db}
}

// Create registers a new node.
func (r *PostgreSQLNodeRepository) Create(ctx context.Context, node *gatewayDomain.Node) error {
	querier := database.GetTx(ctx, r.db)

	query := `INSERT INTO gateway_nodes (id, key_hash, name, is_active, created_at)
			  VALUES ($1, $2, $3, $4, $5)`

	_, err := querier.ExecContext(
		ctx,
		query,
		node.ID,
		node.KeyHash,
		node.Name,
		node.IsActive,
		node.CreatedAt,
	)
	if err != nil {
		if strings.Contains(err.Error(), "duplicate key value") {
			return gatewayDomain.ErrDuplicateNode
		}
		return apperrors.Wrap(err, "failed to create node")
	}
	return nil
}

// Get retrieves a node by id.
func (r *PostgreSQLNodeRepository) Get(ctx context.Context, id string) (*gatewayDomain.Node, error) {
	querier := database.GetTx(ctx, r.db)

	query := `SELECT id, key_hash, name, is_active, created_at FROM gateway_nodes WHERE id = $1`

	var node gatewayDomain.Node
	err := querier.QueryRowContext(ctx, query, id).Scan(
		&node.ID, &node.KeyHash, &node.Name, &node.IsActive, &node.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, gatewayDomain.ErrNodeNotFound
		}
		return nil, apperrors.Wrap(err, "failed to get node")
	}
	return &node, nil
}

// SetActive enables or disables a node.
func (r *PostgreSQLNodeRepository) SetActive(ctx context.Context, id string, active bool) error {
	querier := database.GetTx(ctx, r.db)

	result, err := querier.ExecContext(
		ctx,
		`UPDATE gateway_nodes SET is_active = $1 WHERE id = $2`,
		active,
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

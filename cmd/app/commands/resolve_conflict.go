package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	conflictUseCase "github.com/edgepos/edgesync/internal/conflict/usecase"
)

// RunResolveConflict closes an open conflict with the operator's decision.
// Choosing "local" requeues the node's version for retransmission; choosing
// "remote" retires it and keeps the central version.
//
// Requirements: Database must be migrated and accessible.
func RunResolveConflict(
	ctx context.Context,
	conflicts conflictUseCase.ConflictUseCase,
	logger *slog.Logger,
	recordID string,
	winner string,
	io IOTuple,
) error {
	id, err := uuid.Parse(recordID)
	if err != nil {
		return fmt.Errorf("invalid conflict record id: %w", err)
	}

	var resolution conflictDomain.Resolution
	switch winner {
	case "local":
		resolution = conflictDomain.ResolutionLocalWins
	case "remote":
		resolution = conflictDomain.ResolutionRemoteWins
	default:
		return fmt.Errorf("invalid winner: %s (valid options: local, remote)", winner)
	}

	if err := conflicts.ResolveManual(ctx, id, resolution); err != nil {
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	_, _ = fmt.Fprintf(io.Writer, "Conflict %s resolved: %s\n", id, resolution)

	logger.Info("conflict resolved",
		slog.String("record_id", id.String()),
		slog.String("resolution", string(resolution)),
	)
	return nil
}

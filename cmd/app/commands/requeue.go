package commands

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	outboxUseCase "github.com/edgepos/edgesync/internal/outbox/usecase"
)

// RunRequeue returns a quarantined or conflicted entry to the pending queue
// with a fresh attempt budget. Used by operators after fixing whatever made
// the entry undeliverable.
//
// Requirements: Database must be migrated and accessible.
func RunRequeue(
	ctx context.Context,
	outbox outboxUseCase.OutboxUseCase,
	logger *slog.Logger,
	entryID string,
	io IOTuple,
) error {
	id, err := uuid.Parse(entryID)
	if err != nil {
		return fmt.Errorf("invalid entry id: %w", err)
	}

	if err := outbox.Requeue(ctx, id); err != nil {
		return fmt.Errorf("failed to requeue entry: %w", err)
	}

	_, _ = fmt.Fprintf(io.Writer, "Entry %s requeued\n", id)

	logger.Info("entry requeued", slog.String("entry_id", id.String()))
	return nil
}

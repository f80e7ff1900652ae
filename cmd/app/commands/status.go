package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	outboxUseCase "github.com/edgepos/edgesync/internal/outbox/usecase"
)

// RunStatus prints the outbox queue counters. Quarantined and conflict
// counts above zero need operator attention.
//
// Requirements: Database must be migrated and accessible.
func RunStatus(
	ctx context.Context,
	outbox outboxUseCase.OutboxUseCase,
	logger *slog.Logger,
	format string,
	io IOTuple,
) error {
	stats, err := outbox.Stats(ctx)
	if err != nil {
		return fmt.Errorf("failed to read queue stats: %w", err)
	}

	if format == "json" {
		outputStatsJSON(stats, io.Writer)
	} else {
		outputStatsText(stats, io.Writer)
	}

	return nil
}

// outputStatsText outputs the queue counters in human-readable text format.
func outputStatsText(stats *outboxDomain.QueueStats, writer io.Writer) {
	_, _ = fmt.Fprintln(writer, "Outbox queue:")
	_, _ = fmt.Fprintf(writer, "  Pending:     %d\n", stats.Pending)
	_, _ = fmt.Fprintf(writer, "  In flight:   %d\n", stats.InFlight)
	_, _ = fmt.Fprintf(writer, "  Done:        %d\n", stats.Done)
	_, _ = fmt.Fprintf(writer, "  Conflict:    %d\n", stats.Conflict)
	_, _ = fmt.Fprintf(writer, "  Quarantined: %d\n", stats.Quarantined)
	if stats.OldestPending != nil {
		_, _ = fmt.Fprintf(writer, "  Oldest pending: %s\n", stats.OldestPending.Format(time.RFC3339))
	}
	if stats.LastDoneAt != nil {
		_, _ = fmt.Fprintf(writer, "  Last synced: %s\n", stats.LastDoneAt.Format(time.RFC3339))
	}
}

// outputStatsJSON outputs the queue counters in JSON format.
func outputStatsJSON(stats *outboxDomain.QueueStats, writer io.Writer) {
	result := map[string]any{
		"pending":     stats.Pending,
		"in_flight":   stats.InFlight,
		"done":        stats.Done,
		"conflict":    stats.Conflict,
		"quarantined": stats.Quarantined,
	}
	if stats.OldestPending != nil {
		result["oldest_pending"] = stats.OldestPending.Format(time.RFC3339)
	}
	if stats.LastDoneAt != nil {
		result["last_synced"] = stats.LastDoneAt.Format(time.RFC3339)
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
}

package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	outboxUseCase "github.com/edgepos/edgesync/internal/outbox/usecase"
)

// RunEnqueue records a local change in the write-ahead outbox. This is an
// operator escape hatch for injecting changes outside the POS application,
// useful for replaying lost writes and for smoke-testing a deployment.
//
// Requirements: Database must be migrated and accessible.
func RunEnqueue(
	ctx context.Context,
	outbox outboxUseCase.OutboxUseCase,
	logger *slog.Logger,
	entityType string,
	entityID string,
	operation string,
	payload string,
	priority int,
	format string,
	io IOTuple,
) error {
	op := outboxDomain.Operation(operation)
	if !op.IsValid() {
		return fmt.Errorf(
			"invalid operation: %s (valid options: create, update, delete, upsert)",
			operation,
		)
	}

	if payload != "" && !json.Valid([]byte(payload)) {
		return fmt.Errorf("payload must be valid JSON")
	}

	entry, err := outbox.Enqueue(ctx, &outboxDomain.EnqueueInput{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  op,
		Payload:    []byte(payload),
		Priority:   priority,
	})
	if err != nil {
		return fmt.Errorf("failed to enqueue entry: %w", err)
	}

	// Output result based on format
	if format == "json" {
		outputEntryJSON(entry, io.Writer)
	} else {
		outputEntryText(entry, io.Writer)
	}

	logger.Info("entry enqueued",
		slog.String("entry_id", entry.ID.String()),
		slog.String("entity_type", entityType),
		slog.String("entity_id", entityID),
	)

	return nil
}

// outputEntryText outputs the entry in human-readable text format.
func outputEntryText(entry *outboxDomain.Entry, writer io.Writer) {
	_, _ = fmt.Fprintln(writer, "\nEntry enqueued!")
	_, _ = fmt.Fprintf(writer, "Entry ID: %s\n", entry.ID.String())
	_, _ = fmt.Fprintf(writer, "Entity: %s/%s\n", entry.EntityType, entry.EntityID)
	_, _ = fmt.Fprintf(writer, "Sequence: %d\n", entry.Sequence)
	_, _ = fmt.Fprintf(writer, "Status: %s\n", entry.Status)
}

// outputEntryJSON outputs the entry in JSON format for machine consumption.
func outputEntryJSON(entry *outboxDomain.Entry, writer io.Writer) {
	result := map[string]any{
		"entry_id":    entry.ID.String(),
		"entity_type": entry.EntityType,
		"entity_id":   entry.EntityID,
		"sequence":    entry.Sequence,
		"status":      string(entry.Status),
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
}

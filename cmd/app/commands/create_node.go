package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	gatewayUseCase "github.com/edgepos/edgesync/internal/gateway/usecase"
)

// RunCreateNode registers a new edge node with the gateway and prints its
// credentials. The plain key is shown only once and never stored; the
// gateway keeps its Argon2id hash.
//
// Requirements: Database must be migrated and accessible.
func RunCreateNode(
	ctx context.Context,
	nodeUseCase gatewayUseCase.NodeUseCase,
	logger *slog.Logger,
	id string,
	name string,
	format string,
	io IOTuple,
) error {
	logger.Info("registering new node", slog.String("name", name))

	node, plainKey, err := nodeUseCase.Register(ctx, id, name)
	if err != nil {
		return fmt.Errorf("failed to register node: %w", err)
	}

	// Output result based on format
	if format == "json" {
		outputNodeJSON(node.ID, node.Name, plainKey, io.Writer)
	} else {
		outputNodeText(node.ID, node.Name, plainKey, io.Writer)
	}

	logger.Info("node registered successfully",
		slog.String("node_id", node.ID),
		slog.String("name", name),
	)

	return nil
}

// outputNodeText outputs the result in human-readable text format.
func outputNodeText(id, name, plainKey string, writer io.Writer) {
	_, _ = fmt.Fprintln(writer, "\nNode registered successfully!")
	_, _ = fmt.Fprintf(writer, "Node ID: %s\n", id)
	_, _ = fmt.Fprintf(writer, "Name: %s\n", name)
	_, _ = fmt.Fprintf(writer, "Key: %s\n", plainKey)
	_, _ = fmt.Fprintln(writer, "\nIMPORTANT: The key is shown only once. Store it securely.")
}

// outputNodeJSON outputs the result in JSON format for machine consumption.
func outputNodeJSON(id, name, plainKey string, writer io.Writer) {
	result := map[string]string{
		"node_id": id,
		"name":    name,
		"key":     plainKey,
	}

	jsonBytes, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "failed to marshal JSON: %v\n", err)
		return
	}

	_, _ = fmt.Fprintln(writer, string(jsonBytes))
}

// Package main provides the entry point for the application with CLI commands.
package main

import (
	"context"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/edgepos/edgesync/cmd/app/commands"
	"github.com/edgepos/edgesync/internal/app"
	"github.com/edgepos/edgesync/internal/config"
)

const version = "1.0.0"

// withContainer builds a DI container for one-shot commands and tears it
// down when the action returns.
func withContainer(fn func(ctx context.Context, cmd *cli.Command, container *app.Container) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		container := app.NewContainer(config.Load())
		defer func() {
			if err := container.Shutdown(context.Background()); err != nil {
				container.Logger().Error("failed to shutdown container", slog.Any("error", err))
			}
		}()
		return fn(ctx, cmd, container)
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "edgesync",
		Usage:   "Edge synchronization engine for POS nodes",
		Version: version,
		Commands: []*cli.Command{
			{
				Name:  "worker",
				Usage: "Start the sync worker (dispatch, pull and lease loops)",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunWorker(ctx, version)
				},
			},
			{
				Name:  "server",
				Usage: "Start the node status API server",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunServer(ctx, version)
				},
			},
			{
				Name:  "gateway",
				Usage: "Start the central sync gateway",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunGateway(ctx, version)
				},
			},
			{
				Name:  "migrate",
				Usage: "Run database migrations",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return commands.RunMigrations()
				},
			},
			{
				Name:  "create-node",
				Usage: "Register an edge node with the gateway",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "id",
						Aliases: []string{"i"},
						Value:   "",
						Usage:   "Node ID (e.g., store-042-till-3; omit to generate one)",
					},
					&cli.StringFlag{
						Name:     "name",
						Aliases:  []string{"n"},
						Required: true,
						Usage:    "Human-readable node name",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: withContainer(func(ctx context.Context, cmd *cli.Command, container *app.Container) error {
					nodeUseCase, err := container.NodeUseCase()
					if err != nil {
						return err
					}
					return commands.RunCreateNode(
						ctx,
						nodeUseCase,
						container.Logger(),
						cmd.String("id"),
						cmd.String("name"),
						cmd.String("format"),
						commands.DefaultIO(),
					)
				}),
			},
			{
				Name:  "enqueue",
				Usage: "Record a local change in the write-ahead outbox",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "entity-type",
						Aliases:  []string{"t"},
						Required: true,
						Usage:    "Entity type (e.g., sale, stock-count)",
					},
					&cli.StringFlag{
						Name:     "entity-id",
						Aliases:  []string{"e"},
						Required: true,
						Usage:    "Entity identifier",
					},
					&cli.StringFlag{
						Name:    "operation",
						Aliases: []string{"o"},
						Value:   "upsert",
						Usage:   "Operation: create, update, delete or upsert",
					},
					&cli.StringFlag{
						Name:    "payload",
						Aliases: []string{"p"},
						Usage:   "JSON payload for the change",
					},
					&cli.IntFlag{
						Name:  "priority",
						Value: 0,
						Usage: "Scheduling priority (higher transmits first)",
					},
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: withContainer(func(ctx context.Context, cmd *cli.Command, container *app.Container) error {
					outboxUseCase, err := container.OutboxUseCase()
					if err != nil {
						return err
					}
					return commands.RunEnqueue(
						ctx,
						outboxUseCase,
						container.Logger(),
						cmd.String("entity-type"),
						cmd.String("entity-id"),
						cmd.String("operation"),
						cmd.String("payload"),
						int(cmd.Int("priority")),
						cmd.String("format"),
						commands.DefaultIO(),
					)
				}),
			},
			{
				Name:  "status",
				Usage: "Show outbox queue counters",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "format",
						Aliases: []string{"f"},
						Value:   "text",
						Usage:   "Output format: 'text' or 'json'",
					},
				},
				Action: withContainer(func(ctx context.Context, cmd *cli.Command, container *app.Container) error {
					outboxUseCase, err := container.OutboxUseCase()
					if err != nil {
						return err
					}
					return commands.RunStatus(
						ctx,
						outboxUseCase,
						container.Logger(),
						cmd.String("format"),
						commands.DefaultIO(),
					)
				}),
			},
			{
				Name:  "requeue",
				Usage: "Return a quarantined or conflicted entry to the pending queue",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "Outbox entry ID (UUID)",
					},
				},
				Action: withContainer(func(ctx context.Context, cmd *cli.Command, container *app.Container) error {
					outboxUseCase, err := container.OutboxUseCase()
					if err != nil {
						return err
					}
					return commands.RunRequeue(
						ctx,
						outboxUseCase,
						container.Logger(),
						cmd.String("id"),
						commands.DefaultIO(),
					)
				}),
			},
			{
				Name:  "resolve-conflict",
				Usage: "Close an open conflict with an operator decision",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "id",
						Aliases:  []string{"i"},
						Required: true,
						Usage:    "Conflict record ID (UUID)",
					},
					&cli.StringFlag{
						Name:     "winner",
						Aliases:  []string{"w"},
						Required: true,
						Usage:    "Winning version: 'local' or 'remote'",
					},
				},
				Action: withContainer(func(ctx context.Context, cmd *cli.Command, container *app.Container) error {
					conflictUseCase, err := container.ConflictUseCase()
					if err != nil {
						return err
					}
					return commands.RunResolveConflict(
						ctx,
						conflictUseCase,
						container.Logger(),
						cmd.String("id"),
						cmd.String("winner"),
						commands.DefaultIO(),
					)
				}),
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.Any("error", err))
		os.Exit(1)
	}
}

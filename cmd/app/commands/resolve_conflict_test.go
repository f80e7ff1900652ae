package commands

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

func TestRunResolveConflict(t *testing.T) {
	ctx := context.Background()

	t.Run("remote wins retires the entry", func(t *testing.T) {
		fixture := setupCommands(t)

		entry, err := fixture.outbox.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "stock-count",
			EntityID:   "s-1",
			Operation:  outboxDomain.OperationUpdate,
			Payload:    []byte(`{"qty":3}`),
		})
		require.NoError(t, err)

		// Default policy is manual, so the collision parks the entry
		record, err := fixture.conflicts.HandleRemoteConflict(ctx, entry, conflictDomain.Version{
			Payload:   []byte(`{"qty":5}`),
			UpdatedAt: fixture.clock.Now().UTC(),
			NodeID:    "",
		})
		require.NoError(t, err)
		require.Equal(t, conflictDomain.StatusOpen, record.Status)

		var out bytes.Buffer
		err = RunResolveConflict(
			ctx,
			fixture.conflicts,
			fixture.logger,
			record.ID.String(),
			"remote",
			IOTuple{Writer: &out},
		)

		require.NoError(t, err)
		require.Contains(t, out.String(), "resolved: remote_wins")

		got, err := fixture.entryRepo.Get(ctx, entry.ID)
		require.NoError(t, err)
		require.Equal(t, outboxDomain.EntryStatusDone, got.Status)
	})

	t.Run("invalid winner", func(t *testing.T) {
		fixture := setupCommands(t)

		err := RunResolveConflict(
			ctx,
			fixture.conflicts,
			fixture.logger,
			"7c9e6679-7425-40de-944b-e07fc1f90ae7",
			"draw",
			IOTuple{Writer: &bytes.Buffer{}},
		)

		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid winner")
	})

	t.Run("invalid id", func(t *testing.T) {
		fixture := setupCommands(t)

		err := RunResolveConflict(
			ctx,
			fixture.conflicts,
			fixture.logger,
			"nope",
			"local",
			IOTuple{Writer: &bytes.Buffer{}},
		)

		require.Error(t, err)
		require.Contains(t, err.Error(), "invalid conflict record id")
	})
}

package commands

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/require"

	gatewayRepository "github.com/edgepos/edgesync/internal/gateway/repository"
	gatewayService "github.com/edgepos/edgesync/internal/gateway/service"
	gatewayUsecase "github.com/edgepos/edgesync/internal/gateway/usecase"
	"github.com/edgepos/edgesync/internal/testutil"
)

func setupNodeUseCase(t *testing.T) gatewayUsecase.NodeUseCase {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	return gatewayUsecase.NewNodeUseCase(
		gatewayRepository.NewSQLiteNodeRepository(db),
		gatewayService.NewKeyService(),
		clock,
	)
}

func TestRunCreateNode(t *testing.T) {
	ctx := context.Background()

	t.Run("text output", func(t *testing.T) {
		nodeUseCase := setupNodeUseCase(t)
		logger := slog.New(slog.DiscardHandler)

		var out bytes.Buffer
		err := RunCreateNode(ctx, nodeUseCase, logger, "store-042-till-3", "Store 42 till 3", "text", IOTuple{Writer: &out})

		require.NoError(t, err)
		require.Contains(t, out.String(), "store-042-till-3")
		require.Contains(t, out.String(), "Key: ")
		require.Contains(t, out.String(), "shown only once")
	})

	t.Run("json output with generated id", func(t *testing.T) {
		nodeUseCase := setupNodeUseCase(t)
		logger := slog.New(slog.DiscardHandler)

		var out bytes.Buffer
		err := RunCreateNode(ctx, nodeUseCase, logger, "", "Store 42 till 4", "json", IOTuple{Writer: &out})

		require.NoError(t, err)
		require.Contains(t, out.String(), `"node_id"`)
		require.Contains(t, out.String(), `"key"`)
	})
}

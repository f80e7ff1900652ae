package commands

import (
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	conflictRepository "github.com/edgepos/edgesync/internal/conflict/repository"
	conflictUsecase "github.com/edgepos/edgesync/internal/conflict/usecase"
	"github.com/edgepos/edgesync/internal/database"
	outboxRepository "github.com/edgepos/edgesync/internal/outbox/repository"
	outboxUsecase "github.com/edgepos/edgesync/internal/outbox/usecase"
	"github.com/edgepos/edgesync/internal/testutil"
)

type commandFixture struct {
	outbox    outboxUsecase.OutboxUseCase
	conflicts conflictUsecase.ConflictUseCase
	entryRepo *outboxRepository.SQLiteEntryRepository
	clock     *clockwork.FakeClock
	logger    *slog.Logger
}

func setupCommands(t *testing.T) *commandFixture {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	logger := slog.New(slog.DiscardHandler)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	txManager := database.NewTxManager(db)
	entryRepo := outboxRepository.NewSQLiteEntryRepository(db)
	criticalRepo := outboxRepository.NewSQLiteCriticalRepository(db)

	outbox := outboxUsecase.NewOutboxUseCase(
		txManager,
		entryRepo,
		criticalRepo,
		clock,
		[]string{"tax-invoice"},
		100,
	)

	conflicts := conflictUsecase.NewConflictUseCase(
		txManager,
		conflictRepository.NewSQLiteConflictRepository(db),
		entryRepo,
		conflictDomain.NewPolicyTable(nil, conflictDomain.PolicyManual),
		"node-1",
		clock,
		logger,
	)

	return &commandFixture{
		outbox:    outbox,
		conflicts: conflicts,
		entryRepo: entryRepo,
		clock:     clock,
		logger:    logger,
	}
}

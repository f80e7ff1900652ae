package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgepos/edgesync/internal/database"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	"github.com/edgepos/edgesync/internal/outbox/repository"
	"github.com/edgepos/edgesync/internal/testutil"
)

type useCaseFixture struct {
	useCase      OutboxUseCase
	entryRepo    EntryRepository
	criticalRepo CriticalRepository
	clock        *clockwork.FakeClock
}

func setupOutboxUseCase(t *testing.T) *useCaseFixture {
	t.Helper()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	entryRepo := repository.NewSQLiteEntryRepository(db)
	criticalRepo := repository.NewSQLiteCriticalRepository(db)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))

	useCase := NewOutboxUseCase(
		database.NewTxManager(db),
		entryRepo,
		criticalRepo,
		clock,
		[]string{"tax-invoice", "momo-payment"},
		100,
	)

	return &useCaseFixture{
		useCase:      useCase,
		entryRepo:    entryRepo,
		criticalRepo: criticalRepo,
		clock:        clock,
	}
}

func TestOutboxUseCase_Enqueue_InsideCallerTransaction(t *testing.T) {
	ctx := context.Background()

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	entryRepo := repository.NewSQLiteEntryRepository(db)
	criticalRepo := repository.NewSQLiteCriticalRepository(db)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	txManager := database.NewTxManager(db)

	useCase := NewOutboxUseCase(
		txManager, entryRepo, criticalRepo, clock, []string{"tax-invoice"}, 100,
	)

	t.Run("caller rollback discards the entry", func(t *testing.T) {
		var entryID uuid.UUID
		err := txManager.WithTx(ctx, func(txCtx context.Context) error {
			entry, err := useCase.Enqueue(txCtx, &outboxDomain.EnqueueInput{
				EntityType: "sale",
				EntityID:   "s-2001",
				Operation:  outboxDomain.OperationCreate,
				Payload:    []byte(`{"total":400}`),
			})
			if err != nil {
				return err
			}
			entryID = entry.ID
			// The domain write fails after the outbox write
			return assert.AnError
		})
		require.ErrorIs(t, err, assert.AnError)

		_, err = entryRepo.Get(ctx, entryID)
		assert.ErrorIs(t, err, outboxDomain.ErrEntryNotFound,
			"entry must roll back with the caller's transaction")
	})

	t.Run("caller commit keeps the entry and its submission", func(t *testing.T) {
		var entryID uuid.UUID
		err := txManager.WithTx(ctx, func(txCtx context.Context) error {
			entry, err := useCase.Enqueue(txCtx, &outboxDomain.EnqueueInput{
				EntityType: "tax-invoice",
				EntityID:   "inv-2001",
				Operation:  outboxDomain.OperationCreate,
				Payload:    []byte(`{"amount":9000}`),
			})
			if err != nil {
				return err
			}
			entryID = entry.ID
			return nil
		})
		require.NoError(t, err)

		stored, err := entryRepo.Get(ctx, entryID)
		require.NoError(t, err)
		assert.Equal(t, outboxDomain.EntryStatusPending, stored.Status)

		submission, err := criticalRepo.Get(ctx, entryID)
		require.NoError(t, err)
		assert.Equal(t, outboxDomain.CriticalStatePending, submission.State)
	})
}

func TestOutboxUseCase_Enqueue(t *testing.T) {
	ctx := context.Background()

	t.Run("Success", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		entry, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "sale",
			EntityID:   "s-1001",
			Operation:  outboxDomain.OperationCreate,
			Payload:    []byte(`{"total":1250}`),
			Priority:   10,
		})
		require.NoError(t, err)

		assert.Equal(t, int64(1), entry.Sequence)
		assert.Equal(t, outboxDomain.EntryStatusPending, entry.Status)
		assert.Equal(t, 10, entry.Priority)
		assert.Equal(t, f.clock.Now().UTC(), entry.CreatedAt)
		assert.Equal(t, f.clock.Now().UTC(), entry.NextAttemptAt)

		stored, err := f.entryRepo.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, entry.ID, stored.ID)

		// Non-critical entity types get no submission row
		_, err = f.criticalRepo.Get(ctx, entry.ID)
		assert.ErrorIs(t, err, outboxDomain.ErrSubmissionNotFound)
	})

	t.Run("Success_SequencePerEntity", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		first, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "stock",
			EntityID:   "sku-9",
			Operation:  outboxDomain.OperationUpdate,
			Payload:    []byte(`{"qty":4}`),
		})
		require.NoError(t, err)

		second, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "stock",
			EntityID:   "sku-9",
			Operation:  outboxDomain.OperationUpdate,
			Payload:    []byte(`{"qty":3}`),
		})
		require.NoError(t, err)

		other, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "stock",
			EntityID:   "sku-10",
			Operation:  outboxDomain.OperationUpdate,
			Payload:    []byte(`{"qty":1}`),
		})
		require.NoError(t, err)

		assert.Equal(t, int64(1), first.Sequence)
		assert.Equal(t, int64(2), second.Sequence)
		assert.Equal(t, int64(1), other.Sequence)
	})

	t.Run("Success_CriticalTypePromoted", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		entry, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "tax-invoice",
			EntityID:   "inv-77",
			Operation:  outboxDomain.OperationCreate,
			Payload:    []byte(`{"amount":9000}`),
			Priority:   5,
		})
		require.NoError(t, err)

		assert.Equal(t, 100, entry.Priority, "critical types are promoted to the critical priority")

		submission, err := f.criticalRepo.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, outboxDomain.CriticalStatePending, submission.State)
	})

	t.Run("Error_Validation", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		_, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityID:  "s-1",
			Operation: outboxDomain.OperationCreate,
		})
		assert.ErrorIs(t, err, outboxDomain.ErrEmptyEntityType)

		_, err = f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "sale",
			Operation:  outboxDomain.OperationCreate,
		})
		assert.ErrorIs(t, err, outboxDomain.ErrEmptyEntityID)

		_, err = f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "sale",
			EntityID:   "s-1",
			Operation:  "merge",
		})
		assert.ErrorIs(t, err, outboxDomain.ErrInvalidOperation)

		_, err = f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "sale",
			EntityID:   "s-1",
			Operation:  outboxDomain.OperationCreate,
			Priority:   -1,
		})
		assert.ErrorIs(t, err, outboxDomain.ErrNegativePriority)
	})
}

func TestOutboxUseCase_Requeue(t *testing.T) {
	ctx := context.Background()

	t.Run("Success_Quarantined", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		entry, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "sale",
			EntityID:   "s-1",
			Operation:  outboxDomain.OperationCreate,
			Payload:    []byte(`{}`),
		})
		require.NoError(t, err)
		require.NoError(t, f.entryRepo.MarkQuarantined(ctx, entry.ID, "max attempts exceeded"))

		require.NoError(t, f.useCase.Requeue(ctx, entry.ID))

		got, err := f.entryRepo.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, outboxDomain.EntryStatusPending, got.Status)
		assert.Equal(t, 0, got.AttemptCount)
	})

	t.Run("Success_CriticalSubmissionReset", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		entry, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "momo-payment",
			EntityID:   "pay-3",
			Operation:  outboxDomain.OperationCreate,
			Payload:    []byte(`{}`),
		})
		require.NoError(t, err)

		// Park the entry with an exhausted reconciliation
		submission, err := f.criticalRepo.Get(ctx, entry.ID)
		require.NoError(t, err)
		now := f.clock.Now().UTC()
		reason := "status query budget exhausted"
		submission.State = outboxDomain.CriticalStateUnknown
		submission.QueryCount = 5
		submission.Reason = &reason
		submission.SubmittedAt = &now
		require.NoError(t, f.criticalRepo.Update(ctx, submission))
		require.NoError(t, f.entryRepo.MarkQuarantined(ctx, entry.ID, reason))

		require.NoError(t, f.useCase.Requeue(ctx, entry.ID))

		got, err := f.criticalRepo.Get(ctx, entry.ID)
		require.NoError(t, err)
		assert.Equal(t, outboxDomain.CriticalStatePending, got.State)
		assert.Equal(t, 0, got.QueryCount)
		assert.Nil(t, got.Reason)
		assert.Nil(t, got.SubmittedAt)
	})

	t.Run("Error_NotParked", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		entry, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
			EntityType: "sale",
			EntityID:   "s-1",
			Operation:  outboxDomain.OperationCreate,
			Payload:    []byte(`{}`),
		})
		require.NoError(t, err)

		err = f.useCase.Requeue(ctx, entry.ID)
		assert.ErrorIs(t, err, outboxDomain.ErrEntryNotFound)
	})

	t.Run("Error_Missing", func(t *testing.T) {
		f := setupOutboxUseCase(t)

		err := f.useCase.Requeue(ctx, uuid.Must(uuid.NewV7()))
		assert.ErrorIs(t, err, outboxDomain.ErrEntryNotFound)
	})
}

func TestOutboxUseCase_Stats(t *testing.T) {
	ctx := context.Background()
	f := setupOutboxUseCase(t)

	_, err := f.useCase.Enqueue(ctx, &outboxDomain.EnqueueInput{
		EntityType: "sale",
		EntityID:   "s-1",
		Operation:  outboxDomain.OperationCreate,
		Payload:    []byte(`{}`),
	})
	require.NoError(t, err)

	stats, err := f.useCase.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(0), stats.InFlight)
}

package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	"github.com/edgepos/edgesync/internal/testutil"
)

func newTestEntry(entityType, entityID string, sequence int64, priority int, at time.Time) *outboxDomain.Entry {
	return &outboxDomain.Entry{
		ID:            uuid.Must(uuid.NewV7()),
		EntityType:    entityType,
		EntityID:      entityID,
		Operation:     outboxDomain.OperationCreate,
		Payload:       []byte(`{"total":1250}`),
		Priority:      priority,
		Sequence:      sequence,
		Status:        outboxDomain.EntryStatusPending,
		NextAttemptAt: at,
		CreatedAt:     at,
	}
}

func TestSQLiteEntryRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	entry := newTestEntry("sale", "s-1001", 1, 10, now)
	require.NoError(t, repo.Create(ctx, entry))

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)

	assert.Equal(t, entry.ID, got.ID)
	assert.Equal(t, "sale", got.EntityType)
	assert.Equal(t, "s-1001", got.EntityID)
	assert.Equal(t, outboxDomain.OperationCreate, got.Operation)
	assert.Equal(t, entry.Payload, got.Payload)
	assert.Equal(t, 10, got.Priority)
	assert.Equal(t, int64(1), got.Sequence)
	assert.Equal(t, outboxDomain.EntryStatusPending, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
	assert.Nil(t, got.LeaseExpiresAt)
	assert.Nil(t, got.LastError)
	assert.WithinDuration(t, now, got.CreatedAt, time.Millisecond)
}

func TestSQLiteEntryRepository_Get_NotFound(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)

	got, err := repo.Get(context.Background(), uuid.Must(uuid.NewV7()))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, outboxDomain.ErrEntryNotFound)
}

func TestSQLiteEntryRepository_NextSequence(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	seq, err := repo.NextSequence(ctx, "sale", "s-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)

	require.NoError(t, repo.Create(ctx, newTestEntry("sale", "s-1001", seq, 0, now)))

	seq, err = repo.NextSequence(ctx, "sale", "s-1001")
	require.NoError(t, err)
	assert.Equal(t, int64(2), seq)

	// Sequence is per entity key
	seq, err = repo.NextSequence(ctx, "sale", "s-2002")
	require.NoError(t, err)
	assert.Equal(t, int64(1), seq)
}

func TestSQLiteEntryRepository_Create_DuplicateSequence(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, repo.Create(ctx, newTestEntry("sale", "s-1001", 1, 0, now)))
	err := repo.Create(ctx, newTestEntry("sale", "s-1001", 1, 0, now))
	assert.Error(t, err, "duplicate (entity, sequence) must fail the transaction")
}

func TestSQLiteEntryRepository_PeekReady_PriorityOrder(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	// Enqueued in reverse priority order
	low := newTestEntry("audit-log", "a-1", 1, 1, now)
	mid := newTestEntry("sale", "s-1", 1, 5, now.Add(time.Millisecond))
	high := newTestEntry("tax-invoice", "t-1", 1, 10, now.Add(2*time.Millisecond))

	require.NoError(t, repo.Create(ctx, low))
	require.NoError(t, repo.Create(ctx, mid))
	require.NoError(t, repo.Create(ctx, high))

	ready, err := repo.PeekReady(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, ready, 3)

	assert.Equal(t, high.ID, ready[0].ID)
	assert.Equal(t, mid.ID, ready[1].ID)
	assert.Equal(t, low.ID, ready[2].ID)
}

func TestSQLiteEntryRepository_PeekReady_PerKeyGating(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := newTestEntry("stock", "sku-9", 1, 0, now)
	second := newTestEntry("stock", "sku-9", 2, 0, now)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	// Only the earliest sequence for the key is ready
	ready, err := repo.PeekReady(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, first.ID, ready[0].ID)

	// While the first is in flight, the second stays gated
	require.NoError(t, repo.ClaimInFlight(ctx, first.ID, now, now.Add(time.Minute)))
	ready, err = repo.PeekReady(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, ready)

	// Once the first is done, the second becomes ready
	require.NoError(t, repo.MarkDone(ctx, first.ID))
	ready, err = repo.PeekReady(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	require.Len(t, ready, 1)
	assert.Equal(t, second.ID, ready[0].ID)
}

func TestSQLiteEntryRepository_PeekReady_QuarantineBlocksKey(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	first := newTestEntry("stock", "sku-9", 1, 0, now)
	second := newTestEntry("stock", "sku-9", 2, 0, now)
	require.NoError(t, repo.Create(ctx, first))
	require.NoError(t, repo.Create(ctx, second))

	require.NoError(t, repo.MarkQuarantined(ctx, first.ID, "max attempts exceeded"))

	ready, err := repo.PeekReady(ctx, now.Add(time.Second), 10)
	require.NoError(t, err)
	assert.Empty(t, ready, "a quarantined earlier sequence must block later siblings")
}

func TestSQLiteEntryRepository_PeekReady_RespectsNextAttemptAt(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := newTestEntry("sale", "s-1", 1, 0, now)
	entry.NextAttemptAt = now.Add(time.Minute) // backed off
	require.NoError(t, repo.Create(ctx, entry))

	ready, err := repo.PeekReady(ctx, now, 10)
	require.NoError(t, err)
	assert.Empty(t, ready)

	ready, err = repo.PeekReady(ctx, now.Add(2*time.Minute), 10)
	require.NoError(t, err)
	assert.Len(t, ready, 1)
}

func TestSQLiteEntryRepository_ClaimInFlight(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := newTestEntry("sale", "s-1", 1, 0, now)
	require.NoError(t, repo.Create(ctx, entry))

	require.NoError(t, repo.ClaimInFlight(ctx, entry.ID, now, now.Add(time.Minute)))

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EntryStatusInFlight, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	require.NotNil(t, got.LeaseExpiresAt)
	require.NotNil(t, got.LastAttemptAt)

	// A second claim loses the race
	err = repo.ClaimInFlight(ctx, entry.ID, now, now.Add(time.Minute))
	assert.ErrorIs(t, err, outboxDomain.ErrEntryNotClaimed)
}

func TestSQLiteEntryRepository_MarkFailedReschedules(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := newTestEntry("sale", "s-1", 1, 0, now)
	require.NoError(t, repo.Create(ctx, entry))
	require.NoError(t, repo.ClaimInFlight(ctx, entry.ID, now, now.Add(time.Minute)))

	retryAt := now.Add(30 * time.Second)
	require.NoError(t, repo.MarkFailed(ctx, entry.ID, "gateway timeout", retryAt))

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EntryStatusPending, got.Status)
	assert.Nil(t, got.LeaseExpiresAt)
	require.NotNil(t, got.LastError)
	assert.Equal(t, "gateway timeout", *got.LastError)
	assert.WithinDuration(t, retryAt, got.NextAttemptAt, time.Millisecond)
}

func TestSQLiteEntryRepository_ReleaseExpiredLeases(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	expired := newTestEntry("sale", "s-1", 1, 0, now)
	live := newTestEntry("sale", "s-2", 1, 0, now)
	require.NoError(t, repo.Create(ctx, expired))
	require.NoError(t, repo.Create(ctx, live))

	require.NoError(t, repo.ClaimInFlight(ctx, expired.ID, now, now.Add(time.Second)))
	require.NoError(t, repo.ClaimInFlight(ctx, live.ID, now, now.Add(time.Hour)))

	released, err := repo.ReleaseExpiredLeases(ctx, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), released)

	got, err := repo.Get(ctx, expired.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EntryStatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount, "attempt count survives lease expiry")

	got, err = repo.Get(ctx, live.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EntryStatusInFlight, got.Status)
}

func TestSQLiteEntryRepository_Requeue(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	entry := newTestEntry("stock-count", "c-1", 1, 0, now)
	require.NoError(t, repo.Create(ctx, entry))
	require.NoError(t, repo.MarkQuarantined(ctx, entry.ID, "poison entry"))

	require.NoError(t, repo.Requeue(ctx, entry.ID, now))

	got, err := repo.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EntryStatusPending, got.Status)
	assert.Equal(t, 0, got.AttemptCount)
	assert.Nil(t, got.LastError)

	// Requeue only applies to parked entries
	err = repo.Requeue(ctx, entry.ID, now)
	assert.ErrorIs(t, err, outboxDomain.ErrEntryNotFound)
}

func TestSQLiteEntryRepository_Stats(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	pending := newTestEntry("sale", "s-1", 1, 0, now)
	done := newTestEntry("sale", "s-2", 1, 0, now)
	quarantined := newTestEntry("stock-count", "c-1", 1, 0, now)

	require.NoError(t, repo.Create(ctx, pending))
	require.NoError(t, repo.Create(ctx, done))
	require.NoError(t, repo.Create(ctx, quarantined))

	require.NoError(t, repo.ClaimInFlight(ctx, done.ID, now, now.Add(time.Minute)))
	require.NoError(t, repo.MarkDone(ctx, done.ID))
	require.NoError(t, repo.MarkQuarantined(ctx, quarantined.ID, "manual review"))

	stats, err := repo.Stats(ctx)
	require.NoError(t, err)

	assert.Equal(t, int64(1), stats.Pending)
	assert.Equal(t, int64(1), stats.Done)
	assert.Equal(t, int64(1), stats.Quarantined)
	assert.Equal(t, int64(0), stats.InFlight)
	require.NotNil(t, stats.OldestPending)
	assert.WithinDuration(t, now, *stats.OldestPending, time.Millisecond)
	require.NotNil(t, stats.LastDoneAt)
}

func TestSQLiteEntryRepository_ListByStatus(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteEntryRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	older := newTestEntry("stock-count", "c-1", 1, 0, now)
	newer := newTestEntry("stock-count", "c-2", 1, 0, now.Add(time.Second))
	require.NoError(t, repo.Create(ctx, older))
	require.NoError(t, repo.Create(ctx, newer))
	require.NoError(t, repo.MarkQuarantined(ctx, older.ID, "review"))
	require.NoError(t, repo.MarkQuarantined(ctx, newer.ID, "review"))

	entries, err := repo.ListByStatus(ctx, outboxDomain.EntryStatusQuarantined, 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, older.ID, entries[0].ID)
	assert.Equal(t, newer.ID, entries[1].ID)
}

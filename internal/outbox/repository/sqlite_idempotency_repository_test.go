package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/edgepos/edgesync/internal/errors"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	"github.com/edgepos/edgesync/internal/testutil"
)

func TestSQLiteIdempotencyRepository_RecordAndGet(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteIdempotencyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	record := &outboxDomain.IdempotencyRecord{
		ID:           uuid.Must(uuid.NewV7()),
		ServerResult: "accepted",
		AppliedAt:    now,
	}
	require.NoError(t, repo.Record(ctx, record))

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, record.ID, got.ID)
	assert.Equal(t, "accepted", got.ServerResult)
	assert.WithinDuration(t, now, got.AppliedAt, time.Millisecond)

	exists, err := repo.Exists(ctx, record.ID)
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestSQLiteIdempotencyRepository_Record_DuplicateIsNoOp(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteIdempotencyRepository(db)
	ctx := context.Background()
	now := time.Now().UTC()

	record := &outboxDomain.IdempotencyRecord{
		ID:           uuid.Must(uuid.NewV7()),
		ServerResult: "accepted",
		AppliedAt:    now,
	}
	require.NoError(t, repo.Record(ctx, record))

	// A redelivered acknowledgment keeps the first recorded result
	replay := &outboxDomain.IdempotencyRecord{
		ID:           record.ID,
		ServerResult: "rejected",
		AppliedAt:    now.Add(time.Hour),
	}
	require.NoError(t, repo.Record(ctx, replay))

	got, err := repo.Get(ctx, record.ID)
	require.NoError(t, err)
	assert.Equal(t, "accepted", got.ServerResult)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), count)
}

func TestSQLiteIdempotencyRepository_Get_NotFound(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteIdempotencyRepository(db)

	got, err := repo.Get(context.Background(), uuid.Must(uuid.NewV7()))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)

	exists, err := repo.Exists(context.Background(), uuid.Must(uuid.NewV7()))
	require.NoError(t, err)
	assert.False(t, exists)
}

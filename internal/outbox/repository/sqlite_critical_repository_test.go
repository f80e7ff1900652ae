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

func TestSQLiteCriticalRepository_CreateAndGet(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteCriticalRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	submission := &outboxDomain.CriticalSubmission{
		EntryID:   uuid.Must(uuid.NewV7()),
		State:     outboxDomain.CriticalStatePending,
		CreatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, submission))

	got, err := repo.Get(ctx, submission.EntryID)
	require.NoError(t, err)
	assert.Equal(t, submission.EntryID, got.EntryID)
	assert.Equal(t, outboxDomain.CriticalStatePending, got.State)
	assert.Equal(t, 0, got.QueryCount)
	assert.Nil(t, got.Reason)
	assert.Nil(t, got.SubmittedAt)
	assert.Nil(t, got.ResolvedAt)
}

func TestSQLiteCriticalRepository_Update(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteCriticalRepository(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	submission := &outboxDomain.CriticalSubmission{
		EntryID:   uuid.Must(uuid.NewV7()),
		State:     outboxDomain.CriticalStatePending,
		CreatedAt: now,
	}
	require.NoError(t, repo.Create(ctx, submission))

	submittedAt := now.Add(time.Second)
	submission.State = outboxDomain.CriticalStateSubmitted
	submission.SubmittedAt = &submittedAt
	require.NoError(t, repo.Update(ctx, submission))

	resolvedAt := now.Add(2 * time.Second)
	reason := "duplicate invoice number"
	submission.State = outboxDomain.CriticalStateRejected
	submission.QueryCount = 3
	submission.Reason = &reason
	submission.ResolvedAt = &resolvedAt
	require.NoError(t, repo.Update(ctx, submission))

	got, err := repo.Get(ctx, submission.EntryID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.CriticalStateRejected, got.State)
	assert.Equal(t, 3, got.QueryCount)
	require.NotNil(t, got.Reason)
	assert.Equal(t, reason, *got.Reason)
	require.NotNil(t, got.SubmittedAt)
	assert.WithinDuration(t, submittedAt, *got.SubmittedAt, time.Millisecond)
	require.NotNil(t, got.ResolvedAt)
	assert.WithinDuration(t, resolvedAt, *got.ResolvedAt, time.Millisecond)
}

func TestSQLiteCriticalRepository_NotFound(t *testing.T) {
	db := testutil.SetupSQLiteDB(t)
	defer testutil.TeardownDB(t, db)

	repo := NewSQLiteCriticalRepository(db)
	ctx := context.Background()

	got, err := repo.Get(ctx, uuid.Must(uuid.NewV7()))
	assert.Nil(t, got)
	assert.ErrorIs(t, err, outboxDomain.ErrSubmissionNotFound)

	err = repo.Update(ctx, &outboxDomain.CriticalSubmission{
		EntryID: uuid.Must(uuid.NewV7()),
		State:   outboxDomain.CriticalStateConfirmed,
	})
	assert.ErrorIs(t, err, outboxDomain.ErrSubmissionNotFound)
}

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	conflictRepository "github.com/edgepos/edgesync/internal/conflict/repository"
	conflictUseCase "github.com/edgepos/edgesync/internal/conflict/usecase"
	"github.com/edgepos/edgesync/internal/connectivity"
	"github.com/edgepos/edgesync/internal/database"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	outboxRepository "github.com/edgepos/edgesync/internal/outbox/repository"
	outboxUseCase "github.com/edgepos/edgesync/internal/outbox/usecase"
	"github.com/edgepos/edgesync/internal/testutil"
)

// staticMonitor is a connectivity.Monitor with a fixed state.
type staticMonitor struct {
	online bool
	since  *time.Time
}

func (m *staticMonitor) IsOnline() bool                  { return m.online }
func (m *staticMonitor) OfflineSince() *time.Time        { return m.since }
func (m *staticMonitor) Subscribe() <-chan connectivity.State {
	return make(chan connectivity.State)
}
func (m *staticMonitor) Run(ctx context.Context) error { return nil }

type statusFixture struct {
	router    *gin.Engine
	outbox    outboxUseCase.OutboxUseCase
	entryRepo outboxUseCase.EntryRepository
	conflicts conflictUseCase.ConflictRepository
	clock     *clockwork.FakeClock
	monitor   *staticMonitor
}

func setupStatusAPI(t *testing.T) *statusFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.SetupSQLiteDB(t)
	t.Cleanup(func() { testutil.TeardownDB(t, db) })

	logger := slog.New(slog.DiscardHandler)
	clock := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	txManager := database.NewTxManager(db)
	entryRepo := outboxRepository.NewSQLiteEntryRepository(db)
	criticalRepo := outboxRepository.NewSQLiteCriticalRepository(db)
	conflictRepo := conflictRepository.NewSQLiteConflictRepository(db)

	outbox := outboxUseCase.NewOutboxUseCase(
		txManager, entryRepo, criticalRepo, clock, []string{"tax-invoice"}, 100,
	)
	conflicts := conflictUseCase.NewConflictUseCase(
		txManager,
		conflictRepo,
		entryRepo,
		conflictDomain.NewPolicyTable(nil, conflictDomain.PolicyManual),
		"node-1",
		clock,
		logger,
	)

	monitor := &staticMonitor{online: true}
	router := gin.New()
	NewStatusHandler(outbox, conflicts, monitor, logger).RegisterRoutes(router)

	return &statusFixture{
		router:    router,
		outbox:    outbox,
		entryRepo: entryRepo,
		conflicts: conflictRepo,
		clock:     clock,
		monitor:   monitor,
	}
}

func (f *statusFixture) enqueue(t *testing.T, entityType, entityID string) *outboxDomain.Entry {
	t.Helper()
	entry, err := f.outbox.Enqueue(context.Background(), &outboxDomain.EnqueueInput{
		EntityType: entityType,
		EntityID:   entityID,
		Operation:  outboxDomain.OperationUpdate,
		Payload:    []byte(`{"qty":3}`),
	})
	require.NoError(t, err)
	return entry
}

func (f *statusFixture) do(method, path string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	recorder := httptest.NewRecorder()
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	f.router.ServeHTTP(recorder, req)
	return recorder
}

func TestStatusAPI_GetStatus(t *testing.T) {
	fixture := setupStatusAPI(t)
	fixture.enqueue(t, "order", "o-1")
	fixture.enqueue(t, "order", "o-2")

	since := fixture.clock.Now().UTC().Add(-time.Hour)
	fixture.monitor.online = false
	fixture.monitor.since = &since

	recorder := fixture.do(http.MethodGet, "/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Online       bool       `json:"online"`
		OfflineSince *time.Time `json:"offline_since"`
		Queue        struct {
			Pending int64 `json:"pending"`
		} `json:"queue"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.False(t, response.Online)
	require.NotNil(t, response.OfflineSince)
	assert.Equal(t, int64(2), response.Queue.Pending)
}

func TestStatusAPI_ListEntries(t *testing.T) {
	fixture := setupStatusAPI(t)
	ctx := context.Background()

	entry := fixture.enqueue(t, "order", "o-1")
	require.NoError(t, fixture.entryRepo.MarkQuarantined(ctx, entry.ID, "schema rejected"))
	fixture.enqueue(t, "order", "o-2")

	recorder := fixture.do(http.MethodGet, "/v1/sync/entries?status=quarantined", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response struct {
		Entries []entryResponse `json:"entries"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	require.Len(t, response.Entries, 1)
	assert.Equal(t, entry.ID, response.Entries[0].ID)
	assert.Equal(t, "quarantined", response.Entries[0].Status)

	recorder = fixture.do(http.MethodGet, "/v1/sync/entries?status=bogus", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
}

func TestStatusAPI_Requeue(t *testing.T) {
	fixture := setupStatusAPI(t)
	ctx := context.Background()

	entry := fixture.enqueue(t, "order", "o-1")
	require.NoError(t, fixture.entryRepo.MarkQuarantined(ctx, entry.ID, "schema rejected"))

	recorder := fixture.do(http.MethodPost, "/v1/sync/entries/"+entry.ID.String()+"/requeue", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	got, err := fixture.outbox.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EntryStatusPending, got.Status)

	// Requeueing an entry that is not parked fails
	recorder = fixture.do(http.MethodPost, "/v1/sync/entries/"+entry.ID.String()+"/requeue", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)

	recorder = fixture.do(http.MethodPost, "/v1/sync/entries/not-a-uuid/requeue", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
}

func TestStatusAPI_Critical(t *testing.T) {
	fixture := setupStatusAPI(t)

	entry := fixture.enqueue(t, "tax-invoice", "inv-1")

	recorder := fixture.do(http.MethodGet, "/v1/sync/entries/"+entry.ID.String()+"/critical", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var response criticalResponse
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &response))
	assert.Equal(t, entry.ID, response.EntryID)
	assert.Equal(t, "pending", response.State)

	// A plain entry has no critical submission
	plain := fixture.enqueue(t, "order", "o-1")
	recorder = fixture.do(http.MethodGet, "/v1/sync/entries/"+plain.ID.String()+"/critical", nil)
	assert.Equal(t, http.StatusNotFound, recorder.Code)
}

func TestStatusAPI_Conflicts(t *testing.T) {
	fixture := setupStatusAPI(t)
	ctx := context.Background()
	now := fixture.clock.Now().UTC()

	entry := fixture.enqueue(t, "stock-count", "s-1")
	require.NoError(t, fixture.entryRepo.MarkConflict(ctx, entry.ID, "awaiting manual conflict resolution"))

	record := &conflictDomain.Record{
		ID:            uuid.Must(uuid.NewV7()),
		EntryID:       entry.ID,
		EntityType:    "stock-count",
		EntityID:      "s-1",
		LocalPayload:  []byte(`{"qty":3}`),
		RemotePayload: []byte(`{"qty":5}`),
		Status:        conflictDomain.StatusOpen,
		DetectedAt:    now,
	}
	require.NoError(t, fixture.conflicts.Create(ctx, record))

	recorder := fixture.do(http.MethodGet, "/v1/sync/conflicts", nil)
	require.Equal(t, http.StatusOK, recorder.Code)

	var listResponse struct {
		Conflicts []conflictResponse `json:"conflicts"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &listResponse))
	require.Len(t, listResponse.Conflicts, 1)
	assert.Equal(t, record.ID, listResponse.Conflicts[0].ID)

	recorder = fixture.do(
		http.MethodPost,
		"/v1/sync/conflicts/"+record.ID.String()+"/resolve",
		resolveConflictRequest{Resolution: "remote_wins"},
	)
	require.Equal(t, http.StatusOK, recorder.Code)

	// Remote win retires the blocked entry
	got, err := fixture.outbox.Get(ctx, entry.ID)
	require.NoError(t, err)
	assert.Equal(t, outboxDomain.EntryStatusDone, got.Status)

	recorder = fixture.do(http.MethodGet, "/v1/sync/conflicts", nil)
	require.Equal(t, http.StatusOK, recorder.Code)
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &listResponse))
	assert.Empty(t, listResponse.Conflicts)

	// Invalid resolution value
	recorder = fixture.do(
		http.MethodPost,
		"/v1/sync/conflicts/"+record.ID.String()+"/resolve",
		resolveConflictRequest{Resolution: "coin-flip"},
	)
	assert.Equal(t, http.StatusUnprocessableEntity, recorder.Code)
}

package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// assertBizMetricLine checks that the Prometheus output contains a business metric
// matching the given name, partial label pattern, and value. Uses regex to handle
// extra OTel scope labels injected by the Prometheus exporter.
func assertBizMetricLine(t *testing.T, output, name, labels, value string) {
	t.Helper()
	pattern := name + `\{[^}]*` + labels + `[^}]*\} ` + value
	assert.Regexp(t, pattern, output)
}

func TestNewBusinessMetrics(t *testing.T) {
	t.Run("Success_CreateBusinessMetrics", func(t *testing.T) {
		provider, err := NewProvider("test_app")
		require.NoError(t, err)

		businessMetrics, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")

		require.NoError(t, err)
		assert.NotNil(t, businessMetrics)
	})
}

func TestBusinessMetrics_RecordOperation(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordSuccessfulOperation", func(t *testing.T) {
		// Should not panic
		bm.RecordOperation(context.Background(), "outbox", "entry_enqueue", "success")
	})

	t.Run("Success_RecordFailedOperation", func(t *testing.T) {
		// Should not panic
		bm.RecordOperation(context.Background(), "outbox", "entry_enqueue", "error")
	})

	t.Run("Success_RecordMultipleDomains", func(t *testing.T) {
		bm.RecordOperation(context.Background(), "outbox", "entry_enqueue", "success")
		bm.RecordOperation(context.Background(), "syncer", "entry_send", "accepted")
		bm.RecordOperation(context.Background(), "gateway", "change_ingest", "error")
	})
}

func TestBusinessMetrics_RecordDuration(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordSuccessfulDuration", func(t *testing.T) {
		// Should not panic
		bm.RecordDuration(context.Background(), "outbox", "entry_enqueue", 123*time.Millisecond, "success")
	})

	t.Run("Success_RecordFailedDuration", func(t *testing.T) {
		// Should not panic
		bm.RecordDuration(context.Background(), "outbox", "entry_enqueue", 456*time.Millisecond, "error")
	})

	t.Run("Success_RecordMultipleDomains", func(t *testing.T) {
		bm.RecordDuration(context.Background(), "outbox", "entry_enqueue", 100*time.Millisecond, "success")
		bm.RecordDuration(context.Background(), "syncer", "entry_send", 200*time.Millisecond, "accepted")
		bm.RecordDuration(context.Background(), "gateway", "change_ingest", 300*time.Millisecond, "error")
	})
}

func TestBusinessMetrics_RecordQueueDepth(t *testing.T) {
	provider, err := NewProvider("test_app")
	require.NoError(t, err)

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "test_app")
	require.NoError(t, err)

	t.Run("Success_RecordDepthPerStatus", func(t *testing.T) {
		// Should not panic
		bm.RecordQueueDepth(context.Background(), "pending", 42)
		bm.RecordQueueDepth(context.Background(), "quarantined", 0)
	})
}

func TestNewNoOpBusinessMetrics(t *testing.T) {
	noOpMetrics := NewNoOpBusinessMetrics()

	assert.NotNil(t, noOpMetrics)
	assert.IsType(t, &NoOpBusinessMetrics{}, noOpMetrics)

	t.Run("NoOp_RecordOperationDoesNotPanic", func(t *testing.T) {
		// Should not panic or do anything
		noOpMetrics.RecordOperation(context.Background(), "outbox", "entry_enqueue", "success")
		noOpMetrics.RecordOperation(context.Background(), "syncer", "entry_send", "error")
	})

	t.Run("NoOp_RecordDurationDoesNotPanic", func(t *testing.T) {
		// Should not panic or do anything
		noOpMetrics.RecordDuration(
			context.Background(),
			"outbox",
			"entry_enqueue",
			100*time.Millisecond,
			"success",
		)
		noOpMetrics.RecordDuration(context.Background(), "syncer", "entry_send", 200*time.Millisecond, "error")
	})

	t.Run("NoOp_RecordQueueDepthDoesNotPanic", func(t *testing.T) {
		noOpMetrics.RecordQueueDepth(context.Background(), "pending", 7)
	})
}

func TestBusinessMetrics_Integration(t *testing.T) {
	provider, err := NewProvider("integration_test")
	require.NoError(t, err)
	defer func() {
		assert.NoError(t, provider.Shutdown(context.Background()))
	}()

	bm, err := NewBusinessMetrics(provider.MeterProvider(), "integration_test")
	require.NoError(t, err)

	// Record various operations
	ctx := context.Background()

	// Record operation counts
	bm.RecordOperation(ctx, "outbox", "entry_enqueue", "success")
	bm.RecordOperation(ctx, "outbox", "entry_enqueue", "success")
	bm.RecordOperation(ctx, "outbox", "entry_enqueue", "error")
	bm.RecordOperation(ctx, "syncer", "entry_send", "accepted")
	bm.RecordOperation(ctx, "syncer", "entry_send", "conflict")
	bm.RecordOperation(ctx, "gateway", "change_ingest", "accepted")

	// Record operation durations
	bm.RecordDuration(ctx, "outbox", "entry_enqueue", 50*time.Millisecond, "success")
	bm.RecordDuration(ctx, "outbox", "entry_enqueue", 60*time.Millisecond, "success")
	bm.RecordDuration(ctx, "outbox", "entry_enqueue", 100*time.Millisecond, "error")
	bm.RecordDuration(ctx, "syncer", "entry_send", 10*time.Millisecond, "accepted")
	bm.RecordDuration(ctx, "syncer", "entry_send", 20*time.Millisecond, "conflict")
	bm.RecordDuration(ctx, "gateway", "change_ingest", 150*time.Millisecond, "accepted")

	// Record backlog depth
	bm.RecordQueueDepth(ctx, "pending", 5)
	bm.RecordQueueDepth(ctx, "quarantined", 1)

	// Metrics should be recorded without errors
	// Verify metrics in Prometheus registry
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	provider.Handler().ServeHTTP(w, req)

	output := w.Body.String()

	// Check operation counts
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="outbox".*operation="entry_enqueue".*status="success"`,
		`2`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="outbox".*operation="entry_enqueue".*status="error"`,
		`1`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operations_total`,
		`domain="syncer".*operation="entry_send".*status="accepted"`,
		`1`,
	)

	// Check durations (existence)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operation_duration_seconds_count`,
		`domain="outbox".*operation="entry_enqueue".*status="success"`,
		`2`,
	)
	assertBizMetricLine(
		t,
		output,
		`integration_test_operation_duration_seconds_sum`,
		`domain="outbox".*operation="entry_enqueue".*status="success"`,
		``,
	)

	// Check queue depth gauge
	assertBizMetricLine(
		t,
		output,
		`integration_test_queue_entries`,
		`status="pending"`,
		`5`,
	)
}

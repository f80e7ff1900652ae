package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newTestMonitor(url string, clock clockwork.Clock) *HTTPMonitor {
	return NewHTTPMonitor(
		url,
		15*time.Second,
		time.Second,
		24*time.Hour,
		clock,
		slog.New(slog.DiscardHandler),
	)
}

func TestHTTPMonitor_Probe(t *testing.T) {
	t.Run("HealthyGateway", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		monitor := newTestMonitor(server.URL+"/healthz", clockwork.NewFakeClock())
		assert.False(t, monitor.IsOnline(), "monitors start offline")

		monitor.probe(context.Background())
		assert.True(t, monitor.IsOnline())
		assert.Nil(t, monitor.OfflineSince())
	})

	t.Run("UnreachableGateway", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
		server.Close()

		clock := clockwork.NewFakeClock()
		monitor := newTestMonitor(server.URL+"/healthz", clock)

		monitor.probe(context.Background())
		assert.False(t, monitor.IsOnline())

		offlineSince := monitor.OfflineSince()
		assert.NotNil(t, offlineSince)

		// The offline timestamp is set once, not per probe
		clock.Advance(time.Minute)
		monitor.probe(context.Background())
		assert.Equal(t, *offlineSince, *monitor.OfflineSince())
	})

	t.Run("ServerErrorIsOffline", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		}))
		defer server.Close()

		monitor := newTestMonitor(server.URL+"/healthz", clockwork.NewFakeClock())
		monitor.probe(context.Background())
		assert.False(t, monitor.IsOnline())
	})
}

func TestHTTPMonitor_Transitions(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	monitor := newTestMonitor(server.URL+"/healthz", clockwork.NewFakeClock())
	transitions := monitor.Subscribe()
	ctx := context.Background()

	// offline -> offline is not a transition
	monitor.probe(ctx)
	select {
	case state := <-transitions:
		t.Fatalf("unexpected transition: %v", state)
	default:
	}

	healthy.Store(true)
	monitor.probe(ctx)
	assert.Equal(t, StateOnline, <-transitions)

	healthy.Store(false)
	monitor.probe(ctx)
	assert.Equal(t, StateOffline, <-transitions)
}

func TestHTTPMonitor_SlowSubscriberSeesLatestState(t *testing.T) {
	var healthy atomic.Bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if healthy.Load() {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	monitor := newTestMonitor(server.URL+"/healthz", clockwork.NewFakeClock())
	transitions := monitor.Subscribe()
	ctx := context.Background()

	// Two transitions without the subscriber reading: the buffered channel
	// keeps only the newest state.
	healthy.Store(true)
	monitor.probe(ctx)
	healthy.Store(false)
	monitor.probe(ctx)

	assert.Equal(t, StateOffline, <-transitions)
}

func TestHTTPMonitor_Run(t *testing.T) {
	var probes atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		probes.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	monitor := NewHTTPMonitor(
		server.URL+"/healthz",
		5*time.Millisecond,
		time.Second,
		24*time.Hour,
		clockwork.NewRealClock(),
		slog.New(slog.DiscardHandler),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- monitor.Run(ctx) }()

	assert.Eventually(t, func() bool { return probes.Load() >= 2 }, time.Second, time.Millisecond)
	assert.True(t, monitor.IsOnline())

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

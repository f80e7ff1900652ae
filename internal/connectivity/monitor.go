// Package connectivity tracks whether the central gateway is reachable.
//
// A periodic HTTP probe drives an online/offline state machine. Consumers
// either poll the current state or subscribe to transitions; the sync worker
// uses a transition to Online to trigger an immediate drain instead of
// waiting for its next scheduling tick.
package connectivity

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// State is the reachability of the gateway.
type State int

const (
	StateOffline State = iota
	StateOnline
)

// String returns the state name for logs.
func (s State) String() string {
	if s == StateOnline {
		return "online"
	}
	return "offline"
}

// Monitor reports gateway reachability.
type Monitor interface {
	// IsOnline returns the state as of the last probe.
	IsOnline() bool

	// OfflineSince returns when connectivity was lost, or nil while online.
	OfflineSince() *time.Time

	// Subscribe returns a channel receiving state transitions. Slow
	// receivers miss intermediate transitions but always observe the
	// latest state eventually.
	Subscribe() <-chan State

	// Run probes until the context is canceled.
	Run(ctx context.Context) error
}

// HTTPMonitor probes a gateway health endpoint on a fixed interval.
type HTTPMonitor struct {
	probeURL        string
	httpClient      *http.Client
	interval        time.Duration
	offlineAlertAge time.Duration
	clock           clockwork.Clock
	logger          *slog.Logger

	mu           sync.Mutex
	online       bool
	offlineSince *time.Time
	alerted      bool
	subscribers  []chan State
}

// NewHTTPMonitor creates a monitor probing the given health URL. The monitor
// starts offline until the first successful probe. When connectivity stays
// lost longer than offlineAlertAge, one warning is logged so operators learn
// about nodes that silently stopped syncing.
func NewHTTPMonitor(
	probeURL string,
	interval time.Duration,
	probeTimeout time.Duration,
	offlineAlertAge time.Duration,
	clock clockwork.Clock,
	logger *slog.Logger,
) *HTTPMonitor {
	return &HTTPMonitor{
		probeURL:        probeURL,
		httpClient:      &http.Client{Timeout: probeTimeout},
		interval:        interval,
		offlineAlertAge: offlineAlertAge,
		clock:           clock,
		logger:          logger,
	}
}

// IsOnline returns the state as of the last probe.
func (m *HTTPMonitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// OfflineSince returns when connectivity was lost, or nil while online.
func (m *HTTPMonitor) OfflineSince() *time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.offlineSince == nil {
		return nil
	}
	value := *m.offlineSince
	return &value
}

// Subscribe returns a channel receiving state transitions.
func (m *HTTPMonitor) Subscribe() <-chan State {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := make(chan State, 1)
	m.subscribers = append(m.subscribers, ch)
	return ch
}

// Run probes immediately and then on every interval tick until the context
// is canceled.
func (m *HTTPMonitor) Run(ctx context.Context) error {
	m.probe(ctx)

	ticker := m.clock.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
			m.probe(ctx)
		}
	}
}

func (m *HTTPMonitor) probe(ctx context.Context) {
	online := m.check(ctx)
	now := m.clock.Now().UTC()

	m.mu.Lock()

	transitioned := online != m.online
	m.online = online

	if online {
		m.offlineSince = nil
		m.alerted = false
	} else if m.offlineSince == nil {
		m.offlineSince = &now
	}

	var alertAge time.Duration
	if !online && !m.alerted && m.offlineSince != nil {
		if age := now.Sub(*m.offlineSince); age >= m.offlineAlertAge {
			m.alerted = true
			alertAge = age
		}
	}

	var subscribers []chan State
	if transitioned {
		subscribers = make([]chan State, len(m.subscribers))
		copy(subscribers, m.subscribers)
	}
	m.mu.Unlock()

	if transitioned {
		state := StateOffline
		if online {
			state = StateOnline
		}
		m.logger.Info("connectivity changed", slog.String("state", state.String()))

		for _, ch := range subscribers {
			// Drop the stale transition if the receiver has not caught up.
			select {
			case ch <- state:
			default:
				select {
				case <-ch:
				default:
				}
				select {
				case ch <- state:
				default:
				}
			}
		}
	}

	if alertAge > 0 {
		m.logger.Warn("node offline beyond alert threshold",
			slog.Duration("offline_for", alertAge),
			slog.String("probe_url", m.probeURL),
		)
	}
}

func (m *HTTPMonitor) check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.probeURL, nil)
	if err != nil {
		return false
	}

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return false
	}
	defer func() { _ = resp.Body.Close() }()

	return resp.StatusCode < http.StatusInternalServerError
}

package syncer

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	"github.com/edgepos/edgesync/internal/connectivity"
	"github.com/edgepos/edgesync/internal/database"
	"github.com/edgepos/edgesync/internal/metrics"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	outboxUsecase "github.com/edgepos/edgesync/internal/outbox/usecase"
	"github.com/edgepos/edgesync/internal/transport"
)

// ConflictHandler decides reported conflicts for ordinary entries.
type ConflictHandler interface {
	HandleRemoteConflict(
		ctx context.Context,
		entry *outboxDomain.Entry,
		remote conflictDomain.Version,
	) (*conflictDomain.Record, error)
}

// CriticalDeliverer handles entries of critical entity types with
// query-before-retry semantics.
type CriticalDeliverer interface {
	Deliver(ctx context.Context, entry *outboxDomain.Entry) error
}

// Applier integrates inbound central changes into the node's local store.
type Applier interface {
	Apply(ctx context.Context, change transport.InboundChange) error
}

// Config carries the engine's scheduling parameters.
type Config struct {
	NodeID              string
	PoolSize            int
	BatchSize           int
	Interval            time.Duration
	LeaseDuration       time.Duration
	PullEnabled         bool
	PullInterval        time.Duration
	CriticalEntityTypes []string
	// OfflineAlertAge logs a warning when the oldest pending entry has been
	// queued longer than this. Zero disables the check.
	OfflineAlertAge time.Duration
	Retry           RetryPolicy
}

// Engine owns the sync loops: outbound dispatch, inbound pull and lease
// recovery. All loops share one lifecycle and stop together.
type Engine struct {
	cfg           Config
	txManager     database.TxManager
	entryRepo     outboxUsecase.EntryRepository
	ledger        outboxUsecase.IdempotencyRepository
	watermarks    outboxUsecase.WatermarkRepository
	transport     transport.Transport
	conflicts     ConflictHandler
	critical      CriticalDeliverer
	monitor       connectivity.Monitor
	applier       Applier
	clock         clockwork.Clock
	logger        *slog.Logger
	metrics       metrics.BusinessMetrics
	criticalTypes map[string]struct{}
	events        chan Event
	wake          chan struct{}
}

// NewEngine creates a sync engine. The applier may be nil when inbound pull
// is disabled.
func NewEngine(
	cfg Config,
	txManager database.TxManager,
	entryRepo outboxUsecase.EntryRepository,
	ledger outboxUsecase.IdempotencyRepository,
	watermarks outboxUsecase.WatermarkRepository,
	tp transport.Transport,
	conflicts ConflictHandler,
	critical CriticalDeliverer,
	monitor connectivity.Monitor,
	applier Applier,
	clock clockwork.Clock,
	logger *slog.Logger,
	businessMetrics metrics.BusinessMetrics,
) *Engine {
	criticalTypes := make(map[string]struct{}, len(cfg.CriticalEntityTypes))
	for _, entityType := range cfg.CriticalEntityTypes {
		criticalTypes[entityType] = struct{}{}
	}

	return &Engine{
		cfg:           cfg,
		txManager:     txManager,
		entryRepo:     entryRepo,
		ledger:        ledger,
		watermarks:    watermarks,
		transport:     tp,
		conflicts:     conflicts,
		critical:      critical,
		monitor:       monitor,
		applier:       applier,
		clock:         clock,
		logger:        logger,
		metrics:       businessMetrics,
		criticalTypes: criticalTypes,
		events:        make(chan Event, 128),
		wake:          make(chan struct{}, 1),
	}
}

// Events returns the advisory lifecycle event stream.
func (e *Engine) Events() <-chan Event {
	return e.events
}

// Run starts all sync loops and blocks until the context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return e.dispatchLoop(ctx) })
	g.Go(func() error { return e.leaseLoop(ctx) })
	g.Go(func() error { return e.wakeLoop(ctx) })
	if e.cfg.PullEnabled {
		g.Go(func() error { return e.pullLoop(ctx) })
	}

	return g.Wait()
}

// dispatchLoop drains the outbox on every tick and on reconnect wakeups.
func (e *Engine) dispatchLoop(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		case <-e.wake:
		}

		if !e.monitor.IsOnline() {
			continue
		}
		e.drain(ctx)
	}
}

// drain processes batches until the ready set is empty, then publishes the
// backlog depth so operators can watch the queue grow during outages.
func (e *Engine) drain(ctx context.Context) {
	for ctx.Err() == nil {
		if e.processBatch(ctx) == 0 {
			break
		}
	}
	e.recordBacklog(ctx)
}

func (e *Engine) recordBacklog(ctx context.Context) {
	stats, err := e.entryRepo.Stats(ctx)
	if err != nil {
		e.logger.Error("failed to read queue stats", slog.Any("error", err))
		return
	}
	e.metrics.RecordQueueDepth(ctx, "pending", stats.Pending)
	e.metrics.RecordQueueDepth(ctx, "in_flight", stats.InFlight)
	e.metrics.RecordQueueDepth(ctx, "conflict", stats.Conflict)
	e.metrics.RecordQueueDepth(ctx, "quarantined", stats.Quarantined)

	if stats.OldestPending != nil && e.cfg.OfflineAlertAge > 0 {
		age := e.clock.Now().UTC().Sub(*stats.OldestPending)
		if age > e.cfg.OfflineAlertAge {
			e.logger.Warn("oldest pending entry exceeds offline alert age",
				slog.Duration("age", age),
				slog.Duration("threshold", e.cfg.OfflineAlertAge),
				slog.Int64("pending", stats.Pending),
			)
		}
	}
}

// processBatch claims and transmits one batch of ready entries. PeekReady
// returns at most one entry per entity key, so workers never race on the
// same key's ordering.
func (e *Engine) processBatch(ctx context.Context) int {
	now := e.clock.Now().UTC()

	entries, err := e.entryRepo.PeekReady(ctx, now, e.cfg.BatchSize)
	if err != nil {
		e.logger.Error("failed to peek ready entries", slog.Any("error", err))
		return 0
	}
	if len(entries) == 0 {
		return 0
	}

	g := &errgroup.Group{}
	g.SetLimit(e.cfg.PoolSize)
	for _, entry := range entries {
		g.Go(func() error {
			e.process(ctx, entry)
			return nil
		})
	}
	_ = g.Wait()

	return len(entries)
}

// process transmits one ready entry and applies the classified outcome.
func (e *Engine) process(ctx context.Context, entry *outboxDomain.Entry) {
	now := e.clock.Now().UTC()

	err := e.entryRepo.ClaimInFlight(ctx, entry.ID, now, now.Add(e.cfg.LeaseDuration))
	if err != nil {
		if !errors.Is(err, outboxDomain.ErrEntryNotClaimed) {
			e.logger.Error("failed to claim entry",
				slog.String("entry_id", entry.ID.String()), slog.Any("error", err))
		}
		return
	}
	attempt := entry.AttemptCount + 1

	if _, critical := e.criticalTypes[entry.EntityType]; critical {
		if err := e.critical.Deliver(ctx, entry); err != nil {
			e.logger.Error("critical delivery failed",
				slog.String("entry_id", entry.ID.String()), slog.Any("error", err))
		}
		return
	}

	start := time.Now()
	result, err := e.transport.SendChange(ctx, transport.NewChangeRequest(entry))
	if err != nil {
		e.metrics.RecordOperation(ctx, "syncer", "entry_send", "transient")
		e.retryOrQuarantine(ctx, entry, attempt, err.Error())
		return
	}
	e.metrics.RecordOperation(ctx, "syncer", "entry_send", result.Outcome.String())
	e.metrics.RecordDuration(ctx, "syncer", "entry_send", time.Since(start), result.Outcome.String())

	switch result.Outcome {
	case transport.OutcomeAccepted:
		e.finish(ctx, entry, "accepted")

	case transport.OutcomeRejected:
		if err := e.entryRepo.MarkQuarantined(ctx, entry.ID, result.Reason); err != nil {
			e.logger.Error("failed to quarantine entry",
				slog.String("entry_id", entry.ID.String()), slog.Any("error", err))
			return
		}
		e.emit(Event{
			Kind: EventEntryQuarantined, EntryID: entry.ID,
			EntityType: entry.EntityType, EntityID: entry.EntityID,
			Reason: result.Reason, At: e.clock.Now().UTC(),
		})

	case transport.OutcomeConflict:
		remote := conflictDomain.Version{}
		if result.Remote != nil {
			remote = conflictDomain.Version{
				Payload:   result.Remote.Payload,
				UpdatedAt: result.Remote.UpdatedAt,
				NodeID:    result.Remote.UpdatedBy,
			}
		}
		if _, err := e.conflicts.HandleRemoteConflict(ctx, entry, remote); err != nil {
			e.logger.Error("failed to handle conflict",
				slog.String("entry_id", entry.ID.String()), slog.Any("error", err))
			return
		}
		e.emit(Event{
			Kind: EventEntryConflict, EntryID: entry.ID,
			EntityType: entry.EntityType, EntityID: entry.EntityID,
			Reason: result.Reason, At: e.clock.Now().UTC(),
		})

	default:
		e.retryOrQuarantine(ctx, entry, attempt, result.Reason)
	}
}

// finish retires an acknowledged entry and records the acknowledgment in the
// idempotency ledger atomically.
func (e *Engine) finish(ctx context.Context, entry *outboxDomain.Entry, result string) {
	now := e.clock.Now().UTC()

	err := e.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := e.entryRepo.MarkDone(txCtx, entry.ID); err != nil {
			return err
		}
		return e.ledger.Record(txCtx, &outboxDomain.IdempotencyRecord{
			ID:           entry.ID,
			ServerResult: result,
			AppliedAt:    now,
		})
	})
	if err != nil {
		e.logger.Error("failed to retire entry",
			slog.String("entry_id", entry.ID.String()), slog.Any("error", err))
		return
	}

	e.emit(Event{
		Kind: EventEntryDone, EntryID: entry.ID,
		EntityType: entry.EntityType, EntityID: entry.EntityID, At: now,
	})
}

func (e *Engine) retryOrQuarantine(ctx context.Context, entry *outboxDomain.Entry, attempt int, reason string) {
	now := e.clock.Now().UTC()

	if e.cfg.Retry.Exhausted(attempt) {
		quarantineReason := "retry budget exhausted: " + reason
		if err := e.entryRepo.MarkQuarantined(ctx, entry.ID, quarantineReason); err != nil {
			e.logger.Error("failed to quarantine entry",
				slog.String("entry_id", entry.ID.String()), slog.Any("error", err))
			return
		}
		e.logger.Warn("entry quarantined",
			slog.String("entry_id", entry.ID.String()),
			slog.Int("attempts", attempt),
			slog.String("reason", reason),
		)
		e.emit(Event{
			Kind: EventEntryQuarantined, EntryID: entry.ID,
			EntityType: entry.EntityType, EntityID: entry.EntityID,
			Reason: quarantineReason, At: now,
		})
		return
	}

	delay := e.cfg.Retry.DelayFor(attempt)
	if err := e.entryRepo.MarkFailed(ctx, entry.ID, reason, now.Add(delay)); err != nil {
		e.logger.Error("failed to reschedule entry",
			slog.String("entry_id", entry.ID.String()), slog.Any("error", err))
		return
	}
	e.emit(Event{
		Kind: EventEntryRetry, EntryID: entry.ID,
		EntityType: entry.EntityType, EntityID: entry.EntityID,
		Reason: reason, At: now,
	})
}

// leaseLoop reverts entries whose worker died mid-transmission.
func (e *Engine) leaseLoop(ctx context.Context) error {
	interval := e.cfg.LeaseDuration / 2
	if interval < time.Second {
		interval = time.Second
	}

	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		released, err := e.entryRepo.ReleaseExpiredLeases(ctx, e.clock.Now().UTC())
		if err != nil {
			e.logger.Error("failed to release expired leases", slog.Any("error", err))
			continue
		}
		if released > 0 {
			e.logger.Warn("released expired leases", slog.Int64("count", released))
		}
	}
}

// wakeLoop triggers an immediate drain when connectivity returns, so a node
// coming back from a long offline stretch does not wait for the next tick.
func (e *Engine) wakeLoop(ctx context.Context) error {
	transitions := e.monitor.Subscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case state := <-transitions:
			if state != connectivity.StateOnline {
				continue
			}
			select {
			case e.wake <- struct{}{}:
			default:
			}
		}
	}
}

// pullLoop periodically fetches centrally-originated changes.
func (e *Engine) pullLoop(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.cfg.PullInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.Chan():
		}

		if !e.monitor.IsOnline() {
			continue
		}
		e.pullOnce(ctx)
	}
}

// pullOnce pages through the inbound feed from the stored watermark. The
// watermark only advances after a fully applied page, so a failure replays
// the page on the next cycle; inbound application must therefore be
// idempotent, which upserts by entity key are.
func (e *Engine) pullOnce(ctx context.Context) {
	since, err := e.watermarks.Get(ctx)
	if err != nil {
		e.logger.Error("failed to read watermark", slog.Any("error", err))
		return
	}

	for {
		feed, err := e.transport.PullChanges(ctx, since, e.cfg.BatchSize)
		if err != nil {
			e.logger.Error("inbound pull failed", slog.Any("error", err))
			return
		}
		if len(feed.Changes) == 0 {
			return
		}

		for _, change := range feed.Changes {
			if change.UpdatedBy == e.cfg.NodeID {
				// Own change echoed back through the feed.
				continue
			}
			if err := e.applier.Apply(ctx, change); err != nil {
				e.logger.Error("failed to apply inbound change",
					slog.Int64("position", change.Position),
					slog.String("entity_type", change.EntityType),
					slog.Any("error", err),
				)
				return
			}
			e.metrics.RecordOperation(ctx, "syncer", "inbound_apply", "success")
			e.emit(Event{
				Kind:       EventInboundApplied,
				EntityType: change.EntityType,
				EntityID:   change.EntityID,
				At:         e.clock.Now().UTC(),
			})
		}

		since = feed.NextSince
		if err := e.watermarks.Save(ctx, since, e.clock.Now().UTC()); err != nil {
			e.logger.Error("failed to save watermark", slog.Any("error", err))
			return
		}

		if len(feed.Changes) < e.cfg.BatchSize {
			return
		}
	}
}

func (e *Engine) emit(event Event) {
	select {
	case e.events <- event:
	default:
	}
}

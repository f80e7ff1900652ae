package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/edgepos/edgesync/internal/metrics"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// outboxUseCaseWithMetrics decorates OutboxUseCase with metrics instrumentation.
type outboxUseCaseWithMetrics struct {
	next    OutboxUseCase
	metrics metrics.BusinessMetrics
}

// NewOutboxUseCaseWithMetrics wraps an OutboxUseCase with metrics recording.
func NewOutboxUseCaseWithMetrics(useCase OutboxUseCase, m metrics.BusinessMetrics) OutboxUseCase {
	return &outboxUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// Enqueue records metrics for outbox enqueue operations.
func (o *outboxUseCaseWithMetrics) Enqueue(
	ctx context.Context,
	input *outboxDomain.EnqueueInput,
) (*outboxDomain.Entry, error) {
	start := time.Now()
	entry, err := o.next.Enqueue(ctx, input)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", "entry_enqueue", status)
	o.metrics.RecordDuration(ctx, "outbox", "entry_enqueue", time.Since(start), status)

	return entry, err
}

// Get records metrics for outbox entry retrieval.
func (o *outboxUseCaseWithMetrics) Get(ctx context.Context, id uuid.UUID) (*outboxDomain.Entry, error) {
	start := time.Now()
	entry, err := o.next.Get(ctx, id)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", "entry_get", status)
	o.metrics.RecordDuration(ctx, "outbox", "entry_get", time.Since(start), status)

	return entry, err
}

// GetCriticalSubmission records metrics for critical submission retrieval.
func (o *outboxUseCaseWithMetrics) GetCriticalSubmission(
	ctx context.Context,
	entryID uuid.UUID,
) (*outboxDomain.CriticalSubmission, error) {
	start := time.Now()
	submission, err := o.next.GetCriticalSubmission(ctx, entryID)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", "critical_get", status)
	o.metrics.RecordDuration(ctx, "outbox", "critical_get", time.Since(start), status)

	return submission, err
}

// Requeue records metrics for operator requeue operations.
func (o *outboxUseCaseWithMetrics) Requeue(ctx context.Context, id uuid.UUID) error {
	start := time.Now()
	err := o.next.Requeue(ctx, id)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", "entry_requeue", status)
	o.metrics.RecordDuration(ctx, "outbox", "entry_requeue", time.Since(start), status)

	return err
}

// ListByStatus records metrics for entry listing.
func (o *outboxUseCaseWithMetrics) ListByStatus(
	ctx context.Context,
	status outboxDomain.EntryStatus,
	limit int,
) ([]*outboxDomain.Entry, error) {
	start := time.Now()
	entries, err := o.next.ListByStatus(ctx, status, limit)

	opStatus := "success"
	if err != nil {
		opStatus = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", "entry_list", opStatus)
	o.metrics.RecordDuration(ctx, "outbox", "entry_list", time.Since(start), opStatus)

	return entries, err
}

// Stats records metrics for backlog summary queries.
func (o *outboxUseCaseWithMetrics) Stats(ctx context.Context) (*outboxDomain.QueueStats, error) {
	start := time.Now()
	stats, err := o.next.Stats(ctx)

	status := "success"
	if err != nil {
		status = "error"
	}

	o.metrics.RecordOperation(ctx, "outbox", "queue_stats", status)
	o.metrics.RecordDuration(ctx, "outbox", "queue_stats", time.Since(start), status)

	return stats, err
}

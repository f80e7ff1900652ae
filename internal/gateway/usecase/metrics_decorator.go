package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"

	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
	"github.com/edgepos/edgesync/internal/metrics"
)

// syncUseCaseWithMetrics decorates SyncUseCase with metrics instrumentation.
type syncUseCaseWithMetrics struct {
	next    SyncUseCase
	metrics metrics.BusinessMetrics
}

// NewSyncUseCaseWithMetrics wraps a SyncUseCase with metrics recording.
func NewSyncUseCaseWithMetrics(useCase SyncUseCase, m metrics.BusinessMetrics) SyncUseCase {
	return &syncUseCaseWithMetrics{
		next:    useCase,
		metrics: m,
	}
}

// IngestChange records metrics for change ingestion, labeled by verdict.
func (s *syncUseCaseWithMetrics) IngestChange(
	ctx context.Context,
	nodeID string,
	submission *gatewayDomain.ChangeSubmission,
) (*gatewayDomain.IngestResult, error) {
	start := time.Now()
	result, err := s.next.IngestChange(ctx, nodeID, submission)

	status := "error"
	if err == nil {
		status = string(result.Status)
	}

	s.metrics.RecordOperation(ctx, "gateway", "change_ingest", status)
	s.metrics.RecordDuration(ctx, "gateway", "change_ingest", time.Since(start), status)

	return result, err
}

// GetStatus records metrics for status queries.
func (s *syncUseCaseWithMetrics) GetStatus(
	ctx context.Context,
	key uuid.UUID,
) (*gatewayDomain.AppliedChange, error) {
	start := time.Now()
	change, err := s.next.GetStatus(ctx, key)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "gateway", "status_get", status)
	s.metrics.RecordDuration(ctx, "gateway", "status_get", time.Since(start), status)

	return change, err
}

// ListChanges records metrics for feed reads.
func (s *syncUseCaseWithMetrics) ListChanges(
	ctx context.Context,
	since int64,
	limit int,
) ([]*gatewayDomain.FeedEntry, int64, error) {
	start := time.Now()
	entries, nextSince, err := s.next.ListChanges(ctx, since, limit)

	status := "success"
	if err != nil {
		status = "error"
	}

	s.metrics.RecordOperation(ctx, "gateway", "feed_list", status)
	s.metrics.RecordDuration(ctx, "gateway", "feed_list", time.Since(start), status)

	return entries, nextSince, err
}

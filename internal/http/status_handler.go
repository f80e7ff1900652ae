package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	conflictUseCase "github.com/edgepos/edgesync/internal/conflict/usecase"
	"github.com/edgepos/edgesync/internal/connectivity"
	"github.com/edgepos/edgesync/internal/httputil"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	outboxUseCase "github.com/edgepos/edgesync/internal/outbox/usecase"
)

// statusResponse is the operator-facing node sync status.
type statusResponse struct {
	Online       bool       `json:"online"`
	OfflineSince *time.Time `json:"offline_since,omitempty"`
	Queue        queueStats `json:"queue"`
}

type queueStats struct {
	Pending       int64      `json:"pending"`
	InFlight      int64      `json:"in_flight"`
	Done          int64      `json:"done"`
	Conflict      int64      `json:"conflict"`
	Quarantined   int64      `json:"quarantined"`
	OldestPending *time.Time `json:"oldest_pending,omitempty"`
	LastDoneAt    *time.Time `json:"last_done_at,omitempty"`
}

type entryResponse struct {
	ID            uuid.UUID  `json:"id"`
	EntityType    string     `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	Operation     string     `json:"operation"`
	Priority      int        `json:"priority"`
	Sequence      int64      `json:"sequence"`
	Status        string     `json:"status"`
	AttemptCount  int        `json:"attempt_count"`
	NextAttemptAt time.Time  `json:"next_attempt_at"`
	LastError     *string    `json:"last_error,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	LastAttemptAt *time.Time `json:"last_attempt_at,omitempty"`
}

type conflictResponse struct {
	ID            uuid.UUID  `json:"id"`
	EntryID       uuid.UUID  `json:"entry_id"`
	EntityType    string     `json:"entity_type"`
	EntityID      string     `json:"entity_id"`
	LocalPayload  []byte     `json:"local_payload"`
	RemotePayload []byte     `json:"remote_payload"`
	Status        string     `json:"status"`
	DetectedAt    time.Time  `json:"detected_at"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
}

type resolveConflictRequest struct {
	Resolution string `json:"resolution" binding:"required"`
}

type criticalResponse struct {
	EntryID     uuid.UUID  `json:"entry_id"`
	State       string     `json:"state"`
	QueryCount  int        `json:"query_count"`
	Reason      *string    `json:"reason,omitempty"`
	SubmittedAt *time.Time `json:"submitted_at,omitempty"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

// StatusHandler serves the node-local sync status API used by the POS UI and
// back-office operators: backlog summary, quarantine management and manual
// conflict resolution.
type StatusHandler struct {
	outbox    outboxUseCase.OutboxUseCase
	conflicts conflictUseCase.ConflictUseCase
	monitor   connectivity.Monitor
	logger    *slog.Logger
}

// NewStatusHandler creates a new status handler with required dependencies.
func NewStatusHandler(
	outbox outboxUseCase.OutboxUseCase,
	conflicts conflictUseCase.ConflictUseCase,
	monitor connectivity.Monitor,
	logger *slog.Logger,
) *StatusHandler {
	return &StatusHandler{
		outbox:    outbox,
		conflicts: conflicts,
		monitor:   monitor,
		logger:    logger,
	}
}

// RegisterRoutes mounts the status API endpoints.
func (h *StatusHandler) RegisterRoutes(router gin.IRouter) {
	group := router.Group("/v1/sync")
	group.GET("/status", h.GetStatusHandler)
	group.GET("/entries", h.ListEntriesHandler)
	group.GET("/entries/:id", h.GetEntryHandler)
	group.POST("/entries/:id/requeue", h.RequeueHandler)
	group.GET("/entries/:id/critical", h.GetCriticalHandler)
	group.GET("/conflicts", h.ListConflictsHandler)
	group.POST("/conflicts/:id/resolve", h.ResolveConflictHandler)
}

// GetStatusHandler returns connectivity state and the backlog summary.
// GET /v1/sync/status
func (h *StatusHandler) GetStatusHandler(c *gin.Context) {
	stats, err := h.outbox.Stats(c.Request.Context())
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, statusResponse{
		Online:       h.monitor.IsOnline(),
		OfflineSince: h.monitor.OfflineSince(),
		Queue: queueStats{
			Pending:       stats.Pending,
			InFlight:      stats.InFlight,
			Done:          stats.Done,
			Conflict:      stats.Conflict,
			Quarantined:   stats.Quarantined,
			OldestPending: stats.OldestPending,
			LastDoneAt:    stats.LastDoneAt,
		},
	})
}

// ListEntriesHandler lists entries in a given status, oldest first.
// GET /v1/sync/entries?status=quarantined&limit=50
func (h *StatusHandler) ListEntriesHandler(c *gin.Context) {
	status := outboxDomain.EntryStatus(c.DefaultQuery("status", string(outboxDomain.EntryStatusQuarantined)))
	switch status {
	case outboxDomain.EntryStatusPending,
		outboxDomain.EntryStatusInFlight,
		outboxDomain.EntryStatusDone,
		outboxDomain.EntryStatusConflict,
		outboxDomain.EntryStatusQuarantined:
	default:
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid status parameter: %s", status),
			h.logger,
		)
		return
	}

	limit, err := httputil.ParseLimit(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	entries, err := h.outbox.ListByStatus(c.Request.Context(), status, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	responses := make([]entryResponse, 0, len(entries))
	for _, entry := range entries {
		responses = append(responses, mapEntryToResponse(entry))
	}
	c.JSON(http.StatusOK, gin.H{"entries": responses})
}

// GetEntryHandler retrieves one outbox entry.
// GET /v1/sync/entries/:id
func (h *StatusHandler) GetEntryHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid entry id: %w", err), h.logger)
		return
	}

	entry, err := h.outbox.Get(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, mapEntryToResponse(entry))
}

// RequeueHandler returns a quarantined or conflicted entry to the queue.
// POST /v1/sync/entries/:id/requeue
func (h *StatusHandler) RequeueHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid entry id: %w", err), h.logger)
		return
	}

	if err := h.outbox.Requeue(c.Request.Context(), id); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "requeued"})
}

// GetCriticalHandler retrieves the critical submission state for an entry.
// GET /v1/sync/entries/:id/critical
func (h *StatusHandler) GetCriticalHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid entry id: %w", err), h.logger)
		return
	}

	submission, err := h.outbox.GetCriticalSubmission(c.Request.Context(), id)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, criticalResponse{
		EntryID:     submission.EntryID,
		State:       string(submission.State),
		QueryCount:  submission.QueryCount,
		Reason:      submission.Reason,
		SubmittedAt: submission.SubmittedAt,
		ResolvedAt:  submission.ResolvedAt,
	})
}

// ListConflictsHandler lists open conflict records awaiting an operator.
// GET /v1/sync/conflicts?limit=50
func (h *StatusHandler) ListConflictsHandler(c *gin.Context) {
	limit, err := httputil.ParseLimit(c)
	if err != nil {
		httputil.HandleValidationErrorGin(c, err, h.logger)
		return
	}

	records, err := h.conflicts.ListOpen(c.Request.Context(), limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	responses := make([]conflictResponse, 0, len(records))
	for _, record := range records {
		responses = append(responses, mapConflictToResponse(record))
	}
	c.JSON(http.StatusOK, gin.H{"conflicts": responses})
}

// ResolveConflictHandler closes an open conflict with an operator decision.
// POST /v1/sync/conflicts/:id/resolve {"resolution": "local_wins"|"remote_wins"}
func (h *StatusHandler) ResolveConflictHandler(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid conflict id: %w", err), h.logger)
		return
	}

	var req resolveConflictRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	resolution := conflictDomain.Resolution(req.Resolution)
	if err := h.conflicts.ResolveManual(c.Request.Context(), id, resolution); err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "resolved", "resolution": req.Resolution})
}

func mapEntryToResponse(entry *outboxDomain.Entry) entryResponse {
	return entryResponse{
		ID:            entry.ID,
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		Operation:     string(entry.Operation),
		Priority:      entry.Priority,
		Sequence:      entry.Sequence,
		Status:        string(entry.Status),
		AttemptCount:  entry.AttemptCount,
		NextAttemptAt: entry.NextAttemptAt,
		LastError:     entry.LastError,
		CreatedAt:     entry.CreatedAt,
		LastAttemptAt: entry.LastAttemptAt,
	}
}

func mapConflictToResponse(record *conflictDomain.Record) conflictResponse {
	return conflictResponse{
		ID:            record.ID,
		EntryID:       record.EntryID,
		EntityType:    record.EntityType,
		EntityID:      record.EntityID,
		LocalPayload:  record.LocalPayload,
		RemotePayload: record.RemotePayload,
		Status:        string(record.Status),
		DetectedAt:    record.DetectedAt,
		ResolvedAt:    record.ResolvedAt,
	}
}

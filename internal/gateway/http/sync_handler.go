package http

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	apperrors "github.com/edgepos/edgesync/internal/errors"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
	"github.com/edgepos/edgesync/internal/gateway/http/dto"
	gatewayUseCase "github.com/edgepos/edgesync/internal/gateway/usecase"
	"github.com/edgepos/edgesync/internal/httputil"
	customValidation "github.com/edgepos/edgesync/internal/validation"
)

const (
	defaultFeedLimit = 100
	maxFeedLimit     = 500
)

// SyncHandler handles the gateway's sync protocol endpoints.
type SyncHandler struct {
	syncUseCase gatewayUseCase.SyncUseCase
	logger      *slog.Logger
}

// NewSyncHandler creates a new sync handler with required dependencies.
func NewSyncHandler(syncUseCase gatewayUseCase.SyncUseCase, logger *slog.Logger) *SyncHandler {
	return &SyncHandler{
		syncUseCase: syncUseCase,
		logger:      logger,
	}
}

// RegisterRoutes mounts the sync endpoints behind node authentication.
func (h *SyncHandler) RegisterRoutes(router gin.IRouter, authMiddleware gin.HandlerFunc) {
	group := router.Group("/v1/sync", authMiddleware)
	group.POST("/changes", h.SubmitChangeHandler)
	group.GET("/changes", h.ListChangesHandler)
	group.GET("/status/:idempotencyKey", h.StatusHandler)
}

// SubmitChangeHandler ingests one change from a node.
// POST /v1/sync/changes
// Returns 201 Created on acceptance, 409 Conflict when a newer remote version
// exists, 422 Unprocessable Entity on permanent rejection.
func (h *SyncHandler) SubmitChangeHandler(c *gin.Context) {
	node, ok := GetNode(c.Request.Context())
	if !ok {
		httputil.HandleErrorGin(c, apperrors.ErrUnauthorized, h.logger)
		return
	}

	var req dto.SubmitChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.HandleBadRequestGin(c, err, h.logger)
		return
	}

	if err := req.Validate(); err != nil {
		httputil.HandleValidationErrorGin(c, customValidation.WrapValidationError(err), h.logger)
		return
	}

	submission, err := req.ToSubmission()
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid idempotency key: %w", err), h.logger)
		return
	}

	result, err := h.syncUseCase.IngestChange(c.Request.Context(), node.ID, submission)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	switch result.Status {
	case gatewayDomain.IngestAccepted:
		c.JSON(http.StatusCreated, dto.SubmitAcceptedResponse{
			Result:       string(result.Status),
			FeedPosition: result.FeedPosition,
		})

	case gatewayDomain.IngestConflict:
		c.JSON(http.StatusConflict, dto.SubmitConflictResponse{
			Result: string(result.Status),
			Reason: result.Reason,
			Remote: dto.MapRemoteToResponse(result.Remote),
		})

	default:
		c.JSON(http.StatusUnprocessableEntity, dto.SubmitRejectedResponse{
			Result: string(result.Status),
			Reason: result.Reason,
		})
	}
}

// StatusHandler answers a reconciliation query for an idempotency key.
// GET /v1/sync/status/:idempotencyKey
// Returns 200 OK with the recorded verdict, or 404 Not Found when the key was
// never seen. A 404 tells the node the original submission never arrived and
// a resend is safe.
func (h *SyncHandler) StatusHandler(c *gin.Context) {
	key, err := uuid.Parse(c.Param("idempotencyKey"))
	if err != nil {
		httputil.HandleValidationErrorGin(c, fmt.Errorf("invalid idempotency key: %w", err), h.logger)
		return
	}

	change, err := h.syncUseCase.GetStatus(c.Request.Context(), key)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapStatusToResponse(change))
}

// ListChangesHandler serves a page of the accepted-change pull feed.
// GET /v1/sync/changes?since=N&limit=M
func (h *SyncHandler) ListChangesHandler(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid since parameter: must be a non-negative integer"),
			h.logger,
		)
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultFeedLimit)))
	if err != nil || limit < 1 || limit > maxFeedLimit {
		httputil.HandleValidationErrorGin(
			c,
			fmt.Errorf("invalid limit parameter: must be between 1 and %d", maxFeedLimit),
			h.logger,
		)
		return
	}

	entries, nextSince, err := h.syncUseCase.ListChanges(c.Request.Context(), since, limit)
	if err != nil {
		httputil.HandleErrorGin(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, dto.MapFeedToResponse(entries, nextSince))
}

package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgepos/edgesync/internal/database"
	gatewayDomain "github.com/edgepos/edgesync/internal/gateway/domain"
)

var validOperations = map[string]struct{}{
	"create": {},
	"update": {},
	"delete": {},
	"upsert": {},
}

// syncUseCase implements the SyncUseCase interface.
type syncUseCase struct {
	txManager   database.TxManager
	changeRepo  ChangeRepository
	versionRepo VersionRepository
	clock       clockwork.Clock
	logger      *slog.Logger
}

// IngestChange applies one change from an authenticated node.
//
// A known idempotency key replays the recorded verdict without touching the
// version register. New changes are validated, checked against the current
// entity version and either applied, rejected with a recorded verdict, or
// reported as a conflict. Conflicts are deliberately not recorded: the node
// resolves them locally and resends under the same key, and the resend gets
// a fresh evaluation.
func (u *syncUseCase) IngestChange(
	ctx context.Context,
	nodeID string,
	submission *gatewayDomain.ChangeSubmission,
) (*gatewayDomain.IngestResult, error) {
	recorded, err := u.changeRepo.Get(ctx, submission.IdempotencyKey)
	if err == nil {
		return replayVerdict(recorded), nil
	}
	if !errors.Is(err, gatewayDomain.ErrChangeNotFound) {
		return nil, err
	}

	if reason := validateSubmission(submission); reason != "" {
		result, err := u.recordRejection(ctx, nodeID, submission, reason)
		if err != nil {
			return nil, err
		}
		u.logger.Warn("change rejected",
			"node_id", nodeID,
			"idempotency_key", submission.IdempotencyKey.String(),
			"reason", reason,
		)
		return result, nil
	}

	var result *gatewayDomain.IngestResult
	err = u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		current, err := u.versionRepo.Get(txCtx, submission.EntityType, submission.EntityID)
		if err != nil {
			return err
		}

		// A change loses only to a strictly newer version written by a
		// different node. A node's own later writes are its ordered stream.
		if current != nil && current.UpdatedBy != nodeID &&
			current.UpdatedAt.After(submission.ClientUpdatedAt) {
			remote := *current
			result = &gatewayDomain.IngestResult{
				Status: gatewayDomain.IngestConflict,
				Reason: "a newer version of the entity exists",
				Remote: &remote,
			}
			return nil
		}

		var nextVersion int64 = 1
		if current != nil {
			nextVersion = current.Version + 1
		}

		position, err := u.changeRepo.NextFeedPosition(txCtx)
		if err != nil {
			return err
		}

		err = u.versionRepo.Upsert(txCtx, &gatewayDomain.EntityVersion{
			EntityType: submission.EntityType,
			EntityID:   submission.EntityID,
			Version:    nextVersion,
			Payload:    submission.Payload,
			UpdatedBy:  nodeID,
			UpdatedAt:  submission.ClientUpdatedAt,
		})
		if err != nil {
			return err
		}

		err = u.changeRepo.Create(txCtx, &gatewayDomain.AppliedChange{
			IdempotencyKey: submission.IdempotencyKey,
			NodeID:         nodeID,
			EntityType:     submission.EntityType,
			EntityID:       submission.EntityID,
			Operation:      submission.Operation,
			Payload:        submission.Payload,
			Result:         gatewayDomain.ChangeResultAccepted,
			FeedPosition:   position,
			AppliedAt:      u.clock.Now().UTC(),
		})
		if err != nil {
			return err
		}

		result = &gatewayDomain.IngestResult{
			Status:       gatewayDomain.IngestAccepted,
			FeedPosition: position,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Status == gatewayDomain.IngestAccepted {
		u.logger.Info("change applied",
			"node_id", nodeID,
			"entity_type", submission.EntityType,
			"entity_id", submission.EntityID,
			"feed_position", result.FeedPosition,
		)
	}
	return result, nil
}

// GetStatus returns the recorded verdict for an idempotency key.
func (u *syncUseCase) GetStatus(ctx context.Context, key uuid.UUID) (*gatewayDomain.AppliedChange, error) {
	return u.changeRepo.Get(ctx, key)
}

// ListChanges returns accepted changes after the given feed position.
func (u *syncUseCase) ListChanges(
	ctx context.Context,
	since int64,
	limit int,
) ([]*gatewayDomain.FeedEntry, int64, error) {
	entries, err := u.changeRepo.ListAccepted(ctx, since, limit)
	if err != nil {
		return nil, 0, err
	}

	nextSince := since
	if len(entries) > 0 {
		nextSince = entries[len(entries)-1].Position
	}
	return entries, nextSince, nil
}

// recordRejection persists a rejected verdict so redelivery replays it.
func (u *syncUseCase) recordRejection(
	ctx context.Context,
	nodeID string,
	submission *gatewayDomain.ChangeSubmission,
	reason string,
) (*gatewayDomain.IngestResult, error) {
	err := u.changeRepo.Create(ctx, &gatewayDomain.AppliedChange{
		IdempotencyKey: submission.IdempotencyKey,
		NodeID:         nodeID,
		EntityType:     submission.EntityType,
		EntityID:       submission.EntityID,
		Operation:      submission.Operation,
		Payload:        submission.Payload,
		Result:         gatewayDomain.ChangeResultRejected,
		Reason:         &reason,
		AppliedAt:      u.clock.Now().UTC(),
	})
	if err != nil {
		return nil, err
	}
	return &gatewayDomain.IngestResult{
		Status: gatewayDomain.IngestRejected,
		Reason: reason,
	}, nil
}

func replayVerdict(recorded *gatewayDomain.AppliedChange) *gatewayDomain.IngestResult {
	if recorded.Result == gatewayDomain.ChangeResultAccepted {
		return &gatewayDomain.IngestResult{
			Status:       gatewayDomain.IngestAccepted,
			FeedPosition: recorded.FeedPosition,
		}
	}

	reason := ""
	if recorded.Reason != nil {
		reason = *recorded.Reason
	}
	return &gatewayDomain.IngestResult{
		Status: gatewayDomain.IngestRejected,
		Reason: reason,
	}
}

func validateSubmission(submission *gatewayDomain.ChangeSubmission) string {
	if submission.EntityType == "" {
		return "entity type is required"
	}
	if submission.EntityID == "" {
		return "entity id is required"
	}
	if _, ok := validOperations[submission.Operation]; !ok {
		return "unknown operation: " + submission.Operation
	}
	if len(submission.Payload) > 0 && !json.Valid(submission.Payload) {
		return "payload is not valid json"
	}
	if submission.ClientUpdatedAt.IsZero() {
		return "client updated time is required"
	}
	return ""
}

// NewSyncUseCase creates a new sync use case instance with the provided dependencies.
func NewSyncUseCase(
	txManager database.TxManager,
	changeRepo ChangeRepository,
	versionRepo VersionRepository,
	clock clockwork.Clock,
	logger *slog.Logger,
) SyncUseCase {
	return &syncUseCase{
		txManager:   txManager,
		changeRepo:  changeRepo,
		versionRepo: versionRepo,
		clock:       clock,
		logger:      logger,
	}
}

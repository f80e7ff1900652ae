package usecase

import (
	"context"
	"log/slog"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	"github.com/edgepos/edgesync/internal/database"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// conflictUseCase implements the ConflictUseCase interface.
type conflictUseCase struct {
	txManager    database.TxManager
	conflictRepo ConflictRepository
	entryStore   EntryStore
	policies     *conflictDomain.PolicyTable
	nodeID       string
	clock        clockwork.Clock
	logger       *slog.Logger
}

// HandleRemoteConflict decides a reported conflict and transitions both the
// conflict record and the outbox entry in one transaction.
func (u *conflictUseCase) HandleRemoteConflict(
	ctx context.Context,
	entry *outboxDomain.Entry,
	remote conflictDomain.Version,
) (*conflictDomain.Record, error) {
	now := u.clock.Now().UTC()
	policy := u.policies.For(entry.EntityType)

	local := conflictDomain.Version{
		Payload:   entry.Payload,
		UpdatedAt: entry.CreatedAt,
		NodeID:    u.nodeID,
	}
	outcome := conflictDomain.Decide(policy, local, remote)

	record := &conflictDomain.Record{
		ID:            uuid.Must(uuid.NewV7()),
		EntryID:       entry.ID,
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		LocalPayload:  entry.Payload,
		RemotePayload: remote.Payload,
		Status:        conflictDomain.StatusOpen,
		DetectedAt:    now,
	}

	err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.conflictRepo.Create(txCtx, record); err != nil {
			return err
		}

		switch outcome {
		case conflictDomain.OutcomeRemoteWins:
			// The local change is superseded; retire it so later entries
			// for the entity can proceed.
			if err := u.conflictRepo.Resolve(txCtx, record.ID, conflictDomain.ResolutionRemoteWins, now); err != nil {
				return err
			}
			return u.entryStore.MarkDone(txCtx, entry.ID)

		case conflictDomain.OutcomeLocalWins:
			if err := u.conflictRepo.Resolve(txCtx, record.ID, conflictDomain.ResolutionLocalWins, now); err != nil {
				return err
			}
			// Retransmit immediately; the authority accepts the local
			// version once it sees the resolution is deterministic.
			return u.entryStore.MarkFailed(txCtx, entry.ID, "conflict resolved: local version wins", now)

		default:
			return u.entryStore.MarkConflict(txCtx, entry.ID, "awaiting manual conflict resolution")
		}
	})
	if err != nil {
		return nil, err
	}

	u.logger.Info("conflict decided",
		slog.String("entry_id", entry.ID.String()),
		slog.String("entity_type", entry.EntityType),
		slog.String("entity_id", entry.EntityID),
		slog.String("policy", string(policy)),
		slog.Int("outcome", int(outcome)),
	)

	updated, err := u.conflictRepo.Get(ctx, record.ID)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ResolveManual closes an open conflict with the operator's decision.
func (u *conflictUseCase) ResolveManual(
	ctx context.Context,
	recordID uuid.UUID,
	resolution conflictDomain.Resolution,
) error {
	if resolution != conflictDomain.ResolutionLocalWins && resolution != conflictDomain.ResolutionRemoteWins {
		return conflictDomain.ErrInvalidResolution
	}

	record, err := u.conflictRepo.Get(ctx, recordID)
	if err != nil {
		return err
	}
	if record.Status != conflictDomain.StatusOpen {
		return conflictDomain.ErrAlreadyResolved
	}

	now := u.clock.Now().UTC()

	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.conflictRepo.Resolve(txCtx, recordID, resolution, now); err != nil {
			return err
		}

		if resolution == conflictDomain.ResolutionLocalWins {
			return u.entryStore.Requeue(txCtx, record.EntryID, now)
		}
		return u.entryStore.MarkDone(txCtx, record.EntryID)
	})
}

// Get retrieves a conflict record by id.
func (u *conflictUseCase) Get(ctx context.Context, recordID uuid.UUID) (*conflictDomain.Record, error) {
	return u.conflictRepo.Get(ctx, recordID)
}

// ListOpen retrieves open conflicts, oldest first.
func (u *conflictUseCase) ListOpen(ctx context.Context, limit int) ([]*conflictDomain.Record, error) {
	return u.conflictRepo.ListOpen(ctx, limit)
}

// NewConflictUseCase creates a new conflict use case instance with the provided dependencies.
func NewConflictUseCase(
	txManager database.TxManager,
	conflictRepo ConflictRepository,
	entryStore EntryStore,
	policies *conflictDomain.PolicyTable,
	nodeID string,
	clock clockwork.Clock,
	logger *slog.Logger,
) ConflictUseCase {
	return &conflictUseCase{
		txManager:    txManager,
		conflictRepo: conflictRepo,
		entryStore:   entryStore,
		policies:     policies,
		nodeID:       nodeID,
		clock:        clock,
		logger:       logger,
	}
}

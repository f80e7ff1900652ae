package usecase

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgepos/edgesync/internal/database"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
)

// outboxUseCase implements the OutboxUseCase interface.
type outboxUseCase struct {
	txManager        database.TxManager
	entryRepo        EntryRepository
	criticalRepo     CriticalRepository
	clock            clockwork.Clock
	criticalTypes    map[string]struct{}
	criticalPriority int
}

// Enqueue validates the input, assigns the next per-entity sequence and
// persists the entry. Entries of a critical entity type additionally get a
// pending critical submission row and are promoted to the critical priority.
func (u *outboxUseCase) Enqueue(
	ctx context.Context,
	input *outboxDomain.EnqueueInput,
) (*outboxDomain.Entry, error) {
	if err := validateEnqueueInput(input); err != nil {
		return nil, err
	}

	now := u.clock.Now().UTC()
	_, critical := u.criticalTypes[input.EntityType]

	priority := input.Priority
	if critical && priority < u.criticalPriority {
		priority = u.criticalPriority
	}

	var entry *outboxDomain.Entry
	err := u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		sequence, err := u.entryRepo.NextSequence(txCtx, input.EntityType, input.EntityID)
		if err != nil {
			return err
		}

		entry = &outboxDomain.Entry{
			ID:            uuid.Must(uuid.NewV7()),
			EntityType:    input.EntityType,
			EntityID:      input.EntityID,
			Operation:     input.Operation,
			Payload:       input.Payload,
			Priority:      priority,
			Sequence:      sequence,
			Status:        outboxDomain.EntryStatusPending,
			NextAttemptAt: now,
			CreatedAt:     now,
		}

		if err := u.entryRepo.Create(txCtx, entry); err != nil {
			return err
		}

		if critical {
			submission := &outboxDomain.CriticalSubmission{
				EntryID:   entry.ID,
				State:     outboxDomain.CriticalStatePending,
				CreatedAt: now,
			}
			if err := u.criticalRepo.Create(txCtx, submission); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return entry, nil
}

// Get retrieves an outbox entry by id.
func (u *outboxUseCase) Get(ctx context.Context, id uuid.UUID) (*outboxDomain.Entry, error) {
	return u.entryRepo.Get(ctx, id)
}

// GetCriticalSubmission retrieves the critical submission for an entry.
func (u *outboxUseCase) GetCriticalSubmission(
	ctx context.Context,
	entryID uuid.UUID,
) (*outboxDomain.CriticalSubmission, error) {
	return u.criticalRepo.Get(ctx, entryID)
}

// Requeue returns a parked entry to the pending queue. A critical submission
// that was not confirmed is reset to pending alongside the entry, so the
// query-before-retry protocol starts over.
func (u *outboxUseCase) Requeue(ctx context.Context, id uuid.UUID) error {
	now := u.clock.Now().UTC()

	return u.txManager.WithTx(ctx, func(txCtx context.Context) error {
		if err := u.entryRepo.Requeue(txCtx, id, now); err != nil {
			return err
		}

		submission, err := u.criticalRepo.Get(txCtx, id)
		if err != nil {
			if errors.Is(err, outboxDomain.ErrSubmissionNotFound) {
				return nil
			}
			return err
		}
		if submission.State == outboxDomain.CriticalStateConfirmed {
			return nil
		}

		submission.State = outboxDomain.CriticalStatePending
		submission.QueryCount = 0
		submission.Reason = nil
		submission.SubmittedAt = nil
		submission.ResolvedAt = nil
		return u.criticalRepo.Update(txCtx, submission)
	})
}

// ListByStatus retrieves entries in the given status, oldest first.
func (u *outboxUseCase) ListByStatus(
	ctx context.Context,
	status outboxDomain.EntryStatus,
	limit int,
) ([]*outboxDomain.Entry, error) {
	return u.entryRepo.ListByStatus(ctx, status, limit)
}

// Stats returns the operator-facing backlog summary.
func (u *outboxUseCase) Stats(ctx context.Context) (*outboxDomain.QueueStats, error) {
	return u.entryRepo.Stats(ctx)
}

func validateEnqueueInput(input *outboxDomain.EnqueueInput) error {
	if input.EntityType == "" {
		return outboxDomain.ErrEmptyEntityType
	}
	if input.EntityID == "" {
		return outboxDomain.ErrEmptyEntityID
	}
	if !input.Operation.IsValid() {
		return outboxDomain.ErrInvalidOperation
	}
	if input.Priority < 0 {
		return outboxDomain.ErrNegativePriority
	}
	return nil
}

// NewOutboxUseCase creates a new outbox use case instance with the provided dependencies.
func NewOutboxUseCase(
	txManager database.TxManager,
	entryRepo EntryRepository,
	criticalRepo CriticalRepository,
	clock clockwork.Clock,
	criticalEntityTypes []string,
	criticalPriority int,
) OutboxUseCase {
	criticalTypes := make(map[string]struct{}, len(criticalEntityTypes))
	for _, entityType := range criticalEntityTypes {
		criticalTypes[entityType] = struct{}{}
	}

	return &outboxUseCase{
		txManager:        txManager,
		entryRepo:        entryRepo,
		criticalRepo:     criticalRepo,
		clock:            clock,
		criticalTypes:    criticalTypes,
		criticalPriority: criticalPriority,
	}
}

// Package critical delivers submissions whose duplicate would be worse than
// a delay: tax invoices, mobile-money payments and similar operations against
// external financial authorities.
//
// The engine never interprets an ambiguous send. Once a send was attempted,
// the submission is Submitted and may only advance through an explicit status
// query: confirmed retires the entry, rejected quarantines it, and an unknown
// key proves the gateway never saw the submission, which makes a resend safe.
package critical

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"

	"github.com/edgepos/edgesync/internal/database"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	"github.com/edgepos/edgesync/internal/syncer"
	"github.com/edgepos/edgesync/internal/transport"
)

// EntryStore is the subset of outbox entry transitions the engine performs.
type EntryStore interface {
	MarkDone(ctx context.Context, id uuid.UUID) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string, nextAttemptAt time.Time) error
	MarkQuarantined(ctx context.Context, id uuid.UUID, reason string) error
}

// SubmissionStore persists the critical submission state machine.
type SubmissionStore interface {
	Get(ctx context.Context, entryID uuid.UUID) (*outboxDomain.CriticalSubmission, error)
	Create(ctx context.Context, submission *outboxDomain.CriticalSubmission) error
	Update(ctx context.Context, submission *outboxDomain.CriticalSubmission) error
}

// LedgerStore records acknowledged submissions.
type LedgerStore interface {
	Record(ctx context.Context, record *outboxDomain.IdempotencyRecord) error
}

// Engine drives the query-before-retry protocol for one claimed entry at a
// time. It is invoked by the sync worker for entries of critical entity types.
type Engine struct {
	txManager       database.TxManager
	transport       transport.Transport
	entryStore      EntryStore
	submissions     SubmissionStore
	ledger          LedgerStore
	retry           syncer.RetryPolicy
	statusWarnAfter int
	sendTimeout     time.Duration
	clock           clockwork.Clock
	logger          *slog.Logger
}

// NewEngine creates a critical submission engine.
func NewEngine(
	txManager database.TxManager,
	tp transport.Transport,
	entryStore EntryStore,
	submissions SubmissionStore,
	ledger LedgerStore,
	retry syncer.RetryPolicy,
	statusWarnAfter int,
	sendTimeout time.Duration,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Engine {
	return &Engine{
		txManager:       txManager,
		transport:       tp,
		entryStore:      entryStore,
		submissions:     submissions,
		ledger:          ledger,
		retry:           retry,
		statusWarnAfter: statusWarnAfter,
		sendTimeout:     sendTimeout,
		clock:           clock,
		logger:          logger,
	}
}

// Deliver advances a claimed critical entry by one protocol step. The entry
// either reaches a terminal state or goes back to pending with the submission
// state recording what must happen on the next pass.
func (e *Engine) Deliver(ctx context.Context, entry *outboxDomain.Entry) error {
	submission, err := e.submissions.Get(ctx, entry.ID)
	if err != nil {
		if !errors.Is(err, outboxDomain.ErrSubmissionNotFound) {
			return err
		}

		// The entity type became critical after this entry was enqueued.
		// Without a row the protocol cannot start, so create one and treat
		// the entry as never sent.
		submission = &outboxDomain.CriticalSubmission{
			EntryID:   entry.ID,
			State:     outboxDomain.CriticalStatePending,
			CreatedAt: e.clock.Now().UTC(),
		}
		if err := e.submissions.Create(ctx, submission); err != nil {
			return err
		}
		e.logger.Info("created missing critical submission",
			slog.String("entry_id", entry.ID.String()),
			slog.String("entity_type", entry.EntityType),
		)
	}

	switch submission.State {
	case outboxDomain.CriticalStateConfirmed:
		// Crash between confirmation and entry retirement.
		return e.entryStore.MarkDone(ctx, entry.ID)

	case outboxDomain.CriticalStateRejected, outboxDomain.CriticalStateUnknown:
		return e.entryStore.MarkQuarantined(ctx, entry.ID, reasonOf(submission))

	case outboxDomain.CriticalStateSubmitted:
		return e.reconcile(ctx, entry, submission)
	}

	return e.send(ctx, entry, submission)
}

// send performs the first (or a reconciled-safe) transmission. The Submitted
// state is persisted before the request leaves, so a crash mid-send is
// indistinguishable from a timeout and resolves through reconciliation.
func (e *Engine) send(ctx context.Context, entry *outboxDomain.Entry, submission *outboxDomain.CriticalSubmission) error {
	now := e.clock.Now().UTC()
	submission.State = outboxDomain.CriticalStateSubmitted
	submission.SubmittedAt = &now
	if err := e.submissions.Update(ctx, submission); err != nil {
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, e.sendTimeout)
	defer cancel()

	result, err := e.transport.SendChange(sendCtx, transport.NewChangeRequest(entry))
	if err != nil {
		return e.scheduleReconcile(ctx, entry, submission,
			fmt.Sprintf("send inconclusive: %v", err))
	}

	switch result.Outcome {
	case transport.OutcomeAccepted:
		return e.confirm(ctx, entry, submission, "accepted")

	case transport.OutcomeRejected:
		return e.close(ctx, entry, submission, outboxDomain.CriticalStateRejected, result.Reason)

	case transport.OutcomeConflict:
		// Financial documents are never auto-merged; park for review.
		return e.close(ctx, entry, submission, outboxDomain.CriticalStateRejected,
			"version conflict on critical submission: "+result.Reason)

	default:
		return e.scheduleReconcile(ctx, entry, submission, "gateway transient: "+result.Reason)
	}
}

// reconcile resolves a Submitted entry through a status query. A query the
// transport could not complete says nothing about the submission, so it never
// terminates the protocol: the entry reschedules with backoff and the query
// repeats until the gateway answers. Past statusWarnAfter failures each
// further miss is logged for operator attention.
func (e *Engine) reconcile(ctx context.Context, entry *outboxDomain.Entry, submission *outboxDomain.CriticalSubmission) error {
	now := e.clock.Now().UTC()

	status, err := e.transport.QueryStatus(ctx, entry.ID)
	if err != nil {
		submission.QueryCount++
		if err := e.submissions.Update(ctx, submission); err != nil {
			return err
		}

		if e.statusWarnAfter > 0 && submission.QueryCount >= e.statusWarnAfter {
			e.logger.Warn("critical submission still unresolved",
				slog.String("entry_id", entry.ID.String()),
				slog.String("entity_type", entry.EntityType),
				slog.Int("query_count", submission.QueryCount),
			)
		}
		return e.entryStore.MarkFailed(ctx, entry.ID, "status query failed",
			now.Add(e.retry.DelayFor(submission.QueryCount)))
	}

	submission.QueryCount++

	if !status.Known {
		// The gateway never saw the submission; a resend cannot duplicate.
		submission.State = outboxDomain.CriticalStatePending
		if err := e.submissions.Update(ctx, submission); err != nil {
			return err
		}
		e.logger.Info("critical submission unseen by gateway, resending",
			slog.String("entry_id", entry.ID.String()))
		return e.entryStore.MarkFailed(ctx, entry.ID, "gateway has no record of submission", now)
	}

	if status.Result == "accepted" {
		return e.confirm(ctx, entry, submission, status.Result)
	}
	return e.close(ctx, entry, submission, outboxDomain.CriticalStateRejected, status.Reason)
}

func (e *Engine) confirm(ctx context.Context, entry *outboxDomain.Entry, submission *outboxDomain.CriticalSubmission, result string) error {
	now := e.clock.Now().UTC()

	err := e.txManager.WithTx(ctx, func(txCtx context.Context) error {
		submission.State = outboxDomain.CriticalStateConfirmed
		submission.ResolvedAt = &now
		if err := e.submissions.Update(txCtx, submission); err != nil {
			return err
		}

		record := &outboxDomain.IdempotencyRecord{
			ID:           entry.ID,
			ServerResult: result,
			AppliedAt:    now,
		}
		if err := e.ledger.Record(txCtx, record); err != nil {
			return err
		}
		return e.entryStore.MarkDone(txCtx, entry.ID)
	})
	if err != nil {
		return err
	}

	e.logger.Info("critical submission confirmed",
		slog.String("entry_id", entry.ID.String()),
		slog.String("entity_type", entry.EntityType),
		slog.Int("query_count", submission.QueryCount),
	)
	return nil
}

// close parks the submission in a terminal non-success state and quarantines
// the entry for operator review.
func (e *Engine) close(
	ctx context.Context,
	entry *outboxDomain.Entry,
	submission *outboxDomain.CriticalSubmission,
	state outboxDomain.CriticalState,
	reason string,
) error {
	now := e.clock.Now().UTC()

	err := e.txManager.WithTx(ctx, func(txCtx context.Context) error {
		submission.State = state
		submission.Reason = &reason
		submission.ResolvedAt = &now
		if err := e.submissions.Update(txCtx, submission); err != nil {
			return err
		}
		return e.entryStore.MarkQuarantined(txCtx, entry.ID, reason)
	})
	if err != nil {
		return err
	}

	e.logger.Warn("critical submission parked",
		slog.String("entry_id", entry.ID.String()),
		slog.String("state", string(state)),
		slog.String("reason", reason),
	)
	return nil
}

// scheduleReconcile keeps the submission in Submitted and reschedules the
// entry; the next pass must query status before any retransmission.
func (e *Engine) scheduleReconcile(
	ctx context.Context,
	entry *outboxDomain.Entry,
	submission *outboxDomain.CriticalSubmission,
	reason string,
) error {
	now := e.clock.Now().UTC()
	delay := e.retry.DelayFor(submission.QueryCount + 1)

	e.logger.Info("critical submission ambiguous, reconciliation scheduled",
		slog.String("entry_id", entry.ID.String()),
		slog.String("reason", reason),
		slog.Duration("delay", delay),
	)
	return e.entryStore.MarkFailed(ctx, entry.ID, reason, now.Add(delay))
}

func reasonOf(submission *outboxDomain.CriticalSubmission) string {
	if submission.Reason != nil {
		return *submission.Reason
	}
	return "critical submission in state " + string(submission.State)
}

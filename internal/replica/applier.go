package replica

import (
	"context"
	"log/slog"

	"github.com/jonboulle/clockwork"

	conflictDomain "github.com/edgepos/edgesync/internal/conflict/domain"
	outboxDomain "github.com/edgepos/edgesync/internal/outbox/domain"
	"github.com/edgepos/edgesync/internal/transport"
)

// EntryFinder locates the node's own unresolved write for an entity key.
type EntryFinder interface {
	UnresolvedByEntity(ctx context.Context, entityType, entityID string) (*outboxDomain.Entry, error)
}

// ConflictHandler decides a collision between an inbound change and a local
// unresolved write.
type ConflictHandler interface {
	HandleRemoteConflict(
		ctx context.Context,
		entry *outboxDomain.Entry,
		remote conflictDomain.Version,
	) (*conflictDomain.Record, error)
}

// Applier integrates inbound central changes into the local mirror. When the
// node holds an unresolved local write for the same entity, the inbound
// version is handed to the conflict resolver instead of overwriting the local
// edit; the mirror is only updated when the remote side wins.
type Applier struct {
	store     Store
	entries   EntryFinder
	conflicts ConflictHandler
	clock     clockwork.Clock
	logger    *slog.Logger
}

// NewApplier creates an inbound change applier.
func NewApplier(
	store Store,
	entries EntryFinder,
	conflicts ConflictHandler,
	clock clockwork.Clock,
	logger *slog.Logger,
) *Applier {
	return &Applier{
		store:     store,
		entries:   entries,
		conflicts: conflicts,
		clock:     clock,
		logger:    logger,
	}
}

// Apply integrates one inbound change. Safe to call again with the same
// change: upserts and deletes are keyed, and conflict handling re-evaluates
// against the entry's current state.
func (a *Applier) Apply(ctx context.Context, change transport.InboundChange) error {
	entry, err := a.entries.UnresolvedByEntity(ctx, change.EntityType, change.EntityID)
	if err != nil {
		return err
	}

	remote := conflictDomain.Version{
		Payload:   change.Payload,
		UpdatedAt: change.UpdatedAt,
		NodeID:    change.UpdatedBy,
	}

	if entry != nil {
		record, err := a.conflicts.HandleRemoteConflict(ctx, entry, remote)
		if err != nil {
			return err
		}
		a.logger.Info("inbound change collided with local write",
			slog.String("entity_type", change.EntityType),
			slog.String("entity_id", change.EntityID),
			slog.String("entry_id", entry.ID.String()),
			slog.String("status", string(record.Status)),
		)
		if !remoteWon(record) {
			return nil
		}
	}

	if change.Operation == string(outboxDomain.OperationDelete) {
		return a.store.Delete(ctx, change.EntityType, change.EntityID)
	}

	return a.store.Upsert(ctx, &Entity{
		EntityType: change.EntityType,
		EntityID:   change.EntityID,
		Payload:    change.Payload,
		UpdatedBy:  change.UpdatedBy,
		UpdatedAt:  change.UpdatedAt,
		SyncedAt:   a.clock.Now().UTC(),
	})
}

// remoteWon reports whether the resolver decided for the inbound version.
// Open and escalated records keep the local copy until an operator decides.
func remoteWon(record *conflictDomain.Record) bool {
	return record.Status == conflictDomain.StatusResolved &&
		record.Resolution != nil &&
		*record.Resolution == conflictDomain.ResolutionRemoteWins
}

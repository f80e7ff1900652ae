// Package domain defines conflict records and the resolution policies
// applied when the central authority reports a newer remote version for an
// entity a node tried to change.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Policy names a conflict resolution strategy for an entity type.
type Policy string

const (
	// PolicyAuthoritativeCentral discards the local change; the central
	// version always wins. Used for centrally managed data such as prices
	// and catalog entries.
	PolicyAuthoritativeCentral Policy = "authoritative-central"

	// PolicyLWW keeps whichever version has the later update timestamp,
	// breaking ties by node id so every participant picks the same winner.
	PolicyLWW Policy = "lww"

	// PolicyManual parks the conflict for operator review.
	PolicyManual Policy = "manual"
)

// IsValid reports whether the policy is one of the known strategies.
func (p Policy) IsValid() bool {
	switch p {
	case PolicyAuthoritativeCentral, PolicyLWW, PolicyManual:
		return true
	}
	return false
}

// Status represents the lifecycle state of a conflict record.
type Status string

const (
	StatusOpen      Status = "open"
	StatusResolved  Status = "resolved"
	StatusEscalated Status = "escalated"
)

// Resolution names the winner of a resolved conflict.
type Resolution string

const (
	ResolutionLocalWins  Resolution = "local_wins"
	ResolutionRemoteWins Resolution = "remote_wins"
)

// Outcome is the decision a policy produces for a conflicting pair.
type Outcome int

const (
	OutcomeLocalWins Outcome = iota
	OutcomeRemoteWins
	OutcomeManual
)

// Version describes one side of a conflicting change.
type Version struct {
	Payload   []byte
	UpdatedAt time.Time
	NodeID    string // node that produced the version; "" for central
}

// Decide applies a policy to a conflicting pair of versions. The decision is
// deterministic: any two participants comparing the same versions under the
// same policy reach the same outcome.
func Decide(policy Policy, local, remote Version) Outcome {
	switch policy {
	case PolicyAuthoritativeCentral:
		return OutcomeRemoteWins
	case PolicyLWW:
		if local.UpdatedAt.After(remote.UpdatedAt) {
			return OutcomeLocalWins
		}
		if remote.UpdatedAt.After(local.UpdatedAt) {
			return OutcomeRemoteWins
		}
		// Equal timestamps: the greater node id wins the tie.
		if local.NodeID > remote.NodeID {
			return OutcomeLocalWins
		}
		return OutcomeRemoteWins
	default:
		return OutcomeManual
	}
}

// Record captures a detected conflict and its eventual resolution so
// operators can audit what was kept and what was discarded.
type Record struct {
	ID            uuid.UUID
	EntryID       uuid.UUID // outbox entry blocked by this conflict
	EntityType    string
	EntityID      string
	LocalPayload  []byte
	RemotePayload []byte
	Status        Status
	Resolution    *Resolution
	DetectedAt    time.Time
	ResolvedAt    *time.Time
}

// PolicyTable maps entity types to their resolution policy.
type PolicyTable struct {
	policies     map[string]Policy
	defaultValue Policy
}

// NewPolicyTable builds a policy table from per-type assignments and a
// default. Invalid assignments fall back to the default.
func NewPolicyTable(policies map[string]string, defaultPolicy Policy) *PolicyTable {
	if !defaultPolicy.IsValid() {
		defaultPolicy = PolicyManual
	}

	table := make(map[string]Policy, len(policies))
	for entityType, name := range policies {
		policy := Policy(name)
		if !policy.IsValid() {
			policy = defaultPolicy
		}
		table[entityType] = policy
	}

	return &PolicyTable{policies: table, defaultValue: defaultPolicy}
}

// For returns the policy for an entity type.
func (t *PolicyTable) For(entityType string) Policy {
	if policy, ok := t.policies[entityType]; ok {
		return policy
	}
	return t.defaultValue
}

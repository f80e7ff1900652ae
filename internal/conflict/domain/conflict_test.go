package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPolicy_IsValid(t *testing.T) {
	assert.True(t, PolicyAuthoritativeCentral.IsValid())
	assert.True(t, PolicyLWW.IsValid())
	assert.True(t, PolicyManual.IsValid())
	assert.False(t, Policy("newest-node").IsValid())
	assert.False(t, Policy("").IsValid())
}

func TestDecide(t *testing.T) {
	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

	t.Run("AuthoritativeCentral", func(t *testing.T) {
		local := Version{UpdatedAt: base.Add(time.Hour), NodeID: "node-a"}
		remote := Version{UpdatedAt: base}

		assert.Equal(t, OutcomeRemoteWins, Decide(PolicyAuthoritativeCentral, local, remote),
			"central wins even when the local change is newer")
	})

	t.Run("LWW_NewerWins", func(t *testing.T) {
		local := Version{UpdatedAt: base.Add(time.Minute), NodeID: "node-a"}
		remote := Version{UpdatedAt: base, NodeID: "node-b"}

		assert.Equal(t, OutcomeLocalWins, Decide(PolicyLWW, local, remote))
		assert.Equal(t, OutcomeRemoteWins, Decide(PolicyLWW, remote, local))
	})

	t.Run("LWW_TieBrokenByNodeID", func(t *testing.T) {
		a := Version{UpdatedAt: base, NodeID: "node-a"}
		b := Version{UpdatedAt: base, NodeID: "node-b"}

		// Both sides of the comparison must agree on the winner
		assert.Equal(t, OutcomeRemoteWins, Decide(PolicyLWW, a, b))
		assert.Equal(t, OutcomeLocalWins, Decide(PolicyLWW, b, a))
	})

	t.Run("Manual", func(t *testing.T) {
		local := Version{UpdatedAt: base.Add(time.Hour), NodeID: "node-a"}
		remote := Version{UpdatedAt: base}

		assert.Equal(t, OutcomeManual, Decide(PolicyManual, local, remote))
	})
}

func TestPolicyTable(t *testing.T) {
	table := NewPolicyTable(map[string]string{
		"price":       "authoritative-central",
		"customer":    "lww",
		"stock-count": "manual",
		"broken":      "not-a-policy",
	}, PolicyManual)

	assert.Equal(t, PolicyAuthoritativeCentral, table.For("price"))
	assert.Equal(t, PolicyLWW, table.For("customer"))
	assert.Equal(t, PolicyManual, table.For("stock-count"))
	assert.Equal(t, PolicyManual, table.For("broken"), "invalid assignments fall back to the default")
	assert.Equal(t, PolicyManual, table.For("unmapped"))
}

func TestNewPolicyTable_InvalidDefault(t *testing.T) {
	table := NewPolicyTable(nil, Policy("bogus"))
	assert.Equal(t, PolicyManual, table.For("anything"))
}

package domain

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperationIsValid(t *testing.T) {
	tests := []struct {
		operation Operation
		want      bool
	}{
		{OperationCreate, true},
		{OperationUpdate, true},
		{OperationDelete, true},
		{OperationUpsert, true},
		{Operation("merge"), false},
		{Operation(""), false},
	}

	for _, tt := range tests {
		t.Run(string(tt.operation), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.operation.IsValid())
		})
	}
}

func TestEntryStatusIsTerminal(t *testing.T) {
	assert.True(t, EntryStatusDone.IsTerminal())
	assert.True(t, EntryStatusQuarantined.IsTerminal())
	assert.False(t, EntryStatusPending.IsTerminal())
	assert.False(t, EntryStatusInFlight.IsTerminal())
	assert.False(t, EntryStatusConflict.IsTerminal())
}

func TestEntityKey(t *testing.T) {
	entry := &Entry{EntityType: "sale", EntityID: "s-1001"}
	assert.Equal(t, "sale/s-1001", entry.Key())
	assert.Equal(t, entry.Key(), EntityKey("sale", "s-1001"))
	assert.NotEqual(t, EntityKey("sale", "s-1001"), EntityKey("sale", "s-1002"))
}

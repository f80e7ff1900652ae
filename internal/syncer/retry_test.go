package syncer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryPolicy_DelayFor(t *testing.T) {
	policy := RetryPolicy{
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     5 * time.Minute,
		MaxAttempts:     8,
	}

	first := policy.DelayFor(1)
	assert.GreaterOrEqual(t, first, 250*time.Millisecond)
	assert.LessOrEqual(t, first, time.Second)

	// Later attempts wait longer, up to the cap
	tenth := policy.DelayFor(10)
	assert.Greater(t, tenth, first)
	assert.LessOrEqual(t, tenth, 5*time.Minute+5*time.Minute/2)
}

func TestRetryPolicy_Exhausted(t *testing.T) {
	policy := RetryPolicy{MaxAttempts: 3}

	assert.False(t, policy.Exhausted(2))
	assert.True(t, policy.Exhausted(3))
	assert.True(t, policy.Exhausted(4))

	unlimited := RetryPolicy{MaxAttempts: 0}
	assert.False(t, unlimited.Exhausted(1000))
}

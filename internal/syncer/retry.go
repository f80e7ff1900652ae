// Package syncer drains the write-ahead outbox to the central gateway and
// pulls the inbound change feed. A pool of workers claims ready entries,
// transmits them and applies the classified outcome; transient failures are
// rescheduled with exponential backoff until the attempt budget is spent.
package syncer

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryPolicy controls rescheduling of entries that failed transiently.
type RetryPolicy struct {
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxAttempts     int
}

// DelayFor returns the backoff delay before the given attempt number
// (1-based). Delays grow exponentially with jitter and are capped at
// MaxInterval so a long outage does not push retries out indefinitely.
func (p RetryPolicy) DelayFor(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.InitialInterval
	b.MaxInterval = p.MaxInterval
	b.MaxElapsedTime = 0

	delay := b.InitialInterval
	for i := 0; i < attempt; i++ {
		next := b.NextBackOff()
		if next == backoff.Stop {
			break
		}
		delay = next
	}
	return delay
}

// Exhausted reports whether the attempt budget is spent.
func (p RetryPolicy) Exhausted(attempts int) bool {
	return p.MaxAttempts > 0 && attempts >= p.MaxAttempts
}

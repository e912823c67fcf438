package export

import (
	"time"

	"github.com/cenkalti/backoff"
)

// RetryPolicy decides whether a failed batch request may be retried and
// how long to wait before the next attempt. Implementations are consumed
// sequentially for a single batch and reset whenever the cursor advances.
type RetryPolicy interface {
	// Next returns the delay to wait before the next attempt, or ok=false
	// when the attempts for the current batch are exhausted.
	Next() (delay time.Duration, ok bool)

	// Reset restores the policy for a fresh batch.
	Reset()
}

// exponentialRetryPolicy emits a deterministic doubling delay schedule
// (base, 2*base, 4*base, ...) bounded by a fixed number of retries.
type exponentialRetryPolicy struct {
	maxRetries int
	attempts   int
	backoff    *backoff.ExponentialBackOff
}

// NewExponentialRetryPolicy builds a RetryPolicy that allows maxRetries
// attempts per batch with exponential backoff starting at baseDelay.
func NewExponentialRetryPolicy(baseDelay time.Duration, maxRetries int) RetryPolicy {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = baseDelay
	b.RandomizationFactor = 0
	b.Multiplier = 2
	// Delays beyond a day are never useful for an interactive export.
	b.MaxInterval = 24 * time.Hour
	b.MaxElapsedTime = 0
	b.Reset()

	return &exponentialRetryPolicy{maxRetries: maxRetries, backoff: b}
}

func (p *exponentialRetryPolicy) Next() (time.Duration, bool) {
	if p.attempts >= p.maxRetries {
		return 0, false
	}

	d := p.backoff.NextBackOff()
	if d == backoff.Stop {
		return 0, false
	}
	p.attempts++
	return d, true
}

func (p *exponentialRetryPolicy) Reset() {
	p.attempts = 0
	p.backoff.Reset()
}

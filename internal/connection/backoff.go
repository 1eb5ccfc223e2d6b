package connection

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// reconnectPolicy yields delays of min(base·2^attempt, cap) for up to
// maxAttempts retries.
type reconnectPolicy struct {
	backoff     *backoff.ExponentialBackOff
	maxAttempts int
	attempt     int
}

func newReconnectPolicy(base, maxDelay time.Duration, maxAttempts int) *reconnectPolicy {
	if base > maxDelay {
		base = maxDelay
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = base
	b.MaxInterval = maxDelay
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.Reset()

	return &reconnectPolicy{
		backoff:     b,
		maxAttempts: maxAttempts,
	}
}

// Next returns the delay before the next retry and advances the attempt
// counter. ok is false once maxAttempts retries have been handed out.
func (p *reconnectPolicy) Next() (delay time.Duration, ok bool) {
	if p.attempt >= p.maxAttempts {
		return 0, false
	}
	p.attempt++
	return p.backoff.NextBackOff(), true
}

// Reset rewinds to attempt 0.
func (p *reconnectPolicy) Reset() {
	p.attempt = 0
	p.backoff.Reset()
}

// Attempt returns the number of retries handed out since the last Reset.
func (p *reconnectPolicy) Attempt() int {
	return p.attempt
}

// Exhausted reports whether no retries remain.
func (p *reconnectPolicy) Exhausted() bool {
	return p.attempt >= p.maxAttempts
}

package stream

import (
	"time"

	"github.com/cenkalti/backoff"
)

const (
	defaultBaseRetryDelay = time.Second
	defaultMaxRetryDelay  = 30 * time.Second
)

// ReconnectPolicy produces the delay for each consecutive reconnect
// attempt: base*2^n capped at max, with no attempt limit. Reset on every
// successful open so the next failure starts over at the base delay.
type ReconnectPolicy struct {
	exp      *backoff.ExponentialBackOff
	attempts int
}

// NewReconnectPolicy builds a policy with the given delay bounds.
// Non-positive bounds fall back to the defaults (1s base, 30s max).
func NewReconnectPolicy(base, max time.Duration) *ReconnectPolicy {
	if base <= 0 {
		base = defaultBaseRetryDelay
	}
	if max <= 0 {
		max = defaultMaxRetryDelay
	}
	exp := backoff.NewExponentialBackOff()
	exp.InitialInterval = base
	exp.Multiplier = 2
	// Deterministic schedule: the UI surfaces the exact delay to the user.
	exp.RandomizationFactor = 0
	exp.MaxInterval = max
	// Never give up while the host is online.
	exp.MaxElapsedTime = 0
	exp.Reset()
	return &ReconnectPolicy{exp: exp}
}

// Next returns the delay for the next attempt and advances the schedule.
func (p *ReconnectPolicy) Next() time.Duration {
	p.attempts++
	return p.exp.NextBackOff()
}

// Reset restarts the schedule from the base delay.
func (p *ReconnectPolicy) Reset() {
	p.attempts = 0
	p.exp.Reset()
}

// Attempts reports how many retries have been scheduled since the last
// successful open.
func (p *ReconnectPolicy) Attempts() int {
	return p.attempts
}

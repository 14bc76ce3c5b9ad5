// Package backoff implements the exponential delay schedule used by
// the reconnection supervisor. The delay grows by a multiplier after
// each failure, capped at a maximum, and resets once a connection has
// been stable long enough.
package backoff

import (
	"context"
	"time"
)

// Backoff tracks the current delay and consecutive attempt count.
// It is pure state; the supervisor owns it exclusively.
type Backoff struct {
	initial    time.Duration
	max        time.Duration
	multiplier int
	current    time.Duration

	// Attempt counts consecutive failures since the last Reset.
	Attempt int
}

// New creates a backoff starting at initial, growing by multiplier per
// step, capped at max.
func New(initial, max time.Duration, multiplier int) *Backoff {
	return &Backoff{
		initial:    initial,
		max:        max,
		multiplier: multiplier,
		current:    initial,
	}
}

// NextDelay returns the current delay and advances the state: the
// delay is multiplied (up to max) for the next call and the attempt
// counter increments.
func (b *Backoff) NextDelay() time.Duration {
	delay := b.current
	b.Attempt++
	next := b.current * time.Duration(b.multiplier)
	if next > b.max {
		next = b.max
	}
	b.current = next
	return delay
}

// Reset restores the initial delay and clears the attempt counter.
// Called when a connection has been stable long enough.
func (b *Backoff) Reset() {
	b.current = b.initial
	b.Attempt = 0
}

// ExceededMaxAttempts reports whether the consecutive attempt count
// has reached max.
func (b *Backoff) ExceededMaxAttempts(max int) bool {
	return b.Attempt >= max
}

// Sleep waits for d or until ctx is done, whichever comes first.
// Returns ctx.Err() when interrupted, so shutdown stays responsive
// during long reconnect waits.
func Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

package api

import (
	"context"
	"time"
)

// Policy bounds retries of transient failures
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the current delay added at random
	Jitter float64
}

// DefaultPolicy returns the retry policy used when none is configured
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 5,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    30 * time.Second,
		Jitter:      0.2,
	}
}

func (p Policy) normalized() Policy {
	d := DefaultPolicy()
	if p.MaxAttempts < 1 {
		p.MaxAttempts = d.MaxAttempts
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = d.BaseDelay
	}
	if p.MaxDelay < p.BaseDelay {
		p.MaxDelay = p.BaseDelay
	}
	if p.Jitter < 0 {
		p.Jitter = 0
	}
	return p
}

// Backoff is the retry state of a single call: how many attempts have been
// made and how long to wait before the next one. Delays never decrease.
type Backoff struct {
	policy  Policy
	rand    func() float64
	attempt int
	next    time.Duration
	last    time.Duration
}

// NewBackoff starts a retry sequence. rand returns values in [0,1); nil
// disables jitter.
func NewBackoff(p Policy, rand func() float64) *Backoff {
	p = p.normalized()
	return &Backoff{
		policy: p,
		rand:   rand,
		next:   p.BaseDelay,
	}
}

// Attempts returns the number of failed attempts recorded so far
func (b *Backoff) Attempts() int {
	return b.attempt
}

// Next records a failed attempt and returns the wait before the next one.
// hint is a server-provided minimum (Retry-After). ok is false once the
// attempt ceiling is reached.
func (b *Backoff) Next(hint time.Duration) (delay time.Duration, ok bool) {
	b.attempt++
	if b.attempt >= b.policy.MaxAttempts {
		return 0, false
	}

	delay = b.next
	if b.rand != nil && b.policy.Jitter > 0 {
		delay += time.Duration(float64(delay) * b.policy.Jitter * b.rand())
	}
	if hint > delay {
		delay = hint
	}
	if delay > b.policy.MaxDelay {
		delay = b.policy.MaxDelay
	}
	if delay < b.last {
		delay = b.last
	}
	b.last = delay

	b.next *= 2
	if b.next > b.policy.MaxDelay {
		b.next = b.policy.MaxDelay
	}
	return delay, true
}

// Clock abstracts time so backoff waits can be tested without sleeping
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration) error
}

// RealClock is the wall clock
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

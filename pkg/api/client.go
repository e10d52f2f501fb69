// Package api wraps every call to the repository host and the model provider
// with per-service concurrency caps, request pacing, and retry with backoff.
package api

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"sync/atomic"
	"time"

	"github.com/saint0x/reposage/pkg/log"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// Limits caps one service. MaxInFlight bounds concurrent requests across all
// workers; RequestsPerSecond paces them (0 disables pacing).
type Limits struct {
	MaxInFlight       int
	RequestsPerSecond float64
	Burst             int
}

// DefaultLimits returns the per-service caps used when none are configured
func DefaultLimits() map[Service]Limits {
	return map[Service]Limits{
		ServiceHost:  {MaxInFlight: 8},
		ServiceModel: {MaxInFlight: 4},
	}
}

// Options configure a Client
type Options struct {
	Policy      Policy
	CallTimeout time.Duration
	Limits      map[Service]Limits
	Clock       Clock
	// Rand feeds backoff jitter; nil uses math/rand
	Rand   func() float64
	Logger *log.Logger
}

type gate struct {
	cap      int
	sem      *semaphore.Weighted
	limiter  *rate.Limiter
	inFlight atomic.Int64
	peak     atomic.Int64
}

// Client is shared by all workers of a run
type Client struct {
	policy      Policy
	callTimeout time.Duration
	clock       Clock
	rand        func() float64
	logger      *log.Logger

	mu    sync.Mutex
	gates map[Service]*gate
	dflt  Limits
}

// NewClient creates a client
func NewClient(opts Options) *Client {
	c := &Client{
		policy:      opts.Policy.normalized(),
		callTimeout: opts.CallTimeout,
		clock:       opts.Clock,
		rand:        opts.Rand,
		logger:      opts.Logger,
		gates:       make(map[Service]*gate),
		dflt:        Limits{MaxInFlight: 4},
	}
	if c.clock == nil {
		c.clock = RealClock{}
	}
	if c.rand == nil {
		var mu sync.Mutex
		src := rand.New(rand.NewSource(time.Now().UnixNano()))
		c.rand = func() float64 {
			mu.Lock()
			defer mu.Unlock()
			return src.Float64()
		}
	}
	if c.logger == nil {
		c.logger = log.Discard()
	}

	limits := opts.Limits
	if len(limits) == 0 {
		limits = DefaultLimits()
	}
	for svc, l := range limits {
		c.gates[svc] = newGate(l)
	}
	return c
}

func newGate(l Limits) *gate {
	if l.MaxInFlight < 1 {
		l.MaxInFlight = 1
	}
	g := &gate{
		cap: l.MaxInFlight,
		sem: semaphore.NewWeighted(int64(l.MaxInFlight)),
	}
	if l.RequestsPerSecond > 0 {
		burst := l.Burst
		if burst < 1 {
			burst = 1
		}
		g.limiter = rate.NewLimiter(rate.Limit(l.RequestsPerSecond), burst)
	}
	return g
}

func (c *Client) gate(svc Service) *gate {
	c.mu.Lock()
	defer c.mu.Unlock()
	g, ok := c.gates[svc]
	if !ok {
		g = newGate(c.dflt)
		c.gates[svc] = g
	}
	return g
}

// MaxInFlight returns the largest per-service cap. Running more workers than
// this only queues them on the gates.
func (c *Client) MaxInFlight() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	max := 1
	for _, g := range c.gates {
		if g.cap > max {
			max = g.cap
		}
	}
	return max
}

// PeakInFlight returns the highest number of concurrent calls observed for svc
func (c *Client) PeakInFlight(svc Service) int {
	return int(c.gate(svc).peak.Load())
}

// Call runs fn against svc, retrying transient failures. Every returned error
// is an *Error.
func Call[T any](ctx context.Context, c *Client, svc Service, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	g := c.gate(svc)
	b := NewBackoff(c.policy, c.rand)

	for {
		v, err := attemptCall(ctx, c, g, fn)
		if err == nil {
			return v, nil
		}

		apiErr := annotate(err, svc, op, b.Attempts()+1)
		if !apiErr.Kind.Retryable() {
			return zero, apiErr
		}

		delay, ok := b.Next(apiErr.RetryAfter)
		if !ok {
			return zero, apiErr
		}
		c.logger.Debug("%s %s: %s (attempt %d), retrying in %s", svc, op, apiErr.Kind, apiErr.Attempts, delay)

		if err := c.clock.Sleep(ctx, delay); err != nil {
			return zero, &Error{
				Kind:     KindCanceled,
				Service:  svc,
				Op:       op,
				Attempts: apiErr.Attempts,
				Err:      fmt.Errorf("retry abandoned: %w", err),
			}
		}
	}
}

// attemptCall runs one call under the service gate. The call itself is detached
// from ctx cancellation and bounded by the per-call timeout instead, so a
// cancelled run never aborts a request half way through.
func attemptCall[T any](ctx context.Context, c *Client, g *gate, fn func(context.Context) (T, error)) (v T, err error) {
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return v, NewError(KindCanceled, err)
	}
	defer g.sem.Release(1)

	if g.limiter != nil {
		if err := g.limiter.Wait(ctx); err != nil {
			return v, NewError(KindCanceled, err)
		}
	}

	n := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		peak := g.peak.Load()
		if n <= peak || g.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	callCtx := context.WithoutCancel(ctx)
	if c.callTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(callCtx, c.callTimeout)
		defer cancel()
	}

	defer func() {
		if r := recover(); r != nil {
			err = Errorf(KindUnknown, "panic: %v", r)
		}
	}()
	return fn(callCtx)
}

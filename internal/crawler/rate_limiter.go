package crawler

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

// RateLimiter gates requests per domain: a minimum inter-request delay
// and a cap on simultaneous in-flight requests. Global concurrency is
// bounded separately by the worker pool, so per-domain limits are
// always at least as tight as the global bound.
type RateLimiter struct {
	mu      sync.RWMutex
	domains map[string]*domainGate

	delay       time.Duration
	maxInFlight int64
	waitCeiling time.Duration
}

type domainGate struct {
	limiter  *rate.Limiter
	inFlight *semaphore.Weighted
}

// NewRateLimiter creates a limiter enforcing delay between requests to
// one domain and at most maxInFlight concurrent requests to it. A
// waitCeiling of zero waits indefinitely (bounded by the caller's ctx).
func NewRateLimiter(delay time.Duration, maxInFlight int, waitCeiling time.Duration) *RateLimiter {
	if maxInFlight < 1 {
		maxInFlight = 1
	}
	return &RateLimiter{
		domains:     make(map[string]*domainGate),
		delay:       delay,
		maxInFlight: int64(maxInFlight),
		waitCeiling: waitCeiling,
	}
}

// Acquire blocks until both the inter-request delay and an in-flight
// slot are available for the domain, or fails with ErrRateLimitTimeout
// when the wait ceiling is exceeded. On success the caller must call
// Release exactly once, on every exit path.
func (r *RateLimiter) Acquire(ctx context.Context, domain string) error {
	gate := r.get(domain)

	waitCtx := ctx
	if r.waitCeiling > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, r.waitCeiling)
		defer cancel()
	}

	if err := gate.inFlight.Acquire(waitCtx, 1); err != nil {
		return r.classifyWait(ctx, err)
	}
	if err := gate.limiter.Wait(waitCtx); err != nil {
		gate.inFlight.Release(1)
		return r.classifyWait(ctx, err)
	}
	return nil
}

// Release returns the domain's in-flight slot.
func (r *RateLimiter) Release(domain string) {
	r.mu.RLock()
	gate, ok := r.domains[domain]
	r.mu.RUnlock()
	if ok {
		gate.inFlight.Release(1)
	}
}

// InFlight reports whether more requests to the domain would currently
// be admitted without waiting on the in-flight cap.
func (r *RateLimiter) InFlight(domain string) bool {
	r.mu.RLock()
	gate, ok := r.domains[domain]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if gate.inFlight.TryAcquire(1) {
		gate.inFlight.Release(1)
		return false
	}
	return true
}

// classifyWait distinguishes a wait-ceiling expiry from the caller's
// own cancellation.
func (r *RateLimiter) classifyWait(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrRateLimitTimeout
	}
	// rate.Limiter.Wait reports a ctx deadline as a plain error.
	return ErrRateLimitTimeout
}

// get returns the gate for a domain, creating it on first use.
func (r *RateLimiter) get(domain string) *domainGate {
	r.mu.RLock()
	gate, ok := r.domains[domain]
	r.mu.RUnlock()
	if ok {
		return gate
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if gate, ok := r.domains[domain]; ok {
		return gate
	}
	gate = &domainGate{
		limiter:  rate.NewLimiter(rate.Every(r.delay), 1),
		inFlight: semaphore.NewWeighted(r.maxInFlight),
	}
	r.domains[domain] = gate
	return gate
}

package crawler

import (
	"sync"
	"time"
)

// BreakerState is the health state of one domain.
type BreakerState int

const (
	// BreakerClosed lets requests flow normally.
	BreakerClosed BreakerState = iota
	// BreakerOpen short-circuits all requests without a network call.
	BreakerOpen
	// BreakerHalfOpen permits exactly one probe request.
	BreakerHalfOpen
)

// String returns the lower-case state name used in logs.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes the per-domain circuit breaker.
type BreakerConfig struct {
	FailureThreshold int           // consecutive failures before opening
	RecoveryTimeout  time.Duration // open-state cool-down before a probe
	RecoveryBackoff  float64       // cool-down multiplier after a failed probe (>=1)
}

// domainBreaker holds one domain's health state. All transitions happen
// under its own mutex; there is no process-wide lock.
type domainBreaker struct {
	mu sync.Mutex

	state           BreakerState
	consecutiveFail int
	openedAt        time.Time
	currentTimeout  time.Duration
	probeInFlight   bool

	// historical totals, kept across counter resets for reporting
	totalFailures  int
	totalSuccesses int
	rejections     int
}

// BreakerRegistry tracks domain health and drives the closed/open/
// half-open state machine for every host the crawl touches.
type BreakerRegistry struct {
	mu      sync.RWMutex
	domains map[string]*domainBreaker
	cfg     BreakerConfig
	now     func() time.Time // test hook
}

// NewBreakerRegistry creates a registry with the given thresholds.
// A RecoveryBackoff below 1 is treated as a fixed cool-down.
func NewBreakerRegistry(cfg BreakerConfig) *BreakerRegistry {
	if cfg.RecoveryBackoff < 1 {
		cfg.RecoveryBackoff = 1
	}
	return &BreakerRegistry{
		domains: make(map[string]*domainBreaker),
		cfg:     cfg,
		now:     time.Now,
	}
}

// Allow reports whether a request to the domain may proceed. In the
// open state it returns ErrCircuitOpen until the cool-down elapses,
// then admits a single half-open probe.
func (r *BreakerRegistry) Allow(domain string) error {
	b := r.get(domain)

	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case BreakerClosed:
		return nil
	case BreakerOpen:
		if r.now().Sub(b.openedAt) < b.currentTimeout {
			b.rejections++
			return ErrCircuitOpen
		}
		b.state = BreakerHalfOpen
		b.probeInFlight = true
		return nil
	case BreakerHalfOpen:
		if b.probeInFlight {
			b.rejections++
			return ErrCircuitOpen
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// ReportSuccess records a successful request. In half-open state the
// probe success closes the breaker and resets the failure counter and
// cool-down; in closed state it only resets the consecutive counter.
func (r *BreakerRegistry) ReportSuccess(domain string) {
	b := r.get(domain)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalSuccesses++
	b.consecutiveFail = 0
	if b.state == BreakerHalfOpen {
		b.state = BreakerClosed
		b.probeInFlight = false
		b.currentTimeout = r.cfg.RecoveryTimeout
	}
}

// ReportFailure records a failed request. Reaching the failure
// threshold in closed state opens the breaker; a failed half-open
// probe reopens it and grows the cool-down by the backoff multiplier.
// Rejections from an open breaker are never reported as failures.
func (r *BreakerRegistry) ReportFailure(domain string) {
	b := r.get(domain)

	b.mu.Lock()
	defer b.mu.Unlock()

	b.totalFailures++
	b.consecutiveFail++

	switch b.state {
	case BreakerClosed:
		if b.consecutiveFail >= r.cfg.FailureThreshold {
			b.state = BreakerOpen
			b.openedAt = r.now()
			b.currentTimeout = r.cfg.RecoveryTimeout
		}
	case BreakerHalfOpen:
		b.state = BreakerOpen
		b.openedAt = r.now()
		b.probeInFlight = false
		b.currentTimeout = time.Duration(float64(b.currentTimeout) * r.cfg.RecoveryBackoff)
	}
}

// CancelProbe hands back a half-open probe slot claimed by Allow when
// the request was abandoned before reaching the network (robots.txt
// skip, rate-limit timeout). A no-op in other states.
func (r *BreakerRegistry) CancelProbe(domain string) {
	b := r.get(domain)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerHalfOpen {
		b.probeInFlight = false
	}
}

// State returns the domain's current breaker state without creating an
// entry for unknown domains.
func (r *BreakerRegistry) State(domain string) BreakerState {
	r.mu.RLock()
	b, ok := r.domains[domain]
	r.mu.RUnlock()
	if !ok {
		return BreakerClosed
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Totals returns historical success/failure/rejection counts for a
// domain, which survive the consecutive-failure resets.
func (r *BreakerRegistry) Totals(domain string) (successes, failures, rejections int) {
	r.mu.RLock()
	b, ok := r.domains[domain]
	r.mu.RUnlock()
	if !ok {
		return 0, 0, 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	return b.totalSuccesses, b.totalFailures, b.rejections
}

// get returns the breaker for a domain, creating it on first use.
func (r *BreakerRegistry) get(domain string) *domainBreaker {
	r.mu.RLock()
	b, ok := r.domains[domain]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.domains[domain]; ok {
		return b
	}
	b = &domainBreaker{
		state:          BreakerClosed,
		currentTimeout: r.cfg.RecoveryTimeout,
	}
	r.domains[domain] = b
	return b
}

// Package crawler implements the crawl orchestration engine: the URL
// frontier, per-domain circuit breakers and rate limits, the retrying
// fetch executor, near-duplicate detection, and the scheduler that
// coordinates them across a bounded worker pool.
package crawler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"webharvest/internal/config"
	"webharvest/internal/urlutil"
)

// SchedulerState is the scheduler's lifecycle state.
type SchedulerState int32

const (
	// StateIdle means Crawl has not been called yet.
	StateIdle SchedulerState = iota
	// StateRunning means workers are active.
	StateRunning
	// StateDraining means no new tasks are dispatched; in-flight
	// fetches run to completion.
	StateDraining
	// StateCompleted means the crawl finished naturally or via limits.
	StateCompleted
	// StateAborted means the crawl was cancelled externally.
	StateAborted
)

// String returns the lower-case state name.
func (s SchedulerState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateCompleted:
		return "completed"
	case StateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// Scheduler is the top-level control loop. One Scheduler drives one
// crawl session.
type Scheduler struct {
	cfg       *config.CrawlConfig
	store     SessionStore
	extractor ContentExtractor
	executor  Executor
	breakers  *BreakerRegistry
	limiter   *RateLimiter
	client    *HTTPClient
	fpStore   *FingerprintStore

	frontier *Frontier
	state    atomic.Int32
	aborted  atomic.Bool

	sessionID string
	startTime time.Time
	cancel    context.CancelFunc

	inFlight atomic.Int32
	wg       sync.WaitGroup

	statsMu  sync.RWMutex
	counters SessionCounters
	accepted []*FetchOutcome

	requeueMu sync.Mutex
	requeued  map[string]struct{}
}

// NewScheduler creates a crawl scheduler from a validated
// configuration. The session store and content extractor are supplied
// by the caller; everything else is built from the config.
func NewScheduler(cfg *config.CrawlConfig, store SessionStore, extractor ContentExtractor) (*Scheduler, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	client := NewHTTPClient(cfg.UserAgent, cfg.ConnectionTimeout, cfg.Headers)
	breakers := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: cfg.BreakerThreshold,
		RecoveryTimeout:  cfg.RecoveryTimeout,
		RecoveryBackoff:  cfg.RecoveryBackoff,
	})
	limiter := NewRateLimiter(cfg.RequestDelay, cfg.PerDomainMax, cfg.RateWaitCeiling)
	retry := NewRetryPolicy(cfg.RetryTries, cfg.RetryBaseDelay, cfg.RetryMaxDelay, cfg.RetryMultiplier)
	robots := NewRobotsChecker(client, cfg.UserAgent, cfg.RespectRobots)

	return &Scheduler{
		cfg:       cfg,
		store:     store,
		extractor: extractor,
		executor:  NewFetchExecutor(client, breakers, limiter, retry, robots),
		breakers:  breakers,
		limiter:   limiter,
		client:    client,
		fpStore:   NewFingerprintStore(cfg.SimilarityThreshold, cfg.MinTextLength),
		requeued:  make(map[string]struct{}),
	}, nil
}

// Crawl runs one session from the seed URL until the frontier drains,
// a limit is reached, or the crawl is cancelled. It returns a result
// even when individual tasks failed; only startup errors (bad seed,
// store failure) fail the whole crawl.
func (s *Scheduler) Crawl(ctx context.Context, seedURL string) (*CrawlResult, error) {
	if !s.state.CompareAndSwap(int32(StateIdle), int32(StateRunning)) {
		return nil, fmt.Errorf("scheduler already used (state %s)", s.currentState())
	}

	seed, err := urlutil.Normalize(seedURL)
	if err != nil {
		s.state.Store(int32(StateAborted))
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeedURL, err)
	}
	seedHost, err := urlutil.Host(seed)
	if err != nil {
		s.state.Store(int32(StateAborted))
		return nil, fmt.Errorf("%w: %v", ErrInvalidSeedURL, err)
	}

	s.sessionID = uuid.NewString()
	s.startTime = time.Now()

	snapshot, err := yaml.Marshal(s.cfg)
	if err != nil {
		s.state.Store(int32(StateAborted))
		return nil, fmt.Errorf("failed to snapshot configuration: %w", err)
	}
	if err := s.store.StartSession(s.sessionID, string(snapshot)); err != nil {
		s.state.Store(int32(StateAborted))
		return nil, fmt.Errorf("failed to start session: %w", err)
	}

	filter := NewURLFilter(seedHost, s.cfg.FollowExternalHosts,
		s.cfg.IncludePatterns, s.cfg.ExcludePatterns, s.cfg.IgnoreExtensions)
	s.frontier = NewFrontier(s.cfg.MaxDepth, filter)
	s.frontier.Push(seed, 0, "")

	runCtx := ctx
	if s.cfg.SessionDeadline > 0 {
		var cancelDeadline context.CancelFunc
		runCtx, cancelDeadline = context.WithTimeout(ctx, s.cfg.SessionDeadline)
		defer cancelDeadline()
	}
	runCtx, s.cancel = context.WithCancel(runCtx)
	defer s.cancel()

	slog.Info("Starting crawl",
		"session_id", s.sessionID, "seed", seed,
		"concurrency", s.cfg.Concurrency, "max_depth", s.cfg.MaxDepth)

	for i := 0; i < s.cfg.Concurrency; i++ {
		s.wg.Add(1)
		go s.worker(runCtx, i)
	}

	reporterDone := make(chan struct{})
	go s.statsReporter(runCtx, reporterDone)

	s.wg.Wait()
	s.cancel()
	<-reporterDone

	return s.finalize(ctx)
}

// Stop requests a transition to Draining: the frontier stops accepting
// pushes and no new tasks are dispatched, but in-flight fetches finish.
func (s *Scheduler) Stop() {
	if s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		s.aborted.Store(true)
		if s.frontier != nil {
			s.frontier.Close()
		}
		slog.Info("Crawl draining", "session_id", s.sessionID)
	}
}

// Stats returns a live statistics snapshot, queryable during or after
// the run.
func (s *Scheduler) Stats() CrawlStats {
	s.statsMu.RLock()
	counters := s.counters
	s.statsMu.RUnlock()

	attempts := counters.Visited + counters.Failed
	rate := 0.0
	if attempts > 0 {
		rate = float64(counters.Visited) / float64(attempts)
	}

	elapsed := time.Duration(0)
	if !s.startTime.IsZero() {
		elapsed = time.Since(s.startTime)
	}

	return CrawlStats{
		SessionID:   s.sessionID,
		State:       s.currentState().String(),
		Counters:    counters,
		SuccessRate: rate,
		StartTime:   s.startTime,
		Elapsed:     elapsed,
	}
}

// worker pulls tasks from the frontier until the crawl drains.
// Exit conditions: context cancelled, scheduler draining, page limit
// reached, or frontier empty with zero tasks in flight.
func (s *Scheduler) worker(ctx context.Context, id int) {
	defer s.wg.Done()

	for {
		select {
		case <-ctx.Done():
			s.aborted.Store(true)
			return
		default:
		}

		if s.currentState() == StateDraining {
			return
		}
		if s.limitReached() {
			s.drain()
			return
		}

		// Claim an in-flight slot before popping so another worker
		// never observes an empty frontier with this task unaccounted.
		s.inFlight.Add(1)
		task, ok := s.frontier.Pop()
		if !ok {
			s.inFlight.Add(-1)
			if s.inFlight.Load() == 0 {
				return
			}
			if err := sleepCtx(ctx, s.cfg.RequestDelay); err != nil {
				s.aborted.Store(true)
				return
			}
			continue
		}

		outcome := s.executor.Execute(ctx, task)
		s.handleOutcome(task, outcome)
		s.inFlight.Add(-1)
	}
}

// handleOutcome applies one terminal outcome: duplicate detection and
// link discovery for successes, requeue-once for rate-limit timeouts,
// then the session store write and counter updates.
func (s *Scheduler) handleOutcome(task *CrawlTask, outcome *FetchOutcome) {
	rec := &VisitedRecord{
		URL:        task.URL,
		HTTPStatus: outcome.HTTPStatus,
		Depth:      task.Depth,
		Elapsed:    outcome.Elapsed,
		VisitedAt:  time.Now().UTC(),
	}

	switch outcome.Status {
	case StatusSuccess:
		// An HTTP failure outranks duplicate classification: only
		// successful fetches are fingerprinted.
		duplicate, fp := s.classifyContent(task, outcome)
		rec.Fingerprint = fp.Hash
		if duplicate {
			outcome.Status = StatusDuplicate
			rec.Status = StatusDuplicate.String()
			s.bumpCounter(func(c *SessionCounters) { c.Duplicate++ })
			slog.Debug("Duplicate content", "url", task.URL)
		} else {
			rec.Status = StatusSuccess.String()
			s.bumpCounter(func(c *SessionCounters) { c.Visited++ })
			s.statsMu.Lock()
			s.accepted = append(s.accepted, outcome)
			s.statsMu.Unlock()
		}

	case StatusSkipped:
		if errors.Is(outcome.Err, ErrRateLimitTimeout) {
			if s.requeueOnce(task) {
				slog.Warn("Rate limit timeout, requeueing", "url", task.URL)
				return
			}
			// Recurred after the one allowed requeue.
			outcome.Status = StatusFailed
			rec.Status = StatusFailed.String()
			rec.ErrorKind = KindRateLimited.String()
			s.bumpCounter(func(c *SessionCounters) { c.Failed++ })
			slog.Warn("Rate limit timeout recurred, failing task", "url", task.URL)
			break
		}
		rec.Status = StatusSkipped.String()
		s.bumpCounter(func(c *SessionCounters) { c.Skipped++ })

	case StatusCircuitOpen:
		rec.Status = StatusCircuitOpen.String()
		rec.ErrorKind = outcome.ErrorKind.String()
		s.bumpCounter(func(c *SessionCounters) { c.Failed++ })
		slog.Debug("Circuit open, request short-circuited", "url", task.URL)

	default: // StatusFailed
		rec.Status = StatusFailed.String()
		rec.ErrorKind = outcome.ErrorKind.String()
		s.bumpCounter(func(c *SessionCounters) { c.Failed++ })
		// Exhausted retries are logged once per task, not per attempt.
		slog.Warn("Task failed",
			"url", task.URL, "kind", outcome.ErrorKind.String(),
			"http_status", outcome.HTTPStatus, "attempts", outcome.Attempts)
	}

	if err := s.store.RecordVisit(s.sessionID, rec); err != nil {
		slog.Error("Failed to record visit", "url", task.URL, "error", err)
	}
}

// classifyContent extracts the page, fingerprints its normalized text,
// and pushes discovered links for unique pages. Returns whether the
// page is a near-duplicate.
func (s *Scheduler) classifyContent(task *CrawlTask, outcome *FetchOutcome) (bool, ContentFingerprint) {
	content, err := s.extractor.Extract(outcome.FinalURL, outcome.Body)
	if err != nil {
		slog.Warn("Content extraction failed", "url", task.URL, "error", err)
		return false, ContentFingerprint{}
	}

	if s.fpStore.TooShort(content.NormalizedText) {
		return true, ContentFingerprint{}
	}
	fp := Fingerprint(content.NormalizedText)
	if s.fpStore.CheckAndRecord(fp) {
		return true, fp
	}

	for _, link := range content.Links {
		s.pushLink(link, task)
	}
	return false, fp
}

// pushLink feeds one discovered link back into the frontier, applying
// cross-session suppression when configured.
func (s *Scheduler) pushLink(link string, parent *CrawlTask) {
	if s.cfg.ResumeAcrossSessions {
		normalized, err := urlutil.Normalize(link)
		if err != nil {
			return
		}
		visited, err := s.store.IsVisited(normalized)
		if err != nil {
			slog.Error("Visited lookup failed", "url", normalized, "error", err)
		} else if visited {
			return
		}
	}
	s.frontier.Push(link, parent.Depth+1, parent.URL)
}

// requeueOnce returns true when the task had not been requeued before
// and was put back on the frontier.
func (s *Scheduler) requeueOnce(task *CrawlTask) bool {
	s.requeueMu.Lock()
	_, already := s.requeued[task.URL]
	if !already {
		s.requeued[task.URL] = struct{}{}
	}
	s.requeueMu.Unlock()

	if already {
		return false
	}
	return s.frontier.Requeue(task)
}

// finalize transitions to the terminal state, closes the session
// record, and assembles the result.
func (s *Scheduler) finalize(ctx context.Context) (*CrawlResult, error) {
	terminal := StateCompleted
	sessionStatus := "completed"
	if s.aborted.Load() || ctx.Err() != nil {
		terminal = StateAborted
		sessionStatus = "aborted"
	}
	s.state.Store(int32(terminal))
	s.client.Close()

	if err := s.store.EndSession(s.sessionID, sessionStatus); err != nil {
		slog.Error("Failed to close session record", "session_id", s.sessionID, "error", err)
	}

	stats := s.Stats()
	s.statsMu.RLock()
	accepted := make([]*FetchOutcome, len(s.accepted))
	copy(accepted, s.accepted)
	s.statsMu.RUnlock()

	slog.Info("Crawl finished",
		"session_id", s.sessionID, "state", terminal.String(),
		"visited", stats.Counters.Visited, "failed", stats.Counters.Failed,
		"duplicate", stats.Counters.Duplicate, "skipped", stats.Counters.Skipped,
		"elapsed", stats.Elapsed)

	return &CrawlResult{
		SessionID: s.sessionID,
		Accepted:  accepted,
		Stats:     stats,
	}, nil
}

// statsReporter logs progress periodically while the crawl runs.
func (s *Scheduler) statsReporter(ctx context.Context, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.Stats()
			slog.Info("Crawl progress",
				"visited", stats.Counters.Visited, "failed", stats.Counters.Failed,
				"duplicate", stats.Counters.Duplicate, "skipped", stats.Counters.Skipped,
				"pending", s.frontier.Len(), "in_flight", s.inFlight.Load(),
				"elapsed", stats.Elapsed)
		}
	}
}

func (s *Scheduler) currentState() SchedulerState {
	return SchedulerState(s.state.Load())
}

func (s *Scheduler) drain() {
	if s.state.CompareAndSwap(int32(StateRunning), int32(StateDraining)) {
		s.frontier.Close()
		slog.Info("Page limit reached, draining", "session_id", s.sessionID)
	}
}

func (s *Scheduler) limitReached() bool {
	if s.cfg.MaxPages <= 0 {
		return false
	}
	s.statsMu.RLock()
	defer s.statsMu.RUnlock()
	return s.counters.Visited >= s.cfg.MaxPages
}

func (s *Scheduler) bumpCounter(f func(*SessionCounters)) {
	s.statsMu.Lock()
	f(&s.counters)
	s.statsMu.Unlock()
}

package crawler

import (
	"context"
	"log/slog"
	"time"

	"webharvest/internal/urlutil"
)

// FetchExecutor performs one task's full attempt chain: circuit
// breaker check, rate limiter acquisition, the HTTP request, and
// retries per policy. All shared state it touches belongs to the
// task's own domain; it holds no cross-domain locks.
type FetchExecutor struct {
	httpClient *HTTPClient
	breakers   *BreakerRegistry
	limiter    *RateLimiter
	retry      *RetryPolicy
	robots     *RobotsChecker

	sleep func(ctx context.Context, d time.Duration) error // test hook
}

// NewFetchExecutor wires the executor's collaborators together.
func NewFetchExecutor(httpClient *HTTPClient, breakers *BreakerRegistry, limiter *RateLimiter, retry *RetryPolicy, robots *RobotsChecker) *FetchExecutor {
	return &FetchExecutor{
		httpClient: httpClient,
		breakers:   breakers,
		limiter:    limiter,
		retry:      retry,
		robots:     robots,
		sleep:      sleepCtx,
	}
}

// Execute runs the task to a terminal outcome. The rate limiter slot
// is released on every exit path; terminal success or failure is
// reported to the circuit breaker, but circuit-open rejections and
// limiter timeouts are not counted as domain failures.
func (e *FetchExecutor) Execute(ctx context.Context, task *CrawlTask) *FetchOutcome {
	start := time.Now()

	domain, err := urlutil.Host(task.URL)
	if err != nil {
		return &FetchOutcome{
			Task: task, Status: StatusFailed, ErrorKind: KindMalformedURL,
			Elapsed: time.Since(start), Err: err,
		}
	}

	if err := e.breakers.Allow(domain); err != nil {
		return &FetchOutcome{
			Task: task, Status: StatusCircuitOpen, ErrorKind: KindCircuitOpen,
			Elapsed: time.Since(start), Err: err,
		}
	}

	if e.robots != nil && !e.robots.Allowed(ctx, task.URL) {
		// Not a domain health signal; hand back any half-open probe
		// slot the Allow call above may have claimed.
		e.breakers.CancelProbe(domain)
		slog.Info("URL disallowed by robots.txt", "url", task.URL)
		return &FetchOutcome{
			Task: task, Status: StatusSkipped,
			Elapsed: time.Since(start),
		}
	}

	if err := e.limiter.Acquire(ctx, domain); err != nil {
		e.breakers.CancelProbe(domain)
		return &FetchOutcome{
			Task: task, Status: StatusSkipped, ErrorKind: KindRateLimited,
			Elapsed: time.Since(start), Err: err,
		}
	}
	defer e.limiter.Release(domain)

	outcome := e.attemptLoop(ctx, task, domain)
	outcome.Elapsed = time.Since(start)
	return outcome
}

// attemptLoop is the explicit retry state machine: attempt counter
// plus backoff function, never recursion.
func (e *FetchExecutor) attemptLoop(ctx context.Context, task *CrawlTask, domain string) *FetchOutcome {
	var lastKind ErrorKind
	var lastStatus int
	var lastErr error

	attempt := 0
	for {
		attempt++
		resp, err := e.httpClient.Get(ctx, task.URL)

		if err == nil && resp.StatusCode < 400 {
			e.breakers.ReportSuccess(domain)
			return &FetchOutcome{
				Task:       task,
				Status:     StatusSuccess,
				HTTPStatus: resp.StatusCode,
				Body:       resp.Body,
				FinalURL:   resp.FinalURL,
				Attempts:   attempt,
			}
		}

		if err != nil {
			lastKind = classifyErr(err)
			lastStatus = 0
			lastErr = err
		} else {
			lastKind = classifyStatus(resp.StatusCode)
			lastStatus = resp.StatusCode
			lastErr = nil
		}

		if !e.retry.ShouldRetry(attempt, lastKind) {
			break
		}
		// A half-open breaker admitted this task as its single probe;
		// the probe's verdict is one request, not a retry chain.
		if e.breakers.State(domain) == BreakerHalfOpen {
			break
		}

		delay := e.retry.BackoffDelay(attempt)
		slog.Debug("Retrying after backoff",
			"url", task.URL, "attempt", attempt, "kind", lastKind.String(), "delay", delay)
		if err := e.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}

	e.breakers.ReportFailure(domain)
	return &FetchOutcome{
		Task:       task,
		Status:     StatusFailed,
		HTTPStatus: lastStatus,
		ErrorKind:  lastKind,
		Attempts:   attempt,
		Err:        lastErr,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

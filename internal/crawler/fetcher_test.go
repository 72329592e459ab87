package crawler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"webharvest/internal/urlutil"
)

func newTestExecutor(tries int, threshold int) *FetchExecutor {
	client := NewHTTPClient("test-agent/1.0", 5*time.Second, nil)
	breakers := NewBreakerRegistry(BreakerConfig{
		FailureThreshold: threshold,
		RecoveryTimeout:  time.Minute,
		RecoveryBackoff:  1.0,
	})
	limiter := NewRateLimiter(time.Millisecond, 2, 0)
	retry := NewRetryPolicy(tries, time.Millisecond, 10*time.Millisecond, 2.0)

	e := NewFetchExecutor(client, breakers, limiter, retry, nil)
	e.sleep = func(context.Context, time.Duration) error { return nil }
	return e
}

func testTask(url string) *CrawlTask {
	return &CrawlTask{URL: url, Depth: 0, DiscoveredAt: time.Now()}
}

func hostOf(t *testing.T, url string) (string, error) {
	t.Helper()
	return urlutil.Host(url)
}

func TestExecutorSuccess(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html><body>hello</body></html>"))
	}))
	defer server.Close()

	e := newTestExecutor(3, 5)
	outcome := e.Execute(context.Background(), testTask(server.URL+"/page"))

	if outcome.Status != StatusSuccess {
		t.Fatalf("Expected success, got %v (err %v)", outcome.Status, outcome.Err)
	}
	if outcome.HTTPStatus != http.StatusOK {
		t.Errorf("Expected status 200, got %d", outcome.HTTPStatus)
	}
	if outcome.Attempts != 1 {
		t.Errorf("Expected one attempt, got %d", outcome.Attempts)
	}
	if len(outcome.Body) == 0 {
		t.Error("Expected a response body")
	}
}

func TestExecutorRetriesServerErrors(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) <= 2 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_, _ = w.Write([]byte("recovered"))
	}))
	defer server.Close()

	e := newTestExecutor(3, 5)
	outcome := e.Execute(context.Background(), testTask(server.URL+"/flaky"))

	if outcome.Status != StatusSuccess {
		t.Fatalf("Expected success after retries, got %v", outcome.Status)
	}
	if outcome.Attempts != 3 {
		t.Errorf("Expected 3 attempts, got %d", outcome.Attempts)
	}
	if hits.Load() != 3 {
		t.Errorf("Expected 3 server hits, got %d", hits.Load())
	}
}

func TestExecutorExhaustsRetries(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	e := newTestExecutor(3, 5)
	outcome := e.Execute(context.Background(), testTask(server.URL+"/down"))

	if outcome.Status != StatusFailed {
		t.Fatalf("Expected failure, got %v", outcome.Status)
	}
	if outcome.ErrorKind != KindHTTPServer {
		t.Errorf("Expected KindHTTPServer, got %v", outcome.ErrorKind)
	}
	if outcome.Attempts != 3 || hits.Load() != 3 {
		t.Errorf("Expected 3 attempts and 3 hits, got %d and %d", outcome.Attempts, hits.Load())
	}
}

func TestExecutorClientErrorNotRetried(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	e := newTestExecutor(3, 5)
	outcome := e.Execute(context.Background(), testTask(server.URL+"/missing"))

	if outcome.Status != StatusFailed {
		t.Fatalf("Expected failure, got %v", outcome.Status)
	}
	if outcome.ErrorKind != KindHTTPClient {
		t.Errorf("Expected KindHTTPClient, got %v", outcome.ErrorKind)
	}
	if hits.Load() != 1 {
		t.Errorf("Expected a single hit for a 404, got %d", hits.Load())
	}
}

func TestExecutorOpenCircuitSkipsNetwork(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	e := newTestExecutor(3, 2)
	task := testTask(server.URL + "/page")
	domain, err := hostOf(t, task.URL)
	if err != nil {
		t.Fatal(err)
	}
	e.breakers.ReportFailure(domain)
	e.breakers.ReportFailure(domain)

	outcome := e.Execute(context.Background(), task)
	if outcome.Status != StatusCircuitOpen {
		t.Fatalf("Expected circuit-open outcome, got %v", outcome.Status)
	}
	if !errors.Is(outcome.Err, ErrCircuitOpen) {
		t.Errorf("Expected ErrCircuitOpen, got %v", outcome.Err)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected zero network calls, got %d", hits.Load())
	}
}

func TestExecutorHalfOpenMakesSingleAttempt(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	e := newTestExecutor(3, 2)
	task := testTask(server.URL + "/page")
	domain, err := hostOf(t, task.URL)
	if err != nil {
		t.Fatal(err)
	}
	e.breakers.ReportFailure(domain)
	e.breakers.ReportFailure(domain)
	e.breakers.now = func() time.Time { return time.Now().Add(2 * time.Minute) }

	outcome := e.Execute(context.Background(), task)
	if outcome.Status != StatusFailed {
		t.Fatalf("Expected failure, got %v", outcome.Status)
	}
	if outcome.Attempts != 1 || hits.Load() != 1 {
		t.Errorf("Expected a single request while half-open, got %d attempts and %d hits",
			outcome.Attempts, hits.Load())
	}
	if got := e.breakers.State(domain); got != BreakerOpen {
		t.Errorf("Expected breaker to reopen after the failed request, got %v", got)
	}
}

func TestExecutorMalformedURL(t *testing.T) {
	e := newTestExecutor(3, 5)
	outcome := e.Execute(context.Background(), testTask("https:///no-host"))

	if outcome.Status != StatusFailed {
		t.Fatalf("Expected failure, got %v", outcome.Status)
	}
	if outcome.ErrorKind != KindMalformedURL {
		t.Errorf("Expected KindMalformedURL, got %v", outcome.ErrorKind)
	}
}

func TestExecutorRateLimitTimeoutSkips(t *testing.T) {
	var hits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer server.Close()

	e := newTestExecutor(3, 5)
	e.limiter = NewRateLimiter(time.Millisecond, 1, 20*time.Millisecond)

	task := testTask(server.URL + "/busy")
	domain, err := hostOf(t, task.URL)
	if err != nil {
		t.Fatal(err)
	}
	// Occupy the domain's only in-flight slot.
	if err := e.limiter.Acquire(context.Background(), domain); err != nil {
		t.Fatal(err)
	}
	defer e.limiter.Release(domain)

	outcome := e.Execute(context.Background(), task)
	if outcome.Status != StatusSkipped {
		t.Fatalf("Expected skipped outcome, got %v", outcome.Status)
	}
	if !errors.Is(outcome.Err, ErrRateLimitTimeout) {
		t.Errorf("Expected ErrRateLimitTimeout, got %v", outcome.Err)
	}
	if outcome.ErrorKind != KindRateLimited {
		t.Errorf("Expected KindRateLimited, got %v", outcome.ErrorKind)
	}
	if hits.Load() != 0 {
		t.Errorf("Expected zero network calls, got %d", hits.Load())
	}
}

func TestExecutorRobotsDisallow(t *testing.T) {
	var pageHits atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/robots.txt":
			_, _ = w.Write([]byte("User-agent: *\nDisallow: /private\n"))
		default:
			pageHits.Add(1)
			_, _ = w.Write([]byte("secret"))
		}
	}))
	defer server.Close()

	client := NewHTTPClient("test-agent/1.0", 5*time.Second, nil)
	e := newTestExecutor(3, 5)
	e.robots = NewRobotsChecker(client, "test-agent/1.0", true)

	outcome := e.Execute(context.Background(), testTask(server.URL+"/private/page"))
	if outcome.Status != StatusSkipped {
		t.Fatalf("Expected skipped outcome, got %v", outcome.Status)
	}
	if pageHits.Load() != 0 {
		t.Errorf("Expected page not to be fetched, got %d hits", pageHits.Load())
	}

	allowed := e.Execute(context.Background(), testTask(server.URL+"/public/page"))
	if allowed.Status != StatusSuccess {
		t.Errorf("Expected allowed path to be fetched, got %v", allowed.Status)
	}
}

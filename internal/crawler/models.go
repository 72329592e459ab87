package crawler

import "time"

// CrawlTask is one unit of work on the frontier. Tasks are immutable
// once created; ownership moves from the frontier to exactly one worker
// for the duration of a fetch.
type CrawlTask struct {
	URL          string    // Normalized URL to fetch
	Depth        int       // Link depth from the seed (seed = 0)
	ParentURL    string    // Page the URL was discovered on
	DiscoveredAt time.Time // When the URL entered the frontier
}

// OutcomeStatus is the terminal classification of one task.
type OutcomeStatus int

const (
	// StatusSuccess marks a fetched, accepted page.
	StatusSuccess OutcomeStatus = iota
	// StatusFailed marks a task whose retries were exhausted.
	StatusFailed
	// StatusSkipped marks a task rejected before the fetch (robots.txt,
	// first rate-limit timeout).
	StatusSkipped
	// StatusDuplicate marks a page whose content matched a stored
	// fingerprint. Not an error.
	StatusDuplicate
	// StatusCircuitOpen marks a task short-circuited by an open breaker.
	StatusCircuitOpen
)

// String returns the stable name persisted to the visited table.
func (s OutcomeStatus) String() string {
	switch s {
	case StatusSuccess:
		return "success"
	case StatusFailed:
		return "failed"
	case StatusSkipped:
		return "skipped"
	case StatusDuplicate:
		return "duplicate"
	case StatusCircuitOpen:
		return "circuit_open"
	default:
		return "unknown"
	}
}

// FetchOutcome is the result of executing one task. The executor
// produces it; the scheduler may reclassify a success as a duplicate
// after fingerprinting.
type FetchOutcome struct {
	Task       *CrawlTask
	Status     OutcomeStatus
	HTTPStatus int
	Body       []byte
	FinalURL   string // After redirects
	Elapsed    time.Duration
	ErrorKind  ErrorKind
	Attempts   int
	Err        error
}

// VisitedRecord is the append-only row persisted per completed task.
type VisitedRecord struct {
	URL         string
	Status      string
	HTTPStatus  int
	ErrorKind   string
	Fingerprint uint64
	Depth       int
	Elapsed     time.Duration
	VisitedAt   time.Time
}

// SessionCounters are the monotonically non-decreasing per-session
// statistics. Guarded by the scheduler's stats mutex.
type SessionCounters struct {
	Visited   int
	Failed    int
	Duplicate int
	Skipped   int
}

// CrawlStats is the live statistics snapshot returned by Stats.
type CrawlStats struct {
	SessionID   string
	State       string
	Counters    SessionCounters
	SuccessRate float64
	StartTime   time.Time
	Elapsed     time.Duration
}

// CrawlResult bundles the accepted outcomes and final counters of a
// completed (or drained) crawl.
type CrawlResult struct {
	SessionID string
	Accepted  []*FetchOutcome
	Stats     CrawlStats
}

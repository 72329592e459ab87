package crawler

import "context"

// Crawler drives one crawl session from a seed URL to completion.
type Crawler interface {
	Crawl(ctx context.Context, seedURL string) (*CrawlResult, error)
	Stop()
	Stats() CrawlStats
}

// Executor performs one fetch attempt chain for a task, wrapping it
// with the circuit breaker, rate limiter, and retry policy.
type Executor interface {
	Execute(ctx context.Context, task *CrawlTask) *FetchOutcome
}

// ContentExtractor turns raw fetched markup into normalized text and
// outgoing links. The engine treats it as an opaque transform.
type ContentExtractor interface {
	Extract(baseURL string, body []byte) (*ExtractedContent, error)
}

// ExtractedContent is the extractor's output for one page.
type ExtractedContent struct {
	Title          string
	NormalizedText string   // whitespace-collapsed visible text
	Links          []string // absolute URLs, fragment-stripped
}

// SessionStore is the durable state contract the engine requires from a
// persistence layer. Writes are append-only per visit, so concurrent
// workers need no cross-writer coordination beyond the store's own.
type SessionStore interface {
	StartSession(id string, configSnapshot string) error
	EndSession(id string, status string) error
	RecordVisit(sessionID string, rec *VisitedRecord) error
	IsVisited(url string) (bool, error)
	GetStatistics(sessionID string) (*SessionCounters, error)
	Close() error
}

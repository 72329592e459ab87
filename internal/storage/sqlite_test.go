package storage

import (
	"path/filepath"
	"testing"
	"time"

	"webharvest/internal/crawler"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("Failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func record(url, status string) *crawler.VisitedRecord {
	return &crawler.VisitedRecord{
		URL:       url,
		Status:    status,
		Depth:     1,
		Elapsed:   120 * time.Millisecond,
		VisitedAt: time.Now().UTC(),
	}
}

func TestSessionLifecycle(t *testing.T) {
	store := newTestStore(t)

	if err := store.StartSession("s1", "seed_url: https://example.com"); err != nil {
		t.Fatalf("StartSession failed: %v", err)
	}

	status, startedAt, err := store.GetSession("s1")
	if err != nil {
		t.Fatalf("GetSession failed: %v", err)
	}
	if status != "running" {
		t.Errorf("Expected running status, got %s", status)
	}
	if startedAt.IsZero() {
		t.Error("Expected a start timestamp")
	}

	if err := store.EndSession("s1", "completed"); err != nil {
		t.Fatalf("EndSession failed: %v", err)
	}
	status, _, err = store.GetSession("s1")
	if err != nil {
		t.Fatal(err)
	}
	if status != "completed" {
		t.Errorf("Expected completed status, got %s", status)
	}
}

func TestDuplicateSessionIDRejected(t *testing.T) {
	store := newTestStore(t)

	if err := store.StartSession("s1", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.StartSession("s1", ""); err == nil {
		t.Error("Expected duplicate session ID to be rejected")
	}
}

func TestRecordVisitAndStatistics(t *testing.T) {
	store := newTestStore(t)
	if err := store.StartSession("s1", ""); err != nil {
		t.Fatal(err)
	}

	visits := []*crawler.VisitedRecord{
		record("https://example.com", "success"),
		record("https://example.com/a", "success"),
		record("https://example.com/dup", "duplicate"),
		record("https://example.com/down", "failed"),
		record("https://example.com/open", "circuit_open"),
		record("https://example.com/robots", "skipped"),
	}
	for _, v := range visits {
		if err := store.RecordVisit("s1", v); err != nil {
			t.Fatalf("RecordVisit(%s) failed: %v", v.URL, err)
		}
	}

	counters, err := store.GetStatistics("s1")
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}
	if counters.Visited != 2 {
		t.Errorf("Expected 2 visited, got %d", counters.Visited)
	}
	if counters.Failed != 2 {
		t.Errorf("Expected 2 failed (circuit_open counts), got %d", counters.Failed)
	}
	if counters.Duplicate != 1 {
		t.Errorf("Expected 1 duplicate, got %d", counters.Duplicate)
	}
	if counters.Skipped != 1 {
		t.Errorf("Expected 1 skipped, got %d", counters.Skipped)
	}
}

func TestStatisticsEmptySession(t *testing.T) {
	store := newTestStore(t)
	if err := store.StartSession("s1", ""); err != nil {
		t.Fatal(err)
	}

	counters, err := store.GetStatistics("s1")
	if err != nil {
		t.Fatalf("GetStatistics failed: %v", err)
	}
	if counters.Visited != 0 || counters.Failed != 0 || counters.Duplicate != 0 || counters.Skipped != 0 {
		t.Errorf("Expected zero counters for empty session, got %+v", counters)
	}
}

func TestIsVisitedAcrossSessions(t *testing.T) {
	store := newTestStore(t)

	if err := store.StartSession("s1", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordVisit("s1", record("https://example.com/seen", "success")); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordVisit("s1", record("https://example.com/broken", "failed")); err != nil {
		t.Fatal(err)
	}
	if err := store.EndSession("s1", "completed"); err != nil {
		t.Fatal(err)
	}

	if err := store.StartSession("s2", ""); err != nil {
		t.Fatal(err)
	}

	seen, err := store.IsVisited("https://example.com/seen")
	if err != nil {
		t.Fatal(err)
	}
	if !seen {
		t.Error("Expected successful visit to be seen across sessions")
	}

	// Failed fetches are retried on a later run.
	seen, err = store.IsVisited("https://example.com/broken")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("Expected failed visit not to suppress a re-fetch")
	}

	seen, err = store.IsVisited("https://example.com/never")
	if err != nil {
		t.Fatal(err)
	}
	if seen {
		t.Error("Expected unknown URL to be unseen")
	}
}

func TestEndSessionFreezesCounters(t *testing.T) {
	store := newTestStore(t)
	if err := store.StartSession("s1", ""); err != nil {
		t.Fatal(err)
	}
	if err := store.RecordVisit("s1", record("https://example.com", "success")); err != nil {
		t.Fatal(err)
	}
	if err := store.EndSession("s1", "aborted"); err != nil {
		t.Fatal(err)
	}

	var visited int
	err := store.db.QueryRow(
		`SELECT visited_count FROM crawl_sessions WHERE session_id = 's1'`,
	).Scan(&visited)
	if err != nil {
		t.Fatalf("Failed to read frozen counters: %v", err)
	}
	if visited != 1 {
		t.Errorf("Expected frozen visited_count 1, got %d", visited)
	}
}

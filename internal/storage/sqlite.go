// Package storage provides the SQLite-backed session store. It records
// crawl sessions and their append-only visit log, enabling resumable
// and auditable crawls.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	// SQLite database driver (CGO-free)
	_ "modernc.org/sqlite"

	"webharvest/internal/crawler"
)

// SQLiteStore implements the crawler.SessionStore contract.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (or creates) the database at dbPath and
// initializes the schema.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single connection prevents SQLite lock conflicts; all writers
	// serialize here, which append-only visits tolerate.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Minute)

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 30000",
	}
	for _, pragma := range pragmas {
		if _, err := s.db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute pragma %s: %w", pragma, err)
		}
	}
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// StartSession records a new crawl run with its configuration
// snapshot.
func (s *SQLiteStore) StartSession(id string, configSnapshot string) error {
	_, err := s.db.Exec(`
		INSERT INTO crawl_sessions (session_id, config, status, started_at)
		VALUES (?, ?, 'running', ?)
	`, id, configSnapshot, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to start session %s: %w", id, err)
	}
	return nil
}

// EndSession marks the session completed or aborted and freezes its
// counters from the visit log.
func (s *SQLiteStore) EndSession(id string, status string) error {
	counters, err := s.GetStatistics(id)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		UPDATE crawl_sessions SET
			status = ?,
			ended_at = ?,
			visited_count = ?,
			failed_count = ?,
			duplicate_count = ?,
			skipped_count = ?
		WHERE session_id = ?
	`, status, time.Now().UTC(),
		counters.Visited, counters.Failed, counters.Duplicate, counters.Skipped, id)
	if err != nil {
		return fmt.Errorf("failed to end session %s: %w", id, err)
	}
	return nil
}

// RecordVisit appends one task outcome to the visit log.
func (s *SQLiteStore) RecordVisit(sessionID string, rec *crawler.VisitedRecord) error {
	_, err := s.db.Exec(`
		INSERT INTO visited_urls
			(session_id, url, status, http_status, error_kind, fingerprint, depth, elapsed_ms, visited_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, sessionID, rec.URL, rec.Status, rec.HTTPStatus, rec.ErrorKind,
		int64(rec.Fingerprint), rec.Depth, rec.Elapsed.Milliseconds(), rec.VisitedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to record visit for %s: %w", rec.URL, err)
	}
	return nil
}

// IsVisited reports whether the URL was successfully fetched in any
// prior session. Used for cross-restart duplicate suppression.
func (s *SQLiteStore) IsVisited(url string) (bool, error) {
	var one int
	err := s.db.QueryRow(`
		SELECT 1 FROM visited_urls
		WHERE url = ? AND status IN ('success', 'duplicate')
		LIMIT 1
	`, url).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check visited status: %w", err)
	}
	return true, nil
}

// GetStatistics aggregates the session's visit log into counters.
func (s *SQLiteStore) GetStatistics(sessionID string) (*crawler.SessionCounters, error) {
	var c crawler.SessionCounters
	err := s.db.QueryRow(`
		SELECT
			SUM(CASE WHEN status = 'success' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'failed' OR status = 'circuit_open' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'duplicate' THEN 1 ELSE 0 END),
			SUM(CASE WHEN status = 'skipped' THEN 1 ELSE 0 END)
		FROM visited_urls
		WHERE session_id = ?
	`, sessionID).Scan(
		&nullInt{&c.Visited}, &nullInt{&c.Failed}, &nullInt{&c.Duplicate}, &nullInt{&c.Skipped},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to get statistics for %s: %w", sessionID, err)
	}
	return &c, nil
}

// GetSession returns metadata for one session, or sql.ErrNoRows when
// unknown.
func (s *SQLiteStore) GetSession(id string) (status string, startedAt time.Time, err error) {
	err = s.db.QueryRow(`
		SELECT status, started_at FROM crawl_sessions WHERE session_id = ?
	`, id).Scan(&status, &startedAt)
	if err != nil && err != sql.ErrNoRows {
		err = fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return status, startedAt, err
}

// nullInt scans a nullable aggregate into an int, treating NULL as 0.
type nullInt struct{ v *int }

func (n *nullInt) Scan(src any) error {
	if src == nil {
		*n.v = 0
		return nil
	}
	switch t := src.(type) {
	case int64:
		*n.v = int(t)
	case int:
		*n.v = t
	default:
		return fmt.Errorf("unexpected aggregate type %T", src)
	}
	return nil
}

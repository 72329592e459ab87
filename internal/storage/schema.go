package storage

const schemaSQL = `
-- One row per crawl run. Counters are written once at session end;
-- live statistics come from the visited_urls rows.
CREATE TABLE IF NOT EXISTS crawl_sessions (
    session_id TEXT PRIMARY KEY,
    config TEXT NOT NULL,
    status TEXT NOT NULL DEFAULT 'running' CHECK (status IN ('running', 'completed', 'aborted')),
    started_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    ended_at DATETIME,
    visited_count INTEGER DEFAULT 0,
    failed_count INTEGER DEFAULT 0,
    duplicate_count INTEGER DEFAULT 0,
    skipped_count INTEGER DEFAULT 0
);

-- Append-only log of task outcomes. Serves duplicate suppression
-- across restarts and per-session statistics.
CREATE TABLE IF NOT EXISTS visited_urls (
    id INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id TEXT NOT NULL,
    url TEXT NOT NULL,
    status TEXT NOT NULL,
    http_status INTEGER,
    error_kind TEXT,
    fingerprint INTEGER,
    depth INTEGER NOT NULL DEFAULT 0,
    elapsed_ms INTEGER,
    visited_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (session_id) REFERENCES crawl_sessions(session_id)
);

CREATE INDEX IF NOT EXISTS idx_visited_url ON visited_urls(url);
CREATE INDEX IF NOT EXISTS idx_visited_session ON visited_urls(session_id);
CREATE INDEX IF NOT EXISTS idx_visited_session_status ON visited_urls(session_id, status);
`

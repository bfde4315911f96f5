// Package storage persists papers, matches, runs, and delivery records in an
// embedded SQLite database. All writes are idempotent under re-invocation.
package storage

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// ErrRunFinalized is returned when a run is finalized more than once.
var ErrRunFinalized = errors.New("run already finalized")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS papers (
	external_id  TEXT PRIMARY KEY,
	revision     TEXT NOT NULL DEFAULT 'v1',
	title        TEXT NOT NULL DEFAULT '',
	abstract     TEXT NOT NULL DEFAULT '',
	authors      TEXT NOT NULL DEFAULT '[]',
	categories   TEXT NOT NULL DEFAULT '[]',
	abs_url      TEXT NOT NULL DEFAULT '',
	pdf_url      TEXT NOT NULL DEFAULT '',
	published_at DATETIME,
	updated_at   DATETIME,
	doc_path     TEXT NOT NULL DEFAULT '',
	text_path    TEXT NOT NULL DEFAULT '',
	meta_path    TEXT NOT NULL DEFAULT '',
	doc_hash     TEXT NOT NULL DEFAULT '',
	relevance    REAL,
	ingested_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS track_matches (
	external_id   TEXT NOT NULL,
	track_name    TEXT NOT NULL,
	score         REAL NOT NULL DEFAULT 0,
	matched_terms TEXT NOT NULL DEFAULT '[]',
	matched_at    DATETIME NOT NULL,
	PRIMARY KEY (external_id, track_name)
);

CREATE INDEX IF NOT EXISTS idx_track_matches_track ON track_matches(track_name);

CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	kind        TEXT NOT NULL,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME,
	status      TEXT NOT NULL,
	stats       TEXT NOT NULL DEFAULT '{}'
);

CREATE TABLE IF NOT EXISTS delivery_records (
	period_key TEXT PRIMARY KEY,
	payload    TEXT NOT NULL DEFAULT '{}',
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS delivery_items (
	external_id TEXT NOT NULL,
	period_key  TEXT NOT NULL,
	track_name  TEXT NOT NULL,
	PRIMARY KEY (external_id, period_key, track_name)
);

CREATE INDEX IF NOT EXISTS idx_delivery_items_period ON delivery_items(period_key);
`

// DB wraps a sql.DB with pipeline-specific operations.
type DB struct {
	conn *sql.DB
}

// Open opens (or creates) the SQLite database and applies the schema.
func Open(path string) (*DB, error) {
	conn, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("storage: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("storage: apply schema: %w", err)
	}
	return &DB{conn: conn}, nil
}

// Close closes the underlying database connection.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Package tracking records asset failures and render statistics in a local
// SQLite database so degraded sessions can be analysed afterwards.
package tracking

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite" // SQLite driver
)

// NewDatabase creates a new SQLite database with the specified path and applies the schema
func NewDatabase(dbPath string) (*sql.DB, error) {
	// Ensure directory exists if not in-memory
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// every pooled connection to :memory: would otherwise see its own empty
	// database
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA temp_store = MEMORY",
		"PRAGMA user_version = 1",
		"PRAGMA foreign_keys = ON",
	}

	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set pragma: %w", err)
		}
	}

	if err := ensureSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ensure schema: %w", err)
	}

	return db, nil
}

// ensureSchema creates the database schema if it doesn't exist
func ensureSchema(db *sql.DB) error {
	schema := `
-- One row per engine run
CREATE TABLE IF NOT EXISTS sessions (
    id          TEXT    PRIMARY KEY,
    started_at  INTEGER NOT NULL,
    ended_at    INTEGER,
    mode        TEXT    NOT NULL,
    backend     TEXT    NOT NULL DEFAULT '',
    sample_rate INTEGER NOT NULL CHECK (sample_rate > 0),
    block_size  INTEGER NOT NULL CHECK (block_size > 0),
    hrtf_source TEXT    NOT NULL DEFAULT ''
);

-- Assets that degraded to silence
CREATE TABLE IF NOT EXISTS asset_failures (
    id         INTEGER PRIMARY KEY,
    timestamp  INTEGER NOT NULL,
    session_id TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    name       TEXT    NOT NULL,
    path       TEXT    NOT NULL,
    reason     TEXT    NOT NULL
);

-- Periodic copies of the engine counters
CREATE TABLE IF NOT EXISTS render_stats (
    id                INTEGER PRIMARY KEY,
    timestamp         INTEGER NOT NULL,
    session_id        TEXT    NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
    blocks            INTEGER NOT NULL,
    overruns          INTEGER NOT NULL,
    skipped_swaps     INTEGER NOT NULL,
    max_block_us      INTEGER NOT NULL,
    sources           INTEGER NOT NULL,
    cache_hits        INTEGER NOT NULL,
    cache_misses      INTEGER NOT NULL,
    cache_out_of_pool INTEGER NOT NULL,
    cache_closed      INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_failures_timestamp ON asset_failures(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_failures_session ON asset_failures(session_id);
CREATE INDEX IF NOT EXISTS idx_failures_path ON asset_failures(path);
CREATE INDEX IF NOT EXISTS idx_stats_session ON render_stats(session_id);
`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

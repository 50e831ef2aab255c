// Package store persists users, credentials, jobs, and rows in SQLite.
package store

import (
	"database/sql"
	"fmt"

	// SQLite driver.
	_ "github.com/mattn/go-sqlite3"

	"github.com/north-cloud/prospect-research/internal/logger"
)

// Store wraps the SQLite handle and serves all persistence for the service.
type Store struct {
	db  *sql.DB
	log logger.Logger
}

// Open opens (creating if needed) the SQLite database at path and applies
// the schema. Use ":memory:" for tests.
func Open(path string, log logger.Logger) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL&_fk=1", path)
	if path == ":memory:" {
		// Shared cache keeps every pool connection on the same in-memory DB.
		dsn = "file::memory:?mode=memory&cache=shared&_fk=1"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single pooled connection avoids
	// SQLITE_BUSY churn from concurrent workers.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, log: log}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

const schema = `
CREATE TABLE IF NOT EXISTS users (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	email         TEXT UNIQUE NOT NULL,
	password_hash TEXT NOT NULL,
	name          TEXT,
	created_at    TEXT DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS user_keys (
	user_id   INTEGER NOT NULL REFERENCES users(id),
	key_name  TEXT NOT NULL,
	key_value TEXT NOT NULL,
	PRIMARY KEY (user_id, key_name)
);

CREATE TABLE IF NOT EXISTS jobs (
	id             TEXT PRIMARY KEY,
	user_id        INTEGER NOT NULL,
	name           TEXT,
	provider       TEXT NOT NULL,
	template_id    TEXT,
	system_prompt  TEXT,
	use_web_search INTEGER DEFAULT 1,
	col_map        TEXT,
	total_rows     INTEGER NOT NULL,
	succeeded      INTEGER DEFAULT 0,
	failed         INTEGER DEFAULT 0,
	status         TEXT DEFAULT 'queued',
	total_in       INTEGER DEFAULT 0,
	total_out      INTEGER DEFAULT 0,
	total_cr       INTEGER DEFAULT 0,
	total_cw       INTEGER DEFAULT 0,
	cost           REAL DEFAULT 0,
	elapsed        REAL DEFAULT 0,
	fallback_cfg   TEXT,
	fallback_spend REAL DEFAULT 0,
	fallback_calls INTEGER DEFAULT 0,
	email_cfg      TEXT,
	created_at     TEXT DEFAULT (datetime('now')),
	updated_at     TEXT DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_jobs_user ON jobs(user_id);

CREATE TABLE IF NOT EXISTS rows (
	job_id        TEXT NOT NULL REFERENCES jobs(id) ON DELETE CASCADE,
	idx           INTEGER NOT NULL,
	label         TEXT,
	prompt        TEXT,
	status        TEXT DEFAULT 'pending',
	research      TEXT,
	error         TEXT,
	input_tokens  INTEGER DEFAULT 0,
	output_tokens INTEGER DEFAULT 0,
	cache_read    INTEGER DEFAULT 0,
	cache_write   INTEGER DEFAULT 0,
	score         INTEGER DEFAULT -1,
	tier          TEXT DEFAULT '',
	fallback_used INTEGER DEFAULT 0,
	attempts      INTEGER DEFAULT 0,
	email_draft   TEXT,
	email_failed  INTEGER DEFAULT 0,
	PRIMARY KEY (job_id, idx)
);
CREATE INDEX IF NOT EXISTS idx_rows_status ON rows(job_id, status);
`

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

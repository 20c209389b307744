// Package store provides a durable SQLite mirror of session, message,
// tool-execution, token-usage, and audit history. It subscribes to the
// same event bus the rest of the system already publishes to, the same
// way internal/audit's persistent Log does, rather than sitting inline
// on every call path that mutates a session or message.
package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "modernc.org/sqlite" // pure-Go SQLite driver

	"github.com/forgecode-ai/forgecode/internal/event"
)

const subscriberQueueSize = 256

// Store owns the SQLite connection and the bus subscriptions that keep
// its tables current.
type Store struct {
	db *sql.DB

	unsubscribers []func()
}

// Open creates (or reopens) the SQLite database at path, applies the
// schema, and subscribes to bus for every table this store mirrors. path
// may be ":memory:" for an ephemeral store (tests, single-shot CLI runs).
func Open(bus *event.Bus, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite serializes writers anyway

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	if bus != nil {
		s.subscribe(bus)
	}
	return s, nil
}

func (s *Store) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT,
			directory TEXT,
			parent_id TEXT,
			title TEXT,
			version TEXT,
			created_at INTEGER,
			updated_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sessions_parent ON sessions(parent_id)`,
		`CREATE TABLE IF NOT EXISTS messages (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL REFERENCES sessions(id),
			role TEXT,
			model_id TEXT,
			provider_id TEXT,
			finish TEXT,
			cost REAL,
			created_at INTEGER,
			updated_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id)`,
		`CREATE TABLE IF NOT EXISTS tool_executions (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			call_id TEXT,
			tool TEXT,
			status TEXT,
			input TEXT,
			output TEXT,
			error TEXT,
			started_at INTEGER,
			ended_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_tool_executions_session ON tool_executions(session_id)`,
		`CREATE TABLE IF NOT EXISTS token_usage (
			session_id TEXT NOT NULL,
			message_id TEXT NOT NULL,
			input_tokens INTEGER,
			output_tokens INTEGER,
			reasoning_tokens INTEGER,
			cache_read INTEGER,
			cache_write INTEGER,
			recorded_at INTEGER,
			PRIMARY KEY (session_id, message_id)
		)`,
		`CREATE TABLE IF NOT EXISTS audit (
			id INTEGER PRIMARY KEY,
			timestamp INTEGER,
			action TEXT,
			subject TEXT,
			result TEXT,
			risk INTEGER,
			duration_ms INTEGER,
			detail TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_audit_action ON audit(action)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("store: migrate: %w", err)
		}
	}
	return nil
}

// Close unsubscribes from the bus and closes the database.
func (s *Store) Close() error {
	for _, unsub := range s.unsubscribers {
		unsub()
	}
	return s.db.Close()
}

// DB exposes the underlying connection for callers that need a raw query
// (the CLI's history/report commands, for instance).
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) exec(ctx context.Context, query string, args ...any) error {
	_, err := s.db.ExecContext(ctx, query, args...)
	return err
}

// Package store writes snapshots to a SQLite database for offline
// inspection. The engine never reads the database back.
package store

import (
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite export target.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying *sql.DB for ad-hoc inspection.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Migrate creates all tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" when absent.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	if err := setMetadata(s.db, key, value); err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

func setMetadata(db execer, key, value string) error {
	_, err := db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	return err
}

// Count returns the number of rows in table. table must be one of the
// schema's table names.
func (s *Store) Count(table string) (int, error) {
	switch table {
	case "files", "symbols", "references_", "inheritance", "call_graph", "findings", "metadata":
	default:
		return 0, fmt.Errorf("count: unknown table %q", table)
	}
	var n int
	if err := s.db.QueryRow("SELECT COUNT(*) FROM " + table).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", table, err)
	}
	return n, nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS files (
  id              INTEGER PRIMARY KEY,
  path            TEXT NOT NULL UNIQUE,
  version         INTEGER NOT NULL DEFAULT 0,
  line_count      INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS symbols (
  id              TEXT PRIMARY KEY,
  file_id         INTEGER NOT NULL REFERENCES files(id),
  name            TEXT NOT NULL,
  qualified_name  TEXT NOT NULL,
  kind            TEXT NOT NULL,
  signature       TEXT,
  visibility      TEXT,
  mutability      TEXT,
  implemented     BOOLEAN NOT NULL DEFAULT FALSE,
  abstract        BOOLEAN NOT NULL DEFAULT FALSE,
  start_offset    INTEGER NOT NULL,
  end_offset      INTEGER NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER,
  name_line       INTEGER,
  name_col        INTEGER,
  parent_id       TEXT REFERENCES symbols(id)
);

CREATE TABLE IF NOT EXISTS references_ (
  id              INTEGER PRIMARY KEY,
  symbol_id       TEXT NOT NULL REFERENCES symbols(id),
  file_id         INTEGER NOT NULL REFERENCES files(id),
  kind            TEXT NOT NULL,
  start_offset    INTEGER NOT NULL,
  end_offset      INTEGER NOT NULL,
  start_line      INTEGER,
  start_col       INTEGER,
  end_line        INTEGER,
  end_col         INTEGER
);

CREATE TABLE IF NOT EXISTS inheritance (
  contract_id     TEXT NOT NULL REFERENCES symbols(id),
  base_id         TEXT NOT NULL REFERENCES symbols(id),
  ordinal         INTEGER NOT NULL,
  PRIMARY KEY (contract_id, ordinal)
);

CREATE TABLE IF NOT EXISTS call_graph (
  id              INTEGER PRIMARY KEY,
  caller_id       TEXT NOT NULL REFERENCES symbols(id),
  callee_id       TEXT NOT NULL REFERENCES symbols(id),
  file_id         INTEGER NOT NULL REFERENCES files(id),
  start_offset    INTEGER NOT NULL,
  end_offset      INTEGER NOT NULL,
  line            INTEGER,
  col             INTEGER
);

CREATE TABLE IF NOT EXISTS findings (
  id              INTEGER PRIMARY KEY,
  detector        TEXT NOT NULL,
  severity        TEXT NOT NULL,
  confidence      TEXT NOT NULL,
  message         TEXT NOT NULL,
  file_id         INTEGER REFERENCES files(id),
  start_offset    INTEGER,
  end_offset      INTEGER,
  line            INTEGER,
  symbol_id       TEXT REFERENCES symbols(id)
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_symbols_file ON symbols(file_id);
CREATE INDEX IF NOT EXISTS idx_symbols_name ON symbols(name);
CREATE INDEX IF NOT EXISTS idx_symbols_parent ON symbols(parent_id);
CREATE INDEX IF NOT EXISTS idx_references_symbol ON references_(symbol_id);
CREATE INDEX IF NOT EXISTS idx_references_file ON references_(file_id);
CREATE INDEX IF NOT EXISTS idx_inheritance_base ON inheritance(base_id);
CREATE INDEX IF NOT EXISTS idx_call_graph_caller ON call_graph(caller_id);
CREATE INDEX IF NOT EXISTS idx_call_graph_callee ON call_graph(callee_id);
CREATE INDEX IF NOT EXISTS idx_findings_file ON findings(file_id);
`

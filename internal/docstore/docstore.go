// Package docstore provides the document storage backend for the catalog.
//
// Documents are opaque JSON bodies stored under a (collection, key) pair
// in an embedded SQLite database. The database runs in WAL mode with a
// busy timeout so concurrent readers are never blocked by a writer.
//
// The store offers three things the catalog layers build on:
//
//   - durable key-value document storage per named collection
//   - scoped transactions: a Tx stages reads and writes against a single
//     serialized writer and commits them atomically, or discards them all
//   - collection-scoped iteration for full-table scans
//
// Every committed write is also appended to a changelog table, giving a
// per-document revision history that can be inspected after the fact.
package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// ErrNotFound is returned when a document does not exist.
var ErrNotFound = errors.New("docstore: document not found")

// Document is one stored JSON document.
type Document struct {
	Collection string
	Key        string
	Body       json.RawMessage
}

// Store wraps the SQLite connection holding all catalog collections.
// One Store instance is created per process (or per test); it is never
// ambient global state.
type Store struct {
	conn *sql.DB
	path string

	// writeMu serializes write transactions. SQLite WAL allows a single
	// writer at a time; queueing writers here avoids SQLITE_BUSY churn.
	writeMu sync.Mutex
}

// Open creates a new document store at the specified path, creating the
// parent directory and the schema if needed.
//
// The caller MUST call Close() when done.
func Open(path string) (*Store, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{conn: conn, path: path}

	// WAL mode for concurrent reads during writes.
	if _, err := s.conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	if _, err := s.conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := s.initSchema(context.Background()); err != nil {
		_ = s.Close()
		return nil, err
	}

	return s, nil
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Close closes the database connection, checkpointing the WAL first so
// all changes land in the main database file.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}

	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to checkpoint WAL: %v\n", err)
	}

	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}

	s.conn = nil
	return nil
}

// initSchema creates the document, sequence, and changelog tables.
// Idempotent - safe to call on every open.
func (s *Store) initSchema(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS documents (
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		body       TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (collection, key)
	);

	CREATE TABLE IF NOT EXISTS sequences (
		collection TEXT PRIMARY KEY,
		next       INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS changelog (
		seq        INTEGER PRIMARY KEY AUTOINCREMENT,
		collection TEXT NOT NULL,
		key        TEXT NOT NULL,
		action     TEXT NOT NULL,
		body       TEXT,
		changed_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_changelog_doc
		ON changelog(collection, key);
	`

	if _, err := s.conn.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// Get retrieves a single document outside any transaction.
func (s *Store) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	row := s.conn.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND key = ?",
		collection, key)
	return scanBody(row)
}

// All returns every document in a collection, ordered by key. The order
// is lexicographic on the raw key; callers needing canonical MSC ID order
// sort the results themselves.
func (s *Store) All(ctx context.Context, collection string) ([]Document, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT key, body FROM documents WHERE collection = ? ORDER BY key",
		collection)
	if err != nil {
		return nil, fmt.Errorf("failed to scan collection %s: %w", collection, err)
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var key string
		var body []byte
		if err := rows.Scan(&key, &body); err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		docs = append(docs, Document{Collection: collection, Key: key, Body: body})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan collection %s: %w", collection, err)
	}

	return docs, nil
}

// Count returns the number of documents in a collection.
func (s *Store) Count(ctx context.Context, collection string) (int, error) {
	var n int
	err := s.conn.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM documents WHERE collection = ?",
		collection).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count collection %s: %w", collection, err)
	}
	return n, nil
}

func scanBody(row *sql.Row) (json.RawMessage, error) {
	var body []byte
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return body, nil
}

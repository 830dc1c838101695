package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Changelog actions recorded for each committed write.
const (
	ActionPut    = "put"
	ActionDelete = "delete"
)

// Tx is a scoped transaction over the document store.
//
// All reads and writes made through a Tx are isolated from other
// transactions and become visible atomically on Commit. If any step
// fails, Rollback leaves the store exactly as it was - no partial
// updates are ever observable. Write transactions are serialized: only
// one Tx is in flight at a time.
type Tx struct {
	store *Store
	tx    *sql.Tx
	done  bool
}

// Begin starts a write transaction, blocking until any in-flight write
// transaction completes. The caller must finish with Commit or Rollback;
// `defer tx.Rollback()` after Begin is the usual pattern, as Rollback
// after a successful Commit is a no-op.
func (s *Store) Begin(ctx context.Context) (*Tx, error) {
	s.writeMu.Lock()

	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		s.writeMu.Unlock()
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	return &Tx{store: s, tx: tx}, nil
}

// Commit atomically applies every staged write.
func (t *Tx) Commit() error {
	if t.done {
		return errors.New("docstore: transaction already finished")
	}
	t.done = true
	defer t.store.writeMu.Unlock()

	if err := t.tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback discards every staged write. Calling Rollback after Commit
// (or a second time) is a no-op.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.done = true
	_ = t.tx.Rollback()
	t.store.writeMu.Unlock()
}

// Get retrieves a document within the transaction, observing the
// transaction's own staged writes.
func (t *Tx) Get(ctx context.Context, collection, key string) (json.RawMessage, error) {
	row := t.tx.QueryRowContext(ctx,
		"SELECT body FROM documents WHERE collection = ? AND key = ?",
		collection, key)
	return scanBody(row)
}

// Put inserts or replaces a document and appends the new revision to the
// changelog.
func (t *Tx) Put(ctx context.Context, collection, key string, body json.RawMessage) error {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO documents (collection, key, body, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (collection, key) DO UPDATE
		SET body = excluded.body, updated_at = excluded.updated_at`,
		collection, key, string(body), now)
	if err != nil {
		return fmt.Errorf("failed to write document %s/%s: %w", collection, key, err)
	}

	return t.logChange(ctx, collection, key, ActionPut, body, now)
}

// Delete removes a document, reporting whether it existed. Deleting an
// absent document is not an error.
func (t *Tx) Delete(ctx context.Context, collection, key string) (bool, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)

	res, err := t.tx.ExecContext(ctx,
		"DELETE FROM documents WHERE collection = ? AND key = ?",
		collection, key)
	if err != nil {
		return false, fmt.Errorf("failed to delete document %s/%s: %w", collection, key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete document %s/%s: %w", collection, key, err)
	}
	if n == 0 {
		return false, nil
	}

	if err := t.logChange(ctx, collection, key, ActionDelete, nil, now); err != nil {
		return false, err
	}
	return true, nil
}

// All returns every document in a collection as seen by the transaction,
// ordered by key.
func (t *Tx) All(ctx context.Context, collection string) ([]Document, error) {
	rows, err := t.tx.QueryContext(ctx,
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

// NextSequence allocates the next sequence number for a collection.
// Numbers start at 1, increase monotonically, and are never reused even
// after the document they were assigned to is deleted.
func (t *Tx) NextSequence(ctx context.Context, collection string) (int, error) {
	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO sequences (collection, next) VALUES (?, 2)
		ON CONFLICT (collection) DO UPDATE SET next = next + 1`,
		collection)
	if err != nil {
		return 0, fmt.Errorf("failed to advance sequence for %s: %w", collection, err)
	}

	var next int
	err = t.tx.QueryRowContext(ctx,
		"SELECT next FROM sequences WHERE collection = ?",
		collection).Scan(&next)
	if err != nil {
		return 0, fmt.Errorf("failed to read sequence for %s: %w", collection, err)
	}

	return next - 1, nil
}

func (t *Tx) logChange(ctx context.Context, collection, key, action string, body json.RawMessage, now string) error {
	var bodyArg any
	if body != nil {
		bodyArg = string(body)
	}

	_, err := t.tx.ExecContext(ctx, `
		INSERT INTO changelog (collection, key, action, body, changed_at)
		VALUES (?, ?, ?, ?, ?)`,
		collection, key, action, bodyArg, now)
	if err != nil {
		return fmt.Errorf("failed to append changelog for %s/%s: %w", collection, key, err)
	}
	return nil
}

package docstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Change is one committed revision of a document.
type Change struct {
	Seq        int64           `json:"seq"`
	Collection string          `json:"collection"`
	Key        string          `json:"key"`
	Action     string          `json:"action"`
	Body       json.RawMessage `json:"body,omitempty"`
	ChangedAt  time.Time       `json:"changed_at"`
}

// ChangesSince returns every changelog entry with a sequence number
// greater than seq, oldest first. It is the tailing counterpart to
// Changes.
func (s *Store) ChangesSince(ctx context.Context, seq int64) ([]Change, error) {
	rows, err := s.conn.QueryContext(ctx,
		"SELECT seq, collection, key, action, body, changed_at FROM changelog WHERE seq > ? ORDER BY seq ASC", seq)
	if err != nil {
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

// LastChangeSeq returns the sequence number of the newest changelog
// entry, or 0 when the log is empty.
func (s *Store) LastChangeSeq(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.conn.QueryRowContext(ctx, "SELECT MAX(seq) FROM changelog").Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to read changelog head: %w", err)
	}
	return seq.Int64, nil
}

// Changes returns the most recent changelog entries, newest first,
// optionally filtered by collection. A limit of 0 means no limit.
func (s *Store) Changes(ctx context.Context, collection string, limit int) ([]Change, error) {
	query := "SELECT seq, collection, key, action, body, changed_at FROM changelog"
	var args []any
	if collection != "" {
		query += " WHERE collection = ?"
		args = append(args, collection)
	}
	query += " ORDER BY seq DESC"
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}
	defer rows.Close()
	return scanChanges(rows)
}

func scanChanges(rows *sql.Rows) ([]Change, error) {
	var changes []Change
	for rows.Next() {
		var c Change
		var body sql.NullString
		var changedAt string
		if err := rows.Scan(&c.Seq, &c.Collection, &c.Key, &c.Action, &body, &changedAt); err != nil {
			return nil, fmt.Errorf("failed to scan changelog entry: %w", err)
		}
		if body.Valid {
			c.Body = json.RawMessage(body.String)
		}
		t, err := time.Parse(time.RFC3339Nano, changedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to parse changelog timestamp %q: %w", changedAt, err)
		}
		c.ChangedAt = t
		changes = append(changes, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read changelog: %w", err)
	}

	return changes, nil
}

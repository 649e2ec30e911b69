package store

import (
	"context"
	"fmt"
	"time"
)

// AuditEntry is one line of the permanent interaction log.  Every query the
// assistant handles produces exactly one entry, whatever the outcome.
type AuditEntry struct {
	ID         int64     `json:"id"`
	Timestamp  time.Time `json:"ts"`
	TraceID    string    `json:"trace_id"`
	User       string    `json:"user"`
	IntentKind string    `json:"intent_kind"`
	Query      string    `json:"query"`
	Response   string    `json:"response"`
}

// WriteAudit appends an entry to the audit log.  The timestamp is assigned
// here unless the caller set one.
func (s *Store) WriteAudit(ctx context.Context, e AuditEntry) error {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO audit_log (ts, trace_id, user, intent_kind, query_text, response_text)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ts, e.TraceID, e.User, e.IntentKind, e.Query, e.Response)
	if err != nil {
		return fmt.Errorf("write audit entry: %w", err)
	}
	return nil
}

// RecentAudit returns the newest limit entries, newest first.
func (s *Store) RecentAudit(ctx context.Context, limit int) ([]AuditEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ts, trace_id, user, intent_kind, query_text, response_text
		FROM audit_log ORDER BY id DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query audit log: %w", err)
	}
	defer rows.Close()

	var out []AuditEntry
	for rows.Next() {
		var e AuditEntry
		if err := rows.Scan(&e.ID, &e.Timestamp, &e.TraceID, &e.User, &e.IntentKind, &e.Query, &e.Response); err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate audit log: %w", err)
	}
	return out, nil
}

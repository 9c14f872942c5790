package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"collabscout/internal/redact"
)

// AuditEvent is an immutable structured log row.
type AuditEvent struct {
	ID      int64
	RunID   string
	Ts      time.Time
	Level   string
	Scope   string
	Event   string
	Message string
	Data    map[string]any
}

// LogAudit redacts data and writes an immutable audit row. Every caller in
// the orchestrator and pipeline routes through this single insertion point
// so the no-secrets invariant has exactly one enforcement site.
func (s *Store) LogAudit(ctx context.Context, runID, level, scope, event, message string, data map[string]any) error {
	if data == nil {
		data = map[string]any{}
	}
	redacted := redact.Value(data)

	dataJSON, err := json.Marshal(redacted)
	if err != nil {
		return fmt.Errorf("marshal audit data: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO audit_log (run_id, ts, level, scope, event, message, data_json)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(time.RFC3339Nano), level, scope, event, message, string(dataJSON),
	)
	if err != nil {
		return fmt.Errorf("insert audit event: %w", err)
	}
	return nil
}

// AuditEventsByRun returns every audit row for a run in insertion order.
func (s *Store) AuditEventsByRun(ctx context.Context, runID string) ([]AuditEvent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, ts, level, scope, event, message, data_json
		 FROM audit_log WHERE run_id = ? ORDER BY id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query audit events: %w", err)
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var ts, dataJSON string
		if err := rows.Scan(&e.ID, &e.RunID, &ts, &e.Level, &e.Scope, &e.Event, &e.Message, &dataJSON); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Ts, _ = time.Parse(time.RFC3339Nano, ts)
		_ = json.Unmarshal([]byte(dataJSON), &e.Data)
		events = append(events, e)
	}
	return events, rows.Err()
}

// PruneAuditLog deletes audit rows older than the given age, for the
// logs:prune CLI verb. Returns the number of rows removed.
func (s *Store) PruneAuditLog(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE ts < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune audit log: %w", err)
	}
	return res.RowsAffected()
}

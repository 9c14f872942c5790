package store

import (
	"context"
	"fmt"
	"time"
)

// RateLimitSnapshot is a point-in-time image of the upstream rate-limit
// state, persisted per run.
type RateLimitSnapshot struct {
	ID         int64
	RunID      string
	Resource   string
	Limit      int
	Remaining  int
	ResetAt    time.Time
	ObservedAt time.Time
}

// RecordRateLimitSnapshot persists a rate-limit snapshot under the current run.
func (s *Store) RecordRateLimitSnapshot(ctx context.Context, runID, resource string, limit, remaining int, resetAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO rate_limit_snapshots (run_id, resource, limit_val, remaining, reset_at, observed_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		runID, resource, limit, remaining,
		resetAt.UTC().Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("record rate limit snapshot: %w", err)
	}
	return nil
}

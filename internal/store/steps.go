package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// Step statuses, a closed set.
const (
	StepSuccess = "success"
	StepFailed  = "failed"
	StepSkipped = "skipped"
)

// Step is a named, timed phase within a run.
type Step struct {
	ID         string
	RunID      string
	Name       string
	StartedAt  time.Time
	FinishedAt *time.Time
	Status     string
	StatsJSON  string
}

// StartStep records the start of a named phase.
func (s *Store) StartStep(ctx context.Context, id, runID, name string) (*Step, error) {
	step := &Step{
		ID:        id,
		RunID:     runID,
		Name:      name,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO steps (id, run_id, name, started_at) VALUES (?, ?, ?, ?)`,
		step.ID, step.RunID, step.Name, step.StartedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert step: %w", err)
	}
	return step, nil
}

// FinishStep records the end of a phase, its terminal status, and arbitrary
// statistics (stored as given).
func (s *Store) FinishStep(ctx context.Context, id string, status string, stats map[string]any) error {
	if stats == nil {
		stats = map[string]any{}
	}
	statsJSON, err := json.Marshal(stats)
	if err != nil {
		return fmt.Errorf("marshal step stats: %w", err)
	}

	finishedAt := time.Now().UTC().Format(time.RFC3339Nano)
	_, err = s.db.ExecContext(ctx,
		`UPDATE steps SET finished_at = ?, status = ?, stats_json = ? WHERE id = ?`,
		finishedAt, status, string(statsJSON), id,
	)
	if err != nil {
		return fmt.Errorf("finish step: %w", err)
	}
	return nil
}

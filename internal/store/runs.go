package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Run is a single user-initiated invocation: created once, never mutated.
type Run struct {
	ID         string
	CreatedAt  time.Time
	ArgsJSON   string
	ConfigHash string
}

// CreateRun inserts a new run row and returns it.
func (s *Store) CreateRun(ctx context.Context, id string, args any, configHash string) (*Run, error) {
	argsJSON, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("marshal run args: %w", err)
	}

	run := &Run{
		ID:         id,
		CreatedAt:  time.Now().UTC(),
		ArgsJSON:   string(argsJSON),
		ConfigHash: configHash,
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO runs (id, created_at, args_json, config_hash) VALUES (?, ?, ?, ?)`,
		run.ID, run.CreatedAt.Format(time.RFC3339Nano), run.ArgsJSON, run.ConfigHash,
	)
	if err != nil {
		return nil, fmt.Errorf("insert run: %w", err)
	}
	return run, nil
}

// GetRun fetches a run by id.
func (s *Store) GetRun(ctx context.Context, id string) (*Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, created_at, args_json, config_hash FROM runs WHERE id = ?`, id)

	var run Run
	var createdAt string
	if err := row.Scan(&run.ID, &createdAt, &run.ArgsJSON, &run.ConfigHash); err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("run %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("scan run: %w", err)
	}
	run.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &run, nil
}

// ErrNotFound is returned by single-row lookups that find nothing.
var ErrNotFound = fmt.Errorf("not found")

package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"
)

// GithubQuery is a search issued during a run.
type GithubQuery struct {
	ID          string
	RunID       string
	Pass        int
	QueryString string
	ParamsJSON  string
	CreatedAt   time.Time
}

// CreateGithubQuery records a search string issued for a given pass.
func (s *Store) CreateGithubQuery(ctx context.Context, id, runID string, pass int, queryString string, params any) (*GithubQuery, error) {
	paramsJSON, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal query params: %w", err)
	}

	q := &GithubQuery{
		ID:          id,
		RunID:       runID,
		Pass:        pass,
		QueryString: queryString,
		ParamsJSON:  string(paramsJSON),
		CreatedAt:   time.Now().UTC(),
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO github_queries (id, run_id, pass, query_string, params_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		q.ID, q.RunID, q.Pass, q.QueryString, q.ParamsJSON, q.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return nil, fmt.Errorf("insert github query: %w", err)
	}
	return q, nil
}

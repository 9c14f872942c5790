package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// Analysis is the outcome of running the LLM on a (repo, run) pair.
type Analysis struct {
	ID                string
	RunID             string
	RepoID            int64
	Model             string
	PromptID          string
	PromptVersion     int
	InputSnapshotJSON string
	OutputJSON        string
	LLMScoresJSON     string
	FinalScore        float64
	ReasonsJSON       string
	CreatedAt         time.Time
}

// CreateAnalysis inserts one analysis row. A (run_id, repo_id) unique
// constraint enforces the at-most-once-per-repo-per-run invariant; callers
// should check HasAnalysis first so a conflict here signals a real bug.
func (s *Store) CreateAnalysis(ctx context.Context, a *Analysis) error {
	a.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO analyses (id, run_id, repo_id, model, prompt_id, prompt_version,
		   input_snapshot_json, output_json, llm_scores_json, final_score, reasons_json, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.RunID, a.RepoID, a.Model, a.PromptID, a.PromptVersion,
		a.InputSnapshotJSON, a.OutputJSON, a.LLMScoresJSON, a.FinalScore, a.ReasonsJSON,
		a.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert analysis for repo %d run %s: %w", a.RepoID, a.RunID, err)
	}
	return nil
}

// HasAnalysis reports whether a repo has already been analyzed in a run.
func (s *Store) HasAnalysis(ctx context.Context, runID string, repoID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM analyses WHERE run_id = ? AND repo_id = ?`, runID, repoID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check analysis existence: %w", err)
	}
	return count > 0, nil
}

// AnalysesByRun returns every analysis for a run, ordered by repo id
// ascending so downstream candidate generation is deterministic.
func (s *Store) AnalysesByRun(ctx context.Context, runID string) ([]Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, repo_id, model, prompt_id, prompt_version,
		   input_snapshot_json, output_json, llm_scores_json, final_score, reasons_json, created_at
		 FROM analyses WHERE run_id = ? ORDER BY repo_id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query analyses: %w", err)
	}
	defer rows.Close()
	return scanAnalyses(rows)
}

// TopAnalysesByScore returns the top-K analyses across all runs (one per
// repo, that repo's highest-scoring analysis; which of its equal-score
// analyses is kept is not defined) ordered by final_score
// descending, optionally excluding a set of repo ids. Used for the Brief
// Engine's historical-injection feature.
func (s *Store) TopAnalysesByScore(ctx context.Context, excludeRunID string, excludeRepoIDs map[int64]bool, limit int) ([]Analysis, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, repo_id, model, prompt_id, prompt_version,
		   input_snapshot_json, output_json, llm_scores_json, final_score, reasons_json, created_at
		 FROM analyses
		 WHERE run_id != ?
		 ORDER BY final_score DESC, repo_id ASC`, excludeRunID)
	if err != nil {
		return nil, fmt.Errorf("query historical analyses: %w", err)
	}
	defer rows.Close()

	all, err := scanAnalyses(rows)
	if err != nil {
		return nil, err
	}

	seen := map[int64]bool{}
	var out []Analysis
	for _, a := range all {
		if excludeRepoIDs[a.RepoID] || seen[a.RepoID] {
			continue
		}
		seen[a.RepoID] = true
		out = append(out, a)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

func scanAnalyses(rows *sql.Rows) ([]Analysis, error) {
	var out []Analysis
	for rows.Next() {
		var a Analysis
		var createdAt string
		err := rows.Scan(&a.ID, &a.RunID, &a.RepoID, &a.Model, &a.PromptID, &a.PromptVersion,
			&a.InputSnapshotJSON, &a.OutputJSON, &a.LLMScoresJSON, &a.FinalScore, &a.ReasonsJSON, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan analysis: %w", err)
		}
		a.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, a)
	}
	return out, rows.Err()
}

// marshalJSON is a small helper so DAO callers building JSON columns don't
// each re-import encoding/json with the same error-wrapping boilerplate.
func marshalJSON(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("marshal json: %w", err)
	}
	return string(b), nil
}

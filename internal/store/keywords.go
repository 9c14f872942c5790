package store

import (
	"context"
	"database/sql"
	"fmt"
)

// Keyword kinds, a closed set.
const (
	KeywordPrimary     = "primary"
	KeywordSecondary   = "secondary"
	KeywordSearchQuery = "search_query"
)

// Keyword is a per-repo or run-aggregate term.
type Keyword struct {
	ID     string
	RunID  string
	RepoID *int64
	Term   string
	Kind   string
	Weight float64
}

// InsertKeyword inserts one keyword row. RepoID nil means a run-aggregate
// row (computed in the keyword-aggregation sub-step); non-nil means a
// per-repo row (written alongside an analysis).
func (s *Store) InsertKeyword(ctx context.Context, k *Keyword) error {
	var repoID any
	if k.RepoID != nil {
		repoID = *k.RepoID
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO keywords (id, run_id, repo_id, term, kind, weight) VALUES (?, ?, ?, ?, ?, ?)`,
		k.ID, k.RunID, repoID, k.Term, k.Kind, k.Weight,
	)
	if err != nil {
		return fmt.Errorf("insert keyword %s: %w", k.Term, err)
	}
	return nil
}

// PerRepoKeywordsByRun returns every per-repo keyword row for a run (repo_id
// non-null), used as input to keyword aggregation.
func (s *Store) PerRepoKeywordsByRun(ctx context.Context, runID string) ([]Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, repo_id, term, kind, weight FROM keywords
		 WHERE run_id = ? AND repo_id IS NOT NULL`, runID)
	if err != nil {
		return nil, fmt.Errorf("query per-repo keywords: %w", err)
	}
	defer rows.Close()
	return scanKeywords(rows)
}

// AggregateKeywordsByRun returns every run-aggregate keyword row (repo_id
// null) for a run, ordered by weight descending then term ascending -- the
// canonical order the pass-2 query generator consumes.
func (s *Store) AggregateKeywordsByRun(ctx context.Context, runID string) ([]Keyword, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, repo_id, term, kind, weight FROM keywords
		 WHERE run_id = ? AND repo_id IS NULL
		 ORDER BY weight DESC, term ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query aggregate keywords: %w", err)
	}
	defer rows.Close()
	return scanKeywords(rows)
}

func scanKeywords(rows *sql.Rows) ([]Keyword, error) {
	var out []Keyword
	for rows.Next() {
		var k Keyword
		var repoID sql.NullInt64
		if err := rows.Scan(&k.ID, &k.RunID, &repoID, &k.Term, &k.Kind, &k.Weight); err != nil {
			return nil, fmt.Errorf("scan keyword: %w", err)
		}
		if repoID.Valid {
			v := repoID.Int64
			k.RepoID = &v
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

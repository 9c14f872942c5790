package store

import (
	"context"
	"fmt"
)

// LinkRepoToQuery records that a repository was returned by a query at a
// given rank. Idempotent: re-linking the same (query, repo) pair updates
// the rank rather than erroring.
func (s *Store) LinkRepoToQuery(ctx context.Context, queryID string, repoID int64, rank int) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO repo_query_links (query_id, repo_id, rank) VALUES (?, ?, ?)
		 ON CONFLICT(query_id, repo_id) DO UPDATE SET rank = excluded.rank`,
		queryID, repoID, rank,
	)
	if err != nil {
		return fmt.Errorf("link repo %d to query %s: %w", repoID, queryID, err)
	}
	return nil
}

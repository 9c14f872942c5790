package store

import (
	"context"
	"fmt"
	"time"
)

// Brief statuses, a closed set.
const (
	BriefDraft             = "draft"
	BriefShortlisted       = "shortlisted"
	BriefApproved          = "approved"
	BriefRejected          = "rejected"
	BriefRejectedThreshold = "rejected_by_threshold"
)

// Brief is a 2-4-repo collaboration concept.
type Brief struct {
	ID          string
	RunID       string
	Score       float64
	RepoIDsJSON string
	ContentJSON string
	Markdown    string
	Outreach    string
	Status      string
	CreatedAt   time.Time
}

// CreateBrief inserts a brief row.
func (s *Store) CreateBrief(ctx context.Context, b *Brief) error {
	b.CreatedAt = time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO briefs (id, run_id, score, repo_ids_json, content_json, markdown, outreach, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		b.ID, b.RunID, b.Score, b.RepoIDsJSON, b.ContentJSON, b.Markdown, b.Outreach, b.Status,
		b.CreatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert brief: %w", err)
	}
	return nil
}

// BriefsByRun returns every brief for a run, highest score first (ties by
// id ascending).
func (s *Store) BriefsByRun(ctx context.Context, runID string) ([]Brief, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, score, repo_ids_json, content_json, markdown, outreach, status, created_at
		 FROM briefs WHERE run_id = ? ORDER BY score DESC, id ASC`, runID)
	if err != nil {
		return nil, fmt.Errorf("query briefs: %w", err)
	}
	defer rows.Close()

	var out []Brief
	for rows.Next() {
		var b Brief
		var createdAt string
		err := rows.Scan(&b.ID, &b.RunID, &b.Score, &b.RepoIDsJSON, &b.ContentJSON, &b.Markdown,
			&b.Outreach, &b.Status, &createdAt)
		if err != nil {
			return nil, fmt.Errorf("scan brief: %w", err)
		}
		b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		out = append(out, b)
	}
	return out, rows.Err()
}

// SetBriefStatus mutates the one field of a brief that is mutable after
// creation: a manual review decision.
func (s *Store) SetBriefStatus(ctx context.Context, id, status string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE briefs SET status = ? WHERE id = ?`, status, id)
	if err != nil {
		return fmt.Errorf("update brief status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check brief update: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("brief %s: %w", id, ErrNotFound)
	}
	return nil
}

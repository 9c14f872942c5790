package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// Repo is a discovered project, keyed by canonical owner/name.
type Repo struct {
	ID            int64
	FullName      string
	Stars         int
	Forks         int
	Topics        []string
	Language      string
	License       string
	PushedAt      string
	Archived      bool
	Fork          bool
	LastSeenRunID string
}

// UpsertRepo inserts or updates a repo row keyed by full name, stamping the
// current run as the most-recently-seen one.
func (s *Store) UpsertRepo(ctx context.Context, r *Repo) (int64, error) {
	topicsJSON, err := json.Marshal(r.Topics)
	if err != nil {
		return 0, fmt.Errorf("marshal topics: %w", err)
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO repos (full_name, stars, forks, topics_json, language, license, pushed_at, archived, fork, last_seen_run_id)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(full_name) DO UPDATE SET
		   stars = excluded.stars,
		   forks = excluded.forks,
		   topics_json = excluded.topics_json,
		   language = excluded.language,
		   license = excluded.license,
		   pushed_at = excluded.pushed_at,
		   archived = excluded.archived,
		   fork = excluded.fork,
		   last_seen_run_id = excluded.last_seen_run_id`,
		r.FullName, r.Stars, r.Forks, string(topicsJSON), r.Language, r.License, r.PushedAt,
		boolToInt(r.Archived), boolToInt(r.Fork), r.LastSeenRunID,
	)
	if err != nil {
		return 0, fmt.Errorf("upsert repo %s: %w", r.FullName, err)
	}

	// An ON CONFLICT update leaves LastInsertId at the connection's previous
	// insert, so the id always comes from a lookup by the unique key.
	return s.repoIDByFullName(ctx, r.FullName)
}

func (s *Store) repoIDByFullName(ctx context.Context, fullName string) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT id FROM repos WHERE full_name = ?`, fullName).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("lookup repo id for %s: %w", fullName, err)
	}
	return id, nil
}

// GetRepo fetches a repo by id.
func (s *Store) GetRepo(ctx context.Context, id int64) (*Repo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, stars, forks, topics_json, language, license, pushed_at, archived, fork, last_seen_run_id
		 FROM repos WHERE id = ?`, id)
	return scanRepo(row)
}

// GetRepoByFullName fetches a repo by its canonical owner/name.
func (s *Store) GetRepoByFullName(ctx context.Context, fullName string) (*Repo, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, full_name, stars, forks, topics_json, language, license, pushed_at, archived, fork, last_seen_run_id
		 FROM repos WHERE full_name = ?`, fullName)
	return scanRepo(row)
}

func scanRepo(row *sql.Row) (*Repo, error) {
	var r Repo
	var topicsJSON string
	var archived, fork int
	var lastSeen sql.NullString
	err := row.Scan(&r.ID, &r.FullName, &r.Stars, &r.Forks, &topicsJSON, &r.Language, &r.License,
		&r.PushedAt, &archived, &fork, &lastSeen)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("repo: %w", ErrNotFound)
		}
		return nil, fmt.Errorf("scan repo: %w", err)
	}
	_ = json.Unmarshal([]byte(topicsJSON), &r.Topics)
	r.Archived = archived != 0
	r.Fork = fork != 0
	r.LastSeenRunID = lastSeen.String
	return &r, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

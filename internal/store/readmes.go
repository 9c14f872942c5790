package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"time"
)

// Readme is the latest fetched documentation blob for a repository. Exactly
// one current README exists per repo; a refresh replaces the prior row.
type Readme struct {
	RepoID      int64
	Content     []byte
	ContentHash string
	FetchedAt   time.Time
	ETag        string
	SourceURL   string
}

// UpsertReadme replaces the stored README for a repo, computing its
// SHA-256 content hash so the readme-hash invariant always holds.
func (s *Store) UpsertReadme(ctx context.Context, repoID int64, content []byte, etag, sourceURL string) (*Readme, error) {
	sum := sha256.Sum256(content)
	r := &Readme{
		RepoID:      repoID,
		Content:     content,
		ContentHash: hex.EncodeToString(sum[:]),
		FetchedAt:   time.Now().UTC(),
		ETag:        etag,
		SourceURL:   sourceURL,
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO readmes (repo_id, content, content_hash, fetched_at, etag, source_url)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT(repo_id) DO UPDATE SET
		   content = excluded.content,
		   content_hash = excluded.content_hash,
		   fetched_at = excluded.fetched_at,
		   etag = excluded.etag,
		   source_url = excluded.source_url`,
		r.RepoID, r.Content, r.ContentHash, r.FetchedAt.Format(time.RFC3339Nano), r.ETag, r.SourceURL,
	)
	if err != nil {
		return nil, fmt.Errorf("upsert readme for repo %d: %w", repoID, err)
	}
	return r, nil
}

// GetReadme fetches the current README for a repo, if any.
func (s *Store) GetReadme(ctx context.Context, repoID int64) (*Readme, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT repo_id, content, content_hash, fetched_at, etag, source_url FROM readmes WHERE repo_id = ?`,
		repoID)

	var r Readme
	var fetchedAt string
	err := row.Scan(&r.RepoID, &r.Content, &r.ContentHash, &fetchedAt, &r.ETag, &r.SourceURL)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("readme for repo %d: %w", repoID, ErrNotFound)
		}
		return nil, fmt.Errorf("scan readme: %w", err)
	}
	r.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
	return &r, nil
}

// HasReadme reports whether a repo currently has a stored README.
func (s *Store) HasReadme(ctx context.Context, repoID int64) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM readmes WHERE repo_id = ?`, repoID).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check readme existence: %w", err)
	}
	return count > 0, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// HTTPCacheEntry is a cached response keyed by hash of (method, URL, accept).
type HTTPCacheEntry struct {
	CacheKey     string
	Method       string
	URL          string
	Status       int
	ETag         string
	LastModified string
	Body         []byte
	FetchedAt    time.Time
	ExpiresAt    *time.Time
}

// GetHTTPCache looks up a cache row by key. Returns ErrNotFound on a miss.
func (s *Store) GetHTTPCache(ctx context.Context, cacheKey string) (*HTTPCacheEntry, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT cache_key, method, url, status, etag, last_modified, body, fetched_at, expires_at
		 FROM http_cache WHERE cache_key = ?`, cacheKey)

	var e HTTPCacheEntry
	var fetchedAt string
	var expiresAt sql.NullString
	err := row.Scan(&e.CacheKey, &e.Method, &e.URL, &e.Status, &e.ETag, &e.LastModified, &e.Body,
		&fetchedAt, &expiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("http cache %s: %w", cacheKey, ErrNotFound)
		}
		return nil, fmt.Errorf("scan http cache entry: %w", err)
	}
	e.FetchedAt, _ = time.Parse(time.RFC3339Nano, fetchedAt)
	if expiresAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, expiresAt.String)
		e.ExpiresAt = &t
	}
	return &e, nil
}

// PutHTTPCache upserts a cache row after a successful 2xx response.
func (s *Store) PutHTTPCache(ctx context.Context, e *HTTPCacheEntry) error {
	e.FetchedAt = time.Now().UTC()
	var expiresAt any
	if e.ExpiresAt != nil {
		expiresAt = e.ExpiresAt.Format(time.RFC3339Nano)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO http_cache (cache_key, method, url, status, etag, last_modified, body, fetched_at, expires_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(cache_key) DO UPDATE SET
		   method = excluded.method, url = excluded.url, status = excluded.status,
		   etag = excluded.etag, last_modified = excluded.last_modified,
		   body = excluded.body, fetched_at = excluded.fetched_at, expires_at = excluded.expires_at`,
		e.CacheKey, e.Method, e.URL, e.Status, e.ETag, e.LastModified, e.Body,
		e.FetchedAt.Format(time.RFC3339Nano), expiresAt,
	)
	if err != nil {
		return fmt.Errorf("upsert http cache entry: %w", err)
	}
	return nil
}

// TouchHTTPCache advances fetched_at on a 304 Not Modified response without
// touching the stored body -- the HEAD-304 invariant.
func (s *Store) TouchHTTPCache(ctx context.Context, cacheKey string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE http_cache SET fetched_at = ? WHERE cache_key = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), cacheKey,
	)
	if err != nil {
		return fmt.Errorf("touch http cache entry: %w", err)
	}
	return nil
}

// PruneHTTPCache deletes cache rows older than the given age, for the
// cache:prune CLI verb. Returns the number of rows removed.
func (s *Store) PruneHTTPCache(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Format(time.RFC3339Nano)
	res, err := s.db.ExecContext(ctx, `DELETE FROM http_cache WHERE fetched_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("prune http cache: %w", err)
	}
	return res.RowsAffected()
}

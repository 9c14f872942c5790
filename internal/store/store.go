// Package store provides durable local relational storage for a run: every
// query, repository, README, analysis, keyword, and brief produced along the
// way, plus the HTTP cache and rate-limit history that back replay.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"
)

// Store wraps a single SQLite connection opened with referential integrity
// and durability-tuned PRAGMAs, per the foreign-key-enforcement and
// write-ahead-log requirements of a relational store backing audit/replay.
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open opens (creating if necessary) the SQLite database at path, applies
// PRAGMAs for foreign-key enforcement and durability, and runs any pending
// migrations.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	for _, pragma := range []string{
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		// synchronous=FULL: this store favors durability over throughput,
		// since every row here is evidence backing an audit trail rather
		// than a cache that can be rebuilt.
		"PRAGMA synchronous = FULL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("set pragma %q: %w", pragma, err)
		}
	}

	s := &Store{db: db, dbPath: path}
	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// DB returns the underlying connection, for callers (such as the keyword
// aggregation reset) that need raw access outside the DAO surface.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Path returns the filesystem path the store was opened against.
func (s *Store) Path() string {
	return s.dbPath
}

// WithTx runs fn inside a transaction, committing on nil error and rolling
// back otherwise. The single-connection discipline above (SetMaxOpenConns(1))
// means transactions never interleave within one process.
func (s *Store) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Vacuum reclaims disk space, used by the db:vacuum CLI verb.
func (s *Store) Vacuum(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "VACUUM")
	return err
}

package store

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

// TestMain ensures no goroutines leak across this package's tests, most
// notably the per-connection goroutines modernc.org/sqlite and
// database/sql's own connection pool can leave running between opens.
func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenRunsMigrationsIdempotently(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, RunMigrations(s.db))
	require.NoError(t, RunMigrations(s.db))

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schema_migrations`).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestCreateRunAndFetch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	id := uuid.NewString()
	run, err := s.CreateRun(ctx, id, map[string]string{"query": "vector database"}, "deadbeefcafef00d")
	require.NoError(t, err)
	assert.Equal(t, id, run.ID)

	fetched, err := s.GetRun(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, run.ConfigHash, fetched.ConfigHash)
}

func TestStepLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()
	_, err := s.CreateRun(ctx, runID, map[string]string{}, "hash")
	require.NoError(t, err)

	stepID := uuid.NewString()
	_, err = s.StartStep(ctx, stepID, runID, "init_run")
	require.NoError(t, err)
	require.NoError(t, s.FinishStep(ctx, stepID, StepSuccess, map[string]any{"duration_ms": 12}))
}

func TestRepoUpsertIsIdempotentByFullName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	r := &Repo{FullName: "octocat/hello-world", Stars: 10, Topics: []string{"go"}}
	id1, err := s.UpsertRepo(ctx, r)
	require.NoError(t, err)

	r.Stars = 20
	id2, err := s.UpsertRepo(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, id1, id2)

	got, err := s.GetRepo(ctx, id1)
	require.NoError(t, err)
	assert.Equal(t, 20, got.Stars)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM repos WHERE full_name = ?`, r.FullName).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestReadmeContentHashMatchesSHA256(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	repoID, err := s.UpsertRepo(ctx, &Repo{FullName: "octocat/hello-world"})
	require.NoError(t, err)

	readme, err := s.UpsertReadme(ctx, repoID, []byte("# Hello World"), "etag-1", "https://example.com")
	require.NoError(t, err)
	assert.Len(t, readme.ContentHash, 64)

	got, err := s.GetReadme(ctx, repoID)
	require.NoError(t, err)
	assert.Equal(t, readme.ContentHash, got.ContentHash)
}

func TestHTTPCache304TouchDoesNotOverwriteBody(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry := &HTTPCacheEntry{CacheKey: "k1", Method: "GET", URL: "https://api.example.com", Status: 200, Body: []byte("original")}
	require.NoError(t, s.PutHTTPCache(ctx, entry))

	before, err := s.GetHTTPCache(ctx, "k1")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, s.TouchHTTPCache(ctx, "k1"))

	after, err := s.GetHTTPCache(ctx, "k1")
	require.NoError(t, err)
	assert.Equal(t, before.Body, after.Body)
	assert.True(t, after.FetchedAt.After(before.FetchedAt))
}

func TestAnalysisUniquePerRepoPerRun(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()
	_, err := s.CreateRun(ctx, runID, map[string]string{}, "hash")
	require.NoError(t, err)
	repoID, err := s.UpsertRepo(ctx, &Repo{FullName: "octocat/hello-world"})
	require.NoError(t, err)

	a := &Analysis{
		ID: uuid.NewString(), RunID: runID, RepoID: repoID, Model: "openrouter/auto",
		PromptID: "repo_analysis", PromptVersion: 1,
		InputSnapshotJSON: "{}", OutputJSON: "{}", LLMScoresJSON: "{}", FinalScore: 0.5, ReasonsJSON: "{}",
	}
	require.NoError(t, s.CreateAnalysis(ctx, a))

	has, err := s.HasAnalysis(ctx, runID, repoID)
	require.NoError(t, err)
	assert.True(t, has)

	a.ID = uuid.NewString()
	err = s.CreateAnalysis(ctx, a)
	assert.Error(t, err)
}

func TestWithTxRollsBackOnError(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	runID := uuid.NewString()

	wantErr := assert.AnError
	err := s.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `INSERT INTO runs (id, created_at, args_json, config_hash) VALUES (?, ?, ?, ?)`,
			runID, time.Now().UTC().Format(time.RFC3339Nano), "{}", "hash"); err != nil {
			return err
		}
		return wantErr
	})
	assert.ErrorIs(t, err, wantErr)

	_, err = s.GetRun(ctx, runID)
	assert.ErrorIs(t, err, ErrNotFound)
}

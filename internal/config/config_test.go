package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "collabscout.db", cfg.DBPath)
	assert.Equal(t, 0.7, cfg.OverlapThreshold)
	assert.NoError(t, cfg.Validate())
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().DBPath, cfg.DBPath)
}

func TestLoadParsesYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: custom.db\nlog_level: debug\ntop_opportunities: 5\n"), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "custom.db", cfg.DBPath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 5, cfg.TopOpportunities)
}

func TestEnvOverridesWinOverYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("db_path: custom.db\n"), 0o644))

	t.Setenv("CS_DB_PATH", "env.db")
	t.Setenv("GITHUB_TOKEN", "gh-tok")
	t.Setenv("OPENROUTER_API_KEY", "or-tok")
	t.Setenv("CS_OVERLAP_THRESHOLD", "0.9")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env.db", cfg.DBPath)
	assert.Equal(t, "gh-tok", cfg.GitHubToken)
	assert.Equal(t, "or-tok", cfg.OpenRouterToken)
	assert.Equal(t, 0.9, cfg.OverlapThreshold)
}

func TestValidateRejectsOutOfRangeThreshold(t *testing.T) {
	cfg := Default()
	cfg.OverlapThreshold = 1.5
	var invalid *InvalidError
	require.ErrorAs(t, cfg.Validate(), &invalid)
	assert.Equal(t, "overlap_threshold", invalid.Field)
}

func TestValidateRejectsNonPositiveCounts(t *testing.T) {
	cfg := Default()
	cfg.TopOpportunities = 0
	assert.Error(t, cfg.Validate())

	cfg = Default()
	cfg.HistoryCandidates = -1
	assert.Error(t, cfg.Validate())
}

func TestRequireLiveNeedsCredentials(t *testing.T) {
	cfg := Default()
	err := cfg.RequireLive()
	require.Error(t, err)

	cfg.GitHubToken = "gh-tok"
	cfg.OpenRouterToken = "or-tok"
	assert.NoError(t, cfg.RequireLive())
}

func TestHashIsDeterministicAndSensitiveToFields(t *testing.T) {
	a := Default()
	b := Default()
	assert.Equal(t, a.Hash(), b.Hash())
	assert.Len(t, a.Hash(), 16)

	b.OverlapThreshold = 0.6
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestHashIgnoresCredentials(t *testing.T) {
	a := Default()
	b := Default()
	b.GitHubToken = "secret-token"
	assert.Equal(t, a.Hash(), b.Hash())
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "console", cfg.Logging.Format)
	assert.True(t, cfg.Sync.DryRun)
	assert.Equal(t, 3, cfg.Sync.MaxResults)
	assert.Equal(t, "strict", cfg.Sync.AuthorRule)
	assert.Equal(t, 1, cfg.Sync.VerifyTolerance)
	assert.True(t, cfg.Browser.Headless)
	assert.Equal(t, 30*time.Second, cfg.Browser.StepTimeout)
	assert.Equal(t, "./data/library.tsv", cfg.Audible.ExportPath)
}

func TestLoadFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
logging:
  level: debug
storygraph:
  email: reader@example.com
  password: hunter2
sync:
  dry_run: false
  max_results: 5
browser:
  headless: false
  step_timeout: 45s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "reader@example.com", cfg.StoryGraph.Email)
	assert.False(t, cfg.Sync.DryRun)
	assert.Equal(t, 5, cfg.Sync.MaxResults)
	assert.False(t, cfg.Browser.Headless)
	assert.Equal(t, 45*time.Second, cfg.Browser.StepTimeout)
	// Keys absent from the file keep their defaults.
	assert.Equal(t, "strict", cfg.Sync.AuthorRule)
	assert.Equal(t, "./data/state", cfg.Paths.StateDir)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.True(t, cfg.Sync.DryRun)
}

func TestEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("logging:\n  level: debug\n"), 0o644))

	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("STORYGRAPH_EMAIL", "env@example.com")
	t.Setenv("DRY_RUN", "false")
	t.Setenv("MAX_SEARCH_RESULTS", "7")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "warn", cfg.Logging.Level)
	assert.Equal(t, "env@example.com", cfg.StoryGraph.Email)
	assert.False(t, cfg.Sync.DryRun)
	assert.Equal(t, 7, cfg.Sync.MaxResults)
}

func TestLoadRejectsBadAuthorRule(t *testing.T) {
	t.Setenv("AUTHOR_MATCH_RULE", "fuzzy")

	_, err := Load("")
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sync.author_rule", cfgErr.Field)
}

func TestLoadRejectsNegativeVerifyTolerance(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("sync:\n  verify_tolerance: -1\n"), 0o644))

	_, err := Load(path)
	require.Error(t, err)

	var cfgErr *ConfigError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "sync.verify_tolerance", cfgErr.Field)
}

func TestRequireStoryGraph(t *testing.T) {
	cfg := &Config{}
	err := cfg.RequireStoryGraph()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "STORYGRAPH_EMAIL")
	assert.Contains(t, err.Error(), "STORYGRAPH_PASSWORD")

	cfg.StoryGraph.Email = "reader@example.com"
	cfg.StoryGraph.Password = "hunter2"
	assert.NoError(t, cfg.RequireStoryGraph())
}

func TestRequireGoodreads(t *testing.T) {
	cfg := &Config{}
	cfg.Goodreads.Email = "reader@example.com"
	err := cfg.RequireGoodreads()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "GOODREADS_PASSWORD")
	assert.NotContains(t, err.Error(), "GOODREADS_EMAIL")
}

func TestStatePath(t *testing.T) {
	cfg := &Config{}
	cfg.Paths.StateDir = "/var/lib/sync"
	assert.Equal(t, filepath.Join("/var/lib/sync", "justin.json"), cfg.StatePath("justin"))
}

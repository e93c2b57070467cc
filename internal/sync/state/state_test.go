package state

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "sync_justin.json")
	store := Load(statePath, nil)

	assert.Zero(t, store.Len())
}

func TestLoadCorruptFileDegradesToEmpty(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "sync_justin.json")
	require.NoError(t, os.WriteFile(statePath, []byte("{not json"), 0644))

	store := Load(statePath, nil)
	assert.Zero(t, store.Len(), "corrupt state must degrade to full resync, not fail")
}

func TestSaveAndLoadRoundtrip(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "nested", "sync_justin.json")

	store := Load(statePath, nil)
	store.SetPercent("Project Hail Mary", 35)
	store.MarkProcessed("review-123")
	require.NoError(t, store.Save())

	loaded := Load(statePath, nil)
	require.Equal(t, 2, loaded.Len())

	entry, ok := loaded.Get("Project Hail Mary")
	require.True(t, ok)
	require.NotNil(t, entry.PercentComplete)
	assert.Equal(t, 35.0, *entry.PercentComplete)
	assert.False(t, entry.Processed)
	assert.WithinDuration(t, time.Now(), entry.UpdatedAt, time.Minute)

	assert.True(t, loaded.IsProcessed("review-123"))
	assert.False(t, loaded.IsProcessed("review-999"))
}

func TestSaveOverwritesWholeFile(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "sync.json")

	store := Load(statePath, nil)
	store.SetPercent("Old Book", 10)
	require.NoError(t, store.Save())

	fresh := Load(statePath, nil)
	fresh.SetPercent("New Book", 50)
	// Old Book is still present in fresh; overwrite keeps it.
	require.NoError(t, fresh.Save())

	final := Load(statePath, nil)
	assert.Equal(t, 2, final.Len())
}

func TestUnknownJSONKeysIgnored(t *testing.T) {
	t.Parallel()

	statePath := filepath.Join(t.TempDir(), "sync.json")
	forward := `{
		"Dune": {
			"percent_complete": 40,
			"updated_at": "2026-08-01T10:00:00Z",
			"future_field": {"nested": true}
		}
	}`
	require.NoError(t, os.WriteFile(statePath, []byte(forward), 0644))

	store := Load(statePath, nil)
	entry, ok := store.Get("Dune")
	require.True(t, ok)
	require.NotNil(t, entry.PercentComplete)
	assert.Equal(t, 40.0, *entry.PercentComplete)
}

func TestEntriesReturnsCopy(t *testing.T) {
	t.Parallel()

	store := Load(filepath.Join(t.TempDir(), "sync.json"), nil)
	store.SetPercent("Dune", 40)

	entries := store.Entries()
	delete(entries, "Dune")

	_, ok := store.Get("Dune")
	assert.True(t, ok, "mutating the returned map must not touch the store")
}

func TestOverwriteEntryKeepsSingleKey(t *testing.T) {
	t.Parallel()

	store := Load(filepath.Join(t.TempDir(), "sync.json"), nil)
	store.SetPercent("Dune", 40)
	store.SetPercent("Dune", 45)

	assert.Equal(t, 1, store.Len())
	entry, _ := store.Get("Dune")
	assert.Equal(t, 45.0, *entry.PercentComplete)
}

// Package state persists the per-profile sync state: the mapping of
// identifying key (book title or source review ID) to the last applied
// progress or processed marker. The store is the single source of
// idempotence across runs.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/jtara/storygraph-sync/internal/logger"
)

// Entry is the last-known applied state for one key. Exactly one of
// PercentComplete or Processed is meaningful per key: progress-flow keys
// carry a percentage, read-flow keys carry the processed flag.
type Entry struct {
	PercentComplete *float64  `json:"percent_complete,omitempty"`
	Processed       bool      `json:"processed,omitempty"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Store is the in-memory copy of one profile's sync state. Callers read
// once at the start of a run, mutate, and save once at the end; there is
// no merge logic and two concurrent runs for the same profile are not
// supported.
type Store struct {
	path    string
	mu      sync.RWMutex
	entries map[string]Entry
}

// Load reads the state file for a profile. A missing or unreadable file
// degrades to an empty store: the next run simply treats every record
// as new. It never fails the run.
func Load(path string, log *logger.Logger) *Store {
	store := &Store{
		path:    path,
		entries: make(map[string]Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warn("Sync state unreadable, treating as empty", map[string]interface{}{
				"path":  path,
				"error": err.Error(),
			})
		}
		return store
	}

	var entries map[string]Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		log.Warn("Sync state corrupt, treating as empty (full resync)", map[string]interface{}{
			"path":  path,
			"error": err.Error(),
		})
		return store
	}
	if entries != nil {
		store.entries = entries
	}

	return store
}

// Save writes the state atomically: temp file in the target directory,
// fsync, then rename over the old file.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	targetDir := filepath.Dir(s.path)
	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return fmt.Errorf("failed to create state directory %q: %w", targetDir, err)
	}

	tmpFile, err := os.CreateTemp(targetDir, filepath.Base(s.path)+".tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp state file in %q: %w", targetDir, err)
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		if _, err := os.Stat(tmpPath); err == nil {
			os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(s.entries); err != nil {
		return fmt.Errorf("failed to encode sync state: %w", err)
	}

	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to sync state file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("failed to rename temp state file to %q: %w", s.path, err)
	}

	return nil
}

// Get returns the entry for a key.
func (s *Store) Get(key string) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.entries[key]
	return entry, ok
}

// SetPercent records the applied progress percentage for a key.
func (s *Store) SetPercent(key string, percent float64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{
		PercentComplete: &percent,
		UpdatedAt:       time.Now().UTC(),
	}
}

// MarkProcessed records a key as already handled by the read flow.
func (s *Store) MarkProcessed(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = Entry{
		Processed: true,
		UpdatedAt: time.Now().UTC(),
	}
}

// IsProcessed reports whether a key carries the processed marker.
func (s *Store) IsProcessed(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.entries[key].Processed
}

// Entries returns a copy of the current state map.
func (s *Store) Entries() map[string]Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[string]Entry, len(s.entries))
	for k, v := range s.entries {
		out[k] = v
	}
	return out
}

// Len returns the number of entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.entries)
}

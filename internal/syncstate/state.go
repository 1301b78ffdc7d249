// Package syncstate implements the durable, single-file local state store:
// a relative path -> last-synced-metadata map that the Manager/Consumer
// rewrite atomically (temp file + rename) after every decision.
package syncstate

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/goccy/go-json"

	"github.com/opensyncbox/syncbox/internal/datasite"
	"github.com/opensyncbox/syncbox/internal/hashsign"
	"github.com/opensyncbox/syncbox/internal/syncdecision"
)

// Status is the outcome recorded against a path's last sync attempt.
type Status string

const (
	StatusOK    Status = "OK"
	StatusError Status = "ERROR"
)

// ActionType is the Decision Engine's action_type derived property — the
// two packages share one definition so the Consumer never has to translate
// between them when recording an outcome.
type ActionType = syncdecision.ActionType

const (
	ActionNoop         = syncdecision.ActionNoop
	ActionCreateLocal  = syncdecision.ActionCreateLocal
	ActionCreateRemote = syncdecision.ActionCreateRemote
	ActionModifyLocal  = syncdecision.ActionModifyLocal
	ActionModifyRemote = syncdecision.ActionModifyRemote
	ActionDeleteLocal  = syncdecision.ActionDeleteLocal
	ActionDeleteRemote = syncdecision.ActionDeleteRemote
)

// Entry is one path's sync history. Entries are never deleted; a deleted
// file's entry holds LastSyncedMetadata = nil with a DELETE_* action.
type Entry struct {
	Path               datasite.RelativePath  `json:"path"`
	LastSyncedMetadata *hashsign.FileMetadata `json:"last_synced_metadata"`
	LastStatus         Status                 `json:"last_status"`
	LastAction         ActionType             `json:"last_action"`
	LastMessage        string                 `json:"last_message,omitempty"`
}

// ErrCorrupt is returned by Load when the state file exists but cannot be
// parsed. Per spec this is always a fatal environment error, not a
// transient one — the Consumer must not silently start from empty state.
var ErrCorrupt = errors.New("corrupt local state file")

// Store is the durable local state store. All mutating methods persist the
// full map atomically (temp file + rename) before returning.
type Store struct {
	path    string
	mu      sync.RWMutex
	entries map[datasite.RelativePath]*Entry
}

// Load opens the state file at path, creating an empty store if it does
// not exist yet. A file that exists but fails to parse is ErrCorrupt.
func Load(path string) (*Store, error) {
	s := &Store{
		path:    path,
		entries: make(map[datasite.RelativePath]*Entry),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	if len(data) == 0 {
		return s, nil
	}

	var entries []*Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, path, err)
	}

	for _, e := range entries {
		s.entries[e.Path] = e
	}

	return s, nil
}

// Exists reports whether a local state file is present on disk at path.
// The Consumer uses this during environment validation: a missing state
// file after the first successful Load is a fatal condition (it implies
// external deletion), not a fresh-start signal.
func Exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// Get returns the entry for path, or nil if path has never been observed.
func (s *Store) Get(path datasite.RelativePath) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.entries[path]
}

// AllPaths returns every path ever observed, synced or not.
func (s *Store) AllPaths() []datasite.RelativePath {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]datasite.RelativePath, 0, len(s.entries))
	for p := range s.entries {
		paths = append(paths, p)
	}
	return paths
}

// InsertSynced records a successful sync: sets LastSyncedMetadata, clears
// any error message, and sets status OK.
func (s *Store) InsertSynced(path datasite.RelativePath, metadata *hashsign.FileMetadata, action ActionType) error {
	s.mu.Lock()
	s.entries[path] = &Entry{
		Path:               path,
		LastSyncedMetadata: metadata,
		LastStatus:         StatusOK,
		LastAction:         action,
	}
	s.mu.Unlock()

	return s.persist()
}

// InsertStatus records a status, action and message without changing
// LastSyncedMetadata. Any status is accepted; the Consumer calls it for
// errors and uses InsertSynced for successful state transitions.
func (s *Store) InsertStatus(path datasite.RelativePath, status Status, action ActionType, message string) error {
	s.mu.Lock()
	existing, ok := s.entries[path]
	var metadata *hashsign.FileMetadata
	if ok {
		metadata = existing.LastSyncedMetadata
	}
	s.entries[path] = &Entry{
		Path:               path,
		LastSyncedMetadata: metadata,
		LastStatus:         status,
		LastAction:         action,
		LastMessage:        message,
	}
	s.mu.Unlock()

	return s.persist()
}

// EnsureFile writes the current (possibly empty) state to disk if no file
// exists yet at this Store's path. The Manager calls this during startup so
// ValidateEnvironment's "local state file exists" precondition holds before
// the first tick, without requiring a real sync decision to have happened.
func (s *Store) EnsureFile() error {
	if Exists(s.path) {
		return nil
	}
	return s.persist()
}

// persist rewrites the whole state file atomically: write to a temp file
// in the same directory, fsync, then rename over the real path.
func (s *Store) persist() error {
	s.mu.RLock()
	entries := make([]*Entry, 0, len(s.entries))
	for _, e := range s.entries {
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	data, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("marshal local state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create local state dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".local_state-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp local state file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp local state file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("sync temp local state file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp local state file: %w", err)
	}

	if err := os.Rename(tmpPath, s.path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename local state file into place: %w", err)
	}

	return nil
}

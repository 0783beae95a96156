// Package memstore persists conversation exchanges as an append-only bounded
// JSON array on disk. The store is the sole writer and source of truth: every
// save reloads the file, appends, evicts oldest entries past the cap, and
// writes the whole array back. Not safe for concurrent writers.
package memstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Entry is one remembered exchange.
type Entry struct {
	Timestamp string `json:"timestamp"`
	User      string `json:"user"`
	Agent     string `json:"agent"`
	Summary   string `json:"summary"`
}

// Store is a bounded JSON-array memory log at a fixed path.
type Store struct {
	path       string
	maxEntries int
	now        func() time.Time
}

// New creates a store persisting at path, keeping at most maxEntries entries.
func New(path string, maxEntries int) *Store {
	return &Store{path: path, maxEntries: maxEntries, now: time.Now}
}

// Path returns the store file location.
func (s *Store) Path() string { return s.path }

// Save appends one entry and reports the post-save total count.
//
// An unreadable existing file is renamed to a .corrupted.json sibling and
// treated as empty: keeping the store writable matters more than preserving a
// corrupt snapshot.
func (s *Store) Save(userMessage, agentResponse, summary string) (int, error) {
	entries := s.load()

	entries = append(entries, Entry{
		Timestamp: s.now().Format(time.RFC3339),
		User:      userMessage,
		Agent:     agentResponse,
		Summary:   summary,
	})

	if s.maxEntries > 0 && len(entries) > s.maxEntries {
		entries = entries[len(entries)-s.maxEntries:]
	}

	if err := s.write(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}

// Load returns the current entries. Absent or unreadable files yield nil.
func (s *Store) Load() []Entry {
	return s.load()
}

func (s *Store) load() []Entry {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		s.backupCorrupted()
		return nil
	}
	return entries
}

func (s *Store) backupCorrupted() {
	backup := corruptedPath(s.path)
	// Rename keeps the broken snapshot around for inspection; if that fails
	// the subsequent write overwrites the primary file anyway.
	_ = os.Rename(s.path, backup)
}

func (s *Store) write(entries []Entry) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("ensure memory dir: %w", err)
	}
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(entries); err != nil {
		return fmt.Errorf("encode memory: %w", err)
	}
	if err := os.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write memory: %w", err)
	}
	return nil
}

func corruptedPath(path string) string {
	ext := filepath.Ext(path)
	return path[:len(path)-len(ext)] + ".corrupted.json"
}

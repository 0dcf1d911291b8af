// Package state persists the bot's small JSON data files under the data
// directory: seen sets for the feed watchers, plus lists and logs for the
// interactive features.
package state

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/linanwx/milo/logger"
)

// LoadJSON reads a JSON file into v. A missing file leaves v untouched.
func LoadJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", path, err)
	}
	return nil
}

// SaveJSON writes v to path atomically (temp file + rename).
func SaveJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create dir for %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

// SeenSet tracks identity keys that have already been announced. Keys are
// only ever added, never removed. A SeenSet constructed with an empty path
// lives in memory for the life of the process and Save is a no-op.
type SeenSet struct {
	mu   sync.Mutex
	path string
	keys map[string]struct{}
}

// NewSeenSet loads a persisted seen set from path. A missing file yields an
// empty set; a corrupt file is treated as empty (and logged) rather than
// blocking the watcher.
func NewSeenSet(path string) *SeenSet {
	s := &SeenSet{path: path, keys: make(map[string]struct{})}
	if path == "" {
		return s
	}

	var list []string
	if err := LoadJSON(path, &list); err != nil {
		logger.Warn("seen set unreadable, starting empty", "path", path, "err", err)
		return s
	}
	for _, k := range list {
		s.keys[k] = struct{}{}
	}
	return s
}

// NewMemorySeenSet returns a seen set that is never written to disk.
func NewMemorySeenSet() *SeenSet {
	return NewSeenSet("")
}

// Len returns the number of keys in the set.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

// Contains reports whether key is in the set.
func (s *SeenSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.keys[key]
	return ok
}

// Add inserts keys into the set. It does not persist; call Save once per
// batch.
func (s *SeenSet) Add(keys ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, k := range keys {
		if k == "" {
			continue
		}
		s.keys[k] = struct{}{}
	}
}

// Keys returns a sorted copy of the set.
func (s *SeenSet) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sortedLocked()
}

func (s *SeenSet) sortedLocked() []string {
	out := make([]string, 0, len(s.keys))
	for k := range s.keys {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Save writes the whole set to disk as a sorted JSON array. Memory-only sets
// return nil.
func (s *SeenSet) Save() error {
	s.mu.Lock()
	list := s.sortedLocked()
	path := s.path
	s.mu.Unlock()

	if path == "" {
		return nil
	}
	return SaveJSON(path, list)
}

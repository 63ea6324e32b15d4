package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Local fallback sizing and persistence cadence.
const (
	// DefaultLocalLimit bounds the fallback map.
	DefaultLocalLimit = 5000

	// DefaultLocalTTL is the lifetime of a fallback entry.
	DefaultLocalTTL = time.Hour

	// savesEveryInserts persists the snapshot after this many inserts.
	savesEveryInserts = 100

	// DefaultFlushInterval is the time-based snapshot cadence.
	DefaultFlushInterval = 5 * time.Minute

	snapshotFileMode = 0o644
	snapshotDirMode  = 0o755
)

// LocalSet is a bounded, TTL-bearing in-process set of string keys with
// an on-disk JSON snapshot. It backs the dedup store while the
// distributed cache is unhealthy. Entries carry their own monotonic
// insertion timestamps; expired entries are pruned on access.
type LocalSet struct {
	mu      sync.Mutex
	entries map[string]time.Time
	limit   int
	ttl     time.Duration
	path    string

	insertsSinceSave int
}

// localSnapshot is the on-disk form of a LocalSet.
type localSnapshot struct {
	SavedAt time.Time            `json:"saved_at"`
	Entries map[string]time.Time `json:"entries"`
}

// NewLocalSet creates a local fallback set persisted at path. A previous
// snapshot at the same path is restored when present; entries that have
// expired since the snapshot are dropped on load.
func NewLocalSet(path string, limit int, ttl time.Duration) (*LocalSet, error) {
	if limit <= 0 {
		limit = DefaultLocalLimit
	}

	if ttl <= 0 {
		ttl = DefaultLocalTTL
	}

	s := &LocalSet{
		entries: make(map[string]time.Time),
		limit:   limit,
		ttl:     ttl,
		path:    path,
	}

	if path != "" {
		if err := s.load(); err != nil {
			return nil, err
		}
	}

	return s, nil
}

// Add inserts a key. Returns true if the key was new. Every
// savesEveryInserts inserts the snapshot is persisted synchronously.
func (s *LocalSet) Add(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	s.pruneLocked(now)

	if _, ok := s.entries[key]; ok {
		return false
	}

	// At capacity, drop the oldest entry to admit the new one.
	if len(s.entries) >= s.limit {
		s.evictOldestLocked()
	}

	s.entries[key] = now
	s.insertsSinceSave++

	if s.path != "" && s.insertsSinceSave >= savesEveryInserts {
		s.saveLocked()
	}

	return true
}

// Contains reports whether the key is present and unexpired.
func (s *LocalSet) Contains(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	at, ok := s.entries[key]
	if !ok {
		return false
	}

	if time.Since(at) > s.ttl {
		delete(s.entries, key)

		return false
	}

	return true
}

// Len returns the number of live entries.
func (s *LocalSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(time.Now())

	return len(s.entries)
}

// Flush persists the snapshot immediately.
func (s *LocalSet) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.path == "" {
		return nil
	}

	return s.saveLocked()
}

// StartFlushLoop persists the snapshot on a timer until done closes,
// then flushes one last time.
func (s *LocalSet) StartFlushLoop(done <-chan struct{}, every time.Duration) {
	if every <= 0 {
		every = DefaultFlushInterval
	}

	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			_ = s.Flush()

			return
		case <-ticker.C:
			_ = s.Flush()
		}
	}
}

func (s *LocalSet) pruneLocked(now time.Time) {
	for key, at := range s.entries {
		if now.Sub(at) > s.ttl {
			delete(s.entries, key)
		}
	}
}

func (s *LocalSet) evictOldestLocked() {
	var (
		oldestKey string
		oldestAt  time.Time
	)

	for key, at := range s.entries {
		if oldestKey == "" || at.Before(oldestAt) {
			oldestKey, oldestAt = key, at
		}
	}

	if oldestKey != "" {
		delete(s.entries, oldestKey)
	}
}

func (s *LocalSet) saveLocked() error {
	snap := localSnapshot{SavedAt: time.Now(), Entries: s.entries}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal local set: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(s.path), snapshotDirMode); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, snapshotFileMode); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}

	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}

	s.insertsSinceSave = 0

	return nil
}

func (s *LocalSet) load() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("read snapshot: %w", err)
	}

	var snap localSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		// A corrupt snapshot is not fatal; start empty.
		return nil
	}

	now := time.Now()

	for key, at := range snap.Entries {
		if now.Sub(at) <= s.ttl {
			s.entries[key] = at
		}
	}

	return nil
}

package dedup

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/04By0302/jnd-vps/internal/cache"
)

// SeenTTL is the distributed seen-set entry lifetime.
const SeenTTL = time.Hour

// SeenSet is the distributed seen-set plus last-issue pointer, with the
// bounded file-persisted local fallback. A multi-process deployment may
// transiently admit duplicates while degraded; the idempotent draw
// upsert absorbs them.
type SeenSet struct {
	store *cache.Store
	keys  cache.Keys
	local *cache.LocalSet
	log   *slog.Logger
}

// NewSeenSet creates a seen-set over the distributed store with the
// given local fallback.
func NewSeenSet(store *cache.Store, keys cache.Keys, local *cache.LocalSet, log *slog.Logger) *SeenSet {
	return &SeenSet{store: store, keys: keys, local: local, log: log}
}

// Contains reports whether the issue has already been committed.
// While the distributed cache is degraded the local fallback answers;
// both layers are consulted on the healthy path so a warm local set
// still short-circuits after a cache flush.
func (s *SeenSet) Contains(ctx context.Context, issue string) bool {
	if s.local.Contains(issue) {
		return true
	}

	if !s.store.Healthy() {
		return false
	}

	_, err := s.store.Get(ctx, s.keys.SeenIssue(issue))
	if err == nil {
		return true
	}

	if !errors.Is(err, cache.ErrMiss) {
		s.log.Warn("seen-set lookup degraded to local", "issue", issue, "error", err)
	}

	return false
}

// MarkSeen records the issue in both layers and publishes it as the new
// last-issue pointer. Distributed failures are logged and swallowed;
// the local layer always succeeds.
func (s *SeenSet) MarkSeen(ctx context.Context, issue string) {
	s.local.Add(issue)

	if err := s.store.Set(ctx, s.keys.SeenIssue(issue), []byte("1"), SeenTTL); err != nil {
		s.log.Warn("seen-set mark failed", "issue", issue, "error", err)
	}

	if err := s.store.Set(ctx, s.keys.LastIssue(), []byte(issue), 0); err != nil {
		s.log.Warn("last-issue publish failed", "issue", issue, "error", err)
	}
}

// LastIssue returns the published last-issue pointer, or "" when none
// exists or the cache is unreachable.
func (s *SeenSet) LastIssue(ctx context.Context) (string, error) {
	val, err := s.store.Get(ctx, s.keys.LastIssue())
	if errors.Is(err, cache.ErrMiss) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("last issue: %w", err)
	}

	return string(val), nil
}

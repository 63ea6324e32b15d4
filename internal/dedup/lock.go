package dedup

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/04By0302/jnd-vps/internal/cache"
)

// WriteLockTTL is the per-issue write lock lifetime.
const WriteLockTTL = 3 * time.Second

// PredictLockTTL is the per-issue prediction lock lifetime.
const PredictLockTTL = 300 * time.Second

// LockService is a distributed, TTL-bearing, non-blocking mutex keyed by
// cache key. While the distributed cache is degraded it falls back to a
// process-local map, which keeps single-process correctness; the
// idempotent draw upsert covers the multi-process window.
type LockService struct {
	store *cache.Store
	log   *slog.Logger

	mu    sync.Mutex
	local map[string]time.Time
}

// NewLockService creates a lock service over the distributed store.
func NewLockService(store *cache.Store, log *slog.Logger) *LockService {
	return &LockService{
		store: store,
		log:   log,
		local: make(map[string]time.Time),
	}
}

// TryLock attempts to acquire the lock non-blocking. On success it
// returns true and a release func; release is safe to call multiple
// times and must run even when the guarded work fails.
func (l *LockService) TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool) {
	if l.store.Healthy() {
		acquired, err := l.store.SetNX(ctx, key, []byte("1"), ttl)
		if err == nil {
			if !acquired {
				return nil, false
			}

			var once sync.Once

			return func() {
				once.Do(func() {
					if delErr := l.store.Delete(context.WithoutCancel(ctx), key); delErr != nil {
						l.log.Warn("lock release failed; ttl will expire it", "key", key, "error", delErr)
					}
				})
			}, true
		}

		l.log.Warn("distributed lock degraded to local", "key", key, "error", err)
	}

	return l.tryLockLocal(key, ttl)
}

// tryLockLocal acquires the process-local fallback lock.
func (l *LockService) tryLockLocal(key string, ttl time.Duration) (release func(), ok bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()

	if expiry, held := l.local[key]; held && now.Before(expiry) {
		return nil, false
	}

	l.local[key] = now.Add(ttl)

	var once sync.Once

	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()

			delete(l.local, key)
		})
	}, true
}

// Package cache implements the tiered cache substrate: a Redis-backed
// store with pattern invalidation, the namespaced key grammar, and a
// bounded in-process fallback map with on-disk snapshots.
package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by Get when the key is absent.
var ErrMiss = errors.New("cache miss")

// scanBatch is the SCAN page size and the maximum number of keys per
// DEL during pattern invalidation.
const scanBatch = 1000

// pingTimeout bounds the background health probe.
const pingTimeout = 2 * time.Second

// Client is the slice of the Redis command surface the store needs.
// *redis.Client satisfies it; tests substitute a fake.
type Client interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
	Scan(ctx context.Context, cursor uint64, match string, count int64) *redis.ScanCmd
	Ping(ctx context.Context) *redis.StatusCmd
}

// Store is a keyed cache for API payloads and coordination state backed
// by Redis. All data paths must keep functioning (slower) when the store
// is unhealthy; callers consult Healthy to switch to local fallbacks.
type Store struct {
	client  Client
	log     *slog.Logger
	healthy atomic.Bool
}

// NewStore wraps a Redis client. The store starts optimistic (healthy)
// and downgrades on the first failed command or probe.
func NewStore(client Client, log *slog.Logger) *Store {
	s := &Store{client: client, log: log}
	s.healthy.Store(true)

	return s
}

// Healthy reports the last observed health of the distributed cache.
func (s *Store) Healthy() bool { return s.healthy.Load() }

// Ping probes the server and updates the health flag.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pingTimeout)
	defer cancel()

	err := s.client.Ping(ctx).Err()
	s.observe(err)

	return err
}

// StartHealthLoop probes the server with adaptive cadence: fast while
// unhealthy, slow while healthy. Returns when ctx is cancelled.
func (s *Store) StartHealthLoop(ctx context.Context, healthyEvery, unhealthyEvery time.Duration) {
	timer := time.NewTimer(healthyEvery)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		wasHealthy := s.Healthy()

		err := s.Ping(ctx)
		if err != nil && wasHealthy {
			s.log.Warn("cache store unhealthy", "error", err)
		} else if err == nil && !wasHealthy {
			s.log.Info("cache store recovered")
		}

		if s.Healthy() {
			timer.Reset(healthyEvery)
		} else {
			timer.Reset(unhealthyEvery)
		}
	}
}

// Get retrieves a payload. Returns ErrMiss when the key is absent.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := s.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrMiss
	}

	s.observe(err)

	if err != nil {
		return nil, fmt.Errorf("cache get %s: %w", key, err)
	}

	return val, nil
}

// Set stores a payload with a TTL. A zero TTL means no expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	err := s.client.Set(ctx, key, value, ttl).Err()
	s.observe(err)

	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}

	return nil
}

// SetNX stores a value only if the key does not exist. Returns whether
// the key was set. Used for locks and idempotency markers.
func (s *Store) SetNX(ctx context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, key, value, ttl).Result()
	s.observe(err)

	if err != nil {
		return false, fmt.Errorf("cache setnx %s: %w", key, err)
	}

	return ok, nil
}

// Delete removes the given keys.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	err := s.client.Del(ctx, keys...).Err()
	s.observe(err)

	if err != nil {
		return fmt.Errorf("cache delete: %w", err)
	}

	return nil
}

// ScanDelete removes every key matching the pattern using non-blocking
// cursor iteration, deleting in batches of up to scanBatch keys.
// Returns the number of keys removed.
func (s *Store) ScanDelete(ctx context.Context, pattern string) (int, error) {
	var (
		cursor  uint64
		removed int
	)

	for {
		keys, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		s.observe(err)

		if err != nil {
			return removed, fmt.Errorf("cache scan %s: %w", pattern, err)
		}

		if len(keys) > 0 {
			err = s.client.Del(ctx, keys...).Err()
			s.observe(err)

			if err != nil {
				return removed, fmt.Errorf("cache delete batch: %w", err)
			}

			removed += len(keys)
		}

		cursor = next
		if cursor == 0 {
			return removed, nil
		}
	}
}

// observe downgrades or restores the health flag from a command result.
// Context cancellation is the caller's doing and says nothing about the
// server.
func (s *Store) observe(err error) {
	switch {
	case err == nil:
		s.healthy.Store(true)
	case errors.Is(err, context.Canceled):
	default:
		s.healthy.Store(false)
	}
}

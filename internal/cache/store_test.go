package cache_test

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04By0302/jnd-vps/internal/cache"
)

// fakeRedis is an in-memory stand-in for the Redis command surface the
// store uses. It supports prefix-glob patterns of the form "prefix*".
type fakeRedis struct {
	mu   sync.Mutex
	data map[string]string
	err  error
}

func newFakeRedis() *fakeRedis {
	return &fakeRedis{data: make(map[string]string)}
}

func (f *fakeRedis) Get(ctx context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}

	val, ok := f.data[key]
	if !ok {
		return redis.NewStringResult("", redis.Nil)
	}

	return redis.NewStringResult(val, nil)
}

func (f *fakeRedis) Set(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}

	f.data[key] = asString(value)

	return redis.NewStatusResult("OK", nil)
}

func (f *fakeRedis) SetNX(ctx context.Context, key string, value interface{}, _ time.Duration) *redis.BoolCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewBoolResult(false, f.err)
	}

	if _, ok := f.data[key]; ok {
		return redis.NewBoolResult(false, nil)
	}

	f.data[key] = asString(value)

	return redis.NewBoolResult(true, nil)
}

func (f *fakeRedis) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}

	var n int64

	for _, key := range keys {
		if _, ok := f.data[key]; ok {
			delete(f.data, key)
			n++
		}
	}

	return redis.NewIntResult(n, nil)
}

func (f *fakeRedis) Scan(ctx context.Context, _ uint64, match string, _ int64) *redis.ScanCmd {
	f.mu.Lock()
	defer f.mu.Unlock()

	prefix := match
	if len(match) > 0 && match[len(match)-1] == '*' {
		prefix = match[:len(match)-1]
	}

	var keys []string

	for key := range f.data {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			keys = append(keys, key)
		}
	}

	return redis.NewScanCmdResult(keys, 0, f.err)
}

func (f *fakeRedis) Ping(ctx context.Context) *redis.StatusCmd {
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}

	return redis.NewStatusResult("PONG", nil)
}

func asString(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return ""
	}
}

func newTestStore() (*cache.Store, *fakeRedis) {
	f := newFakeRedis()

	return cache.NewStore(f, slog.Default()), f
}

func TestStoreGetSetRoundTrip(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	_, err := s.Get(ctx, "project:yl")
	assert.ErrorIs(t, err, cache.ErrMiss)

	require.NoError(t, s.Set(ctx, "project:yl", []byte("payload"), time.Minute))

	val, err := s.Get(ctx, "project:yl")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), val)
}

func TestStoreSetNX(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	ok, err := s.SetNX(ctx, "project:lock:issue:1", []byte("1"), time.Second)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.SetNX(ctx, "project:lock:issue:1", []byte("1"), time.Second)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreScanDelete(t *testing.T) {
	s, _ := newTestStore()
	ctx := context.Background()

	require.NoError(t, s.Set(ctx, "project:kj:limit:10", []byte("a"), 0))
	require.NoError(t, s.Set(ctx, "project:kj:limit:50", []byte("b"), 0))
	require.NoError(t, s.Set(ctx, "project:yl", []byte("c"), 0))

	removed, err := s.ScanDelete(ctx, "project:kj:limit:*")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	_, err = s.Get(ctx, "project:kj:limit:10")
	assert.ErrorIs(t, err, cache.ErrMiss)

	val, err := s.Get(ctx, "project:yl")
	require.NoError(t, err)
	assert.Equal(t, []byte("c"), val)
}

func TestStoreHealthTracking(t *testing.T) {
	s, f := newTestStore()
	ctx := context.Background()

	assert.True(t, s.Healthy())

	f.err = errors.New("connection refused")
	_, err := s.Get(ctx, "any")
	require.Error(t, err)
	assert.False(t, s.Healthy())

	f.err = nil
	require.NoError(t, s.Ping(ctx))
	assert.True(t, s.Healthy())
}

package cache_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04By0302/jnd-vps/internal/cache"
)

func TestLocalSetAddAndContains(t *testing.T) {
	s, err := cache.NewLocalSet("", 10, time.Hour)
	require.NoError(t, err)

	assert.True(t, s.Add("2025001"))
	assert.False(t, s.Add("2025001"))
	assert.True(t, s.Contains("2025001"))
	assert.False(t, s.Contains("2025002"))
	assert.Equal(t, 1, s.Len())
}

func TestLocalSetEvictsOldestAtCapacity(t *testing.T) {
	s, err := cache.NewLocalSet("", 3, time.Hour)
	require.NoError(t, err)

	assert.True(t, s.Add("a"))
	time.Sleep(time.Millisecond)
	assert.True(t, s.Add("b"))
	time.Sleep(time.Millisecond)
	assert.True(t, s.Add("c"))
	time.Sleep(time.Millisecond)
	assert.True(t, s.Add("d"))

	assert.Equal(t, 3, s.Len())
	assert.False(t, s.Contains("a"))
	assert.True(t, s.Contains("d"))
}

func TestLocalSetExpiry(t *testing.T) {
	s, err := cache.NewLocalSet("", 10, 10*time.Millisecond)
	require.NoError(t, err)

	assert.True(t, s.Add("x"))
	time.Sleep(20 * time.Millisecond)
	assert.False(t, s.Contains("x"))
}

func TestLocalSetSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")

	s, err := cache.NewLocalSet(path, 10, time.Hour)
	require.NoError(t, err)

	assert.True(t, s.Add("2025001"))
	assert.True(t, s.Add("2025002"))
	require.NoError(t, s.Flush())

	restored, err := cache.NewLocalSet(path, 10, time.Hour)
	require.NoError(t, err)

	assert.True(t, restored.Contains("2025001"))
	assert.True(t, restored.Contains("2025002"))
	assert.False(t, restored.Contains("2025003"))
}

func TestLocalSetIgnoresCorruptSnapshot(t *testing.T) {
	path := filepath.Join(t.TempDir(), "seen.json")

	s, err := cache.NewLocalSet(path, 10, time.Hour)
	require.NoError(t, err)
	require.NoError(t, s.Flush())

	// Truncate to garbage and reload.
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o644))

	restored, err := cache.NewLocalSet(path, 10, time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, restored.Len())
}

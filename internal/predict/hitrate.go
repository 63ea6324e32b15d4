package predict

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/model"
)

// WinRateTTL is the cached hit-rate snapshot lifetime.
const WinRateTTL = 5 * time.Minute

// HitRateRepo computes a hit rate over recent resolved predictions.
type HitRateRepo interface {
	HitRate(ctx context.Context, typ model.PredictionType, window int) (*model.HitRate, error)
}

// SnapshotCache is the slice of the cache store the snapshots need.
type SnapshotCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// HitRates serves per-type hit-rate snapshots with a short cache in
// front of the resolved-window query.
type HitRates struct {
	repo   HitRateRepo
	store  SnapshotCache
	keys   cache.Keys
	window int
	log    *slog.Logger
}

// NewHitRates creates a hit-rate snapshot service. window is the number
// of most recent resolved predictions per type that feed the rate.
func NewHitRates(repo HitRateRepo, store SnapshotCache, keys cache.Keys, window int, log *slog.Logger) *HitRates {
	return &HitRates{repo: repo, store: store, keys: keys, window: window, log: log}
}

// Snapshot returns the hit rate of one stream, from cache when fresh.
func (h *HitRates) Snapshot(ctx context.Context, typ model.PredictionType) (*model.HitRate, error) {
	key := h.keys.WinRate(string(typ))

	if payload, err := h.store.Get(ctx, key); err == nil {
		var hr model.HitRate
		if err := json.Unmarshal(payload, &hr); err == nil {
			return &hr, nil
		}

		h.log.Warn("corrupt hit-rate snapshot dropped", "type", typ)
		_ = h.store.Delete(ctx, key)
	}

	hr, err := h.repo.HitRate(ctx, typ, h.window)
	if err != nil {
		return nil, fmt.Errorf("hit rate %s: %w", typ, err)
	}

	if payload, err := json.Marshal(hr); err == nil {
		if err := h.store.Set(ctx, key, payload, WinRateTTL); err != nil {
			h.log.Warn("hit-rate snapshot not cached", "type", typ, "error", err)
		}
	}

	return hr, nil
}

// Refresh recomputes and re-caches every stream's snapshot. The cache
// manager calls it after a full prediction round resolves.
func (h *HitRates) Refresh(ctx context.Context) {
	for _, typ := range model.PredictionTypes {
		key := h.keys.WinRate(string(typ))

		hr, err := h.repo.HitRate(ctx, typ, h.window)
		if err != nil {
			h.log.Warn("hit-rate refresh failed", "type", typ, "error", err)

			continue
		}

		payload, err := json.Marshal(hr)
		if err != nil {
			continue
		}

		if err := h.store.Set(ctx, key, payload, WinRateTTL); err != nil {
			h.log.Warn("hit-rate refresh not cached", "type", typ, "error", err)
		}
	}
}

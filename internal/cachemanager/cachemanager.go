// Package cachemanager keeps the read-side cache coherent with the
// stores: committed draws invalidate the draw-derived payloads,
// committed predictions invalidate their stream's payloads, and a
// completed prediction round refreshes the hit-rate snapshots.
package cachemanager

import (
	"context"
	"log/slog"
	"sync"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/ingest"
)

// Invalidator is the slice of the cache store the manager needs.
type Invalidator interface {
	Delete(ctx context.Context, keys ...string) error
	ScanDelete(ctx context.Context, pattern string) (int, error)
}

// Refresher re-warms derived snapshots after a prediction round.
type Refresher interface {
	Refresh(ctx context.Context)
}

// Manager consumes post-commit events and invalidates stale payloads.
// Every invalidation is best effort: a missed delete only extends a
// payload's staleness until its TTL.
type Manager struct {
	store    Invalidator
	keys     cache.Keys
	hitRates Refresher
	log      *slog.Logger
}

// New creates a cache manager.
func New(store Invalidator, keys cache.Keys, hitRates Refresher, log *slog.Logger) *Manager {
	return &Manager{store: store, keys: keys, hitRates: hitRates, log: log}
}

// Run consumes all three event streams until ctx is cancelled or every
// channel closes.
func (m *Manager) Run(
	ctx context.Context,
	draws <-chan ingest.DrawCommitted,
	predictions <-chan ingest.PredictionCommitted,
	done <-chan ingest.PredictionsDone,
) {
	for draws != nil || predictions != nil || done != nil {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-draws:
			if !ok {
				draws = nil

				continue
			}

			m.OnDrawCommitted(ctx, ev.Draw.Issue)
		case ev, ok := <-predictions:
			if !ok {
				predictions = nil

				continue
			}

			m.OnPredictionCommitted(ctx, string(ev.Type))
		case ev, ok := <-done:
			if !ok {
				done = nil

				continue
			}

			m.OnPredictionsDone(ctx, ev.Issue)
		}
	}
}

// OnDrawCommitted drops every payload derived from draw data: the
// latest-draws variants, the omission and daily snapshots and the
// export artifacts. The four sweeps run in parallel.
func (m *Manager) OnDrawCommitted(ctx context.Context, issue string) {
	patterns := []string{
		m.keys.LatestDrawsPattern(),
		m.keys.ExcelLotteryPattern(),
		m.keys.ExcelStatsPattern(),
	}

	var wg sync.WaitGroup

	for _, pattern := range patterns {
		wg.Add(1)

		go func(pattern string) {
			defer wg.Done()

			if _, err := m.store.ScanDelete(ctx, pattern); err != nil {
				m.log.Warn("cache sweep failed", "pattern", pattern, "issue", issue, "error", err)
			}
		}(pattern)
	}

	wg.Add(1)

	go func() {
		defer wg.Done()

		if err := m.store.Delete(ctx, m.keys.Omission(), m.keys.DailyStats()); err != nil {
			m.log.Warn("cache invalidate failed", "issue", issue, "error", err)
		}
	}()

	wg.Wait()
}

// OnPredictionCommitted drops the payload variants of one prediction
// stream.
func (m *Manager) OnPredictionCommitted(ctx context.Context, predictType string) {
	pattern := m.keys.PredictionPattern(predictType)

	if _, err := m.store.ScanDelete(ctx, pattern); err != nil {
		m.log.Warn("cache sweep failed", "pattern", pattern, "error", err)
	}
}

// OnPredictionsDone refreshes the hit-rate snapshots once a full round
// is committed.
func (m *Manager) OnPredictionsDone(ctx context.Context, issue string) {
	m.hitRates.Refresh(ctx)

	m.log.Debug("hit-rate snapshots refreshed", "issue", issue)
}

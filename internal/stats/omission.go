// Package stats implements the two derived-statistics engines fed by
// committed draws: rolling omission counters over the closed category
// set and per-day category tallies with idempotent increments.
package stats

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/04By0302/jnd-vps/internal/model"
)

// bootstrapPageSize is the page size of the newest-first history scan
// that seeds the omission counters.
const bootstrapPageSize = 500

// DrawPager pages committed draws newest first.
type DrawPager interface {
	Page(ctx context.Context, offset, limit int) ([]model.Draw, error)
}

// OmissionRepo persists the counter snapshot.
type OmissionRepo interface {
	InitCounters(ctx context.Context) error
	All(ctx context.Context) (map[string]int, error)
	ApplyBatch(ctx context.Context, counters map[string]int) error
	ResetAll(ctx context.Context) error
}

// OmissionEngine maintains one counter per category: the number of
// committed draws since the category last held. The in-memory snapshot
// is authoritative between restarts; persistence is a write-through.
type OmissionEngine struct {
	draws DrawPager
	repo  OmissionRepo
	log   *slog.Logger

	bootstrapCap int

	mu       sync.Mutex
	counters map[string]int
}

// NewOmissionEngine creates an omission engine. bootstrapCap bounds the
// history scan used to seed counters.
func NewOmissionEngine(draws DrawPager, repo OmissionRepo, bootstrapCap int, log *slog.Logger) *OmissionEngine {
	return &OmissionEngine{
		draws:        draws,
		repo:         repo,
		log:          log,
		bootstrapCap: bootstrapCap,
		counters:     make(map[string]int, len(model.AllCategories())),
	}
}

// Initialize loads the persisted counters, creating zero rows for any
// missing category first.
func (e *OmissionEngine) Initialize(ctx context.Context) error {
	if err := e.repo.InitCounters(ctx); err != nil {
		return err
	}

	counters, err := e.repo.All(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cat := range model.AllCategories() {
		e.counters[cat] = counters[cat]
	}

	return nil
}

// Bootstrap recomputes every counter from draw history: a newest-first
// scan where each counter becomes the number of draws seen before the
// category first held, capped at bootstrapCap. Categories never seen
// within the cap keep the cap as their counter.
func (e *OmissionEngine) Bootstrap(ctx context.Context) error {
	pending := make(map[string]bool, len(model.AllCategories()))
	for _, cat := range model.AllCategories() {
		pending[cat] = true
	}

	counters := make(map[string]int, len(pending))
	scanned := 0

	for scanned < e.bootstrapCap && len(pending) > 0 {
		limit := min(bootstrapPageSize, e.bootstrapCap-scanned)

		page, err := e.draws.Page(ctx, scanned, limit)
		if err != nil {
			return fmt.Errorf("omission bootstrap: %w", err)
		}

		if len(page) == 0 {
			break
		}

		for i := range page {
			for cat := range model.HeldCategories(&page[i]) {
				if pending[cat] {
					counters[cat] = scanned
					delete(pending, cat)
				}
			}

			scanned++
		}
	}

	for cat := range pending {
		counters[cat] = scanned
	}

	if err := e.repo.ApplyBatch(ctx, counters); err != nil {
		return fmt.Errorf("omission bootstrap: %w", err)
	}

	e.mu.Lock()
	e.counters = counters
	e.mu.Unlock()

	e.log.Info("omission counters bootstrapped", "scanned", scanned)

	return nil
}

// Apply folds one committed draw into the counters: held categories
// reset to zero, all others increment by one. The full snapshot is
// persisted in one statement. The upstream dedup funnel guarantees at
// most one Apply per issue.
func (e *OmissionEngine) Apply(ctx context.Context, d *model.Draw) error {
	held := model.HeldCategories(d)

	e.mu.Lock()

	for _, cat := range model.AllCategories() {
		if held[cat] {
			e.counters[cat] = 0
		} else {
			e.counters[cat]++
		}
	}

	snapshot := make(map[string]int, len(e.counters))
	for cat, n := range e.counters {
		snapshot[cat] = n
	}

	e.mu.Unlock()

	if err := e.repo.ApplyBatch(ctx, snapshot); err != nil {
		return fmt.Errorf("omission apply %s: %w", d.Issue, err)
	}

	return nil
}

// Snapshot returns a copy of the current counters.
func (e *OmissionEngine) Snapshot() map[string]int {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]int, len(e.counters))
	for cat, n := range e.counters {
		out[cat] = n
	}

	return out
}

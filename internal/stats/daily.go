package stats

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/model"
)

// statsZone is the fixed wall-clock zone the date keys are computed in.
var statsZone = time.FixedZone("UTC+8", 8*3600)

// DateOf returns the daily-stats date key of an instant.
func DateOf(t time.Time) string {
	return t.In(statsZone).Format("2006-01-02")
}

// untilMidnight returns the remaining life of a same-day marker.
func untilMidnight(now time.Time) time.Duration {
	local := now.In(statsZone)
	midnight := time.Date(local.Year(), local.Month(), local.Day()+1, 0, 0, 0, 0, statsZone)

	return midnight.Sub(local)
}

// DailyRepo persists per-date category tallies.
type DailyRepo interface {
	IncrementHeld(ctx context.Context, date string, held []string) error
	ReplaceCounts(ctx context.Context, date string, counts map[string]int) error
	TruncateDate(ctx context.Context, date string) error
	CountsByDate(ctx context.Context, date string) (map[string]int, error)
}

// DateReader loads all draws of one date oldest first.
type DateReader interface {
	ByDate(ctx context.Context, date string) ([]model.Draw, error)
}

// Marker is the slice of the cache store the idempotency markers need.
type Marker interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	ScanDelete(ctx context.Context, pattern string) (int, error)
	Healthy() bool
}

// DailyEngine tallies held categories per calendar day. A per-issue
// cache marker makes the increment idempotent across restarts; when the
// cache is down the engine leans on the upstream dedup funnel and
// increments anyway.
type DailyEngine struct {
	repo   DailyRepo
	draws  DateReader
	marker Marker
	keys   cache.Keys
	log    *slog.Logger

	now func() time.Time
}

// NewDailyEngine creates a daily stats engine.
func NewDailyEngine(repo DailyRepo, draws DateReader, marker Marker, keys cache.Keys, log *slog.Logger) *DailyEngine {
	return &DailyEngine{
		repo:   repo,
		draws:  draws,
		marker: marker,
		keys:   keys,
		log:    log,
		now:    time.Now,
	}
}

// Apply folds one committed draw into its date's tallies. A second
// Apply for the same issue on the same date is a silent no-op. The
// marker is written only after the tally lands, so a failed increment
// stays redoable.
func (e *DailyEngine) Apply(ctx context.Context, d *model.Draw) error {
	date := DateOf(d.OpenTime)
	key := e.keys.TodayProcessed(date, d.Issue)

	if e.marker.Healthy() {
		_, err := e.marker.Get(ctx, key)
		if err == nil {
			return nil
		}

		if !errors.Is(err, cache.ErrMiss) {
			e.log.Warn("daily marker unavailable", "issue", d.Issue, "error", err)
		}
	}

	if err := e.repo.IncrementHeld(ctx, date, heldList(d)); err != nil {
		return fmt.Errorf("daily apply %s: %w", d.Issue, err)
	}

	if e.marker.Healthy() {
		if err := e.marker.Set(ctx, key, []byte("1"), untilMidnight(e.now())); err != nil {
			e.log.Warn("daily marker write failed", "issue", d.Issue, "error", err)
		}
	}

	return nil
}

// Rebuild recomputes one date's tallies from the authoritative draw
// rows: truncate, re-tally oldest first, write absolute counts, and
// clear the date's idempotency markers.
func (e *DailyEngine) Rebuild(ctx context.Context, date string) error {
	draws, err := e.draws.ByDate(ctx, date)
	if err != nil {
		return fmt.Errorf("daily rebuild %s: %w", date, err)
	}

	if err := e.repo.TruncateDate(ctx, date); err != nil {
		return fmt.Errorf("daily rebuild %s: %w", date, err)
	}

	counts := make(map[string]int)

	for i := range draws {
		for _, cat := range heldList(&draws[i]) {
			counts[cat]++
		}
	}

	if err := e.repo.ReplaceCounts(ctx, date, counts); err != nil {
		return fmt.Errorf("daily rebuild %s: %w", date, err)
	}

	if _, err := e.marker.ScanDelete(ctx, e.keys.TodayProcessedPattern(date)); err != nil {
		e.log.Warn("daily marker sweep failed", "date", date, "error", err)
	}

	e.log.Info("daily stats rebuilt", "date", date, "draws", len(draws), "categories", len(counts))

	return nil
}

// Counts returns one date's tallies from the repository.
func (e *DailyEngine) Counts(ctx context.Context, date string) (map[string]int, error) {
	return e.repo.CountsByDate(ctx, date)
}

// heldList returns the held categories of a draw in a stable order.
func heldList(d *model.Draw) []string {
	held := model.HeldCategories(d)

	list := make([]string, 0, len(held))
	for cat := range held {
		list = append(list, cat)
	}

	sort.Strings(list)

	return list
}

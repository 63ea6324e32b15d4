package ingest

import (
	"context"
	"log/slog"
	"time"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/dedup"
	"github.com/04By0302/jnd-vps/internal/enrich"
	"github.com/04By0302/jnd-vps/internal/model"
)

// IssueTracker is the fast-path high-water-mark filter.
type IssueTracker interface {
	IsNew(issue string) bool
	Update(issue string)
}

// Seen is the distributed seen-set layer.
type Seen interface {
	Contains(ctx context.Context, issue string) bool
	MarkSeen(ctx context.Context, issue string)
	LastIssue(ctx context.Context) (string, error)
}

// Locker is the distributed per-issue lock layer.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool)
}

// Applier folds one committed draw into a derived-statistics engine.
type Applier interface {
	Apply(ctx context.Context, d *model.Draw) error
}

// Coordinator walks every polled raw draw through the dedup funnel,
// validation, enrichment and the durable write, then runs the awaited
// statistics updates and fans the commit out on the bus.
type Coordinator struct {
	tracker  IssueTracker
	seen     Seen
	locks    Locker
	keys     cache.Keys
	writer   *Writer
	omission Applier
	daily    Applier
	bus      *Bus
	log      *slog.Logger

	now func() time.Time
}

// NewCoordinator wires the commit path.
func NewCoordinator(
	tracker IssueTracker,
	seen Seen,
	locks Locker,
	keys cache.Keys,
	writer *Writer,
	omission Applier,
	daily Applier,
	bus *Bus,
	log *slog.Logger,
) *Coordinator {
	return &Coordinator{
		tracker:  tracker,
		seen:     seen,
		locks:    locks,
		keys:     keys,
		writer:   writer,
		omission: omission,
		daily:    daily,
		bus:      bus,
		log:      log,
		now:      time.Now,
	}
}

// Run consumes raw draws until the channel closes or ctx is cancelled.
func (c *Coordinator) Run(ctx context.Context, in <-chan model.RawDraw) {
	for {
		select {
		case <-ctx.Done():
			return
		case raw, ok := <-in:
			if !ok {
				return
			}

			if _, err := c.Process(ctx, raw); err != nil {
				c.log.Error("draw commit failed", "issue", raw.Issue, "source", raw.Source, "error", err)
			}
		}
	}
}

// Process runs one raw draw through the full commit sequence. It
// reports whether the draw was committed; a false with nil error means
// the funnel filtered it as a duplicate or another worker owns it.
func (c *Coordinator) Process(ctx context.Context, raw model.RawDraw) (bool, error) {
	if !c.tracker.IsNew(raw.Issue) {
		return false, nil
	}

	if c.seen.Contains(ctx, raw.Issue) {
		return false, nil
	}

	release, ok := c.locks.TryLock(ctx, c.keys.LockIssue(raw.Issue), dedup.WriteLockTTL)
	if !ok {
		return false, nil
	}
	defer release()

	// Another worker may have committed between the first check and the
	// lock grant.
	if c.seen.Contains(ctx, raw.Issue) {
		return false, nil
	}

	// Issues are expected to advance. A draw at or below the last
	// committed issue is suspicious but still committable (backfill,
	// source replay), so it only warns.
	if last, err := c.seen.LastIssue(ctx); err == nil && last != "" && raw.Issue <= last {
		c.log.Warn("issue does not advance", "issue", raw.Issue, "last", last, "source", raw.Source)
	}

	openTime, err := Validate(raw, c.now())
	if err != nil {
		c.log.Warn("raw draw rejected", "issue", raw.Issue, "source", raw.Source, "error", err)

		return false, nil
	}

	d, err := enrich.Draw(raw, openTime)
	if err != nil {
		c.log.Warn("raw draw rejected", "issue", raw.Issue, "source", raw.Source, "error", err)

		return false, nil
	}

	if err := c.writer.Write(ctx, d); err != nil {
		return false, err
	}

	// Awaited: the read APIs serve these, so they settle before the
	// issue is marked seen and the commit is announced. A failure here
	// never unwinds the commit.
	if err := c.omission.Apply(ctx, d); err != nil {
		c.log.Error("omission update failed", "issue", d.Issue, "error", err)
	}

	if err := c.daily.Apply(ctx, d); err != nil {
		c.log.Error("daily stats update failed", "issue", d.Issue, "error", err)
	}

	c.seen.MarkSeen(ctx, d.Issue)
	c.tracker.Update(d.Issue)

	c.bus.PublishDraw(DrawCommitted{Draw: d})

	c.log.Info("draw committed",
		"issue", d.Issue, "nums", d.OpenNums, "sum", d.Sum, "source", d.Source)

	return true, nil
}

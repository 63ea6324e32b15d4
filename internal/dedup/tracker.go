// Package dedup implements the three-layer deduplication funnel: the
// in-process latest-issue tracker, the distributed seen-set with local
// fallback, and the distributed per-issue lock service.
package dedup

import (
	"context"
	"log/slog"
	"sync"

	"github.com/04By0302/jnd-vps/internal/model"
)

// MaxIssueReader reads the highest committed issue from the draw store.
type MaxIssueReader interface {
	MaxIssue(ctx context.Context) (string, error)
}

// Tracker is the process-local high-water mark over committed issues.
// It is the only fast-path filter: it absorbs the thundering herd of N
// pollers observing the same published issue so that only the first
// caller reaches the distributed layer.
type Tracker struct {
	mu      sync.Mutex
	current int64
	ready   bool
	log     *slog.Logger
}

// NewTracker creates an uninitialized tracker.
func NewTracker(log *slog.Logger) *Tracker {
	return &Tracker{log: log}
}

// Initialize reads the maximum committed issue from the draw store.
// It fails open: on any error the high-water mark stays at zero and the
// tracker records itself unready, so IsNew never filters until the first
// successful Update.
func (t *Tracker) Initialize(ctx context.Context, store MaxIssueReader) {
	issue, err := store.MaxIssue(ctx)
	if err != nil || issue == "" {
		t.log.Warn("issue tracker starting unready", "error", err)

		return
	}

	n, err := model.IssueInt(issue)
	if err != nil {
		t.log.Warn("issue tracker starting unready", "error", err)

		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.current = n
	t.ready = true
}

// IsNew reports whether the issue is strictly newer than the high-water
// mark. An unready tracker never filters; an unparsable issue is left
// for validation to reject.
func (t *Tracker) IsNew(issue string) bool {
	n, err := model.IssueInt(issue)
	if err != nil {
		return true
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.ready {
		return true
	}

	return n > t.current
}

// Update raises the high-water mark. Non-increasing updates are ignored
// with a warning.
func (t *Tracker) Update(issue string) {
	n, err := model.IssueInt(issue)
	if err != nil {
		t.log.Warn("issue tracker update ignored", "issue", issue, "error", err)

		return
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ready && n <= t.current {
		t.log.Warn("non-monotone issue tracker update ignored",
			"issue", issue, "current", t.current)

		return
	}

	t.current = n
	t.ready = true
}

// Current returns the high-water mark as an issue-ordered integer, and
// whether the tracker is ready.
func (t *Tracker) Current() (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	return t.current, t.ready
}

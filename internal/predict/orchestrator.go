package predict

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/config"
	"github.com/04By0302/jnd-vps/internal/dedup"
	"github.com/04By0302/jnd-vps/internal/ingest"
	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/stats"
)

// HistoryReader loads recent committed draws newest first.
type HistoryReader interface {
	Latest(ctx context.Context, limit int) ([]model.Draw, error)
}

// CountsReader loads one date's category tallies.
type CountsReader interface {
	Counts(ctx context.Context, date string) (map[string]int, error)
}

// PredictionRepo is the slice of the prediction store the orchestrator
// needs.
type PredictionRepo interface {
	Upsert(ctx context.Context, p *model.Prediction) error
	RecentValues(ctx context.Context, typ model.PredictionType, limit int) ([]string, error)
}

// Locker is the distributed lock layer the orchestrator coordinates
// through.
type Locker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (release func(), ok bool)
}

// Orchestrator runs the four prediction streams for the issue that
// follows each committed draw. The whole workflow is fire-and-forget
// from the commit path's perspective: a failed stream is logged and
// skipped, never retried into the commit sequence.
type Orchestrator struct {
	history HistoryReader
	counts  CountsReader
	repo    PredictionRepo
	llm     Chatter
	locks   Locker
	keys    cache.Keys
	bus     *ingest.Bus
	cfg     config.PredictConfig
	log     *slog.Logger

	now func() time.Time
}

// NewOrchestrator wires the prediction workflow.
func NewOrchestrator(
	history HistoryReader,
	counts CountsReader,
	repo PredictionRepo,
	llm Chatter,
	locks Locker,
	keys cache.Keys,
	bus *ingest.Bus,
	cfg config.PredictConfig,
	log *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		history: history,
		counts:  counts,
		repo:    repo,
		llm:     llm,
		locks:   locks,
		keys:    keys,
		bus:     bus,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Run consumes committed draws until the channel closes or ctx is
// cancelled. Each draw dispatches asynchronously so a slow LLM round
// trip never delays consumption.
func (o *Orchestrator) Run(ctx context.Context, draws <-chan ingest.DrawCommitted) {
	var wg sync.WaitGroup

	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-draws:
			if !ok {
				return
			}

			wg.Add(1)

			go func(d *model.Draw) {
				defer wg.Done()
				o.PredictAfter(ctx, d)
			}(ev.Draw)
		}
	}
}

// PredictAfter runs all four streams for the issue following the
// committed draw. The per-target prediction lock makes the workflow
// single-flight across processes.
func (o *Orchestrator) PredictAfter(ctx context.Context, d *model.Draw) {
	target, err := model.NextIssue(d.Issue)
	if err != nil {
		o.log.Warn("prediction target underivable", "issue", d.Issue, "error", err)

		return
	}

	release, ok := o.locks.TryLock(ctx, o.keys.PredictLock(target), dedup.PredictLockTTL)
	if !ok {
		return
	}
	defer release()

	history, err := o.history.Latest(ctx, o.cfg.HistoryWindow)
	if err != nil {
		o.log.Error("prediction history unavailable", "target", target, "error", err)

		return
	}

	todayCounts, err := o.counts.Counts(ctx, stats.DateOf(o.now()))
	if err != nil {
		o.log.Warn("today stats unavailable for prompt", "target", target, "error", err)

		todayCounts = nil
	}

	var (
		wg        sync.WaitGroup
		committed atomic.Int32
	)

	for _, typ := range model.PredictionTypes {
		wg.Add(1)

		go func(typ model.PredictionType) {
			defer wg.Done()

			if o.runStream(ctx, typ, target, history, todayCounts) {
				committed.Add(1)
			}
		}(typ)
	}

	wg.Wait()

	// The round is done even when streams failed; failed streams simply
	// never produced a PredictionCommitted.
	o.bus.PublishPredictionsDone(ingest.PredictionsDone{Issue: target})

	o.log.Info("prediction round finished",
		"target", target, "committed", committed.Load(), "streams", len(model.PredictionTypes))
}

// runStream executes one prediction stream end to end and reports
// whether its prediction was persisted.
func (o *Orchestrator) runStream(
	ctx context.Context,
	typ model.PredictionType,
	target string,
	history []model.Draw,
	todayCounts map[string]int,
) bool {
	start := time.Now()

	recent, err := o.repo.RecentValues(ctx, typ, o.cfg.BiasWindow)
	if err != nil {
		o.log.Warn("recent predictions unavailable for bias check",
			"target", target, "type", typ, "error", err)

		recent = nil
	}

	prompt := BuildPrompt(typ, PromptData{
		Target:        target,
		History:       history,
		TodayCounts:   todayCounts,
		RecentValues:  recent,
		BiasThreshold: o.cfg.BiasThreshold,
		BiasWindow:    o.cfg.BiasWindow,
	})

	reply, err := o.llm.Chat(ctx, prompt)
	if err != nil {
		o.log.Error("prediction stream failed", "target", target, "type", typ, "error", err)

		return false
	}

	value, err := ParseReply(typ, reply)
	if err != nil {
		o.log.Error("prediction stream failed", "target", target, "type", typ, "error", err)

		return false
	}

	p := &model.Prediction{Issue: target, Type: typ, PredictedValue: value}

	if err := o.repo.Upsert(ctx, p); err != nil {
		o.log.Error("prediction persist failed", "target", target, "type", typ, "error", err)

		return false
	}

	o.bus.PublishPrediction(ingest.PredictionCommitted{
		Issue:      target,
		Type:       typ,
		Value:      value,
		DurationMS: time.Since(start).Milliseconds(),
	})

	return true
}

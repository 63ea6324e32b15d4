// Package app assembles the full pipeline: pollers feeding the ingest
// coordinator, the dedup funnel, the statistics engines, the prediction
// workflow, the cache manager and the read API, with ordered shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/04By0302/jnd-vps/internal/api"
	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/cachemanager"
	"github.com/04By0302/jnd-vps/internal/config"
	"github.com/04By0302/jnd-vps/internal/dedup"
	"github.com/04By0302/jnd-vps/internal/ingest"
	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/observability"
	"github.com/04By0302/jnd-vps/internal/poller"
	"github.com/04By0302/jnd-vps/internal/predict"
	"github.com/04By0302/jnd-vps/internal/stats"
	"github.com/04By0302/jnd-vps/internal/storage"
)

// Cache health probe cadence.
const (
	cacheHealthyProbe   = 30 * time.Second
	cacheUnhealthyProbe = 2 * time.Second
)

// rawBuffer is the depth of the shared poller-to-coordinator channel.
const rawBuffer = 256

// App is the assembled service.
type App struct {
	cfg *config.Config
	log *slog.Logger

	pools    *storage.Pools
	store    *cache.Store
	local    *cache.LocalSet
	keys     cache.Keys
	metrics  *observability.Metrics
	bus      *ingest.Bus
	tracker  *dedup.Tracker
	omission *stats.OmissionEngine
	daily    *stats.DailyEngine
	coord    *ingest.Coordinator
	server   *api.Server
	pollers  []*poller.Poller
	raw      chan model.RawDraw

	orchestrator *predict.Orchestrator
	verifier     *predict.Verifier
	manager      *cachemanager.Manager
}

// New wires the service. Startup is fatal on an unreachable database;
// everything else degrades at runtime instead of failing here.
func New(ctx context.Context, cfg *config.Config, log *slog.Logger) (*App, error) {
	pools, err := storage.OpenPools(ctx, cfg.MySQL, log)
	if err != nil {
		return nil, err
	}

	if err := storage.EnsureSchema(ctx, pools); err != nil {
		_ = pools.Close()

		return nil, err
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})

	store := cache.NewStore(redisClient, log)
	keys := cache.NewKeys(cfg.Redis.Prefix)

	local, err := cache.NewLocalSet(
		filepath.Join(cfg.Dedup.SnapshotDir, "seen.json"),
		cfg.Dedup.LocalSeenLimit,
		dedup.SeenTTL,
	)
	if err != nil {
		_ = pools.Close()

		return nil, fmt.Errorf("local seen set: %w", err)
	}

	drawStore := storage.NewDrawStore(pools)
	omissionStore := storage.NewOmissionStore(pools)
	dailyStore := storage.NewDailyStore(pools)
	predictionStore := storage.NewPredictionStore(pools)

	tracker := dedup.NewTracker(log)
	tracker.Initialize(ctx, drawStore)

	seen := dedup.NewSeenSet(store, keys, local, log)
	locks := dedup.NewLockService(store, log)

	omission := stats.NewOmissionEngine(drawStore, omissionStore, cfg.Stats.BootstrapCap, log)
	if err := omission.Initialize(ctx); err != nil {
		_ = pools.Close()

		return nil, fmt.Errorf("omission engine: %w", err)
	}

	if allZero(omission.Snapshot()) {
		if err := omission.Bootstrap(ctx); err != nil {
			log.Warn("omission bootstrap failed, counters start cold", "error", err)
		}
	}

	daily := stats.NewDailyEngine(dailyStore, drawStore, store, keys, log)

	metrics := observability.NewMetrics()
	bus := ingest.NewBus(log)
	writer := ingest.NewWriter(drawStore, log)
	coord := ingest.NewCoordinator(tracker, seen, locks, keys, writer, omission, daily, bus, log)

	raw := make(chan model.RawDraw, rawBuffer)

	pollers := make([]*poller.Poller, 0, len(cfg.Sources))

	for _, src := range cfg.Sources {
		p, err := poller.New(src, raw, log)
		if err != nil {
			_ = pools.Close()

			return nil, fmt.Errorf("source %s: %w", src.Name, err)
		}

		pollers = append(pollers, p)
	}

	hitRates := predict.NewHitRates(predictionStore, store, keys, cfg.Predict.HitRateWindow, log)

	var orchestrator *predict.Orchestrator

	if cfg.Predict.Enabled {
		llm := &instrumentedChatter{inner: predict.NewClient(cfg.Predict), metrics: metrics}
		orchestrator = predict.NewOrchestrator(
			drawStore, daily, predictionStore, llm, locks, keys, bus, cfg.Predict, log)
	}

	verifier := predict.NewVerifier(predictionStore, log)
	manager := cachemanager.New(store, keys, hitRates, log)

	server := api.NewServer(
		drawStore, omission, daily, predictionStore, hitRates,
		store, keys, metrics,
		[]observability.ReadyCheck{pools.Ready, store.Ping},
		log,
	)

	return &App{
		cfg:          cfg,
		log:          log,
		pools:        pools,
		store:        store,
		local:        local,
		keys:         keys,
		metrics:      metrics,
		bus:          bus,
		tracker:      tracker,
		omission:     omission,
		daily:        daily,
		coord:        coord,
		server:       server,
		pollers:      pollers,
		raw:          raw,
		orchestrator: orchestrator,
		verifier:     verifier,
		manager:      manager,
	}, nil
}

// Run starts every component and blocks until ctx is cancelled, then
// shuts down in dependency order: pollers first so no new work arrives,
// then the commit path drains, the bus closes, the HTTP listener stops
// and finally the stores close.
func (a *App) Run(ctx context.Context) error {
	// Detached from ctx so the commit path can drain in-flight draws
	// after the stop signal; cancel fires once draining is done.
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	defer cancel()

	var background sync.WaitGroup

	background.Add(1)

	go func() {
		defer background.Done()
		a.pools.StartHealthLoop(runCtx)
	}()

	background.Add(1)

	go func() {
		defer background.Done()
		a.store.StartHealthLoop(runCtx, cacheHealthyProbe, cacheUnhealthyProbe)
	}()

	flushDone := make(chan struct{})

	background.Add(1)

	go func() {
		defer background.Done()
		a.local.StartFlushLoop(flushDone, cache.DefaultFlushInterval)
	}()

	background.Add(1)

	go func() {
		defer background.Done()
		a.watchHealthGauges(runCtx)
	}()

	// Event consumers subscribe before the first commit can publish.
	verifierCh := a.bus.SubscribeDraws()
	managerDraws := a.bus.SubscribeDraws()
	managerPreds := a.bus.SubscribePredictions()
	managerDone := a.bus.SubscribePredictionsDone()
	metricsDraws := a.bus.SubscribeDraws()
	metricsPreds := a.bus.SubscribePredictions()

	var consumers sync.WaitGroup

	consumers.Add(1)

	go func() {
		defer consumers.Done()
		a.verifier.Run(runCtx, verifierCh)
	}()

	consumers.Add(1)

	go func() {
		defer consumers.Done()
		a.manager.Run(runCtx, managerDraws, managerPreds, managerDone)
	}()

	consumers.Add(1)

	go func() {
		defer consumers.Done()
		a.countEvents(runCtx, metricsDraws, metricsPreds)
	}()

	if a.orchestrator != nil {
		orchCh := a.bus.SubscribeDraws()

		consumers.Add(1)

		go func() {
			defer consumers.Done()
			a.orchestrator.Run(runCtx, orchCh)
		}()
	}

	var commit sync.WaitGroup

	commit.Add(1)

	go func() {
		defer commit.Done()
		a.coord.Run(runCtx, a.raw)
	}()

	httpErr := make(chan error, 1)

	if a.cfg.HTTP.Enabled {
		go func() {
			httpErr <- a.server.ListenAndServe(runCtx, a.cfg.HTTP)
		}()
	}

	for _, p := range a.pollers {
		p.Start(runCtx)
	}

	a.log.Info("pipeline started",
		"sources", len(a.pollers), "predict", a.orchestrator != nil, "http", a.cfg.HTTP.Enabled)

	var serveErr error

	select {
	case <-ctx.Done():
	case serveErr = <-httpErr:
		if serveErr != nil {
			a.log.Error("http listener failed", "error", serveErr)
		}
	}

	// Shutdown: stop intake, drain the commit path, then tear down.
	for _, p := range a.pollers {
		p.Stop()
	}

	close(a.raw)
	commit.Wait()

	a.bus.Close()
	cancel()
	consumers.Wait()

	close(flushDone)
	background.Wait()

	if err := a.local.Flush(); err != nil {
		a.log.Warn("local seen set final flush failed", "error", err)
	}

	if err := a.pools.Close(); err != nil {
		a.log.Warn("database close failed", "error", err)
	}

	a.log.Info("pipeline stopped")

	return serveErr
}

// RebuildDaily recomputes one date's statistics from the draw rows.
func (a *App) RebuildDaily(ctx context.Context, date string) error {
	return a.daily.Rebuild(ctx, date)
}

// countEvents keeps the commit counters current from bus traffic.
func (a *App) countEvents(
	ctx context.Context,
	draws <-chan ingest.DrawCommitted,
	predictions <-chan ingest.PredictionCommitted,
) {
	for draws != nil || predictions != nil {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-draws:
			if !ok {
				draws = nil

				continue
			}

			a.metrics.DrawsCommitted.Inc()
		case ev, ok := <-predictions:
			if !ok {
				predictions = nil

				continue
			}

			a.metrics.Predictions.WithLabelValues(string(ev.Type)).Inc()
		}
	}
}

// watchHealthGauges mirrors the dependency health flags into gauges.
func (a *App) watchHealthGauges(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.metrics.MySQLHealthy.Set(boolGauge(a.pools.Healthy()))
			a.metrics.RedisHealthy.Set(boolGauge(a.store.Healthy()))
		}
	}
}

// instrumentedChatter wraps the LLM client with request metrics.
type instrumentedChatter struct {
	inner   predict.Chatter
	metrics *observability.Metrics
}

func (c *instrumentedChatter) Chat(ctx context.Context, prompt string) (string, error) {
	start := time.Now()

	reply, err := c.inner.Chat(ctx, prompt)

	c.metrics.LLMDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		c.metrics.LLMRequests.WithLabelValues(observability.StatusError).Inc()

		return "", err
	}

	c.metrics.LLMRequests.WithLabelValues(observability.StatusOK).Inc()

	return reply, nil
}

func boolGauge(healthy bool) float64 {
	if healthy {
		return 1
	}

	return 0
}

func allZero(counters map[string]int) bool {
	for _, n := range counters {
		if n != 0 {
			return false
		}
	}

	return true
}

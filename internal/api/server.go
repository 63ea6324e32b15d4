// Package api serves the thin read surface over the committed data:
// recent draws, omission counters, today's statistics, predictions and
// hit rates. Every payload endpoint reads through the cache; the cache
// manager keeps those payloads coherent with the stores.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/config"
	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/observability"
)

// Request handling deadlines. Health probes get a tighter budget so a
// stuck dependency shows up fast.
const (
	requestTimeout = 30 * time.Second
	healthTimeout  = 5 * time.Second
)

// Payload cache lifetimes. The commit-driven invalidation usually
// retires payloads long before these expire.
const (
	drawsTTL       = 5 * time.Minute
	snapshotTTL    = 5 * time.Minute
	predictionsTTL = 5 * time.Minute
)

// Result limits for the list endpoints.
const (
	defaultLimit = 10
	maxLimit     = 200
)

// DrawReader serves the latest committed draws.
type DrawReader interface {
	Latest(ctx context.Context, limit int) ([]model.Draw, error)
}

// OmissionReader serves the current omission counters.
type OmissionReader interface {
	Snapshot() map[string]int
}

// DailyReader serves one date's category tallies.
type DailyReader interface {
	Counts(ctx context.Context, date string) (map[string]int, error)
}

// PredictionReader serves recent predictions of one stream.
type PredictionReader interface {
	Recent(ctx context.Context, typ model.PredictionType, limit int) ([]model.Prediction, error)
}

// HitRateReader serves one stream's hit-rate snapshot.
type HitRateReader interface {
	Snapshot(ctx context.Context, typ model.PredictionType) (*model.HitRate, error)
}

// PayloadCache is the slice of the cache store the read-through needs.
type PayloadCache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Healthy() bool
}

// Server is the read API.
type Server struct {
	draws       DrawReader
	omission    OmissionReader
	daily       DailyReader
	predictions PredictionReader
	hitRates    HitRateReader
	store       PayloadCache
	keys        cache.Keys
	metrics     *observability.Metrics
	log         *slog.Logger

	ready []observability.ReadyCheck
	now   func() time.Time
}

// NewServer wires the read API.
func NewServer(
	draws DrawReader,
	omission OmissionReader,
	daily DailyReader,
	predictions PredictionReader,
	hitRates HitRateReader,
	store PayloadCache,
	keys cache.Keys,
	metrics *observability.Metrics,
	ready []observability.ReadyCheck,
	log *slog.Logger,
) *Server {
	return &Server{
		draws:       draws,
		omission:    omission,
		daily:       daily,
		predictions: predictions,
		hitRates:    hitRates,
		store:       store,
		keys:        keys,
		metrics:     metrics,
		log:         log,
		ready:       ready,
		now:         time.Now,
	}
}

// Router builds the route table.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.Handle("/healthz", http.TimeoutHandler(observability.HealthHandler(), healthTimeout, "timeout")).
		Methods(http.MethodGet)
	r.Handle("/readyz", http.TimeoutHandler(observability.ReadyHandler(s.ready...), healthTimeout, "timeout")).
		Methods(http.MethodGet)
	r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(timeoutMiddleware(requestTimeout))

	api.HandleFunc("/kj", s.handleLatestDraws).Methods(http.MethodGet)
	api.HandleFunc("/yl", s.handleOmission).Methods(http.MethodGet)
	api.HandleFunc("/yk", s.handleDailyStats).Methods(http.MethodGet)
	api.HandleFunc("/predict/{type}", s.handlePredictions).Methods(http.MethodGet)
	api.HandleFunc("/winrate/{type}", s.handleWinRate).Methods(http.MethodGet)

	return r
}

// ListenAndServe runs the HTTP listener until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, cfg config.HTTPConfig) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:           s.Router(),
		ReadHeaderTimeout: healthTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), healthTimeout)
		defer cancel()

		return srv.Shutdown(shutdownCtx)
	}
}

func timeoutMiddleware(d time.Duration) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
			ctx, cancel := context.WithTimeout(hr.Context(), d)
			defer cancel()

			next.ServeHTTP(rw, hr.WithContext(ctx))
		})
	}
}

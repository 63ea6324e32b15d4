// Package observability exposes the Prometheus metrics of the draw
// pipeline and the liveness/readiness handlers.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// LLM request outcome labels.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// llmDurationBuckets covers sub-second replies up to the 20s chat
// deadline with retries.
var llmDurationBuckets = []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60}

// Metrics holds the pipeline's Prometheus instruments on a private
// registry, so repeated construction in tests never collides.
type Metrics struct {
	registry *prometheus.Registry

	DrawsCommitted prometheus.Counter
	Predictions    *prometheus.CounterVec
	LLMRequests    *prometheus.CounterVec
	LLMDuration    prometheus.Histogram
	MySQLHealthy   prometheus.Gauge
	RedisHealthy   prometheus.Gauge
}

// NewMetrics creates and registers all pipeline instruments.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,

		DrawsCommitted: factory.NewCounter(prometheus.CounterOpts{
			Name: "jndvps_draws_committed_total",
			Help: "Draws durably committed to the store.",
		}),
		Predictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jndvps_predictions_committed_total",
			Help: "Predictions persisted, by stream.",
		}, []string{"type"}),
		LLMRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "jndvps_llm_requests_total",
			Help: "Chat completion calls, by outcome.",
		}, []string{"status"}),
		LLMDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "jndvps_llm_request_duration_seconds",
			Help:    "Chat completion round-trip time.",
			Buckets: llmDurationBuckets,
		}),
		MySQLHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jndvps_mysql_healthy",
			Help: "Whether the MySQL pools pass their health probe.",
		}),
		RedisHealthy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "jndvps_redis_healthy",
			Help: "Whether the Redis store passes its health probe.",
		}),
	}
}

// Handler serves the /metrics scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

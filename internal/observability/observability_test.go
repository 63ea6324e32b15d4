package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04By0302/jnd-vps/internal/observability"
)

func TestHealthHandlerAlwaysOK(t *testing.T) {
	rec := httptest.NewRecorder()
	observability.HealthHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestReadyHandlerFailsOnAnyCheck(t *testing.T) {
	pass := func(context.Context) error { return nil }
	fail := func(context.Context) error { return errors.New("down") }

	rec := httptest.NewRecorder()
	observability.ReadyHandler(pass, fail).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unavailable"}`, rec.Body.String())
}

func TestReadyHandlerPassesWithNoChecks(t *testing.T) {
	rec := httptest.NewRecorder()
	observability.ReadyHandler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsScrape(t *testing.T) {
	m := observability.NewMetrics()

	m.DrawsCommitted.Inc()
	m.LLMRequests.WithLabelValues(observability.StatusOK).Inc()
	m.MySQLHealthy.Set(1)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "jndvps_draws_committed_total 1"), body)
	assert.True(t, strings.Contains(body, `jndvps_llm_requests_total{status="ok"} 1`), body)
	assert.True(t, strings.Contains(body, "jndvps_mysql_healthy 1"), body)
}

func TestMetricsPrivateRegistries(t *testing.T) {
	// Two instances must not collide on registration.
	_ = observability.NewMetrics()
	_ = observability.NewMetrics()
}

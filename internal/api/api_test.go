package api_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04By0302/jnd-vps/internal/api"
	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/observability"
)

type fakeDraws struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeDraws) Latest(_ context.Context, limit int) ([]model.Draw, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()

	draws := []model.Draw{{
		Issue: "2025001", OpenNums: "3+5+8", Sum: 16, Combination: "big-even",
		IsBig: true, OpenTime: time.Date(2025, 12, 10, 15, 30, 0, 0, time.UTC),
	}}

	if limit < len(draws) {
		draws = draws[:limit]
	}

	return draws, nil
}

type fakeOmission struct{}

func (fakeOmission) Snapshot() map[string]int {
	return map[string]int{model.CategoryBig: 0, model.CategorySmall: 4}
}

type fakeDaily struct{}

func (fakeDaily) Counts(context.Context, string) (map[string]int, error) {
	return map[string]int{model.CategoryBig: 7}, nil
}

type fakePredictions struct{}

func (fakePredictions) Recent(_ context.Context, typ model.PredictionType, _ int) ([]model.Prediction, error) {
	return []model.Prediction{{Issue: "2025002", Type: typ, PredictedValue: "单", Hit: model.HitTrue}}, nil
}

type fakeHitRates struct{}

func (fakeHitRates) Snapshot(_ context.Context, typ model.PredictionType) (*model.HitRate, error) {
	return &model.HitRate{Type: typ, Total: 100, Hits: 55, Misses: 45, Rate: 0.55}, nil
}

type memPayloadCache struct {
	mu      sync.Mutex
	healthy bool
	data    map[string][]byte
}

func newMemPayloadCache(healthy bool) *memPayloadCache {
	return &memPayloadCache{healthy: healthy, data: map[string][]byte{}}
}

func (m *memPayloadCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}

	return v, nil
}

func (m *memPayloadCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value

	return nil
}

func (m *memPayloadCache) Healthy() bool { return m.healthy }

func newTestServer(store *memPayloadCache, draws *fakeDraws) *api.Server {
	return api.NewServer(
		draws, fakeOmission{}, fakeDaily{}, fakePredictions{}, fakeHitRates{},
		store, cache.NewKeys("project:"), observability.NewMetrics(), nil, slog.Default(),
	)
}

func get(t *testing.T, srv *api.Server, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestLatestDrawsReadThrough(t *testing.T) {
	store := newMemPayloadCache(true)
	draws := &fakeDraws{}
	srv := newTestServer(store, draws)

	rec := get(t, srv, "/api/kj?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload, 1)
	assert.Equal(t, "2025001", payload[0]["issue"])
	assert.Equal(t, "3+5+8", payload[0]["open_nums"])

	// Second hit is served from cache without touching the store.
	rec = get(t, srv, "/api/kj?limit=10")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, draws.calls)

	_, cached := store.data["project:kj:limit:10"]
	assert.True(t, cached)
}

func TestLatestDrawsDegradedCache(t *testing.T) {
	store := newMemPayloadCache(false)
	draws := &fakeDraws{}
	srv := newTestServer(store, draws)

	rec := get(t, srv, "/api/kj")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = get(t, srv, "/api/kj")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 2, draws.calls, "degraded cache reads the store every time")
	assert.Empty(t, store.data)
}

func TestOmissionEndpoint(t *testing.T) {
	srv := newTestServer(newMemPayloadCache(true), &fakeDraws{})

	rec := get(t, srv, "/api/yl")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 4, payload[model.CategorySmall])
}

func TestDailyStatsEndpoint(t *testing.T) {
	srv := newTestServer(newMemPayloadCache(true), &fakeDraws{})

	rec := get(t, srv, "/api/yk")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]int
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.Equal(t, 7, payload[model.CategoryBig])
}

func TestPredictionsEndpoint(t *testing.T) {
	srv := newTestServer(newMemPayloadCache(true), &fakeDraws{})

	rec := get(t, srv, "/api/predict/parity?limit=5")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	require.Len(t, payload, 1)
	assert.Equal(t, "单", payload[0]["predicted_value"])
}

func TestPredictionsUnknownType(t *testing.T) {
	srv := newTestServer(newMemPayloadCache(true), &fakeDraws{})

	rec := get(t, srv, "/api/predict/weather")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWinRateEndpoint(t *testing.T) {
	srv := newTestServer(newMemPayloadCache(true), &fakeDraws{})

	rec := get(t, srv, "/api/winrate/kill")
	require.Equal(t, http.StatusOK, rec.Code)

	var payload map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
	assert.InDelta(t, 0.55, payload["rate"].(float64), 1e-9)
}

func TestHealthRoutes(t *testing.T) {
	srv := newTestServer(newMemPayloadCache(true), &fakeDraws{})

	assert.Equal(t, http.StatusOK, get(t, srv, "/healthz").Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/readyz").Code)
	assert.Equal(t, http.StatusOK, get(t, srv, "/metrics").Code)
}

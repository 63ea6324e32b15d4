package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/stats"
)

// drawPayload is the wire form of one draw.
type drawPayload struct {
	Issue       string `json:"issue"`
	OpenTime    string `json:"open_time"`
	OpenNums    string `json:"open_nums"`
	Sum         int    `json:"sum"`
	Combination string `json:"combination"`
	IsBig       bool   `json:"is_big"`
	IsOdd       bool   `json:"is_odd"`
}

// predictionPayload is the wire form of one prediction.
type predictionPayload struct {
	Issue          string `json:"issue"`
	Type           string `json:"type"`
	PredictedValue string `json:"predicted_value"`
	ActualValue    string `json:"actual_value,omitempty"`
	Hit            int8   `json:"hit"`
}

// hitRatePayload is the wire form of one stream's hit rate.
type hitRatePayload struct {
	Type   string  `json:"type"`
	Total  int     `json:"total"`
	Hits   int     `json:"hits"`
	Misses int     `json:"misses"`
	Rate   float64 `json:"rate"`
}

func (s *Server) handleLatestDraws(rw http.ResponseWriter, hr *http.Request) {
	limit := parseLimit(hr.URL.Query().Get("limit"))
	key := s.keys.LatestDraws(limit)

	s.serveThrough(hr.Context(), rw, key, drawsTTL, func(ctx context.Context) (any, error) {
		draws, err := s.draws.Latest(ctx, limit)
		if err != nil {
			return nil, err
		}

		payload := make([]drawPayload, 0, len(draws))

		for i := range draws {
			d := &draws[i]

			payload = append(payload, drawPayload{
				Issue:       d.Issue,
				OpenTime:    d.OpenTime.Format("2006-01-02 15:04:05"),
				OpenNums:    d.OpenNums,
				Sum:         d.Sum,
				Combination: d.Combination,
				IsBig:       d.IsBig,
				IsOdd:       d.IsOdd,
			})
		}

		return payload, nil
	})
}

func (s *Server) handleOmission(rw http.ResponseWriter, hr *http.Request) {
	s.serveThrough(hr.Context(), rw, s.keys.Omission(), snapshotTTL, func(context.Context) (any, error) {
		return s.omission.Snapshot(), nil
	})
}

func (s *Server) handleDailyStats(rw http.ResponseWriter, hr *http.Request) {
	s.serveThrough(hr.Context(), rw, s.keys.DailyStats(), snapshotTTL, func(ctx context.Context) (any, error) {
		return s.daily.Counts(ctx, stats.DateOf(s.now()))
	})
}

func (s *Server) handlePredictions(rw http.ResponseWriter, hr *http.Request) {
	typ, ok := predictionType(mux.Vars(hr)["type"])
	if !ok {
		writeError(rw, http.StatusNotFound, "unknown prediction type")

		return
	}

	limit := parseLimit(hr.URL.Query().Get("limit"))
	key := s.keys.Prediction(string(typ), limit)

	s.serveThrough(hr.Context(), rw, key, predictionsTTL, func(ctx context.Context) (any, error) {
		preds, err := s.predictions.Recent(ctx, typ, limit)
		if err != nil {
			return nil, err
		}

		payload := make([]predictionPayload, 0, len(preds))

		for i := range preds {
			p := &preds[i]

			payload = append(payload, predictionPayload{
				Issue:          p.Issue,
				Type:           string(p.Type),
				PredictedValue: p.PredictedValue,
				ActualValue:    p.ActualValue,
				Hit:            int8(p.Hit),
			})
		}

		return payload, nil
	})
}

func (s *Server) handleWinRate(rw http.ResponseWriter, hr *http.Request) {
	typ, ok := predictionType(mux.Vars(hr)["type"])
	if !ok {
		writeError(rw, http.StatusNotFound, "unknown prediction type")

		return
	}

	hit, err := s.hitRates.Snapshot(hr.Context(), typ)
	if err != nil {
		s.log.Error("winrate lookup failed", "type", typ, "error", err)
		writeError(rw, http.StatusInternalServerError, "winrate unavailable")

		return
	}

	writeJSON(rw, http.StatusOK, hitRatePayload{
		Type:   string(hit.Type),
		Total:  hit.Total,
		Hits:   hit.Hits,
		Misses: hit.Misses,
		Rate:   hit.Rate,
	})
}

// serveThrough is the cache read-through: serve the cached payload when
// present, otherwise build it, cache it and serve it. A degraded cache
// downgrades to store reads without failing the request.
func (s *Server) serveThrough(
	ctx context.Context,
	rw http.ResponseWriter,
	key string,
	ttl time.Duration,
	build func(ctx context.Context) (any, error),
) {
	if s.store.Healthy() {
		if payload, err := s.store.Get(ctx, key); err == nil {
			writeRawJSON(rw, payload)

			return
		} else if !errors.Is(err, cache.ErrMiss) {
			s.log.Warn("cache read-through degraded", "key", key, "error", err)
		}
	}

	value, err := build(ctx)
	if err != nil {
		s.log.Error("payload build failed", "key", key, "error", err)
		writeError(rw, http.StatusInternalServerError, "data unavailable")

		return
	}

	payload, err := json.Marshal(value)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "encode failed")

		return
	}

	if s.store.Healthy() {
		if err := s.store.Set(ctx, key, payload, ttl); err != nil {
			s.log.Warn("payload not cached", "key", key, "error", err)
		}
	}

	writeRawJSON(rw, payload)
}

func predictionType(raw string) (model.PredictionType, bool) {
	typ := model.PredictionType(raw)

	for _, known := range model.PredictionTypes {
		if typ == known {
			return typ, true
		}
	}

	return "", false
}

func parseLimit(raw string) int {
	if raw == "" {
		return defaultLimit
	}

	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultLimit
	}

	return min(n, maxLimit)
}

func writeJSON(rw http.ResponseWriter, code int, value any) {
	payload, err := json.Marshal(value)
	if err != nil {
		writeError(rw, http.StatusInternalServerError, "encode failed")

		return
	}

	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)
	_, _ = rw.Write(payload)
}

func writeRawJSON(rw http.ResponseWriter, payload []byte) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(http.StatusOK)
	_, _ = rw.Write(payload)
}

func writeError(rw http.ResponseWriter, code int, message string) {
	writeJSON(rw, code, map[string]string{"error": message})
}

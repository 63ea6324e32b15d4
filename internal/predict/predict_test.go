package predict_test

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/04By0302/jnd-vps/internal/cache"
	"github.com/04By0302/jnd-vps/internal/config"
	"github.com/04By0302/jnd-vps/internal/enrich"
	"github.com/04By0302/jnd-vps/internal/ingest"
	"github.com/04By0302/jnd-vps/internal/model"
	"github.com/04By0302/jnd-vps/internal/predict"
)

func TestParseReply(t *testing.T) {
	tests := []struct {
		name    string
		typ     model.PredictionType
		reply   string
		want    string
		wantErr bool
	}{
		{"parity exact", model.PredictParity, "单", "单", false},
		{"parity padded", model.PredictParity, "  双 \n", "双", false},
		{"parity sentence", model.PredictParity, "我预测：单。", "单", false},
		{"parity garbage", model.PredictParity, "maybe", "", true},
		{"magnitude exact", model.PredictMagnitude, "大", "大", false},
		{"kill exact", model.PredictKill, "小双", "小双", false},
		{"kill garbage", model.PredictKill, "不知道", "", true},
		{"combo canonical", model.PredictCombo, "大单,小双", "大单,小双", false},
		{"combo spaced", model.PredictCombo, "大单 小双", "大单,小双", false},
		{"combo cn comma", model.PredictCombo, "大单，小双", "大单,小双", false},
		{"combo one label", model.PredictCombo, "大单", "", true},
		{"combo duplicate", model.PredictCombo, "大单,大单", "", true},
		{"combo stray token", model.PredictCombo, "答案是 大单,小双", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := predict.ParseReply(tt.typ, tt.reply)
			if tt.wantErr {
				assert.ErrorIs(t, err, predict.ErrBadReply)

				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestJudge(t *testing.T) {
	tests := []struct {
		name      string
		typ       model.PredictionType
		predicted string
		actual    string
		want      model.Hit
	}{
		{"parity hit", model.PredictParity, "双", "双", model.HitTrue},
		{"parity miss", model.PredictParity, "单", "双", model.HitFalse},
		{"magnitude hit", model.PredictMagnitude, "大", "大", model.HitTrue},
		{"combo contains", model.PredictCombo, "大单,大双", "大双", model.HitTrue},
		{"combo miss", model.PredictCombo, "大单,小单", "大双", model.HitFalse},
		{"kill avoided", model.PredictKill, "小双", "大双", model.HitTrue},
		{"kill struck", model.PredictKill, "大双", "大双", model.HitFalse},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, predict.Judge(tt.typ, tt.predicted, tt.actual))
		})
	}
}

func TestGroundTruthLabels(t *testing.T) {
	d, err := enrich.Draw(model.RawDraw{Issue: "2025002", OpenNums: "3+5+8", Sum: 16}, time.Now())
	require.NoError(t, err)

	assert.Equal(t, "双", predict.ParityLabel(d.Sum))
	assert.Equal(t, "大", predict.MagnitudeLabel(d))
	assert.Equal(t, "大双", predict.ComboLabel(d))
}

func TestBuildPromptIncludesBiasHint(t *testing.T) {
	recent := []string{"单", "单", "单", "单", "单", "单", "单", "单", "双", "单"}

	prompt := predict.BuildPrompt(model.PredictParity, predict.PromptData{
		Target:        "2025002",
		RecentValues:  recent,
		BiasThreshold: 0.70,
		BiasWindow:    10,
	})

	assert.Contains(t, prompt, "避免惯性重复")
	assert.Contains(t, prompt, "2025002")
}

func TestBuildPromptOmitsBiasHintBelowThreshold(t *testing.T) {
	recent := []string{"单", "双", "单", "双", "单", "双", "单", "双", "单", "双"}

	prompt := predict.BuildPrompt(model.PredictParity, predict.PromptData{
		Target:        "2025002",
		RecentValues:  recent,
		BiasThreshold: 0.70,
		BiasWindow:    10,
	})

	assert.NotContains(t, prompt, "避免惯性重复")
}

func TestClientSendsSystemAndUserMessages(t *testing.T) {
	var got struct {
		Model    string `json:"model"`
		Messages []struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"messages"`
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer k1", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"单"}}]}`))
	}))
	defer srv.Close()

	client := predict.NewClient(config.PredictConfig{
		Endpoint: srv.URL, APIKey: "k1", Model: "m1", Timeout: 5 * time.Second,
	})

	reply, err := client.Chat(context.Background(), "目标期号：2025002")
	require.NoError(t, err)
	assert.Equal(t, "单", reply)

	assert.Equal(t, "m1", got.Model)
	require.Len(t, got.Messages, 2)
	assert.Equal(t, "system", got.Messages[0].Role)
	assert.Equal(t, predict.SystemPrompt, got.Messages[0].Content)
	assert.Equal(t, "user", got.Messages[1].Role)
	assert.Equal(t, "目标期号：2025002", got.Messages[1].Content)
}

type fakeHistory struct {
	draws []model.Draw
}

func (f *fakeHistory) Latest(context.Context, int) ([]model.Draw, error) {
	return f.draws, nil
}

type fakeCounts struct{}

func (fakeCounts) Counts(context.Context, string) (map[string]int, error) {
	return map[string]int{model.CategoryBig: 3}, nil
}

type fakePredictionRepo struct {
	mu       sync.Mutex
	upserted map[model.PredictionType]*model.Prediction
}

func newFakePredictionRepo() *fakePredictionRepo {
	return &fakePredictionRepo{upserted: map[model.PredictionType]*model.Prediction{}}
}

func (f *fakePredictionRepo) Upsert(_ context.Context, p *model.Prediction) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.upserted[p.Type] = p

	return nil
}

func (f *fakePredictionRepo) RecentValues(context.Context, model.PredictionType, int) ([]string, error) {
	return nil, nil
}

type scriptedLLM struct {
	replies map[string]string // matched by prompt substring
}

func (s *scriptedLLM) Chat(_ context.Context, prompt string) (string, error) {
	for needle, reply := range s.replies {
		if strings.Contains(prompt, needle) {
			return reply, nil
		}
	}

	return "", errors.New("no scripted reply")
}

type openLocker struct {
	denied bool
}

func (l *openLocker) TryLock(context.Context, string, time.Duration) (func(), bool) {
	if l.denied {
		return nil, false
	}

	return func() {}, true
}

func predictCfg() config.PredictConfig {
	return config.PredictConfig{
		Enabled: true, HistoryWindow: 50, BiasWindow: 10, BiasThreshold: 0.70, HitRateWindow: 100,
	}
}

func TestOrchestratorRunsAllFourStreams(t *testing.T) {
	repo := newFakePredictionRepo()
	bus := ingest.NewBus(slog.Default())
	predSub := bus.SubscribePredictions()
	doneSub := bus.SubscribePredictionsDone()

	llm := &scriptedLLM{replies: map[string]string{
		"单双": "单",
		"大小": "大",
		"两个组合": "大单,大双",
		"杀组合": "小双",
	}}

	orch := predict.NewOrchestrator(
		&fakeHistory{}, fakeCounts{}, repo, llm, &openLocker{},
		cache.NewKeys("project:"), bus, predictCfg(), slog.Default(),
	)

	d, err := enrich.Draw(model.RawDraw{Issue: "2025001", OpenNums: "3+5+8", Sum: 16}, time.Now())
	require.NoError(t, err)

	orch.PredictAfter(context.Background(), d)

	require.Len(t, repo.upserted, 4)
	assert.Equal(t, "单", repo.upserted[model.PredictParity].PredictedValue)
	assert.Equal(t, "大单,大双", repo.upserted[model.PredictCombo].PredictedValue)

	for _, p := range repo.upserted {
		assert.Equal(t, "2025002", p.Issue, "prediction targets the next issue")
	}

	require.Len(t, predSub, 4)

	for i := 0; i < 4; i++ {
		ev := <-predSub
		assert.Equal(t, "2025002", ev.Issue)
		assert.NotEmpty(t, ev.Value, "committed event carries the predicted value")
		assert.GreaterOrEqual(t, ev.DurationMS, int64(0))

		if ev.Type == model.PredictParity {
			assert.Equal(t, "单", ev.Value)
		}
	}

	select {
	case done := <-doneSub:
		assert.Equal(t, "2025002", done.Issue)
	default:
		t.Fatal("expected predictions-done event")
	}
}

func TestOrchestratorAnnouncesRoundOnPartialFailure(t *testing.T) {
	repo := newFakePredictionRepo()
	bus := ingest.NewBus(slog.Default())
	predSub := bus.SubscribePredictions()
	doneSub := bus.SubscribePredictionsDone()

	// The kill stream replies garbage; its task fails, the rest commit,
	// and the round still announces completion.
	llm := &scriptedLLM{replies: map[string]string{
		"单双": "单",
		"大小": "大",
		"两个组合": "大单,大双",
		"杀组合": "说不准",
	}}

	orch := predict.NewOrchestrator(
		&fakeHistory{}, fakeCounts{}, repo, llm, &openLocker{},
		cache.NewKeys("project:"), bus, predictCfg(), slog.Default(),
	)

	d, err := enrich.Draw(model.RawDraw{Issue: "2025001", OpenNums: "3+5+8", Sum: 16}, time.Now())
	require.NoError(t, err)

	orch.PredictAfter(context.Background(), d)

	assert.Len(t, repo.upserted, 3)
	assert.Len(t, predSub, 3, "only the committed streams announce")

	select {
	case done := <-doneSub:
		assert.Equal(t, "2025002", done.Issue, "a partial round still finishes")
	default:
		t.Fatal("expected predictions-done event")
	}
}

func TestOrchestratorHonorsPredictLock(t *testing.T) {
	repo := newFakePredictionRepo()
	bus := ingest.NewBus(slog.Default())

	orch := predict.NewOrchestrator(
		&fakeHistory{}, fakeCounts{}, repo, &scriptedLLM{}, &openLocker{denied: true},
		cache.NewKeys("project:"), bus, predictCfg(), slog.Default(),
	)

	d, err := enrich.Draw(model.RawDraw{Issue: "2025001", OpenNums: "3+5+8", Sum: 16}, time.Now())
	require.NoError(t, err)

	orch.PredictAfter(context.Background(), d)

	assert.Empty(t, repo.upserted, "another process holds the round")
}

type fakeOutcomeRepo struct {
	rows     map[model.PredictionType]*model.Prediction
	outcomes []*model.Prediction
}

func (f *fakeOutcomeRepo) Get(_ context.Context, _ string, typ model.PredictionType) (*model.Prediction, error) {
	p, ok := f.rows[typ]
	if !ok {
		return nil, sql.ErrNoRows
	}

	copied := *p

	return &copied, nil
}

func (f *fakeOutcomeRepo) UpdateOutcome(_ context.Context, p *model.Prediction) (bool, error) {
	f.outcomes = append(f.outcomes, p)

	return true, nil
}

func TestVerifierResolvesAllStreams(t *testing.T) {
	repo := &fakeOutcomeRepo{rows: map[model.PredictionType]*model.Prediction{
		model.PredictParity:    {Issue: "2025002", Type: model.PredictParity, PredictedValue: "双"},
		model.PredictMagnitude: {Issue: "2025002", Type: model.PredictMagnitude, PredictedValue: "小"},
		model.PredictCombo:     {Issue: "2025002", Type: model.PredictCombo, PredictedValue: "大双,小单"},
		model.PredictKill:      {Issue: "2025002", Type: model.PredictKill, PredictedValue: "大双"},
	}}

	v := predict.NewVerifier(repo, slog.Default())

	// 3+5+8 sum 16: 双, 大, 大双.
	d, err := enrich.Draw(model.RawDraw{Issue: "2025002", OpenNums: "3+5+8", Sum: 16}, time.Now())
	require.NoError(t, err)

	v.VerifyDraw(context.Background(), d)

	require.Len(t, repo.outcomes, 4)

	byType := map[model.PredictionType]*model.Prediction{}
	for _, p := range repo.outcomes {
		byType[p.Type] = p
	}

	assert.Equal(t, model.HitTrue, byType[model.PredictParity].Hit)
	assert.Equal(t, model.HitFalse, byType[model.PredictMagnitude].Hit)
	assert.Equal(t, model.HitTrue, byType[model.PredictCombo].Hit)
	assert.Equal(t, model.HitFalse, byType[model.PredictKill].Hit, "killed label appeared")

	for _, p := range repo.outcomes {
		assert.Equal(t, "3+5+8", p.ActualNumbers)
		assert.Equal(t, 16, p.ActualSum)
	}
}

type auditRecorder struct {
	mu    sync.Mutex
	lines []map[string]string
}

func (r *auditRecorder) Enabled(context.Context, slog.Level) bool { return true }

func (r *auditRecorder) Handle(_ context.Context, rec slog.Record) error {
	attrs := map[string]string{"msg": rec.Message}
	rec.Attrs(func(a slog.Attr) bool {
		attrs[a.Key] = a.Value.String()

		return true
	})

	r.mu.Lock()
	defer r.mu.Unlock()

	r.lines = append(r.lines, attrs)

	return nil
}

func (r *auditRecorder) WithAttrs([]slog.Attr) slog.Handler { return r }
func (r *auditRecorder) WithGroup(string) slog.Handler      { return r }

func (r *auditRecorder) find(msg string) map[string]string {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, line := range r.lines {
		if line["msg"] == msg {
			return line
		}
	}

	return nil
}

func TestVerifierAuditLineCarriesOutcomes(t *testing.T) {
	rec := &auditRecorder{}

	repo := &fakeOutcomeRepo{rows: map[model.PredictionType]*model.Prediction{
		model.PredictParity:    {Issue: "2025002", Type: model.PredictParity, PredictedValue: "双"},
		model.PredictMagnitude: {Issue: "2025002", Type: model.PredictMagnitude, PredictedValue: "小"},
	}}

	v := predict.NewVerifier(repo, slog.New(rec))

	// 3+5+8 sum 16: 双, 大.
	d, err := enrich.Draw(model.RawDraw{Issue: "2025002", OpenNums: "3+5+8", Sum: 16}, time.Now())
	require.NoError(t, err)

	v.VerifyDraw(context.Background(), d)

	line := rec.find("predictions verified")
	require.NotNil(t, line, "expected an audit line")
	assert.Contains(t, line["outcomes"], "parity 双->双 hit=1")
	assert.Contains(t, line["outcomes"], "magnitude 小->大 hit=2")
}

func TestVerifierSkipsResolvedAndMissing(t *testing.T) {
	repo := &fakeOutcomeRepo{rows: map[model.PredictionType]*model.Prediction{
		model.PredictParity: {Issue: "2025002", Type: model.PredictParity, PredictedValue: "双", Hit: model.HitTrue},
	}}

	v := predict.NewVerifier(repo, slog.Default())

	d, err := enrich.Draw(model.RawDraw{Issue: "2025002", OpenNums: "3+5+8", Sum: 16}, time.Now())
	require.NoError(t, err)

	v.VerifyDraw(context.Background(), d)

	assert.Empty(t, repo.outcomes)
}

type fakeHitRateRepo struct {
	calls int
}

func (f *fakeHitRateRepo) HitRate(_ context.Context, typ model.PredictionType, _ int) (*model.HitRate, error) {
	f.calls++

	return &model.HitRate{Type: typ, Total: 10, Hits: 6, Misses: 4, Rate: 0.6}, nil
}

type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache { return &memCache{data: map[string][]byte{}} }

func (m *memCache) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.data[key]
	if !ok {
		return nil, cache.ErrMiss
	}

	return v, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.data[key] = value

	return nil
}

func (m *memCache) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		delete(m.data, k)
	}

	return nil
}

func TestHitRatesSnapshotCaches(t *testing.T) {
	repo := &fakeHitRateRepo{}
	store := newMemCache()
	rates := predict.NewHitRates(repo, store, cache.NewKeys("project:"), 100, slog.Default())

	hr, err := rates.Snapshot(context.Background(), model.PredictParity)
	require.NoError(t, err)
	assert.InDelta(t, 0.6, hr.Rate, 1e-9)
	assert.Equal(t, 1, repo.calls)

	hr, err = rates.Snapshot(context.Background(), model.PredictParity)
	require.NoError(t, err)
	assert.Equal(t, 6, hr.Hits)
	assert.Equal(t, 1, repo.calls, "second snapshot must come from cache")
}

func TestHitRatesRefreshWarmsAllStreams(t *testing.T) {
	repo := &fakeHitRateRepo{}
	store := newMemCache()
	rates := predict.NewHitRates(repo, store, cache.NewKeys("project:"), 100, slog.Default())

	rates.Refresh(context.Background())
	assert.Equal(t, len(model.PredictionTypes), repo.calls)

	_, err := rates.Snapshot(context.Background(), model.PredictKill)
	require.NoError(t, err)
	assert.Equal(t, len(model.PredictionTypes), repo.calls, "snapshot served from warmed cache")
}

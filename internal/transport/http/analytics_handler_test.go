package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratepulse/internal/alerts"
	"ratepulse/internal/config"
	apierrors "ratepulse/internal/errors"
	"ratepulse/internal/pipeline"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

type fakeStore struct {
	metrics    map[string][]store.ComponentMetric // date key + dataset
	alerts     map[string][]store.AlertEvent
	thresholds map[string]store.AlertThreshold
	baseline   time.Time
	hasBase    bool
	err        error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		metrics:    make(map[string][]store.ComponentMetric),
		alerts:     make(map[string][]store.AlertEvent),
		thresholds: make(map[string]store.AlertThreshold),
	}
}

func (f *fakeStore) key(date time.Time, dataset string) string {
	return store.DateKey(date) + "/" + dataset
}

func (f *fakeStore) ReadMetric(_ context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error) {
	if f.err != nil {
		return store.ComponentMetric{}, false, f.err
	}
	for _, m := range f.metrics[f.key(date, dataset)] {
		if m.Name == name {
			return m, true, nil
		}
	}
	return store.ComponentMetric{}, false, nil
}

func (f *fakeStore) ReadMetricsForDate(_ context.Context, date time.Time, dataset string) ([]store.ComponentMetric, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.metrics[f.key(date, dataset)], nil
}

func (f *fakeStore) ReadAlerts(_ context.Context, date time.Time) ([]store.AlertEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.alerts[store.DateKey(date)], nil
}

func (f *fakeStore) ResolveBaseline(_ context.Context, _ time.Time, _, _ string) (time.Time, bool, error) {
	if f.err != nil {
		return time.Time{}, false, f.err
	}
	return f.baseline, f.hasBase, nil
}

func (f *fakeStore) UpsertThreshold(_ context.Context, t store.AlertThreshold) error {
	if f.err != nil {
		return f.err
	}
	f.thresholds[t.Code] = t
	return nil
}

func (f *fakeStore) ReadAllThresholds(_ context.Context) (map[string]store.AlertThreshold, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.thresholds, nil
}

type fakeComputer struct {
	result pipeline.DateResult
	err    error
	called bool
}

func (f *fakeComputer) ComputeDate(_ context.Context, targetDate time.Time) (pipeline.DateResult, error) {
	f.called = true
	if f.err != nil {
		return pipeline.DateResult{}, f.err
	}
	r := f.result
	r.Date = targetDate
	return r, nil
}

type fakeCache struct {
	invalidated []string
}

func (f *fakeCache) Invalidate(code string) {
	f.invalidated = append(f.invalidated, code)
}

func testRouter(fs *fakeStore, fc *fakeComputer, cache *fakeCache) *chi.Mux {
	logger := slog.Default()
	r := chi.NewRouter()
	NewAnalyticsHandler(fs, fc, logger).RegisterRoutes(r)
	NewThresholdHandler(fs, cache, logger).RegisterRoutes(r)
	return r
}

func day(s string) time.Time {
	t, err := store.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

func doRequest(t *testing.T, router http.Handler, method, path string, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetTransmission(t *testing.T) {
	fs := newFakeStore()
	date := day("2026-03-02")
	key := fs.key(date, config.DatasetTransmission)
	fs.metrics[key] = []store.ComponentMetric{
		{Date: date, Name: scoring.MetricScore, Value: store.Numeric(67.4), Sources: "liquidity,curve,supply"},
		{Date: date, Name: scoring.MetricRegimeBucket, Value: store.Text("B3")},
		{Date: date, Name: "liquidity_zscore", Value: store.Numeric(1.2)},
		{Date: date, Name: "curve_zscore", Value: store.Numeric(-0.4)},
	}

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, &fakeCache{}), http.MethodGet, "/transmission/2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TransmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2026-03-02", resp.Date)
	assert.InDelta(t, 67.4, resp.Score, 1e-12)
	assert.Equal(t, "B3", resp.Bucket)
	assert.False(t, resp.Neutral)
	assert.InDelta(t, 1.2, resp.Families["liquidity"], 1e-12)
	assert.InDelta(t, -0.4, resp.Families["curve"], 1e-12)
}

func TestGetTransmissionNeutralFlag(t *testing.T) {
	fs := newFakeStore()
	date := day("2026-03-02")
	fs.metrics[fs.key(date, config.DatasetTransmission)] = []store.ComponentMetric{
		{Date: date, Name: scoring.MetricScore, Value: store.Numeric(50.0), Sources: scoring.NeutralSources},
	}

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, &fakeCache{}), http.MethodGet, "/transmission/2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp TransmissionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Neutral)
}

func TestGetTransmissionNotComputed(t *testing.T) {
	rec := doRequest(t, testRouter(newFakeStore(), &fakeComputer{}, &fakeCache{}), http.MethodGet, "/transmission/2026-03-02", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestInvalidDate(t *testing.T) {
	router := testRouter(newFakeStore(), &fakeComputer{}, &fakeCache{})

	for _, path := range []string{
		"/transmission/02-03-2026",
		"/stress/yesterday",
		"/alerts/2026-3-2",
		"/baseline/20260302",
	} {
		t.Run(path, func(t *testing.T) {
			rec := doRequest(t, router, http.MethodGet, path, "")
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestGetStress(t *testing.T) {
	fs := newFakeStore()
	date := day("2026-03-02")
	fs.metrics[fs.key(date, config.DatasetStress)] = []store.ComponentMetric{
		{Date: date, Name: stress.MetricIndex, Value: store.Numeric(58.1), Sources: "transmission,liquidity,curve"},
		{Date: date, Name: stress.MetricRegimeBucket, Value: store.Text("S2")},
		{Date: date, Name: stress.MetricTopDrivers, Value: store.Text("transmission:+5.4; liquidity:+2.1")},
		{Date: date, Name: "liquidity_percentile", Value: store.Numeric(71.0)},
	}

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, &fakeCache{}), http.MethodGet, "/stress/2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp StressResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.InDelta(t, 58.1, resp.Index, 1e-12)
	assert.Equal(t, "S2", resp.Bucket)
	assert.Contains(t, resp.TopDrivers, "transmission")
	assert.InDelta(t, 71.0, resp.Components["liquidity"], 1e-12)
}

func TestGetStressNotComputed(t *testing.T) {
	rec := doRequest(t, testRouter(newFakeStore(), &fakeComputer{}, &fakeCache{}), http.MethodGet, "/stress/2026-03-02", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetAlertsEmpty(t *testing.T) {
	rec := doRequest(t, testRouter(newFakeStore(), &fakeComputer{}, &fakeCache{}), http.MethodGet, "/alerts/2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AlertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Zero(t, resp.Count)
	assert.NotNil(t, resp.Events)
}

func TestGetAlerts(t *testing.T) {
	fs := newFakeStore()
	fs.alerts["2026-03-02"] = []store.AlertEvent{
		{ID: "a1", Code: "LIQUIDITY_SPIKE", Severity: "warning"},
		{ID: "a2", Code: "STRESS_HIGH", Severity: "critical"},
	}

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, &fakeCache{}), http.MethodGet, "/alerts/2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp AlertsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Count)
	assert.Equal(t, "LIQUIDITY_SPIKE", resp.Events[0].Code)
}

func TestGetBaseline(t *testing.T) {
	fs := newFakeStore()
	baseDate := day("2026-02-27")
	fs.baseline = baseDate
	fs.hasBase = true
	fs.metrics[fs.key(baseDate, config.DatasetTransmission)] = []store.ComponentMetric{
		{Date: baseDate, Name: scoring.MetricScore, Value: store.Numeric(61.0)},
	}

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, &fakeCache{}), http.MethodGet, "/baseline/2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BaselineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.True(t, resp.Found)
	assert.Equal(t, "2026-02-27", resp.BaselineDate)
	assert.InDelta(t, 61.0, resp.BaselineScore, 1e-12)
}

func TestGetBaselineNone(t *testing.T) {
	rec := doRequest(t, testRouter(newFakeStore(), &fakeComputer{}, &fakeCache{}), http.MethodGet, "/baseline/2026-03-02", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp BaselineResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.False(t, resp.Found)
	assert.Empty(t, resp.BaselineDate)
}

func TestCompute(t *testing.T) {
	fc := &fakeComputer{result: pipeline.DateResult{Stage: pipeline.StagePersisted}}

	rec := doRequest(t, testRouter(newFakeStore(), fc, &fakeCache{}), http.MethodPost, "/compute/2026-03-02", "")
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.True(t, fc.called)

	var result pipeline.DateResult
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &result))
	assert.Equal(t, pipeline.StagePersisted, result.Stage)
}

func TestComputeDependencyMissing(t *testing.T) {
	fc := &fakeComputer{err: apierrors.NewDependencyMissing("stress index requires a transmission score")}

	rec := doRequest(t, testRouter(newFakeStore(), fc, &fakeCache{}), http.MethodPost, "/compute/2026-03-02", "")
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestThresholdList(t *testing.T) {
	fs := newFakeStore()
	fs.thresholds[alerts.CodeStressHigh] = store.AlertThreshold{
		Code:     alerts.CodeStressHigh,
		Enabled:  false,
		Severity: "info",
		Params:   map[string]float64{"level": 90},
	}

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, &fakeCache{}), http.MethodGet, "/thresholds", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]store.AlertThreshold
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	// Stored override replaces the default; untouched codes keep defaults.
	assert.False(t, resp[alerts.CodeStressHigh].Enabled)
	assert.InDelta(t, 90, resp[alerts.CodeStressHigh].Params["level"], 1e-12)
	assert.True(t, resp[alerts.CodeLiquiditySpike].Enabled)
}

func TestThresholdUpsert(t *testing.T) {
	fs := newFakeStore()
	cache := &fakeCache{}
	body := `{"enabled":true,"severity":"critical","params":{"zscore":2.5,"window":60}}`

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, cache), http.MethodPut, "/thresholds/"+alerts.CodeLiquiditySpike, body)
	require.Equal(t, http.StatusOK, rec.Code)

	saved := fs.thresholds[alerts.CodeLiquiditySpike]
	assert.Equal(t, "critical", saved.Severity)
	assert.InDelta(t, 2.5, saved.Params["zscore"], 1e-12)
	assert.Equal(t, []string{alerts.CodeLiquiditySpike}, cache.invalidated)
}

func TestThresholdUpsertInvalidSeverity(t *testing.T) {
	fs := newFakeStore()
	cache := &fakeCache{}
	body := `{"enabled":true,"severity":"catastrophic","params":{"zscore":2.0}}`

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, cache), http.MethodPut, "/thresholds/"+alerts.CodeLiquiditySpike, body)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, fs.thresholds)
	assert.Empty(t, cache.invalidated)
}

func TestThresholdUpsertMalformedBody(t *testing.T) {
	rec := doRequest(t, testRouter(newFakeStore(), &fakeComputer{}, &fakeCache{}), http.MethodPut, "/thresholds/x", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStorageErrorMapsTo503(t *testing.T) {
	fs := newFakeStore()
	fs.err = apierrors.NewStorageError("read metrics", assert.AnError)

	rec := doRequest(t, testRouter(fs, &fakeComputer{}, &fakeCache{}), http.MethodGet, "/transmission/2026-03-02", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

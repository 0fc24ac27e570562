package alerts

import (
	"context"
	"math"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratepulse/internal/config"
	apperrors "ratepulse/internal/errors"
	"ratepulse/internal/rolling"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

// fakeReader implements rolling.WindowReader over in-memory series
type fakeReader struct {
	series map[string][]store.Observation
}

func newFakeReader() *fakeReader {
	return &fakeReader{series: map[string][]store.Observation{}}
}

func (f *fakeReader) addSeries(id string, start time.Time, values []float64) {
	for i, v := range values {
		f.series[id] = append(f.series[id], store.Observation{
			SeriesID: id, Date: start.AddDate(0, 0, i), Value: v,
		})
	}
}

func (f *fakeReader) ReadWindow(_ context.Context, seriesID string, targetDate time.Time, lookback int, mode store.WindowMode) ([]store.Observation, error) {
	all := append([]store.Observation(nil), f.series[seriesID]...)
	sort.Slice(all, func(i, j int) bool { return all[i].Date.Before(all[j].Date) })

	var window []store.Observation
	for _, obs := range all {
		if mode == store.WindowTrainOnly && !obs.Date.Before(targetDate) {
			continue
		}
		if mode == store.WindowInclusive && obs.Date.After(targetDate) {
			continue
		}
		window = append(window, obs)
	}
	if len(window) > lookback {
		window = window[len(window)-lookback:]
	}
	return window, nil
}

// fakeStore implements Store and ThresholdSource in memory
type fakeStore struct {
	metrics      map[string]store.ComponentMetric
	thresholds   map[string]store.AlertThreshold
	alerts       map[string]store.AlertEvent
	thresholdErr error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		metrics:    map[string]store.ComponentMetric{},
		thresholds: map[string]store.AlertThreshold{},
		alerts:     map[string]store.AlertEvent{},
	}
}

func metricKey(date time.Time, dataset, name string) string {
	return store.DateKey(date) + "/" + dataset + "/" + name
}

func (f *fakeStore) setMetric(date time.Time, dataset, name string, v store.MetricValue, sources string) {
	f.metrics[metricKey(date, dataset, name)] = store.ComponentMetric{
		Date: date, Dataset: dataset, Name: name, Value: v, Sources: sources,
	}
}

func (f *fakeStore) ReadMetric(_ context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error) {
	m, ok := f.metrics[metricKey(date, dataset, name)]
	return m, ok, nil
}

func (f *fakeStore) WriteAlert(_ context.Context, event store.AlertEvent) error {
	f.alerts[store.DateKey(event.Date)+"/"+event.Code] = event
	return nil
}

func (f *fakeStore) ResolveBaseline(_ context.Context, targetDate time.Time, dataset, metricName string) (time.Time, bool, error) {
	var best time.Time
	found := false
	for _, m := range f.metrics {
		if m.Dataset != dataset || m.Name != metricName || !m.Date.Before(targetDate) {
			continue
		}
		if !found || m.Date.After(best) {
			best = m.Date
			found = true
		}
	}
	return best, found, nil
}

func (f *fakeStore) ReadThreshold(_ context.Context, alertCode string) (store.AlertThreshold, bool, error) {
	if f.thresholdErr != nil {
		return store.AlertThreshold{}, false, f.thresholdErr
	}
	t, ok := f.thresholds[alertCode]
	return t, ok, nil
}

func testEngine(reader *fakeReader, st *fakeStore) *Engine {
	calc := rolling.NewCalculator(reader, 3.0, nil)
	provider := NewThresholdProvider(st, 5*time.Minute, nil)
	return NewEngine(calc, st, provider, nil)
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// acceleratingRamp returns n+1 values rising from lo to hi with convex
// shape, so the final value sits well outside its trailing window.
func acceleratingRamp(lo, hi float64, n int) []float64 {
	out := make([]float64, n+1)
	for i := range out {
		t := float64(i) / float64(n)
		out[i] = lo + (hi-lo)*math.Pow(t, 3)
	}
	return out
}

func eventByCode(events []store.AlertEvent, code string) *store.AlertEvent {
	for i := range events {
		if events[i].Code == code {
			return &events[i]
		}
	}
	return nil
}

func TestDetectLiquiditySpike(t *testing.T) {
	start := day(2024, 1, 1)
	reader := newFakeReader()
	reader.addSeries(config.SeriesOvernightRate, start, acceleratingRamp(3.0, 6.0, 60))
	st := newFakeStore()

	engine := testEngine(reader, st)
	events, err := engine.Detect(context.Background(), start.AddDate(0, 0, 60))
	require.NoError(t, err)

	spike := eventByCode(events, CodeLiquiditySpike)
	require.NotNil(t, spike, "rising overnight rate must trigger the spike rule")
	assert.Equal(t, MethodZScore, spike.Evidence.Method)
	assert.Equal(t, config.SeriesOvernightRate, spike.Evidence.Metric)
	assert.Equal(t, "sigma", spike.Evidence.Unit)
	assert.Equal(t, 60, spike.Evidence.Window)
	assert.GreaterOrEqual(t, spike.Evidence.N, 2)
	assert.NotEmpty(t, spike.Evidence.BaselineDate)
	assert.Greater(t, spike.MetricValue, 2.0)
	assert.Equal(t, 2.0, spike.Threshold)
	assert.NotEmpty(t, spike.ID)

	// Persisted as well as returned.
	assert.Len(t, st.alerts, len(events))
}

func TestDetectWeakAuctionAndTurnover(t *testing.T) {
	start := day(2023, 1, 1)
	n := 252
	reader := newFakeReader()
	// Collapsing bid-to-cover and turnover; inverted direction rules.
	reader.addSeries(config.SeriesAuctionBidToCover, start, acceleratingRamp(-2.4, -1.1, n)) // rising magnitude downward
	for i := range reader.series[config.SeriesAuctionBidToCover] {
		reader.series[config.SeriesAuctionBidToCover][i].Value *= -1 // back to positive, falling fast
	}
	reader.addSeries(config.SeriesSecondaryTurnover, start, negated(acceleratingRamp(-500, -180, n)))

	engine := testEngine(reader, newFakeStore())
	events, err := engine.Detect(context.Background(), start.AddDate(0, 0, n))
	require.NoError(t, err)

	weak := eventByCode(events, CodeWeakAuctionDemand)
	require.NotNil(t, weak)
	assert.Equal(t, MethodZScore, weak.Evidence.Method)
	assert.Equal(t, 252, weak.Evidence.Window)

	drop := eventByCode(events, CodeTurnoverDrop)
	require.NotNil(t, drop)
	assert.Equal(t, config.SeriesSecondaryTurnover, drop.Evidence.Metric)
}

func negated(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = -v
	}
	return out
}

func TestDetectCurveBearSteepening(t *testing.T) {
	start := day(2023, 1, 1)
	n := 252
	steepening := acceleratingRamp(0.5, 2.8, n)

	t.Run("triggers when the long end is rising", func(t *testing.T) {
		reader := newFakeReader()
		reader.addSeries(config.SeriesCurveSlope, start, steepening)
		reader.addSeries(config.SeriesCurve10Y, start, acceleratingRamp(9.0, 12.0, n))

		engine := testEngine(reader, newFakeStore())
		events, err := engine.Detect(context.Background(), start.AddDate(0, 0, n))
		require.NoError(t, err)
		require.NotNil(t, eventByCode(events, CodeCurveBearSteepening))
	})

	t.Run("suppressed when the long end is falling", func(t *testing.T) {
		reader := newFakeReader()
		reader.addSeries(config.SeriesCurveSlope, start, steepening)
		reader.addSeries(config.SeriesCurve10Y, start, negated(acceleratingRamp(-12.0, -9.0, n)))

		engine := testEngine(reader, newFakeStore())
		events, err := engine.Detect(context.Background(), start.AddDate(0, 0, n))
		require.NoError(t, err)
		assert.Nil(t, eventByCode(events, CodeCurveBearSteepening),
			"a steepening driven by a falling long end is not a bear move")
	})
}

func TestDetectPolicyRateChange(t *testing.T) {
	start := day(2024, 1, 1)
	values := make([]float64, 30)
	for i := range values {
		values[i] = 8.5
	}
	values[29] = 9.0 // 50bp hike on the target date
	reader := newFakeReader()
	reader.addSeries(config.SeriesPolicyRate, start, values)

	engine := testEngine(reader, newFakeStore())
	events, err := engine.Detect(context.Background(), start.AddDate(0, 0, 29))
	require.NoError(t, err)

	change := eventByCode(events, CodePolicyRateChange)
	require.NotNil(t, change, "a policy move is event-based, not statistical")
	assert.Equal(t, MethodEvent, change.Evidence.Method)
	assert.Equal(t, "pp", change.Evidence.Unit)
	assert.InDelta(t, 0.5, change.MetricValue, 1e-9)
	assert.Equal(t, store.DateKey(start.AddDate(0, 0, 28)), change.Evidence.BaselineDate)
}

func TestDetectPolicyRateUnchanged(t *testing.T) {
	start := day(2024, 1, 1)
	values := make([]float64, 30)
	for i := range values {
		values[i] = 8.5
	}
	reader := newFakeReader()
	reader.addSeries(config.SeriesPolicyRate, start, values)

	engine := testEngine(reader, newFakeStore())
	events, err := engine.Detect(context.Background(), start.AddDate(0, 0, 29))
	require.NoError(t, err)
	assert.Nil(t, eventByCode(events, CodePolicyRateChange))
}

func TestDetectTransmissionJumpUsesBaselineDate(t *testing.T) {
	st := newFakeStore()
	friday := day(2024, 1, 5)
	monday := day(2024, 1, 8)
	st.setMetric(friday, config.DatasetTransmission, scoring.MetricScore, store.Numeric(48.0), "curve,liquidity,policy")
	st.setMetric(monday, config.DatasetTransmission, scoring.MetricScore, store.Numeric(70.0), "curve,liquidity,policy")

	engine := testEngine(newFakeReader(), st)
	events, err := engine.Detect(context.Background(), monday)
	require.NoError(t, err)

	jump := eventByCode(events, CodeTransmissionJump)
	require.NotNil(t, jump)
	assert.Equal(t, MethodAbsolute, jump.Evidence.Method)
	assert.Equal(t, store.DateKey(friday), jump.Evidence.BaselineDate,
		"baseline must be the last computed day across the weekend gap")
	assert.InDelta(t, 22.0, jump.MetricValue, 1e-9)
}

func TestDetectLevelBreaches(t *testing.T) {
	st := newFakeStore()
	date := day(2024, 6, 3)
	st.setMetric(date, config.DatasetTransmission, scoring.MetricScore, store.Numeric(85.0), "curve,liquidity,policy")
	st.setMetric(date, config.DatasetStress, stress.MetricIndex, store.Numeric(82.0), "transmission,liquidity")

	engine := testEngine(newFakeReader(), st)
	events, err := engine.Detect(context.Background(), date)
	require.NoError(t, err)

	high := eventByCode(events, CodeTransmissionHigh)
	require.NotNil(t, high)
	assert.Equal(t, MethodAbsolute, high.Evidence.Method)
	assert.Equal(t, 85.0, high.MetricValue)

	stressHigh := eventByCode(events, CodeStressHigh)
	require.NotNil(t, stressHigh)
	assert.Equal(t, "critical", stressHigh.Severity)
}

func TestDetectPartialDataDoesNotBlock(t *testing.T) {
	// Nothing but a breached stress index: every other rule lacks data
	// and must be skipped silently.
	st := newFakeStore()
	date := day(2024, 6, 3)
	st.setMetric(date, config.DatasetStress, stress.MetricIndex, store.Numeric(90.0), "transmission")

	engine := testEngine(newFakeReader(), st)
	events, err := engine.Detect(context.Background(), date)
	require.NoError(t, err, "partial data must never fail the detection run")
	require.Len(t, events, 1)
	assert.Equal(t, CodeStressHigh, events[0].Code)
}

func TestDetectDisabledRuleSkipped(t *testing.T) {
	st := newFakeStore()
	date := day(2024, 6, 3)
	st.setMetric(date, config.DatasetStress, stress.MetricIndex, store.Numeric(90.0), "transmission")
	st.thresholds[CodeStressHigh] = store.AlertThreshold{
		Code: CodeStressHigh, Enabled: false, Severity: "critical",
		Params: map[string]float64{"level": 80},
	}

	engine := testEngine(newFakeReader(), st)
	events, err := engine.Detect(context.Background(), date)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestDetectStoredThresholdOverride(t *testing.T) {
	start := day(2024, 1, 1)
	reader := newFakeReader()
	reader.addSeries(config.SeriesOvernightRate, start, acceleratingRamp(3.0, 6.0, 60))

	st := newFakeStore()
	// Desensitize the spike rule far beyond the observed z.
	st.thresholds[CodeLiquiditySpike] = store.AlertThreshold{
		Code: CodeLiquiditySpike, Enabled: true, Severity: "warning",
		Params: map[string]float64{"zscore": 10.0},
	}

	engine := testEngine(reader, st)
	events, err := engine.Detect(context.Background(), start.AddDate(0, 0, 60))
	require.NoError(t, err)
	assert.Nil(t, eventByCode(events, CodeLiquiditySpike))
}

func TestEmittedAlertsCarryCompleteEvidence(t *testing.T) {
	start := day(2023, 1, 1)
	reader := newFakeReader()
	reader.addSeries(config.SeriesOvernightRate, start, acceleratingRamp(3.0, 6.0, 60))
	reader.addSeries(config.SeriesSecondaryTurnover, start, negated(acceleratingRamp(-500, -180, 252)))

	st := newFakeStore()
	date := start.AddDate(0, 0, 252)
	st.setMetric(date, config.DatasetTransmission, scoring.MetricScore, store.Numeric(85.0), "curve")

	engine := testEngine(reader, st)
	events, err := engine.Detect(context.Background(), date)
	require.NoError(t, err)
	require.NotEmpty(t, events)

	for _, event := range events {
		assert.NotEmpty(t, event.Evidence.Metric, "alert %s", event.Code)
		assert.NotEmpty(t, event.Evidence.Method, "alert %s", event.Code)
		assert.NotEmpty(t, event.Evidence.Unit, "alert %s", event.Code)
		assert.Positive(t, event.Evidence.N, "alert %s", event.Code)
	}
}

func TestThresholdProvider(t *testing.T) {
	t.Run("empty store falls back to defaults", func(t *testing.T) {
		provider := NewThresholdProvider(newFakeStore(), time.Minute, nil)
		got := provider.Get(context.Background(), CodeLiquiditySpike)
		assert.Equal(t, Defaults()[CodeLiquiditySpike], got)
	})

	t.Run("store failure falls back to defaults", func(t *testing.T) {
		st := newFakeStore()
		st.thresholdErr = apperrors.NewStorageError("db locked", nil)
		provider := NewThresholdProvider(st, time.Minute, nil)
		got := provider.Get(context.Background(), CodeStressHigh)
		assert.Equal(t, Defaults()[CodeStressHigh], got)
	})

	t.Run("invalid stored record falls back to defaults", func(t *testing.T) {
		st := newFakeStore()
		st.thresholds[CodeStressHigh] = store.AlertThreshold{
			Code: CodeStressHigh, Enabled: true, Severity: "shouting", // not a valid severity
			Params: map[string]float64{"level": 10},
		}
		provider := NewThresholdProvider(st, time.Minute, nil)
		got := provider.Get(context.Background(), CodeStressHigh)
		assert.Equal(t, Defaults()[CodeStressHigh], got)
	})

	t.Run("stored params merge over defaults", func(t *testing.T) {
		st := newFakeStore()
		st.thresholds[CodeLiquiditySpike] = store.AlertThreshold{
			Code: CodeLiquiditySpike, Enabled: true, Severity: "critical",
			Params: map[string]float64{"zscore": 2.5},
		}
		provider := NewThresholdProvider(st, time.Minute, nil)
		got := provider.Get(context.Background(), CodeLiquiditySpike)
		assert.Equal(t, 2.5, got.Params["zscore"])
		assert.Equal(t, 60.0, got.Params["window"], "unset params keep their defaults")
	})

	t.Run("cache serves within TTL and refreshes after invalidation", func(t *testing.T) {
		st := newFakeStore()
		provider := NewThresholdProvider(st, time.Hour, nil)

		first := provider.Get(context.Background(), CodeLiquiditySpike)
		assert.Equal(t, 2.0, first.Params["zscore"])

		st.thresholds[CodeLiquiditySpike] = store.AlertThreshold{
			Code: CodeLiquiditySpike, Enabled: true, Severity: "warning",
			Params: map[string]float64{"zscore": 3.0},
		}

		cached := provider.Get(context.Background(), CodeLiquiditySpike)
		assert.Equal(t, 2.0, cached.Params["zscore"], "within TTL the cached value is served")

		provider.Invalidate(CodeLiquiditySpike)
		refreshed := provider.Get(context.Background(), CodeLiquiditySpike)
		assert.Equal(t, 3.0, refreshed.Params["zscore"])
	})
}

package scoring

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratepulse/internal/config"
	"ratepulse/internal/rolling"
	"ratepulse/internal/store"
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

// fakeMetrics captures persisted metrics keyed by metric name
type fakeMetrics struct {
	written map[string]store.ComponentMetric
}

func newFakeMetrics() *fakeMetrics {
	return &fakeMetrics{written: map[string]store.ComponentMetric{}}
}

func (f *fakeMetrics) WriteMetric(_ context.Context, m store.ComponentMetric) error {
	f.written[m.Name] = m
	return nil
}

func testEngine(reader *fakeReader, metrics *fakeMetrics) *Engine {
	cfg := config.Default().Analytics
	calc := rolling.NewCalculator(reader, cfg.WinsorBound, nil)
	return NewEngine(calc, metrics, cfg, nil)
}

// linear returns n values rising from lo to hi
func linear(lo, hi float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = lo + (hi-lo)*float64(i)/float64(n-1)
	}
	return out
}

// noisy returns n values oscillating around center
func noisy(center float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = center + 0.1*float64(i%5-2)
	}
	return out
}

func TestBucketForScoreMonotone(t *testing.T) {
	tests := []struct {
		score float64
		want  string
	}{
		{0, "B0"}, {19.99, "B0"},
		{20, "B1"}, {39.99, "B1"},
		{40, "B2"}, {59.99, "B2"},
		{60, "B3"}, {79.99, "B3"},
		{80, "B4"}, {100, "B4"},
	}

	prev := ""
	for _, tt := range tests {
		got := BucketForScore(tt.score)
		assert.Equal(t, tt.want, got, "score %f", tt.score)
		assert.GreaterOrEqual(t, got, prev, "bucket mapping must be monotone")
		prev = got
	}
}

func TestComputeEmptyStoreColdStart(t *testing.T) {
	metrics := newFakeMetrics()
	engine := testEngine(newFakeReader(), metrics)

	result, err := engine.Compute(context.Background(), day(2024, 1, 2))
	require.NoError(t, err, "missing data never fails the call")

	assert.Equal(t, 50.0, result.Score)
	assert.Equal(t, "B2", result.Bucket)
	assert.True(t, result.Neutral)
	assert.Equal(t, NeutralSources, result.Sources)
	assert.Equal(t, 0, result.Available)

	score := metrics.written[MetricScore]
	assert.Equal(t, 50.0, score.Value.Num)
	assert.Equal(t, NeutralSources, score.Sources)

	bucket := metrics.written[MetricRegimeBucket]
	assert.Equal(t, store.MetricText, bucket.Value.Kind)
	assert.Equal(t, "B2", bucket.Value.Text)
}

func fullReader(start time.Time, n int) *fakeReader {
	reader := newFakeReader()
	reader.addSeries(config.SeriesOvernightRate, start, linear(3.0, 6.0, n))
	reader.addSeries(config.SeriesInterbankSpread, start, noisy(0.5, n))
	reader.addSeries(config.SeriesCurveSlope, start, linear(1.0, -0.5, n))
	reader.addSeries(config.SeriesCurveCurvature, start, noisy(0.2, n))
	reader.addSeries(config.SeriesAuctionBidToCover, start, linear(2.2, 1.1, n))
	reader.addSeries(config.SeriesAuctionSoldAmount, start, noisy(100, n))
	reader.addSeries(config.SeriesAuctionCutoff, start, linear(8.0, 11.0, n))
	reader.addSeries(config.SeriesSecondaryTurnover, start, linear(500, 200, n))
	reader.addSeries(config.SeriesSecondaryValue, start, linear(900, 400, n))
	reader.addSeries(config.SeriesPolicyRate, start, noisy(8.5, n))
	reader.addSeries(config.SeriesCurve10Y, start, linear(9.0, 12.0, n))
	return reader
}

func TestComputeFullData(t *testing.T) {
	start := day(2023, 1, 1)
	n := 300
	reader := fullReader(start, n)
	metrics := newFakeMetrics()
	engine := testEngine(reader, metrics)

	target := start.AddDate(0, 0, n-1)
	result, err := engine.Compute(context.Background(), target)
	require.NoError(t, err)

	assert.False(t, result.Neutral)
	assert.Equal(t, 5, result.Available)
	assert.GreaterOrEqual(t, result.Score, 0.0)
	assert.LessOrEqual(t, result.Score, 100.0)
	assert.Equal(t, BucketForScore(result.Score), result.Bucket)

	// Everything was tightening: rising overnight rate, collapsing
	// bid-to-cover, falling turnover. The composite must read stressed.
	assert.Greater(t, result.Score, 60.0)

	// Per-family z metrics persisted for every available family.
	for _, family := range Families {
		_, ok := metrics.written[string(family)+"_zscore"]
		assert.True(t, ok, "missing persisted metric for family %s", family)
	}
	assert.NotEqual(t, NeutralSources, metrics.written[MetricScore].Sources)
}

func TestComputeIdempotent(t *testing.T) {
	start := day(2023, 1, 1)
	reader := fullReader(start, 300)
	engine := testEngine(reader, newFakeMetrics())
	target := start.AddDate(0, 0, 299)

	first, err := engine.Compute(context.Background(), target)
	require.NoError(t, err)
	second, err := engine.Compute(context.Background(), target)
	require.NoError(t, err)

	assert.Equal(t, first, second, "unchanged upstream data must reproduce the result bit-identically")
}

func TestComputePartialFamiliesRenormalizes(t *testing.T) {
	start := day(2023, 1, 1)
	n := 300
	reader := newFakeReader()
	// Only three families present: liquidity, supply, policy.
	reader.addSeries(config.SeriesOvernightRate, start, linear(3.0, 6.0, n))
	reader.addSeries(config.SeriesAuctionBidToCover, start, linear(2.2, 1.1, n))
	reader.addSeries(config.SeriesPolicyRate, start, linear(8.0, 10.0, n))

	engine := testEngine(reader, newFakeMetrics())
	target := start.AddDate(0, 0, n-1)

	result, err := engine.Compute(context.Background(), target)
	require.NoError(t, err)

	assert.False(t, result.Neutral, "3 available families meet the default minimum")
	assert.Equal(t, 3, result.Available)
	assert.Equal(t, "liquidity,supply,policy", result.Sources)
}

func TestCompositeWeightRenormalization(t *testing.T) {
	engine := testEngine(newFakeReader(), newFakeMetrics())

	// Two available families with identical z must produce that same z
	// regardless of their raw weights, proving the effective weights sum
	// to 1.
	families := []FamilyScore{
		{Family: FamilyCurve, Available: true, Z: 1.7},
		{Family: FamilyDemand, Available: true, Z: 1.7},
		{Family: FamilyLiquidity, Available: false, Z: 99},
	}
	assert.InDelta(t, 1.7, engine.composite(families), 1e-9)
}

func TestComputeBelowMinimumFamilies(t *testing.T) {
	start := day(2023, 1, 1)
	reader := newFakeReader()
	// Two families only; the default minimum is three.
	reader.addSeries(config.SeriesOvernightRate, start, linear(3.0, 6.0, 300))
	reader.addSeries(config.SeriesPolicyRate, start, linear(8.0, 10.0, 300))

	engine := testEngine(reader, newFakeMetrics())
	result, err := engine.Compute(context.Background(), start.AddDate(0, 0, 299))
	require.NoError(t, err)

	assert.True(t, result.Neutral)
	assert.Equal(t, 50.0, result.Score)
	assert.Contains(t, result.Sources, "calibrating")
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ratepulse/internal/config"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

func day(s string) time.Time {
	t, err := store.ParseDate(s)
	if err != nil {
		panic(err)
	}
	return t
}

type fakeTransmission struct {
	mu      sync.Mutex
	calls   []time.Time
	result  scoring.Result
	err     error
	block   chan struct{} // when non-nil, Compute waits on it
	running atomic.Int32
	maxSeen atomic.Int32
}

func (f *fakeTransmission) Compute(_ context.Context, targetDate time.Time) (scoring.Result, error) {
	n := f.running.Add(1)
	for {
		seen := f.maxSeen.Load()
		if n <= seen || f.maxSeen.CompareAndSwap(seen, n) {
			break
		}
	}
	defer f.running.Add(-1)

	if f.block != nil {
		<-f.block
	}
	f.mu.Lock()
	f.calls = append(f.calls, targetDate)
	f.mu.Unlock()
	if f.err != nil {
		return scoring.Result{}, f.err
	}
	r := f.result
	r.Date = targetDate
	return r, nil
}

type fakeStress struct {
	result stress.Result
	err    error
}

func (f *fakeStress) Compute(_ context.Context, targetDate time.Time) (stress.Result, error) {
	if f.err != nil {
		return stress.Result{}, f.err
	}
	r := f.result
	r.Date = targetDate
	return r, nil
}

type fakeAlerts struct {
	events []store.AlertEvent
	err    error
}

func (f *fakeAlerts) Detect(_ context.Context, targetDate time.Time) ([]store.AlertEvent, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

type fakeMetricStore struct {
	dates    []time.Time
	computed map[string]bool // date key -> has transmission score
	readErr  error
}

func (f *fakeMetricStore) ObservationDates(_ context.Context, start, end time.Time) ([]time.Time, error) {
	var out []time.Time
	for _, d := range f.dates {
		if !d.Before(start) && !d.After(end) {
			out = append(out, d)
		}
	}
	return out, nil
}

func (f *fakeMetricStore) ReadMetric(_ context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error) {
	if f.readErr != nil {
		return store.ComponentMetric{}, false, f.readErr
	}
	if dataset == config.DatasetTransmission && name == scoring.MetricScore && f.computed[store.DateKey(date)] {
		return store.ComponentMetric{Date: date, Dataset: dataset, Name: name}, true, nil
	}
	return store.ComponentMetric{}, false, nil
}

func newTestRunner(t *fakeTransmission, s *fakeStress, a *fakeAlerts, m *fakeMetricStore) *Runner {
	return NewRunner(t, s, a, m, nil, slog.Default())
}

func TestComputeDate_FullChain(t *testing.T) {
	transmission := &fakeTransmission{result: scoring.Result{Score: 71.5, Bucket: "B3"}}
	stressEngine := &fakeStress{result: stress.Result{Index: 64.2, Bucket: "S3"}}
	alerts := &fakeAlerts{events: []store.AlertEvent{
		{Code: "LIQUIDITY_SPIKE", Severity: "warning"},
		{Code: "STRESS_HIGH", Severity: "critical"},
	}}

	runner := newTestRunner(transmission, stressEngine, alerts, &fakeMetricStore{})

	result, err := runner.ComputeDate(context.Background(), day("2026-03-02"))
	require.NoError(t, err)

	assert.Equal(t, StagePersisted, result.Stage)
	assert.Equal(t, day("2026-03-02"), result.Date)
	assert.InDelta(t, 71.5, result.Transmission.Score, 1e-12)
	assert.InDelta(t, 64.2, result.Stress.Index, 1e-12)
	assert.Len(t, result.Alerts, 2)
	assert.Greater(t, result.Elapsed, time.Duration(0))
}

func TestComputeDate_StageOnFailure(t *testing.T) {
	boom := errors.New("disk gone")

	tests := []struct {
		name      string
		setup     func(*fakeTransmission, *fakeStress, *fakeAlerts)
		wantStage Stage
	}{
		{
			name:      "transmission failure",
			setup:     func(tr *fakeTransmission, _ *fakeStress, _ *fakeAlerts) { tr.err = boom },
			wantStage: StageComputeTransmission,
		},
		{
			name:      "stress failure",
			setup:     func(_ *fakeTransmission, st *fakeStress, _ *fakeAlerts) { st.err = boom },
			wantStage: StageComputeStress,
		},
		{
			name:      "alert failure",
			setup:     func(_ *fakeTransmission, _ *fakeStress, al *fakeAlerts) { al.err = boom },
			wantStage: StageDetectAlerts,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			transmission := &fakeTransmission{}
			stressEngine := &fakeStress{}
			alerts := &fakeAlerts{}
			tt.setup(transmission, stressEngine, alerts)

			runner := newTestRunner(transmission, stressEngine, alerts, &fakeMetricStore{})
			result, err := runner.ComputeDate(context.Background(), day("2026-03-02"))

			require.Error(t, err)
			assert.ErrorIs(t, err, boom)
			assert.Equal(t, tt.wantStage, result.Stage)
		})
	}
}

func TestComputeRange_AscendingOrder(t *testing.T) {
	metricStore := &fakeMetricStore{dates: []time.Time{
		day("2026-03-02"), day("2026-03-03"), day("2026-03-04"),
	}}
	transmission := &fakeTransmission{}

	runner := newTestRunner(transmission, &fakeStress{}, &fakeAlerts{}, metricStore)

	summary, err := runner.ComputeRange(context.Background(),
		day("2026-03-01"), day("2026-03-31"), RangeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Computed)
	assert.Zero(t, summary.Skipped)
	require.Len(t, transmission.calls, 3)
	assert.Equal(t, day("2026-03-02"), transmission.calls[0])
	assert.Equal(t, day("2026-03-04"), transmission.calls[2])
}

func TestComputeRange_SkipComputedResumes(t *testing.T) {
	metricStore := &fakeMetricStore{
		dates: []time.Time{day("2026-03-02"), day("2026-03-03"), day("2026-03-04")},
		computed: map[string]bool{
			"2026-03-02": true,
			"2026-03-03": true,
		},
	}
	transmission := &fakeTransmission{}
	alerts := &fakeAlerts{events: []store.AlertEvent{{Code: "POLICY_RATE_CHANGE"}}}

	runner := newTestRunner(transmission, &fakeStress{}, alerts, metricStore)

	summary, err := runner.ComputeRange(context.Background(),
		day("2026-03-01"), day("2026-03-31"), RangeOptions{SkipComputed: true})
	require.NoError(t, err)

	assert.Equal(t, 1, summary.Computed)
	assert.Equal(t, 2, summary.Skipped)
	assert.Equal(t, 1, summary.Alerts)
	require.Len(t, transmission.calls, 1)
	assert.Equal(t, day("2026-03-04"), transmission.calls[0])
}

func TestComputeRange_WithoutSkipRecomputesEverything(t *testing.T) {
	metricStore := &fakeMetricStore{
		dates:    []time.Time{day("2026-03-02"), day("2026-03-03")},
		computed: map[string]bool{"2026-03-02": true, "2026-03-03": true},
	}
	transmission := &fakeTransmission{}

	runner := newTestRunner(transmission, &fakeStress{}, &fakeAlerts{}, metricStore)

	summary, err := runner.ComputeRange(context.Background(),
		day("2026-03-01"), day("2026-03-31"), RangeOptions{})
	require.NoError(t, err)

	assert.Equal(t, 2, summary.Computed)
	assert.Zero(t, summary.Skipped)
}

func TestComputeRange_BoundsParallelism(t *testing.T) {
	var dates []time.Time
	base := day("2026-03-02")
	for i := 0; i < 8; i++ {
		dates = append(dates, base.AddDate(0, 0, i))
	}
	metricStore := &fakeMetricStore{dates: dates}

	block := make(chan struct{})
	transmission := &fakeTransmission{block: block}
	done := make(chan struct{})

	runner := newTestRunner(transmission, &fakeStress{}, &fakeAlerts{}, metricStore)

	go func() {
		defer close(done)
		_, err := runner.ComputeRange(context.Background(),
			day("2026-03-01"), day("2026-03-31"), RangeOptions{Parallelism: 2})
		assert.NoError(t, err)
	}()

	// Let the group saturate its limit, then release everything.
	time.Sleep(50 * time.Millisecond)
	close(block)
	<-done

	assert.LessOrEqual(t, transmission.maxSeen.Load(), int32(2))
	assert.Len(t, transmission.calls, 8)
}

func TestComputeRange_AbortsOnStoreError(t *testing.T) {
	metricStore := &fakeMetricStore{
		dates:   []time.Time{day("2026-03-02")},
		readErr: errors.New("database locked"),
	}
	runner := newTestRunner(&fakeTransmission{}, &fakeStress{}, &fakeAlerts{}, metricStore)

	_, err := runner.ComputeRange(context.Background(),
		day("2026-03-01"), day("2026-03-31"), RangeOptions{SkipComputed: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "database locked")
}

func TestComputeRange_EmptyRange(t *testing.T) {
	runner := newTestRunner(&fakeTransmission{}, &fakeStress{}, &fakeAlerts{}, &fakeMetricStore{})

	summary, err := runner.ComputeRange(context.Background(),
		day("2026-03-01"), day("2026-03-31"), RangeOptions{})
	require.NoError(t, err)
	assert.Zero(t, summary.Computed)
	assert.Zero(t, summary.Skipped)
}

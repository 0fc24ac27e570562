// Package rolling computes trailing-window statistics over stored series:
// windowed mean and standard deviation, z-scores of a target-date value
// against its trailing window, winsorization and the percentile transform
// used by the composite engines.
//
// The percentile transform maps a winsorized z-score through the normal CDF,
// percentile = 100 * Phi(z). This assumes the underlying series is
// approximately normal over the window; it is an approximation, not an
// empirical rank against the historical window.
package rolling

import (
	"context"
	"log/slog"
	"math"
	"time"

	apperrors "ratepulse/internal/errors"
	"ratepulse/internal/store"
)

// DefaultWinsorBound clamps z-scores to [-3, +3] before any percentile
// transform
const DefaultWinsorBound = 3.0

// WindowReader reads trailing observation windows from the store
type WindowReader interface {
	ReadWindow(ctx context.Context, seriesID string, targetDate time.Time, lookback int, mode store.WindowMode) ([]store.Observation, error)
}

// Stats summarizes one trailing window
type Stats struct {
	N             int
	Mean          float64
	StdSample     float64
	StdPopulation float64
	First         time.Time
	Last          time.Time
}

// ZScoreResult carries a z-score of a target-date value against its
// train-only trailing window, plus the sample size needed for alert
// evidence.
type ZScoreResult struct {
	// Z is meaningful only when OK is true.
	Z float64
	// OK is false when the window has fewer than 2 points or zero
	// dispersion. Callers must treat this as "insufficient data", never
	// as z = 0.
	OK bool
	// HasValue is false when the series has no observation on the target
	// date itself.
	HasValue bool
	Value    float64
	Window   Stats
}

// Calculator computes rolling statistics against a window reader
type Calculator struct {
	reader      WindowReader
	winsorBound float64
	logger      *slog.Logger
}

// NewCalculator creates a rolling statistics calculator. A non-positive
// winsorBound falls back to DefaultWinsorBound.
func NewCalculator(reader WindowReader, winsorBound float64, logger *slog.Logger) *Calculator {
	if winsorBound <= 0 {
		winsorBound = DefaultWinsorBound
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Calculator{reader: reader, winsorBound: winsorBound, logger: logger}
}

// WinsorBound returns the configured clamp bound
func (c *Calculator) WinsorBound() float64 {
	return c.winsorBound
}

// Compute summarizes a slice of values. Non-finite values are excluded from
// the summary.
func Compute(values []float64) Stats {
	var (
		n    int
		mean float64
		m2   float64
	)
	// Welford's online update keeps the variance numerically stable on
	// long windows.
	for _, v := range values {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			continue
		}
		n++
		delta := v - mean
		mean += delta / float64(n)
		m2 += delta * (v - mean)
	}

	s := Stats{N: n, Mean: mean}
	if n >= 2 {
		s.StdSample = math.Sqrt(m2 / float64(n-1))
		s.StdPopulation = math.Sqrt(m2 / float64(n))
	}
	return s
}

// ZScore returns the z-score of x against the window summary. The second
// return value is false when the window is too small or has no dispersion.
func (s Stats) ZScore(x float64) (float64, bool) {
	if s.N < 2 || s.StdSample < 1e-12 {
		return 0, false
	}
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0, false
	}
	return (x - s.Mean) / s.StdSample, true
}

// Winsorize clamps z to [-bound, +bound]
func Winsorize(z, bound float64) float64 {
	if z > bound {
		return bound
	}
	if z < -bound {
		return -bound
	}
	return z
}

// PercentileFromZ maps a z-score to a 0-100 percentile through the normal
// CDF. Callers winsorize first.
func PercentileFromZ(z float64) float64 {
	return 100 * 0.5 * (1 + math.Erf(z/math.Sqrt2))
}

// LatestZScore computes the z-score of the series value on targetDate
// against its trailing train-only window of lookback observations. The
// window never includes the target date itself, so scoring a date cannot
// leak same-day or future information into the statistic.
func (c *Calculator) LatestZScore(ctx context.Context, seriesID string, targetDate time.Time, lookback int) (ZScoreResult, error) {
	target, err := c.reader.ReadWindow(ctx, seriesID, targetDate, 1, store.WindowInclusive)
	if err != nil {
		return ZScoreResult{}, err
	}

	var result ZScoreResult
	if len(target) == 1 && target[0].Date.Equal(truncateDay(targetDate)) {
		result.HasValue = true
		result.Value = target[0].Value
	}
	if result.HasValue && (math.IsNaN(result.Value) || math.IsInf(result.Value, 0)) {
		return ZScoreResult{}, apperrors.NewMalformedInput("non-finite raw value", nil).
			WithContext("series_id", seriesID).
			WithContext("date", store.DateKey(targetDate))
	}

	window, err := c.reader.ReadWindow(ctx, seriesID, targetDate, lookback, store.WindowTrainOnly)
	if err != nil {
		return ZScoreResult{}, err
	}

	values := make([]float64, len(window))
	for i, obs := range window {
		values[i] = obs.Value
	}
	result.Window = Compute(values)
	if len(window) > 0 {
		result.Window.First = window[0].Date
		result.Window.Last = window[len(window)-1].Date
	}

	if !result.HasValue {
		return result, nil
	}

	z, ok := result.Window.ZScore(result.Value)
	if !ok {
		c.logger.DebugContext(ctx, "insufficient window for z-score",
			"series_id", seriesID,
			"date", store.DateKey(targetDate),
			"n", result.Window.N,
		)
		return result, nil
	}

	result.Z = z
	result.OK = true
	return result, nil
}

// LatestPercentile computes the winsorized normal-CDF percentile of the
// series value on targetDate against its train-only trailing window.
func (c *Calculator) LatestPercentile(ctx context.Context, seriesID string, targetDate time.Time, lookback int) (float64, ZScoreResult, error) {
	result, err := c.LatestZScore(ctx, seriesID, targetDate, lookback)
	if err != nil || !result.OK {
		return 0, result, err
	}
	return PercentileFromZ(Winsorize(result.Z, c.winsorBound)), result, nil
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

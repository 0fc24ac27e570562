// Package scoring computes the composite 0-100 transmission score: per
// component family, train-only z-scores of the underlying raw series are
// direction-corrected, combined under fixed weights, winsorized and mapped
// through the normal-CDF percentile transform onto the score scale.
package scoring

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ratepulse/internal/config"
	"ratepulse/internal/rolling"
	"ratepulse/internal/store"
)

// Metric names persisted under the transmission dataset
const (
	MetricScore        = "transmission_score"
	MetricRegimeBucket = "regime_bucket"
)

// MetricWriter persists computed component metrics
type MetricWriter interface {
	WriteMetric(ctx context.Context, m store.ComponentMetric) error
}

// Engine computes and persists the transmission score for a target date
type Engine struct {
	calc    *rolling.Calculator
	metrics MetricWriter
	cfg     config.AnalyticsConfig
	logger  *slog.Logger
}

// NewEngine creates a transmission score engine
func NewEngine(calc *rolling.Calculator, metrics MetricWriter, cfg config.AnalyticsConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		calc:    calc,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "transmission_engine")),
	}
}

// Compute calculates the transmission score for targetDate and persists the
// per-family metrics, the composite score and the regime bucket.
//
// Cold-start policy: with fewer than the configured minimum of available
// families the score is not computed from data; the engine emits the fixed
// neutral score with a calibrating marker in its sources so consumers can
// render a "not yet reliable" state. Missing data never fails the call;
// only store I/O does.
func (e *Engine) Compute(ctx context.Context, targetDate time.Time) (Result, error) {
	result := Result{Date: targetDate}

	for _, family := range Families {
		fs, err := e.scorer().score(ctx, family, targetDate)
		if err != nil {
			return Result{}, fmt.Errorf("score family %s: %w", family, err)
		}
		result.Families = append(result.Families, fs)
		if fs.Available {
			result.Available++
		}
	}

	if result.Available < e.cfg.MinFamilies {
		result.Score = e.cfg.NeutralScore
		result.Neutral = true
		result.Sources = NeutralSources
		e.logger.InfoContext(ctx, "cold start, emitting neutral score",
			"date", store.DateKey(targetDate),
			"families_available", result.Available,
			"min_families", e.cfg.MinFamilies,
		)
	} else {
		composite := e.composite(result.Families)
		result.Score = rolling.PercentileFromZ(rolling.Winsorize(composite, e.calc.WinsorBound()))
		result.Sources = availableNames(result.Families)
	}
	result.Bucket = BucketForScore(result.Score)

	if err := e.persist(ctx, result); err != nil {
		return Result{}, err
	}

	e.logger.InfoContext(ctx, "transmission score computed",
		"date", store.DateKey(targetDate),
		"score", result.Score,
		"bucket", result.Bucket,
		"neutral", result.Neutral,
		"families_available", result.Available,
	)
	return result, nil
}

// composite combines the available family z-scores under the configured
// weights, renormalized to sum to 1 over whichever families are available.
func (e *Engine) composite(families []FamilyScore) float64 {
	weights := map[Family]float64{
		FamilyCurve:     e.cfg.TransmissionWeights.Curve,
		FamilyLiquidity: e.cfg.TransmissionWeights.Liquidity,
		FamilySupply:    e.cfg.TransmissionWeights.Supply,
		FamilyDemand:    e.cfg.TransmissionWeights.Demand,
		FamilyPolicy:    e.cfg.TransmissionWeights.Policy,
	}

	var totalWeight float64
	for _, fs := range families {
		if fs.Available {
			totalWeight += weights[fs.Family]
		}
	}
	if totalWeight <= 0 {
		return 0
	}

	var composite float64
	for _, fs := range families {
		if fs.Available {
			composite += fs.Z * (weights[fs.Family] / totalWeight)
		}
	}
	return composite
}

func (e *Engine) persist(ctx context.Context, result Result) error {
	for _, fs := range result.Families {
		if !fs.Available {
			continue
		}
		m := store.ComponentMetric{
			Date:    result.Date,
			Dataset: config.DatasetTransmission,
			Name:    string(fs.Family) + "_zscore",
			Value:   store.Numeric(fs.Z),
			Sources: detailNames(fs.Detail),
		}
		if err := e.metrics.WriteMetric(ctx, m); err != nil {
			return fmt.Errorf("persist family metric %s: %w", fs.Family, err)
		}
	}

	score := store.ComponentMetric{
		Date:    result.Date,
		Dataset: config.DatasetTransmission,
		Name:    MetricScore,
		Value:   store.Numeric(result.Score),
		Sources: result.Sources,
	}
	if err := e.metrics.WriteMetric(ctx, score); err != nil {
		return fmt.Errorf("persist transmission score: %w", err)
	}

	bucket := store.ComponentMetric{
		Date:    result.Date,
		Dataset: config.DatasetTransmission,
		Name:    MetricRegimeBucket,
		Value:   store.Text(result.Bucket),
		Sources: result.Sources,
	}
	if err := e.metrics.WriteMetric(ctx, bucket); err != nil {
		return fmt.Errorf("persist regime bucket: %w", err)
	}
	return nil
}

func (e *Engine) scorer() *componentScorer {
	return &componentScorer{calc: e.calc, cfg: e.cfg, logger: e.logger}
}

func availableNames(families []FamilyScore) string {
	var names []string
	for _, fs := range families {
		if fs.Available {
			names = append(names, string(fs.Family))
		}
	}
	return strings.Join(names, ",")
}

func detailNames(detail map[string]float64) string {
	names := make([]string, 0, len(detail))
	for name := range detail {
		names = append(names, name)
	}
	sort.Strings(names)
	return strings.Join(names, ",")
}

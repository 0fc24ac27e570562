// Package stress computes the composite 0-100 stress index on top of the
// persisted transmission score plus liquidity, curve, auction and turnover
// sub-scores, each a winsorized normal-CDF percentile of a train-only
// z-score.
package stress

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"ratepulse/internal/config"
	apperrors "ratepulse/internal/errors"
	"ratepulse/internal/rolling"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
)

// MetricStore reads and writes component metrics
type MetricStore interface {
	ReadMetric(ctx context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error)
	WriteMetric(ctx context.Context, m store.ComponentMetric) error
}

// Engine computes and persists the stress index for a target date
type Engine struct {
	calc    *rolling.Calculator
	metrics MetricStore
	cfg     config.AnalyticsConfig
	logger  *slog.Logger
}

// NewEngine creates a stress index engine
func NewEngine(calc *rolling.Calculator, metrics MetricStore, cfg config.AnalyticsConfig, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		calc:    calc,
		metrics: metrics,
		cfg:     cfg,
		logger:  logger.With(slog.String("component", "stress_engine")),
	}
}

// Compute calculates the stress index for targetDate. The transmission score
// must already be persisted for that date; if not, the call fails with a
// dependency-missing error rather than silently defaulting. Unavailable
// sub-components are dropped with their weight renormalized over the rest,
// and the omission is reported through the result's data availability.
func (e *Engine) Compute(ctx context.Context, targetDate time.Time) (Result, error) {
	transmission, found, err := e.metrics.ReadMetric(ctx, targetDate, config.DatasetTransmission, scoring.MetricScore)
	if err != nil {
		return Result{}, fmt.Errorf("read transmission score: %w", err)
	}
	if !found {
		return Result{}, apperrors.NewDependencyMissing("transmission score not computed").
			WithContext("date", store.DateKey(targetDate))
	}

	result := Result{Date: targetDate}
	result.Availability.TransmissionNeutral = strings.Contains(transmission.Sources, "neutral")

	components := []Component{{
		Name:       ComponentTransmission,
		Percentile: transmission.Value.Num,
		Available:  true,
	}}

	subScores := []struct {
		name     string
		seriesID string
		lookback int
		// direction maps the raw z into the stress direction before the
		// percentile transform.
		direction func(z float64) float64
	}{
		{ComponentLiquidity, config.SeriesOvernightRate, e.cfg.LiquidityLookback, func(z float64) float64 { return z }},
		{ComponentCurve, config.SeriesCurveSlope, e.cfg.CurveLookback, func(z float64) float64 {
			if z < 0 {
				return -z
			}
			return z
		}},
		{ComponentAuction, config.SeriesAuctionBidToCover, e.cfg.CurveLookback, func(z float64) float64 { return -z }},
		{ComponentTurnover, config.SeriesSecondaryTurnover, e.cfg.CurveLookback, func(z float64) float64 { return -z }},
	}

	for _, sub := range subScores {
		zr, err := e.calc.LatestZScore(ctx, sub.seriesID, targetDate, sub.lookback)
		if err != nil && !apperrors.IsMalformedInput(err) {
			return Result{}, fmt.Errorf("sub-score %s: %w", sub.name, err)
		}

		c := Component{Name: sub.name}
		if err == nil && zr.HasValue && zr.OK {
			z := rolling.Winsorize(sub.direction(zr.Z), e.calc.WinsorBound())
			c.Percentile = rolling.PercentileFromZ(z)
			c.Available = true
		} else {
			e.logger.DebugContext(ctx, "stress sub-score unavailable",
				"component", sub.name,
				"date", store.DateKey(targetDate),
			)
		}
		components = append(components, c)
	}

	e.weigh(components)
	result.Components = components

	for _, c := range components {
		if c.Available {
			result.Index += c.Percentile * c.Weight
			result.Availability.Included = append(result.Availability.Included, c.Name)
		} else {
			result.Availability.Excluded = append(result.Availability.Excluded, c.Name)
		}
	}
	result.Bucket = BucketForIndex(result.Index)
	result.Drivers = drivers(components)

	if err := e.computeGlobalComparator(ctx, targetDate); err != nil {
		return Result{}, err
	}

	if err := e.persist(ctx, result); err != nil {
		return Result{}, err
	}

	e.logger.InfoContext(ctx, "stress index computed",
		"date", store.DateKey(targetDate),
		"stress_index", result.Index,
		"bucket", result.Bucket,
		"included", strings.Join(result.Availability.Included, ","),
	)
	return result, nil
}

// weigh assigns effective weights: the configured weights renormalized to
// sum to 1 over the available components.
func (e *Engine) weigh(components []Component) {
	raw := map[string]float64{
		ComponentTransmission: e.cfg.StressWeights.Transmission,
		ComponentLiquidity:    e.cfg.StressWeights.Liquidity,
		ComponentCurve:        e.cfg.StressWeights.Curve,
		ComponentAuction:      e.cfg.StressWeights.Auction,
		ComponentTurnover:     e.cfg.StressWeights.Turnover,
	}

	var total float64
	for _, c := range components {
		if c.Available {
			total += raw[c.Name]
		}
	}
	if total <= 0 {
		return
	}

	for i := range components {
		if components[i].Available {
			components[i].Weight = raw[components[i].Name] / total
		}
	}
}

// drivers decomposes the index into named signed contributions,
// (percentile - 50) x weight, sorted by absolute magnitude, top 3.
func drivers(components []Component) []Driver {
	var out []Driver
	for _, c := range components {
		if !c.Available {
			continue
		}
		out = append(out, Driver{
			Name:         c.Name,
			Contribution: (c.Percentile - 50) * c.Weight,
			Percentile:   c.Percentile,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return abs(out[i].Contribution) > abs(out[j].Contribution)
	})
	if len(out) > 3 {
		out = out[:3]
	}
	return out
}

// computeGlobalComparator persists the cross-market spread versus the
// foreign reference yield when that series exists. It is an additive input
// to the alerting layer, not to the composite, and degrades silently when
// the series is unavailable.
func (e *Engine) computeGlobalComparator(ctx context.Context, targetDate time.Time) error {
	foreign, err := e.calc.LatestZScore(ctx, config.SeriesForeignRefYield, targetDate, e.cfg.CurveLookback)
	if err != nil || !foreign.HasValue {
		return nil // omitted, not erroring
	}
	domestic, err := e.calc.LatestZScore(ctx, config.SeriesCurve10Y, targetDate, e.cfg.CurveLookback)
	if err != nil || !domestic.HasValue {
		return nil
	}

	spread := domestic.Value - foreign.Value
	m := store.ComponentMetric{
		Date:    targetDate,
		Dataset: config.DatasetStress,
		Name:    MetricGlobalSpread,
		Value:   store.Numeric(spread),
		Sources: config.SeriesCurve10Y + "," + config.SeriesForeignRefYield,
	}
	if err := e.metrics.WriteMetric(ctx, m); err != nil {
		return fmt.Errorf("persist global spread: %w", err)
	}

	if domestic.OK && foreign.OK {
		z := rolling.Winsorize(domestic.Z-foreign.Z, e.calc.WinsorBound())
		m := store.ComponentMetric{
			Date:    targetDate,
			Dataset: config.DatasetStress,
			Name:    MetricGlobalZ,
			Value:   store.Numeric(z),
			Sources: config.SeriesCurve10Y + "," + config.SeriesForeignRefYield,
		}
		if err := e.metrics.WriteMetric(ctx, m); err != nil {
			return fmt.Errorf("persist global spread z: %w", err)
		}
	}
	return nil
}

func (e *Engine) persist(ctx context.Context, result Result) error {
	sources := strings.Join(result.Availability.Included, ",")
	if result.Availability.TransmissionNeutral {
		sources += "; transmission neutral"
	}

	metrics := []store.ComponentMetric{
		{
			Date:    result.Date,
			Dataset: config.DatasetStress,
			Name:    MetricIndex,
			Value:   store.Numeric(result.Index),
			Sources: sources,
		},
		{
			Date:    result.Date,
			Dataset: config.DatasetStress,
			Name:    MetricRegimeBucket,
			Value:   store.Text(result.Bucket),
			Sources: sources,
		},
		{
			Date:    result.Date,
			Dataset: config.DatasetStress,
			Name:    MetricTopDrivers,
			Value:   store.Text(formatDrivers(result.Drivers)),
			Sources: sources,
		},
	}

	for _, c := range result.Components {
		if !c.Available || c.Name == ComponentTransmission {
			continue
		}
		metrics = append(metrics, store.ComponentMetric{
			Date:    result.Date,
			Dataset: config.DatasetStress,
			Name:    c.Name + "_percentile",
			Value:   store.Numeric(c.Percentile),
			Sources: sources,
		})
	}

	for _, m := range metrics {
		if err := e.metrics.WriteMetric(ctx, m); err != nil {
			return fmt.Errorf("persist stress metric %s: %w", m.Name, err)
		}
	}
	return nil
}

func formatDrivers(drivers []Driver) string {
	parts := make([]string, len(drivers))
	for i, d := range drivers {
		parts[i] = fmt.Sprintf("%s:%+.2f", d.Name, d.Contribution)
	}
	return strings.Join(parts, ",")
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

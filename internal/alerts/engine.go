// Package alerts evaluates configurable threshold rules against computed
// metrics and rolling statistics, emitting alert events with quantitative
// evidence. Rules come in three flavors: z-score checks against train-only
// trailing windows, absolute-level checks against computed scores, and
// event checks (a policy rate change is a fact, not a statistic).
//
// An alert without complete evidence is suppressed, never emitted with
// gaps: consumers render units and sample sizes straight from the evidence
// payload.
package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"ratepulse/internal/config"
	apperrors "ratepulse/internal/errors"
	"ratepulse/internal/rolling"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

// Store is the persistence surface the alert engine needs
type Store interface {
	ReadMetric(ctx context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error)
	WriteAlert(ctx context.Context, event store.AlertEvent) error
	ResolveBaseline(ctx context.Context, targetDate time.Time, dataset, metricName string) (time.Time, bool, error)
}

// Engine evaluates alert rules for a target date
type Engine struct {
	calc       *rolling.Calculator
	store      Store
	thresholds *ThresholdProvider
	logger     *slog.Logger
}

// NewEngine creates an alert engine
func NewEngine(calc *rolling.Calculator, st Store, thresholds *ThresholdProvider, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		calc:       calc,
		store:      st,
		thresholds: thresholds,
		logger:     logger.With(slog.String("component", "alert_engine")),
	}
}

type rule struct {
	code     string
	evaluate func(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error)
}

// Detect evaluates every configured rule for targetDate, persists triggered
// events and returns them. A missing metric for one rule never blocks the
// others; only store I/O failures abort the run.
func (e *Engine) Detect(ctx context.Context, targetDate time.Time) ([]store.AlertEvent, error) {
	rules := []rule{
		{CodeLiquiditySpike, e.liquiditySpike},
		{CodeCurveBearSteepening, e.curveBearSteepening},
		{CodeWeakAuctionDemand, e.weakAuctionDemand},
		{CodeTurnoverDrop, e.turnoverDrop},
		{CodePolicyRateChange, e.policyRateChange},
		{CodeTransmissionJump, e.transmissionJump},
		{CodeTransmissionHigh, e.transmissionHigh},
		{CodeStressHigh, e.stressHigh},
	}

	var events []store.AlertEvent
	for _, r := range rules {
		threshold := e.thresholds.Get(ctx, r.code)
		if !threshold.Enabled {
			continue
		}

		event, err := r.evaluate(ctx, targetDate, threshold)
		if err != nil {
			if apperrors.IsStorage(err) {
				return nil, fmt.Errorf("evaluate rule %s: %w", r.code, err)
			}
			e.logger.WarnContext(ctx, "rule evaluation skipped",
				"alert_code", r.code,
				"date", store.DateKey(targetDate),
				"error", err,
			)
			continue
		}
		if event == nil {
			continue
		}

		if !evidenceComplete(*event) {
			e.logger.WarnContext(ctx, "suppressing alert with incomplete evidence",
				"alert_code", r.code,
				"date", store.DateKey(targetDate),
			)
			continue
		}

		event.ID = uuid.New().String()
		event.Date = targetDate
		event.Code = r.code
		event.Severity = threshold.Severity

		if err := e.store.WriteAlert(ctx, *event); err != nil {
			return nil, fmt.Errorf("persist alert %s: %w", r.code, err)
		}
		events = append(events, *event)

		e.logger.InfoContext(ctx, "alert emitted",
			"alert_code", r.code,
			"date", store.DateKey(targetDate),
			"severity", threshold.Severity,
			"metric_value", event.MetricValue,
			"threshold", event.Threshold,
		)
	}
	return events, nil
}

// evidenceComplete enforces the evidence contract: metric, method and unit
// always; a positive sample size and window for statistical methods.
func evidenceComplete(event store.AlertEvent) bool {
	ev := event.Evidence
	if ev.Metric == "" || ev.Method == "" || ev.Unit == "" {
		return false
	}
	if ev.Method == MethodZScore && (ev.N < 2 || ev.Window <= 0) {
		return false
	}
	return true
}

// zScoreTrigger evaluates one z-score rule: the direction-corrected z of the
// series on the target date against its trailing window versus the
// configured threshold.
func (e *Engine) zScoreTrigger(ctx context.Context, date time.Time, t store.AlertThreshold, seriesID string, invert bool, message string) (*store.AlertEvent, error) {
	lookback := int(t.Params["window"])
	zr, err := e.calc.LatestZScore(ctx, seriesID, date, lookback)
	if err != nil {
		return nil, err
	}
	if !zr.HasValue || !zr.OK {
		return nil, nil
	}

	z := zr.Z
	if invert {
		z = -z
	}
	limit := t.Params["zscore"]
	if z <= limit {
		return nil, nil
	}

	return &store.AlertEvent{
		Message:     fmt.Sprintf("%s: z=%.2f above %.2f", message, z, limit),
		MetricValue: z,
		Threshold:   limit,
		Evidence: store.AlertEvidence{
			Metric:       seriesID,
			Method:       MethodZScore,
			Unit:         "sigma",
			BaselineDate: store.DateKey(zr.Window.Last),
			N:            zr.Window.N,
			Window:       lookback,
		},
	}, nil
}

func (e *Engine) liquiditySpike(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	return e.zScoreTrigger(ctx, date, t, config.SeriesOvernightRate, false, "overnight rate spike")
}

// curveBearSteepening triggers on an unusually steepening slope while the
// long end is rising; a steepening driven by a falling short end is not a
// bear move.
func (e *Engine) curveBearSteepening(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	event, err := e.zScoreTrigger(ctx, date, t, config.SeriesCurveSlope, false, "curve bear-steepening")
	if err != nil || event == nil {
		return event, err
	}

	long, err := e.calc.LatestZScore(ctx, config.SeriesCurve10Y, date, int(t.Params["window"]))
	if err != nil {
		if apperrors.IsStorage(err) {
			return nil, err
		}
		return nil, nil
	}
	if long.HasValue && long.OK && long.Z <= 0 {
		return nil, nil
	}
	return event, nil
}

func (e *Engine) weakAuctionDemand(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	return e.zScoreTrigger(ctx, date, t, config.SeriesAuctionBidToCover, true, "weak auction demand")
}

func (e *Engine) turnoverDrop(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	return e.zScoreTrigger(ctx, date, t, config.SeriesSecondaryTurnover, true, "secondary turnover drop")
}

// policyRateChange is event-based: it compares the policy rate on the target
// date against the previous available observation, not against a statistic.
func (e *Engine) policyRateChange(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	current, err := e.calc.LatestZScore(ctx, config.SeriesPolicyRate, date, 1)
	if err != nil {
		return nil, err
	}
	if !current.HasValue || current.Window.N < 1 {
		return nil, nil
	}

	previous := current.Window.Mean // window of 1: the prior observation
	change := current.Value - previous
	minChange := t.Params["min_change"]
	if change < minChange && change > -minChange {
		return nil, nil
	}

	direction := "hike"
	if change < 0 {
		direction = "cut"
	}
	return &store.AlertEvent{
		Message:     fmt.Sprintf("policy rate %s: %.2f -> %.2f", direction, previous, current.Value),
		MetricValue: change,
		Threshold:   minChange,
		Evidence: store.AlertEvidence{
			Metric:       config.SeriesPolicyRate,
			Method:       MethodEvent,
			Unit:         "pp",
			BaselineDate: store.DateKey(current.Window.Last),
			N:            2,
			Window:       1,
		},
	}, nil
}

// transmissionJump compares the transmission score against the last
// available computed day (the baseline date), not against target-1.
func (e *Engine) transmissionJump(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	current, found, err := e.store.ReadMetric(ctx, date, config.DatasetTransmission, scoring.MetricScore)
	if err != nil || !found {
		return nil, err
	}

	baselineDate, found, err := e.store.ResolveBaseline(ctx, date, config.DatasetTransmission, scoring.MetricScore)
	if err != nil || !found {
		return nil, err
	}
	baseline, found, err := e.store.ReadMetric(ctx, baselineDate, config.DatasetTransmission, scoring.MetricScore)
	if err != nil || !found {
		return nil, err
	}

	jump := t.Params["jump"]
	delta := current.Value.Num - baseline.Value.Num
	if delta < jump {
		return nil, nil
	}

	return &store.AlertEvent{
		Message:     fmt.Sprintf("transmission score jumped %.1f points since %s", delta, store.DateKey(baselineDate)),
		MetricValue: delta,
		Threshold:   jump,
		Evidence: store.AlertEvidence{
			Metric:       scoring.MetricScore,
			Method:       MethodAbsolute,
			Unit:         "points",
			BaselineDate: store.DateKey(baselineDate),
			N:            2,
			Window:       1,
		},
	}, nil
}

func (e *Engine) transmissionHigh(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	return e.levelTrigger(ctx, date, t, config.DatasetTransmission, scoring.MetricScore, "transmission score")
}

func (e *Engine) stressHigh(ctx context.Context, date time.Time, t store.AlertThreshold) (*store.AlertEvent, error) {
	return e.levelTrigger(ctx, date, t, config.DatasetStress, stress.MetricIndex, "stress index")
}

func (e *Engine) levelTrigger(ctx context.Context, date time.Time, t store.AlertThreshold, dataset, metricName, label string) (*store.AlertEvent, error) {
	m, found, err := e.store.ReadMetric(ctx, date, dataset, metricName)
	if err != nil || !found {
		return nil, err
	}

	level := t.Params["level"]
	if m.Value.Num < level {
		return nil, nil
	}

	return &store.AlertEvent{
		Message:     fmt.Sprintf("%s at %.1f, at or above %.1f", label, m.Value.Num, level),
		MetricValue: m.Value.Num,
		Threshold:   level,
		Evidence: store.AlertEvidence{
			Metric: metricName,
			Method: MethodAbsolute,
			Unit:   "points",
			N:      1,
			Window: 1,
		},
	}, nil
}

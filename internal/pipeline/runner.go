// Package pipeline drives the per-date computation chain
// PENDING -> COMPUTE_TRANSMISSION -> COMPUTE_STRESS -> DETECT_ALERTS ->
// PERSISTED, and bulk computation over date ranges with resumable,
// bounded-parallel backfill.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ratepulse/internal/config"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

// TransmissionEngine computes the transmission score for a date
type TransmissionEngine interface {
	Compute(ctx context.Context, targetDate time.Time) (scoring.Result, error)
}

// StressEngine computes the stress index for a date
type StressEngine interface {
	Compute(ctx context.Context, targetDate time.Time) (stress.Result, error)
}

// AlertEngine evaluates alert rules for a date
type AlertEngine interface {
	Detect(ctx context.Context, targetDate time.Time) ([]store.AlertEvent, error)
}

// MetricStore is the store surface the runner needs for range iteration and
// skip-computed checks
type MetricStore interface {
	ObservationDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
	ReadMetric(ctx context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error)
}

// Runner orchestrates the engines for single dates and ranges
type Runner struct {
	transmission TransmissionEngine
	stress       StressEngine
	alerts       AlertEngine
	store        MetricStore
	tracer       *Tracer
	logger       *slog.Logger
}

// NewRunner creates a pipeline runner. The tracer may be nil for untraced
// runs.
func NewRunner(transmission TransmissionEngine, stressEngine StressEngine, alerts AlertEngine, metricStore MetricStore, tracer *Tracer, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		transmission: transmission,
		stress:       stressEngine,
		alerts:       alerts,
		store:        metricStore,
		tracer:       tracer,
		logger:       logger.With(slog.String("component", "pipeline")),
	}
}

// ComputeDate runs the full chain for one date. Missing data never aborts a
// run: a cold-start transmission score flows through as a labeled neutral
// value and alerting evaluates whatever exists. Store I/O failures abort.
func (r *Runner) ComputeDate(ctx context.Context, targetDate time.Time) (DateResult, error) {
	start := time.Now()
	result := DateResult{Date: targetDate, Stage: StagePending}

	ctx, span := r.tracer.StartDate(ctx, targetDate)
	defer span.End()

	result.Stage = StageComputeTransmission
	transmission, err := r.transmission.Compute(ctx, targetDate)
	if err != nil {
		r.tracer.RecordFailure(ctx, span, string(result.Stage), err)
		return result, fmt.Errorf("compute transmission for %s: %w", store.DateKey(targetDate), err)
	}
	result.Transmission = transmission
	r.tracer.RecordTransmission(ctx, transmission)

	result.Stage = StageComputeStress
	stressResult, err := r.stress.Compute(ctx, targetDate)
	if err != nil {
		r.tracer.RecordFailure(ctx, span, string(result.Stage), err)
		return result, fmt.Errorf("compute stress for %s: %w", store.DateKey(targetDate), err)
	}
	result.Stress = stressResult

	result.Stage = StageDetectAlerts
	events, err := r.alerts.Detect(ctx, targetDate)
	if err != nil {
		r.tracer.RecordFailure(ctx, span, string(result.Stage), err)
		return result, fmt.Errorf("detect alerts for %s: %w", store.DateKey(targetDate), err)
	}
	result.Alerts = events
	r.tracer.RecordAlerts(ctx, len(events))

	result.Stage = StagePersisted
	result.Elapsed = time.Since(start)
	r.tracer.RecordCompleted(ctx, result.Elapsed)

	r.logger.InfoContext(ctx, "date computed",
		"date", store.DateKey(targetDate),
		"transmission_score", transmission.Score,
		"stress_index", stressResult.Index,
		"alerts", len(events),
		"elapsed", result.Elapsed,
	)
	return result, nil
}

// ComputeRange computes every date in [start, end] that carries raw
// observations, in ascending order. With SkipComputed, dates that already
// have a persisted transmission score are skipped, so a cancelled run can
// resume idempotently. Parallelism > 1 computes dates concurrently with a
// bounded group.
func (r *Runner) ComputeRange(ctx context.Context, start, end time.Time, opts RangeOptions) (RangeSummary, error) {
	began := time.Now()
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}

	dates, err := r.store.ObservationDates(ctx, start, end)
	if err != nil {
		return RangeSummary{}, fmt.Errorf("list observation dates: %w", err)
	}

	r.logger.InfoContext(ctx, "starting range computation",
		"from", store.DateKey(start),
		"to", store.DateKey(end),
		"dates", len(dates),
		"skip_computed", opts.SkipComputed,
		"parallelism", opts.Parallelism,
	)

	var (
		mu      sync.Mutex
		summary RangeSummary
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(opts.Parallelism)

	for _, date := range dates {
		date := date
		g.Go(func() error {
			if opts.SkipComputed {
				_, found, err := r.store.ReadMetric(gctx, date, config.DatasetTransmission, scoring.MetricScore)
				if err != nil {
					return err
				}
				if found {
					mu.Lock()
					summary.Skipped++
					mu.Unlock()
					return nil
				}
			}

			result, err := r.ComputeDate(gctx, date)
			if err != nil {
				return err
			}

			mu.Lock()
			summary.Computed++
			summary.Alerts += len(result.Alerts)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return summary, fmt.Errorf("range computation: %w", err)
	}

	summary.Elapsed = time.Since(began)
	r.logger.InfoContext(ctx, "range computation finished",
		"computed", summary.Computed,
		"skipped", summary.Skipped,
		"alerts", summary.Alerts,
		"elapsed", summary.Elapsed,
	)
	return summary, nil
}

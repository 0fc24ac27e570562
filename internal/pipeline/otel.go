package pipeline

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
)

const tracerName = "ratepulse.pipeline"

// Tracer provides OpenTelemetry instrumentation for pipeline runs. A nil
// *Tracer is valid and records nothing.
type Tracer struct {
	tracer trace.Tracer

	datesComputed    metric.Int64Counter
	neutralFallbacks metric.Int64Counter
	alertsEmitted    metric.Int64Counter
	stageFailures    metric.Int64Counter
	computeDuration  metric.Float64Histogram
}

// NewTracer creates pipeline instrumentation on the given meter
func NewTracer(meter metric.Meter) (*Tracer, error) {
	t := &Tracer{tracer: otel.Tracer(tracerName)}

	var err error
	if t.datesComputed, err = meter.Int64Counter("ratepulse_dates_computed_total",
		metric.WithDescription("Dates fully computed end to end")); err != nil {
		return nil, fmt.Errorf("create dates counter: %w", err)
	}
	if t.neutralFallbacks, err = meter.Int64Counter("ratepulse_neutral_fallbacks_total",
		metric.WithDescription("Transmission computations that emitted the cold-start neutral score")); err != nil {
		return nil, fmt.Errorf("create neutral counter: %w", err)
	}
	if t.alertsEmitted, err = meter.Int64Counter("ratepulse_alerts_emitted_total",
		metric.WithDescription("Alert events emitted with complete evidence")); err != nil {
		return nil, fmt.Errorf("create alerts counter: %w", err)
	}
	if t.stageFailures, err = meter.Int64Counter("ratepulse_stage_failures_total",
		metric.WithDescription("Pipeline stage failures (store I/O and dependency errors)")); err != nil {
		return nil, fmt.Errorf("create failures counter: %w", err)
	}
	if t.computeDuration, err = meter.Float64Histogram("ratepulse_compute_duration_seconds",
		metric.WithDescription("End-to-end per-date computation duration")); err != nil {
		return nil, fmt.Errorf("create duration histogram: %w", err)
	}
	return t, nil
}

// StartDate opens the per-date span
func (t *Tracer) StartDate(ctx context.Context, targetDate time.Time) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(ctx)
	}
	return t.tracer.Start(ctx, "pipeline.compute_date",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.String("pipeline.date", store.DateKey(targetDate)),
		),
	)
}

// RecordTransmission records the transmission outcome, counting cold-start
// fallbacks separately
func (t *Tracer) RecordTransmission(ctx context.Context, result scoring.Result) {
	if t == nil {
		return
	}
	if result.Neutral {
		t.neutralFallbacks.Add(ctx, 1)
	}
}

// RecordAlerts counts emitted alert events
func (t *Tracer) RecordAlerts(ctx context.Context, count int) {
	if t == nil || count == 0 {
		return
	}
	t.alertsEmitted.Add(ctx, int64(count))
}

// RecordCompleted counts a fully persisted date
func (t *Tracer) RecordCompleted(ctx context.Context, elapsed time.Duration) {
	if t == nil {
		return
	}
	t.datesComputed.Add(ctx, 1)
	t.computeDuration.Record(ctx, elapsed.Seconds())
}

// RecordFailure marks the span and counts the failing stage
func (t *Tracer) RecordFailure(ctx context.Context, span trace.Span, stage string, err error) {
	if t == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	t.stageFailures.Add(ctx, 1,
		metric.WithAttributes(attribute.String("stage", stage)),
	)
}

package http

import (
	"context"
	"time"

	"ratepulse/internal/pipeline"
	"ratepulse/internal/store"
)

// AnalyticsStore is the persisted-metrics surface the read handlers need.
// *store.Store satisfies it.
type AnalyticsStore interface {
	ReadMetric(ctx context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error)
	ReadMetricsForDate(ctx context.Context, date time.Time, dataset string) ([]store.ComponentMetric, error)
	ReadAlerts(ctx context.Context, date time.Time) ([]store.AlertEvent, error)
	ResolveBaseline(ctx context.Context, targetDate time.Time, dataset, metricName string) (time.Time, bool, error)
	UpsertThreshold(ctx context.Context, t store.AlertThreshold) error
	ReadAllThresholds(ctx context.Context) (map[string]store.AlertThreshold, error)
}

// Computer runs the per-date computation chain. *pipeline.Runner satisfies
// it.
type Computer interface {
	ComputeDate(ctx context.Context, targetDate time.Time) (pipeline.DateResult, error)
}

// ThresholdCache invalidates the alert engine's cached thresholds after a
// write. *alerts.ThresholdProvider satisfies it.
type ThresholdCache interface {
	Invalidate(alertCode string)
}

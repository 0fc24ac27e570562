package pipeline

import (
	"time"

	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

// Stage is the computation stage a date run is in
type Stage string

const (
	StagePending             Stage = "PENDING"
	StageComputeTransmission Stage = "COMPUTE_TRANSMISSION"
	StageComputeStress       Stage = "COMPUTE_STRESS"
	StageDetectAlerts        Stage = "DETECT_ALERTS"
	StagePersisted           Stage = "PERSISTED"
)

// DateResult is the outcome of one fully computed date. A run always ends
// at PERSISTED, possibly with partial results (e.g. a neutral-fallback
// transmission score); only store I/O aborts it earlier.
type DateResult struct {
	Date         time.Time          `json:"date"`
	Stage        Stage              `json:"stage"`
	Transmission scoring.Result     `json:"transmission"`
	Stress       stress.Result      `json:"stress"`
	Alerts       []store.AlertEvent `json:"alerts"`
	Elapsed      time.Duration      `json:"elapsed"`
}

// RangeOptions controls a bulk computation over a date range
type RangeOptions struct {
	// SkipComputed makes a cancelled-and-resumed range run idempotent:
	// dates that already carry a persisted transmission score are not
	// recomputed.
	SkipComputed bool
	// Parallelism bounds concurrent date computations. Dates are
	// independent (each reads only already-finalized prior dates and
	// writes under its own date key), but note that baseline-comparing
	// alert rules see whatever prior metrics exist at evaluation time,
	// so strictly ordered alerting wants Parallelism 1 (the default).
	Parallelism int
}

// RangeSummary reports a bulk computation
type RangeSummary struct {
	Computed int           `json:"computed"`
	Skipped  int           `json:"skipped"`
	Alerts   int           `json:"alerts"`
	Elapsed  time.Duration `json:"elapsed"`
}

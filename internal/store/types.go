package store

import (
	"time"
)

// DateLayout is the canonical date key format used by every table. Dates are
// stored as TEXT so lexicographic and chronological order coincide.
const DateLayout = "2006-01-02"

// DateKey normalizes a time to its canonical date key
func DateKey(t time.Time) string {
	return t.Format(DateLayout)
}

// ParseDate parses a canonical date key back into a UTC time
func ParseDate(s string) (time.Time, error) {
	return time.Parse(DateLayout, s)
}

// Observation is one raw data point of a series
type Observation struct {
	SeriesID string    `json:"series_id"`
	Date     time.Time `json:"date"`
	Value    float64   `json:"value"`
	Source   string    `json:"source"`
}

// MetricKind distinguishes numeric from categorical metric values
type MetricKind string

const (
	MetricNumeric MetricKind = "numeric"
	MetricText    MetricKind = "text"
)

// MetricValue is a tagged union: a metric is either a number or a label,
// never both.
type MetricValue struct {
	Kind MetricKind `json:"kind"`
	Num  float64    `json:"num,omitempty"`
	Text string     `json:"text,omitempty"`
}

// Numeric constructs a numeric metric value
func Numeric(v float64) MetricValue {
	return MetricValue{Kind: MetricNumeric, Num: v}
}

// Text constructs a categorical metric value
func Text(v string) MetricValue {
	return MetricValue{Kind: MetricText, Text: v}
}

// ComponentMetric is one normalized measurement computed by an engine
type ComponentMetric struct {
	Date    time.Time   `json:"date"`
	Dataset string      `json:"dataset"`
	Name    string      `json:"metric_name"`
	Value   MetricValue `json:"value"`
	Sources string      `json:"sources"`
}

// AlertThreshold is the externally mutable configuration of one alert rule
type AlertThreshold struct {
	Code     string             `json:"alert_code" validate:"required"`
	Enabled  bool               `json:"enabled"`
	Severity string             `json:"severity" validate:"required,oneof=info warning critical"`
	Params   map[string]float64 `json:"params" validate:"required"`
}

// AlertEvidence is the quantitative backing of an emitted alert. An alert
// without complete evidence is suppressed, never emitted.
type AlertEvidence struct {
	Metric       string `json:"metric"`
	Method       string `json:"method"` // "zscore", "absolute" or "event"
	Unit         string `json:"unit"`
	BaselineDate string `json:"baseline_date,omitempty"`
	N            int    `json:"n"`
	Window       int    `json:"window"`
}

// AlertEvent is one triggered alert with its evidence
type AlertEvent struct {
	ID          string        `json:"id"`
	Date        time.Time     `json:"date"`
	Code        string        `json:"alert_code"`
	Severity    string        `json:"severity"`
	Message     string        `json:"message"`
	MetricValue float64       `json:"metric_value"`
	Threshold   float64       `json:"threshold"`
	Evidence    AlertEvidence `json:"evidence"`
}

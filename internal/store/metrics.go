package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	apperrors "ratepulse/internal/errors"
)

// WriteMetric upserts one component metric, keyed by
// (date, dataset, metric_name). Recomputation overwrites in place.
func (s *Store) WriteMetric(ctx context.Context, m ComponentMetric) error {
	var (
		num  sql.NullFloat64
		text sql.NullString
	)
	switch m.Value.Kind {
	case MetricNumeric:
		num = sql.NullFloat64{Float64: m.Value.Num, Valid: true}
	case MetricText:
		text = sql.NullString{String: m.Value.Text, Valid: true}
	default:
		return apperrors.NewValidationError("metric value has no kind", nil).
			WithContext("metric_name", m.Name)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO component_metrics
			(date, dataset, metric_name, value_kind, value_num, value_text, sources, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, dataset, metric_name) DO UPDATE SET
			value_kind = excluded.value_kind,
			value_num  = excluded.value_num,
			value_text = excluded.value_text,
			sources    = excluded.sources,
			updated_at = excluded.updated_at`,
		DateKey(m.Date), m.Dataset, m.Name, string(m.Value.Kind), num, text, m.Sources, time.Now().Unix())
	if err != nil {
		return apperrors.NewStorageError("upsert metric", err).
			WithContext("dataset", m.Dataset).
			WithContext("metric_name", m.Name).
			WithContext("date", DateKey(m.Date))
	}
	return nil
}

// ReadMetric reads one metric for a date. The second return value reports
// whether the metric exists; absence is not an error.
func (s *Store) ReadMetric(ctx context.Context, date time.Time, dataset, name string) (ComponentMetric, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT date, dataset, metric_name, value_kind, value_num, value_text, sources
		FROM component_metrics
		WHERE date = ? AND dataset = ? AND metric_name = ?`,
		DateKey(date), dataset, name)

	m, err := scanMetric(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ComponentMetric{}, false, nil
	}
	if err != nil {
		return ComponentMetric{}, false, apperrors.NewStorageError("read metric", err).
			WithContext("dataset", dataset).
			WithContext("metric_name", name)
	}
	return m, true, nil
}

// ReadMetricsForDate returns every metric of a dataset for one date
func (s *Store) ReadMetricsForDate(ctx context.Context, date time.Time, dataset string) ([]ComponentMetric, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, dataset, metric_name, value_kind, value_num, value_text, sources
		FROM component_metrics
		WHERE date = ? AND dataset = ?
		ORDER BY metric_name ASC`,
		DateKey(date), dataset)
	if err != nil {
		return nil, apperrors.NewStorageError("query metrics for date", err).
			WithContext("dataset", dataset)
	}
	defer rows.Close()

	var out []ComponentMetric
	for rows.Next() {
		m, err := scanMetric(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("scan metric", err)
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate metric rows", err)
	}
	return out, nil
}

// ResolveBaseline returns the most recent date strictly before targetDate
// for which the given dataset metric exists. This is a scan of persisted
// data, never a calendar-day subtraction, so weekend and holiday gaps are
// skipped transparently. The second return value is false when no prior
// computed date exists.
func (s *Store) ResolveBaseline(ctx context.Context, targetDate time.Time, dataset, metricName string) (time.Time, bool, error) {
	var dateKey sql.NullString
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(date) FROM component_metrics
		WHERE date < ? AND dataset = ? AND metric_name = ?`,
		DateKey(targetDate), dataset, metricName).Scan(&dateKey)
	if err != nil {
		return time.Time{}, false, apperrors.NewStorageError("resolve baseline", err).
			WithContext("dataset", dataset)
	}
	if !dateKey.Valid {
		return time.Time{}, false, nil
	}
	d, err := ParseDate(dateKey.String)
	if err != nil {
		return time.Time{}, false, apperrors.NewStorageError("parse baseline date", err).
			WithContext("date", dateKey.String)
	}
	return d, true, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMetric(row rowScanner) (ComponentMetric, error) {
	var (
		m       ComponentMetric
		dateKey string
		kind    string
		num     sql.NullFloat64
		text    sql.NullString
	)
	if err := row.Scan(&dateKey, &m.Dataset, &m.Name, &kind, &num, &text, &m.Sources); err != nil {
		return ComponentMetric{}, err
	}

	var err error
	m.Date, err = ParseDate(dateKey)
	if err != nil {
		return ComponentMetric{}, err
	}

	switch MetricKind(kind) {
	case MetricNumeric:
		m.Value = Numeric(num.Float64)
	case MetricText:
		m.Value = Text(text.String)
	}
	return m, nil
}

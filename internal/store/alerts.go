package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	apperrors "ratepulse/internal/errors"
)

// WriteAlert upserts one alert event, keyed by (date, alert_code).
// Recomputing a date replaces the event rather than duplicating it.
func (s *Store) WriteAlert(ctx context.Context, event AlertEvent) error {
	evidence, err := json.Marshal(event.Evidence)
	if err != nil {
		return apperrors.NewValidationError("marshal alert evidence", err).
			WithContext("alert_code", event.Code)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_events
			(date, alert_code, id, severity, message, metric_value, threshold, evidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, alert_code) DO UPDATE SET
			id           = excluded.id,
			severity     = excluded.severity,
			message      = excluded.message,
			metric_value = excluded.metric_value,
			threshold    = excluded.threshold,
			evidence     = excluded.evidence,
			created_at   = excluded.created_at`,
		DateKey(event.Date), event.Code, event.ID, event.Severity, event.Message,
		event.MetricValue, event.Threshold, string(evidence), time.Now().Unix())
	if err != nil {
		return apperrors.NewStorageError("upsert alert event", err).
			WithContext("alert_code", event.Code).
			WithContext("date", DateKey(event.Date))
	}
	return nil
}

// ReadAlerts returns every alert event persisted for one date
func (s *Store) ReadAlerts(ctx context.Context, date time.Time) ([]AlertEvent, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT date, alert_code, id, severity, message, metric_value, threshold, evidence
		FROM alert_events
		WHERE date = ?
		ORDER BY alert_code ASC`,
		DateKey(date))
	if err != nil {
		return nil, apperrors.NewStorageError("query alert events", err)
	}
	defer rows.Close()

	var out []AlertEvent
	for rows.Next() {
		var (
			event    AlertEvent
			dateKey  string
			evidence string
		)
		if err := rows.Scan(&dateKey, &event.Code, &event.ID, &event.Severity,
			&event.Message, &event.MetricValue, &event.Threshold, &evidence); err != nil {
			return nil, apperrors.NewStorageError("scan alert event", err)
		}
		event.Date, err = ParseDate(dateKey)
		if err != nil {
			return nil, apperrors.NewStorageError("parse alert date", err).
				WithContext("date", dateKey)
		}
		if err := json.Unmarshal([]byte(evidence), &event.Evidence); err != nil {
			return nil, apperrors.NewStorageError("unmarshal alert evidence", err).
				WithContext("alert_code", event.Code)
		}
		out = append(out, event)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate alert rows", err)
	}
	return out, nil
}

// UpsertThreshold writes or updates one alert threshold configuration record
func (s *Store) UpsertThreshold(ctx context.Context, t AlertThreshold) error {
	params, err := json.Marshal(t.Params)
	if err != nil {
		return apperrors.NewValidationError("marshal threshold params", err).
			WithContext("alert_code", t.Code)
	}

	enabled := 0
	if t.Enabled {
		enabled = 1
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO alert_thresholds (alert_code, enabled, severity, params, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(alert_code) DO UPDATE SET
			enabled    = excluded.enabled,
			severity   = excluded.severity,
			params     = excluded.params,
			updated_at = excluded.updated_at`,
		t.Code, enabled, t.Severity, string(params), time.Now().Unix())
	if err != nil {
		return apperrors.NewStorageError("upsert threshold", err).
			WithContext("alert_code", t.Code)
	}
	return nil
}

// ReadThreshold reads the stored configuration of one alert rule. The second
// return value is false when the store has no record; the caller then falls
// back to its hard-coded default.
func (s *Store) ReadThreshold(ctx context.Context, alertCode string) (AlertThreshold, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT alert_code, enabled, severity, params
		FROM alert_thresholds
		WHERE alert_code = ?`,
		alertCode)

	t, err := scanThreshold(row)
	if errors.Is(err, sql.ErrNoRows) {
		return AlertThreshold{}, false, nil
	}
	if err != nil {
		return AlertThreshold{}, false, apperrors.NewStorageError("read threshold", err).
			WithContext("alert_code", alertCode)
	}
	return t, true, nil
}

// ReadAllThresholds returns every stored threshold record keyed by alert code
func (s *Store) ReadAllThresholds(ctx context.Context) (map[string]AlertThreshold, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT alert_code, enabled, severity, params
		FROM alert_thresholds`)
	if err != nil {
		return nil, apperrors.NewStorageError("query thresholds", err)
	}
	defer rows.Close()

	out := make(map[string]AlertThreshold)
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, apperrors.NewStorageError("scan threshold", err)
		}
		out[t.Code] = t
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate threshold rows", err)
	}
	return out, nil
}

func scanThreshold(row rowScanner) (AlertThreshold, error) {
	var (
		t       AlertThreshold
		enabled int
		params  string
	)
	if err := row.Scan(&t.Code, &enabled, &t.Severity, &params); err != nil {
		return AlertThreshold{}, err
	}
	t.Enabled = enabled != 0
	if err := json.Unmarshal([]byte(params), &t.Params); err != nil {
		return AlertThreshold{}, err
	}
	return t, nil
}

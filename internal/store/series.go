package store

import (
	"context"
	"time"

	apperrors "ratepulse/internal/errors"
)

// WriteObservation upserts one raw observation. A re-fetch for the same
// (series_id, date, source) overwrites the value; it never appends a
// duplicate logical record.
func (s *Store) WriteObservation(ctx context.Context, obs Observation) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO raw_observations (series_id, date, value, source, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(series_id, date, source) DO UPDATE SET
			value = excluded.value,
			updated_at = excluded.updated_at`,
		obs.SeriesID, DateKey(obs.Date), obs.Value, obs.Source, time.Now().Unix())
	if err != nil {
		return apperrors.NewStorageError("upsert observation", err).
			WithContext("series_id", obs.SeriesID).
			WithContext("date", DateKey(obs.Date))
	}
	return nil
}

// ReadSeries returns the ordered (date, value) sequence of a series within
// [start, end]. When a date carries observations from several sources, the
// most recently updated one wins. Returns an empty slice, never an error,
// when no data exists.
func (s *Store) ReadSeries(ctx context.Context, seriesID string, start, end time.Time) ([]Observation, error) {
	// rowid breaks updated_at ties so same-second multi-source imports
	// still dedupe deterministically.
	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id, date, value, source FROM raw_observations r
		WHERE series_id = ? AND date >= ? AND date <= ?
		  AND rowid = (
			SELECT rowid FROM raw_observations
			WHERE series_id = r.series_id AND date = r.date
			ORDER BY updated_at DESC, rowid DESC
			LIMIT 1
		  )
		ORDER BY date ASC`,
		seriesID, DateKey(start), DateKey(end))
	if err != nil {
		return nil, apperrors.NewStorageError("query series", err).
			WithContext("series_id", seriesID)
	}
	defer rows.Close()

	var out []Observation
	for rows.Next() {
		var (
			obs     Observation
			dateKey string
		)
		if err := rows.Scan(&obs.SeriesID, &dateKey, &obs.Value, &obs.Source); err != nil {
			return nil, apperrors.NewStorageError("scan observation", err)
		}
		obs.Date, err = ParseDate(dateKey)
		if err != nil {
			return nil, apperrors.NewStorageError("parse observation date", err).
				WithContext("date", dateKey)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate series rows", err)
	}
	return out, nil
}

// ObservationDates returns the distinct dates within [start, end] that carry
// at least one raw observation for any series, in ascending order. Range
// computation iterates these instead of calendar days so weekends and
// holidays are skipped transparently.
func (s *Store) ObservationDates(ctx context.Context, start, end time.Time) ([]time.Time, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT date FROM raw_observations
		WHERE date >= ? AND date <= ?
		ORDER BY date ASC`,
		DateKey(start), DateKey(end))
	if err != nil {
		return nil, apperrors.NewStorageError("query observation dates", err)
	}
	defer rows.Close()

	var out []time.Time
	for rows.Next() {
		var dateKey string
		if err := rows.Scan(&dateKey); err != nil {
			return nil, apperrors.NewStorageError("scan observation date", err)
		}
		d, err := ParseDate(dateKey)
		if err != nil {
			return nil, apperrors.NewStorageError("parse observation date", err).
				WithContext("date", dateKey)
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate date rows", err)
	}
	return out, nil
}

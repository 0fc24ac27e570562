package store

import (
	"context"
	"time"

	apperrors "ratepulse/internal/errors"
)

// WindowMode selects whether a trailing window may include the target date
type WindowMode int

const (
	// WindowTrainOnly restricts the window to date < target. Any statistic
	// used to score the target date itself must use this mode so no future
	// (or same-day) information leaks into the statistic.
	WindowTrainOnly WindowMode = iota
	// WindowInclusive allows date <= target. Used for presentation-layer
	// reads, never for scoring.
	WindowInclusive
)

// ReadWindow returns up to lookback trailing observations of a series ending
// at targetDate, in ascending date order. The mode decides whether the
// target date itself may be part of the window.
func (s *Store) ReadWindow(ctx context.Context, seriesID string, targetDate time.Time, lookback int, mode WindowMode) ([]Observation, error) {
	cmp := "<"
	if mode == WindowInclusive {
		cmp = "<="
	}

	// rowid breaks updated_at ties so same-second multi-source imports
	// still dedupe deterministically.
	rows, err := s.db.QueryContext(ctx, `
		SELECT series_id, date, value, source FROM raw_observations r
		WHERE series_id = ? AND date `+cmp+` ?
		  AND rowid = (
			SELECT rowid FROM raw_observations
			WHERE series_id = r.series_id AND date = r.date
			ORDER BY updated_at DESC, rowid DESC
			LIMIT 1
		  )
		ORDER BY date DESC
		LIMIT ?`,
		seriesID, DateKey(targetDate), lookback)
	if err != nil {
		return nil, apperrors.NewStorageError("query window", err).
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
			return nil, apperrors.NewStorageError("scan window observation", err)
		}
		obs.Date, err = ParseDate(dateKey)
		if err != nil {
			return nil, apperrors.NewStorageError("parse window date", err).
				WithContext("date", dateKey)
		}
		out = append(out, obs)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewStorageError("iterate window rows", err)
	}

	// Reverse into ascending order.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

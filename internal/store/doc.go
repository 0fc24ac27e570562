// Package store provides the SQLite-backed time-indexed store that holds raw
// series observations, computed component metrics, alert threshold
// configuration and alert events.
//
// All writes are idempotent upserts keyed by (series_id, date, source) for
// observations, (date, dataset, metric_name) for metrics and
// (date, alert_code) for alert events, so recomputing a date overwrites
// rather than duplicates. The store implements no locking of its own beyond
// SQLite's single-writer semantics; callers must not recompute the same date
// from two processes concurrently.
package store

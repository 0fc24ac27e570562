package store

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	apperrors "ratepulse/internal/errors"
)

// Store wraps a SQLite database for all persistence operations
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// Open opens or creates the SQLite database at dbPath and applies the schema
func Open(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, apperrors.NewStorageError("create data directory", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, apperrors.NewStorageError("open database", err)
	}
	db.SetMaxOpenConns(1) // single writer; WAL allows concurrent readers

	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("set WAL mode", err)
	}
	if _, err := db.Exec(`PRAGMA foreign_keys=ON`); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("enable foreign keys", err)
	}

	s := &Store{db: db, logger: logger}
	if err := s.createTables(); err != nil {
		db.Close()
		return nil, apperrors.NewStorageError("create tables", err)
	}

	logger.Info("store opened", "path", dbPath)
	return s, nil
}

// Close closes the underlying database connection
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS raw_observations (
			series_id  TEXT NOT NULL,
			date       TEXT NOT NULL,
			value      REAL NOT NULL,
			source     TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (series_id, date, source)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_raw_observations_date
			ON raw_observations(date)`,
		`CREATE TABLE IF NOT EXISTS component_metrics (
			date        TEXT NOT NULL,
			dataset     TEXT NOT NULL,
			metric_name TEXT NOT NULL,
			value_kind  TEXT NOT NULL,
			value_num   REAL,
			value_text  TEXT,
			sources     TEXT NOT NULL DEFAULT '',
			updated_at  INTEGER NOT NULL,
			PRIMARY KEY (date, dataset, metric_name)
		)`,
		`CREATE TABLE IF NOT EXISTS alert_thresholds (
			alert_code TEXT PRIMARY KEY,
			enabled    INTEGER NOT NULL DEFAULT 1,
			severity   TEXT NOT NULL,
			params     TEXT NOT NULL DEFAULT '{}',
			updated_at INTEGER NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS alert_events (
			date         TEXT NOT NULL,
			alert_code   TEXT NOT NULL,
			id           TEXT NOT NULL,
			severity     TEXT NOT NULL,
			message      TEXT NOT NULL,
			metric_value REAL NOT NULL,
			threshold    REAL NOT NULL,
			evidence     TEXT NOT NULL,
			created_at   INTEGER NOT NULL,
			PRIMARY KEY (date, alert_code)
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("exec schema statement: %w", err)
		}
	}
	return nil
}

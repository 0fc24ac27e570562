// Package ingest loads raw series observations from CSV backfill files into
// the store. Collection itself (scrapers, feeds) happens outside this
// process; CSV files are the import boundary.
package ingest

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"ratepulse/internal/errors"
	"ratepulse/internal/store"
)

// ObservationWriter is the store surface the importer needs. *store.Store
// satisfies it.
type ObservationWriter interface {
	WriteObservation(ctx context.Context, obs store.Observation) error
}

// Importer reads series CSV files and writes observations.
type Importer struct {
	writer ObservationWriter
	logger *slog.Logger
}

// NewImporter creates a CSV importer
func NewImporter(writer ObservationWriter, logger *slog.Logger) *Importer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Importer{
		writer: writer,
		logger: logger.With(slog.String("component", "ingest")),
	}
}

// Summary reports one import run.
type Summary struct {
	File     string
	Imported int
	Skipped  int
}

// ImportFile loads one CSV file with columns series_id,date,value[,source].
// Malformed rows are skipped with a warning; writes are idempotent upserts,
// so re-importing a file is safe.
func (i *Importer) ImportFile(ctx context.Context, csvPath string) (Summary, error) {
	summary := Summary{File: filepath.Base(csvPath)}

	file, err := os.Open(csvPath)
	if err != nil {
		return summary, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.FieldsPerRecord = -1
	records, err := reader.ReadAll()
	if err != nil {
		return summary, fmt.Errorf("read CSV records: %w", err)
	}

	if len(records) == 0 {
		return summary, errors.NewMalformedInput("empty CSV file", nil)
	}

	dataStart := 0
	if isHeaderRow(records[0]) {
		dataStart = 1
	}
	if len(records) <= dataStart {
		return summary, errors.NewMalformedInput("CSV file contains only a header", nil)
	}

	for n := dataStart; n < len(records); n++ {
		obs, err := parseObservationRecord(records[n], n+1)
		if err != nil {
			i.logger.WarnContext(ctx, "skipping malformed CSV record",
				"file", summary.File,
				"line", n+1,
				"error", err.Error(),
			)
			summary.Skipped++
			continue
		}

		if err := i.writer.WriteObservation(ctx, obs); err != nil {
			return summary, fmt.Errorf("write observation line %d: %w", n+1, err)
		}
		summary.Imported++
	}

	i.logger.InfoContext(ctx, "CSV import finished",
		"file", summary.File,
		"imported", summary.Imported,
		"skipped", summary.Skipped,
	)
	return summary, nil
}

// ImportDir imports every .csv file in a directory, sorted by name.
func (i *Importer) ImportDir(ctx context.Context, dir string) ([]Summary, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "*.csv"))
	if err != nil {
		return nil, fmt.Errorf("list CSV files: %w", err)
	}

	var summaries []Summary
	for _, path := range matches {
		summary, err := i.ImportFile(ctx, path)
		if err != nil {
			return summaries, fmt.Errorf("import %s: %w", filepath.Base(path), err)
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func isHeaderRow(record []string) bool {
	if len(record) < 3 {
		return false
	}
	_, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	return err != nil
}

func parseObservationRecord(record []string, line int) (store.Observation, error) {
	if len(record) < 3 {
		return store.Observation{}, fmt.Errorf("line %d: expected at least 3 fields, got %d", line, len(record))
	}

	seriesID := strings.TrimSpace(record[0])
	if seriesID == "" {
		return store.Observation{}, fmt.Errorf("line %d: empty series id", line)
	}

	date, err := store.ParseDate(strings.TrimSpace(record[1]))
	if err != nil {
		return store.Observation{}, fmt.Errorf("line %d: parse date: %w", line, err)
	}

	value, err := strconv.ParseFloat(strings.TrimSpace(record[2]), 64)
	if err != nil {
		return store.Observation{}, fmt.Errorf("line %d: parse value: %w", line, err)
	}
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return store.Observation{}, fmt.Errorf("line %d: non-finite value", line)
	}

	source := "csv"
	if len(record) >= 4 && strings.TrimSpace(record[3]) != "" {
		source = strings.TrimSpace(record[3])
	}

	return store.Observation{
		SeriesID: seriesID,
		Date:     date,
		Value:    value,
		Source:   source,
	}, nil
}

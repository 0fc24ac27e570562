// Package export writes computed indicator history to CSV files for
// downstream analysis tooling.
package export

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"ratepulse/internal/config"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

// MetricReader is the store surface the exporter needs. *store.Store
// satisfies it.
type MetricReader interface {
	ObservationDates(ctx context.Context, start, end time.Time) ([]time.Time, error)
	ReadMetric(ctx context.Context, date time.Time, dataset, name string) (store.ComponentMetric, bool, error)
	ReadAlerts(ctx context.Context, date time.Time) ([]store.AlertEvent, error)
}

// Exporter writes indicator history CSVs.
type Exporter struct {
	reader MetricReader
	logger *slog.Logger
}

// NewExporter creates a CSV exporter
func NewExporter(reader MetricReader, logger *slog.Logger) *Exporter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Exporter{
		reader: reader,
		logger: logger.With(slog.String("component", "export")),
	}
}

// WriteIndicatorHistory writes one row per computed date in [start, end]:
// date, transmission score and bucket, stress index and bucket, alert count.
// Dates without a computed transmission score are omitted.
func (e *Exporter) WriteIndicatorHistory(ctx context.Context, outPath string, start, end time.Time) (int, error) {
	dates, err := e.reader.ObservationDates(ctx, start, end)
	if err != nil {
		return 0, fmt.Errorf("list observation dates: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		return 0, fmt.Errorf("create output directory: %w", err)
	}

	file, err := os.Create(outPath)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{"date", "transmission_score", "transmission_bucket", "stress_index", "stress_bucket", "alerts"}
	if err := writer.Write(header); err != nil {
		return 0, fmt.Errorf("write header: %w", err)
	}

	rows := 0
	for _, date := range dates {
		record, ok, err := e.historyRow(ctx, date)
		if err != nil {
			return rows, err
		}
		if !ok {
			continue
		}
		if err := writer.Write(record); err != nil {
			return rows, fmt.Errorf("write row for %s: %w", store.DateKey(date), err)
		}
		rows++
	}

	if err := writer.Error(); err != nil {
		return rows, fmt.Errorf("flush CSV: %w", err)
	}

	e.logger.InfoContext(ctx, "indicator history exported",
		"path", outPath,
		"rows", rows,
	)
	return rows, nil
}

func (e *Exporter) historyRow(ctx context.Context, date time.Time) ([]string, bool, error) {
	score, found, err := e.reader.ReadMetric(ctx, date, config.DatasetTransmission, scoring.MetricScore)
	if err != nil {
		return nil, false, fmt.Errorf("read transmission score: %w", err)
	}
	if !found {
		return nil, false, nil
	}

	record := []string{
		store.DateKey(date),
		formatFloat(score.Value.Num),
		"", "", "", "0",
	}

	if bucket, ok, err := e.reader.ReadMetric(ctx, date, config.DatasetTransmission, scoring.MetricRegimeBucket); err != nil {
		return nil, false, err
	} else if ok {
		record[2] = bucket.Value.Text
	}

	if index, ok, err := e.reader.ReadMetric(ctx, date, config.DatasetStress, stress.MetricIndex); err != nil {
		return nil, false, err
	} else if ok {
		record[3] = formatFloat(index.Value.Num)
	}

	if bucket, ok, err := e.reader.ReadMetric(ctx, date, config.DatasetStress, stress.MetricRegimeBucket); err != nil {
		return nil, false, err
	} else if ok {
		record[4] = bucket.Value.Text
	}

	events, err := e.reader.ReadAlerts(ctx, date)
	if err != nil {
		return nil, false, fmt.Errorf("read alerts: %w", err)
	}
	record[5] = strconv.Itoa(len(events))

	return record, true, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}

// indicators is the batch CLI: CSV series import, single-date computation
// and resumable range backfill.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"ratepulse/internal/alerts"
	"ratepulse/internal/config"
	"ratepulse/internal/export"
	"ratepulse/internal/infrastructure"
	"ratepulse/internal/ingest"
	"ratepulse/internal/pipeline"
	"ratepulse/internal/rolling"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

func main() {
	var (
		dateFlag     = flag.String("date", "", "compute a single date (YYYY-MM-DD)")
		fromFlag     = flag.String("from", "", "range start date (YYYY-MM-DD)")
		toFlag       = flag.String("to", "", "range end date (YYYY-MM-DD)")
		skipComputed = flag.Bool("skip-computed", false, "skip dates that already have a transmission score")
		parallel     = flag.Int("parallel", 1, "concurrent date computations for range runs")
		importPath   = flag.String("import", "", "CSV file or directory to import before computing")
		exportPath   = flag.String("export", "", "write indicator history CSV for -from/-to after computing")
	)
	flag.Parse()

	if err := run(*dateFlag, *fromFlag, *toFlag, *skipComputed, *parallel, *importPath, *exportPath); err != nil {
		slog.Error("indicators run failed", "error", err)
		os.Exit(1)
	}
}

func run(dateFlag, fromFlag, toFlag string, skipComputed bool, parallel int, importPath, exportPath string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}
	defer infrastructure.CloseLogFile()

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	ctx := context.Background()

	if importPath != "" {
		if err := runImport(ctx, st, logger, importPath); err != nil {
			return err
		}
	}

	if dateFlag == "" && fromFlag == "" && toFlag == "" {
		if importPath == "" && exportPath == "" {
			flag.Usage()
			return fmt.Errorf("nothing to do: pass -import, -export, -date or -from/-to")
		}
		if exportPath != "" {
			return fmt.Errorf("-export needs -from and -to")
		}
		return nil
	}

	if dateFlag != "" {
		return runSingle(ctx, buildRunner(st, cfg, logger), dateFlag)
	}

	if fromFlag != "" || toFlag != "" {
		if err := runRange(ctx, buildRunner(st, cfg, logger), fromFlag, toFlag, skipComputed, parallel); err != nil {
			return err
		}
	}

	if exportPath != "" {
		return runExport(ctx, st, logger, exportPath, fromFlag, toFlag)
	}
	return nil
}

func runExport(ctx context.Context, st *store.Store, logger *slog.Logger, outPath, fromFlag, toFlag string) error {
	if fromFlag == "" || toFlag == "" {
		return fmt.Errorf("-export needs -from and -to")
	}
	from, err := store.ParseDate(fromFlag)
	if err != nil {
		return fmt.Errorf("parse -from: %w", err)
	}
	to, err := store.ParseDate(toFlag)
	if err != nil {
		return fmt.Errorf("parse -to: %w", err)
	}

	rows, err := export.NewExporter(st, logger).WriteIndicatorHistory(ctx, outPath, from, to)
	if err != nil {
		return err
	}
	fmt.Printf("exported %d row(s) to %s\n", rows, outPath)
	return nil
}

func buildRunner(st *store.Store, cfg *config.Config, logger *slog.Logger) *pipeline.Runner {
	calc := rolling.NewCalculator(st, cfg.Analytics.WinsorBound, logger)

	transmission := scoring.NewEngine(calc, st, cfg.Analytics, logger)
	stressEngine := stress.NewEngine(calc, st, cfg.Analytics, logger)

	thresholds := alerts.NewThresholdProvider(st, cfg.Alerts.ThresholdCacheTTL, logger)
	alertEngine := alerts.NewEngine(calc, st, thresholds, logger)

	// Batch runs go untraced; the server carries the OTel pipeline tracer.
	return pipeline.NewRunner(transmission, stressEngine, alertEngine, st, nil, logger)
}

func runImport(ctx context.Context, st *store.Store, logger *slog.Logger, path string) error {
	importer := ingest.NewImporter(st, logger)

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat import path: %w", err)
	}

	if info.IsDir() {
		summaries, err := importer.ImportDir(ctx, path)
		if err != nil {
			return err
		}
		for _, s := range summaries {
			fmt.Printf("imported %s: %d rows (%d skipped)\n", s.File, s.Imported, s.Skipped)
		}
		return nil
	}

	summary, err := importer.ImportFile(ctx, path)
	if err != nil {
		return err
	}
	fmt.Printf("imported %s: %d rows (%d skipped)\n", summary.File, summary.Imported, summary.Skipped)
	return nil
}

func runSingle(ctx context.Context, runner *pipeline.Runner, dateFlag string) error {
	date, err := store.ParseDate(dateFlag)
	if err != nil {
		return fmt.Errorf("parse -date: %w", err)
	}

	result, err := runner.ComputeDate(ctx, date)
	if err != nil {
		return err
	}

	fmt.Printf("%s: transmission %.1f (%s), stress %.1f (%s), %d alert(s) in %s\n",
		store.DateKey(result.Date),
		result.Transmission.Score, result.Transmission.Bucket,
		result.Stress.Index, result.Stress.Bucket,
		len(result.Alerts), result.Elapsed.Round(time.Millisecond))
	for _, event := range result.Alerts {
		fmt.Printf("  [%s] %s: %s\n", event.Severity, event.Code, event.Message)
	}
	return nil
}

func runRange(ctx context.Context, runner *pipeline.Runner, fromFlag, toFlag string, skipComputed bool, parallel int) error {
	if fromFlag == "" || toFlag == "" {
		return fmt.Errorf("range runs need both -from and -to")
	}

	from, err := store.ParseDate(fromFlag)
	if err != nil {
		return fmt.Errorf("parse -from: %w", err)
	}
	to, err := store.ParseDate(toFlag)
	if err != nil {
		return fmt.Errorf("parse -to: %w", err)
	}
	if to.Before(from) {
		return fmt.Errorf("-to %s is before -from %s", toFlag, fromFlag)
	}

	summary, err := runner.ComputeRange(ctx, from, to, pipeline.RangeOptions{
		SkipComputed: skipComputed,
		Parallelism:  parallel,
	})
	if err != nil {
		return err
	}

	fmt.Printf("computed %d date(s), skipped %d, %d alert(s) in %s\n",
		summary.Computed, summary.Skipped, summary.Alerts,
		summary.Elapsed.Round(time.Millisecond))
	return nil
}

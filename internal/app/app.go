// Package app assembles the RatePulse server: configuration, logging,
// OpenTelemetry, the SQLite store, the analytics engines and the HTTP
// router, with graceful startup and shutdown.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ratepulse/internal/alerts"
	"ratepulse/internal/config"
	"ratepulse/internal/infrastructure"
	customMiddleware "ratepulse/internal/middleware"
	"ratepulse/internal/pipeline"
	"ratepulse/internal/rolling"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
	handlers "ratepulse/internal/transport/http"
)

// Application is the server's dependency container.
type Application struct {
	Config        *config.Config
	Logger        *slog.Logger
	Router        *chi.Mux
	Server        *http.Server
	Store         *store.Store
	Runner        *pipeline.Runner
	Thresholds    *alerts.ThresholdProvider
	OTelProviders *infrastructure.OTelProviders

	runtimeCollector *infrastructure.RuntimeCollector
}

// NewApplication wires the full application from configuration.
func NewApplication() (*Application, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}

	logger.Info("application starting",
		slog.String("name", config.AppName),
		slog.String("version", config.AppVersion))

	providers, err := infrastructure.InitializeOTel(nil, logger)
	if err != nil {
		return nil, fmt.Errorf("initialize opentelemetry: %w", err)
	}

	st, err := store.Open(cfg.Database.Path, logger)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	app := &Application{
		Config:        cfg,
		Logger:        logger,
		Store:         st,
		OTelProviders: providers,
	}

	if err := app.initializeEngines(); err != nil {
		return nil, err
	}
	if err := app.setupRouter(); err != nil {
		return nil, err
	}
	app.createServer()

	return app, nil
}

func (a *Application) initializeEngines() error {
	calc := rolling.NewCalculator(a.Store, a.Config.Analytics.WinsorBound, a.Logger)

	transmission := scoring.NewEngine(calc, a.Store, a.Config.Analytics, a.Logger)
	stressEngine := stress.NewEngine(calc, a.Store, a.Config.Analytics, a.Logger)

	a.Thresholds = alerts.NewThresholdProvider(a.Store, a.Config.Alerts.ThresholdCacheTTL, a.Logger)
	alertEngine := alerts.NewEngine(calc, a.Store, a.Thresholds, a.Logger)

	tracer, err := pipeline.NewTracer(a.OTelProviders.Meter)
	if err != nil {
		return fmt.Errorf("create pipeline tracer: %w", err)
	}

	a.Runner = pipeline.NewRunner(transmission, stressEngine, alertEngine, a.Store, tracer, a.Logger)
	return nil
}

func (a *Application) setupRouter() error {
	otelMiddleware, err := customMiddleware.NewOTelMiddleware(a.OTelProviders)
	if err != nil {
		return fmt.Errorf("create otel middleware: %w", err)
	}

	r := chi.NewRouter()

	r.Use(customMiddleware.RequestID)
	r.Use(customMiddleware.RealIP)
	r.Use(otelMiddleware.Handler)
	r.Use(customMiddleware.StructuredLogger(a.Logger))
	r.Use(customMiddleware.Recoverer(a.Logger))
	r.Use(customMiddleware.SecurityHeaders)
	r.Use(customMiddleware.StripSlashes)
	if a.Config.Server.RateLimit.Enabled {
		r.Use(customMiddleware.NewRateLimiter(
			a.Config.Server.RateLimit.RPS,
			a.Config.Server.RateLimit.Burst,
			a.Logger,
		).Handler)
	}

	health := handlers.NewHealthHandler()
	r.Get("/healthz", health.Healthz)

	if a.OTelProviders.PrometheusHTTP != nil {
		r.Handle("/metrics", a.OTelProviders.PrometheusHTTP)
	}

	analytics := handlers.NewAnalyticsHandler(a.Store, a.Runner, a.Logger)
	thresholds := handlers.NewThresholdHandler(a.Store, a.Thresholds, a.Logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(render.SetContentType(render.ContentTypeJSON))
		r.Use(customMiddleware.Timeout(a.Config.Server.WriteTimeout, a.Logger))

		analytics.RegisterRoutes(r)
		thresholds.RegisterRoutes(r)
	})

	a.Router = r
	return nil
}

func (a *Application) createServer() {
	a.Server = &http.Server{
		Addr:         fmt.Sprintf(":%d", a.Config.Server.Port),
		Handler:      a.Router,
		ReadTimeout:  a.Config.Server.ReadTimeout,
		WriteTimeout: a.Config.Server.WriteTimeout,
		IdleTimeout:  a.Config.Server.IdleTimeout,
	}
}

// Start launches the HTTP server and background collectors.
func (a *Application) Start(ctx context.Context, cancel context.CancelFunc) error {
	a.Logger.InfoContext(ctx, "starting server",
		slog.Int("port", a.Config.Server.Port),
		slog.String("level", a.Config.Logging.Level))

	collector, err := infrastructure.NewRuntimeCollector(a.OTelProviders.Meter, 30*time.Second)
	if err != nil {
		a.Logger.WarnContext(ctx, "runtime metrics disabled", slog.String("error", err.Error()))
	} else {
		a.runtimeCollector = collector
		go collector.Start(ctx)
	}

	go func() {
		if err := a.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.Logger.ErrorContext(ctx, "server error", slog.String("error", err.Error()))
			cancel()
		}
	}()

	a.Logger.InfoContext(ctx, "server started",
		slog.String("address", fmt.Sprintf("http://localhost:%d", a.Config.Server.Port)))
	return nil
}

// Stop gracefully stops the server, collectors, store and telemetry.
func (a *Application) Stop(ctx context.Context) error {
	a.Logger.InfoContext(ctx, "shutting down")

	shutdownCtx, cancel := context.WithTimeout(ctx, a.Config.Server.ShutdownTimeout)
	defer cancel()

	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	if a.runtimeCollector != nil {
		a.runtimeCollector.Stop()
	}

	if err := a.Store.Close(); err != nil {
		a.Logger.ErrorContext(ctx, "store close failed", slog.String("error", err.Error()))
	}

	if a.OTelProviders != nil {
		if err := a.OTelProviders.Shutdown(shutdownCtx); err != nil {
			a.Logger.ErrorContext(ctx, "opentelemetry shutdown failed", slog.String("error", err.Error()))
		}
	}

	if err := infrastructure.CloseLogFile(); err != nil {
		a.Logger.ErrorContext(ctx, "log file close failed", slog.String("error", err.Error()))
	}

	a.Logger.InfoContext(ctx, "shutdown complete")
	return nil
}

// Run runs the application until interrupted.
func (a *Application) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	if err := a.Start(ctx, cancel); err != nil {
		return err
	}

	select {
	case <-sigChan:
		a.Logger.InfoContext(ctx, "received interrupt signal")
	case <-ctx.Done():
	}

	return a.Stop(context.Background())
}

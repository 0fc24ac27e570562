package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"

	"ratepulse/internal/alerts"
	apierrors "ratepulse/internal/errors"
	"ratepulse/internal/store"
)

// ThresholdHandler manages the externally mutable alert thresholds.
type ThresholdHandler struct {
	store    AnalyticsStore
	cache    ThresholdCache
	validate *validator.Validate
	logger   *slog.Logger
}

// NewThresholdHandler creates the threshold handler
func NewThresholdHandler(analyticsStore AnalyticsStore, cache ThresholdCache, logger *slog.Logger) *ThresholdHandler {
	return &ThresholdHandler{
		store:    analyticsStore,
		cache:    cache,
		validate: validator.New(),
		logger:   logger.With(slog.String("handler", "thresholds")),
	}
}

// RegisterRoutes registers the threshold routes
func (h *ThresholdHandler) RegisterRoutes(r chi.Router) {
	r.Get("/thresholds", h.List)
	r.Put("/thresholds/{code}", h.Upsert)
}

// List handles GET /api/v1/thresholds. Stored overrides are merged over the
// built-in defaults so the response shows the effective configuration.
func (h *ThresholdHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	stored, err := h.store.ReadAllThresholds(ctx)
	if err != nil {
		h.logger.ErrorContext(ctx, "read thresholds failed", slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ToAPIError(err))
		return
	}

	effective := alerts.Defaults()
	for code, t := range stored {
		effective[code] = t
	}

	render.JSON(w, r, effective)
}

// Upsert handles PUT /api/v1/thresholds/{code}
func (h *ThresholdHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	code := chi.URLParam(r, "code")

	var threshold store.AlertThreshold
	if err := render.DecodeJSON(r.Body, &threshold); err != nil {
		render.Render(w, r, apierrors.New(http.StatusBadRequest, "INVALID_BODY",
			"Request body must be a JSON alert threshold"))
		return
	}
	threshold.Code = code

	if err := h.validate.Struct(threshold); err != nil {
		render.Render(w, r, apierrors.NewWithDetails(http.StatusBadRequest, "INVALID_THRESHOLD",
			"Threshold failed validation", err.Error()))
		return
	}

	if err := h.store.UpsertThreshold(ctx, threshold); err != nil {
		h.logger.ErrorContext(ctx, "upsert threshold failed",
			slog.String("code", code),
			slog.String("error", err.Error()))
		render.Render(w, r, apierrors.ToAPIError(err))
		return
	}

	// Make the change visible to the alert engine before its TTL expires.
	h.cache.Invalidate(code)

	h.logger.InfoContext(ctx, "threshold updated",
		slog.String("code", code),
		slog.String("severity", threshold.Severity),
		slog.Bool("enabled", threshold.Enabled))

	render.JSON(w, r, threshold)
}

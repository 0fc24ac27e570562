package http

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"ratepulse/internal/config"
	apierrors "ratepulse/internal/errors"
	"ratepulse/internal/scoring"
	"ratepulse/internal/store"
	"ratepulse/internal/stress"
)

// AnalyticsHandler serves the persisted transmission, stress, alert and
// baseline views, plus the compute trigger.
type AnalyticsHandler struct {
	store    AnalyticsStore
	computer Computer
	logger   *slog.Logger
}

// NewAnalyticsHandler creates the analytics handler
func NewAnalyticsHandler(analyticsStore AnalyticsStore, computer Computer, logger *slog.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{
		store:    analyticsStore,
		computer: computer,
		logger:   logger.With(slog.String("handler", "analytics")),
	}
}

// RegisterRoutes registers the analytics routes
func (h *AnalyticsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/transmission/{date}", h.GetTransmission)
	r.Get("/stress/{date}", h.GetStress)
	r.Get("/alerts/{date}", h.GetAlerts)
	r.Get("/baseline/{date}", h.GetBaseline)
	r.Post("/compute/{date}", h.Compute)
}

// TransmissionResponse is the persisted transmission view for one date.
type TransmissionResponse struct {
	Date     string             `json:"date"`
	Score    float64            `json:"score"`
	Bucket   string             `json:"bucket"`
	Neutral  bool               `json:"neutral"`
	Sources  string             `json:"sources"`
	Families map[string]float64 `json:"families"`
}

// GetTransmission handles GET /api/v1/transmission/{date}
func (h *AnalyticsHandler) GetTransmission(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ReadMetricsForDate(ctx, date, config.DatasetTransmission)
	if err != nil {
		h.renderError(w, r, "read transmission metrics", err)
		return
	}

	resp := TransmissionResponse{
		Date:     store.DateKey(date),
		Families: make(map[string]float64),
	}
	found := false
	for _, row := range rows {
		switch {
		case row.Name == scoring.MetricScore:
			found = true
			resp.Score = row.Value.Num
			resp.Sources = row.Sources
			resp.Neutral = strings.Contains(row.Sources, "neutral")
		case row.Name == scoring.MetricRegimeBucket:
			resp.Bucket = row.Value.Text
		case strings.HasSuffix(row.Name, "_zscore"):
			resp.Families[strings.TrimSuffix(row.Name, "_zscore")] = row.Value.Num
		}
	}
	if !found {
		render.Render(w, r, apierrors.New(http.StatusNotFound, "NOT_COMPUTED",
			"No transmission score computed for "+store.DateKey(date)))
		return
	}

	render.JSON(w, r, resp)
}

// StressResponse is the persisted stress view for one date.
type StressResponse struct {
	Date       string             `json:"date"`
	Index      float64            `json:"index"`
	Bucket     string             `json:"bucket"`
	Sources    string             `json:"sources"`
	TopDrivers string             `json:"top_drivers"`
	Components map[string]float64 `json:"components"`
}

// GetStress handles GET /api/v1/stress/{date}
func (h *AnalyticsHandler) GetStress(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	rows, err := h.store.ReadMetricsForDate(ctx, date, config.DatasetStress)
	if err != nil {
		h.renderError(w, r, "read stress metrics", err)
		return
	}

	resp := StressResponse{
		Date:       store.DateKey(date),
		Components: make(map[string]float64),
	}
	found := false
	for _, row := range rows {
		switch {
		case row.Name == stress.MetricIndex:
			found = true
			resp.Index = row.Value.Num
			resp.Sources = row.Sources
		case row.Name == stress.MetricRegimeBucket:
			resp.Bucket = row.Value.Text
		case row.Name == stress.MetricTopDrivers:
			resp.TopDrivers = row.Value.Text
		case strings.HasSuffix(row.Name, "_percentile"):
			resp.Components[strings.TrimSuffix(row.Name, "_percentile")] = row.Value.Num
		}
	}
	if !found {
		render.Render(w, r, apierrors.New(http.StatusNotFound, "NOT_COMPUTED",
			"No stress index computed for "+store.DateKey(date)))
		return
	}

	render.JSON(w, r, resp)
}

// AlertsResponse lists the alert events persisted for one date.
type AlertsResponse struct {
	Date   string             `json:"date"`
	Count  int                `json:"count"`
	Events []store.AlertEvent `json:"events"`
}

// GetAlerts handles GET /api/v1/alerts/{date}
func (h *AnalyticsHandler) GetAlerts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	events, err := h.store.ReadAlerts(ctx, date)
	if err != nil {
		h.renderError(w, r, "read alerts", err)
		return
	}
	if events == nil {
		events = []store.AlertEvent{}
	}

	render.JSON(w, r, AlertsResponse{
		Date:   store.DateKey(date),
		Count:  len(events),
		Events: events,
	})
}

// BaselineResponse reports the comparison date a given target resolves to:
// the most recent date strictly before it with a computed score, whatever
// calendar gap that implies.
type BaselineResponse struct {
	TargetDate    string  `json:"target_date"`
	BaselineDate  string  `json:"baseline_date,omitempty"`
	Found         bool    `json:"found"`
	BaselineScore float64 `json:"baseline_score,omitempty"`
}

// GetBaseline handles GET /api/v1/baseline/{date}
func (h *AnalyticsHandler) GetBaseline(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	baselineDate, found, err := h.store.ResolveBaseline(ctx, date, config.DatasetTransmission, scoring.MetricScore)
	if err != nil {
		h.renderError(w, r, "resolve baseline", err)
		return
	}

	resp := BaselineResponse{
		TargetDate: store.DateKey(date),
		Found:      found,
	}
	if found {
		resp.BaselineDate = store.DateKey(baselineDate)
		if metric, ok, err := h.store.ReadMetric(ctx, baselineDate, config.DatasetTransmission, scoring.MetricScore); err == nil && ok {
			resp.BaselineScore = metric.Value.Num
		}
	}

	render.JSON(w, r, resp)
}

// Compute handles POST /api/v1/compute/{date}
func (h *AnalyticsHandler) Compute(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	h.logger.InfoContext(ctx, "compute requested", slog.String("date", store.DateKey(date)))

	result, err := h.computer.ComputeDate(ctx, date)
	if err != nil {
		h.renderError(w, r, "compute date", err)
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, result)
}

func (h *AnalyticsHandler) parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	raw := chi.URLParam(r, "date")
	date, err := store.ParseDate(raw)
	if err != nil {
		render.Render(w, r, apierrors.New(http.StatusBadRequest, "INVALID_DATE",
			"Date must be formatted YYYY-MM-DD"))
		return time.Time{}, false
	}
	return date, true
}

func (h *AnalyticsHandler) renderError(w http.ResponseWriter, r *http.Request, op string, err error) {
	h.logger.ErrorContext(r.Context(), "request failed",
		slog.String("op", op),
		slog.String("error", err.Error()))
	render.Render(w, r, apierrors.ToAPIError(err))
}

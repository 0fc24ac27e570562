package http

import (
	"net/http"
	"time"

	"github.com/go-chi/render"

	"ratepulse/internal/config"
)

// HealthHandler serves liveness and version information.
type HealthHandler struct {
	startTime time.Time
}

// NewHealthHandler creates the health handler
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{startTime: time.Now()}
}

// HealthResponse reports process health.
type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Version string `json:"version"`
	Uptime  string `json:"uptime"`
}

// Healthz handles GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	render.JSON(w, r, HealthResponse{
		Status:  "ok",
		Service: config.AppName,
		Version: config.AppVersion,
		Uptime:  time.Since(h.startTime).Round(time.Second).String(),
	})
}

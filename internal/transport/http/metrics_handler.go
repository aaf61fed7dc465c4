package http

import (
	"net/http"

	"github.com/go-chi/render"

	apierrors "licsrv/internal/errors"
	"licsrv/internal/infrastructure"
)

// MetricsHandler exposes the Prometheus scrape endpoint
type MetricsHandler struct {
	exporter http.Handler
}

// NewMetricsHandler creates a new metrics handler. A nil exporter, as when
// metrics are disabled, answers 404.
func NewMetricsHandler(exporter http.Handler) *MetricsHandler {
	return &MetricsHandler{exporter: exporter}
}

// GetMetrics handles GET /metrics
func (h *MetricsHandler) GetMetrics(w http.ResponseWriter, r *http.Request) {
	if h.exporter == nil {
		render.Render(w, r, apierrors.NewErrorResponse(
			apierrors.New(http.StatusNotFound, apierrors.CodeNotFound, "Metrics are disabled"),
			infrastructure.GetTraceID(r.Context()),
		))
		return
	}
	h.exporter.ServeHTTP(w, r)
}

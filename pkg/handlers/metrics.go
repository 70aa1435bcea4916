package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
	"github.com/ekaya-inc/ekaya-ask/pkg/models"
)

// WindowReader reads one outcome metrics window.
type WindowReader interface {
	Window(ctx context.Context, period string) (*models.MetricsWindow, error)
}

// MetricsHandler serves outcome metrics windows.
type MetricsHandler struct {
	reader WindowReader
	logger *zap.Logger
	now    func() time.Time
}

// NewMetricsHandler creates a MetricsHandler.
func NewMetricsHandler(reader WindowReader, logger *zap.Logger) *MetricsHandler {
	return &MetricsHandler{reader: reader, logger: logger, now: time.Now}
}

// RegisterRoutes registers the metrics route on mux.
func (h *MetricsHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/metrics", h.Get)
}

// Get handles GET /api/metrics?period=YYYY-MM-DD. The period defaults to
// the current UTC day.
func (h *MetricsHandler) Get(w http.ResponseWriter, r *http.Request) {
	period := r.URL.Query().Get("period")
	if period == "" {
		period = models.PeriodKey(h.now())
	} else if _, err := time.Parse(models.PeriodKeyLayout, period); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_period", "period must be YYYY-MM-DD"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	window, err := h.reader.Window(r.Context(), period)
	if err != nil {
		h.logger.Error("Failed to read metrics window",
			zap.String("period", period),
			zap.String("error", logging.SanitizeError(err)))
		if err := ErrorResponse(w, http.StatusServiceUnavailable, "metrics_unavailable", "Metrics are unavailable"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: window}); err != nil {
		h.logger.Error("Failed to encode metrics window", zap.Error(err))
	}
}

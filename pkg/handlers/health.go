package handlers

import (
	"context"
	"net/http"
	"os"
	"runtime"
	"time"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-ask/pkg/config"
	"github.com/ekaya-inc/ekaya-ask/pkg/logging"
)

// Pinger checks that a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping calls f.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// PingResponse contains service status and version information.
type PingResponse struct {
	Status      string `json:"status"`
	Version     string `json:"version"`
	Service     string `json:"service"`
	GoVersion   string `json:"go_version"`
	Hostname    string `json:"hostname"`
	Environment string `json:"environment"`
	Dialect     string `json:"dialect"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// HealthHandler handles health check and ping endpoints.
type HealthHandler struct {
	cfg     *config.Config
	checks  map[string]Pinger
	timeout time.Duration
	logger  *zap.Logger
}

// NewHealthHandler creates a HealthHandler. checks maps a dependency name
// (e.g. "record_store") to its pinger; nil entries are ignored.
func NewHealthHandler(cfg *config.Config, checks map[string]Pinger, logger *zap.Logger) *HealthHandler {
	filtered := make(map[string]Pinger, len(checks))
	for name, p := range checks {
		if p != nil {
			filtered[name] = p
		}
	}
	return &HealthHandler{cfg: cfg, checks: filtered, timeout: 2 * time.Second, logger: logger}
}

// RegisterRoutes registers the health handler's routes on the given mux.
func (h *HealthHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.Health)
	mux.HandleFunc("GET /ping", h.Ping)
}

// Health handles GET /health. It returns 503 when any dependency check fails.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	status := http.StatusOK

	if len(h.checks) > 0 {
		ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
		defer cancel()

		resp.Checks = make(map[string]string, len(h.checks))
		for name, p := range h.checks {
			if err := p.Ping(ctx); err != nil {
				h.logger.Warn("Health check failed",
					zap.String("check", name),
					zap.String("error", logging.SanitizeError(err)))
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
	}

	if err := WriteJSON(w, status, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}

// Ping handles GET /ping requests.
// Returns detailed service information including version and environment.
func (h *HealthHandler) Ping(w http.ResponseWriter, r *http.Request) {
	hostname, err := os.Hostname()
	if err != nil {
		http.Error(w, "failed to get hostname", http.StatusInternalServerError)
		return
	}

	response := PingResponse{
		Status:      "ok",
		Version:     h.cfg.Version,
		Service:     "ekaya-ask",
		GoVersion:   runtime.Version(),
		Hostname:    hostname,
		Environment: h.cfg.Env,
		Dialect:     h.cfg.Planner.Dialect,
	}

	if err := WriteJSON(w, http.StatusOK, response); err != nil {
		h.logger.Error("Failed to encode ping response", zap.Error(err))
	}
}

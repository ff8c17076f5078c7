package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/aryan0dhankhar/portal/internal/httpx"
)

// CheckFunc probes one dependency for readiness
type CheckFunc func(ctx context.Context) error

// StartupState reports whether startup seeding has finished
type StartupState interface {
	Finished() bool
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	startup StartupState
	checks  map[string]CheckFunc
	logger  *slog.Logger
}

// NewHealthHandler creates a new health handler. startup may be nil.
func NewHealthHandler(startup StartupState, checks map[string]CheckFunc, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &HealthHandler{
		startup: startup,
		checks:  checks,
		logger:  logger,
	}
}

// HealthResponse represents the health status response
type HealthResponse struct {
	Status string `json:"status"`
}

// ReadinessResponse represents the readiness check response
type ReadinessResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks"`
}

// Health handles GET /health. It answers as long as the process serves HTTP.
func (h *HealthHandler) Health(w http.ResponseWriter, _ *http.Request) {
	httpx.JSON(w, http.StatusOK, HealthResponse{Status: "ok"})
}

// Ready handles GET /ready. Returns 200 only once startup has finished and
// every dependency answers.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	checks := make(map[string]string, len(h.checks)+1)
	healthy := true

	if h.startup != nil {
		if h.startup.Finished() {
			checks["bootstrap"] = "ok"
		} else {
			checks["bootstrap"] = "pending"
			healthy = false
		}
	}

	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			checks[name] = "unavailable"
			healthy = false
			h.logger.Warn("readiness check failed",
				slog.String("check", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		checks[name] = "ok"
	}

	status, code := "ready", http.StatusOK
	if !healthy {
		status, code = "not_ready", http.StatusServiceUnavailable
	}

	httpx.JSON(w, code, ReadinessResponse{Status: status, Checks: checks})
}

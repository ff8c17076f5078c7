package handler

import (
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/httpx"
	"github.com/aryan0dhankhar/portal/internal/service"
)

// DashboardHandler serves the outlet read models
type DashboardHandler struct {
	dashboard *service.DashboardService
	logger    *slog.Logger
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(dashboard *service.DashboardService, logger *slog.Logger) *DashboardHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardHandler{dashboard: dashboard, logger: logger}
}

// Kpis handles GET /dashboard/kpis
func (h *DashboardHandler) Kpis(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
	kpis, err := h.dashboard.Kpis(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "kpis", err)
		return
	}
	httpx.JSON(w, http.StatusOK, kpis)
}

// Tickets handles GET /dashboard/ai-tickets
func (h *DashboardHandler) Tickets(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
	tickets, err := h.dashboard.Tickets(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "tickets", err)
		return
	}
	httpx.JSON(w, http.StatusOK, tickets)
}

// Franchise handles GET /franchise/summary
func (h *DashboardHandler) Franchise(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
	summary, err := h.dashboard.Franchise(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "franchise", err)
		return
	}
	httpx.JSON(w, http.StatusOK, summary)
}

// Weekly handles GET /charts/weekly
func (h *DashboardHandler) Weekly(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
	points, err := h.dashboard.Weekly(r.Context(), p)
	if err != nil {
		writeServiceError(w, r, h.logger, "weekly", err)
		return
	}
	httpx.JSON(w, http.StatusOK, points)
}

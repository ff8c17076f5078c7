// Package server assembles the HTTP surface: routes, authentication and the
// middleware chain shared by every endpoint.
package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/aryan0dhankhar/portal/internal/handler"
	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
	"github.com/aryan0dhankhar/portal/internal/security/audit"
	"github.com/aryan0dhankhar/portal/internal/security/middleware"
	"github.com/aryan0dhankhar/portal/internal/security/ratelimit"
	"github.com/aryan0dhankhar/portal/internal/service"
	"github.com/aryan0dhankhar/portal/pkg/config"
)

// Deps are the collaborators the router wires into handlers
type Deps struct {
	Config    *config.Config
	Auth      *service.AuthService
	Dashboard *service.DashboardService
	Limiter   *ratelimit.Limiter
	Audit     *audit.Logger
	Startup   handler.StartupState
	Checks    map[string]handler.CheckFunc
	Logger    *slog.Logger
}

// NewRouter returns the root handler of the API
func NewRouter(d Deps) http.Handler {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	if d.Audit == nil {
		d.Audit = audit.NewLogger(log)
	}
	cfg := d.Config

	authHandler := handler.NewAuthHandler(d.Auth, cfg.Flags, log)
	dashboardHandler := handler.NewDashboardHandler(d.Dashboard, log)
	healthHandler := handler.NewHealthHandler(d.Startup, d.Checks, log)
	streamHandler := handler.NewStreamHandler(d.Dashboard, cfg.Flags, cfg.CORSAllowedOrigins, cfg.StreamInterval, log)

	authed := middleware.Authenticated(d.Auth, d.Audit, log, false)
	authedStream := middleware.Authenticated(d.Auth, d.Audit, log, true)
	jsonBody := middleware.RequireContentType(log, "application/json")
	formBody := middleware.RequireContentType(log, "application/x-www-form-urlencoded", "multipart/form-data")

	login := http.Handler(http.HandlerFunc(authHandler.Login))
	if d.Limiter != nil {
		login = middleware.LoginRateLimit(d.Limiter, d.Audit)(login)
	}

	mux := http.NewServeMux()
	mux.Handle("POST /auth/register", jsonBody(http.HandlerFunc(authHandler.Register)))
	mux.Handle("POST /auth/login", formBody(login))
	mux.Handle("GET /auth/me", authed(authHandler.Me))
	mux.Handle("POST /auth/change-password", jsonBody(authed(authHandler.ChangePassword)))

	mux.Handle("GET /dashboard/kpis", authed(dashboardHandler.Kpis))
	mux.Handle("GET /dashboard/ai-tickets", authed(dashboardHandler.Tickets))
	mux.Handle("GET /franchise/summary", authed(dashboardHandler.Franchise))
	mux.Handle("GET /charts/weekly", authed(dashboardHandler.Weekly))
	mux.Handle("GET /ws/dashboard", authedStream(streamHandler.Serve))

	mux.HandleFunc("GET /health", healthHandler.Health)
	mux.HandleFunc("GET /ready", healthHandler.Ready)
	mux.Handle("GET /metrics", promhttp.Handler())

	// metrics sits directly on the mux so r.Pattern is populated
	var h http.Handler = metrics.HTTPMetricsMiddleware(mux)
	h = otelhttp.NewHandler(h, cfg.AppName,
		otelhttp.WithFilter(func(r *http.Request) bool {
			return r.URL.Path != "/health" && r.URL.Path != "/metrics"
		}),
	)
	h = middleware.CORS(cfg.CORSAllowedOrigins)(h)
	h = middleware.Recover(log)(h)
	h = middleware.RequestID(log)(h)
	return h
}

// NewHTTPServer wraps handler with the server timeouts used in production.
// WriteTimeout is left unset so websocket streams are not cut off.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}

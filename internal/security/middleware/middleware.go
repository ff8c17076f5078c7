package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/httpx"
	"github.com/aryan0dhankhar/portal/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
	"github.com/aryan0dhankhar/portal/internal/security/audit"
	"github.com/aryan0dhankhar/portal/internal/security/auth"
	"github.com/aryan0dhankhar/portal/internal/security/ratelimit"
	"github.com/aryan0dhankhar/portal/internal/service"
)

// PrincipalHandlerFunc is an HTTP handler that receives the resolved caller
type PrincipalHandlerFunc func(w http.ResponseWriter, r *http.Request, p *domain.Principal)

// Resolver maps a bearer token to a principal
type Resolver interface {
	Resolve(ctx context.Context, token string) (*domain.Principal, error)
}

// Authenticated resolves the bearer token once and passes the principal to
// next. Every authentication failure gets the same 401. With allowQuery the
// token may also come from the "token" query parameter, for browser
// websocket clients that cannot set headers.
func Authenticated(resolver Resolver, auditLog *audit.Logger, log *slog.Logger, allowQuery bool) func(PrincipalHandlerFunc) http.Handler {
	if log == nil {
		log = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(log)
	}
	return func(next PrincipalHandlerFunc) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, err := auth.ExtractToken(r.Header.Get("Authorization"))
			if err != nil && allowQuery {
				token = r.URL.Query().Get("token")
			}
			if token == "" {
				auditLog.LogDenied(r.Context(), "", "missing bearer token")
				httpx.Unauthorized(w)
				return
			}

			p, err := resolver.Resolve(r.Context(), token)
			if errors.Is(err, service.ErrUnauthorized) {
				auditLog.LogDenied(r.Context(), "", "token rejected")
				httpx.Unauthorized(w)
				return
			}
			if err != nil {
				log.Error("failed to resolve principal",
					slog.String("request_id", logger.RequestID(r.Context())),
					slog.String("error", err.Error()),
				)
				httpx.Internal(w)
				return
			}

			next(w, r, p)
		})
	}
}

// LoginRateLimit throttles requests per client address
func LoginRateLimit(limiter *ratelimit.Limiter, auditLog *audit.Logger) func(http.Handler) http.Handler {
	if auditLog == nil {
		auditLog = audit.NewLogger(nil)
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ClientIP(r)
			if !limiter.Allow(ip) {
				metrics.ObserveLogin("limited")
				auditLog.LogAction(r.Context(), ip, "login", audit.StatusDenied, "rate limited")
				w.Header().Set("Retry-After", strconv.Itoa(int(limiter.Window().Seconds())))
				httpx.Detail(w, http.StatusTooManyRequests, "Too many login attempts")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClientIP returns the host part of the connection's remote address.
// Forwarding headers are not trusted.
func ClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RequestID stamps each request with an ID (reusing a valid incoming
// X-Request-ID) and logs its completion
func RequestID(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if _, err := uuid.Parse(reqID); err != nil {
				reqID = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := logger.WithRequestID(r.Context(), reqID)
			start := time.Now()

			next.ServeHTTP(w, r.WithContext(ctx))

			log.Info("request completed",
				slog.String("request_id", reqID),
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Duration("duration", time.Since(start)),
			)
		})
	}
}

// Recover turns handler panics into a generic 500
func Recover(log *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					if rec == http.ErrAbortHandler {
						panic(rec)
					}
					log.Error("panic serving request",
						slog.String("request_id", logger.RequestID(r.Context())),
						slog.Any("panic", rec),
						slog.String("stack", string(debug.Stack())),
					)
					httpx.Internal(w)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// CORS answers preflights and sets headers for allowed origins.
// Credentials are only allowed for explicitly listed origins; a "*" entry
// answers with a literal wildcard.
func CORS(allowed []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			switch {
			case origin == "":
			case contains(allowed, origin):
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Credentials", "true")
			case contains(allowed, "*"):
				w.Header().Set("Access-Control-Allow-Origin", "*")
			}
			w.Header().Add("Vary", "Origin")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// OriginAllowed reports whether origin matches the allow list; "*" matches all
func OriginAllowed(allowed []string, origin string) bool {
	if origin == "" {
		return false
	}
	for _, a := range allowed {
		if a == "*" || a == origin {
			return true
		}
	}
	return false
}

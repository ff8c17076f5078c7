package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	loginAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_login_attempts_total",
		Help: "Login attempts by result",
	}, []string{"result"})

	tokenVerifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_token_verifications_total",
		Help: "Bearer token resolutions by result",
	}, []string{"result"})

	seedAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_seed_attempts_total",
		Help: "Bootstrap seeding attempts by result",
	}, []string{"result"})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_cache_lookups_total",
		Help: "Read-model cache lookups by result",
	}, []string{"result"})

	datastoreUp = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_datastore_up",
		Help: "1 when the last store ping succeeded",
	})

	breakerState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_read_breaker_state",
		Help: "Read-path circuit breaker state (0 closed, 1 open, 2 half-open)",
	})

	streamClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "portal_dashboard_stream_clients",
		Help: "Connected dashboard websocket clients",
	})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveLogin counts a login attempt: success, invalid or limited
func ObserveLogin(result string) {
	loginAttempts.WithLabelValues(result).Inc()
}

// ObserveTokenVerification counts a token resolution: valid or rejected
func ObserveTokenVerification(result string) {
	tokenVerifications.WithLabelValues(result).Inc()
}

// ObserveSeed counts a seeding attempt: seeded, skipped, retry or failed
func ObserveSeed(result string) {
	seedAttempts.WithLabelValues(result).Inc()
}

// ObserveCache counts a cache lookup: hit or miss
func ObserveCache(result string) {
	cacheLookups.WithLabelValues(result).Inc()
}

// SetDatastoreUp exports the store reachability
func SetDatastoreUp(up bool) {
	if up {
		datastoreUp.Set(1)
		return
	}
	datastoreUp.Set(0)
}

// SetBreakerState exports the read breaker state
func SetBreakerState(state int) {
	breakerState.Set(float64(state))
}

// StreamConnected tracks websocket clients
func StreamConnected() { streamClients.Inc() }

// StreamDisconnected tracks websocket clients
func StreamDisconnected() { streamClients.Dec() }

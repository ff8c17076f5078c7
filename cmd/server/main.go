package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aryan0dhankhar/portal/internal/bootstrap"
	"github.com/aryan0dhankhar/portal/internal/handler"
	"github.com/aryan0dhankhar/portal/internal/infrastructure/logger"
	"github.com/aryan0dhankhar/portal/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
	"github.com/aryan0dhankhar/portal/internal/observability/tracing"
	"github.com/aryan0dhankhar/portal/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/portal/internal/repository"
	"github.com/aryan0dhankhar/portal/internal/security/audit"
	"github.com/aryan0dhankhar/portal/internal/security/auth"
	"github.com/aryan0dhankhar/portal/internal/security/ratelimit"
	"github.com/aryan0dhankhar/portal/internal/server"
	"github.com/aryan0dhankhar/portal/internal/service"
	"github.com/aryan0dhankhar/portal/internal/worker"
	"github.com/aryan0dhankhar/portal/pkg/cache"
	"github.com/aryan0dhankhar/portal/pkg/config"
	"github.com/aryan0dhankhar/portal/pkg/database"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := logger.NewLogger(cfg.LogLevel)
	slog.SetDefault(log)
	log.Info("starting portal backend",
		slog.String("app", cfg.AppName),
		slog.String("environment", cfg.Environment),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	shutdownTracing, err := tracing.Init(ctx, log, cfg.OTLPEndpoint, "portal-backend", cfg.Environment)
	if err != nil {
		log.Warn("tracing disabled", slog.String("error", err.Error()))
		shutdownTracing = func(context.Context) error { return nil }
	}

	// Opening the pool does not dial; an unreachable store is handled by the
	// bootstrap supervisor and per-request errors.
	pool, err := database.NewConnectionPool(&database.Config{
		URL:             cfg.DatabaseURL,
		MaxOpenConns:    cfg.DBMaxOpenConns,
		MaxIdleConns:    cfg.DBMaxIdleConns,
		ConnMaxLifetime: cfg.DBConnMaxLifetime,
		SQLMigrations:   cfg.DBMigrations,
	}, log)
	if err != nil {
		log.Error("failed to initialize database pool", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	var (
		store       cache.Store = cache.New()
		redisClient *redis.Client
	)
	if cfg.RedisURL != "" {
		redisClient, err = redis.NewClient(ctx, cfg.RedisURL, "portal:", log)
		if err != nil {
			log.Warn("redis unavailable, using in-memory cache", slog.String("error", err.Error()))
			redisClient = nil
		} else {
			store = redisClient
			defer redisClient.Close()
		}
	}

	db := pool.DB()
	userRepo := repository.NewUserRepository(db, log)
	partnerRepo := repository.NewPartnerRepository(db, log)
	dashboardRepo := repository.NewDashboardRepository(db, log)

	hasher := auth.NewPasswordHasher(cfg.BcryptCost)
	tokens, err := auth.NewTokenManager(cfg.JWTSecretKey, cfg.JWTAlgorithm, cfg.AppName, cfg.AccessTokenTTL)
	if err != nil {
		log.Error("invalid token configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}
	auditLogger := audit.NewLogger(log)

	authService := service.NewAuthService(userRepo, partnerRepo, hasher, tokens, cfg.RegistrationPartnerID, auditLogger, log)

	breaker := circuitbreaker.NewCircuitBreaker(5, 1, 10*time.Second)
	breaker.SetStateChangeCallback(func(from, to circuitbreaker.State) {
		metrics.SetBreakerState(int(to))
		log.Warn("read path breaker changed state",
			slog.String("from", from.String()),
			slog.String("to", to.String()),
		)
	})
	dashboardService := service.NewDashboardService(dashboardRepo, store, cfg.CacheTTL, breaker, log)

	var locker bootstrap.Locker
	if redisClient != nil {
		locker = redisClient
	}
	seeder := bootstrap.NewSeeder(pool, db, hasher, cfg.Seed, locker, log)
	supervisor := bootstrap.NewSupervisor(seeder, cfg.StartupMaxAttempts, cfg.StartupRetryDelay, log)
	supervisor.OnSeeded(dashboardService.Invalidate)

	checks := map[string]handler.CheckFunc{"database": pool.Health}
	if redisClient != nil {
		checks["redis"] = redisClient.Ping
	}

	rateLimiter := ratelimit.NewLimiter(cfg.LoginRateLimit, cfg.LoginRateWindow)
	defer rateLimiter.Stop()

	router := server.NewRouter(server.Deps{
		Config:    cfg,
		Auth:      authService,
		Dashboard: dashboardService,
		Limiter:   rateLimiter,
		Audit:     auditLogger,
		Startup:   supervisor.State(),
		Checks:    checks,
		Logger:    log,
	})

	srv := server.NewHTTPServer(fmt.Sprintf(":%d", cfg.ServerPort), router)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	serveErr := make(chan error, 1)
	go func() {
		log.Info("server listening",
			slog.Int("port", cfg.ServerPort),
			slog.Int("login_rate_limit", cfg.LoginRateLimit),
			slog.Duration("login_rate_window", cfg.LoginRateWindow),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	// Seeding starts once the listener is up so /health answers during
	// retries. Failures are logged by the supervisor.
	go supervisor.Run(ctx)

	watcher := worker.NewStoreWatcher(pool, supervisor, supervisor.State(), log, cfg.StoreWatchInterval)
	go watcher.Start(ctx)

	select {
	case <-sigChan:
		log.Info("shutdown signal received")
	case err := <-serveErr:
		log.Error("server error", slog.String("error", err.Error()))
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", slog.String("error", err.Error()))
	}
	cancel()
	if err := shutdownTracing(shutdownCtx); err != nil {
		log.Warn("tracing shutdown error", slog.String("error", err.Error()))
	}
	log.Info("server stopped")
}

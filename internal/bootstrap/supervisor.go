package bootstrap

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
	"github.com/aryan0dhankhar/portal/internal/reliability/retry"
	"github.com/aryan0dhankhar/portal/pkg/database"
)

// Runner is the seeding step the supervisor retries
type Runner interface {
	Seed(ctx context.Context) (Result, error)
}

// State tracks startup progress for readiness reporting
type State struct {
	finished atomic.Bool
	seeded   atomic.Bool
}

// Finished reports whether the supervisor has completed at least one run
func (st *State) Finished() bool { return st.finished.Load() }

// Seeded reports whether a seeding run has succeeded
func (st *State) Seeded() bool { return st.seeded.Load() }

// Retryable reports whether a seeding failure is worth another attempt:
// the store is unreachable or another replica holds the seed lock.
func Retryable(err error) bool {
	return errors.Is(err, ErrSeedLocked) || database.IsUnavailable(err)
}

// Supervisor runs the seeder with bounded fixed-delay retries.
// It never terminates the process.
type Supervisor struct {
	runner    Runner
	retry     *retry.Config
	state     *State
	afterSeed func(context.Context)
	mu        sync.Mutex
	logger    *slog.Logger
}

// NewSupervisor creates a supervisor making up to maxAttempts attempts
// spaced delay apart
func NewSupervisor(runner Runner, maxAttempts int, delay time.Duration, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Supervisor{
		runner: runner,
		retry:  retry.FixedConfig(maxAttempts, delay, Retryable),
		state:  &State{},
		logger: logger,
	}
}

// OnSeeded registers a hook that runs after a successful seeding run
func (s *Supervisor) OnSeeded(fn func(context.Context)) {
	s.afterSeed = fn
}

// State returns the shared readiness state
func (s *Supervisor) State() *State {
	return s.state
}

// Run seeds the store. Exhausting all attempts is logged and reported as
// success so startup continues without a database; a non-retryable error is
// logged and returned. Concurrent calls return immediately.
func (s *Supervisor) Run(ctx context.Context) error {
	if !s.mu.TryLock() {
		return nil
	}
	defer s.mu.Unlock()
	defer s.state.finished.Store(true)

	start := time.Now()
	res, err := retry.Do(ctx, s.retry, s.logger, "bootstrap seed", func(ctx context.Context) (Result, error) {
		res, err := s.runner.Seed(ctx)
		if err != nil && Retryable(err) {
			metrics.ObserveSeed("retry")
		}
		return res, err
	})

	switch {
	case err == nil:
		s.state.seeded.Store(true)
		metrics.ObserveSeed(string(res))
		s.logger.Info("bootstrap complete",
			slog.String("result", string(res)),
			slog.Duration("elapsed", time.Since(start)),
		)
		if s.afterSeed != nil && res != ResultUnchanged {
			s.afterSeed(ctx)
		}
		return nil
	case errors.Is(err, retry.ErrAttemptsExhausted):
		metrics.ObserveSeed("failed")
		s.logger.Warn("bootstrap gave up; serving without seed data",
			slog.Int("attempts", s.retry.MaxAttempts),
			slog.String("error", err.Error()),
		)
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		s.logger.Warn("bootstrap interrupted", slog.String("error", err.Error()))
		return nil
	default:
		metrics.ObserveSeed("failed")
		s.logger.Error("bootstrap failed", slog.String("error", err.Error()))
		return err
	}
}

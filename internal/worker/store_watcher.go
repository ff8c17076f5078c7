package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
)

// Pinger reports data store reachability
type Pinger interface {
	Health(ctx context.Context) error
}

// Bootstrapper re-runs startup seeding
type Bootstrapper interface {
	Run(ctx context.Context) error
}

// SeedState reports whether startup seeding has completed
type SeedState interface {
	Seeded() bool
}

const defaultWatchInterval = 30 * time.Second

// StoreWatcher periodically pings the store, exports its reachability and
// re-runs bootstrap seeding once the store comes up if startup gave up.
// The re-run happens at most once per process.
type StoreWatcher struct {
	store     Pinger
	bootstrap Bootstrapper
	state     SeedState
	logger    *slog.Logger
	interval  time.Duration
	up        bool
	retried   bool
}

// NewStoreWatcher creates a new store watcher
func NewStoreWatcher(store Pinger, bootstrap Bootstrapper, state SeedState, logger *slog.Logger, interval time.Duration) *StoreWatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = defaultWatchInterval
	}
	return &StoreWatcher{
		store:     store,
		bootstrap: bootstrap,
		state:     state,
		logger:    logger,
		interval:  interval,
	}
}

// Start begins the watch loop and blocks until ctx is done
func (w *StoreWatcher) Start(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.logger.Info("store watcher started", slog.Duration("interval", w.interval))

	for {
		select {
		case <-ctx.Done():
			w.logger.Info("store watcher stopped")
			return
		case <-ticker.C:
			w.check(ctx)
		}
	}
}

func (w *StoreWatcher) check(ctx context.Context) {
	err := w.store.Health(ctx)
	up := err == nil
	metrics.SetDatastoreUp(up)

	if up != w.up {
		if up {
			w.logger.Info("data store reachable")
		} else {
			w.logger.Warn("data store unreachable", slog.String("error", err.Error()))
		}
		w.up = up
	}

	if !up || w.retried || w.state.Seeded() {
		return
	}

	w.retried = true
	w.logger.Info("data store up but not seeded; running bootstrap")
	if err := w.bootstrap.Run(ctx); err != nil {
		w.logger.Error("bootstrap from watcher failed", slog.String("error", err.Error()))
	}
}

package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
	"github.com/aryan0dhankhar/portal/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/portal/pkg/cache"
)

const (
	weeklyPoints = 7
	cachePrefix  = "dash:"
)

// KpiSummary is the headline KPI block of the dashboard
type KpiSummary struct {
	RevenueToday       float64 `json:"revenue_today"`
	RevenuePlanPercent float64 `json:"revenue_plan_percent"`
	LaborCostPercent   float64 `json:"labor_cost_percent"`
	FoodCostPercent    float64 `json:"food_cost_percent"`
	ProfitForecast     float64 `json:"profit_forecast"`
	LflPercent         float64 `json:"lfl_percent"`
}

// Ticket is the read shape of an AI recommendation
type Ticket struct {
	ID          uint                  `json:"id"`
	Severity    domain.TicketSeverity `json:"severity"`
	Status      domain.TicketStatus   `json:"status"`
	Title       string                `json:"title"`
	Body        string                `json:"body"`
	ActionLabel string                `json:"action_label"`
}

// FranchiseSummary lists what the outlet owes the franchisor
type FranchiseSummary struct {
	RoyaltyDue   float64 `json:"royalty_due"`
	MarketingDue float64 `json:"marketing_due"`
	SuppliesDue  float64 `json:"supplies_due"`
	QscIndex     float64 `json:"qsc_index"`
}

// WeeklyPoint is one day of the weekly chart
type WeeklyPoint struct {
	Day     string  `json:"day"`
	Revenue float64 `json:"revenue"`
	Checks  int     `json:"checks"`
}

// Snapshot is pushed to live dashboard subscribers
type Snapshot struct {
	Kpis        KpiSummary `json:"kpis"`
	OpenTickets int64      `json:"open_tickets"`
	SentAt      time.Time  `json:"sent_at"`
}

// DashboardService serves per-outlet read models through a TTL cache and a
// circuit breaker. A principal without an outlet sees empty results.
type DashboardService struct {
	repo    domain.DashboardRepository
	cache   cache.Store
	ttl     time.Duration
	breaker *circuitbreaker.CircuitBreaker
	logger  *slog.Logger
}

// NewDashboardService creates a dashboard service. A nil store disables caching.
func NewDashboardService(
	repo domain.DashboardRepository,
	store cache.Store,
	ttl time.Duration,
	breaker *circuitbreaker.CircuitBreaker,
	logger *slog.Logger,
) *DashboardService {
	if logger == nil {
		logger = slog.Default()
	}
	if breaker == nil {
		breaker = circuitbreaker.NewCircuitBreaker(5, 1, 10*time.Second)
	}
	return &DashboardService{repo: repo, cache: store, ttl: ttl, breaker: breaker, logger: logger}
}

// Kpis returns the latest KPI day, all zeros when none exists
func (s *DashboardService) Kpis(ctx context.Context, p *domain.Principal) (KpiSummary, error) {
	outletID, ok := p.OutletID()
	if !ok {
		return KpiSummary{}, nil
	}
	return cached(ctx, s, cacheKey("kpis", outletID), func(ctx context.Context) (KpiSummary, error) {
		k, err := s.repo.LatestKpi(ctx, outletID)
		if errors.Is(err, domain.ErrNotFound) {
			return KpiSummary{}, nil
		}
		if err != nil {
			return KpiSummary{}, err
		}
		return KpiSummary{
			RevenueToday:       k.Revenue,
			RevenuePlanPercent: k.PlanPercent,
			LaborCostPercent:   k.LaborCostPercent,
			FoodCostPercent:    k.FoodCostPercent,
			ProfitForecast:     k.ProfitForecast,
			LflPercent:         k.LflPercent,
		}, nil
	})
}

// Tickets returns the outlet's tickets, newest first
func (s *DashboardService) Tickets(ctx context.Context, p *domain.Principal) ([]Ticket, error) {
	outletID, ok := p.OutletID()
	if !ok {
		return []Ticket{}, nil
	}
	return cached(ctx, s, cacheKey("tickets", outletID), func(ctx context.Context) ([]Ticket, error) {
		rows, err := s.repo.Tickets(ctx, outletID)
		if err != nil {
			return nil, err
		}
		out := make([]Ticket, 0, len(rows))
		for _, t := range rows {
			out = append(out, Ticket{
				ID:          t.ID,
				Severity:    t.Severity,
				Status:      t.Status,
				Title:       t.Title,
				Body:        t.Body,
				ActionLabel: t.ActionLabel,
			})
		}
		return out, nil
	})
}

// Franchise returns the latest debt snapshot, all zeros when none exists
func (s *DashboardService) Franchise(ctx context.Context, p *domain.Principal) (FranchiseSummary, error) {
	outletID, ok := p.OutletID()
	if !ok {
		return FranchiseSummary{}, nil
	}
	return cached(ctx, s, cacheKey("franchise", outletID), func(ctx context.Context) (FranchiseSummary, error) {
		d, err := s.repo.LatestDebt(ctx, outletID)
		if errors.Is(err, domain.ErrNotFound) {
			return FranchiseSummary{}, nil
		}
		if err != nil {
			return FranchiseSummary{}, err
		}
		return FranchiseSummary{
			RoyaltyDue:   d.RoyaltyDue,
			MarketingDue: d.MarketingDue,
			SuppliesDue:  d.SuppliesDue,
			QscIndex:     d.QscIndex,
		}, nil
	})
}

// Weekly returns up to seven most recent days, oldest first
func (s *DashboardService) Weekly(ctx context.Context, p *domain.Principal) ([]WeeklyPoint, error) {
	outletID, ok := p.OutletID()
	if !ok {
		return []WeeklyPoint{}, nil
	}
	return cached(ctx, s, cacheKey("weekly", outletID), func(ctx context.Context) ([]WeeklyPoint, error) {
		rows, err := s.repo.RecentKpis(ctx, outletID, weeklyPoints)
		if err != nil {
			return nil, err
		}
		out := make([]WeeklyPoint, 0, len(rows))
		for _, r := range rows {
			out = append(out, WeeklyPoint{Day: r.Day.Format(time.DateOnly), Revenue: r.Revenue, Checks: r.Checks})
		}
		return out, nil
	})
}

// Snapshot builds the live feed payload. It bypasses the cache for the
// open ticket count.
func (s *DashboardService) Snapshot(ctx context.Context, p *domain.Principal, now time.Time) (Snapshot, error) {
	kpis, err := s.Kpis(ctx, p)
	if err != nil {
		return Snapshot{}, err
	}
	snap := Snapshot{Kpis: kpis, SentAt: now.UTC()}
	outletID, ok := p.OutletID()
	if !ok {
		return snap, nil
	}
	err = s.breaker.Execute(func() error {
		n, err := s.repo.CountOpenTickets(ctx, outletID)
		snap.OpenTickets = n
		return err
	}, countsAgainstBreaker)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return Snapshot{}, ErrUnavailable
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("count open tickets: %w", err)
	}
	return snap, nil
}

// Invalidate drops every cached read model
func (s *DashboardService) Invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Invalidate(ctx, cachePrefix); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", slog.String("error", err.Error()))
	}
}

// BreakerState reports the read-path breaker state
func (s *DashboardService) BreakerState() circuitbreaker.State {
	return s.breaker.GetState()
}

func cacheKey(kind string, outletID uint) string {
	return fmt.Sprintf("%s%s:%d", cachePrefix, kind, outletID)
}

func countsAgainstBreaker(err error) bool {
	return !errors.Is(err, domain.ErrNotFound) &&
		!errors.Is(err, context.Canceled)
}

// cached serves key from the cache or loads it through the breaker.
// Cache failures degrade to a direct load.
func cached[T any](ctx context.Context, s *DashboardService, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T
	if s.cache != nil {
		raw, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.logger.Warn("cache read failed", slog.String("key", key), slog.String("error", err.Error()))
		case ok:
			var v T
			if err := json.Unmarshal(raw, &v); err == nil {
				metrics.ObserveCache("hit")
				return v, nil
			}
		}
		metrics.ObserveCache("miss")
	}

	var result T
	err := s.breaker.Execute(func() error {
		var err error
		result, err = load(ctx)
		return err
	}, countsAgainstBreaker)
	if errors.Is(err, circuitbreaker.ErrOpen) {
		return zero, ErrUnavailable
	}
	if err != nil {
		return zero, fmt.Errorf("load %s: %w", key, err)
	}

	if s.cache != nil && s.ttl > 0 {
		raw, err := json.Marshal(result)
		if err == nil {
			err = s.cache.Set(ctx, key, raw, s.ttl)
		}
		if err != nil {
			s.logger.Warn("cache write failed", slog.String("key", key), slog.String("error", err.Error()))
		}
	}
	return result, nil
}

package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/reliability/circuitbreaker"
	"github.com/aryan0dhankhar/portal/internal/repository"
	"github.com/aryan0dhankhar/portal/internal/testutil"
	"github.com/aryan0dhankhar/portal/pkg/cache"
)

func TestDashboardReadsAreOutletScoped(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()

	partner := &domain.Partner{Name: "P"}
	require.NoError(t, db.Create(partner).Error)
	mine := &domain.Outlet{Name: "Mine", PartnerID: partner.ID}
	theirs := &domain.Outlet{Name: "Theirs", PartnerID: partner.ID}
	require.NoError(t, db.Create(mine).Error)
	require.NoError(t, db.Create(theirs).Error)

	day := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, db.Create(&domain.KpiDaily{OutletID: mine.ID, Day: day, Revenue: 100, PlanPercent: 92, Checks: 80}).Error)
	require.NoError(t, db.Create(&domain.KpiDaily{OutletID: theirs.ID, Day: day.AddDate(0, 0, 1), Revenue: 999}).Error)
	require.NoError(t, db.Create(&domain.FranchiseDebt{OutletID: mine.ID, RoyaltyDue: 80000, QscIndex: 82.5}).Error)
	require.NoError(t, db.Create(&domain.AiTicket{OutletID: theirs.ID, Severity: domain.SeverityAdvice, Status: domain.TicketOpen, Title: "x", Body: "y", ActionLabel: "z"}).Error)

	svc := NewDashboardService(repository.NewDashboardRepository(db, nil), cache.New(), time.Minute, nil, nil)
	p := &domain.Principal{User: &domain.User{ID: 1}, Partner: partner, Outlet: mine}

	kpis, err := svc.Kpis(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, float64(100), kpis.RevenueToday)
	assert.Equal(t, float64(92), kpis.RevenuePlanPercent)

	weekly, err := svc.Weekly(ctx, p)
	require.NoError(t, err)
	require.Len(t, weekly, 1)
	assert.Equal(t, "2026-05-01", weekly[0].Day)

	tickets, err := svc.Tickets(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, tickets)

	fr, err := svc.Franchise(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, FranchiseSummary{RoyaltyDue: 80000, QscIndex: 82.5}, fr)

	snap, err := svc.Snapshot(ctx, p, day)
	require.NoError(t, err)
	assert.Equal(t, int64(0), snap.OpenTickets)
	assert.Equal(t, kpis, snap.Kpis)
}

func TestDashboardZerosWithoutData(t *testing.T) {
	db := testutil.NewDB(t)
	ctx := context.Background()
	svc := NewDashboardService(repository.NewDashboardRepository(db, nil), nil, 0, nil, nil)

	unassigned := &domain.Principal{User: &domain.User{ID: 1}}
	kpis, err := svc.Kpis(ctx, unassigned)
	require.NoError(t, err)
	assert.Equal(t, KpiSummary{}, kpis)
	tickets, err := svc.Tickets(ctx, unassigned)
	require.NoError(t, err)
	assert.NotNil(t, tickets)
	assert.Empty(t, tickets)

	partner := &domain.Partner{Name: "P"}
	require.NoError(t, db.Create(partner).Error)
	outlet := &domain.Outlet{Name: "Empty", PartnerID: partner.ID}
	require.NoError(t, db.Create(outlet).Error)
	p := &domain.Principal{User: &domain.User{ID: 1}, Partner: partner, Outlet: outlet}

	kpis, err = svc.Kpis(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, KpiSummary{}, kpis)
	fr, err := svc.Franchise(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, FranchiseSummary{}, fr)
	weekly, err := svc.Weekly(ctx, p)
	require.NoError(t, err)
	assert.Empty(t, weekly)
}

type flakyRepo struct {
	domain.DashboardRepository
	calls int
	err   error
	kpi   *domain.KpiDaily
}

func (f *flakyRepo) LatestKpi(context.Context, uint) (*domain.KpiDaily, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.kpi, nil
}

func TestDashboardCachesReads(t *testing.T) {
	repo := &flakyRepo{kpi: &domain.KpiDaily{Revenue: 5}}
	store := cache.New()
	svc := NewDashboardService(repo, store, time.Minute, nil, nil)
	p := &domain.Principal{Outlet: &domain.Outlet{ID: 7}}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		k, err := svc.Kpis(ctx, p)
		require.NoError(t, err)
		assert.Equal(t, float64(5), k.RevenueToday)
	}
	assert.Equal(t, 1, repo.calls)

	svc.Invalidate(ctx)
	_, err := svc.Kpis(ctx, p)
	require.NoError(t, err)
	assert.Equal(t, 2, repo.calls)
}

func TestDashboardZeroTTLDisablesCache(t *testing.T) {
	repo := &flakyRepo{kpi: &domain.KpiDaily{Revenue: 5}}
	store := cache.New()
	svc := NewDashboardService(repo, store, 0, nil, nil)
	p := &domain.Principal{Outlet: &domain.Outlet{ID: 7}}
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.Kpis(ctx, p)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, repo.calls)
	_, ok, err := store.Get(ctx, cacheKey("kpis", 7))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDashboardBreakerFailsFast(t *testing.T) {
	repo := &flakyRepo{err: errors.New("connection refused")}
	breaker := circuitbreaker.NewCircuitBreaker(2, 1, time.Hour)
	svc := NewDashboardService(repo, nil, 0, breaker, nil)
	p := &domain.Principal{Outlet: &domain.Outlet{ID: 7}}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		_, err := svc.Kpis(ctx, p)
		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrUnavailable)
	}
	assert.Equal(t, circuitbreaker.StateOpen, svc.BreakerState())

	_, err := svc.Kpis(ctx, p)
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, 2, repo.calls)
}

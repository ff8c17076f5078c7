package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/aryan0dhankhar/portal/internal/domain"
)

// DashboardRepository implements domain.DashboardRepository on top of gorm
type DashboardRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewDashboardRepository creates a new dashboard repository
func NewDashboardRepository(db *gorm.DB, logger *slog.Logger) *DashboardRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &DashboardRepository{db: db, logger: logger}
}

// LatestKpi returns the most recent day for an outlet
func (r *DashboardRepository) LatestKpi(ctx context.Context, outletID uint) (*domain.KpiDaily, error) {
	var k domain.KpiDaily
	err := r.db.WithContext(ctx).
		Where("outlet_id = ?", outletID).
		Order("day DESC").
		Order("id DESC").
		Take(&k).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get latest kpi: %w", err)
	}
	return &k, nil
}

// RecentKpis returns up to limit most recent days, oldest first
func (r *DashboardRepository) RecentKpis(ctx context.Context, outletID uint, limit int) ([]domain.KpiDaily, error) {
	var rows []domain.KpiDaily
	err := r.db.WithContext(ctx).
		Where("outlet_id = ?", outletID).
		Order("day DESC").
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list kpis: %w", err)
	}

	for i, j := 0, len(rows)-1; i < j; i, j = i+1, j-1 {
		rows[i], rows[j] = rows[j], rows[i]
	}
	return rows, nil
}

// Tickets returns an outlet's tickets, newest first
func (r *DashboardRepository) Tickets(ctx context.Context, outletID uint) ([]domain.AiTicket, error) {
	var tickets []domain.AiTicket
	err := r.db.WithContext(ctx).
		Where("outlet_id = ?", outletID).
		Order("id DESC").
		Find(&tickets).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list tickets: %w", err)
	}
	return tickets, nil
}

// CountOpenTickets counts tickets still awaiting action
func (r *DashboardRepository) CountOpenTickets(ctx context.Context, outletID uint) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&domain.AiTicket{}).
		Where("outlet_id = ? AND status = ?", outletID, domain.TicketOpen).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count open tickets: %w", err)
	}
	return n, nil
}

// LatestDebt returns the newest debt snapshot for an outlet
func (r *DashboardRepository) LatestDebt(ctx context.Context, outletID uint) (*domain.FranchiseDebt, error) {
	var d domain.FranchiseDebt
	err := r.db.WithContext(ctx).
		Where("outlet_id = ?", outletID).
		Order("id DESC").
		Take(&d).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get franchise debt: %w", err)
	}
	return &d, nil
}

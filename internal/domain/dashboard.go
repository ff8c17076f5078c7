package domain

import (
	"context"
	"time"
)

// TicketSeverity ranks an AI recommendation
type TicketSeverity string

const (
	SeverityCritical TicketSeverity = "critical"
	SeverityWarning  TicketSeverity = "warning"
	SeverityAdvice   TicketSeverity = "advice"
)

// TicketStatus is the lifecycle state of an AI recommendation
type TicketStatus string

const (
	TicketOpen TicketStatus = "open"
	TicketDone TicketStatus = "done"
)

// KpiDaily is one day of stored KPI figures for an outlet
type KpiDaily struct {
	ID               uint      `gorm:"primaryKey"`
	OutletID         uint      `gorm:"not null;index"`
	Outlet           *Outlet   `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Day              time.Time `gorm:"type:date;not null;index"`
	Revenue          float64   `gorm:"not null"`
	PlanPercent      float64   `gorm:"not null"`
	LaborCostPercent float64   `gorm:"not null"`
	FoodCostPercent  float64   `gorm:"not null"`
	ProfitForecast   float64   `gorm:"not null"`
	Checks           int       `gorm:"not null"`
	LflPercent       float64   `gorm:"not null"`
}

// TableName keeps the table name used by the SQL migrations
func (KpiDaily) TableName() string { return "kpis_daily" }

// AiTicket is a recommendation surfaced to operators
type AiTicket struct {
	ID          uint           `gorm:"primaryKey"`
	OutletID    uint           `gorm:"not null;index"`
	Outlet      *Outlet        `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	Severity    TicketSeverity `gorm:"size:16;not null"`
	Status      TicketStatus   `gorm:"size:16;not null"`
	Title       string         `gorm:"size:255;not null"`
	Body        string         `gorm:"type:text;not null"`
	ActionLabel string         `gorm:"size:120;not null"`
}

// FranchiseDebt is the current snapshot of an outlet's obligations
type FranchiseDebt struct {
	ID           uint    `gorm:"primaryKey"`
	OutletID     uint    `gorm:"not null;index"`
	Outlet       *Outlet `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
	RoyaltyDue   float64 `gorm:"not null"`
	MarketingDue float64 `gorm:"not null"`
	SuppliesDue  float64 `gorm:"not null"`
	QscIndex     float64 `gorm:"not null"`
}

// DashboardRepository reads the per-outlet dashboard series
type DashboardRepository interface {
	LatestKpi(ctx context.Context, outletID uint) (*KpiDaily, error)
	RecentKpis(ctx context.Context, outletID uint, limit int) ([]KpiDaily, error)
	Tickets(ctx context.Context, outletID uint) ([]AiTicket, error)
	CountOpenTickets(ctx context.Context, outletID uint) (int64, error)
	LatestDebt(ctx context.Context, outletID uint) (*FranchiseDebt, error)
}

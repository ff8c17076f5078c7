// Package bootstrap creates the demo tenant on a fresh store and keeps
// retrying that at startup until the store is reachable.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"gorm.io/gorm"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/infrastructure/redis"
	"github.com/aryan0dhankhar/portal/internal/observability/tracing"
	"github.com/aryan0dhankhar/portal/internal/security/auth"
	"github.com/aryan0dhankhar/portal/pkg/config"
)

// LegacySeedEmail is the seed address used before SEED_USER_EMAIL existed
const LegacySeedEmail = "demo@portal.local"

const (
	lockKey = "bootstrap"
	lockTTL = 30 * time.Second
)

// ErrSeedLocked means another replica is seeding right now
var ErrSeedLocked = errors.New("bootstrap lock held by another instance")

// Result describes what a seeding run changed
type Result string

const (
	ResultSeeded    Result = "seeded"
	ResultMigrated  Result = "migrated"
	ResultUnchanged Result = "unchanged"
)

// Schema creates or upgrades tables
type Schema interface {
	EnsureSchema(ctx context.Context) error
}

// Locker grants a short exclusive lease across replicas
type Locker interface {
	Lock(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Seeder populates an empty store with one partner, outlet and user plus a
// week of dashboard data. Running it again is a no-op.
type Seeder struct {
	schema Schema
	db     *gorm.DB
	hasher *auth.PasswordHasher
	seed   config.SeedConfig
	locker Locker
	now    func() time.Time
	logger *slog.Logger
}

// NewSeeder creates a seeder. locker may be nil for single-replica setups.
func NewSeeder(schema Schema, db *gorm.DB, hasher *auth.PasswordHasher, seed config.SeedConfig, locker Locker, logger *slog.Logger) *Seeder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Seeder{
		schema: schema,
		db:     db,
		hasher: hasher,
		seed:   seed,
		locker: locker,
		now:    time.Now,
		logger: logger,
	}
}

// SetClock replaces the time source that dates the KPI history
func (s *Seeder) SetClock(now func() time.Time) {
	s.now = now
}

// Seed ensures the schema, then either migrates the legacy seed email (when
// users exist) or writes the demo tenant in a single transaction.
func (s *Seeder) Seed(ctx context.Context) (res Result, err error) {
	ctx, span := tracing.Tracer().Start(ctx, "bootstrap.Seed")
	defer func() {
		span.SetAttributes(attribute.String("result", string(res)))
		if err != nil {
			span.RecordError(err)
		}
		span.End()
	}()

	if s.locker != nil {
		release, err := s.locker.Lock(ctx, lockKey, lockTTL)
		switch {
		case errors.Is(err, redis.ErrLockNotObtained):
			return ResultUnchanged, ErrSeedLocked
		case err != nil:
			s.logger.Warn("bootstrap lock unavailable; seeding without lock", slog.String("error", err.Error()))
		default:
			defer func() {
				if err := release(context.WithoutCancel(ctx)); err != nil {
					s.logger.Warn("failed to release bootstrap lock", slog.String("error", err.Error()))
				}
			}()
		}
	}

	if err := s.schema.EnsureSchema(ctx); err != nil {
		return ResultUnchanged, fmt.Errorf("ensure schema: %w", err)
	}

	hasUsers, err := s.hasUsers(ctx)
	if err != nil {
		return ResultUnchanged, err
	}
	if hasUsers {
		return s.migrateLegacyEmail(ctx)
	}

	digest, err := s.hasher.Hash(s.seed.UserPassword)
	if err != nil {
		return ResultUnchanged, fmt.Errorf("hash seed password: %w", err)
	}

	if err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.writeDemoTenant(tx, digest)
	}); err != nil {
		// Another unlocked replica may have won the race
		if again, checkErr := s.hasUsers(ctx); checkErr == nil && again {
			s.logger.Info("store seeded concurrently by another instance")
			return ResultUnchanged, nil
		}
		return ResultUnchanged, fmt.Errorf("seed demo data: %w", err)
	}

	s.logger.Info("demo data seeded",
		slog.String("email", s.seed.UserEmail),
		slog.String("partner", s.seed.PartnerName),
	)
	return ResultSeeded, nil
}

func (s *Seeder) hasUsers(ctx context.Context) (bool, error) {
	var ids []uint
	if err := s.db.WithContext(ctx).Model(&domain.User{}).Limit(1).Pluck("id", &ids).Error; err != nil {
		return false, fmt.Errorf("check users: %w", err)
	}
	return len(ids) > 0, nil
}

// migrateLegacyEmail renames the legacy seed user to the configured email.
// It never touches a user that already owns the configured email.
func (s *Seeder) migrateLegacyEmail(ctx context.Context) (Result, error) {
	if s.seed.UserEmail == LegacySeedEmail {
		return ResultUnchanged, nil
	}

	db := s.db.WithContext(ctx)
	var legacy domain.User
	err := db.Where("email = ?", LegacySeedEmail).Take(&legacy).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ResultUnchanged, nil
	}
	if err != nil {
		return ResultUnchanged, fmt.Errorf("find legacy seed user: %w", err)
	}

	var taken int64
	if err := db.Model(&domain.User{}).Where("email = ?", s.seed.UserEmail).Count(&taken).Error; err != nil {
		return ResultUnchanged, fmt.Errorf("check seed email: %w", err)
	}
	if taken > 0 {
		s.logger.Warn("legacy seed user kept: configured seed email already in use",
			slog.String("email", s.seed.UserEmail))
		return ResultUnchanged, nil
	}

	if err := db.Model(&domain.User{}).Where("id = ?", legacy.ID).Update("email", s.seed.UserEmail).Error; err != nil {
		return ResultUnchanged, fmt.Errorf("migrate legacy seed email: %w", err)
	}
	s.logger.Info("legacy seed email migrated",
		slog.Uint64("user_id", uint64(legacy.ID)),
		slog.String("email", s.seed.UserEmail),
	)
	return ResultMigrated, nil
}

func (s *Seeder) writeDemoTenant(tx *gorm.DB, digest string) error {
	partner := &domain.Partner{Name: s.seed.PartnerName}
	if err := tx.Create(partner).Error; err != nil {
		return fmt.Errorf("create partner: %w", err)
	}

	externalID := "OUT-001"
	outlet := &domain.Outlet{Name: s.seed.OutletName, ExternalID: &externalID, PartnerID: partner.ID}
	if err := tx.Omit("Partner").Create(outlet).Error; err != nil {
		return fmt.Errorf("create outlet: %w", err)
	}

	user := &domain.User{
		Email:          s.seed.UserEmail,
		FullName:       s.seed.UserFullName,
		HashedPassword: digest,
		IsActive:       true,
		PartnerID:      &partner.ID,
	}
	if err := tx.Omit("Partner").Create(user).Error; err != nil {
		return fmt.Errorf("create user: %w", err)
	}

	debt := &domain.FranchiseDebt{
		OutletID:     outlet.ID,
		RoyaltyDue:   80000,
		MarketingDue: 60000,
		SuppliesDue:  120000,
		QscIndex:     82.5,
	}
	if err := tx.Omit("Outlet").Create(debt).Error; err != nil {
		return fmt.Errorf("create franchise debt: %w", err)
	}

	if err := tx.Omit("Outlet").Create(kpiHistory(outlet.ID, s.now())).Error; err != nil {
		return fmt.Errorf("create kpi history: %w", err)
	}

	if err := tx.Omit("Outlet").Create(demoTickets(outlet.ID)).Error; err != nil {
		return fmt.Errorf("create ai tickets: %w", err)
	}
	return nil
}

// kpiHistory returns seven days ending today (UTC), oldest first.
// Figures shrink towards today by a fixed step per day.
func kpiHistory(outletID uint, now time.Time) []domain.KpiDaily {
	y, m, d := now.UTC().Date()
	today := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)

	rows := make([]domain.KpiDaily, 0, 7)
	for offset := 6; offset >= 0; offset-- {
		rows = append(rows, domain.KpiDaily{
			OutletID:         outletID,
			Day:              today.AddDate(0, 0, -offset),
			Revenue:          float64(90000 + offset*7000),
			PlanPercent:      float64(92 + offset),
			LaborCostPercent: 32.0,
			FoodCostPercent:  28.5,
			ProfitForecast:   594000,
			Checks:           80 + offset*3,
			LflPercent:       4.2,
		})
	}
	return rows
}

func demoTickets(outletID uint) []domain.AiTicket {
	return []domain.AiTicket{
		{
			OutletID:    outletID,
			Severity:    domain.SeverityCritical,
			Status:      domain.TicketOpen,
			Title:       "Labor cost over budget",
			Body:        "Labor cost is 15% over plan. Five cooks were scheduled yesterday against 50,000 RUB of revenue, an overspend of 8,500 RUB.",
			ActionLabel: "Fix the schedule",
		},
		{
			OutletID:    outletID,
			Severity:    domain.SeverityAdvice,
			Status:      domain.TicketOpen,
			Title:       "Seasonal tea sales",
			Body:        "Seasonal tea sales fell 20%. Competitors started a promotion.",
			ActionLabel: "Launch a promotion",
		},
	}
}

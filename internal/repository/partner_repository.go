package repository

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/aryan0dhankhar/portal/internal/domain"
)

// PartnerRepository implements domain.PartnerRepository on top of gorm
type PartnerRepository struct {
	db     *gorm.DB
	logger *slog.Logger
}

// NewPartnerRepository creates a new partner repository
func NewPartnerRepository(db *gorm.DB, logger *slog.Logger) *PartnerRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &PartnerRepository{db: db, logger: logger}
}

// GetByID retrieves a partner by ID
func (r *PartnerRepository) GetByID(ctx context.Context, id uint) (*domain.Partner, error) {
	var p domain.Partner
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get partner: %w", err)
	}
	return &p, nil
}

// PrimaryOutlet returns the partner's outlet with the lowest ID.
// A user maps to at most one outlet, and this is it.
func (r *PartnerRepository) PrimaryOutlet(ctx context.Context, partnerID uint) (*domain.Outlet, error) {
	var o domain.Outlet
	err := r.db.WithContext(ctx).
		Where("partner_id = ?", partnerID).
		Order("id ASC").
		Take(&o).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get outlet for partner: %w", err)
	}
	return &o, nil
}

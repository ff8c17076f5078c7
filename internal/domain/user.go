package domain

import (
	"context"
	"errors"
)

// ErrNotFound is returned by repositories when a row does not exist
var ErrNotFound = errors.New("not found")

// Partner is the franchise-owning tenant
type Partner struct {
	ID   uint   `gorm:"primaryKey"`
	Name string `gorm:"size:255;not null"`
}

// Outlet is a single restaurant location under a partner
type Outlet struct {
	ID         uint     `gorm:"primaryKey"`
	Name       string   `gorm:"size:255;not null"`
	ExternalID *string  `gorm:"size:64"`
	PartnerID  uint     `gorm:"not null;index"`
	Partner    *Partner `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// User is an authenticated operator.
// PartnerID is nil for users registered without a partner assignment.
type User struct {
	ID             uint     `gorm:"primaryKey"`
	Email          string   `gorm:"size:255;not null;uniqueIndex"`
	FullName       string   `gorm:"size:255;not null"`
	HashedPassword string   `gorm:"size:255;not null" json:"-"`
	IsActive       bool     `gorm:"not null;default:true"`
	PartnerID      *uint    `gorm:"index"`
	Partner        *Partner `gorm:"constraint:OnDelete:RESTRICT" json:"-"`
}

// Principal is the resolved identity of an authenticated request.
// Partner and Outlet are nil when the user has no assignment.
type Principal struct {
	User    *User
	Partner *Partner
	Outlet  *Outlet
}

// OutletID returns the outlet the principal's reads are scoped to
func (p *Principal) OutletID() (uint, bool) {
	if p == nil || p.Outlet == nil {
		return 0, false
	}
	return p.Outlet.ID, true
}

// UserRepository defines data access for users
type UserRepository interface {
	Create(ctx context.Context, user *User) error
	GetByID(ctx context.Context, id uint) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	UpdatePassword(ctx context.Context, id uint, hashedPassword string) error
}

// PartnerRepository defines data access for partners and their outlets
type PartnerRepository interface {
	GetByID(ctx context.Context, id uint) (*Partner, error)
	PrimaryOutlet(ctx context.Context, partnerID uint) (*Outlet, error)
}

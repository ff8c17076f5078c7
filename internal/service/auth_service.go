package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/observability/metrics"
	"github.com/aryan0dhankhar/portal/internal/security/audit"
	"github.com/aryan0dhankhar/portal/internal/security/auth"
)

// AuthService handles authentication operations
type AuthService struct {
	users                 domain.UserRepository
	partners              domain.PartnerRepository
	hasher                *auth.PasswordHasher
	tokens                *auth.TokenManager
	registrationPartnerID uint
	validate              *validator.Validate
	audit                 *audit.Logger
	logger                *slog.Logger
	now                   func() time.Time
	dummyDigest           string
}

// NewAuthService creates a new authentication service.
// New users are attached to registrationPartnerID when that partner exists.
func NewAuthService(
	users domain.UserRepository,
	partners domain.PartnerRepository,
	hasher *auth.PasswordHasher,
	tokens *auth.TokenManager,
	registrationPartnerID uint,
	auditLog *audit.Logger,
	logger *slog.Logger,
) *AuthService {
	if logger == nil {
		logger = slog.Default()
	}
	if auditLog == nil {
		auditLog = audit.NewLogger(logger)
	}

	// Unknown emails are checked against this digest so that a miss costs
	// the same bcrypt work as a wrong password.
	dummy, err := hasher.Hash("dummy-password-for-timing")
	if err != nil {
		logger.Warn("failed to prepare dummy digest", slog.String("error", err.Error()))
	}

	return &AuthService{
		users:                 users,
		partners:              partners,
		hasher:                hasher,
		tokens:                tokens,
		registrationPartnerID: registrationPartnerID,
		validate:              newValidator(),
		audit:                 auditLog,
		logger:                logger,
		now:                   time.Now,
		dummyDigest:           dummy,
	}
}

// SetClock replaces the time source used for token issue and verification
func (s *AuthService) SetClock(now func() time.Time) {
	s.now = now
}

// RegisterInput is the registration payload
type RegisterInput struct {
	Email    string `json:"email" validate:"required,email,max=255"`
	FullName string `json:"full_name" validate:"required,max=255"`
	Password string `json:"password" validate:"required,max=72"`
}

// ChangePasswordInput is the password change payload
type ChangePasswordInput struct {
	OldPassword string `json:"old_password" validate:"required"`
	NewPassword string `json:"new_password" validate:"required,min=8,max=72"`
}

// TokenResult represents login response
type TokenResult struct {
	AccessToken string    `json:"access_token"`
	TokenType   string    `json:"token_type"`
	ExpiresAt   time.Time `json:"-"`
}

// Register creates a new user account
func (s *AuthService) Register(ctx context.Context, in RegisterInput) (*domain.User, error) {
	in.Email = strings.TrimSpace(in.Email)
	if err := validate(s.validate, in); err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, in.Email); err == nil {
		s.audit.LogRegistration(ctx, in.Email, audit.StatusFailure, "email already registered")
		return nil, ErrEmailTaken
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("lookup email: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	partnerID, err := s.registrationPartner(ctx)
	if err != nil {
		return nil, err
	}

	user := &domain.User{
		Email:          in.Email,
		FullName:       in.FullName,
		HashedPassword: hash,
		IsActive:       true,
		PartnerID:      partnerID,
	}
	if err := s.users.Create(ctx, user); err != nil {
		// Lost a race with a concurrent registration for the same email
		if _, lookupErr := s.users.GetByEmail(ctx, in.Email); lookupErr == nil {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.audit.LogRegistration(ctx, user.Email, audit.StatusSuccess, "")
	s.logger.Info("user registered", slog.Uint64("user_id", uint64(user.ID)))
	return user, nil
}

func (s *AuthService) registrationPartner(ctx context.Context) (*uint, error) {
	if s.registrationPartnerID == 0 {
		return nil, nil
	}
	partner, err := s.partners.GetByID(ctx, s.registrationPartnerID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Warn("registration partner missing, user left unassigned",
			slog.Uint64("partner_id", uint64(s.registrationPartnerID)))
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup registration partner: %w", err)
	}
	id := partner.ID
	return &id, nil
}

// Login verifies credentials and issues an access token
func (s *AuthService) Login(ctx context.Context, email, password string) (*TokenResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		metrics.ObserveLogin("invalid")
		return nil, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("lookup user: %w", err)
		}
		s.hasher.Verify(password, s.dummyDigest)
		s.audit.LogLogin(ctx, email, audit.StatusFailure, "unknown email")
		metrics.ObserveLogin("invalid")
		return nil, ErrInvalidCredentials
	}

	if !s.hasher.Verify(password, user.HashedPassword) {
		s.audit.LogLogin(ctx, email, audit.StatusFailure, "wrong password")
		metrics.ObserveLogin("invalid")
		return nil, ErrInvalidCredentials
	}
	if !user.IsActive {
		s.audit.LogLogin(ctx, email, audit.StatusFailure, "inactive account")
		metrics.ObserveLogin("invalid")
		return nil, ErrInvalidCredentials
	}

	token, exp, err := s.tokens.Issue(user.Email, s.now())
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}

	s.audit.LogLogin(ctx, email, audit.StatusSuccess, "")
	metrics.ObserveLogin("success")
	return &TokenResult{AccessToken: token, TokenType: "bearer", ExpiresAt: exp}, nil
}

// Resolve maps a bearer token to the current principal. Invalid tokens,
// unknown subjects and inactive users all yield ErrUnauthorized; store
// failures are returned as-is.
func (s *AuthService) Resolve(ctx context.Context, token string) (*domain.Principal, error) {
	subject, err := s.tokens.Verify(token, s.now())
	if err != nil {
		metrics.ObserveTokenVerification("rejected")
		return nil, ErrUnauthorized
	}

	user, err := s.users.GetByEmail(ctx, subject)
	if errors.Is(err, domain.ErrNotFound) {
		metrics.ObserveTokenVerification("rejected")
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("resolve user: %w", err)
	}
	if !user.IsActive {
		metrics.ObserveTokenVerification("rejected")
		s.audit.LogDenied(ctx, user.Email, "inactive account")
		return nil, ErrUnauthorized
	}

	principal := &domain.Principal{User: user}
	if user.PartnerID == nil {
		metrics.ObserveTokenVerification("valid")
		return principal, nil
	}

	partner, err := s.partners.GetByID(ctx, *user.PartnerID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("resolve partner: %w", err)
	}
	if partner != nil {
		principal.Partner = partner
		outlet, err := s.partners.PrimaryOutlet(ctx, partner.ID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			return nil, fmt.Errorf("resolve outlet: %w", err)
		}
		principal.Outlet = outlet
	}

	metrics.ObserveTokenVerification("valid")
	return principal, nil
}

// ChangePassword replaces the password of an authenticated user after
// checking the current one
func (s *AuthService) ChangePassword(ctx context.Context, user *domain.User, in ChangePasswordInput) error {
	if err := validate(s.validate, in); err != nil {
		return err
	}

	// The principal was loaded at the start of the request; verify against
	// the stored digest in case another request changed it since.
	current, err := s.users.GetByID(ctx, user.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return ErrUnauthorized
	}
	if err != nil {
		return fmt.Errorf("load user: %w", err)
	}

	if !s.hasher.Verify(in.OldPassword, current.HashedPassword) {
		s.audit.LogPasswordChange(ctx, user.Email, audit.StatusFailure, "wrong current password")
		return ErrInvalidCredentials
	}

	hash, err := s.hasher.Hash(in.NewPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	if err := s.users.UpdatePassword(ctx, user.ID, hash); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	user.HashedPassword = hash

	s.audit.LogPasswordChange(ctx, user.Email, audit.StatusSuccess, "")
	return nil
}

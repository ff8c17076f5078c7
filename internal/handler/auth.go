package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/aryan0dhankhar/portal/internal/domain"
	"github.com/aryan0dhankhar/portal/internal/featureflags"
	"github.com/aryan0dhankhar/portal/internal/httpx"
	"github.com/aryan0dhankhar/portal/internal/service"
)

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	authService *service.AuthService
	flags       featureflags.Flags
	logger      *slog.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(authService *service.AuthService, flags featureflags.Flags, logger *slog.Logger) *AuthHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &AuthHandler{
		authService: authService,
		flags:       flags,
		logger:      logger,
	}
}

// UserResponse is the public shape of a registered user
type UserResponse struct {
	ID       uint   `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// PartnerResponse is the partner block of /auth/me
type PartnerResponse struct {
	ID   uint   `json:"id"`
	Name string `json:"name"`
}

// OutletResponse is the outlet block of /auth/me
type OutletResponse struct {
	ID         uint    `json:"id"`
	Name       string  `json:"name"`
	ExternalID *string `json:"external_id"`
}

// MeResponse describes the current principal
type MeResponse struct {
	UserResponse
	Partner *PartnerResponse `json:"partner"`
	Outlet  *OutletResponse  `json:"outlet"`
}

// Register handles POST /auth/register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	if !h.flags.Enabled(featureflags.Registration) {
		httpx.Detail(w, http.StatusNotFound, msgFeatureDisabled)
		return
	}

	var req service.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		h.logger.Warn("failed to decode register request", slog.String("error", err.Error()))
		httpx.Detail(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	user, err := h.authService.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.logger, "register", err)
		return
	}

	httpx.JSON(w, http.StatusCreated, toUserResponse(user))
}

// Login handles POST /auth/login with form fields username and password,
// sent urlencoded or as multipart/form-data
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	// ParseMultipartForm falls back to ParseForm for urlencoded bodies
	if err := r.ParseMultipartForm(maxRequestBodyBytes); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		h.logger.Warn("failed to parse login form", slog.String("error", err.Error()))
		httpx.Detail(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	result, err := h.authService.Login(r.Context(), r.PostForm.Get("username"), r.PostForm.Get("password"))
	if err != nil {
		writeServiceError(w, r, h.logger, "login", err)
		return
	}

	httpx.JSON(w, http.StatusOK, result)
}

// Me handles GET /auth/me
func (h *AuthHandler) Me(w http.ResponseWriter, _ *http.Request, p *domain.Principal) {
	resp := MeResponse{UserResponse: toUserResponse(p.User)}
	if p.Partner != nil {
		resp.Partner = &PartnerResponse{ID: p.Partner.ID, Name: p.Partner.Name}
	}
	if p.Outlet != nil {
		resp.Outlet = &OutletResponse{ID: p.Outlet.ID, Name: p.Outlet.Name, ExternalID: p.Outlet.ExternalID}
	}
	httpx.JSON(w, http.StatusOK, resp)
}

// ChangePassword handles POST /auth/change-password
func (h *AuthHandler) ChangePassword(w http.ResponseWriter, r *http.Request, p *domain.Principal) {
	var req service.ChangePasswordInput
	if err := decodeJSON(r, &req); err != nil {
		httpx.Detail(w, http.StatusBadRequest, msgInvalidRequest)
		return
	}

	err := h.authService.ChangePassword(r.Context(), p.User, req)
	if errors.Is(err, service.ErrInvalidCredentials) {
		httpx.Detail(w, http.StatusBadRequest, msgWrongPassword)
		return
	}
	if err != nil {
		writeServiceError(w, r, h.logger, "change_password", err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func toUserResponse(u *domain.User) UserResponse {
	return UserResponse{ID: u.ID, Email: u.Email, FullName: u.FullName}
}

func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}

package transport

import (
	"net/http"
	"time"

	"stockledger/internal/domain"
	"stockledger/internal/middleware"
	"stockledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// LoginRequest represents the login request payload
type LoginRequest struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	User  UserProfile `json:"user"`
	Token string      `json:"token"`
}

// UpdateProfileRequest represents the profile settings payload
type UpdateProfileRequest struct {
	Username string `json:"username" validate:"required,max=50"`
	Name     string `json:"name" validate:"max=100"`
}

// ChangePasswordRequest represents the password settings payload
type ChangePasswordRequest struct {
	CurrentPassword string `json:"currentPassword" validate:"required"`
	NewPassword     string `json:"newPassword" validate:"required,min=6"`
}

// UserProfile represents user profile data
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Name     string `json:"name"`
}

func profileOf(user *domain.User) UserProfile {
	return UserProfile{
		ID:       user.ID.String(),
		Username: user.Username,
		Name:     user.Name,
	}
}

// UserHandler handles login and account settings
type UserHandler struct {
	userService service.UserService
	tokenTTL    time.Duration
	secure      bool
	logger      *zap.Logger
}

// NewUserHandler creates a new UserHandler. secureCookie marks the session
// cookie Secure and should be set outside development.
func NewUserHandler(userService service.UserService, tokenTTL time.Duration, secureCookie bool, logger *zap.Logger) *UserHandler {
	return &UserHandler{
		userService: userService,
		tokenTTL:    tokenTTL,
		secure:      secureCookie,
		logger:      logger,
	}
}

// RegisterRoutes registers the auth and settings routes. loginLimiter guards
// the public login endpoint.
func (h *UserHandler) RegisterRoutes(r chi.Router, authMiddleware, loginLimiter func(http.Handler) http.Handler) {
	r.With(loginLimiter).Post("/auth/login", h.Login)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Post("/auth/logout", h.Logout)
		r.Get("/auth/me", h.GetProfile)
		r.Get("/settings/profile", h.GetProfile)
		r.Put("/settings/profile", h.UpdateProfile)
		r.Put("/settings/password", h.ChangePassword)
	})
}

// Login handles user authentication
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	token, user, err := h.userService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		h.logger.Debug("Login failed", zap.String("username", req.Username), zap.Error(err))
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    token,
		Path:     "/",
		MaxAge:   int(h.tokenTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})

	h.logger.Info("User logged in", zap.String("user_id", user.ID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, LoginResponse{
		User:  profileOf(user),
		Token: token,
	})
}

// Logout clears the session cookie. Tokens are stateless and simply expire.
func (h *UserHandler) Logout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     middleware.TokenCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   h.secure,
		SameSite: http.SameSiteLaxMode,
	})
	w.WriteHeader(http.StatusNoContent)
}

// GetProfile handles getting user profile
func (h *UserHandler) GetProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	user, err := h.userService.GetUserByID(r.Context(), userID)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	middleware.RespondWithJSON(w, http.StatusOK, profileOf(user))
}

// UpdateProfile changes username and display name
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateProfileRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	user, err := h.userService.UpdateProfile(r.Context(), userID, req.Username, req.Name)
	if err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Profile updated", zap.String("user_id", userID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, profileOf(user))
}

// ChangePassword verifies the current password and stores the new one
func (h *UserHandler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r, h.logger)
	if !ok {
		return
	}

	var req ChangePasswordRequest
	if !decodeRequest(w, r, h.logger, &req) {
		return
	}

	if err := h.userService.ChangePassword(r.Context(), userID, req.CurrentPassword, req.NewPassword); err != nil {
		middleware.RespondWithServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("Password changed", zap.String("user_id", userID.String()))
	middleware.RespondWithJSON(w, http.StatusOK, map[string]string{"message": "password updated"})
}

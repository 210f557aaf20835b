package handlers

import (
	"net/http"

	"github.com/driftfs/driftfs/internal/logger"
	"github.com/driftfs/driftfs/pkg/api/auth"
	"github.com/driftfs/driftfs/pkg/api/middleware"
)

// AuthHandler handles admin authentication endpoints.
type AuthHandler struct {
	admin      auth.AdminCredentials
	jwtService *auth.JWTService
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(admin auth.AdminCredentials, jwtService *auth.JWTService) *AuthHandler {
	return &AuthHandler{admin: admin, jwtService: jwtService}
}

// LoginRequest is the request body for POST /api/auth/login.
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// RefreshRequest is the request body for POST /api/auth/refresh.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Login handles POST /api/auth/login.
// Authenticates the configured admin and returns a JWT token pair.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.Username == "" || req.Password == "" {
		BadRequest(w, "Username and password are required")
		return
	}

	if !h.admin.Verify(req.Username, req.Password) {
		logger.WarnCtx(r.Context(), "failed admin login attempt", "username", req.Username)
		Unauthorized(w, "Invalid username or password")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(req.Username)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}

	WriteJSONOK(w, tokenPair)
}

// Refresh handles POST /api/auth/refresh.
// Returns a new token pair using a valid refresh token.
func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req RefreshRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}

	if req.RefreshToken == "" {
		BadRequest(w, "Refresh token is required")
		return
	}

	claims, err := h.jwtService.ValidateRefreshToken(req.RefreshToken)
	if err != nil {
		Unauthorized(w, "Invalid or expired refresh token")
		return
	}

	tokenPair, err := h.jwtService.GenerateTokenPair(claims.Username)
	if err != nil {
		InternalServerError(w, "Failed to generate token")
		return
	}

	WriteJSONOK(w, tokenPair)
}

// Me handles GET /api/auth/me.
// Returns the authenticated caller's identity.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	identity := middleware.IdentityFromContext(r.Context())
	if identity == nil {
		Unauthorized(w, "Authentication required")
		return
	}

	WriteJSONOK(w, map[string]any{
		"principal":   identity.Principal.OwnerTag(),
		"admin":       identity.IsAdmin(),
		"permissions": identity.Permissions,
	})
}

package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/arjunyel/svix-webhooks/internal/config"
	"github.com/arjunyel/svix-webhooks/internal/logger"
	"github.com/arjunyel/svix-webhooks/internal/model"
	"github.com/arjunyel/svix-webhooks/internal/store"
)

// AuthHandler issues and revokes dashboard access tokens
type AuthHandler struct {
	store *store.Store
	cfg   *config.AuthConfig
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(st *store.Store, cfg *config.AuthConfig) *AuthHandler {
	return &AuthHandler{
		store: st,
		cfg:   cfg,
	}
}

// DashboardAccessResponse is the body returned by DashboardAccess
type DashboardAccessResponse struct {
	URL   string `json:"url"`
	Token string `json:"token"`
}

// DashboardAccess handles POST /api/v1/auth/dashboard-access/{appID}.
// It mints a short-lived token scoped to one application, embedding a
// jti so the token can be revoked by Logout before it expires.
func (h *AuthHandler) DashboardAccess(w http.ResponseWriter, r *http.Request) {
	appID := chi.URLParam(r, "appID")
	if appID == "" {
		respondError(w, http.StatusBadRequest, "application ID is required")
		return
	}

	app, err := h.store.GetApplication(r.Context(), appID)
	if err != nil {
		if errors.Is(err, model.ErrApplicationNotFound) {
			respondError(w, http.StatusNotFound, "application not found")
			return
		}
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to get application")
		respondError(w, http.StatusInternalServerError, "failed to get application")
		return
	}

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   app.ID,
		ID:        uuid.New().String(),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(h.cfg.DashboardTokenTTL)),
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.cfg.JWTSecret))
	if err != nil {
		logger.Error().Err(err).Str("app_id", appID).Msg("failed to sign dashboard token")
		respondError(w, http.StatusInternalServerError, "failed to create dashboard access")
		return
	}

	logger.Info().
		Str("app_id", app.ID).
		Str("jti", claims.ID).
		Msg("dashboard access issued")

	respondJSON(w, http.StatusOK, DashboardAccessResponse{
		URL:   fmt.Sprintf("%s/%s#key=%s", h.cfg.PortalURL, app.ID, token),
		Token: token,
	})
}

// Logout handles POST /api/v1/auth/logout. The bearer token's jti is
// revoked for the remainder of the token's lifetime; expired or
// malformed tokens are a no-op success, matching the idempotent
// semantics callers expect from logout.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	authHeader := r.Header.Get("Authorization")
	tokenString := strings.TrimPrefix(authHeader, "Bearer ")
	if authHeader == "" || tokenString == authHeader {
		respondError(w, http.StatusUnauthorized, "bearer token required")
		return
	}

	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return []byte(h.cfg.JWTSecret), nil
	})
	if err != nil || !token.Valid || claims.ID == "" {
		// Nothing to revoke
		w.WriteHeader(http.StatusNoContent)
		return
	}

	ttl := time.Duration(0)
	if claims.ExpiresAt != nil {
		ttl = time.Until(claims.ExpiresAt.Time)
	}

	if err := h.store.RevokeToken(r.Context(), claims.ID, ttl); err != nil {
		logger.Error().Err(err).Str("jti", claims.ID).Msg("failed to revoke token")
		respondError(w, http.StatusInternalServerError, "failed to log out")
		return
	}

	logger.Info().Str("jti", claims.ID).Msg("dashboard token revoked")
	w.WriteHeader(http.StatusNoContent)
}

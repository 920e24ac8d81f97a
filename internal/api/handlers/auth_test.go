package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arjunyel/svix-webhooks/internal/config"
)

func newAuthHandler() *AuthHandler {
	return NewAuthHandler(nil, &config.AuthConfig{
		JWTSecret:         "test-secret",
		PortalURL:         "http://localhost:8071/portal",
		DashboardTokenTTL: time.Hour,
	})
}

func TestAuthHandler_DashboardAccess_MissingAppID(t *testing.T) {
	h := newAuthHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/dashboard-access/", nil)
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("appID", "")
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	w := httptest.NewRecorder()

	h.DashboardAccess(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestAuthHandler_Logout_MissingBearer(t *testing.T) {
	h := newAuthHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuthHandler_Logout_MalformedTokenIsNoop(t *testing.T) {
	h := newAuthHandler()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w := httptest.NewRecorder()

	h.Logout(w, req)

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAuthHandler_Logout_ExpiredTokenIsNoop(t *testing.T) {
	h := newAuthHandler()

	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   "app_1",
		ID:        "jti-1",
		IssuedAt:  jwt.NewNumericDate(now.Add(-2 * time.Hour)),
		ExpiresAt: jwt.NewNumericDate(now.Add(-time.Hour)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/logout", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	h.Logout(w, req)

	// Expired tokens have nothing to revoke
	assert.Equal(t, http.StatusNoContent, w.Code)
}

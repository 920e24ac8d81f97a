package middleware

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
)

type fakeChecker struct {
	revoked map[string]bool
}

func (f *fakeChecker) IsTokenRevoked(ctx context.Context, jti string) (bool, error) {
	return f.revoked[jti], nil
}

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func mintToken(t *testing.T, secret, appID, jti string, ttl time.Duration) string {
	t.Helper()
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   appID,
		ID:        jti,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestAuth_Disabled(t *testing.T) {
	cfg := &AuthConfig{
		Enabled: false,
	}

	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_ValidAPIKey(t *testing.T) {
	cfg := &AuthConfig{
		Enabled: true,
		APIKeys: map[string]bool{
			"valid-api-key": true,
		},
	}

	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "valid-api-key")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_APIKeyAsBearer(t *testing.T) {
	cfg := &AuthConfig{
		Enabled: true,
		APIKeys: map[string]bool{
			"valid-api-key": true,
		},
	}

	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer valid-api-key")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_InvalidAPIKey(t *testing.T) {
	cfg := &AuthConfig{
		Enabled: true,
		APIKeys: map[string]bool{
			"valid-api-key": true,
		},
	}

	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-API-Key", "invalid-api-key")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_MissingAuthorization(t *testing.T) {
	cfg := &AuthConfig{
		Enabled: true,
	}

	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_InvalidAuthorizationFormat(t *testing.T) {
	cfg := &AuthConfig{
		Enabled:   true,
		JWTSecret: "secret",
	}

	handler := Auth(cfg, nil)(okHandler())

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "NotBearer token")
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ValidDashboardToken(t *testing.T) {
	secret := "test-secret-key"
	cfg := &AuthConfig{
		Enabled:   true,
		JWTSecret: secret,
	}

	var gotAppID string
	handler := Auth(cfg, &fakeChecker{})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := GetClaims(r.Context())
		require.NotNil(t, claims)
		gotAppID = claims.AppID()
		w.WriteHeader(http.StatusOK)
	}))

	token := mintToken(t, secret, "app_123", "jti-1", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "app_123", gotAppID)
}

func TestAuth_RevokedToken(t *testing.T) {
	secret := "test-secret-key"
	cfg := &AuthConfig{
		Enabled:   true,
		JWTSecret: secret,
	}
	checker := &fakeChecker{revoked: map[string]bool{"jti-revoked": true}}

	handler := Auth(cfg, checker)(okHandler())

	token := mintToken(t, secret, "app_123", "jti-revoked", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_ExpiredToken(t *testing.T) {
	secret := "test-secret-key"
	cfg := &AuthConfig{
		Enabled:   true,
		JWTSecret: secret,
	}

	handler := Auth(cfg, nil)(okHandler())

	token := mintToken(t, secret, "app_123", "jti-1", -time.Minute)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestAuth_WrongSigningKey(t *testing.T) {
	cfg := &AuthConfig{
		Enabled:   true,
		JWTSecret: "the-real-secret",
	}

	handler := Auth(cfg, nil)(okHandler())

	token := mintToken(t, "a-different-secret", "app_123", "jti-1", time.Hour)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGetClaims_MissingFromContext(t *testing.T) {
	assert.Nil(t, GetClaims(context.Background()))
}

func scopedRouter(cfg *AuthConfig) *chi.Mux {
	router := chi.NewRouter()
	router.Route("/app/{appID}", func(r chi.Router) {
		r.Use(Auth(cfg, &fakeChecker{}))
		r.Use(RequireApp(func(r *http.Request) string {
			return chi.URLParam(r, "appID")
		}))
		r.Get("/", okHandler().ServeHTTP)
		r.Delete("/", okHandler().ServeHTTP)
	})
	return router
}

func TestRequireApp_ScopesDashboardToken(t *testing.T) {
	secret := "test-secret-key"
	router := scopedRouter(&AuthConfig{Enabled: true, JWTSecret: secret})

	token := mintToken(t, secret, "app_A", "jti-1", time.Hour)

	// A token minted for app_A must not reach another application
	req := httptest.NewRequest(http.MethodDelete, "/app/app_B", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)

	// Its own application stays reachable
	req = httptest.NewRequest(http.MethodGet, "/app/app_A", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequireApp_APIKeyUnrestricted(t *testing.T) {
	cfg := &AuthConfig{
		Enabled:   true,
		JWTSecret: "test-secret-key",
		APIKeys:   map[string]bool{"service-key": true},
	}
	router := scopedRouter(cfg)

	// API keys carry no claims and are not app-scoped
	req := httptest.NewRequest(http.MethodDelete, "/app/app_B", nil)
	req.Header.Set("X-API-Key", "service-key")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

package auth

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gopinions/auth-service/config"
	"github.com/gopinions/auth-service/internal/api"
)

func signTestToken(t *testing.T, cfg config.JWTConfig, userID uuid.UUID, role string, ttl time.Duration) string {
	t.Helper()
	now := time.Now()
	claims := api.Claims{
		UserID: userID.String(),
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			Issuer:    cfg.Issuer,
			Audience:  jwt.ClaimStrings{cfg.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(cfg.SecretKey))
	require.NoError(t, err)
	return token
}

func TestAuthenticate_ValidToken(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := uuid.New()
	token := signTestToken(t, testJWTConfig, userID, "USER_ROLE", time.Hour)

	var gotID uuid.UUID
	var gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := GetUserIDFromContext(r.Context())
		require.NoError(t, err)
		gotID = id
		gotRole, _ = GetUserRoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/profile", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()

	Authenticate(logger, testJWTConfig)(next).ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, userID, gotID)
	assert.Equal(t, "USER_ROLE", gotRole)
}

func TestAuthenticate_Rejections(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := uuid.New()

	otherIssuer := testJWTConfig
	otherIssuer.Issuer = "someone-else"

	otherSecret := testJWTConfig
	otherSecret.SecretKey = "a-different-secret-entirely"

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"malformed header", "Token abc"},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired token", "Bearer " + signTestToken(t, testJWTConfig, userID, "USER_ROLE", -time.Minute)},
		{"wrong issuer", "Bearer " + signTestToken(t, otherIssuer, userID, "USER_ROLE", time.Hour)},
		{"wrong signature", "Bearer " + signTestToken(t, otherSecret, userID, "USER_ROLE", time.Hour)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				t.Fatal("handler must not run for a rejected token")
			})

			req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/profile", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			Authenticate(logger, testJWTConfig)(next).ServeHTTP(rec, req)

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	userID := uuid.New()
	token := signTestToken(t, testJWTConfig, userID, "USER_ROLE", time.Hour)

	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	chain := Authenticate(logger, testJWTConfig)(RequireRole(logger, "ADMIN_ROLE")(next))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)

	adminToken := signTestToken(t, testJWTConfig, userID, "ADMIN_ROLE", time.Hour)
	req = httptest.NewRequest(http.MethodGet, "/api/v1/admin", nil)
	req.Header.Set("Authorization", "Bearer "+adminToken)
	rec = httptest.NewRecorder()
	chain.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/service/auth"
	"github.com/stretchr/testify/assert"
)

type stubJWTService struct {
	claims *auth.Claims
	err    error
}

func (s *stubJWTService) GenerateToken(context.Context, uuid.UUID) (string, error) {
	return "token", nil
}

func (s *stubJWTService) ValidateToken(context.Context, string) (*auth.Claims, error) {
	return s.claims, s.err
}

func TestAuthMiddleware_Authenticate(t *testing.T) {
	t.Parallel()

	userID := uuid.New()
	jwtSvc := auth.RequireTestJWTService(t)

	tests := []struct {
		name           string
		authHeader     string
		svc            auth.JWTService
		expectedStatus int
		expectedUserID uuid.UUID
	}{
		{
			name:           "valid token",
			authHeader:     auth.GenerateAuthHeaderForTestingT(t, jwtSvc, userID),
			svc:            jwtSvc,
			expectedStatus: http.StatusOK,
			expectedUserID: userID,
		},
		{
			name:           "lower case scheme",
			authHeader:     "bearer valid",
			svc:            &stubJWTService{claims: &auth.Claims{UserID: userID}},
			expectedStatus: http.StatusOK,
			expectedUserID: userID,
		},
		{
			name:           "missing header",
			svc:            jwtSvc,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "wrong scheme",
			authHeader:     "Basic abc",
			svc:            jwtSvc,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "garbage token",
			authHeader:     "Bearer not-a-jwt",
			svc:            jwtSvc,
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "expired token",
			authHeader:     "Bearer x",
			svc:            &stubJWTService{err: auth.ErrExpiredToken},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "token without user",
			authHeader:     "Bearer x",
			svc:            &stubJWTService{claims: &auth.Claims{}},
			expectedStatus: http.StatusUnauthorized,
		},
		{
			name:           "unexpected validation failure",
			authHeader:     "Bearer x",
			svc:            &stubJWTService{err: errors.New("key store offline")},
			expectedStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured uuid.UUID
			next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				captured, _ = GetUserID(r)
				w.WriteHeader(http.StatusOK)
			})

			req := httptest.NewRequest(http.MethodGet, "/protected", nil)
			if tt.authHeader != "" {
				req.Header.Set("Authorization", tt.authHeader)
			}
			rec := httptest.NewRecorder()

			NewAuthMiddleware(tt.svc).Authenticate(next).ServeHTTP(rec, req)

			assert.Equal(t, tt.expectedStatus, rec.Code)
			if tt.expectedStatus == http.StatusOK {
				assert.Equal(t, tt.expectedUserID, captured)
			} else {
				assert.Contains(t, rec.Body.String(), `"error"`)
			}
		})
	}
}

func TestGetUserIDWithoutAuthentication(t *testing.T) {
	id, ok := GetUserID(httptest.NewRequest(http.MethodGet, "/", nil))
	assert.False(t, ok)
	assert.Equal(t, uuid.Nil, id)
}

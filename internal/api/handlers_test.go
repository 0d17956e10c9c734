package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/phrazzld/taskforperks/internal/api/middleware"
	"github.com/phrazzld/taskforperks/internal/config"
	"github.com/phrazzld/taskforperks/internal/mocks"
	"github.com/phrazzld/taskforperks/internal/platform/clock"
	"github.com/phrazzld/taskforperks/internal/realtime"
	"github.com/phrazzld/taskforperks/internal/service"
	"github.com/phrazzld/taskforperks/internal/service/auth"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 4, 1, 12, 0, 0, 0, time.UTC)

const testSigningSecret = "realtime-signing-secret-for-tests-0123"

// testAPI is a router wired to real services over the in-memory store.
type testAPI struct {
	router  http.Handler
	claims  *mocks.MockClaimStore
	hub     *realtime.Hub
	clock   *clock.Fake
	jwt     auth.JWTService
	gateway *realtime.Gateway
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestAPI(t *testing.T, opts ...RealtimeOption) *testAPI {
	t.Helper()

	log := discardLogger()
	a := &testAPI{
		claims: mocks.NewMockClaimStore(),
		hub:    realtime.NewHub(8, log),
		clock:  clock.NewFake(testNow),
		jwt:    auth.RequireTestJWTService(t),
	}
	t.Cleanup(a.hub.Close)

	claimSvc, err := service.NewClaimService(a.claims, a.hub, a.clock, log)
	require.NoError(t, err)
	summarySvc, err := service.NewSummaryService(a.claims, log)
	require.NoError(t, err)
	a.gateway, err = realtime.NewGateway(config.RealtimeConfig{
		SigningSecret: testSigningSecret,
		TokenLifetime: time.Minute,
	}, a.claims, clock.Real())
	require.NoError(t, err)

	claimHandler := NewClaimHandler(claimSvc, log)
	summaryHandler := NewSummaryHandler(summarySvc, log)
	realtimeHandler := NewRealtimeHandler(a.gateway, a.hub, log, opts...)
	authn := middleware.NewAuthMiddleware(a.jwt)

	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware(log))
	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks/{id}/summary", summaryHandler.GetSummary)
		r.Get("/realtime/stream", realtimeHandler.Stream)
		r.Group(func(r chi.Router) {
			r.Use(authn.Authenticate)
			r.Post("/tasks/{id}/claims", claimHandler.CreateClaim)
			r.Get("/claims/{id}", claimHandler.GetClaim)
			r.Post("/claims/{id}/accept", claimHandler.AcceptClaim)
			r.Post("/realtime/auth", realtimeHandler.Authorize)
		})
	})
	a.router = r
	return a
}

func (a *testAPI) do(t *testing.T, method, path, body string, userID uuid.UUID) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader).WithContext(context.Background())
	if userID != uuid.Nil {
		req.Header.Set("Authorization", auth.GenerateAuthHeaderForTestingT(t, a.jwt, userID))
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

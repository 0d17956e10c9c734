package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/taskforperks/internal/api"
	apiMiddleware "github.com/phrazzld/taskforperks/internal/api/middleware"
)

// setupRouter registers every route on a chi router.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware(app.logger))

	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)
	summaryHandler := api.NewSummaryHandler(app.summaryService, app.logger)
	claimHandler := api.NewClaimHandler(app.claimService, app.logger)
	realtimeHandler := api.NewRealtimeHandler(app.gateway, app.hub, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Get("/tasks/{id}/summary", summaryHandler.GetSummary)

		// The stream authenticates with the subscription token in its query.
		r.Get("/realtime/stream", realtimeHandler.Stream)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)

			r.Post("/tasks/{id}/claims", claimHandler.CreateClaim)
			r.Get("/claims/{id}", claimHandler.GetClaim)
			r.Post("/claims/{id}/accept", claimHandler.AcceptClaim)

			r.Post("/realtime/auth", realtimeHandler.Authorize)
		})
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})
	r.Handle("/metrics", app.metrics.Handler())

	return r
}

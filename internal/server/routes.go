package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ternarybob/dartseries/internal/handlers"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	r.Use(s.recoveryMiddleware)
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(s.corsMiddleware)

	r.Get("/health", s.app.StatusHandler.HealthHandler)
	r.Handle("/metrics", promhttp.HandlerFor(s.app.Registry, promhttp.HandlerOpts{}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/series", s.app.SeriesHandler.GetSeriesHandler)
		r.Post("/refresh", s.app.SeriesHandler.RefreshHandler)
		r.Get("/resolve", s.app.SeriesHandler.ResolveHandler)
		r.Post("/directory/refresh", s.app.SeriesHandler.RefreshDirectoryHandler)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		handlers.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return r
}

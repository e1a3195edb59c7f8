package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// healthCheckTimeout bounds each subsystem probe on the health endpoint.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			// Door endpoints
			r.Route("/door", func(r chi.Router) {
				r.Get("/", s.handleGetDoor)
				r.Put("/target", s.handleSetDoorTarget)
			})

			// Diagnostics
			r.Get("/throttle", s.handleGetThrottle)

			// Cloud credential management
			r.Route("/credentials", func(r chi.Router) {
				r.Get("/", s.handleGetCredentials)
				r.Put("/", s.handleSetCredentials)
				r.Delete("/", s.handleDeleteCredentials)
			})
		})

		// WebSocket (auth via token query parameter, validated in handler)
		r.Get("/ws", s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status plus subsystem probes.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checks := make(map[string]string, len(s.subsystems))
	status := "ok"

	for name, checker := range s.subsystems {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		if err := checker.HealthCheck(ctx); err != nil {
			checks[name] = err.Error()
			status = "degraded"
		} else {
			checks[name] = "ok"
		}
		cancel()
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     status,
		"version":    s.version,
		"configured": s.dispatcher.Configured(),
		"subsystems": checks,
	})
}

package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-notify/internal/auth"
	"github.com/nerrad567/gray-logic-notify/internal/metrics"
)

// healthCheckTimeout bounds the dependency checks behind /health.
const healthCheckTimeout = 2 * time.Second

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(metrics.HTTPMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// Prometheus scrape endpoint
	r.Handle("/metrics", metrics.Handler())

	// Management API used by HTTP delivery on other instances
	r.Post("/@connections/{id}", s.handlePostToConnection)

	// WebSocket (auth via Authorization header or token query, checked on $connect)
	r.Get(s.wsPath(), s.handleWebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (rate limited, no auth required)
		r.Group(func(r chi.Router) {
			r.Use(s.rateLimitMiddleware)
			r.Put("/auth/register", s.handleRegister)
			r.Post("/auth/login", s.handleLogin)
			r.Post("/auth/authorize", s.handleAuthorize)
		})

		// Entity endpoints: callers may only touch their own record
		r.Route("/users", func(r chi.Router) {
			r.Use(s.requireScopes(auth.ScopeSelf))
			r.Put("/", s.handlePutUser)
			r.Get("/{id}", s.handleGetUser)
			r.Post("/{id}/action", s.handleUserAction)
		})
	})

	return r
}

func (s *Server) wsPath() string {
	if s.wsCfg.Path == "" {
		return "/ws"
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := http.StatusOK
	resp := map[string]any{
		"status":      "ok",
		"version":     s.version,
		"connections": s.hub.ClientCount(),
	}

	if s.db != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
		defer cancel()
		if err := s.db.HealthCheck(ctx); err != nil {
			s.logger.Warn("database health check failed", "error", err)
			status = http.StatusServiceUnavailable
			resp["status"] = "degraded"
			resp["database"] = "unavailable"
		}
	}

	writeJSON(w, status, resp)
}

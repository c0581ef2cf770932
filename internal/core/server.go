// Package core provides the API chassis for the importer service.
// It creates a chi router and enforces cross-cutting concerns -- security,
// logging, and error handling -- before requests reach domain handlers.
package core

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"shopimport/internal/config"
)

// Server encapsulates the router and cross-cutting dependencies for the API,
// allowing injection during testing and distinct configuration per environment.
type Server struct {
	Config    *config.Config
	Logger    *slog.Logger
	Validator *Validator

	// PublicRouteRegistrars register routes that bypass tenant auth
	// (webhooks, checkout return, health).
	PublicRouteRegistrars []func(chi.Router)
	// V1RouteRegistrars register authenticated /v1 routes.
	V1RouteRegistrars []func(chi.Router)

	// Closers are shut down in order during Shutdown (DB pools etc.).
	Closers []func()

	router *chi.Mux
}

// NewServer initializes dependencies and prepares the server for route
// mounting. It performs a fail-fast check on critical configuration.
func NewServer(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must not be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger must not be nil")
	}

	return &Server{
		Config:    cfg,
		Logger:    logger,
		Validator: NewValidator(logger),
		router:    chi.NewRouter(),
	}, nil
}

// MountRoutes assembles the middleware chain and mounts all registered routes.
// Public routes (webhooks, billing return) sit outside tenant auth; /v1 routes
// require a valid session token.
func (s *Server) MountRoutes() {
	r := s.router

	r.Use(s.Recoverer)
	r.Use(RequestID)
	r.Use(SecurityHeaders)
	r.Use(RequestLogger(s.Logger, []string{"Authorization", "X-Shopimport-Hmac-Sha256"}))

	r.Get("/healthz", s.handleHealth)

	for _, register := range s.PublicRouteRegistrars {
		register(r)
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(TenantAuth(s.Config.Server.SessionSecret.Unmask()))
		for _, register := range s.V1RouteRegistrars {
			register(r)
		}
	})
}

// handleHealth reports process liveness and build metadata.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	JSON(w, r, http.StatusOK, APIResponse{Data: map[string]string{
		"status":  "ok",
		"version": s.Config.Build.Version,
	}})
}

// Handler returns the http.Handler interface for the router.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux for route registration in tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Shutdown performs a graceful termination of server resources.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.Info("server shutdown initiated")

	for _, closeFn := range s.Closers {
		closeFn()
	}

	s.Logger.Info("server shutdown complete")
	return nil
}

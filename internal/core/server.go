// Package core provides the API chassis for the collegeplan service.
// It creates a chi router compatible with both standard HTTP (for local dev)
// and AWS Lambda (via the API Gateway adapter in cmd/api). It enforces
// cross-cutting concerns such as logging, observability and session
// resolution before requests reach domain-specific handlers.
package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"collegeplan/internal/config"
)

// Server encapsulates all dependencies for the API, allowing for easy
// injection during testing and distinct configuration for different
// environments.
type Server struct {
	Config        *config.Config
	Logger        *slog.Logger
	Validator     *Validator
	Metrics       MetricsCollector
	Authenticator Authenticator      // Verifies access tokens; nil disables sessions.
	Subscriptions SubscriptionLoader // Resolves the actor's plan once per request.
	Access        AccessPolicy       // Decides plan-gated routes; nil refuses them.
	HealthChecks  []HealthChecker

	// APIRoutes are mounted under /api; PageRoutes at the root behind a
	// browser session.
	APIRoutes  []RouteRegistrar
	PageRoutes []RouteRegistrar

	router  *chi.Mux
	closers []namedCloser
}

type namedCloser struct {
	name string
	fn   func() error
}

// NewServer initializes the server and prepares it for route mounting.
// The caller mounts routes (via MountRoutes) after injecting dependencies.
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
		Metrics:   NoopMetrics{},
		router:    chi.NewRouter(),
	}, nil
}

// Handler returns the http.Handler interface for the router.
// Used by http.Server (local) and the Lambda adapter.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Router returns the underlying chi.Mux.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// OnShutdown registers fn to run during Shutdown. Closers run in reverse
// registration order, so resources are released before the ones they
// depend on.
func (s *Server) OnShutdown(name string, fn func() error) {
	s.closers = append(s.closers, namedCloser{name: name, fn: fn})
}

// Shutdown releases every registered resource. All closers run even when one
// fails; the returned error joins their failures.
func (s *Server) Shutdown(ctx context.Context) error {
	s.Logger.InfoContext(ctx, "server shutdown initiated", "resources", len(s.closers))

	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		c := s.closers[i]
		if err := c.fn(); err != nil {
			s.Logger.ErrorContext(ctx, "error closing resource", "resource", c.name, "error", err)
			errs = append(errs, fmt.Errorf("closing %s: %w", c.name, err))
		}
	}
	s.closers = nil

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	s.Logger.InfoContext(ctx, "server shutdown complete")
	return nil
}

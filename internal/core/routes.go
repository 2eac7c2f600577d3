package core

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
)

// defaultRequestTimeout applies when the config leaves RequestTimeout unset.
const defaultRequestTimeout = 29 * time.Second

// defaultRedactedHeaders lists header names whose values are masked in request logs.
var defaultRedactedHeaders = []string{
	"Authorization",
	"Cookie",
	"Stripe-Signature",
}

// MountRoutes defines the top-level routing hierarchy.
//
//	/health          public
//	/metrics         public, when the metrics backend exposes a handler
//	/api/...         optional session; handlers enforce it per route
//	/...             page routes; a session is required
func (s *Server) MountRoutes() {
	s.registerGlobalMiddleware()

	s.router.Get("/health", s.HandleHealth)
	if exp, ok := s.Metrics.(MetricsExporter); ok {
		s.router.Method(http.MethodGet, "/metrics", exp.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		r.Use(s.Authenticate)
		r.Use(s.LoadSubscription)
		for _, registrar := range s.APIRoutes {
			registrar(r)
		}
	})

	if len(s.PageRoutes) > 0 {
		s.router.Group(func(r chi.Router) {
			r.Use(s.Authenticate)
			r.Use(s.RequirePageSession)
			r.Use(s.LoadSubscription)
			for _, registrar := range s.PageRoutes {
				registrar(r)
			}
		})
	}
}

// registerGlobalMiddleware applies middleware in strict order.
//
//  1. Recoverer       - outermost, so every panic is caught.
//  2. ContextTimeout  - soft deadline before the platform's hard timeout.
//  3. RequestID       - correlation id for logs and error envelopes.
//  4. SecurityHeaders
//  5. RequestLogger   - reads the user id set later by Authenticate.
//  6. CORS
//  7. Metrics         - records the matched route pattern.
//  8. Compression     - gzip when enabled and accepted by the client.
func (s *Server) registerGlobalMiddleware() {
	s.router.Use(s.Recoverer)
	s.router.Use(ContextTimeoutMiddleware(s.requestTimeout()))
	s.router.Use(RequestIDMiddleware)
	s.router.Use(s.SecurityHeadersMiddleware)
	s.router.Use(RequestLogger(s.Logger, defaultRedactedHeaders))
	s.router.Use(NewCORSMiddleware(s.corsAllowedOrigins()))
	s.router.Use(s.MetricsMiddleware)
	if s.Config.Server.EnableCompression {
		s.router.Use(CompressionMiddleware)
	}
}

func (s *Server) requestTimeout() time.Duration {
	if s.Config.Server.RequestTimeout > 0 {
		return s.Config.Server.RequestTimeout
	}
	return defaultRequestTimeout
}

func (s *Server) corsAllowedOrigins() []string {
	if len(s.Config.Security.CorsAllowedOrigins) > 0 {
		return s.Config.Security.CorsAllowedOrigins
	}
	return []string{"*"}
}

// Package main is the entry point for the collegeplan API server.
//
// It loads the configuration, builds every shared client once (database
// pool, Stripe and LLM clients, metrics sink), injects them into the
// handlers, and serves the router either as a plain HTTP server or, inside
// AWS Lambda, behind an API Gateway HTTP API.
//
// Graceful shutdown is handled via OS signal interception (SIGINT, SIGTERM).
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/awslabs/aws-lambda-go-api-proxy/httpadapter"

	"collegeplan/internal/api/handlers"
	"collegeplan/internal/auth"
	"collegeplan/internal/billing"
	"collegeplan/internal/config"
	"collegeplan/internal/core"
	"collegeplan/internal/counselor"
	"collegeplan/internal/db"
	"collegeplan/internal/external"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// database is what the API needs from the connection pool.
type database interface {
	db.DBTX
	core.Pinger
}

// dependencies are the process-wide handles shared by all requests.
type dependencies struct {
	DB      database
	Clients *external.ClientRegistry
	Metrics core.MetricsCollector
}

// run encapsulates the startup lifecycle so that main() can cleanly exit on error.
func run() error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	logger := newLogger(cfg.LogLevel)
	logger.Info("collegeplan API starting",
		"environment", cfg.Environment,
		"version", cfg.Build.Version,
		"commit", cfg.Build.Commit,
		"port", cfg.Server.Port,
	)

	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}

	clients, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating external clients: %w", err)
	}

	metrics, closeMetrics, err := core.NewMetricsCollector(ctx, cfg, logger)
	if err != nil {
		pool.Close()
		return fmt.Errorf("creating metrics collector: %w", err)
	}

	srv, err := buildServer(cfg, logger, dependencies{DB: pool, Clients: clients, Metrics: metrics})
	if err != nil {
		pool.Close()
		_ = closeMetrics()
		return err
	}
	// Closers run in reverse: metrics flush before the pool closes.
	srv.OnShutdown("database", func() error {
		pool.Close()
		return nil
	})
	srv.OnShutdown("metrics", closeMetrics)

	if isLambdaEnvironment() {
		return runLambda(srv, logger)
	}
	return runHTTPServer(srv, cfg, logger)
}

// buildServer wires repositories, services and handlers around deps and
// mounts the routes.
func buildServer(cfg *config.Config, logger *slog.Logger, deps dependencies) (*core.Server, error) {
	srv, err := core.NewServer(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("creating server: %w", err)
	}

	colleges := db.NewCollegeRepo(deps.DB, logger)
	customers := db.NewCustomerRepo(deps.DB)
	profiles := db.NewProfileRepo(deps.DB)
	subscriptions := db.NewSubscriptionRepo(deps.DB, logger)
	usage := db.NewUsageRepo(deps.DB)

	plans := billing.NewStaticPlanRegistry()
	meter := billing.NewMeter(usage, plans, logger)
	resolver := billing.NewResolver(billing.ResolverDeps{
		Customers:     customers,
		Profiles:      profiles,
		Subscriptions: subscriptions,
		Billing:       deps.Clients.Billing,
		Plans:         plans,
		Logger:        logger,
	})
	synchronizer := billing.NewSynchronizer(customers, subscriptions, deps.Clients.Billing, logger)
	essays := counselor.New(deps.Clients.LLM, cfg.LLM, logger)

	if deps.Metrics != nil {
		srv.Metrics = deps.Metrics
	}
	srv.Authenticator = auth.NewTokenVerifier(cfg.Auth)
	srv.Subscriptions = resolver
	srv.Access = resolver
	srv.HealthChecks = append(srv.HealthChecks, core.DatabaseCheck{DB: deps.DB})

	collegeHandler := handlers.NewCollegeHandler(colleges, srv.Validator, logger)
	usageHandler := handlers.NewUsageHandler(meter, srv.Metrics, logger)
	counselorHandler := handlers.NewCounselorHandler(essays, meter, srv.Validator, srv.Metrics, logger)
	billingHandler := handlers.NewBillingHandler(resolver, srv.Validator, srv.RequireSession, srv.RequirePlan, logger)
	planHandler := handlers.NewPlanHandler(plans)
	webhookHandler := handlers.NewStripeWebhookHandler(
		deps.Clients.StripeVerifier,
		synchronizer,
		cfg.Billing.StripeWebhookSecret.Unmask(),
		srv.Metrics,
		logger,
	)
	subscribeHandler := handlers.NewSubscribeHandler(resolver, deps.Clients.Billing, cfg.Server.PublicBaseURL, logger)

	srv.APIRoutes = append(srv.APIRoutes,
		collegeHandler.RegisterRoutes,
		usageHandler.RegisterRoutes,
		counselorHandler.RegisterRoutes,
		billingHandler.RegisterRoutes,
		planHandler.RegisterRoutes,
		webhookHandler.RegisterRoutes,
	)
	srv.PageRoutes = append(srv.PageRoutes, subscribeHandler.RegisterRoutes)

	srv.MountRoutes()
	return srv, nil
}

// isLambdaEnvironment returns true if the process is running inside AWS Lambda.
func isLambdaEnvironment() bool {
	_, hasRuntimeAPI := os.LookupEnv("AWS_LAMBDA_RUNTIME_API")
	_, hasServerPort := os.LookupEnv("_LAMBDA_SERVER_PORT")
	return hasRuntimeAPI || hasServerPort
}

// newLambdaHandler bridges API Gateway HTTP API (payload v2) events to h.
func newLambdaHandler(h http.Handler) *httpadapter.HandlerAdapterV2 {
	return httpadapter.NewV2(h)
}

// runLambda serves API Gateway events until the runtime stops the process.
func runLambda(srv *core.Server, logger *slog.Logger) error {
	logger.Info("starting in lambda mode")
	lambda.StartWithOptions(newLambdaHandler(srv.Handler()).ProxyWithContext,
		lambda.WithEnableSIGTERM(func() {
			ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
			defer cancel()
			if err := srv.Shutdown(ctx); err != nil {
				logger.Error("server resource shutdown error", "error", err)
			}
		}),
	)
	return nil
}

// runHTTPServer starts the server in standard HTTP mode with graceful shutdown.
func runHTTPServer(srv *core.Server, cfg *config.Config, logger *slog.Logger) error {
	addr := ":" + cfg.Server.Port

	httpServer := &http.Server{
		Addr:              addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      cfg.Server.RequestTimeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	serverErr := make(chan error, 1)

	go func() {
		logger.Info("HTTP server listening", "addr", addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
		close(serverErr)
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-shutdown:
		logger.Info("shutdown signal received", "signal", sig.String())
	case err := <-serverErr:
		if err != nil {
			_ = srv.Shutdown(context.Background())
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("initiating graceful shutdown")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown error", "error", err)
	}

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server resource shutdown error", "error", err)
		return fmt.Errorf("server shutdown: %w", err)
	}

	logger.Info("server stopped cleanly")
	return nil
}

// newLogger creates a structured slog.Logger configured for the given log level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch level {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}

	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level:     lvl,
		AddSource: false,
	})
	return slog.New(handler)
}

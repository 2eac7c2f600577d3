// Package main implements the preflight CLI, which verifies deployment
// credentials and connectivity before the API is released.
//
// Usage:
//
//	go run ./cmd/ops/preflight
//	go run ./cmd/ops/preflight --offline
//
// Configuration is read from the same environment variables (and optional
// .env file) as the API. Unlike the API, preflight reports every problem it
// finds instead of stopping at the first.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"

	"collegeplan/internal/config"
)

func main() {
	offline := flag.Bool("offline", false, "validate formats only; skip database and API calls")
	envFile := flag.String("env-file", ".env", "dotenv file to load before reading the environment")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: preflight [--offline] [--env-file=.env]\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	_ = godotenv.Load(*envFile)

	var cfg config.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: reading environment: %v\n", err)
		os.Exit(1)
	}

	results := runChecks(ctx, NewChecker(*offline), &cfg)
	if report(os.Stdout, results) > 0 {
		os.Exit(1)
	}
}

// runChecks runs every check that applies to cfg.Environment.
func runChecks(ctx context.Context, c *Checker, cfg *config.Config) []CheckResult {
	local := cfg.IsLocal()
	results := []CheckResult{
		c.CheckDatabaseURL(ctx, cfg.Database.URL.Unmask()),
		c.CheckPublicBaseURL(ctx, cfg.Server.PublicBaseURL, local),
	}

	// Local mode wires stub upstreams, so missing upstream secrets are fine.
	upstream := []struct {
		set   bool
		check func() CheckResult
		name  string
	}{
		{cfg.Billing.StripeSecretKey.IsSet(), func() CheckResult {
			return c.CheckStripeKey(ctx, cfg.Billing.StripeSecretKey.Unmask(), cfg.Billing.StripeBaseURL)
		}, "STRIPE_SECRET_KEY"},
		{cfg.Billing.StripeWebhookSecret.IsSet(), func() CheckResult {
			return c.CheckWebhookSecret(ctx, cfg.Billing.StripeWebhookSecret.Unmask())
		}, "STRIPE_WEBHOOK_SECRET"},
		{cfg.Auth.JWTSecret.IsSet(), func() CheckResult {
			return c.CheckJWTSecret(ctx, cfg.Auth.JWTSecret.Unmask())
		}, "SUPABASE_JWT_SECRET"},
		{cfg.LLM.APIKey.IsSet(), func() CheckResult {
			return c.CheckLLMKey(ctx, cfg.LLM.APIKey.Unmask(), cfg.LLM.BaseURL, cfg.LLM.Model)
		}, "OPENAI_API_KEY"},
	}
	for _, u := range upstream {
		if !u.set && local {
			results = append(results, CheckResult{Name: u.name, Valid: true, Skipped: true, Message: "not set (stub client in local mode)"})
			continue
		}
		results = append(results, u.check())
	}
	return results
}

// report prints one line per result and returns the number of failures.
func report(w io.Writer, results []CheckResult) int {
	failures := 0
	for _, r := range results {
		status := "PASS"
		switch {
		case r.Skipped:
			status = "SKIP"
		case !r.Valid:
			status = "FAIL"
			failures++
		}
		fmt.Fprintf(w, "[%s] %-22s %s\n", status, r.Name, r.Message)
	}
	fmt.Fprintf(w, "\n%d checks, %d failed\n", len(results), failures)
	return failures
}

// Package main implements the resync CLI tool, which copies a customer's
// subscriptions from Stripe into the local mirror. Use it to repair a row
// after a missed or failed webhook.
//
// Usage:
//
//	go run ./cmd/tools/resync --customer=cus_123
//	go run ./cmd/tools/resync --customer=cus_123,cus_456
//
// Configuration is loaded like the API server's, including the .env file.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"collegeplan/internal/billing"
	"collegeplan/internal/config"
	"collegeplan/internal/db"
	"collegeplan/internal/external"
)

// resyncer copies one customer's subscriptions into the local store.
type resyncer interface {
	Resync(ctx context.Context, customerID string) (int, error)
}

var _ resyncer = (*billing.Synchronizer)(nil)

func main() {
	customerFlag := flag.String("customer", "", "Comma-separated Stripe customer ids to resync")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: resync --customer=cus_123[,cus_456]\n\n")
		fmt.Fprintf(os.Stderr, "Copy Stripe subscriptions into the local subscription mirror.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	customers := parseCustomers(*customerFlag)
	if len(customers) == 0 {
		fmt.Fprintf(os.Stderr, "error: --customer is required\n\n")
		flag.Usage()
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := execute(ctx, customers, logger); err != nil {
		logger.Error("resync failed", "error", err)
		os.Exit(1)
	}
}

func execute(ctx context.Context, customers []string, logger *slog.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}

	pool, err := db.NewPool(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	clients, err := external.NewClientRegistry(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating external clients: %w", err)
	}

	synchronizer := billing.NewSynchronizer(
		db.NewCustomerRepo(pool),
		db.NewSubscriptionRepo(pool, logger),
		clients.Billing,
		logger,
	)

	written, err := resyncAll(ctx, synchronizer, customers, logger)
	logger.Info("resync finished", "customers", len(customers), "written", written)
	return err
}

// resyncAll resyncs every customer, continuing past failures. The returned
// error joins the failures.
func resyncAll(ctx context.Context, r resyncer, customers []string, logger *slog.Logger) (int, error) {
	var (
		total int
		errs  []error
	)
	for _, customerID := range customers {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		n, err := r.Resync(ctx, customerID)
		total += n
		if err != nil {
			logger.ErrorContext(ctx, "customer resync failed", "customer_id", customerID, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", customerID, err))
		}
	}
	return total, errors.Join(errs...)
}

func parseCustomers(raw string) []string {
	var out []string
	for _, id := range strings.Split(raw, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

package external

import (
	"log/slog"
	"net/http"
	"time"

	"collegeplan/internal/config"
)

// ClientRegistry holds every external service client. It is built once at
// startup and injected into the components that need it.
type ClientRegistry struct {
	Billing        BillingService
	LLM            ChatCompleter
	StripeVerifier WebhookVerifier
}

// stripeTimeout bounds a single Stripe API call.
const stripeTimeout = 20 * time.Second

// NewClientRegistry initializes the external clients from cfg.
//
// Outside local mode every client is real; config loading has already
// required the credentials. In local mode each client is real when its
// credential is set and a stub otherwise, so a developer can point one
// integration at a sandbox while stubbing the rest.
func NewClientRegistry(cfg *config.Config, logger *slog.Logger) (*ClientRegistry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	stubLogger := logger.With("mode", "stub")

	reg := &ClientRegistry{}
	var stubbed []string

	if cfg.IsLocal() && !cfg.Billing.StripeSecretKey.IsSet() {
		reg.Billing = NewStubBillingService(stubLogger)
		stubbed = append(stubbed, "stripe")
	} else {
		reg.Billing = NewStripeClient(&http.Client{Timeout: stripeTimeout}, StripeClientConfig{
			SecretKey: cfg.Billing.StripeSecretKey.Unmask(),
			BaseURL:   cfg.Billing.StripeBaseURL,
			Logger:    logger.With("client", "stripe"),
		})
	}

	if cfg.IsLocal() && !cfg.Billing.StripeWebhookSecret.IsSet() {
		reg.StripeVerifier = NewStubWebhookVerifier(stubLogger)
		stubbed = append(stubbed, "stripe-webhook")
	} else {
		reg.StripeVerifier = &StripeVerifier{}
	}

	if cfg.IsLocal() && !cfg.LLM.APIKey.IsSet() {
		reg.LLM = NewStubChatCompleter(stubLogger)
		stubbed = append(stubbed, "llm")
	} else {
		reg.LLM = NewOpenAIClient(&http.Client{Timeout: cfg.LLM.Timeout}, OpenAIClientConfig{
			APIKey:  cfg.LLM.APIKey.Unmask(),
			BaseURL: cfg.LLM.BaseURL,
			Model:   cfg.LLM.Model,
			Logger:  logger.With("client", "llm"),
		})
	}

	logger.Info("external clients initialized",
		"environment", cfg.Environment,
		"stubbed", stubbed,
	)
	return reg, nil
}

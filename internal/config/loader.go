package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// ConfigError is the diagnostic error type returned by LoadConfig.
type ConfigError struct {
	Type    ConfigErrorType
	Message string
	Err     error
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Type, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Type, e.Message)
}

// Unwrap returns the underlying error for use with errors.Is/errors.As.
func (e *ConfigError) Unwrap() error {
	return e.Err
}

// localEnv is the APP_ENV value that runs against stub upstream clients.
const localEnv = "local"

// LoadConfig loads and validates the configuration.
//
//  1. Sets the process timezone to UTC.
//  2. Loads a .env file if present (non-fatal if missing; never overrides
//     variables already in the environment).
//  3. Processes envconfig tags to populate the Config struct.
//  4. Populates Config.Build from linker-injected variables.
//  5. Validates struct tags, then the secrets required outside local mode.
func LoadConfig() (*Config, error) {
	time.Local = time.UTC

	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrParsing,
			Message: "failed to process environment configuration",
			Err:     err,
		}
	}

	cfg.Build = NewBuildInfo()
	cfg.Server.PublicBaseURL = strings.TrimRight(cfg.Server.PublicBaseURL, "/")

	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return nil, &ConfigError{
			Type:    ErrValidation,
			Message: "configuration validation failed",
			Err:     err,
		}
	}

	if err := requireSecrets(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// requireSecrets enforces that upstream credentials are present in every
// environment except local, where stub clients are wired instead.
func requireSecrets(cfg *Config) error {
	if cfg.IsLocal() {
		return nil
	}

	required := []struct {
		name  string
		value SecretString
	}{
		{"STRIPE_SECRET_KEY", cfg.Billing.StripeSecretKey},
		{"STRIPE_WEBHOOK_SECRET", cfg.Billing.StripeWebhookSecret},
		{"SUPABASE_JWT_SECRET", cfg.Auth.JWTSecret},
		{"OPENAI_API_KEY", cfg.LLM.APIKey},
	}

	var missing []string
	for _, r := range required {
		if !r.value.IsSet() {
			missing = append(missing, r.name)
		}
	}
	if len(missing) > 0 {
		return &ConfigError{
			Type:    ErrMissingSecret,
			Message: fmt.Sprintf("secrets required in %s: %s", cfg.Environment, strings.Join(missing, ", ")),
		}
	}
	return nil
}

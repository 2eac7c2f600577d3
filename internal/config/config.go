// Package config defines the process configuration for the collegeplan API.
// Configuration is loaded once at startup (or Lambda cold start) and is
// immutable thereafter.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File -> Struct Defaults (Lowest)
//
// A missing required value or an invalid format aborts startup.
package config

import (
	"time"

	"collegeplan/internal/types"
)

// SecretString is an alias for types.SecretString so config consumers do not
// need to import types for secret fields.
type SecretString = types.SecretString

// Config is the top-level configuration struct.
// Sub-components receive only the config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" default:"local" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"collegeplan-api"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	// Domain Configurations
	Server        ServerConfig
	Database      DatabaseConfig
	Billing       BillingConfig
	Auth          AuthConfig
	LLM           LLMConfig
	Security      SecurityConfig
	Observability ObservabilityConfig
	AWS           AWSConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// IsLocal reports whether the process runs against stub upstreams.
func (c *Config) IsLocal() bool {
	return c.Environment == localEnv
}

// ServerConfig holds HTTP server and public URL configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8080"`
	// PublicBaseURL is the browser-facing origin used for checkout redirects
	// (no trailing slash), e.g. https://app.ivyhonor.com
	PublicBaseURL     string        `envconfig:"PUBLIC_BASE_URL" validate:"required,url"`
	RequestTimeout    time.Duration `envconfig:"REQUEST_TIMEOUT" default:"30s"`
	EnableCompression bool          `envconfig:"ENABLE_COMPRESSION" default:"true"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"1"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// BillingConfig holds Stripe credentials.
type BillingConfig struct {
	StripeSecretKey     SecretString `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret SecretString `envconfig:"STRIPE_WEBHOOK_SECRET"`
	StripeBaseURL       string       `envconfig:"STRIPE_BASE_URL" default:"https://api.stripe.com" validate:"url"`
}

// AuthConfig holds the settings used to verify the auth provider's access tokens.
type AuthConfig struct {
	JWTSecret   SecretString `envconfig:"SUPABASE_JWT_SECRET"`
	JWTIssuer   string       `envconfig:"SUPABASE_JWT_ISSUER"`
	JWTAudience string       `envconfig:"SUPABASE_JWT_AUDIENCE" default:"authenticated"`
	CookieName  string       `envconfig:"AUTH_COOKIE_NAME" default:"sb-access-token"`
	LoginPath   string       `envconfig:"LOGIN_PATH" default:"/login"`
}

// LLMConfig holds the chat-completion provider settings used by the essay counselor.
type LLMConfig struct {
	APIKey      SecretString  `envconfig:"OPENAI_API_KEY"`
	BaseURL     string        `envconfig:"OPENAI_BASE_URL" default:"https://api.openai.com/v1" validate:"url"`
	Model       string        `envconfig:"OPENAI_MODEL" default:"gpt-4o-mini"`
	Temperature float64       `envconfig:"OPENAI_TEMPERATURE" default:"0.7" validate:"gte=0,lte=2"`
	MaxTokens   int           `envconfig:"OPENAI_MAX_TOKENS" default:"4000" validate:"gt=0"`
	Timeout     time.Duration `envconfig:"OPENAI_TIMEOUT" default:"25s"`
}

// SecurityConfig holds CORS settings.
type SecurityConfig struct {
	CorsAllowedOrigins []string `envconfig:"CORS_ALLOWED_ORIGINS" default:"*"`
}

// ObservabilityConfig selects where metrics are published.
type ObservabilityConfig struct {
	MetricsBackend  string `envconfig:"METRICS_BACKEND" default:"none" validate:"oneof=none prometheus cloudwatch"`
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"CollegePlan"`
}

// AWSConfig holds regional configuration for the CloudWatch metrics backend.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"us-east-1"`
	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingSecret indicates a secret required outside local mode is unset.
	ErrMissingSecret ConfigErrorType = "MISSING_SECRET"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)

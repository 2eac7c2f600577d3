package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
)

// CheckResult is the outcome of one preflight check.
type CheckResult struct {
	Name    string
	Valid   bool
	Skipped bool
	Message string
}

// HTTPClient is the interface used by checks that make outbound HTTP calls.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// DatabaseConnector opens and immediately closes a database connection.
type DatabaseConnector interface {
	Connect(ctx context.Context, dsn string) error
}

// PgxConnector is the production DatabaseConnector.
type PgxConnector struct{}

// Connect verifies that dsn is reachable with its credentials.
func (c *PgxConnector) Connect(ctx context.Context, dsn string) error {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// Checker runs credential and connectivity checks.
type Checker struct {
	httpClient HTTPClient
	dbConn     DatabaseConnector
	offline    bool
}

// NewChecker creates a Checker with production dependencies. An offline
// Checker validates formats only.
func NewChecker(offline bool) *Checker {
	return &Checker{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		dbConn:     &PgxConnector{},
		offline:    offline,
	}
}

// NewCheckerWithDeps creates a Checker with injected dependencies.
func NewCheckerWithDeps(httpClient HTTPClient, dbConn DatabaseConnector, offline bool) *Checker {
	return &Checker{httpClient: httpClient, dbConn: dbConn, offline: offline}
}

// upstreamTimeout bounds each active check, including DNS and TLS.
const upstreamTimeout = 15 * time.Second

const userAgent = "collegeplan-preflight/1.0"

func pass(name, format string, args ...any) CheckResult {
	return CheckResult{Name: name, Valid: true, Message: fmt.Sprintf(format, args...)}
}

func fail(name, format string, args ...any) CheckResult {
	return CheckResult{Name: name, Message: fmt.Sprintf(format, args...)}
}

// CheckDatabaseURL verifies the scheme and, when online, connects.
func (c *Checker) CheckDatabaseURL(ctx context.Context, rawURL string) CheckResult {
	const name = "DATABASE_URL"
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return fail(name, "must not be empty")
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fail(name, "invalid URL format: %v", err)
	}
	if parsed.Scheme != "postgres" && parsed.Scheme != "postgresql" {
		return fail(name, "expected postgres:// or postgresql:// scheme, got %q", parsed.Scheme)
	}
	port := parsed.Port()
	if port == "" {
		port = "5432"
	} else if _, _, err := net.SplitHostPort(parsed.Host); err != nil {
		return fail(name, "invalid host %q: %v", parsed.Host, err)
	}

	if c.offline {
		return pass(name, "format valid (host=%s, port=%s)", parsed.Hostname(), port)
	}

	connCtx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()
	if err := c.dbConn.Connect(connCtx, rawURL); err != nil {
		return fail(name, "connection failed: %v", err)
	}
	return pass(name, "connection verified (host=%s, port=%s)", parsed.Hostname(), port)
}

// stripeKeyRegex matches Stripe secret and restricted keys.
var stripeKeyRegex = regexp.MustCompile(`^(sk|rk)_(test|live)_[0-9a-zA-Z]{24,}$`)

// CheckStripeKey verifies the key format and, when online, calls
// GET /v1/account.
func (c *Checker) CheckStripeKey(ctx context.Context, key, baseURL string) CheckResult {
	const name = "STRIPE_SECRET_KEY"
	key = strings.TrimSpace(key)
	if key == "" {
		return fail(name, "must not be empty")
	}
	if !stripeKeyRegex.MatchString(key) {
		return fail(name, "must match (sk|rk)_(test|live)_[alphanumeric 24+ chars]")
	}

	mode := "test"
	if strings.Contains(key, "_live_") {
		mode = "live"
	}
	if c.offline {
		return pass(name, "format valid [%s mode]", mode)
	}

	status, body, err := c.get(ctx, strings.TrimRight(baseURL, "/")+"/v1/account", key)
	if err != nil {
		return fail(name, "Stripe API request failed: %v", err)
	}
	if status == http.StatusUnauthorized {
		return fail(name, "Stripe API returned 401: key is invalid or revoked")
	}
	if status != http.StatusOK {
		return fail(name, "Stripe API returned HTTP %d: %s", status, truncateBody(body, 200))
	}

	var account struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(body, &account); err == nil && account.ID != "" {
		return pass(name, "key verified [%s mode] (account: %s)", mode, account.ID)
	}
	return pass(name, "key verified [%s mode]", mode)
}

var webhookSecretRegex = regexp.MustCompile(`^whsec_[0-9a-zA-Z+/=]{16,}$`)

// CheckWebhookSecret verifies the Stripe signing secret format.
func (c *Checker) CheckWebhookSecret(_ context.Context, secret string) CheckResult {
	const name = "STRIPE_WEBHOOK_SECRET"
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return fail(name, "must not be empty")
	}
	if !webhookSecretRegex.MatchString(secret) {
		return fail(name, "must match whsec_[base64 16+ chars]")
	}
	return pass(name, "format valid")
}

// minJWTSecretLength is the shortest HS256 secret the auth provider issues.
const minJWTSecretLength = 32

// CheckJWTSecret verifies the access-token signing secret length.
func (c *Checker) CheckJWTSecret(_ context.Context, secret string) CheckResult {
	const name = "SUPABASE_JWT_SECRET"
	if secret == "" {
		return fail(name, "must not be empty")
	}
	if len(secret) < minJWTSecretLength {
		return fail(name, "must be at least %d characters (got %d)", minJWTSecretLength, len(secret))
	}
	return pass(name, "length accepted (%d chars)", len(secret))
}

// CheckLLMKey verifies the key and, when online, lists models at baseURL.
func (c *Checker) CheckLLMKey(ctx context.Context, key, baseURL, model string) CheckResult {
	const name = "OPENAI_API_KEY"
	key = strings.TrimSpace(key)
	if key == "" {
		return fail(name, "must not be empty")
	}
	if c.offline {
		return pass(name, "present (%d chars)", len(key))
	}

	status, body, err := c.get(ctx, strings.TrimRight(baseURL, "/")+"/models", key)
	if err != nil {
		return fail(name, "model API request failed: %v", err)
	}
	if status == http.StatusUnauthorized || status == http.StatusForbidden {
		return fail(name, "model API returned HTTP %d: key is invalid or lacks permissions", status)
	}
	if status != http.StatusOK {
		return fail(name, "model API returned HTTP %d: %s", status, truncateBody(body, 200))
	}

	var list struct {
		Data []struct {
			ID string `json:"id"`
		} `json:"data"`
	}
	if err := json.Unmarshal(body, &list); err == nil {
		for _, m := range list.Data {
			if m.ID == model {
				return pass(name, "key verified (model %s available)", model)
			}
		}
		if len(list.Data) > 0 {
			return fail(name, "key verified but model %q is not available", model)
		}
	}
	return pass(name, "key verified")
}

// CheckPublicBaseURL requires https outside local development.
func (c *Checker) CheckPublicBaseURL(_ context.Context, rawURL string, local bool) CheckResult {
	const name = "PUBLIC_BASE_URL"
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return fail(name, "must be an absolute URL (got %q)", rawURL)
	}
	if !local && parsed.Scheme != "https" {
		return fail(name, "must use https outside local (got %q)", parsed.Scheme)
	}
	if parsed.Path != "" && parsed.Path != "/" {
		return fail(name, "must be an origin without a path (got %q)", parsed.Path)
	}
	return pass(name, "checkout returns to %s", strings.TrimRight(rawURL, "/"))
}

func (c *Checker) get(ctx context.Context, target, bearer string) (int, []byte, error) {
	reqCtx, cancel := context.WithTimeout(ctx, upstreamTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, target, nil)
	if err != nil {
		return 0, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+bearer)
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return resp.StatusCode, body, nil
}

// truncateBody returns the first n bytes of body, marking truncation.
func truncateBody(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}

package core

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"collegeplan/internal/config"
	"collegeplan/internal/types"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testConfig() *config.Config {
	return &config.Config{
		Environment: "local",
		Server: config.ServerConfig{
			RequestTimeout: 5 * time.Second,
		},
		Auth: config.AuthConfig{
			CookieName: "sb-access-token",
			LoginPath:  "/login",
		},
		Security: config.SecurityConfig{
			CorsAllowedOrigins: []string{"*"},
		},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	srv, err := NewServer(testConfig(), testLogger())
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	return srv
}

// fakeAuthenticator accepts only the token "good" unless err is set.
type fakeAuthenticator struct {
	actor types.Actor
	err   error
}

func (f *fakeAuthenticator) Verify(token string) (types.Actor, error) {
	if f.err != nil {
		return types.Actor{}, f.err
	}
	if token != "good" {
		return types.Actor{}, types.NewAppError(types.ErrCodeAuthTokenInvalid, "bad token", nil)
	}
	return f.actor, nil
}

type fakeSubscriptions struct {
	mu    sync.Mutex
	info  types.SubscriptionInfo
	err   error
	calls []string
}

func (f *fakeSubscriptions) GetUserSubscriptionStatus(_ context.Context, userID string) (types.SubscriptionInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, userID)
	return f.info, f.err
}

type recordedRequest struct {
	method, route, status string
}

type recordingMetrics struct {
	mu       sync.Mutex
	requests []recordedRequest
	usage    []string
	webhooks []string
}

func (m *recordingMetrics) RecordRequest(method, route, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = append(m.requests, recordedRequest{method, route, status})
}

func (m *recordingMetrics) RecordUsage(feature types.FeatureType, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.usage = append(m.usage, string(feature)+":"+result)
}

func (m *recordingMetrics) RecordWebhook(eventType, result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.webhooks = append(m.webhooks, eventType+":"+result)
}

var (
	_ Authenticator      = (*fakeAuthenticator)(nil)
	_ SubscriptionLoader = (*fakeSubscriptions)(nil)
	_ MetricsCollector   = (*recordingMetrics)(nil)
)

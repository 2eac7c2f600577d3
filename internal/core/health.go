package core

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// healthCheckTimeout bounds all health checks together.
const healthCheckTimeout = 2 * time.Second

// HealthChecker checks one dependency the service cannot run without.
type HealthChecker interface {
	Name() string
	Check(ctx context.Context) error
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// DatabaseCheck reports whether the database accepts connections.
type DatabaseCheck struct {
	DB Pinger
}

// Name implements HealthChecker.
func (p DatabaseCheck) Name() string { return "database" }

// Check implements HealthChecker.
func (p DatabaseCheck) Check(ctx context.Context) error {
	if err := p.DB.Ping(ctx); err != nil {
		return fmt.Errorf("ping: %w", err)
	}
	return nil
}

type componentStatus struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

type healthResponse struct {
	Status     string                     `json:"status"`
	Version    string                     `json:"version,omitempty"`
	Components map[string]componentStatus `json:"components,omitempty"`
}

type checkOutcome struct {
	name string
	err  error
}

// HandleHealth runs every check concurrently under a shared deadline.
// It returns 200 when all pass and 503 when any fails or times out.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{Status: "healthy", Version: s.Config.Build.Version}
	if len(s.HealthChecks) == 0 {
		JSON(w, r, http.StatusOK, resp)
		return
	}

	results := make(chan checkOutcome, len(s.HealthChecks))
	for _, hc := range s.HealthChecks {
		go func(p HealthChecker) {
			results <- checkOutcome{name: p.Name(), err: runCheck(ctx, p)}
		}(hc)
	}

	resp.Components = make(map[string]componentStatus, len(s.HealthChecks))
	for _, hc := range s.HealthChecks {
		resp.Components[hc.Name()] = componentStatus{Status: "unhealthy", Message: "health check timed out"}
	}

	status := http.StatusOK
collect:
	for range s.HealthChecks {
		select {
		case res := <-results:
			if res.err != nil {
				resp.Components[res.name] = componentStatus{Status: "unhealthy", Message: res.err.Error()}
				continue
			}
			resp.Components[res.name] = componentStatus{Status: "healthy"}
		case <-ctx.Done():
			break collect
		}
	}

	for name, c := range resp.Components {
		if c.Status != "healthy" {
			status = http.StatusServiceUnavailable
			resp.Status = "unhealthy"
			s.Logger.WarnContext(r.Context(), "health check failed", "check", name, "message", c.Message)
		}
	}
	JSON(w, r, status, resp)
}

func runCheck(ctx context.Context, p HealthChecker) (err error) {
	defer func() {
		if rvr := recover(); rvr != nil {
			err = fmt.Errorf("check panicked: %v", rvr)
		}
	}()
	return p.Check(ctx)
}

package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"
)

// Pinger reports whether a dependency is reachable
type Pinger interface {
	HealthCheck(ctx context.Context) error
}

// HealthStatus represents the health status of the service
type HealthStatus struct {
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks"`
	Status    string            `json:"status"`
}

// Healthy reports whether every check passed
func (s HealthStatus) Healthy() bool {
	return s.Status == "healthy"
}

// HealthChecker manages health checks for the service
type HealthChecker struct {
	checks  map[string]Pinger
	timeout time.Duration
}

// NewHealthChecker creates a HealthChecker over the named dependencies
func NewHealthChecker(checks map[string]Pinger) *HealthChecker {
	return &HealthChecker{
		checks:  checks,
		timeout: 2 * time.Second,
	}
}

// Check performs health checks and returns the status
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	results := make(map[string]string, len(h.checks))
	overall := "healthy"

	for name, p := range h.checks {
		if p == nil {
			results[name] = "not configured"
			continue
		}
		checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
		err := p.HealthCheck(checkCtx)
		cancel()

		if err != nil {
			results[name] = "unhealthy: " + err.Error()
			overall = "unhealthy"
		} else {
			results[name] = "healthy"
		}
	}

	return HealthStatus{
		Status:    overall,
		Timestamp: time.Now().UTC(),
		Checks:    results,
	}
}

// HealthHandler returns an HTTP handler for health checks
func (h *HealthChecker) HealthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := h.Check(r.Context())

		w.Header().Set("Content-Type", "application/json")
		if !status.Healthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		_ = json.NewEncoder(w).Encode(status)
	}
}

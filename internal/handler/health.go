package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const readinessTimeout = 3 * time.Second

// Check values reported by Readyz.
const (
	CheckOK            = "ok"
	CheckError         = "error"
	CheckNotConfigured = "not configured"
)

// HealthChecker defines an interface for checking service health.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type dependency struct {
	name    string
	checker HealthChecker
}

// HealthHandler serves the liveness and readiness probes.
type HealthHandler struct {
	deps    []dependency
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler for the user store and the
// optional Redis cache. Pass a nil interface for cache when Redis is not
// configured.
func NewHealthHandler(store, cache HealthChecker) *HealthHandler {
	return &HealthHandler{
		deps: []dependency{
			{name: "database", checker: store},
			{name: "redis", checker: cache},
		},
		started: time.Now(),
		logger:  slog.Default().With("component", "handler.health"),
	}
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status        string            `json:"status"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	Checks        map[string]string `json:"checks,omitempty"`
}

// Healthz reports that the process is serving.
// GET /healthz
func (h *HealthHandler) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status:        "ok",
		UptimeSeconds: h.uptime(),
	})
}

// Readyz pings every configured dependency in parallel and returns 503
// when any of them fails.
// GET /readyz
func (h *HealthHandler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
	defer cancel()

	var (
		mu     sync.Mutex
		wg     sync.WaitGroup
		checks = make(map[string]string, len(h.deps))
	)

	for _, dep := range h.deps {
		if dep.checker == nil {
			checks[dep.name] = CheckNotConfigured
			continue
		}

		wg.Add(1)
		go func(dep dependency) {
			defer wg.Done()
			result := CheckOK
			if err := dep.checker.Ping(ctx); err != nil {
				h.logger.Warn("readiness check failed", "dependency", dep.name, "error", err)
				result = CheckError
			}
			mu.Lock()
			checks[dep.name] = result
			mu.Unlock()
		}(dep)
	}
	wg.Wait()

	status, code := "ok", http.StatusOK
	for _, result := range checks {
		if result == CheckError {
			status, code = "unhealthy", http.StatusServiceUnavailable
			break
		}
	}

	writeJSON(w, code, HealthResponse{
		Status:        status,
		UptimeSeconds: h.uptime(),
		Checks:        checks,
	})
}

func (h *HealthHandler) uptime() int64 {
	return int64(time.Since(h.started).Seconds())
}

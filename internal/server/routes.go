package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/wishday/wishday/internal/handler"
	"github.com/wishday/wishday/internal/middleware"
)

// Routes collects what the router mounts.
type Routes struct {
	Registration *handler.RegistrationHandler
	Health       *handler.HealthHandler
	// Metrics is served at GET /metrics when set.
	Metrics   http.Handler
	RateLimit middleware.RateLimitConfig
	Security  middleware.SecurityConfig
	// TrustProxy installs RealIP so forwarding headers replace RemoteAddr.
	TrustProxy bool
	Logger     *slog.Logger
}

// NewRouter configures the chi router with all routes and middleware.
func NewRouter(rt Routes) *chi.Mux {
	if rt.Logger == nil {
		rt.Logger = slog.Default()
	}
	h := handler.New()
	r := chi.NewRouter()

	if rt.TrustProxy {
		r.Use(chimiddleware.RealIP)
	}
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger(rt.Logger))
	r.Use(middleware.Recoverer(rt.Logger))
	r.Use(middleware.Security(rt.Security))
	if rt.Security.MaxRequestBodySize > 0 {
		r.Use(middleware.MaxBodySize(rt.Security.MaxRequestBodySize))
	}

	r.Get("/healthz", rt.Health.Healthz)
	r.Get("/readyz", rt.Health.Readyz)
	if rt.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", rt.Metrics)
	}

	r.Get("/", rt.Registration.Page)
	r.With(middleware.RateLimitIP(rt.RateLimit)).Post("/send", rt.Registration.Send)
	r.Handle("/public/*", handler.Static())

	r.NotFound(h.NotFound)
	r.MethodNotAllowed(h.MethodNotAllowed)

	return r
}

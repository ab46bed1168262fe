// Package middleware provides HTTP middleware for the wishday server.
package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"
)

// ContentSecurityPolicy allows same-origin styles and form submissions only.
const ContentSecurityPolicy = "default-src 'none'; style-src 'self'; img-src 'self'; form-action 'self'; base-uri 'none'; frame-ancestors 'none'"

const hstsValue = "max-age=31536000; includeSubDomains; preload"

// baseHeaders are sent on every response.
var baseHeaders = [][2]string{
	{"X-Content-Type-Options", "nosniff"},
	{"X-Frame-Options", "DENY"},
	// CSP replaces the legacy XSS auditor.
	{"X-XSS-Protection", "0"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", ContentSecurityPolicy},
	{"Cross-Origin-Opener-Policy", "same-origin"},
	{"Cross-Origin-Resource-Policy", "same-origin"},
	{"Permissions-Policy", "geolocation=(), microphone=(), camera=(), payment=(), usb=()"},
}

// SecurityConfig holds configuration for security headers.
type SecurityConfig struct {
	// IsDevelopment disables HSTS.
	IsDevelopment bool
	// MaxRequestBodySize is the max allowed request body in bytes.
	MaxRequestBodySize int64
	// StaticPrefix marks cacheable asset paths. Default "/public/".
	StaticPrefix string
	// StaticMaxAge is the Cache-Control max-age for assets. Default 1h.
	StaticMaxAge time.Duration
}

// DefaultSecurityConfig returns the production defaults.
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxRequestBodySize: 64 << 10,
		StaticPrefix:       "/public/",
		StaticMaxAge:       time.Hour,
	}
}

// Security sets the response headers listed in baseHeaders, HSTS outside
// development, and Cache-Control. Everything except static assets is
// marked no-store.
func Security(cfg SecurityConfig) func(http.Handler) http.Handler {
	defaults := DefaultSecurityConfig()
	if cfg.StaticPrefix == "" {
		cfg.StaticPrefix = defaults.StaticPrefix
	}
	if cfg.StaticMaxAge <= 0 {
		cfg.StaticMaxAge = defaults.StaticMaxAge
	}
	staticCache := fmt.Sprintf("public, max-age=%d", int(cfg.StaticMaxAge.Seconds()))

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range baseHeaders {
				h.Set(kv[0], kv[1])
			}
			if !cfg.IsDevelopment {
				h.Set("Strict-Transport-Security", hstsValue)
			}

			if strings.HasPrefix(r.URL.Path, cfg.StaticPrefix) {
				h.Set("Cache-Control", staticCache)
			} else {
				h.Set("Cache-Control", "no-store")
			}
			h.Del("Server")

			next.ServeHTTP(w, r)
		})
	}
}

// MaxBodySize rejects bodies larger than maxBytes. A declared
// Content-Length over the limit is refused up front; otherwise reads past
// the limit fail inside the handler.
func MaxBodySize(maxBytes int64) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.ContentLength > maxBytes {
				w.Header().Set("Content-Type", "text/plain; charset=utf-8")
				w.WriteHeader(http.StatusRequestEntityTooLarge)
				_, _ = w.Write([]byte("Request body too large"))
				return
			}
			if r.Body != nil {
				r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
			}
			next.ServeHTTP(w, r)
		})
	}
}

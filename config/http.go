package config

import (
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"
)

// HTTPConfig contains HTTP server configuration.
type HTTPConfig struct {
	// Addr is the address to bind the HTTP server to.
	Addr string `env:"HTTP_ADDR" envDefault:":8080"`

	// CookieDomain is the domain for session cookies.
	// Leave empty to use the request domain. A public suffix such as
	// "co.uk" is ignored since browsers refuse cookies scoped to it.
	CookieDomain string `env:"APP_COOKIE_DOMAIN" envDefault:""`

	// AllowedOrigins is the CORS allow list for the GraphQL proxy. "*" allows any.
	AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// CompressionEnabled enables gzip compression for text-based responses.
	CompressionEnabled bool `env:"HTTP_COMPRESSION_ENABLED" envDefault:"false"`

	// CompressionLevel is the gzip compression level (1-9).
	CompressionLevel int `env:"HTTP_COMPRESSION_LEVEL" envDefault:"6"`

	// RateLimitRPS caps requests per second per client IP on sign-in,
	// bootstrap, role-set and GraphQL endpoints. Zero disables limiting.
	RateLimitRPS float64 `env:"HTTP_RATE_LIMIT_RPS" envDefault:"20"`

	// RateLimitBurst is the bucket size for RateLimitRPS.
	RateLimitBurst int `env:"HTTP_RATE_LIMIT_BURST" envDefault:"40"`

	// ShutdownTimeout bounds graceful shutdown of the HTTP server.
	ShutdownTimeout time.Duration `env:"HTTP_SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// Sanitize applies guardrails to HTTP configuration values.
func (h *HTTPConfig) Sanitize() {
	if h.CompressionLevel < 1 {
		h.CompressionLevel = 1
	}
	if h.CompressionLevel > 9 {
		h.CompressionLevel = 9
	}
	if h.RateLimitRPS < 0 {
		h.RateLimitRPS = 0
	}
	if h.RateLimitRPS > 0 && h.RateLimitBurst < 1 {
		h.RateLimitBurst = int(h.RateLimitRPS) + 1
	}
	if h.ShutdownTimeout <= 0 {
		h.ShutdownTimeout = 10 * time.Second
	}
	origins := h.AllowedOrigins[:0]
	for _, o := range h.AllowedOrigins {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	h.AllowedOrigins = origins
	h.CookieDomain = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(h.CookieDomain)), ".")
}

// SessionCookieDomain returns the domain to scope session cookies to, or ""
// for host-only cookies when CookieDomain is unusable.
func (h *HTTPConfig) SessionCookieDomain() string {
	if isPublicSuffix(h.CookieDomain) {
		return ""
	}
	return h.CookieDomain
}

// Problems lists HTTP settings that are accepted but ignored at runtime.
func (h *HTTPConfig) Problems() []string {
	if isPublicSuffix(h.CookieDomain) {
		return []string{"APP_COOKIE_DOMAIN " + h.CookieDomain + " is a public suffix; session cookies fall back to host-only"}
	}
	return nil
}

// isPublicSuffix reports whether domain is an eTLD like "com", "co.uk" or
// "github.io". Single-label names outside the ICANN list (e.g. "localhost")
// are allowed.
func isPublicSuffix(domain string) bool {
	if domain == "" {
		return false
	}
	suffix, icann := publicsuffix.PublicSuffix(domain)
	if suffix != domain {
		return false
	}
	return icann || strings.Contains(domain, ".")
}

package config

import (
	"log/slog"
	"os"
	"strings"
)

// Environment names the deployment environment. Production tightens the
// first-admin bootstrap and hides the configuration report endpoint.
type Environment string

const (
	// EnvDevelopment relaxes bootstrap email enforcement.
	EnvDevelopment Environment = "development"
	// EnvProduction enforces the configured initial admin email.
	EnvProduction Environment = "production"
)

// AppConfig is the main application configuration struct that composes
// domain-specific configuration from separate files.
//
// Configuration is loaded from environment variables using the
// github.com/caarlos0/env library. See individual domain config
// files for details on available environment variables:
//   - auth.go: Identity provider, session and bootstrap configuration
//   - database.go: Redis and Postgres configuration
//   - http.go: HTTP server configuration
//   - upstream.go: GraphQL upstream configuration
//   - feeds.go: Poll intervals and feed window sizes
//   - services.go: Service mode configuration
type AppConfig struct {
	// Env selects development or production behaviour.
	// NODE_ENV=production is honoured when APP_ENV is unset.
	Env Environment `env:"APP_ENV"`

	// LogLevel is the minimum slog level (DEBUG, INFO, WARN, ERROR).
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`

	// Authentication configuration
	Auth AuthConfig

	// Storage configuration
	Postgres DBConfig    `envPrefix:"DB_"`
	Redis    RedisConfig `envPrefix:"REDIS_"`

	// HTTP server configuration
	HTTP HTTPConfig

	// Upstream GraphQL service
	Upstream UpstreamConfig `envPrefix:"GRAPHQL_"`

	// Feed polling and windowing
	Feeds FeedsConfig `envPrefix:"FEEDS_"`

	// Service mode configuration
	Services string `env:"SERVICES" envDefault:"http,poller"`

	// Observability configuration
	Observability ObservabilityConfig
}

// Sanitize applies guardrails to configuration values loaded from env.
// This should be called after loading configuration from environment variables.
func (c *AppConfig) Sanitize() {
	c.detectEnvironment()

	c.Auth.Sanitize()
	c.HTTP.Sanitize()
	c.Upstream.Sanitize()
	c.Feeds.Sanitize()
	c.Observability.Sanitize()
}

// detectEnvironment normalises Env, falling back to NODE_ENV, which is what
// the dashboard's frontend tooling sets.
func (c *AppConfig) detectEnvironment() {
	v := strings.ToLower(strings.TrimSpace(string(c.Env)))
	if v == "" {
		v = strings.ToLower(strings.TrimSpace(os.Getenv("NODE_ENV")))
	}
	switch v {
	case "production", "prod":
		c.Env = EnvProduction
	default:
		c.Env = EnvDevelopment
	}
}

// IsProduction reports whether production enforcement is active.
func (c *AppConfig) IsProduction() bool {
	return c.Env == EnvProduction
}

// GetEnabledServices returns the enabled services based on the Services field.
func (c *AppConfig) GetEnabledServices() (map[ServiceMode]bool, error) {
	return ParseServices(c.Services)
}

func (c *AppConfig) serviceEnabled(mode ServiceMode) bool {
	services, err := c.GetEnabledServices()
	if err != nil {
		return false
	}
	return services[mode]
}

// IsHTTPServerEnabled returns true if the HTTP server service is enabled.
func (c *AppConfig) IsHTTPServerEnabled() bool {
	return c.serviceEnabled(ServiceModeHTTP)
}

// IsPollerEnabled returns true if the upstream poller is enabled.
func (c *AppConfig) IsPollerEnabled() bool {
	return c.serviceEnabled(ServiceModePoller)
}

// IsSubscriberEnabled returns true if the upstream subscription feeds are enabled.
func (c *AppConfig) IsSubscriberEnabled() bool {
	return c.serviceEnabled(ServiceModeSubscriber)
}

package config

import (
	"strings"
	"time"
)

// UpstreamConfig points at the CQRS/ES service's GraphQL API.
type UpstreamConfig struct {
	// Endpoint is the HTTP endpoint for queries and mutations.
	Endpoint string `env:"ENDPOINT" envDefault:"http://localhost:4000/api/graphql"`
	// WSEndpoint is the graphql-ws endpoint for subscriptions. Derived from
	// Endpoint when empty.
	WSEndpoint string `env:"WS_ENDPOINT"`
	// Timeout bounds a single query or mutation.
	Timeout time.Duration `env:"TIMEOUT" envDefault:"10s"`
	// ForwardAuth forwards the caller's Authorization header on proxied requests.
	ForwardAuth bool `env:"FORWARD_AUTH" envDefault:"true"`
}

// Sanitize fills derived values.
func (u *UpstreamConfig) Sanitize() {
	u.Endpoint = strings.TrimSpace(u.Endpoint)
	u.WSEndpoint = strings.TrimSpace(u.WSEndpoint)
	if u.Timeout <= 0 {
		u.Timeout = 10 * time.Second
	}
	if u.WSEndpoint == "" {
		u.WSEndpoint = deriveWSEndpoint(u.Endpoint)
	}
}

func deriveWSEndpoint(endpoint string) string {
	switch {
	case strings.HasPrefix(endpoint, "https://"):
		return "wss://" + strings.TrimPrefix(endpoint, "https://")
	case strings.HasPrefix(endpoint, "http://"):
		return "ws://" + strings.TrimPrefix(endpoint, "http://")
	default:
		return endpoint
	}
}

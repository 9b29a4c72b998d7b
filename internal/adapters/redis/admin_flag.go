package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// DefaultAdminFlagKey is where the admin-existence flag is stored.
const DefaultAdminFlagKey = "cqrs-monitor:admin_exists"

// AdminFlag caches whether an admin account exists. The key has no TTL and
// is never cleared by the application.
type AdminFlag struct {
	client redis.UniversalClient
	key    string
}

// NewAdminFlag creates an AdminFlag backed by key (DefaultAdminFlagKey when empty).
func NewAdminFlag(client redis.UniversalClient, key string) *AdminFlag {
	if key == "" {
		key = DefaultAdminFlagKey
	}
	return &AdminFlag{client: client, key: key}
}

// Get reports whether the flag has been set.
func (f *AdminFlag) Get(ctx context.Context) (bool, error) {
	v, err := f.client.Get(ctx, f.key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("redis get admin flag: %w", err)
	}
	return v == "1", nil
}

// Set marks that an admin exists.
func (f *AdminFlag) Set(ctx context.Context) error {
	if err := f.client.Set(ctx, f.key, "1", 0).Err(); err != nil {
		return fmt.Errorf("redis set admin flag: %w", err)
	}
	return nil
}

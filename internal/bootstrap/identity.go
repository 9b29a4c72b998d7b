package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/cqrs-monitor/config"
	"github.com/target/cqrs-monitor/internal/adapters/firebase"
	"github.com/target/cqrs-monitor/internal/adapters/localidp"
	"github.com/target/cqrs-monitor/internal/ports"
)

// IdentityConfig contains configuration for the identity provider.
type IdentityConfig struct {
	Auth        config.AuthConfig
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// BuildIdentityProvider creates the provider selected by the identity mode.
//
//nolint:ireturn // the mode picks the implementation at runtime.
func BuildIdentityProvider(ctx context.Context, cfg IdentityConfig) (ports.IdentityProvider, error) {
	switch cfg.Auth.Mode {
	case config.IdentityModeFirebase:
		prov, err := firebase.NewProvider(ctx, firebase.Config{
			ProjectID:       cfg.Auth.Firebase.ProjectID,
			CredentialsFile: cfg.Auth.Firebase.CredentialsFile,
			Logger:          cfg.Logger,
		})
		if err != nil {
			return nil, fmt.Errorf("firebase identity provider: %w", err)
		}
		if cfg.Logger != nil {
			cfg.Logger.InfoContext(ctx, "identity provider ready", "mode", cfg.Auth.Mode, "project", cfg.Auth.Firebase.ProjectID)
		}
		return prov, nil

	case config.IdentityModeLocal, "":
		prov, err := BuildLocalIdP(cfg)
		if err != nil {
			return nil, err
		}
		if cfg.Logger != nil {
			cfg.Logger.WarnContext(ctx, "using local identity provider; do not use in production", "issuer", cfg.Auth.Local.Issuer)
		}
		return prov, nil

	default:
		return nil, fmt.Errorf("unsupported identity mode %q", cfg.Auth.Mode)
	}
}

// BuildLocalIdP creates the Redis-backed development provider. The admin CLI
// uses it directly to create accounts and mint tokens.
func BuildLocalIdP(cfg IdentityConfig) (*localidp.Provider, error) {
	if cfg.RedisClient == nil {
		return nil, errors.New("local identity provider requires redis")
	}
	prov, err := localidp.NewProvider(cfg.RedisClient, localidp.Config{
		SigningKey: cfg.Auth.Local.SigningKey,
		Issuer:     cfg.Auth.Local.Issuer,
		TokenTTL:   cfg.Auth.Local.TokenTTL,
		KeyPrefix:  cfg.Auth.Local.KeyPrefix,
	})
	if err != nil {
		return nil, fmt.Errorf("local identity provider: %w", err)
	}
	return prov, nil
}

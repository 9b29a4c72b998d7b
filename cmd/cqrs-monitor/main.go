package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/target/cqrs-monitor/config"
	"github.com/target/cqrs-monitor/internal/bootstrap"
)

func main() {
	ctx := context.Background()
	logger := bootstrap.InitLogger()
	if err := run(ctx, logger); err != nil {
		logger.ErrorContext(ctx, "fatal error", "error", err)
		os.Exit(1) //nolint:forbidigo // Main entrypoint should exit with non-zero status on fatal errors.
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	bootstrap.SetLogLevel(cfg.LogLevel)

	logStartupInfo(ctx, logger, &cfg)

	if err = bootstrap.ValidateServiceConfig(&cfg); err != nil {
		return err
	}
	for _, warning := range bootstrap.ConfigWarnings(&cfg) {
		logger.WarnContext(ctx, "configuration warning", "detail", warning)
	}

	db, redisClient, err := initInfrastructure(ctx, &cfg, logger)
	if err != nil {
		return err
	}
	defer closeInfrastructure(ctx, logger, db, redisClient)

	if cfg.Postgres.RunMigrationsOnStart {
		if err = bootstrap.RunMigrations(ctx, db, logger); err != nil {
			return err
		}
	} else if db != nil {
		logger.InfoContext(ctx, "skipping database migrations on startup", "reason", "disabled via config")
	}

	identity, err := bootstrap.BuildIdentityProvider(ctx, bootstrap.IdentityConfig{
		Auth:        cfg.Auth,
		RedisClient: redisClient,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      &cfg,
		DB:          db,
		RedisClient: redisClient,
		Identity:    identity,
		Logger:      logger,
	})
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	return bootstrap.RunServicesWithShutdown(&bootstrap.ServiceOrchestrationConfig{
		Config:      &cfg,
		Services:    services,
		DB:          db,
		RedisClient: redisClient,
		Logger:      logger,
	})
}

func logStartupInfo(ctx context.Context, logger *slog.Logger, cfg *config.AppConfig) {
	logger.InfoContext(ctx, "starting cqrs-monitor",
		"environment", cfg.Env,
		"identity_mode", cfg.Auth.Mode,
		"graphql_endpoint", cfg.Upstream.Endpoint,
		"audit_log", cfg.Postgres.Enabled,
		"enabled_services", bootstrap.GetEnabledServices(cfg))
}

// initInfrastructure connects shared dependencies used by the service runtime.
// The database is nil when the audit log is disabled.
//
//nolint:ireturn // returning redis.UniversalClient keeps sentinel/cluster support flexible.
func initInfrastructure(
	ctx context.Context,
	cfg *config.AppConfig,
	logger *slog.Logger,
) (*sql.DB, redis.UniversalClient, error) {
	dbCfg := bootstrap.DatabaseConfig{
		DBConfig:    cfg.Postgres,
		RedisConfig: cfg.Redis,
		Logger:      logger,
	}

	redisClient, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}

	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		if cerr := redisClient.Close(); cerr != nil {
			logger.ErrorContext(ctx, "close redis after database connect failure", "error", cerr)
			return nil, nil, fmt.Errorf("connect db: %w", errors.Join(err, fmt.Errorf("close redis: %w", cerr)))
		}
		return nil, nil, fmt.Errorf("connect db: %w", err)
	}

	return db, redisClient, nil
}

func closeInfrastructure(ctx context.Context, logger *slog.Logger, db *sql.DB, redisClient redis.UniversalClient) {
	if db != nil {
		if err := db.Close(); err != nil {
			logger.ErrorContext(ctx, "close database failed", "error", err)
		}
	}
	if redisClient != nil {
		if err := redisClient.Close(); err != nil {
			logger.ErrorContext(ctx, "close redis failed", "error", err)
		}
	}
}

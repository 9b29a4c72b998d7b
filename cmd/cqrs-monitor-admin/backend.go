package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/target/cqrs-monitor/config"
	"github.com/target/cqrs-monitor/internal/adapters/localidp"
	"github.com/target/cqrs-monitor/internal/bootstrap"
	domainauth "github.com/target/cqrs-monitor/internal/domain/auth"
	"github.com/target/cqrs-monitor/internal/service"
)

// operator is recorded as the actor for role changes made from the CLI.
var operator = domainauth.Identity{UID: "cli", Email: "cli@localhost"}

type roleAdmin interface {
	ListAccounts(ctx context.Context, caller domainauth.Resolution) ([]service.AccountSummary, error)
	AssignRole(ctx context.Context, actor domainauth.Identity, in service.SetRoleInput) (*service.SetRoleResult, error)
}

type adminChecker interface {
	AdminExists(ctx context.Context) (bool, error)
}

// localAccounts is the subset of the local identity provider used by dev token.
type localAccounts interface {
	CreateAccount(ctx context.Context, email string) (domainauth.Account, error)
	FindByEmail(ctx context.Context, email string) (domainauth.Account, error)
	IssueToken(ctx context.Context, uid string) (string, time.Time, error)
}

// backend holds the services a command needs. Local is nil unless the
// identity mode is local.
type backend struct {
	Roles roleAdmin
	Admin adminChecker
	Local localAccounts
	Close func()
}

type app struct {
	cfg     *config.AppConfig
	out     io.Writer
	logger  *slog.Logger
	connect func(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*backend, error)
	openDB  func(cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, error)
}

func (a *app) loadConfig() error {
	if a.cfg != nil {
		return nil
	}
	cfg, err := bootstrap.LoadConfig()
	if err != nil {
		return err
	}
	bootstrap.SetLogLevel(cfg.LogLevel)
	a.cfg = &cfg
	return nil
}

func (a *app) log() *slog.Logger {
	if a.logger == nil {
		return discardLogger()
	}
	return a.logger
}

func (a *app) backend(ctx context.Context) (*backend, error) {
	if a.connect == nil {
		return nil, errors.New("no backend configured")
	}
	b, err := a.connect(ctx, a.cfg, a.log())
	if err != nil {
		return nil, err
	}
	if b.Close == nil {
		b.Close = func() {}
	}
	return b, nil
}

func (a *app) database() (*sql.DB, error) {
	open := a.openDB
	if open == nil {
		open = openDatabase
	}
	return open(a.cfg, a.log())
}

func openDatabase(cfg *config.AppConfig, logger *slog.Logger) (*sql.DB, error) {
	db, err := bootstrap.ConnectDB(bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, Logger: logger})
	if err != nil {
		return nil, fmt.Errorf("connect db: %w", err)
	}
	if db == nil {
		return nil, errors.New("audit log database is disabled; set DB_ENABLED=true")
	}
	return db, nil
}

// connectBackend wires the same stores and services the server uses.
func connectBackend(ctx context.Context, cfg *config.AppConfig, logger *slog.Logger) (*backend, error) {
	dbCfg := bootstrap.DatabaseConfig{DBConfig: cfg.Postgres, RedisConfig: cfg.Redis, Logger: logger}
	client, err := bootstrap.ConnectRedis(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	db, err := bootstrap.ConnectDB(dbCfg)
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect db: %w", err)
	}
	closeAll := func() {
		if db != nil {
			_ = db.Close()
		}
		_ = client.Close()
	}

	identity, err := bootstrap.BuildIdentityProvider(ctx, bootstrap.IdentityConfig{
		Auth:        cfg.Auth,
		RedisClient: client,
		Logger:      logger,
	})
	if err != nil {
		closeAll()
		return nil, err
	}
	services, err := bootstrap.NewServices(&bootstrap.ServiceDeps{
		Config:      cfg,
		DB:          db,
		RedisClient: client,
		Identity:    identity,
		Logger:      logger,
	})
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("build services: %w", err)
	}

	b := &backend{Roles: services.Roles, Admin: services.Bootstrap, Close: closeAll}
	if local, ok := identity.(*localidp.Provider); ok {
		b.Local = local
	}
	return b, nil
}

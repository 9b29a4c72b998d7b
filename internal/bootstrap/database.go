package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // registers the pgx database/sql driver
	"github.com/redis/go-redis/v9"

	"github.com/target/cqrs-monitor/config"
	"github.com/target/cqrs-monitor/internal/migrate"
)

const defaultConnectTimeout = 5 * time.Second

// DatabaseConfig contains configuration for the Redis session store and the
// optional Postgres audit log.
type DatabaseConfig struct {
	DBConfig    config.DBConfig
	RedisConfig config.RedisConfig
	Logger      *slog.Logger
}

// ConnectDB opens the Postgres audit database. It returns nil without error
// when the audit log is disabled.
func ConnectDB(cfg DatabaseConfig) (*sql.DB, error) {
	if !cfg.DBConfig.Enabled {
		return nil, nil
	}

	db, err := sql.Open("pgx", postgresDSN(cfg.DBConfig))
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// The audit log sees a handful of writes per role change.
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := verifyConnection(defaultConnectTimeout, db.PingContext, db.Close); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("audit database connected",
			"host", cfg.DBConfig.Host,
			"port", cfg.DBConfig.Port,
			"database", cfg.DBConfig.Name,
		)
	}
	return db, nil
}

// postgresDSN builds the DSN with url.URL so special characters in
// credentials are escaped.
func postgresDSN(c config.DBConfig) string {
	u := &url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.User, c.Password),
		Host:   net.JoinHostPort(c.Host, strconv.Itoa(c.Port)),
		Path:   "/" + c.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnectRedis builds the Redis client shared by sessions, the admin-exists
// flag, and the local identity store, and pings it once.
//
//nolint:ireturn // single, sentinel, and cluster clients share redis.UniversalClient.
func ConnectRedis(cfg DatabaseConfig) (redis.UniversalClient, error) {
	target, err := resolveRedisTarget(cfg.RedisConfig)
	if err != nil {
		return nil, err
	}

	client := redis.NewUniversalClient(target.opts)
	ping := func(ctx context.Context) error { return client.Ping(ctx).Err() }
	if err := verifyConnection(cfg.RedisConfig.ConnectTimeout, ping, client.Close); err != nil {
		return nil, fmt.Errorf("ping redis %s: %w", target.mode, err)
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("redis connected",
			"mode", target.mode,
			"addrs", strings.Join(target.opts.Addrs, ","),
			"db", target.opts.DB,
		)
	}
	return client, nil
}

// redisTarget is a resolved Redis deployment. Addrs never carry credentials
// so they are safe to log.
type redisTarget struct {
	mode string
	opts *redis.UniversalOptions
}

func resolveRedisTarget(cfg config.RedisConfig) (redisTarget, error) {
	base, err := parseRedisURI(cfg)
	if err != nil {
		return redisTarget{}, err
	}

	switch {
	case cfg.UseCluster:
		if cfg.DB != 0 {
			return redisTarget{}, fmt.Errorf("redis cluster only supports db 0, got %d", cfg.DB)
		}
		addrs := trimAll(cfg.ClusterNodes)
		if len(addrs) == 0 && base.Addr != "" {
			addrs = []string{base.Addr}
		}
		if len(addrs) == 0 {
			return redisTarget{}, errors.New("redis cluster mode requires REDIS_CLUSTER_NODES or REDIS_URI")
		}
		opts := universalFrom(base)
		opts.Addrs = addrs
		opts.IsClusterMode = true
		return redisTarget{mode: "cluster", opts: opts}, nil

	case cfg.UseSentinel:
		nodes := trimAll(cfg.SentinelNodes)
		if len(nodes) == 0 {
			return redisTarget{}, errors.New("redis sentinel mode requires REDIS_SENTINEL_NODES")
		}
		if strings.TrimSpace(cfg.SentinelMasterName) == "" {
			return redisTarget{}, errors.New("redis sentinel mode requires REDIS_SENTINEL_MASTER_NAME")
		}
		opts := universalFrom(base)
		opts.Addrs = nodes
		opts.MasterName = cfg.SentinelMasterName
		opts.SentinelPassword = cfg.SentinelPassword
		return redisTarget{mode: "sentinel", opts: opts}, nil

	default:
		if base.Addr == "" {
			return redisTarget{}, errors.New("redis requires REDIS_URI")
		}
		opts := universalFrom(base)
		opts.Addrs = []string{base.Addr}
		return redisTarget{mode: "direct", opts: opts}, nil
	}
}

// parseRedisURI reads REDIS_URI as a redis:// URL or a bare host:port.
// Explicit REDIS_PASSWORD and a non-zero REDIS_DB take precedence over the
// URL.
func parseRedisURI(cfg config.RedisConfig) (*redis.Options, error) {
	uri := strings.TrimSpace(cfg.URI)
	opt := &redis.Options{Addr: uri}
	if strings.HasPrefix(uri, "redis://") || strings.HasPrefix(uri, "rediss://") {
		parsed, err := redis.ParseURL(uri)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		opt = parsed
	}
	if cfg.Password != "" {
		opt.Password = cfg.Password
	}
	if cfg.DB != 0 {
		opt.DB = cfg.DB
	}
	return opt, nil
}

func universalFrom(o *redis.Options) *redis.UniversalOptions {
	return &redis.UniversalOptions{
		Username:  o.Username,
		Password:  o.Password,
		DB:        o.DB,
		TLSConfig: o.TLSConfig,
	}
}

func trimAll(raw []string) []string {
	out := make([]string, 0, len(raw))
	for _, s := range raw {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// verifyConnection pings within timeout and closes the handle when the ping
// fails.
func verifyConnection(timeout time.Duration, ping func(context.Context) error, closeFn func() error) error {
	if timeout <= 0 {
		timeout = defaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	err := ping(ctx)
	if err == nil {
		return nil
	}
	if closeErr := closeFn(); closeErr != nil {
		err = errors.Join(err, fmt.Errorf("close: %w", closeErr))
	}
	return err
}

// RunMigrations applies the audit log schema. A nil db is a no-op.
func RunMigrations(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	if db == nil {
		return nil
	}
	applied, err := migrate.Run(ctx, db, logger)
	if err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	if logger != nil {
		logger.InfoContext(ctx, "database migrations completed", "applied", len(applied))
	}
	return nil
}

package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/target/cqrs-monitor/config"
	httpx "github.com/target/cqrs-monitor/internal/http"
)

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config      *config.AppConfig
	Services    ServiceContainer
	DB          *sql.DB
	RedisClient redis.UniversalClient
	Logger      *slog.Logger
}

// StartHTTPServer creates and starts the HTTP server.
// Returns the server instance for graceful shutdown.
func StartHTTPServer(cfg *HTTPServerConfig) *http.Server {
	if cfg == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}

	if appCfg.HTTP.CompressionEnabled {
		logger.Info("HTTP compression enabled", "level", appCfg.HTTP.CompressionLevel)
	}
	handler := httpx.NewRouter(buildRouterServices(cfg, logger))

	// Logs "starting HTTP server" internally
	return startServer(logger, handler, appCfg.HTTP.Addr)
}

func buildRouterServices(cfg *HTTPServerConfig, logger *slog.Logger) httpx.RouterServices {
	appCfg := cfg.Config
	if appCfg == nil {
		appCfg = &config.AppConfig{}
	}
	svc := cfg.Services

	rs := httpx.RouterServices{
		Sessions:  svc.Auth,
		Bootstrap: svc.Bootstrap,
		Roles:     svc.Roles,
		Views:     svc.Views,
		GraphQL: httpx.GraphQLProxyConfig{
			Endpoint:    appCfg.Upstream.Endpoint,
			Timeout:     appCfg.Upstream.Timeout,
			ForwardAuth: appCfg.Upstream.ForwardAuth,
		},
		Env:            BuildEnvReport(appCfg, cfg.DB != nil),
		Metrics:        svc.Observability.Metrics,
		MetricsPath:    appCfg.Observability.Metrics.Path,
		Readiness:      readinessChecks(cfg.DB, cfg.RedisClient),
		CookieDomain:   appCfg.HTTP.SessionCookieDomain(),
		AllowedOrigins: appCfg.HTTP.AllowedOrigins,
		RateLimit: httpx.RateLimitConfig{
			RequestsPerSecond: appCfg.HTTP.RateLimitRPS,
			Burst:             appCfg.HTTP.RateLimitBurst,
		},
		Logger: logger,
	}
	if appCfg.HTTP.CompressionEnabled {
		rs.Compression = &httpx.CompressionConfig{Level: appCfg.HTTP.CompressionLevel, Logger: logger}
	}
	return rs
}

// BuildEnvReport summarises the configuration for the check-env and
// debug-env endpoints. Secrets are reduced to presence flags.
func BuildEnvReport(cfg *config.AppConfig, auditEnabled bool) httpx.EnvReport {
	if cfg == nil {
		return httpx.EnvReport{}
	}
	return httpx.EnvReport{
		Environment:         string(cfg.Env),
		IsProduction:        cfg.IsProduction(),
		IdentityMode:        string(cfg.Auth.Mode),
		FirebaseProjectID:   cfg.Auth.Firebase.ProjectID != "",
		FirebaseCredentials: cfg.Auth.Firebase.CredentialsFile != "",
		InitialAdminEmail:   cfg.Auth.InitialAdminEmail,
		GraphQLEndpoint:     cfg.Upstream.Endpoint,
		AuditLogEnabled:     auditEnabled,
		Services:            strings.Join(GetEnabledServices(cfg), ","),
		Problems:            append(cfg.Auth.Problems(cfg.Env), cfg.HTTP.Problems()...),
	}
}

// readinessChecks pings the stores the HTTP service cannot work without.
// The upstream is left out; views report its failures inline.
func readinessChecks(db *sql.DB, client redis.UniversalClient) map[string]httpx.HealthCheck {
	checks := map[string]httpx.HealthCheck{}
	if client != nil {
		checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}
	if db != nil {
		checks["postgres"] = db.PingContext
	}
	return checks
}

func startServer(logger *slog.Logger, handler http.Handler, addr string) *http.Server {
	// Guard against empty addr to avoid listening on Go default
	if addr == "" {
		addr = ":8080"
	}

	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		// Stream handlers set their own write deadlines after the upgrade.
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		logger.Info("starting HTTP server", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("HTTP server failed", "error", err)
		}
	}()

	return server
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Timeout time.Duration
	Logger  *slog.Logger
}

// ShutdownHTTPServer gracefully shuts down the HTTP server.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("shutting down HTTP server")
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}
	shutdownCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := cfg.Server.Shutdown(shutdownCtx); err != nil {
		return err
	}

	if cfg.Logger != nil {
		cfg.Logger.Info("HTTP server stopped")
	}

	return nil
}

package bootstrap

import (
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/target/cqrs-monitor/config"
	graphqladapter "github.com/target/cqrs-monitor/internal/adapters/graphql"
	redisadapter "github.com/target/cqrs-monitor/internal/adapters/redis"
	"github.com/target/cqrs-monitor/internal/data"
	"github.com/target/cqrs-monitor/internal/observability/metrics"
	"github.com/target/cqrs-monitor/internal/observability/notify/slack"
	"github.com/target/cqrs-monitor/internal/ports"
	"github.com/target/cqrs-monitor/internal/service"
)

// ServiceContainer holds all application services.
type ServiceContainer struct {
	Identity      ports.IdentityProvider
	Upstream      ports.GraphQLClient
	Auth          *service.AuthService
	Bootstrap     *service.BootstrapService
	Roles         *service.RoleService
	Changes       *service.RoleChangeRecorder
	Views         *service.ViewService
	Observability ObservabilityContainer
}

// ObservabilityContainer groups shared observability dependencies.
type ObservabilityContainer struct {
	Metrics        *metrics.Recorder
	MetricsConfig  config.ObservabilityMetricsConfig
	Notifier       ports.RoleChangeNotifier
	NotifierConfig config.ObservabilityNotificationsConfig
}

// ServiceDeps groups dependencies for service initialization.
type ServiceDeps struct {
	Config      *config.AppConfig
	DB          *sql.DB // nil when the audit log is disabled
	RedisClient redis.UniversalClient
	Identity    ports.IdentityProvider
	// Upstream overrides the GraphQL client built from config. Tests pass a mock.
	Upstream ports.GraphQLClient
	Logger   *slog.Logger
}

// serviceRepositories groups the stores backing service ports.
type serviceRepositories struct {
	Sessions ports.SessionStore
	Flag     ports.AdminFlag
	Audit    ports.AuditLog
}

// buildObservability configures metrics and the role-change notifier.
func buildObservability(logger *slog.Logger, cfg config.ObservabilityConfig) ObservabilityContainer {
	obs := ObservabilityContainer{
		MetricsConfig:  cfg.Metrics,
		NotifierConfig: cfg.Notifications,
	}
	if cfg.Metrics.IsEnabled() {
		obs.Metrics = metrics.NewRecorder()
	}
	if n := buildRoleChangeNotifier(logger, cfg.Notifications); n != nil {
		obs.Notifier = n
	}
	return obs
}

// buildRoleChangeNotifier returns nil unless Slack notifications are fully configured.
func buildRoleChangeNotifier(logger *slog.Logger, cfg config.ObservabilityNotificationsConfig) *slack.Client {
	if !cfg.Enabled || !cfg.Slack.Enabled {
		return nil
	}
	client, err := slack.NewClient(slack.Config{
		WebhookURL: cfg.Slack.WebhookURL,
		Channel:    cfg.Slack.Channel,
		Username:   cfg.Slack.Username,
		Timeout:    cfg.Timeout,
		RetryLimit: 2,
	})
	if err != nil {
		logger.Error("failed to initialise slack notifier", "error", err)
		return nil
	}
	logger.Info("role change notifications enabled", "sink", "slack", "channel", cfg.Slack.Channel)
	return client
}

// buildRepositories builds the stores backing service ports; no business rules here.
func buildRepositories(cfg *config.AppConfig, db *sql.DB, client redis.UniversalClient) serviceRepositories {
	repos := serviceRepositories{
		Sessions: redisadapter.NewSessionStoreWithPrefix(client, cfg.Auth.SessionPrefix),
		Flag:     redisadapter.NewAdminFlag(client, ""),
	}
	if db != nil {
		repos.Audit = data.NewAuditRepo(db)
	}
	return repos
}

func viewOptions(f config.FeedsConfig) service.ViewOptions {
	return service.ViewOptions{
		PollInterval:      f.PollInterval,
		SlowPollInterval:  f.SlowPollInterval,
		PubSubInterval:    f.PubSubInterval,
		EventWindow:       f.EventWindow,
		SagaWindow:        f.SagaWindow,
		PubSubWindow:      f.PubSubWindow,
		SystemEventWindow: f.SystemEventWindow,
		HistoryPoints:     f.HistoryPoints,
		PubSubTopic:       f.PubSubTopic,
		SyntheticMetrics:  f.SyntheticMetrics,
	}
}

//nolint:ireturn // callers only need the port.
func buildUpstream(cfg config.UpstreamConfig, logger *slog.Logger) (ports.GraphQLClient, error) {
	client, err := graphqladapter.NewClient(graphqladapter.Config{
		Endpoint:   cfg.Endpoint,
		WSEndpoint: cfg.WSEndpoint,
		Timeout:    cfg.Timeout,
		Logger:     logger,
	})
	if err != nil {
		return nil, fmt.Errorf("graphql upstream: %w", err)
	}
	return client, nil
}

// NewServices wires the domain services on top of the connected stores.
func NewServices(deps *ServiceDeps) (ServiceContainer, error) {
	if deps == nil || deps.Config == nil {
		return ServiceContainer{}, errors.New("service deps with config are required")
	}
	if deps.RedisClient == nil {
		return ServiceContainer{}, errors.New("redis client is required for sessions")
	}
	if deps.Identity == nil {
		return ServiceContainer{}, errors.New("identity provider is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cfg := deps.Config

	obs := buildObservability(logger, cfg.Observability)
	repos := buildRepositories(cfg, deps.DB, deps.RedisClient)

	upstream := deps.Upstream
	if upstream == nil {
		var err error
		if upstream, err = buildUpstream(cfg.Upstream, logger); err != nil {
			return ServiceContainer{}, err
		}
	}

	changes := service.NewRoleChangeRecorder(service.RoleChangeRecorderOptions{
		Audit:         repos.Audit,
		Notifier:      obs.Notifier,
		Logger:        logger,
		NotifyTimeout: cfg.Observability.Notifications.Timeout,
	})

	views, err := service.NewViewService(service.ViewServiceOptions{
		Client:  upstream,
		Options: viewOptions(cfg.Feeds),
		Logger:  logger,
		Metrics: obs.Metrics,
	})
	if err != nil {
		return ServiceContainer{}, fmt.Errorf("build view service: %w", err)
	}

	return ServiceContainer{
		Identity: deps.Identity,
		Upstream: upstream,
		Auth: service.NewAuthService(service.AuthServiceOptions{
			Provider:   deps.Identity,
			Sessions:   repos.Sessions,
			SessionTTL: cfg.Auth.SessionTTL,
			Logger:     logger,
			Metrics:    obs.Metrics,
		}),
		Bootstrap: service.NewBootstrapService(service.BootstrapServiceOptions{
			Provider:          deps.Identity,
			Flag:              repos.Flag,
			Sessions:          repos.Sessions,
			Changes:           changes,
			Production:        cfg.IsProduction(),
			InitialAdminEmail: cfg.Auth.InitialAdminEmail,
			Logger:            logger,
			Metrics:           obs.Metrics,
		}),
		Roles: service.NewRoleService(service.RoleServiceOptions{
			Provider: deps.Identity,
			Sessions: repos.Sessions,
			Flag:     repos.Flag,
			Changes:  changes,
			Logger:   logger,
			Metrics:  obs.Metrics,
		}),
		Changes:       changes,
		Views:         views,
		Observability: obs,
	}, nil
}

package config

import "time"

// DBConfig contains PostgreSQL configuration for the role-change audit log.
type DBConfig struct {
	// Enabled turns on the Postgres-backed audit log. When false, role changes
	// are only logged.
	Enabled  bool   `env:"ENABLED"  envDefault:"false"`
	Host     string `env:"HOST"     envDefault:"localhost"`
	Port     int    `env:"PORT"     envDefault:"5432"`
	User     string `env:"USER"     envDefault:"cqrs_monitor"`
	Password string `env:"PASSWORD" envDefault:"cqrs_monitor"`
	Name     string `env:"NAME"     envDefault:"cqrs_monitor"`
	SSLMode  string `env:"SSL_MODE" envDefault:"disable"` // Use 'disable' for local dev, 'require' for production
	// RunMigrationsOnStart controls whether the application automatically applies migrations during startup.
	RunMigrationsOnStart bool `env:"RUN_MIGRATIONS_ON_START" envDefault:"true"`
}

// RedisConfig contains Redis configuration for sessions, the admin-exists
// flag, and the local identity store.
type RedisConfig struct {
	// URI is either a redis:// or rediss:// URL or a bare host:port.
	URI      string `env:"URI"      envDefault:"localhost:6379"`
	Password string `env:"PASSWORD" envDefault:""`
	// DB selects the logical database. Cluster mode only supports 0.
	DB                 int           `env:"DB"                   envDefault:"0"`
	ConnectTimeout     time.Duration `env:"CONNECT_TIMEOUT"      envDefault:"5s"`
	SentinelNodes      []string      `env:"SENTINEL_NODES"       envDefault:"localhost:26379"`
	SentinelMasterName string        `env:"SENTINEL_MASTER_NAME" envDefault:"mymaster"`
	SentinelPassword   string        `env:"SENTINEL_PASSWORD"    envDefault:""`
	UseSentinel        bool          `env:"USE_SENTINEL"         envDefault:"false"`
	ClusterNodes       []string      `env:"CLUSTER_NODES"        envDefault:""`
	UseCluster         bool          `env:"USE_CLUSTER"          envDefault:"false"`
}

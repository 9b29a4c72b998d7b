package testutil

import (
	"context"
	"database/sql"
	"net"
	"net/url"
	"time"

	// Import pgx driver for database/sql compatibility in tests.
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/target/cqrs-monitor/internal/migrate"
)

// TestDBConfig holds configuration for test database.
type TestDBConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
}

// DefaultTestDBConfig returns default test database configuration.
// Defaults to port 55432 (local test DB from the docker-compose test profile).
// CI environments should set TEST_DB_PORT=5432 explicitly.
func DefaultTestDBConfig() TestDBConfig {
	return TestDBConfig{
		Host:     getEnvOrDefault("TEST_DB_HOST", "localhost"),
		Port:     getEnvOrDefault("TEST_DB_PORT", "55432"),
		User:     getEnvOrDefault("TEST_DB_USER", "cqrs_monitor"),
		Password: getEnvOrDefault("TEST_DB_PASSWORD", "cqrs_monitor"),
		DBName:   getEnvOrDefault("TEST_DB_NAME", "cqrs_monitor"),
	}
}

// DSN renders the config as a postgres URL.
func (c TestDBConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(c.User, c.Password),
		Host:     net.JoinHostPort(c.Host, c.Port),
		Path:     "/" + c.DBName,
		RawQuery: "sslmode=disable",
	}
	return u.String()
}

// SetupTestDB opens the test database, applies migrations and clears the
// audit table. The test is skipped when the database is unreachable unless
// TEST_REQUIRE_DB is set.
func SetupTestDB(t TestingTB) *sql.DB {
	t.Helper()

	db, err := sql.Open("pgx", DefaultTestDBConfig().DSN())
	if err != nil {
		t.Fatal("Failed to open database:", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if pingErr := db.PingContext(ctx); pingErr != nil {
		_ = db.Close()
		if requireDB() {
			t.Fatal("Test database not available:", pingErr)
		}
		t.Skip("Test database not available:", pingErr)
	}

	if _, migrateErr := migrate.Run(ctx, db, nil); migrateErr != nil {
		t.Fatal("Failed to run migrations:", migrateErr)
	}

	if _, err := db.ExecContext(ctx, "DELETE FROM role_changes"); err != nil {
		t.Fatalf("Failed to clean up table role_changes: %v", err)
	}

	if tc, ok := any(t).(interface{ Cleanup(func()) }); ok {
		tc.Cleanup(func() {
			if cerr := db.Close(); cerr != nil {
				t.Logf("test db close failed: %v", cerr)
			}
		})
	}
	return db
}

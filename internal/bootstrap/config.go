package bootstrap

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"slices"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"

	"github.com/target/cqrs-monitor/config"
)

// logLevel backs the default logger so the level can follow config once it is loaded.
var logLevel = new(slog.LevelVar)

// InitLogger initializes the structured logger.
func InitLogger() *slog.Logger {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)
	return logger
}

// SetLogLevel adjusts the level of loggers created by InitLogger.
func SetLogLevel(level slog.Level) {
	logLevel.Set(level)
}

// LoadConfig loads configuration from environment variables.
func LoadConfig() (config.AppConfig, error) {
	// Load .env file if it exists (development)
	if err := godotenv.Load(); err != nil {
		var pathErr *os.PathError
		if !errors.As(err, &pathErr) {
			return config.AppConfig{}, fmt.Errorf("load .env file: %w", err)
		}
	}

	var cfg config.AppConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	cfg.Sanitize()
	return cfg, nil
}

// ValidateServiceConfig validates that at least one service is enabled.
func ValidateServiceConfig(cfg *config.AppConfig) error {
	if cfg == nil {
		return errors.New("service config is required")
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		return fmt.Errorf("invalid service configuration: %w", err)
	}

	if len(services) == 0 {
		return errors.New("no services enabled")
	}

	return nil
}

// GetEnabledServices returns the enabled service names in a stable order.
func GetEnabledServices(cfg *config.AppConfig) []string {
	if cfg == nil {
		return []string{}
	}
	services, err := cfg.GetEnabledServices()
	if err != nil {
		// Return empty list on error - validation will catch this
		return []string{}
	}

	enabled := make([]string, 0, len(services))
	for _, mode := range config.ValidServiceModes() {
		if services[mode] {
			enabled = append(enabled, string(mode))
		}
	}
	return slices.Clip(enabled)
}

// ConfigWarnings lists combinations that start fine but leave the dashboard
// without data or without the checks it relies on.
func ConfigWarnings(cfg *config.AppConfig) []string {
	if cfg == nil {
		return nil
	}
	warnings := append(cfg.Auth.Problems(cfg.Env), cfg.HTTP.Problems()...)
	if cfg.IsHTTPServerEnabled() && !cfg.IsPollerEnabled() && !cfg.IsSubscriberEnabled() {
		warnings = append(warnings, "http runs without poller or subscriber; views will stay empty")
	}
	if !cfg.IsHTTPServerEnabled() {
		warnings = append(warnings, "views are kept in process memory; poller and subscriber only serve an http service in the same process")
	}
	return warnings
}

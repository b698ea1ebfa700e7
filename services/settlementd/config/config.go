package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for settlementd.
type Config struct {
	ListenAddress   string          `yaml:"listen"`
	Environment     string          `yaml:"environment"`
	SettlementPath  string          `yaml:"settlement_config"`
	Database        DatabaseConfig  `yaml:"database"`
	IdempotencyPath string          `yaml:"idempotency_database"`
	Auth            AuthConfig      `yaml:"auth"`
	RateLimit       RateLimitConfig `yaml:"rate_limit"`
	Telemetry       TelemetryConfig `yaml:"telemetry"`
	Logging         LoggingConfig   `yaml:"logging"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout"`
}

// DatabaseConfig selects the gorm backend for the oracle registry and event
// archive.
type DatabaseConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

// AuthConfig configures bearer token verification. Auth is on unless enabled
// is explicitly false.
type AuthConfig struct {
	Enabled    *bool    `yaml:"enabled"`
	HMACSecret string   `yaml:"hmac_secret"`
	SecretEnv  string   `yaml:"hmac_secret_env"`
	Issuer     string   `yaml:"issuer"`
	Audience   string   `yaml:"audience"`
	ClockSkew  Duration `yaml:"clock_skew"`
}

// IsEnabled reports whether bearer tokens are required.
func (a AuthConfig) IsEnabled() bool {
	return a.Enabled == nil || *a.Enabled
}

// RateLimitConfig bounds request rates per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// TelemetryConfig configures OTLP export.
type TelemetryConfig struct {
	Endpoint    string  `yaml:"endpoint"`
	Insecure    bool    `yaml:"insecure"`
	Traces      bool    `yaml:"traces"`
	Metrics     bool    `yaml:"metrics"`
	SampleRatio float64 `yaml:"sample_ratio"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	File       string `yaml:"file"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads the YAML configuration file from disk.
func Load(path string) (Config, error) {
	var cfg Config
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("decode config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8090"
	}
	if strings.TrimSpace(c.SettlementPath) == "" {
		c.SettlementPath = "settlement.toml"
	}
	if strings.TrimSpace(c.Database.Driver) == "" {
		c.Database.Driver = DriverSQLite
	}
	if strings.TrimSpace(c.Database.DSN) == "" && c.Database.Driver == DriverSQLite {
		c.Database.DSN = "settlementd.db"
	}
	if strings.TrimSpace(c.IdempotencyPath) == "" {
		c.IdempotencyPath = "settlementd-idempotency.db"
	}
	if c.RateLimit.RequestsPerMinute <= 0 {
		c.RateLimit.RequestsPerMinute = 600
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 50
	}
	if c.Auth.Enabled == nil {
		enabled := true
		c.Auth.Enabled = &enabled
	}
	if c.Auth.ClockSkew.Duration <= 0 {
		c.Auth.ClockSkew = Duration{Duration: 2 * time.Minute}
	}
	if c.ShutdownTimeout.Duration <= 0 {
		c.ShutdownTimeout = Duration{Duration: 10 * time.Second}
	}
	if strings.TrimSpace(c.Auth.SecretEnv) != "" && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		c.Auth.HMACSecret = strings.TrimSpace(os.Getenv(c.Auth.SecretEnv))
	}
}

// Validate ensures the configuration is usable.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case DriverPostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return fmt.Errorf("database.dsn required for postgres")
		}
	case DriverSQLite:
	default:
		return fmt.Errorf("database.driver: unsupported %q", c.Database.Driver)
	}
	if c.Auth.IsEnabled() && len(strings.TrimSpace(c.Auth.HMACSecret)) < 16 {
		return fmt.Errorf("auth.hmac_secret must be at least 16 characters when auth is enabled")
	}
	if c.Telemetry.SampleRatio < 0 || c.Telemetry.SampleRatio > 1 {
		return fmt.Errorf("telemetry.sample_ratio must be within [0,1]")
	}
	return nil
}

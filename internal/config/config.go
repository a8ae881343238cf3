package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "BULKDASH_"

// Config is the main configuration structure
type Config struct {
	Server     ServerConfig     `yaml:"server" envPrefix:"SERVER_"`
	Metrics    MetricsConfig    `yaml:"metrics" envPrefix:"METRICS_"`
	Backend    BackendConfig    `yaml:"backend" envPrefix:"BACKEND_"`
	Dashboard  DashboardConfig  `yaml:"dashboard" envPrefix:"DASHBOARD_"`
	Compliance ComplianceConfig `yaml:"compliance" envPrefix:"COMPLIANCE_"`
	Storage    StorageConfig    `yaml:"storage" envPrefix:"STORAGE_"`
	Logging    LoggingConfig    `yaml:"logging" envPrefix:"LOGGING_"`
}

// ServerConfig contains dashboard HTTP server settings
type ServerConfig struct {
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR"` // Default: :8088
	ReadTimeout     time.Duration `yaml:"read_timeout" env:"READ_TIMEOUT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled         bool          `yaml:"enabled" env:"ENABLED"`
	ListenAddr      string        `yaml:"listen_addr" env:"LISTEN_ADDR"` // Default: 127.0.0.1:9091
	Path            string        `yaml:"path" env:"PATH"`               // Default: /metrics
	CollectInterval time.Duration `yaml:"collect_interval" env:"COLLECT_INTERVAL"`
	AllowedIPs      []string      `yaml:"allowed_ips" env:"ALLOWED_IPS" envSeparator:","` // IP addresses/CIDRs allowed to scrape
}

// BackendConfig points at the campaign backend
type BackendConfig struct {
	URL               string        `yaml:"url" env:"URL"`
	Timeout           time.Duration `yaml:"timeout" env:"TIMEOUT"`
	RequestsPerSecond float64       `yaml:"requests_per_second" env:"REQUESTS_PER_SECOND"` // 0 = unthrottled
	Burst             int           `yaml:"burst" env:"BURST"`
	// APIKey is the messaging provider key sent with campaign starts when
	// the operator does not supply one
	APIKey string `yaml:"api_key" env:"API_KEY"`
}

// DashboardConfig contains view settings
type DashboardConfig struct {
	PollInterval time.Duration `yaml:"poll_interval" env:"POLL_INTERVAL"`
	PageSize     int           `yaml:"page_size" env:"PAGE_SIZE"`
}

// ComplianceConfig contains the footer settings
type ComplianceConfig struct {
	Brand string `yaml:"brand" env:"BRAND"`
}

// StorageConfig contains local storage settings
type StorageConfig struct {
	AuditPath      string        `yaml:"audit_path" env:"AUDIT_PATH"`
	AuditRetention time.Duration `yaml:"audit_retention" env:"AUDIT_RETENTION"` // 0 = keep forever
	ExportDir      string        `yaml:"export_dir" env:"EXPORT_DIR"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" env:"LEVEL"`   // debug, info, warn, error
	Format     string `yaml:"format" env:"FORMAT"` // json, text
	File       string `yaml:"file" env:"FILE"`     // empty = stderr
	MaxSizeMB  int    `yaml:"max_size_mb" env:"MAX_SIZE_MB"`
	MaxBackups int    `yaml:"max_backups" env:"MAX_BACKUPS"`
	MaxAgeDays int    `yaml:"max_age_days" env:"MAX_AGE_DAYS"`
	Compress   bool   `yaml:"compress" env:"COMPRESS"`
}

// Load reads the YAML file at path, applies BULKDASH_* environment
// overrides, then defaults. An empty path uses defaults and the
// environment only.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := env.ParseWithOptions(cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("failed to parse environment: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadDotEnv loads variables from .env files into the process environment.
// Missing files are skipped; variables already set are kept.
func LoadDotEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", f, err)
		}
	}
	return nil
}

func (c *Config) setDefaults() {
	if c.Server.ListenAddr == "" {
		c.Server.ListenAddr = ":8088"
	}
	if c.Server.ReadTimeout == 0 {
		c.Server.ReadTimeout = 15 * time.Second
	}
	if c.Server.ShutdownTimeout == 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}

	if c.Metrics.ListenAddr == "" {
		c.Metrics.ListenAddr = "127.0.0.1:9091"
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Metrics.CollectInterval == 0 {
		c.Metrics.CollectInterval = 15 * time.Second
	}

	if c.Backend.URL == "" {
		c.Backend.URL = "http://localhost:5000"
	}
	c.Backend.URL = strings.TrimRight(c.Backend.URL, "/")
	if c.Backend.Timeout == 0 {
		c.Backend.Timeout = 30 * time.Second
	}
	if c.Backend.RequestsPerSecond > 0 && c.Backend.Burst == 0 {
		c.Backend.Burst = 5
	}

	if c.Dashboard.PollInterval == 0 {
		c.Dashboard.PollInterval = 5 * time.Second
	}
	if c.Dashboard.PageSize == 0 {
		c.Dashboard.PageSize = 20
	}

	if c.Storage.AuditPath == "" {
		c.Storage.AuditPath = "/var/lib/bulkdash/audit.db"
	}
	if c.Storage.ExportDir == "" {
		c.Storage.ExportDir = "."
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
	if c.Logging.File != "" {
		if c.Logging.MaxSizeMB == 0 {
			c.Logging.MaxSizeMB = 100
		}
		if c.Logging.MaxBackups == 0 {
			c.Logging.MaxBackups = 5
		}
		if c.Logging.MaxAgeDays == 0 {
			c.Logging.MaxAgeDays = 30
		}
	}
}

// Validate checks the configuration for errors
func (c *Config) Validate() error {
	u, err := url.Parse(c.Backend.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("backend.url must be an http(s) URL, got %q", c.Backend.URL)
	}
	if c.Backend.Timeout < 0 {
		return fmt.Errorf("backend.timeout must not be negative")
	}
	if c.Backend.RequestsPerSecond < 0 {
		return fmt.Errorf("backend.requests_per_second must not be negative")
	}
	if c.Backend.Burst < 0 {
		return fmt.Errorf("backend.burst must not be negative")
	}

	if c.Dashboard.PollInterval < time.Second {
		return fmt.Errorf("dashboard.poll_interval must be at least 1s")
	}
	if c.Dashboard.PageSize < 1 || c.Dashboard.PageSize > 100 {
		return fmt.Errorf("dashboard.page_size must be between 1 and 100")
	}

	if c.Storage.AuditRetention < 0 {
		return fmt.Errorf("storage.audit_retention must not be negative")
	}

	if _, err := ParseLevel(c.Logging.Level); err != nil {
		return err
	}
	switch c.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", c.Logging.Format)
	}
	return nil
}

// ParseLevel converts a logging.level value
func ParseLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info", "":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("logging.level must be debug, info, warn or error, got %q", level)
	}
}

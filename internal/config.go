package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

type Config struct {
	Server        ServerConfig        `mapstructure:"http_server"`
	Backend       BackendConfig       `mapstructure:"backend"`
	Cache         CacheConfig         `mapstructure:"cache"`
	Validator     ValidatorConfig     `mapstructure:"validator"`
	Database      DatabaseConfig      `mapstructure:"database"`
	Observability ObservabilityConfig `mapstructure:"observability"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port"`
	BaseURL           string        `mapstructure:"base_url"`
	AllowedOrigins    string        `mapstructure:"allowed_origins"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout"`
}

// BackendConfig points at the authoritative workload backend. The client
// here is advisory only; that backend re-validates every mutation.
type BackendConfig struct {
	BaseURL        string        `mapstructure:"base_url" validate:"required,url"`
	APIKey         string        `mapstructure:"api_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	ReadRetries    int           `mapstructure:"read_retries"`
}

// CacheConfig bounds how stale a snapshot or analytics rollup may get
// before the next read goes back to the backend. Mutations invalidate
// proactively, these windows only cover external changes.
type CacheConfig struct {
	SnapshotTTL time.Duration `mapstructure:"snapshot_ttl"`
	RollupTTL   time.Duration `mapstructure:"rollup_ttl"`
	MaxEntries  int           `mapstructure:"max_entries"`
}

// ValidatorConfig carries the severity thresholds. Defaults mirror the
// backend rules: warn above 80, hard cap at 100.
type ValidatorConfig struct {
	WarningThreshold decimal.Decimal `mapstructure:"warning_threshold"`
	HardCap          decimal.Decimal `mapstructure:"hard_cap"`
}

// DatabaseConfig is used only by the reference backend stub.
type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	Source          string        `mapstructure:"source"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type ObservabilityConfig struct {
	Logging LoggingConfig `mapstructure:"logging"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=json text"`
}

// ----------------- DEFAULTS -----------------

func (c *Config) ApplyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Backend.RequestTimeout <= 0 {
		c.Backend.RequestTimeout = 10 * time.Second
	}
	if c.Backend.ReadRetries <= 0 {
		c.Backend.ReadRetries = 2
	}
	if c.Cache.SnapshotTTL <= 0 {
		c.Cache.SnapshotTTL = 30 * time.Second
	}
	if c.Cache.RollupTTL <= 0 {
		c.Cache.RollupTTL = time.Minute
	}
	if c.Cache.MaxEntries <= 0 {
		c.Cache.MaxEntries = 2048
	}
	if c.Validator.WarningThreshold.IsZero() {
		c.Validator.WarningThreshold = decimal.NewFromInt(80)
	}
	if c.Validator.HardCap.IsZero() {
		c.Validator.HardCap = decimal.NewFromInt(100)
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "sqlite"
	}
	if c.Database.Source == "" {
		c.Database.Source = "workload.db"
	}
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Backend.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("backend config: %v", err))
	}
	if err := c.Validator.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("validator config: %v", err))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		for _, origin := range strings.Split(c.AllowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout > 0 && c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *BackendConfig) Validate() error {
	if c.BaseURL == "" {
		return errors.New("base_url is required")
	}
	if _, err := url.ParseRequestURI(c.BaseURL); err != nil {
		return fmt.Errorf("invalid base_url: %w", err)
	}
	return nil
}

func (c *ValidatorConfig) Validate() error {
	if c.WarningThreshold.IsNegative() || c.HardCap.IsNegative() {
		return errors.New("thresholds must be non-negative")
	}
	if c.WarningThreshold.GreaterThan(c.HardCap) {
		return errors.New("warning_threshold cannot exceed hard_cap")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	switch c.Driver {
	case "", "sqlite", "postgres":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Driver)
	}
	if c.MaxIdleConns > c.MaxOpenConns && c.MaxOpenConns > 0 {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

// ----------------- ENV LOADING -----------------

// LoadConfigFromEnv builds a Config purely from environment variables,
// used for container deployments where no config file is mounted.
func LoadConfigFromEnv() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Port:           getEnvAsInt("HTTP_PORT", 8080),
			BaseURL:        getEnv("HTTP_BASE_URL", ""),
			AllowedOrigins: getEnv("HTTP_ALLOWED_ORIGINS", "*"),
		},
		Backend: BackendConfig{
			BaseURL:        getEnv("BACKEND_BASE_URL", ""),
			APIKey:         getEnv("BACKEND_API_KEY", ""),
			RequestTimeout: getEnvAsDuration("BACKEND_REQUEST_TIMEOUT", 10*time.Second),
			ReadRetries:    getEnvAsInt("BACKEND_READ_RETRIES", 2),
		},
		Cache: CacheConfig{
			SnapshotTTL: getEnvAsDuration("CACHE_SNAPSHOT_TTL", 30*time.Second),
			RollupTTL:   getEnvAsDuration("CACHE_ROLLUP_TTL", time.Minute),
		},
		Database: DatabaseConfig{
			Driver: getEnv("DATABASE_DRIVER", "sqlite"),
			Source: getEnv("DATABASE_SOURCE", "workload.db"),
		},
		Observability: ObservabilityConfig{
			Logging: LoggingConfig{
				Level:  getEnv("LOG_LEVEL", "info"),
				Format: getEnv("LOG_FORMAT", "json"),
			},
		},
	}
	cfg.ApplyDefaults()
	return cfg
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultVal
}

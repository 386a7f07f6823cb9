package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/xraph/herald"
)

// Config holds the daemon configuration. Values load from an optional YAML
// file first, then HERALD_* environment variables override them.
type Config struct {
	// Herald embeds the engine configuration.
	Herald heraldConfig `yaml:"herald"`

	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Store   StoreConfig   `yaml:"store"`
	Auth    AuthConfig    `yaml:"auth"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// heraldConfig mirrors herald.Config with YAML tags.
type heraldConfig struct {
	Concurrency      int           `yaml:"concurrency"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	DisableThreshold int           `yaml:"disable_threshold"`
	ShutdownTimeout  time.Duration `yaml:"shutdown_timeout"`
	RecordAttempts   bool          `yaml:"record_attempts"`
	RateLimiting     bool          `yaml:"rate_limiting"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr         string        `yaml:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json or text
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Type          string `yaml:"type"` // memory or redis
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
}

// AuthConfig selects how API callers are identified.
type AuthConfig struct {
	Mode      string `yaml:"mode"` // jwt or header
	JWTSecret string `yaml:"jwt_secret"`
	JWTIssuer string `yaml:"jwt_issuer"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	hc := herald.DefaultConfig()
	return Config{
		Herald: heraldConfig{
			Concurrency:      hc.Concurrency,
			RequestTimeout:   hc.RequestTimeout,
			DisableThreshold: hc.DisableThreshold,
			ShutdownTimeout:  hc.ShutdownTimeout,
			RecordAttempts:   hc.RecordAttempts,
			RateLimiting:     hc.RateLimiting,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		Store: StoreConfig{
			Type:      "memory",
			RedisAddr: "localhost:6379",
		},
		Auth: AuthConfig{
			Mode: "jwt",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

// LoadConfig reads path (when non-empty), applies environment overrides and
// validates the result.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Server.Addr = getEnv("HERALD_ADDR", c.Server.Addr)
	c.Server.ReadTimeout = getEnvDuration("HERALD_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("HERALD_WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Log.Level = getEnv("HERALD_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("HERALD_LOG_FORMAT", c.Log.Format)

	c.Store.Type = getEnv("HERALD_STORE", c.Store.Type)
	c.Store.RedisAddr = getEnv("HERALD_REDIS_ADDR", c.Store.RedisAddr)
	c.Store.RedisPassword = getEnv("HERALD_REDIS_PASSWORD", c.Store.RedisPassword)
	c.Store.RedisDB = getEnvInt("HERALD_REDIS_DB", c.Store.RedisDB)

	c.Auth.Mode = getEnv("HERALD_AUTH_MODE", c.Auth.Mode)
	c.Auth.JWTSecret = getEnv("HERALD_JWT_SECRET", c.Auth.JWTSecret)
	c.Auth.JWTIssuer = getEnv("HERALD_JWT_ISSUER", c.Auth.JWTIssuer)

	c.Metrics.Enabled = getEnvBool("HERALD_METRICS_ENABLED", c.Metrics.Enabled)

	c.Herald.Concurrency = getEnvInt("HERALD_CONCURRENCY", c.Herald.Concurrency)
	c.Herald.RequestTimeout = getEnvDuration("HERALD_REQUEST_TIMEOUT", c.Herald.RequestTimeout)
	c.Herald.DisableThreshold = getEnvInt("HERALD_DISABLE_THRESHOLD", c.Herald.DisableThreshold)
	c.Herald.ShutdownTimeout = getEnvDuration("HERALD_SHUTDOWN_TIMEOUT", c.Herald.ShutdownTimeout)
	c.Herald.RecordAttempts = getEnvBool("HERALD_RECORD_ATTEMPTS", c.Herald.RecordAttempts)
	c.Herald.RateLimiting = getEnvBool("HERALD_RATE_LIMITING", c.Herald.RateLimiting)
}

// Validate checks if the configuration is usable.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server addr is required")
	}

	switch c.Store.Type {
	case "memory":
	case "redis":
		if c.Store.RedisAddr == "" {
			return errors.New("redis addr is required for the redis store")
		}
	default:
		return fmt.Errorf("unknown store type %q", c.Store.Type)
	}

	switch c.Auth.Mode {
	case "jwt":
		if c.Auth.JWTSecret == "" {
			return errors.New("jwt secret is required when auth mode is jwt")
		}
	case "header":
	default:
		return fmt.Errorf("unknown auth mode %q", c.Auth.Mode)
	}

	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ToHeraldOptions converts the engine settings into herald.Option values.
func (c Config) ToHeraldOptions() []herald.Option {
	opts := []herald.Option{
		herald.WithAttemptLog(c.Herald.RecordAttempts),
		herald.WithRateLimiting(c.Herald.RateLimiting),
	}

	if c.Herald.Concurrency > 0 {
		opts = append(opts, herald.WithConcurrency(c.Herald.Concurrency))
	}
	if c.Herald.RequestTimeout > 0 {
		opts = append(opts, herald.WithRequestTimeout(c.Herald.RequestTimeout))
	}
	if c.Herald.DisableThreshold > 0 {
		opts = append(opts, herald.WithDisableThreshold(c.Herald.DisableThreshold))
	}
	if c.Herald.ShutdownTimeout > 0 {
		opts = append(opts, herald.WithShutdownTimeout(c.Herald.ShutdownTimeout))
	}

	return opts
}

func parseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log level %q", s)
	}
	return level, nil
}

// getEnv returns an environment variable or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the Leadtrack application.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Log       LogConfig
	Metrics   MetricsConfig
	Tracking  TrackingConfig
	Analytics AnalyticsConfig
}

type ServerConfig struct {
	Addr            string
	Env             string
	ShutdownTimeout time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// DSN returns the PostgreSQL connection string.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode,
	)
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AuthConfig struct {
	Enabled   bool
	MasterKey string
	SkipPaths []string
}

type RateLimitConfig struct {
	Enabled       bool
	PostbackRPS   float64
	PostbackBurst int
	APIRPS        float64
	APIBurst      int
}

type LogConfig struct {
	Level  string
	Format string
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool
	Path    string
}

// TrackingConfig configures the postback reconciliation engine.
type TrackingConfig struct {
	// Timezone is the IANA name of the timezone leads are attributed in.
	Timezone string
}

// Location resolves the configured timezone, falling back to UTC.
func (t TrackingConfig) Location() *time.Location {
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AnalyticsConfig configures third-party visit ingestion (Clarity / GA4).
type AnalyticsConfig struct {
	ClarityToken      string
	ClarityNumOfDays  int
	GAPropertyID      string
	GAAccessToken     string
	DailyRequestLimit int
	RequestTimeout    time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Addr:            getEnv("LEADTRACK_HTTP_ADDR", ":8080"),
			Env:             getEnv("LEADTRACK_ENV", "development"),
			ShutdownTimeout: getDurationEnv("LEADTRACK_SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Database: DatabaseConfig{
			Host:     getEnv("LEADTRACK_DB_HOST", "localhost"),
			Port:     getIntEnv("LEADTRACK_DB_PORT", 5432),
			User:     getEnv("LEADTRACK_DB_USER", "leadtrack"),
			Password: getEnv("LEADTRACK_DB_PASSWORD", "leadtrack_secret"),
			DBName:   getEnv("LEADTRACK_DB_NAME", "leadtrack"),
			SSLMode:  getEnv("LEADTRACK_DB_SSLMODE", "disable"),
			MaxConns: getIntEnv("LEADTRACK_DB_MAX_CONNS", 25),
			MinConns: getIntEnv("LEADTRACK_DB_MIN_CONNS", 5),
		},
		Redis: RedisConfig{
			Addr:     getEnv("LEADTRACK_REDIS_ADDR", "localhost:6379"),
			Password: getEnv("LEADTRACK_REDIS_PASSWORD", ""),
			DB:       getIntEnv("LEADTRACK_REDIS_DB", 0),
		},
		Auth: AuthConfig{
			Enabled:   getBoolEnv("LEADTRACK_AUTH_ENABLED", false),
			MasterKey: getEnv("LEADTRACK_API_KEY_MASTER", ""),
			SkipPaths: getSliceEnv("LEADTRACK_AUTH_SKIP_PATHS", []string{"/health", "/metrics", "/postback"}),
		},
		RateLimit: RateLimitConfig{
			Enabled:       getBoolEnv("LEADTRACK_RATE_LIMIT_ENABLED", true),
			PostbackRPS:   getFloatEnv("LEADTRACK_RATE_LIMIT_POSTBACK_RPS", 1000),
			PostbackBurst: getIntEnv("LEADTRACK_RATE_LIMIT_POSTBACK_BURST", 100),
			APIRPS:        getFloatEnv("LEADTRACK_RATE_LIMIT_API_RPS", 100),
			APIBurst:      getIntEnv("LEADTRACK_RATE_LIMIT_API_BURST", 20),
		},
		Log: LogConfig{
			Level:  getEnv("LEADTRACK_LOG_LEVEL", "info"),
			Format: getEnv("LEADTRACK_LOG_FORMAT", "json"),
		},
		Metrics: MetricsConfig{
			Enabled: getBoolEnv("LEADTRACK_METRICS_ENABLED", true),
			Path:    getEnv("LEADTRACK_METRICS_PATH", "/metrics"),
		},
		Tracking: TrackingConfig{
			Timezone: getEnv("LEADTRACK_TIMEZONE", "America/Sao_Paulo"),
		},
		Analytics: AnalyticsConfig{
			ClarityToken:      getEnv("LEADTRACK_CLARITY_TOKEN", ""),
			ClarityNumOfDays:  getIntEnv("LEADTRACK_CLARITY_NUM_DAYS", 1),
			GAPropertyID:      getEnv("LEADTRACK_GA_PROPERTY_ID", ""),
			GAAccessToken:     getEnv("LEADTRACK_GA_ACCESS_TOKEN", ""),
			DailyRequestLimit: getIntEnv("LEADTRACK_ANALYTICS_DAILY_LIMIT", 10),
			RequestTimeout:    getDurationEnv("LEADTRACK_ANALYTICS_TIMEOUT", 15*time.Second),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.Auth.Enabled && c.Auth.MasterKey == "" {
		return fmt.Errorf("LEADTRACK_API_KEY_MASTER is required when auth is enabled")
	}
	if _, err := time.LoadLocation(c.Tracking.Timezone); err != nil {
		return fmt.Errorf("invalid LEADTRACK_TIMEZONE %q: %w", c.Tracking.Timezone, err)
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Server.Env == "development"
}

// IsProduction returns true if running in production mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}

// Helper functions for reading environment variables

func getEnv(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getIntEnv(key string, def int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return def
}

func getFloatEnv(key string, def float64) float64 {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func getBoolEnv(key string, def bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func getDurationEnv(key string, def time.Duration) time.Duration {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}

func getSliceEnv(key string, def []string) []string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				result = append(result, p)
			}
		}
		return result
	}
	return def
}

package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

// Config holds all configuration for the application.
type Config struct {
	Server   ServerConfig
	DB       DBConfig
	Log      LogConfig
	Backend  BackendConfig
	Discount DiscountConfig
	Session  SessionConfig
	Region   RegionConfig
}

// ServerConfig holds server-related configuration.
type ServerConfig struct {
	Port            string `envconfig:"SERVER_PORT" default:"3000"`
	ShutdownTimeout int    `envconfig:"SHUTDOWN_TIMEOUT" default:"30"` // seconds
}

// DBConfig holds database-related configuration.
// WARNING: Default password is for local development only.
// In production, always set DB_PASSWORD via environment variable.
// In production, set DB_SSLMODE to "require" or "verify-full".
type DBConfig struct {
	Host     string `envconfig:"DB_HOST" default:"localhost"`
	Port     int    `envconfig:"DB_PORT" default:"5432"`
	User     string `envconfig:"DB_USER" default:"postgres"`
	Password string `envconfig:"DB_PASSWORD" default:"postgres"` // CHANGE IN PRODUCTION
	Name     string `envconfig:"DB_NAME" default:"storefront_db"`
	SSLMode  string `envconfig:"DB_SSLMODE" default:"disable"` // Use "require" in production
	MaxConns int    `envconfig:"DB_MAX_CONNS" default:"25"`
	MinConns int    `envconfig:"DB_MIN_CONNS" default:"5"`
}

// DSN returns the PostgreSQL connection string.
func (c DBConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s&pool_max_conns=%d&pool_min_conns=%d",
		c.User, c.Password, c.Host, c.Port, c.Name, c.SSLMode, c.MaxConns, c.MinConns)
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `envconfig:"LOG_LEVEL" default:"info"`
	Pretty bool   `envconfig:"LOG_PRETTY" default:"false"`
}

// Backend modes.
const (
	BackendPostgres = "postgres"
	BackendHTTP     = "http"
)

// BackendConfig selects and configures the commerce backend.
type BackendConfig struct {
	Mode           string `envconfig:"BACKEND_MODE" default:"postgres"`
	URL            string `envconfig:"BACKEND_URL" default:"http://localhost:9000"`
	PublishableKey string `envconfig:"BACKEND_PUBLISHABLE_KEY"`
	Timeout        int    `envconfig:"BACKEND_TIMEOUT" default:"10"` // seconds
	MaxRetries     uint64 `envconfig:"BACKEND_MAX_RETRIES" default:"2"`
}

// RequestTimeout returns the per-call backend timeout.
func (c BackendConfig) RequestTimeout() time.Duration {
	return time.Duration(c.Timeout) * time.Second
}

// DiscountConfig holds reconciliation and notification settings.
type DiscountConfig struct {
	ReplaceThreshold     string `envconfig:"DISCOUNT_REPLACE_THRESHOLD" default:"2.00"`
	BannerDismissSeconds int    `envconfig:"DISCOUNT_BANNER_DISMISS_SECONDS" default:"7"`
	PendingMetadataKey   string `envconfig:"DISCOUNT_PENDING_METADATA_KEY" default:"pending_discount_code"`
}

// Threshold parses ReplaceThreshold.
func (c DiscountConfig) Threshold() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.ReplaceThreshold)
	if err != nil {
		return decimal.Zero, fmt.Errorf("DISCOUNT_REPLACE_THRESHOLD: %w", err)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("DISCOUNT_REPLACE_THRESHOLD: must not be negative, got %s", c.ReplaceThreshold)
	}
	return d, nil
}

// BannerAutoDismiss returns how long a success banner stays visible.
func (c DiscountConfig) BannerAutoDismiss() time.Duration {
	return time.Duration(c.BannerDismissSeconds) * time.Second
}

// SessionConfig controls the per-browser discount flow sessions.
type SessionConfig struct {
	Cookie      string `envconfig:"SESSION_COOKIE" default:"sf_session"`
	IdleMinutes int    `envconfig:"SESSION_IDLE_MINUTES" default:"30"`
	SweepSpec   string `envconfig:"SESSION_SWEEP_SPEC" default:"@every 5m"`
}

// IdleTimeout returns how long an untouched session is kept.
func (c SessionConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleMinutes) * time.Minute
}

// RegionConfig maps shopper countries to commerce regions.
type RegionConfig struct {
	Default       string            `envconfig:"REGION_DEFAULT" default:"reg_gb"`
	CountryMap    map[string]string `envconfig:"REGION_COUNTRY_MAP" default:"gb:reg_gb,ie:reg_eu,de:reg_eu,us:reg_us"`
	CountryHeader string            `envconfig:"REGION_COUNTRY_HEADER" default:"X-Country-Code"`
}

// Load parses environment variables into the Config struct.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

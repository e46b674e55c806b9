// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string `env:"PORT" envDefault:"8080"`
	Env       string `env:"ENV" envDefault:"development"` // "development", "staging", "production"
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT"` // "json" or "text"; empty picks by Env

	// Database
	DatabaseURL    string `env:"DATABASE_URL"` // PostgreSQL connection string (optional, uses in-memory if not set)
	DBMaxOpenConns int    `env:"DB_MAX_OPEN_CONNS" envDefault:"25"`
	DBMaxIdleConns int    `env:"DB_MAX_IDLE_CONNS" envDefault:"10"`

	// Security
	AdminSecret        string   `env:"ADMIN_SECRET"`
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envSeparator:","`
	RateLimitRPM       int      `env:"RATE_LIMIT_RPM" envDefault:"120"` // 0 disables rate limiting
	RateLimitBurst     int      `env:"RATE_LIMIT_BURST" envDefault:"20"`

	// Entitlements
	EnforcementMode    string `env:"ENFORCEMENT_MODE" envDefault:"soft"`
	CountFailurePolicy string `env:"COUNT_FAILURE_POLICY" envDefault:"permissive"`
	CapSource          string `env:"CAP_SOURCE" envDefault:"live"`
	PlanDeletePolicy   string `env:"PLAN_DELETE_POLICY" envDefault:"restrict"`
	SeedDefaultPlans   bool   `env:"SEED_DEFAULT_PLANS" envDefault:"true"`

	// Usage counting circuit breaker; a threshold of 0 disables it
	CountBreakerThreshold int           `env:"COUNT_BREAKER_THRESHOLD" envDefault:"5"`
	CountBreakerCooldown  time.Duration `env:"COUNT_BREAKER_COOLDOWN" envDefault:"30s"`

	// Background work
	AuditInterval time.Duration `env:"AUDIT_INTERVAL" envDefault:"5m"` // 0 disables the scheduled audit

	// Tracing
	OTLPEndpoint string `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks enumerated settings and bounds.
func (c *Config) Validate() error {
	if err := oneOf("ENFORCEMENT_MODE", c.EnforcementMode, "soft", "atomic"); err != nil {
		return err
	}
	if err := oneOf("COUNT_FAILURE_POLICY", c.CountFailurePolicy, "permissive", "strict"); err != nil {
		return err
	}
	if err := oneOf("CAP_SOURCE", c.CapSource, "live", "snapshot"); err != nil {
		return err
	}
	if err := oneOf("PLAN_DELETE_POLICY", c.PlanDeletePolicy, "restrict", "deprecate"); err != nil {
		return err
	}
	if c.LogFormat != "" {
		if err := oneOf("LOG_FORMAT", c.LogFormat, "json", "text"); err != nil {
			return err
		}
	}
	if c.AuditInterval < 0 {
		return fmt.Errorf("AUDIT_INTERVAL must not be negative")
	}
	if c.RateLimitRPM < 0 || c.RateLimitBurst < 0 {
		return fmt.Errorf("RATE_LIMIT_RPM and RATE_LIMIT_BURST must not be negative")
	}
	if c.CountBreakerThreshold < 0 || c.CountBreakerCooldown < 0 {
		return fmt.Errorf("COUNT_BREAKER_THRESHOLD and COUNT_BREAKER_COOLDOWN must not be negative")
	}
	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("DB_MAX_OPEN_CONNS must be at least 1")
	}
	if c.IsProduction() && c.AdminSecret == "" {
		return fmt.Errorf("ADMIN_SECRET is required in production")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("%s must be one of %v, got %q", key, allowed, value)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// JSONLogs reports whether logs should be written as JSON.
func (c *Config) JSONLogs() bool {
	if c.LogFormat != "" {
		return c.LogFormat == "json"
	}
	return c.IsProduction()
}

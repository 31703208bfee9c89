// Package config manages application configuration
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// ImpersonationPair forbids one admin from impersonating one specific user.
// Admins and users live in separate id spaces, so the pairing is explicit.
type ImpersonationPair struct {
	AdminID int64 `validate:"gt=0"`
	UserID  int64 `validate:"gt=0"`
}

// Config holds all application configuration
type Config struct {
	// Server settings
	Port        string `validate:"required,numeric"`
	Environment string `validate:"oneof=development staging production"`

	// Logging
	LogLevel  string `validate:"oneof=debug info warn error"`
	LogFormat string `validate:"oneof=text json"`

	// Database
	DatabaseURL string `validate:"required"`

	// Security
	SecretKey string `validate:"required,min=16"` // For session token signing

	// Session settings
	SessionDuration time.Duration `validate:"gt=0"`
	SessionCookie   string        `validate:"required"`

	// Login throttling, per client IP
	LoginRateLimit float64 `validate:"gt=0"`
	LoginBurst     int     `validate:"gt=0"`

	// Peers allowed to set X-Forwarded-For, as CIDRs or addresses
	TrustedProxies []string `validate:"dive,cidr|ip"`

	// Tracing; empty disables the exporter
	OTLPEndpoint string

	// Prometheus listener, separate from the admin surface; empty disables it
	MetricsAddr string `validate:"omitempty,hostname_port"`

	// Impersonation guard
	ForbiddenImpersonations []ImpersonationPair `validate:"dive"`
}

// Load reads configuration from the environment, after loading a .env file
// when one is present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	pairs, err := ParseImpersonationPairs(getEnv("BACKOFFICE_FORBIDDEN_IMPERSONATIONS", ""))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Port:                    getEnv("BACKOFFICE_PORT", "8080"),
		Environment:             getEnv("BACKOFFICE_ENV", "development"),
		LogLevel:                getEnv("BACKOFFICE_LOG_LEVEL", "info"),
		LogFormat:               getEnv("BACKOFFICE_LOG_FORMAT", "text"),
		DatabaseURL:             getEnv("BACKOFFICE_DATABASE_URL", "backoffice.db"),
		SecretKey:               getEnv("BACKOFFICE_SECRET_KEY", "dev-secret-key-change-in-production"),
		SessionDuration:         getDurationEnv("BACKOFFICE_SESSION_DURATION", 8*time.Hour),
		SessionCookie:           getEnv("BACKOFFICE_SESSION_COOKIE", "admin_session"),
		LoginRateLimit:          getFloatEnv("BACKOFFICE_LOGIN_RATE", 1),
		LoginBurst:              getIntEnv("BACKOFFICE_LOGIN_BURST", 5),
		TrustedProxies:          getListEnv("BACKOFFICE_TRUSTED_PROXIES"),
		OTLPEndpoint:            getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		MetricsAddr:             getEnv("BACKOFFICE_METRICS_ADDR", "127.0.0.1:9090"),
		ForbiddenImpersonations: pairs,
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and production-only requirements.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.IsProduction() && c.SecretKey == "dev-secret-key-change-in-production" {
		return fmt.Errorf("invalid configuration: BACKOFFICE_SECRET_KEY must be set in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Environment == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// ParseImpersonationPairs parses "adminID:userID" entries separated by commas.
func ParseImpersonationPairs(raw string) ([]ImpersonationPair, error) {
	var pairs []ImpersonationPair
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		adminPart, userPart, ok := strings.Cut(entry, ":")
		if !ok {
			return nil, fmt.Errorf("invalid impersonation pair %q: want adminID:userID", entry)
		}
		adminID, err := strconv.ParseInt(strings.TrimSpace(adminPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid admin id in pair %q: %w", entry, err)
		}
		userID, err := strconv.ParseInt(strings.TrimSpace(userPart), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid user id in pair %q: %w", entry, err)
		}
		pairs = append(pairs, ImpersonationPair{AdminID: adminID, UserID: userID})
	}
	return pairs, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getListEnv(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

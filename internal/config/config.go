// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Webhook ingest
	WebhookSecret string // shared secret for inbound HMAC verification
	RateLimitRPM  int    // per-IP requests per minute on the webhook route

	// Identity vault
	VaultPepper string // server-side secret mixed into identifier hashes

	// Scoring thresholds
	HighValueAmount   float64
	HighItemCount     int
	VelocityThreshold int
	EmailTLDDenylist  []string

	// Job runner
	WorkerCount    int
	JobMaxAttempts int
	JobBaseBackoff time.Duration
	JobTimeout     time.Duration

	// Store writeback
	AccessToken      string // admin API access token (optional; writeback disabled if empty)
	APIVersion       string
	WritebackTimeout time.Duration

	// Tracing
	OTLPEndpoint string
}

// Defaults
const (
	DefaultPort              = "8000"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultAPIVersion        = "2025-01"
	DefaultHighValueAmount   = 500.0
	DefaultHighItemCount     = 5
	DefaultVelocityThreshold = 3
	DefaultWorkerCount       = 4
	DefaultJobMaxAttempts    = 5
	DefaultRateLimit         = 120
)

// DefaultEmailTLDDenylist is the default suspicious email TLD list.
var DefaultEmailTLDDenylist = []string{".ru", ".cn"}

// Load reads configuration from environment variables
// It loads .env file if present (for local development)
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		WebhookSecret:     os.Getenv("WEBHOOK_SECRET"),
		RateLimitRPM:      getEnvInt("RATE_LIMIT_RPM", DefaultRateLimit),
		VaultPepper:       os.Getenv("VAULT_PEPPER"),
		HighValueAmount:   getEnvFloat("HIGH_VALUE_AMOUNT", DefaultHighValueAmount),
		HighItemCount:     getEnvInt("HIGH_ITEM_COUNT", DefaultHighItemCount),
		VelocityThreshold: getEnvInt("VELOCITY_THRESHOLD", DefaultVelocityThreshold),
		EmailTLDDenylist:  getEnvList("EMAIL_TLD_DENYLIST", DefaultEmailTLDDenylist),
		WorkerCount:       getEnvInt("WORKER_COUNT", DefaultWorkerCount),
		JobMaxAttempts:    getEnvInt("JOB_MAX_ATTEMPTS", DefaultJobMaxAttempts),
		JobBaseBackoff:    getEnvDuration("JOB_BASE_BACKOFF", 2*time.Second),
		JobTimeout:        getEnvDuration("JOB_TIMEOUT", 30*time.Second),
		AccessToken:       os.Getenv("ACCESS_TOKEN"),
		APIVersion:        getEnv("API_VERSION", DefaultAPIVersion),
		WritebackTimeout:  getEnvDuration("WRITEBACK_TIMEOUT", 8*time.Second),
		OTLPEndpoint:      os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.WebhookSecret == "" {
		return fmt.Errorf("WEBHOOK_SECRET is required")
	}
	if c.VaultPepper == "" {
		return fmt.Errorf("VAULT_PEPPER is required")
	}
	if len(c.VaultPepper) < 16 {
		return fmt.Errorf("VAULT_PEPPER must be at least 16 characters")
	}
	if c.WorkerCount < 1 {
		return fmt.Errorf("WORKER_COUNT must be at least 1")
	}
	if c.JobMaxAttempts < 1 {
		return fmt.Errorf("JOB_MAX_ATTEMPTS must be at least 1")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func setRequired(t *testing.T) {
	t.Helper()
	setEnv(t, "WEBHOOK_SECRET", "hush-hush-webhook-secret")
	setEnv(t, "VAULT_PEPPER", "0123456789abcdef0123456789abcdef")
}

func TestLoad_WithValidConfig(t *testing.T) {
	setRequired(t)
	setEnv(t, "PORT", "9090")
	setEnv(t, "HIGH_VALUE_AMOUNT", "750")
	setEnv(t, "JOB_BASE_BACKOFF", "5s")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 750.0, cfg.HighValueAmount)
	assert.Equal(t, 5*time.Second, cfg.JobBaseBackoff)
	assert.Equal(t, DefaultHighItemCount, cfg.HighItemCount)
	assert.Equal(t, DefaultVelocityThreshold, cfg.VelocityThreshold)
	assert.Equal(t, DefaultAPIVersion, cfg.APIVersion)
	assert.Equal(t, DefaultEmailTLDDenylist, cfg.EmailTLDDenylist)
}

func TestLoad_MissingWebhookSecret(t *testing.T) {
	setEnv(t, "WEBHOOK_SECRET", "")
	setEnv(t, "VAULT_PEPPER", "0123456789abcdef0123456789abcdef")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "WEBHOOK_SECRET is required")
}

func TestLoad_ShortPepper(t *testing.T) {
	setEnv(t, "WEBHOOK_SECRET", "hush")
	setEnv(t, "VAULT_PEPPER", "tooshort")

	_, err := Load()
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "at least 16 characters")
}

func TestLoad_DenylistParsing(t *testing.T) {
	setRequired(t)
	setEnv(t, "EMAIL_TLD_DENYLIST", ".ru, .cn , .tk")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, []string{".ru", ".cn", ".tk"}, cfg.EmailTLDDenylist)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"zero workers", func(c *Config) { c.WorkerCount = 0 }, "WORKER_COUNT"},
		{"zero attempts", func(c *Config) { c.JobMaxAttempts = 0 }, "JOB_MAX_ATTEMPTS"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{
				WebhookSecret:  "hush-hush-webhook-secret",
				VaultPepper:    "0123456789abcdef0123456789abcdef",
				WorkerCount:    2,
				JobMaxAttempts: 3,
			}
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestEnvHelpers(t *testing.T) {
	setEnv(t, "SOME_INT", "not-a-number")
	assert.Equal(t, 7, getEnvInt("SOME_INT", 7))

	setEnv(t, "SOME_FLOAT", "2.5")
	assert.Equal(t, 2.5, getEnvFloat("SOME_FLOAT", 0))

	setEnv(t, "SOME_DURATION", "90s")
	assert.Equal(t, 90*time.Second, getEnvDuration("SOME_DURATION", time.Second))
}

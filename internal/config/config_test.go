package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "unit-test-secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, "local", cfg.StorageType)
	assert.Equal(t, 2, cfg.WorkerCount)
	assert.Equal(t, 30*time.Minute, cfg.JWTAccessExpire)
	assert.Equal(t, 7*24*time.Hour, cfg.JWTRefreshExpire)
	assert.True(t, cfg.AutoTriggerReview)
	// Signing secret falls back to the JWT secret.
	assert.Equal(t, "unit-test-secret", cfg.SigningSecret)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("JWT_SECRET", "s")
	t.Setenv("STORAGE_TYPE", "memory")
	t.Setenv("WORKER_COUNT", "4")
	t.Setenv("SIGNED_URL_TTL_SECONDS", "60")
	t.Setenv("AUTO_TRIGGER_REVIEW", "off")
	t.Setenv("PARSE_DEDUP_WINDOW", "2")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.StorageType)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, time.Minute, cfg.SignedURLTTL)
	assert.False(t, cfg.AutoTriggerReview)
	// The dedup window is clamped to its floor.
	assert.Equal(t, 5, cfg.ParseDedupWindow)
}

func TestValidate(t *testing.T) {
	base := func() *Config {
		return &Config{StorageType: "local", JWTSecret: "s", WorkerCount: 1, AIConcurrency: 3}
	}

	require.NoError(t, base().Validate())

	c := base()
	c.JWTSecret = ""
	assert.Error(t, c.Validate())

	c = base()
	c.StorageType = "s3"
	assert.Error(t, c.Validate())

	c = base()
	c.WorkerCount = 0
	assert.Error(t, c.Validate())

	c = base()
	c.AIConcurrency = 9
	assert.Error(t, c.Validate())
}

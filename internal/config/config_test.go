package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "https://sandbox.itunes.apple.com/verifyReceipt", cfg.Verify.SandboxURL)
	assert.Equal(t, "https://buy.itunes.apple.com/verifyReceipt", cfg.Verify.ProductionURL)
	assert.Equal(t, 3, cfg.Verify.MaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.Verify.Timeout)
	assert.Equal(t, "latest", cfg.RestoreMode)
	assert.True(t, cfg.UseSandbox)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("VERIFY_MAX_ATTEMPTS", "5")
	t.Setenv("RESTORE_MODE", "each")
	t.Setenv("SHARED_SECRET", "abc")
	t.Setenv("RESPONSE_CACHE_TTL", "1m")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Verify.MaxAttempts)
	assert.Equal(t, "each", cfg.RestoreMode)
	assert.Equal(t, "abc", cfg.SharedSecret)
	assert.Equal(t, time.Minute, cfg.ResponseCacheTTL)
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	t.Run("attempts", func(t *testing.T) {
		t.Setenv("VERIFY_MAX_ATTEMPTS", "0")
		_, err := Load()
		assert.Error(t, err)
	})
	t.Run("restore mode", func(t *testing.T) {
		t.Setenv("RESTORE_MODE", "all")
		_, err := Load()
		assert.Error(t, err)
	})
}

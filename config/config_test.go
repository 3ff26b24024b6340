package config_test

import (
	"testing"
	"time"

	"github.com/marcelsud/webhook-outbox/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetConfig_Defaults(t *testing.T) {
	cfg, err := config.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "9090", cfg.MetricsPort)
	assert.Equal(t, "localhost:6379", cfg.RedisAddr)
	assert.Equal(t, 5, cfg.MaxRetryAttempts)
	assert.Equal(t, 10, cfg.ConsecutiveFailureThreshold)
	assert.Equal(t, 4, cfg.WorkerCount)
	assert.Equal(t, "60,300,1800,7200,86400", cfg.RetryDelays)
	assert.Equal(t, 30*time.Second, cfg.DispatchTimeout())
}

func TestGetConfig_EnvOverride(t *testing.T) {
	t.Setenv("PORT", "3000")
	t.Setenv("WORKER_COUNT", "8")
	t.Setenv("RETRY_DELAYS", "1,2,3")

	cfg, err := config.GetConfig()
	require.NoError(t, err)

	assert.Equal(t, "3000", cfg.Port)
	assert.Equal(t, 8, cfg.WorkerCount)
	assert.Equal(t, "1,2,3", cfg.RetryDelays)
}

func TestConfig_Validate(t *testing.T) {
	valid := config.Config{
		MaxRetryAttempts:            5,
		ConsecutiveFailureThreshold: 10,
		DefaultTimeoutSeconds:       30,
		WorkerCount:                 4,
	}
	require.NoError(t, valid.Validate())

	t.Run("retry attempts", func(t *testing.T) {
		cfg := valid
		cfg.MaxRetryAttempts = 0
		assert.ErrorContains(t, cfg.Validate(), "MAX_RETRY_ATTEMPTS")
	})

	t.Run("failure threshold", func(t *testing.T) {
		cfg := valid
		cfg.ConsecutiveFailureThreshold = 0
		assert.ErrorContains(t, cfg.Validate(), "CONSECUTIVE_FAILURE_THRESHOLD")
	})

	t.Run("timeout", func(t *testing.T) {
		cfg := valid
		cfg.DefaultTimeoutSeconds = -1
		assert.ErrorContains(t, cfg.Validate(), "DEFAULT_TIMEOUT_SECONDS")
	})

	t.Run("worker count", func(t *testing.T) {
		cfg := valid
		cfg.WorkerCount = 0
		assert.ErrorContains(t, cfg.Validate(), "WORKER_COUNT")
	})
}

package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	// Run from an empty directory so no config file is picked up
	originalDir, _ := os.Getwd()
	tmpDir := t.TempDir()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	// Server defaults
	assert.Equal(t, "0.0.0.0", cfg.Server.Host)
	assert.Equal(t, 8071, cfg.Server.Port)
	assert.Equal(t, 30*time.Second, cfg.Server.ReadTimeout)
	assert.Equal(t, 30*time.Second, cfg.Server.WriteTimeout)
	assert.Equal(t, 120*time.Second, cfg.Server.IdleTimeout)

	// Redis defaults
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, "", cfg.Redis.Password)
	assert.Equal(t, 0, cfg.Redis.DB)
	assert.Equal(t, 100, cfg.Redis.PoolSize)
	assert.Equal(t, 10, cfg.Redis.MinIdleConns)
	assert.Equal(t, 3, cfg.Redis.MaxRetries)

	// Dispatch defaults
	assert.Equal(t, "dispatch", cfg.Dispatch.StreamPrefix)
	assert.Equal(t, "dispatchers", cfg.Dispatch.ConsumerGroup)
	assert.Equal(t, DefaultRetrySchedule(), cfg.Dispatch.RetrySchedule)
	assert.Equal(t, 30*time.Second, cfg.Dispatch.DeliveryTimeout)
	assert.Equal(t, int64(1000000), cfg.Dispatch.MaxQueueSize)

	// Dispatcher defaults
	assert.Equal(t, "", cfg.Dispatcher.ID)
	assert.Equal(t, 10, cfg.Dispatcher.Concurrency)
	assert.Equal(t, 5*time.Second, cfg.Dispatcher.HeartbeatInterval)
	assert.Equal(t, 15*time.Second, cfg.Dispatcher.HeartbeatTimeout)
	assert.Equal(t, 30*time.Second, cfg.Dispatcher.ShutdownTimeout)

	// Metrics defaults
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)

	// Auth defaults
	assert.False(t, cfg.Auth.Enabled)
	assert.Equal(t, 24*time.Hour, cfg.Auth.DashboardTokenTTL)

	// Logging defaults
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_WithConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := tmpDir + "/config.yaml"

	configContent := `
server:
  host: "127.0.0.1"
  port: 9090

redis:
  addr: "custom-redis:6380"
  password: "secret"
  db: 1

dispatcher:
  id: "dispatcher-a"
  concurrency: 5

auth:
  enabled: true
  jwtsecret: "file-secret"

loglevel: "warn"
`
	err := os.WriteFile(configPath, []byte(configContent), 0644)
	require.NoError(t, err)

	originalDir, _ := os.Getwd()
	os.Chdir(tmpDir)
	defer os.Chdir(originalDir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "custom-redis:6380", cfg.Redis.Addr)
	assert.Equal(t, "secret", cfg.Redis.Password)
	assert.Equal(t, 1, cfg.Redis.DB)
	assert.Equal(t, "dispatcher-a", cfg.Dispatcher.ID)
	assert.Equal(t, 5, cfg.Dispatcher.Concurrency)
	assert.True(t, cfg.Auth.Enabled)
	assert.Equal(t, "file-secret", cfg.Auth.JWTSecret)
	assert.Equal(t, "warn", cfg.LogLevel)
}

func TestDefaultRetrySchedule(t *testing.T) {
	schedule := DefaultRetrySchedule()

	require.Len(t, schedule, 8)
	assert.Equal(t, 5*time.Second, schedule[0])
	assert.Equal(t, 10*time.Hour, schedule[len(schedule)-1])

	// Delays never shrink as attempts progress
	for i := 1; i < len(schedule); i++ {
		assert.GreaterOrEqual(t, schedule[i], schedule[i-1])
	}
}

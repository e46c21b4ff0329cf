package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	t.Setenv("GT8004_CONFIG", writeConfig(t, `
agent:
  agent_id: "agent-1"
  api_key: "sk_file"
`))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":3100", cfg.Server.Port)
	assert.Equal(t, "agent-1", cfg.Agent.AgentID)
	assert.Equal(t, "sk_file", cfg.Agent.APIKey)
	assert.Equal(t, 50, cfg.Agent.BatchSize)
	assert.Equal(t, 5000, cfg.Agent.FlushIntervalMs)
	assert.Equal(t, 3, cfg.Agent.MaxRetries)
	assert.Equal(t, 16384, cfg.Capture.MaxBodySize)
	assert.Equal(t, "X-Payment", cfg.Capture.PaymentHeader)
	assert.Equal(t, 30, cfg.Archive.RetentionDays)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout())
}

func TestZeroShutdownTimeoutUsesDefault(t *testing.T) {
	t.Setenv("GT8004_CONFIG", writeConfig(t, `
server:
  shutdown_timeout_sec: 0
agent:
  agent_id: "agent-1"
  api_key: "k"
`))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.Server.ShutdownTimeoutSec)
	assert.Equal(t, DefaultShutdownTimeout, cfg.Server.ShutdownTimeout())

	cfg.Server.ShutdownTimeoutSec = 3
	assert.Equal(t, 3*time.Second, cfg.Server.ShutdownTimeout())
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("GT8004_CONFIG", writeConfig(t, `
agent:
  agent_id: "agent-1"
  api_key: "sk_file"
  batch_size: 5
`))
	t.Setenv("GT8004_AGENT_API_KEY", "sk_env")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "sk_env", cfg.Agent.APIKey)
	assert.Equal(t, 5, cfg.Agent.BatchSize)
}

func TestLoadRejectsMissingCredentials(t *testing.T) {
	t.Setenv("GT8004_CONFIG", writeConfig(t, `
server:
  port: ":9000"
`))

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRequiresRedisAddressWhenEnabled(t *testing.T) {
	t.Setenv("GT8004_CONFIG", writeConfig(t, `
agent:
  agent_id: "agent-1"
  api_key: "k"
redis:
  enabled: true
`))

	_, err := Load()
	assert.Error(t, err)
}

func TestStoreGetReturnsCopyAndNotifies(t *testing.T) {
	store := NewStore(&Config{RateLimit: RateLimitConfig{RPS: 1}})

	got := store.Get()
	got.RateLimit.RPS = 99
	assert.Equal(t, 1.0, store.Get().RateLimit.RPS)

	var seen float64
	store.OnChange(func(c *Config) { seen = c.RateLimit.RPS })
	store.Update(&Config{RateLimit: RateLimitConfig{RPS: 7}})
	assert.Equal(t, 7.0, seen)
	assert.Equal(t, 7.0, store.Get().RateLimit.RPS)
}

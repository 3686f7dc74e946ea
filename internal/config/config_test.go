package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"messaging-client/internal/env"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultReconnectPolicy(t *testing.T) {
	cfg := Default()
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Reconnect.Heartbeat)
	assert.Equal(t, time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, 30*time.Second, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 1.5, cfg.Reconnect.Multiplier)
	assert.Equal(t, 90*time.Second, cfg.Reconnect.Heartbeat)
	assert.NoError(t, cfg.Validate())
}

func TestLoadYAMLWithEnvOverrides(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	doc := `
deployment:
  orgId: 00DSG000001NruH
  deploymentName: Web1
  messagingUrl: https://x.my.salesforce-scrt.com
reconnect:
  initialDelay: 2s
  maxDelay: 1m
  heartbeat: 45s
typing:
  timeout: 3s
storage:
  backend: redis
  redis:
    addr: localhost:6379
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	t.Setenv(env.DeploymentName, "Web2")
	t.Setenv(env.BridgeOrigins, "http://a.test, http://b.test")
	t.Setenv(env.RedisDB, "3")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "00DSG000001NruH", cfg.Deployment.OrgID)
	assert.Equal(t, "Web2", cfg.Deployment.DeploymentName)
	assert.Equal(t, 2*time.Second, cfg.Reconnect.InitialDelay)
	assert.Equal(t, time.Minute, cfg.Reconnect.MaxDelay)
	assert.Equal(t, 10, cfg.Reconnect.MaxAttempts)
	assert.Equal(t, 45*time.Second, cfg.Reconnect.Heartbeat)
	assert.Equal(t, 3*time.Second, cfg.Typing.Timeout)
	assert.Equal(t, 3, cfg.Storage.Redis.DB)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Bridge.AllowedOrigins)
}

func TestValidateRejectsBadValues(t *testing.T) {
	cfg := Default()
	cfg.Reconnect.Multiplier = 0.5
	cfg.Storage.Backend = "tape"
	cfg.Reconnect.Heartbeat = -time.Second
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "multiplier")
	assert.Contains(t, err.Error(), "heartbeat")
	assert.Contains(t, err.Error(), "tape")
}

func TestLoadRejectsBadEnv(t *testing.T) {
	t.Setenv(env.StrictDetails, "maybe")
	_, err := Load("")
	require.Error(t, err)
}

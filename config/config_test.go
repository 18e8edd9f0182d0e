package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_LoadParsesSections(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
server:
  port: "9090"
automation:
  max_concurrency: 5
  session_retry_interval: 500ms
  dispatch_per_minute: 12
  timeouts:
    check: 45s
    post: bogus
retry:
  initial_delay: 1s
  max_delay: 10s
  max_attempts: 4
scheduler:
  poll_interval: 15s
accounts:
  - username: brand_main
    proxy: http://10.0.0.5:3128
  - username: brand_alt
    is_active: false
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, 5, cfg.MaxConcurrency)
	assert.Equal(t, 500*time.Millisecond, cfg.SessionRetryInterval)
	assert.Equal(t, 12, cfg.DispatchPerMinute)
	assert.Equal(t, 45*time.Second, cfg.CheckTimeout)
	assert.Equal(t, 5*time.Minute, cfg.PostTimeout, "malformed duration falls back to default")
	assert.Equal(t, time.Second, cfg.RetryInitialDelay)
	assert.Equal(t, 10*time.Second, cfg.RetryMaxDelay)
	assert.Equal(t, 4, cfg.RetryMaxAttempts)
	assert.Equal(t, 15*time.Second, cfg.PollInterval)
	require.Len(t, cfg.BootstrapAccounts, 2)
	assert.Equal(t, "http://10.0.0.5:3128", cfg.BootstrapAccounts[0].Proxy)
	require.NotNil(t, cfg.BootstrapAccounts[1].IsActive)
	assert.False(t, *cfg.BootstrapAccounts[1].IsActive)
}

func TestManager_LoadCreatesDefaultFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	cfg, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.MaxConcurrency)
	assert.Equal(t, 3, cfg.RetryMaxAttempts)
	assert.Equal(t, 30*time.Second, cfg.PollInterval)

	_, err = os.Stat(path)
	require.NoError(t, err)

	reloaded, err := NewManager(path).Load()
	require.NoError(t, err)
	assert.Equal(t, cfg.PostTimeout, reloaded.PostTimeout)
	assert.Equal(t, cfg.HealthCheckSchedule, reloaded.HealthCheckSchedule)
}

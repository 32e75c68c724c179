package common

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 8000, cfg.Server.Port)
	assert.Equal(t, "rabbitmq", cfg.Broker.Host)
	assert.Equal(t, "management", cfg.Broker.Mode)
	assert.Equal(t, "default", cfg.Orchestrator.Namespace)
	assert.Equal(t, 3, cfg.Scaler.MaxJobs)
	assert.Equal(t, 6, cfg.Scaler.IdleThreshold)
	assert.Equal(t, 5, cfg.Scaler.BurstCap)
	assert.Equal(t, 5*time.Second, cfg.Scaler.PollDuration())
	assert.Equal(t, 2*time.Second, cfg.Broker.ProbeTimeout())
}

func TestLoadFromFiles_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "armada.toml")
	content := `
[server]
port = 9100

[broker]
host = "mq.internal"
mode = "amqp"

[scaler]
max_jobs = 8
poll_interval = "1s"
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := LoadFromFiles(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, cfg.Server.Port)
	assert.Equal(t, "mq.internal", cfg.Broker.Host)
	assert.Equal(t, "amqp", cfg.Broker.Mode)
	assert.Equal(t, 8, cfg.Scaler.MaxJobs)
	assert.Equal(t, time.Second, cfg.Scaler.PollDuration())

	// Untouched sections keep defaults.
	assert.Equal(t, "guest", cfg.Broker.Username)
	assert.Equal(t, 6, cfg.Scaler.IdleThreshold)
}

func TestLoadFromFiles_EnvOverridesFile(t *testing.T) {
	t.Setenv("BROKER_HOST", "mq-env")
	t.Setenv("NAMESPACE", "workers")
	t.Setenv("MAX_JOBS", "11")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)

	assert.Equal(t, "mq-env", cfg.Broker.Host)
	assert.Equal(t, "workers", cfg.Orchestrator.Namespace)
	assert.Equal(t, 11, cfg.Scaler.MaxJobs)
}

func TestLoadFromFiles_InvalidMaxJobsIgnored(t *testing.T) {
	t.Setenv("MAX_JOBS", "not-a-number")

	cfg, err := LoadFromFiles()
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Scaler.MaxJobs)
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := NewDefaultConfig()

	ApplyFlagOverrides(cfg, 9999, "127.0.0.1")
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)

	// Zero values leave config untouched.
	ApplyFlagOverrides(cfg, 0, "")
	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, "127.0.0.1", cfg.Server.Host)
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	return path
}

const validConfig = `
application:
  log_level: debug
  log_format: json
  database_path: /tmp/trix.db
  listen_addr: ":9090"
  max_concurrency: 8
  action_timeout: 10s
  default_retry:
    max_retries: 2
    delay: 0.5
    backoff_factor: 2.0
poller:
  interval: 30s
  grace_window: 10s
  batch_size: 50
sinks:
  notify_url: https://chat.example.test/hook
`

func TestLoadConfig_Valid(t *testing.T) {
	path := writeConfig(t, validConfig)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.Application.LogLevel)
	assert.Equal(t, "json", cfg.Application.LogFormat)
	assert.Equal(t, "/tmp/trix.db", cfg.Application.DatabasePath)
	assert.Equal(t, ":9090", cfg.Application.ListenAddr)
	assert.Equal(t, 8, cfg.Application.MaxConcurrency)
	assert.Equal(t, 10*time.Second, cfg.Application.ActionTimeout.Duration)
	require.NotNil(t, cfg.Application.DefaultRetry.MaxRetries)
	assert.Equal(t, 2, *cfg.Application.DefaultRetry.MaxRetries)
	assert.Equal(t, 30*time.Second, cfg.Poller.Interval.Duration)
	assert.Equal(t, 50, cfg.Poller.BatchSize)
	assert.Equal(t, "https://chat.example.test/hook", cfg.Sinks.NotifyURL)
}

func TestLoadConfig_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, `
application:
  database_path: /tmp/trix.db
`)

	cfg, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Application.ListenAddr)
	assert.Equal(t, 4, cfg.Application.MaxConcurrency)
	assert.Equal(t, 1000, cfg.Application.QueueCapacity)
	assert.Equal(t, 30*time.Second, cfg.Application.ActionTimeout.Duration)
	assert.Equal(t, time.Minute, cfg.Poller.Interval.Duration)
	assert.Equal(t, 30*time.Second, cfg.Poller.GraceWindow.Duration)
	assert.Equal(t, 100, cfg.Poller.BatchSize)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	path := writeConfig(t, validConfig)

	t.Setenv("TRIX_DB_PATH", "/var/lib/trix/override.db")
	t.Setenv("TRIX_LOG_LEVEL", "warn")
	t.Setenv("TRIX_NOTIFY_URL", "https://other.example.test/hook")

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/trix/override.db", cfg.Application.DatabasePath)
	assert.Equal(t, "warn", cfg.Application.LogLevel)
	assert.Equal(t, "https://other.example.test/hook", cfg.Sinks.NotifyURL)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "application: [not a mapping")
	_, err := LoadConfig(path)
	require.Error(t, err)
}

func TestLoadConfig_ValidationFailures(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{
			name: "missing database path",
			content: `
application:
  log_level: info
`,
		},
		{
			name: "bad log level",
			content: `
application:
  log_level: verbose
  database_path: /tmp/trix.db
`,
		},
		{
			name: "bad log format",
			content: `
application:
  log_format: xml
  database_path: /tmp/trix.db
`,
		},
		{
			name: "backoff below one",
			content: `
application:
  database_path: /tmp/trix.db
  default_retry:
    backoff_factor: 0.5
`,
		},
		{
			name: "negative concurrency",
			content: `
application:
  database_path: /tmp/trix.db
  max_concurrency: -2
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.content)
			_, err := LoadConfig(path)
			require.Error(t, err)
		})
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/steveyegge/medic/internal/control"
	"github.com/steveyegge/medic/internal/reconnect"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "sqlite", cfg.Storage.Backend)
	assert.Equal(t, 90, cfg.Retention.RetentionDays)
	assert.Equal(t, control.DefaultSocketPath, cfg.Capture.Socket)
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default().AI.Model, cfg.AI.Model)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 256, cfg.Capture.QueueSize)
	assert.Equal(t, []string{"docker", "start"}, cfg.Engine.RestartCommand)
	assert.Equal(t, 5432, cfg.Storage.Postgres.Port)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MEDIC_RETENTION_DAYS", "30")
	t.Setenv("MEDIC_STORAGE_BACKEND", "memory")
	t.Setenv("MEDIC_AI_MODEL", "claude-haiku-4-5")
	t.Setenv("MEDIC_AI_ENABLED", "false")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 30, cfg.Retention.RetentionDays)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "claude-haiku-4-5", cfg.AI.Model)
	assert.False(t, cfg.AI.Enabled)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medic.yaml")
	content := `
storage:
  backend: memory
ai:
  temperature: 0.5
  timeout: 30s
capture:
  workers: 8
engine:
  service_commands:
    ollama: [systemctl, restart, ollama]
services:
  extra:
    - name: search
      host: localhost
      port: 9200
      health_path: /_cluster/health
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.InDelta(t, 0.5, cfg.AI.Temperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.AI.Timeout)
	assert.Equal(t, 8, cfg.Capture.Workers)
	assert.Equal(t, 256, cfg.Capture.QueueSize, "unset keys keep defaults")

	require.Len(t, cfg.Services.Extra, 1)
	svc, ok := cfg.Services.Catalog().Get("search")
	require.True(t, ok)
	assert.Equal(t, 9200, svc.Port)
	assert.Equal(t, "/_cluster/health", svc.HealthPath)

	assert.Equal(t, map[string][]string{"ollama": {"systemctl", "restart", "ollama"}}, cfg.Engine.ServiceCommands)
	assert.Equal(t, []string{"docker", "start"}, cfg.Engine.RestartCommand)
}

func TestLoad_EnvBeatsFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retention:\n  days: 10\n"), 0o644))
	t.Setenv("MEDIC_RETENTION_DAYS", "20")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 20, cfg.Retention.RetentionDays)
}

func TestLoad_Invalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "medic.yaml")
	require.NoError(t, os.WriteFile(path, []byte("storage:\n  backend: mongodb\n"), 0o644))
	_, err := Load(path)
	assert.Error(t, err)

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err, "an explicit path must exist")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"backend", func(c *Config) { c.Storage.Backend = "mysql" }},
		{"provider", func(c *Config) { c.AI.Provider = "ollama" }},
		{"temperature", func(c *Config) { c.AI.Temperature = 1.5 }},
		{"concurrency", func(c *Config) { c.AI.MaxConcurrentCalls = 0 }},
		{"rate", func(c *Config) { c.AI.RequestsPerSecond = -1 }},
		{"queue", func(c *Config) { c.Capture.QueueSize = 0 }},
		{"workers", func(c *Config) { c.Capture.Workers = 0 }},
		{"service name", func(c *Config) { c.Services.Extra = []reconnect.Service{{Port: 80}} }},
		{"service port", func(c *Config) { c.Services.Extra = []reconnect.Service{{Name: "x", Port: 70000}} }},
		{"log level", func(c *Config) { c.Log.Level = "trace" }},
		{"log format", func(c *Config) { c.Log.Format = "xml" }},
		{"retention", func(c *Config) { c.Retention.RetentionDays = 0 }},
		{"restart command", func(c *Config) { c.Engine.RestartCommand = nil }},
		{"service command", func(c *Config) { c.Engine.ServiceCommands = map[string][]string{"ollama": {}} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	t.Run("disabled AI skips AI checks", func(t *testing.T) {
		cfg := Default()
		cfg.AI.Enabled = false
		cfg.AI.Provider = "ollama"
		assert.NoError(t, cfg.Validate())
	})
}

func TestAIConfig_Guard(t *testing.T) {
	g := Default().AI.Guard()
	assert.Equal(t, 3, g.MaxConcurrentCalls)
	assert.Equal(t, 5, g.FailureThreshold)
	assert.Equal(t, 30*time.Second, g.OpenTimeout)
}

func TestStorageConfig_Store(t *testing.T) {
	sc := Default().Storage
	sc.Path = "/tmp/x.db"
	store := sc.Store()
	assert.Equal(t, "sqlite", store.Backend)
	assert.Equal(t, "/tmp/x.db", store.Path)
	require.NotNil(t, store.Postgres)
	assert.Equal(t, "medic", store.Postgres.Database)
}

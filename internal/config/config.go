// Package config loads engine configuration from defaults, an optional YAML
// file and MEDIC_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/steveyegge/medic/internal/ai"
	"github.com/steveyegge/medic/internal/cache"
	"github.com/steveyegge/medic/internal/control"
	"github.com/steveyegge/medic/internal/reconnect"
	"github.com/steveyegge/medic/internal/storage"
	"github.com/steveyegge/medic/internal/storage/postgres"
)

// EnvPrefix prefixes every environment override, e.g. MEDIC_AI_MODEL
const EnvPrefix = "MEDIC"

// Config holds the complete engine configuration
type Config struct {
	Engine    EngineConfig    `mapstructure:"engine"`
	AI        AIConfig        `mapstructure:"ai"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retention RetentionConfig `mapstructure:"retention"`
	Capture   CaptureConfig   `mapstructure:"capture"`
	Services  ServicesConfig  `mapstructure:"services"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

// EngineConfig holds remediation settings
type EngineConfig struct {
	RemediationEnabled bool          `mapstructure:"remediation_enabled"`
	PortReleaseWait    time.Duration `mapstructure:"port_release_wait"`
	// RestartCommand starts a managed service; the service name is appended
	RestartCommand []string `mapstructure:"restart_command"`
	// ServiceCommands replaces RestartCommand for the named managed
	// services, e.g. ollama: [systemctl, restart, ollama]
	ServiceCommands map[string][]string `mapstructure:"service_commands"`
}

// AIConfig holds AI collaborator settings
type AIConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	Provider           string        `mapstructure:"provider"`
	Model              string        `mapstructure:"model"`
	APIKey             string        `mapstructure:"api_key"`
	BaseURL            string        `mapstructure:"base_url"`
	Temperature        float64       `mapstructure:"temperature"`
	MaxTokens          int64         `mapstructure:"max_tokens"`
	Timeout            time.Duration `mapstructure:"timeout"`
	MaxConcurrentCalls int           `mapstructure:"max_concurrent_calls"`
	RequestsPerSecond  float64       `mapstructure:"requests_per_second"`
	FailureThreshold   int           `mapstructure:"failure_threshold"`
	OpenTimeout        time.Duration `mapstructure:"open_timeout"`
}

// Guard converts the settings into the client guard configuration
func (c AIConfig) Guard() ai.GuardConfig {
	g := ai.DefaultGuardConfig()
	g.Timeout = c.Timeout
	g.MaxConcurrentCalls = c.MaxConcurrentCalls
	g.RequestsPerSecond = c.RequestsPerSecond
	g.FailureThreshold = c.FailureThreshold
	g.OpenTimeout = c.OpenTimeout
	return g
}

// StorageConfig selects and configures the analysis store
type StorageConfig struct {
	Backend  string          `mapstructure:"backend"`
	Path     string          `mapstructure:"path"` // SQLite file; empty means discover .medic/medic.db
	Postgres postgres.Config `mapstructure:"postgres"`
}

// Store converts the settings into the storage factory configuration
func (c StorageConfig) Store() *storage.Config {
	pg := c.Postgres
	return &storage.Config{Backend: c.Backend, Path: c.Path, Postgres: &pg}
}

// CaptureConfig sizes the capture hub
type CaptureConfig struct {
	QueueSize int    `mapstructure:"queue_size"`
	Workers   int    `mapstructure:"workers"`
	Socket    string `mapstructure:"socket"` // Intake socket for watch; empty disables it
}

// ServicesConfig lists dependent services known to the reconnector
type ServicesConfig struct {
	// Extra entries override built-ins with the same name
	Extra          []reconnect.Service `mapstructure:"extra"`
	DialTimeout    time.Duration       `mapstructure:"dial_timeout"`
	HealthTimeout  time.Duration       `mapstructure:"health_timeout"`
	SettleInterval time.Duration       `mapstructure:"settle_interval"`
}

// Catalog builds the service catalog: built-ins first, then Extra
func (c ServicesConfig) Catalog() *reconnect.Catalog {
	return reconnect.NewCatalog(append(reconnect.DefaultServices(), c.Extra...)...)
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // text (colored) or json
}

// MetricsConfig controls the Prometheus endpoint served by watch
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// CacheConfig registers caches cleared by memory relief
type CacheConfig struct {
	Redis cache.RedisConfig `mapstructure:"redis"` // Disabled when URL is empty
	TTL   time.Duration     `mapstructure:"ttl"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Engine: EngineConfig{
			RemediationEnabled: true,
			PortReleaseWait:    500 * time.Millisecond,
			RestartCommand:     []string{"docker", "start"},
		},
		AI: AIConfig{
			Enabled:            true,
			Provider:           ai.ProviderAnthropic,
			Model:              ai.DefaultModel,
			Temperature:        0.2,
			MaxTokens:          2048,
			Timeout:            60 * time.Second,
			MaxConcurrentCalls: 3,
			RequestsPerSecond:  2,
			FailureThreshold:   5,
			OpenTimeout:        30 * time.Second,
		},
		Storage: StorageConfig{
			Backend:  storage.BackendSQLite,
			Postgres: *postgres.DefaultConfig(),
		},
		Retention: DefaultRetentionConfig(),
		Capture: CaptureConfig{
			QueueSize: 256,
			Workers:   4,
			Socket:    control.DefaultSocketPath,
		},
		Services: ServicesConfig{
			DialTimeout:    2 * time.Second,
			HealthTimeout:  3 * time.Second,
			SettleInterval: 3 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    ":9464",
		},
		Cache: CacheConfig{
			Redis: cache.RedisConfig{Prefix: "medic:cache:", Name: "redis"},
			TTL:   10 * time.Minute,
		},
	}
}

// Validate checks if the configuration has valid values
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case storage.BackendSQLite, storage.BackendPostgres, storage.BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be sqlite, postgres or memory (got %q)", c.Storage.Backend)
	}
	if c.AI.Enabled {
		if c.AI.Provider != ai.ProviderAnthropic {
			return fmt.Errorf("ai.provider %q is not supported", c.AI.Provider)
		}
		if c.AI.Temperature < 0 || c.AI.Temperature > 1 {
			return fmt.Errorf("ai.temperature must be between 0 and 1 (got %v)", c.AI.Temperature)
		}
		if c.AI.MaxConcurrentCalls < 1 {
			return errors.New("ai.max_concurrent_calls must be at least 1")
		}
		if c.AI.RequestsPerSecond < 0 {
			return errors.New("ai.requests_per_second cannot be negative")
		}
	}
	if len(c.Engine.RestartCommand) == 0 {
		return errors.New("engine.restart_command cannot be empty")
	}
	for name, cmd := range c.Engine.ServiceCommands {
		if len(cmd) == 0 {
			return fmt.Errorf("engine.service_commands.%s cannot be empty", name)
		}
	}
	if c.Capture.QueueSize < 1 {
		return errors.New("capture.queue_size must be at least 1")
	}
	if c.Capture.Workers < 1 {
		return errors.New("capture.workers must be at least 1")
	}
	for _, s := range c.Services.Extra {
		if s.Name == "" {
			return errors.New("services.extra entries need a name")
		}
		if s.Port < 1 || s.Port > 65535 {
			return fmt.Errorf("service %s: port must be between 1 and 65535 (got %d)", s.Name, s.Port)
		}
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error (got %q)", c.Log.Level)
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		return fmt.Errorf("log.format must be text or json (got %q)", c.Log.Format)
	}
	if err := c.Retention.Validate(); err != nil {
		return fmt.Errorf("retention: %w", err)
	}
	return nil
}

// Load reads configuration. path may be empty, in which case medic.yaml is
// looked up in ./.medic and the working directory; a missing file is not an
// error. Environment variables override file values.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("medic")
		v.SetConfigType("yaml")
		v.AddConfigPath("./.medic")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// setDefaults registers every leaf key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, d *Config) {
	v.SetDefault("engine.remediation_enabled", d.Engine.RemediationEnabled)
	v.SetDefault("engine.port_release_wait", d.Engine.PortReleaseWait)
	v.SetDefault("engine.restart_command", d.Engine.RestartCommand)

	v.SetDefault("ai.enabled", d.AI.Enabled)
	v.SetDefault("ai.provider", d.AI.Provider)
	v.SetDefault("ai.model", d.AI.Model)
	v.SetDefault("ai.api_key", d.AI.APIKey)
	v.SetDefault("ai.base_url", d.AI.BaseURL)
	v.SetDefault("ai.temperature", d.AI.Temperature)
	v.SetDefault("ai.max_tokens", d.AI.MaxTokens)
	v.SetDefault("ai.timeout", d.AI.Timeout)
	v.SetDefault("ai.max_concurrent_calls", d.AI.MaxConcurrentCalls)
	v.SetDefault("ai.requests_per_second", d.AI.RequestsPerSecond)
	v.SetDefault("ai.failure_threshold", d.AI.FailureThreshold)
	v.SetDefault("ai.open_timeout", d.AI.OpenTimeout)

	v.SetDefault("storage.backend", d.Storage.Backend)
	v.SetDefault("storage.path", d.Storage.Path)
	v.SetDefault("storage.postgres.url", d.Storage.Postgres.URL)
	v.SetDefault("storage.postgres.host", d.Storage.Postgres.Host)
	v.SetDefault("storage.postgres.port", d.Storage.Postgres.Port)
	v.SetDefault("storage.postgres.database", d.Storage.Postgres.Database)
	v.SetDefault("storage.postgres.user", d.Storage.Postgres.User)
	v.SetDefault("storage.postgres.password", d.Storage.Postgres.Password)
	v.SetDefault("storage.postgres.sslmode", d.Storage.Postgres.SSLMode)
	v.SetDefault("storage.postgres.max_conns", d.Storage.Postgres.MaxConns)
	v.SetDefault("storage.postgres.min_conns", d.Storage.Postgres.MinConns)
	v.SetDefault("storage.postgres.maxconnlifetime", d.Storage.Postgres.MaxConnLifetime)
	v.SetDefault("storage.postgres.maxconnidletime", d.Storage.Postgres.MaxConnIdleTime)
	v.SetDefault("storage.postgres.healthcheck", d.Storage.Postgres.HealthCheck)

	v.SetDefault("retention.days", d.Retention.RetentionDays)
	v.SetDefault("retention.cleanup_interval_hours", d.Retention.CleanupIntervalHours)
	v.SetDefault("retention.cleanup_enabled", d.Retention.CleanupEnabled)
	v.SetDefault("retention.cleanup_vacuum", d.Retention.CleanupVacuum)

	v.SetDefault("capture.queue_size", d.Capture.QueueSize)
	v.SetDefault("capture.workers", d.Capture.Workers)
	v.SetDefault("capture.socket", d.Capture.Socket)

	v.SetDefault("services.dial_timeout", d.Services.DialTimeout)
	v.SetDefault("services.health_timeout", d.Services.HealthTimeout)
	v.SetDefault("services.settle_interval", d.Services.SettleInterval)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.addr", d.Metrics.Addr)

	v.SetDefault("cache.redis.url", d.Cache.Redis.URL)
	v.SetDefault("cache.redis.password", d.Cache.Redis.Password)
	v.SetDefault("cache.redis.prefix", d.Cache.Redis.Prefix)
	v.SetDefault("cache.redis.name", d.Cache.Redis.Name)
	v.SetDefault("cache.ttl", d.Cache.TTL)
}

package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

// Global singleton for the crontab reload path.
var globalConfig *Config

// Config holds all environment backed configuration for modelscout.
type Config struct {
	// HTTP Server
	HTTPPort    int `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int `env:"METRICS_PORT" envDefault:"9091"`

	// Provider bootstrap
	ProviderConfigFile string `env:"PROVIDER_CONFIG_FILE"`
	ProviderConfigSet  string `env:"PROVIDER_CONFIG_SET" envDefault:"default"`
	ProviderKeySecret  string `env:"PROVIDER_KEY_SECRET"`

	// Discovery
	DiscoveryMode            string        `env:"DISCOVERY_MODE" envDefault:"parallel"`
	DiscoveryTimeout         time.Duration `env:"DISCOVERY_TIMEOUT" envDefault:"5m"`
	ProviderTimeout          time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"60s"`
	SequentialDelay          time.Duration `env:"SEQUENTIAL_DELAY" envDefault:"500ms"`
	DiscoveryCacheTTL        time.Duration `env:"DISCOVERY_CACHE_TTL" envDefault:"10m"`
	AdapterCacheTTL          time.Duration `env:"ADAPTER_CACHE_TTL" envDefault:"5m"`
	AdapterCacheSize         int           `env:"ADAPTER_CACHE_SIZE" envDefault:"256"`
	DiscoverySyncIntervalMin int           `env:"DISCOVERY_SYNC_INTERVAL_MINUTES" envDefault:"60"`
	DiscoverySyncEnabled     bool          `env:"DISCOVERY_SYNC_ENABLED" envDefault:"true"`

	// Cache collaborator
	CacheBackend string `env:"CACHE_BACKEND" envDefault:"memory"`
	RedisAddr    string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisDB      int    `env:"REDIS_DB" envDefault:"0"`

	// Embeddings collaborator
	EmbeddingsEnabled bool   `env:"EMBEDDINGS_ENABLED" envDefault:"false"`
	EmbeddingsAPIKey  string `env:"EMBEDDINGS_API_KEY"`
	EmbeddingsBaseURL string `env:"EMBEDDINGS_BASE_URL"`
	EmbeddingsModel   string `env:"EMBEDDINGS_MODEL" envDefault:"text-embedding-3-small"`

	// Persistence sink
	DatabaseURL string `env:"DATABASE_URL"`
	AutoMigrate bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Observability / Logging
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	OTLPEndpoint     string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders      string        `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName      string        `env:"SERVICE_NAME" envDefault:"modelscout"`
	ServiceNamespace string        `env:"SERVICE_NAMESPACE" envDefault:"modelscout"`
	Environment      string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"console"`

	// Inbound rate limit for the HTTP surface
	HTTPRateLimitPerMinute float64 `env:"HTTP_RATE_LIMIT_PER_MINUTE" envDefault:"120"`

	// Loaded provider definitions, populated by Load.
	Providers []ProviderEntry `env:"-"`

	// Internal
	EnvReloadedAt time.Time
}

// Load parses environment variables into Config and performs minimal validation.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg.ProviderConfigSet = strings.TrimSpace(cfg.ProviderConfigSet)
	if cfg.ProviderConfigSet == "" {
		cfg.ProviderConfigSet = "default"
	}

	configFile := strings.TrimSpace(cfg.ProviderConfigFile)
	if configFile == "" {
		configFile = DefaultProviderConfigFile
	}
	providers, err := LoadProviderEntries(configFile, cfg.ProviderConfigSet)
	if err != nil {
		return nil, fmt.Errorf("load provider configs: %w", err)
	}
	cfg.Providers = providers

	switch strings.ToLower(strings.TrimSpace(cfg.DiscoveryMode)) {
	case "parallel", "sequential":
		cfg.DiscoveryMode = strings.ToLower(strings.TrimSpace(cfg.DiscoveryMode))
	default:
		return nil, fmt.Errorf("invalid DISCOVERY_MODE %q (want parallel or sequential)", cfg.DiscoveryMode)
	}

	switch strings.ToLower(strings.TrimSpace(cfg.CacheBackend)) {
	case "memory", "redis":
		cfg.CacheBackend = strings.ToLower(strings.TrimSpace(cfg.CacheBackend))
	default:
		return nil, fmt.Errorf("invalid CACHE_BACKEND %q (want memory or redis)", cfg.CacheBackend)
	}

	cfg.LogLevel = strings.ToLower(cfg.LogLevel)
	cfg.LogFormat = strings.ToLower(cfg.LogFormat)
	cfg.EnvReloadedAt = time.Now()

	globalConfig = cfg

	return cfg, nil
}

// GetGlobal returns the global config instance for backwards compatibility.
// Deprecated: Use dependency injection with Load() instead.
func GetGlobal() *Config {
	return globalConfig
}

// ProviderByName returns the configured entry for a provider, if present.
func (c *Config) ProviderByName(name string) (ProviderEntry, bool) {
	for _, p := range c.Providers {
		if p.Name == name {
			return p, true
		}
	}
	return ProviderEntry{}, false
}

var Version = "dev"

func IsDev() bool {
	return strings.HasPrefix(Version, "dev")
}

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"modelscout/internal/infrastructure/logger"
)

const DefaultProviderConfigFile = "config/providers.yml"

// Duration wraps time.Duration so yaml values like "250ms" or "5m" parse.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(value.Value))
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration { return time.Duration(d) }

// RateLimitBudget declares one provider's quota windows. Zero-valued
// windows are not enforced.
type RateLimitBudget struct {
	RequestsPerMinute float64  `yaml:"requests_per_minute"`
	RequestsPerHour   float64  `yaml:"requests_per_hour"`
	RequestsPerDay    float64  `yaml:"requests_per_day"`
	TokensPerMinute   float64  `yaml:"tokens_per_minute"`
	BackoffMultiplier float64  `yaml:"backoff_multiplier"`
	MaxBackoff        Duration `yaml:"max_backoff"`
	QueueDepth        int      `yaml:"queue_depth"`
}

// EnumerationKnobs configures the per-provider enumeration strategy.
type EnumerationKnobs struct {
	BatchSize          int      `yaml:"batch_size"`
	MaxModels          int      `yaml:"max_models"`
	SupportsPagination bool     `yaml:"supports_pagination"`
	SupportsFiltering  bool     `yaml:"supports_filtering"`
	SupportsSearch     bool     `yaml:"supports_search"`
	MinPopularity      float64  `yaml:"min_popularity"`
	ExcludedTags       []string `yaml:"excluded_tags"`
	IncludeDeprecated  bool     `yaml:"include_deprecated"`
	CourtesyDelay      Duration `yaml:"courtesy_delay"`
}

// ProviderEntry describes one provider the service should discover against.
type ProviderEntry struct {
	Name        string
	Vendor      string
	BaseURL     string
	APIKeyEnv   string
	Enabled     bool
	RateLimit   RateLimitBudget
	Enumeration EnumerationKnobs
	Metadata    map[string]string
}

type providerConfigDocument struct {
	Providers map[string][]providerConfigEntry `yaml:"providers"`
}

type providerConfigEntry struct {
	Enable      *bool             `yaml:"enable"`
	Name        string            `yaml:"name"`
	Vendor      string            `yaml:"vendor"`
	Type        string            `yaml:"type"`
	URL         string            `yaml:"url"`
	BaseURL     string            `yaml:"base_url"`
	APIKeyEnv   string            `yaml:"api_key_env"`
	RateLimit   RateLimitBudget   `yaml:"rate_limit"`
	Enumeration EnumerationKnobs  `yaml:"enumeration"`
	Metadata    map[string]string `yaml:"metadata"`
}

// LoadProviderEntries parses the yaml file at path and returns the entries
// of the requested set. A missing file is not an error when the default
// path is used; the built-in defaults apply instead.
func LoadProviderEntries(path, set string) ([]ProviderEntry, error) {
	log := logger.GetLogger()
	cleanPath := filepath.Clean(path)
	data, err := os.ReadFile(cleanPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) && cleanPath == filepath.Clean(DefaultProviderConfigFile) {
			log.Info().Msg("no provider config file found, using built-in defaults")
			return DefaultProviderEntries(), nil
		}
		return nil, fmt.Errorf("read provider config %q: %w", cleanPath, err)
	}
	log.Info().Str("path", cleanPath).Msg("loading provider config file")

	var doc providerConfigDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse provider config %q: %w", cleanPath, err)
	}

	setName := strings.TrimSpace(set)
	if setName == "" {
		setName = "default"
	}
	rawEntries, ok := doc.Providers[setName]
	if !ok || len(rawEntries) == 0 {
		return nil, fmt.Errorf("provider config set %q is missing or empty in %s", setName, cleanPath)
	}

	entries := make([]ProviderEntry, 0, len(rawEntries))
	for idx, raw := range rawEntries {
		entry, err := normalizeProviderEntry(raw)
		if err != nil {
			return nil, fmt.Errorf("providers.%s[%d]: %w", setName, idx, err)
		}
		if !entry.Enabled {
			log.Info().Str("provider", entry.Name).Msg("skipping provider (enable=false)")
			continue
		}
		log.Info().
			Str("provider", entry.Name).
			Str("vendor", entry.Vendor).
			Str("base_url", entry.BaseURL).
			Float64("requests_per_minute", entry.RateLimit.RequestsPerMinute).
			Msg("including provider for discovery")
		entries = append(entries, entry)
	}

	if len(entries) == 0 {
		return nil, fmt.Errorf("provider config %q has no enabled provider entries", cleanPath)
	}

	return entries, nil
}

func normalizeProviderEntry(raw providerConfigEntry) (ProviderEntry, error) {
	vendor := strings.TrimSpace(firstNonEmpty(raw.Vendor, raw.Type))
	if vendor == "" {
		return ProviderEntry{}, errors.New("provider vendor is required")
	}

	baseURL := strings.TrimSpace(os.ExpandEnv(firstNonEmpty(raw.URL, raw.BaseURL)))

	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = strings.ToLower(vendor)
	}

	enabled := true
	if raw.Enable != nil {
		enabled = *raw.Enable
	}

	entry := ProviderEntry{
		Name:        name,
		Vendor:      strings.ToLower(vendor),
		BaseURL:     baseURL,
		APIKeyEnv:   strings.TrimSpace(raw.APIKeyEnv),
		Enabled:     enabled,
		RateLimit:   raw.RateLimit,
		Enumeration: raw.Enumeration,
		Metadata:    cloneStringMap(raw.Metadata),
	}
	applyEntryDefaults(&entry)
	return entry, nil
}

func applyEntryDefaults(entry *ProviderEntry) {
	if entry.RateLimit.RequestsPerMinute <= 0 {
		entry.RateLimit.RequestsPerMinute = 60
	}
	if entry.RateLimit.BackoffMultiplier <= 1 {
		entry.RateLimit.BackoffMultiplier = 2
	}
	if entry.RateLimit.MaxBackoff <= 0 {
		entry.RateLimit.MaxBackoff = Duration(5 * time.Minute)
	}
	if entry.RateLimit.QueueDepth <= 0 {
		entry.RateLimit.QueueDepth = 64
	}
	if entry.Enumeration.BatchSize <= 0 {
		entry.Enumeration.BatchSize = 100
	}
	if entry.Enumeration.MaxModels <= 0 {
		entry.Enumeration.MaxModels = 2000
	}
	if entry.Enumeration.CourtesyDelay <= 0 {
		entry.Enumeration.CourtesyDelay = Duration(100 * time.Millisecond)
	}
}

// DefaultProviderEntries is the reference provider set used when no
// config file is present.
func DefaultProviderEntries() []ProviderEntry {
	entries := []ProviderEntry{
		{
			Name:      "openai",
			Vendor:    "openai",
			BaseURL:   "https://api.openai.com/v1",
			APIKeyEnv: "OPENAI_API_KEY",
			Enabled:   true,
			RateLimit: RateLimitBudget{
				RequestsPerMinute: 60,
				RequestsPerHour:   3000,
				TokensPerMinute:   90000,
			},
		},
		{
			Name:      "openrouter",
			Vendor:    "openrouter",
			BaseURL:   "https://openrouter.ai/api/v1",
			APIKeyEnv: "OPENROUTER_API_KEY",
			Enabled:   true,
			RateLimit: RateLimitBudget{
				RequestsPerMinute: 20,
				RequestsPerDay:    10000,
			},
			Enumeration: EnumerationKnobs{
				SupportsPagination: true,
				BatchSize:          250,
			},
		},
		{
			Name:      "ollama",
			Vendor:    "ollama",
			BaseURL:   "http://localhost:11434",
			Enabled:   true,
			RateLimit: RateLimitBudget{
				RequestsPerMinute: 600,
			},
		},
	}
	for i := range entries {
		applyEntryDefaults(&entries[i])
	}
	return entries
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func cloneStringMap(in map[string]string) map[string]string {
	if len(in) == 0 {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		key := strings.TrimSpace(k)
		val := strings.TrimSpace(os.ExpandEnv(v))
		if key == "" || val == "" {
			continue
		}
		out[key] = val
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

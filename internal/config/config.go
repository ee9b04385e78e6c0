// Package config provides the engine configuration: where the rule document
// lives, how long the validation debounce waits, and the retention knobs of
// the caches and the variant pool. Loaded from YAML with env overrides and
// validated before use.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Config is the engine configuration document.
type Config struct {
	Environment string `yaml:"environment" validate:"oneof=development production"`
	MetricsAddr string `yaml:"metrics_addr"`
	Namespace   string `yaml:"namespace" validate:"required"`

	// RulesPath points at the rule document; empty uses built-in defaults.
	RulesPath string `yaml:"rules_path"`

	// ValidationDebounce is the quiet period coalescing rapid graph changes
	// into one background validation run.
	ValidationDebounce Duration `yaml:"validation_debounce" validate:"gt=0"`

	Cache    CacheConfig    `yaml:"cache"`
	Variants VariantsConfig `yaml:"variants"`
}

// CacheConfig bounds the response cache.
type CacheConfig struct {
	MaxItems int `yaml:"max_items" validate:"gt=0"`
}

// VariantsConfig configures variant pool retention.
type VariantsConfig struct {
	WarmAfter   Duration `yaml:"warm_after" validate:"gt=0"`
	ColdAfter   Duration `yaml:"cold_after" validate:"gt=0"`
	EvictAfter  Duration `yaml:"evict_after" validate:"gt=0"`
	MaxVariants int      `yaml:"max_variants" validate:"gt=0"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		Environment:        "development",
		MetricsAddr:        ":9090",
		Namespace:          "agentdb",
		ValidationDebounce: Duration(300 * time.Millisecond),
		Cache:              CacheConfig{MaxItems: 256},
		Variants: VariantsConfig{
			WarmAfter:   Duration(5 * time.Minute),
			ColdAfter:   Duration(20 * time.Minute),
			EvictAfter:  Duration(time.Hour),
			MaxVariants: 32,
		},
	}
}

// Load reads the configuration file (optional), applies environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("AGENTDB_ENVIRONMENT"); v != "" {
		cfg.Environment = v
	}
	if v := os.Getenv("AGENTDB_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("AGENTDB_RULES_PATH"); v != "" {
		cfg.RulesPath = v
	}
	if v := os.Getenv("AGENTDB_VALIDATION_DEBOUNCE_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil && ms > 0 {
			cfg.ValidationDebounce = Duration(time.Duration(ms) * time.Millisecond)
		}
	}
	if v := os.Getenv("AGENTDB_CACHE_MAX_ITEMS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Cache.MaxItems = n
		}
	}
}

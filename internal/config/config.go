// Package config provides configuration loading for the Lasso tracer.
//
// A Config value is built once at the process boundary (defaults, then an
// optional YAML file, then environment overrides) and passed to the
// components that need it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Environment variables that override file settings
const (
	EnvCachePath   = "LASSO_CACHE_PATH"
	EnvLogLevel    = "LASSO_LOG_LEVEL"
	EnvIgnoreCache = "LASSO_IGNORE_CACHE"
)

// DatabaseFile is the SQLite file created under the cache path
const DatabaseFile = "lasso.db"

// Config holds every tunable of the tracer
type Config struct {
	// CachePath is the root for the database and pattern caches
	CachePath string `yaml:"cache_path"`
	// IgnoreCache forces pattern detection and index builds to run again
	IgnoreCache bool `yaml:"ignore_cache"`
	// HitsAtK are the cutoffs reported as hits@k
	HitsAtK []int `yaml:"hits_at_k"`
	// Workers bounds scenario and query parallelism
	Workers int `yaml:"workers"`
	// SpanCacheSize is the capacity of the file -> span index LRU
	SpanCacheSize int `yaml:"span_cache_size"`
	// LSIDimension is the latent-semantic dimensionality
	LSIDimension int `yaml:"lsi_dimension"`
	// MinTermLength drops shorter terms from baseline text. Pattern indexes
	// always keep single letters.
	MinTermLength int `yaml:"min_term_length"`
	// Stem enables stemming of baseline query and indexed terms
	Stem bool `yaml:"stem"`
	// ClusterResults groups results with identical operand sets during evaluation
	ClusterResults bool `yaml:"cluster_results"`
	// OutputPath is where evaluation reports are written
	OutputPath string `yaml:"output_path"`
	// LogLevel is one of trace, debug, info, warn, error
	LogLevel string `yaml:"log_level"`
}

// Default returns a Config with the standard settings
func Default() *Config {
	return &Config{
		CachePath:     filepath.Join(os.TempDir(), "lasso.cache"),
		IgnoreCache:   false,
		HitsAtK:       []int{1, 5, 10, 15, 20},
		Workers:       runtime.NumCPU(),
		SpanCacheSize: 10,
		LSIDimension:  300,
		MinTermLength: 3,
		Stem:          true,
		OutputPath:    "results",
		LogLevel:      "info",
	}
}

// Load reads path (when non-empty) over the defaults, then applies
// environment overrides and validates the result
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvCachePath); v != "" {
		c.CachePath = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv(EnvIgnoreCache); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			c.IgnoreCache = b
		}
	}
}

// Validate checks that the configuration is usable
func (c *Config) Validate() error {
	if c.CachePath == "" {
		return fmt.Errorf("cache_path is required")
	}
	if c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", c.Workers)
	}
	if c.SpanCacheSize < 1 {
		return fmt.Errorf("span_cache_size must be at least 1, got %d", c.SpanCacheSize)
	}
	if c.LSIDimension < 1 {
		return fmt.Errorf("lsi_dimension must be at least 1, got %d", c.LSIDimension)
	}
	if c.MinTermLength < 0 {
		return fmt.Errorf("min_term_length cannot be negative")
	}
	if len(c.HitsAtK) == 0 {
		return fmt.Errorf("hits_at_k must list at least one cutoff")
	}
	for _, k := range c.HitsAtK {
		if k < 1 {
			return fmt.Errorf("hits_at_k cutoffs must be positive, got %d", k)
		}
	}
	sort.Ints(c.HitsAtK)
	return nil
}

// DatabasePath is the SQLite file holding term indexes and LSI vectors
func (c *Config) DatabasePath() string {
	return filepath.Join(c.CachePath, DatabaseFile)
}

// SaveToFile writes the configuration as YAML
func (c *Config) SaveToFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

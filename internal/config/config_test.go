package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, []int{1, 5, 10, 15, 20}, cfg.HitsAtK)
	assert.Equal(t, 10, cfg.SpanCacheSize)
	assert.Equal(t, 300, cfg.LSIDimension)
	assert.Equal(t, 3, cfg.MinTermLength)
	assert.True(t, cfg.Stem)
	assert.False(t, cfg.IgnoreCache)
}

func TestLoadFromFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "lasso.yaml")
	require.NoError(t, os.WriteFile(path, []byte("workers: 3\nhits_at_k: [10, 1]\nignore_cache: true\n"), 0644))

	t.Setenv(EnvCachePath, filepath.Join(dir, "cache"))
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, []int{1, 10}, cfg.HitsAtK)
	assert.True(t, cfg.IgnoreCache)
	assert.Equal(t, filepath.Join(dir, "cache"), cfg.CachePath)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, filepath.Join(dir, "cache", DatabaseFile), cfg.DatabasePath())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"no cache path", func(c *Config) { c.CachePath = "" }},
		{"no workers", func(c *Config) { c.Workers = 0 }},
		{"no span cache", func(c *Config) { c.SpanCacheSize = 0 }},
		{"bad dimension", func(c *Config) { c.LSIDimension = 0 }},
		{"empty hits", func(c *Config) { c.HitsAtK = nil }},
		{"zero cutoff", func(c *Config) { c.HitsAtK = []int{0, 5} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestSaveToFileRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "lasso.yaml")
	cfg := Default()
	cfg.Workers = 7
	require.NoError(t, cfg.SaveToFile(path))

	t.Setenv(EnvCachePath, "")
	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Workers)
}

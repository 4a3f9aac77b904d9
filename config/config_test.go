package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	for _, k := range []string{"HOST", "PORT", "ENVIRONMENT", "LOG_LEVEL", "LOG_FORMAT", "ALLOWED_ORIGINS",
		"MAX_BODY_BYTES", "SHUTDOWN_TIMEOUT", "ENABLE_METRICS", "REQUIRED_FIELDS", "SEED_FILE"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "0.0.0.0:8080", cfg.Addr())
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "json", cfg.LogFormat)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(1<<20), cfg.MaxBodyBytes)
	assert.Equal(t, 15*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.EnableMetrics)
	assert.Equal(t, []string{"title", "content"}, cfg.RequiredFields)
	assert.Empty(t, cfg.SeedFile)
	assert.True(t, cfg.IsDevelopment())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HOST", "127.0.0.1")
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_FORMAT", "console")
	t.Setenv("ALLOWED_ORIGINS", "http://a.test, http://b.test ,")
	t.Setenv("MAX_BODY_BYTES", "512")
	t.Setenv("SHUTDOWN_TIMEOUT", "2s")
	t.Setenv("ENABLE_METRICS", "false")
	t.Setenv("REQUIRED_FIELDS", "name")
	t.Setenv("SEED_FILE", "seed.yaml")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "127.0.0.1:9090", cfg.Addr())
	assert.Equal(t, "console", cfg.LogFormat)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.AllowedOrigins)
	assert.Equal(t, int64(512), cfg.MaxBodyBytes)
	assert.Equal(t, 2*time.Second, cfg.ShutdownTimeout)
	assert.False(t, cfg.EnableMetrics)
	assert.Equal(t, []string{"name"}, cfg.RequiredFields)
	assert.Equal(t, "seed.yaml", cfg.SeedFile)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Port:            "8080",
			LogFormat:       "json",
			MaxBodyBytes:    1,
			ShutdownTimeout: time.Second,
		}
	}
	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty port", func(c *Config) { c.Port = "" }},
		{"non-numeric port", func(c *Config) { c.Port = "http" }},
		{"port out of range", func(c *Config) { c.Port = "70000" }},
		{"zero body size", func(c *Config) { c.MaxBodyBytes = 0 }},
		{"zero shutdown timeout", func(c *Config) { c.ShutdownTimeout = 0 }},
		{"unknown log format", func(c *Config) { c.LogFormat = "xml" }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := valid()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

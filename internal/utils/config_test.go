package utils

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(p, []byte(body), 0o644))
	return p
}

func TestLoadConfigFrom_AppliesDefaults(t *testing.T) {
	cfg := LoadConfigFrom(writeConfig(t, "server:\n  host: 127.0.0.1\n"))

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, 10*1024*1024, cfg.Limits.MaxTemplateBytes)
	assert.Equal(t, 20*1024*1024, cfg.Limits.MaxPDFBytes)
	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, time.Minute, cfg.RateLimiter.Interval)
	assert.Equal(t, "memory", cfg.Cache.Backend)
	assert.Equal(t, 24*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 512, cfg.Cache.MaxEntries)
	assert.Equal(t, "labelcache", cfg.Cache.KeyPrefix)
	assert.Equal(t, 30, cfg.PDF.TimeoutSecs)
	assert.Equal(t, DefaultLayout(), cfg.Layout)
}

func TestLoadConfigFrom_Valid(t *testing.T) {
	cfg := LoadConfigFrom(writeConfig(t, `
cache:
  enabled: true
  backend: Redis
  ttl: 2h
  redis_host: "localhost:6379"
  redis_label_db: 3
layout:
  barcode_x_mm: 100
  font_size: 10
metrics:
  enabled: true
`))
	assert.Equal(t, "redis", cfg.Cache.Backend)
	assert.Equal(t, 2*time.Hour, cfg.Cache.TTL)
	assert.Equal(t, 3, cfg.Cache.LabelDB)
	assert.Equal(t, 100.0, cfg.Layout.BarcodeXMM)
	assert.Equal(t, 10, cfg.Layout.FontSize)
	assert.Equal(t, 152.5, cfg.Layout.PageWidthMM)
	assert.True(t, cfg.Metrics.Enabled)
}

func TestLoadConfigFrom_PanicsOnInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		yml  string
	}{
		{name: "unknown backend", yml: "cache:\n  backend: etcd\n"},
		{name: "negative ttl", yml: "cache:\n  ttl: -1m\n"},
		{name: "badger without dir", yml: "cache:\n  enabled: true\n  backend: badger\n"},
		{name: "redis without host", yml: "cache:\n  enabled: true\n  backend: redis\n"},
		{name: "postgres without host", yml: "cache:\n  enabled: true\n  backend: postgres\n"},
		{name: "negative user limit", yml: "rate_limiter:\n  user_limit: -1\n"},
		{name: "barcode off page", yml: "layout:\n  barcode_x_mm: 140\n"},
		{name: "malformed yaml", yml: "server: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writeConfig(t, tc.yml)
			assert.Panics(t, func() { _ = LoadConfigFrom(p) })
		})
	}
}

func TestLoadConfigFrom_MissingFilePanics(t *testing.T) {
	assert.Panics(t, func() { _ = LoadConfigFrom(filepath.Join(t.TempDir(), "nope.yaml")) })
}

func TestLoadConfig_UsesConfigPathEnv(t *testing.T) {
	p := writeConfig(t, "server:\n  port: \":9090\"\n")
	t.Setenv("CONFIG_PATH", p)

	cfg := LoadConfig()
	assert.Equal(t, ":9090", cfg.Server.Port)
	assert.Equal(t, ":9090", GetConfig().Server.Port)
}

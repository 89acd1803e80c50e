package config

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
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, 70.0, cfg.Shield.RiskThreshold)
	assert.Equal(t, 100, cfg.Shield.MaxRequests)
	assert.Equal(t, 15*time.Minute, cfg.Shield.Window())
	assert.Equal(t, "/403.html", cfg.Shield.ForbiddenPage)
	assert.Equal(t, "request", cfg.Shield.AddressSource)
	assert.Equal(t, 3*time.Second, cfg.Shield.LookupTimeout())
	assert.Equal(t, "memory", cfg.Storage.Backend)
	assert.Equal(t, "X-API-Key", cfg.Auth.Header)
	assert.Equal(t, "./public", cfg.Upstream.StaticDir)
	assert.Equal(t, int64(10<<20), cfg.Server.MaxBody())
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, `
server:
  addr: ":9000"
shield:
  risk_threshold: 55
  max_requests: 2
  window_ms: 1000
  forbidden_page: /blocked.html
  address_source: detect
storage:
  backend: sqlite
  sqlite:
    path: /tmp/ws.db
routes:
  - id: checkout
    match:
      path_prefix: /checkout
    risk_threshold: 40
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, ":9000", cfg.Server.Addr)
	assert.Equal(t, 55.0, cfg.Shield.RiskThreshold)
	assert.Equal(t, 2, cfg.Shield.MaxRequests)
	assert.Equal(t, time.Second, cfg.Shield.Window())
	assert.Equal(t, "/blocked.html", cfg.Shield.ForbiddenPage)
	assert.Equal(t, "detect", cfg.Shield.AddressSource)
	assert.Equal(t, "/tmp/ws.db", cfg.Storage.SQLite.Path)
	require.Len(t, cfg.Routes, 1)
	assert.Equal(t, 40.0, cfg.Routes[0].RiskThreshold)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := writeConfig(t, "shield:\n  max_requests: 5\n")
	t.Setenv("WEBSHIELD_MAX_REQUESTS", "9")
	t.Setenv("WEBSHIELD_STORAGE_BACKEND", "REDIS")
	t.Setenv("WEBSHIELD_REDIS_ADDR", "cache:6379")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Shield.MaxRequests)
	assert.Equal(t, "redis", cfg.Storage.Backend)
	assert.Equal(t, "cache:6379", cfg.Storage.Redis.Addr)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoad_InvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, "shield: [not a map"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Root)
	}{
		{"relative forbidden page", func(c *Root) { c.Shield.ForbiddenPage = "403.html" }},
		{"unknown address source", func(c *Root) { c.Shield.AddressSource = "guess" }},
		{"unknown backend", func(c *Root) { c.Storage.Backend = "etcd" }},
		{"negative max requests", func(c *Root) { c.Shield.MaxRequests = -1 }},
		{"route without prefix", func(c *Root) { c.Routes = []Routes{{ID: "x"}} }},
		{"window outlives durable storage", func(c *Root) {
			c.Shield.WindowMS = 2 * 60 * 60 * 1000
			c.Storage.DurableTTLMS = 60 * 60 * 1000
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			require.NoError(t, cfg.Validate())
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

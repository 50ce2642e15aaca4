package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadFile_Defaults(t *testing.T) {
	path := writeConfig(t, "log_level: debug\n")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8084, cfg.Server.Port)
	assert.Equal(t, 8090, cfg.Server.StorePort)
	assert.Equal(t, 30, cfg.Server.SubmitRatePerMinute)
	assert.Equal(t, 10, cfg.Server.SubmitBurst)
	assert.Equal(t, 650, cfg.Remote.ProbeTimeoutMS)
	assert.Equal(t, "650ms", cfg.Remote.ProbeTimeout().String())
	assert.Equal(t, CacheBackendFile, cfg.Cache.Backend)
	assert.Equal(t, 200, cfg.Cache.ListLimit)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr())
}

func TestLoadFile_Overrides(t *testing.T) {
	path := writeConfig(t, `
remote:
  base_url: http://orders.internal:9000
  probe_timeout_ms: 300
cache:
  backend: redis
admin:
  allowed_cidrs: ["10.1.0.0/16"]
`)
	t.Setenv("REMOTE_STORE_URL", "http://override:9000")

	cfg, err := LoadFile(path)
	require.NoError(t, err)

	assert.Equal(t, "http://override:9000", cfg.Remote.BaseURL)
	assert.Equal(t, 300, cfg.Remote.ProbeTimeoutMS)
	assert.Equal(t, CacheBackendRedis, cfg.Cache.Backend)
	assert.Equal(t, []string{"10.1.0.0/16"}, cfg.Admin.AllowedCIDRs)
}

func TestLoadFile_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"unknown backend", "cache:\n  backend: tape\n", "unknown cache backend"},
		{"bad cidr", "admin:\n  allowed_cidrs: [\"nope\"]\n", "invalid admin CIDR"},
		{"bad port", "server:\n  port: 70000\n", "invalid server port"},
		{"bad store port", "server:\n  store_port: 0\n", "invalid order store port"},
		{"zero burst", "server:\n  submit_burst: 0\n", "submit burst"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadFile(writeConfig(t, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, ":443", cfg.Appliance.Address)
	assert.Equal(t, "/homeconnect", cfg.Appliance.Path)
	assert.Equal(t, "psk", cfg.Appliance.TLS)
	assert.Equal(t, 2*time.Second, cfg.Appliance.PingInterval)
}

func TestLoadLayers(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "hc-sim.yaml", `
appliance:
  address: ":8443"
  tls: "off"
  ping_interval: 5s
admin:
  address: ":9000"
  allow_origins: ["http://localhost:5173"]
storage:
  history_path: history.db
log:
  level: debug
`)
	envFile := writeFile(t, dir, "test.env", "HCSIM_ADMIN_ADDRESS=:9100\nHCSIM_LOG_FORMAT=json\n")
	// godotenv writes straight into the process environment.
	t.Cleanup(func() { _ = os.Unsetenv("HCSIM_ADMIN_ADDRESS") })
	t.Setenv("HCSIM_LOG_FORMAT", "text")
	t.Setenv("HCSIM_DISCOVERY_ENABLED", "true")
	t.Setenv("HCSIM_ADMIN_ALLOW_ORIGINS", "http://a.test,http://b.test")

	cfg, err := Load(path, envFile)
	require.NoError(t, err)

	// YAML over defaults.
	assert.Equal(t, ":8443", cfg.Appliance.Address)
	assert.Equal(t, "off", cfg.Appliance.TLS)
	assert.Equal(t, 5*time.Second, cfg.Appliance.PingInterval)
	assert.Equal(t, "history.db", cfg.Storage.HistoryPath)
	assert.Equal(t, "appliance.json", cfg.Storage.SnapshotPath, "defaults survive a partial file")
	assert.Equal(t, "debug", cfg.Log.Level)

	// .env over YAML; the real environment wins over .env.
	assert.Equal(t, ":9100", cfg.Admin.Address)
	assert.Equal(t, "text", cfg.Log.Format)

	assert.True(t, cfg.Discovery.Enabled)
	assert.Equal(t, []string{"http://a.test", "http://b.test"}, cfg.Admin.AllowOrigins)
}

func TestLoadWithoutFiles(t *testing.T) {
	cfg, err := Load("", filepath.Join(t.TempDir(), "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := Load(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)

	bad := writeFile(t, dir, "bad.yaml", "appliance: [")
	_, err = Load(bad)
	assert.ErrorIs(t, err, ErrInvalidConfig)

	t.Setenv("HCSIM_APPLIANCE_PING_INTERVAL", "often")
	_, err = Load("", filepath.Join(dir, "missing.env"))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"no address", func(c *Config) { c.Appliance.Address = "" }, "appliance.address"},
		{"relative path", func(c *Config) { c.Appliance.Path = "homeconnect" }, "appliance.path"},
		{"tls mode", func(c *Config) { c.Appliance.TLS = "mtls" }, "appliance.tls"},
		{"static without files", func(c *Config) { c.Appliance.TLS = "static" }, "cert_file"},
		{"negative keepalive", func(c *Config) { c.Appliance.PongTimeout = -time.Second }, "keep-alive"},
		{"discovery port", func(c *Config) { c.Discovery.Port = 70000 }, "discovery.port"},
		{"log level", func(c *Config) { c.Log.Level = "verbose" }, "log.level"},
		{"log format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestChannel(t *testing.T) {
	cfg := Default()
	ch := cfg.Appliance.Channel()
	assert.False(t, ch.DisableKeepAlive)
	assert.Equal(t, cfg.Appliance.PingInterval, ch.KeepAlive.PingInterval)

	cfg.Appliance.PingInterval = 0
	assert.True(t, cfg.Appliance.Channel().DisableKeepAlive)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	lc := LogConfig{Level: "warn", Format: "json"}
	logger := lc.NewLogger(&buf)

	logger.Info("hidden")
	logger.Warn("shown", "uid", 539)

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.True(t, strings.HasPrefix(out, "{"))
	assert.Contains(t, out, `"uid":539`)
	assert.True(t, logger.Enabled(t.Context(), slog.LevelError))
}

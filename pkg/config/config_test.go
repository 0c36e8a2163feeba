package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	assert.Equal(t, "unix", cfg.Listen.Network)
	assert.Equal(t, 16<<20, cfg.Listen.MaxFrameBytes)
	assert.Equal(t, 4, cfg.Governor.MaxInFlight)
	assert.Equal(t, 500, cfg.Governor.DailyBudgetCents)
	assert.Equal(t, 20*time.Second, cfg.Governor.LeaseTTL)
	assert.Equal(t, time.Second, cfg.Governor.SweepInterval)
	assert.Equal(t, "jsonl", cfg.Audit.Sink)
	assert.NoError(t, cfg.Validate())
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_SOCKET_DIR", "/run/lg")

	content := `
listen:
  network: unix
  address: ${TEST_SOCKET_DIR}/gov.sock
governor:
  max_in_flight: 2
  daily_budget_cents: 1000
  lease_ttl: 45s
policy:
  path: policy.yaml
  hot_reload: true
audit:
  sink: sqlite
  retention_days: 7
log:
  level: debug
  format: json
`
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/run/lg/gov.sock", cfg.Listen.Address, "env var not expanded")
	assert.Equal(t, 5*time.Second, cfg.Listen.ReadTimeout, "default kept")
	assert.Equal(t, 2, cfg.Governor.MaxInFlight)
	assert.Equal(t, 1000, cfg.Governor.DailyBudgetCents)
	assert.Equal(t, 45*time.Second, cfg.Governor.LeaseTTL)
	assert.Equal(t, time.Second, cfg.Governor.SweepInterval)
	assert.True(t, cfg.Policy.HotReload)
	assert.Equal(t, "sqlite", cfg.Audit.Sink)
	assert.Equal(t, "leasegate-audit.db", cfg.Audit.DBPath)
	assert.Equal(t, 7, cfg.Audit.RetentionDays)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestLoadMissing(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoadOrDefault(t *testing.T) {
	cfg, err := LoadOrDefault("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"network", func(c *Config) { c.Listen.Network = "udp" }, "listen.network"},
		{"address", func(c *Config) { c.Listen.Address = "" }, "listen.address"},
		{"in flight", func(c *Config) { c.Governor.MaxInFlight = -1 }, "governor.max_in_flight"},
		{"budget", func(c *Config) { c.Governor.DailyBudgetCents = -5 }, "governor.daily_budget_cents"},
		{"ttl", func(c *Config) { c.Governor.LeaseTTL = 0 }, "governor.lease_ttl"},
		{"sweep", func(c *Config) { c.Governor.SweepInterval = -time.Second }, "governor.sweep_interval"},
		{"sink", func(c *Config) { c.Audit.Sink = "kafka" }, "audit.sink"},
		{"format", func(c *Config) { c.Log.Format = "xml" }, "log.format"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadRejectsInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("governor:\n  lease_ttl: 0s\n"), 0644))

	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "lease_ttl")
}

func TestValidateAcceptsEverySink(t *testing.T) {
	for _, sink := range []string{"jsonl", "sqlite", "both", "none"} {
		cfg := Default()
		cfg.Audit.Sink = sink
		assert.NoError(t, cfg.Validate(), sink)
	}
}

package config

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fund "github.com/mmoncada1/Marina-Pickleball-Community-Fund"
)

func writeConfig(t *testing.T, dir, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, Service+".yaml"), []byte(body), 0o600))
}

func TestLoadDefaults(t *testing.T) {
	c, err := Load(New(t.TempDir()))
	require.NoError(t, err)

	assert.Equal(t, "info", c.Log.Level)
	assert.Equal(t, ":8080", c.HTTP.Addr)
	assert.Equal(t, fund.ChainID(8453), c.ChainID())
	assert.Equal(t, BackendTerminal, c.Payment.Backend)
	assert.Equal(t, uint64(107), c.Payment.ProjectID)
	assert.Equal(t, 107, c.Progress.ProjectID)
	assert.Equal(t, 30*time.Second, c.Price.Interval)
	assert.Equal(t, 3*time.Second, c.Balance.FastInterval)
	assert.Equal(t, 12*time.Second, c.Balance.SlowInterval)
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
log:
  level: debug
http:
  addr: ":9090"
  allowed_origins: ["https://fund.example"]
payment:
  backend: direct
  contract: "0x1111111111111111111111111111111111111111"
progress:
  static_raised_usd: "420"
  static_payments: 7
  interval: 5m
`)
	t.Setenv("FUNDD_RELAYER_DEMO_MODE", "true")
	t.Setenv("FUNDD_HTTP_ADDR", ":7070")

	c, err := Load(New(dir))
	require.NoError(t, err)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, ":7070", c.HTTP.Addr)
	assert.Equal(t, []string{"https://fund.example"}, c.HTTP.AllowedOrigins)
	assert.Equal(t, BackendDirect, c.Payment.Backend)
	assert.True(t, c.Relayer.DemoMode)
	assert.Equal(t, "420", c.Progress.StaticRaisedUSD)
	assert.Equal(t, 7, c.Progress.StaticPayments)
	assert.Equal(t, 5*time.Minute, c.Progress.Interval)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		failed string
	}{
		{"unknown backend", "payment:\n  backend: paypal\n", "payment.backend"},
		{"direct without contract", "payment:\n  backend: direct\n", "payment.contract"},
		{"terminal without project", "payment:\n  project_id: 0\n", "payment.project_id"},
		{"negative swap rate", "http:\n  swap_rate: -1\n", "http.swap_rate"},
		{"bad intervals", "balance:\n  fast_interval: 10s\n  slow_interval: 1s\n", "balance intervals"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			writeConfig(t, dir, tt.yaml)

			_, err := Load(New(dir))
			require.Error(t, err)
			assert.ErrorIs(t, err, fund.ErrConfig)
			assert.Contains(t, err.Error(), tt.failed)
		})
	}
}

func TestWatchReloads(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "log:\n  level: info\n")

	v := New(dir)
	_, err := Load(v)
	require.NoError(t, err)

	var level atomic.Value
	Watch(v, func(c *Config) { level.Store(c.Log.Level) }, nil)

	writeConfig(t, dir, "log:\n  level: warn\n")
	require.Eventually(t, func() bool {
		l, _ := level.Load().(string)
		return l == "warn"
	}, 2*time.Second, 20*time.Millisecond)
}

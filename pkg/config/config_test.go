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
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

const validConfig = `
environment: test
backend:
  type: memory
instruments:
  - symbol: BTC/USDT
    class: crypto
    venue: binance
    source: binance
ingestion:
  workers: 2
  lease_ttl: 90s
features:
  version: v1
  interval: 1m
signals:
  threshold: 0.01
`

func TestLoadValid(t *testing.T) {
	cfg, err := Load(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "test", cfg.Environment)
	assert.Equal(t, "memory", cfg.Backend.Type)
	require.Len(t, cfg.Instruments, 1)
	assert.Equal(t, "BTC/USDT", cfg.Instruments[0].Symbol)
	assert.Equal(t, 90*time.Second, cfg.Ingestion.LeaseTTL)
	assert.InDelta(t, 0.01, cfg.Signals.Threshold, 1e-12)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: postgres
instruments:
  - symbol: BTC/USDT
    source: binance
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend.type")
}

func TestLoadRequiresInstruments(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: memory
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "instruments")
}

func TestLoadRequiresAlphaVantageKey(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: memory
instruments:
  - symbol: AAPL
    source: alphavantage
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "alphavantage.api_key")
}

func TestLoadRequiresModelURLForHTTP(t *testing.T) {
	_, err := Load(writeConfig(t, `
environment: test
backend:
  type: memory
instruments:
  - symbol: BTC/USDT
    source: binance
model:
  type: http
`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "model.url")
}

func TestLoadWithEnvOverrides(t *testing.T) {
	t.Setenv("ALPHAVANTAGE_API_KEY", "secret")
	t.Setenv("BACKEND", "memory")

	cfg, err := LoadWithEnv(writeConfig(t, validConfig))
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.AlphaVantage.APIKey)
	assert.Equal(t, "memory", cfg.Backend.Type)
}

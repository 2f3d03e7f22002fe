package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 1000.0, cfg.Trading.MaxPositionSizeUSD)
	assert.Equal(t, 0.025, cfg.Trading.MinProfitThreshold)
	assert.Equal(t, 10000.0, cfg.Risk.MaxTotalExposureUSD)
	assert.Equal(t, 30*time.Second, cfg.Cadence.MonitorInterval.Duration)
	assert.Equal(t, time.Hour, cfg.Cadence.AutoResolveTimeout.Duration)
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "yolo"
	cfg.Risk.MaxPositions = 0
	cfg.Trading.RiskPerTrade = 2
	cfg.Strategies.BinaryHedging.Priority = cfg.Strategies.LatencyArbitrage.Priority

	err := cfg.Validate()
	require.Error(t, err)
	msg := err.Error()
	assert.True(t, strings.HasPrefix(msg, "config validation failed:"))
	assert.Contains(t, msg, `unknown mode "yolo"`)
	assert.Contains(t, msg, "max_positions must be >= 1")
	assert.Contains(t, msg, "risk_per_trade must be in (0, 1]")
	assert.Contains(t, msg, "share priority 1")
}

func TestValidateLiveNeedsCredentials(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "live"
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "wallet: either private_key or encrypted_key_path")
	assert.NotContains(t, err.Error(), "api_passphrase")

	cfg.Wallet.PrivateKey = "0xabc"
	cfg.Polymarket.ApiKey = "only-the-key"
	err = cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be set together")
}

func TestLoadTOMLOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	body := `
mode = "monitor"

[trading]
risk_per_trade = 0.01

[cadence]
monitor_interval = "10s"

[strategies.market_making]
enabled = true
min_spread = 0.04
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 0.01, cfg.Trading.RiskPerTrade)
	assert.Equal(t, 1000.0, cfg.Trading.MaxPositionSizeUSD)
	assert.Equal(t, 10*time.Second, cfg.Cadence.MonitorInterval.Duration)
	assert.True(t, cfg.Strategies.MarketMaking.Enabled)
	assert.Equal(t, 0.04, cfg.Strategies.MarketMaking.MinSpread)
	assert.Equal(t, []int{3, 24, 168, 720}, cfg.Strategies.MarketMaking.VolatilityLookbackHours)
	require.NoError(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	body := `
mode: testing
risk_management:
  max_positions: 7
  emergency_stop_loss_pct: 0.2
cadence:
  auto_resolve_timeout: 90m
strategies:
  binary_hedging:
    min_discount: 0.05
`
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Risk.MaxPositions)
	assert.Equal(t, 0.2, cfg.Risk.EmergencyStopLossPct)
	assert.Equal(t, 90*time.Minute, cfg.Cadence.AutoResolveTimeout.Duration)
	assert.Equal(t, 0.05, cfg.Strategies.BinaryHedging.MinDiscount)
	assert.Equal(t, 0.02, cfg.Strategies.BinaryHedging.SumDiscount)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("STRATBOT_MODE", "monitor")
	t.Setenv("STRATBOT_RISK_MAX_POSITIONS", "3")
	t.Setenv("STRATBOT_CADENCE_MONITOR_INTERVAL", "5s")
	t.Setenv("STRATBOT_BINANCE_SYMBOLS", "BTCUSDT, ETHUSDT ,")

	cfg := Defaults()
	applyEnvOverrides(&cfg)
	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, 3, cfg.Risk.MaxPositions)
	assert.Equal(t, 5*time.Second, cfg.Cadence.MonitorInterval.Duration)
	assert.Equal(t, []string{"BTCUSDT", "ETHUSDT"}, cfg.Binance.Symbols)
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "0xdeadbeef"
	cfg.Polymarket.ApiSecret = "secret"
	cfg.Notify.Events = []string{"a"}

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Polymarket.ApiSecret)
	assert.Empty(t, out.Wallet.KeyPassword)

	out.Notify.Events[0] = "b"
	out.Strategies.LatencyArbitrage.Symbols["BTCUSDT"][0] = "x"
	assert.Equal(t, "a", cfg.Notify.Events[0])
	assert.Equal(t, "bitcoin", cfg.Strategies.LatencyArbitrage.Symbols["BTCUSDT"][0])
	assert.Equal(t, "0xdeadbeef", cfg.Wallet.PrivateKey)
}

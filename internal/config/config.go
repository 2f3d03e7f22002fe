// Package config defines the top-level configuration for the strategy bot
// and provides validation helpers.
package config

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure. Fields are populated from a TOML
// (or YAML) file and then optionally overridden by STRATBOT_* environment
// variables.
type Config struct {
	Wallet     WalletConfig     `toml:"wallet" yaml:"wallet"`
	Polymarket PolymarketConfig `toml:"polymarket" yaml:"polymarket"`
	Binance    BinanceConfig    `toml:"binance" yaml:"binance"`
	Feed       FeedConfig       `toml:"feed" yaml:"feed"`
	Trading    TradingConfig    `toml:"trading" yaml:"trading"`
	Risk       RiskConfig       `toml:"risk_management" yaml:"risk_management"`
	Strategies StrategiesConfig `toml:"strategies" yaml:"strategies"`
	Cadence    CadenceConfig    `toml:"cadence" yaml:"cadence"`
	Testing    TestingConfig    `toml:"testing" yaml:"testing"`
	Postgres   PostgresConfig   `toml:"postgres" yaml:"postgres"`
	Redis      RedisConfig      `toml:"redis" yaml:"redis"`
	S3         S3Config         `toml:"s3" yaml:"s3"`
	Server     ServerConfig     `toml:"server" yaml:"server"`
	Notify     NotifyConfig     `toml:"notify" yaml:"notify"`
	Log        LogConfig        `toml:"log" yaml:"log"`
	Mode       string           `toml:"mode" yaml:"mode"`
	LogLevel   string           `toml:"log_level" yaml:"log_level"`
}

// WalletConfig holds Ethereum wallet credentials.
type WalletConfig struct {
	PrivateKey       string `toml:"private_key" yaml:"private_key"`
	SafeAddress      string `toml:"safe_address" yaml:"safe_address"`
	EncryptedKeyPath string `toml:"encrypted_key_path" yaml:"encrypted_key_path"`
	KeyPassword      string `toml:"key_password" yaml:"key_password"`
}

// PolymarketConfig holds venue endpoints, chain parameters and L2 API
// credentials.
type PolymarketConfig struct {
	ClobHost      string `toml:"clob_host" yaml:"clob_host"`
	GammaHost     string `toml:"gamma_host" yaml:"gamma_host"`
	ChainID       int    `toml:"chain_id" yaml:"chain_id"`
	SignatureType int    `toml:"signature_type" yaml:"signature_type"`
	Exchange      string `toml:"exchange_address" yaml:"exchange_address"`
	MarketLimit   int    `toml:"market_limit" yaml:"market_limit"`
	ApiKey        string `toml:"api_key" yaml:"api_key"`
	ApiSecret     string `toml:"api_secret" yaml:"api_secret"`
	ApiPassphrase string `toml:"api_passphrase" yaml:"api_passphrase"`
}

// BinanceConfig configures the reference price feed.
type BinanceConfig struct {
	Enabled bool     `toml:"enabled" yaml:"enabled"`
	WsHost  string   `toml:"ws_host" yaml:"ws_host"`
	Symbols []string `toml:"symbols" yaml:"symbols"`
}

// FeedConfig tunes the price feed aggregator.
type FeedConfig struct {
	Horizon      duration `toml:"horizon" yaml:"horizon"`
	ChangeWindow duration `toml:"change_window" yaml:"change_window"`
	Capacity     int      `toml:"capacity" yaml:"capacity"`
	MaxStaleness duration `toml:"max_staleness" yaml:"max_staleness"`
}

// TradingConfig holds per-trade sizing and fee parameters.
type TradingConfig struct {
	MaxPositionSizeUSD float64 `toml:"max_position_size_usd" yaml:"max_position_size_usd"`
	RiskPerTrade       float64 `toml:"risk_per_trade" yaml:"risk_per_trade"`
	MinProfitThreshold float64 `toml:"min_profit_threshold" yaml:"min_profit_threshold"`
	MaxSlippage        float64 `toml:"max_slippage" yaml:"max_slippage"`
	WinnerFee          float64 `toml:"winner_fee" yaml:"winner_fee"`
	TakerFee           float64 `toml:"taker_fee" yaml:"taker_fee"`
	StartingBalance    float64 `toml:"starting_balance" yaml:"starting_balance"`
	EdgeScale          float64 `toml:"edge_scale" yaml:"edge_scale"`
	MaxScaling         float64 `toml:"max_scaling" yaml:"max_scaling"`
}

// RiskConfig holds account-level limits.
type RiskConfig struct {
	MaxTotalExposureUSD  float64 `toml:"max_total_exposure_usd" yaml:"max_total_exposure_usd"`
	MaxPositions         int     `toml:"max_positions" yaml:"max_positions"`
	MaxLossPerDayUSD     float64 `toml:"max_loss_per_day_usd" yaml:"max_loss_per_day_usd"`
	EmergencyStopLossPct float64 `toml:"emergency_stop_loss_pct" yaml:"emergency_stop_loss_pct"`
}

// StrategiesConfig groups the four strategy sections.
type StrategiesConfig struct {
	LatencyArbitrage       LatencyArbitrageConfig       `toml:"latency_arbitrage" yaml:"latency_arbitrage"`
	BinaryHedging          BinaryHedgingConfig          `toml:"binary_hedging" yaml:"binary_hedging"`
	CombinatorialArbitrage CombinatorialArbitrageConfig `toml:"combinatorial_arbitrage" yaml:"combinatorial_arbitrage"`
	MarketMaking           MarketMakingConfig           `toml:"market_making" yaml:"market_making"`
}

// ExitConfig is a voluntary exit policy. Zero values disable a rule.
type ExitConfig struct {
	TakeProfit float64  `toml:"take_profit" yaml:"take_profit"`
	StopLoss   float64  `toml:"stop_loss" yaml:"stop_loss"`
	MaxHold    duration `toml:"max_hold" yaml:"max_hold"`
}

// LatencyArbitrageConfig holds config for latency_arbitrage.
type LatencyArbitrageConfig struct {
	Enabled           bool                `toml:"enabled" yaml:"enabled"`
	Priority          int                 `toml:"priority" yaml:"priority"`
	MinEdge           float64             `toml:"min_edge" yaml:"min_edge"`
	MomentumThreshold float64             `toml:"momentum_threshold" yaml:"momentum_threshold"`
	MaxEntryPrice     float64             `toml:"max_entry_price" yaml:"max_entry_price"`
	FairValueCap      float64             `toml:"fair_value_cap" yaml:"fair_value_cap"`
	Sensitivity       float64             `toml:"sensitivity" yaml:"sensitivity"`
	Symbols           map[string][]string `toml:"symbols" yaml:"symbols"`
	Exit              ExitConfig          `toml:"exit" yaml:"exit"`
}

// BinaryHedgingConfig holds config for binary_hedging.
type BinaryHedgingConfig struct {
	Enabled       bool     `toml:"enabled" yaml:"enabled"`
	Priority      int      `toml:"priority" yaml:"priority"`
	MinDiscount   float64  `toml:"min_discount" yaml:"min_discount"`
	SumDiscount   float64  `toml:"sum_discount" yaml:"sum_discount"`
	MaxEntryPrice float64  `toml:"max_entry_price" yaml:"max_entry_price"`
	AverageWindow duration `toml:"average_window" yaml:"average_window"`
	MinSamples    int      `toml:"min_samples" yaml:"min_samples"`
}

// CombinatorialArbitrageConfig holds config for combinatorial_arbitrage.
type CombinatorialArbitrageConfig struct {
	Enabled            bool                `toml:"enabled" yaml:"enabled"`
	Priority           int                 `toml:"priority" yaml:"priority"`
	MinEdge            float64             `toml:"min_edge" yaml:"min_edge"`
	MaxMarketsPerCombo int                 `toml:"max_markets_per_combo" yaml:"max_markets_per_combo"`
	ComboNotionalUSD   float64             `toml:"combo_notional_usd" yaml:"combo_notional_usd"`
	AutoGroup          bool                `toml:"auto_group" yaml:"auto_group"`
	Groups             map[string][]string `toml:"groups" yaml:"groups"`
}

// MarketMakingConfig holds config for market_making.
type MarketMakingConfig struct {
	Enabled                 bool       `toml:"enabled" yaml:"enabled"`
	Priority                int        `toml:"priority" yaml:"priority"`
	MinSpread               float64    `toml:"min_spread" yaml:"min_spread"`
	VolatilityLookbackHours []int      `toml:"volatility_lookback_hours" yaml:"volatility_lookback_hours"`
	MaxVolatility           float64    `toml:"max_volatility" yaml:"max_volatility"`
	MinSamples              int        `toml:"min_samples" yaml:"min_samples"`
	QuoteNotionalUSD        float64    `toml:"quote_notional_usd" yaml:"quote_notional_usd"`
	Improve                 float64    `toml:"improve" yaml:"improve"`
	Exit                    ExitConfig `toml:"exit" yaml:"exit"`
}

// CadenceConfig holds the loop intervals and resolution thresholds.
type CadenceConfig struct {
	EvaluationInterval duration `toml:"evaluation_interval" yaml:"evaluation_interval"`
	MonitorInterval    duration `toml:"monitor_interval" yaml:"monitor_interval"`
	AutoResolveTimeout duration `toml:"auto_resolve_timeout" yaml:"auto_resolve_timeout"`
	StatusInterval     duration `toml:"status_interval" yaml:"status_interval"`
	ResolveUpper       float64  `toml:"resolve_upper" yaml:"resolve_upper"`
	ResolveLower       float64  `toml:"resolve_lower" yaml:"resolve_lower"`
	FailureCooldown    duration `toml:"failure_cooldown" yaml:"failure_cooldown"`
	HistorySpacing     duration `toml:"history_spacing" yaml:"history_spacing"`
	HistoryRetention   duration `toml:"history_retention" yaml:"history_retention"`
}

// TestingConfig controls the simulator and session output.
type TestingConfig struct {
	OutputDir       string  `toml:"output_dir" yaml:"output_dir"`
	GenerateReports bool    `toml:"generate_reports" yaml:"generate_reports"`
	ReportEvery     int     `toml:"report_every" yaml:"report_every"`
	FillProbability float64 `toml:"fill_probability" yaml:"fill_probability"`
	Seed            int64   `toml:"seed" yaml:"seed"`
	RestoreFrom     string  `toml:"restore_from" yaml:"restore_from"`
	// RecordFrames writes every cycle's markets and prices to a tape for
	// later replay.
	RecordFrames bool `toml:"record_frames" yaml:"record_frames"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled       bool   `toml:"enabled" yaml:"enabled"`
	DSN           string `toml:"dsn" yaml:"dsn"`
	Host          string `toml:"host" yaml:"host"`
	Port          int    `toml:"port" yaml:"port"`
	Database      string `toml:"database" yaml:"database"`
	User          string `toml:"user" yaml:"user"`
	Password      string `toml:"password" yaml:"password"`
	SSLMode       string `toml:"ssl_mode" yaml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns" yaml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns" yaml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations" yaml:"run_migrations"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Enabled    bool   `toml:"enabled" yaml:"enabled"`
	Addr       string `toml:"addr" yaml:"addr"`
	Password   string `toml:"password" yaml:"password"`
	DB         int    `toml:"db" yaml:"db"`
	PoolSize   int    `toml:"pool_size" yaml:"pool_size"`
	MaxRetries int    `toml:"max_retries" yaml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled" yaml:"tls_enabled"`
	StreamMax  int64  `toml:"stream_max_len" yaml:"stream_max_len"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Enabled        bool   `toml:"enabled" yaml:"enabled"`
	Endpoint       string `toml:"endpoint" yaml:"endpoint"`
	Region         string `toml:"region" yaml:"region"`
	Bucket         string `toml:"bucket" yaml:"bucket"`
	AccessKey      string `toml:"access_key" yaml:"access_key"`
	SecretKey      string `toml:"secret_key" yaml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl" yaml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style" yaml:"force_path_style"`
	Prefix         string `toml:"prefix" yaml:"prefix"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled" yaml:"enabled"`
	Port        int      `toml:"port" yaml:"port"`
	ApiKey      string   `toml:"api_key" yaml:"api_key"`
	CORSOrigins []string `toml:"cors_origins" yaml:"cors_origins"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token" yaml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id" yaml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url" yaml:"discord_webhook_url"`
	Events            []string `toml:"events" yaml:"events"`
}

// LogConfig enables a rotating log file next to stdout.
type LogConfig struct {
	File       string `toml:"file" yaml:"file"`
	MaxSizeMB  int    `toml:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int    `toml:"max_backups" yaml:"max_backups"`
	MaxAgeDays int    `toml:"max_age_days" yaml:"max_age_days"`
}

// duration is a wrapper around time.Duration that supports string decoding
// (e.g. "5m", "30s") from both TOML and YAML.
type duration struct {
	time.Duration
}

// Dur builds a duration value; exported for tests and callers that assemble
// a Config in code.
func Dur(d time.Duration) duration { return duration{d} }

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// UnmarshalYAML accepts "30s" style strings.
func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	return d.UnmarshalText([]byte(value.Value))
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Polymarket: PolymarketConfig{
			ClobHost:      "https://clob.polymarket.com",
			GammaHost:     "https://gamma-api.polymarket.com",
			ChainID:       137,
			SignatureType: 2,
			Exchange:      "0x4bFb41d5B3570DeFd03C39a9A4D8dE6Bd8B8982E",
			MarketLimit:   200,
		},
		Binance: BinanceConfig{
			Enabled: true,
			WsHost:  "wss://stream.binance.com:9443",
			Symbols: []string{"BTCUSDT", "ETHUSDT", "SOLUSDT"},
		},
		Feed: FeedConfig{
			Horizon:      duration{5 * time.Minute},
			ChangeWindow: duration{60 * time.Second},
			Capacity:     512,
			MaxStaleness: duration{30 * time.Second},
		},
		Trading: TradingConfig{
			MaxPositionSizeUSD: 1000,
			RiskPerTrade:       0.02,
			MinProfitThreshold: 0.025,
			MaxSlippage:        0.005,
			WinnerFee:          0.02,
			TakerFee:           0,
			StartingBalance:    1000,
			EdgeScale:          10,
			MaxScaling:         5,
		},
		Risk: RiskConfig{
			MaxTotalExposureUSD:  10000,
			MaxPositions:         20,
			MaxLossPerDayUSD:     500,
			EmergencyStopLossPct: 0.10,
		},
		Strategies: StrategiesConfig{
			LatencyArbitrage: LatencyArbitrageConfig{
				Enabled:           true,
				Priority:          1,
				MinEdge:           0.03,
				MomentumThreshold: 0.01,
				MaxEntryPrice:     0.6,
				FairValueCap:      0.85,
				Sensitivity:       10,
				Symbols: map[string][]string{
					"BTCUSDT": {"bitcoin", "btc"},
					"ETHUSDT": {"ethereum", "eth"},
					"SOLUSDT": {"solana", "sol"},
				},
				Exit: ExitConfig{TakeProfit: 1.5, StopLoss: 0.8, MaxHold: duration{14 * time.Minute}},
			},
			BinaryHedging: BinaryHedgingConfig{
				Enabled:       true,
				Priority:      2,
				MinDiscount:   0.034,
				SumDiscount:   0.02,
				MaxEntryPrice: 0.97,
				AverageWindow: duration{5 * time.Minute},
				MinSamples:    3,
			},
			CombinatorialArbitrage: CombinatorialArbitrageConfig{
				Enabled:            true,
				Priority:           3,
				MinEdge:            0.02,
				MaxMarketsPerCombo: 5,
				ComboNotionalUSD:   100,
				AutoGroup:          true,
				Groups:             map[string][]string{},
			},
			MarketMaking: MarketMakingConfig{
				Enabled:                 false,
				Priority:                4,
				MinSpread:               0.025,
				VolatilityLookbackHours: []int{3, 24, 168, 720},
				MaxVolatility:           0.05,
				MinSamples:              10,
				QuoteNotionalUSD:        50,
				Improve:                 0.001,
				Exit:                    ExitConfig{StopLoss: 0.95},
			},
		},
		Cadence: CadenceConfig{
			EvaluationInterval: duration{30 * time.Second},
			MonitorInterval:    duration{30 * time.Second},
			AutoResolveTimeout: duration{time.Hour},
			StatusInterval:     duration{5 * time.Minute},
			ResolveUpper:       0.99,
			ResolveLower:       0.01,
			FailureCooldown:    duration{2 * time.Minute},
			HistorySpacing:     duration{time.Minute},
			HistoryRetention:   duration{30 * 24 * time.Hour},
		},
		Testing: TestingConfig{
			OutputDir:       "simulation_results",
			GenerateReports: true,
			ReportEvery:     10,
			FillProbability: 1,
			Seed:            1,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "postgres",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
			StreamMax:  10000,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stratbot-sessions",
			ForcePathStyle: true,
			Prefix:         "sessions",
		},
		Server: ServerConfig{
			Enabled:     true,
			Port:        8000,
			CORSOrigins: []string{"http://localhost:3000"},
		},
		Notify: NotifyConfig{
			Events: []string{"drawdown_tripped", "position_resolved", "execution_failed", "invariant_violation"},
		},
		Log: LogConfig{
			MaxSizeMB:  100,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
		Mode:     "testing",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"testing": true,
	"live":    true,
	"monitor": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: testing, live, monitor)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Wallet and L2 credentials are only needed when real orders are placed.
	if strings.ToLower(c.Mode) == "live" {
		if c.Wallet.PrivateKey == "" && c.Wallet.EncryptedKeyPath == "" {
			errs = append(errs, "wallet: either private_key or encrypted_key_path must be set for mode live")
		}
		if c.Wallet.EncryptedKeyPath != "" && c.Wallet.KeyPassword == "" {
			errs = append(errs, "wallet: key_password is required when encrypted_key_path is set")
		}
		set := 0
		for _, v := range []string{c.Polymarket.ApiKey, c.Polymarket.ApiSecret, c.Polymarket.ApiPassphrase} {
			if v != "" {
				set++
			}
		}
		if set != 0 && set != 3 {
			errs = append(errs, "polymarket: api_key, api_secret and api_passphrase must be set together (or all left empty to derive them)")
		}
		if c.Polymarket.Exchange == "" {
			errs = append(errs, "polymarket: exchange_address is required for mode live")
		}
	}

	if c.Polymarket.GammaHost == "" {
		errs = append(errs, "polymarket: gamma_host must not be empty")
	}
	if c.Polymarket.ChainID <= 0 {
		errs = append(errs, "polymarket: chain_id must be positive")
	}
	if c.Polymarket.SignatureType < 0 || c.Polymarket.SignatureType > 2 {
		errs = append(errs, fmt.Sprintf("polymarket: signature_type must be 0 (EOA), 1 (proxy) or 2 (Safe), got %d", c.Polymarket.SignatureType))
	}

	if c.Binance.Enabled && len(c.Binance.Symbols) == 0 {
		errs = append(errs, "binance: symbols must not be empty when enabled")
	}

	if c.Feed.Capacity < 2 {
		errs = append(errs, "feed: capacity must be >= 2")
	}
	if c.Feed.Horizon.Duration < c.Feed.ChangeWindow.Duration {
		errs = append(errs, "feed: horizon must be >= change_window")
	}

	// Trading
	if c.Trading.MaxPositionSizeUSD <= 0 {
		errs = append(errs, "trading: max_position_size_usd must be > 0")
	}
	if c.Trading.RiskPerTrade <= 0 || c.Trading.RiskPerTrade > 1 {
		errs = append(errs, "trading: risk_per_trade must be in (0, 1]")
	}
	if c.Trading.MaxSlippage < 0 || c.Trading.MaxSlippage >= 1 {
		errs = append(errs, "trading: max_slippage must be in [0, 1)")
	}
	if c.Trading.WinnerFee < 0 || c.Trading.TakerFee < 0 {
		errs = append(errs, "trading: fees must be >= 0")
	}
	if strings.ToLower(c.Mode) != "live" && c.Trading.StartingBalance <= 0 {
		errs = append(errs, "trading: starting_balance must be > 0 outside live mode")
	}
	if c.Trading.MaxScaling <= 0 {
		errs = append(errs, "trading: max_scaling must be > 0")
	}

	// Risk
	if c.Risk.MaxTotalExposureUSD <= 0 {
		errs = append(errs, "risk_management: max_total_exposure_usd must be > 0")
	}
	if c.Risk.MaxPositions < 1 {
		errs = append(errs, "risk_management: max_positions must be >= 1")
	}
	if c.Risk.MaxLossPerDayUSD <= 0 {
		errs = append(errs, "risk_management: max_loss_per_day_usd must be > 0")
	}
	if c.Risk.EmergencyStopLossPct <= 0 || c.Risk.EmergencyStopLossPct > 1 {
		errs = append(errs, "risk_management: emergency_stop_loss_pct must be in (0, 1]")
	}

	// Strategies
	errs = append(errs, c.Strategies.validate()...)

	// Cadence
	if c.Cadence.EvaluationInterval.Duration <= 0 {
		errs = append(errs, "cadence: evaluation_interval must be > 0")
	}
	if c.Cadence.MonitorInterval.Duration <= 0 {
		errs = append(errs, "cadence: monitor_interval must be > 0")
	}
	if c.Cadence.AutoResolveTimeout.Duration <= 0 {
		errs = append(errs, "cadence: auto_resolve_timeout must be > 0")
	}
	if c.Cadence.ResolveLower < 0 || c.Cadence.ResolveUpper > 1 || c.Cadence.ResolveLower >= c.Cadence.ResolveUpper {
		errs = append(errs, "cadence: resolve_lower < resolve_upper must hold within [0, 1]")
	}

	if c.Testing.OutputDir == "" {
		errs = append(errs, "testing: output_dir must not be empty")
	}
	if c.Testing.FillProbability <= 0 || c.Testing.FillProbability > 1 {
		errs = append(errs, "testing: fill_probability must be in (0, 1]")
	}

	// Postgres
	if c.Postgres.Enabled {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	if c.Redis.Enabled {
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	}

	if c.S3.Enabled {
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	if c.Server.Enabled {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

func (s StrategiesConfig) validate() []string {
	var errs []string

	priorities := map[int]string{}
	claim := func(name string, enabled bool, p int) {
		if !enabled {
			return
		}
		if other, ok := priorities[p]; ok {
			errs = append(errs, fmt.Sprintf("strategies: %s and %s share priority %d", other, name, p))
			return
		}
		priorities[p] = name
	}
	claim("latency_arbitrage", s.LatencyArbitrage.Enabled, s.LatencyArbitrage.Priority)
	claim("binary_hedging", s.BinaryHedging.Enabled, s.BinaryHedging.Priority)
	claim("combinatorial_arbitrage", s.CombinatorialArbitrage.Enabled, s.CombinatorialArbitrage.Priority)
	claim("market_making", s.MarketMaking.Enabled, s.MarketMaking.Priority)

	if la := s.LatencyArbitrage; la.Enabled {
		if la.MinEdge <= 0 {
			errs = append(errs, "strategies.latency_arbitrage: min_edge must be > 0")
		}
		if la.MomentumThreshold <= 0 {
			errs = append(errs, "strategies.latency_arbitrage: momentum_threshold must be > 0")
		}
		if len(la.Symbols) == 0 {
			errs = append(errs, "strategies.latency_arbitrage: symbols must not be empty")
		}
	}
	if bh := s.BinaryHedging; bh.Enabled {
		if bh.MinDiscount <= 0 || bh.SumDiscount <= 0 {
			errs = append(errs, "strategies.binary_hedging: min_discount and sum_discount must be > 0")
		}
	}
	if ca := s.CombinatorialArbitrage; ca.Enabled {
		if ca.MaxMarketsPerCombo < 2 {
			errs = append(errs, "strategies.combinatorial_arbitrage: max_markets_per_combo must be >= 2")
		}
		if ca.ComboNotionalUSD <= 0 {
			errs = append(errs, "strategies.combinatorial_arbitrage: combo_notional_usd must be > 0")
		}
	}
	if mm := s.MarketMaking; mm.Enabled {
		if mm.MinSpread <= 0 {
			errs = append(errs, "strategies.market_making: min_spread must be > 0")
		}
		if len(mm.VolatilityLookbackHours) == 0 {
			errs = append(errs, "strategies.market_making: volatility_lookback_hours must not be empty")
		}
		if mm.QuoteNotionalUSD <= 0 {
			errs = append(errs, "strategies.market_making: quote_notional_usd must be > 0")
		}
	}
	sort.Strings(errs)
	return errs
}

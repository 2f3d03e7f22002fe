package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Load reads a configuration file at path, merges it on top of the built-in
// defaults, applies STRATBOT_* environment variable overrides, and returns the
// final Config. Files ending in .yaml or .yml are decoded as YAML, everything
// else as TOML. The returned Config has NOT been validated; the caller should
// invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("config: decode yaml: %w", err)
		}
	default:
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return nil, err
		}
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known STRATBOT_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the config file.
func applyEnvOverrides(cfg *Config) {
	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "STRATBOT_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SafeAddress, "STRATBOT_WALLET_SAFE_ADDRESS")
	setStr(&cfg.Wallet.EncryptedKeyPath, "STRATBOT_WALLET_ENCRYPTED_KEY_PATH")
	setStr(&cfg.Wallet.KeyPassword, "STRATBOT_WALLET_KEY_PASSWORD")

	// ── Polymarket ──
	setStr(&cfg.Polymarket.ClobHost, "STRATBOT_POLYMARKET_CLOB_HOST")
	setStr(&cfg.Polymarket.GammaHost, "STRATBOT_POLYMARKET_GAMMA_HOST")
	setInt(&cfg.Polymarket.ChainID, "STRATBOT_POLYMARKET_CHAIN_ID")
	setInt(&cfg.Polymarket.SignatureType, "STRATBOT_POLYMARKET_SIGNATURE_TYPE")
	setStr(&cfg.Polymarket.Exchange, "STRATBOT_POLYMARKET_EXCHANGE_ADDRESS")
	setInt(&cfg.Polymarket.MarketLimit, "STRATBOT_POLYMARKET_MARKET_LIMIT")
	setStr(&cfg.Polymarket.ApiKey, "STRATBOT_POLYMARKET_API_KEY")
	setStr(&cfg.Polymarket.ApiSecret, "STRATBOT_POLYMARKET_API_SECRET")
	setStr(&cfg.Polymarket.ApiPassphrase, "STRATBOT_POLYMARKET_API_PASSPHRASE")

	// ── Binance ──
	setBool(&cfg.Binance.Enabled, "STRATBOT_BINANCE_ENABLED")
	setStr(&cfg.Binance.WsHost, "STRATBOT_BINANCE_WS_HOST")
	setStringSlice(&cfg.Binance.Symbols, "STRATBOT_BINANCE_SYMBOLS")

	// ── Trading / risk ──
	setFloat64(&cfg.Trading.MaxPositionSizeUSD, "STRATBOT_TRADING_MAX_POSITION_SIZE_USD")
	setFloat64(&cfg.Trading.RiskPerTrade, "STRATBOT_TRADING_RISK_PER_TRADE")
	setFloat64(&cfg.Trading.MinProfitThreshold, "STRATBOT_TRADING_MIN_PROFIT_THRESHOLD")
	setFloat64(&cfg.Trading.MaxSlippage, "STRATBOT_TRADING_MAX_SLIPPAGE")
	setFloat64(&cfg.Trading.StartingBalance, "STRATBOT_TRADING_STARTING_BALANCE")
	setFloat64(&cfg.Risk.MaxTotalExposureUSD, "STRATBOT_RISK_MAX_TOTAL_EXPOSURE_USD")
	setInt(&cfg.Risk.MaxPositions, "STRATBOT_RISK_MAX_POSITIONS")
	setFloat64(&cfg.Risk.MaxLossPerDayUSD, "STRATBOT_RISK_MAX_LOSS_PER_DAY_USD")
	setFloat64(&cfg.Risk.EmergencyStopLossPct, "STRATBOT_RISK_EMERGENCY_STOP_LOSS_PCT")

	// ── Strategies ──
	setBool(&cfg.Strategies.LatencyArbitrage.Enabled, "STRATBOT_STRATEGIES_LATENCY_ARBITRAGE_ENABLED")
	setBool(&cfg.Strategies.BinaryHedging.Enabled, "STRATBOT_STRATEGIES_BINARY_HEDGING_ENABLED")
	setBool(&cfg.Strategies.CombinatorialArbitrage.Enabled, "STRATBOT_STRATEGIES_COMBINATORIAL_ARBITRAGE_ENABLED")
	setBool(&cfg.Strategies.MarketMaking.Enabled, "STRATBOT_STRATEGIES_MARKET_MAKING_ENABLED")

	// ── Cadence / testing ──
	setDuration(&cfg.Cadence.EvaluationInterval, "STRATBOT_CADENCE_EVALUATION_INTERVAL")
	setDuration(&cfg.Cadence.MonitorInterval, "STRATBOT_CADENCE_MONITOR_INTERVAL")
	setDuration(&cfg.Cadence.AutoResolveTimeout, "STRATBOT_CADENCE_AUTO_RESOLVE_TIMEOUT")
	setStr(&cfg.Testing.OutputDir, "STRATBOT_TESTING_OUTPUT_DIR")
	setInt64(&cfg.Testing.Seed, "STRATBOT_TESTING_SEED")
	setStr(&cfg.Testing.RestoreFrom, "STRATBOT_TESTING_RESTORE_FROM")
	setBool(&cfg.Testing.RecordFrames, "STRATBOT_TESTING_RECORD_FRAMES")

	// ── Postgres ──
	setBool(&cfg.Postgres.Enabled, "STRATBOT_POSTGRES_ENABLED")
	setStr(&cfg.Postgres.DSN, "STRATBOT_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "STRATBOT_DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "STRATBOT_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "STRATBOT_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "STRATBOT_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "STRATBOT_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "STRATBOT_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "STRATBOT_POSTGRES_SSL_MODE")
	setBool(&cfg.Postgres.RunMigrations, "STRATBOT_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setBool(&cfg.Redis.Enabled, "STRATBOT_REDIS_ENABLED")
	setStr(&cfg.Redis.Addr, "STRATBOT_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "STRATBOT_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "STRATBOT_REDIS_DB")
	setBool(&cfg.Redis.TLSEnabled, "STRATBOT_REDIS_TLS_ENABLED")

	// ── S3 ──
	setBool(&cfg.S3.Enabled, "STRATBOT_S3_ENABLED")
	setStr(&cfg.S3.Endpoint, "STRATBOT_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "STRATBOT_S3_REGION")
	setStr(&cfg.S3.Bucket, "STRATBOT_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "STRATBOT_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "STRATBOT_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "STRATBOT_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "STRATBOT_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setBool(&cfg.Server.Enabled, "STRATBOT_SERVER_ENABLED")
	setInt(&cfg.Server.Port, "STRATBOT_SERVER_PORT")
	setStr(&cfg.Server.ApiKey, "STRATBOT_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "STRATBOT_SERVER_CORS_ORIGINS")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "STRATBOT_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "STRATBOT_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "STRATBOT_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "STRATBOT_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Log.File, "STRATBOT_LOG_FILE")
	setStr(&cfg.Mode, "STRATBOT_MODE")
	setStr(&cfg.LogLevel, "STRATBOT_LOG_LEVEL")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setFloat64(dst *float64, key string) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// Command stratbot is the entry point for the strategy bot. It loads
// configuration, validates it, sets up logging and signal handling, and
// starts the application in the configured mode.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/alanyoungcy/stratbot/internal/app"
	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/crypto"
)

func main() {
	configPath := flag.String("config", "config.toml", "path to configuration file")
	exportPath := flag.String("export", "", "re-render the report and CSV for a session journal and exit")
	encryptOut := flag.String("encrypt-key", "", "encrypt wallet.private_key with wallet.key_password into this file and exit")
	replayPath := flag.String("replay", "", "replay a recorded frame tape through the simulator and exit")
	replayOnly := flag.String("strategies", "", "comma-separated strategies to run during -replay (default: every enabled one)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("failed to load config",
			slog.String("path", *configPath),
			slog.String("error", err.Error()),
		)
		os.Exit(1)
	}

	logger, closeLog := newLogger(cfg)
	defer closeLog()
	slog.SetDefault(logger)

	if *encryptOut != "" {
		if err := encryptKey(cfg, *encryptOut); err != nil {
			logger.Error("encrypt key failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("encrypted key written", slog.String("path", *encryptOut))
		return
	}

	if *exportPath != "" {
		art, err := app.ExportJournal(context.Background(), cfg, *exportPath, logger)
		if err != nil {
			logger.Error("export failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("session exported",
			slog.String("report", art.Report),
			slog.String("csv", art.CSV),
		)
		return
	}

	if *replayPath != "" {
		var only []string
		for _, name := range strings.Split(*replayOnly, ",") {
			if name = strings.TrimSpace(name); name != "" {
				only = append(only, name)
			}
		}
		art, res, err := app.Replay(context.Background(), cfg, *replayPath, only, logger)
		if err != nil {
			logger.Error("replay failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
		logger.Info("replay finished",
			slog.Int("frames", res.Frames),
			slog.Int("opened", res.Opened),
			slog.Int("settled", res.Settled),
			slog.Float64("total_pnl", res.Summary.TotalPnL),
			slog.String("report", art.Report),
			slog.String("csv", art.CSV),
		)
		return
	}

	if err := cfg.Validate(); err != nil {
		logger.Error("invalid configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	logger.Info("stratbot starting",
		slog.String("mode", cfg.Mode),
		slog.String("config", *configPath),
	)
	logger.Debug("effective configuration", slog.Any("config", config.RedactedConfig(cfg)))

	application := app.New(cfg, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err = application.Run(ctx)
	stop()
	application.Close()

	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("application exited with error",
			slog.String("error", err.Error()),
		)
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		closeLog()
		os.Exit(1)
	}

	logger.Info("stratbot stopped")
}

// newLogger builds the JSON logger at the configured level, teeing into a
// rotating file when log.file is set.
func newLogger(cfg *config.Config) (*slog.Logger, func()) {
	var level slog.Level
	switch strings.ToLower(cfg.LogLevel) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var out io.Writer = os.Stdout
	closeFn := func() {}
	if cfg.Log.File != "" {
		_ = os.MkdirAll(filepath.Dir(cfg.Log.File), 0o755)
		rotating := &lumberjack.Logger{
			Filename:   cfg.Log.File,
			MaxSize:    cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(os.Stdout, rotating)
		closeFn = func() { _ = rotating.Close() }
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closeFn
}

func encryptKey(cfg *config.Config, out string) error {
	if cfg.Wallet.PrivateKey == "" {
		return errors.New("wallet.private_key (or STRATBOT_WALLET_PRIVATE_KEY) is empty")
	}
	if cfg.Wallet.KeyPassword == "" {
		return errors.New("wallet.key_password (or STRATBOT_WALLET_KEY_PASSWORD) is empty")
	}
	data, err := crypto.EncryptKey(cfg.Wallet.PrivateKey, cfg.Wallet.KeyPassword)
	if err != nil {
		return err
	}
	return os.WriteFile(out, data, 0o600)
}

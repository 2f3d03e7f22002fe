package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/stratbot/internal/backtest"
	"github.com/alanyoungcy/stratbot/internal/crypto"
	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/executor"
	"github.com/alanyoungcy/stratbot/internal/feed"
	"github.com/alanyoungcy/stratbot/internal/ledger"
	"github.com/alanyoungcy/stratbot/internal/metrics"
	"github.com/alanyoungcy/stratbot/internal/notify"
	"github.com/alanyoungcy/stratbot/internal/orchestrator"
	"github.com/alanyoungcy/stratbot/internal/platform/polymarket"
	"github.com/alanyoungcy/stratbot/internal/pnl"
	"github.com/alanyoungcy/stratbot/internal/recorder"
	"github.com/alanyoungcy/stratbot/internal/risk"
	"github.com/alanyoungcy/stratbot/internal/server"
	"github.com/alanyoungcy/stratbot/internal/server/handler"
	"github.com/alanyoungcy/stratbot/internal/server/ws"
	"github.com/alanyoungcy/stratbot/internal/service"
	"github.com/alanyoungcy/stratbot/internal/simulator"
	"github.com/alanyoungcy/stratbot/internal/strategy"
)

// liveLockKey guards the wallet against a second live instance.
const liveLockKey = "live_trader"

// runtime is what differs between modes: the gateway orders go to (nil in
// monitor mode), the venue balance to reconcile against (live only), the
// starting balance and any extra goroutines.
type runtime struct {
	gateway domain.Gateway
	venue   service.BalanceSource
	balance float64
	tasks   []func(ctx context.Context) error
}

// TestingMode trades against the simulator with a paper balance.
func (a *App) TestingMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting testing mode",
		slog.Float64("starting_balance", a.cfg.Trading.StartingBalance),
		slog.Float64("fill_probability", a.cfg.Testing.FillProbability),
	)
	sim := simulator.New(simulator.Config{
		FillProbability: a.cfg.Testing.FillProbability,
		Slippage:        a.cfg.Trading.MaxSlippage,
		Seed:            a.cfg.Testing.Seed,
		Balance:         a.cfg.Trading.StartingBalance,
	}, a.logger)
	return a.serve(ctx, deps, runtime{gateway: sim, balance: a.cfg.Trading.StartingBalance})
}

// MonitorMode evaluates and logs opportunities without reserving capital.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")
	return a.serve(ctx, deps, runtime{balance: a.cfg.Trading.StartingBalance})
}

// LiveMode signs and submits real orders. The venue balance seeds the ledger.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting live mode")

	gw, err := a.buildGateway(ctx)
	if err != nil {
		return err
	}
	balance, err := gw.GetBalance(ctx)
	if err != nil {
		return fmt.Errorf("app: live mode: fetch venue balance: %w", err)
	}
	if balance <= 0 {
		return fmt.Errorf("app: live mode: venue balance is %.2f", balance)
	}
	a.logger.InfoContext(ctx, "venue balance", slog.Float64("balance", balance))

	rt := runtime{gateway: gw, venue: gw, balance: balance}
	if deps.Locks != nil {
		lease, err := deps.Locks.Lease(ctx, liveLockKey, 30*time.Second)
		if err != nil {
			return fmt.Errorf("app: live mode: another instance is trading: %w", err)
		}
		rt.tasks = append(rt.tasks, lease.Keep)
	} else {
		a.logger.WarnContext(ctx, "redis disabled, running live without the single-instance lock")
	}
	return a.serve(ctx, deps, rt)
}

func (a *App) buildGateway(ctx context.Context) (*polymarket.Gateway, error) {
	cfg := a.cfg
	key, err := crypto.LoadKey(crypto.KeyConfig{
		RawPrivateKey:    cfg.Wallet.PrivateKey,
		EncryptedKeyPath: cfg.Wallet.EncryptedKeyPath,
		KeyPassword:      cfg.Wallet.KeyPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("app: load wallet key: %w", err)
	}
	signer, err := crypto.NewSigner(key, int64(cfg.Polymarket.ChainID), cfg.Polymarket.Exchange)
	if err != nil {
		return nil, fmt.Errorf("app: signer: %w", err)
	}

	clob := polymarket.NewClobClient(cfg.Polymarket.ClobHost, signer, crypto.Credentials{
		Key:        cfg.Polymarket.ApiKey,
		Secret:     cfg.Polymarket.ApiSecret,
		Passphrase: cfg.Polymarket.ApiPassphrase,
	})
	gw, err := polymarket.NewGateway(clob, signer, polymarket.GatewayConfig{
		Funder:        cfg.Wallet.SafeAddress,
		SignatureType: cfg.Polymarket.SignatureType,
	}, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: gateway: %w", err)
	}
	if err := gw.Connect(ctx); err != nil {
		return nil, fmt.Errorf("app: connect to clob: %w", err)
	}
	a.logger.InfoContext(ctx, "clob connected",
		slog.String("signer", signer.Address().Hex()),
		slog.String("funder", cfg.Wallet.SafeAddress),
	)
	return gw, nil
}

// serve builds the core for one session, runs every loop until ctx ends or
// one of them fails, and then writes the session artifacts.
func (a *App) serve(ctx context.Context, deps *Dependencies, rt runtime) error {
	cfg := a.cfg
	mode := strings.ToLower(cfg.Mode)
	started := time.Now().UTC()
	session := recorder.SessionID(mode, started)
	logger := a.logger.With(slog.String("session", session))

	// Strategies and risk.
	rm := risk.NewManager(risk.LimitsFromConfig(cfg), logger)
	reg := strategy.NewRegistry(cfg.Strategies, strategy.Common{
		FeeRate:      cfg.Trading.WinnerFee,
		MaxStaleness: cfg.Feed.MaxStaleness.Duration,
	})
	enabled := reg.Enabled()
	if len(enabled) == 0 {
		logger.WarnContext(ctx, "no strategies enabled, the bot will only monitor open positions")
	}
	for _, info := range reg.ListInfo() {
		logger.InfoContext(ctx, "strategy",
			slog.String("name", info.Name),
			slog.Int("priority", info.Priority),
			slog.Bool("enabled", info.Enabled),
			slog.String("exit", info.Exit),
		)
	}
	engine := strategy.NewEngine(enabled, logger)

	// Prices and markets.
	agg := feed.NewAggregator(cfg.Feed.Capacity, cfg.Feed.Horizon.Duration, cfg.Feed.ChangeWindow.Duration)
	prices := service.NewPriceService(agg, deps.PriceCache, deps.SignalBus, logger)
	gamma := polymarket.NewGammaClient(cfg.Polymarket.GammaHost, cfg.Polymarket.MarketLimit)
	markets := service.NewMarketService(gamma, cfg.Cadence.HistorySpacing.Duration, cfg.Cadence.HistoryRetention.Duration, logger)

	// Ledger, restored before anything can reserve.
	book := ledger.New(rt.balance, rm, ledger.Options{
		Mode: mode,
		Fees: pnl.Fees{WinnerFee: cfg.Trading.WinnerFee, TakerFee: cfg.Trading.TakerFee},
	}, logger)
	if err := a.restore(ctx, deps, book); err != nil {
		return err
	}

	journal, err := recorder.OpenJournal(cfg.Testing.OutputDir, session, logger)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	book.AddObserver(journal)
	logger.InfoContext(ctx, "journal opened", slog.String("path", journal.Path()))

	sess := func() recorder.Session {
		return recorder.Session{ID: session, Mode: mode, Started: started, Ended: time.Now().UTC(), Account: book.Account()}
	}

	status := service.NewStatusReporter(mode, book, rm, rt.venue, cfg.Cadence.StatusInterval.Duration, logger)

	// Slow sinks run behind the relay.
	sinks := []service.EventSink{service.FuncSink{Label: "metrics", Fn: metrics.ObserveEvent}}
	if deps.AuditStore != nil {
		sinks = append(sinks, service.AuditSink{Audit: deps.AuditStore})
	}
	if deps.SignalBus != nil {
		sinks = append(sinks, service.BusSink{Bus: deps.SignalBus})
	}
	if deps.Notifier.Enabled() {
		sinks = append(sinks, service.NotifySink{Notifier: deps.Notifier})
	}
	var hub *ws.Hub
	if cfg.Server.Enabled {
		hub = ws.NewHub(deps.SignalBus, func() any { return status.Snapshot() }, logger)
		if deps.SignalBus == nil {
			sinks = append(sinks, service.FuncSink{Label: "ws_hub", Fn: hub.HandleEvent})
		}
	}
	relay := service.NewEventRelay(1024, logger, sinks...)
	book.AddObserver(relay)

	// Live restore reads the position store, so it gets its own relay that
	// never drops and is not held up by the notifier.
	var storeRelay *service.EventRelay
	if deps.PositionStore != nil {
		storeRelay = service.NewDurableRelay(256, 5, 200*time.Millisecond, logger, service.StoreSink{Positions: deps.PositionStore})
		book.AddObserver(storeRelay)
	}

	rm.OnTrip(func(account domain.AccountState) {
		// The latch trips under the ledger lock; alert off that path.
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			defer cancel()
			if err := deps.Notifier.Notify(ctx, notify.DrawdownAlert(account)); err != nil {
				logger.Warn("drawdown alert failed", slog.String("error", err.Error()))
			}
		}()
	})

	// Execution.
	var exec orchestrator.Executor
	if rt.gateway != nil {
		exec = executor.New(book, rt.gateway, rm, cfg.Cadence.FailureCooldown.Duration, logger)
	}
	orch := orchestrator.New(markets, prices, book, engine, exec, rm, cfg.Cadence.EvaluationInterval.Duration, logger)
	if cfg.Testing.RecordFrames {
		tape, err := backtest.OpenTape(cfg.Testing.OutputDir, session)
		if err != nil {
			return fmt.Errorf("app: %w", err)
		}
		defer tape.Close()
		orch.OnCycle(func(at time.Time, markets []domain.MarketSnapshot, prices domain.PriceSet) {
			if err := tape.Record(at, markets, prices); err != nil {
				logger.Warn("frame record failed", slog.String("error", err.Error()))
			}
		})
		logger.InfoContext(ctx, "recording frames", slog.String("path", tape.Path()))
	}

	monitor := service.NewResolutionMonitor(book, markets, rm, reg, service.MonitorConfig{
		Interval:     cfg.Cadence.MonitorInterval.Duration,
		ResolveUpper: cfg.Cadence.ResolveUpper,
		ResolveLower: cfg.Cadence.ResolveLower,
		Timeout:      cfg.Cadence.AutoResolveTimeout.Duration,
		ReportEvery:  cfg.Testing.ReportEvery,
	}, logger)
	if cfg.Testing.GenerateReports {
		monitor.OnReport(func(ctx context.Context) {
			if _, err := recorder.Export(cfg.Testing.OutputDir, sess(), book.Positions()); err != nil {
				logger.WarnContext(ctx, "periodic report failed", slog.String("error", err.Error()))
				return
			}
			status.Log(ctx)
		})
	}

	// The relay outlives the loops so the last transitions still reach the
	// sinks.
	relayCtx, stopRelay := context.WithCancel(context.Background())
	relayDone := make(chan struct{})
	go func() {
		defer close(relayDone)
		_ = relay.Run(relayCtx)
	}()
	storeDone := make(chan struct{})
	go func() {
		defer close(storeDone)
		if storeRelay != nil {
			_ = storeRelay.Run(relayCtx)
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if cfg.Binance.Enabled {
		tickers := feed.NewTickerFeed(cfg.Binance.WsHost, cfg.Binance.Symbols, prices.HandleTick, logger)
		g.Go(func() error {
			defer tickers.Close()
			return tickers.Run(gctx)
		})
	} else {
		logger.WarnContext(ctx, "binance feed disabled, latency arbitrage has no reference prices")
	}

	g.Go(func() error { return orch.Run(gctx) })
	g.Go(func() error { return monitor.Run(gctx) })
	g.Go(func() error { return status.Run(gctx) })

	if cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        cfg.Server.Port,
			CORSOrigins: cfg.Server.CORSOrigins,
			APIKey:      cfg.Server.ApiKey,
		}, server.Handlers{
			Health:    handler.NewHealthHandler(started, book.Halted),
			Status:    handler.NewStatusHandler(status, reg.ListInfo),
			Positions: handler.NewPositionHandler(mode, book, deps.PositionStore, logger),
			Report:    handler.NewReportHandler(sess, book, logger),
		}, hub, logger)
		g.Go(func() error { return hub.Run(gctx) })
		g.Go(func() error { return srv.Run(gctx) })
	}

	for _, task := range rt.tasks {
		g.Go(func() error { return task(gctx) })
	}

	runErr := g.Wait()
	if errors.Is(runErr, context.Canceled) && ctx.Err() != nil {
		runErr = nil
	}
	if errors.Is(runErr, domain.ErrInvariantViolation) {
		nctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		if err := deps.Notifier.Notify(nctx, notify.InvariantAlert(runErr)); err != nil {
			logger.Warn("invariant alert failed", slog.String("error", err.Error()))
		}
		cancel()
	}

	stopRelay()
	<-relayDone
	<-storeDone
	if storeRelay != nil && storeRelay.Dropped() > 0 {
		logger.Error("position store missed transitions, restore from the journal",
			slog.Int64("dropped", storeRelay.Dropped()),
			slog.String("journal", journal.Path()),
		)
	}

	a.finalize(deps, journal, sess(), book.Positions(), logger)
	status.Log(context.Background())
	return runErr
}

// restore rebuilds the ledger from a journal file when one is configured,
// or from the live rows in the position store in live mode.
func (a *App) restore(ctx context.Context, deps *Dependencies, book *ledger.Ledger) error {
	var (
		positions []domain.Position
		source    string
		err       error
	)
	switch {
	case a.cfg.Testing.RestoreFrom != "":
		source = a.cfg.Testing.RestoreFrom
		positions, err = recorder.ReplayFile(source)
	case strings.ToLower(a.cfg.Mode) == "live" && deps.PositionStore != nil:
		source = "position_store"
		positions, err = deps.PositionStore.ListLive(ctx)
	default:
		return nil
	}
	if err != nil {
		return fmt.Errorf("app: restore from %s: %w", source, err)
	}
	if len(positions) == 0 {
		return nil
	}
	if err := book.Restore(ctx, positions); err != nil {
		return fmt.Errorf("app: restore from %s: %w", source, err)
	}
	a.logger.InfoContext(ctx, "ledger restored", slog.String("source", source), slog.Int("positions", len(positions)))
	return nil
}

// finalize writes the report and CSV, closes the journal and archives the
// session files when object storage is configured.
func (a *App) finalize(deps *Dependencies, journal *recorder.Journal, sess recorder.Session, positions []domain.Position, logger *slog.Logger) {
	art, err := recorder.Export(a.cfg.Testing.OutputDir, sess, positions)
	if err != nil {
		logger.Error("final report failed", slog.String("error", err.Error()))
	} else {
		logger.Info("session report written",
			slog.String("report", art.Report),
			slog.String("csv", art.CSV),
		)
	}
	if err := journal.Close(); err != nil {
		logger.Warn("journal close failed", slog.String("error", err.Error()))
	}

	summary := recorder.Summarize(positions)
	logger.Info("session summary",
		slog.Int("positions", summary.Total),
		slog.Int("settled", summary.Settled),
		slog.Int("open", summary.Open),
		slog.Float64("win_rate", summary.WinRate),
		slog.Float64("total_pnl", summary.TotalPnL),
		slog.Float64("total_fees", summary.TotalFees),
		slog.Int("journal_records", journal.Written()),
	)

	if deps.BlobWriter == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	keys, err := recorder.Archive(ctx, deps.BlobWriter, a.cfg.S3.Prefix, sess.ID, journal.Path(), art.Report, art.CSV)
	if err != nil {
		logger.Error("session archive failed", slog.String("error", err.Error()))
		return
	}
	logger.Info("session archived", slog.Int("files", len(keys)), slog.String("bucket", a.cfg.S3.Bucket))
}

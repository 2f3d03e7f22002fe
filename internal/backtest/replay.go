package backtest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/executor"
	"github.com/alanyoungcy/stratbot/internal/ledger"
	"github.com/alanyoungcy/stratbot/internal/orchestrator"
	"github.com/alanyoungcy/stratbot/internal/pnl"
	"github.com/alanyoungcy/stratbot/internal/recorder"
	"github.com/alanyoungcy/stratbot/internal/risk"
	"github.com/alanyoungcy/stratbot/internal/service"
	"github.com/alanyoungcy/stratbot/internal/simulator"
	"github.com/alanyoungcy/stratbot/internal/strategy"
)

// Mode labels replayed positions and journals.
const Mode = "backtest"

// Result is the outcome of a replay.
type Result struct {
	Frames    int
	Opened    int
	Rejected  int
	Failed    int
	Settled   int
	Account   domain.AccountState
	Positions []domain.Position
	Summary   recorder.Summary
}

// cursor serves the current frame to the orchestrator and the resolution
// monitor.
type cursor struct{ frame Frame }

func (c *cursor) ListMarkets(context.Context) ([]domain.MarketSnapshot, error) {
	return c.frame.Markets, nil
}

func (c *cursor) PriceSet(time.Time) domain.PriceSet { return c.frame.Prices }

func (c *cursor) GetMarket(_ context.Context, marketID string) (domain.MarketSnapshot, error) {
	m, ok := c.frame.Market(marketID)
	if !ok {
		return domain.MarketSnapshot{}, fmt.Errorf("market %s: %w", marketID, domain.ErrNotFound)
	}
	return m, nil
}

// Replayer drives recorded frames through the same engine, risk manager,
// executor and ledger the testing mode uses, with the clock pinned to each
// frame.
type Replayer struct {
	cfg    *config.Config
	only   []string
	logger *slog.Logger
}

// NewReplayer creates a Replayer. When only is non-empty just the named
// strategies run; each must be enabled in cfg.
func NewReplayer(cfg *config.Config, only []string, logger *slog.Logger) *Replayer {
	return &Replayer{cfg: cfg, only: only, logger: logger.With(slog.String("component", "backtest"))}
}

// Run replays frames in order. Each frame first settles what its markets
// resolve, then runs one evaluation cycle. Observers see every ledger
// transition, so a journal can be attached.
func (r *Replayer) Run(ctx context.Context, frames []Frame, observers ...ledger.Observer) (Result, error) {
	cfg := r.cfg
	if len(frames) == 0 {
		return Result{}, errors.New("backtest: no frames")
	}

	reg := strategy.NewRegistry(cfg.Strategies, strategy.Common{
		FeeRate:      cfg.Trading.WinnerFee,
		MaxStaleness: cfg.Feed.MaxStaleness.Duration,
	})
	strategies, err := r.selectStrategies(reg)
	if err != nil {
		return Result{}, err
	}

	now := frames[0].At
	clock := func() time.Time { return now }

	rm := risk.NewManager(risk.LimitsFromConfig(cfg), r.logger)
	book := ledger.New(cfg.Trading.StartingBalance, rm, ledger.Options{
		Mode: Mode,
		Fees: pnl.Fees{WinnerFee: cfg.Trading.WinnerFee, TakerFee: cfg.Trading.TakerFee},
		Now:  clock,
	}, r.logger)
	for _, o := range observers {
		book.AddObserver(o)
	}

	sim := simulator.New(simulator.Config{
		FillProbability: cfg.Testing.FillProbability,
		Slippage:        cfg.Trading.MaxSlippage,
		Seed:            cfg.Testing.Seed,
		Balance:         cfg.Trading.StartingBalance,
	}, r.logger)
	exec := executor.New(book, sim, rm, cfg.Cadence.FailureCooldown.Duration, r.logger)

	cur := &cursor{}
	orch := orchestrator.New(cur, cur, book, strategy.NewEngine(strategies, r.logger), exec, rm, time.Second, r.logger)
	monitor := service.NewResolutionMonitor(book, cur, rm, reg, service.MonitorConfig{
		ResolveUpper: cfg.Cadence.ResolveUpper,
		ResolveLower: cfg.Cadence.ResolveLower,
		Timeout:      cfg.Cadence.AutoResolveTimeout.Duration,
	}, r.logger)
	monitor.SetClock(clock)

	var res Result
	for i, fr := range frames {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		now = fr.At
		cur.frame = fr

		settled, err := monitor.Sweep(ctx)
		res.Settled += settled
		if err != nil {
			return res, fmt.Errorf("backtest: frame %d: %w", i, err)
		}

		cycle, err := orch.RunCycle(ctx)
		res.Opened += cycle.Opened
		res.Rejected += cycle.Rejected
		res.Failed += cycle.Failed
		if err != nil {
			return res, fmt.Errorf("backtest: frame %d: %w", i, err)
		}
		res.Frames++
	}

	res.Account = book.Account()
	res.Positions = book.Positions()
	res.Summary = recorder.Summarize(res.Positions)
	r.logger.InfoContext(ctx, "replay complete",
		slog.Int("frames", res.Frames),
		slog.Int("opened", res.Opened),
		slog.Int("settled", res.Settled),
		slog.Float64("balance", res.Account.CurrentBalance),
		slog.Float64("total_pnl", res.Summary.TotalPnL),
	)
	return res, nil
}

func (r *Replayer) selectStrategies(reg *strategy.Registry) ([]strategy.Strategy, error) {
	if len(r.only) == 0 {
		return reg.Enabled(), nil
	}
	out := make([]strategy.Strategy, 0, len(r.only))
	for _, name := range r.only {
		s, err := reg.Get(name)
		if err != nil {
			return nil, fmt.Errorf("backtest: %w", err)
		}
		out = append(out, s)
	}
	return out, nil
}

package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/strategy"
)

// PositionBook is the part of the ledger the monitor settles against.
type PositionBook interface {
	Open() []domain.Position
	Mark(id string, price float64) error
	Resolve(ctx context.Context, id string, settlement float64) (domain.Position, error)
	Close(ctx context.Context, id string, exit float64, reason string) (domain.Position, error)
	Expire(ctx context.Context, id string, mark float64) (domain.Position, error)
	Account() domain.AccountState
}

// MarketGetter fetches one market snapshot.
type MarketGetter interface {
	GetMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error)
}

// DrawdownChecker trips the kill-switch on excessive drawdown.
type DrawdownChecker interface {
	CheckDrawdown(account domain.AccountState) bool
}

// ExitPolicies resolves a strategy's voluntary exit rules.
type ExitPolicies interface {
	Exit(strategy string) strategy.ExitPolicy
}

// MonitorConfig controls the resolution sweep.
type MonitorConfig struct {
	Interval     time.Duration
	ResolveUpper float64
	ResolveLower float64
	// Timeout expires positions held this long at their last mark.
	Timeout time.Duration
	// ReportEvery triggers OnReport after this many settlements.
	ReportEvery int
}

// ResolutionMonitor walks OPEN positions, marks them and settles the ones
// whose market has resolved, crossed a threshold, hit an exit rule or timed
// out.
type ResolutionMonitor struct {
	book     PositionBook
	markets  MarketGetter
	risk     DrawdownChecker
	exits    ExitPolicies
	cfg      MonitorConfig
	onReport func(ctx context.Context)
	now      func() time.Time

	settled int
	logger  *slog.Logger
}

// NewResolutionMonitor creates a ResolutionMonitor.
func NewResolutionMonitor(
	book PositionBook,
	markets MarketGetter,
	risk DrawdownChecker,
	exits ExitPolicies,
	cfg MonitorConfig,
	logger *slog.Logger,
) *ResolutionMonitor {
	if cfg.Interval <= 0 {
		cfg.Interval = 30 * time.Second
	}
	return &ResolutionMonitor{
		book:    book,
		markets: markets,
		risk:    risk,
		exits:   exits,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "resolution_monitor")),
	}
}

// OnReport registers fn to run every ReportEvery settlements.
func (m *ResolutionMonitor) OnReport(fn func(ctx context.Context)) {
	m.onReport = fn
}

// SetClock replaces the wall clock used for hold times and timeouts.
func (m *ResolutionMonitor) SetClock(now func() time.Time) {
	m.now = now
}

// Run sweeps every Interval until ctx is cancelled or an invariant
// violation surfaces.
func (m *ResolutionMonitor) Run(ctx context.Context) error {
	m.logger.Info("resolution monitor started", slog.Duration("interval", m.cfg.Interval))
	defer m.logger.Info("resolution monitor stopped")

	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if _, err := m.Sweep(ctx); err != nil {
				if errors.Is(err, domain.ErrInvariantViolation) {
					return err
				}
				m.logger.ErrorContext(ctx, "resolution sweep failed", slog.String("error", err.Error()))
			}
		}
	}
}

// Sweep runs one pass and returns how many positions it settled.
func (m *ResolutionMonitor) Sweep(ctx context.Context) (int, error) {
	open := m.book.Open()
	if len(open) == 0 {
		return 0, nil
	}

	markets := make(map[string]*domain.MarketSnapshot)
	var count int
	for _, pos := range open {
		snap, fetched := markets[pos.MarketID]
		if !fetched {
			got, err := m.markets.GetMarket(ctx, pos.MarketID)
			if err != nil {
				m.logger.DebugContext(ctx, "market fetch failed",
					slog.String("market_id", pos.MarketID),
					slog.String("error", err.Error()),
				)
			} else {
				snap = &got
			}
			markets[pos.MarketID] = snap
		}

		settled, err := m.evaluate(ctx, pos, snap)
		if err != nil {
			if errors.Is(err, domain.ErrInvariantViolation) {
				return count, err
			}
			m.logger.WarnContext(ctx, "settlement failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		if settled {
			count++
			m.settled++
			if m.onReport != nil && m.cfg.ReportEvery > 0 && m.settled%m.cfg.ReportEvery == 0 {
				m.onReport(ctx)
			}
		}
	}

	m.risk.CheckDrawdown(m.book.Account())
	return count, nil
}

func (m *ResolutionMonitor) evaluate(ctx context.Context, pos domain.Position, snap *domain.MarketSnapshot) (bool, error) {
	now := m.now()

	if snap != nil {
		if snap.Resolved() {
			settlement := 0.0
			if domain.NormalizeOutcome(snap.Winner) == pos.Outcome {
				settlement = 1.0
			}
			return m.settle(ctx, pos, "venue resolved", func() (domain.Position, error) {
				return m.book.Resolve(ctx, pos.ID, settlement)
			})
		}

		if price, ok := snap.Price(pos.Outcome); ok && price > 0 {
			if err := m.book.Mark(pos.ID, price); err != nil {
				return false, fmt.Errorf("resolution_monitor: mark: %w", err)
			}
			pos.LastMark = price

			switch {
			case price >= m.cfg.ResolveUpper:
				return m.settle(ctx, pos, "price above resolve threshold", func() (domain.Position, error) {
					return m.book.Resolve(ctx, pos.ID, 1.0)
				})
			case price <= m.cfg.ResolveLower:
				return m.settle(ctx, pos, "price below resolve threshold", func() (domain.Position, error) {
					return m.book.Resolve(ctx, pos.ID, 0.0)
				})
			}

			if reason, exit := m.exits.Exit(pos.Strategy).Check(pos, price, now); exit {
				return m.settle(ctx, pos, reason, func() (domain.Position, error) {
					return m.book.Close(ctx, pos.ID, price, reason)
				})
			}
		}
	}

	if m.cfg.Timeout > 0 && pos.Held(now) >= m.cfg.Timeout {
		return m.settle(ctx, pos, "auto-resolve timeout", func() (domain.Position, error) {
			return m.book.Expire(ctx, pos.ID, pos.LastMark)
		})
	}
	return false, nil
}

func (m *ResolutionMonitor) settle(ctx context.Context, pos domain.Position, why string, do func() (domain.Position, error)) (bool, error) {
	done, err := do()
	if err != nil {
		return false, err
	}
	pnl := 0.0
	if done.RealizedPnL != nil {
		pnl = *done.RealizedPnL
	}
	m.logger.InfoContext(ctx, "position settled",
		slog.String("position_id", pos.ID),
		slog.String("strategy", pos.Strategy),
		slog.String("market_id", pos.MarketID),
		slog.String("state", string(done.State)),
		slog.String("reason", why),
		slog.Float64("realized_pnl", pnl),
	)
	return true, nil
}

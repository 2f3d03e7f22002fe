package service

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/recorder"
	"github.com/alanyoungcy/stratbot/internal/risk"
)

// Ledger is the read side of the position ledger.
type Ledger interface {
	Account() domain.AccountState
	Positions(states ...domain.PositionState) []domain.Position
}

// RiskMetrics exposes limit utilisation.
type RiskMetrics interface {
	Metrics(account domain.AccountState) risk.Metrics
}

// BalanceSource reports the venue-side balance.
type BalanceSource interface {
	GetBalance(ctx context.Context) (float64, error)
}

// Status is one point-in-time view of the session.
type Status struct {
	Mode    string              `json:"mode"`
	Account domain.AccountState `json:"account"`
	PnL     float64             `json:"pnl"`
	PnLPct  float64             `json:"pnl_pct"`
	Risk    risk.Metrics        `json:"risk"`
	Summary recorder.Summary    `json:"summary"`
	AsOf    time.Time           `json:"as_of"`
}

// StatusReporter logs account and per-strategy status on an interval and,
// when a venue balance source is set, the drift between the ledger balance
// and the venue.
type StatusReporter struct {
	mode     string
	ledger   Ledger
	risk     RiskMetrics
	venue    BalanceSource
	interval time.Duration
	now      func() time.Time
	logger   *slog.Logger
}

// NewStatusReporter creates a StatusReporter. venue may be nil.
func NewStatusReporter(mode string, ledger Ledger, rm RiskMetrics, venue BalanceSource, interval time.Duration, logger *slog.Logger) *StatusReporter {
	if interval <= 0 {
		interval = time.Minute
	}
	return &StatusReporter{
		mode:     mode,
		ledger:   ledger,
		risk:     rm,
		venue:    venue,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "status")),
	}
}

// Snapshot builds the current Status.
func (r *StatusReporter) Snapshot() Status {
	account := r.ledger.Account()
	st := Status{
		Mode:    r.mode,
		Account: account,
		PnL:     account.TotalPnL(),
		Risk:    r.risk.Metrics(account),
		Summary: recorder.Summarize(r.ledger.Positions()),
		AsOf:    r.now(),
	}
	if account.StartingBalance > 0 {
		st.PnLPct = st.PnL / account.StartingBalance * 100
	}
	return st
}

// Run logs status every interval until ctx is cancelled.
func (r *StatusReporter) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.Log(ctx)
		}
	}
}

// Log writes one status record, then reconciles the venue balance.
func (r *StatusReporter) Log(ctx context.Context) {
	st := r.Snapshot()
	r.logger.InfoContext(ctx, "status",
		slog.String("mode", st.Mode),
		slog.Float64("balance", st.Account.CurrentBalance),
		slog.Float64("start_balance", st.Account.StartingBalance),
		slog.Float64("pnl", st.PnL),
		slog.Float64("pnl_pct", st.PnLPct),
		slog.Float64("exposure_usd", st.Risk.ExposureUSD),
		slog.Float64("exposure_pct", st.Risk.ExposurePct),
		slog.Float64("today_pnl", st.Account.TodayRealizedPnL),
		slog.Int("open_positions", st.Account.OpenPositionCount),
		slog.Bool("drawdown_tripped", st.Risk.Tripped),
	)
	for _, s := range st.Summary.Strategies {
		r.logger.InfoContext(ctx, "strategy status",
			slog.String("strategy", s.Strategy),
			slog.Int("trades", s.Trades),
			slog.Float64("win_rate", s.WinRate),
			slog.Float64("net_pnl", s.NetPnL),
			slog.Int("open", s.Open),
		)
	}

	if r.venue != nil {
		r.Reconcile(ctx, st.Account.CurrentBalance)
	}
}

// Reconcile compares the ledger balance with the venue and logs the drift.
// It returns the drift (venue minus ledger).
func (r *StatusReporter) Reconcile(ctx context.Context, ledgerBalance float64) (float64, error) {
	venue, err := r.venue.GetBalance(ctx)
	if err != nil {
		r.logger.WarnContext(ctx, "balance reconciliation failed", slog.String("error", err.Error()))
		return 0, err
	}
	drift := venue - ledgerBalance
	level := slog.LevelInfo
	if math.Abs(drift) >= 1 {
		level = slog.LevelWarn
	}
	r.logger.Log(ctx, level, "balance reconciliation",
		slog.Float64("venue_balance", venue),
		slog.Float64("ledger_balance", ledgerBalance),
		slog.Float64("drift", drift),
	)
	return drift, nil
}

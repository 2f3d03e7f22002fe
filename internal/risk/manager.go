// Package risk is the single authority over capital allocation. Every
// candidate opportunity is validated and sized here before the ledger may
// reserve it.
package risk

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Check names, in evaluation order.
const (
	CheckDailyLoss     = "daily_loss"
	CheckDrawdown      = "drawdown"
	CheckPositionCount = "position_count"
	CheckExposure      = "exposure"
	CheckEdgeFloor     = "edge_floor"
	CheckSizing        = "sizing"
)

// Limits are the configured account and per-trade limits.
type Limits struct {
	MaxPositionSizeUSD   float64
	RiskPerTrade         float64
	MinProfitThreshold   float64
	MaxSlippage          float64
	MaxTotalExposureUSD  float64
	MaxPositions         int
	MaxLossPerDayUSD     float64
	EmergencyStopLossPct float64
	// EdgeScale and MaxScaling shape the sizing curve.
	EdgeScale  float64
	MaxScaling float64
}

// LimitsFromConfig collects the trading and risk limits from cfg.
func LimitsFromConfig(cfg *config.Config) Limits {
	return Limits{
		MaxPositionSizeUSD:   cfg.Trading.MaxPositionSizeUSD,
		RiskPerTrade:         cfg.Trading.RiskPerTrade,
		MinProfitThreshold:   cfg.Trading.MinProfitThreshold,
		MaxSlippage:          cfg.Trading.MaxSlippage,
		MaxTotalExposureUSD:  cfg.Risk.MaxTotalExposureUSD,
		MaxPositions:         cfg.Risk.MaxPositions,
		MaxLossPerDayUSD:     cfg.Risk.MaxLossPerDayUSD,
		EmergencyStopLossPct: cfg.Risk.EmergencyStopLossPct,
		EdgeScale:            cfg.Trading.EdgeScale,
		MaxScaling:           cfg.Trading.MaxScaling,
	}
}

// RejectionError explains why an opportunity was refused.
type RejectionError struct {
	Check  string
	Reason string
}

func (e *RejectionError) Error() string {
	return fmt.Sprintf("risk: %s: %s", e.Check, e.Reason)
}

// Unwrap maps the drawdown check to ErrDrawdownTripped and every other check
// to ErrRiskLimitExceeded.
func (e *RejectionError) Unwrap() error {
	if e.Check == CheckDrawdown {
		return domain.ErrDrawdownTripped
	}
	return domain.ErrRiskLimitExceeded
}

// RejectedCheck returns the check name carried by err, if any.
func RejectedCheck(err error) (string, bool) {
	var rej *RejectionError
	if errors.As(err, &rej) {
		return rej.Check, true
	}
	return "", false
}

// Approval is a sized, approved order.
type Approval struct {
	NotionalUSD float64
	Size        float64
	LimitPrice  float64
	// Requested is the pre-clamp notional the exposure check used.
	Requested float64
}

// Metrics summarises headroom against every limit.
type Metrics struct {
	ExposureUSD        float64 `json:"exposure_usd"`
	ExposurePct        float64 `json:"exposure_pct"`
	DailyLossRemaining float64 `json:"daily_loss_remaining"`
	PositionsRemaining int     `json:"positions_remaining"`
	DrawdownPct        float64 `json:"drawdown_pct"`
	Tripped            bool    `json:"drawdown_tripped"`
}

// Manager validates and sizes opportunities. It holds no account state of its
// own except the drawdown latch, which never resets for the life of the
// Manager.
type Manager struct {
	limits  Limits
	tripped atomic.Bool
	onTrip  func(domain.AccountState)
	once    sync.Once
	logger  *slog.Logger
}

// NewManager creates a Manager.
func NewManager(limits Limits, logger *slog.Logger) *Manager {
	if limits.MaxScaling <= 0 {
		limits.MaxScaling = 5
	}
	return &Manager{
		limits: limits,
		logger: logger.With(slog.String("component", "risk")),
	}
}

// Limits returns the configured limits.
func (m *Manager) Limits() Limits { return m.limits }

// OnTrip registers fn to run once, the first time the latch trips. It is
// called while the ledger lock is held and must not block.
func (m *Manager) OnTrip(fn func(domain.AccountState)) {
	m.onTrip = fn
}

// Tripped reports whether the drawdown latch is set.
func (m *Manager) Tripped() bool { return m.tripped.Load() }

// CheckDrawdown trips the latch when the account's drawdown has reached the
// emergency threshold. It reports the latch state afterwards.
func (m *Manager) CheckDrawdown(account domain.AccountState) bool {
	if m.tripped.Load() {
		return true
	}
	if m.limits.EmergencyStopLossPct > 0 && account.Drawdown() >= m.limits.EmergencyStopLossPct {
		m.trip(account)
	}
	return m.tripped.Load()
}

func (m *Manager) trip(account domain.AccountState) {
	if !m.tripped.CompareAndSwap(false, true) {
		return
	}
	m.logger.Error("drawdown kill-switch tripped, new trading halted",
		slog.Float64("starting_balance", account.StartingBalance),
		slog.Float64("current_balance", account.CurrentBalance),
		slog.Float64("drawdown_pct", account.Drawdown()*100),
		slog.Float64("threshold_pct", m.limits.EmergencyStopLossPct*100),
	)
	m.once.Do(func() {
		if m.onTrip != nil {
			account.DrawdownTripped = true
			m.onTrip(account)
		}
	})
}

// Scaling is the Kelly-style multiplier applied to risk_per_trade × balance.
// It is non-decreasing in both edge and confidence and capped at MaxScaling.
func (m *Manager) Scaling(edge, confidence float64) float64 {
	s := clamp(confidence, 0, 1) * (1 + m.limits.EdgeScale*math.Max(edge, 0))
	return math.Min(s, m.limits.MaxScaling)
}

// KellySize is risk_per_trade × balance × scaling, bounded by the per-trade
// cap.
func (m *Manager) KellySize(edge, confidence, balance float64) float64 {
	size := m.limits.RiskPerTrade * math.Max(balance, 0) * m.Scaling(edge, confidence)
	return math.Min(size, m.limits.MaxPositionSizeUSD)
}

// ValidateAndSize runs the ordered checks and short-circuits on the first
// failure:
//
//  1. daily loss limit, unless the drawdown latch has already tripped
//  2. drawdown latch
//  3. position count ceiling
//  4. exposure ceiling
//  5. per-trade cap (clamp)
//  6. edge floor
//
// The approved notional is min(clamped request, Kelly size).
func (m *Manager) ValidateAndSize(opp domain.Opportunity, account domain.AccountState) (Approval, error) {
	l := m.limits

	// A tripped latch outranks every other reason.
	if m.tripped.Load() {
		return Approval{}, m.reject(opp, CheckDrawdown,
			fmt.Sprintf("latched at drawdown %.2f%%", account.Drawdown()*100))
	}

	if account.TodayRealizedPnL <= -l.MaxLossPerDayUSD {
		return Approval{}, m.reject(opp, CheckDailyLoss,
			fmt.Sprintf("today pnl %.2f at or below -%.2f", account.TodayRealizedPnL, l.MaxLossPerDayUSD))
	}

	if m.CheckDrawdown(account) {
		return Approval{}, m.reject(opp, CheckDrawdown,
			fmt.Sprintf("latched at drawdown %.2f%%", account.Drawdown()*100))
	}

	if account.OpenPositionCount >= l.MaxPositions {
		return Approval{}, m.reject(opp, CheckPositionCount,
			fmt.Sprintf("%d/%d positions", account.OpenPositionCount, l.MaxPositions))
	}

	kelly := m.KellySize(opp.Edge, opp.Confidence, account.CurrentBalance)
	requested := opp.ProposedNotionalUSD
	if requested <= 0 {
		requested = kelly
	}
	if account.TotalExposureUSD+requested > l.MaxTotalExposureUSD {
		return Approval{}, m.reject(opp, CheckExposure,
			fmt.Sprintf("exposure %.2f + %.2f exceeds %.2f", account.TotalExposureUSD, requested, l.MaxTotalExposureUSD))
	}

	clamped := math.Min(requested, l.MaxPositionSizeUSD)

	if opp.Edge < l.MinProfitThreshold {
		return Approval{}, m.reject(opp, CheckEdgeFloor,
			fmt.Sprintf("edge %.4f below %.4f", opp.Edge, l.MinProfitThreshold))
	}

	notional := math.Min(clamped, kelly)
	if notional <= 0 || opp.ReferencePrice <= 0 || opp.ReferencePrice >= 1 {
		return Approval{}, m.reject(opp, CheckSizing,
			fmt.Sprintf("notional %.4f at reference %.4f", notional, opp.ReferencePrice))
	}

	limit := m.LimitPrice(opp.Side, opp.ReferencePrice)
	return Approval{
		NotionalUSD: notional,
		Size:        notional / opp.ReferencePrice,
		LimitPrice:  limit,
		Requested:   requested,
	}, nil
}

// LimitPrice applies the slippage allowance to a reference price and keeps
// the result inside (0, 1).
func (m *Manager) LimitPrice(side domain.OrderSide, reference float64) float64 {
	if side == domain.OrderSideSell {
		return math.Max(reference*(1-m.limits.MaxSlippage), 0.01)
	}
	return math.Min(reference*(1+m.limits.MaxSlippage), 0.99)
}

// Metrics reports headroom for account.
func (m *Manager) Metrics(account domain.AccountState) Metrics {
	l := m.limits
	out := Metrics{
		ExposureUSD:        account.TotalExposureUSD,
		DailyLossRemaining: math.Max(l.MaxLossPerDayUSD+account.TodayRealizedPnL, 0),
		PositionsRemaining: max(l.MaxPositions-account.OpenPositionCount, 0),
		DrawdownPct:        account.Drawdown() * 100,
		Tripped:            m.tripped.Load(),
	}
	if l.MaxTotalExposureUSD > 0 {
		out.ExposurePct = account.TotalExposureUSD / l.MaxTotalExposureUSD * 100
	}
	return out
}

func (m *Manager) reject(opp domain.Opportunity, check, reason string) error {
	m.logger.Info("opportunity rejected",
		slog.String("check", check),
		slog.String("reason", reason),
		slog.String("strategy", opp.Strategy),
		slog.String("market_id", opp.MarketID),
		slog.String("outcome", opp.Outcome),
		slog.Float64("edge", opp.Edge),
	)
	return &RejectionError{Check: check, Reason: reason}
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

package ledger

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/pnl"
	"github.com/alanyoungcy/stratbot/internal/risk"
)

var ctx = context.Background()

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

type recorder struct{ events []domain.TradeEvent }

func (r *recorder) Observe(ev domain.TradeEvent) { r.events = append(r.events, ev) }

func (r *recorder) states() []domain.PositionState {
	out := make([]domain.PositionState, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.State
	}
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func limits() risk.Limits {
	return risk.Limits{
		MaxPositionSizeUSD:   1000,
		RiskPerTrade:         0.1,
		MinProfitThreshold:   0.01,
		MaxSlippage:          0.005,
		MaxTotalExposureUSD:  10000,
		MaxPositions:         20,
		MaxLossPerDayUSD:     500,
		EmergencyStopLossPct: 0.10,
		EdgeScale:            10,
		MaxScaling:           5,
	}
}

func newLedger(t *testing.T) (*Ledger, *clock, *recorder) {
	t.Helper()
	c := &clock{t: time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)}
	rm := risk.NewManager(limits(), testLogger())
	l := New(1000, rm, Options{Mode: "testing", Fees: pnl.Fees{WinnerFee: 0.02}, Now: c.now}, testLogger())
	rec := &recorder{}
	l.AddObserver(rec)
	return l, c, rec
}

func opp(strategy, market string, notional float64) domain.Opportunity {
	return domain.Opportunity{
		Strategy:            strategy,
		MarketID:            market,
		Outcome:             domain.OutcomeYes,
		Side:                domain.OrderSideBuy,
		ReferencePrice:      0.52,
		Edge:                0.1,
		Confidence:          1,
		ProposedNotionalUSD: notional,
	}
}

func TestReserveConfirmResolve(t *testing.T) {
	l, _, rec := newLedger(t)

	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 200))
	require.NoError(t, err)
	assert.Equal(t, domain.PositionPending, pos.State)
	assert.Equal(t, 200.0, pos.NotionalUSD)
	assert.Equal(t, 200.0, l.Account().TotalExposureUSD)
	assert.Equal(t, 1, l.Account().OpenPositionCount)

	pos, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, OrderID: "o1", FillPrice: 0.52, FillSize: 192.31})
	require.NoError(t, err)
	assert.Equal(t, domain.PositionOpen, pos.State)
	assert.InDelta(t, 100.0012, pos.NotionalUSD, 1e-9)
	assert.InDelta(t, 192.31, pos.Size, 1e-9)
	assert.InDelta(t, 100.0012, l.Account().TotalExposureUSD, 1e-9)

	pos, err = l.Resolve(ctx, pos.ID, 1.0)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionResolved, pos.State)
	require.NotNil(t, pos.RealizedPnL)
	assert.InDelta(t, 88.4626, *pos.RealizedPnL, 1e-6)
	assert.InDelta(t, 3.8462, pos.Fees, 1e-6)

	acct := l.Account()
	assert.InDelta(t, 1088.4626, acct.CurrentBalance, 1e-6)
	assert.InDelta(t, 88.4626, acct.TodayRealizedPnL, 1e-6)
	assert.Equal(t, 0.0, acct.TotalExposureUSD)
	assert.Equal(t, 0, acct.OpenPositionCount)
	assert.True(t, l.ExposureDecimal().IsZero())

	assert.Equal(t, []domain.PositionState{domain.PositionPending, domain.PositionOpen, domain.PositionResolved}, rec.states())
	assert.Equal(t, "testing", rec.events[0].Mode)
	require.NoError(t, l.Verify())
}

func TestConfirmRecordsFilledShares(t *testing.T) {
	l, _, _ := newLedger(t)

	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 200))
	require.NoError(t, err)
	shares := pos.Size
	require.InDelta(t, 200/0.52, shares, 1e-9)

	// Filled above the reference price: the shares bought are what count.
	pos, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, OrderID: "o1", FillPrice: 0.5226, FillSize: shares})
	require.NoError(t, err)
	assert.InDelta(t, shares, pos.Size, 1e-9)
	assert.InDelta(t, 0.5226, pos.EntryPrice, 1e-12)
	assert.InDelta(t, shares*0.5226, pos.NotionalUSD, 1e-9)
	assert.InDelta(t, shares*0.5226, l.Account().TotalExposureUSD, 1e-9)
	require.NoError(t, l.Verify())

	pos, err = l.Resolve(ctx, pos.ID, 1.0)
	require.NoError(t, err)
	require.NotNil(t, pos.RealizedPnL)
	want := shares*(1-0.5226) - 0.02*shares
	assert.InDelta(t, want, *pos.RealizedPnL, 1e-6)
	assert.InDelta(t, 1000+want, l.Account().CurrentBalance, 1e-6)
}

func TestConfirmWithoutFillSizeKeepsNotional(t *testing.T) {
	l, _, _ := newLedger(t)

	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 200))
	require.NoError(t, err)
	pos, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, FillPrice: 0.50})
	require.NoError(t, err)
	assert.InDelta(t, 200, pos.NotionalUSD, 1e-9)
	assert.InDelta(t, 400, pos.Size, 1e-9)
}

func TestDuplicateBetIsRejectedUntilTerminal(t *testing.T) {
	l, _, _ := newLedger(t)

	first, err := l.Reserve(ctx, opp("binary_hedging", "m1", 50))
	require.NoError(t, err)

	_, err = l.Reserve(ctx, opp("binary_hedging", "m1", 50))
	require.ErrorIs(t, err, domain.ErrDuplicateBet)
	var dup *DuplicateBetError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)

	// A different strategy owns a different key.
	_, err = l.Reserve(ctx, opp("market_making", "m1", 50))
	require.NoError(t, err)

	_, err = l.Confirm(ctx, first.ID, domain.OrderResult{Confirmed: true, FillPrice: 0.52})
	require.NoError(t, err)
	_, err = l.Close(ctx, first.ID, 0.6, "take profit")
	require.NoError(t, err)

	_, err = l.Reserve(ctx, opp("binary_hedging", "m1", 50))
	assert.NoError(t, err)
}

func TestDiscardRollsBackReservation(t *testing.T) {
	l, _, rec := newLedger(t)

	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 100))
	require.NoError(t, err)

	cause := errors.New("venue down")
	err = l.Discard(ctx, pos.ID, "order rejected", cause)
	require.ErrorIs(t, err, domain.ErrExecution)
	require.ErrorIs(t, err, cause)
	var execErr *ExecutionError
	require.ErrorAs(t, err, &execErr)
	assert.Equal(t, pos.ID, execErr.PositionID)

	assert.Equal(t, 0.0, l.Account().TotalExposureUSD)
	assert.Empty(t, l.Positions())
	assert.Equal(t, domain.Discarded, rec.events[len(rec.events)-1].State)

	_, err = l.Get(pos.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// The key is free again.
	_, err = l.Reserve(ctx, opp("latency_arbitrage", "m1", 100))
	assert.NoError(t, err)
}

func TestDiscardOnlyFromPending(t *testing.T) {
	l, _, _ := newLedger(t)
	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 100))
	require.NoError(t, err)
	_, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true})
	require.NoError(t, err)

	err = l.Discard(ctx, pos.ID, "late", nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.NotErrorIs(t, err, domain.ErrExecution)
}

func TestInvalidTransitions(t *testing.T) {
	l, _, _ := newLedger(t)
	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 100))
	require.NoError(t, err)

	_, err = l.Resolve(ctx, pos.ID, 1)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)
	assert.ErrorIs(t, l.Mark(pos.ID, 0.6), domain.ErrInvalidTransition)

	_, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true})
	require.NoError(t, err)
	_, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true})
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = l.Resolve(ctx, pos.ID, 0)
	require.NoError(t, err)
	_, err = l.Close(ctx, pos.ID, 0.5, "again")
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = l.Close(ctx, "missing", 0.5, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestExpireSettlesAtLastMark(t *testing.T) {
	l, _, _ := newLedger(t)
	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 104))
	require.NoError(t, err)
	_, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, FillPrice: 0.52})
	require.NoError(t, err)
	require.NoError(t, l.Mark(pos.ID, 0.40))

	pos, err = l.Expire(ctx, pos.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionExpired, pos.State)
	assert.True(t, pos.Uncertain)
	require.NotNil(t, pos.ExitPrice)
	assert.Equal(t, 0.40, *pos.ExitPrice)
	// 200 shares lose 0.12 each; no winner fee on a loss.
	assert.InDelta(t, -24.0, *pos.RealizedPnL, 1e-6)
}

func TestLossTripsDrawdownLatch(t *testing.T) {
	l, _, _ := newLedger(t)
	var trips int
	l.risk.OnTrip(func(domain.AccountState) { trips++ })

	pos, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 200))
	require.NoError(t, err)
	_, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, FillPrice: 0.5})
	require.NoError(t, err)
	_, err = l.Resolve(ctx, pos.ID, 0)
	require.NoError(t, err)

	acct := l.Account()
	assert.InDelta(t, 800, acct.CurrentBalance, 1e-9)
	assert.True(t, acct.DrawdownTripped)
	assert.Equal(t, 1, trips)

	_, err = l.Reserve(ctx, opp("latency_arbitrage", "m2", 10))
	assert.ErrorIs(t, err, domain.ErrDrawdownTripped)
}

func TestDailyPnLBucketsByUTCDay(t *testing.T) {
	l, c, _ := newLedger(t)

	settleAt := func(market string, exit float64) {
		pos, err := l.Reserve(ctx, opp("latency_arbitrage", market, 50))
		require.NoError(t, err)
		_, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, FillPrice: 0.5})
		require.NoError(t, err)
		_, err = l.Close(ctx, pos.ID, exit, "test")
		require.NoError(t, err)
	}

	settleAt("m1", 0.4)
	assert.InDelta(t, -10, l.Account().TodayRealizedPnL, 1e-9)

	c.t = c.t.Add(24 * time.Hour)
	assert.Equal(t, 0.0, l.Account().TodayRealizedPnL)
	settleAt("m2", 0.45)
	assert.InDelta(t, -5, l.Account().TodayRealizedPnL, 1e-9)
	assert.InDelta(t, 985, l.Account().CurrentBalance, 1e-9)

	c.t = c.t.Add(10 * 24 * time.Hour)
	settleAt("m3", 0.45)
	assert.Len(t, l.daily, 1)
}

func TestVerifyHaltsOnCorruption(t *testing.T) {
	l, _, _ := newLedger(t)
	_, err := l.Reserve(ctx, opp("latency_arbitrage", "m1", 100))
	require.NoError(t, err)

	l.mu.Lock()
	l.exposure = l.exposure.Add(decimal.NewFromInt(1))
	l.mu.Unlock()

	err = l.Verify()
	require.ErrorIs(t, err, domain.ErrInvariantViolation)
	assert.ErrorIs(t, l.Halted(), domain.ErrInvariantViolation)

	_, err = l.Reserve(ctx, opp("latency_arbitrage", "m2", 100))
	assert.ErrorIs(t, err, domain.ErrInvariantViolation)
}

func TestRestore(t *testing.T) {
	start := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	won := 12.5
	exit := 1.0
	closed := start.Add(time.Hour)
	rows := []domain.Position{
		{ID: "p1", Strategy: "a", MarketID: "m1", Outcome: "YES", State: domain.PositionOpen, NotionalUSD: 40, EntryPrice: 0.4, Size: 100, OpenedAt: start},
		{ID: "p2", Strategy: "a", MarketID: "m2", Outcome: "YES", State: domain.PositionPending, NotionalUSD: 30, OpenedAt: start},
		{ID: "p3", Strategy: "b", MarketID: "m1", Outcome: "YES", State: domain.PositionResolved, NotionalUSD: 20, OpenedAt: start, ClosedAt: &closed, ExitPrice: &exit, RealizedPnL: &won},
	}

	l, _, _ := newLedger(t)
	require.NoError(t, l.Restore(ctx, rows))

	acct := l.Account()
	assert.Equal(t, 40.0, acct.TotalExposureUSD)
	assert.Equal(t, 1, acct.OpenPositionCount)
	assert.Equal(t, 1012.5, acct.CurrentBalance)
	assert.Len(t, l.Positions(), 2)
	assert.Len(t, l.Open(), 1)

	_, err := l.Reserve(ctx, opp("a", "m1", 10))
	assert.ErrorIs(t, err, domain.ErrDuplicateBet)

	t.Run("duplicate live keys", func(t *testing.T) {
		l, _, _ := newLedger(t)
		bad := append([]domain.Position(nil), rows[0], rows[0])
		bad[1].ID = "p9"
		err := l.Restore(ctx, bad)
		assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	})
}

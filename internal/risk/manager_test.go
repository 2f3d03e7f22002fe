package risk

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

func testLimits() Limits {
	return Limits{
		MaxPositionSizeUSD:   1000,
		RiskPerTrade:         0.02,
		MinProfitThreshold:   0.025,
		MaxSlippage:          0.005,
		MaxTotalExposureUSD:  10000,
		MaxPositions:         20,
		MaxLossPerDayUSD:     500,
		EmergencyStopLossPct: 0.10,
		EdgeScale:            10,
		MaxScaling:           5,
	}
}

func newManager() *Manager {
	return NewManager(testLimits(), slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func account(balance float64) domain.AccountState {
	return domain.AccountState{StartingBalance: 1000, CurrentBalance: balance}
}

func buy(edge, conf float64) domain.Opportunity {
	return domain.Opportunity{
		Strategy: "latency_arbitrage", MarketID: "m1", Outcome: domain.OutcomeYes,
		Side: domain.OrderSideBuy, ReferencePrice: 0.5, Edge: edge, Confidence: conf,
	}
}

func TestSizingScalesWithEdgeAndConfidence(t *testing.T) {
	m := newManager()
	ap, err := m.ValidateAndSize(buy(0.035, 0.8), account(1000))
	require.NoError(t, err)

	// 0.02 × 1000 × 0.8 × (1 + 10 × 0.035)
	assert.InDelta(t, 21.6, ap.NotionalUSD, 1e-9)
	assert.Greater(t, ap.NotionalUSD, 0.0)
	assert.Less(t, ap.NotionalUSD, 1000.0)
	assert.InDelta(t, 43.2, ap.Size, 1e-9)
	assert.InDelta(t, 0.5025, ap.LimitPrice, 1e-12)
}

func TestSizingIsCappedAtPerTradeLimit(t *testing.T) {
	m := newManager()
	ap, err := m.ValidateAndSize(buy(0.5, 1), account(100_000))
	require.NoError(t, err)
	assert.Equal(t, 1000.0, ap.NotionalUSD)
}

func TestProposedNotionalIsUsedWhenSmaller(t *testing.T) {
	m := newManager()
	o := buy(0.05, 1)
	o.ProposedNotionalUSD = 10
	ap, err := m.ValidateAndSize(o, account(1000))
	require.NoError(t, err)
	assert.Equal(t, 10.0, ap.NotionalUSD)
	assert.Equal(t, 10.0, ap.Requested)
}

func TestExposureCeilingRejects(t *testing.T) {
	m := newManager()
	acct := account(1000)
	acct.TotalExposureUSD = 9900
	o := buy(0.05, 1)
	o.ProposedNotionalUSD = 200

	_, err := m.ValidateAndSize(o, acct)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrRiskLimitExceeded)
	check, ok := RejectedCheck(err)
	require.True(t, ok)
	assert.Equal(t, CheckExposure, check)
}

func TestDailyLossLimitRejects(t *testing.T) {
	m := newManager()
	acct := account(1000)
	acct.TodayRealizedPnL = -500

	_, err := m.ValidateAndSize(buy(0.05, 1), acct)
	check, _ := RejectedCheck(err)
	assert.Equal(t, CheckDailyLoss, check)
}

func TestPositionCountRejects(t *testing.T) {
	m := newManager()
	acct := account(1000)
	acct.OpenPositionCount = 20

	_, err := m.ValidateAndSize(buy(0.05, 1), acct)
	check, _ := RejectedCheck(err)
	assert.Equal(t, CheckPositionCount, check)
}

func TestEdgeFloorRejects(t *testing.T) {
	m := newManager()
	_, err := m.ValidateAndSize(buy(0.02, 1), account(1000))
	check, _ := RejectedCheck(err)
	assert.Equal(t, CheckEdgeFloor, check)
}

func TestChecksRunInOrder(t *testing.T) {
	m := newManager()
	// Every limit is breached at once; daily loss must be reported first.
	acct := domain.AccountState{
		StartingBalance:   1000,
		CurrentBalance:    950,
		TodayRealizedPnL:  -600,
		OpenPositionCount: 50,
		TotalExposureUSD:  20000,
	}
	_, err := m.ValidateAndSize(buy(0.001, 1), acct)
	check, _ := RejectedCheck(err)
	assert.Equal(t, CheckDailyLoss, check)

	acct.TodayRealizedPnL = 0
	_, err = m.ValidateAndSize(buy(0.001, 1), acct)
	check, _ = RejectedCheck(err)
	assert.Equal(t, CheckPositionCount, check)

	acct.OpenPositionCount = 0
	_, err = m.ValidateAndSize(buy(0.001, 1), acct)
	check, _ = RejectedCheck(err)
	assert.Equal(t, CheckExposure, check)

	acct.TotalExposureUSD = 0
	_, err = m.ValidateAndSize(buy(0.001, 1), acct)
	check, _ = RejectedCheck(err)
	assert.Equal(t, CheckEdgeFloor, check)
}

func TestDrawdownLatchIsPermanent(t *testing.T) {
	m := newManager()
	var trips int
	m.OnTrip(func(a domain.AccountState) {
		trips++
		assert.True(t, a.DrawdownTripped)
	})

	_, err := m.ValidateAndSize(buy(0.05, 1), account(890))
	require.ErrorIs(t, err, domain.ErrDrawdownTripped)
	assert.True(t, m.Tripped())

	// Recovering the balance does not reset the latch.
	for i := 0; i < 5; i++ {
		_, err := m.ValidateAndSize(buy(0.05, 1), account(5000))
		assert.ErrorIs(t, err, domain.ErrDrawdownTripped)
	}
	assert.True(t, m.CheckDrawdown(account(5000)))

	// The daily loss limit must not mask the latch once it has tripped.
	lossDay := account(850)
	lossDay.TodayRealizedPnL = -600
	_, err = m.ValidateAndSize(buy(0.05, 1), lossDay)
	require.ErrorIs(t, err, domain.ErrDrawdownTripped)
	check, ok := RejectedCheck(err)
	require.True(t, ok)
	assert.Equal(t, CheckDrawdown, check)
	assert.Equal(t, 1, trips)
}

func TestDailyLossRejectsBeforeLatchTrips(t *testing.T) {
	m := newManager()
	acct := account(950)
	acct.TodayRealizedPnL = -600

	_, err := m.ValidateAndSize(buy(0.05, 1), acct)
	check, ok := RejectedCheck(err)
	require.True(t, ok)
	assert.Equal(t, CheckDailyLoss, check)
	assert.False(t, m.Tripped())
}

func TestCheckDrawdownBelowThreshold(t *testing.T) {
	m := newManager()
	assert.False(t, m.CheckDrawdown(account(950)))
	assert.False(t, m.Tripped())
}

func TestScalingIsMonotone(t *testing.T) {
	m := newManager()
	prev := 0.0
	for _, edge := range []float64{-0.1, 0, 0.01, 0.05, 0.1, 0.3, 0.5, 1} {
		s := m.Scaling(edge, 0.7)
		assert.GreaterOrEqual(t, s, prev, "edge %v", edge)
		prev = s
	}
	prev = 0
	for _, conf := range []float64{-1, 0, 0.2, 0.5, 0.9, 1, 2} {
		s := m.Scaling(0.05, conf)
		assert.GreaterOrEqual(t, s, prev, "confidence %v", conf)
		prev = s
	}
	assert.Equal(t, 5.0, m.Scaling(10, 1))
}

func TestLimitPriceStaysInRange(t *testing.T) {
	m := newManager()
	assert.Equal(t, 0.99, m.LimitPrice(domain.OrderSideBuy, 0.989))
	assert.Equal(t, 0.01, m.LimitPrice(domain.OrderSideSell, 0.01))
	assert.InDelta(t, 0.398, m.LimitPrice(domain.OrderSideSell, 0.4), 1e-12)
}

func TestMetrics(t *testing.T) {
	m := newManager()
	acct := domain.AccountState{StartingBalance: 1000, CurrentBalance: 960, TotalExposureUSD: 2500, TodayRealizedPnL: -40, OpenPositionCount: 4}
	got := m.Metrics(acct)
	assert.Equal(t, 25.0, got.ExposurePct)
	assert.Equal(t, 460.0, got.DailyLossRemaining)
	assert.Equal(t, 16, got.PositionsRemaining)
	assert.InDelta(t, 4.0, got.DrawdownPct, 1e-9)
	assert.False(t, got.Tripped)
}

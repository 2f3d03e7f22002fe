package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanTransitionOnlyForward(t *testing.T) {
	all := []PositionState{PositionPending, PositionOpen, PositionResolved, PositionClosed, PositionExpired}
	allowed := map[[2]PositionState]bool{
		{PositionPending, PositionOpen}:  true,
		{PositionOpen, PositionResolved}: true,
		{PositionOpen, PositionClosed}:   true,
		{PositionOpen, PositionExpired}:  true,
	}
	for _, from := range all {
		for _, to := range all {
			assert.Equalf(t, allowed[[2]PositionState{from, to}], CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestPriceSetFresh(t *testing.T) {
	now := time.Unix(1_700_000_000, 0)
	ps := PriceSet{
		AsOf: now,
		Instruments: map[string]InstrumentSnapshot{
			"BTCUSDT": {Symbol: "BTCUSDT", LastPrice: 50000, Timestamp: now.Add(-5 * time.Second)},
			"ETHUSDT": {Symbol: "ETHUSDT", LastPrice: 3000, Timestamp: now.Add(-time.Minute)},
		},
	}

	s, err := ps.Fresh("BTCUSDT", 30*time.Second)
	require.NoError(t, err)
	assert.Equal(t, 50000.0, s.LastPrice)

	_, err = ps.Fresh("ETHUSDT", 30*time.Second)
	assert.True(t, errors.Is(err, ErrFeedStale))

	_, err = ps.Fresh("SOLUSDT", 30*time.Second)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestNormalizeOutcome(t *testing.T) {
	assert.Equal(t, OutcomeYes, NormalizeOutcome(" yes "))
	assert.Equal(t, OutcomeYes, NormalizeOutcome("Up"))
	assert.Equal(t, OutcomeNo, NormalizeOutcome("Down"))
	assert.Equal(t, "TRUMP", NormalizeOutcome("Trump"))
}

func TestTradeEventRoundTripsPosition(t *testing.T) {
	exit := 1.0
	pnl := 88.4626
	closed := time.Unix(1_700_000_100, 0).UTC()
	p := Position{
		ID: "p1", Strategy: "binary_hedging", MarketID: "m1", Outcome: OutcomeYes,
		Side: OrderSideBuy, EntryPrice: 0.52, Size: 192.31, NotionalUSD: 100.0012,
		State: PositionResolved, OpenedAt: time.Unix(1_700_000_000, 0).UTC(),
		ClosedAt: &closed, ExitPrice: &exit, RealizedPnL: &pnl, Fees: 3.8462,
	}
	ev := NewTradeEvent("testing", p, closed)
	assert.Equal(t, p, ev.Position())
}

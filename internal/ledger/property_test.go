package ledger

import (
	"fmt"
	"math/rand"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/risk"
)

// checkInvariants recomputes everything the ledger tracks incrementally.
func checkInvariants(t *testing.T, l *Ledger, step int) {
	t.Helper()

	sum := decimal.Zero
	keys := map[domain.PositionKey]string{}
	for _, p := range l.Positions() {
		if !p.State.Live() {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(p.NotionalUSD))
		other, dup := keys[p.Key()]
		require.Falsef(t, dup, "step %d: %s and %s share a live key", step, other, p.ID)
		keys[p.Key()] = p.ID
	}

	require.Truef(t, sum.Equal(l.ExposureDecimal()), "step %d: exposure %s != live notional %s", step, l.ExposureDecimal(), sum)
	acct := l.Account()
	require.LessOrEqualf(t, acct.TotalExposureUSD, limits().MaxTotalExposureUSD, "step %d", step)
	require.Equalf(t, len(keys), acct.OpenPositionCount, "step %d", step)
	require.NoErrorf(t, l.Verify(), "step %d", step)
}

func TestPropertyRandomOperations(t *testing.T) {
	for seed := int64(1); seed <= 20; seed++ {
		t.Run(fmt.Sprintf("seed=%d", seed), func(t *testing.T) {
			rng := rand.New(rand.NewSource(seed))
			l, _, _ := newLedger(t)
			// Keep the latch out of the way so every operation kind is reached.
			l.risk = newPermissiveRisk()

			strategies := []string{"latency_arbitrage", "binary_hedging", "combinatorial_arbitrage"}
			markets := []string{"m1", "m2", "m3", "m4", "m5"}
			outcomes := []string{domain.OutcomeYes, domain.OutcomeNo}

			pick := func(state domain.PositionState) (domain.Position, bool) {
				ps := l.Positions(state)
				if len(ps) == 0 {
					return domain.Position{}, false
				}
				return ps[rng.Intn(len(ps))], true
			}

			for step := 0; step < 400; step++ {
				switch op := rng.Intn(7); op {
				case 0, 1:
					o := domain.Opportunity{
						Strategy:            strategies[rng.Intn(len(strategies))],
						MarketID:            markets[rng.Intn(len(markets))],
						Outcome:             outcomes[rng.Intn(len(outcomes))],
						Side:                domain.OrderSideBuy,
						ReferencePrice:      0.05 + rng.Float64()*0.9,
						Edge:                rng.Float64() * 0.2,
						Confidence:          rng.Float64(),
						ProposedNotionalUSD: rng.Float64() * 2500,
					}
					_, err := l.Reserve(ctx, o)
					if err != nil {
						require.NotErrorIs(t, err, domain.ErrInvariantViolation)
					}
				case 2:
					if p, ok := pick(domain.PositionPending); ok {
						fill := domain.OrderResult{Confirmed: true, FillPrice: p.EntryPrice * (0.99 + rng.Float64()*0.02)}
						if fill.FillPrice >= 1 {
							fill.FillPrice = 0.99
						}
						if rng.Intn(3) == 0 {
							// Gateways are sized at the limit, so a fill never
							// costs more than the reservation.
							fill.FillSize = p.NotionalUSD / fill.FillPrice * rng.Float64()
						}
						_, err := l.Confirm(ctx, p.ID, fill)
						require.NoError(t, err)
					}
				case 3:
					if p, ok := pick(domain.PositionPending); ok {
						err := l.Discard(ctx, p.ID, "random failure", nil)
						require.ErrorIs(t, err, domain.ErrExecution)
					}
				case 4:
					if p, ok := pick(domain.PositionOpen); ok {
						_, err := l.Resolve(ctx, p.ID, float64(rng.Intn(2)))
						require.NoError(t, err)
					}
				case 5:
					if p, ok := pick(domain.PositionOpen); ok {
						if rng.Intn(2) == 0 {
							_, err := l.Close(ctx, p.ID, rng.Float64(), "random exit")
							require.NoError(t, err)
						} else {
							require.NoError(t, l.Mark(p.ID, rng.Float64()))
							_, err := l.Expire(ctx, p.ID, 0)
							require.NoError(t, err)
						}
					}
				case 6:
					if p, ok := pick(domain.PositionOpen); ok {
						require.NoError(t, l.Mark(p.ID, rng.Float64()))
					}
				}
				checkInvariants(t, l, step)
			}
		})
	}
}

func TestPropertyRealizedMatchesBalance(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	l, _, _ := newLedger(t)
	l.risk = newPermissiveRisk()

	for i := 0; i < 50; i++ {
		o := opp("latency_arbitrage", fmt.Sprintf("m%d", i), 10+rng.Float64()*90)
		p, err := l.Reserve(ctx, o)
		require.NoError(t, err)
		_, err = l.Confirm(ctx, p.ID, domain.OrderResult{Confirmed: true})
		require.NoError(t, err)
		_, err = l.Close(ctx, p.ID, rng.Float64(), "random exit")
		require.NoError(t, err)
	}

	total := decimal.Zero
	for _, p := range l.Positions() {
		require.NotNil(t, p.RealizedPnL)
		total = total.Add(decimal.NewFromFloat(*p.RealizedPnL))
	}
	acct := l.Account()
	require.InDelta(t, 1000+total.InexactFloat64(), acct.CurrentBalance, 1e-6)
	require.Equal(t, 0.0, acct.TotalExposureUSD)
}

func newPermissiveRisk() *risk.Manager {
	lim := limits()
	lim.RiskPerTrade = 10
	lim.MaxLossPerDayUSD = 1e12
	lim.EmergencyStopLossPct = 0
	return risk.NewManager(lim, testLogger())
}

func TestConcurrentReserveAndSettle(t *testing.T) {
	l, _, _ := newLedger(t)
	l.risk = newPermissiveRisk()

	const workers = 8
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(seed int64) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(seed))
			for i := 0; i < 150; i++ {
				pos, err := l.Reserve(ctx, domain.Opportunity{
					Strategy:            "latency_arbitrage",
					MarketID:            fmt.Sprintf("m%d", rng.Intn(6)),
					Outcome:             []string{domain.OutcomeYes, domain.OutcomeNo}[rng.Intn(2)],
					Side:                domain.OrderSideBuy,
					ReferencePrice:      0.1 + rng.Float64()*0.8,
					Edge:                0.05 + rng.Float64()*0.1,
					Confidence:          1,
					ProposedNotionalUSD: 10 + rng.Float64()*400,
				})
				if err == nil {
					if rng.Intn(4) == 0 {
						err = l.Discard(ctx, pos.ID, "not filled", nil)
						assert.NotErrorIs(t, err, domain.ErrInvariantViolation)
					} else {
						_, err = l.Confirm(ctx, pos.ID, domain.OrderResult{Confirmed: true, FillPrice: pos.EntryPrice})
						assert.NoError(t, err)
					}
				} else {
					assert.NotErrorIs(t, err, domain.ErrInvariantViolation)
				}

				// Settle whatever is open, racing the other workers for it.
				open := l.Open()
				if len(open) == 0 {
					continue
				}
				target := open[rng.Intn(len(open))]
				if rng.Intn(2) == 0 {
					_, err = l.Resolve(ctx, target.ID, float64(rng.Intn(2)))
				} else {
					_, err = l.Expire(ctx, target.ID, target.EntryPrice)
				}
				if err != nil {
					assert.ErrorIs(t, err, domain.ErrInvalidTransition)
				}
				assert.NoError(t, l.Verify())
			}
		}(int64(w + 1))
	}
	wg.Wait()

	checkInvariants(t, l, -1)
	settled := len(l.Positions(domain.PositionResolved, domain.PositionExpired))
	require.Positive(t, settled)
}

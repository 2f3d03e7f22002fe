package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/executor"
	"github.com/alanyoungcy/stratbot/internal/ledger"
	"github.com/alanyoungcy/stratbot/internal/pnl"
	"github.com/alanyoungcy/stratbot/internal/risk"
	"github.com/alanyoungcy/stratbot/internal/strategy"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type staticMarkets struct {
	markets []domain.MarketSnapshot
	err     error
}

func (s staticMarkets) ListMarkets(context.Context) ([]domain.MarketSnapshot, error) {
	return s.markets, s.err
}

type noPrices struct{}

func (noPrices) PriceSet(now time.Time) domain.PriceSet { return domain.PriceSet{AsOf: now} }

// fixedStrategy proposes one buy on every market it sees.
type fixedStrategy struct {
	name     string
	priority int
	outcome  string
	price    float64
}

func (s fixedStrategy) Name() string  { return s.name }
func (s fixedStrategy) Priority() int { return s.priority }

func (s fixedStrategy) Evaluate(markets []domain.MarketSnapshot, _ domain.PriceSet, _ domain.AccountState) []domain.Opportunity {
	var out []domain.Opportunity
	for _, m := range markets {
		out = append(out, domain.Opportunity{
			Strategy: s.name, MarketID: m.MarketID, Outcome: s.outcome, Side: domain.OrderSideBuy,
			ReferencePrice: s.price, Edge: 0.05, Confidence: 1, ProposedNotionalUSD: 50,
		})
	}
	return out
}

type fillAll struct{ calls int }

func (g *fillAll) Name() string                                { return "fill_all" }
func (g *fillAll) GetBalance(context.Context) (float64, error) { return 0, nil }
func (g *fillAll) PlaceOrder(_ context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	g.calls++
	return domain.OrderResult{Confirmed: true, OrderID: fmt.Sprintf("o-%d", g.calls), FillPrice: req.ReferencePrice, FillSize: req.Size}, nil
}

func newRisk() *risk.Manager {
	return risk.NewManager(risk.Limits{
		MaxPositionSizeUSD:   1000,
		RiskPerTrade:         0.1,
		MinProfitThreshold:   0.01,
		MaxSlippage:          0.005,
		MaxTotalExposureUSD:  10000,
		MaxPositions:         20,
		MaxLossPerDayUSD:     500,
		EmergencyStopLossPct: 0.1,
		EdgeScale:            10,
		MaxScaling:           5,
	}, testLogger())
}

func market(id string) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID: id,
		Status:   domain.MarketStatusActive,
		Outcomes: map[string]domain.OutcomeQuote{
			domain.OutcomeYes: {Price: 0.45},
			domain.OutcomeNo:  {Price: 0.55},
		},
	}
}

func TestHigherPriorityClaimsContestedKey(t *testing.T) {
	rm := newRisk()
	l := ledger.New(1000, rm, ledger.Options{Mode: "testing", Fees: pnl.Fees{WinnerFee: 0.02}}, testLogger())
	gw := &fillAll{}
	ex := executor.New(l, gw, rm, time.Minute, testLogger())
	engine := strategy.NewEngine([]strategy.Strategy{
		fixedStrategy{name: "second", priority: 2, outcome: domain.OutcomeYes, price: 0.45},
		fixedStrategy{name: "first", priority: 1, outcome: domain.OutcomeYes, price: 0.45},
	}, testLogger())

	o := New(staticMarkets{markets: []domain.MarketSnapshot{market("m1")}}, noPrices{}, l, engine, ex, nil, time.Second, testLogger())
	res, err := o.RunCycle(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 1, res.Markets)
	assert.Equal(t, 1, res.Accepted)
	assert.Equal(t, 1, res.Discarded)
	assert.Equal(t, 1, res.Opened)
	assert.Equal(t, 1, gw.calls)

	open := l.Positions(domain.PositionOpen)
	require.Len(t, open, 1)
	assert.Equal(t, "first", open[0].Strategy)
	assert.Equal(t, "m1", open[0].MarketID)
}

func TestSecondCycleRejectsDuplicateBet(t *testing.T) {
	rm := newRisk()
	l := ledger.New(1000, rm, ledger.Options{Mode: "testing"}, testLogger())
	gw := &fillAll{}
	ex := executor.New(l, gw, rm, time.Minute, testLogger())
	engine := strategy.NewEngine([]strategy.Strategy{
		fixedStrategy{name: "only", priority: 1, outcome: domain.OutcomeNo, price: 0.55},
	}, testLogger())

	o := New(staticMarkets{markets: []domain.MarketSnapshot{market("m1"), market("m2")}}, noPrices{}, l, engine, ex, nil, time.Second, testLogger())
	res, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, res.Opened)

	res, err = o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Zero(t, res.Opened)
	assert.Equal(t, 2, res.Rejected)
	assert.Len(t, l.Positions(domain.PositionOpen), 2)
}

func TestMonitorModeDoesNotReserve(t *testing.T) {
	rm := newRisk()
	l := ledger.New(1000, rm, ledger.Options{Mode: "monitor"}, testLogger())
	engine := strategy.NewEngine([]strategy.Strategy{
		fixedStrategy{name: "only", priority: 1, outcome: domain.OutcomeYes, price: 0.45},
	}, testLogger())

	o := New(staticMarkets{markets: []domain.MarketSnapshot{market("m1")}}, noPrices{}, l, engine, nil, rm, time.Second, testLogger())
	res, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Accepted)
	assert.Zero(t, res.Opened)
	assert.Empty(t, l.Positions())
	assert.Zero(t, l.Account().TotalExposureUSD)
}

func TestMarketErrorIsNotFatal(t *testing.T) {
	rm := newRisk()
	l := ledger.New(1000, rm, ledger.Options{Mode: "testing"}, testLogger())
	engine := strategy.NewEngine(nil, testLogger())
	o := New(staticMarkets{err: errors.New("gamma down")}, noPrices{}, l, engine, nil, nil, 10*time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := o.Run(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

type brokenBook struct{}

func (brokenBook) Account() domain.AccountState {
	return domain.AccountState{StartingBalance: 1000, CurrentBalance: 1000}
}

func (brokenBook) Verify() error {
	return fmt.Errorf("exposure drift: %w", domain.ErrInvariantViolation)
}

func TestRunStopsOnInvariantViolation(t *testing.T) {
	engine := strategy.NewEngine(nil, testLogger())
	o := New(staticMarkets{}, noPrices{}, brokenBook{}, engine, nil, nil, time.Hour, testLogger())

	done := make(chan error, 1)
	go func() { done <- o.Run(context.Background()) }()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, domain.ErrInvariantViolation)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on invariant violation")
	}
}

func TestOnCycleSeesInputs(t *testing.T) {
	rm := newRisk()
	l := ledger.New(1000, rm, ledger.Options{Mode: "monitor"}, testLogger())
	engine := strategy.NewEngine(nil, testLogger())

	o := New(staticMarkets{markets: []domain.MarketSnapshot{market("m1"), market("m2")}}, noPrices{}, l, engine, nil, rm, time.Second, testLogger())
	var seen []string
	o.OnCycle(func(at time.Time, markets []domain.MarketSnapshot, prices domain.PriceSet) {
		assert.Equal(t, at, prices.AsOf)
		for _, m := range markets {
			seen = append(seen, m.MarketID)
		}
	})
	_, err := o.RunCycle(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"m1", "m2"}, seen)
}

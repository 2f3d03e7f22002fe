package strategy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

var now = time.Unix(1_700_000_000, 0).UTC()

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func common() Common {
	return Common{FeeRate: 0.02, MaxStaleness: 30 * time.Second}
}

func binary(id, question string, yes, no float64) domain.MarketSnapshot {
	return domain.MarketSnapshot{
		MarketID: id,
		Question: question,
		Status:   domain.MarketStatusActive,
		Outcomes: map[string]domain.OutcomeQuote{
			domain.OutcomeYes: {TokenID: id + "-yes", Price: yes},
			domain.OutcomeNo:  {TokenID: id + "-no", Price: no},
		},
	}
}

func history(outcome string, prices ...float64) map[string][]domain.PricePoint {
	pts := make([]domain.PricePoint, len(prices))
	for i, p := range prices {
		pts[i] = domain.PricePoint{At: now.Add(-time.Duration(len(prices)-i) * time.Minute / 2), Price: p}
	}
	return map[string][]domain.PricePoint{outcome: pts}
}

func priceSet(symbol string, change float64, age time.Duration) domain.PriceSet {
	return domain.PriceSet{
		AsOf: now,
		Instruments: map[string]domain.InstrumentSnapshot{
			symbol: {Symbol: symbol, LastPrice: 50000, PercentChange: change, HasChange: true, Window: time.Minute, Timestamp: now.Add(-age)},
		},
	}
}

func TestLatencyArbitrage(t *testing.T) {
	s := NewLatencyArbitrage(config.Defaults().Strategies.LatencyArbitrage, common())
	markets := []domain.MarketSnapshot{
		binary("m1", "Will Bitcoin close above $50k today?", 0.5, 0.5),
		binary("m2", "Will the Fed cut rates?", 0.5, 0.5),
		binary("m3", "BTC up or down at 3pm?", 0.65, 0.35),
	}

	opps := s.Evaluate(markets, priceSet("BTCUSDT", 0.02, time.Second), domain.AccountState{})
	require.Len(t, opps, 1)
	o := opps[0]
	assert.Equal(t, "m1", o.MarketID)
	assert.Equal(t, domain.OutcomeYes, o.Outcome)
	assert.InDelta(t, 0.7-0.5-0.02*0.7, o.Edge, 1e-12)
	assert.InDelta(t, 0.4, o.Confidence, 1e-12)

	t.Run("down move buys NO", func(t *testing.T) {
		opps := s.Evaluate(markets, priceSet("BTCUSDT", -0.02, time.Second), domain.AccountState{})
		require.Len(t, opps, 2)
		for _, o := range opps {
			assert.Equal(t, domain.OutcomeNo, o.Outcome)
		}
	})

	t.Run("stale feed is skipped", func(t *testing.T) {
		assert.Empty(t, s.Evaluate(markets, priceSet("BTCUSDT", 0.02, time.Minute), domain.AccountState{}))
	})

	t.Run("absent feed is skipped", func(t *testing.T) {
		assert.Empty(t, s.Evaluate(markets, domain.PriceSet{AsOf: now}, domain.AccountState{}))
	})

	t.Run("small move is ignored", func(t *testing.T) {
		assert.Empty(t, s.Evaluate(markets, priceSet("BTCUSDT", 0.005, time.Second), domain.AccountState{}))
	})

	t.Run("pure", func(t *testing.T) {
		a := s.Evaluate(markets, priceSet("BTCUSDT", 0.03, time.Second), domain.AccountState{})
		b := s.Evaluate(markets, priceSet("BTCUSDT", 0.03, time.Second), domain.AccountState{})
		assert.Equal(t, a, b)
	})
}

func TestMentionsMatchesWholeWords(t *testing.T) {
	assert.True(t, mentions("ETH above $3k?", []string{"eth"}))
	assert.False(t, mentions("Whether it rains", []string{"eth"}))
}

func TestBinaryHedgingSumArbitrage(t *testing.T) {
	s := NewBinaryHedging(config.Defaults().Strategies.BinaryHedging, common())
	opps := s.Evaluate([]domain.MarketSnapshot{binary("m1", "q", 0.45, 0.50)}, domain.PriceSet{AsOf: now}, domain.AccountState{})

	require.Len(t, opps, 2)
	for _, o := range opps {
		assert.Equal(t, "hedge:m1", o.LegGroupID)
		assert.InDelta(t, 0.03, o.Edge, 1e-12)
		assert.Equal(t, 1.0, o.Confidence)
	}
	assert.Equal(t, domain.OutcomeNo, opps[0].Outcome)
	assert.Equal(t, domain.OutcomeYes, opps[1].Outcome)
}

func TestBinaryHedgingReversion(t *testing.T) {
	s := NewBinaryHedging(config.Defaults().Strategies.BinaryHedging, common())
	m := binary("m1", "q", 0.40, 0.60)
	m.History = history(domain.OutcomeYes, 0.5, 0.52, 0.48)

	opps := s.Evaluate([]domain.MarketSnapshot{m}, domain.PriceSet{AsOf: now}, domain.AccountState{})
	require.Len(t, opps, 1)
	assert.Equal(t, domain.OutcomeYes, opps[0].Outcome)
	assert.InDelta(t, 0.5-0.4-0.02*0.5, opps[0].Edge, 1e-12)
	assert.Equal(t, 1.0, opps[0].Confidence)

	m.History = history(domain.OutcomeYes, 0.5, 0.5)
	assert.Empty(t, s.Evaluate([]domain.MarketSnapshot{m}, domain.PriceSet{AsOf: now}, domain.AccountState{}), "too few samples")
}

func TestCombinatorialArbitrage(t *testing.T) {
	cfg := config.Defaults().Strategies.CombinatorialArbitrage
	cfg.Groups = map[string][]string{"election": {"a", "b", "c"}}
	s := NewCombinatorialArbitrage(cfg, common())

	markets := []domain.MarketSnapshot{
		binary("a", "A wins?", 0.3, 0.7),
		binary("b", "B wins?", 0.3, 0.7),
		binary("c", "C wins?", 0.3, 0.7),
	}
	opps := s.Evaluate(markets, domain.PriceSet{AsOf: now}, domain.AccountState{})
	require.Len(t, opps, 3)
	for _, o := range opps {
		assert.Equal(t, "combo:election", o.LegGroupID)
		assert.InDelta(t, 0.08, o.Edge, 1e-12)
		assert.InDelta(t, 100.0/3, o.ProposedNotionalUSD, 1e-9)
	}

	t.Run("overpriced group skipped", func(t *testing.T) {
		over := []domain.MarketSnapshot{binary("a", "", 0.4, 0.6), binary("b", "", 0.4, 0.6), binary("c", "", 0.4, 0.6)}
		assert.Empty(t, s.Evaluate(over, domain.PriceSet{AsOf: now}, domain.AccountState{}))
	})

	t.Run("missing leg skipped", func(t *testing.T) {
		assert.Empty(t, s.Evaluate(markets[:2], domain.PriceSet{AsOf: now}, domain.AccountState{}))
	})

	t.Run("auto groups by event", func(t *testing.T) {
		cfg := config.Defaults().Strategies.CombinatorialArbitrage
		s := NewCombinatorialArbitrage(cfg, common())
		x, y := binary("x", "", 0.45, 0.55), binary("y", "", 0.45, 0.55)
		x.GroupID, y.GroupID = "ev1", "ev1"
		opps := s.Evaluate([]domain.MarketSnapshot{x, y}, domain.PriceSet{AsOf: now}, domain.AccountState{})
		require.Len(t, opps, 2)
		assert.Equal(t, "combo:event:ev1", opps[0].LegGroupID)
		assert.Equal(t, 0.8, opps[0].Confidence)
	})
}

func TestMarketMaking(t *testing.T) {
	cfg := config.Defaults().Strategies.MarketMaking
	cfg.Enabled = true
	s := NewMarketMaking(cfg, common())

	m := binary("m1", "q", 0.45, 0.55)
	m.Outcomes[domain.OutcomeYes] = domain.OutcomeQuote{TokenID: "m1-yes", Price: 0.45, BestBid: 0.40, BestAsk: 0.50}
	m.History = history(domain.OutcomeYes, 0.45, 0.46, 0.44, 0.45, 0.46, 0.44, 0.45, 0.46, 0.44, 0.45, 0.45, 0.45)

	opps := s.Evaluate([]domain.MarketSnapshot{m}, domain.PriceSet{AsOf: now}, domain.AccountState{})
	require.Len(t, opps, 2)
	yes, no := opps[1], opps[0]
	assert.Equal(t, domain.OutcomeYes, yes.Outcome)
	assert.InDelta(t, 0.401, yes.ReferencePrice, 1e-12)
	assert.InDelta(t, 0.501, no.ReferencePrice, 1e-12)
	assert.InDelta(t, 0.049-0.02*0.45, yes.Edge, 1e-12)
	assert.Equal(t, 50.0, yes.ProposedNotionalUSD)

	t.Run("volatile market skipped", func(t *testing.T) {
		m.History = history(domain.OutcomeYes, 0.3, 0.6, 0.3, 0.6, 0.3, 0.6, 0.3, 0.6, 0.3, 0.6, 0.3, 0.6)
		assert.Empty(t, s.Evaluate([]domain.MarketSnapshot{m}, domain.PriceSet{AsOf: now}, domain.AccountState{}))
	})

	t.Run("thin history skipped", func(t *testing.T) {
		m.History = history(domain.OutcomeYes, 0.45, 0.45)
		assert.Empty(t, s.Evaluate([]domain.MarketSnapshot{m}, domain.PriceSet{AsOf: now}, domain.AccountState{}))
	})
}

func TestExitPolicy(t *testing.T) {
	p := ExitPolicy{TakeProfit: 1.5, StopLoss: 0.8, MaxHold: 14 * time.Minute}
	pos := domain.Position{EntryPrice: 0.4, Side: domain.OrderSideBuy, OpenedAt: now}

	_, ok := p.Check(pos, 0.45, now.Add(time.Minute))
	assert.False(t, ok)
	reason, ok := p.Check(pos, 0.62, now.Add(time.Minute))
	assert.True(t, ok)
	assert.Contains(t, reason, "take profit")
	reason, ok = p.Check(pos, 0.3, now.Add(time.Minute))
	assert.True(t, ok)
	assert.Contains(t, reason, "stop loss")
	reason, ok = p.Check(pos, 0.45, now.Add(15*time.Minute))
	assert.True(t, ok)
	assert.Contains(t, reason, "max hold")
}

func TestRegistryFromDefaults(t *testing.T) {
	r := NewRegistry(config.Defaults().Strategies, common())
	enabled := r.Enabled()
	require.Len(t, enabled, 3)
	assert.Equal(t, LatencyArbitrageName, enabled[0].Name())
	assert.Equal(t, BinaryHedgingName, enabled[1].Name())
	assert.Equal(t, CombinatorialArbitrageName, enabled[2].Name())

	_, err := r.Get(MarketMakingName)
	assert.Error(t, err)
	assert.Len(t, r.ListInfo(), 4)
	assert.Equal(t, 1.5, r.Exit(LatencyArbitrageName).TakeProfit)
	assert.Equal(t, 0.95, r.Exit(MarketMakingName).StopLoss)
}

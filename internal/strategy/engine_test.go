package strategy

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

type stubStrategy struct {
	name     string
	priority int
	opps     []domain.Opportunity
}

func (s stubStrategy) Name() string  { return s.name }
func (s stubStrategy) Priority() int { return s.priority }
func (s stubStrategy) Evaluate([]domain.MarketSnapshot, domain.PriceSet, domain.AccountState) []domain.Opportunity {
	return s.opps
}

func opp(strategy, market, outcome string, edge float64) domain.Opportunity {
	return domain.Opportunity{Strategy: strategy, MarketID: market, Outcome: outcome, Side: domain.OrderSideBuy, ReferencePrice: 0.5, Edge: edge, Confidence: 1}
}

func TestEngineFirstPriorityWins(t *testing.T) {
	low := stubStrategy{name: "second", priority: 2, opps: []domain.Opportunity{opp("second", "m1", "YES", 0.9)}}
	high := stubStrategy{name: "first", priority: 1, opps: []domain.Opportunity{opp("first", "m1", "YES", 0.03)}}

	// Registration order must not matter.
	e := NewEngine([]Strategy{low, high}, testLogger())
	res := e.Evaluate(nil, domain.PriceSet{}, domain.AccountState{})

	require.Len(t, res.Accepted, 1)
	assert.Equal(t, "first", res.Accepted[0].Strategy)
	require.Len(t, res.Discarded, 1)
	assert.Equal(t, "second", res.Discarded[0].Opportunity.Strategy)
	assert.Equal(t, "first", res.Discarded[0].ClaimedBy)
}

func TestEngineDiscardsWholeLegGroup(t *testing.T) {
	high := stubStrategy{name: "first", priority: 1, opps: []domain.Opportunity{opp("first", "m1", "NO", 0.05)}}
	legA := opp("second", "m1", "YES", 0.05)
	legB := opp("second", "m1", "NO", 0.05)
	legA.LegGroupID, legB.LegGroupID = "hedge:m1", "hedge:m1"
	other := opp("second", "m2", "YES", 0.05)
	low := stubStrategy{name: "second", priority: 2, opps: []domain.Opportunity{legA, legB, other}}

	res := NewEngine([]Strategy{high, low}, testLogger()).Evaluate(nil, domain.PriceSet{}, domain.AccountState{})

	require.Len(t, res.Accepted, 2)
	assert.Equal(t, "m1", res.Accepted[0].MarketID)
	assert.Equal(t, "m2", res.Accepted[1].MarketID)
	assert.Len(t, res.Discarded, 2)
}

func TestEngineOrderFollowsPriority(t *testing.T) {
	a := stubStrategy{name: "a", priority: 3, opps: []domain.Opportunity{opp("a", "m3", "YES", 0.1)}}
	b := stubStrategy{name: "b", priority: 1, opps: []domain.Opportunity{opp("b", "m1", "YES", 0.1)}}
	c := stubStrategy{name: "c", priority: 2, opps: []domain.Opportunity{opp("c", "m2", "YES", 0.1)}}

	res := NewEngine([]Strategy{a, b, c}, testLogger()).Evaluate(nil, domain.PriceSet{}, domain.AccountState{})
	require.Len(t, res.Accepted, 3)
	assert.Equal(t, []string{"b", "c", "a"}, []string{res.Accepted[0].Strategy, res.Accepted[1].Strategy, res.Accepted[2].Strategy})
}

package strategy

import (
	"fmt"
	"sort"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

// CombinatorialArbitrage buys YES on every market of a mutually exclusive
// group when the YES prices sum to less than one. Legs are sized in
// proportion to price so each leg holds the same number of shares.
type CombinatorialArbitrage struct {
	cfg    config.CombinatorialArbitrageConfig
	common Common
}

// NewCombinatorialArbitrage creates the strategy.
func NewCombinatorialArbitrage(cfg config.CombinatorialArbitrageConfig, common Common) *CombinatorialArbitrage {
	return &CombinatorialArbitrage{cfg: cfg, common: common}
}

func (s *CombinatorialArbitrage) Name() string  { return CombinatorialArbitrageName }
func (s *CombinatorialArbitrage) Priority() int { return s.cfg.Priority }

type combo struct {
	name       string
	marketIDs  []string
	configured bool
}

// groups returns configured groups first, then venue event groups, each in
// name order.
func (s *CombinatorialArbitrage) groups(markets []domain.MarketSnapshot) []combo {
	var out []combo
	names := make([]string, 0, len(s.cfg.Groups))
	for n := range s.cfg.Groups {
		names = append(names, n)
	}
	sort.Strings(names)
	claimed := map[string]bool{}
	for _, n := range names {
		out = append(out, combo{name: n, marketIDs: s.cfg.Groups[n], configured: true})
		for _, id := range s.cfg.Groups[n] {
			claimed[id] = true
		}
	}

	if !s.cfg.AutoGroup {
		return out
	}
	byEvent := map[string][]string{}
	for _, m := range markets {
		if m.GroupID == "" || claimed[m.MarketID] {
			continue
		}
		byEvent[m.GroupID] = append(byEvent[m.GroupID], m.MarketID)
	}
	events := make([]string, 0, len(byEvent))
	for g := range byEvent {
		events = append(events, g)
	}
	sort.Strings(events)
	for _, g := range events {
		ids := byEvent[g]
		sort.Strings(ids)
		out = append(out, combo{name: "event:" + g, marketIDs: ids})
	}
	return out
}

// Evaluate implements Strategy.
func (s *CombinatorialArbitrage) Evaluate(markets []domain.MarketSnapshot, _ domain.PriceSet, _ domain.AccountState) []domain.Opportunity {
	byID := make(map[string]domain.MarketSnapshot, len(markets))
	for _, m := range markets {
		byID[m.MarketID] = m
	}

	var out []domain.Opportunity
	for _, g := range s.groups(markets) {
		if len(g.marketIDs) < 2 || len(g.marketIDs) > s.cfg.MaxMarketsPerCombo {
			continue
		}
		legs := make([]domain.MarketSnapshot, 0, len(g.marketIDs))
		total := 0.0
		for _, id := range g.marketIDs {
			m, ok := byID[id]
			if !ok || !activeMarket(m) {
				break
			}
			q, ok := m.Outcomes[domain.OutcomeYes]
			if !ok || q.Price <= 0 {
				break
			}
			legs = append(legs, m)
			total += q.Price
		}
		// Every leg must be priced; a partial set is not an arbitrage.
		if len(legs) != len(g.marketIDs) {
			continue
		}
		deviation := 1 - total
		if deviation <= 0 {
			continue
		}
		edge := deviation - s.common.FeeRate
		if edge < s.cfg.MinEdge {
			continue
		}

		confidence := 0.8
		if g.configured {
			confidence = 1
		}
		group := "combo:" + g.name
		for _, m := range legs {
			q := m.Outcomes[domain.OutcomeYes]
			out = append(out, domain.Opportunity{
				Strategy:            s.Name(),
				MarketID:            m.MarketID,
				Question:            m.Question,
				Outcome:             domain.OutcomeYes,
				TokenID:             q.TokenID,
				Side:                domain.OrderSideBuy,
				ReferencePrice:      q.Price,
				TargetPrice:         q.Price / total,
				Edge:                edge,
				Confidence:          confidence,
				ProposedNotionalUSD: s.cfg.ComboNotionalUSD * q.Price / total,
				LegGroupID:          group,
				Reason:              fmt.Sprintf("%s: %d legs sum to %.4f", g.name, len(legs), total),
			})
		}
	}
	sortOpportunities(out)
	return out
}

package strategy

import (
	"log/slog"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Discard is a candidate dropped because a higher priority already claimed
// its (market, outcome) this cycle.
type Discard struct {
	Opportunity domain.Opportunity
	ClaimedBy   string
}

// Result is the output of one evaluation pass.
type Result struct {
	// Accepted candidates in the order they must reach the risk manager.
	Accepted  []domain.Opportunity
	Discarded []Discard
}

// Engine runs strategies in strict priority order and enforces
// first-priority-wins on contested (market, outcome) keys.
type Engine struct {
	strategies []Strategy
	logger     *slog.Logger
}

// NewEngine creates an Engine over strategies, which it orders by
// (priority, name).
func NewEngine(strategies []Strategy, logger *slog.Logger) *Engine {
	ordered := append([]Strategy(nil), strategies...)
	sortByPriority(ordered)
	return &Engine{
		strategies: ordered,
		logger:     logger.With(slog.String("component", "strategy_engine")),
	}
}

// Strategies returns the strategies in evaluation order.
func (e *Engine) Strategies() []Strategy {
	return append([]Strategy(nil), e.strategies...)
}

// Evaluate runs one cycle. A leg group loses as a whole if any of its legs
// hits a claimed key.
func (e *Engine) Evaluate(markets []domain.MarketSnapshot, prices domain.PriceSet, account domain.AccountState) Result {
	var res Result
	claims := make(map[domain.ClaimKey]string)

	for _, s := range e.strategies {
		candidates := s.Evaluate(markets, prices, account)
		for _, batch := range batches(candidates) {
			owner := ""
			seen := make(map[domain.ClaimKey]bool, len(batch))
			for _, opp := range batch {
				if by, ok := claims[opp.Key()]; ok {
					owner = by
					break
				}
				if seen[opp.Key()] {
					owner = s.Name()
					break
				}
				seen[opp.Key()] = true
			}
			if owner != "" {
				for _, opp := range batch {
					res.Discarded = append(res.Discarded, Discard{Opportunity: opp, ClaimedBy: owner})
					e.logger.Info("opportunity discarded: key already claimed this cycle",
						slog.String("strategy", opp.Strategy),
						slog.String("claimed_by", owner),
						slog.String("market_id", opp.MarketID),
						slog.String("outcome", opp.Outcome),
						slog.Float64("edge", opp.Edge),
					)
				}
				continue
			}
			for _, opp := range batch {
				claims[opp.Key()] = s.Name()
				res.Accepted = append(res.Accepted, opp)
			}
		}
	}
	return res
}

// batches splits candidates into single opportunities and leg groups,
// preserving first-appearance order.
func batches(opps []domain.Opportunity) [][]domain.Opportunity {
	var out [][]domain.Opportunity
	index := map[string]int{}
	for _, o := range opps {
		if o.LegGroupID == "" {
			out = append(out, []domain.Opportunity{o})
			continue
		}
		if i, ok := index[o.LegGroupID]; ok {
			out[i] = append(out[i], o)
			continue
		}
		index[o.LegGroupID] = len(out)
		out = append(out, []domain.Opportunity{o})
	}
	return out
}

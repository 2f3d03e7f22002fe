package strategy

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"unicode"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

// LatencyArbitrage buys the side of a binary market that a sharp move in the
// reference instrument makes likely, while the market still prices it low.
type LatencyArbitrage struct {
	cfg    config.LatencyArbitrageConfig
	common Common
}

// NewLatencyArbitrage creates the strategy.
func NewLatencyArbitrage(cfg config.LatencyArbitrageConfig, common Common) *LatencyArbitrage {
	return &LatencyArbitrage{cfg: cfg, common: common}
}

func (s *LatencyArbitrage) Name() string  { return LatencyArbitrageName }
func (s *LatencyArbitrage) Priority() int { return s.cfg.Priority }

// Evaluate implements Strategy.
func (s *LatencyArbitrage) Evaluate(markets []domain.MarketSnapshot, prices domain.PriceSet, _ domain.AccountState) []domain.Opportunity {
	symbols := make([]string, 0, len(s.cfg.Symbols))
	for sym := range s.cfg.Symbols {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	var out []domain.Opportunity
	for _, sym := range symbols {
		snap, err := prices.Fresh(sym, s.common.MaxStaleness)
		if err != nil || !snap.HasChange {
			continue
		}
		move := math.Abs(snap.PercentChange)
		if move < s.cfg.MomentumThreshold {
			continue
		}

		outcome := domain.OutcomeYes
		if snap.PercentChange < 0 {
			outcome = domain.OutcomeNo
		}
		implied := math.Min(s.cfg.FairValueCap, 0.5+s.cfg.Sensitivity*move)
		confidence := math.Min(move/0.05, 1)

		for _, m := range markets {
			if !activeMarket(m) || !m.IsBinary() || !mentions(m.Question, s.cfg.Symbols[sym]) {
				continue
			}
			q := m.Outcomes[outcome]
			if q.Price <= 0 || q.Price >= s.cfg.MaxEntryPrice {
				continue
			}
			edge := implied - q.Price - s.common.FeeRate*implied
			if edge < s.cfg.MinEdge {
				continue
			}
			out = append(out, domain.Opportunity{
				Strategy:       s.Name(),
				MarketID:       m.MarketID,
				Question:       m.Question,
				Outcome:        outcome,
				TokenID:        q.TokenID,
				Side:           domain.OrderSideBuy,
				ReferencePrice: q.Price,
				TargetPrice:    implied,
				Edge:           edge,
				Confidence:     confidence,
				Reason:         fmt.Sprintf("%s moved %+.2f%% over %s", sym, snap.PercentChange*100, snap.Window),
			})
		}
	}
	sortOpportunities(out)
	return out
}

// mentions reports whether question contains any keyword as a whole word.
func mentions(question string, keywords []string) bool {
	words := strings.FieldsFunc(strings.ToLower(question), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		for _, k := range keywords {
			if w == strings.ToLower(k) {
				return true
			}
		}
	}
	return false
}

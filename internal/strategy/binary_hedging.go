package strategy

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

// BinaryHedging trades mispricing inside a single binary market: both legs
// when YES+NO is cheap, or one leg when it trades below its trailing average.
type BinaryHedging struct {
	cfg    config.BinaryHedgingConfig
	common Common
}

// NewBinaryHedging creates the strategy.
func NewBinaryHedging(cfg config.BinaryHedgingConfig, common Common) *BinaryHedging {
	return &BinaryHedging{cfg: cfg, common: common}
}

func (s *BinaryHedging) Name() string  { return BinaryHedgingName }
func (s *BinaryHedging) Priority() int { return s.cfg.Priority }

// Evaluate implements Strategy.
func (s *BinaryHedging) Evaluate(markets []domain.MarketSnapshot, prices domain.PriceSet, _ domain.AccountState) []domain.Opportunity {
	var out []domain.Opportunity
	since := prices.AsOf.Add(-s.cfg.AverageWindow.Duration)

	for _, m := range markets {
		if !activeMarket(m) || !m.IsBinary() {
			continue
		}
		yes, no := m.Outcomes[domain.OutcomeYes], m.Outcomes[domain.OutcomeNo]

		if yes.Price > 0 && no.Price > 0 {
			sum := yes.Price + no.Price
			if 1-sum > s.cfg.SumDiscount {
				edge := 1 - sum - s.common.FeeRate
				group := "hedge:" + m.MarketID
				reason := fmt.Sprintf("YES+NO=%.4f below 1 by %.4f", sum, 1-sum)
				for _, leg := range []struct {
					outcome string
					q       domain.OutcomeQuote
				}{{domain.OutcomeYes, yes}, {domain.OutcomeNo, no}} {
					out = append(out, domain.Opportunity{
						Strategy:       s.Name(),
						MarketID:       m.MarketID,
						Question:       m.Question,
						Outcome:        leg.outcome,
						TokenID:        leg.q.TokenID,
						Side:           domain.OrderSideBuy,
						ReferencePrice: leg.q.Price,
						TargetPrice:    leg.q.Price + (1-sum)/2,
						Edge:           edge,
						Confidence:     1,
						LegGroupID:     group,
						Reason:         reason,
					})
				}
				continue
			}
		}

		for _, outcome := range []string{domain.OutcomeYes, domain.OutcomeNo} {
			q := m.Outcomes[outcome]
			if q.Price <= 0 || q.Price >= s.cfg.MaxEntryPrice {
				continue
			}
			hist := m.HistorySince(outcome, since)
			if len(hist) < s.cfg.MinSamples {
				continue
			}
			avg := mean(hist)
			if avg <= 0 {
				continue
			}
			discount := (avg - q.Price) / avg
			if discount < s.cfg.MinDiscount {
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
				TargetPrice:    avg,
				Edge:           avg - q.Price - s.common.FeeRate*avg,
				Confidence:     math.Min(discount/(2*s.cfg.MinDiscount), 1),
				Reason:         fmt.Sprintf("%.2f%% below %s average %.4f", discount*100, s.cfg.AverageWindow.Duration, avg),
			})
		}
	}
	sortOpportunities(out)
	return out
}

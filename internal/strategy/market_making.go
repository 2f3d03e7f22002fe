package strategy

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/stratbot/internal/config"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

// MarketMaking quotes both sides inside a wide spread on calm markets. Calm
// means the mean YES volatility across the configured lookbacks is under the
// ceiling.
type MarketMaking struct {
	cfg    config.MarketMakingConfig
	common Common
}

// NewMarketMaking creates the strategy.
func NewMarketMaking(cfg config.MarketMakingConfig, common Common) *MarketMaking {
	return &MarketMaking{cfg: cfg, common: common}
}

func (s *MarketMaking) Name() string  { return MarketMakingName }
func (s *MarketMaking) Priority() int { return s.cfg.Priority }

// Volatility averages the population stdev of YES history over every
// lookback that has enough samples. ok is false when none does.
func (s *MarketMaking) Volatility(m domain.MarketSnapshot, now time.Time) (float64, bool) {
	var sum float64
	var n int
	for _, h := range s.cfg.VolatilityLookbackHours {
		pts := m.HistorySince(domain.OutcomeYes, now.Add(-time.Duration(h)*time.Hour))
		if len(pts) < s.cfg.MinSamples {
			continue
		}
		sum += volatility(pts)
		n++
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// Evaluate implements Strategy.
func (s *MarketMaking) Evaluate(markets []domain.MarketSnapshot, prices domain.PriceSet, _ domain.AccountState) []domain.Opportunity {
	var out []domain.Opportunity
	for _, m := range markets {
		if !activeMarket(m) || !m.IsBinary() {
			continue
		}
		yes, no := m.Outcomes[domain.OutcomeYes], m.Outcomes[domain.OutcomeNo]
		bid, ask := yes.BestBid, yes.BestAsk
		if bid <= 0 || ask <= bid || ask >= 1 {
			continue
		}
		mid := (bid + ask) / 2
		if (ask-bid)/mid < s.cfg.MinSpread {
			continue
		}
		vol, ok := s.Volatility(m, prices.AsOf)
		if !ok || vol >= s.cfg.MaxVolatility {
			continue
		}

		ourBid := bid + s.cfg.Improve
		ourAsk := ask - s.cfg.Improve
		if ourAsk <= ourBid {
			continue
		}
		edge := (ourAsk-ourBid)/2 - s.common.FeeRate*mid
		confidence := clamp01(1 - vol/s.cfg.MaxVolatility)
		group := "mm:" + m.MarketID
		reason := fmt.Sprintf("spread %.4f/%.4f vol %.4f", bid, ask, vol)

		out = append(out,
			domain.Opportunity{
				Strategy:            s.Name(),
				MarketID:            m.MarketID,
				Question:            m.Question,
				Outcome:             domain.OutcomeYes,
				TokenID:             yes.TokenID,
				Side:                domain.OrderSideBuy,
				ReferencePrice:      ourBid,
				TargetPrice:         mid,
				Edge:                edge,
				Confidence:          confidence,
				ProposedNotionalUSD: s.cfg.QuoteNotionalUSD,
				LegGroupID:          group,
				Reason:              reason,
			},
			// Selling YES at ourAsk is expressed as buying NO at 1-ourAsk.
			domain.Opportunity{
				Strategy:            s.Name(),
				MarketID:            m.MarketID,
				Question:            m.Question,
				Outcome:             domain.OutcomeNo,
				TokenID:             no.TokenID,
				Side:                domain.OrderSideBuy,
				ReferencePrice:      1 - ourAsk,
				TargetPrice:         1 - mid,
				Edge:                edge,
				Confidence:          confidence,
				ProposedNotionalUSD: s.cfg.QuoteNotionalUSD,
				LegGroupID:          group,
				Reason:              reason,
			},
		)
	}
	sortOpportunities(out)
	return out
}

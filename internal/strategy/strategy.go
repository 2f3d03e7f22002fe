// Package strategy holds the fixed set of opportunity detectors and the
// engine that runs them in priority order.
package strategy

import (
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Strategy names. The set is closed; see builders in registry.go.
const (
	LatencyArbitrageName       = "latency_arbitrage"
	BinaryHedgingName          = "binary_hedging"
	CombinatorialArbitrageName = "combinatorial_arbitrage"
	MarketMakingName           = "market_making"
)

// Strategy proposes opportunities from market and price snapshots. Evaluate
// must be a pure function of its arguments and the strategy's parameters so
// that a recorded cycle replays to the same candidates.
type Strategy interface {
	Name() string
	Priority() int
	Evaluate(markets []domain.MarketSnapshot, prices domain.PriceSet, account domain.AccountState) []domain.Opportunity
}

// Common holds parameters shared by every strategy.
type Common struct {
	// FeeRate is the winner fee used to net edges.
	FeeRate float64
	// MaxStaleness bounds how old a reference price may be.
	MaxStaleness time.Duration
}

// ExitPolicy describes when an OPEN position is closed before settlement.
// Multipliers are relative to the entry price; zero disables a rule.
type ExitPolicy struct {
	TakeProfit float64
	StopLoss   float64
	MaxHold    time.Duration
}

// Check returns the exit reason for pos at mark, if any rule fires.
func (p ExitPolicy) Check(pos domain.Position, mark float64, now time.Time) (string, bool) {
	if mark <= 0 || pos.EntryPrice <= 0 {
		return "", false
	}
	ratio := mark / pos.EntryPrice
	if pos.Side == domain.OrderSideSell {
		ratio = pos.EntryPrice / mark
	}
	switch {
	case p.TakeProfit > 0 && ratio >= p.TakeProfit:
		return fmt.Sprintf("take profit at %.4f (%.2fx entry)", mark, ratio), true
	case p.StopLoss > 0 && ratio <= p.StopLoss:
		return fmt.Sprintf("stop loss at %.4f (%.2fx entry)", mark, ratio), true
	case p.MaxHold > 0 && pos.Held(now) >= p.MaxHold:
		return fmt.Sprintf("max hold %s reached", p.MaxHold), true
	}
	return "", false
}

// IsZero reports whether no rule is configured.
func (p ExitPolicy) IsZero() bool {
	return p.TakeProfit == 0 && p.StopLoss == 0 && p.MaxHold == 0
}

func activeMarket(m domain.MarketSnapshot) bool {
	return m.Status == domain.MarketStatusActive || m.Status == ""
}

func sortOpportunities(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		if opps[i].LegGroupID != opps[j].LegGroupID {
			return opps[i].LegGroupID < opps[j].LegGroupID
		}
		if opps[i].MarketID != opps[j].MarketID {
			return opps[i].MarketID < opps[j].MarketID
		}
		return opps[i].Outcome < opps[j].Outcome
	})
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

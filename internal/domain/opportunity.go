package domain

import "fmt"

// OrderSide indicates whether this is a buy or sell.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// ClaimKey identifies the bet an opportunity contests within one cycle.
type ClaimKey struct {
	MarketID string
	Outcome  string
}

func (k ClaimKey) String() string { return k.MarketID + "/" + k.Outcome }

// Opportunity is a candidate trade proposed by a strategy. It carries no
// capital commitment and is never persisted on its own.
type Opportunity struct {
	Strategy       string
	MarketID       string
	Question       string
	Outcome        string
	TokenID        string
	Side           OrderSide
	ReferencePrice float64
	TargetPrice    float64
	// Edge is the expected profit per share in price units, net of fees.
	Edge       float64
	Confidence float64
	// ProposedNotionalUSD is optional; zero lets the risk manager size it.
	ProposedNotionalUSD float64
	// LegGroupID ties the legs of a multi-leg trade together.
	LegGroupID string
	Reason     string
}

// Key returns the (market, outcome) claim key.
func (o Opportunity) Key() ClaimKey {
	return ClaimKey{MarketID: o.MarketID, Outcome: o.Outcome}
}

// PositionKey returns the ledger uniqueness key for this opportunity.
func (o Opportunity) PositionKey() PositionKey {
	return PositionKey{Strategy: o.Strategy, MarketID: o.MarketID, Outcome: o.Outcome}
}

func (o Opportunity) String() string {
	return fmt.Sprintf("%s %s %s/%s @%.4f edge=%.4f conf=%.2f", o.Strategy, o.Side, o.MarketID, o.Outcome, o.ReferencePrice, o.Edge, o.Confidence)
}

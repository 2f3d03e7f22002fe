package domain

import "time"

// PositionState is a step in the position lifecycle.
type PositionState string

const (
	PositionPending  PositionState = "PENDING"
	PositionOpen     PositionState = "OPEN"
	PositionResolved PositionState = "RESOLVED"
	PositionClosed   PositionState = "CLOSED"
	PositionExpired  PositionState = "EXPIRED"
)

// Live reports whether the state counts toward exposure and uniqueness.
func (s PositionState) Live() bool {
	return s == PositionPending || s == PositionOpen
}

// Terminal reports whether no further transition is possible.
func (s PositionState) Terminal() bool {
	return s == PositionResolved || s == PositionClosed || s == PositionExpired
}

var transitions = map[PositionState][]PositionState{
	PositionPending: {PositionOpen},
	PositionOpen:    {PositionResolved, PositionClosed, PositionExpired},
}

// CanTransition reports whether from → to is a forward lifecycle step.
func CanTransition(from, to PositionState) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// PositionKey is the uniqueness key for live positions.
type PositionKey struct {
	Strategy string
	MarketID string
	Outcome  string
}

// Position is owned by the ledger. Everything else reads copies.
type Position struct {
	ID          string
	Strategy    string
	MarketID    string
	Question    string
	Outcome     string
	TokenID     string
	Side        OrderSide
	EntryPrice  float64
	Size        float64
	NotionalUSD float64
	Edge        float64
	Confidence  float64
	State       PositionState
	OpenedAt    time.Time
	ConfirmedAt *time.Time
	ClosedAt    *time.Time
	ExitPrice   *float64
	RealizedPnL *float64
	Fees        float64
	LastMark    float64
	// Uncertain marks EXPIRED positions settled from the last mark rather
	// than a venue resolution.
	Uncertain  bool
	OrderID    string
	LegGroupID string
	Reason     string
}

// Key returns the uniqueness key.
func (p Position) Key() PositionKey {
	return PositionKey{Strategy: p.Strategy, MarketID: p.MarketID, Outcome: p.Outcome}
}

// UnrealizedPnL marks an OPEN position at its last mark, before fees.
func (p Position) UnrealizedPnL() float64 {
	if p.State != PositionOpen || p.LastMark == 0 {
		return 0
	}
	if p.Side == OrderSideSell {
		return (p.EntryPrice - p.LastMark) * p.Size
	}
	return (p.LastMark - p.EntryPrice) * p.Size
}

// Held reports how long the position has been live.
func (p Position) Held(now time.Time) time.Duration {
	return now.Sub(p.OpenedAt)
}

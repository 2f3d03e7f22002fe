package domain

import "time"

// TradeEvent is one persisted record per position transition. It is written
// one JSON object per line and mirrored column for column in the CSV export.
type TradeEvent struct {
	PositionID  string        `json:"position_id"`
	Mode        string        `json:"mode"`
	Strategy    string        `json:"strategy"`
	MarketID    string        `json:"market_id"`
	Question    string        `json:"question,omitempty"`
	Outcome     string        `json:"outcome"`
	Side        OrderSide     `json:"side"`
	EntryPrice  float64       `json:"entry_price"`
	Size        float64       `json:"size"`
	NotionalUSD float64       `json:"notional_usd"`
	Edge        float64       `json:"edge"`
	Confidence  float64       `json:"confidence"`
	State       PositionState `json:"state"`
	OpenedAt    time.Time     `json:"opened_at"`
	ResolvedAt  *time.Time    `json:"resolved_at,omitempty"`
	ExitPrice   *float64      `json:"exit_price,omitempty"`
	RealizedPnL *float64      `json:"realized_pnl,omitempty"`
	Fees        float64       `json:"fees"`
	Uncertain   bool          `json:"uncertain,omitempty"`
	OrderID     string        `json:"order_id,omitempty"`
	LegGroupID  string        `json:"leg_group_id,omitempty"`
	Reason      string        `json:"reason,omitempty"`
	RecordedAt  time.Time     `json:"recorded_at"`
}

// NewTradeEvent snapshots p as an event.
func NewTradeEvent(mode string, p Position, at time.Time) TradeEvent {
	return TradeEvent{
		PositionID:  p.ID,
		Mode:        mode,
		Strategy:    p.Strategy,
		MarketID:    p.MarketID,
		Question:    p.Question,
		Outcome:     p.Outcome,
		Side:        p.Side,
		EntryPrice:  p.EntryPrice,
		Size:        p.Size,
		NotionalUSD: p.NotionalUSD,
		Edge:        p.Edge,
		Confidence:  p.Confidence,
		State:       p.State,
		OpenedAt:    p.OpenedAt,
		ResolvedAt:  p.ClosedAt,
		ExitPrice:   p.ExitPrice,
		RealizedPnL: p.RealizedPnL,
		Fees:        p.Fees,
		Uncertain:   p.Uncertain,
		OrderID:     p.OrderID,
		LegGroupID:  p.LegGroupID,
		Reason:      p.Reason,
		RecordedAt:  at,
	}
}

// Position rebuilds the position state carried by the event.
func (e TradeEvent) Position() Position {
	return Position{
		ID:          e.PositionID,
		Strategy:    e.Strategy,
		MarketID:    e.MarketID,
		Question:    e.Question,
		Outcome:     e.Outcome,
		Side:        e.Side,
		EntryPrice:  e.EntryPrice,
		Size:        e.Size,
		NotionalUSD: e.NotionalUSD,
		Edge:        e.Edge,
		Confidence:  e.Confidence,
		State:       e.State,
		OpenedAt:    e.OpenedAt,
		ClosedAt:    e.ResolvedAt,
		ExitPrice:   e.ExitPrice,
		RealizedPnL: e.RealizedPnL,
		Fees:        e.Fees,
		Uncertain:   e.Uncertain,
		OrderID:     e.OrderID,
		LegGroupID:  e.LegGroupID,
		Reason:      e.Reason,
	}
}

// Discarded is a pseudo-state recorded when a PENDING reservation is rolled
// back. The position never existed as far as accounting is concerned.
const Discarded PositionState = "DISCARDED"

package domain

import "context"

// OrderRequest is what the executor asks a gateway to place.
type OrderRequest struct {
	PositionID string
	MarketID   string
	Outcome    string
	TokenID    string
	Side       OrderSide
	Size       float64
	LimitPrice float64
	// ReferencePrice is the market price the opportunity was priced from.
	ReferencePrice float64
}

// Notional is size × limit price.
func (r OrderRequest) Notional() float64 {
	return r.Size * r.LimitPrice
}

// OrderResult wraps the gateway response after order submission.
type OrderResult struct {
	Confirmed bool
	OrderID   string
	FillPrice float64
	FillSize  float64
	FeeUSD    float64
	Message   string
}

// Gateway turns an approved order into a real or simulated fill.
type Gateway interface {
	PlaceOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	GetBalance(ctx context.Context) (float64, error)
	Name() string
}

// MarketSource yields venue market snapshots.
type MarketSource interface {
	ListMarkets(ctx context.Context) ([]MarketSnapshot, error)
	GetMarket(ctx context.Context, marketID string) (MarketSnapshot, error)
}

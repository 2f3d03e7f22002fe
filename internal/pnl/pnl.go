// Package pnl holds the single realized-PnL calculation shared by the live
// and simulated paths. Arithmetic is done in decimal so both paths produce
// identical figures for identical inputs.
package pnl

import (
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Fees is the flat fee schedule applied to every position.
type Fees struct {
	// WinnerFee is charged on the exit value of a profitable position.
	WinnerFee float64
	// TakerFee is charged on the entry notional.
	TakerFee float64
}

// Result is a realized PnL breakdown.
type Result struct {
	Gross decimal.Decimal
	Fees  decimal.Decimal
	Net   decimal.Decimal
}

// NetFloat returns Net as a float64 rounded to 8 places.
func (r Result) NetFloat() float64 {
	return r.Net.Round(8).InexactFloat64()
}

// FeesFloat returns Fees as a float64 rounded to 8 places.
func (r Result) FeesFloat() float64 {
	return r.Fees.Round(8).InexactFloat64()
}

// Compute realizes a position of size shares bought (or sold) at entry and
// settled or exited at exit.
//
//	BUY  gross = (exit - entry) * size
//	SELL gross = (entry - exit) * size
//	fees       = taker * entry * size + (gross > 0 ? winner * payout : 0)
//
// where payout is exit*size for BUY and (1-exit)*size for SELL.
func Compute(side domain.OrderSide, entry, exit, size float64, fees Fees) Result {
	e := decimal.NewFromFloat(entry)
	x := decimal.NewFromFloat(exit)
	s := decimal.NewFromFloat(size)

	var gross, payout decimal.Decimal
	if side == domain.OrderSideSell {
		gross = e.Sub(x).Mul(s)
		payout = decimal.NewFromInt(1).Sub(x).Mul(s)
	} else {
		gross = x.Sub(e).Mul(s)
		payout = x.Mul(s)
	}

	fee := decimal.NewFromFloat(fees.TakerFee).Mul(e).Mul(s)
	if gross.IsPositive() {
		fee = fee.Add(decimal.NewFromFloat(fees.WinnerFee).Mul(payout))
	}

	return Result{Gross: gross, Fees: fee, Net: gross.Sub(fee)}
}

// Notional is size × price in decimal.
func Notional(size, price float64) decimal.Decimal {
	return decimal.NewFromFloat(size).Mul(decimal.NewFromFloat(price))
}

package recorder

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// StrategySummary is the per-strategy slice of a Summary.
type StrategySummary struct {
	Strategy string  `json:"strategy"`
	Trades   int     `json:"trades"`
	Settled  int     `json:"settled"`
	Open     int     `json:"open"`
	Wins     int     `json:"wins"`
	Losses   int     `json:"losses"`
	WinRate  float64 `json:"win_rate"`
	NetPnL   float64 `json:"net_pnl"`
	Fees     float64 `json:"fees"`
}

// Summary aggregates a set of positions.
type Summary struct {
	Total       int               `json:"total"`
	Settled     int               `json:"settled"`
	Open        int               `json:"open"`
	Uncertain   int               `json:"uncertain"`
	Wins        int               `json:"wins"`
	Losses      int               `json:"losses"`
	WinRate     float64           `json:"win_rate"`
	TotalPnL    float64           `json:"total_pnl"`
	AvgPnL      float64           `json:"avg_pnl"`
	TotalFees   float64           `json:"total_fees"`
	MaxDrawdown float64           `json:"max_drawdown"`
	Strategies  []StrategySummary `json:"strategies"`
}

type tally struct {
	trades, settled, open, wins, losses int
	pnl, fees                           decimal.Decimal
}

func (t *tally) add(p domain.Position) {
	t.trades++
	if p.State.Live() {
		t.open++
		return
	}
	if p.RealizedPnL == nil {
		return
	}
	t.settled++
	net := decimal.NewFromFloat(*p.RealizedPnL)
	t.pnl = t.pnl.Add(net)
	t.fees = t.fees.Add(decimal.NewFromFloat(p.Fees))
	switch {
	case net.IsPositive():
		t.wins++
	case net.IsNegative():
		t.losses++
	}
}

func (t *tally) winRate() float64 {
	if t.settled == 0 {
		return 0
	}
	return float64(t.wins) / float64(t.settled)
}

// Summarize aggregates positions overall and per strategy. Strategies are
// listed by name.
func Summarize(positions []domain.Position) Summary {
	var all tally
	per := make(map[string]*tally)
	var uncertain int
	for _, p := range positions {
		if p.State == domain.Discarded {
			continue
		}
		all.add(p)
		t, ok := per[p.Strategy]
		if !ok {
			t = &tally{}
			per[p.Strategy] = t
		}
		t.add(p)
		if p.Uncertain {
			uncertain++
		}
	}

	s := Summary{
		Total:       all.trades,
		Settled:     all.settled,
		Open:        all.open,
		Uncertain:   uncertain,
		Wins:        all.wins,
		Losses:      all.losses,
		WinRate:     all.winRate(),
		TotalPnL:    all.pnl.Round(8).InexactFloat64(),
		TotalFees:   all.fees.Round(8).InexactFloat64(),
		MaxDrawdown: MaxDrawdown(positions),
	}
	if all.settled > 0 {
		s.AvgPnL = all.pnl.Div(decimal.NewFromInt(int64(all.settled))).Round(8).InexactFloat64()
	}

	names := make([]string, 0, len(per))
	for n := range per {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		t := per[n]
		s.Strategies = append(s.Strategies, StrategySummary{
			Strategy: n,
			Trades:   t.trades,
			Settled:  t.settled,
			Open:     t.open,
			Wins:     t.wins,
			Losses:   t.losses,
			WinRate:  t.winRate(),
			NetPnL:   t.pnl.Round(8).InexactFloat64(),
			Fees:     t.fees.Round(8).InexactFloat64(),
		})
	}
	return s
}

// MaxDrawdown is the largest peak-to-trough fall of the cumulative realized
// PnL curve, with settlements ordered by close time.
func MaxDrawdown(positions []domain.Position) float64 {
	settled := make([]domain.Position, 0, len(positions))
	for _, p := range positions {
		if p.State.Terminal() && p.RealizedPnL != nil && p.ClosedAt != nil {
			settled = append(settled, p)
		}
	}
	sort.SliceStable(settled, func(i, j int) bool { return settled[i].ClosedAt.Before(*settled[j].ClosedAt) })

	cum, peak, worst := decimal.Zero, decimal.Zero, decimal.Zero
	for _, p := range settled {
		cum = cum.Add(decimal.NewFromFloat(*p.RealizedPnL))
		if cum.GreaterThan(peak) {
			peak = cum
		}
		if dd := peak.Sub(cum); dd.GreaterThan(worst) {
			worst = dd
		}
	}
	return worst.Round(8).InexactFloat64()
}

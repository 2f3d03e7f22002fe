package strategy

import (
	"math"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// mean returns the arithmetic mean of the sample prices, or 0 when empty.
func mean(pts []domain.PricePoint) float64 {
	if len(pts) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pts {
		sum += p.Price
	}
	return sum / float64(len(pts))
}

// volatility returns the population standard deviation of the sample
// prices. Fewer than two points yield 0.
func volatility(pts []domain.PricePoint) float64 {
	if len(pts) < 2 {
		return 0
	}
	m := mean(pts)
	var variance float64
	for _, p := range pts {
		d := p.Price - m
		variance += d * d
	}
	variance /= float64(len(pts))
	return math.Sqrt(variance)
}

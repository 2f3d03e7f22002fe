package domain

import (
	"strings"
	"time"
)

// MarketStatus represents the lifecycle state of a market.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusClosed   MarketStatus = "closed"
	MarketStatusResolved MarketStatus = "resolved"
)

// Canonical outcome names for binary markets.
const (
	OutcomeYes = "YES"
	OutcomeNo  = "NO"
)

// NormalizeOutcome upper-cases an outcome label and maps Up/Down style
// binaries onto YES/NO.
func NormalizeOutcome(label string) string {
	switch o := strings.ToUpper(strings.TrimSpace(label)); o {
	case "UP", "TRUE":
		return OutcomeYes
	case "DOWN", "FALSE":
		return OutcomeNo
	default:
		return o
	}
}

// OutcomeQuote is the venue's view of one outcome token.
type OutcomeQuote struct {
	TokenID string
	Price   float64
	BestBid float64
	BestAsk float64
}

// PricePoint is one sample in an outcome's price history.
type PricePoint struct {
	At    time.Time
	Price float64
}

// MarketSnapshot is one venue market as seen in a single polling cycle.
type MarketSnapshot struct {
	MarketID  string
	Question  string
	GroupID   string // venue event id; markets in one event are mutually exclusive
	Outcomes  map[string]OutcomeQuote
	Liquidity float64
	Volume    float64
	Status    MarketStatus
	Winner    string // normalized outcome, set once resolved
	ExpiresAt *time.Time
	FetchedAt time.Time

	// History is attached by the market service, oldest first.
	History map[string][]PricePoint
}

// Price returns the quoted price of an outcome.
func (m MarketSnapshot) Price(outcome string) (float64, bool) {
	q, ok := m.Outcomes[outcome]
	if !ok {
		return 0, false
	}
	return q.Price, true
}

// IsBinary reports whether the market has exactly a YES and a NO outcome.
func (m MarketSnapshot) IsBinary() bool {
	if len(m.Outcomes) != 2 {
		return false
	}
	_, yes := m.Outcomes[OutcomeYes]
	_, no := m.Outcomes[OutcomeNo]
	return yes && no
}

// Resolved reports whether the venue has settled the market with a winner.
func (m MarketSnapshot) Resolved() bool {
	return m.Status == MarketStatusResolved && m.Winner != ""
}

// HistorySince returns the samples of outcome at or after since.
func (m MarketSnapshot) HistorySince(outcome string, since time.Time) []PricePoint {
	h := m.History[outcome]
	i := 0
	for i < len(h) && h[i].At.Before(since) {
		i++
	}
	return h[i:]
}

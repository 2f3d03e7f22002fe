package domain

import (
	"fmt"
	"time"
)

// InstrumentSnapshot is an immutable point-in-time view of a reference
// instrument such as BTCUSDT.
type InstrumentSnapshot struct {
	Symbol    string
	LastPrice float64
	// PercentChange is a fraction (0.01 == 1%) over Window. It is only
	// meaningful when HasChange is true.
	PercentChange float64
	HasChange     bool
	Window        time.Duration
	Timestamp     time.Time
}

// Age reports how old the snapshot is relative to now.
func (s InstrumentSnapshot) Age(now time.Time) time.Duration {
	return now.Sub(s.Timestamp)
}

// PriceSet is the set of instrument snapshots handed to strategies for one
// evaluation cycle.
type PriceSet struct {
	AsOf        time.Time
	Instruments map[string]InstrumentSnapshot
}

// Get returns the snapshot for symbol, if any.
func (p PriceSet) Get(symbol string) (InstrumentSnapshot, bool) {
	s, ok := p.Instruments[symbol]
	return s, ok
}

// Fresh returns the snapshot for symbol when it is no older than maxAge.
// Absent symbols yield ErrNotFound and stale ones ErrFeedStale; callers treat
// both as "no opportunity this cycle".
func (p PriceSet) Fresh(symbol string, maxAge time.Duration) (InstrumentSnapshot, error) {
	s, ok := p.Instruments[symbol]
	if !ok {
		return InstrumentSnapshot{}, fmt.Errorf("instrument %s: %w", symbol, ErrNotFound)
	}
	if maxAge > 0 && s.Age(p.AsOf) > maxAge {
		return InstrumentSnapshot{}, fmt.Errorf("instrument %s age %s: %w", symbol, s.Age(p.AsOf).Round(time.Millisecond), ErrFeedStale)
	}
	return s, nil
}

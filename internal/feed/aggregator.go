// Package feed keeps the latest reference-instrument prices and their recent
// history. Feeds push into the Aggregator; strategies pull PriceSets from it.
package feed

import (
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Aggregator holds one bounded sample ring per symbol. Updates are
// last-write-wins by timestamp: anything not newer than the stored sample is
// dropped, which also makes a repeated update a no-op.
type Aggregator struct {
	mu           sync.Mutex
	rings        map[string]*ring
	capacity     int
	horizon      time.Duration
	changeWindow time.Duration
}

// NewAggregator creates an Aggregator. horizon bounds how far back samples
// are kept; changeWindow is the window Snapshot reports PercentChange over.
func NewAggregator(capacity int, horizon, changeWindow time.Duration) *Aggregator {
	if capacity < 2 {
		capacity = 2
	}
	return &Aggregator{
		rings:        make(map[string]*ring),
		capacity:     capacity,
		horizon:      horizon,
		changeWindow: changeWindow,
	}
}

// Update records price for symbol at ts. It reports whether the sample was
// accepted.
func (a *Aggregator) Update(symbol string, price float64, ts time.Time) bool {
	if price <= 0 {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.rings[symbol]
	if !ok {
		r = newRing(a.capacity)
		a.rings[symbol] = r
	}
	if last, ok := r.last(); ok && !ts.After(last.at) {
		return false
	}
	r.push(sample{at: ts, price: price})
	return true
}

// Snapshot returns the latest view of symbol, or false when the symbol has
// never been seen.
func (a *Aggregator) Snapshot(symbol string) (domain.InstrumentSnapshot, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.snapshotLocked(symbol)
}

func (a *Aggregator) snapshotLocked(symbol string) (domain.InstrumentSnapshot, bool) {
	r, ok := a.rings[symbol]
	if !ok {
		return domain.InstrumentSnapshot{}, false
	}
	last, _ := r.last()
	snap := domain.InstrumentSnapshot{
		Symbol:    symbol,
		LastPrice: last.price,
		Window:    a.changeWindow,
		Timestamp: last.at,
	}
	snap.PercentChange, snap.HasChange = a.changeLocked(r, a.changeWindow)
	return snap, true
}

// PercentChange returns the fractional change of symbol over window, measured
// from the newest sample at or before (latest - window). It is absent for
// unknown symbols and when the buffer does not reach back that far.
func (a *Aggregator) PercentChange(symbol string, window time.Duration) (float64, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()

	r, ok := a.rings[symbol]
	if !ok {
		return 0, false
	}
	return a.changeLocked(r, window)
}

func (a *Aggregator) changeLocked(r *ring, window time.Duration) (float64, bool) {
	last, ok := r.last()
	if !ok || window <= 0 || (a.horizon > 0 && window > a.horizon) {
		return 0, false
	}
	if a.horizon > 0 {
		r.evictBefore(last.at.Add(-a.horizon))
	}
	base, ok := r.baseAt(last.at.Add(-window))
	if !ok || base.price == 0 {
		return 0, false
	}
	return (last.price - base.price) / base.price, true
}

// PriceSet snapshots every known symbol for one evaluation cycle.
func (a *Aggregator) PriceSet(now time.Time) domain.PriceSet {
	a.mu.Lock()
	defer a.mu.Unlock()

	set := domain.PriceSet{AsOf: now, Instruments: make(map[string]domain.InstrumentSnapshot, len(a.rings))}
	for symbol := range a.rings {
		if snap, ok := a.snapshotLocked(symbol); ok {
			set.Instruments[symbol] = snap
		}
	}
	return set
}

// Symbols lists the tracked symbols in sorted order.
func (a *Aggregator) Symbols() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.rings))
	for s := range a.rings {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

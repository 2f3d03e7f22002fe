package feed

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Unix(1_700_000_000, 0).UTC()

func TestUpdateIsIdempotent(t *testing.T) {
	a := NewAggregator(16, 5*time.Minute, time.Minute)
	require.True(t, a.Update("BTCUSDT", 50000, t0))
	require.True(t, a.Update("BTCUSDT", 50500, t0.Add(61*time.Second)))

	before, ok := a.Snapshot("BTCUSDT")
	require.True(t, ok)

	assert.False(t, a.Update("BTCUSDT", 50500, t0.Add(61*time.Second)))
	after, ok := a.Snapshot("BTCUSDT")
	require.True(t, ok)
	assert.Equal(t, before, after)
}

func TestIdempotenceProperty(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a := NewAggregator(8, time.Minute, 10*time.Second)
		ts := t0
		for j := 0; j < rng.Intn(20); j++ {
			ts = ts.Add(time.Duration(1+rng.Intn(5000)) * time.Millisecond)
			a.Update("X", 1+rng.Float64(), ts)
		}
		price := 1 + rng.Float64()
		ts = ts.Add(time.Second)
		a.Update("X", price, ts)
		first, _ := a.Snapshot("X")
		a.Update("X", price, ts)
		second, _ := a.Snapshot("X")
		require.Equal(t, first, second)
	}
}

func TestOutOfOrderUpdatesIgnored(t *testing.T) {
	a := NewAggregator(16, 5*time.Minute, time.Minute)
	a.Update("ETHUSDT", 3000, t0.Add(10*time.Second))
	assert.False(t, a.Update("ETHUSDT", 2900, t0))
	assert.False(t, a.Update("ETHUSDT", 2950, t0.Add(10*time.Second)))

	snap, ok := a.Snapshot("ETHUSDT")
	require.True(t, ok)
	assert.Equal(t, 3000.0, snap.LastPrice)
	assert.Equal(t, t0.Add(10*time.Second), snap.Timestamp)
}

func TestUnknownSymbolIsAbsent(t *testing.T) {
	a := NewAggregator(16, 5*time.Minute, time.Minute)
	_, ok := a.Snapshot("DOGEUSDT")
	assert.False(t, ok)
	_, ok = a.PercentChange("DOGEUSDT", time.Minute)
	assert.False(t, ok)
	assert.Empty(t, a.PriceSet(t0).Instruments)
}

func TestPercentChange(t *testing.T) {
	a := NewAggregator(64, 5*time.Minute, time.Minute)
	a.Update("BTCUSDT", 100, t0)
	a.Update("BTCUSDT", 101, t0.Add(30*time.Second))

	// Buffer does not reach a full window back yet.
	_, ok := a.PercentChange("BTCUSDT", time.Minute)
	assert.False(t, ok)

	a.Update("BTCUSDT", 102, t0.Add(70*time.Second))
	chg, ok := a.PercentChange("BTCUSDT", time.Minute)
	require.True(t, ok)
	assert.InDelta(t, 0.02, chg, 1e-12)

	snap, _ := a.Snapshot("BTCUSDT")
	assert.True(t, snap.HasChange)
	assert.InDelta(t, 0.02, snap.PercentChange, 1e-12)

	// Windows beyond the horizon are never answered.
	_, ok = a.PercentChange("BTCUSDT", 10*time.Minute)
	assert.False(t, ok)
}

func TestHorizonEvictionOnRead(t *testing.T) {
	a := NewAggregator(64, 2*time.Minute, time.Minute)
	a.Update("SOLUSDT", 10, t0)
	a.Update("SOLUSDT", 11, t0.Add(3*time.Minute))
	a.Update("SOLUSDT", 12, t0.Add(4*time.Minute))

	chg, ok := a.PercentChange("SOLUSDT", time.Minute)
	require.True(t, ok)
	assert.InDelta(t, 12.0/11.0-1, chg, 1e-12)

	a.mu.Lock()
	count := a.rings["SOLUSDT"].count
	a.mu.Unlock()
	assert.Equal(t, 2, count)
}

func TestRingOverwritesOldest(t *testing.T) {
	a := NewAggregator(3, time.Hour, time.Second)
	for i := 0; i < 5; i++ {
		a.Update("X", float64(i+1), t0.Add(time.Duration(i)*time.Second))
	}
	a.mu.Lock()
	r := a.rings["X"]
	assert.Equal(t, 3, r.count)
	assert.Equal(t, 3.0, r.at(0).price)
	a.mu.Unlock()

	chg, ok := a.PercentChange("X", time.Second)
	require.True(t, ok)
	assert.InDelta(t, 5.0/4.0-1, chg, 1e-12)
}

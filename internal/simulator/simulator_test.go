package simulator

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

func newSim(prob float64) *Simulator {
	return New(Config{FillProbability: prob, Slippage: 0.005, Seed: 7, Balance: 1000}, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFillsAtReferenceWithinLimit(t *testing.T) {
	s := newSim(1)
	res, err := s.PlaceOrder(context.Background(), domain.OrderRequest{
		PositionID: "p1", Side: domain.OrderSideBuy, Size: 100, LimitPrice: 0.5025, ReferencePrice: 0.5,
	})
	require.NoError(t, err)
	assert.True(t, res.Confirmed)
	assert.InDelta(t, 0.5025, res.FillPrice, 1e-12)
	assert.Equal(t, 100.0, res.FillSize)
	assert.Len(t, s.Fills(), 1)

	// A tighter limit wins over the slipped reference.
	res, err = s.PlaceOrder(context.Background(), domain.OrderRequest{Side: domain.OrderSideBuy, Size: 1, LimitPrice: 0.501, ReferencePrice: 0.5})
	require.NoError(t, err)
	assert.Equal(t, 0.501, res.FillPrice)
}

func TestRejectsInvalidOrders(t *testing.T) {
	s := newSim(1)
	_, err := s.PlaceOrder(context.Background(), domain.OrderRequest{Size: 0, LimitPrice: 0.5})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
	_, err = s.PlaceOrder(context.Background(), domain.OrderRequest{Size: 1, LimitPrice: 1})
	assert.ErrorIs(t, err, domain.ErrInvalidOrder)
}

func TestFillProbabilityIsSeeded(t *testing.T) {
	run := func() []bool {
		s := newSim(0.5)
		var out []bool
		for i := 0; i < 50; i++ {
			res, err := s.PlaceOrder(context.Background(), domain.OrderRequest{Size: 1, LimitPrice: 0.5})
			require.NoError(t, err)
			out = append(out, res.Confirmed)
		}
		return out
	}
	a, b := run(), run()
	assert.Equal(t, a, b)
	assert.Contains(t, a, true)
	assert.Contains(t, a, false)
}

func TestZeroProbabilityNeverFills(t *testing.T) {
	s := newSim(0)
	res, err := s.PlaceOrder(context.Background(), domain.OrderRequest{Size: 1, LimitPrice: 0.5})
	require.NoError(t, err)
	assert.False(t, res.Confirmed)
	assert.Empty(t, s.Fills())

	bal, err := s.GetBalance(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1000.0, bal)
}

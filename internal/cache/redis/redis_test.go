package redis

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// testClient connects to STRATBOT_TEST_REDIS_ADDR or skips.
func testClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("STRATBOT_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("STRATBOT_TEST_REDIS_ADDR not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := New(ctx, ClientConfig{Addr: addr, KeyPrefix: "stratbot-test:" + uuid.NewString() + ":"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestParsePrice(t *testing.T) {
	price, ts, ok, err := parsePrice(map[string]string{"price": "97123.5", "ts": "1772452800000000000"})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 97123.5, price)
	assert.Equal(t, int64(1772452800), ts.Unix())

	_, _, ok, err = parsePrice(map[string]string{"price": "1"})
	assert.NoError(t, err)
	assert.False(t, ok)

	_, _, _, err = parsePrice(map[string]string{"price": "x", "ts": "1"})
	assert.Error(t, err)
}

func TestPriceCacheRoundTrip(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	pc := NewPriceCache(c)

	at := time.Unix(1772452800, 0)
	require.NoError(t, pc.SetPrice(ctx, "BTCUSDT", 97000, at))

	price, ts, err := pc.GetPrice(ctx, "BTCUSDT")
	require.NoError(t, err)
	assert.Equal(t, 97000.0, price)
	assert.True(t, ts.Equal(at))

	_, _, err = pc.GetPrice(ctx, "ETHUSDT")
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	got, err := pc.GetPrices(ctx, []string{"BTCUSDT", "ETHUSDT"})
	require.NoError(t, err)
	assert.Equal(t, map[string]float64{"BTCUSDT": 97000}, got)
}

func TestLockIsExclusive(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	lm := NewLockManager(c, slog.New(slog.NewTextHandler(io.Discard, nil)))

	unlock, err := lm.Acquire(ctx, "trader", time.Minute)
	require.NoError(t, err)

	_, err = lm.Acquire(ctx, "trader", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	unlock()
	unlock()
	unlock2, err := lm.Acquire(ctx, "trader", time.Minute)
	require.NoError(t, err)
	unlock2()
}

func TestStreamAppendAndRead(t *testing.T) {
	c := testClient(t)
	ctx := context.Background()
	bus := NewSignalBus(c, 100)

	msgs, err := bus.StreamRead(ctx, "trade_events", "0", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)

	require.NoError(t, bus.StreamAppend(ctx, "trade_events", []byte(`{"position_id":"a"}`)))
	require.NoError(t, bus.StreamAppend(ctx, "trade_events", []byte(`{"position_id":"b"}`)))

	msgs, err = bus.StreamRead(ctx, "trade_events", "0", 10)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, `{"position_id":"b"}`, string(msgs[1].Payload))
}

func TestLeaseKeepReleasesOnCancel(t *testing.T) {
	c := testClient(t)
	lm := NewLockManager(c, slog.New(slog.NewTextHandler(io.Discard, nil)))

	lease, err := lm.Lease(context.Background(), "live_trader", 300*time.Millisecond)
	require.NoError(t, err)

	_, err = lm.Lease(context.Background(), "live_trader", time.Minute)
	assert.True(t, errors.Is(err, domain.ErrLockHeld))

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()
	// Outlives the ttl only because Keep extends it.
	assert.ErrorIs(t, lease.Keep(ctx), context.DeadlineExceeded)

	unlock, err := lm.Acquire(context.Background(), "live_trader", time.Minute)
	require.NoError(t, err)
	unlock()
}

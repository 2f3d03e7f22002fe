package binance

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTickerCombinedFrame(t *testing.T) {
	raw := `{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000123,"s":"BTCUSDT","c":"50123.45","o":"49000.00"}}`
	tk, err := ParseTicker([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "BTCUSDT", tk.Symbol)
	assert.Equal(t, 50123.45, tk.Price)
	assert.Equal(t, time.UnixMilli(1700000000123).UTC(), tk.EventTime)
}

func TestParseTickerRejectsOtherEvents(t *testing.T) {
	_, err := ParseTicker([]byte(`{"result":null,"id":1}`))
	assert.Error(t, err)
	_, err = ParseTicker([]byte(`{"e":"24hrTicker","s":"BTCUSDT","c":"abc"}`))
	assert.Error(t, err)
}

func TestStreamURL(t *testing.T) {
	assert.Equal(t,
		"wss://stream.binance.com:9443/stream?streams=btcusdt@ticker/ethusdt@ticker",
		StreamURL("wss://stream.binance.com:9443/", []string{"BTCUSDT", "ETHUSDT"}))
}

func TestClientDispatchesTickers(t *testing.T) {
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "btcusdt@ticker", r.URL.Query().Get("streams"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"stream":"btcusdt@ticker","data":{"e":"24hrTicker","E":1700000000000,"s":"BTCUSDT","c":"50000"}}`))
		time.Sleep(50 * time.Millisecond)
	}))
	defer srv.Close()

	host := "ws" + strings.TrimPrefix(srv.URL, "http")
	c := NewWSClient(host, []string{"BTCUSDT"})
	got := make(chan Ticker, 1)
	c.OnTicker(func(tk Ticker) { got <- tk })

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, c.Connect(ctx))
	go func() { _ = c.Listen(ctx) }()

	select {
	case tk := <-got:
		assert.Equal(t, 50000.0, tk.Price)
	case <-ctx.Done():
		t.Fatal("no ticker received")
	}
	_ = c.Close()
}

package notify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

type captureSender struct {
	name string
	err  error
	got  []Alert
}

func (c *captureSender) Send(_ context.Context, a Alert) error {
	c.got = append(c.got, a)
	return c.err
}

func (c *captureSender) Name() string { return c.name }

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestNotifierFiltersEvents(t *testing.T) {
	s := &captureSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{EventDrawdownTripped, " "}, quiet())

	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventPositionResolved}))
	require.NoError(t, n.Notify(context.Background(), Alert{Event: EventDrawdownTripped}))
	require.Len(t, s.got, 1)
	assert.Equal(t, EventDrawdownTripped, s.got[0].Event)
}

func TestNotifierContinuesPastFailures(t *testing.T) {
	bad := &captureSender{name: "bad", err: errors.New("boom")}
	good := &captureSender{name: "good"}
	n := NewNotifier([]Sender{bad, good}, nil, quiet())

	err := n.Notify(context.Background(), Alert{Event: "anything"})
	require.Error(t, err)
	assert.ErrorContains(t, err, "bad: boom")
	assert.Len(t, good.got, 1)
}

func TestNilNotifierIsDisabled(t *testing.T) {
	var n *Notifier
	assert.False(t, n.Enabled())
	assert.NoError(t, n.Notify(context.Background(), Alert{}))
}

func TestPositionAlert(t *testing.T) {
	pnl, exit := 88.4626, 1.0
	a := PositionAlert(domain.TradeEvent{
		Strategy: "latency_arbitrage", State: domain.PositionResolved, Side: domain.OrderSideBuy,
		Outcome: "YES", Question: "BTC up?", EntryPrice: 0.52, ExitPrice: &exit, RealizedPnL: &pnl, Size: 192.31,
	})
	assert.Equal(t, EventPositionResolved, a.Event)
	assert.Equal(t, "latency_arbitrage resolved +88.46 USD", a.Title)
	assert.Contains(t, a.Message, "BUY YES on BTC up?")
}

func TestTelegramSender(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	s := NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL)
	require.NoError(t, s.Send(context.Background(), Alert{Title: "T", Message: "M"}))
	assert.Equal(t, "42", body["chat_id"])
	assert.Equal(t, "*T*\nM", body["text"])
}

func TestDiscordSenderReportsStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("bad embed"))
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), Alert{Event: EventDrawdownTripped, Title: "x"})
	assert.ErrorContains(t, err, "discord: unexpected status 400: bad embed")
}

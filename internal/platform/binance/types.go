// Package binance is a minimal client for the Binance combined ticker stream,
// used as the reference price feed for latency arbitrage.
package binance

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Ticker is one 24hr ticker update reduced to what the aggregator needs.
type Ticker struct {
	Symbol    string
	Price     float64
	EventTime time.Time
}

// combinedMessage is the envelope of a /stream?streams=... frame.
type combinedMessage struct {
	Stream string          `json:"stream"`
	Data   json.RawMessage `json:"data"`
}

// tickerPayload carries the fields of a <symbol>@ticker event we use.
type tickerPayload struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"` // milliseconds
	Symbol    string `json:"s"`
	LastPrice string `json:"c"`
}

// ParseTicker decodes either a combined-stream frame or a raw ticker payload.
func ParseTicker(raw []byte) (Ticker, error) {
	var env combinedMessage
	if err := json.Unmarshal(raw, &env); err == nil && len(env.Data) > 0 {
		raw = env.Data
	}

	var p tickerPayload
	if err := json.Unmarshal(raw, &p); err != nil {
		return Ticker{}, fmt.Errorf("binance: decode ticker: %w", err)
	}
	if p.Symbol == "" || p.LastPrice == "" {
		return Ticker{}, fmt.Errorf("binance: not a ticker event (%q)", p.EventType)
	}
	price, err := strconv.ParseFloat(p.LastPrice, 64)
	if err != nil {
		return Ticker{}, fmt.Errorf("binance: parse price %q: %w", p.LastPrice, err)
	}
	return Ticker{
		Symbol:    strings.ToUpper(p.Symbol),
		Price:     price,
		EventTime: time.UnixMilli(p.EventTime).UTC(),
	}, nil
}

// StreamURL builds the combined ticker stream URL for symbols.
func StreamURL(host string, symbols []string) string {
	streams := make([]string, 0, len(symbols))
	for _, s := range symbols {
		streams = append(streams, strings.ToLower(s)+"@ticker")
	}
	return strings.TrimRight(host, "/") + "/stream?streams=" + strings.Join(streams, "/")
}

package binance

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

const (
	// writeWait is the time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// pongWait is the time allowed to read the next message from the peer.
	pongWait = 60 * time.Second

	// pingPeriod sends pings to the peer at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

// TickerHandler is called for every decoded ticker update.
type TickerHandler func(Ticker)

// WSClient reads the Binance combined ticker stream. It does not reconnect on
// its own; Listen returns when the connection drops and the caller decides
// whether to dial again.
type WSClient struct {
	url  string
	conn *websocket.Conn

	mu     sync.Mutex
	closed bool

	handlers  []TickerHandler
	handlerMu sync.RWMutex

	done chan struct{}
}

// NewWSClient creates a client for the given host and symbols, e.g.
// "wss://stream.binance.com:9443" and ["BTCUSDT"].
func NewWSClient(host string, symbols []string) *WSClient {
	return &WSClient{
		url:  StreamURL(host, symbols),
		done: make(chan struct{}),
	}
}

// URL returns the stream URL the client dials.
func (w *WSClient) URL() string { return w.url }

// OnTicker registers a handler for ticker updates.
func (w *WSClient) OnTicker(h TickerHandler) {
	w.handlerMu.Lock()
	defer w.handlerMu.Unlock()
	w.handlers = append(w.handlers, h)
}

// Connect dials the stream.
func (w *WSClient) Connect(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("binance/ws: %w", domain.ErrWSDisconnect)
	}

	dialer := websocket.Dialer{HandshakeTimeout: 15 * time.Second}
	conn, _, err := dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("binance/ws: connect: %w", err)
	}
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	// Binance pings every few minutes and expects a pong carrying the payload.
	conn.SetPingHandler(func(data string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
	})
	w.conn = conn
	return nil
}

// Listen reads frames until the connection fails, ctx is cancelled or the
// client is closed. It always returns a non-nil error except after Close.
func (w *WSClient) Listen(ctx context.Context) error {
	w.mu.Lock()
	conn := w.conn
	w.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("binance/ws: not connected")
	}

	stop := make(chan struct{})
	defer close(stop)
	go w.pingLoop(conn, stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-w.done:
				return nil
			default:
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("binance/ws: read: %w", err)
		}
		conn.SetReadDeadline(time.Now().Add(pongWait))
		w.handleMessage(message)
	}
}

// Close shuts down the connection.
func (w *WSClient) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	w.closed = true
	close(w.done)

	if w.conn != nil {
		_ = w.conn.WriteMessage(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		)
		return w.conn.Close()
	}
	return nil
}

func (w *WSClient) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-w.done:
			return
		case <-ticker.C:
			w.mu.Lock()
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			err := conn.WriteMessage(websocket.PingMessage, nil)
			w.mu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

// handleMessage decodes a frame and fans it out. Frames that are not ticker
// events are dropped.
func (w *WSClient) handleMessage(raw []byte) {
	t, err := ParseTicker(raw)
	if err != nil {
		return
	}

	w.handlerMu.RLock()
	handlers := w.handlers
	w.handlerMu.RUnlock()

	for _, h := range handlers {
		h(t)
	}
}

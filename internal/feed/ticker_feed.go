package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/stratbot/internal/platform/binance"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TickHandler receives every reference price update.
type TickHandler func(ctx context.Context, symbol string, price float64, ts time.Time)

// TickerFeed keeps a Binance ticker stream connected and forwards each tick to
// a handler. It reconnects with exponential backoff on disconnect.
type TickerFeed struct {
	host      string
	symbols   []string
	onTick    TickHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewTickerFeed creates a feed for the given symbols.
func NewTickerFeed(host string, symbols []string, onTick TickHandler, logger *slog.Logger) *TickerFeed {
	return &TickerFeed{
		host:    host,
		symbols: symbols,
		onTick:  onTick,
		logger:  logger.With(slog.String("component", "ticker_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called.
func (f *TickerFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}
	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		connected, err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if connected {
			delay = reconnectDelay
		}
		f.logger.Warn("ticker feed disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("backoff", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *TickerFeed) runConnection(ctx context.Context) (bool, error) {
	client := binance.NewWSClient(f.host, f.symbols)
	defer client.Close()

	client.OnTicker(func(t binance.Ticker) {
		f.onTick(ctx, t.Symbol, t.Price, t.EventTime)
	})

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(dialCtx)
	cancel()
	if err != nil {
		return false, err
	}
	f.logger.Info("ticker feed subscribed", slog.Int("symbols", len(f.symbols)))

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-f.done:
			client.Close()
		case <-ctx.Done():
		case <-stop:
		}
	}()
	return true, client.Listen(ctx)
}

// Close stops the feed.
func (f *TickerFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}

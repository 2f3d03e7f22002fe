package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/notify"
)

// Bus channel and stream names for trade events.
const (
	PositionsChannel  = "positions"
	TradeEventsStream = "trade_events"
)

// EventSink consumes trade events off the ledger's critical path.
type EventSink interface {
	Name() string
	Handle(ctx context.Context, ev domain.TradeEvent) error
}

// EventRelay is a ledger observer that hands events to slow sinks (database,
// bus, chat) through a buffered channel. A best-effort relay never blocks
// Observe; when the buffer is full the event is dropped and counted. A
// durable relay blocks Observe instead and retries failed sinks, so every
// transition reaches them in order.
type EventRelay struct {
	ch       chan domain.TradeEvent
	sinks    []EventSink
	durable  bool
	attempts int
	backoff  time.Duration
	stopped  chan struct{}
	stopOnce sync.Once
	dropped  atomic.Int64
	logger   *slog.Logger
}

// NewEventRelay creates a best-effort relay with the given buffer size.
func NewEventRelay(buffer int, logger *slog.Logger, sinks ...EventSink) *EventRelay {
	if buffer <= 0 {
		buffer = 1024
	}
	return &EventRelay{
		ch:       make(chan domain.TradeEvent, buffer),
		sinks:    sinks,
		attempts: 1,
		stopped:  make(chan struct{}),
		logger:   logger.With(slog.String("component", "event_relay")),
	}
}

// NewDurableRelay creates a relay that applies backpressure to the ledger
// when its buffer is full and retries each sink up to attempts times with a
// doubling delay. Use it for sinks that restore depends on.
func NewDurableRelay(buffer, attempts int, backoff time.Duration, logger *slog.Logger, sinks ...EventSink) *EventRelay {
	r := NewEventRelay(buffer, logger, sinks...)
	r.durable = true
	r.attempts = max(attempts, 1)
	r.backoff = backoff
	r.logger = logger.With(slog.String("component", "durable_relay"))
	return r
}

// Observe implements ledger.Observer. Once Run has returned a durable relay
// stops blocking and counts the event as dropped.
func (r *EventRelay) Observe(ev domain.TradeEvent) {
	if r.durable {
		select {
		case r.ch <- ev:
		case <-r.stopped:
			r.dropped.Add(1)
		}
		return
	}
	select {
	case r.ch <- ev:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many events were dropped on a full buffer.
func (r *EventRelay) Dropped() int64 { return r.dropped.Load() }

// Run delivers events until ctx is cancelled, then drains what is buffered
// with a short grace period.
func (r *EventRelay) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			r.drain()
			r.stopOnce.Do(func() { close(r.stopped) })
			return ctx.Err()
		case ev := <-r.ch:
			r.deliver(ctx, ev)
		}
	}
}

func (r *EventRelay) drain() {
	grace := 5 * time.Second
	if r.durable {
		grace = 30 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), grace)
	defer cancel()
	for {
		select {
		case ev := <-r.ch:
			r.deliver(ctx, ev)
		default:
			if n := r.dropped.Load(); n > 0 {
				r.logger.Warn("events dropped on full buffer", slog.Int64("dropped", n))
			}
			return
		}
	}
}

func (r *EventRelay) deliver(ctx context.Context, ev domain.TradeEvent) {
	for _, s := range r.sinks {
		err := r.handle(ctx, s, ev)
		if err == nil {
			continue
		}
		r.logger.WarnContext(ctx, "event sink failed",
			slog.String("sink", s.Name()),
			slog.String("position_id", ev.PositionID),
			slog.String("state", string(ev.State)),
			slog.Int("attempts", r.attempts),
			slog.String("error", err.Error()),
		)
	}
}

func (r *EventRelay) handle(ctx context.Context, s EventSink, ev domain.TradeEvent) error {
	delay := r.backoff
	var err error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		if err = s.Handle(ctx, ev); err == nil {
			return nil
		}
		if attempt == r.attempts {
			break
		}
		// The sink is still owed this event after shutdown starts.
		if ctx.Err() != nil {
			ctx = context.WithoutCancel(ctx)
		}
		time.Sleep(delay)
		delay *= 2
	}
	return err
}

// StoreSink mirrors the latest position state into a PositionStore.
type StoreSink struct{ Positions domain.PositionStore }

func (StoreSink) Name() string { return "position_store" }

func (s StoreSink) Handle(ctx context.Context, ev domain.TradeEvent) error {
	if ev.State == domain.Discarded {
		return s.Positions.Delete(ctx, ev.PositionID)
	}
	return s.Positions.Upsert(ctx, ev.Position())
}

// BusSink publishes events on the signal bus and appends them to the durable
// trade event stream.
type BusSink struct{ Bus domain.SignalBus }

func (BusSink) Name() string { return "signal_bus" }

func (s BusSink) Handle(ctx context.Context, ev domain.TradeEvent) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("bus sink: marshal: %w", err)
	}
	if err := s.Bus.Publish(ctx, PositionsChannel, payload); err != nil {
		return err
	}
	return s.Bus.StreamAppend(ctx, TradeEventsStream, payload)
}

// AuditSink writes every transition to the audit trail.
type AuditSink struct{ Audit domain.AuditStore }

func (AuditSink) Name() string { return "audit" }

func (s AuditSink) Handle(ctx context.Context, ev domain.TradeEvent) error {
	detail := map[string]any{
		"position_id":  ev.PositionID,
		"strategy":     ev.Strategy,
		"market_id":    ev.MarketID,
		"outcome":      ev.Outcome,
		"notional_usd": ev.NotionalUSD,
		"entry_price":  ev.EntryPrice,
	}
	if ev.RealizedPnL != nil {
		detail["realized_pnl"] = *ev.RealizedPnL
	}
	if ev.Reason != "" {
		detail["reason"] = ev.Reason
	}
	return s.Audit.Log(ctx, "position_"+strings.ToLower(string(ev.State)), detail)
}

// NotifySink alerts on settlements and execution failures.
type NotifySink struct{ Notifier *notify.Notifier }

func (NotifySink) Name() string { return "notifier" }

func (s NotifySink) Handle(ctx context.Context, ev domain.TradeEvent) error {
	switch {
	case ev.State == domain.Discarded:
		return s.Notifier.Notify(ctx, notify.ExecutionAlert(ev))
	case ev.State.Terminal():
		return s.Notifier.Notify(ctx, notify.PositionAlert(ev))
	}
	return nil
}

// FuncSink adapts a function to EventSink.
type FuncSink struct {
	Label string
	Fn    func(ctx context.Context, ev domain.TradeEvent) error
}

func (f FuncSink) Name() string { return f.Label }

func (f FuncSink) Handle(ctx context.Context, ev domain.TradeEvent) error { return f.Fn(ctx, ev) }

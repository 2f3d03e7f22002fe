// Package notify delivers operator alerts to chat channels. Alerts are
// filtered by event type so operators only hear about what they opted into.
package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Event types.
const (
	EventDrawdownTripped    = "drawdown_tripped"
	EventPositionResolved   = "position_resolved"
	EventExecutionFailed    = "execution_failed"
	EventInvariantViolation = "invariant_violation"
	EventSessionSummary     = "session_summary"
)

// Alert is one notification.
type Alert struct {
	Event   string
	Title   string
	Message string
}

// Sender is one delivery channel.
type Sender interface {
	Send(ctx context.Context, a Alert) error
	Name() string
}

// Notifier fans an alert out to every sender.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier. An empty events list allows every event.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		if e = strings.TrimSpace(e); e != "" {
			allowed[e] = true
		}
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Enabled reports whether any sender is configured.
func (n *Notifier) Enabled() bool { return n != nil && len(n.senders) > 0 }

// Allows reports whether event passes the filter.
func (n *Notifier) Allows(event string) bool {
	return len(n.events) == 0 || n.events[event]
}

// Notify sends a to every sender if its event passes the filter. One failing
// sender does not stop delivery to the rest.
func (n *Notifier) Notify(ctx context.Context, a Alert) error {
	if !n.Enabled() {
		return nil
	}
	if !n.Allows(a.Event) {
		n.logger.DebugContext(ctx, "alert filtered out", slog.String("event", a.Event))
		return nil
	}

	var errs []error
	for _, s := range n.senders {
		if err := s.Send(ctx, a); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("event", a.Event),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %w", len(errs), errors.Join(errs...))
	}
	return nil
}

// PositionAlert formats a settled position.
func PositionAlert(ev domain.TradeEvent) Alert {
	pnl := 0.0
	if ev.RealizedPnL != nil {
		pnl = *ev.RealizedPnL
	}
	exit := 0.0
	if ev.ExitPrice != nil {
		exit = *ev.ExitPrice
	}
	title := fmt.Sprintf("%s %s %+.2f USD", ev.Strategy, strings.ToLower(string(ev.State)), pnl)
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s on %s\n", ev.Side, ev.Outcome, marketLabel(ev))
	fmt.Fprintf(&b, "entry %.4f exit %.4f size %.2f fees %.4f", ev.EntryPrice, exit, ev.Size, ev.Fees)
	if ev.Reason != "" {
		fmt.Fprintf(&b, "\nreason: %s", ev.Reason)
	}
	if ev.Uncertain {
		b.WriteString("\nsettled from last mark (uncertain)")
	}
	return Alert{Event: EventPositionResolved, Title: title, Message: b.String()}
}

// ExecutionAlert formats a rolled-back order.
func ExecutionAlert(ev domain.TradeEvent) Alert {
	return Alert{
		Event:   EventExecutionFailed,
		Title:   fmt.Sprintf("%s order failed", ev.Strategy),
		Message: fmt.Sprintf("%s %s on %s: %s", ev.Side, ev.Outcome, marketLabel(ev), ev.Reason),
	}
}

// DrawdownAlert formats the kill-switch trip.
func DrawdownAlert(account domain.AccountState) Alert {
	return Alert{
		Event: EventDrawdownTripped,
		Title: "Drawdown kill-switch tripped",
		Message: fmt.Sprintf("balance %.2f of %.2f (drawdown %.2f%%); new trading halted, open positions still monitored",
			account.CurrentBalance, account.StartingBalance, account.Drawdown()*100),
	}
}

// InvariantAlert formats a fatal ledger error.
func InvariantAlert(err error) Alert {
	return Alert{Event: EventInvariantViolation, Title: "Ledger invariant violated, bot stopping", Message: err.Error()}
}

func marketLabel(ev domain.TradeEvent) string {
	if ev.Question != "" {
		return ev.Question
	}
	return ev.MarketID
}

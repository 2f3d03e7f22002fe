// Package ledger owns every position and the account accounting derived from
// them. All mutations run inside one critical section so that the risk check
// and the reservation it approves are atomic.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/pnl"
	"github.com/alanyoungcy/stratbot/internal/risk"
)

const dailyRetention = 7

// Observer receives every transition while the ledger lock is held. It must
// not block or call back into the ledger.
type Observer interface {
	Observe(ev domain.TradeEvent)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev domain.TradeEvent)

func (f ObserverFunc) Observe(ev domain.TradeEvent) { f(ev) }

// Options configures a Ledger.
type Options struct {
	// Mode is stamped on every TradeEvent.
	Mode string
	Fees pnl.Fees
	// Now defaults to time.Now.
	Now func() time.Time
}

// Ledger is the single writer of positions and account state.
type Ledger struct {
	mu sync.Mutex

	risk *risk.Manager
	opts Options

	starting decimal.Decimal
	realized decimal.Decimal
	exposure decimal.Decimal
	daily    map[string]decimal.Decimal

	positions map[string]*domain.Position
	order     []string
	live      map[domain.PositionKey]string

	halted    error
	observers []Observer
	logger    *slog.Logger
}

// New creates an empty Ledger.
func New(startingBalance float64, rm *risk.Manager, opts Options, logger *slog.Logger) *Ledger {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Ledger{
		risk:      rm,
		opts:      opts,
		starting:  decimal.NewFromFloat(startingBalance),
		daily:     make(map[string]decimal.Decimal),
		positions: make(map[string]*domain.Position),
		live:      make(map[domain.PositionKey]string),
		logger:    logger.With(slog.String("component", "ledger")),
	}
}

// AddObserver registers o for every subsequent transition.
func (l *Ledger) AddObserver(o Observer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.observers = append(l.observers, o)
}

// Reserve is the only way capital gets committed. The halt check, duplicate
// check, risk validation and PENDING insert happen under one lock.
func (l *Ledger) Reserve(ctx context.Context, opp domain.Opportunity) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.halted != nil {
		return domain.Position{}, fmt.Errorf("ledger: reserve: halted: %w", l.halted)
	}

	key := opp.PositionKey()
	if id, ok := l.live[key]; ok {
		err := &DuplicateBetError{Key: key, ExistingID: id}
		l.logger.InfoContext(ctx, "reservation rejected",
			slog.String("reason", "duplicate bet"),
			slog.String("strategy", opp.Strategy),
			slog.String("market_id", opp.MarketID),
			slog.String("outcome", opp.Outcome),
			slog.String("existing_id", id),
		)
		return domain.Position{}, err
	}

	approval, err := l.risk.ValidateAndSize(opp, l.accountLocked())
	if err != nil {
		return domain.Position{}, err
	}

	now := l.opts.Now().UTC()
	pos := &domain.Position{
		ID:          uuid.New().String(),
		Strategy:    opp.Strategy,
		MarketID:    opp.MarketID,
		Question:    opp.Question,
		Outcome:     opp.Outcome,
		TokenID:     opp.TokenID,
		Side:        opp.Side,
		EntryPrice:  opp.ReferencePrice,
		Size:        approval.Size,
		NotionalUSD: approval.NotionalUSD,
		Edge:        opp.Edge,
		Confidence:  opp.Confidence,
		State:       domain.PositionPending,
		OpenedAt:    now,
		LastMark:    opp.ReferencePrice,
		LegGroupID:  opp.LegGroupID,
		Reason:      opp.Reason,
	}
	l.positions[pos.ID] = pos
	l.order = append(l.order, pos.ID)
	l.live[key] = pos.ID
	l.exposure = l.exposure.Add(decimal.NewFromFloat(pos.NotionalUSD))

	l.logger.InfoContext(ctx, "position reserved",
		slog.String("position_id", pos.ID),
		slog.String("strategy", pos.Strategy),
		slog.String("market_id", pos.MarketID),
		slog.String("outcome", pos.Outcome),
		slog.Float64("notional_usd", pos.NotionalUSD),
		slog.Float64("edge", pos.Edge),
	)
	l.emitLocked(*pos, now)
	return *pos, l.verifyLocked()
}

// Confirm moves a PENDING position to OPEN. When the gateway reports a fill
// size the position records exactly that many shares at the fill price;
// otherwise the reserved notional is taken as filled at the fill price.
func (l *Ledger) Confirm(ctx context.Context, id string, fill domain.OrderResult) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.transitionLocked(id, domain.PositionOpen)
	if err != nil {
		return domain.Position{}, err
	}

	price := pos.EntryPrice
	if fill.FillPrice > 0 {
		price = fill.FillPrice
	}
	notional := pos.NotionalUSD
	size := notional / price
	if fill.FillSize > 0 {
		size = fill.FillSize
		notional = fill.FillSize * price
		if notional > pos.NotionalUSD {
			l.logger.WarnContext(ctx, "fill exceeds reservation",
				slog.String("position_id", pos.ID),
				slog.Float64("reserved_usd", pos.NotionalUSD),
				slog.Float64("filled_usd", notional),
			)
		}
	}

	now := l.opts.Now().UTC()
	l.exposure = l.exposure.Sub(decimal.NewFromFloat(pos.NotionalUSD)).Add(decimal.NewFromFloat(notional))
	pos.EntryPrice = price
	pos.NotionalUSD = notional
	pos.Size = size
	pos.LastMark = price
	pos.OrderID = fill.OrderID
	pos.State = domain.PositionOpen
	pos.ConfirmedAt = &now

	l.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("order_id", pos.OrderID),
		slog.Float64("entry_price", pos.EntryPrice),
		slog.Float64("size", pos.Size),
		slog.Float64("notional_usd", pos.NotionalUSD),
	)
	l.emitLocked(*pos, now)
	return *pos, l.verifyLocked()
}

// Discard rolls back a PENDING reservation. On success the returned error is
// always an *ExecutionError carrying reason and cause.
func (l *Ledger) Discard(ctx context.Context, id, reason string, cause error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[id]
	if !ok {
		return fmt.Errorf("ledger: discard %s: %w", id, domain.ErrNotFound)
	}
	if pos.State != domain.PositionPending {
		return fmt.Errorf("ledger: discard %s from %s: %w", id, pos.State, domain.ErrInvalidTransition)
	}

	l.exposure = l.exposure.Sub(decimal.NewFromFloat(pos.NotionalUSD))
	delete(l.live, pos.Key())
	delete(l.positions, id)
	l.order = removeID(l.order, id)

	l.logger.WarnContext(ctx, "position discarded",
		slog.String("position_id", id),
		slog.String("strategy", pos.Strategy),
		slog.String("market_id", pos.MarketID),
		slog.String("reason", reason),
	)
	gone := *pos
	gone.State = domain.Discarded
	gone.Reason = reason
	l.emitLocked(gone, l.opts.Now().UTC())

	if err := l.verifyLocked(); err != nil {
		return err
	}
	return &ExecutionError{PositionID: id, Key: pos.Key(), Reason: reason, Err: cause}
}

// Resolve settles an OPEN position at the venue settlement price (1 or 0).
func (l *Ledger) Resolve(ctx context.Context, id string, settlement float64) (domain.Position, error) {
	return l.settle(ctx, id, domain.PositionResolved, settlement, "resolved", false)
}

// Close exits an OPEN position early at exit.
func (l *Ledger) Close(ctx context.Context, id string, exit float64, reason string) (domain.Position, error) {
	return l.settle(ctx, id, domain.PositionClosed, exit, reason, false)
}

// Expire settles an OPEN position at mark after the resolve timeout. A
// non-positive mark falls back to the last recorded mark. The result is
// flagged uncertain.
func (l *Ledger) Expire(ctx context.Context, id string, mark float64) (domain.Position, error) {
	return l.settle(ctx, id, domain.PositionExpired, mark, "auto-resolve timeout", true)
}

func (l *Ledger) settle(ctx context.Context, id string, to domain.PositionState, exit float64, reason string, uncertain bool) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, err := l.transitionLocked(id, to)
	if err != nil {
		return domain.Position{}, err
	}
	if uncertain && exit <= 0 {
		exit = pos.LastMark
	}

	res := pnl.Compute(pos.Side, pos.EntryPrice, exit, pos.Size, l.opts.Fees)
	now := l.opts.Now().UTC()
	net := res.NetFloat()

	l.exposure = l.exposure.Sub(decimal.NewFromFloat(pos.NotionalUSD))
	l.realized = l.realized.Add(res.Net)
	l.addDailyLocked(now, res.Net)
	delete(l.live, pos.Key())

	pos.State = to
	pos.ClosedAt = &now
	pos.ExitPrice = &exit
	pos.RealizedPnL = &net
	pos.Fees = res.FeesFloat()
	pos.LastMark = exit
	pos.Uncertain = uncertain
	pos.Reason = reason

	l.logger.InfoContext(ctx, "position settled",
		slog.String("position_id", pos.ID),
		slog.String("strategy", pos.Strategy),
		slog.String("state", string(to)),
		slog.String("reason", reason),
		slog.Float64("exit_price", exit),
		slog.Float64("realized_pnl", net),
		slog.Float64("fees", pos.Fees),
	)
	l.emitLocked(*pos, now)
	if err := l.verifyLocked(); err != nil {
		return *pos, err
	}
	l.risk.CheckDrawdown(l.accountLocked())
	return *pos, nil
}

// Mark records the latest market price of an OPEN position.
func (l *Ledger) Mark(id string, price float64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	pos, ok := l.positions[id]
	if !ok {
		return fmt.Errorf("ledger: mark %s: %w", id, domain.ErrNotFound)
	}
	if pos.State != domain.PositionOpen {
		return fmt.Errorf("ledger: mark %s in %s: %w", id, pos.State, domain.ErrInvalidTransition)
	}
	pos.LastMark = price
	return nil
}

func (l *Ledger) transitionLocked(id string, to domain.PositionState) (*domain.Position, error) {
	pos, ok := l.positions[id]
	if !ok {
		return nil, fmt.Errorf("ledger: %s %s: %w", to, id, domain.ErrNotFound)
	}
	if !domain.CanTransition(pos.State, to) {
		return nil, fmt.Errorf("ledger: %s → %s for %s: %w", pos.State, to, id, domain.ErrInvalidTransition)
	}
	return pos, nil
}

// Verify recomputes the exposure sum and the live-key index from the
// positions themselves. A mismatch halts the ledger.
func (l *Ledger) Verify() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.verifyLocked()
}

func (l *Ledger) verifyLocked() error {
	if l.halted != nil {
		return l.halted
	}

	sum := decimal.Zero
	index := make(map[domain.PositionKey]string)
	var problem string
	for _, id := range l.order {
		p := l.positions[id]
		if !p.State.Live() {
			continue
		}
		sum = sum.Add(decimal.NewFromFloat(p.NotionalUSD))
		if other, dup := index[p.Key()]; dup {
			problem = fmt.Sprintf("positions %s and %s share live key %s/%s/%s", other, id, p.Strategy, p.MarketID, p.Outcome)
			break
		}
		index[p.Key()] = id
	}

	switch {
	case problem != "":
	case !sum.Equal(l.exposure):
		problem = fmt.Sprintf("exposure %s does not match live notional %s", l.exposure, sum)
	case len(index) != len(l.live):
		problem = fmt.Sprintf("live index has %d keys, positions have %d", len(l.live), len(index))
	default:
		for k, id := range index {
			if l.live[k] != id {
				problem = fmt.Sprintf("live index maps %s/%s/%s to %q, want %q", k.Strategy, k.MarketID, k.Outcome, l.live[k], id)
				break
			}
		}
	}
	if problem == "" {
		return nil
	}

	l.halted = fmt.Errorf("ledger: %s: %w", problem, domain.ErrInvariantViolation)
	l.logger.Error("ledger invariant violated, halting",
		slog.String("error", l.halted.Error()),
	)
	return l.halted
}

// Halted returns the invariant error that halted the ledger, if any.
func (l *Ledger) Halted() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.halted
}

// Account returns a snapshot of the account.
func (l *Ledger) Account() domain.AccountState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.accountLocked()
}

func (l *Ledger) accountLocked() domain.AccountState {
	return domain.AccountState{
		StartingBalance:   l.starting.InexactFloat64(),
		CurrentBalance:    l.starting.Add(l.realized).Round(8).InexactFloat64(),
		TotalExposureUSD:  l.exposure.Round(8).InexactFloat64(),
		TodayRealizedPnL:  l.daily[dayKey(l.opts.Now())].Round(8).InexactFloat64(),
		OpenPositionCount: len(l.live),
		DrawdownTripped:   l.risk.Tripped(),
	}
}

// ExposureDecimal returns the exact exposure accumulator.
func (l *Ledger) ExposureDecimal() decimal.Decimal {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.exposure
}

// Get returns a copy of the position with id.
func (l *Ledger) Get(id string) (domain.Position, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	p, ok := l.positions[id]
	if !ok {
		return domain.Position{}, fmt.Errorf("ledger: get %s: %w", id, domain.ErrNotFound)
	}
	return *p, nil
}

// Open returns copies of the OPEN positions, oldest first.
func (l *Ledger) Open() []domain.Position {
	return l.Positions(domain.PositionOpen)
}

// Positions returns copies of every position in one of states, oldest
// first. No states means all.
func (l *Ledger) Positions(states ...domain.PositionState) []domain.Position {
	l.mu.Lock()
	defer l.mu.Unlock()

	want := make(map[domain.PositionState]bool, len(states))
	for _, s := range states {
		want[s] = true
	}
	out := make([]domain.Position, 0, len(l.order))
	for _, id := range l.order {
		p := l.positions[id]
		if len(want) == 0 || want[p.State] {
			out = append(out, *p)
		}
	}
	return out
}

// Restore rebuilds the ledger from persisted positions. PENDING rows are
// dropped as failed opens; two live rows on one key is an invariant
// violation. Restore must run before any Reserve.
func (l *Ledger) Restore(ctx context.Context, positions []domain.Position) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.positions) > 0 {
		return errors.New("ledger: restore: ledger is not empty")
	}

	sorted := append([]domain.Position(nil), positions...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].OpenedAt.Before(sorted[j].OpenedAt) })

	var dropped int
	for i := range sorted {
		p := sorted[i]
		switch {
		case p.State == domain.PositionPending || p.State == domain.Discarded:
			dropped++
			continue
		case p.State == domain.PositionOpen:
			if id, dup := l.live[p.Key()]; dup {
				l.halted = fmt.Errorf("ledger: restore: positions %s and %s share live key: %w", id, p.ID, domain.ErrInvariantViolation)
				return l.halted
			}
			l.live[p.Key()] = p.ID
			l.exposure = l.exposure.Add(decimal.NewFromFloat(p.NotionalUSD))
		case p.State.Terminal():
			if p.RealizedPnL != nil {
				net := decimal.NewFromFloat(*p.RealizedPnL)
				l.realized = l.realized.Add(net)
				if p.ClosedAt != nil {
					l.addDailyLocked(*p.ClosedAt, net)
				}
			}
		default:
			return fmt.Errorf("ledger: restore %s: unknown state %q: %w", p.ID, p.State, domain.ErrInvalidTransition)
		}
		if _, seen := l.positions[p.ID]; seen {
			return fmt.Errorf("ledger: restore: position %s appears twice", p.ID)
		}
		l.positions[p.ID] = &p
		l.order = append(l.order, p.ID)
	}

	l.logger.InfoContext(ctx, "ledger restored",
		slog.Int("positions", len(l.positions)),
		slog.Int("open", len(l.live)),
		slog.Int("dropped_pending", dropped),
		slog.String("realized_pnl", l.realized.StringFixed(2)),
	)
	return l.verifyLocked()
}

func (l *Ledger) addDailyLocked(at time.Time, net decimal.Decimal) {
	key := dayKey(at)
	l.daily[key] = l.daily[key].Add(net)

	cutoff := dayKey(l.opts.Now().AddDate(0, 0, -dailyRetention))
	for k := range l.daily {
		if k < cutoff {
			delete(l.daily, k)
		}
	}
}

func (l *Ledger) emitLocked(p domain.Position, at time.Time) {
	ev := domain.NewTradeEvent(l.opts.Mode, p, at)
	for _, o := range l.observers {
		o.Observe(ev)
	}
}

func dayKey(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}

func removeID(ids []string, id string) []string {
	for i, v := range ids {
		if v == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

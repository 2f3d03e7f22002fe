// Package executor turns accepted opportunities into reserved, placed and
// confirmed positions.
package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Book is the subset of the ledger the executor drives.
type Book interface {
	Reserve(ctx context.Context, opp domain.Opportunity) (domain.Position, error)
	Confirm(ctx context.Context, id string, fill domain.OrderResult) (domain.Position, error)
	Discard(ctx context.Context, id, reason string, cause error) error
}

// Pricer computes the limit price for an order.
type Pricer interface {
	LimitPrice(side domain.OrderSide, reference float64) float64
}

var (
	errCoolingDown        = errors.New("executor: key cooling down after a failed execution")
	errLegGroupIncomplete = errors.New("executor: leg group incomplete")
)

// Outcome is what happened to one opportunity.
type Outcome struct {
	Opportunity domain.Opportunity
	Position    domain.Position
	Err         error
}

// Opened reports whether the opportunity became an OPEN position.
func (o Outcome) Opened() bool {
	return o.Err == nil && o.Position.State == domain.PositionOpen
}

// Report summarises one Execute call.
type Report struct {
	Outcomes []Outcome
}

// Count returns how many outcomes opened, were rejected before placement,
// and failed at the gateway.
func (r Report) Count() (opened, rejected, failed int) {
	for _, o := range r.Outcomes {
		switch {
		case o.Opened():
			opened++
		case errors.Is(o.Err, domain.ErrExecution):
			failed++
		default:
			rejected++
		}
	}
	return opened, rejected, failed
}

// Executor reserves, places and confirms opportunities in the order given.
// Legs sharing a LegGroupID are reserved all-or-none before any of them is
// placed.
type Executor struct {
	book     Book
	gateway  domain.Gateway
	pricer   Pricer
	cooldown *Cooldown
	timeout  time.Duration
	logger   *slog.Logger
}

// New creates an Executor. failureCooldown is how long a key is suppressed
// after an execution failure.
func New(book Book, gateway domain.Gateway, pricer Pricer, failureCooldown time.Duration, logger *slog.Logger) *Executor {
	return &Executor{
		book:     book,
		gateway:  gateway,
		pricer:   pricer,
		cooldown: NewCooldown(failureCooldown),
		timeout:  15 * time.Second,
		logger:   logger.With(slog.String("component", "executor")),
	}
}

// Cooldown exposes the failure cooldown.
func (e *Executor) Cooldown() *Cooldown { return e.cooldown }

// Execute processes opps in order. The returned error is non-nil only for an
// invariant violation, which callers must treat as fatal.
func (e *Executor) Execute(ctx context.Context, opps []domain.Opportunity) (Report, error) {
	var rep Report
	e.cooldown.Cleanup()

	for _, group := range groupLegs(opps) {
		outcomes := e.executeGroup(ctx, group)
		rep.Outcomes = append(rep.Outcomes, outcomes...)
		for _, o := range outcomes {
			if errors.Is(o.Err, domain.ErrInvariantViolation) {
				return rep, o.Err
			}
		}
		if ctx.Err() != nil {
			return rep, nil
		}
	}
	return rep, nil
}

func (e *Executor) executeGroup(ctx context.Context, legs []domain.Opportunity) []Outcome {
	out := make([]Outcome, len(legs))
	for i, opp := range legs {
		out[i].Opportunity = opp
	}

	for _, opp := range legs {
		if e.cooldown.Active(cooldownKey(opp)) {
			e.logger.DebugContext(ctx, "opportunity cooling down after failure, skipping",
				slog.String("strategy", opp.Strategy),
				slog.String("market_id", opp.MarketID),
				slog.String("outcome", opp.Outcome),
			)
			for i := range out {
				out[i].Err = errCoolingDown
			}
			return out
		}
	}

	// Reserve every leg before placing any.
	for i, opp := range legs {
		pos, err := e.book.Reserve(ctx, opp)
		if err != nil {
			out[i].Err = err
			if len(legs) > 1 {
				e.logger.InfoContext(ctx, "leg group reservation failed, rolling back",
					slog.String("leg_group_id", opp.LegGroupID),
					slog.Int("reserved", i),
					slog.Int("legs", len(legs)),
					slog.String("error", err.Error()),
				)
			}
			for j := 0; j < i; j++ {
				rerr := e.book.Discard(ctx, out[j].Position.ID, "leg group incomplete", err)
				if !errors.Is(rerr, domain.ErrExecution) {
					out[j].Err = rerr
					continue
				}
				out[j].Err = errLegGroupIncomplete
				out[j].Position = domain.Position{}
			}
			for j := i + 1; j < len(legs); j++ {
				out[j].Err = errLegGroupIncomplete
			}
			return out
		}
		out[i].Position = pos
	}

	var failed int
	for i, opp := range legs {
		pos, err := e.place(ctx, opp, out[i].Position)
		out[i].Position, out[i].Err = pos, err
		if err != nil {
			failed++
		}
	}
	if failed > 0 && failed < len(legs) {
		e.logger.WarnContext(ctx, "leg group partially filled",
			slog.String("leg_group_id", legs[0].LegGroupID),
			slog.Int("failed", failed),
			slog.Int("legs", len(legs)),
		)
	}
	return out
}

func (e *Executor) place(ctx context.Context, opp domain.Opportunity, pos domain.Position) (domain.Position, error) {
	// Shares are sized at the limit so a worst-case fill stays within the
	// reserved notional.
	limit := e.pricer.LimitPrice(pos.Side, opp.ReferencePrice)
	req := domain.OrderRequest{
		PositionID:     pos.ID,
		MarketID:       pos.MarketID,
		Outcome:        pos.Outcome,
		TokenID:        pos.TokenID,
		Side:           pos.Side,
		Size:           pos.NotionalUSD / limit,
		LimitPrice:     limit,
		ReferencePrice: opp.ReferencePrice,
	}

	placeCtx, cancel := context.WithTimeout(ctx, e.timeout)
	res, err := e.gateway.PlaceOrder(placeCtx, req)
	cancel()

	if err != nil || !res.Confirmed {
		reason := res.Message
		if err != nil {
			reason = err.Error()
		}
		if reason == "" {
			reason = "order not confirmed"
		}
		e.cooldown.Mark(cooldownKey(opp))
		derr := e.book.Discard(ctx, pos.ID, reason, err)
		e.logger.WarnContext(ctx, "order failed, reservation rolled back",
			slog.String("gateway", e.gateway.Name()),
			slog.String("position_id", pos.ID),
			slog.String("strategy", opp.Strategy),
			slog.String("market_id", opp.MarketID),
			slog.String("reason", reason),
		)
		return domain.Position{}, derr
	}

	opened, err := e.book.Confirm(ctx, pos.ID, res)
	if err != nil {
		return pos, err
	}
	return opened, nil
}

// groupLegs splits opps into single opportunities and leg groups,
// preserving first-appearance order.
func groupLegs(opps []domain.Opportunity) [][]domain.Opportunity {
	var out [][]domain.Opportunity
	index := map[string]int{}
	for _, o := range opps {
		if o.LegGroupID == "" {
			out = append(out, []domain.Opportunity{o})
			continue
		}
		if i, ok := index[o.LegGroupID]; ok {
			out[i] = append(out[i], o)
			continue
		}
		index[o.LegGroupID] = len(out)
		out = append(out, []domain.Opportunity{o})
	}
	return out
}

func cooldownKey(o domain.Opportunity) string {
	return o.Strategy + "|" + o.MarketID + "|" + o.Outcome
}

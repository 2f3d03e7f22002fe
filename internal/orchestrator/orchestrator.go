// Package orchestrator runs the evaluation cycle: markets and reference
// prices in, strategy evaluation, then execution against the ledger.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/executor"
	"github.com/alanyoungcy/stratbot/internal/metrics"
	"github.com/alanyoungcy/stratbot/internal/risk"
	"github.com/alanyoungcy/stratbot/internal/strategy"
)

// MarketLister yields the markets for one cycle, history attached.
type MarketLister interface {
	ListMarkets(ctx context.Context) ([]domain.MarketSnapshot, error)
}

// PriceSource yields the reference prices for one cycle.
type PriceSource interface {
	PriceSet(now time.Time) domain.PriceSet
}

// Book is the read and verify side of the ledger.
type Book interface {
	Account() domain.AccountState
	Verify() error
}

// Evaluator runs the strategies.
type Evaluator interface {
	Evaluate(markets []domain.MarketSnapshot, prices domain.PriceSet, account domain.AccountState) strategy.Result
}

// Executor places accepted opportunities.
type Executor interface {
	Execute(ctx context.Context, opps []domain.Opportunity) (executor.Report, error)
}

// Sizer previews risk sizing without reserving.
type Sizer interface {
	ValidateAndSize(opp domain.Opportunity, account domain.AccountState) (risk.Approval, error)
}

// Opportunity outcome labels.
const (
	OutcomeOpened   = "opened"
	OutcomeRejected = "rejected"
	OutcomeFailed   = "failed"
	OutcomeClaimed  = "claimed"
	OutcomeObserved = "observed"
)

// CycleResult summarises one RunCycle.
type CycleResult struct {
	Markets   int
	Accepted  int
	Discarded int
	Opened    int
	Rejected  int
	Failed    int
	Duration  time.Duration
}

// Orchestrator wires one evaluation cycle together. With a nil executor it
// runs in monitor mode and only logs what it would have done.
type Orchestrator struct {
	markets  MarketLister
	prices   PriceSource
	book     Book
	engine   Evaluator
	exec     Executor
	sizer    Sizer
	interval time.Duration
	now      func() time.Time
	onCycle  func(at time.Time, markets []domain.MarketSnapshot, prices domain.PriceSet)
	logger   *slog.Logger
}

// New creates an Orchestrator. exec may be nil for monitor mode, in which
// case sizer (if set) previews each accepted opportunity.
func New(markets MarketLister, prices PriceSource, book Book, engine Evaluator, exec Executor, sizer Sizer, interval time.Duration, logger *slog.Logger) *Orchestrator {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Orchestrator{
		markets:  markets,
		prices:   prices,
		book:     book,
		engine:   engine,
		exec:     exec,
		sizer:    sizer,
		interval: interval,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "orchestrator")),
	}
}

// OnCycle registers fn to see the inputs of every cycle before evaluation.
func (o *Orchestrator) OnCycle(fn func(at time.Time, markets []domain.MarketSnapshot, prices domain.PriceSet)) {
	o.onCycle = fn
}

// Run evaluates every interval until ctx is cancelled or the ledger reports
// an invariant violation. Other cycle errors are logged and the next tick
// tries again.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.InfoContext(ctx, "orchestrator starting",
		slog.Duration("interval", o.interval),
		slog.Bool("monitor", o.exec == nil),
	)

	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		if _, err := o.RunCycle(ctx); err != nil {
			if errors.Is(err, domain.ErrInvariantViolation) {
				o.logger.ErrorContext(ctx, "invariant violation, stopping", slog.String("error", err.Error()))
				return err
			}
			if ctx.Err() == nil {
				o.logger.WarnContext(ctx, "cycle failed", slog.String("error", err.Error()))
			}
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// RunCycle runs one evaluation. Accepted opportunities reach the executor
// in engine order, so exposure is granted first-fit by priority.
func (o *Orchestrator) RunCycle(ctx context.Context) (res CycleResult, err error) {
	start := o.now()
	defer func() {
		res.Duration = o.now().Sub(start)
		metrics.CycleDuration.Observe(res.Duration.Seconds())
	}()

	markets, err := o.markets.ListMarkets(ctx)
	if err != nil {
		metrics.Cycles.WithLabelValues("market_error").Inc()
		return res, fmt.Errorf("orchestrator: list markets: %w", err)
	}
	res.Markets = len(markets)

	prices := o.prices.PriceSet(start)
	if o.onCycle != nil {
		o.onCycle(start, markets, prices)
	}
	account := o.book.Account()
	metrics.ObserveAccount(account)

	result := o.engine.Evaluate(markets, prices, account)
	res.Accepted = len(result.Accepted)
	res.Discarded = len(result.Discarded)
	for _, d := range result.Discarded {
		metrics.Opportunities.WithLabelValues(d.Opportunity.Strategy, OutcomeClaimed).Inc()
	}

	if o.exec == nil {
		o.observe(ctx, result.Accepted, account)
	} else if len(result.Accepted) > 0 {
		rep, execErr := o.exec.Execute(ctx, result.Accepted)
		o.record(rep)
		res.Opened, res.Rejected, res.Failed = rep.Count()
		if execErr != nil {
			metrics.Cycles.WithLabelValues("invariant_violation").Inc()
			return res, execErr
		}
	}

	if err := o.book.Verify(); err != nil {
		metrics.Cycles.WithLabelValues("invariant_violation").Inc()
		return res, err
	}
	metrics.ObserveAccount(o.book.Account())
	metrics.Cycles.WithLabelValues("ok").Inc()

	if res.Accepted > 0 || res.Discarded > 0 {
		o.logger.InfoContext(ctx, "cycle complete",
			slog.Int("markets", res.Markets),
			slog.Int("accepted", res.Accepted),
			slog.Int("discarded", res.Discarded),
			slog.Int("opened", res.Opened),
			slog.Int("rejected", res.Rejected),
			slog.Int("failed", res.Failed),
		)
	} else {
		o.logger.DebugContext(ctx, "cycle complete", slog.Int("markets", res.Markets))
	}
	return res, nil
}

func (o *Orchestrator) record(rep executor.Report) {
	for _, out := range rep.Outcomes {
		label := OutcomeRejected
		switch {
		case out.Opened():
			label = OutcomeOpened
		case errors.Is(out.Err, domain.ErrExecution):
			label = OutcomeFailed
		}
		if check, ok := risk.RejectedCheck(out.Err); ok {
			metrics.RiskRejections.WithLabelValues(check).Inc()
		}
		metrics.Opportunities.WithLabelValues(out.Opportunity.Strategy, label).Inc()
	}
}

func (o *Orchestrator) observe(ctx context.Context, opps []domain.Opportunity, account domain.AccountState) {
	for _, opp := range opps {
		metrics.Opportunities.WithLabelValues(opp.Strategy, OutcomeObserved).Inc()
		attrs := []any{
			slog.String("strategy", opp.Strategy),
			slog.String("market_id", opp.MarketID),
			slog.String("outcome", opp.Outcome),
			slog.String("side", string(opp.Side)),
			slog.Float64("price", opp.ReferencePrice),
			slog.Float64("edge", opp.Edge),
			slog.Float64("confidence", opp.Confidence),
			slog.String("reason", opp.Reason),
		}
		if o.sizer != nil {
			if appr, err := o.sizer.ValidateAndSize(opp, account); err == nil {
				attrs = append(attrs, slog.Float64("notional_usd", appr.NotionalUSD), slog.Float64("size", appr.Size))
			} else if check, ok := risk.RejectedCheck(err); ok {
				attrs = append(attrs, slog.String("would_reject", check))
			}
		}
		o.logger.InfoContext(ctx, "opportunity (monitor)", attrs...)
	}
}

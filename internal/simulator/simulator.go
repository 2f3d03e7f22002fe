// Package simulator is the testing-mode gateway. It fills orders locally
// without touching the venue.
package simulator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// Fill is one simulated execution.
type Fill struct {
	OrderID  string
	Request  domain.OrderRequest
	Price    float64
	FilledAt time.Time
}

// Config controls simulated fills.
type Config struct {
	// FillProbability in [0, 1]. One fills everything.
	FillProbability float64
	Slippage        float64
	Seed            int64
	Balance         float64
}

// Simulator implements domain.Gateway against an in-memory book.
type Simulator struct {
	cfg    Config
	mu     sync.Mutex
	rng    *rand.Rand
	fills  []Fill
	logger *slog.Logger
}

var _ domain.Gateway = (*Simulator)(nil)

// New creates a Simulator.
func New(cfg Config, logger *slog.Logger) *Simulator {
	return &Simulator{
		cfg:    cfg,
		rng:    rand.New(rand.NewSource(cfg.Seed)),
		logger: logger.With(slog.String("component", "simulator")),
	}
}

// Name implements domain.Gateway.
func (s *Simulator) Name() string { return "simulator" }

// PlaceOrder fills req at the better of its limit and the reference price
// moved by the configured slippage. With a fill probability below one some
// orders are rejected instead.
func (s *Simulator) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderResult{}, err
	}
	if req.Size <= 0 || req.LimitPrice <= 0 || req.LimitPrice >= 1 {
		return domain.OrderResult{}, fmt.Errorf("simulator: size %.4f at %.4f: %w", req.Size, req.LimitPrice, domain.ErrInvalidOrder)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cfg.FillProbability < 1 && s.rng.Float64() >= s.cfg.FillProbability {
		s.logger.InfoContext(ctx, "simulated order not filled",
			slog.String("position_id", req.PositionID),
			slog.String("market_id", req.MarketID),
		)
		return domain.OrderResult{Confirmed: false, Message: "simulated no fill"}, nil
	}

	price := req.LimitPrice
	if req.ReferencePrice > 0 {
		if req.Side == domain.OrderSideSell {
			price = math.Max(req.LimitPrice, req.ReferencePrice*(1-s.cfg.Slippage))
		} else {
			price = math.Min(req.LimitPrice, req.ReferencePrice*(1+s.cfg.Slippage))
		}
	}

	fill := Fill{OrderID: "sim-" + uuid.New().String(), Request: req, Price: price, FilledAt: time.Now().UTC()}
	s.fills = append(s.fills, fill)

	s.logger.InfoContext(ctx, "simulated order filled",
		slog.String("position_id", req.PositionID),
		slog.String("order_id", fill.OrderID),
		slog.String("market_id", req.MarketID),
		slog.String("outcome", req.Outcome),
		slog.String("side", string(req.Side)),
		slog.Float64("price", price),
		slog.Float64("size", req.Size),
	)
	return domain.OrderResult{
		Confirmed: true,
		OrderID:   fill.OrderID,
		FillPrice: price,
		FillSize:  req.Size,
	}, nil
}

// GetBalance returns the configured paper balance.
func (s *Simulator) GetBalance(context.Context) (float64, error) {
	return s.cfg.Balance, nil
}

// Fills returns every fill so far.
func (s *Simulator) Fills() []Fill {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Fill(nil), s.fills...)
}

package service

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
	"github.com/alanyoungcy/stratbot/internal/feed"
)

// PricesChannel is the pub/sub channel reference ticks are published on.
const PricesChannel = "prices"

// PriceService feeds reference ticks into the aggregator and mirrors them to
// the price cache and signal bus when those are configured.
type PriceService struct {
	agg    *feed.Aggregator
	cache  domain.PriceCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPriceService creates a PriceService. cache and bus may be nil.
func NewPriceService(agg *feed.Aggregator, cache domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		agg:    agg,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// HandleTick is a feed.TickHandler. Ticks the aggregator rejects (stale or
// non-positive) are not mirrored.
func (s *PriceService) HandleTick(ctx context.Context, symbol string, price float64, ts time.Time) {
	if !s.agg.Update(symbol, price, ts) {
		return
	}

	if s.cache != nil {
		if err := s.cache.SetPrice(ctx, symbol, price, ts); err != nil {
			s.logger.WarnContext(ctx, "price_service: cache set failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.bus != nil {
		evt, _ := json.Marshal(map[string]any{
			"event":     "tick",
			"symbol":    symbol,
			"price":     price,
			"timestamp": ts.Format(time.RFC3339Nano),
		})
		if err := s.bus.Publish(ctx, PricesChannel, evt); err != nil {
			s.logger.WarnContext(ctx, "price_service: publish tick failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
}

// PriceSet returns the strategies' view of the reference prices at now.
func (s *PriceService) PriceSet(now time.Time) domain.PriceSet {
	return s.agg.PriceSet(now)
}

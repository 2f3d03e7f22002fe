package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// MarketService pulls venue snapshots and attaches the recorded price
// history that reversion, volatility and exit rules read.
type MarketService struct {
	source    domain.MarketSource
	spacing   time.Duration
	retention time.Duration
	now       func() time.Time

	mu      sync.Mutex
	history map[string]map[string][]domain.PricePoint // market -> outcome -> samples
	logger  *slog.Logger
}

// NewMarketService creates a MarketService. A sample is recorded at most once
// per spacing and kept for retention.
func NewMarketService(source domain.MarketSource, spacing, retention time.Duration, logger *slog.Logger) *MarketService {
	return &MarketService{
		source:    source,
		spacing:   spacing,
		retention: retention,
		now:       time.Now,
		history:   make(map[string]map[string][]domain.PricePoint),
		logger:    logger.With(slog.String("component", "market_service")),
	}
}

// ListMarkets fetches every market and returns them enriched with history.
func (s *MarketService) ListMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	markets, err := s.source.ListMarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for i := range markets {
		s.recordLocked(markets[i], now)
		markets[i].History = s.copyLocked(markets[i].MarketID)
	}
	s.pruneLocked(now)

	s.logger.DebugContext(ctx, "market_service: fetched markets", slog.Int("count", len(markets)))
	return markets, nil
}

// GetMarket fetches a single market, records its prices and attaches
// history.
func (s *MarketService) GetMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	m, err := s.source.GetMarket(ctx, marketID)
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("market_service: get market %q: %w", marketID, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(m, s.now())
	m.History = s.copyLocked(m.MarketID)
	return m, nil
}

// Record adds the current prices of m to its history. It is exported for
// the history backfill path and tests.
func (s *MarketService) Record(m domain.MarketSnapshot, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(m, at)
}

// Tracked returns the number of markets with recorded history.
func (s *MarketService) Tracked() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history)
}

func (s *MarketService) recordLocked(m domain.MarketSnapshot, at time.Time) {
	if m.Status != domain.MarketStatusActive {
		return
	}
	byOutcome, ok := s.history[m.MarketID]
	if !ok {
		byOutcome = make(map[string][]domain.PricePoint, len(m.Outcomes))
		s.history[m.MarketID] = byOutcome
	}
	for outcome, q := range m.Outcomes {
		if q.Price <= 0 {
			continue
		}
		pts := byOutcome[outcome]
		if n := len(pts); n > 0 && at.Sub(pts[n-1].At) < s.spacing {
			continue
		}
		byOutcome[outcome] = append(pts, domain.PricePoint{At: at, Price: q.Price})
	}
}

func (s *MarketService) copyLocked(marketID string) map[string][]domain.PricePoint {
	byOutcome := s.history[marketID]
	if len(byOutcome) == 0 {
		return nil
	}
	out := make(map[string][]domain.PricePoint, len(byOutcome))
	for outcome, pts := range byOutcome {
		out[outcome] = append([]domain.PricePoint(nil), pts...)
	}
	return out
}

func (s *MarketService) pruneLocked(now time.Time) {
	if s.retention <= 0 {
		return
	}
	cutoff := now.Add(-s.retention)
	for id, byOutcome := range s.history {
		for outcome, pts := range byOutcome {
			i := 0
			for i < len(pts) && pts[i].At.Before(cutoff) {
				i++
			}
			if i == len(pts) {
				delete(byOutcome, outcome)
				continue
			}
			byOutcome[outcome] = pts[i:]
		}
		if len(byOutcome) == 0 {
			delete(s.history, id)
		}
	}
}

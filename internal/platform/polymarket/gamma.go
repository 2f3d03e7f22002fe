package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/alanyoungcy/stratbot/internal/domain"
)

// GammaClient is the REST client for the Gamma market discovery API. It
// implements domain.MarketSource.
type GammaClient struct {
	baseURL    string
	limit      int
	httpClient *http.Client
	now        func() time.Time
}

var _ domain.MarketSource = (*GammaClient)(nil)

// NewGammaClient creates a Gamma client that lists up to limit active
// markets per call, e.g. baseURL "https://gamma-api.polymarket.com".
func NewGammaClient(baseURL string, limit int) *GammaClient {
	if limit <= 0 {
		limit = 200
	}
	return &GammaClient{
		baseURL:    baseURL,
		limit:      limit,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
	}
}

// ListMarkets returns the open markets, highest volume first.
func (g *GammaClient) ListMarkets(ctx context.Context) ([]domain.MarketSnapshot, error) {
	params := url.Values{}
	params.Set("active", "true")
	params.Set("closed", "false")
	params.Set("order", "volume")
	params.Set("ascending", "false")
	params.Set("limit", strconv.Itoa(g.limit))

	body, err := g.doGet(ctx, "/markets?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("polymarket/gamma: list markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(body, &apiMarkets); err != nil {
		return nil, fmt.Errorf("polymarket/gamma: decode markets: %w", err)
	}

	now := g.now()
	out := make([]domain.MarketSnapshot, 0, len(apiMarkets))
	for i := range apiMarkets {
		snap := apiMarkets[i].ToSnapshot(now)
		if len(snap.Outcomes) == 0 {
			continue
		}
		out = append(out, snap)
	}
	return out, nil
}

// GetMarket returns one market, including closed and resolved ones.
func (g *GammaClient) GetMarket(ctx context.Context, marketID string) (domain.MarketSnapshot, error) {
	body, err := g.doGet(ctx, "/markets/"+url.PathEscape(marketID))
	if err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: get market %s: %w", marketID, err)
	}

	var m APIMarket
	if err := json.Unmarshal(body, &m); err != nil {
		return domain.MarketSnapshot{}, fmt.Errorf("polymarket/gamma: decode market: %w", err)
	}
	return m.ToSnapshot(g.now()), nil
}

func (g *GammaClient) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

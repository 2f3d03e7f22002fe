package polymarket

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stratbot/internal/crypto"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

// ClobClient is the authenticated REST client for the CLOB order API.
type ClobClient struct {
	baseURL    string
	httpClient *http.Client
	signer     *crypto.Signer
	now        func() time.Time

	mu    sync.RWMutex
	creds crypto.Credentials
}

// NewClobClient creates a CLOB client, e.g. baseURL
// "https://clob.polymarket.com". creds may be empty, in which case
// DeriveAPIKey must run before any authenticated call.
func NewClobClient(baseURL string, signer *crypto.Signer, creds crypto.Credentials) *ClobClient {
	return &ClobClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		signer:     signer,
		now:        time.Now,
		creds:      creds,
	}
}

// HasCredentials reports whether L2 credentials are loaded.
func (c *ClobClient) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.Valid()
}

// signedOrderBody is the POST /order payload.
type signedOrderBody struct {
	Order     signedOrder `json:"order"`
	Owner     string      `json:"owner"`
	OrderType string      `json:"orderType"`
}

type signedOrder struct {
	crypto.OrderPayload
	Side      string `json:"side"`
	Signature string `json:"signature"`
}

// PostOrder submits a signed order.
func (c *ClobClient) PostOrder(ctx context.Context, order crypto.OrderPayload, signature, orderType string) (APIOrderResult, error) {
	side := "BUY"
	if order.Side == crypto.SideSell {
		side = "SELL"
	}
	c.mu.RLock()
	owner := c.creds.Key
	c.mu.RUnlock()

	body := signedOrderBody{
		Order:     signedOrder{OrderPayload: order, Side: side, Signature: signature},
		Owner:     owner,
		OrderType: orderType,
	}

	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodPost, "/order", body)
	if err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: post order: %w", err)
	}

	var res APIOrderResult
	if err := json.Unmarshal(respBody, &res); err != nil {
		return APIOrderResult{}, fmt.Errorf("polymarket/clob: decode order result: %w", err)
	}
	return res, nil
}

// GetBalance returns the collateral balance in USD.
func (c *ClobClient) GetBalance(ctx context.Context) (float64, error) {
	respBody, err := c.doAuthenticatedRequest(ctx, http.MethodGet, "/balance-allowance?asset_type=COLLATERAL", nil)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: get balance: %w", err)
	}
	var bal APIBalance
	if err := json.Unmarshal(respBody, &bal); err != nil {
		return 0, fmt.Errorf("polymarket/clob: decode balance: %w", err)
	}
	units, err := decimal.NewFromString(bal.Balance)
	if err != nil {
		return 0, fmt.Errorf("polymarket/clob: balance %q: %w", bal.Balance, err)
	}
	return units.Shift(-usdcDecimals).InexactFloat64(), nil
}

// DeriveAPIKey signs a ClobAuth message with L1 headers and stores the L2
// credentials the venue returns.
func (c *ClobClient) DeriveAPIKey(ctx context.Context) error {
	ts := c.now().Unix()
	const nonce = int64(0)

	sig, err := c.signer.SignAuth(ts, nonce)
	if err != nil {
		return fmt.Errorf("polymarket/clob: sign auth message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/auth/derive-api-key", nil)
	if err != nil {
		return fmt.Errorf("polymarket/clob: create auth request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", c.signer.Address().Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", strconv.FormatInt(ts, 10))
	req.Header.Set("POLY_NONCE", strconv.FormatInt(nonce, 10))

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("polymarket/clob: auth request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("polymarket/clob: read auth response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return fmt.Errorf("polymarket/clob: derive api key: %w", err)
	}

	var authResp struct {
		APIKey     string `json:"apiKey"`
		Secret     string `json:"secret"`
		Passphrase string `json:"passphrase"`
	}
	if err := json.Unmarshal(respBody, &authResp); err != nil {
		return fmt.Errorf("polymarket/clob: decode auth response: %w", err)
	}
	creds := crypto.Credentials{Key: authResp.APIKey, Secret: authResp.Secret, Passphrase: authResp.Passphrase}
	if !creds.Valid() {
		return fmt.Errorf("polymarket/clob: derive api key: incomplete credentials: %w", domain.ErrUnauthorized)
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	return nil
}

// doAuthenticatedRequest sends a request with L2 HMAC headers. The signed
// path includes the query string.
func (c *ClobClient) doAuthenticatedRequest(ctx context.Context, method, path string, body any) ([]byte, error) {
	var bodyReader io.Reader
	var bodyStr string
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("marshal request body: %w", err)
		}
		bodyStr = string(jsonBody)
		bodyReader = bytes.NewReader(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	c.mu.RLock()
	creds := c.creds
	c.mu.RUnlock()
	if !creds.Valid() {
		return nil, fmt.Errorf("no api credentials: %w", domain.ErrUnauthorized)
	}
	headers, err := creds.L2Headers(c.signer.Address().Hex(), method, path, bodyStr, c.now().Unix())
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrSigningFailed, err)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}
	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	case http.StatusBadRequest:
		return fmt.Errorf("%w: %s", domain.ErrInvalidOrder, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}

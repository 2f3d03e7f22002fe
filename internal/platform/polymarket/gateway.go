package polymarket

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/stratbot/internal/crypto"
	"github.com/alanyoungcy/stratbot/internal/domain"
)

const (
	usdcDecimals  = 6
	priceDecimals = 2
	sizeDecimals  = 2
	zeroAddress   = "0x0000000000000000000000000000000000000000"

	// orderTypeFOK fills completely or is cancelled, so a confirmed order
	// never leaves a resting remainder.
	orderTypeFOK = "FOK"
)

// GatewayConfig configures the live gateway.
type GatewayConfig struct {
	// Funder holds the collateral. Empty means the signer's own address.
	Funder        string
	SignatureType int
}

// Gateway places real orders on the CLOB. It implements domain.Gateway.
type Gateway struct {
	clob   *ClobClient
	signer *crypto.Signer
	cfg    GatewayConfig
	salt   func() int64
	logger *slog.Logger
}

var _ domain.Gateway = (*Gateway)(nil)

// NewGateway wraps clob. The signer must be the one clob authenticates with.
func NewGateway(clob *ClobClient, signer *crypto.Signer, cfg GatewayConfig, logger *slog.Logger) (*Gateway, error) {
	if cfg.Funder != "" && !common.IsHexAddress(cfg.Funder) {
		return nil, fmt.Errorf("polymarket/gateway: invalid funder address %q", cfg.Funder)
	}
	return &Gateway{
		clob:   clob,
		signer: signer,
		cfg:    cfg,
		salt:   func() int64 { return rand.Int64N(1 << 53) },
		logger: logger.With(slog.String("component", "polymarket_gateway")),
	}, nil
}

// Name implements domain.Gateway.
func (g *Gateway) Name() string { return "polymarket" }

// Connect derives API credentials when none were configured.
func (g *Gateway) Connect(ctx context.Context) error {
	if g.clob.HasCredentials() {
		return nil
	}
	if err := g.clob.DeriveAPIKey(ctx); err != nil {
		return err
	}
	g.logger.InfoContext(ctx, "derived api credentials", slog.String("address", g.signer.Address().Hex()))
	return nil
}

// GetBalance implements domain.Gateway.
func (g *Gateway) GetBalance(ctx context.Context) (float64, error) {
	return g.clob.GetBalance(ctx)
}

// PlaceOrder signs req as a fill-or-kill order and submits it. Anything
// other than a matched response comes back unconfirmed.
func (g *Gateway) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	payload, err := g.BuildOrder(req)
	if err != nil {
		return domain.OrderResult{}, err
	}
	sig, err := g.signer.SignOrder(payload)
	if err != nil {
		return domain.OrderResult{}, fmt.Errorf("polymarket/gateway: %w: %w", domain.ErrSigningFailed, err)
	}

	res, err := g.clob.PostOrder(ctx, payload, sig, orderTypeFOK)
	if err != nil {
		return domain.OrderResult{}, err
	}

	if !res.Success || res.Status != "matched" {
		msg := res.ErrorMsg
		if msg == "" {
			msg = "order " + res.Status
		}
		g.logger.WarnContext(ctx, "order not matched",
			slog.String("position_id", req.PositionID),
			slog.String("order_id", res.OrderID),
			slog.String("status", res.Status),
			slog.String("message", msg),
		)
		return domain.OrderResult{Confirmed: false, OrderID: res.OrderID, Message: msg}, nil
	}

	price, size := fillFromAmounts(req.Side, res.MakingAmount, res.TakingAmount)
	if size <= 0 {
		price, size = req.LimitPrice, req.Size
	}
	g.logger.InfoContext(ctx, "order matched",
		slog.String("position_id", req.PositionID),
		slog.String("order_id", res.OrderID),
		slog.String("market_id", req.MarketID),
		slog.String("outcome", req.Outcome),
		slog.Float64("price", price),
		slog.Float64("size", size),
	)
	return domain.OrderResult{
		Confirmed: true,
		OrderID:   res.OrderID,
		FillPrice: price,
		FillSize:  size,
	}, nil
}

// BuildOrder converts req into the signed order fields. Prices are rounded
// to the tick away from the counterparty and sizes are rounded down.
func (g *Gateway) BuildOrder(req domain.OrderRequest) (crypto.OrderPayload, error) {
	if req.TokenID == "" {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket/gateway: market %s outcome %s has no token: %w",
			req.MarketID, req.Outcome, domain.ErrInvalidOrder)
	}

	price := decimal.NewFromFloat(req.LimitPrice)
	if req.Side == domain.OrderSideSell {
		price = price.RoundCeil(priceDecimals)
	} else {
		price = price.RoundFloor(priceDecimals)
	}
	size := decimal.NewFromFloat(req.Size).RoundFloor(sizeDecimals)
	if !price.IsPositive() || price.GreaterThanOrEqual(decimal.NewFromInt(1)) || !size.IsPositive() {
		return crypto.OrderPayload{}, fmt.Errorf("polymarket/gateway: size %s at %s: %w", size, price, domain.ErrInvalidOrder)
	}

	shares := size.Shift(usdcDecimals)
	collateral := size.Mul(price).Shift(usdcDecimals).Truncate(0)

	signer := g.signer.Address().Hex()
	maker := signer
	if g.cfg.Funder != "" {
		maker = common.HexToAddress(g.cfg.Funder).Hex()
	}

	p := crypto.OrderPayload{
		Salt:          strconv.FormatInt(g.salt(), 10),
		Maker:         maker,
		Signer:        signer,
		Taker:         zeroAddress,
		TokenID:       req.TokenID,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: g.cfg.SignatureType,
	}
	if req.Side == domain.OrderSideSell {
		p.Side = crypto.SideSell
		p.MakerAmount = shares.String()
		p.TakerAmount = collateral.String()
	} else {
		p.Side = crypto.SideBuy
		p.MakerAmount = collateral.String()
		p.TakerAmount = shares.String()
	}
	return p, nil
}

// fillFromAmounts derives the average fill price and share count from the
// matched amounts. For a buy the maker gives collateral and takes shares.
func fillFromAmounts(side domain.OrderSide, making, taking string) (price, size float64) {
	m, err1 := decimal.NewFromString(making)
	t, err2 := decimal.NewFromString(taking)
	if err1 != nil || err2 != nil || m.IsZero() || t.IsZero() {
		return 0, 0
	}
	collateral, shares := m, t
	if side == domain.OrderSideSell {
		collateral, shares = t, m
	}
	return collateral.Div(shares).InexactFloat64(), shares.InexactFloat64()
}

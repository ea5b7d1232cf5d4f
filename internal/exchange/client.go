// Package exchange implements a Hyperliquid-class venue REST and
// WebSocket client satisfying the ExchangeAdapter contract.
//
// The REST client (Client) talks to the venue's info/exchange endpoints:
//   - OrderBook/MidPrice/RecentTrades: POST /info          — public market data
//   - PlaceOrder/ModifyOrders:         POST /exchange        — signed batch order actions
//   - CancelAll:                       POST /exchange        — signed cancel-all action
//   - OpenOrders/Position:             POST /info            — per-account state
//   - Metadata:                        POST /info            — universe + precision
//   - ArmDeadMansSwitch:               POST /exchange        — scheduled self-cancel
//
// Every request is rate-limited via per-category limiters (RateLimiter), automatically
// retried on 5xx errors, and every mutating action is EIP-712-signed via
// Auth. Dry-run mode returns fake success without making HTTP calls, for
// paper-trading.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"hlmaker/internal/config"
	"hlmaker/pkg/types"
)

// Client is the venue REST API client, wrapping a resty HTTP client with
// rate limiting, retry, and EIP-712 signing.
type Client struct {
	http    *resty.Client
	auth    *Auth
	rl      *RateLimiter
	dryRun  bool
	nonceAt int64 // monotonic nonce source for action signing
	logger  *slog.Logger
}

// NewClient creates a REST client with rate limiting and retry.
func NewClient(cfg config.Config, auth *Auth, logger *slog.Logger) *Client {
	httpClient := resty.New().
		SetBaseURL(cfg.Venue.RESTBaseURL).
		SetTimeout(cfg.Venue.RequestTimeout).
		SetRetryCount(3).
		SetRetryWaitTime(500 * time.Millisecond).
		SetRetryMaxWaitTime(5 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		}).
		SetHeader("Content-Type", "application/json")

	return &Client{
		http:   httpClient,
		auth:   auth,
		rl:     NewRateLimiter(),
		dryRun: cfg.DryRun,
		logger: logger.With("component", "exchange_client"),
	}
}

func (c *Client) nextNonce() int64 {
	c.nonceAt++
	return time.Now().UnixMilli() + c.nonceAt
}

// signedAction wraps action in the venue's signature envelope and POSTs it
// to /exchange, unmarshalling the response into out. Every call gets a
// request id so a rejected or slow action can be correlated across the
// client's own logs and the venue's side-channel support logs.
func (c *Client) signedAction(ctx context.Context, op string, action any, out any) error {
	reqID := uuid.New().String()
	log := c.logger.With("op", op, "request_id", reqID)

	nonce := c.nextNonce()
	body, err := json.Marshal(action)
	if err != nil {
		return types.NewAdapterError(types.KindRejectedInvalid, op, "", fmt.Errorf("marshal action: %w", err))
	}

	sig, err := c.auth.SignAction(ActionHash(body, nonce), nonce)
	if err != nil {
		log.Warn("sign action failed", "error", err)
		return types.NewAdapterError(types.KindAuth, op, "", err)
	}

	envelope := struct {
		Action    json.RawMessage `json:"action"`
		Nonce     int64           `json:"nonce"`
		Signature string          `json:"signature"`
		Vault     string          `json:"vaultAddress,omitempty"`
	}{
		Action:    body,
		Nonce:     nonce,
		Signature: sig,
	}
	if c.auth.HasVault() {
		envelope.Vault = c.auth.Vault().Hex()
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(envelope).
		SetResult(out).
		Post("/exchange")
	if err != nil {
		log.Warn("request failed", "error", err)
		return types.NewAdapterError(types.KindTransient, op, "", err)
	}
	if resp.StatusCode() >= 500 {
		log.Warn("venue 5xx", "status", resp.StatusCode())
		return types.NewAdapterError(types.KindTransient, op, "", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if resp.StatusCode() == http.StatusUnauthorized {
		log.Warn("venue rejected signature", "status", resp.StatusCode())
		return types.NewAdapterError(types.KindAuth, op, "", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	if resp.StatusCode() >= 400 {
		log.Warn("venue rejected action", "status", resp.StatusCode(), "body", resp.String())
		return types.NewAdapterError(types.KindRejectedInvalid, op, "", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

func (c *Client) infoRequest(ctx context.Context, reqType string, extra map[string]any, out any) error {
	body := map[string]any{"type": reqType}
	for k, v := range extra {
		body[k] = v
	}
	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(body).
		SetResult(out).
		Post("/info")
	if err != nil {
		return types.NewAdapterError(types.KindTransient, "info:"+reqType, "", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return types.NewAdapterError(types.KindTransient, "info:"+reqType, "", fmt.Errorf("status %d: %s", resp.StatusCode(), resp.String()))
	}
	return nil
}

// MidPrice fetches the current mid price for symbol.
func (c *Client) MidPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	var result map[string]string
	if err := c.infoRequest(ctx, "allMids", nil, &result); err != nil {
		return decimal.Zero, err
	}
	mid, err := decimal.NewFromString(result[symbol])
	if err != nil {
		return decimal.Zero, types.NewAdapterError(types.KindStale, "mid_price", symbol, err)
	}
	return mid, nil
}

// OrderBook fetches the top `depth` levels of both sides for symbol.
func (c *Client) OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return types.OrderBookSnapshot{}, err
	}

	var result struct {
		Levels [2][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
		} `json:"levels"`
	}
	if err := c.infoRequest(ctx, "l2Book", map[string]any{"coin": symbol}, &result); err != nil {
		return types.OrderBookSnapshot{}, err
	}

	book := types.OrderBookSnapshot{Symbol: symbol, Timestamp: time.Now()}
	for i, lvl := range result.Levels[0] {
		if i >= depth {
			break
		}
		px, _ := decimal.NewFromString(lvl.Px)
		sz, _ := decimal.NewFromString(lvl.Sz)
		book.Bids = append(book.Bids, types.PriceLevel{Price: px, Size: sz})
	}
	for i, lvl := range result.Levels[1] {
		if i >= depth {
			break
		}
		px, _ := decimal.NewFromString(lvl.Px)
		sz, _ := decimal.NewFromString(lvl.Sz)
		book.Asks = append(book.Asks, types.PriceLevel{Price: px, Size: sz})
	}
	return book, nil
}

// RecentTrades fetches public trade prints for symbol since the given time.
func (c *Client) RecentTrades(ctx context.Context, symbol string, since time.Time) ([]types.Trade, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result []struct {
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Side string `json:"side"`
		Time int64  `json:"time"`
	}
	if err := c.infoRequest(ctx, "recentTrades", map[string]any{"coin": symbol}, &result); err != nil {
		return nil, err
	}

	var trades []types.Trade
	for _, t := range result {
		ts := time.UnixMilli(t.Time)
		if ts.Before(since) {
			continue
		}
		px, _ := decimal.NewFromString(t.Px)
		sz, _ := decimal.NewFromString(t.Sz)
		side := types.Buy
		if t.Side == "S" || t.Side == "SELL" {
			side = types.Sell
		}
		trades = append(trades, types.Trade{Symbol: symbol, Side: side, Price: px, Size: sz, Timestamp: ts})
	}
	return trades, nil
}

// PlaceOrder submits a single order and returns the venue's exchange id.
func (c *Client) PlaceOrder(ctx context.Context, intent types.OrderIntent, postOnly bool) (string, error) {
	if c.dryRun {
		c.logger.Info("dry-run place order", "symbol", intent.Symbol, "side", intent.Side, "price", intent.Price, "size", intent.Size)
		return "dry-run-" + intent.ClientID, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return "", err
	}

	otype := types.OrderTypeGTC
	if postOnly {
		otype = types.OrderTypeALO
	}

	action := map[string]any{
		"type": "order",
		"orders": []map[string]any{{
			"coin":     intent.Symbol,
			"is_buy":   intent.Side == types.Buy,
			"px":       intent.Price.String(),
			"sz":       intent.Size.String(),
			"type":     otype,
			"cloid":    intent.ClientID,
			"reduceOnly": false,
		}},
	}

	var result struct {
		Statuses []struct {
			Resting *struct {
				OID int64 `json:"oid"`
			} `json:"resting"`
			Error string `json:"error"`
		} `json:"statuses"`
	}
	if err := c.signedAction(ctx, "place_order", action, &result); err != nil {
		return "", err
	}
	if len(result.Statuses) == 0 {
		return "", types.NewAdapterError(types.KindMismatch, "place_order", intent.Symbol, fmt.Errorf("empty status array"))
	}
	st := result.Statuses[0]
	if st.Error != "" {
		kind := types.KindRejectedInvalid
		if containsCrossKeyword(st.Error) {
			kind = types.KindRejectedCross
		}
		return "", types.NewAdapterError(kind, "place_order", intent.Symbol, fmt.Errorf("%s", st.Error))
	}
	if st.Resting == nil {
		return "", types.NewAdapterError(types.KindMismatch, "place_order", intent.Symbol, fmt.Errorf("no resting order id returned"))
	}
	return fmt.Sprintf("%d", st.Resting.OID), nil
}

func containsCrossKeyword(msg string) bool {
	lower := strings.ToLower(msg)
	for _, kw := range []string{"cross", "would match", "post-only"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// ModifyOrders moves a batch of resting orders in-place (batch size >= 20
// per the venue's modify endpoint).
func (c *Client) ModifyOrders(ctx context.Context, mods []ModifyRequest) ([]ModifyResult, error) {
	if len(mods) == 0 {
		return nil, nil
	}
	if c.dryRun {
		results := make([]ModifyResult, len(mods))
		for i, m := range mods {
			results[i] = ModifyResult{ExchangeID: m.ExchangeID, OK: true}
		}
		return results, nil
	}
	if err := c.rl.Order.Wait(ctx); err != nil {
		return nil, err
	}

	modifies := make([]map[string]any, len(mods))
	for i, m := range mods {
		modifies[i] = map[string]any{
			"oid": m.ExchangeID,
			"order": map[string]any{
				"px": m.NewPrice.String(),
				"sz": m.NewSize.String(),
			},
		}
	}
	action := map[string]any{"type": "batchModify", "modifies": modifies}

	var result struct {
		Statuses []struct {
			Error string `json:"error"`
		} `json:"statuses"`
	}
	if err := c.signedAction(ctx, "modify_orders", action, &result); err != nil {
		return nil, err
	}

	results := make([]ModifyResult, len(mods))
	for i, m := range mods {
		results[i] = ModifyResult{ExchangeID: m.ExchangeID, OK: true}
		if i < len(result.Statuses) && result.Statuses[i].Error != "" {
			results[i] = ModifyResult{ExchangeID: m.ExchangeID, OK: false, Err: fmt.Errorf("%s", result.Statuses[i].Error)}
		}
	}
	return results, nil
}

// CancelOrders cancels a specific set of resting orders by exchange id,
// used by the reconciliation loop to drop individual orphaned levels
// without disturbing the rest of the book.
func (c *Client) CancelOrders(ctx context.Context, symbol string, exchangeIDs []string) error {
	if len(exchangeIDs) == 0 {
		return nil
	}
	if c.dryRun {
		c.logger.Info("dry-run cancel orders", "symbol", symbol, "count", len(exchangeIDs))
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	cancels := make([]map[string]any, len(exchangeIDs))
	for i, id := range exchangeIDs {
		cancels[i] = map[string]any{"coin": symbol, "oid": id}
	}
	action := map[string]any{"type": "cancel", "cancels": cancels}
	return c.signedAction(ctx, "cancel_orders", action, &struct{}{})
}

// CancelAll cancels every open order for symbol.
func (c *Client) CancelAll(ctx context.Context, symbol string) error {
	if c.dryRun {
		c.logger.Info("dry-run cancel all", "symbol", symbol)
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	action := map[string]any{"type": "cancelByCoin", "coin": symbol}
	return c.signedAction(ctx, "cancel_all", action, &struct{}{})
}

// OpenOrders returns the venue's view of symbol's currently-resting orders.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]types.LiveOrder, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return nil, err
	}

	var result []struct {
		OID int64  `json:"oid"`
		Coin string `json:"coin"`
		Side string `json:"side"`
		Px   string `json:"limitPx"`
		Sz   string `json:"sz"`
		Cloid string `json:"cloid"`
		Timestamp int64 `json:"timestamp"`
	}
	if err := c.infoRequest(ctx, "openOrders", map[string]any{"user": c.auth.Address().Hex()}, &result); err != nil {
		return nil, err
	}

	var out []types.LiveOrder
	for _, o := range result {
		if o.Coin != symbol {
			continue
		}
		px, _ := decimal.NewFromString(o.Px)
		sz, _ := decimal.NewFromString(o.Sz)
		side := types.Buy
		if o.Side == "A" || o.Side == "SELL" {
			side = types.Sell
		}
		out = append(out, types.LiveOrder{
			ClientID:   o.Cloid,
			ExchangeID: fmt.Sprintf("%d", o.OID),
			Symbol:     o.Coin,
			Side:       side,
			Price:      px,
			Size:       sz,
			PlacedAt:   time.UnixMilli(o.Timestamp),
		})
	}
	return out, nil
}

// Position fetches signed net position size for symbol.
func (c *Client) Position(ctx context.Context, symbol string) (decimal.Decimal, error) {
	if err := c.rl.Book.Wait(ctx); err != nil {
		return decimal.Zero, err
	}

	var result struct {
		AssetPositions []struct {
			Position struct {
				Coin string `json:"coin"`
				Szi  string `json:"szi"`
			} `json:"position"`
		} `json:"assetPositions"`
	}
	if err := c.infoRequest(ctx, "clearinghouseState", map[string]any{"user": c.auth.Address().Hex()}, &result); err != nil {
		return decimal.Zero, err
	}

	for _, ap := range result.AssetPositions {
		if ap.Position.Coin == symbol {
			sz, err := decimal.NewFromString(ap.Position.Szi)
			if err != nil {
				return decimal.Zero, types.NewAdapterError(types.KindMismatch, "position", symbol, err)
			}
			return sz, nil
		}
	}
	return decimal.Zero, nil
}

// ArmDeadMansSwitch schedules a venue-side cancel-all that fires if no
// subsequent heartbeat re-arms it within timeout.
func (c *Client) ArmDeadMansSwitch(ctx context.Context, timeout time.Duration) error {
	if c.dryRun {
		return nil
	}
	if err := c.rl.Cancel.Wait(ctx); err != nil {
		return err
	}

	action := map[string]any{"type": "scheduleCancel", "time": time.Now().Add(timeout).UnixMilli()}
	return c.signedAction(ctx, "arm_dead_mans_switch", action, &struct{}{})
}

// Metadata fetches the venue's per-asset precision and validates the
// configured universe of symbols against it.
func (c *Client) Metadata(ctx context.Context) (map[string]types.Precision, error) {
	if err := c.rl.Metadata.Wait(ctx); err != nil {
		return nil, err
	}

	var result struct {
		Universe []struct {
			Name         string `json:"name"`
			SzDecimals   int32  `json:"szDecimals"`
		} `json:"universe"`
	}
	if err := c.infoRequest(ctx, "meta", nil, &result); err != nil {
		return nil, err
	}

	out := make(map[string]types.Precision, len(result.Universe))
	for _, u := range result.Universe {
		out[u.Name] = types.Precision{SizeDecimals: u.SzDecimals}
	}
	return out, nil
}

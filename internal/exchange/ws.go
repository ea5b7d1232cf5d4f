// ws.go implements the two WebSocket feeds for real-time venue data.
//
//   - Market feed (public): subscribes per symbol to "l2Book" and "trades"
//     channels on one multiplexed connection (one connection, many
//     symbols).
//
//   - User feed (authenticated): subscribes to "orderUpdates" and
//     "userFills" for the signer's address, a single private fills/orders
//     feed.
//
// Both feeds auto-reconnect with exponential backoff (1s -> 30s max) and
// re-subscribe to all tracked symbols on reconnection. A read deadline (90s)
// ensures silent server failures are detected within ~2 missed pings.
package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

const (
	pingInterval     = 50 * time.Second
	readTimeout      = 90 * time.Second
	maxReconnectWait = 30 * time.Second
	writeTimeout     = 10 * time.Second
	bookBufferSize   = 256
	eventBufferSize  = 64
)

// BookEvent is one l2Book push for a symbol.
type BookEvent struct {
	Symbol string
	Book   types.OrderBookSnapshot
}

// TradeEvent is one public trade print push.
type TradeEvent struct {
	Trade types.Trade
}

// FillPushEvent is one private fill notification.
type FillPushEvent struct {
	Fill types.FillEvent
}

// OrderPushEvent is one private order lifecycle notification (placed,
// cancelled, filled), keyed by exchange id.
type OrderPushEvent struct {
	ExchangeID string
	Status     string // "open", "filled", "cancelled", "rejected"
	Symbol     string
}

// WSFeed manages a single WebSocket connection (market or user channel).
// It handles connection lifecycle, subscription tracking, message routing,
// and automatic reconnection with exponential backoff.
type WSFeed struct {
	url         string
	conn        *websocket.Conn
	connMu      sync.Mutex
	auth        *Auth // nil for market channel, set for user channel
	channelType string

	subscribedMu sync.RWMutex
	subscribed   map[string]bool // symbols (market) — user channel has a single implicit subscription

	bookCh  chan BookEvent
	tradeCh chan TradeEvent
	fillCh  chan FillPushEvent
	orderCh chan OrderPushEvent

	logger *slog.Logger
}

// NewMarketFeed creates a WebSocket feed for public book/trade data.
func NewMarketFeed(wsURL string, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:         wsURL,
		channelType: "market",
		subscribed:  make(map[string]bool),
		bookCh:      make(chan BookEvent, bookBufferSize),
		tradeCh:     make(chan TradeEvent, eventBufferSize),
		logger:      logger.With("component", "ws_market"),
	}
}

// NewUserFeed creates a WebSocket feed for private fills and order updates.
func NewUserFeed(wsURL string, auth *Auth, logger *slog.Logger) *WSFeed {
	return &WSFeed{
		url:         wsURL,
		auth:        auth,
		channelType: "user",
		subscribed:  make(map[string]bool),
		fillCh:      make(chan FillPushEvent, eventBufferSize),
		orderCh:     make(chan OrderPushEvent, eventBufferSize),
		logger:      logger.With("component", "ws_user"),
	}
}

// BookEvents returns a read-only channel of book snapshot events.
func (f *WSFeed) BookEvents() <-chan BookEvent { return f.bookCh }

// TradeEvents returns a read-only channel of public trade events.
func (f *WSFeed) TradeEvents() <-chan TradeEvent { return f.tradeCh }

// FillEvents returns a read-only channel of private fill events.
func (f *WSFeed) FillEvents() <-chan FillPushEvent { return f.fillCh }

// OrderEvents returns a read-only channel of private order lifecycle events.
func (f *WSFeed) OrderEvents() <-chan OrderPushEvent { return f.orderCh }

// Run connects and maintains the WebSocket connection with auto-reconnect.
// Blocks until ctx is cancelled.
func (f *WSFeed) Run(ctx context.Context) error {
	backoff := time.Second

	for {
		err := f.connectAndRead(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}

		f.logger.Warn("websocket disconnected, reconnecting", "error", err, "backoff", backoff)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}

		backoff *= 2
		if backoff > maxReconnectWait {
			backoff = maxReconnectWait
		}
	}
}

// Subscribe adds symbols to the market feed's tracked set. A no-op on the
// user feed, which has a single implicit subscription to its own address.
func (f *WSFeed) Subscribe(symbols []string) error {
	if f.channelType != "market" {
		return nil
	}
	f.subscribedMu.Lock()
	for _, s := range symbols {
		f.subscribed[s] = true
	}
	f.subscribedMu.Unlock()

	for _, s := range symbols {
		if err := f.writeJSON(subscribeMsg(s, "l2Book")); err != nil {
			return err
		}
		if err := f.writeJSON(subscribeMsg(s, "trades")); err != nil {
			return err
		}
	}
	return nil
}

func subscribeMsg(coin, channel string) map[string]any {
	return map[string]any{
		"method": "subscribe",
		"subscription": map[string]any{
			"type": channel,
			"coin": coin,
		},
	}
}

// Close gracefully closes the connection.
func (f *WSFeed) Close() error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn != nil {
		return f.conn.Close()
	}
	return nil
}

func (f *WSFeed) connectAndRead(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	f.connMu.Lock()
	f.conn = conn
	f.connMu.Unlock()

	defer func() {
		f.connMu.Lock()
		conn.Close()
		f.conn = nil
		f.connMu.Unlock()
	}()

	if err := f.sendInitialSubscription(); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	f.logger.Info("websocket connected", "channel", f.channelType)

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		conn.SetReadDeadline(time.Now().Add(readTimeout))
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("read: %w", err)
		}

		f.dispatchMessage(msg)
	}
}

func (f *WSFeed) sendInitialSubscription() error {
	if f.channelType == "user" {
		for _, ch := range []string{"orderUpdates", "userFills"} {
			if err := f.writeJSON(map[string]any{
				"method": "subscribe",
				"subscription": map[string]any{
					"type": ch,
					"user": f.auth.Address().Hex(),
				},
			}); err != nil {
				return err
			}
		}
		return nil
	}

	f.subscribedMu.RLock()
	symbols := make([]string, 0, len(f.subscribed))
	for s := range f.subscribed {
		symbols = append(symbols, s)
	}
	f.subscribedMu.RUnlock()

	for _, s := range symbols {
		if err := f.writeJSON(subscribeMsg(s, "l2Book")); err != nil {
			return err
		}
		if err := f.writeJSON(subscribeMsg(s, "trades")); err != nil {
			return err
		}
	}
	return nil
}

func (f *WSFeed) dispatchMessage(data []byte) {
	var envelope struct {
		Channel string          `json:"channel"`
		Data    json.RawMessage `json:"data"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		f.logger.Debug("ignoring non-json ws message", "data", string(data))
		return
	}

	switch envelope.Channel {
	case "l2Book":
		f.dispatchBook(envelope.Data)
	case "trades":
		f.dispatchTrades(envelope.Data)
	case "userFills":
		f.dispatchFills(envelope.Data)
	case "orderUpdates":
		f.dispatchOrderUpdates(envelope.Data)
	default:
		f.logger.Debug("unknown ws channel", "channel", envelope.Channel)
	}
}

func (f *WSFeed) dispatchBook(data json.RawMessage) {
	var raw struct {
		Coin   string `json:"coin"`
		Levels [2][]struct {
			Px string `json:"px"`
			Sz string `json:"sz"`
		} `json:"levels"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		f.logger.Error("unmarshal l2Book event", "error", err)
		return
	}

	book := types.OrderBookSnapshot{Symbol: raw.Coin, Timestamp: time.Now()}
	for _, lvl := range raw.Levels[0] {
		px, _ := decimal.NewFromString(lvl.Px)
		sz, _ := decimal.NewFromString(lvl.Sz)
		book.Bids = append(book.Bids, types.PriceLevel{Price: px, Size: sz})
	}
	for _, lvl := range raw.Levels[1] {
		px, _ := decimal.NewFromString(lvl.Px)
		sz, _ := decimal.NewFromString(lvl.Sz)
		book.Asks = append(book.Asks, types.PriceLevel{Price: px, Size: sz})
	}

	select {
	case f.bookCh <- BookEvent{Symbol: raw.Coin, Book: book}:
	default:
		f.logger.Warn("book channel full, dropping event", "symbol", raw.Coin)
	}
}

func (f *WSFeed) dispatchTrades(data json.RawMessage) {
	var raw []struct {
		Coin string `json:"coin"`
		Side string `json:"side"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		f.logger.Error("unmarshal trades event", "error", err)
		return
	}

	for _, t := range raw {
		px, _ := decimal.NewFromString(t.Px)
		sz, _ := decimal.NewFromString(t.Sz)
		side := types.Buy
		if t.Side == "A" || t.Side == "SELL" {
			side = types.Sell
		}
		evt := TradeEvent{Trade: types.Trade{Symbol: t.Coin, Side: side, Price: px, Size: sz, Timestamp: time.UnixMilli(t.Time)}}
		select {
		case f.tradeCh <- evt:
		default:
			f.logger.Warn("trade channel full, dropping event", "symbol", t.Coin)
		}
	}
}

func (f *WSFeed) dispatchFills(data json.RawMessage) {
	var raw []struct {
		Coin string `json:"coin"`
		Side string `json:"side"`
		Px   string `json:"px"`
		Sz   string `json:"sz"`
		Fee  string `json:"fee"`
		Time int64  `json:"time"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		f.logger.Error("unmarshal userFills event", "error", err)
		return
	}

	for _, fl := range raw {
		px, _ := decimal.NewFromString(fl.Px)
		sz, _ := decimal.NewFromString(fl.Sz)
		fee, _ := decimal.NewFromString(fl.Fee)
		side := types.Buy
		if fl.Side == "A" || fl.Side == "SELL" {
			side = types.Sell
		}
		evt := FillPushEvent{Fill: types.FillEvent{Symbol: fl.Coin, Side: side, Price: px, Size: sz, Fee: fee, Timestamp: time.UnixMilli(fl.Time)}}
		select {
		case f.fillCh <- evt:
		default:
			f.logger.Warn("fill channel full, dropping event", "symbol", fl.Coin)
		}
	}
}

func (f *WSFeed) dispatchOrderUpdates(data json.RawMessage) {
	var raw []struct {
		OID    int64  `json:"oid"`
		Coin   string `json:"coin"`
		Status string `json:"status"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		f.logger.Error("unmarshal orderUpdates event", "error", err)
		return
	}

	for _, o := range raw {
		evt := OrderPushEvent{ExchangeID: fmt.Sprintf("%d", o.OID), Status: o.Status, Symbol: o.Coin}
		select {
		case f.orderCh <- evt:
		default:
			f.logger.Warn("order channel full, dropping event", "oid", o.OID)
		}
	}
}

func (f *WSFeed) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := f.writeMessage(websocket.TextMessage, []byte(`{"method":"ping"}`)); err != nil {
				f.logger.Warn("ping failed", "error", err)
				return
			}
		}
	}
}

func (f *WSFeed) writeJSON(v any) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteJSON(v)
}

func (f *WSFeed) writeMessage(msgType int, data []byte) error {
	f.connMu.Lock()
	defer f.connMu.Unlock()
	if f.conn == nil {
		return fmt.Errorf("websocket not connected")
	}
	f.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return f.conn.WriteMessage(msgType, data)
}

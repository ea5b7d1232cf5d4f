// Package order implements the OrderManager: it reconciles a desired Quote
// against the set of currently live orders and emits a minimal batch of
// place/modify/cancel intents, using tolerance-based dedup across multiple
// levels, a batched modify path, a dead-man-switch cadence, and monotonic
// client-id idempotence.
package order

import (
	"fmt"
	"math"
	"sync"

	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

// Manager tracks live orders for one asset and produces reconciliation
// intents each tick.
type Manager struct {
	mu       sync.Mutex
	symbol   string
	live     map[string]types.LiveOrder // keyed by "side:level"
	tickSeq  uint64
	lastArm  uint64 // tick_seq at which the dead-man switch was last armed
}

// New creates an OrderManager for the given symbol.
func New(symbol string) *Manager {
	return &Manager{symbol: symbol, live: make(map[string]types.LiveOrder)}
}

func liveKey(side types.Side, level int) string {
	return fmt.Sprintf("%s:%d", side, level)
}

// ClientID derives a monotonic idempotence key from (asset, level, side,
// tick_seq).
func ClientID(symbol string, side types.Side, level int, tickSeq uint64) string {
	return fmt.Sprintf("%s-%s-%d-%d", symbol, side, level, tickSeq)
}

// Reconcile rounds the desired quote, compares it to live orders, and
// returns the minimal set of intents needed to converge: round,
// match-or-place, dedup-within-threshold, prefer-modify-over-cancel-place,
// and cancel orphans. The caller is responsible for chunking the result
// into venue-sized batches (see strategy.StrategyLoop.submitIntents).
func (m *Manager) Reconcile(q types.Quote, params types.QuoteParams, prec types.Precision) []types.OrderIntent {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tickSeq++
	var intents []types.OrderIntent
	matched := make(map[string]bool, len(m.live))

	for _, lvl := range q.Levels {
		bidF, _ := lvl.BidPrice.Float64()
		bidSzF, _ := lvl.BidSize.Float64()
		askF, _ := lvl.AskPrice.Float64()
		askSzF, _ := lvl.AskSize.Float64()
		bidPrice, bidSize := RoundPrice(bidF, prec), RoundSize(bidSzF, prec)
		askPrice, askSize := RoundPrice(askF, prec), RoundSize(askSzF, prec)
		if !q.SuppressBid {
			if in := m.reconcileSideLocked(types.Buy, lvl.Level, bidPrice, bidSize, params, matched); in.Kind != types.IntentNone {
				intents = append(intents, in)
			}
		}
		if !q.SuppressAsk {
			if in := m.reconcileSideLocked(types.Sell, lvl.Level, askPrice, askSize, params, matched); in.Kind != types.IntentNone {
				intents = append(intents, in)
			}
		}
	}

	// Any live order not touched this tick (including both sides when
	// fully suppressed) has no corresponding desired level: cancel it.
	for key, lo := range m.live {
		if matched[key] {
			continue
		}
		intents = append(intents, types.OrderIntent{
			Kind:       types.IntentCancel,
			Symbol:     m.symbol,
			Side:       lo.Side,
			Level:      lo.Level,
			ExchangeID: lo.ExchangeID,
			ClientID:   lo.ClientID,
		})
	}

	return intents
}

// reconcileSideLocked compares one (side, level) against its live order and
// returns the action. A zero-Kind return with matched set true means "keep
// as-is" (dedup). Must be called with mu held.
func (m *Manager) reconcileSideLocked(side types.Side, level int, price, size decimal.Decimal, params types.QuoteParams, matched map[string]bool) types.OrderIntent {
	key := liveKey(side, level)

	if size.IsZero() {
		// Rounded size zeroed out: treat this level as suppressed.
		if lo, ok := m.live[key]; ok {
			delete(m.live, key)
			return types.OrderIntent{Kind: types.IntentCancel, Symbol: m.symbol, Side: side, Level: level, ExchangeID: lo.ExchangeID, ClientID: lo.ClientID}
		}
		matched[key] = true
		return types.OrderIntent{Kind: types.IntentNone}
	}

	existing, ok := m.live[key]
	if !ok {
		cid := ClientID(m.symbol, side, level, m.tickSeq)
		m.live[key] = types.LiveOrder{ClientID: cid, Symbol: m.symbol, Side: side, Level: level, Price: price, Size: size}
		matched[key] = true
		return types.OrderIntent{Kind: types.IntentPlace, Symbol: m.symbol, Side: side, Level: level, Price: price, Size: size, ClientID: cid}
	}

	if withinThreshold(existing.Price, price, params.ModifyThresholdBp) {
		matched[key] = true
		return types.OrderIntent{Kind: types.IntentNone}
	}

	cid := ClientID(m.symbol, side, level, m.tickSeq)
	updated := existing
	updated.Price = price
	updated.Size = size
	updated.ClientID = cid
	m.live[key] = updated
	matched[key] = true
	return types.OrderIntent{
		Kind: types.IntentModify, Symbol: m.symbol, Side: side, Level: level,
		Price: price, Size: size, ClientID: cid, ExchangeID: existing.ExchangeID,
	}
}

func withinThreshold(oldPrice, newPrice decimal.Decimal, thresholdBps float64) bool {
	if oldPrice.IsZero() {
		return false
	}
	diff := newPrice.Sub(oldPrice).Abs()
	bps := diff.Div(oldPrice).Mul(decimal.NewFromInt(10000))
	f, _ := bps.Float64()
	return f < thresholdBps
}

// ConfirmExchangeID records the venue-assigned id once a Place intent
// succeeds, so future Modify/Cancel intents reference it.
func (m *Manager) ConfirmExchangeID(side types.Side, level int, exchangeID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := liveKey(side, level)
	if lo, ok := m.live[key]; ok {
		lo.ExchangeID = exchangeID
		m.live[key] = lo
	}
}

// Remove drops a live order, e.g. after a fill or confirmed cancel.
func (m *Manager) Remove(side types.Side, level int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.live, liveKey(side, level))
}

// ClearAll drops every locally tracked live order, used after a venue-side
// CancelAll so the next Reconcile treats every level as a fresh place.
func (m *Manager) ClearAll() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.live = make(map[string]types.LiveOrder)
}

// LiveOrders returns a snapshot of all currently tracked live orders.
func (m *Manager) LiveOrders() []types.LiveOrder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]types.LiveOrder, 0, len(m.live))
	for _, lo := range m.live {
		out = append(out, lo)
	}
	return out
}

// ShouldArmDeadMansSwitch reports whether the dead-man switch is due to be
// re-armed, given a cadence expressed in ticks.
func (m *Manager) ShouldArmDeadMansSwitch(cadenceTicks uint64) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.tickSeq-m.lastArm < cadenceTicks {
		return false
	}
	m.lastArm = m.tickSeq
	return true
}

// RoundPrice rounds half-away-from-zero to the venue's price_decimals and
// caps the result to 5 significant figures.
func RoundPrice(price float64, prec types.Precision) decimal.Decimal {
	d := decimal.NewFromFloat(price).Round(prec.PriceDecimals())
	return capSignificantFigures(d, 5)
}

// RoundSize rounds half-away-from-zero to the venue's size_decimals.
func RoundSize(size float64, prec types.Precision) decimal.Decimal {
	if size < 0 {
		size = 0
	}
	return decimal.NewFromFloat(size).Round(prec.SizeDecimals)
}

func capSignificantFigures(d decimal.Decimal, sig int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	f, _ := d.Abs().Float64()
	if f <= 0 {
		return d
	}
	exp := int32(math.Floor(math.Log10(f))) + 1
	scale := sig - exp
	return d.Round(scale)
}

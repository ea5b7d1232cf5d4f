// Package inventory tracks signed net position, FIFO average entry price,
// and realised/unrealised PnL for one asset, the natural shape for a
// perpetual future position (long/short on a single signed axis rather
// than a two-sided outcome pair).
package inventory

import (
	"math"
	"sync"
	"time"

	"hlmaker/pkg/types"
)

// Position is the serialisable position snapshot. It is not persisted;
// on restart the position is recovered from the venue.
type Position struct {
	NetPosition     float64   `json:"net_position"`
	AvgEntryPrice   float64   `json:"avg_entry_price"`
	RealizedPnL     float64   `json:"realized_pnl"`
	TotalFees       float64   `json:"total_fees"` // positive = cost, negative = rebate
	CumulativeVol   float64   `json:"cumulative_volume"`
	FillsBuy        int       `json:"fills_buy"`
	FillsSell       int       `json:"fills_sell"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	LastUpdated     time.Time `json:"last_updated"`
}

// Inventory tracks the position for one asset. Thread-safe via RWMutex so
// the StrategyLoop can read NetPosition while a concurrent fill callback
// records a new execution.
type Inventory struct {
	mu     sync.RWMutex
	symbol string
	pos    Position
}

// New creates an inventory tracker for the given symbol.
func New(symbol string) *Inventory {
	return &Inventory{symbol: symbol}
}

// RecordFill applies a fill: updates net_position, recomputes avg_entry_price
// FIFO-style against the opposing direction, realises PnL on reducing fills,
// and accumulates fees using the positive-is-cost convention.
func (inv *Inventory) RecordFill(fill types.FillEvent) {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	size := mustPositive(fill.Size)
	price := mustFloat(fill.Price)
	fee := mustFloat(fill.Fee)

	signedSize := size
	if fill.Side == types.Sell {
		signedSize = -size
	}

	switch {
	case inv.pos.NetPosition == 0, sameSign(inv.pos.NetPosition, signedSize):
		// Extending (or opening) a position in the same direction.
		totalCost := inv.pos.AvgEntryPrice*math.Abs(inv.pos.NetPosition) + price*size
		inv.pos.NetPosition += signedSize
		if inv.pos.NetPosition != 0 {
			inv.pos.AvgEntryPrice = totalCost / math.Abs(inv.pos.NetPosition)
		}

	default:
		// Reducing (possibly flipping) the position: realise PnL on the
		// portion that closes against the existing avg entry.
		closing := math.Min(size, math.Abs(inv.pos.NetPosition))
		if inv.pos.NetPosition > 0 {
			inv.pos.RealizedPnL += (price - inv.pos.AvgEntryPrice) * closing
		} else {
			inv.pos.RealizedPnL += (inv.pos.AvgEntryPrice - price) * closing
		}
		inv.pos.NetPosition += signedSize

		if inv.pos.NetPosition == 0 {
			inv.pos.AvgEntryPrice = 0
			inv.pos.UnrealizedPnL = 0
		} else if size > closing {
			// Flipped through zero: the remainder opens a fresh position
			// at the fill price.
			inv.pos.AvgEntryPrice = price
		}
	}

	inv.pos.TotalFees += fee
	inv.pos.CumulativeVol += size
	if fill.Side == types.Buy {
		inv.pos.FillsBuy++
	} else {
		inv.pos.FillsSell++
	}
	inv.pos.LastUpdated = fill.Timestamp
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func mustPositive(d interface{ Float64() (float64, bool) }) float64 {
	f, _ := d.Float64()
	if f < 0 {
		return -f
	}
	return f
}

func mustFloat(d interface{ Float64() (float64, bool) }) float64 {
	f, _ := d.Float64()
	return f
}

// MarkToMarket recomputes unrealised PnL at the given mid price and returns
// it. If net_position is 0, unrealised PnL is exactly 0.
func (inv *Inventory) MarkToMarket(mid float64) float64 {
	inv.mu.Lock()
	defer inv.mu.Unlock()

	if inv.pos.NetPosition == 0 {
		inv.pos.UnrealizedPnL = 0
		return 0
	}
	inv.pos.UnrealizedPnL = (mid - inv.pos.AvgEntryPrice) * inv.pos.NetPosition
	return inv.pos.UnrealizedPnL
}

// NetPnL returns realised PnL minus total fees (fee sign: positive = cost).
func (inv *Inventory) NetPnL() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.pos.RealizedPnL - inv.pos.TotalFees
}

// Snapshot returns a copy of the current position.
func (inv *Inventory) Snapshot() Position {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.pos
}

// NetPosition returns the signed position size.
func (inv *Inventory) NetPosition() float64 {
	inv.mu.RLock()
	defer inv.mu.RUnlock()
	return inv.pos.NetPosition
}

// SetPosition replaces the tracked position (used to adopt the venue's
// position at startup and after a position-mismatch reset).
func (inv *Inventory) SetPosition(pos Position) {
	inv.mu.Lock()
	defer inv.mu.Unlock()
	inv.pos = pos
}

// Package types defines shared data structures used across all packages.
//
// This package is the common vocabulary for the market maker — quote
// parameters, risk limits, orders, fills, order book snapshots, and
// WebSocket event payloads. It has no dependencies on internal packages,
// so it can be imported by any layer.
package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// ————————————————————————————————————————————————————————————————————————
// Core enums
// ————————————————————————————————————————————————————————————————————————

// Side represents the direction of an order or fill.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// Opposite returns the other side.
func (s Side) Opposite() Side {
	if s == Buy {
		return Sell
	}
	return Buy
}

// OrderType enumerates the supported order lifecycles.
type OrderType string

const (
	OrderTypeGTC         OrderType = "GTC"          // resting until filled or cancelled
	OrderTypeALO         OrderType = "ALO"          // add-liquidity-only (post-only)
	OrderTypeIOC         OrderType = "IOC"          // immediate-or-cancel
)

// RiskState is the gating state produced by the RiskSupervisor.
type RiskState int

const (
	Safe RiskState = iota
	PositionLimit
	CircuitBreak
)

func (s RiskState) String() string {
	switch s {
	case PositionLimit:
		return "POSITION_LIMIT"
	case CircuitBreak:
		return "CIRCUIT_BREAK"
	default:
		return "SAFE"
	}
}

// ————————————————————————————————————————————————————————————————————————
// Venue precision
// ————————————————————————————————————————————————————————————————————————

// Precision captures a venue's per-asset rounding rules: size_decimals is
// set per asset in the YAML config; price_decimals derives from
// it, and every emitted price additionally respects a 5-significant-figure
// cap (the Hyperliquid-class convention: price_decimals = 6 - size_decimals
// for perpetuals, with prices further capped to 5 sig figs).
type Precision struct {
	SizeDecimals int32
}

// PriceDecimals derives the price rounding precision from SizeDecimals.
func (p Precision) PriceDecimals() int32 {
	d := int32(6) - p.SizeDecimals
	if d < 0 {
		return 0
	}
	return d
}

// ————————————————————————————————————————————————————————————————————————
// Quote parameters and risk limits
// ————————————————————————————————————————————————————————————————————————

// QuoteParams tunes the quote pricer for one asset. Treated as immutable:
// AutoTuner and hot-reload both produce a new QuoteParams value (a copy)
// rather than mutating one in place, so a StrategyLoop can swap params
// between ticks without locking.
type QuoteParams struct {
	BaseSpreadBps     float64
	VolMultiplier     float64
	InventorySkew     float64
	OrderSizeUSD      float64
	NumLevels         int
	LevelSpacingBps   float64
	BiasStrength      float64
	MinSpreadBps      float64
	MaxSpreadBps      float64
	FeeAware          bool
	MakerFeeBps       float64
	ModifyThresholdBp float64
}

// Validate enforces the basic ordering invariants on a parameter set.
func (p QuoteParams) Validate() error {
	if p.MinSpreadBps > p.BaseSpreadBps || p.BaseSpreadBps > p.MaxSpreadBps {
		return errInvalidSpreadBounds
	}
	if p.NumLevels < 1 {
		return errInvalidNumLevels
	}
	return nil
}

// QuoteParamsPatch is a sparse set of overrides applied via Replace.
type QuoteParamsPatch struct {
	BaseSpreadBps *float64
	InventorySkew *float64
	OrderSizeUSD  *float64
	NumLevels     *int
}

// Replace returns a copy of p with any non-nil patch field applied.
func (p QuoteParams) Replace(patch QuoteParamsPatch) QuoteParams {
	out := p
	if patch.BaseSpreadBps != nil {
		out.BaseSpreadBps = *patch.BaseSpreadBps
	}
	if patch.InventorySkew != nil {
		out.InventorySkew = *patch.InventorySkew
	}
	if patch.OrderSizeUSD != nil {
		out.OrderSizeUSD = *patch.OrderSizeUSD
	}
	if patch.NumLevels != nil {
		out.NumLevels = *patch.NumLevels
	}
	return out
}

// RiskLimits are the hard per-asset bounds enforced by the RiskSupervisor.
type RiskLimits struct {
	MaxPositionUSD   float64
	MaxDailyLossFrac float64 // fraction of allocated capital, e.g. 0.05
	MaxOpenOrders    int
	CooldownSeconds  int
	APIErrorThresh   int
	StalenessTimeout time.Duration
}

// AssetConfig is the configuration bundle for one traded asset. It is
// replaced wholesale, never mutated in place, whenever hot-reload or the
// AutoTuner produces a new value.
type AssetConfig struct {
	Symbol                  string
	Precision               Precision
	Params                  QuoteParams
	Limits                  RiskLimits
	Capital                 float64
	Compound                bool
	Adaptive                AdaptiveConfig
	ToxicityThrottleEnabled bool
}

// AdaptiveConfig tunes the AdaptiveStrategy variant: volatility-regime
// bucketing of base_spread/num_levels, and an inventory-decay bias that
// pushes quotes toward flattening a position held too long without a
// round-trip.
type AdaptiveConfig struct {
	Enabled                  bool
	VolRegimeLowBps          float64
	VolRegimeHighBps         float64
	LowRegimeSpreadMult      float64
	HighRegimeSpreadMult     float64
	LowRegimeLevels          int
	HighRegimeLevels         int
	InventoryDecayThreshold  time.Duration
	InventoryDecayMaxBiasBps float64
	TargetFillRate           float64
	DrawdownThresholdFrac    float64
}

// ————————————————————————————————————————————————————————————————————————
// Quotes
// ————————————————————————————————————————————————————————————————————————

// QuoteLevel is one bid/ask pair at a given level index, 0 = innermost.
type QuoteLevel struct {
	Level    int
	BidPrice decimal.Decimal
	BidSize  decimal.Decimal
	AskPrice decimal.Decimal
	AskSize  decimal.Decimal
}

// Quote is the multi-level output of the QuoteEngine for one tick.
type Quote struct {
	Symbol       string
	Levels       []QuoteLevel
	SuppressBid  bool
	SuppressAsk  bool
	GeneratedAt  time.Time
	Reservation  decimal.Decimal
	HalfSpreadBp float64
}

// ————————————————————————————————————————————————————————————————————————
// Orders and fills
// ————————————————————————————————————————————————————————————————————————

// IntentKind is the reconciliation action the OrderManager decided on.
type IntentKind int

const (
	IntentNone IntentKind = iota
	IntentPlace
	IntentModify
	IntentCancel
)

// OrderIntent describes one reconciliation action for a (side, level).
type OrderIntent struct {
	Kind       IntentKind
	Symbol     string
	Side       Side
	Level      int
	Price      decimal.Decimal
	Size       decimal.Decimal
	ClientID   string
	ExchangeID string // set for Modify/Cancel of an existing order
}

// LiveOrder is a resting order the OrderManager is tracking locally.
type LiveOrder struct {
	ClientID   string
	ExchangeID string
	Symbol     string
	Side       Side
	Level      int
	Price      decimal.Decimal
	Size       decimal.Decimal
	PlacedAt   time.Time
}

// FillEvent is one execution, from a streamed fill or a reconciliation diff.
type FillEvent struct {
	Symbol    string
	Side      Side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Fee       decimal.Decimal // positive = cost paid, negative = rebate earned
	Timestamp time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Market data
// ————————————————————————————————————————————————————————————————————————

// PriceLevel is a single bid or ask level in the order book.
type PriceLevel struct {
	Price decimal.Decimal
	Size  decimal.Decimal
}

// OrderBookSnapshot is a point-in-time view of one asset's order book.
type OrderBookSnapshot struct {
	Symbol    string
	Bids      []PriceLevel // descending by price
	Asks      []PriceLevel // ascending by price
	Timestamp time.Time
}

// BestBidAsk returns the top of book, or zero values if one side is empty.
func (b OrderBookSnapshot) BestBidAsk() (bid, ask decimal.Decimal, ok bool) {
	if len(b.Bids) == 0 || len(b.Asks) == 0 {
		return decimal.Zero, decimal.Zero, false
	}
	return b.Bids[0].Price, b.Asks[0].Price, true
}

// MidPrice returns (bestBid+bestAsk)/2, or false if the book is one-sided.
func (b OrderBookSnapshot) MidPrice() (decimal.Decimal, bool) {
	bid, ask, ok := b.BestBidAsk()
	if !ok {
		return decimal.Zero, false
	}
	return bid.Add(ask).Div(decimal.NewFromInt(2)), true
}

// Trade is a single public trade print, as returned by RecentTrades and
// carried by the market feed's TradeEvent.
type Trade struct {
	Symbol    string
	Side      Side // aggressor side
	Price     decimal.Decimal
	Size      decimal.Decimal
	Timestamp time.Time
}

// ————————————————————————————————————————————————————————————————————————
// Rolling metrics and allocator state
// ————————————————————————————————————————————————————————————————————————

// MetricsRow is one persisted daily summary row per asset.
type MetricsRow struct {
	DayBucketStart    time.Time
	GrossPnL          float64
	Fees              float64
	NetPnL            float64
	FillsBuy          int
	FillsSell         int
	MaxDrawdown       float64
	InventoryAvg      float64
	InventoryMax      float64
	QuotedSpreadBps   float64
	CapturedSpreadBps float64
	ToxicityEMA       float64
}

// RiskMultipliers scale size/spread/max-position for one asset, produced by
// the MetaSupervisor's zone assignment.
type RiskMultipliers struct {
	Size   float64
	Spread float64
	MaxPos float64
}

// AssetAllocation is one asset's entry in an AllocatorState snapshot.
type AssetAllocation struct {
	Symbol        string
	BaseCapital   float64
	ActiveCapital float64
	Multipliers   RiskMultipliers
}

// AllocatorState is the MetaSupervisor's output snapshot, read by every
// StrategyLoop at hot-reload time.
type AllocatorState struct {
	GeneratedAt time.Time
	Assets      map[string]AssetAllocation
}

var (
	errInvalidSpreadBounds = sentinelError("quote params: min_spread <= base_spread <= max_spread violated")
	errInvalidNumLevels    = sentinelError("quote params: num_levels must be >= 1")
)

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

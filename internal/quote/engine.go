// Package quote implements the QuoteEngine: it composes estimator outputs
// with a configured QuoteParams into a multi-level Quote, using an
// Avellaneda-Stoikov-style half-spread/inventory-skew/directional-shift
// formula extended to multiple price levels and a signed net position.
package quote

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

// Inputs bundles the estimator outputs and market state the engine needs
// for one tick.
type Inputs struct {
	Mid            float64
	VolatilityBps  float64
	NetPosition    float64 // signed, in contracts
	MaxPositionUSD float64
	BookImbalance  float64 // unused directly by the price formula, carried for diagnostics/logging
	DirectionalSig int     // -1, 0, +1
	Toxicity       float64 // [0, 1]
	BestBidBps     float64 // best bid, in price units, for the fee-aware gate
	BestAskBps     float64 // best ask, in price units
}

// Engine computes multi-level quotes for one asset.
type Engine struct {
	symbol string
}

// New creates a QuoteEngine for the given symbol.
func New(symbol string) *Engine {
	return &Engine{symbol: symbol}
}

// levelSplit returns the deterministic, normalised per-level size fraction
// for the given number of levels. For num_levels == 3 this reproduces the
// conventional 40/35/25 split; for any other level count this engine uses
// a linear decay
// (innermost level gets the largest share) normalised to sum to 1 — level i
// gets weight (n - i), normalised by the triangular number n(n+1)/2.
func levelSplit(numLevels int) []float64 {
	if numLevels == 3 {
		return []float64{0.40, 0.35, 0.25}
	}
	n := numLevels
	if n < 1 {
		n = 1
	}
	denom := float64(n*(n+1)) / 2
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = float64(n-i) / denom
	}
	return out
}

func toxicityMultiplier(tau float64) float64 {
	switch {
	case tau > 0.6:
		return 1.5
	case tau > 0.4:
		return 1.25
	case tau > 0 && tau < 0.2:
		return 0.9
	default:
		return 1.0
	}
}

// inventoryRamp linearly ramps from 1.0 to 1.6 as |inv|/max moves from 0.6
// to 1.0, clamped at the ends.
func inventoryRamp(utilisation float64) float64 {
	switch {
	case utilisation <= 0.6:
		return 1.0
	case utilisation >= 1.0:
		return 1.6
	default:
		return 1.0 + 0.6*(utilisation-0.6)/0.4
	}
}

// Compute produces a Quote for one tick. It never errors: unfavourable
// conditions are expressed by suppressing one or both sides.
func (e *Engine) Compute(params types.QuoteParams, prec types.Precision, in Inputs, now time.Time) types.Quote {
	q := types.Quote{Symbol: e.symbol, GeneratedAt: now}

	if in.Toxicity > 0.8 {
		q.SuppressBid = true
		q.SuppressAsk = true
		return q
	}

	invPenaltyBps := 0.0 // folded into the skew term below, kept separate from the spread calc
	rawSpread := params.BaseSpreadBps + params.VolMultiplier*in.VolatilityBps + invPenaltyBps
	if rawSpread < params.MinSpreadBps {
		rawSpread = params.MinSpreadBps
	}
	halfSpreadBps := rawSpread * toxicityMultiplier(in.Toxicity)
	if halfSpreadBps < params.MinSpreadBps {
		halfSpreadBps = params.MinSpreadBps
	}
	if halfSpreadBps > params.MaxSpreadBps {
		halfSpreadBps = params.MaxSpreadBps
	}
	q.HalfSpreadBp = halfSpreadBps

	halfSpreadPrice := in.Mid * halfSpreadBps / 10000.0

	var utilisation float64
	if in.MaxPositionUSD > 0 {
		utilisation = math.Abs(in.NetPosition) / in.MaxPositionUSD
	}
	ramp := inventoryRamp(utilisation)
	invSkew := math.Min(utilisation, 1.0) * params.InventorySkew * (in.VolatilityBps / 10000.0) * in.Mid
	if in.NetPosition < 0 {
		invSkew = -invSkew
	}
	invSkew *= ramp

	directionalShift := float64(in.DirectionalSig) * params.BiasStrength * halfSpreadPrice

	q.Reservation = decimal.NewFromFloat(in.Mid - invSkew)

	if in.MaxPositionUSD > 0 {
		if in.NetPosition > 0.6*in.MaxPositionUSD {
			q.SuppressBid = true
		}
		if in.NetPosition < -0.6*in.MaxPositionUSD {
			q.SuppressAsk = true
		}
	}

	if params.FeeAware {
		marketSpreadBps := 0.0
		if in.Mid > 0 && in.BestAskBps > in.BestBidBps {
			marketSpreadBps = (in.BestAskBps - in.BestBidBps) / in.Mid * 10000.0
		}
		if marketSpreadBps < 2*params.MakerFeeBps {
			q.SuppressBid = true
			q.SuppressAsk = true
		}
	}

	split := levelSplit(params.NumLevels)
	levelSpacingPrice := in.Mid * params.LevelSpacingBps / 10000.0

	priceDecimals := prec.PriceDecimals()
	sizeDecimals := prec.SizeDecimals

	levels := make([]types.QuoteLevel, len(split))
	for i, frac := range split {
		bidPrice := in.Mid - halfSpreadPrice - float64(i)*levelSpacingPrice - invSkew + directionalShift
		askPrice := in.Mid + halfSpreadPrice + float64(i)*levelSpacingPrice - invSkew + directionalShift

		notional := params.OrderSizeUSD * frac
		var bidSize, askSize float64
		if in.Mid > 0 {
			bidSize = notional / bidPrice
			askSize = notional / askPrice
		}

		levels[i] = types.QuoteLevel{
			Level:    i,
			BidPrice: roundPrice(bidPrice, priceDecimals),
			BidSize:  roundSize(bidSize, sizeDecimals),
			AskPrice: roundPrice(askPrice, priceDecimals),
			AskSize:  roundSize(askSize, sizeDecimals),
		}
	}
	q.Levels = levels

	return q
}

// roundPrice rounds half-away-from-zero to priceDecimals and further caps
// the result to 5 significant figures, per the venue convention.
func roundPrice(price float64, priceDecimals int32) decimal.Decimal {
	d := decimal.NewFromFloat(price).Round(priceDecimals)
	return capSignificantFigures(d, 5)
}

func roundSize(size float64, sizeDecimals int32) decimal.Decimal {
	if size < 0 {
		size = 0
	}
	return decimal.NewFromFloat(size).Round(sizeDecimals)
}

// capSignificantFigures re-rounds d so that it carries at most sig
// significant figures, matching the venue's 5-sig-fig price rule.
func capSignificantFigures(d decimal.Decimal, sig int32) decimal.Decimal {
	if d.IsZero() {
		return d
	}
	abs := d.Abs()
	exp := int32(math.Floor(math.Log10(mustFloat(abs)))) + 1
	scale := sig - exp
	return d.Round(scale)
}

func mustFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	if f <= 0 {
		return 1
	}
	return f
}

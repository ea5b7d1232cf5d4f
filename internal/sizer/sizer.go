// Package sizer implements the DynamicSizer: it scales order_size_usd by a
// product of bounded factors derived from the current volatility regime,
// fill rate, inventory utilisation, toxicity, and drawdown — five
// independent multiplicative factors combined into one clamped size
// multiplier.
package sizer

import "math"

// Regime is the classified volatility bucket.
type Regime int

const (
	RegimeLow Regime = iota
	RegimeMedium
	RegimeHigh
)

// Inputs bundles the rolling signals the sizer consumes each tick.
type Inputs struct {
	Regime                  Regime
	FillRate                float64 // fills per unit time, normalised to a target
	TargetFillRate          float64
	InventoryUtil           float64 // |net_position| / max_position, [0, 1]
	ToxicityEMA             float64
	ToxicityThrottleEnabled bool // gates toxicityFactor; disabled asset-level via --toxicity=false
	Drawdown7dFraction      float64
	DrawdownThreshold       float64
}

// Sizer computes the effective order-size multiplier.
type Sizer struct {
	MinOrderUSD float64
	MaxOrderUSD float64
}

// New creates a DynamicSizer with the given hard USD bounds.
func New(minUSD, maxUSD float64) *Sizer {
	return &Sizer{MinOrderUSD: minUSD, MaxOrderUSD: maxUSD}
}

func regimeFactor(r Regime) float64 {
	switch r {
	case RegimeLow:
		return 1.2
	case RegimeHigh:
		return 0.7
	default:
		return 1.0
	}
}

// fillRateFactor moves toward 1.2 when under target, toward 0.8 when over.
func fillRateFactor(in Inputs) float64 {
	if in.TargetFillRate <= 0 {
		return 1.0
	}
	ratio := in.FillRate / in.TargetFillRate
	switch {
	case ratio < 1.0:
		return clamp(1.0+(1.0-ratio)*0.2, 0.8, 1.2)
	default:
		return clamp(1.0-(ratio-1.0)*0.2, 0.8, 1.2)
	}
}

func inventoryFactor(util float64) float64 {
	if util < 0.7 {
		return 1.0
	}
	// Ramp from 1.0 at 0.7 to 0.5 at 1.0.
	t := clamp((util-0.7)/0.3, 0, 1)
	return 1.0 - 0.5*t
}

func toxicityFactor(in Inputs) float64 {
	if !in.ToxicityThrottleEnabled || in.ToxicityEMA <= 0.5 {
		return 1.0
	}
	t := clamp((in.ToxicityEMA-0.5)/0.5, 0, 1)
	return 1.0 - 0.4*t
}

func drawdownFactor(in Inputs) float64 {
	if in.DrawdownThreshold <= 0 || in.Drawdown7dFraction <= in.DrawdownThreshold {
		return 1.0
	}
	t := clamp((in.Drawdown7dFraction-in.DrawdownThreshold)/in.DrawdownThreshold, 0, 1)
	return 1.0 - 0.6*t // ramps toward 0.4
}

// Multiplier computes the product of all bounded factors, clamped to
// [0.25, 1.5] before the hard USD bounds are applied by Apply.
func (s *Sizer) Multiplier(in Inputs) float64 {
	m := regimeFactor(in.Regime) * fillRateFactor(in) * inventoryFactor(in.InventoryUtil) *
		toxicityFactor(in) * drawdownFactor(in)
	return clamp(m, 0.25, 1.5)
}

// Apply scales baseOrderUSD by the current multiplier and clamps the result
// to [MinOrderUSD, MaxOrderUSD].
func (s *Sizer) Apply(baseOrderUSD float64, in Inputs) float64 {
	scaled := baseOrderUSD * s.Multiplier(in)
	return clamp(scaled, s.MinOrderUSD, s.MaxOrderUSD)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

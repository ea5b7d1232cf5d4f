// Package estimator computes the streaming signals the QuoteEngine
// consumes: realised volatility, order-book imbalance, a directional trend
// signal, and post-fill toxicity. Each estimator is a small piece of EMA or
// Kalman state updated once per tick; none of them touch the network.
package estimator

import (
	"math"
	"time"
)

// Volatility is an EMA of absolute log-returns, expressed in basis points.
// The half-life controls how fast the estimate forgets old observations.
type Volatility struct {
	halfLife time.Duration
	lambda   float64 // not written; Update derives its decay from elapsed time
	ema      float64
	lastMid  float64
	lastTime time.Time
	primed   bool
}

// NewVolatility creates a volatility estimator with the given EMA half-life.
func NewVolatility(halfLife time.Duration) *Volatility {
	return &Volatility{halfLife: halfLife}
}

// Update feeds a new mid-price observation and returns the current estimate
// in bps. The first observation only seeds state and returns 0.
func (v *Volatility) Update(mid float64, now time.Time) float64 {
	if !v.primed {
		v.lastMid = mid
		v.lastTime = now
		v.primed = true
		return v.ema
	}
	if mid <= 0 || v.lastMid <= 0 {
		v.lastMid = mid
		v.lastTime = now
		return v.ema
	}

	logRet := math.Abs(math.Log(mid / v.lastMid))
	elapsed := now.Sub(v.lastTime)
	v.lastMid = mid
	v.lastTime = now

	alpha := decayFactor(elapsed, v.halfLife)
	v.ema = alpha*v.ema + (1-alpha)*logRet*10000 // bps

	return v.ema
}

// BPS returns the current estimate without updating state.
func (v *Volatility) BPS() float64 { return v.ema }

// decayFactor returns the EMA retention weight for an elapsed interval given
// a half-life: weight = 0.5^(elapsed/halfLife).
func decayFactor(elapsed, halfLife time.Duration) float64 {
	if halfLife <= 0 {
		return 0
	}
	ratio := float64(elapsed) / float64(halfLife)
	return math.Pow(0.5, ratio)
}

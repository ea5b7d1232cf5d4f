// Package autotune implements the AutoTuner: it watches rolling 4h-window
// performance metrics and nudges QuoteParams within hard bounds, applying
// at most one adjustment per window with a drift guard that resets any
// parameter that has wandered too far from its configured default, using
// the same rolling-window/cooldown bookkeeping shape as the other
// estimators in this module, extended from a single spread multiplier to
// a full parameter-tuning loop.
package autotune

import (
	"time"

	"hlmaker/pkg/types"
)

// WindowMetrics is the rolling-window performance summary the tuner reads.
type WindowMetrics struct {
	Sharpe              float64
	FillRate            float64 // fraction of quoted time with at least one fill
	InventoryUtilisation float64
}

// Tuner holds the configured defaults and tracks cumulative drift so it can
// enforce the 70%-of-default drift guard.
type Tuner struct {
	defaults types.QuoteParams

	windowSize   time.Duration
	driftGuard   float64
	reviewPeriod time.Duration

	lastReview        time.Time
	negativeStreak    int
	highUtilStreak    int
}

// New creates an AutoTuner seeded with the default parameters it will
// revert to when the drift guard trips.
func New(defaults types.QuoteParams, windowSize, reviewPeriod time.Duration, driftGuard float64) *Tuner {
	return &Tuner{defaults: defaults, windowSize: windowSize, reviewPeriod: reviewPeriod, driftGuard: driftGuard}
}

// Review evaluates one window and returns a possibly-adjusted QuoteParams.
// It applies at most one rule per call, consistent with the "at most one
// adjustment per window" constraint.
func (t *Tuner) Review(current types.QuoteParams, m WindowMetrics, now time.Time) types.QuoteParams {
	if !t.lastReview.IsZero() && now.Sub(t.lastReview) < t.reviewPeriod {
		return current
	}
	t.lastReview = now

	next := current
	spreadAdjusted := false

	switch {
	case m.Sharpe < 0:
		t.negativeStreak++
		next.BaseSpreadBps = minf(current.BaseSpreadBps*1.10, current.MaxSpreadBps)
		spreadAdjusted = true
	case m.FillRate < 0.15:
		t.negativeStreak = 0
		next.BaseSpreadBps = maxf(current.BaseSpreadBps*0.90, current.MinSpreadBps)
		spreadAdjusted = true
	default:
		t.negativeStreak = 0
	}

	if m.InventoryUtilisation > 0.70 {
		t.highUtilStreak++
		if t.highUtilStreak >= 2 && !spreadAdjusted {
			next.InventorySkew = minf(current.InventorySkew+0.05, 1.0)
		}
	} else {
		t.highUtilStreak = 0
	}

	next = t.applyDriftGuard(next)
	return next
}

// applyDriftGuard resets any parameter that has moved more than driftGuard
// fraction away from its configured default.
func (t *Tuner) applyDriftGuard(p types.QuoteParams) types.QuoteParams {
	if t.driftGuard <= 0 {
		return p
	}
	if driftedTooFar(p.BaseSpreadBps, t.defaults.BaseSpreadBps, t.driftGuard) {
		p.BaseSpreadBps = t.defaults.BaseSpreadBps
	}
	if driftedTooFar(p.InventorySkew, t.defaults.InventorySkew, t.driftGuard) {
		p.InventorySkew = t.defaults.InventorySkew
	}
	return p
}

func driftedTooFar(value, base, guard float64) bool {
	if base == 0 {
		return false
	}
	delta := (value - base) / base
	if delta < 0 {
		delta = -delta
	}
	return delta > guard
}

func maxf(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func minf(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

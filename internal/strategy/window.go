package strategy

import (
	"math"
	"time"

	"hlmaker/internal/autotune"
	"hlmaker/internal/sizer"
)

// windowStats accumulates the rolling-window samples the AutoTuner and
// DynamicSizer need each review period: per-tick PnL deltas (for a
// Sharpe-like ratio), fill occupancy (for fill rate), and inventory
// utilisation. It resets whenever the configured window elapses.
type windowStats struct {
	start time.Time

	pnlSum   float64
	pnlSumSq float64
	pnlN     int

	ticksWithFill int
	ticksTotal    int

	invUtilSum float64
	invUtilN   int
}

func newWindowStats(now time.Time) *windowStats {
	return &windowStats{start: now}
}

func (w *windowStats) maybeReset(now time.Time, window time.Duration) {
	if window <= 0 {
		return
	}
	if now.Sub(w.start) >= window {
		*w = windowStats{start: now}
	}
}

func (w *windowStats) add(pnlDelta float64, filled bool, invUtil float64) {
	w.pnlSum += pnlDelta
	w.pnlSumSq += pnlDelta * pnlDelta
	w.pnlN++
	w.ticksTotal++
	if filled {
		w.ticksWithFill++
	}
	w.invUtilSum += invUtil
	w.invUtilN++
}

// autotuneMetrics converts the accumulated samples into the window summary
// the AutoTuner reviews.
func (w *windowStats) autotuneMetrics() autotune.WindowMetrics {
	var sharpe float64
	if w.pnlN >= 2 {
		mean := w.pnlSum / float64(w.pnlN)
		variance := w.pnlSumSq/float64(w.pnlN) - mean*mean
		if variance > 0 {
			sharpe = mean / math.Sqrt(variance)
		}
	}
	var fillRate float64
	if w.ticksTotal > 0 {
		fillRate = float64(w.ticksWithFill) / float64(w.ticksTotal)
	}
	var invUtil float64
	if w.invUtilN > 0 {
		invUtil = w.invUtilSum / float64(w.invUtilN)
	}
	return autotune.WindowMetrics{
		Sharpe:               sharpe,
		FillRate:             fillRate,
		InventoryUtilisation: invUtil,
	}
}

// fillRate reports the occupancy-based fill rate used by the sizer, kept
// separate from autotuneMetrics so callers don't need the full summary.
func (w *windowStats) fillRate() float64 {
	if w.ticksTotal == 0 {
		return 0
	}
	return float64(w.ticksWithFill) / float64(w.ticksTotal)
}

func classifyRegime(volBps, lowBps, highBps float64) sizer.Regime {
	switch {
	case volBps <= lowBps:
		return sizer.RegimeLow
	case volBps >= highBps:
		return sizer.RegimeHigh
	default:
		return sizer.RegimeMedium
	}
}

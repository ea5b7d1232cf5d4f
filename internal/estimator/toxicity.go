package estimator

import (
	"sync"
	"time"

	"hlmaker/pkg/types"
)

// pendingFill is one fill still inside the adverse-excursion measurement
// window.
type pendingFill struct {
	side      types.Side
	price     float64
	placedAt  time.Time
}

// ToxicityDetector measures post-fill adverse selection: for each recent
// fill it tracks how far the market has moved against us since the fill,
// normalised by ATR, and EMA-smooths that per side over a rolling fill
// window. The global score is the max of the two per-side EMAs, keyed on
// price excursion rather than fill direction alone.
type ToxicityDetector struct {
	mu sync.Mutex

	window   time.Duration
	halfLife time.Duration
	pending  []pendingFill

	buyEMA  float64
	sellEMA float64

	lastATR time.Time
	atr     float64
}

// NewToxicityDetector creates a detector with the given measurement window
// and EMA half-life.
func NewToxicityDetector(window, halfLife time.Duration) *ToxicityDetector {
	return &ToxicityDetector{window: window, halfLife: halfLife, atr: 1}
}

// RecordFill registers a fill to be tracked for adverse excursion.
func (t *ToxicityDetector) RecordFill(side types.Side, price float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.pending = append(t.pending, pendingFill{side: side, price: price, placedAt: at})
}

// UpdateATR feeds a fresh average-true-range estimate used to normalise
// adverse excursion into a unitless score.
func (t *ToxicityDetector) UpdateATR(atr float64, now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if atr > 0 {
		t.atr = atr
	}
	t.lastATR = now
}

// Score evaluates the current toxicity τ ∈ [0,1] given the current mid and
// evicts fills that have aged out of the measurement window.
func (t *ToxicityDetector) Score(mid float64, now time.Time) float64 {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := now.Add(-t.window)
	kept := t.pending[:0]

	var buySum, buyWeight, sellSum, sellWeight float64

	for _, f := range t.pending {
		if f.placedAt.Before(cutoff) {
			continue
		}
		kept = append(kept, f)

		excursion := (mid - f.price)
		if f.side == types.Buy {
			excursion = -excursion
		}
		score := clamp01(excursion / t.atr)

		age := now.Sub(f.placedAt)
		w := decayFactor(age, t.halfLife)
		if f.side == types.Buy {
			buySum += w * score
			buyWeight += w
		} else {
			sellSum += w * score
			sellWeight += w
		}
	}
	t.pending = kept

	if buyWeight > 0 {
		t.buyEMA = buySum / buyWeight
	}
	if sellWeight > 0 {
		t.sellEMA = sellSum / sellWeight
	}

	if t.buyEMA > t.sellEMA {
		return t.buyEMA
	}
	return t.sellEMA
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

package estimator

import (
	"time"

	"hlmaker/pkg/types"
)

// BookImbalance is an EMA of the top-N order-book imbalance, bounded to
// [-1, 1]: positive means bid-heavy (buying pressure), negative ask-heavy.
type BookImbalance struct {
	halfLife time.Duration
	depth    int
	ema      float64
	lastTime time.Time
	primed   bool
}

// NewBookImbalance creates an imbalance estimator over the top `depth` levels.
func NewBookImbalance(depth int, halfLife time.Duration) *BookImbalance {
	return &BookImbalance{depth: depth, halfLife: halfLife}
}

// Update feeds a fresh order book snapshot and returns the current estimate.
func (b *BookImbalance) Update(book types.OrderBookSnapshot, now time.Time) float64 {
	bidSize := sumTopLevels(book.Bids, b.depth)
	askSize := sumTopLevels(book.Asks, b.depth)

	var raw float64
	total := bidSize + askSize
	if total > 0 {
		raw = (bidSize - askSize) / total
	}

	if !b.primed {
		b.ema = raw
		b.lastTime = now
		b.primed = true
		return b.ema
	}

	alpha := decayFactor(now.Sub(b.lastTime), b.halfLife)
	b.ema = alpha*b.ema + (1-alpha)*raw
	b.lastTime = now

	if b.ema > 1 {
		b.ema = 1
	} else if b.ema < -1 {
		b.ema = -1
	}
	return b.ema
}

// Value returns the current estimate without updating state.
func (b *BookImbalance) Value() float64 { return b.ema }

func sumTopLevels(levels []types.PriceLevel, depth int) float64 {
	n := depth
	if n > len(levels) {
		n = len(levels)
	}
	var total float64
	for i := 0; i < n; i++ {
		f, _ := levels[i].Size.Float64()
		total += f
	}
	return total
}

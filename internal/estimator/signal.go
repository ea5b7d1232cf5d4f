package estimator

import "math"

// DirectionalSignal combines a Kalman-filtered price trend with a QQE
// indicator on RSI to produce a gated directional bias in {-1, 0, +1}.
// The sign only flips once the opposing signal has persisted for
// hysteresisTicks consecutive updates, which keeps the bias from
// chattering tick to tick.
type DirectionalSignal struct {
	kalman *kalmanTrend
	qqe    *qqeRSI

	hysteresisTicks int
	current         int
	pendingSign     int
	pendingCount    int
}

// NewDirectionalSignal builds a signal estimator. processVar/obsVar tune the
// Kalman filter's trust in the model vs. the observation; rsiPeriod and
// qqeFactor tune the QQE layer; hysteresisTicks is the number of
// consecutive same-direction ticks required before the signal flips.
func NewDirectionalSignal(processVar, obsVar float64, rsiPeriod int, qqeFactor float64, hysteresisTicks int) *DirectionalSignal {
	return &DirectionalSignal{
		kalman:          newKalmanTrend(processVar, obsVar),
		qqe:             newQQERSI(rsiPeriod, qqeFactor),
		hysteresisTicks: hysteresisTicks,
	}
}

// Update feeds a new mid-price and returns the gated signal.
func (d *DirectionalSignal) Update(mid float64) int {
	slope := d.kalman.update(mid)
	qqeDir := d.qqe.update(mid)

	raw := 0
	switch {
	case slope > 0 && qqeDir >= 0:
		raw = 1
	case slope < 0 && qqeDir <= 0:
		raw = -1
	}

	if raw == d.current || raw == 0 {
		d.pendingCount = 0
		d.pendingSign = 0
		return d.current
	}

	if raw == d.pendingSign {
		d.pendingCount++
	} else {
		d.pendingSign = raw
		d.pendingCount = 1
	}

	if d.pendingCount >= d.hysteresisTicks {
		d.current = raw
		d.pendingCount = 0
		d.pendingSign = 0
	}
	return d.current
}

// Value returns the last gated signal without updating state.
func (d *DirectionalSignal) Value() int { return d.current }

// kalmanTrend is a 2-state (level, slope) constant-velocity Kalman filter.
type kalmanTrend struct {
	q, r     float64 // process / observation variance
	level    float64
	slope    float64
	p00, p01 float64
	p10, p11 float64
	primed   bool
}

func newKalmanTrend(q, r float64) *kalmanTrend {
	return &kalmanTrend{q: q, r: r, p00: 1, p11: 1}
}

func (k *kalmanTrend) update(z float64) float64 {
	if !k.primed {
		k.level = z
		k.primed = true
		return 0
	}

	// Predict: level += slope, slope unchanged.
	predLevel := k.level + k.slope
	predSlope := k.slope

	p00 := k.p00 + k.p01 + k.p10 + k.p11 + k.q
	p01 := k.p01 + k.p11
	p10 := k.p10 + k.p11
	p11 := k.p11 + k.q

	// Update against observation z of the level.
	innovation := z - predLevel
	s := p00 + k.r
	if s == 0 {
		s = 1e-9
	}
	kLevel := p00 / s
	kSlope := p10 / s

	k.level = predLevel + kLevel*innovation
	k.slope = predSlope + kSlope*innovation

	k.p00 = (1 - kLevel) * p00
	k.p01 = (1 - kLevel) * p01
	k.p10 = p10 - kSlope*p00
	k.p11 = p11 - kSlope*p01

	return k.slope
}

// qqeRSI approximates the QQE indicator: a smoothed RSI with a trailing
// band derived from the smoothed RSI's own volatility. A cross of the
// smoothed RSI back through its trailing band, on the side of the 50
// midline, emits a directional vote.
type qqeRSI struct {
	period int
	factor float64

	avgGain, avgLoss float64
	lastPrice        float64
	primed           bool

	rsiMA      float64
	rsiMAInit  bool
	atrRSI     float64
	longBand   float64
	shortBand  float64
	trend      int
}

func newQQERSI(period int, factor float64) *qqeRSI {
	if period < 2 {
		period = 14
	}
	return &qqeRSI{period: period, factor: factor}
}

func (q *qqeRSI) update(price float64) int {
	if !q.primed {
		q.lastPrice = price
		q.primed = true
		return 0
	}

	change := price - q.lastPrice
	q.lastPrice = price

	gain, loss := 0.0, 0.0
	if change > 0 {
		gain = change
	} else {
		loss = -change
	}

	n := float64(q.period)
	q.avgGain = ((n-1)*q.avgGain + gain) / n
	q.avgLoss = ((n-1)*q.avgLoss + loss) / n

	rsi := 50.0
	if q.avgLoss > 0 {
		rs := q.avgGain / q.avgLoss
		rsi = 100 - 100/(1+rs)
	} else if q.avgGain > 0 {
		rsi = 100
	}

	alpha := 2.0 / (n + 1)
	if !q.rsiMAInit {
		q.rsiMA = rsi
		q.rsiMAInit = true
	} else {
		q.rsiMA = alpha*rsi + (1-alpha)*q.rsiMA
	}

	diff := math.Abs(rsi - q.rsiMA)
	q.atrRSI = alpha*diff + (1-alpha)*q.atrRSI
	band := q.factor * q.atrRSI

	newLong := q.rsiMA - band
	newShort := q.rsiMA + band

	if q.rsiMA > q.shortBand {
		q.trend = 1
	} else if q.rsiMA < q.longBand {
		q.trend = -1
	}

	if q.trend >= 0 && newLong > q.longBand {
		q.longBand = newLong
	} else if q.longBand == 0 {
		q.longBand = newLong
	}
	if q.trend <= 0 && newShort < q.shortBand {
		q.shortBand = newShort
	} else if q.shortBand == 0 {
		q.shortBand = newShort
	}

	switch {
	case q.trend > 0 && q.rsiMA > 50:
		return 1
	case q.trend < 0 && q.rsiMA < 50:
		return -1
	default:
		return 0
	}
}

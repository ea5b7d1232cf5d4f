package strategy

import (
	"math"
	"time"

	"hlmaker/pkg/types"
)

// dayAccumulator rolls up one UTC day's worth of per-tick observations
// into the row shape internal/metrics persists. It is reset whenever the
// tick clock crosses a day boundary.
type dayAccumulator struct {
	dayStart time.Time

	fillsBuy  int
	fillsSell int
	grossPnL  float64
	fees      float64

	peakNetPnL  float64
	maxDrawdown float64

	invSum     float64
	invMax     float64
	invSamples int

	quotedSpreadSum     float64
	quotedSpreadSamples int

	capturedSpreadSum     float64
	capturedSpreadSamples int

	toxicityLast float64
}

func utcDayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

func newDayAccumulator(now time.Time) *dayAccumulator {
	return &dayAccumulator{dayStart: utcDayStart(now)}
}

// rollIfNeeded resets the accumulator at a day boundary, returning the
// completed row for the prior day if one elapsed.
func (d *dayAccumulator) rollIfNeeded(now time.Time) (types.MetricsRow, bool) {
	today := utcDayStart(now)
	if !today.After(d.dayStart) {
		return types.MetricsRow{}, false
	}
	row := d.row()
	*d = dayAccumulator{dayStart: today}
	return row, true
}

func (d *dayAccumulator) observeFill(fill types.FillEvent) {
	fee, _ := fill.Fee.Float64()
	d.fees += fee
	if fill.Side == types.Buy {
		d.fillsBuy++
	} else {
		d.fillsSell++
	}
}

// observeTick records one tick's mark-to-market PnL, inventory, and the
// quoted spread observed that tick (captured spread is recorded by
// observeCapturedSpread).
func (d *dayAccumulator) observeTick(netPnL, inventory, quotedSpreadBps float64) {
	d.grossPnL = netPnL + d.fees

	if netPnL > d.peakNetPnL {
		d.peakNetPnL = netPnL
	}
	if drawdown := d.peakNetPnL - netPnL; drawdown > d.maxDrawdown {
		d.maxDrawdown = drawdown
	}

	absInv := math.Abs(inventory)
	d.invSum += absInv
	d.invSamples++
	if absInv > d.invMax {
		d.invMax = absInv
	}

	d.quotedSpreadSum += quotedSpreadBps
	d.quotedSpreadSamples++
}

func (d *dayAccumulator) observeCapturedSpread(capturedBps float64) {
	d.capturedSpreadSum += capturedBps
	d.capturedSpreadSamples++
}

func (d *dayAccumulator) observeToxicity(tox float64) {
	d.toxicityLast = tox
}

func (d *dayAccumulator) row() types.MetricsRow {
	row := types.MetricsRow{
		DayBucketStart: d.dayStart,
		GrossPnL:       d.grossPnL,
		Fees:           d.fees,
		NetPnL:         d.grossPnL - d.fees,
		FillsBuy:       d.fillsBuy,
		FillsSell:      d.fillsSell,
		MaxDrawdown:    d.maxDrawdown,
		ToxicityEMA:    d.toxicityLast,
	}
	if d.invSamples > 0 {
		row.InventoryAvg = d.invSum / float64(d.invSamples)
	}
	row.InventoryMax = d.invMax
	if d.quotedSpreadSamples > 0 {
		row.QuotedSpreadBps = d.quotedSpreadSum / float64(d.quotedSpreadSamples)
	}
	if d.capturedSpreadSamples > 0 {
		row.CapturedSpreadBps = d.capturedSpreadSum / float64(d.capturedSpreadSamples)
	}
	return row
}

package strategy

import (
	"time"

	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

// applyVolRegimeAdjustment buckets the current volatility estimate into
// low/medium/high and scales base_spread and num_levels for that bucket,
// the AdaptiveStrategy variant's regime-based adjustment. Medium is the
// identity bucket: params pass through unchanged.
func applyVolRegimeAdjustment(params types.QuoteParams, volBps float64, cfg types.AdaptiveConfig) types.QuoteParams {
	if !cfg.Enabled {
		return params
	}
	switch {
	case volBps <= cfg.VolRegimeLowBps:
		if cfg.LowRegimeSpreadMult > 0 {
			params.BaseSpreadBps *= cfg.LowRegimeSpreadMult
		}
		if cfg.LowRegimeLevels > 0 {
			params.NumLevels = cfg.LowRegimeLevels
		}
	case volBps >= cfg.VolRegimeHighBps:
		if cfg.HighRegimeSpreadMult > 0 {
			params.BaseSpreadBps *= cfg.HighRegimeSpreadMult
		}
		if cfg.HighRegimeLevels > 0 {
			params.NumLevels = cfg.HighRegimeLevels
		}
	}
	if params.BaseSpreadBps < params.MinSpreadBps {
		params.BaseSpreadBps = params.MinSpreadBps
	}
	if params.BaseSpreadBps > params.MaxSpreadBps {
		params.BaseSpreadBps = params.MaxSpreadBps
	}
	return params
}

// positionTracker tracks how long the current position has been held
// without returning to flat, the basis for the inventory-decay bias.
type positionTracker struct {
	openedAt time.Time
}

// update reports how long the position has been held given the current
// net position, resetting the clock whenever the position returns to flat.
func (p *positionTracker) update(netPosition float64, now time.Time) time.Duration {
	if netPosition == 0 {
		p.openedAt = time.Time{}
		return 0
	}
	if p.openedAt.IsZero() {
		p.openedAt = now
		return 0
	}
	return now.Sub(p.openedAt)
}

// applyInventoryDecayBias linearly shifts every quoted price toward
// flattening the position once it has been held longer than threshold
// with no round-trip: a long position gets both sides nudged down (more
// likely to sell into the ask, less likely to add on the bid), a short
// position nudged up, capped at maxBiasBps of the mid.
func applyInventoryDecayBias(q types.Quote, netPosition, mid float64, held, threshold time.Duration, maxBiasBps float64) types.Quote {
	if held <= threshold || threshold <= 0 || maxBiasBps <= 0 || netPosition == 0 || mid <= 0 {
		return q
	}

	excess := held - threshold
	ramp := float64(excess) / float64(threshold)
	if ramp > 1 {
		ramp = 1
	}
	biasBps := maxBiasBps * ramp

	shift := mid * biasBps / 10000.0
	if netPosition > 0 {
		shift = -shift
	}
	shiftDec := decimal.NewFromFloat(shift)

	levels := make([]types.QuoteLevel, len(q.Levels))
	for i, lvl := range q.Levels {
		lvl.BidPrice = lvl.BidPrice.Add(shiftDec)
		lvl.AskPrice = lvl.AskPrice.Add(shiftDec)
		levels[i] = lvl
	}
	q.Levels = levels
	return q
}

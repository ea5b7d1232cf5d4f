// Package allocator implements the MetaSupervisor: a daily cross-asset
// capital and risk-multiplier allocator that scores each asset's rolling
// performance, assigns a reward/hold/punish/pause zone, and produces a new
// immutable AllocatorState snapshot. Where a per-tick reconciliation loop
// re-ranks and re-allocates markets on every scan, this runs on a slow,
// score-driven capital-allocation cadence. Run only returns the snapshot;
// the engine persists it (hotreload.WriteAllocations, write-then-rename).
package allocator

import (
	"math"
	"time"

	"hlmaker/pkg/types"
)

// AssetMetrics is the rolling daily performance input for one asset.
type AssetMetrics struct {
	Symbol        string
	SharpeNorm    float64 // pre-normalised into [0,1]
	ReturnNorm    float64
	DrawdownNorm  float64
	Consistency   float64
	PriorBase     float64
	CompoundedPnL float64 // reinvested PnL on top of base, for compound-on assets
	Compound      bool
}

// Zone is the reward/hold/punish/pause bucket a score falls into.
type Zone int

const (
	ZonePause Zone = iota
	ZonePunish
	ZoneHold
	ZoneReward
)

func zoneFor(score float64) Zone {
	switch {
	case score > 0.7:
		return ZoneReward
	case score >= 0.30:
		return ZoneHold
	case score >= 0.10:
		return ZonePunish
	default:
		return ZonePause
	}
}

func multipliersFor(z Zone) types.RiskMultipliers {
	switch z {
	case ZoneReward:
		return types.RiskMultipliers{Size: 1.10, Spread: 0.90, MaxPos: 1.10}
	case ZoneHold:
		return types.RiskMultipliers{Size: 1.0, Spread: 1.0, MaxPos: 1.0}
	case ZonePunish:
		return types.RiskMultipliers{Size: 0.70, Spread: 1.30, MaxPos: 0.70}
	default:
		return types.RiskMultipliers{Size: 0.40, Spread: 1.50, MaxPos: 0.40}
	}
}

// Score computes the composite weighted score used to rank an asset.
func Score(m AssetMetrics) float64 {
	return (40*m.SharpeNorm + 30*m.ReturnNorm + 20*(1-m.DrawdownNorm) + 10*m.Consistency) / 100
}

// Config bounds the daily capital-allocation rule.
type Config struct {
	MinCapitalUSD  float64
	MaxShareOfPool float64 // e.g. 0.35
	DailyMoveCap   float64 // e.g. 0.05
	MeanRevertRate float64 // e.g. 0.01
}

// Supervisor runs the daily scoring and capital-reallocation pass.
type Supervisor struct {
	cfg Config
}

// New creates a MetaSupervisor with the given bounds.
func New(cfg Config) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Run computes a new AllocatorState from this period's metrics. totalPool is
// the aggregate capital to distribute across all assets.
func (s *Supervisor) Run(metrics []AssetMetrics, totalPool float64, now time.Time) types.AllocatorState {
	scores := make([]float64, len(metrics))
	for i, m := range metrics {
		scores[i] = Score(m)
	}

	weights := softmax(scores)
	equalWeight := 1.0 / float64(len(metrics))

	out := types.AllocatorState{GeneratedAt: now, Assets: make(map[string]types.AssetAllocation, len(metrics))}

	for i, m := range metrics {
		target := weights[i] * totalPool
		maxAllowed := s.cfg.MaxShareOfPool * totalPool
		if target > maxAllowed {
			target = maxAllowed
		}
		if target < s.cfg.MinCapitalUSD {
			target = s.cfg.MinCapitalUSD
		}

		newBase := rateLimitedMove(m.PriorBase, target, s.cfg.DailyMoveCap)
		newBase = meanRevert(newBase, equalWeight*totalPool, s.cfg.MeanRevertRate)

		active := newBase
		if m.Compound {
			active = newBase + m.CompoundedPnL
		}

		zone := zoneFor(scores[i])
		out.Assets[m.Symbol] = types.AssetAllocation{
			Symbol:        m.Symbol,
			BaseCapital:   newBase,
			ActiveCapital: active,
			Multipliers:   multipliersFor(zone),
		}
	}

	return out
}

// softmax converts raw scores into normalised weights summing to 1.
func softmax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	maxS := scores[0]
	for _, s := range scores {
		if s > maxS {
			maxS = s
		}
	}
	exps := make([]float64, len(scores))
	var sum float64
	for i, s := range scores {
		exps[i] = math.Exp(s - maxS)
		sum += exps[i]
	}
	weights := make([]float64, len(scores))
	for i := range exps {
		weights[i] = exps[i] / sum
	}
	return weights
}

// rateLimitedMove clamps the day-over-day move to dailyMoveCap fraction of
// the prior value.
func rateLimitedMove(prior, target, dailyMoveCap float64) float64 {
	if prior <= 0 {
		return target
	}
	maxDelta := prior * dailyMoveCap
	delta := target - prior
	if delta > maxDelta {
		delta = maxDelta
	}
	if delta < -maxDelta {
		delta = -maxDelta
	}
	return prior + delta
}

// meanRevert nudges the value 1%/day (or whatever rate) toward the equal-
// weight baseline.
func meanRevert(value, equalWeightTarget, rate float64) float64 {
	return value + (equalWeightTarget-value)*rate
}

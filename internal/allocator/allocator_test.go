package allocator

import (
	"testing"
	"time"
)

func TestScoreWeightsComponents(t *testing.T) {
	t.Parallel()

	m := AssetMetrics{SharpeNorm: 1, ReturnNorm: 1, DrawdownNorm: 0, Consistency: 1}
	if got := Score(m); got != 1.0 {
		t.Errorf("Score() with all-ideal inputs = %v, want 1.0", got)
	}
}

func TestZoneBoundaries(t *testing.T) {
	t.Parallel()

	tests := []struct {
		score float64
		want  Zone
	}{
		{0.85, ZoneReward},
		{0.55, ZoneHold},
		{0.25, ZonePunish},
		{0.05, ZonePause},
	}
	for _, tt := range tests {
		if got := zoneFor(tt.score); got != tt.want {
			t.Errorf("zoneFor(%v) = %v, want %v", tt.score, got, tt.want)
		}
	}
}

func TestRunClipsToMaxShareOfPool(t *testing.T) {
	t.Parallel()

	s := New(Config{MinCapitalUSD: 100, MaxShareOfPool: 0.35, DailyMoveCap: 1.0, MeanRevertRate: 0})
	metrics := []AssetMetrics{
		{Symbol: "A", SharpeNorm: 1, ReturnNorm: 1, Consistency: 1, PriorBase: 2500},
		{Symbol: "B", SharpeNorm: 0, ReturnNorm: 0, Consistency: 0, PriorBase: 2500},
	}

	state := s.Run(metrics, 10000, time.Now())
	if state.Assets["A"].BaseCapital > 0.35*10000+1e-6 {
		t.Errorf("BaseCapital for dominant asset = %v, want <= %v", state.Assets["A"].BaseCapital, 0.35*10000)
	}
}

func TestRunRespectsDailyMoveCap(t *testing.T) {
	t.Parallel()

	s := New(Config{MinCapitalUSD: 0, MaxShareOfPool: 1.0, DailyMoveCap: 0.05, MeanRevertRate: 0})
	metrics := []AssetMetrics{
		{Symbol: "A", SharpeNorm: 1, ReturnNorm: 1, Consistency: 1, PriorBase: 1000},
	}

	state := s.Run(metrics, 1000, time.Now())
	maxMove := 1000 * 0.05
	delta := state.Assets["A"].BaseCapital - 1000
	if delta > maxMove+1e-6 {
		t.Errorf("day-over-day move = %v, want <= %v", delta, maxMove)
	}
}

func TestRunCompoundAddsReinvestedPnLOnTopOfBase(t *testing.T) {
	t.Parallel()

	s := New(Config{MinCapitalUSD: 0, MaxShareOfPool: 1.0, DailyMoveCap: 1.0, MeanRevertRate: 0})
	metrics := []AssetMetrics{
		{Symbol: "A", SharpeNorm: 0.5, ReturnNorm: 0.5, Consistency: 0.5, PriorBase: 1000, Compound: true, CompoundedPnL: 200},
	}

	state := s.Run(metrics, 1000, time.Now())
	alloc := state.Assets["A"]
	if alloc.ActiveCapital != alloc.BaseCapital+200 {
		t.Errorf("ActiveCapital = %v, want BaseCapital(%v) + 200", alloc.ActiveCapital, alloc.BaseCapital)
	}
}

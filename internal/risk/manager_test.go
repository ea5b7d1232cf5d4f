package risk

import (
	"testing"
	"time"

	"hlmaker/pkg/types"
)

func testLimits() types.RiskLimits {
	return types.RiskLimits{
		MaxPositionUSD:   500,
		MaxDailyLossFrac: 0.05,
		MaxOpenOrders:    10,
		CooldownSeconds:  300,
		APIErrorThresh:   5,
	}
}

func TestEvaluateSafeUnderLimits(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := New(testLimits(), now)

	state := m.Evaluate(Snapshot{Capital: 10000, NetPositionUSD: 100, Now: now})
	if state != types.Safe {
		t.Errorf("Evaluate() = %v, want Safe", state)
	}
}

func TestEvaluateCircuitBreakOnDailyLoss(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := New(testLimits(), now)

	state := m.Evaluate(Snapshot{Capital: 10000, NetPnLToday: -510, Now: now})
	if state != types.CircuitBreak {
		t.Errorf("Evaluate() with -5.1%% daily loss = %v, want CircuitBreak", state)
	}
}

func TestEvaluatePositionLimit(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := New(testLimits(), now)

	state := m.Evaluate(Snapshot{Capital: 10000, NetPositionUSD: 600, Now: now})
	if state != types.PositionLimit {
		t.Errorf("Evaluate() over max position = %v, want PositionLimit", state)
	}
}

func TestCircuitBreakMonotonicUntilCooldown(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := New(testLimits(), now)
	m.Evaluate(Snapshot{Capital: 10000, NetPnLToday: -1000, Now: now})

	// Immediately after, still before the UTC day boundary that ends a
	// daily-loss break: must remain CircuitBreak even
	// though the loss condition itself is no longer evaluated as triggering.
	state := m.Evaluate(Snapshot{Capital: 10000, NetPnLToday: 0, Now: now.Add(time.Second)})
	if state != types.CircuitBreak {
		t.Errorf("Evaluate() before day boundary = %v, want CircuitBreak (monotonic)", state)
	}

	// Past the UTC day boundary: the break lifts.
	next := now.Add(25 * time.Hour)
	state = m.Evaluate(Snapshot{Capital: 10000, NetPnLToday: 0, Now: next})
	if state != types.Safe {
		t.Errorf("Evaluate() after day boundary = %v, want Safe", state)
	}
}

func TestEvaluateCircuitBreakOnAPIErrors(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m := New(testLimits(), now)

	for i := 0; i < 5; i++ {
		m.RecordAPIError(now)
	}
	state := m.Evaluate(Snapshot{Capital: 10000, Now: now})
	if state != types.CircuitBreak {
		t.Errorf("Evaluate() with 5 recent API errors = %v, want CircuitBreak", state)
	}
}

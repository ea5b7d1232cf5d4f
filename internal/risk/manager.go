// Package risk implements the RiskSupervisor: a small state machine that
// gates quoting based on daily PnL, position size, and adapter error rate.
// Rolling counters feed a three-state SAFE / POSITION_LIMIT /
// CIRCUIT_BREAK decision rather than a single boolean kill switch.
package risk

import (
	"sync"
	"time"

	"hlmaker/pkg/types"
)

// Snapshot is the input the supervisor evaluates each tick.
type Snapshot struct {
	NetPnLToday    float64 // realised + unrealised - fees, since UTC day start
	Capital        float64
	NetPositionUSD float64
	APIErrorsLast  int // count of adapter errors in the trailing 60s
	Now            time.Time
}

// Manager evaluates RiskLimits against a rolling Snapshot and produces a
// gating RiskState.
type Manager struct {
	mu sync.Mutex

	limits types.RiskLimits

	state           types.RiskState
	breakUntil      time.Time
	dayBoundary     time.Time
	errorTimestamps []time.Time
}

// New creates a RiskSupervisor with the given limits. dayStart is the UTC
// start of the current accounting day.
func New(limits types.RiskLimits, dayStart time.Time) *Manager {
	return &Manager{
		limits:      limits,
		state:       types.Safe,
		dayBoundary: nextUTCDayBoundary(dayStart),
	}
}

func nextUTCDayBoundary(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day()+1, 0, 0, 0, 0, time.UTC)
}

// RecordAPIError registers an adapter error for the trailing-60s counter.
func (m *Manager) RecordAPIError(at time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errorTimestamps = append(m.errorTimestamps, at)
}

func (m *Manager) countRecentErrorsLocked(now time.Time) int {
	cutoff := now.Add(-60 * time.Second)
	kept := m.errorTimestamps[:0]
	for _, ts := range m.errorTimestamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	m.errorTimestamps = kept
	return len(kept)
}

// Evaluate runs the state machine for one tick and returns the current
// RiskState. Once CIRCUIT_BREAK is entered, it cannot return to SAFE
// without the clock advancing past the cooldown or UTC day boundary.
func (m *Manager) Evaluate(snap Snapshot) types.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()

	if snap.Now.After(m.dayBoundary) {
		m.dayBoundary = nextUTCDayBoundary(snap.Now)
		if m.state == types.CircuitBreak && snap.Now.After(m.breakUntil) {
			m.state = types.Safe
		}
	}

	if m.state == types.CircuitBreak {
		if snap.Now.Before(m.breakUntil) {
			return m.state
		}
		m.state = types.Safe
	}

	maxDailyLoss := m.limits.MaxDailyLossFrac * snap.Capital
	if maxDailyLoss > 0 && snap.NetPnLToday <= -maxDailyLoss {
		m.state = types.CircuitBreak
		m.breakUntil = m.dayBoundary
		return m.state
	}

	if errCount := m.countRecentErrorsLocked(snap.Now); m.limits.APIErrorThresh > 0 && errCount >= m.limits.APIErrorThresh {
		m.state = types.CircuitBreak
		m.breakUntil = snap.Now.Add(time.Duration(m.limits.CooldownSeconds) * time.Second)
		return m.state
	}

	if m.limits.MaxPositionUSD > 0 && absf(snap.NetPositionUSD) >= m.limits.MaxPositionUSD {
		m.state = types.PositionLimit
		return m.state
	}

	m.state = types.Safe
	return m.state
}

// ForceCircuitBreak immediately trips CIRCUIT_BREAK regardless of the
// PnL/position/error-rate thresholds, for fatal conditions (e.g. a
// credentials/permissions error) that must halt quoting outright. until
// follows the same monotonicity rule as Evaluate: no return to SAFE before
// the clock passes it.
func (m *Manager) ForceCircuitBreak(now, until time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = types.CircuitBreak
	if until.After(m.breakUntil) {
		m.breakUntil = until
	}
}

// State returns the last-evaluated state without re-evaluating.
func (m *Manager) State() types.RiskState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func absf(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

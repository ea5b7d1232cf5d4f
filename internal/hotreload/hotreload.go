// Package hotreload implements the two on-disk snapshot contracts the
// StrategyLoop polls every N ticks: live_params (per-asset QuoteParams
// overrides from a nightly reoptimiser) and allocations (the
// MetaSupervisor's AllocatorState). Both are read via the same
// mtime-gated JSON snapshot reader and written with a write-to-.tmp-
// then-rename discipline, so a reload can never observe a half-written
// file.
package hotreload

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"hlmaker/pkg/types"
)

// LiveParams is the live_params snapshot: per-asset QuoteParams overrides
// produced by a nightly reoptimiser, keyed by symbol.
type LiveParams struct {
	GeneratedAt time.Time                 `json:"generated_at"`
	Overrides   map[string]types.QuoteParams `json:"overrides"`
}

// WriteLiveParams atomically persists a live_params snapshot.
func WriteLiveParams(path string, p LiveParams) error {
	return writeAtomicJSON(path, p)
}

// WriteAllocations atomically persists a MetaSupervisor AllocatorState
// snapshot to the allocations path.
func WriteAllocations(path string, state types.AllocatorState) error {
	return writeAtomicJSON(path, state)
}

func writeAtomicJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	return os.Rename(tmp, path)
}

// Reader polls a single JSON snapshot file by mtime and only re-parses it
// when the file has actually changed since the last Check call. It is
// generic over the two snapshot payload shapes (LiveParams and
// types.AllocatorState) so StrategyLoop and the MetaSupervisor consumer
// share one poll/parse/compare implementation.
type Reader[T any] struct {
	mu       sync.Mutex
	path     string
	lastMod  time.Time
	lastOK   bool
	current  T
}

// NewReader creates a Reader for the snapshot file at path. The file need
// not exist yet; Check returns ok=false until it first appears.
func NewReader[T any](path string) *Reader[T] {
	return &Reader[T]{path: path}
}

// Check re-reads the snapshot if its mtime has advanced since the last
// call, returning the current value, whether it changed this call, and
// whether a value has ever been successfully loaded.
func (r *Reader[T]) Check() (value T, changed bool, ok bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	info, statErr := os.Stat(r.path)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return r.current, false, r.lastOK, nil
		}
		return r.current, false, r.lastOK, fmt.Errorf("stat snapshot: %w", statErr)
	}

	if r.lastOK && !info.ModTime().After(r.lastMod) {
		return r.current, false, true, nil
	}

	data, readErr := os.ReadFile(r.path)
	if readErr != nil {
		return r.current, false, r.lastOK, fmt.Errorf("read snapshot: %w", readErr)
	}

	var parsed T
	if err := json.Unmarshal(data, &parsed); err != nil {
		return r.current, false, r.lastOK, fmt.Errorf("parse snapshot %s: %w", r.path, err)
	}

	r.current = parsed
	r.lastMod = info.ModTime()
	r.lastOK = true
	return r.current, true, true, nil
}

// Ticker gates hot-reload checks to every N ticks, matching the "every N
// ticks (roughly hourly)" cadence described for the StrategyLoop.
type Ticker struct {
	every int
	count int
}

// NewTicker creates a Ticker that fires once every `every` calls to Tick.
func NewTicker(every int) *Ticker {
	if every < 1 {
		every = 1
	}
	return &Ticker{every: every}
}

// Tick advances the counter and reports whether this call should trigger
// a hot-reload check.
func (t *Ticker) Tick() bool {
	t.count++
	if t.count >= t.every {
		t.count = 0
		return true
	}
	return false
}

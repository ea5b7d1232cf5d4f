package strategy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hlmaker/internal/autotune"
	"hlmaker/internal/estimator"
	"hlmaker/internal/exchange"
	"hlmaker/internal/inventory"
	"hlmaker/internal/metrics"
	"hlmaker/internal/order"
	"hlmaker/internal/quote"
	"hlmaker/internal/risk"
	"hlmaker/internal/sizer"
	"hlmaker/pkg/types"
)

func newTestStore(t *testing.T) *metrics.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := metrics.Open(filepath.Join(dir, "metrics.db"), filepath.Join(dir, "csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// fakeAdapter is a minimal in-memory exchange.Adapter for exercising the
// tick pipeline without a real venue connection.
type fakeAdapter struct {
	mu sync.Mutex

	bid, ask float64
	placed   int
	cancels  int
	modifies int
	nextID   int

	placeErr       error
	positionValue  decimal.Decimal
	positionErr    error
	cancelAllCalls int
}

func newFakeAdapter(bid, ask float64) *fakeAdapter {
	return &fakeAdapter{bid: bid, ask: ask}
}

func (f *fakeAdapter) MidPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return decimal.NewFromFloat((f.bid + f.ask) / 2), nil
}

func (f *fakeAdapter) OrderBook(ctx context.Context, symbol string, depth int) (types.OrderBookSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.bid == 0 && f.ask == 0 {
		return types.OrderBookSnapshot{Symbol: symbol}, nil
	}
	return types.OrderBookSnapshot{
		Symbol: symbol,
		Bids:   []types.PriceLevel{{Price: decimal.NewFromFloat(f.bid), Size: decimal.NewFromFloat(10)}},
		Asks:   []types.PriceLevel{{Price: decimal.NewFromFloat(f.ask), Size: decimal.NewFromFloat(10)}},
	}, nil
}

func (f *fakeAdapter) RecentTrades(ctx context.Context, symbol string, since time.Time) ([]types.Trade, error) {
	return nil, nil
}

func (f *fakeAdapter) PlaceOrder(ctx context.Context, intent types.OrderIntent, postOnly bool) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.placeErr != nil {
		return "", f.placeErr
	}
	f.placed++
	f.nextID++
	return fmt.Sprintf("ex-%d", f.nextID), nil
}

func (f *fakeAdapter) ModifyOrders(ctx context.Context, mods []exchange.ModifyRequest) ([]exchange.ModifyResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.modifies += len(mods)
	out := make([]exchange.ModifyResult, len(mods))
	for i, m := range mods {
		out[i] = exchange.ModifyResult{ExchangeID: m.ExchangeID, OK: true}
	}
	return out, nil
}

func (f *fakeAdapter) CancelOrders(ctx context.Context, symbol string, exchangeIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancels += len(exchangeIDs)
	return nil
}

func (f *fakeAdapter) CancelAll(ctx context.Context, symbol string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelAllCalls++
	return nil
}

func (f *fakeAdapter) OpenOrders(ctx context.Context, symbol string) ([]types.LiveOrder, error) {
	return nil, nil
}

func (f *fakeAdapter) Position(ctx context.Context, symbol string) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.positionErr != nil {
		return decimal.Zero, f.positionErr
	}
	return f.positionValue, nil
}

func (f *fakeAdapter) ArmDeadMansSwitch(ctx context.Context, timeout time.Duration) error {
	return nil
}

func (f *fakeAdapter) Metadata(ctx context.Context) (map[string]types.Precision, error) {
	return nil, nil
}

func testDeps(t *testing.T, adapter exchange.Adapter, symbol string, limits types.RiskLimits, now time.Time) Deps {
	t.Helper()
	return Deps{
		Adapter:    adapter,
		Quote:      quote.New(symbol),
		Inventory:  inventory.New(symbol),
		Risk:       risk.New(limits, now),
		Orders:     order.New(symbol),
		Sizer:      sizer.New(10, 10000),
		Tuner:      autotune.New(types.QuoteParams{}, time.Hour, time.Hour, 1.0),
		Volatility: estimator.NewVolatility(30 * time.Second),
		Imbalance:  estimator.NewBookImbalance(5, 15*time.Second),
		Signal:     estimator.NewDirectionalSignal(1e-5, 1e-4, 14, 4.236, 3),
		Toxicity:   estimator.NewToxicityDetector(5*time.Minute, time.Minute),
		Metrics:    newTestStore(t),
		Logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func testConfig(symbol string) Config {
	return Config{
		Symbol:    symbol,
		Precision: types.Precision{SizeDecimals: 2},
		Params: types.QuoteParams{
			BaseSpreadBps: 10, VolMultiplier: 1, InventorySkew: 0.5,
			OrderSizeUSD: 100, NumLevels: 1, LevelSpacingBps: 5,
			MinSpreadBps: 5, MaxSpreadBps: 50,
		},
		Limits:               types.RiskLimits{MaxPositionUSD: 10000, MaxOpenOrders: 10, APIErrorThresh: 100},
		Capital:              10000,
		ToxicityThrottle:     true,
		MaxBatch:             10,
		BookDepth:            5,
		TickInterval:         time.Second,
		PostOnly:             true,
		DeadMansCadenceTicks: 1000,
		DeadMansTimeout:      time.Minute,
		AutoTuneWindow:       time.Hour,
	}
}

func TestTickPlacesBothSidesOnFreshLoop(t *testing.T) {
	t.Parallel()

	now := time.Now()
	adapter := newFakeAdapter(99.8, 100.2)
	cfg := testConfig("BTC")
	deps := testDeps(t, adapter, "BTC", cfg.Limits, now)

	loop := New(cfg, deps, now)

	if err := loop.tick(context.Background(), now); err != nil {
		t.Fatalf("tick returned error: %v", err)
	}

	adapter.mu.Lock()
	placed := adapter.placed
	adapter.mu.Unlock()
	if placed != 2 {
		t.Errorf("placed = %d, want 2 (one bid, one ask)", placed)
	}
}

func TestTickSkipsOnEmptyBook(t *testing.T) {
	t.Parallel()

	now := time.Now()
	adapter := &fakeAdapter{}
	cfg := testConfig("BTC")
	deps := testDeps(t, adapter, "BTC", cfg.Limits, now)

	loop := New(cfg, deps, now)
	if err := loop.tick(context.Background(), now); err != nil {
		t.Fatalf("tick on empty book returned error: %v", err)
	}

	adapter.mu.Lock()
	placed := adapter.placed
	adapter.mu.Unlock()
	if placed != 0 {
		t.Errorf("placed = %d, want 0 when the book has no bid/ask", placed)
	}
}

func TestTickReturnsFatalErrorOnAuthFailure(t *testing.T) {
	t.Parallel()

	now := time.Now()
	adapter := newFakeAdapter(99.8, 100.2)
	adapter.placeErr = types.NewAdapterError(types.KindAuth, "place_order", "BTC", errors.New("bad signature"))
	cfg := testConfig("BTC")
	deps := testDeps(t, adapter, "BTC", cfg.Limits, now)

	loop := New(cfg, deps, now)

	err := loop.tick(context.Background(), now)
	if err == nil {
		t.Fatal("tick() error = nil, want a fatal error on a KindAuth adapter failure")
	}
	var fatal *FatalError
	if !errors.As(err, &fatal) {
		t.Fatalf("tick() error = %v, want *FatalError", err)
	}
	if loop.deps.Risk.State() != types.CircuitBreak {
		t.Errorf("risk state = %v, want CircuitBreak after a KindAuth error", loop.deps.Risk.State())
	}
}

func TestCheckPositionMismatchReconcilesAgainstVenue(t *testing.T) {
	t.Parallel()

	now := time.Now()
	adapter := newFakeAdapter(99.8, 100.2)
	adapter.positionValue = decimal.NewFromFloat(5)
	cfg := testConfig("BTC")
	deps := testDeps(t, adapter, "BTC", cfg.Limits, now)

	loop := New(cfg, deps, now)

	later := now.Add(2 * time.Minute)
	if err := loop.checkPositionMismatch(context.Background(), later); err != nil {
		t.Fatalf("checkPositionMismatch() error = %v", err)
	}

	adapter.mu.Lock()
	cancelAllCalls := adapter.cancelAllCalls
	adapter.mu.Unlock()
	if cancelAllCalls != 1 {
		t.Errorf("cancelAllCalls = %d, want 1 after a detected mismatch", cancelAllCalls)
	}
	if got := loop.deps.Inventory.NetPosition(); got != 5 {
		t.Errorf("NetPosition() after reconciliation = %v, want 5 (the venue's reported position)", got)
	}
}

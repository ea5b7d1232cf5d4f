package order

import (
	"testing"

	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

func testParams() types.QuoteParams {
	return types.QuoteParams{ModifyThresholdBp: 1}
}

func quoteAt(bid, ask float64) types.Quote {
	return types.Quote{
		Levels: []types.QuoteLevel{
			{Level: 0, BidPrice: decimal.NewFromFloat(bid), BidSize: decimal.NewFromFloat(1), AskPrice: decimal.NewFromFloat(ask), AskSize: decimal.NewFromFloat(1)},
		},
	}
}

func TestReconcilePlacesNewOrders(t *testing.T) {
	t.Parallel()

	m := New("BTC")
	intents := m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})

	if len(intents) != 2 {
		t.Fatalf("len(intents) = %d, want 2 (one place per side)", len(intents))
	}
	for _, in := range intents {
		if in.Kind != types.IntentPlace {
			t.Errorf("intent kind = %v, want Place", in.Kind)
		}
	}
}

func TestReconcileDedupsWithinThreshold(t *testing.T) {
	t.Parallel()

	m := New("BTC")
	m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})

	// A near-identical quote next tick should produce no intents.
	intents := m.Reconcile(quoteAt(99.800001, 100.200001), testParams(), types.Precision{SizeDecimals: 2})
	if len(intents) != 0 {
		t.Errorf("len(intents) after negligible move = %d, want 0", len(intents))
	}
}

func TestReconcileModifiesOnMeaningfulMove(t *testing.T) {
	t.Parallel()

	m := New("BTC")
	m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})

	intents := m.Reconcile(quoteAt(99.0, 101.0), testParams(), types.Precision{SizeDecimals: 2})
	if len(intents) != 2 {
		t.Fatalf("len(intents) after large move = %d, want 2", len(intents))
	}
	for _, in := range intents {
		if in.Kind != types.IntentModify {
			t.Errorf("intent kind = %v, want Modify", in.Kind)
		}
	}
}

func TestReconcileCancelsOrphanedLevel(t *testing.T) {
	t.Parallel()

	m := New("BTC")
	m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})

	empty := types.Quote{SuppressBid: true, SuppressAsk: true}
	intents := m.Reconcile(empty, testParams(), types.Precision{SizeDecimals: 2})

	if len(intents) != 2 {
		t.Fatalf("len(intents) after suppression = %d, want 2 cancels", len(intents))
	}
	for _, in := range intents {
		if in.Kind != types.IntentCancel {
			t.Errorf("intent kind = %v, want Cancel", in.Kind)
		}
	}
}

func TestReconcileIdempotentReplay(t *testing.T) {
	t.Parallel()

	m := New("BTC")
	first := m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})
	before := len(m.LiveOrders())

	// Replaying an identical quote must not change the live-order set size.
	m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})
	after := len(m.LiveOrders())

	if before != after {
		t.Errorf("live order count changed on replay: before=%d after=%d", before, after)
	}
	if len(first) != 2 {
		t.Fatalf("initial reconcile intents = %d, want 2", len(first))
	}
}

func TestClearAllDropsLiveOrdersSoReconcileRePlaces(t *testing.T) {
	t.Parallel()

	m := New("BTC")
	m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})
	if len(m.LiveOrders()) != 2 {
		t.Fatalf("LiveOrders() = %d, want 2 before ClearAll", len(m.LiveOrders()))
	}

	m.ClearAll()
	if len(m.LiveOrders()) != 0 {
		t.Fatalf("LiveOrders() = %d, want 0 after ClearAll", len(m.LiveOrders()))
	}

	intents := m.Reconcile(quoteAt(99.8, 100.2), testParams(), types.Precision{SizeDecimals: 2})
	if len(intents) != 2 {
		t.Fatalf("len(intents) = %d, want 2 (fresh places after ClearAll)", len(intents))
	}
	for _, in := range intents {
		if in.Kind != types.IntentPlace {
			t.Errorf("intent kind = %v, want Place after ClearAll", in.Kind)
		}
	}
}

func TestRoundSizeZeroesOutSuppressedLevel(t *testing.T) {
	t.Parallel()

	got := RoundSize(0.0001, types.Precision{SizeDecimals: 0})
	if !got.IsZero() {
		t.Errorf("RoundSize(0.0001, 0 decimals) = %v, want 0", got)
	}
}

func TestRoundPriceCapsSignificantFigures(t *testing.T) {
	t.Parallel()

	got := RoundPrice(123456.789, types.Precision{SizeDecimals: 0})
	f, _ := got.Float64()
	if f != 123460 {
		t.Errorf("RoundPrice(123456.789) = %v, want 123460 (5 sig figs)", f)
	}
}

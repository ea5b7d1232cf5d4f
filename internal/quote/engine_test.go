package quote

import (
	"testing"
	"time"

	"hlmaker/pkg/types"
)

func baselineParams() types.QuoteParams {
	return types.QuoteParams{
		BaseSpreadBps:   2,
		VolMultiplier:   1.5,
		InventorySkew:   0.3,
		OrderSizeUSD:    150,
		NumLevels:       2,
		LevelSpacingBps: 1,
		MinSpreadBps:    1,
		MaxSpreadBps:    1000,
	}
}

func TestComputeBaselineQuote(t *testing.T) {
	t.Parallel()

	eng := New("BTC")
	prec := types.Precision{SizeDecimals: 2} // price_decimals = 4
	in := Inputs{Mid: 100.00, VolatilityBps: 10, MaxPositionUSD: 500}

	q := eng.Compute(baselineParams(), prec, in, time.Now())

	if q.SuppressBid || q.SuppressAsk {
		t.Fatal("Compute() suppressed a baseline quote with no toxicity or inventory")
	}
	if len(q.Levels) != 2 {
		t.Fatalf("len(Levels) = %d, want 2", len(q.Levels))
	}

	l0 := q.Levels[0]
	bid0, _ := l0.BidPrice.Float64()
	ask0, _ := l0.AskPrice.Float64()
	if bid0 != 99.83 {
		t.Errorf("L0 bid = %v, want 99.83", bid0)
	}
	if ask0 != 100.17 {
		t.Errorf("L0 ask = %v, want 100.17", ask0)
	}

	l1 := q.Levels[1]
	bid1, _ := l1.BidPrice.Float64()
	ask1, _ := l1.AskPrice.Float64()
	if bid1 != 99.82 {
		t.Errorf("L1 bid = %v, want 99.82", bid1)
	}
	if ask1 != 100.18 {
		t.Errorf("L1 ask = %v, want 100.18", ask1)
	}
}

func TestComputeToxicitySuppressesBothSides(t *testing.T) {
	t.Parallel()

	eng := New("BTC")
	prec := types.Precision{SizeDecimals: 2}
	in := Inputs{Mid: 100.00, VolatilityBps: 10, MaxPositionUSD: 500, Toxicity: 0.85}

	q := eng.Compute(baselineParams(), prec, in, time.Now())
	if !q.SuppressBid || !q.SuppressAsk {
		t.Error("Compute() with toxicity 0.85 did not suppress both sides")
	}
}

func TestComputeOneSidedGuard(t *testing.T) {
	t.Parallel()

	eng := New("BTC")
	prec := types.Precision{SizeDecimals: 2}
	in := Inputs{Mid: 100.00, VolatilityBps: 10, MaxPositionUSD: 500, NetPosition: 400}

	q := eng.Compute(baselineParams(), prec, in, time.Now())
	if !q.SuppressBid {
		t.Error("Compute() with net_position > 0.6*max did not suppress the bid side")
	}
	if q.SuppressAsk {
		t.Error("Compute() with long inventory unexpectedly suppressed the ask side")
	}
}

func TestComputeFeeAwareGate(t *testing.T) {
	t.Parallel()

	eng := New("BTC")
	prec := types.Precision{SizeDecimals: 2}
	params := baselineParams()
	params.FeeAware = true
	params.MakerFeeBps = 50 // market spread will be far below 2x this

	in := Inputs{
		Mid:            100.00,
		VolatilityBps:  10,
		MaxPositionUSD: 500,
		BestBidBps:     99.99,
		BestAskBps:     100.01,
	}

	q := eng.Compute(params, prec, in, time.Now())
	if !q.SuppressBid || !q.SuppressAsk {
		t.Error("Compute() with fee_aware and tight market spread did not suppress both sides")
	}
}

func TestComputeBidBelowAskAtEveryLevel(t *testing.T) {
	t.Parallel()

	eng := New("ETH")
	prec := types.Precision{SizeDecimals: 3}
	params := baselineParams()
	params.NumLevels = 5

	in := Inputs{Mid: 3000.0, VolatilityBps: 25, MaxPositionUSD: 2000, NetPosition: -300, DirectionalSig: 1}
	q := eng.Compute(params, prec, in, time.Now())

	for _, l := range q.Levels {
		if !l.BidPrice.LessThan(l.AskPrice) {
			t.Errorf("level %d: bid %v not < ask %v", l.Level, l.BidPrice, l.AskPrice)
		}
	}
}

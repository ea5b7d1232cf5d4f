package estimator

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

func TestVolatilityFirstObservationSeeds(t *testing.T) {
	t.Parallel()

	v := NewVolatility(time.Minute)
	got := v.Update(100.0, time.Now())
	if got != 0 {
		t.Errorf("Update() on first observation = %v, want 0", got)
	}
}

func TestVolatilityTracksMovement(t *testing.T) {
	t.Parallel()

	v := NewVolatility(time.Minute)
	now := time.Now()
	v.Update(100.0, now)
	got := v.Update(101.0, now.Add(time.Second))
	if got <= 0 {
		t.Errorf("Update() after a price move = %v, want > 0", got)
	}
}

func TestBookImbalanceBidHeavy(t *testing.T) {
	t.Parallel()

	bi := NewBookImbalance(3, time.Minute)
	book := types.OrderBookSnapshot{
		Bids: []types.PriceLevel{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(100)}},
		Asks: []types.PriceLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(10)}},
	}
	got := bi.Update(book, time.Now())
	if got <= 0 {
		t.Errorf("Update() on bid-heavy book = %v, want > 0", got)
	}
}

func TestBookImbalanceBounded(t *testing.T) {
	t.Parallel()

	bi := NewBookImbalance(1, time.Second)
	book := types.OrderBookSnapshot{
		Bids: []types.PriceLevel{{Price: decimal.NewFromInt(99), Size: decimal.NewFromInt(1000)}},
		Asks: []types.PriceLevel{{Price: decimal.NewFromInt(101), Size: decimal.NewFromInt(1)}},
	}
	now := time.Now()
	for i := 0; i < 20; i++ {
		got := bi.Update(book, now.Add(time.Duration(i)*time.Second))
		if got > 1 || got < -1 {
			t.Fatalf("Update() = %v, want within [-1, 1]", got)
		}
	}
}

func TestDirectionalSignalHysteresis(t *testing.T) {
	t.Parallel()

	ds := NewDirectionalSignal(0.01, 1.0, 14, 2.0, 3)

	// Two up-ticks should not flip to +1 yet (hysteresis requires 3).
	price := 100.0
	for i := 0; i < 2; i++ {
		price += 1.0
		ds.Update(price)
	}
	if ds.Value() != 0 {
		t.Errorf("Value() after 2 up-ticks = %d, want 0 (hysteresis not yet satisfied)", ds.Value())
	}
}

func TestToxicityDetectorMeasuresAdverseExcursion(t *testing.T) {
	t.Parallel()

	td := NewToxicityDetector(time.Minute, 10*time.Second)
	now := time.Now()
	td.UpdateATR(1.0, now)
	td.RecordFill(types.Buy, 100.0, now)

	// Price drops after we bought: adverse for the buy side.
	score := td.Score(99.0, now.Add(time.Second))
	if score <= 0 {
		t.Errorf("Score() after adverse move = %v, want > 0", score)
	}
}

func TestToxicityDetectorEvictsStaleFills(t *testing.T) {
	t.Parallel()

	td := NewToxicityDetector(time.Second, time.Second)
	now := time.Now()
	td.UpdateATR(1.0, now)
	td.RecordFill(types.Buy, 100.0, now)

	score := td.Score(90.0, now.Add(10*time.Second))
	if score != 0 {
		t.Errorf("Score() after fill aged out = %v, want 0", score)
	}
}

package inventory

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"hlmaker/pkg/types"
)

func fill(side types.Side, price, size, fee float64) types.FillEvent {
	return types.FillEvent{
		Side:      side,
		Price:     decimal.NewFromFloat(price),
		Size:      decimal.NewFromFloat(size),
		Fee:       decimal.NewFromFloat(fee),
		Timestamp: time.Now(),
	}
}

func TestRecordFillOpensPosition(t *testing.T) {
	t.Parallel()

	inv := New("BTC")
	inv.RecordFill(fill(types.Buy, 100, 2, 0.1))

	snap := inv.Snapshot()
	if snap.NetPosition != 2 {
		t.Errorf("NetPosition = %v, want 2", snap.NetPosition)
	}
	if snap.AvgEntryPrice != 100 {
		t.Errorf("AvgEntryPrice = %v, want 100", snap.AvgEntryPrice)
	}
}

func TestRecordFillFlattenZeroesUnrealized(t *testing.T) {
	t.Parallel()

	inv := New("BTC")
	inv.RecordFill(fill(types.Buy, 100, 2, 0))
	inv.MarkToMarket(110)
	inv.RecordFill(fill(types.Sell, 110, 2, 0))

	snap := inv.Snapshot()
	if snap.NetPosition != 0 {
		t.Fatalf("NetPosition after flatten = %v, want 0", snap.NetPosition)
	}
	if got := inv.MarkToMarket(110); got != 0 {
		t.Errorf("MarkToMarket() after flatten = %v, want 0", got)
	}
	if snap.RealizedPnL != 20 {
		t.Errorf("RealizedPnL = %v, want 20", snap.RealizedPnL)
	}
}

func TestRecordFillFeeConvention(t *testing.T) {
	t.Parallel()

	inv := New("ETH")
	inv.RecordFill(fill(types.Buy, 100, 1, 0.05))
	inv.RecordFill(fill(types.Sell, 100, 1, 0.05))

	if got := inv.NetPnL(); got != -0.10 {
		t.Errorf("NetPnL() for round-trip at flat price = %v, want -0.10", got)
	}
}

func TestRecordFillFlipsThroughZero(t *testing.T) {
	t.Parallel()

	inv := New("BTC")
	inv.RecordFill(fill(types.Buy, 100, 1, 0))
	inv.RecordFill(fill(types.Sell, 110, 3, 0))

	snap := inv.Snapshot()
	if snap.NetPosition != -2 {
		t.Errorf("NetPosition after flip = %v, want -2", snap.NetPosition)
	}
	if snap.AvgEntryPrice != 110 {
		t.Errorf("AvgEntryPrice after flip = %v, want 110 (fresh entry)", snap.AvgEntryPrice)
	}
}

func TestMarkToMarketUnrealized(t *testing.T) {
	t.Parallel()

	inv := New("BTC")
	inv.RecordFill(fill(types.Buy, 100, 2, 0))

	if got := inv.MarkToMarket(105); got != 10 {
		t.Errorf("MarkToMarket(105) = %v, want 10", got)
	}
}

package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"hlmaker/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "metrics.db"), filepath.Join(dir, "csv"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func dayRow(day time.Time, netPnL float64) types.MetricsRow {
	return types.MetricsRow{
		DayBucketStart:    day,
		GrossPnL:          netPnL + 10,
		Fees:              10,
		NetPnL:            netPnL,
		FillsBuy:          5,
		FillsSell:         4,
		MaxDrawdown:       50,
		InventoryAvg:      100,
		InventoryMax:      250,
		QuotedSpreadBps:   8,
		CapturedSpreadBps: 6,
		ToxicityEMA:       0.2,
	}
}

func TestUpsertDayThenRecentDaysRoundTrips(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	if err := s.UpsertDay(ctx, "BTC", dayRow(day, 123.45)); err != nil {
		t.Fatalf("UpsertDay() error = %v", err)
	}

	rows, err := s.RecentDays(ctx, "BTC", 10)
	if err != nil {
		t.Fatalf("RecentDays() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("RecentDays() len = %d, want 1", len(rows))
	}
	if rows[0].NetPnL != 123.45 {
		t.Errorf("NetPnL = %v, want 123.45", rows[0].NetPnL)
	}
	if !rows[0].DayBucketStart.Equal(day) {
		t.Errorf("DayBucketStart = %v, want %v", rows[0].DayBucketStart, day)
	}
}

func TestUpsertDayReplacesSameBucket(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	if err := s.UpsertDay(ctx, "BTC", dayRow(day, 100)); err != nil {
		t.Fatalf("UpsertDay() first error = %v", err)
	}
	if err := s.UpsertDay(ctx, "BTC", dayRow(day, 200)); err != nil {
		t.Fatalf("UpsertDay() second error = %v", err)
	}

	rows, err := s.RecentDays(ctx, "BTC", 10)
	if err != nil {
		t.Fatalf("RecentDays() error = %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("RecentDays() len = %d, want 1 (replace, not append)", len(rows))
	}
	if rows[0].NetPnL != 200 {
		t.Errorf("NetPnL after replace = %v, want 200", rows[0].NetPnL)
	}
}

func TestRecentDaysOrderedNewestFirst(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 7, 20, 0, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		day := base.Add(time.Duration(i) * 24 * time.Hour)
		if err := s.UpsertDay(ctx, "ETH", dayRow(day, float64(i))); err != nil {
			t.Fatalf("UpsertDay() error = %v", err)
		}
	}

	rows, err := s.RecentDays(ctx, "ETH", 10)
	if err != nil {
		t.Fatalf("RecentDays() error = %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("RecentDays() len = %d, want 3", len(rows))
	}
	if rows[0].NetPnL != 2 || rows[2].NetPnL != 0 {
		t.Errorf("RecentDays() order = %v, %v, %v, want newest first", rows[0].NetPnL, rows[1].NetPnL, rows[2].NetPnL)
	}
}

func TestRecentDaysSeparatesSymbols(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()
	day := time.Date(2026, 7, 29, 0, 0, 0, 0, time.UTC)

	if err := s.UpsertDay(ctx, "BTC", dayRow(day, 10)); err != nil {
		t.Fatalf("UpsertDay(BTC) error = %v", err)
	}
	if err := s.UpsertDay(ctx, "ETH", dayRow(day, 20)); err != nil {
		t.Fatalf("UpsertDay(ETH) error = %v", err)
	}

	btcRows, err := s.RecentDays(ctx, "BTC", 10)
	if err != nil {
		t.Fatalf("RecentDays(BTC) error = %v", err)
	}
	if len(btcRows) != 1 || btcRows[0].NetPnL != 10 {
		t.Errorf("RecentDays(BTC) = %+v, want single row with NetPnL 10", btcRows)
	}
}

func TestAggregateComputesMeanAndMax(t *testing.T) {
	t.Parallel()

	rows := []types.MetricsRow{
		{NetPnL: 10, MaxDrawdown: 5, InventoryMax: 100, FillsBuy: 2, FillsSell: 1},
		{NetPnL: -10, MaxDrawdown: 20, InventoryMax: 300, FillsBuy: 1, FillsSell: 3},
	}

	w := Aggregate(rows)
	if w.Days != 2 {
		t.Errorf("Days = %d, want 2", w.Days)
	}
	if w.AvgNetPnL != 0 {
		t.Errorf("AvgNetPnL = %v, want 0", w.AvgNetPnL)
	}
	if w.MaxDrawdown != 20 {
		t.Errorf("MaxDrawdown = %v, want 20", w.MaxDrawdown)
	}
	if w.MaxInventory != 300 {
		t.Errorf("MaxInventory = %v, want 300", w.MaxInventory)
	}
	if w.TotalFillsBuy != 3 || w.TotalFillsSell != 4 {
		t.Errorf("fills = %d/%d, want 3/4", w.TotalFillsBuy, w.TotalFillsSell)
	}
}

func TestAggregateEmptyIsZeroValue(t *testing.T) {
	t.Parallel()

	w := Aggregate(nil)
	if w.Days != 0 || w.Sharpe() != 0 {
		t.Errorf("Aggregate(nil) = %+v, want zero-value window", w)
	}
}

func TestSharpeRequiresTwoDays(t *testing.T) {
	t.Parallel()

	w := Aggregate([]types.MetricsRow{{NetPnL: 5}})
	if w.Sharpe() != 0 {
		t.Errorf("Sharpe() with one day = %v, want 0", w.Sharpe())
	}
}

// Package metrics persists per-asset rolling daily performance rows and
// serves them back to the MetaSupervisor and the StrategyLoop. It keeps the
// write-to-.tmp-then-rename discipline used elsewhere in this module for
// on-disk state, but backs a queryable history of daily rows per asset
// with modernc.org/sqlite so the MetaSupervisor's
// "read the last N days" access pattern doesn't mean re-parsing CSV on
// every tick. CSV export is kept alongside as the exact column encoding
// the persisted-state contract names, since external backtesting tooling
// reads that format directly.
package metrics

import (
	"context"
	"database/sql"
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"hlmaker/pkg/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS daily_metrics (
	symbol              TEXT NOT NULL,
	day_bucket_start    INTEGER NOT NULL,
	gross_pnl           REAL NOT NULL,
	fees                REAL NOT NULL,
	net_pnl             REAL NOT NULL,
	fills_buy           INTEGER NOT NULL,
	fills_sell          INTEGER NOT NULL,
	max_drawdown        REAL NOT NULL,
	inventory_avg       REAL NOT NULL,
	inventory_max       REAL NOT NULL,
	quoted_spread_bps   REAL NOT NULL,
	captured_spread_bps REAL NOT NULL,
	toxicity_ema        REAL NOT NULL,
	PRIMARY KEY (symbol, day_bucket_start)
);
`

// Store is a sync.Mutex-serialized sqlite-backed rolling metrics table,
// one row per (symbol, day_bucket_start). All writes also go through
// atomic CSV snapshotting so the persisted daily performance columns have
// a plain-text mirror external tooling can read without a sqlite driver.
type Store struct {
	mu      sync.Mutex
	db      *sql.DB
	dataDir string // directory for CSV mirror files
}

// Open creates or attaches to the sqlite database at dbPath, creating
// dataDir for the CSV mirror if it does not exist.
func Open(dbPath, dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create metrics data dir: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("create metrics db dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open metrics db: %w", err)
	}
	db.SetMaxOpenConns(1) // modernc.org/sqlite: single-writer discipline

	if _, err := db.ExecContext(context.Background(), schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}

	return &Store{db: db, dataDir: dataDir}, nil
}

// Close releases the underlying sqlite connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// UpsertDay persists (or replaces) one asset's row for a given day bucket,
// then mirrors the same row to that asset's CSV file via atomic rename.
func (s *Store) UpsertDay(ctx context.Context, symbol string, row types.MetricsRow) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO daily_metrics (
			symbol, day_bucket_start, gross_pnl, fees, net_pnl,
			fills_buy, fills_sell, max_drawdown, inventory_avg,
			inventory_max, quoted_spread_bps, captured_spread_bps, toxicity_ema
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (symbol, day_bucket_start) DO UPDATE SET
			gross_pnl = excluded.gross_pnl,
			fees = excluded.fees,
			net_pnl = excluded.net_pnl,
			fills_buy = excluded.fills_buy,
			fills_sell = excluded.fills_sell,
			max_drawdown = excluded.max_drawdown,
			inventory_avg = excluded.inventory_avg,
			inventory_max = excluded.inventory_max,
			quoted_spread_bps = excluded.quoted_spread_bps,
			captured_spread_bps = excluded.captured_spread_bps,
			toxicity_ema = excluded.toxicity_ema
	`,
		symbol, row.DayBucketStart.Unix(), row.GrossPnL, row.Fees, row.NetPnL,
		row.FillsBuy, row.FillsSell, row.MaxDrawdown, row.InventoryAvg,
		row.InventoryMax, row.QuotedSpreadBps, row.CapturedSpreadBps, row.ToxicityEMA,
	)
	if err != nil {
		return fmt.Errorf("upsert metrics row: %w", err)
	}

	return s.mirrorCSVLocked(symbol)
}

// RecentDays returns the last n daily rows for symbol, newest first.
func (s *Store) RecentDays(ctx context.Context, symbol string, n int) ([]types.MetricsRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT day_bucket_start, gross_pnl, fees, net_pnl, fills_buy, fills_sell,
		       max_drawdown, inventory_avg, inventory_max, quoted_spread_bps,
		       captured_spread_bps, toxicity_ema
		FROM daily_metrics
		WHERE symbol = ?
		ORDER BY day_bucket_start DESC
		LIMIT ?
	`, symbol, n)
	if err != nil {
		return nil, fmt.Errorf("query recent metrics: %w", err)
	}
	defer rows.Close()

	var out []types.MetricsRow
	for rows.Next() {
		var r types.MetricsRow
		var dayUnix int64
		if err := rows.Scan(&dayUnix, &r.GrossPnL, &r.Fees, &r.NetPnL, &r.FillsBuy,
			&r.FillsSell, &r.MaxDrawdown, &r.InventoryAvg, &r.InventoryMax,
			&r.QuotedSpreadBps, &r.CapturedSpreadBps, &r.ToxicityEMA); err != nil {
			return nil, fmt.Errorf("scan metrics row: %w", err)
		}
		r.DayBucketStart = time.Unix(dayUnix, 0).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// mirrorCSVLocked re-exports the full CSV history for symbol. Caller must
// hold s.mu. Uses the same write-to-.tmp-then-rename pattern as the
// hotreload snapshot writers so a crash mid-export never leaves a
// truncated file.
func (s *Store) mirrorCSVLocked(symbol string) error {
	rows, err := s.db.Query(`
		SELECT day_bucket_start, gross_pnl, fees, net_pnl, fills_buy, fills_sell,
		       max_drawdown, inventory_avg, inventory_max, quoted_spread_bps,
		       captured_spread_bps, toxicity_ema
		FROM daily_metrics
		WHERE symbol = ?
		ORDER BY day_bucket_start ASC
	`, symbol)
	if err != nil {
		return fmt.Errorf("query metrics for csv export: %w", err)
	}
	defer rows.Close()

	path := filepath.Join(s.dataDir, "metrics_"+symbol+".csv")
	tmp := path + ".tmp"

	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create csv tmp: %w", err)
	}

	w := csv.NewWriter(f)
	header := []string{
		"day_bucket_start", "gross_pnl", "fees", "net_pnl", "fills_buy",
		"fills_sell", "max_drawdown", "inventory_avg", "inventory_max",
		"quoted_spread_bps", "captured_spread_bps", "toxicity_ema",
	}
	if err := w.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write csv header: %w", err)
	}

	for rows.Next() {
		var r types.MetricsRow
		var dayUnix int64
		if err := rows.Scan(&dayUnix, &r.GrossPnL, &r.Fees, &r.NetPnL, &r.FillsBuy,
			&r.FillsSell, &r.MaxDrawdown, &r.InventoryAvg, &r.InventoryMax,
			&r.QuotedSpreadBps, &r.CapturedSpreadBps, &r.ToxicityEMA); err != nil {
			f.Close()
			return fmt.Errorf("scan csv row: %w", err)
		}
		record := []string{
			time.Unix(dayUnix, 0).UTC().Format(time.RFC3339),
			strconv.FormatFloat(r.GrossPnL, 'f', -1, 64),
			strconv.FormatFloat(r.Fees, 'f', -1, 64),
			strconv.FormatFloat(r.NetPnL, 'f', -1, 64),
			strconv.Itoa(r.FillsBuy),
			strconv.Itoa(r.FillsSell),
			strconv.FormatFloat(r.MaxDrawdown, 'f', -1, 64),
			strconv.FormatFloat(r.InventoryAvg, 'f', -1, 64),
			strconv.FormatFloat(r.InventoryMax, 'f', -1, 64),
			strconv.FormatFloat(r.QuotedSpreadBps, 'f', -1, 64),
			strconv.FormatFloat(r.CapturedSpreadBps, 'f', -1, 64),
			strconv.FormatFloat(r.ToxicityEMA, 'f', -1, 64),
		}
		if err := w.Write(record); err != nil {
			f.Close()
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	if err := rows.Err(); err != nil {
		f.Close()
		return err
	}

	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush csv: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close csv tmp: %w", err)
	}
	return os.Rename(tmp, path)
}

// RollingWindow aggregates the last n daily rows into a single Sharpe-like
// summary the MetaSupervisor and the StrategyLoop consume, avoiding a second
// per-caller reduction over the same RecentDays slice.
type RollingWindow struct {
	TotalNetPnL    float64
	AvgNetPnL      float64
	StdDevNetPnL   float64
	TotalFillsBuy  int
	TotalFillsSell int
	MaxDrawdown    float64
	AvgInventory   float64
	MaxInventory   float64
	AvgToxicityEMA float64
	Days           int
}

// Sharpe returns the simple mean/stddev ratio of daily net PnL over the
// window, 0 if fewer than two days are present or stddev is zero.
func (w RollingWindow) Sharpe() float64 {
	if w.Days < 2 || w.StdDevNetPnL == 0 {
		return 0
	}
	return w.AvgNetPnL / w.StdDevNetPnL
}

// Aggregate reduces rows (as returned by RecentDays, any order) into a
// RollingWindow.
func Aggregate(rows []types.MetricsRow) RollingWindow {
	var w RollingWindow
	w.Days = len(rows)
	if w.Days == 0 {
		return w
	}

	var sumNet float64
	for _, r := range rows {
		sumNet += r.NetPnL
		w.TotalNetPnL += r.NetPnL
		w.TotalFillsBuy += r.FillsBuy
		w.TotalFillsSell += r.FillsSell
		w.AvgInventory += r.InventoryAvg
		w.AvgToxicityEMA += r.ToxicityEMA
		if r.MaxDrawdown > w.MaxDrawdown {
			w.MaxDrawdown = r.MaxDrawdown
		}
		if r.InventoryMax > w.MaxInventory {
			w.MaxInventory = r.InventoryMax
		}
	}
	w.AvgNetPnL = sumNet / float64(w.Days)
	w.AvgInventory /= float64(w.Days)
	w.AvgToxicityEMA /= float64(w.Days)

	var sumSq float64
	for _, r := range rows {
		d := r.NetPnL - w.AvgNetPnL
		sumSq += d * d
	}
	if w.Days > 1 {
		w.StdDevNetPnL = math.Sqrt(sumSq / float64(w.Days-1))
	}

	return w
}

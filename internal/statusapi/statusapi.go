// Package statusapi runs the read-only HTTP status endpoint: a health
// check and a point-in-time snapshot of every asset's StrategyLoop,
// trimmed from a full operator dashboard down to the two routes a
// monitoring probe or a human checking in actually needs.
package statusapi

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
)

// AssetStatus is one asset's snapshot, mirroring strategy.Status so this
// package does not need to import internal/strategy directly — the
// Provider supplies already-converted values.
type AssetStatus struct {
	Symbol          string    `json:"symbol"`
	Mid             float64   `json:"mid"`
	BestBid         float64   `json:"best_bid"`
	BestAsk         float64   `json:"best_ask"`
	NetPosition     float64   `json:"net_position"`
	NetPositionUSD  float64   `json:"net_position_usd"`
	RealizedPnL     float64   `json:"realized_pnl"`
	UnrealizedPnL   float64   `json:"unrealized_pnl"`
	NetPnLToday     float64   `json:"net_pnl_today"`
	RiskState       string    `json:"risk_state"`
	ActiveCapital   float64   `json:"active_capital"`
	QuotedSpreadBps float64   `json:"quoted_spread_bps"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Snapshot is the full payload served at /api/snapshot.
type Snapshot struct {
	Timestamp       time.Time     `json:"timestamp"`
	Assets          []AssetStatus `json:"assets"`
	TotalRealized   float64       `json:"total_realized_pnl"`
	TotalUnrealized float64       `json:"total_unrealized_pnl"`
	TotalNetPnL     float64       `json:"total_net_pnl"`
}

// Provider supplies the current snapshot; implemented by the engine
// supervisor that owns every asset's StrategyLoop.
type Provider interface {
	Snapshot() Snapshot
}

// Server is the minimal read-only status HTTP server.
type Server struct {
	provider Provider
	server   *http.Server
	logger   *slog.Logger
}

// NewServer builds the status server bound to addr (e.g. ":8090").
func NewServer(addr string, provider Provider, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	s := &Server{provider: provider, logger: logger.With("component", "status-api")}

	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/snapshot", s.handleSnapshot)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 5 * time.Second,
		IdleTimeout:  30 * time.Second,
	}
	return s
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func (s *Server) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	snap := s.provider.Snapshot()
	s.logger.Debug("snapshot served",
		"assets", len(snap.Assets),
		"total_net_pnl", humanize.FormatFloat("#,###.##", snap.TotalNetPnL)+" USD",
	)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		s.logger.Warn("encode snapshot failed", "error", err)
	}
}

// Start runs the HTTP server; blocks until Stop closes it.
func (s *Server) Start() error {
	s.logger.Info("status api starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("status api: %w", err)
	}
	return nil
}

// Stop gracefully shuts the server down.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

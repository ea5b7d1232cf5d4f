// Package engine is the central orchestrator of the market-making bot.
//
// It wires together all subsystems:
//
//  1. Engine starts one StrategyLoop goroutine per configured asset (the
//     asset list is static, from config, not discovered at runtime).
//  2. Each asset gets its own Inventory, RiskSupervisor, OrderManager,
//     Sizer, AutoTuner, and estimator set, sharing one exchange Client
//     and one metrics Store.
//  3. The user WebSocket feed's fills are dispatched to the correct
//     asset's fills channel. The market-data feed is connected and
//     subscribed, but its book/trade events are not consumed; each
//     StrategyLoop reads the book over REST.
//  4. A MetaSupervisor allocator pass runs on its own slow cadence,
//     publishing a new AllocatorState snapshot every asset's StrategyLoop
//     picks up on its next hot-reload check.
//
// Lifecycle: New() → Start() → [runs until context cancellation] → Stop()
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"golang.org/x/sync/errgroup"

	"hlmaker/internal/allocator"
	"hlmaker/internal/autotune"
	"hlmaker/internal/config"
	"hlmaker/internal/estimator"
	"hlmaker/internal/exchange"
	"hlmaker/internal/hotreload"
	"hlmaker/internal/inventory"
	"hlmaker/internal/metrics"
	"hlmaker/internal/order"
	"hlmaker/internal/quote"
	"hlmaker/internal/risk"
	"hlmaker/internal/sizer"
	"hlmaker/internal/statusapi"
	"hlmaker/internal/strategy"
	"hlmaker/pkg/types"
)

// assetSlot is one actively-traded asset: its StrategyLoop plus the fill
// channel the engine's WS dispatcher feeds it.
type assetSlot struct {
	symbol string
	loop   *strategy.StrategyLoop
	fills  chan types.FillEvent
	cancel context.CancelFunc
}

// Engine owns the lifecycle of every asset's StrategyLoop plus the shared
// exchange client, WS feeds, metrics store, and MetaSupervisor.
type Engine struct {
	cfg     config.Config
	client  *exchange.Client
	auth    *exchange.Auth
	mktFeed *exchange.WSFeed
	usrFeed *exchange.WSFeed
	metrics *metrics.Store
	logger  *slog.Logger

	slots   map[string]*assetSlot
	slotsMu sync.RWMutex

	liveParamsPath  string
	allocationsPath string

	cancel context.CancelFunc
	ctx    context.Context // derived from the errgroup: cancels on the first fatal goroutine error
	group  *errgroup.Group
}

// New creates and wires all engine components for the assets named in
// cfg.Assets.
func New(cfg config.Config, logger *slog.Logger) (*Engine, error) {
	auth, err := exchange.NewAuth(cfg)
	if err != nil {
		return nil, fmt.Errorf("init auth: %w", err)
	}

	client := exchange.NewClient(cfg, auth, logger)

	mktFeed := exchange.NewMarketFeed(cfg.Venue.WSURL, logger)
	usrFeed := exchange.NewUserFeed(cfg.Venue.WSURL, auth, logger)

	store, err := metrics.Open(filepath.Join(cfg.Store.DataDir, "metrics.db"), cfg.Store.DataDir)
	if err != nil {
		return nil, fmt.Errorf("open metrics store: %w", err)
	}

	parentCtx, cancel := context.WithCancel(context.Background())
	group, gctx := errgroup.WithContext(parentCtx)

	return &Engine{
		cfg:             cfg,
		client:          client,
		auth:            auth,
		mktFeed:         mktFeed,
		usrFeed:         usrFeed,
		metrics:         store,
		logger:          logger.With("component", "engine"),
		slots:           make(map[string]*assetSlot),
		liveParamsPath:  filepath.Join(cfg.Store.DataDir, "live_params.json"),
		allocationsPath: filepath.Join(cfg.Store.DataDir, "allocations.json"),
		ctx:             gctx,
		cancel:          cancel,
		group:           group,
	}, nil
}

// Start launches the WS feeds, every asset's StrategyLoop, the WS event
// dispatchers, and (if configured) the MetaSupervisor allocation loop.
func (e *Engine) Start() error {
	e.group.Go(func() error {
		if err := e.mktFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("market feed error", "error", err)
		}
		return nil
	})

	e.group.Go(func() error {
		if err := e.usrFeed.Run(e.ctx); err != nil && e.ctx.Err() == nil {
			e.logger.Error("user feed error", "error", err)
		}
		return nil
	})

	symbols := make([]string, 0, len(e.cfg.Assets))
	for symbol := range e.cfg.Assets {
		symbols = append(symbols, symbol)
	}
	if err := e.mktFeed.Subscribe(symbols); err != nil {
		e.logger.Warn("market feed subscribe failed", "error", err)
	}

	for symbol, assetCfg := range e.cfg.AssetConfigs() {
		if err := e.startAsset(symbol, assetCfg); err != nil {
			return fmt.Errorf("start asset %s: %w", symbol, err)
		}
	}

	e.group.Go(func() error {
		e.dispatchUserEvents()
		return nil
	})

	if e.cfg.Allocator.Enabled {
		e.group.Go(func() error {
			e.runAllocator()
			return nil
		})
	}

	return nil
}

func (e *Engine) startAsset(symbol string, assetCfg types.AssetConfig) error {
	inv := inventory.New(symbol)
	if pos, err := e.client.Position(e.ctx, symbol); err == nil {
		posF, _ := pos.Float64()
		inv.SetPosition(inventory.Position{NetPosition: posF, LastUpdated: time.Now()})
	}

	riskMgr := risk.New(assetCfg.Limits, time.Now())
	orders := order.New(symbol)
	sz := sizer.New(assetCfg.Params.OrderSizeUSD*0.1, assetCfg.Params.OrderSizeUSD*3)
	tuner := autotune.New(assetCfg.Params, e.cfg.AutoTune.WindowSize, e.cfg.AutoTune.ReviewPeriod, e.cfg.AutoTune.DriftGuard)
	vol := estimator.NewVolatility(30 * time.Second)
	imbalance := estimator.NewBookImbalance(5, 15*time.Second)
	signal := estimator.NewDirectionalSignal(1e-5, 1e-4, 14, 4.236, 3)
	toxicity := estimator.NewToxicityDetector(5*time.Minute, time.Minute)

	fills := make(chan types.FillEvent, 64)
	ctx, cancel := context.WithCancel(e.ctx)

	deps := strategy.Deps{
		Adapter:     e.client,
		Quote:       quote.New(symbol),
		Inventory:   inv,
		Risk:        riskMgr,
		Orders:      orders,
		Sizer:       sz,
		Tuner:       tuner,
		Volatility:  vol,
		Imbalance:   imbalance,
		Signal:      signal,
		Toxicity:    toxicity,
		Metrics:     e.metrics,
		LiveParams:  hotreload.NewReader[hotreload.LiveParams](e.liveParamsPath),
		Allocations: hotreload.NewReader[types.AllocatorState](e.allocationsPath),
		ReloadEvery: hotreload.NewTicker(1800), // ~hourly at the 2s tick cadence
		Fills:       fills,
		Logger:      e.logger,
	}

	loopCfg := strategy.Config{
		Symbol:               symbol,
		Precision:            assetCfg.Precision,
		Params:               assetCfg.Params,
		Limits:               assetCfg.Limits,
		Capital:              assetCfg.Capital,
		Compound:             assetCfg.Compound,
		Adaptive:             assetCfg.Adaptive,
		ToxicityThrottle:     assetCfg.ToxicityThrottleEnabled,
		MaxBatch:             e.cfg.Venue.MaxBatchSize,
		BookDepth:            10,
		TickInterval:         2 * time.Second,
		PostOnly:             true,
		DeadMansCadenceTicks: 7, // ~15s re-arm at a 2s tick cadence, comfortably inside a 60s venue timeout
		DeadMansTimeout:      e.cfg.Venue.DeadMansTimeout,
		AutoTuneWindow:       e.cfg.AutoTune.WindowSize,
	}

	loop := strategy.New(loopCfg, deps, time.Now())

	e.slotsMu.Lock()
	e.slots[symbol] = &assetSlot{symbol: symbol, loop: loop, fills: fills, cancel: cancel}
	e.slotsMu.Unlock()

	e.group.Go(func() error {
		err := loop.Run(ctx)
		if err == nil || ctx.Err() != nil {
			return nil
		}
		var fatal *strategy.FatalError
		if errors.As(err, &fatal) {
			e.logger.Error("strategy loop exited on a fatal adapter error", "symbol", symbol, "error", err)
			return err
		}
		e.logger.Error("strategy loop exited", "symbol", symbol, "error", err)
		return nil
	})

	e.logger.Info("asset started", "symbol", symbol, "capital", humanize.FormatFloat("#,###.##", assetCfg.Capital)+" USD")
	return nil
}

// Stop cancels every asset's loop, cancels all resting orders as a safety
// net, waits for goroutines, and closes resources.
func (e *Engine) Stop() {
	e.logger.Info("shutting down...")

	e.cancel()

	cancelCtx, cancelCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancelCancel()
	e.slotsMu.RLock()
	for symbol := range e.slots {
		if err := e.client.CancelAll(cancelCtx, symbol); err != nil {
			e.logger.Error("failed to cancel all orders on shutdown", "symbol", symbol, "error", err)
		}
	}
	e.slotsMu.RUnlock()

	_ = e.group.Wait()

	_ = e.mktFeed.Close()
	_ = e.usrFeed.Close()
	_ = e.metrics.Close()

	e.logger.Info("shutdown complete")
}

// Wait blocks until every supervised goroutine (WS feeds, per-asset
// StrategyLoops, the allocator) has exited, returning the first fatal error
// reported by the errgroup, if any. A caller normally races this against a
// shutdown-signal channel to decide whether to exit with a fatal status.
func (e *Engine) Wait() error {
	return e.group.Wait()
}

// dispatchUserEvents routes streamed fills to the correct asset's channel.
func (e *Engine) dispatchUserEvents() {
	for {
		select {
		case <-e.ctx.Done():
			return
		case push := <-e.usrFeed.FillEvents():
			e.routeFill(push)
		}
	}
}

func (e *Engine) routeFill(push exchange.FillPushEvent) {
	e.slotsMu.RLock()
	slot, ok := e.slots[push.Fill.Symbol]
	e.slotsMu.RUnlock()
	if !ok {
		return
	}
	select {
	case slot.fills <- push.Fill:
	default:
		e.logger.Warn("fill channel full", "symbol", push.Fill.Symbol)
	}
}

// runAllocator runs the MetaSupervisor on its configured cadence,
// publishing each new AllocatorState for every StrategyLoop to pick up.
func (e *Engine) runAllocator() {
	sup := allocator.New(allocator.Config{
		MinCapitalUSD:  e.cfg.Allocator.MinCapitalUSD,
		MaxShareOfPool: e.cfg.Allocator.MaxShareOfPool,
		DailyMoveCap:   e.cfg.Allocator.DailyMoveCap,
		MeanRevertRate: e.cfg.Allocator.MeanRevertRate,
	})
	interval := e.cfg.Allocator.ReviewInterval
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-e.ctx.Done():
			return
		case now := <-ticker.C:
			e.reviewAllocations(sup, now)
		}
	}
}

func (e *Engine) reviewAllocations(sup *allocator.Supervisor, now time.Time) {
	var totalPool float64
	metricsIn := make([]allocator.AssetMetrics, 0, len(e.cfg.Assets))
	for symbol, assetCfg := range e.cfg.AssetConfigs() {
		rows, err := e.metrics.RecentDays(e.ctx, symbol, 7)
		if err != nil {
			continue
		}
		agg := metrics.Aggregate(rows)
		totalPool += assetCfg.Capital

		var sharpeNorm, returnNorm, drawdownNorm float64
		if s := agg.Sharpe(); s > 0 {
			sharpeNorm = clamp01(s / 3.0)
		}
		if assetCfg.Capital > 0 {
			returnNorm = clamp01(0.5 + agg.AvgNetPnL*float64(agg.Days)/assetCfg.Capital)
			drawdownNorm = clamp01(agg.MaxDrawdown / assetCfg.Capital)
		}
		var compounded float64
		e.slotsMu.RLock()
		if slot, ok := e.slots[symbol]; ok {
			compounded = slot.loop.Status().RealizedPnL
		}
		e.slotsMu.RUnlock()
		metricsIn = append(metricsIn, allocator.AssetMetrics{
			Symbol:        symbol,
			SharpeNorm:    sharpeNorm,
			ReturnNorm:    returnNorm,
			DrawdownNorm:  drawdownNorm,
			Consistency:   clamp01(float64(agg.Days) / 7.0),
			PriorBase:     assetCfg.Capital,
			CompoundedPnL: compounded,
			Compound:      assetCfg.Compound,
		})
	}
	if len(metricsIn) == 0 {
		return
	}

	state := sup.Run(metricsIn, totalPool, now)
	if err := hotreload.WriteAllocations(e.allocationsPath, state); err != nil {
		e.logger.Error("write allocations failed", "error", err)
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Snapshot implements statusapi.Provider, aggregating every asset's
// StrategyLoop status into the read-only dashboard payload.
func (e *Engine) Snapshot() statusapi.Snapshot {
	e.slotsMu.RLock()
	defer e.slotsMu.RUnlock()

	assets := make([]statusapi.AssetStatus, 0, len(e.slots))
	var totalRealized, totalUnrealized float64
	for _, slot := range e.slots {
		st := slot.loop.Status()
		assets = append(assets, statusapi.AssetStatus{
			Symbol:          st.Symbol,
			Mid:             st.Mid,
			BestBid:         st.BestBid,
			BestAsk:         st.BestAsk,
			NetPosition:     st.NetPosition,
			NetPositionUSD:  st.NetPositionUSD,
			RealizedPnL:     st.RealizedPnL,
			UnrealizedPnL:   st.UnrealizedPnL,
			NetPnLToday:     st.NetPnLToday,
			RiskState:       st.RiskState.String(),
			ActiveCapital:   st.ActiveCapital,
			QuotedSpreadBps: st.QuotedSpreadBps,
			UpdatedAt:       st.UpdatedAt,
		})
		totalRealized += st.RealizedPnL
		totalUnrealized += st.UnrealizedPnL
	}

	return statusapi.Snapshot{
		Timestamp:       time.Now(),
		Assets:          assets,
		TotalRealized:   totalRealized,
		TotalUnrealized: totalUnrealized,
		TotalNetPnL:     totalRealized + totalUnrealized,
	}
}

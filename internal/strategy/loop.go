// Package strategy implements the per-asset StrategyLoop: the cooperative,
// single-threaded tick pipeline that ties together market-data reads,
// signal estimation, quote pricing, risk gating, dynamic sizing, order
// reconciliation, fill ingestion, and parameter auto-tuning for one asset.
package strategy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"hlmaker/internal/autotune"
	"hlmaker/internal/estimator"
	"hlmaker/internal/exchange"
	"hlmaker/internal/hotreload"
	"hlmaker/internal/inventory"
	"hlmaker/internal/metrics"
	"hlmaker/internal/order"
	"hlmaker/internal/quote"
	"hlmaker/internal/risk"
	"hlmaker/internal/sizer"
	"hlmaker/pkg/types"
)

// positionCheckInterval is the cadence of the periodic local/venue position
// reconciliation (see checkPositionMismatch); independent of TickInterval.
const positionCheckInterval = time.Minute

// positionMismatchTolerance is the absolute size divergence, in base asset
// units, tolerated before a KindMismatch-style reconciliation fires.
const positionMismatchTolerance = 1e-6

// FatalError signals an adapter condition that must halt the whole process
// rather than just this tick or this asset — currently only a credentials
// or permissions failure (AdapterErrorKind KindAuth). StrategyLoop.Run
// returns it unwrapped so a supervising errgroup can propagate it as the
// first fatal error out of Engine.Wait.
type FatalError struct {
	Symbol string
	Op     string
	Err    error
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal: %s[%s]: %v", e.Op, e.Symbol, e.Err)
}

func (e *FatalError) Unwrap() error { return e.Err }

// Deps bundles every collaborator one StrategyLoop coordinates. All of them
// are safe to share only in the sense that each manages its own
// synchronization where concurrent access is possible (e.g. a fill
// arriving on the WS goroutine while the loop tick runs); the loop itself
// runs as a single task per asset and touches no shared mutable state of
// its own without going through these collaborators.
type Deps struct {
	Adapter     exchange.Adapter
	Quote       *quote.Engine
	Inventory   *inventory.Inventory
	Risk        *risk.Manager
	Orders      *order.Manager
	Sizer       *sizer.Sizer
	Tuner       *autotune.Tuner
	Volatility  *estimator.Volatility
	Imbalance   *estimator.BookImbalance
	Signal      *estimator.DirectionalSignal
	Toxicity    *estimator.ToxicityDetector
	Metrics     *metrics.Store
	LiveParams  *hotreload.Reader[hotreload.LiveParams]
	Allocations *hotreload.Reader[types.AllocatorState]
	ReloadEvery *hotreload.Ticker
	// Fills delivers streamed fill executions (from the venue's user
	// WebSocket feed); may be nil, in which case no fills reach Inventory:
	// the open_orders snapshot diff only drops vanished orders from local
	// tracking.
	Fills  <-chan types.FillEvent
	Logger *slog.Logger
}

// Config is the static, per-asset tuning for one StrategyLoop.
type Config struct {
	Symbol       string
	Precision    types.Precision
	Params       types.QuoteParams
	Limits       types.RiskLimits
	Capital      float64
	Compound     bool
	Adaptive     types.AdaptiveConfig
	// ToxicityThrottle gates the sizer's toxicity-based order-size
	// throttle; set from --toxicity (default on) via types.AssetConfig.
	ToxicityThrottle bool
	MaxBatch     int
	BookDepth    int
	TickInterval time.Duration
	// PostOnly submits every order add-liquidity-only; a venue cross
	// rejection is then a routine, non-fatal outcome handled inline.
	PostOnly             bool
	DeadMansCadenceTicks uint64
	DeadMansTimeout      time.Duration
	AutoTuneWindow       time.Duration
}

// StrategyLoop runs the tick pipeline for one asset until its context is
// cancelled.
type StrategyLoop struct {
	cfg  Config
	deps Deps

	params     types.QuoteParams // effective base params; mutated by hot-reload and AutoTuner
	baseLimits types.RiskLimits
	limits     types.RiskLimits // baseLimits scaled by the current allocator multiplier
	baseCapital float64
	capital     float64
	allocMult   types.RiskMultipliers

	tickSeq    uint64
	window     *windowStats
	dayAcc     *dayAccumulator
	posTracker positionTracker
	lastTickAt time.Time
	lastNetPnL float64 // previous tick's net PnL, for the window's per-tick deltas

	// rejectStrikes counts consecutive KindRejectedInvalid rejections per
	// (side, level) key; suppressedLevels records which keys have been
	// permanently suppressed after crossing the strike threshold.
	rejectStrikes    map[string]int
	suppressedLevels map[string]bool
	// quotingSuspended suppresses both sides for the current tick only,
	// re-armed by handleAdapterError whenever a KindStale error recurs.
	quotingSuspended  bool
	lastPositionCheck time.Time

	// statusMu guards status, the only StrategyLoop state read from
	// outside the tick goroutine (the status API's snapshot handler).
	statusMu sync.Mutex
	status   Status
}

// Status is a point-in-time snapshot of one asset's loop state, safe to
// read concurrently with the tick goroutine via StrategyLoop.Status.
type Status struct {
	Symbol          string
	Mid             float64
	BestBid         float64
	BestAsk         float64
	NetPosition     float64
	NetPositionUSD  float64
	RealizedPnL     float64
	UnrealizedPnL   float64
	NetPnLToday     float64
	RiskState       types.RiskState
	ActiveCapital   float64
	QuotedSpreadBps float64
	UpdatedAt       time.Time
}

// Status returns the most recent snapshot recorded at the end of a tick.
func (s *StrategyLoop) Status() Status {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	return s.status
}

// New creates a StrategyLoop for one asset, seeded at the given time (used
// to establish the rolling-window and daily-bucket clocks).
func New(cfg Config, deps Deps, now time.Time) *StrategyLoop {
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 2 * time.Second
	}
	return &StrategyLoop{
		cfg:               cfg,
		deps:              deps,
		params:            cfg.Params,
		baseLimits:        cfg.Limits,
		limits:            cfg.Limits,
		baseCapital:       cfg.Capital,
		capital:           cfg.Capital,
		allocMult:         types.RiskMultipliers{Size: 1, Spread: 1, MaxPos: 1},
		window:            newWindowStats(now),
		dayAcc:            newDayAccumulator(now),
		lastTickAt:        now.Add(-cfg.TickInterval),
		rejectStrikes:     make(map[string]int),
		suppressedLevels:  make(map[string]bool),
		lastPositionCheck: now,
	}
}

// Run drives the tick pipeline on cfg.TickInterval until ctx is cancelled.
func (s *StrategyLoop) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C:
			if err := s.tick(ctx, now); err != nil {
				var fatal *FatalError
				if errors.As(err, &fatal) {
					return err
				}
				s.deps.Logger.Warn("tick failed", "symbol", s.cfg.Symbol, "error", err)
			}
		}
	}
}

// tick runs exactly one pass of the ten-step pipeline: read market data,
// update estimators, check hot-reload, compute a quote, gate and size it,
// reconcile orders, ingest fills, review auto-tuning, and arm the
// dead-man switch if due.
func (s *StrategyLoop) tick(ctx context.Context, now time.Time) error {
	s.tickSeq++
	s.quotingSuspended = false

	if err := s.checkPositionMismatch(ctx, now); err != nil {
		return err
	}

	// 1. Read mid, book top-N, recent trades.
	book, err := s.deps.Adapter.OrderBook(ctx, s.cfg.Symbol, s.cfg.BookDepth)
	if err != nil {
		return s.handleAdapterError(now, "order_book", err)
	}
	mid, ok := book.MidPrice()
	if !ok {
		s.deps.Risk.RecordAPIError(now)
		return nil
	}
	midF, _ := mid.Float64()

	if _, err := s.deps.Adapter.RecentTrades(ctx, s.cfg.Symbol, s.lastTickAt); err != nil {
		if ferr := s.handleAdapterError(now, "recent_trades", err); ferr != nil {
			return ferr
		}
	}
	s.lastTickAt = now

	// 2. Update estimators.
	volBps := s.deps.Volatility.Update(midF, now)
	imbalanceVal := s.deps.Imbalance.Update(book, now)
	directional := s.deps.Signal.Update(midF)
	s.deps.Toxicity.UpdateATR(midF*volBps/10000.0, now)
	tox := s.deps.Toxicity.Score(midF, now)

	// 3. Hot-reload check every N ticks.
	if s.deps.ReloadEvery != nil && s.deps.ReloadEvery.Tick() {
		s.checkHotReload(now)
	}

	netPosition := s.deps.Inventory.NetPosition()
	maxPositionUSD := s.limits.MaxPositionUSD * s.allocMult.MaxPos

	bestBid, bestAsk, _ := book.BestBidAsk()
	bestBidF, _ := bestBid.Float64()
	bestAskF, _ := bestAsk.Float64()

	// 4. Compute Quote.
	effectiveParams := applyVolRegimeAdjustment(s.params, volBps, s.cfg.Adaptive)
	effectiveParams.BaseSpreadBps *= s.allocMult.Spread

	quoteInputs := quote.Inputs{
		Mid:            midF,
		VolatilityBps:  volBps,
		NetPosition:    netPosition,
		MaxPositionUSD: maxPositionUSD,
		BookImbalance:  imbalanceVal,
		DirectionalSig: directional,
		Toxicity:       tox,
		BestBidBps:     bestBidF,
		BestAskBps:     bestAskF,
	}
	q := s.deps.Quote.Compute(effectiveParams, s.cfg.Precision, quoteInputs, now)

	if s.cfg.Adaptive.Enabled {
		held := s.posTracker.update(netPosition, now)
		q = applyInventoryDecayBias(q, netPosition, midF, held, s.cfg.Adaptive.InventoryDecayThreshold, s.cfg.Adaptive.InventoryDecayMaxBiasBps)
	}

	// 5. Ask RiskSupervisor for gate; apply masking.
	riskState := s.deps.Risk.Evaluate(risk.Snapshot{
		NetPnLToday:    s.dayAcc.row().NetPnL,
		Capital:        s.capital,
		NetPositionUSD: netPosition * midF,
		Now:            now,
	})
	switch riskState {
	case types.CircuitBreak:
		q.SuppressBid = true
		q.SuppressAsk = true
	case types.PositionLimit:
		if netPosition > 0 {
			q.SuppressBid = true
		} else if netPosition < 0 {
			q.SuppressAsk = true
		}
	}
	if s.quotingSuspended {
		q.SuppressBid = true
		q.SuppressAsk = true
	}

	// 6. Ask DynamicSizer for size multiplier; rescale Quote sizes.
	var utilisation float64
	if maxPositionUSD > 0 {
		utilisation = absF(netPosition) / maxPositionUSD
	}
	s.window.maybeReset(now, s.cfg.AutoTuneWindow)
	sizerInputs := sizer.Inputs{
		Regime:                  classifyRegime(volBps, s.cfg.Adaptive.VolRegimeLowBps, s.cfg.Adaptive.VolRegimeHighBps),
		FillRate:                s.window.fillRate(),
		TargetFillRate:          s.cfg.Adaptive.TargetFillRate,
		InventoryUtil:           utilisation,
		ToxicityEMA:             tox,
		ToxicityThrottleEnabled: s.cfg.ToxicityThrottle,
		Drawdown7dFraction:      s.recentDrawdownFraction(ctx),
		DrawdownThreshold:       s.cfg.Adaptive.DrawdownThresholdFrac,
	}
	baseOrderUSD := effectiveParams.OrderSizeUSD * s.allocMult.Size
	scaledOrderUSD := s.deps.Sizer.Apply(baseOrderUSD, sizerInputs)
	rescaleQuoteSizes(&q, effectiveParams.OrderSizeUSD, scaledOrderUSD, s.cfg.Precision)

	// 7. Submit reconciliation via OrderManager.
	s.applySuppressedLevels(&q)
	intents := s.deps.Orders.Reconcile(q, effectiveParams, s.cfg.Precision)
	if err := s.submitIntents(ctx, intents); err != nil {
		return err
	}

	// 8. Pull fills (stream or snapshot diff); update Inventory; update Metrics.
	filled := s.ingestFills(midF, now)
	if err := s.reconcileOpenOrdersSnapshot(ctx, now); err != nil {
		return err
	}

	unrealized := s.deps.Inventory.MarkToMarket(midF)
	netPnL := s.deps.Inventory.NetPnL() + unrealized
	s.dayAcc.observeTick(netPnL, netPosition, q.HalfSpreadBp*2)
	s.dayAcc.observeToxicity(tox)
	if row, rolled := s.dayAcc.rollIfNeeded(now); rolled {
		_ = s.deps.Metrics.UpsertDay(ctx, s.cfg.Symbol, row)
	}
	_ = s.deps.Metrics.UpsertDay(ctx, s.cfg.Symbol, s.dayAcc.row())

	s.window.add(netPnL-s.lastNetPnL, filled, utilisation)
	s.lastNetPnL = netPnL

	// 9. Hand metrics to AutoTuner (which may return a new QuoteParams).
	s.params = s.deps.Tuner.Review(s.params, s.window.autotuneMetrics(), now)

	// 10. Arm dead-man switch if due.
	if s.deps.Orders.ShouldArmDeadMansSwitch(s.cfg.DeadMansCadenceTicks) {
		if err := s.deps.Adapter.ArmDeadMansSwitch(ctx, s.cfg.DeadMansTimeout); err != nil {
			if ferr := s.handleAdapterError(now, "arm_dead_mans_switch", err); ferr != nil {
				return ferr
			}
		}
	}

	pos := s.deps.Inventory.Snapshot()
	s.statusMu.Lock()
	s.status = Status{
		Symbol:          s.cfg.Symbol,
		Mid:             midF,
		BestBid:         bestBidF,
		BestAsk:         bestAskF,
		NetPosition:     netPosition,
		NetPositionUSD:  netPosition * midF,
		RealizedPnL:     pos.RealizedPnL,
		UnrealizedPnL:   pos.UnrealizedPnL,
		NetPnLToday:     s.dayAcc.row().NetPnL,
		RiskState:       riskState,
		ActiveCapital:   s.capital,
		QuotedSpreadBps: q.HalfSpreadBp * 2,
		UpdatedAt:       now,
	}
	s.statusMu.Unlock()

	return nil
}

func (s *StrategyLoop) checkHotReload(now time.Time) {
	if s.deps.LiveParams != nil {
		lp, changed, ok, err := s.deps.LiveParams.Check()
		if err != nil {
			s.deps.Logger.Warn("live params read failed", "symbol", s.cfg.Symbol, "error", err)
		} else if ok && changed {
			if override, exists := lp.Overrides[s.cfg.Symbol]; exists {
				s.params = override
				s.deps.Logger.Info("live params reloaded", "symbol", s.cfg.Symbol, "generated_at", lp.GeneratedAt)
			}
		}
	}

	if s.deps.Allocations != nil {
		alloc, changed, ok, err := s.deps.Allocations.Check()
		if err != nil {
			s.deps.Logger.Warn("allocator state read failed", "symbol", s.cfg.Symbol, "error", err)
		} else if ok && changed {
			if a, exists := alloc.Assets[s.cfg.Symbol]; exists {
				s.allocMult = a.Multipliers
				if a.ActiveCapital > 0 {
					s.capital = a.ActiveCapital
				}
				s.limits = s.baseLimits
				s.limits.MaxPositionUSD = s.baseLimits.MaxPositionUSD * a.Multipliers.MaxPos
				s.deps.Logger.Info("allocator state reloaded", "symbol", s.cfg.Symbol, "active_capital", a.ActiveCapital)
			}
		}
	}
	_ = now
}

// submitIntents sends place/modify/cancel intents to the adapter, chunking
// modifies and cancels into cfg.MaxBatch-sized requests. Returns a non-nil
// error only when handleAdapterError classifies one of the failures as
// fatal (KindAuth); every other adapter error is recorded/logged inline and
// does not stop the tick.
func (s *StrategyLoop) submitIntents(ctx context.Context, intents []types.OrderIntent) error {
	var modifies []exchange.ModifyRequest
	var modifyIntents []types.OrderIntent
	var cancelIDs []string
	var cancelIntents []types.OrderIntent
	var fatal error

	for _, in := range intents {
		switch in.Kind {
		case types.IntentPlace:
			id, err := s.deps.Adapter.PlaceOrder(ctx, in, s.cfg.PostOnly)
			if err != nil {
				if kind, ok := s.classifyAdapterError(err); ok && kind == types.KindRejectedInvalid {
					s.recordInvalidReject(in.Side, in.Level, err)
				}
				if ferr := s.handleAdapterError(time.Now(), "place_order", err); ferr != nil && fatal == nil {
					fatal = ferr
				}
				s.deps.Orders.Remove(in.Side, in.Level)
				continue
			}
			s.clearInvalidReject(in.Side, in.Level)
			s.deps.Orders.ConfirmExchangeID(in.Side, in.Level, id)
		case types.IntentModify:
			modifies = append(modifies, exchange.ModifyRequest{ExchangeID: in.ExchangeID, NewPrice: in.Price, NewSize: in.Size})
			modifyIntents = append(modifyIntents, in)
		case types.IntentCancel:
			if in.ExchangeID != "" {
				cancelIDs = append(cancelIDs, in.ExchangeID)
			}
			cancelIntents = append(cancelIntents, in)
		}
	}

	batch := s.cfg.MaxBatch
	if batch <= 0 {
		batch = len(modifies) + len(cancelIDs) + 1 // effectively unbounded, one shot
	}

	for start := 0; start < len(modifies); start += batch {
		end := start + batch
		if end > len(modifies) {
			end = len(modifies)
		}
		results, err := s.deps.Adapter.ModifyOrders(ctx, modifies[start:end])
		if err != nil {
			if ferr := s.handleAdapterError(time.Now(), "modify_orders", err); ferr != nil && fatal == nil {
				fatal = ferr
			}
			continue
		}
		for i, r := range results {
			if !r.OK {
				in := modifyIntents[start+i]
				s.deps.Orders.Remove(in.Side, in.Level)
			}
		}
	}

	for start := 0; start < len(cancelIDs); start += batch {
		end := start + batch
		if end > len(cancelIDs) {
			end = len(cancelIDs)
		}
		if err := s.deps.Adapter.CancelOrders(ctx, s.cfg.Symbol, cancelIDs[start:end]); err != nil {
			if ferr := s.handleAdapterError(time.Now(), "cancel_orders", err); ferr != nil && fatal == nil {
				fatal = ferr
			}
		}
	}
	for _, in := range cancelIntents {
		s.deps.Orders.Remove(in.Side, in.Level)
	}
	return fatal
}

// ingestFills drains any queued fill events, applying each to Inventory,
// the toxicity estimator, and the day accumulator. Reports whether at
// least one fill landed this tick, for the sizer's fill-rate input.
func (s *StrategyLoop) ingestFills(mid float64, now time.Time) bool {
	filled := false
	for {
		select {
		case fill, ok := <-s.deps.Fills:
			if !ok {
				return filled
			}
			s.applyFill(fill, mid, now)
			filled = true
		default:
			return filled
		}
	}
}

func (s *StrategyLoop) applyFill(fill types.FillEvent, mid float64, now time.Time) {
	s.deps.Inventory.RecordFill(fill)
	s.dayAcc.observeFill(fill)

	price, _ := fill.Price.Float64()
	if mid > 0 {
		capturedBps := absF(price-mid) / mid * 10000.0
		s.dayAcc.observeCapturedSpread(capturedBps)
	}
	s.deps.Toxicity.RecordFill(fill.Side, price, now)

	for _, lo := range s.deps.Orders.LiveOrders() {
		if lo.ExchangeID == "" {
			continue
		}
		if lo.Side == fill.Side {
			s.deps.Orders.Remove(lo.Side, lo.Level)
			break
		}
	}
}

// reconcileOpenOrdersSnapshot drops local live-order tracking for anything
// the venue no longer reports resting, a backstop fill/cancel detection
// path alongside the streamed fills channel.
func (s *StrategyLoop) reconcileOpenOrdersSnapshot(ctx context.Context, now time.Time) error {
	open, err := s.deps.Adapter.OpenOrders(ctx, s.cfg.Symbol)
	if err != nil {
		return s.handleAdapterError(now, "open_orders", err)
	}
	stillOpen := make(map[string]bool, len(open))
	for _, o := range open {
		stillOpen[o.ExchangeID] = true
	}
	for _, lo := range s.deps.Orders.LiveOrders() {
		if lo.ExchangeID != "" && !stillOpen[lo.ExchangeID] {
			s.deps.Orders.Remove(lo.Side, lo.Level)
		}
	}
	return nil
}

// checkPositionMismatch runs at most once per positionCheckInterval,
// comparing the venue's authoritative position against locally tracked
// Inventory. Past positionMismatchTolerance it treats local state as
// untrustworthy and performs a one-shot reconciliation: cancel every
// resting order, drop local order tracking, and reset Inventory to the
// refetched venue position at the current mid (a flat-at-mid heuristic,
// since the venue does not report an average entry price).
func (s *StrategyLoop) checkPositionMismatch(ctx context.Context, now time.Time) error {
	if now.Sub(s.lastPositionCheck) < positionCheckInterval {
		return nil
	}
	s.lastPositionCheck = now

	venuePos, err := s.deps.Adapter.Position(ctx, s.cfg.Symbol)
	if err != nil {
		return s.handleAdapterError(now, "position", err)
	}
	venueF, _ := venuePos.Float64()
	localF := s.deps.Inventory.NetPosition()
	if absF(venueF-localF) <= positionMismatchTolerance {
		return nil
	}

	s.deps.Logger.Error("position mismatch: reconciling local inventory against venue",
		"symbol", s.cfg.Symbol, "local_position", localF, "venue_position", venueF)

	if err := s.deps.Adapter.CancelAll(ctx, s.cfg.Symbol); err != nil {
		s.deps.Logger.Warn("cancel-all during mismatch reconciliation failed", "symbol", s.cfg.Symbol, "error", err)
	}
	s.deps.Orders.ClearAll()

	refetched, err := s.deps.Adapter.Position(ctx, s.cfg.Symbol)
	if err != nil {
		s.deps.Logger.Warn("position refetch during mismatch reconciliation failed", "symbol", s.cfg.Symbol, "error", err)
		refetched = venuePos
	}
	refetchedF, _ := refetched.Float64()

	midForReset := 0.0
	if mid, err := s.deps.Adapter.MidPrice(ctx, s.cfg.Symbol); err == nil {
		midForReset, _ = mid.Float64()
	}

	s.deps.Inventory.SetPosition(inventory.Position{
		NetPosition:   refetchedF,
		AvgEntryPrice: midForReset,
		LastUpdated:   now,
	})
	return nil
}

func (s *StrategyLoop) recentDrawdownFraction(ctx context.Context) float64 {
	rows, err := s.deps.Metrics.RecentDays(ctx, s.cfg.Symbol, 7)
	if err != nil || len(rows) == 0 {
		return 0
	}
	agg := metrics.Aggregate(rows)
	if s.capital <= 0 {
		return 0
	}
	return agg.MaxDrawdown / s.capital
}

// rescaleQuoteSizes scales every level's bid/ask size by the ratio between
// the sizer's output and the size the QuoteEngine originally priced for,
// re-rounding to the venue's size precision.
func rescaleQuoteSizes(q *types.Quote, originalOrderUSD, scaledOrderUSD float64, prec types.Precision) {
	if originalOrderUSD <= 0 {
		return
	}
	ratio := scaledOrderUSD / originalOrderUSD
	if ratio == 1 {
		return
	}
	for i, lvl := range q.Levels {
		bidF, _ := lvl.BidSize.Float64()
		askF, _ := lvl.AskSize.Float64()
		q.Levels[i].BidSize = order.RoundSize(bidF*ratio, prec)
		q.Levels[i].AskSize = order.RoundSize(askF*ratio, prec)
	}
}

// levelKey identifies one (side, level) order slot, matching the format
// order.Manager uses internally for its own live-order map.
func levelKey(side types.Side, level int) string {
	return fmt.Sprintf("%s:%d", side, level)
}

// applySuppressedLevels zeroes the size of any (side, level) slot that has
// crossed the invalid-reject strike threshold, so Reconcile treats it as
// suppressed (cancel if resting, never place).
func (s *StrategyLoop) applySuppressedLevels(q *types.Quote) {
	if len(s.suppressedLevels) == 0 {
		return
	}
	for i, lvl := range q.Levels {
		if s.suppressedLevels[levelKey(types.Buy, lvl.Level)] {
			q.Levels[i].BidSize = decimal.Zero
		}
		if s.suppressedLevels[levelKey(types.Sell, lvl.Level)] {
			q.Levels[i].AskSize = decimal.Zero
		}
	}
}

// classifyAdapterError unwraps err with errors.As to recover the
// AdapterErrorKind an exchange.Adapter method failed with. ok is false for
// errors that never wrap a *types.AdapterError (e.g. a context deadline).
func (s *StrategyLoop) classifyAdapterError(err error) (kind types.AdapterErrorKind, ok bool) {
	var ae *types.AdapterError
	if errors.As(err, &ae) {
		return ae.Kind, true
	}
	return types.KindTransient, false
}

// handleAdapterError type-switches on the error's AdapterErrorKind and
// applies the propagation policy for it: continue silently
// (KindRejectedCross), record the API-error counter and log (KindTransient,
// KindRejectedInvalid, KindMismatch), suspend quoting for the tick
// (KindStale), or escalate to CIRCUIT_BREAK and a fatal, process-ending
// error (KindAuth). Returns non-nil only for the KindAuth case.
func (s *StrategyLoop) handleAdapterError(now time.Time, op string, err error) error {
	kind, ok := s.classifyAdapterError(err)
	if !ok {
		s.deps.Risk.RecordAPIError(now)
		s.deps.Logger.Warn("adapter error", "symbol", s.cfg.Symbol, "op", op, "error", err)
		return nil
	}

	switch kind {
	case types.KindRejectedCross:
		// Routine ALO reject under post-only quoting: no counter, no alert.
		return nil

	case types.KindStale:
		s.quotingSuspended = true
		s.deps.Risk.RecordAPIError(now)
		s.deps.Logger.Warn("stale adapter state: suspending quoting until recovery", "symbol", s.cfg.Symbol, "op", op, "error", err)
		return nil

	case types.KindAuth:
		s.deps.Risk.ForceCircuitBreak(now, now.Add(24*time.Hour))
		s.deps.Logger.Error("credentials/permissions error: circuit-breaking and exiting", "symbol", s.cfg.Symbol, "op", op, "error", err)
		return &FatalError{Symbol: s.cfg.Symbol, Op: op, Err: err}

	default: // KindTransient, KindRejectedInvalid, KindMismatch
		s.deps.Risk.RecordAPIError(now)
		s.deps.Logger.Warn("adapter error", "symbol", s.cfg.Symbol, "op", op, "kind", kind.String(), "error", err)
		return nil
	}
}

// recordInvalidReject tracks consecutive KindRejectedInvalid rejections for
// one (side, level) slot and, past two strikes, suppresses it: an alert
// replaces the routine warning and applySuppressedLevels stops Reconcile
// from ever placing there again.
func (s *StrategyLoop) recordInvalidReject(side types.Side, level int, err error) {
	key := levelKey(side, level)
	s.rejectStrikes[key]++
	// handleAdapterError (called alongside this for the same error) already
	// records the rolling API-error counter; this only tracks the strike
	// count used for per-level suppression.
	if s.rejectStrikes[key] > 2 {
		s.suppressedLevels[key] = true
		s.deps.Logger.Error("suppressing level after repeated invalid rejects",
			"symbol", s.cfg.Symbol, "side", side, "level", level, "strikes", s.rejectStrikes[key], "error", err)
		return
	}
	s.deps.Logger.Warn("venue rejected order as invalid",
		"symbol", s.cfg.Symbol, "side", side, "level", level, "strikes", s.rejectStrikes[key], "error", err)
}

// clearInvalidReject resets the strike counter for a (side, level) slot
// after a successful place there.
func (s *StrategyLoop) clearInvalidReject(side types.Side, level int) {
	delete(s.rejectStrikes, levelKey(side, level))
}

func absF(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}

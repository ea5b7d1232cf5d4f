// Command mm is the market-making core for a Hyperliquid-class perpetual
// futures venue.
//
// Architecture:
//
//	main.go                 — entry point: flags, config, start engine, wait for SIGINT/SIGTERM or a fatal adapter error
//	internal/engine         — orchestrator: starts one StrategyLoop per configured asset
//	internal/strategy       — the tick pipeline: estimators → quote → risk → sizer → reconcile → fills
//	internal/quote          — Avellaneda-Stoikov-style multi-level quote pricer
//	internal/inventory      — signed net position, average entry, realised/unrealised PnL
//	internal/risk           — SAFE/POSITION_LIMIT/CIRCUIT_BREAK gating state machine
//	internal/order          — local order book reconciliation against the venue
//	internal/sizer          — regime/fill-rate/inventory/toxicity/drawdown order-size scaling
//	internal/autotune       — rolling-window parameter review
//	internal/allocator      — cross-asset capital and risk-multiplier reallocation
//	internal/exchange       — REST client + WebSocket feeds for the venue
//	internal/statusapi      — read-only /health and /api/snapshot HTTP endpoint
//
// How it makes money:
//
//	The bot captures the bid-ask spread on a perpetual future. It posts a
//	bid below mid and an ask above mid; when both sides fill it earns the
//	spread. Quotes skew with inventory and volatility so a position that
//	accumulates on one side is priced to attract offsetting fills.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"hlmaker/internal/config"
	"hlmaker/internal/engine"
	"hlmaker/internal/statusapi"
)

const (
	exitOK           = 0
	exitConfigError  = 2
	exitStartupError = 3
	exitRuntimeError = 4
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		symbol    = flag.String("symbol", "", "trade only this asset symbol (repeatable via comma-separated list)")
		all       = flag.Bool("all", false, "trade every asset in the config file")
		testnet   = flag.Bool("testnet", false, "force testnet venue endpoints")
		mainnet   = flag.Bool("mainnet", false, "force mainnet venue endpoints")
		capital   = flag.Float64("capital", 0, "override capital_usd for every selected asset")
		feeAware  = flag.Bool("fee-aware", false, "enable fee-aware quote floor for every selected asset")
		toxicity  = flag.Bool("toxicity", true, "enable the toxicity-based size throttle")
		autoTune  = flag.Bool("auto-tune", false, "enable the rolling-window parameter AutoTuner")
		compound  = flag.Bool("compound", false, "reinvest realised PnL into capital for every selected asset")
		cfgPath   = flag.String("config", "configs/config.yaml", "path to the YAML config file")
	)
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "path", *cfgPath)
		return exitConfigError
	}

	if *testnet && *mainnet {
		slog.Error("--testnet and --mainnet are mutually exclusive")
		return exitConfigError
	}
	if *testnet {
		cfg.Venue.Testnet = true
	}
	if *mainnet {
		cfg.Venue.Testnet = false
	}

	if !*all && *symbol != "" {
		wanted := make(map[string]bool)
		for _, s := range strings.Split(*symbol, ",") {
			wanted[strings.ToUpper(strings.TrimSpace(s))] = true
		}
		for s := range cfg.Assets {
			if !wanted[strings.ToUpper(s)] {
				delete(cfg.Assets, s)
			}
		}
	}

	for s, a := range cfg.Assets {
		if *capital > 0 {
			a.Capital = *capital
		}
		if *feeAware {
			a.FeeAware = true
		}
		if *autoTune {
			cfg.AutoTune.Enabled = true
		}
		if *compound {
			a.Compound = true
		}
		if !*toxicity {
			a.DisableToxicityThrottle = true
		}
		cfg.Assets[s] = a
	}

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		return exitConfigError
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: parseLogLevel(cfg.Logging.Level)}
	if cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	logger := slog.New(handler)

	eng, err := engine.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		return exitStartupError
	}

	var statusServer *statusapi.Server
	if cfg.Dashboard.Enabled {
		statusServer = statusapi.NewServer(fmt.Sprintf(":%d", cfg.Dashboard.Port), eng, logger)
		go func() {
			if err := statusServer.Start(); err != nil {
				logger.Error("status api failed", "error", err)
			}
		}()
		logger.Info("status api started", "url", fmt.Sprintf("http://localhost:%d", cfg.Dashboard.Port))
	}

	if err := eng.Start(); err != nil {
		logger.Error("failed to start engine", "error", err)
		return exitRuntimeError
	}

	if cfg.DryRun {
		logger.Warn("DRY-RUN MODE — no real orders will be placed")
	}

	logger.Info("market maker started",
		"assets", len(cfg.Assets),
		"testnet", cfg.Venue.Testnet,
		"auto_tune", cfg.AutoTune.Enabled,
		"dry_run", cfg.DryRun,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	fatalCh := make(chan error, 1)
	go func() { fatalCh <- eng.Wait() }()

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig.String())
	case err := <-fatalCh:
		if err != nil {
			logger.Error("engine stopped on a fatal adapter error", "error", err)
			if statusServer != nil {
				_ = statusServer.Stop()
			}
			eng.Stop()
			return exitStartupError
		}
		logger.Warn("engine goroutines exited with no fatal error and no shutdown signal")
	}

	if statusServer != nil {
		if err := statusServer.Stop(); err != nil {
			logger.Error("failed to stop status api", "error", err)
		}
	}

	eng.Stop()
	return exitOK
}

func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

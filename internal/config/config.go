// Package config defines all configuration for the market-making core.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via MM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"

	"hlmaker/pkg/types"
)

// Config is the top-level configuration. Maps directly to the YAML structure.
type Config struct {
	DryRun    bool                 `mapstructure:"dry_run"`
	Wallet    WalletConfig         `mapstructure:"wallet"`
	Venue     VenueConfig          `mapstructure:"venue"`
	Assets    map[string]AssetYAML `mapstructure:"assets"`
	Risk      RiskYAML             `mapstructure:"risk"`
	AutoTune  AutoTuneConfig       `mapstructure:"auto_tune"`
	Allocator AllocatorConfig      `mapstructure:"allocator"`
	Store     StoreConfig          `mapstructure:"store"`
	Logging   LoggingConfig        `mapstructure:"logging"`
	Dashboard DashboardConfig      `mapstructure:"dashboard"`
}

// WalletConfig holds the Ethereum-style wallet used for EIP-712 action
// signing against a Hyperliquid-class venue.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
	ChainID    int    `mapstructure:"chain_id"`
	Vault      string `mapstructure:"vault_address"` // optional sub-account
}

// VenueConfig holds exchange endpoints and timeouts.
type VenueConfig struct {
	RESTBaseURL      string        `mapstructure:"rest_base_url"`
	WSURL            string        `mapstructure:"ws_url"`
	Testnet          bool          `mapstructure:"testnet"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout"`
	DeadMansTimeout  time.Duration `mapstructure:"dead_mans_timeout"`
	MetadataInterval time.Duration `mapstructure:"metadata_refresh_interval"`
	MaxBatchSize     int           `mapstructure:"max_batch_size"`
}

// AssetYAML is the on-disk representation of one asset's tunables,
// unmarshalled into the immutable types.AssetConfig the runtime uses.
type AssetYAML struct {
	SizeDecimals      int32   `mapstructure:"size_decimals"`
	BaseSpreadBps     float64 `mapstructure:"base_spread_bps"`
	VolMultiplier     float64 `mapstructure:"vol_multiplier"`
	InventorySkew     float64 `mapstructure:"inventory_skew_factor"`
	OrderSizeUSD      float64 `mapstructure:"order_size_usd"`
	NumLevels         int     `mapstructure:"num_levels"`
	LevelSpacingBps   float64 `mapstructure:"level_spacing_bps"`
	BiasStrength      float64 `mapstructure:"bias_strength"`
	MinSpreadBps      float64 `mapstructure:"min_spread_bps"`
	MaxSpreadBps      float64 `mapstructure:"max_spread_bps"`
	FeeAware          bool    `mapstructure:"fee_aware"`
	MakerFeeBps       float64 `mapstructure:"maker_fee_bps"`
	ModifyThresholdBp float64 `mapstructure:"modify_threshold_bps"`
	Capital           float64 `mapstructure:"capital_usd"`
	Compound          bool    `mapstructure:"compound"`
	Adaptive          AdaptiveYAML `mapstructure:"adaptive"`
	// DisableToxicityThrottle turns off the sizer's toxicity-based size
	// throttle for this asset; the throttle is enabled by default and the
	// CLI's --toxicity=false flips this to true for every selected asset.
	DisableToxicityThrottle bool `mapstructure:"disable_toxicity_throttle"`
}

// AdaptiveYAML configures the optional AdaptiveStrategy variant for one
// asset: volatility-regime bucketing and inventory-decay flattening.
type AdaptiveYAML struct {
	Enabled                  bool          `mapstructure:"enabled"`
	VolRegimeLowBps          float64       `mapstructure:"vol_regime_low_bps"`
	VolRegimeHighBps         float64       `mapstructure:"vol_regime_high_bps"`
	LowRegimeSpreadMult      float64       `mapstructure:"low_regime_spread_mult"`
	HighRegimeSpreadMult     float64       `mapstructure:"high_regime_spread_mult"`
	LowRegimeLevels          int           `mapstructure:"low_regime_levels"`
	HighRegimeLevels         int           `mapstructure:"high_regime_levels"`
	InventoryDecayThreshold  time.Duration `mapstructure:"inventory_decay_threshold"`
	InventoryDecayMaxBiasBps float64       `mapstructure:"inventory_decay_max_bias_bps"`
	TargetFillRate           float64       `mapstructure:"target_fill_rate"`
	DrawdownThresholdFrac    float64       `mapstructure:"drawdown_threshold_frac"`
}

// ToAssetConfig converts the YAML tunables plus the shared risk block into
// the immutable runtime value.
func (a AssetYAML) ToAssetConfig(symbol string, risk RiskYAML) types.AssetConfig {
	return types.AssetConfig{
		Symbol:    symbol,
		Precision: types.Precision{SizeDecimals: a.SizeDecimals},
		Params: types.QuoteParams{
			BaseSpreadBps:     a.BaseSpreadBps,
			VolMultiplier:     a.VolMultiplier,
			InventorySkew:     a.InventorySkew,
			OrderSizeUSD:      a.OrderSizeUSD,
			NumLevels:         a.NumLevels,
			LevelSpacingBps:   a.LevelSpacingBps,
			BiasStrength:      a.BiasStrength,
			MinSpreadBps:      a.MinSpreadBps,
			MaxSpreadBps:      a.MaxSpreadBps,
			FeeAware:          a.FeeAware,
			MakerFeeBps:       a.MakerFeeBps,
			ModifyThresholdBp: a.ModifyThresholdBp,
		},
		Limits: types.RiskLimits{
			MaxPositionUSD:   risk.MaxPositionPerAsset,
			MaxDailyLossFrac: risk.MaxDailyLossFrac,
			MaxOpenOrders:    risk.MaxOpenOrders,
			CooldownSeconds:  risk.CooldownAfterBreakSec,
			APIErrorThresh:   risk.APIErrorThreshold,
			StalenessTimeout: risk.StalenessTimeout,
		},
		Capital:                 a.Capital,
		Compound:                a.Compound,
		ToxicityThrottleEnabled: !a.DisableToxicityThrottle,
		Adaptive: types.AdaptiveConfig{
			Enabled:                  a.Adaptive.Enabled,
			VolRegimeLowBps:          a.Adaptive.VolRegimeLowBps,
			VolRegimeHighBps:         a.Adaptive.VolRegimeHighBps,
			LowRegimeSpreadMult:      a.Adaptive.LowRegimeSpreadMult,
			HighRegimeSpreadMult:     a.Adaptive.HighRegimeSpreadMult,
			LowRegimeLevels:          a.Adaptive.LowRegimeLevels,
			HighRegimeLevels:         a.Adaptive.HighRegimeLevels,
			InventoryDecayThreshold:  a.Adaptive.InventoryDecayThreshold,
			InventoryDecayMaxBiasBps: a.Adaptive.InventoryDecayMaxBiasBps,
			TargetFillRate:           a.Adaptive.TargetFillRate,
			DrawdownThresholdFrac:    a.Adaptive.DrawdownThresholdFrac,
		},
	}
}

// RiskYAML sets hard limits shared across assets; AssetYAML has no risk
// fields, so every asset gets these same limits.
type RiskYAML struct {
	MaxPositionPerAsset   float64       `mapstructure:"max_position_per_asset"`
	MaxDailyLossFrac      float64       `mapstructure:"max_daily_loss_frac"`
	MaxOpenOrders         int           `mapstructure:"max_open_orders"`
	APIErrorThreshold     int           `mapstructure:"api_error_threshold"`
	CooldownAfterBreakSec int           `mapstructure:"cooldown_after_break_sec"`
	StalenessTimeout      time.Duration `mapstructure:"staleness_timeout"`
	PriceMoveDropPct      float64       `mapstructure:"price_move_drop_pct"`
	PriceMoveWindowSec    int           `mapstructure:"price_move_window_sec"`
}

// AutoTuneConfig controls the rolling-window parameter tuner.
type AutoTuneConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	WindowSize   time.Duration `mapstructure:"window"`
	DriftGuard   float64       `mapstructure:"drift_guard_frac"`
	ReviewPeriod time.Duration `mapstructure:"review_period"`
}

// AllocatorConfig controls the cross-asset MetaSupervisor.
type AllocatorConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	ReviewInterval time.Duration `mapstructure:"review_interval"`
	MinCapitalUSD  float64       `mapstructure:"min_capital_usd"`
	MaxShareOfPool float64       `mapstructure:"max_share_of_pool"`
	DailyMoveCap   float64       `mapstructure:"daily_move_cap_frac"`
	MeanRevertRate float64       `mapstructure:"mean_revert_rate_frac"`
}

// StoreConfig sets where metrics and allocator state are persisted.
type StoreConfig struct {
	DataDir string `mapstructure:"data_dir"`
}

// LoggingConfig controls slog output.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the read-only status HTTP server.
type DashboardConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: MM_PRIVATE_KEY, MM_VAULT_ADDRESS.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("MM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if key := os.Getenv("MM_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if vault := os.Getenv("MM_VAULT_ADDRESS"); vault != "" {
		cfg.Wallet.Vault = vault
	}
	if os.Getenv("MM_DRY_RUN") == "true" || os.Getenv("MM_DRY_RUN") == "1" {
		cfg.DryRun = true
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.Wallet.PrivateKey == "" {
		return fmt.Errorf("wallet.private_key is required (set MM_PRIVATE_KEY)")
	}
	if c.Wallet.ChainID == 0 {
		return fmt.Errorf("wallet.chain_id is required")
	}
	if c.Venue.RESTBaseURL == "" {
		return fmt.Errorf("venue.rest_base_url is required")
	}
	if len(c.Assets) == 0 {
		return fmt.Errorf("at least one entry under assets is required")
	}
	if c.Risk.MaxPositionPerAsset <= 0 {
		return fmt.Errorf("risk.max_position_per_asset must be > 0")
	}
	if c.Risk.MaxOpenOrders <= 0 {
		return fmt.Errorf("risk.max_open_orders must be > 0")
	}
	for symbol, a := range c.Assets {
		ac := a.ToAssetConfig(symbol, c.Risk)
		if err := ac.Params.Validate(); err != nil {
			return fmt.Errorf("assets.%s: %w", symbol, err)
		}
		if ac.Capital <= 0 {
			return fmt.Errorf("assets.%s.capital_usd must be > 0", symbol)
		}
	}
	return nil
}

// AssetConfigs materializes every configured asset into its immutable
// runtime AssetConfig, keyed by symbol.
func (c *Config) AssetConfigs() map[string]types.AssetConfig {
	out := make(map[string]types.AssetConfig, len(c.Assets))
	for symbol, a := range c.Assets {
		out[symbol] = a.ToAssetConfig(symbol, c.Risk)
	}
	return out
}

package config

import "testing"

func testConfig() *Config {
	return &Config{
		Wallet: WalletConfig{PrivateKey: "0xabc", ChainID: 421614},
		Venue:  VenueConfig{RESTBaseURL: "https://api.example.test"},
		Assets: map[string]AssetYAML{
			"BTC": {
				SizeDecimals:  3,
				BaseSpreadBps: 5,
				MinSpreadBps:  2,
				MaxSpreadBps:  20,
				NumLevels:     3,
				OrderSizeUSD:  500,
				Capital:       10000,
			},
		},
		Risk: RiskYAML{
			MaxPositionPerAsset: 5000,
			MaxOpenOrders:       10,
		},
	}
}

func TestValidateRequiresPrivateKey(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Wallet.PrivateKey = ""
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for missing private key")
	}
}

func TestValidateRequiresAssets(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Assets = nil
	if err := cfg.Validate(); err == nil {
		t.Error("Validate() = nil, want error for empty assets")
	}
}

func TestValidateOK(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() = %v, want nil", err)
	}
}

func TestAssetConfigsDerivesLimitsFromSharedRisk(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	assets := cfg.AssetConfigs()

	btc, ok := assets["BTC"]
	if !ok {
		t.Fatal("AssetConfigs() missing BTC")
	}
	if btc.Limits.MaxPositionUSD != cfg.Risk.MaxPositionPerAsset {
		t.Errorf("MaxPositionUSD = %v, want %v", btc.Limits.MaxPositionUSD, cfg.Risk.MaxPositionPerAsset)
	}
	if btc.Precision.PriceDecimals() != 3 {
		t.Errorf("PriceDecimals() = %d, want 3", btc.Precision.PriceDecimals())
	}
}

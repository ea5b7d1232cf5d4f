package exchange

import (
	"testing"

	"hlmaker/internal/config"
)

func testWalletConfig() config.Config {
	return config.Config{
		Wallet: config.WalletConfig{
			PrivateKey: "0x1111111111111111111111111111111111111111111111111111111111111111",
			ChainID:    421614,
		},
	}
}

func TestNewAuthDerivesAddress(t *testing.T) {
	t.Parallel()

	auth, err := NewAuth(testWalletConfig())
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}
	if auth.HasVault() {
		t.Errorf("HasVault() = true, want false with no vault configured")
	}
	if auth.ChainID().Int64() != 421614 {
		t.Errorf("ChainID() = %v, want 421614", auth.ChainID())
	}
}

func TestNewAuthWithVault(t *testing.T) {
	t.Parallel()

	cfg := testWalletConfig()
	cfg.Wallet.Vault = "0x000000000000000000000000000000000000aa"

	auth, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}
	if !auth.HasVault() {
		t.Errorf("HasVault() = false, want true")
	}
}

func TestSignActionProducesHexSignature(t *testing.T) {
	t.Parallel()

	auth, err := NewAuth(testWalletConfig())
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}

	hash := ActionHash([]byte(`{"type":"order"}`), 1)
	sig, err := auth.SignAction(hash, 1)
	if err != nil {
		t.Fatalf("SignAction() error = %v", err)
	}
	if len(sig) < 4 || sig[:2] != "0x" {
		t.Errorf("SignAction() = %q, want 0x-prefixed hex", sig)
	}
}

func TestActionHashDiffersByNonce(t *testing.T) {
	t.Parallel()

	payload := []byte(`{"type":"order","price":100}`)
	h1 := ActionHash(payload, 1)
	h2 := ActionHash(payload, 2)
	if h1 == h2 {
		t.Errorf("ActionHash() identical across nonces, want distinct")
	}
}

func TestSignActionDeterministicForSameInputs(t *testing.T) {
	t.Parallel()

	auth, err := NewAuth(testWalletConfig())
	if err != nil {
		t.Fatalf("NewAuth() error = %v", err)
	}

	hash := ActionHash([]byte("action"), 5)
	sig1, err1 := auth.SignAction(hash, 5)
	sig2, err2 := auth.SignAction(hash, 5)
	if err1 != nil || err2 != nil {
		t.Fatalf("SignAction() errors = %v, %v", err1, err2)
	}
	if sig1 != sig2 {
		t.Errorf("SignAction() not deterministic: %q != %q", sig1, sig2)
	}
}

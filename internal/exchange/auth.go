package exchange

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	ethmath "github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"

	"hlmaker/internal/config"
)

// Auth signs venue actions with a single EOA wallet. Hyperliquid-class
// venues authenticate every mutating action (place/modify/cancel/transfer)
// with an EIP-712 signature over the action payload itself — there is no
// separate API-key derivation step, so Auth carries only the EOA signer.
// Trading on behalf of a vault sub-account is supported by carrying the
// vault address alongside the signer's own address.
type Auth struct {
	privateKey *ecdsa.PrivateKey // EOA private key used for every action signature
	address    common.Address    // EOA address derived from privateKey
	vault      common.Address    // optional vault/sub-account this wallet trades for
	chainID    *big.Int
}

// NewAuth creates an Auth instance from config.
func NewAuth(cfg config.Config) (*Auth, error) {
	keyHex := cfg.Wallet.PrivateKey
	if len(keyHex) >= 2 && keyHex[:2] == "0x" {
		keyHex = keyHex[2:]
	}

	privateKey, err := crypto.HexToECDSA(keyHex)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	address := crypto.PubkeyToAddress(privateKey.PublicKey)

	var vault common.Address
	if cfg.Wallet.Vault != "" {
		vault = common.HexToAddress(cfg.Wallet.Vault)
	}

	return &Auth{
		privateKey: privateKey,
		address:    address,
		vault:      vault,
		chainID:    big.NewInt(int64(cfg.Wallet.ChainID)),
	}, nil
}

// Address returns the signer's Ethereum address.
func (a *Auth) Address() common.Address { return a.address }

// ChainID returns the configured chain ID.
func (a *Auth) ChainID() *big.Int { return a.chainID }

// Vault returns the sub-account address this wallet trades on behalf of,
// or the zero address if trading its own account.
func (a *Auth) Vault() common.Address { return a.vault }

// HasVault reports whether actions should be scoped to a vault sub-account.
func (a *Auth) HasVault() bool { return a.vault != (common.Address{}) }

// SignAction signs one exchange action (place/modify/cancel batch,
// already hashed to actionHash by the caller) via EIP-712 over an opaque
// action hash rather than a fixed login message, matching Hyperliquid-class
// "agent" signing where every action carries its own connection id and
// nonce.
func (a *Auth) SignAction(actionHash [32]byte, nonce int64) (string, error) {
	sig, err := a.SignTypedData(
		&apitypes.TypedDataDomain{
			Name:              "Exchange",
			Version:           "1",
			ChainId:           (*ethmath.HexOrDecimal256)(new(big.Int).Set(a.chainID)),
			VerifyingContract: "0x0000000000000000000000000000000000000000",
		},
		apitypes.Types{
			"EIP712Domain": {
				{Name: "name", Type: "string"},
				{Name: "version", Type: "string"},
				{Name: "chainId", Type: "uint256"},
				{Name: "verifyingContract", Type: "address"},
			},
			"Agent": {
				{Name: "source", Type: "string"},
				{Name: "connectionId", Type: "bytes32"},
			},
		},
		apitypes.TypedDataMessage{
			"source":       "a",
			"connectionId": "0x" + common.Bytes2Hex(actionHash[:]),
		},
		"Agent",
	)
	if err != nil {
		return "", fmt.Errorf("sign action: %w", err)
	}
	return "0x" + common.Bytes2Hex(sig), nil
}

// SignTypedData signs EIP-712 typed data and adjusts V to 27/28.
func (a *Auth) SignTypedData(
	domain *apitypes.TypedDataDomain,
	typesDef apitypes.Types,
	message apitypes.TypedDataMessage,
	primaryType string,
) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       typesDef,
		PrimaryType: primaryType,
		Domain:      *domain,
		Message:     message,
	}

	hash, _, err := apitypes.TypedDataAndHash(typedData)
	if err != nil {
		return nil, fmt.Errorf("typed data hash: %w", err)
	}

	sig, err := crypto.Sign(hash, a.privateKey)
	if err != nil {
		return nil, fmt.Errorf("sign typed data: %w", err)
	}

	if sig[64] < 27 {
		sig[64] += 27
	}
	return sig, nil
}

// ActionHash computes the connection-id hash an action is signed over:
// keccak256 of the action's canonical bytes plus the nonce, so that
// replaying an identical-looking action with a different nonce produces a
// distinct signature.
func ActionHash(actionBytes []byte, nonce int64) [32]byte {
	nonceBytes := new(big.Int).SetInt64(nonce).Bytes()
	return crypto.Keccak256Hash(append(append([]byte{}, actionBytes...), nonceBytes...))
}

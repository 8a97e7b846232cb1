package chain

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/GoAutonity/dripgate/internal/config"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Wallet holds the faucet's signing key. The key is loaded once at startup
// from config; rotation requires a restart.
type Wallet struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

func NewWallet(cfg config.WalletConfig) (*Wallet, error) {
	keyHex := cfg.PrivateKey
	if keyHex == "" && cfg.PrivateKeyFile != "" {
		raw, err := os.ReadFile(cfg.PrivateKeyFile)
		if err != nil {
			return nil, fmt.Errorf("read private key file: %w", err)
		}
		keyHex = strings.TrimSpace(string(raw))
	}
	if keyHex == "" {
		return nil, fmt.Errorf("no wallet configured: set wallet.private_key or wallet.private_key_file")
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(keyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	return &Wallet{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
	}, nil
}

func (w *Wallet) Address() common.Address {
	return w.address
}

func (w *Wallet) Key() *ecdsa.PrivateKey {
	return w.key
}

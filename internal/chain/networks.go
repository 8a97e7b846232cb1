package chain

import (
	"math/big"
	"strings"
)

// NetworkInfo carries chain identity discovered at connect time plus the
// optional explorer base URL from config. No hardcoded networks.
type NetworkInfo struct {
	ChainID          *big.Int
	BlockExplorerURL string
}

// TxURL returns the explorer link for a transaction, or "" when no
// explorer is configured.
func (n NetworkInfo) TxURL(txHash string) string {
	if n.BlockExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.BlockExplorerURL, "/") + "/tx/" + txHash
}

// AddressURL returns the explorer link for an address, or "".
func (n NetworkInfo) AddressURL(address string) string {
	if n.BlockExplorerURL == "" {
		return ""
	}
	return strings.TrimRight(n.BlockExplorerURL, "/") + "/address/" + address
}

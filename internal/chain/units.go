package chain

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// WeiDecimals is the fixed-point scale used by the chain and the
// Stabilization contract.
const WeiDecimals = 18

var weiScale = decimal.New(1, WeiDecimals)

// ToWei converts a whole-token decimal amount to wei. Fractions below
// 1e-18 are truncated, matching the contract's resolution.
func ToWei(amount decimal.Decimal) *big.Int {
	return amount.Mul(weiScale).BigInt()
}

// FromWei converts a wei integer to a whole-token decimal amount.
func FromWei(wei *big.Int) decimal.Decimal {
	if wei == nil {
		return decimal.Zero
	}
	return decimal.NewFromBigInt(wei, -WeiDecimals)
}

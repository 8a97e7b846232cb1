package chain

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
)

// Position is the raw on-chain view of a CDP. Values are in wei; the
// principal excludes accrued interest (read DebtAmount for the full debt).
type Position struct {
	Collateral *big.Int
	Principal  *big.Int
}

// Ledger is the capability surface the faucet core consumes from the
// chain. Any client able to read CDP state and submit signed transactions
// can implement it; tests use in-memory fakes.
type Ledger interface {
	// WalletAddress is the faucet's own address, which also identifies
	// its CDP.
	WalletAddress() common.Address

	NativeBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error)
	TokenBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error)

	CDP(ctx context.Context, addr common.Address) (Position, error)
	DebtAmount(ctx context.Context, addr common.Address) (*big.Int, error)
	CollateralPrice(ctx context.Context) (*big.Int, error)
	LiquidationRatio(ctx context.Context) (*big.Int, error)
	MinCollateralizationRatio(ctx context.Context) (*big.Int, error)
	MaxBorrow(ctx context.Context, collateral *big.Int) (*big.Int, error)
	MinimumCollateral(ctx context.Context, principal, price, mcr *big.Int) (*big.Int, error)
	IsLiquidatable(ctx context.Context, addr common.Address) (bool, error)

	TransferNative(ctx context.Context, to common.Address, amountWei *big.Int) (string, error)
	TransferToken(ctx context.Context, to common.Address, amountWei *big.Int) (string, error)
	ApproveStabilization(ctx context.Context, amountWei *big.Int) (string, error)
	Deposit(ctx context.Context, amountWei *big.Int) (string, error)
	Withdraw(ctx context.Context, amountWei *big.Int) (string, error)
	Borrow(ctx context.Context, amountWei *big.Int) (string, error)
	Repay(ctx context.Context, valueWei *big.Int) (string, error)

	WaitForReceipt(ctx context.Context, txHash string) (*types.Receipt, error)
}

package faucet

import (
	"context"
	"errors"
	"fmt"
	"regexp"

	"github.com/GoAutonity/dripgate/internal/cdp"
	"github.com/GoAutonity/dripgate/internal/chain"
	"github.com/GoAutonity/dripgate/internal/pkg/apperrors"
	"github.com/GoAutonity/dripgate/internal/pkg/logger"
	ethcommon "github.com/ethereum/go-ethereum/common"
	"github.com/shopspring/decimal"
)

// DistributionStatus is the closed set of distribution outcomes.
type DistributionStatus string

const (
	StatusSuccess                DistributionStatus = "success"
	StatusInsufficientBalance    DistributionStatus = "insufficient_balance"
	StatusInsufficientCollateral DistributionStatus = "insufficient_collateral"
	StatusCDPUnhealthy           DistributionStatus = "cdp_unhealthy"
	StatusInvalidAddress         DistributionStatus = "invalid_address"
	StatusInvalidAmount          DistributionStatus = "invalid_amount"
	StatusTransactionFailed      DistributionStatus = "transaction_failed"
)

// DistributionResult is the immutable outcome of a single distribution
// attempt.
type DistributionResult struct {
	Success bool
	Status  DistributionStatus
	TxHash  string
	Amount  decimal.Decimal
	Message string
}

// addressPattern matches the chain's address format: 0x plus 40 hex chars.
var addressPattern = regexp.MustCompile(`^0x[0-9a-fA-F]{40}$`)

// ValidAddress reports whether s has the chain's address format.
func ValidAddress(s string) bool {
	return addressPattern.MatchString(s)
}

// Distributor validates and executes a single-asset transfer. ValidateRequest
// returns nil when the request would pass; Distribute re-validates
// internally and never trusts a prior check.
type Distributor interface {
	ValidateRequest(ctx context.Context, address string, amount decimal.Decimal) *DistributionResult
	Distribute(ctx context.Context, address string, amount decimal.Decimal) DistributionResult
	MaxAmount() decimal.Decimal
}

// validateAddressResult returns an error result when the address is
// malformed, nil otherwise. Address problems always win over amount
// problems.
func validateAddressResult(address string, amount decimal.Decimal) *DistributionResult {
	if !ValidAddress(address) {
		return &DistributionResult{
			Status:  StatusInvalidAddress,
			Amount:  amount,
			Message: fmt.Sprintf("Invalid address format: %s", address),
		}
	}
	return nil
}

func validateAmountResult(amount, maxAmount decimal.Decimal, token string) *DistributionResult {
	if !amount.IsPositive() {
		return &DistributionResult{
			Status:  StatusInvalidAmount,
			Amount:  amount,
			Message: "Amount must be positive",
		}
	}
	if amount.GreaterThan(maxAmount) {
		return &DistributionResult{
			Status:  StatusInvalidAmount,
			Amount:  amount,
			Message: fmt.Sprintf("Amount exceeds maximum of %s %s", maxAmount.String(), token),
		}
	}
	return nil
}

// TokenDistributor hands out NTN by direct ERC20-style transfer from the
// faucet wallet.
type TokenDistributor struct {
	ledger    chain.Ledger
	maxAmount decimal.Decimal
}

func NewTokenDistributor(ledger chain.Ledger, maxAmount decimal.Decimal) *TokenDistributor {
	return &TokenDistributor{ledger: ledger, maxAmount: maxAmount}
}

func (d *TokenDistributor) MaxAmount() decimal.Decimal {
	return d.maxAmount
}

// Balance returns the faucet's current NTN balance.
func (d *TokenDistributor) Balance(ctx context.Context) (decimal.Decimal, error) {
	return d.ledger.TokenBalance(ctx, d.ledger.WalletAddress())
}

func (d *TokenDistributor) ValidateRequest(ctx context.Context, address string, amount decimal.Decimal) *DistributionResult {
	if res := validateAddressResult(address, amount); res != nil {
		return res
	}
	if res := validateAmountResult(amount, d.maxAmount, "NTN"); res != nil {
		return res
	}

	balance, err := d.Balance(ctx)
	if err != nil {
		return &DistributionResult{
			Status:  StatusTransactionFailed,
			Amount:  amount,
			Message: fmt.Sprintf("Balance check failed: %v", err),
		}
	}
	if balance.LessThan(amount) {
		return &DistributionResult{
			Status:  StatusInsufficientBalance,
			Amount:  amount,
			Message: fmt.Sprintf("Insufficient NTN balance: %s < %s", balance.String(), amount.String()),
		}
	}
	return nil
}

func (d *TokenDistributor) Distribute(ctx context.Context, address string, amount decimal.Decimal) DistributionResult {
	if res := d.ValidateRequest(ctx, address, amount); res != nil {
		return *res
	}

	txHash, err := d.ledger.TransferToken(ctx, ethcommon.HexToAddress(address), chain.ToWei(amount))
	if err != nil {
		logger.Error("NTN distribution failed", "recipient", address, "amount", amount.String(), "error", err.Error())
		return DistributionResult{
			Status:  StatusTransactionFailed,
			Amount:  amount,
			Message: fmt.Sprintf("Transaction failed: %v", err),
		}
	}

	logger.Info("NTN distributed", "tx_hash", txHash, "recipient", address, "amount", amount.String())
	return DistributionResult{
		Success: true,
		Status:  StatusSuccess,
		TxHash:  txHash,
		Amount:  amount,
		Message: fmt.Sprintf("Successfully sent %s NTN", amount.String()),
	}
}

// NativeDistributor hands out ATN, borrowing the shortfall against the CDP
// when the wallet balance does not cover a request.
type NativeDistributor struct {
	ledger     chain.Ledger
	controller *cdp.Controller
	maxAmount  decimal.Decimal
}

func NewNativeDistributor(ledger chain.Ledger, controller *cdp.Controller, maxAmount decimal.Decimal) *NativeDistributor {
	return &NativeDistributor{ledger: ledger, controller: controller, maxAmount: maxAmount}
}

func (d *NativeDistributor) MaxAmount() decimal.Decimal {
	return d.maxAmount
}

// Available returns the extra ATN borrowable against the position. It does
// not reserve capacity for in-flight requests, so concurrent callers can
// observe the same headroom.
func (d *NativeDistributor) Available(ctx context.Context) (decimal.Decimal, error) {
	status, err := d.controller.GetStatus(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if !status.Exists {
		return decimal.Zero, nil
	}
	return status.MaxBorrowable, nil
}

// WalletBalance returns the ATN already held by the faucet wallet.
func (d *NativeDistributor) WalletBalance(ctx context.Context) (decimal.Decimal, error) {
	return d.ledger.NativeBalance(ctx, d.ledger.WalletAddress())
}

func (d *NativeDistributor) ValidateRequest(ctx context.Context, address string, amount decimal.Decimal) *DistributionResult {
	if res := validateAddressResult(address, amount); res != nil {
		return res
	}
	if res := validateAmountResult(amount, d.maxAmount, "ATN"); res != nil {
		return res
	}

	status, err := d.controller.GetStatus(ctx)
	if err != nil {
		return d.statusError(err, amount)
	}
	if status.Health == cdp.HealthCritical || status.Health == cdp.HealthDanger {
		return &DistributionResult{
			Status:  StatusCDPUnhealthy,
			Amount:  amount,
			Message: fmt.Sprintf("CDP health is %s, cannot distribute ATN", status.Health.String()),
		}
	}

	walletBalance, err := d.WalletBalance(ctx)
	if err != nil {
		return &DistributionResult{
			Status:  StatusTransactionFailed,
			Amount:  amount,
			Message: fmt.Sprintf("Balance check failed: %v", err),
		}
	}
	if walletBalance.GreaterThanOrEqual(amount) {
		// Wallet covers it, no borrowing needed.
		return nil
	}

	shortfall := amount.Sub(walletBalance)
	available := status.MaxBorrowable
	if available.LessThan(shortfall) {
		return &DistributionResult{
			Status:  StatusInsufficientCollateral,
			Amount:  amount,
			Message: fmt.Sprintf("Insufficient capacity: have %s ATN, need %s", available.String(), shortfall.String()),
		}
	}
	return nil
}

func (d *NativeDistributor) Distribute(ctx context.Context, address string, amount decimal.Decimal) DistributionResult {
	if res := d.ValidateRequest(ctx, address, amount); res != nil {
		return *res
	}

	// Re-read the wallet at execution time; a concurrent rebalance may
	// have changed it since validation.
	walletBalance, err := d.WalletBalance(ctx)
	if err != nil {
		return DistributionResult{
			Status:  StatusTransactionFailed,
			Amount:  amount,
			Message: fmt.Sprintf("Transaction failed: %v", err),
		}
	}
	if walletBalance.LessThan(amount) {
		borrowAmount := amount.Sub(walletBalance)
		logger.Info("Borrowing ATN from CDP", "amount", borrowAmount.String())
		if _, err := d.controller.Borrow(ctx, borrowAmount); err != nil {
			logger.Error("ATN distribution failed", "recipient", address, "amount", amount.String(), "error", err.Error())
			return DistributionResult{
				Status:  StatusTransactionFailed,
				Amount:  amount,
				Message: fmt.Sprintf("Transaction failed: %v", err),
			}
		}
	}

	txHash, err := d.ledger.TransferNative(ctx, ethcommon.HexToAddress(address), chain.ToWei(amount))
	if err != nil {
		logger.Error("ATN distribution failed", "recipient", address, "amount", amount.String(), "error", err.Error())
		return DistributionResult{
			Status:  StatusTransactionFailed,
			Amount:  amount,
			Message: fmt.Sprintf("Transaction failed: %v", err),
		}
	}

	logger.Info("ATN distributed", "tx_hash", txHash, "recipient", address, "amount", amount.String())
	return DistributionResult{
		Success: true,
		Status:  StatusSuccess,
		TxHash:  txHash,
		Amount:  amount,
		Message: fmt.Sprintf("Successfully sent %s ATN", amount.String()),
	}
}

// statusError maps a controller failure to a typed result: the disabled
// gate reads as an unhealthy position, anything else as an upstream
// failure.
func (d *NativeDistributor) statusError(err error, amount decimal.Decimal) *DistributionResult {
	var appErr *apperrors.AppError
	if errors.As(err, &appErr) && appErr.Type == apperrors.ErrCDPDisabled {
		return &DistributionResult{
			Status:  StatusCDPUnhealthy,
			Amount:  amount,
			Message: "CDP operations are disabled, cannot distribute ATN",
		}
	}
	return &DistributionResult{
		Status:  StatusTransactionFailed,
		Amount:  amount,
		Message: fmt.Sprintf("CDP status check failed: %v", err),
	}
}

package cdp

import (
	"context"
	"fmt"

	"github.com/GoAutonity/dripgate/internal/chain"
	"github.com/GoAutonity/dripgate/internal/pkg/apperrors"
	"github.com/GoAutonity/dripgate/internal/pkg/logger"
	"github.com/GoAutonity/dripgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Health classifies a CDP's safety margin. Ordering matters: a higher
// value never means a less safe position.
type Health int

const (
	// HealthNoCDP is the sentinel for an account with no position at all.
	HealthNoCDP Health = iota
	// HealthCritical means the ratio is below the contract's liquidation
	// ratio: the position can be liquidated by anyone.
	HealthCritical
	// HealthDanger means the ratio is above liquidation but below the
	// operator's configured minimum.
	HealthDanger
	// HealthHealthy covers the configured [min_cr, max_cr] band, and by
	// convention any position with no debt.
	HealthHealthy
	// HealthOvercollateralized means the ratio exceeds max_cr and capital
	// is sitting idle.
	HealthOvercollateralized
)

func (h Health) String() string {
	switch h {
	case HealthNoCDP:
		return "no_cdp"
	case HealthCritical:
		return "critical"
	case HealthDanger:
		return "danger"
	case HealthHealthy:
		return "healthy"
	case HealthOvercollateralized:
		return "overcollateralized"
	default:
		return "unknown"
	}
}

// Status is a derived view of the position, recomputed from ledger state
// on every read. It is never cached.
type Status struct {
	Exists     bool
	Collateral decimal.Decimal // NTN, whole-token units
	Debt       decimal.Decimal // ATN, whole-token units
	// CollateralizationRatio is a percentage (250 means 250%). Nil when
	// the position carries no debt.
	CollateralizationRatio *decimal.Decimal
	Health                 Health
	IsLiquidatable         bool
	// MaxBorrowable is the additional ATN obtainable on top of current
	// debt without exceeding contract limits.
	MaxBorrowable         decimal.Decimal
	MinCollateralRequired decimal.Decimal
}

// ActionKind enumerates corrective position operations.
type ActionKind int

const (
	ActionDeposit ActionKind = iota
	ActionWithdraw
	ActionBorrow
	ActionRepay
)

func (k ActionKind) String() string {
	switch k {
	case ActionDeposit:
		return "deposit"
	case ActionWithdraw:
		return "withdraw"
	case ActionBorrow:
		return "borrow"
	case ActionRepay:
		return "repay"
	default:
		return "unknown"
	}
}

// Action is a proposed rebalance step sized to move the position toward
// the target collateralization ratio.
type Action struct {
	Kind   ActionKind
	Amount decimal.Decimal
}

var (
	hundred = decimal.NewFromInt(100)
	// Corrections below this size are suppressed so drift does not cause
	// transaction spam.
	minActionable = decimal.RequireFromString("0.01")
)

// Tracker translates raw ledger readings into a health judgment and a
// corrective action. It has no state beyond configuration; every read
// goes to the ledger.
type Tracker struct {
	ledger   chain.Ledger
	targetCR decimal.Decimal
	minCR    decimal.Decimal
	maxCR    decimal.Decimal
}

func NewTracker(ledger chain.Ledger, targetCR, minCR, maxCR decimal.Decimal) *Tracker {
	return &Tracker{
		ledger:   ledger,
		targetCR: targetCR,
		minCR:    minCR,
		maxCR:    maxCR,
	}
}

// GetStatus reads the position from the ledger and classifies its health.
func (t *Tracker) GetStatus(ctx context.Context) (Status, error) {
	addr := t.ledger.WalletAddress()

	pos, err := t.ledger.CDP(ctx, addr)
	if err != nil {
		return Status{}, fmt.Errorf("read cdp: %w", err)
	}

	// No collateral and no principal means no position; skip the
	// remaining ledger reads.
	if pos.Collateral.Sign() == 0 && pos.Principal.Sign() == 0 {
		return Status{Exists: false, Health: HealthNoCDP}, nil
	}

	debtWei, err := t.ledger.DebtAmount(ctx, addr)
	if err != nil {
		return Status{}, fmt.Errorf("read debt: %w", err)
	}

	collateral := chain.FromWei(pos.Collateral)
	debt := chain.FromWei(debtWei)

	var ratio *decimal.Decimal
	if debt.IsPositive() {
		price, err := t.ledger.CollateralPrice(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("read collateral price: %w", err)
		}
		collateralValue := collateral.Mul(chain.FromWei(price))
		r := collateralValue.Div(debt).Mul(hundred)
		ratio = &r
	}

	liqWei, err := t.ledger.LiquidationRatio(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("read liquidation ratio: %w", err)
	}
	health := classify(ratio, chain.FromWei(liqWei), t.minCR, t.maxCR)

	liquidatable, err := t.ledger.IsLiquidatable(ctx, addr)
	if err != nil {
		return Status{}, fmt.Errorf("read liquidatable flag: %w", err)
	}

	maxBorrowWei, err := t.ledger.MaxBorrow(ctx, pos.Collateral)
	if err != nil {
		return Status{}, fmt.Errorf("read max borrow: %w", err)
	}
	additional := chain.FromWei(maxBorrowWei).Sub(debt)
	if additional.IsNegative() {
		additional = decimal.Zero
	}

	minCollateral := decimal.Zero
	if debtWei.Sign() > 0 {
		mcr, err := t.ledger.MinCollateralizationRatio(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("read min collateralization ratio: %w", err)
		}
		price, err := t.ledger.CollateralPrice(ctx)
		if err != nil {
			return Status{}, fmt.Errorf("read collateral price: %w", err)
		}
		minWei, err := t.ledger.MinimumCollateral(ctx, debtWei, price, mcr)
		if err != nil {
			return Status{}, fmt.Errorf("read minimum collateral: %w", err)
		}
		minCollateral = chain.FromWei(minWei)
	}

	return Status{
		Exists:                 true,
		Collateral:             collateral,
		Debt:                   debt,
		CollateralizationRatio: ratio,
		Health:                 health,
		IsLiquidatable:         liquidatable,
		MaxBorrowable:          additional,
		MinCollateralRequired:  minCollateral,
	}, nil
}

// classify maps a collateralization ratio (percentage, nil when there is
// no debt) to a health state. No debt is healthy by convention.
func classify(ratioPct *decimal.Decimal, liquidationRatio, minCR, maxCR decimal.Decimal) Health {
	if ratioPct == nil {
		return HealthHealthy
	}
	ratio := ratioPct.Div(hundred)
	switch {
	case ratio.LessThan(liquidationRatio):
		return HealthCritical
	case ratio.LessThan(minCR):
		return HealthDanger
	case ratio.GreaterThan(maxCR):
		return HealthOvercollateralized
	default:
		return HealthHealthy
	}
}

// RebalanceAction reads the current status and proposes at most one
// corrective step, or nil when the position needs none.
func (t *Tracker) RebalanceAction(ctx context.Context) (*Action, error) {
	status, err := t.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	return t.ComputeRebalance(status), nil
}

// ComputeRebalance derives the corrective action from an already-fetched
// status. Pure; safe to call from any goroutine.
func (t *Tracker) ComputeRebalance(status Status) *Action {
	if !status.Exists || status.CollateralizationRatio == nil {
		return nil
	}
	ratio := status.CollateralizationRatio.Div(hundred)

	switch status.Health {
	case HealthCritical, HealthDanger:
		// Repay down to the debt level that restores the target ratio:
		// target_debt = collateral_value / target_cr.
		if status.Debt.IsPositive() {
			collateralValue := status.Debt.Mul(ratio)
			targetDebt := collateralValue.Div(t.targetCR)
			repay := status.Debt.Sub(targetDebt)
			if repay.IsPositive() {
				return &Action{Kind: ActionRepay, Amount: repay}
			}
		}
	case HealthOvercollateralized:
		if status.Debt.IsPositive() {
			collateralValue := status.Debt.Mul(ratio)
			targetDebt := collateralValue.Div(t.targetCR)
			borrow := targetDebt.Sub(status.Debt)
			if borrow.GreaterThan(status.MaxBorrowable) {
				borrow = status.MaxBorrowable
			}
			if borrow.GreaterThan(minActionable) {
				return &Action{Kind: ActionBorrow, Amount: borrow}
			}
		}
	}
	return nil
}

// Deposit adds NTN collateral. Two transactions: an allowance approval
// that must confirm first, then the deposit itself. Returns the deposit
// transaction hash.
func (t *Tracker) Deposit(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", apperrors.NewInvalidRequest("deposit amount must be positive")
	}
	wei := chain.ToWei(amount)

	approveHash, err := t.ledger.ApproveStabilization(ctx, wei)
	if err != nil {
		return "", fmt.Errorf("approve collateral: %w", err)
	}
	if _, err := t.ledger.WaitForReceipt(ctx, approveHash); err != nil {
		return "", fmt.Errorf("approve collateral: %w", err)
	}
	logger.Info("Collateral approval confirmed", "tx_hash", approveHash, "amount", amount.String())

	txHash, err := t.ledger.Deposit(ctx, wei)
	if err != nil {
		return "", fmt.Errorf("deposit collateral: %w", err)
	}
	metrics.CDPOperations.WithLabelValues("deposit").Inc()
	logger.Info("Collateral deposited", "tx_hash", txHash, "amount", amount.String())
	return txHash, nil
}

// Withdraw removes NTN collateral.
func (t *Tracker) Withdraw(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", apperrors.NewInvalidRequest("withdraw amount must be positive")
	}
	txHash, err := t.ledger.Withdraw(ctx, chain.ToWei(amount))
	if err != nil {
		return "", fmt.Errorf("withdraw collateral: %w", err)
	}
	metrics.CDPOperations.WithLabelValues("withdraw").Inc()
	logger.Info("Collateral withdrawn", "tx_hash", txHash, "amount", amount.String())
	return txHash, nil
}

// Borrow draws ATN against the collateral.
func (t *Tracker) Borrow(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", apperrors.NewInvalidRequest("borrow amount must be positive")
	}
	txHash, err := t.ledger.Borrow(ctx, chain.ToWei(amount))
	if err != nil {
		return "", fmt.Errorf("borrow: %w", err)
	}
	metrics.CDPOperations.WithLabelValues("borrow").Inc()
	logger.Info("ATN borrowed", "tx_hash", txHash, "amount", amount.String())
	return txHash, nil
}

// Repay reduces the debt. The repaid ATN travels as transaction value;
// no allowance round-trip is needed for the native coin.
func (t *Tracker) Repay(ctx context.Context, amount decimal.Decimal) (string, error) {
	if !amount.IsPositive() {
		return "", apperrors.NewInvalidRequest("repay amount must be positive")
	}
	txHash, err := t.ledger.Repay(ctx, chain.ToWei(amount))
	if err != nil {
		return "", fmt.Errorf("repay: %w", err)
	}
	metrics.CDPOperations.WithLabelValues("repay").Inc()
	logger.Info("Debt repaid", "tx_hash", txHash, "amount", amount.String())
	return txHash, nil
}

package cdp

import (
	"context"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoAutonity/dripgate/internal/chain"
)

// fakeLedger is an in-memory chain for tracker and controller tests.
// Amounts are set in whole tokens and converted to wei internally.
type fakeLedger struct {
	collateral   decimal.Decimal
	debt         decimal.Decimal
	price        decimal.Decimal
	liqRatio     decimal.Decimal
	minColRatio  decimal.Decimal
	maxBorrow    decimal.Decimal
	liquidatable bool

	nativeBalance decimal.Decimal
	tokenBalance  decimal.Decimal

	borrows   []decimal.Decimal
	repays    []decimal.Decimal
	deposits  []decimal.Decimal
	withdraws []decimal.Decimal
	txCount   int

	failSend bool
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{
		price:       decimal.NewFromInt(1),
		liqRatio:    decimal.RequireFromString("1.8"),
		minColRatio: decimal.RequireFromString("2.0"),
	}
}

func (f *fakeLedger) WalletAddress() common.Address {
	return common.HexToAddress("0x00000000000000000000000000000000000000f1")
}

func (f *fakeLedger) NativeBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	return f.nativeBalance, nil
}

func (f *fakeLedger) TokenBalance(ctx context.Context, addr common.Address) (decimal.Decimal, error) {
	return f.tokenBalance, nil
}

func (f *fakeLedger) CDP(ctx context.Context, addr common.Address) (chain.Position, error) {
	return chain.Position{
		Collateral: chain.ToWei(f.collateral),
		Principal:  chain.ToWei(f.debt),
	}, nil
}

func (f *fakeLedger) DebtAmount(ctx context.Context, addr common.Address) (*big.Int, error) {
	return chain.ToWei(f.debt), nil
}

func (f *fakeLedger) CollateralPrice(ctx context.Context) (*big.Int, error) {
	return chain.ToWei(f.price), nil
}

func (f *fakeLedger) LiquidationRatio(ctx context.Context) (*big.Int, error) {
	return chain.ToWei(f.liqRatio), nil
}

func (f *fakeLedger) MinCollateralizationRatio(ctx context.Context) (*big.Int, error) {
	return chain.ToWei(f.minColRatio), nil
}

func (f *fakeLedger) MaxBorrow(ctx context.Context, collateral *big.Int) (*big.Int, error) {
	return chain.ToWei(f.maxBorrow), nil
}

func (f *fakeLedger) MinimumCollateral(ctx context.Context, principal, price, mcr *big.Int) (*big.Int, error) {
	min := new(big.Int).Mul(principal, mcr)
	min.Div(min, price)
	return min, nil
}

func (f *fakeLedger) IsLiquidatable(ctx context.Context, addr common.Address) (bool, error) {
	return f.liquidatable, nil
}

func (f *fakeLedger) tx() (string, error) {
	if f.failSend {
		return "", fmt.Errorf("rpc unavailable")
	}
	f.txCount++
	return fmt.Sprintf("0xtx%04d", f.txCount), nil
}

func (f *fakeLedger) TransferNative(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	if f.failSend {
		return "", fmt.Errorf("rpc unavailable")
	}
	f.nativeBalance = f.nativeBalance.Sub(chain.FromWei(amountWei))
	return f.tx()
}

func (f *fakeLedger) TransferToken(ctx context.Context, to common.Address, amountWei *big.Int) (string, error) {
	if f.failSend {
		return "", fmt.Errorf("rpc unavailable")
	}
	f.tokenBalance = f.tokenBalance.Sub(chain.FromWei(amountWei))
	return f.tx()
}

func (f *fakeLedger) ApproveStabilization(ctx context.Context, amountWei *big.Int) (string, error) {
	return f.tx()
}

func (f *fakeLedger) Deposit(ctx context.Context, amountWei *big.Int) (string, error) {
	f.deposits = append(f.deposits, chain.FromWei(amountWei))
	return f.tx()
}

func (f *fakeLedger) Withdraw(ctx context.Context, amountWei *big.Int) (string, error) {
	f.withdraws = append(f.withdraws, chain.FromWei(amountWei))
	return f.tx()
}

func (f *fakeLedger) Borrow(ctx context.Context, amountWei *big.Int) (string, error) {
	if f.failSend {
		return "", fmt.Errorf("rpc unavailable")
	}
	amount := chain.FromWei(amountWei)
	f.borrows = append(f.borrows, amount)
	f.debt = f.debt.Add(amount)
	f.nativeBalance = f.nativeBalance.Add(amount)
	return f.tx()
}

func (f *fakeLedger) Repay(ctx context.Context, valueWei *big.Int) (string, error) {
	amount := chain.FromWei(valueWei)
	f.repays = append(f.repays, amount)
	f.debt = f.debt.Sub(amount)
	return f.tx()
}

func (f *fakeLedger) WaitForReceipt(ctx context.Context, txHash string) (*types.Receipt, error) {
	return &types.Receipt{Status: types.ReceiptStatusSuccessful}, nil
}

func newTestTracker(ledger chain.Ledger) *Tracker {
	return NewTracker(
		ledger,
		decimal.RequireFromString("2.5"),
		decimal.RequireFromString("2.2"),
		decimal.RequireFromString("3.0"),
	)
}

func ratioPtr(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestClassifyBoundaries(t *testing.T) {
	liq := decimal.RequireFromString("1.8")
	minCR := decimal.RequireFromString("2.2")
	maxCR := decimal.RequireFromString("3.0")

	cases := []struct {
		name  string
		ratio *decimal.Decimal // percentage
		want  Health
	}{
		{"no debt", nil, HealthHealthy},
		{"far below liquidation", ratioPtr("100"), HealthCritical},
		{"just below liquidation", ratioPtr("179.99"), HealthCritical},
		{"exactly liquidation", ratioPtr("180"), HealthDanger},
		{"between liquidation and min", ratioPtr("200"), HealthDanger},
		{"exactly min", ratioPtr("220"), HealthHealthy},
		{"mid band", ratioPtr("250"), HealthHealthy},
		{"exactly max", ratioPtr("300"), HealthHealthy},
		{"above max", ratioPtr("300.01"), HealthOvercollateralized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, classify(tc.ratio, liq, minCR, maxCR))
		})
	}
}

func TestClassifyMonotonic(t *testing.T) {
	liq := decimal.RequireFromString("1.8")
	minCR := decimal.RequireFromString("2.2")
	maxCR := decimal.RequireFromString("3.0")

	prev := HealthNoCDP
	for pct := 50; pct <= 400; pct += 5 {
		r := decimal.NewFromInt(int64(pct))
		h := classify(&r, liq, minCR, maxCR)
		if prev != HealthNoCDP {
			assert.GreaterOrEqual(t, int(h), int(prev), "health rank dropped at %d%%", pct)
		}
		prev = h
	}
}

func TestGetStatusNoPosition(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)

	status, err := tracker.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Exists)
	assert.Equal(t, HealthNoCDP, status.Health)
}

func TestGetStatusHealthy(t *testing.T) {
	ledger := newFakeLedger()
	ledger.collateral = decimal.NewFromInt(100)
	ledger.debt = decimal.NewFromInt(40)
	ledger.maxBorrow = decimal.NewFromInt(50)

	tracker := newTestTracker(ledger)
	status, err := tracker.GetStatus(context.Background())
	require.NoError(t, err)

	assert.True(t, status.Exists)
	require.NotNil(t, status.CollateralizationRatio)
	assert.True(t, status.CollateralizationRatio.Equal(decimal.NewFromInt(250)),
		"got ratio %s", status.CollateralizationRatio)
	assert.Equal(t, HealthHealthy, status.Health)
	assert.True(t, status.MaxBorrowable.Equal(decimal.NewFromInt(10)),
		"got %s", status.MaxBorrowable)

	assert.Nil(t, tracker.ComputeRebalance(status))
}

func TestComputeRebalanceCritical(t *testing.T) {
	ledger := newFakeLedger()
	ledger.collateral = decimal.NewFromInt(100)
	ledger.debt = decimal.NewFromInt(60)
	ledger.maxBorrow = decimal.NewFromInt(50)

	tracker := newTestTracker(ledger)
	status, err := tracker.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthCritical, status.Health)

	action := tracker.ComputeRebalance(status)
	require.NotNil(t, action)
	assert.Equal(t, ActionRepay, action.Kind)
	assert.True(t, action.Amount.IsPositive())

	// Repaying the proposed amount should land the ratio on the target.
	newDebt := status.Debt.Sub(action.Amount)
	newRatio := status.Collateral.Div(newDebt)
	diff := newRatio.Sub(decimal.RequireFromString("2.5")).Abs()
	assert.True(t, diff.LessThan(decimal.RequireFromString("0.001")),
		"projected ratio %s not near target", newRatio)
}

func TestComputeRebalanceOvercollateralized(t *testing.T) {
	ledger := newFakeLedger()
	ledger.collateral = decimal.NewFromInt(400)
	ledger.debt = decimal.NewFromInt(100) // 400% ratio
	ledger.maxBorrow = decimal.NewFromInt(200)

	tracker := newTestTracker(ledger)
	status, err := tracker.GetStatus(context.Background())
	require.NoError(t, err)
	assert.Equal(t, HealthOvercollateralized, status.Health)

	action := tracker.ComputeRebalance(status)
	require.NotNil(t, action)
	assert.Equal(t, ActionBorrow, action.Kind)
	// target debt = 400 / 2.5 = 160, borrow = 60, within headroom 100.
	assert.True(t, action.Amount.Equal(decimal.NewFromInt(60)),
		"got %s", action.Amount)
}

func TestComputeRebalanceBorrowCap(t *testing.T) {
	ledger := newFakeLedger()
	ledger.collateral = decimal.NewFromInt(400)
	ledger.debt = decimal.NewFromInt(100)
	ledger.maxBorrow = decimal.NewFromInt(110)

	tracker := newTestTracker(ledger)
	status, err := tracker.GetStatus(context.Background())
	require.NoError(t, err)

	action := tracker.ComputeRebalance(status)
	require.NotNil(t, action)
	assert.Equal(t, ActionBorrow, action.Kind)
	assert.True(t, action.Amount.Equal(decimal.NewFromInt(10)), "got %s", action.Amount)
}

func TestComputeRebalanceSuppressesDust(t *testing.T) {
	ledger := newFakeLedger()
	ledger.collateral = decimal.NewFromInt(400)
	ledger.debt = decimal.NewFromInt(100)
	ledger.maxBorrow = decimal.RequireFromString("100.005")

	tracker := newTestTracker(ledger)
	status, err := tracker.GetStatus(context.Background())
	require.NoError(t, err)

	assert.Nil(t, tracker.ComputeRebalance(status))
}

func TestTrackerRejectsNonPositiveAmounts(t *testing.T) {
	tracker := newTestTracker(newFakeLedger())
	ctx := context.Background()

	for _, amount := range []decimal.Decimal{decimal.Zero, decimal.NewFromInt(-1)} {
		_, err := tracker.Deposit(ctx, amount)
		assert.Error(t, err)
		_, err = tracker.Withdraw(ctx, amount)
		assert.Error(t, err)
		_, err = tracker.Borrow(ctx, amount)
		assert.Error(t, err)
		_, err = tracker.Repay(ctx, amount)
		assert.Error(t, err)
	}
}

func TestTrackerBorrowExecutes(t *testing.T) {
	ledger := newFakeLedger()
	tracker := newTestTracker(ledger)

	txHash, err := tracker.Borrow(context.Background(), decimal.NewFromInt(3))
	require.NoError(t, err)
	assert.NotEmpty(t, txHash)
	require.Len(t, ledger.borrows, 1)
	assert.True(t, ledger.borrows[0].Equal(decimal.NewFromInt(3)))
}

package faucet

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GoAutonity/dripgate/internal/cdp"
	"github.com/GoAutonity/dripgate/internal/model"
)

type captureAudit struct {
	records []*model.Distribution
}

func (c *captureAudit) Insert(ctx context.Context, rec *model.Distribution) error {
	c.records = append(c.records, rec)
	return nil
}

func newTestService(ledger *stubLedger, dailyLimit int, cooldown time.Duration, audit AuditSink) (*Service, *cdp.Controller) {
	controller := newTestController(ledger, cdp.ModeManual)
	limiter := NewRateLimiter(dailyLimit, cooldown, NewMemoryLimiterStore())
	native := NewNativeDistributor(ledger, controller, decimal.NewFromInt(5))
	token := NewTokenDistributor(ledger, decimal.NewFromInt(50))
	return NewService(limiter, native, token, controller, audit), controller
}

func healthyLedger() *stubLedger {
	ledger := newStubLedger()
	ledger.nativeBalance = decimal.NewFromInt(20)
	ledger.tokenBalance = decimal.NewFromInt(100)
	ledger.collateral = decimal.NewFromInt(100)
	ledger.debt = decimal.NewFromInt(40)
	ledger.maxBorrow = decimal.NewFromInt(50)
	return ledger
}

func TestServiceSuccessConsumesAllowance(t *testing.T) {
	ledger := healthyLedger()
	audit := &captureAudit{}
	svc, _ := newTestService(ledger, 3, 0, audit)
	ctx := context.Background()

	out := svc.HandleTokenRequest(ctx, "alice", goodAddr, decimal.NewFromInt(10))
	assert.True(t, out.Success)
	assert.Equal(t, StatusSuccess, out.Status)
	assert.Equal(t, 2, out.Remaining)
	require.Len(t, ledger.tokenTransfers, 1)

	require.Len(t, audit.records, 1)
	assert.Equal(t, "alice", audit.records[0].UserID)
	assert.Equal(t, TokenNTN, audit.records[0].Token)
	assert.Equal(t, string(StatusSuccess), audit.records[0].Status)
	assert.NotEmpty(t, audit.records[0].TxHash)
}

func TestServiceRateLimitedSkipsDistributor(t *testing.T) {
	ledger := healthyLedger()
	svc, _ := newTestService(ledger, 1, 0, nil)
	ctx := context.Background()

	first := svc.HandleTokenRequest(ctx, "bob", goodAddr, decimal.NewFromInt(1))
	require.True(t, first.Success)

	second := svc.HandleTokenRequest(ctx, "bob", goodAddr, decimal.NewFromInt(1))
	assert.False(t, second.Success)
	assert.Equal(t, StatusRateLimited, second.Status)
	assert.Equal(t, 0, second.Remaining)
	assert.NotEmpty(t, second.Message)
	// Only the first request reached the ledger.
	assert.Len(t, ledger.tokenTransfers, 1)
}

func TestServiceFailureDoesNotConsumeAllowance(t *testing.T) {
	ledger := healthyLedger()
	ledger.tokenBalance = decimal.NewFromInt(1)
	svc, _ := newTestService(ledger, 3, 0, nil)
	ctx := context.Background()

	out := svc.HandleTokenRequest(ctx, "carol", goodAddr, decimal.NewFromInt(10))
	assert.False(t, out.Success)
	assert.Equal(t, StatusInsufficientBalance, out.Status)
	// Remaining reflects current truth: the failed attempt cost nothing.
	assert.Equal(t, 3, out.Remaining)
}

func TestServiceNativeRequestBorrows(t *testing.T) {
	ledger := healthyLedger()
	ledger.nativeBalance = decimal.NewFromInt(2)
	svc, _ := newTestService(ledger, 3, 0, nil)

	out := svc.HandleNativeRequest(context.Background(), "dave", goodAddr, decimal.NewFromInt(5))
	require.True(t, out.Success, "message: %s", out.Message)
	require.Len(t, ledger.borrows, 1)
	assert.True(t, ledger.borrows[0].Equal(decimal.NewFromInt(3)))
}

func TestServiceGetStatusHealthy(t *testing.T) {
	svc, _ := newTestService(healthyLedger(), 3, 0, nil)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.True(t, status.Healthy)
	require.NotNil(t, status.CDP)
	assert.Equal(t, cdp.HealthHealthy, status.CDP.Health)
	// wallet 20 + borrowable headroom 10
	assert.True(t, status.NativeAvailable.Equal(decimal.NewFromInt(30)),
		"got %s", status.NativeAvailable)
}

func TestServiceGetStatusUnhealthyCDP(t *testing.T) {
	ledger := healthyLedger()
	ledger.debt = decimal.NewFromInt(80) // 125%, critical
	svc, _ := newTestService(ledger, 3, 0, nil)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Healthy)
}

func TestServiceGetStatusExhaustedBalances(t *testing.T) {
	ledger := newStubLedger()
	svc, _ := newTestService(ledger, 3, 0, nil)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Healthy)
}

func TestServiceGetStatusHealthyOnBorrowHeadroomAlone(t *testing.T) {
	ledger := healthyLedger()
	ledger.nativeBalance = decimal.Zero
	ledger.tokenBalance = decimal.Zero
	svc, _ := newTestService(ledger, 3, 0, nil)

	status, err := svc.GetStatus(context.Background())
	require.NoError(t, err)
	// Empty wallet, but 10 ATN of borrow headroom keeps the faucet alive.
	assert.True(t, status.Healthy)
	assert.True(t, status.NativeAvailable.Equal(decimal.NewFromInt(10)),
		"got %s", status.NativeAvailable)
}

func TestServiceGetAlerts(t *testing.T) {
	ledger := healthyLedger()
	ledger.debt = decimal.NewFromInt(80)
	svc, _ := newTestService(ledger, 3, 0, nil)

	alerts, err := svc.GetAlerts(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, alerts)

	found := false
	for _, a := range alerts {
		if a.Severity == "critical" {
			found = true
		}
	}
	assert.True(t, found, "expected a critical alert, got %+v", alerts)
}

func TestServiceGetAlertsEmptyWhenHealthy(t *testing.T) {
	svc, _ := newTestService(healthyLedger(), 3, 0, nil)

	alerts, err := svc.GetAlerts(context.Background())
	require.NoError(t, err)
	assert.Empty(t, alerts)
}

func TestServiceUserStatusAndReset(t *testing.T) {
	svc, _ := newTestService(healthyLedger(), 2, time.Hour, nil)
	ctx := context.Background()

	out := svc.HandleTokenRequest(ctx, "erin", goodAddr, decimal.NewFromInt(1))
	require.True(t, out.Success)

	status, err := svc.GetUserStatus(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, 1, status.Remaining)
	assert.Greater(t, status.CooldownSeconds, 0)

	require.NoError(t, svc.ResetUser(ctx, "erin"))
	status, err = svc.GetUserStatus(ctx, "erin")
	require.NoError(t, err)
	assert.Equal(t, 2, status.Remaining)
	assert.Equal(t, 0, status.CooldownSeconds)
}

func TestServiceStartStopIdempotent(t *testing.T) {
	ledger := healthyLedger()
	controller := newTestController(ledger, cdp.ModeManual)
	limiter := NewRateLimiter(3, 0, NewMemoryLimiterStore())
	native := NewNativeDistributor(ledger, controller, decimal.NewFromInt(5))
	token := NewTokenDistributor(ledger, decimal.NewFromInt(50))
	svc := NewService(limiter, native, token, controller, nil)

	svc.Start()
	svc.Start()
	assert.False(t, controller.IsRunning()) // manual mode never loops
	svc.Stop()
	svc.Stop()
}

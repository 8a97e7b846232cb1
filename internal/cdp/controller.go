package cdp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/GoAutonity/dripgate/internal/pkg/apperrors"
	"github.com/GoAutonity/dripgate/internal/pkg/logger"
	"github.com/GoAutonity/dripgate/internal/pkg/metrics"
	"github.com/shopspring/decimal"
)

// Mode gates position operations.
type Mode int

const (
	// ModeAuto allows explicit operations and runs the monitoring loop.
	ModeAuto Mode = iota
	// ModeManual allows explicit operations, no background loop.
	ModeManual
	// ModeDisabled rejects every position operation.
	ModeDisabled
)

func (m Mode) String() string {
	switch m {
	case ModeAuto:
		return "auto"
	case ModeManual:
		return "manual"
	case ModeDisabled:
		return "disabled"
	default:
		return "unknown"
	}
}

func ParseMode(s string) (Mode, error) {
	switch strings.ToLower(s) {
	case "auto":
		return ModeAuto, nil
	case "manual":
		return ModeManual, nil
	case "disabled":
		return ModeDisabled, nil
	default:
		return ModeDisabled, fmt.Errorf("unknown cdp mode %q", s)
	}
}

// EmergencyAction selects the response to a CRITICAL health reading.
type EmergencyAction int

const (
	// EmergencyAlert logs at the highest severity and takes no on-chain
	// action.
	EmergencyAlert EmergencyAction = iota
	// EmergencyRepay executes the tracker's proposed repay, if any.
	EmergencyRepay
	// EmergencyPause flips the mode to disabled and stops the loop. One
	// way: resuming requires a restart.
	EmergencyPause
)

func (a EmergencyAction) String() string {
	switch a {
	case EmergencyAlert:
		return "alert"
	case EmergencyRepay:
		return "repay"
	case EmergencyPause:
		return "pause"
	default:
		return "unknown"
	}
}

func ParseEmergencyAction(s string) (EmergencyAction, error) {
	switch strings.ToLower(s) {
	case "alert":
		return EmergencyAlert, nil
	case "repay":
		return EmergencyRepay, nil
	case "pause":
		return EmergencyPause, nil
	default:
		return EmergencyAlert, fmt.Errorf("unknown emergency action %q", s)
	}
}

// Controller owns the operating mode and the background health loop. All
// position mutations pass through it so the disabled gate is enforced in
// one place.
type Controller struct {
	tracker   *Tracker
	interval  time.Duration
	emergency EmergencyAction

	mu      sync.Mutex
	mode    Mode
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
}

func NewController(tracker *Tracker, mode Mode, checkInterval time.Duration, emergency EmergencyAction) *Controller {
	return &Controller{
		tracker:   tracker,
		mode:      mode,
		interval:  checkInterval,
		emergency: emergency,
	}
}

func (c *Controller) Mode() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

func (c *Controller) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Controller) guard() error {
	if c.Mode() == ModeDisabled {
		return apperrors.NewCDPDisabled()
	}
	return nil
}

func (c *Controller) GetStatus(ctx context.Context) (Status, error) {
	if err := c.guard(); err != nil {
		return Status{}, err
	}
	return c.tracker.GetStatus(ctx)
}

func (c *Controller) Deposit(ctx context.Context, amount decimal.Decimal) (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	return c.tracker.Deposit(ctx, amount)
}

func (c *Controller) Withdraw(ctx context.Context, amount decimal.Decimal) (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	return c.tracker.Withdraw(ctx, amount)
}

func (c *Controller) Borrow(ctx context.Context, amount decimal.Decimal) (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	return c.tracker.Borrow(ctx, amount)
}

func (c *Controller) Repay(ctx context.Context, amount decimal.Decimal) (string, error) {
	if err := c.guard(); err != nil {
		return "", err
	}
	return c.tracker.Repay(ctx, amount)
}

// StartMonitoring launches the health loop. Only auto mode monitors;
// calling it again while running is a logged no-op.
func (c *Controller) StartMonitoring() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mode != ModeAuto {
		logger.Info("CDP monitoring not started, mode is not auto", "mode", c.mode.String())
		return
	}
	if c.running {
		logger.Warn("CDP monitoring already running")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.done = make(chan struct{})
	c.running = true
	go c.monitorLoop(ctx, c.done)

	logger.Info("CDP auto-monitoring started", "interval", c.interval.String())
}

// StopMonitoring cancels the loop and waits for it to finish. Idempotent.
func (c *Controller) StopMonitoring() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	cancel := c.cancel
	done := c.done
	c.mu.Unlock()

	cancel()
	<-done
	logger.Info("CDP auto-monitoring stopped")
}

func (c *Controller) monitorLoop(ctx context.Context, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		// A failed cycle must not stop future cycles: a transient RPC
		// error is logged and the loop sleeps as usual.
		if err := c.checkAndRebalance(ctx); err != nil {
			logger.Error("CDP monitoring cycle failed", "error", err.Error())
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.interval):
		}
	}
}

func (c *Controller) checkAndRebalance(ctx context.Context) error {
	status, err := c.tracker.GetStatus(ctx)
	if err != nil {
		return err
	}

	recordStatusMetrics(status)
	logger.Debug("CDP health check",
		"health", status.Health.String(),
		"collateral", status.Collateral.String(),
		"debt", status.Debt.String(),
	)

	switch status.Health {
	case HealthCritical:
		c.handleEmergency(ctx, status)
		return nil
	case HealthDanger:
		c.handleDanger(ctx, status)
		return nil
	}

	if action := c.tracker.ComputeRebalance(status); action != nil {
		c.executeRebalance(ctx, action)
	}
	return nil
}

func (c *Controller) handleEmergency(ctx context.Context, status Status) {
	logger.Warn("CDP in CRITICAL state, emergency action triggered",
		"emergency_action", c.emergency.String(),
		"collateral", status.Collateral.String(),
		"debt", status.Debt.String(),
	)

	switch c.emergency {
	case EmergencyAlert:
		logger.Error("CDP CRITICAL: manual intervention required",
			"collateral", status.Collateral.String(),
			"debt", status.Debt.String(),
		)

	case EmergencyRepay:
		action := c.tracker.ComputeRebalance(status)
		if action == nil || action.Kind != ActionRepay {
			return
		}
		txHash, err := c.tracker.Repay(ctx, action.Amount)
		if err != nil {
			logger.Error("Emergency repayment failed", "error", err.Error())
			return
		}
		logger.Info("Emergency repayment executed", "tx_hash", txHash, "amount", action.Amount.String())

	case EmergencyPause:
		logger.Error("CDP CRITICAL: pausing all position operations")
		c.pause()
	}
}

// pause disables the mode and marks the loop stopped from inside the loop
// itself, so it must not wait on the done channel.
func (c *Controller) pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.mode = ModeDisabled
	if c.running {
		c.running = false
		c.cancel()
	}
}

func (c *Controller) handleDanger(ctx context.Context, status Status) {
	logger.Warn("CDP in DANGER zone, attempting rebalance", "debt", status.Debt.String())
	if action := c.tracker.ComputeRebalance(status); action != nil {
		c.executeRebalance(ctx, action)
	}
}

func (c *Controller) executeRebalance(ctx context.Context, action *Action) {
	logger.Info("Executing CDP rebalance", "action", action.Kind.String(), "amount", action.Amount.String())

	var (
		txHash string
		err    error
	)
	switch action.Kind {
	case ActionDeposit:
		txHash, err = c.tracker.Deposit(ctx, action.Amount)
	case ActionWithdraw:
		txHash, err = c.tracker.Withdraw(ctx, action.Amount)
	case ActionBorrow:
		txHash, err = c.tracker.Borrow(ctx, action.Amount)
	case ActionRepay:
		txHash, err = c.tracker.Repay(ctx, action.Amount)
	default:
		logger.Error("Unknown rebalance action", "action", action.Kind.String())
		return
	}
	if err != nil {
		logger.Error("CDP rebalance failed",
			"action", action.Kind.String(),
			"amount", action.Amount.String(),
			"error", err.Error(),
		)
		return
	}
	logger.Info("CDP rebalance completed",
		"action", action.Kind.String(),
		"tx_hash", txHash,
		"amount", action.Amount.String(),
	)
}

func recordStatusMetrics(status Status) {
	if status.CollateralizationRatio != nil {
		metrics.CDPCollateralRatio.Set(status.CollateralizationRatio.InexactFloat64())
	} else {
		metrics.CDPCollateralRatio.Set(0)
	}
	metrics.CDPCollateral.Set(status.Collateral.InexactFloat64())
	metrics.CDPDebt.Set(status.Debt.InexactFloat64())
}

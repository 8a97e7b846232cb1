package faucet

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/GoAutonity/dripgate/internal/cdp"
	"github.com/GoAutonity/dripgate/internal/model"
	"github.com/GoAutonity/dripgate/internal/pkg/logger"
	"github.com/GoAutonity/dripgate/internal/pkg/metrics"
)

// StatusRateLimited marks a request refused by the limiter before any
// distributor ran.
const StatusRateLimited DistributionStatus = "rate_limited"

const (
	TokenATN = "ATN"
	TokenNTN = "NTN"
)

// RequestOutcome is a distribution result annotated with the user's
// post-request remaining allowance. Remaining is populated on every
// path, success or failure.
type RequestOutcome struct {
	DistributionResult
	Remaining int
}

// FaucetStatus aggregates liquidity and position health for get-status.
// CDP is nil when no position subsystem is configured.
type FaucetStatus struct {
	Healthy         bool            `json:"healthy"`
	WalletNative    decimal.Decimal `json:"wallet_native"`
	TokenBalance    decimal.Decimal `json:"token_balance"`
	NativeAvailable decimal.Decimal `json:"native_available"`
	CDP             *cdp.Status     `json:"cdp,omitempty"`
	CDPMode         string          `json:"cdp_mode,omitempty"`
}

// Alert is one user-facing warning derived from the current chain state.
type Alert struct {
	Severity string `json:"severity"`
	Message  string `json:"message"`
}

// AuditSink records distribution attempts. Writes are best effort and
// never influence the request outcome.
type AuditSink interface {
	Insert(ctx context.Context, rec *model.Distribution) error
}

// Service runs a faucet request end to end: limiter gate, distributor
// dispatch, usage recording, audit trail.
type Service struct {
	limiter    *RateLimiter
	native     *NativeDistributor
	token      *TokenDistributor
	controller *cdp.Controller
	audit      AuditSink
}

func NewService(limiter *RateLimiter, native *NativeDistributor, token *TokenDistributor, controller *cdp.Controller, audit AuditSink) *Service {
	return &Service{
		limiter:    limiter,
		native:     native,
		token:      token,
		controller: controller,
		audit:      audit,
	}
}

// Start begins the position controller's background loop. No-op when no
// controller is configured. Idempotent.
func (s *Service) Start() {
	if s.controller != nil {
		s.controller.StartMonitoring()
	}
}

// Stop cancels the background loop and waits for it to finish. Idempotent.
func (s *Service) Stop() {
	if s.controller != nil {
		s.controller.StopMonitoring()
	}
}

// HandleNativeRequest processes a request for the native coin.
func (s *Service) HandleNativeRequest(ctx context.Context, userID, address string, amount decimal.Decimal) RequestOutcome {
	return s.handle(ctx, TokenATN, s.native, userID, address, amount)
}

// HandleTokenRequest processes a request for the collateral token.
func (s *Service) HandleTokenRequest(ctx context.Context, userID, address string, amount decimal.Decimal) RequestOutcome {
	return s.handle(ctx, TokenNTN, s.token, userID, address, amount)
}

func (s *Service) handle(ctx context.Context, token string, dist Distributor, userID, address string, amount decimal.Decimal) RequestOutcome {
	limit, err := s.limiter.CheckLimit(ctx, userID)
	if err != nil {
		logger.Error("rate limit check failed", "user", userID, "error", err)
		out := RequestOutcome{DistributionResult: DistributionResult{
			Status:  StatusTransactionFailed,
			Amount:  amount,
			Message: fmt.Sprintf("Transaction failed: %v", err),
		}}
		s.finish(ctx, token, userID, address, &out)
		return out
	}
	if !limit.Allowed {
		out := RequestOutcome{
			DistributionResult: DistributionResult{
				Status:  StatusRateLimited,
				Amount:  amount,
				Message: limit.Reason,
			},
			Remaining: limit.Remaining,
		}
		metrics.RequestsTotal.WithLabelValues(token, string(StatusRateLimited)).Inc()
		s.writeAudit(ctx, token, userID, address, out.DistributionResult)
		return out
	}

	result := dist.Distribute(ctx, address, amount)
	if result.Success {
		if err := s.limiter.RecordRequest(ctx, userID); err != nil {
			logger.Error("failed to record request", "user", userID, "error", err)
		}
		metrics.TokensDistributed.WithLabelValues(token).Add(amountFloat(result.Amount))
	}
	metrics.RequestsTotal.WithLabelValues(token, string(result.Status)).Inc()

	out := RequestOutcome{DistributionResult: result}
	s.finish(ctx, token, userID, address, &out)
	return out
}

// finish recomputes the user's remaining allowance after the attempt and
// writes the audit record. Remaining reflects current truth, not the
// pre-check snapshot.
func (s *Service) finish(ctx context.Context, token, userID, address string, out *RequestOutcome) {
	remaining, err := s.limiter.GetRemaining(ctx, userID)
	if err != nil {
		logger.Warn("failed to read remaining allowance", "user", userID, "error", err)
	} else {
		out.Remaining = remaining
	}
	s.writeAudit(ctx, token, userID, address, out.DistributionResult)
}

func (s *Service) writeAudit(ctx context.Context, token, userID, address string, result DistributionResult) {
	if s.audit == nil {
		return
	}
	rec := &model.Distribution{
		UserID:    userID,
		Recipient: address,
		Token:     token,
		Amount:    result.Amount,
		TxHash:    result.TxHash,
		Status:    string(result.Status),
		Message:   result.Message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.audit.Insert(ctx, rec); err != nil {
		logger.Warn("audit write failed", "user", userID, "error", err)
	}
}

// GetStatus aggregates position health and both distributors' liquidity.
func (s *Service) GetStatus(ctx context.Context) (FaucetStatus, error) {
	status := FaucetStatus{Healthy: true}

	wallet, err := s.native.WalletBalance(ctx)
	if err != nil {
		return status, err
	}
	status.WalletNative = wallet
	metrics.TokenBalance.WithLabelValues(TokenATN).Set(amountFloat(wallet))

	tokenBal, err := s.token.Balance(ctx)
	if err != nil {
		return status, err
	}
	status.TokenBalance = tokenBal
	metrics.TokenBalance.WithLabelValues(TokenNTN).Set(amountFloat(tokenBal))

	status.NativeAvailable = wallet
	if s.controller != nil {
		status.CDPMode = s.controller.Mode().String()
		cdpStatus, err := s.controller.GetStatus(ctx)
		if err == nil {
			status.CDP = &cdpStatus
			status.NativeAvailable = wallet.Add(cdpStatus.MaxBorrowable)
			if cdpStatus.Health == cdp.HealthCritical || cdpStatus.Health == cdp.HealthDanger {
				status.Healthy = false
			}
		}
	}

	// ATN counts as exhausted only when the borrow headroom is also gone.
	if !status.NativeAvailable.IsPositive() && !status.TokenBalance.IsPositive() {
		status.Healthy = false
	}
	return status, nil
}

// GetUserStatus reports the user's remaining allowance and active cooldown.
func (s *Service) GetUserStatus(ctx context.Context, userID string) (model.UserStatusResponse, error) {
	remaining, err := s.limiter.GetRemaining(ctx, userID)
	if err != nil {
		return model.UserStatusResponse{}, err
	}
	cooldown, err := s.limiter.GetCooldown(ctx, userID)
	if err != nil {
		return model.UserStatusResponse{}, err
	}
	return model.UserStatusResponse{
		UserID:          userID,
		Remaining:       remaining,
		CooldownSeconds: int(cooldown.Seconds()),
	}, nil
}

// GetAlerts derives warnings from the current position and liquidity state.
func (s *Service) GetAlerts(ctx context.Context) ([]Alert, error) {
	var alerts []Alert

	status, err := s.GetStatus(ctx)
	if err != nil {
		return nil, err
	}
	if status.CDP != nil {
		if status.CDP.IsLiquidatable {
			alerts = append(alerts, Alert{Severity: "critical", Message: "CDP is liquidatable"})
		}
		switch status.CDP.Health {
		case cdp.HealthCritical:
			alerts = append(alerts, Alert{Severity: "critical", Message: fmt.Sprintf("CDP health is CRITICAL, ratio %s%%", ratioString(status.CDP))})
		case cdp.HealthDanger:
			alerts = append(alerts, Alert{Severity: "warning", Message: fmt.Sprintf("CDP health is DANGER, ratio %s%%", ratioString(status.CDP))})
		}
	}
	if !status.Healthy {
		alerts = append(alerts, Alert{Severity: "warning", Message: "Faucet is unhealthy, distributions may fail"})
	}
	return alerts, nil
}

// ResetUser clears the user's daily count and cooldown.
func (s *Service) ResetUser(ctx context.Context, userID string) error {
	return s.limiter.ResetUser(ctx, userID)
}

func ratioString(status *cdp.Status) string {
	if status.CollateralizationRatio == nil {
		return "n/a"
	}
	return status.CollateralizationRatio.StringFixed(1)
}

func amountFloat(d decimal.Decimal) float64 {
	f, _ := d.Float64()
	return f
}

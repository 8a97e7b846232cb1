package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/GoAutonity/dripgate/internal/chain"
	"github.com/GoAutonity/dripgate/internal/config"
	"github.com/GoAutonity/dripgate/internal/faucet"
	"github.com/GoAutonity/dripgate/internal/model"
)

type FaucetHandler struct {
	svc     *faucet.Service
	cfg     *config.Config
	network chain.NetworkInfo
}

func NewFaucetHandler(svc *faucet.Service, cfg *config.Config, network chain.NetworkInfo) *FaucetHandler {
	return &FaucetHandler{svc: svc, cfg: cfg, network: network}
}

// RequestNative handles POST /v1/faucet/native.
func (h *FaucetHandler) RequestNative(c *gin.Context) {
	req, amount, ok := h.bindRequest(c, h.cfg.Faucet.DefaultATN)
	if !ok {
		return
	}
	out := h.svc.HandleNativeRequest(c.Request.Context(), req.UserID, req.Address, amount)
	c.JSON(statusCode(out.Status), h.toResponse(out))
}

// RequestToken handles POST /v1/faucet/token.
func (h *FaucetHandler) RequestToken(c *gin.Context) {
	req, amount, ok := h.bindRequest(c, h.cfg.Faucet.DefaultNTN)
	if !ok {
		return
	}
	out := h.svc.HandleTokenRequest(c.Request.Context(), req.UserID, req.Address, amount)
	c.JSON(statusCode(out.Status), h.toResponse(out))
}

func (h *FaucetHandler) bindRequest(c *gin.Context, defaultAmount float64) (model.FaucetRequest, decimal.Decimal, bool) {
	var req model.FaucetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: err.Error()})
		return req, decimal.Zero, false
	}

	amount := decimal.NewFromFloat(defaultAmount)
	if req.Amount != "" {
		parsed, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, model.ErrorResponse{Error: "invalid amount: " + req.Amount})
			return req, decimal.Zero, false
		}
		amount = parsed
	}
	return req, amount, true
}

func (h *FaucetHandler) toResponse(out faucet.RequestOutcome) model.FaucetResponse {
	resp := model.FaucetResponse{
		Success:   out.Success,
		Status:    string(out.Status),
		TxHash:    out.TxHash,
		Amount:    out.Amount.String(),
		Message:   out.Message,
		Remaining: out.Remaining,
	}
	if out.TxHash != "" {
		resp.ExplorerURL = h.network.TxURL(out.TxHash)
	}
	return resp
}

// statusCode maps a distribution outcome to an HTTP status. Expected
// policy rejections are client errors, ledger failures are upstream ones.
func statusCode(status faucet.DistributionStatus) int {
	switch status {
	case faucet.StatusSuccess:
		return http.StatusOK
	case faucet.StatusRateLimited:
		return http.StatusTooManyRequests
	case faucet.StatusInvalidAddress, faucet.StatusInvalidAmount:
		return http.StatusBadRequest
	case faucet.StatusInsufficientBalance, faucet.StatusInsufficientCollateral, faucet.StatusCDPUnhealthy:
		return http.StatusConflict
	default:
		return http.StatusBadGateway
	}
}

// GetStatus handles GET /v1/status.
func (h *FaucetHandler) GetStatus(c *gin.Context) {
	status, err := h.svc.GetStatus(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetUserStatus handles GET /v1/users/:id.
func (h *FaucetHandler) GetUserStatus(c *gin.Context) {
	status, err := h.svc.GetUserStatus(c.Request.Context(), c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, status)
}

// GetAlerts handles GET /v1/alerts.
func (h *FaucetHandler) GetAlerts(c *gin.Context) {
	alerts, err := h.svc.GetAlerts(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, model.ErrorResponse{Error: err.Error()})
		return
	}
	if alerts == nil {
		alerts = []faucet.Alert{}
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts})
}

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/GoAutonity/dripgate/internal/faucet"
	"github.com/GoAutonity/dripgate/internal/model"
	"github.com/GoAutonity/dripgate/internal/repository"
)

type AdminHandler struct {
	svc   *faucet.Service
	audit *repository.PostgresAuditRepo
}

func NewAdminHandler(svc *faucet.Service, audit *repository.PostgresAuditRepo) *AdminHandler {
	return &AdminHandler{svc: svc, audit: audit}
}

// ResetUser handles POST /v1/admin/users/:id/reset. Clears the user's
// daily count and cooldown.
func (h *AdminHandler) ResetUser(c *gin.Context) {
	userID := c.Param("id")
	if err := h.svc.ResetUser(c.Request.Context(), userID); err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "reset", "user_id": userID})
}

// ListDistributions handles GET /v1/admin/distributions.
func (h *AdminHandler) ListDistributions(c *gin.Context) {
	if h.audit == nil {
		c.JSON(http.StatusNotFound, model.ErrorResponse{Error: "audit trail not configured"})
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	records, err := h.audit.List(c.Request.Context(), c.Query("user_id"), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, model.ErrorResponse{Error: err.Error()})
		return
	}
	if records == nil {
		records = []*model.Distribution{}
	}
	c.JSON(http.StatusOK, gin.H{"distributions": records})
}

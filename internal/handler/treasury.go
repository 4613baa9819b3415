package handler

import (
	"net/http"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
)

type TreasuryHandler struct {
	engine *service.Engine
}

func NewTreasuryHandler(engine *service.Engine) *TreasuryHandler {
	return &TreasuryHandler{engine: engine}
}

func (h *TreasuryHandler) Deposit(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req model.AmountRequest
	if !bindJSON(c, &req) {
		return
	}
	amount, ok := parseAmount(c, req.Amount)
	if !ok {
		return
	}
	stats, err := h.engine.DepositTreasury(c.Request.Context(), caller, amount)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats.DTO())
}

func (h *TreasuryHandler) Distribute(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	res, err := h.engine.DistributeRevenue(c.Request.Context(), caller)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res.DTO())
}

func (h *TreasuryHandler) DistributeAdaptive(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	res, err := h.engine.AdaptiveDistribution(c.Request.Context(), caller)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res.DTO())
}

func (h *TreasuryHandler) Stats(c *gin.Context) {
	stats, err := h.engine.GetTreasuryStats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats.DTO())
}

// CheckRebalance GET /v1/treasury/rebalance, 只读，不检查冷却
func (h *TreasuryHandler) CheckRebalance(c *gin.Context) {
	check, err := h.engine.NeedsRebalancing(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, check.DTO())
}

func (h *TreasuryHandler) Rebalance(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	res, err := h.engine.RebalanceLiquidity(c.Request.Context(), caller)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res.DTO())
}

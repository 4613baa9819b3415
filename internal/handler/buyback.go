package handler

import (
	"net/http"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
)

type BuybackHandler struct {
	engine *service.Engine
}

func NewBuybackHandler(engine *service.Engine) *BuybackHandler {
	return &BuybackHandler{engine: engine}
}

func (h *BuybackHandler) Execute(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	res, err := h.engine.ExecuteBuyback(c.Request.Context(), caller)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res.DTO())
}

func (h *BuybackHandler) Emergency(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	res, err := h.engine.EmergencyBuyback(c.Request.Context(), caller)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, res.DTO())
}

// Pressure GET /v1/buyback/pressure?price=0.35
func (h *BuybackHandler) Pressure(c *gin.Context) {
	raw := c.Query("price")
	if raw == "" {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidRequest, "price query parameter is required"))
		return
	}
	price, ok := parseAmount(c, raw)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"price":        model.Amount(price),
		"pressure_bps": h.engine.CalculatePressure(price),
	})
}

func (h *BuybackHandler) Thresholds(c *gin.Context) {
	c.JSON(http.StatusOK, model.ThresholdDTOs(h.engine.GetPriceThresholds()))
}

func (h *BuybackHandler) Stats(c *gin.Context) {
	stats, err := h.engine.GetBuybackStats(c.Request.Context())
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, stats.DTO())
}

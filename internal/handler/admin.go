package handler

import (
	"net/http"
	"strconv"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/service"
	"github.com/gin-gonic/gin"
)

// AdminHandler 策略与能力管理。所有写操作在引擎里还要过 admin 能力检查。
type AdminHandler struct {
	engine *service.Engine
}

func NewAdminHandler(engine *service.Engine) *AdminHandler {
	return &AdminHandler{engine: engine}
}

func (h *AdminHandler) Policy(c *gin.Context) {
	c.JSON(http.StatusOK, h.engine.Policy().Document())
}

// UpdateThreshold PUT /v1/admin/thresholds/:index
func (h *AdminHandler) UpdateThreshold(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidRequest, "threshold index must be an integer"))
		return
	}
	var req model.ThresholdRequest
	if !bindJSON(c, &req) {
		return
	}
	price, ok := parseAmount(c, req.Price)
	if !ok {
		return
	}
	th := model.PriceThreshold{Price: price, Level: req.Level, Active: *req.Active}

	p, err := h.engine.UpdatePriceThreshold(c.Request.Context(), caller, index, th)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p.Document())
}

func (h *AdminHandler) UpdateAddresses(c *gin.Context) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req model.AddressesRequest
	if !bindJSON(c, &req) {
		return
	}
	if req.BurnSink == "" {
		req.BurnSink = h.engine.Policy().Addresses.BurnSink.Hex()
	}
	addrs, err := model.AddressesDocument{
		BurnSink:         req.BurnSink,
		RewardsPool:      req.RewardsPool,
		StakingPool:      req.StakingPool,
		LiquidityPool:    req.LiquidityPool,
		OperationsWallet: req.OperationsWallet,
	}.Addresses()
	if err != nil {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidConfig, err.Error()))
		return
	}

	p, err := h.engine.UpdateAddresses(c.Request.Context(), caller, addrs)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, p.Document())
}

func (h *AdminHandler) GrantRole(c *gin.Context) {
	h.changeRole(c, true)
}

func (h *AdminHandler) RevokeRole(c *gin.Context) {
	h.changeRole(c, false)
}

func (h *AdminHandler) changeRole(c *gin.Context, grant bool) {
	caller, ok := callerOf(c)
	if !ok {
		return
	}
	var req model.RoleRequest
	if !bindJSON(c, &req) {
		return
	}
	account, ok := parseAddress(c, req.Address)
	if !ok {
		return
	}
	role, ok := parseRole(c, req.Role)
	if !ok {
		return
	}

	ctx := c.Request.Context()
	var err error
	if grant {
		err = h.engine.GrantRole(ctx, caller, account, role)
	} else {
		err = h.engine.RevokeRole(ctx, caller, account, role)
	}
	if err != nil {
		c.Error(err)
		return
	}
	roles, err := h.engine.Roles(ctx, account)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.RolesDTO{Address: account, Roles: roles})
}

// Roles GET /v1/admin/roles/:address
func (h *AdminHandler) Roles(c *gin.Context) {
	account, ok := parseAddress(c, c.Param("address"))
	if !ok {
		return
	}
	roles, err := h.engine.Roles(c.Request.Context(), account)
	if err != nil {
		c.Error(err)
		return
	}
	c.JSON(http.StatusOK, model.RolesDTO{Address: account, Roles: roles})
}

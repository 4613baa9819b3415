package handler

import (
	"github.com/GoPolymarket/burngate/internal/middleware"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
)

// callerOf 取出 AuthMiddleware 设置的调用方
func callerOf(c *gin.Context) (common.Address, bool) {
	actor, ok := middleware.ActorFrom(c)
	if !ok {
		c.Error(apperrors.New(apperrors.ErrUnauthenticated, apperrors.CodeInvalidAPIKey, "unauthorized: missing actor context", nil))
		return common.Address{}, false
	}
	return actor.Address, true
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidRequest, err.Error()))
		return false
	}
	return true
}

// parseAmount 解析 token 单位的十进制字符串，例如 "100.5"
func parseAmount(c *gin.Context, raw string) (uint256.Int, bool) {
	v, err := units.Parse(raw)
	if err != nil {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidAmount, err.Error()))
		return uint256.Int{}, false
	}
	return v, true
}

func parseAddress(c *gin.Context, raw string) (common.Address, bool) {
	if !common.IsHexAddress(raw) {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidRequest, "invalid address "+raw))
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func parseRole(c *gin.Context, raw string) (model.Role, bool) {
	role, ok := model.ParseRole(raw)
	if !ok {
		c.Error(apperrors.Invalid(apperrors.CodeInvalidRequest, "unknown role "+raw))
		return "", false
	}
	return role, true
}

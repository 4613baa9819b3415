package service

import (
	"context"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
)

// Guard is the single authorization check run at the entry of every mutating operation.
type Guard struct {
	roles RoleRepo
}

func NewGuard(roles RoleRepo) *Guard {
	return &Guard{roles: roles}
}

func (g *Guard) Require(ctx context.Context, actor common.Address, role model.Role) error {
	ok, err := g.roles.Has(ctx, actor, role)
	if err != nil {
		return apperrors.Internal("role lookup failed", err)
	}
	if !ok {
		return apperrors.Unauthorized(string(role))
	}
	return nil
}

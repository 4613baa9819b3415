package service

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/burngate/internal/config"
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
)

// UpdatePriceThreshold replaces one entry of the threshold table. The new
// policy version applies to operations that start after the update.
func (e *Engine) UpdatePriceThreshold(ctx context.Context, caller common.Address, index int, th model.PriceThreshold) (*model.Policy, error) {
	if err := e.guard.Require(ctx, caller, model.RoleAdmin); err != nil {
		return nil, err
	}
	now := e.clock.Now()
	next, err := e.policies.Update(ctx, now, func(p *model.Policy) error {
		if index < 0 || index >= len(p.Thresholds) {
			return apperrors.Invalid(apperrors.CodeInvalidRequest,
				fmt.Sprintf("threshold index %d out of range [0, %d)", index, len(p.Thresholds)))
		}
		if err := p.ValidateThreshold(th); err != nil {
			return apperrors.Invalid(apperrors.CodeInvalidConfig, err.Error())
		}
		p.Thresholds[index] = th
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishPolicyEvent(model.NewEvent(model.EventThresholdUpdated, caller, now).
		With("index", fmt.Sprint(index)).
		With("price", units.Format(th.Price)).
		With("level", fmt.Sprint(th.Level)).
		With("active", fmt.Sprint(th.Active)), next)
	e.log.Info("price threshold updated", "index", index, "price", units.Format(th.Price),
		"level", th.Level, "active", th.Active, "policy_version", next.Version)
	return next, nil
}

// UpdateAddresses replaces the collaborator destinations.
func (e *Engine) UpdateAddresses(ctx context.Context, caller common.Address, addrs model.Addresses) (*model.Policy, error) {
	if err := e.guard.Require(ctx, caller, model.RoleAdmin); err != nil {
		return nil, err
	}
	if err := addrs.Validate(); err != nil {
		return nil, apperrors.Invalid(apperrors.CodeInvalidConfig, err.Error())
	}
	now := e.clock.Now()
	next, err := e.policies.Update(ctx, now, func(p *model.Policy) error {
		p.Addresses = addrs
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.publishPolicyEvent(model.NewEvent(model.EventAddressesUpdated, caller, now).
		With("burn_sink", addrs.BurnSink.Hex()).
		With("rewards_pool", addrs.RewardsPool.Hex()).
		With("staking_pool", addrs.StakingPool.Hex()).
		With("liquidity_pool", addrs.LiquidityPool.Hex()).
		With("operations_wallet", addrs.OperationsWallet.Hex()), next)
	e.log.Info("collaborator addresses updated", "policy_version", next.Version)
	return next, nil
}

func (e *Engine) GrantRole(ctx context.Context, caller, account common.Address, role model.Role) error {
	if err := e.guard.Require(ctx, caller, model.RoleAdmin); err != nil {
		return err
	}
	if account == (common.Address{}) {
		return apperrors.Invalid(apperrors.CodeInvalidRequest, "account address is required")
	}
	if err := e.roles.Grant(ctx, account, role); err != nil {
		return apperrors.Internal("grant role", err)
	}
	e.publishPolicyEvent(model.NewEvent(model.EventRoleGranted, caller, e.clock.Now()).
		With("account", account.Hex()).
		With("role", string(role)), e.policies.Current())
	e.log.Info("role granted", "account", account.Hex(), "role", role, "by", caller.Hex())
	return nil
}

// RevokeRole removes a grant. An admin cannot revoke its own admin role.
func (e *Engine) RevokeRole(ctx context.Context, caller, account common.Address, role model.Role) error {
	if err := e.guard.Require(ctx, caller, model.RoleAdmin); err != nil {
		return err
	}
	if account == caller && role == model.RoleAdmin {
		return apperrors.Invalid(apperrors.CodeInvalidRequest, "an admin cannot revoke its own admin role")
	}
	if err := e.roles.Revoke(ctx, account, role); err != nil {
		return apperrors.Internal("revoke role", err)
	}
	e.publishPolicyEvent(model.NewEvent(model.EventRoleRevoked, caller, e.clock.Now()).
		With("account", account.Hex()).
		With("role", string(role)), e.policies.Current())
	e.log.Info("role revoked", "account", account.Hex(), "role", role, "by", caller.Hex())
	return nil
}

// Roles lists the roles held by account.
func (e *Engine) Roles(ctx context.Context, account common.Address) ([]model.Role, error) {
	roles, err := e.roles.List(ctx, account)
	if err != nil {
		return nil, apperrors.Internal("list roles", err)
	}
	return roles, nil
}

func (e *Engine) publishPolicyEvent(ev *model.Event, p *model.Policy) {
	ev.PolicyVersion = p.Version
	if e.events != nil {
		e.events.Publish(ev)
	}
}

// SeedRoles grants configured roles at startup, bypassing the admin guard.
func SeedRoles(ctx context.Context, repo RoleRepo, account common.Address, roles []model.Role) error {
	for _, r := range roles {
		if err := repo.Grant(ctx, account, r); err != nil {
			return fmt.Errorf("seed role %s for %s: %w", r, account.Hex(), err)
		}
	}
	return nil
}

// SeedActorRoles grants the roles listed for each configured actor.
func SeedActorRoles(ctx context.Context, repo RoleRepo, actors []config.ActorConfig) error {
	for _, ac := range actors {
		roles := make([]model.Role, 0, len(ac.Roles))
		for _, raw := range ac.Roles {
			r, ok := model.ParseRole(raw)
			if !ok {
				return fmt.Errorf("actor %s: unknown role %q", ac.Name, raw)
			}
			roles = append(roles, r)
		}
		if err := SeedRoles(ctx, repo, common.HexToAddress(ac.Address), roles); err != nil {
			return err
		}
	}
	return nil
}

package service

import (
	"context"
	"fmt"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
)

// ComputeRebalance compares the liquidity ratio against the target band.
// An empty treasury never needs rebalancing.
func ComputeRebalance(t model.TreasuryState, p model.RebalancePolicy) model.RebalanceCheck {
	check := model.RebalanceCheck{TargetRatioBps: p.TargetRatioBps}
	ratio, ok := units.RatioBps(t.LiquidityBalance, t.TotalAssets)
	if !ok {
		return check
	}
	check.CurrentRatioBps = ratio

	var lower uint64
	if p.TargetRatioBps > p.ThresholdBps {
		lower = p.TargetRatioBps - p.ThresholdBps
	}
	upper := p.TargetRatioBps + p.ThresholdBps
	switch {
	case ratio < lower:
		check.ShouldRebalance = true
		check.AddLiquidity = true
	case ratio > upper:
		check.ShouldRebalance = true
	default:
		return check
	}
	target, err := units.MulBps(t.TotalAssets, p.TargetRatioBps)
	if err != nil {
		return model.RebalanceCheck{TargetRatioBps: p.TargetRatioBps, CurrentRatioBps: ratio}
	}
	check.Difference = units.AbsDiff(target, t.LiquidityBalance)
	return check
}

// NeedsRebalancing reports whether the committed liquidity ratio is out of band.
func (e *Engine) NeedsRebalancing(ctx context.Context) (model.RebalanceCheck, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return model.RebalanceCheck{}, err
	}
	return ComputeRebalance(st.Treasury, e.policies.Current().Rebalance), nil
}

// RebalanceLiquidity moves the treasury liquidity balance back to the target ratio.
func (e *Engine) RebalanceLiquidity(ctx context.Context, caller common.Address) (*model.RebalanceResult, error) {
	if err := e.guard.Require(ctx, caller, model.RoleRebalancer); err != nil {
		metrics.Rebalances.WithLabelValues("none", string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}
	var result *model.RebalanceResult
	direction := "none"
	err := e.transact(ctx, "rebalance", caller, func(tx *txn) error {
		res, err := e.rebalanceOn(tx)
		if err != nil {
			return err
		}
		if res.Check.AddLiquidity {
			direction = "add"
		} else {
			direction = "remove"
		}
		result = res
		return nil
	})
	metrics.Rebalances.WithLabelValues(direction, metrics.Outcome(string(apperrors.CodeOf(err)))).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) rebalanceOn(tx *txn) (*model.RebalanceResult, error) {
	rp := tx.policy.Rebalance
	t := &tx.next.Treasury

	cooldown := rp.Cooldown
	if cooldown < model.MinRebalanceCooldown {
		cooldown = model.MinRebalanceCooldown
	}
	if !t.LastRebalance.IsZero() {
		ends := t.LastRebalance.Add(cooldown)
		if tx.now.Before(ends) {
			return nil, apperrors.NotYet(apperrors.CodeCooldownActive,
				fmt.Sprintf("rebalance cooldown active until %s", ends.Format(time.RFC3339))).
				WithRetryAfter(ends.Sub(tx.now))
		}
	}

	check := ComputeRebalance(*t, rp)
	if !check.ShouldRebalance {
		return nil, apperrors.NotYet(apperrors.CodeRebalanceNotNeeded,
			fmt.Sprintf("liquidity ratio %d bps is within %d +/- %d", check.CurrentRatioBps, rp.TargetRatioBps, rp.ThresholdBps))
	}
	if check.Difference.IsZero() || check.Difference.Lt(&rp.MinAdjustment) {
		return nil, apperrors.NotYet(apperrors.CodeBelowMinAdjustment,
			fmt.Sprintf("adjustment %s below minimum %s", units.Format(check.Difference), units.Format(rp.MinAdjustment)))
	}

	before := t.LiquidityBalance
	if check.AddLiquidity {
		after := before
		after.Add(&after, &check.Difference)
		if after.Gt(&t.TotalAssets) {
			return nil, apperrors.Internal("rebalance would exceed total assets", nil)
		}
	} else if check.Difference.Gt(&before) {
		return nil, apperrors.Internal("rebalance would remove more than the liquidity balance", nil)
	}

	if err := e.moveLiquidity(tx.ctx, check); err != nil {
		return nil, err
	}
	tx.external = true

	if check.AddLiquidity {
		t.LiquidityBalance.Add(&t.LiquidityBalance, &check.Difference)
	} else {
		t.LiquidityBalance.Sub(&t.LiquidityBalance, &check.Difference)
	}
	t.LastRebalance = tx.now

	direction := "remove"
	if check.AddLiquidity {
		direction = "add"
	}
	tx.emit(model.EventLiquidityRebalanced).
		With("direction", direction).
		With("difference", units.Format(check.Difference)).
		With("ratio_bps", fmt.Sprint(check.CurrentRatioBps)).
		With("target_bps", fmt.Sprint(check.TargetRatioBps)).
		With("liquidity_before", units.Format(before)).
		With("liquidity_after", units.Format(t.LiquidityBalance))

	e.log.Info("liquidity rebalanced",
		"direction", direction,
		"difference", units.Format(check.Difference),
		"ratio_bps", check.CurrentRatioBps,
		"target_bps", check.TargetRatioBps)

	return &model.RebalanceResult{
		Check:  check,
		Before: before,
		After:  t.LiquidityBalance,
		At:     tx.now,
	}, nil
}

func (e *Engine) moveLiquidity(ctx context.Context, check model.RebalanceCheck) error {
	mctx, cancel := context.WithTimeout(ctx, e.venueTimeout)
	defer cancel()
	var err error
	if check.AddLiquidity {
		err = e.mover.AddLiquidity(mctx, check.Difference)
	} else {
		err = e.mover.RemoveLiquidity(mctx, check.Difference)
	}
	if err != nil {
		return apperrors.External(apperrors.CodeLiquidityMoveFailed, "liquidity venue rejected the move", err)
	}
	return nil
}

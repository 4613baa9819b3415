package service

import (
	"context"
	"fmt"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/GoPolymarket/burngate/internal/pkg/metrics"
	"github.com/GoPolymarket/burngate/internal/pkg/units"
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const (
	modeFixed    = "fixed"
	modeAdaptive = "adaptive"
)

// SplitFixed splits balance by shares. Each bucket is floored and the integer
// remainder goes to the bucket with the largest share (earliest in
// buyback, staking, liquidity, operations order on ties), so the buckets
// always sum to balance exactly.
func SplitFixed(balance uint256.Int, shares model.DistributionShares) (model.Allocation, error) {
	if shares.Sum() != model.BpsDenominator {
		return model.Allocation{}, apperrors.Invalid(apperrors.CodeInvalidConfig,
			fmt.Sprintf("distribution shares sum to %d", shares.Sum()))
	}
	bps := [4]uint64{shares.Buyback, shares.Staking, shares.Liquidity, shares.Operations}
	var parts [4]uint256.Int
	var sum uint256.Int
	largest := 0
	for i, b := range bps {
		v, err := units.MulBps(balance, b)
		if err != nil {
			return model.Allocation{}, apperrors.Internal("split balance", err)
		}
		parts[i] = v
		sum.Add(&sum, &v)
		if b > bps[largest] {
			largest = i
		}
	}
	var remainder uint256.Int
	remainder.Sub(&balance, &sum)
	parts[largest].Add(&parts[largest], &remainder)
	return model.Allocation{
		Buyback:    parts[0],
		Staking:    parts[1],
		Liquidity:  parts[2],
		Operations: parts[3],
	}, nil
}

// AdaptiveShares picks the buyback share for price. Among brackets with
// price < Below the one with the lowest bound wins; no match keeps the static
// shares. Staking absorbs the difference and may not fall below the floor.
func AdaptiveShares(p *model.Policy, price uint256.Int) (model.DistributionShares, error) {
	var chosen *model.AdaptiveBracket
	for i := range p.Adaptive {
		br := &p.Adaptive[i]
		if !price.Lt(&br.Below) {
			continue
		}
		if chosen == nil || br.Below.Lt(&chosen.Below) {
			chosen = br
		}
	}
	if chosen == nil {
		return p.Shares, nil
	}
	shares, err := p.Shares.WithAdaptiveBuyback(chosen.BuybackBps, p.StakingFloorBps)
	if err != nil {
		return model.DistributionShares{}, apperrors.Invalid(apperrors.CodeInvalidConfig, err.Error())
	}
	return shares, nil
}

// DistributeRevenue splits the idle treasury balance by the static shares.
func (e *Engine) DistributeRevenue(ctx context.Context, caller common.Address) (*model.DistributionResult, error) {
	return e.distribute(ctx, caller, modeFixed)
}

// AdaptiveDistribution is DistributeRevenue with the buyback share chosen by
// the current price bracket.
func (e *Engine) AdaptiveDistribution(ctx context.Context, caller common.Address) (*model.DistributionResult, error) {
	return e.distribute(ctx, caller, modeAdaptive)
}

func (e *Engine) distribute(ctx context.Context, caller common.Address, mode string) (*model.DistributionResult, error) {
	if err := e.guard.Require(ctx, caller, model.RoleOperator); err != nil {
		metrics.Distributions.WithLabelValues(mode, string(apperrors.CodeOf(err))).Inc()
		return nil, err
	}
	var result *model.DistributionResult
	err := e.transact(ctx, "distribute_"+mode, caller, func(tx *txn) error {
		res, err := e.distributeOn(tx, mode)
		if err != nil {
			return err
		}
		result = res
		return nil
	})
	metrics.Distributions.WithLabelValues(mode, metrics.Outcome(string(apperrors.CodeOf(err)))).Inc()
	if err != nil {
		return nil, err
	}
	return result, nil
}

func (e *Engine) distributeOn(tx *txn, mode string) (*model.DistributionResult, error) {
	balance := tx.next.Treasury.Idle()
	if balance.IsZero() {
		return nil, apperrors.NotYet(apperrors.CodeNothingToDistribute, "treasury has no idle balance")
	}

	res := &model.DistributionResult{Mode: mode, Balance: balance, Shares: tx.policy.Shares, At: tx.now}
	if mode == modeAdaptive {
		quote, err := e.latestPrice(tx.ctx)
		if err != nil {
			return nil, err
		}
		if res.Shares, err = AdaptiveShares(tx.policy, quote.Price); err != nil {
			return nil, err
		}
		price := quote.Price
		res.Price = &price
	}

	alloc, err := SplitFixed(balance, res.Shares)
	if err != nil {
		return nil, err
	}
	res.Allocation = alloc

	st := tx.next
	var leaving uint256.Int
	leaving.Add(&alloc.Buyback, &alloc.Staking)
	leaving.Add(&leaving, &alloc.Operations)
	st.Treasury.TotalAssets.Sub(&st.Treasury.TotalAssets, &leaving)
	st.Treasury.LiquidityBalance.Add(&st.Treasury.LiquidityBalance, &alloc.Liquidity)
	st.Treasury.TotalDistributed.Add(&st.Treasury.TotalDistributed, &balance)
	st.Treasury.LastDistribution = tx.now

	addrs := tx.policy.Addresses
	if err := st.Credit(model.AssetHeld, addrs.StakingPool, alloc.Staking); err != nil {
		return nil, apperrors.Internal("credit staking pool", err)
	}
	if err := st.Credit(model.AssetHeld, addrs.OperationsWallet, alloc.Operations); err != nil {
		return nil, apperrors.Internal("credit operations wallet", err)
	}

	evType := model.EventTreasuryDistributed
	if mode == modeAdaptive {
		evType = model.EventAdaptiveDistributed
	}
	ev := tx.emit(evType).
		With("balance", units.Format(balance)).
		With("buyback", units.Format(alloc.Buyback)).
		With("staking", units.Format(alloc.Staking)).
		With("liquidity", units.Format(alloc.Liquidity)).
		With("operations", units.Format(alloc.Operations)).
		With("buyback_bps", fmt.Sprint(res.Shares.Buyback)).
		With("staking_bps", fmt.Sprint(res.Shares.Staking))
	if res.Price != nil {
		ev.With("price", units.Format(*res.Price))
	}

	if !alloc.Buyback.IsZero() {
		if _, err := e.ingestOn(tx, model.TagOf(model.TreasurySource), alloc.Buyback); err != nil {
			return nil, err
		}
		res.Buyback, res.SkipReason = e.tryBuyback(tx, triggerTreasury)
	}

	e.log.Info("treasury distributed",
		"mode", mode,
		"balance", units.Format(balance),
		"buyback", units.Format(alloc.Buyback),
		"staking", units.Format(alloc.Staking),
		"liquidity", units.Format(alloc.Liquidity),
		"operations", units.Format(alloc.Operations))
	return res, nil
}

// GetTreasuryStats reports the committed treasury state.
func (e *Engine) GetTreasuryStats(ctx context.Context) (model.TreasuryStats, error) {
	st, err := e.snapshot(ctx)
	if err != nil {
		return model.TreasuryStats{}, err
	}
	return treasuryStats(st.Treasury), nil
}

func treasuryStats(t model.TreasuryState) model.TreasuryStats {
	ratio, _ := units.RatioBps(t.LiquidityBalance, t.TotalAssets)
	return model.TreasuryStats{
		TotalAssets:      t.TotalAssets,
		LiquidityBalance: t.LiquidityBalance,
		Idle:             t.Idle(),
		LiquidityRatio:   ratio,
		TotalDeposited:   t.TotalDeposited,
		TotalDistributed: t.TotalDistributed,
		LastRebalance:    t.LastRebalance,
		LastDistribution: t.LastDistribution,
	}
}

package service

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeRebalance(t *testing.T) {
	rp := testPolicy().Rebalance
	cases := []struct {
		name      string
		total     string
		liquidity string
		should    bool
		add       bool
		diff      string
	}{
		{"empty treasury", "0", "0", false, false, "0"},
		{"below band", "1000", "100", true, true, "200"},
		{"lower edge", "1000", "250", false, false, "0"},
		{"in band", "1000", "320", false, false, "0"},
		{"upper edge", "1000", "350", false, false, "0"},
		{"above band", "1000", "600", true, false, "300"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			check := ComputeRebalance(model.TreasuryState{
				TotalAssets:      amt(tc.total),
				LiquidityBalance: amt(tc.liquidity),
			}, rp)
			assert.Equal(t, tc.should, check.ShouldRebalance)
			assert.Equal(t, tc.add, check.AddLiquidity)
			assert.Equal(t, amt(tc.diff), check.Difference)
			assert.Equal(t, rp.TargetRatioBps, check.TargetRatioBps)
		})
	}
}

func TestRebalanceLiquidityLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.DepositTreasury(ctx, sourceAddr, amt("1000"))
	require.NoError(t, err)

	check, err := h.engine.NeedsRebalancing(ctx)
	require.NoError(t, err)
	assert.True(t, check.ShouldRebalance)
	assert.True(t, check.AddLiquidity)

	res, err := h.engine.RebalanceLiquidity(ctx, rebalancerAddr)
	require.NoError(t, err)
	assert.Equal(t, amt("300"), res.After)
	require.Len(t, h.mover.added, 1)
	assert.Equal(t, amt("300"), h.mover.added[0])

	st := h.load(t)
	assert.Equal(t, amt("300"), st.Treasury.LiquidityBalance)
	assert.Equal(t, h.clock.Now(), st.Treasury.LastRebalance)
	assert.Len(t, h.events.ofType(model.EventLiquidityRebalanced), 1)

	// push the ratio out of band again, the cooldown still applies
	_, err = h.engine.DepositTreasury(ctx, sourceAddr, amt("1000"))
	require.NoError(t, err)
	h.clock.Advance(23 * time.Hour)
	_, err = h.engine.RebalanceLiquidity(ctx, rebalancerAddr)
	assert.Equal(t, apperrors.CodeCooldownActive, apperrors.CodeOf(err))
	assert.Equal(t, time.Hour, apperrors.Wrap(err).RetryAfter)

	h.clock.Advance(time.Hour)
	res, err = h.engine.RebalanceLiquidity(ctx, rebalancerAddr)
	require.NoError(t, err)
	assert.Equal(t, amt("600"), res.After)
}

func TestRebalanceTemporalConditions(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.RebalanceLiquidity(ctx, rebalancerAddr)
	assert.Equal(t, apperrors.CodeRebalanceNotNeeded, apperrors.CodeOf(err))

	// 30% of 1 is far below the 10 unit minimum adjustment
	_, err = h.engine.DepositTreasury(ctx, sourceAddr, amt("1"))
	require.NoError(t, err)
	_, err = h.engine.RebalanceLiquidity(ctx, rebalancerAddr)
	assert.Equal(t, apperrors.CodeBelowMinAdjustment, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsTemporal(err))
	assert.Empty(t, h.mover.added)
}

func TestRebalanceMoverFailureIsAtomic(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	_, err := h.engine.DepositTreasury(ctx, sourceAddr, amt("1000"))
	require.NoError(t, err)
	before := h.load(t)

	h.mover.err = assert.AnError
	_, err = h.engine.RebalanceLiquidity(ctx, rebalancerAddr)
	assert.Equal(t, apperrors.CodeLiquidityMoveFailed, apperrors.CodeOf(err))
	assert.True(t, apperrors.IsType(err, apperrors.ErrExternal))
	assert.Equal(t, before, h.load(t))
}

func TestRebalanceRequiresRebalancer(t *testing.T) {
	h := newHarness(t)
	_, err := h.engine.RebalanceLiquidity(context.Background(), operatorAddr)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthorization))
}

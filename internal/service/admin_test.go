package service

import (
	"context"
	"testing"
	"time"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/GoPolymarket/burngate/internal/pkg/apperrors"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpdatePriceThreshold(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	p, err := h.engine.UpdatePriceThreshold(ctx, adminAddr, 0, model.PriceThreshold{Price: amt("0.60"), Level: 2, Active: true})
	require.NoError(t, err)
	assert.Equal(t, uint64(2), p.Version)
	assert.Equal(t, amt("0.60"), h.engine.GetPriceThresholds()[0].Price)
	assert.Equal(t, uint64(5000+500*2), h.engine.CalculatePressure(amt("0.55")))

	events := h.events.ofType(model.EventThresholdUpdated)
	require.Len(t, events, 1)
	assert.Equal(t, uint64(2), events[0].PolicyVersion)
}

func TestUpdatePriceThresholdValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	cases := map[string]struct {
		index int
		th    model.PriceThreshold
		code  apperrors.Code
	}{
		"index out of range": {index: 4, th: model.PriceThreshold{Price: amt("0.1"), Level: 1}, code: apperrors.CodeInvalidRequest},
		"negative index":     {index: -1, th: model.PriceThreshold{Price: amt("0.1"), Level: 1}, code: apperrors.CodeInvalidRequest},
		"level above max":    {index: 0, th: model.PriceThreshold{Price: amt("0.1"), Level: 6}, code: apperrors.CodeInvalidConfig},
		"zero price":         {index: 0, th: model.PriceThreshold{Level: 1}, code: apperrors.CodeInvalidConfig},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := h.engine.UpdatePriceThreshold(ctx, adminAddr, tc.index, tc.th)
			assert.Equal(t, tc.code, apperrors.CodeOf(err))
		})
	}
	assert.Equal(t, uint64(1), h.engine.Policy().Version)

	_, err := h.engine.UpdatePriceThreshold(ctx, operatorAddr, 0, model.PriceThreshold{Price: amt("0.1"), Level: 1})
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthorization))
}

func TestUpdateAddressesRedirectsCredits(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	addrs := h.engine.Policy().Addresses
	newRewards := common.HexToAddress("0x0000000000000000000000000000000000000c01")
	addrs.RewardsPool = newRewards
	_, err := h.engine.UpdateAddresses(ctx, adminAddr, addrs)
	require.NoError(t, err)

	_, err = h.engine.Ingest(ctx, sourceAddr, nftSales, amt("10000"))
	require.NoError(t, err)
	st := h.load(t)
	assert.Equal(t, amt("6000"), st.CreditOf(model.AssetToken, newRewards))
	oldRewards := st.CreditOf(model.AssetToken, rewardsAddr)
	assert.True(t, oldRewards.IsZero())

	addrs.StakingPool = common.Address{}
	_, err = h.engine.UpdateAddresses(ctx, adminAddr, addrs)
	assert.Equal(t, apperrors.CodeInvalidConfig, apperrors.CodeOf(err))
}

func TestGrantAndRevokeRoles(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.engine.ExecuteBuyback(ctx, strangerAddr)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthorization))

	require.NoError(t, h.engine.GrantRole(ctx, adminAddr, strangerAddr, model.RoleOperator))
	roles, err := h.engine.Roles(ctx, strangerAddr)
	require.NoError(t, err)
	assert.Equal(t, []model.Role{model.RoleOperator}, roles)

	_, err = h.engine.ExecuteBuyback(ctx, strangerAddr)
	assert.Equal(t, apperrors.CodeInsufficientFunds, apperrors.CodeOf(err))

	require.NoError(t, h.engine.RevokeRole(ctx, adminAddr, strangerAddr, model.RoleOperator))
	_, err = h.engine.ExecuteBuyback(ctx, strangerAddr)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthorization))

	err = h.engine.RevokeRole(ctx, adminAddr, adminAddr, model.RoleAdmin)
	assert.True(t, apperrors.IsType(err, apperrors.ErrValidation))

	err = h.engine.GrantRole(ctx, operatorAddr, strangerAddr, model.RoleAdmin)
	assert.True(t, apperrors.IsType(err, apperrors.ErrAuthorization))

	assert.Len(t, h.events.ofType(model.EventRoleGranted), 1)
	assert.Len(t, h.events.ofType(model.EventRoleRevoked), 1)
}

func TestPolicyStoreKeepsSnapshotsImmutable(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	old := h.engine.Policy()
	_, err := h.engine.UpdatePriceThreshold(ctx, adminAddr, 1, model.PriceThreshold{Price: amt("0.41"), Level: 5, Active: false})
	require.NoError(t, err)

	assert.Equal(t, amt("0.40"), old.Thresholds[1].Price)
	assert.Equal(t, uint64(1), old.Version)
	assert.False(t, h.engine.Policy().Thresholds[1].Active)
}

func TestPolicyStoreFollowsSharedRepo(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryPolicyRepo()
	a, err := NewPolicyStore(ctx, repo, testPolicy())
	require.NoError(t, err)
	b, err := NewPolicyStore(ctx, repo, testPolicy())
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	_, err = a.Update(ctx, now, func(p *model.Policy) error {
		p.Thresholds[0].Active = false
		return nil
	})
	require.NoError(t, err)

	// b 还停留在 v1，直到 Refresh
	assert.Equal(t, uint64(1), b.Current().Version)
	got, err := b.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), got.Version)
	assert.False(t, b.Current().Thresholds[0].Active)

	// 旧版本库不能覆盖新版本
	_, err = a.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), a.Current().Version)

	// 另一实例写入后，b 的 Update 基于最新版本，不会版本冲突
	_, err = a.Update(ctx, now, func(p *model.Policy) error {
		p.Thresholds[1].Active = false
		return nil
	})
	require.NoError(t, err)
	next, err := b.Update(ctx, now, func(p *model.Policy) error {
		p.Thresholds[2].Active = false
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(4), next.Version)
	assert.False(t, next.Thresholds[0].Active)
	assert.False(t, next.Thresholds[1].Active)
	assert.False(t, next.Thresholds[2].Active)
}

func TestEngineSeesPolicyFromOtherInstance(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	// 第二个实例共享同一个策略库
	repo := h.engine.policies.repo
	other, err := NewPolicyStore(ctx, repo, nil)
	require.NoError(t, err)
	_, err = other.Update(ctx, h.clock.Now(), func(p *model.Policy) error {
		p.Thresholds[3].Active = false
		return nil
	})
	require.NoError(t, err)

	// 引擎没有写过策略，transact 拿锁后也要读到新的分成比例
	_, err = other.Update(ctx, h.clock.Now(), func(p *model.Policy) error {
		p.Sources[nftSales] = model.SourceRate{Name: "NFT_SALES", BuybackBps: 5000}
		return nil
	})
	require.NoError(t, err)
	res, err := h.engine.Ingest(ctx, sourceAddr, nftSales, amt("10"))
	require.NoError(t, err)
	assert.Equal(t, amt("5"), res.Allocated)
	assert.Equal(t, amt("5"), res.ToTreasury)
	assert.Equal(t, uint64(3), h.engine.Policy().Version)

	_, err = h.engine.UpdatePriceThreshold(ctx, adminAddr, 0, model.PriceThreshold{Price: amt("0.55"), Level: 1, Active: true})
	require.NoError(t, err)

	p := h.engine.Policy()
	assert.Equal(t, uint64(4), p.Version)
	assert.False(t, p.Thresholds[3].Active)
	assert.Equal(t, amt("0.55"), p.Thresholds[0].Price)
}

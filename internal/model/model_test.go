package model

import (
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPolicy() *Policy {
	return &Policy{
		Version: 1,
		Buyback: BuybackPolicy{
			MinimumAmount:    *uint256.NewInt(100),
			Cooldown:         time.Hour,
			BasePressureBps:  5000,
			MaxPressureBps:   8000,
			IncreaseRateBps:  500,
			MaxPressureLevel: 5,
			BurnRatioBps:     5000,
			EmergencyDropBps: 2000,
		},
		Thresholds: []PriceThreshold{{Price: *uint256.NewInt(50), Level: 1, Active: true}},
		Sources: map[SourceTag]SourceRate{
			TagOf("NFT_SALES"): {Name: "NFT_SALES", BuybackBps: 3000},
		},
		Shares:          DistributionShares{Buyback: 2000, Staking: 3000, Liquidity: 3000, Operations: 2000},
		Adaptive:        []AdaptiveBracket{{Below: *uint256.NewInt(50), BuybackBps: 3000}},
		StakingFloorBps: 1000,
		Rebalance: RebalancePolicy{
			TargetRatioBps: 3000,
			ThresholdBps:   500,
			Cooldown:       24 * time.Hour,
		},
		Addresses: Addresses{
			BurnSink:         BurnSinkAddress,
			RewardsPool:      common.HexToAddress("0x01"),
			StakingPool:      common.HexToAddress("0x02"),
			LiquidityPool:    common.HexToAddress("0x03"),
			OperationsWallet: common.HexToAddress("0x04"),
		},
	}
}

func TestSourceTagParsing(t *testing.T) {
	byName, err := ParseSourceTag(" nft_sales ")
	require.NoError(t, err)
	assert.Equal(t, TagOf("NFT_SALES"), byName)

	byHex, err := ParseSourceTag(byName.Hex())
	require.NoError(t, err)
	assert.Equal(t, byName, byHex)

	_, err = ParseSourceTag("0x1234")
	assert.Error(t, err)
}

func TestStateCloneIsIndependent(t *testing.T) {
	s := NewState()
	tag := TagOf("NFT_SALES")
	s.Streams[tag] = RevenueStream{Tag: tag, TotalCollected: *uint256.NewInt(10)}
	require.NoError(t, s.Credit(AssetToken, BurnSinkAddress, *uint256.NewInt(5)))

	c := s.Clone()
	stream := c.Streams[tag]
	stream.TotalCollected = *uint256.NewInt(99)
	c.Streams[tag] = stream
	c.AccumulatedFunds = *uint256.NewInt(7)
	require.NoError(t, c.Credit(AssetToken, BurnSinkAddress, *uint256.NewInt(1)))

	collected := s.Streams[tag].TotalCollected
	assert.Equal(t, uint64(10), collected.Uint64())
	assert.True(t, s.AccumulatedFunds.IsZero())
	burned := s.CreditOf(AssetToken, BurnSinkAddress)
	assert.Equal(t, uint64(5), burned.Uint64())
}

func TestCheckInvariants(t *testing.T) {
	s := NewState()
	tag := TagOf("NFT_SALES")
	s.Streams[tag] = RevenueStream{Tag: tag, TotalCollected: *uint256.NewInt(100), BuybackAllocation: *uint256.NewInt(30)}
	s.AccumulatedFunds = *uint256.NewInt(10)
	s.TotalSpent = *uint256.NewInt(20)
	assert.NoError(t, s.CheckInvariants())

	s.AccumulatedFunds = *uint256.NewInt(11)
	assert.ErrorContains(t, s.CheckInvariants(), "conservation")

	s.AccumulatedFunds = *uint256.NewInt(10)
	s.Treasury.TotalAssets = *uint256.NewInt(1)
	s.Treasury.LiquidityBalance = *uint256.NewInt(2)
	assert.ErrorContains(t, s.CheckInvariants(), "liquidity")
}

func TestPolicyValidate(t *testing.T) {
	require.NoError(t, testPolicy().Validate())

	p := testPolicy()
	p.Shares.Operations = 1999
	assert.ErrorContains(t, p.Validate(), "sum")

	p = testPolicy()
	p.Thresholds[0].Level = 6
	assert.ErrorContains(t, p.Validate(), "pressure level")

	p = testPolicy()
	p.Rebalance.Cooldown = time.Hour
	assert.ErrorContains(t, p.Validate(), "cooldown")

	// 2000 static buyback + 2500 extra would leave staking at 500, below the 1000 floor
	p = testPolicy()
	p.Adaptive = append(p.Adaptive, AdaptiveBracket{Below: *uint256.NewInt(10), BuybackBps: 4500})
	assert.ErrorContains(t, p.Validate(), "floor")
}

func TestWithAdaptiveBuyback(t *testing.T) {
	static := DistributionShares{Buyback: 2000, Staking: 3000, Liquidity: 3000, Operations: 2000}
	for _, bps := range []uint64{0, 1000, 2000, 3000, 3500, 4000} {
		out, err := static.WithAdaptiveBuyback(bps, 1000)
		require.NoError(t, err, "bps=%d", bps)
		assert.Equal(t, BpsDenominator, out.Sum())
		assert.Equal(t, bps, out.Buyback)
		assert.Equal(t, static.Liquidity, out.Liquidity)
		assert.Equal(t, static.Operations, out.Operations)
	}

	// would underflow staking without the guard
	_, err := static.WithAdaptiveBuyback(5500, 0)
	assert.Error(t, err)
}

func TestPolicyDocumentRoundTrip(t *testing.T) {
	p := testPolicy()
	doc := p.Document()
	back, err := doc.Policy()
	require.NoError(t, err)
	assert.Equal(t, p.Buyback, back.Buyback)
	assert.Equal(t, p.Thresholds, back.Thresholds)
	assert.Equal(t, p.Sources, back.Sources)
	assert.Equal(t, p.Adaptive, back.Adaptive)
	assert.Equal(t, p.Addresses, back.Addresses)
	assert.Equal(t, p.Rebalance, back.Rebalance)
}

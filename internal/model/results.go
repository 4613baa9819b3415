package model

import (
	"time"

	"github.com/holiman/uint256"
)

// PriceQuote is one oracle answer, scaled to 18 decimals.
type PriceQuote struct {
	Price     uint256.Int
	Timestamp time.Time
	Source    string
}

type BuybackResult struct {
	Price        uint256.Int
	PressureBps  uint64
	Spent        uint256.Int
	TokensBought uint256.Int
	Burned       uint256.Int
	Rewarded     uint256.Int
	Emergency    bool
	ExecutedAt   time.Time
}

type IngestResult struct {
	Source     string
	Amount     uint256.Int
	Allocated  uint256.Int
	ToTreasury uint256.Int
	Buyback    *BuybackResult
	// SkipReason is the code of the swallowed buyback attempt, if one was made and failed.
	SkipReason string
}

// Allocation is one split of a treasury balance.
type Allocation struct {
	Buyback    uint256.Int
	Staking    uint256.Int
	Liquidity  uint256.Int
	Operations uint256.Int
}

func (a Allocation) Total() uint256.Int {
	var out uint256.Int
	out.Add(&a.Buyback, &a.Staking)
	out.Add(&out, &a.Liquidity)
	out.Add(&out, &a.Operations)
	return out
}

type DistributionResult struct {
	Mode       string
	Balance    uint256.Int
	Shares     DistributionShares
	Allocation Allocation
	Price      *uint256.Int
	Buyback    *BuybackResult
	SkipReason string
	At         time.Time
}

type RebalanceCheck struct {
	ShouldRebalance bool
	AddLiquidity    bool
	CurrentRatioBps uint64
	TargetRatioBps  uint64
	Difference      uint256.Int
}

type RebalanceResult struct {
	Check  RebalanceCheck
	Before uint256.Int
	After  uint256.Int
	At     time.Time
}

type TreasuryStats struct {
	TotalAssets      uint256.Int
	LiquidityBalance uint256.Int
	Idle             uint256.Int
	LiquidityRatio   uint64
	TotalDeposited   uint256.Int
	TotalDistributed uint256.Int
	LastRebalance    time.Time
	LastDistribution time.Time
}

type BuybackStats struct {
	AccumulatedFunds uint256.Int
	TotalSpent       uint256.Int
	Executions       uint64
	TokensBought     uint256.Int
	TokensBurned     uint256.Int
	TokensRewarded   uint256.Int
	LastBuybackTime  time.Time
	LastPrice        uint256.Int
	NextEligibleAt   time.Time
}

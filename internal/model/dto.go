package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/shopspring/decimal"
)

// IngestRequest is the body of POST /v1/revenue. Amount is in token units.
type IngestRequest struct {
	Source string `json:"source" binding:"required"`
	Amount string `json:"amount" binding:"required"`
}

type AmountRequest struct {
	Amount string `json:"amount" binding:"required"`
}

type ThresholdRequest struct {
	Price  string `json:"price" binding:"required"`
	Level  uint64 `json:"level" binding:"required"`
	Active *bool  `json:"active" binding:"required"`
}

type AddressesRequest struct {
	BurnSink         string `json:"burn_sink"`
	RewardsPool      string `json:"rewards_pool" binding:"required"`
	StakingPool      string `json:"staking_pool" binding:"required"`
	LiquidityPool    string `json:"liquidity_pool" binding:"required"`
	OperationsWallet string `json:"operations_wallet" binding:"required"`
}

type RoleRequest struct {
	Address string `json:"address" binding:"required"`
	Role    string `json:"role" binding:"required"`
}

// Amount renders fixed-point values as token-unit decimal strings.
func Amount(v uint256.Int) string {
	return decimal.NewFromBigInt(v.ToBig(), -18).String()
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	u := t.UTC()
	return &u
}

type StreamDTO struct {
	Tag               string     `json:"tag"`
	Name              string     `json:"name,omitempty"`
	TotalCollected    string     `json:"total_collected"`
	BuybackAllocation string     `json:"buyback_allocation"`
	LastUpdateTime    *time.Time `json:"last_update_time,omitempty"`
}

func (s RevenueStream) DTO() StreamDTO {
	return StreamDTO{
		Tag:               s.Tag.Hex(),
		Name:              s.Name,
		TotalCollected:    Amount(s.TotalCollected),
		BuybackAllocation: Amount(s.BuybackAllocation),
		LastUpdateTime:    optionalTime(s.LastUpdateTime),
	}
}

type ThresholdDTO struct {
	Index  int    `json:"index"`
	Price  string `json:"price"`
	Level  uint64 `json:"level"`
	Active bool   `json:"active"`
}

func ThresholdDTOs(ths []PriceThreshold) []ThresholdDTO {
	out := make([]ThresholdDTO, 0, len(ths))
	for i, th := range ths {
		out = append(out, ThresholdDTO{Index: i, Price: Amount(th.Price), Level: th.Level, Active: th.Active})
	}
	return out
}

type BuybackDTO struct {
	Price        string    `json:"price"`
	PressureBps  uint64    `json:"pressure_bps"`
	Spent        string    `json:"spent"`
	TokensBought string    `json:"tokens_bought"`
	Burned       string    `json:"burned"`
	Rewarded     string    `json:"rewarded"`
	Emergency    bool      `json:"emergency"`
	ExecutedAt   time.Time `json:"executed_at"`
}

func (r *BuybackResult) DTO() *BuybackDTO {
	if r == nil {
		return nil
	}
	return &BuybackDTO{
		Price:        Amount(r.Price),
		PressureBps:  r.PressureBps,
		Spent:        Amount(r.Spent),
		TokensBought: Amount(r.TokensBought),
		Burned:       Amount(r.Burned),
		Rewarded:     Amount(r.Rewarded),
		Emergency:    r.Emergency,
		ExecutedAt:   r.ExecutedAt.UTC(),
	}
}

type IngestDTO struct {
	Source     string      `json:"source"`
	Amount     string      `json:"amount"`
	Allocated  string      `json:"allocated"`
	ToTreasury string      `json:"to_treasury"`
	Buyback    *BuybackDTO `json:"buyback,omitempty"`
	SkipReason string      `json:"buyback_skipped,omitempty"`
}

func (r *IngestResult) DTO() IngestDTO {
	return IngestDTO{
		Source:     r.Source,
		Amount:     Amount(r.Amount),
		Allocated:  Amount(r.Allocated),
		ToTreasury: Amount(r.ToTreasury),
		Buyback:    r.Buyback.DTO(),
		SkipReason: r.SkipReason,
	}
}

type AllocationDTO struct {
	Buyback    string `json:"buyback"`
	Staking    string `json:"staking"`
	Liquidity  string `json:"liquidity"`
	Operations string `json:"operations"`
}

type DistributionDTO struct {
	Mode       string             `json:"mode"`
	Balance    string             `json:"balance"`
	Shares     DistributionShares `json:"shares_bps"`
	Allocation AllocationDTO      `json:"allocation"`
	Price      string             `json:"price,omitempty"`
	Buyback    *BuybackDTO        `json:"buyback,omitempty"`
	SkipReason string             `json:"buyback_skipped,omitempty"`
	At         time.Time          `json:"at"`
}

func (r *DistributionResult) DTO() DistributionDTO {
	dto := DistributionDTO{
		Mode:    r.Mode,
		Balance: Amount(r.Balance),
		Shares:  r.Shares,
		Allocation: AllocationDTO{
			Buyback:    Amount(r.Allocation.Buyback),
			Staking:    Amount(r.Allocation.Staking),
			Liquidity:  Amount(r.Allocation.Liquidity),
			Operations: Amount(r.Allocation.Operations),
		},
		Buyback:    r.Buyback.DTO(),
		SkipReason: r.SkipReason,
		At:         r.At.UTC(),
	}
	if r.Price != nil {
		dto.Price = Amount(*r.Price)
	}
	return dto
}

type RebalanceCheckDTO struct {
	ShouldRebalance bool   `json:"should_rebalance"`
	AddLiquidity    bool   `json:"add_liquidity"`
	CurrentRatioBps uint64 `json:"current_ratio_bps"`
	TargetRatioBps  uint64 `json:"target_ratio_bps"`
	Difference      string `json:"difference"`
}

func (c RebalanceCheck) DTO() RebalanceCheckDTO {
	return RebalanceCheckDTO{
		ShouldRebalance: c.ShouldRebalance,
		AddLiquidity:    c.AddLiquidity,
		CurrentRatioBps: c.CurrentRatioBps,
		TargetRatioBps:  c.TargetRatioBps,
		Difference:      Amount(c.Difference),
	}
}

type RebalanceDTO struct {
	Check  RebalanceCheckDTO `json:"check"`
	Before string            `json:"liquidity_before"`
	After  string            `json:"liquidity_after"`
	At     time.Time         `json:"at"`
}

func (r *RebalanceResult) DTO() RebalanceDTO {
	return RebalanceDTO{
		Check:  r.Check.DTO(),
		Before: Amount(r.Before),
		After:  Amount(r.After),
		At:     r.At.UTC(),
	}
}

type TreasuryStatsDTO struct {
	TotalAssets       string     `json:"total_assets"`
	LiquidityBalance  string     `json:"liquidity_balance"`
	Idle              string     `json:"idle"`
	LiquidityRatioBps uint64     `json:"liquidity_ratio_bps"`
	TotalDeposited    string     `json:"total_deposited"`
	TotalDistributed  string     `json:"total_distributed"`
	LastRebalance     *time.Time `json:"last_rebalance,omitempty"`
	LastDistribution  *time.Time `json:"last_distribution,omitempty"`
}

func (s TreasuryStats) DTO() TreasuryStatsDTO {
	return TreasuryStatsDTO{
		TotalAssets:       Amount(s.TotalAssets),
		LiquidityBalance:  Amount(s.LiquidityBalance),
		Idle:              Amount(s.Idle),
		LiquidityRatioBps: s.LiquidityRatio,
		TotalDeposited:    Amount(s.TotalDeposited),
		TotalDistributed:  Amount(s.TotalDistributed),
		LastRebalance:     optionalTime(s.LastRebalance),
		LastDistribution:  optionalTime(s.LastDistribution),
	}
}

type BuybackStatsDTO struct {
	AccumulatedFunds string     `json:"accumulated_funds"`
	TotalSpent       string     `json:"total_spent"`
	Executions       uint64     `json:"executions"`
	TokensBought     string     `json:"tokens_bought"`
	TokensBurned     string     `json:"tokens_burned"`
	TokensRewarded   string     `json:"tokens_rewarded"`
	LastBuybackTime  *time.Time `json:"last_buyback_time,omitempty"`
	LastPrice        string     `json:"last_price"`
	NextEligibleAt   *time.Time `json:"next_eligible_at,omitempty"`
}

func (s BuybackStats) DTO() BuybackStatsDTO {
	return BuybackStatsDTO{
		AccumulatedFunds: Amount(s.AccumulatedFunds),
		TotalSpent:       Amount(s.TotalSpent),
		Executions:       s.Executions,
		TokensBought:     Amount(s.TokensBought),
		TokensBurned:     Amount(s.TokensBurned),
		TokensRewarded:   Amount(s.TokensRewarded),
		LastBuybackTime:  optionalTime(s.LastBuybackTime),
		LastPrice:        Amount(s.LastPrice),
		NextEligibleAt:   optionalTime(s.NextEligibleAt),
	}
}

type RolesDTO struct {
	Address common.Address `json:"address"`
	Roles   []Role         `json:"roles"`
}

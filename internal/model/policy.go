package model

import (
	"fmt"
	"sort"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

const BpsDenominator uint64 = 10000

// MinRebalanceCooldown is the floor on the liquidity rebalance cooldown.
const MinRebalanceCooldown = 24 * time.Hour

// TreasurySource is the revenue source the treasury's buyback share is ingested under.
const TreasurySource = "TREASURY"

// BurnSinkAddress is the canonical unspendable destination.
var BurnSinkAddress = common.HexToAddress("0x000000000000000000000000000000000000dEaD")

type PriceThreshold struct {
	Price  uint256.Int
	Level  uint64
	Active bool
}

type BuybackPolicy struct {
	MinimumAmount    uint256.Int
	Cooldown         time.Duration
	BasePressureBps  uint64
	MaxPressureBps   uint64
	IncreaseRateBps  uint64
	MaxPressureLevel uint64
	BurnRatioBps     uint64
	// EmergencyDropBps is the price drop versus the last execution that waives the cooldown.
	EmergencyDropBps uint64
}

type SourceRate struct {
	Name       string
	BuybackBps uint64
}

type DistributionShares struct {
	Buyback    uint64
	Staking    uint64
	Liquidity  uint64
	Operations uint64
}

func (s DistributionShares) Sum() uint64 {
	return s.Buyback + s.Staking + s.Liquidity + s.Operations
}

// AdaptiveBracket overrides the buyback share when price is strictly below Below.
type AdaptiveBracket struct {
	Below      uint256.Int
	BuybackBps uint64
}

type RebalancePolicy struct {
	TargetRatioBps uint64
	ThresholdBps   uint64
	Cooldown       time.Duration
	MinAdjustment  uint256.Int
}

type Addresses struct {
	BurnSink         common.Address
	RewardsPool      common.Address
	StakingPool      common.Address
	LiquidityPool    common.Address
	OperationsWallet common.Address
}

// Policy is an immutable configuration snapshot. Updates produce a new version.
type Policy struct {
	Version         uint64
	Buyback         BuybackPolicy
	Thresholds      []PriceThreshold
	Sources         map[SourceTag]SourceRate
	Shares          DistributionShares
	Adaptive        []AdaptiveBracket
	StakingFloorBps uint64
	Rebalance       RebalancePolicy
	Addresses       Addresses
	UpdatedAt       time.Time
}

func (p *Policy) Clone() *Policy {
	out := *p
	out.Thresholds = append([]PriceThreshold(nil), p.Thresholds...)
	out.Adaptive = append([]AdaptiveBracket(nil), p.Adaptive...)
	out.Sources = make(map[SourceTag]SourceRate, len(p.Sources))
	for k, v := range p.Sources {
		out.Sources[k] = v
	}
	return &out
}

func (p *Policy) Source(tag SourceTag) (SourceRate, bool) {
	rate, ok := p.Sources[tag]
	return rate, ok
}

// SourceNames returns the configured source names sorted.
func (p *Policy) SourceNames() []string {
	names := make([]string, 0, len(p.Sources))
	for _, s := range p.Sources {
		names = append(names, s.Name)
	}
	sort.Strings(names)
	return names
}

// Validate checks every bound the engine relies on.
func (p *Policy) Validate() error {
	b := p.Buyback
	if b.BasePressureBps > b.MaxPressureBps {
		return fmt.Errorf("base pressure %d exceeds max pressure %d", b.BasePressureBps, b.MaxPressureBps)
	}
	if b.MaxPressureBps > BpsDenominator {
		return fmt.Errorf("max pressure %d exceeds 10000 bps", b.MaxPressureBps)
	}
	if b.BurnRatioBps > BpsDenominator {
		return fmt.Errorf("burn ratio %d exceeds 10000 bps", b.BurnRatioBps)
	}
	if b.EmergencyDropBps == 0 || b.EmergencyDropBps > BpsDenominator {
		return fmt.Errorf("emergency drop %d must be within (0, 10000] bps", b.EmergencyDropBps)
	}
	if b.MaxPressureLevel == 0 {
		return fmt.Errorf("max pressure level must be positive")
	}
	if b.Cooldown < 0 {
		return fmt.Errorf("buyback cooldown must not be negative")
	}
	for i, th := range p.Thresholds {
		if err := p.ValidateThreshold(th); err != nil {
			return fmt.Errorf("threshold %d: %w", i, err)
		}
	}
	if len(p.Sources) == 0 {
		return fmt.Errorf("at least one revenue source is required")
	}
	for _, s := range p.Sources {
		if s.BuybackBps > BpsDenominator {
			return fmt.Errorf("source %s: buyback rate %d exceeds 10000 bps", s.Name, s.BuybackBps)
		}
	}
	if sum := p.Shares.Sum(); sum != BpsDenominator {
		return fmt.Errorf("distribution shares sum to %d, want 10000", sum)
	}
	if p.StakingFloorBps > p.Shares.Staking {
		return fmt.Errorf("staking floor %d exceeds static staking share %d", p.StakingFloorBps, p.Shares.Staking)
	}
	for i, br := range p.Adaptive {
		if br.Below.IsZero() {
			return fmt.Errorf("adaptive bracket %d: price bound must be positive", i)
		}
		if _, err := p.Shares.WithAdaptiveBuyback(br.BuybackBps, p.StakingFloorBps); err != nil {
			return fmt.Errorf("adaptive bracket %d: %w", i, err)
		}
	}
	r := p.Rebalance
	if r.TargetRatioBps > BpsDenominator {
		return fmt.Errorf("rebalance target %d exceeds 10000 bps", r.TargetRatioBps)
	}
	if r.ThresholdBps > BpsDenominator {
		return fmt.Errorf("rebalance threshold %d exceeds 10000 bps", r.ThresholdBps)
	}
	if r.Cooldown < MinRebalanceCooldown {
		return fmt.Errorf("rebalance cooldown %s is below the %s minimum", r.Cooldown, MinRebalanceCooldown)
	}
	return p.Addresses.Validate()
}

func (p *Policy) ValidateThreshold(th PriceThreshold) error {
	if th.Price.IsZero() {
		return fmt.Errorf("price must be positive")
	}
	if th.Level == 0 || th.Level > p.Buyback.MaxPressureLevel {
		return fmt.Errorf("pressure level %d outside [1, %d]", th.Level, p.Buyback.MaxPressureLevel)
	}
	return nil
}

func (a Addresses) Validate() error {
	zero := common.Address{}
	switch {
	case a.BurnSink == zero:
		return fmt.Errorf("burn sink address is required")
	case a.RewardsPool == zero:
		return fmt.Errorf("rewards pool address is required")
	case a.StakingPool == zero:
		return fmt.Errorf("staking pool address is required")
	case a.LiquidityPool == zero:
		return fmt.Errorf("liquidity pool address is required")
	case a.OperationsWallet == zero:
		return fmt.Errorf("operations wallet address is required")
	}
	return nil
}

// WithAdaptiveBuyback replaces the buyback share and moves the difference
// onto staking. Liquidity and operations never change so the sum stays 10000.
// It fails instead of wrapping when staking would drop below floorBps.
func (s DistributionShares) WithAdaptiveBuyback(buybackBps, floorBps uint64) (DistributionShares, error) {
	out := s
	out.Buyback = buybackBps
	if buybackBps >= s.Buyback {
		delta := buybackBps - s.Buyback
		if delta > s.Staking || s.Staking-delta < floorBps {
			return s, fmt.Errorf("buyback share %d leaves staking below floor %d (static staking %d, static buyback %d)",
				buybackBps, floorBps, s.Staking, s.Buyback)
		}
		out.Staking = s.Staking - delta
	} else {
		out.Staking = s.Staking + (s.Buyback - buybackBps)
	}
	if out.Sum() != BpsDenominator {
		return s, fmt.Errorf("adjusted shares sum to %d", out.Sum())
	}
	return out, nil
}

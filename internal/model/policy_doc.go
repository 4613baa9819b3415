package model

import (
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
)

// PolicyDocument is the JSON form of a Policy. Amounts are raw 18-decimal
// integers in base 10 so the document round-trips without precision loss.
type PolicyDocument struct {
	Version         uint64              `json:"version"`
	Buyback         BuybackDocument     `json:"buyback"`
	Thresholds      []ThresholdDocument `json:"thresholds"`
	Sources         []SourceDocument    `json:"sources"`
	Shares          DistributionShares  `json:"shares"`
	Adaptive        []BracketDocument   `json:"adaptive"`
	StakingFloorBps uint64              `json:"staking_floor_bps"`
	Rebalance       RebalanceDocument   `json:"rebalance"`
	Addresses       AddressesDocument   `json:"addresses"`
	UpdatedAt       time.Time           `json:"updated_at"`
}

type BuybackDocument struct {
	MinimumAmount    string `json:"minimum_amount"`
	CooldownSeconds  int64  `json:"cooldown_seconds"`
	BasePressureBps  uint64 `json:"base_pressure_bps"`
	MaxPressureBps   uint64 `json:"max_pressure_bps"`
	IncreaseRateBps  uint64 `json:"increase_rate_bps"`
	MaxPressureLevel uint64 `json:"max_pressure_level"`
	BurnRatioBps     uint64 `json:"burn_ratio_bps"`
	EmergencyDropBps uint64 `json:"emergency_drop_bps"`
}

type ThresholdDocument struct {
	Price  string `json:"price"`
	Level  uint64 `json:"level"`
	Active bool   `json:"active"`
}

type SourceDocument struct {
	Name       string `json:"name"`
	Tag        string `json:"tag"`
	BuybackBps uint64 `json:"buyback_bps"`
}

type BracketDocument struct {
	Below      string `json:"below"`
	BuybackBps uint64 `json:"buyback_bps"`
}

type RebalanceDocument struct {
	TargetRatioBps  uint64 `json:"target_ratio_bps"`
	ThresholdBps    uint64 `json:"threshold_bps"`
	CooldownSeconds int64  `json:"cooldown_seconds"`
	MinAdjustment   string `json:"min_adjustment"`
}

type AddressesDocument struct {
	BurnSink         string `json:"burn_sink"`
	RewardsPool      string `json:"rewards_pool"`
	StakingPool      string `json:"staking_pool"`
	LiquidityPool    string `json:"liquidity_pool"`
	OperationsWallet string `json:"operations_wallet"`
}

func (p *Policy) Document() PolicyDocument {
	doc := PolicyDocument{
		Version: p.Version,
		Buyback: BuybackDocument{
			MinimumAmount:    p.Buyback.MinimumAmount.Dec(),
			CooldownSeconds:  int64(p.Buyback.Cooldown / time.Second),
			BasePressureBps:  p.Buyback.BasePressureBps,
			MaxPressureBps:   p.Buyback.MaxPressureBps,
			IncreaseRateBps:  p.Buyback.IncreaseRateBps,
			MaxPressureLevel: p.Buyback.MaxPressureLevel,
			BurnRatioBps:     p.Buyback.BurnRatioBps,
			EmergencyDropBps: p.Buyback.EmergencyDropBps,
		},
		Shares:          p.Shares,
		StakingFloorBps: p.StakingFloorBps,
		Rebalance: RebalanceDocument{
			TargetRatioBps:  p.Rebalance.TargetRatioBps,
			ThresholdBps:    p.Rebalance.ThresholdBps,
			CooldownSeconds: int64(p.Rebalance.Cooldown / time.Second),
			MinAdjustment:   p.Rebalance.MinAdjustment.Dec(),
		},
		Addresses: p.Addresses.Document(),
		UpdatedAt: p.UpdatedAt,
	}
	for _, th := range p.Thresholds {
		doc.Thresholds = append(doc.Thresholds, ThresholdDocument{Price: th.Price.Dec(), Level: th.Level, Active: th.Active})
	}
	for _, name := range p.SourceNames() {
		tag := TagOf(name)
		doc.Sources = append(doc.Sources, SourceDocument{Name: name, Tag: tag.Hex(), BuybackBps: p.Sources[tag].BuybackBps})
	}
	for _, br := range p.Adaptive {
		doc.Adaptive = append(doc.Adaptive, BracketDocument{Below: br.Below.Dec(), BuybackBps: br.BuybackBps})
	}
	return doc
}

func (a Addresses) Document() AddressesDocument {
	return AddressesDocument{
		BurnSink:         a.BurnSink.Hex(),
		RewardsPool:      a.RewardsPool.Hex(),
		StakingPool:      a.StakingPool.Hex(),
		LiquidityPool:    a.LiquidityPool.Hex(),
		OperationsWallet: a.OperationsWallet.Hex(),
	}
}

// Policy converts the document back. It does not validate.
func (d PolicyDocument) Policy() (*Policy, error) {
	p := &Policy{
		Version: d.Version,
		Buyback: BuybackPolicy{
			Cooldown:         time.Duration(d.Buyback.CooldownSeconds) * time.Second,
			BasePressureBps:  d.Buyback.BasePressureBps,
			MaxPressureBps:   d.Buyback.MaxPressureBps,
			IncreaseRateBps:  d.Buyback.IncreaseRateBps,
			MaxPressureLevel: d.Buyback.MaxPressureLevel,
			BurnRatioBps:     d.Buyback.BurnRatioBps,
			EmergencyDropBps: d.Buyback.EmergencyDropBps,
		},
		Sources:         make(map[SourceTag]SourceRate, len(d.Sources)),
		Shares:          d.Shares,
		StakingFloorBps: d.StakingFloorBps,
		Rebalance: RebalancePolicy{
			TargetRatioBps: d.Rebalance.TargetRatioBps,
			ThresholdBps:   d.Rebalance.ThresholdBps,
			Cooldown:       time.Duration(d.Rebalance.CooldownSeconds) * time.Second,
		},
		UpdatedAt: d.UpdatedAt,
	}
	var err error
	if p.Buyback.MinimumAmount, err = rawAmount(d.Buyback.MinimumAmount); err != nil {
		return nil, fmt.Errorf("minimum_amount: %w", err)
	}
	if p.Rebalance.MinAdjustment, err = rawAmount(d.Rebalance.MinAdjustment); err != nil {
		return nil, fmt.Errorf("min_adjustment: %w", err)
	}
	for i, th := range d.Thresholds {
		price, err := rawAmount(th.Price)
		if err != nil {
			return nil, fmt.Errorf("threshold %d: %w", i, err)
		}
		p.Thresholds = append(p.Thresholds, PriceThreshold{Price: price, Level: th.Level, Active: th.Active})
	}
	for _, s := range d.Sources {
		name := NormalizeSourceName(s.Name)
		p.Sources[TagOf(name)] = SourceRate{Name: name, BuybackBps: s.BuybackBps}
	}
	for i, br := range d.Adaptive {
		below, err := rawAmount(br.Below)
		if err != nil {
			return nil, fmt.Errorf("adaptive bracket %d: %w", i, err)
		}
		p.Adaptive = append(p.Adaptive, AdaptiveBracket{Below: below, BuybackBps: br.BuybackBps})
	}
	if p.Addresses, err = d.Addresses.Addresses(); err != nil {
		return nil, err
	}
	return p, nil
}

func (d AddressesDocument) Addresses() (Addresses, error) {
	var out Addresses
	fields := []struct {
		name string
		raw  string
		dst  *common.Address
	}{
		{"burn_sink", d.BurnSink, &out.BurnSink},
		{"rewards_pool", d.RewardsPool, &out.RewardsPool},
		{"staking_pool", d.StakingPool, &out.StakingPool},
		{"liquidity_pool", d.LiquidityPool, &out.LiquidityPool},
		{"operations_wallet", d.OperationsWallet, &out.OperationsWallet},
	}
	for _, f := range fields {
		if !common.IsHexAddress(f.raw) {
			return Addresses{}, fmt.Errorf("%s: invalid address %q", f.name, f.raw)
		}
		*f.dst = common.HexToAddress(f.raw)
	}
	return out, nil
}

func rawAmount(raw string) (uint256.Int, error) {
	if raw == "" {
		return uint256.Int{}, nil
	}
	v, err := uint256.FromDecimal(raw)
	if err != nil {
		return uint256.Int{}, err
	}
	return *v, nil
}

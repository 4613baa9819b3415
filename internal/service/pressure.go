package service

import (
	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/holiman/uint256"
)

// CalculatePressure maps a price to the share of accumulated funds to spend, in bps.
//
// Every active threshold with price <= threshold.Price adds IncreaseRate * Level.
// Matches stack additively in configured order and the sum is clamped to MaxPressure.
func CalculatePressure(bp model.BuybackPolicy, thresholds []model.PriceThreshold, price uint256.Int) uint64 {
	pressure := bp.BasePressureBps
	for _, th := range thresholds {
		if !th.Active || price.Gt(&th.Price) {
			continue
		}
		pressure += bp.IncreaseRateBps * th.Level
		if pressure >= bp.MaxPressureBps {
			return bp.MaxPressureBps
		}
	}
	if pressure > bp.MaxPressureBps {
		return bp.MaxPressureBps
	}
	return pressure
}

// CalculatePressure evaluates the pressure curve of the policy in effect.
func (e *Engine) CalculatePressure(price uint256.Int) uint64 {
	p := e.policies.Current()
	return CalculatePressure(p.Buyback, p.Thresholds, price)
}

// GetPriceThresholds returns a copy of the configured thresholds in order.
func (e *Engine) GetPriceThresholds() []model.PriceThreshold {
	p := e.policies.Current()
	return append([]model.PriceThreshold(nil), p.Thresholds...)
}

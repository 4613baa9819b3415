package service

import (
	"math/rand"
	"testing"

	"github.com/GoPolymarket/burngate/internal/model"
	"github.com/holiman/uint256"
	"github.com/stretchr/testify/assert"
)

func TestPressureStacksMatchingThresholds(t *testing.T) {
	bp := testPolicy().Buyback
	thresholds := []model.PriceThreshold{
		{Price: amt("0.50"), Level: 1, Active: true},
		{Price: amt("0.30"), Level: 3, Active: true},
	}

	assert.Equal(t, uint64(5000+500*1+500*3), CalculatePressure(bp, thresholds, amt("0.25")))
	assert.Equal(t, uint64(5000+500*1), CalculatePressure(bp, thresholds, amt("0.40")))
	assert.Equal(t, uint64(5000+500*1), CalculatePressure(bp, thresholds, amt("0.50")), "boundary price matches")
	assert.Equal(t, uint64(5000), CalculatePressure(bp, thresholds, amt("0.51")))
}

func TestPressureIgnoresInactiveAndClamps(t *testing.T) {
	p := testPolicy()
	assert.Equal(t, uint64(8000), CalculatePressure(p.Buyback, p.Thresholds, amt("0.20")))

	p.Thresholds[0].Active = false
	p.Thresholds[1].Active = false
	p.Thresholds[2].Active = false
	// only level 4 at 0.25 remains
	assert.Equal(t, uint64(7000), CalculatePressure(p.Buyback, p.Thresholds, amt("0.20")))
}

func TestPressureOrderIndependent(t *testing.T) {
	bp := testPolicy().Buyback
	bp.MaxPressureBps = 10000
	ordered := testPolicy().Thresholds
	reversed := []model.PriceThreshold{ordered[3], ordered[2], ordered[1], ordered[0]}
	for _, price := range []string{"0.10", "0.26", "0.33", "0.45", "0.90"} {
		assert.Equal(t,
			CalculatePressure(bp, ordered, amt(price)),
			CalculatePressure(bp, reversed, amt(price)), price)
	}
}

func TestPressureStaysWithinBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 500; i++ {
		base := uint64(rng.Intn(10001))
		maxP := base + uint64(rng.Intn(int(10001-base)))
		bp := model.BuybackPolicy{
			BasePressureBps:  base,
			MaxPressureBps:   maxP,
			IncreaseRateBps:  uint64(rng.Intn(3000)),
			MaxPressureLevel: 10,
		}
		var thresholds []model.PriceThreshold
		for j := rng.Intn(6); j > 0; j-- {
			thresholds = append(thresholds, model.PriceThreshold{
				Price:  *uint256.NewInt(uint64(rng.Intn(1000) + 1)),
				Level:  uint64(rng.Intn(10) + 1),
				Active: rng.Intn(4) != 0,
			})
		}
		price := *uint256.NewInt(uint64(rng.Intn(1200)))

		got := CalculatePressure(bp, thresholds, price)
		assert.GreaterOrEqual(t, got, base)
		assert.LessOrEqual(t, got, maxP)
	}
}

func TestEngineThresholdsAreCopies(t *testing.T) {
	h := newHarness(t)
	th := h.engine.GetPriceThresholds()
	th[0].Active = false
	assert.True(t, h.engine.GetPriceThresholds()[0].Active)
	assert.Equal(t, uint64(8000), h.engine.CalculatePressure(amt("0.20")))
}

package arbitrage

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestProfitPct(t *testing.T) {
	// 2.10 vs 2.05: implied sum ~0.964, edge ~3.73%.
	assert.InDelta(t, 3.73, ProfitPct(2.10, 2.05), 0.01)

	// Overround market yields zero, not a negative percentage.
	assert.Equal(t, 0.0, ProfitPct(1.90, 1.90))
}

func TestProfitPctInvertsImpliedSum(t *testing.T) {
	pairs := [][2]float64{{2.10, 2.05}, {2.50, 1.80}, {3.00, 1.60}, {1.95, 2.30}}
	for _, p := range pairs {
		sum := 1/p[0] + 1/p[1]
		if sum >= 1 {
			continue
		}
		pct := ProfitPct(p[0], p[1])
		assert.Greater(t, pct, 0.0)
		// (1 + pct/100) * sum == 1 within rounding tolerance (pct is 2dp).
		assert.InDelta(t, 1.0, (1+pct/100)*sum, 0.001)
	}
}

func TestStakeSplit(t *testing.T) {
	a, b := StakeSplit(1000, 2.10, 2.05)
	assert.InDelta(t, 493.98, a, 0.01)
	assert.InDelta(t, 506.02, b, 0.01)
	assert.InDelta(t, 1000, a+b, 1e-9)

	// Both outcomes pay the same before rounding.
	assert.InDelta(t, a*2.10, b*2.05, 1e-6)
}

func TestRoundStake(t *testing.T) {
	assert.Equal(t, 495.0, RoundStake(494.03))
	assert.Equal(t, 505.0, RoundStake(505.97))
	assert.Equal(t, 150.0, RoundStake(152))
	assert.Equal(t, 155.0, RoundStake(153))

	// Ties at .5 of a step round up.
	assert.Equal(t, 15.0, RoundStake(12.5))

	// Never rounds a positive stake to zero.
	assert.Equal(t, 5.0, RoundStake(0.7))
	assert.Equal(t, 5.0, RoundStake(2.4))

	// Idempotent, and always a multiple of 5.
	for _, v := range []float64{0.3, 7, 12.5, 494.03, 505.97, 1000} {
		once := RoundStake(v)
		assert.Equal(t, once, RoundStake(once))
		assert.Equal(t, 0.0, float64(int64(once)%5))
	}
}

func TestRealizedProfit(t *testing.T) {
	// Rounded stakes from the 1000 @ 2.10/2.05 split.
	profit := RealizedProfit(495, 2.10, 505, 2.05)
	// min(1039.50, 1035.25) - 1000 = 35.25
	assert.InDelta(t, 35.25, profit, 0.001)
}

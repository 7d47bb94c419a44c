package arbitrage

import (
	"math"

	"github.com/aryasaputra/surebot/internal/odds"
)

// ProfitPct returns the arbitrage profit percentage for a pair of decimal
// odds, rounded to two decimals. It returns 0 when the combined implied
// probability is 1 or more (overround market, no arbitrage).
func ProfitPct(oddsA, oddsB float64) float64 {
	total := odds.ImpliedProbability(oddsA) + odds.ImpliedProbability(oddsB)
	if total >= 1 {
		return 0
	}
	return round2((1/total - 1) * 100)
}

// StakeSplit splits totalStake across the two sides in proportion to each
// side's share of the combined implied probability, so both outcomes pay the
// same before rounding.
func StakeSplit(totalStake, oddsA, oddsB float64) (stakeA, stakeB float64) {
	pA := odds.ImpliedProbability(oddsA)
	pB := odds.ImpliedProbability(oddsB)
	total := pA + pB
	stakeA = totalStake * pA / total
	stakeB = totalStake * pB / total
	return stakeA, stakeB
}

// RoundStake rounds a stake to the nearest multiple of 5, never below 5 for
// positive input. Bookmakers reject "keriting" amounts that don't end in 0 or
// 5. Exact .5 multiples round up (half away from zero): 12.5 -> 15.
func RoundStake(amount float64) float64 {
	if amount <= 0 {
		return 0
	}
	rounded := math.Round(amount/5) * 5
	if rounded == 0 {
		return 5
	}
	return rounded
}

// RealizedProfit recomputes the guaranteed profit from already-rounded
// stakes. Rounding perturbs the exact hedge, so the pre-rounding profit
// figure must never be trusted.
func RealizedProfit(stakeA, oddsA, stakeB, oddsB float64) float64 {
	return math.Min(stakeA*oddsA, stakeB*oddsB) - (stakeA + stakeB)
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Package arbitrage evaluates paired quotes for arbitrage opportunities:
// odds normalization, profit and stake computation, safety filtering, and
// ranking of the eligible queue.
package arbitrage

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/odds"
)

// warnWindowMinutes flags opportunities this close to the match-clock cutoff.
const warnWindowMinutes = 5

// MatchFilter restricts which match phases are eligible.
type MatchFilter string

const (
	FilterAll      MatchFilter = "all"
	FilterPrematch MatchFilter = "prematch"
	FilterLive     MatchFilter = "live"
)

// Policy holds the safety filters applied to every opportunity.
type Policy struct {
	MinProfitPct   float64
	MaxProfitPct   float64
	MaxMinuteHT    int
	MaxMinuteFT    int
	MatchFilter    MatchFilter
	EnabledMarkets []domain.MarketType
	Tiers          []domain.Tier
	TierLeagues    map[string][]string // tier name -> league whitelist
}

// Decision is the outcome of a policy screen. A rejection is a decision, not
// an error.
type Decision struct {
	Accept   bool
	Reason   string
	Warnings []string
}

func reject(format string, args ...any) Decision {
	return Decision{Accept: false, Reason: fmt.Sprintf(format, args...)}
}

// Evaluator applies a Policy to raw quotes and screened opportunities.
type Evaluator struct {
	policy Policy
	now    func() time.Time
}

// NewEvaluator creates an Evaluator for the given policy.
func NewEvaluator(policy Policy) *Evaluator {
	return &Evaluator{policy: policy, now: time.Now}
}

// Analyze validates a raw quote end to end: structural checks, odds
// normalization, the filter chain, tier resolution, stake split and rounding,
// and the post-rounding profitability re-check. On acceptance it returns a
// pending Opportunity whose ProfitPct reflects the rounded stakes.
func (e *Evaluator) Analyze(q domain.RawQuote) (domain.Opportunity, Decision) {
	if q.SideA.AccountID == q.SideB.AccountID {
		return domain.Opportunity{}, reject("both sides reference account %s", q.SideA.AccountID)
	}

	decA, err := odds.ToDecimal(q.SideA.Odds, q.SideA.OddsFormat)
	if err != nil {
		return domain.Opportunity{}, reject("side A odds: %v", err)
	}
	decB, err := odds.ToDecimal(q.SideB.Odds, q.SideB.OddsFormat)
	if err != nil {
		return domain.Opportunity{}, reject("side B odds: %v", err)
	}

	grossPct := ProfitPct(decA, decB)
	if grossPct <= 0 {
		return domain.Opportunity{}, reject("overround market, no arbitrage")
	}
	if d := e.screenProfit(grossPct); !d.Accept {
		return domain.Opportunity{}, d
	}
	if d := e.screenMatch(q.MatchStatus, q.MarketType, q.MatchMinute); !d.Accept {
		return domain.Opportunity{}, d
	}

	var warnings []string
	if q.MatchStatus == domain.MatchLive {
		cutoff := e.minuteCutoff(q.MarketType)
		if q.MatchMinute > cutoff-warnWindowMinutes {
			warnings = append(warnings,
				fmt.Sprintf("match minute %d close to cutoff %d", q.MatchMinute, cutoff))
		}
	}

	tier := e.ResolveTier(q.League)

	rawA, rawB := StakeSplit(tier.BetAmount, decA, decB)
	stakeA := RoundStake(rawA)
	stakeB := RoundStake(rawB)
	profit := RealizedProfit(stakeA, decA, stakeB, decB)
	profitPct := round2(profit / (stakeA + stakeB) * 100)

	// Rounding can kill a thin edge.
	if profitPct < e.policy.MinProfitPct {
		return domain.Opportunity{}, reject(
			"profit %.2f%% after stake rounding below minimum %.2f%%",
			profitPct, e.policy.MinProfitPct)
	}

	now := e.now().UTC()
	detectedAt := q.QuotedAt
	if detectedAt.IsZero() {
		detectedAt = now
	}

	opp := domain.Opportunity{
		ID:          uuid.New().String(),
		MatchID:     q.MatchID,
		MatchName:   q.MatchName,
		League:      q.League,
		MarketType:  q.MarketType,
		MatchStatus: q.MatchStatus,
		MatchMinute: q.MatchMinute,
		LegA:        legFromSide(q.SideA, q.MarketType, decA, stakeA),
		LegB:        legFromSide(q.SideB, q.MarketType, decB, stakeB),
		Tier:        tier,
		TotalStake:  stakeA + stakeB,
		ProfitPct:   profitPct,
		Profit:      round2(profit),
		Status:      domain.OppPending,
		DetectedAt:  detectedAt,
		EvaluatedAt: now,
	}
	return opp, Decision{Accept: true, Reason: "ok", Warnings: warnings}
}

// Screen re-checks an already-built opportunity immediately before execution:
// profit band, match clock, and pending status, in that order. Quotes go
// stale between detection and dequeue; this is the last gate before money
// moves.
func (e *Evaluator) Screen(opp domain.Opportunity) Decision {
	if d := e.screenProfit(opp.ProfitPct); !d.Accept {
		return d
	}
	if d := e.screenMatch(opp.MatchStatus, opp.MarketType, opp.MatchMinute); !d.Accept {
		return d
	}
	if opp.Status != domain.OppPending {
		return reject("opportunity already %s", opp.Status)
	}
	return Decision{Accept: true, Reason: "ok"}
}

func (e *Evaluator) screenProfit(pct float64) Decision {
	if pct < e.policy.MinProfitPct {
		return reject("profit %.2f%% below minimum %.2f%%", pct, e.policy.MinProfitPct)
	}
	if pct > e.policy.MaxProfitPct {
		// Edges this fat are almost always stale or fabricated odds.
		return reject("profit %.2f%% above maximum %.2f%%, probable odds error", pct, e.policy.MaxProfitPct)
	}
	return Decision{Accept: true}
}

func (e *Evaluator) screenMatch(status domain.MatchStatus, market domain.MarketType, minute int) Decision {
	switch e.policy.MatchFilter {
	case FilterPrematch:
		if status != domain.MatchPrematch {
			return reject("live matches disabled by policy")
		}
	case FilterLive:
		if status != domain.MatchLive {
			return reject("prematch disabled by policy")
		}
	}

	if len(e.policy.EnabledMarkets) > 0 && !containsMarket(e.policy.EnabledMarkets, market) {
		return reject("market %s disabled by policy", market)
	}

	if status == domain.MatchLive {
		cutoff := e.minuteCutoff(market)
		if minute > cutoff {
			return reject("match minute %d past cutoff %d, stale-odds risk", minute, cutoff)
		}
	}
	return Decision{Accept: true}
}

func (e *Evaluator) minuteCutoff(market domain.MarketType) int {
	if market.HalfTime() {
		return e.policy.MaxMinuteHT
	}
	return e.policy.MaxMinuteFT
}

// ResolveTier maps a league to its configured stake tier. Tiers are checked
// in priority order; a league in no whitelist falls to the lowest tier.
func (e *Evaluator) ResolveTier(league string) domain.Tier {
	tiers := make([]domain.Tier, len(e.policy.Tiers))
	copy(tiers, e.policy.Tiers)
	sort.Slice(tiers, func(i, j int) bool { return tiers[i].Priority > tiers[j].Priority })

	for _, t := range tiers {
		for _, l := range e.policy.TierLeagues[t.Name] {
			if l == league {
				return t
			}
		}
	}
	if len(tiers) > 0 {
		return tiers[len(tiers)-1]
	}
	return domain.Tier{Name: "default", Label: "Default", BetAmount: 250, Priority: 1}
}

// Rank orders simultaneously-eligible opportunities for execution: higher
// tier priority first, then higher profit, then earliest detection (stable
// FIFO tie-break).
func Rank(opps []domain.Opportunity) {
	sort.SliceStable(opps, func(i, j int) bool {
		a, b := opps[i], opps[j]
		if a.Tier.Priority != b.Tier.Priority {
			return a.Tier.Priority > b.Tier.Priority
		}
		if a.ProfitPct != b.ProfitPct {
			return a.ProfitPct > b.ProfitPct
		}
		return a.DetectedAt.Before(b.DetectedAt)
	})
}

func legFromSide(s domain.QuoteSide, market domain.MarketType, decimal, stake float64) domain.Leg {
	return domain.Leg{
		AccountID:  s.AccountID,
		Provider:   s.Provider,
		Selection:  s.Selection,
		MarketType: market,
		Handicap:   s.Handicap,
		Odds:       decimal,
		Stake:      stake,
	}
}

func containsMarket(list []domain.MarketType, m domain.MarketType) bool {
	for _, v := range list {
		if v == m {
			return true
		}
	}
	return false
}

package arbitrage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/domain"
)

func testPolicy() Policy {
	return Policy{
		MinProfitPct: 1.0,
		MaxProfitPct: 10.0,
		MaxMinuteHT:  40,
		MaxMinuteFT:  85,
		MatchFilter:  FilterAll,
		EnabledMarkets: []domain.MarketType{
			domain.MarketFTHandicap, domain.MarketFTOverUnder,
			domain.MarketHTHandicap, domain.MarketHTOverUnder,
		},
		Tiers: []domain.Tier{
			{Name: "tier1", Label: "Top leagues", BetAmount: 1000, Priority: 3},
			{Name: "tier2", Label: "Mid leagues", BetAmount: 500, Priority: 2},
			{Name: "tier3", Label: "Default", BetAmount: 250, Priority: 1},
		},
		TierLeagues: map[string][]string{
			"tier1": {"EPL", "La Liga"},
			"tier2": {"Championship"},
		},
	}
}

func testQuote() domain.RawQuote {
	return domain.RawQuote{
		MatchID:     "m1",
		MatchName:   "Arsenal vs Chelsea",
		League:      "EPL",
		MarketType:  domain.MarketFTHandicap,
		MatchStatus: domain.MatchLive,
		MatchMinute: 30,
		SideA: domain.QuoteSide{
			AccountID: "acct-ibc", Provider: "ibc", Selection: "home",
			Handicap: -0.5, Odds: 2.10, OddsFormat: domain.OddsDecimal,
		},
		SideB: domain.QuoteSide{
			AccountID: "acct-cmd", Provider: "cmd", Selection: "away",
			Handicap: 0.5, Odds: 2.05, OddsFormat: domain.OddsDecimal,
		},
		QuotedAt: time.Now().UTC(),
	}
}

func TestAnalyzeAccepts(t *testing.T) {
	ev := NewEvaluator(testPolicy())
	opp, d := ev.Analyze(testQuote())
	require.True(t, d.Accept, d.Reason)

	assert.Equal(t, domain.OppPending, opp.Status)
	assert.Equal(t, "tier1", opp.Tier.Name)
	assert.Equal(t, 495.0, opp.LegA.Stake)
	assert.Equal(t, 505.0, opp.LegB.Stake)
	assert.Equal(t, 1000.0, opp.TotalStake)
	assert.InDelta(t, 35.25, opp.Profit, 0.01)
	assert.InDelta(t, 3.53, opp.ProfitPct, 0.01) // realized, post-rounding
	assert.NotEmpty(t, opp.ID)

	// Value/hedge ordering is fixed by odds.
	assert.Equal(t, 2.10, opp.ValueLeg().Odds)
	assert.Equal(t, 2.05, opp.HedgeLeg().Odds)
}

func TestAnalyzeNormalizesIndonesianOdds(t *testing.T) {
	q := testQuote()
	q.SideA.Odds = 1.60
	q.SideA.OddsFormat = domain.OddsIndonesian // -> 2.60
	q.SideB.Odds = -150
	q.SideB.OddsFormat = domain.OddsAmerican // -> 1.6667

	ev := NewEvaluator(testPolicy())
	opp, d := ev.Analyze(q)
	require.True(t, d.Accept, d.Reason)
	assert.InDelta(t, 2.60, opp.LegA.Odds, 0.0001)
	assert.InDelta(t, 1.6667, opp.LegB.Odds, 0.0001)
}

func TestAnalyzeRejections(t *testing.T) {
	ev := NewEvaluator(testPolicy())

	t.Run("same account both sides", func(t *testing.T) {
		q := testQuote()
		q.SideB.AccountID = q.SideA.AccountID
		_, d := ev.Analyze(q)
		assert.False(t, d.Accept)
	})

	t.Run("overround market", func(t *testing.T) {
		q := testQuote()
		q.SideA.Odds, q.SideB.Odds = 1.90, 1.90
		_, d := ev.Analyze(q)
		assert.False(t, d.Accept)
	})

	t.Run("profit above max is a trap", func(t *testing.T) {
		q := testQuote()
		q.SideA.Odds, q.SideB.Odds = 2.80, 2.80 // ~40% edge
		_, d := ev.Analyze(q)
		assert.False(t, d.Accept)
		assert.Contains(t, d.Reason, "odds error")
	})

	t.Run("past full-time cutoff", func(t *testing.T) {
		q := testQuote()
		q.MatchMinute = 86
		_, d := ev.Analyze(q)
		assert.False(t, d.Accept)
	})

	t.Run("half-time market uses HT cutoff", func(t *testing.T) {
		q := testQuote()
		q.MarketType = domain.MarketHTHandicap
		q.MatchMinute = 41
		_, d := ev.Analyze(q)
		assert.False(t, d.Accept)
	})

	t.Run("disabled market", func(t *testing.T) {
		p := testPolicy()
		p.EnabledMarkets = []domain.MarketType{domain.MarketFTOverUnder}
		q := testQuote()
		_, d := NewEvaluator(p).Analyze(q)
		assert.False(t, d.Accept)
	})

	t.Run("live disabled by prematch filter", func(t *testing.T) {
		p := testPolicy()
		p.MatchFilter = FilterPrematch
		_, d := NewEvaluator(p).Analyze(testQuote())
		assert.False(t, d.Accept)
	})

	t.Run("invalid odds format", func(t *testing.T) {
		q := testQuote()
		q.SideA.OddsFormat = "fractional"
		_, d := ev.Analyze(q)
		assert.False(t, d.Accept)
	})
}

func TestScreenBoundaries(t *testing.T) {
	ev := NewEvaluator(testPolicy())
	opp := domain.Opportunity{
		MarketType:  domain.MarketFTHandicap,
		MatchStatus: domain.MatchLive,
		MatchMinute: 30,
		ProfitPct:   1.00, // exactly minProfit
		Status:      domain.OppPending,
	}
	assert.True(t, ev.Screen(opp).Accept)

	opp.ProfitPct = 0.99
	assert.False(t, ev.Screen(opp).Accept)

	opp.ProfitPct = 2.0
	opp.Status = domain.OppExecuting
	assert.False(t, ev.Screen(opp).Accept)
}

func TestResolveTier(t *testing.T) {
	ev := NewEvaluator(testPolicy())
	assert.Equal(t, "tier1", ev.ResolveTier("EPL").Name)
	assert.Equal(t, "tier2", ev.ResolveTier("Championship").Name)
	assert.Equal(t, "tier3", ev.ResolveTier("Obscure League").Name)
}

func TestRank(t *testing.T) {
	base := time.Now().UTC()
	opps := []domain.Opportunity{
		{ID: "late-low", Tier: domain.Tier{Priority: 1}, ProfitPct: 2.0, DetectedAt: base.Add(3 * time.Second)},
		{ID: "top-tier", Tier: domain.Tier{Priority: 3}, ProfitPct: 1.5, DetectedAt: base.Add(2 * time.Second)},
		{ID: "rich", Tier: domain.Tier{Priority: 2}, ProfitPct: 5.0, DetectedAt: base.Add(1 * time.Second)},
		{ID: "rich-earlier", Tier: domain.Tier{Priority: 2}, ProfitPct: 5.0, DetectedAt: base},
	}
	Rank(opps)
	got := []string{opps[0].ID, opps[1].ID, opps[2].ID, opps[3].ID}
	assert.Equal(t, []string{"top-tier", "rich-earlier", "rich", "late-low"}, got)
}

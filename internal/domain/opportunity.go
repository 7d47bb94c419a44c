package domain

import "time"

// OddsFormat identifies the notation a raw odds value was quoted in.
type OddsFormat string

const (
	OddsDecimal    OddsFormat = "decimal"
	OddsIndonesian OddsFormat = "indonesian"
	OddsMalay      OddsFormat = "malay"
	OddsHongKong   OddsFormat = "hongkong"
	OddsAmerican   OddsFormat = "american"
)

// MarketType is the bet market an opportunity was detected on. The ht_ prefix
// marks first-half markets, which use the half-time clock cutoff.
type MarketType string

const (
	MarketFTHandicap  MarketType = "ft_hdp"
	MarketFTOverUnder MarketType = "ft_ou"
	MarketHTHandicap  MarketType = "ht_hdp"
	MarketHTOverUnder MarketType = "ht_ou"
)

// HalfTime reports whether the market settles at half time.
func (m MarketType) HalfTime() bool {
	return m == MarketHTHandicap || m == MarketHTOverUnder
}

// MatchStatus distinguishes prematch from in-play quotes.
type MatchStatus string

const (
	MatchPrematch MatchStatus = "prematch"
	MatchLive     MatchStatus = "live"
)

// OpportunityStatus tracks an opportunity through its lifecycle. Only pending
// opportunities are eligible for execution.
type OpportunityStatus string

const (
	OppPending   OpportunityStatus = "pending"
	OppExecuting OpportunityStatus = "executing"
	OppCompleted OpportunityStatus = "completed"
	OppPartial   OpportunityStatus = "partial"
	OppAborted   OpportunityStatus = "aborted"
	OppFailed    OpportunityStatus = "failed"
	OppRejected  OpportunityStatus = "rejected"
)

// QuoteSide is one side of a raw two-sided quote as it arrives from the feed,
// before odds normalization.
type QuoteSide struct {
	AccountID  string     `json:"account_id"`
	Provider   string     `json:"provider"`
	Selection  string     `json:"selection"`
	Handicap   float64    `json:"handicap"`
	Odds       float64    `json:"odds"`
	OddsFormat OddsFormat `json:"odds_format"`
}

// RawQuote is an unvalidated paired quote from the external odds feed.
type RawQuote struct {
	MatchID     string      `json:"match_id"`
	MatchName   string      `json:"match_name"`
	League      string      `json:"league"`
	MarketType  MarketType  `json:"market_type"`
	MatchStatus MatchStatus `json:"match_status"`
	MatchMinute int         `json:"match_minute"`
	SideA       QuoteSide   `json:"side_a"`
	SideB       QuoteSide   `json:"side_b"`
	QuotedAt    time.Time   `json:"quoted_at"`
}

// Leg is one side of a validated opportunity: a concrete bet spec against one
// bookmaker account, with normalized decimal odds and a rounded stake.
type Leg struct {
	AccountID  string
	Provider   string
	Selection  string
	MarketType MarketType
	Handicap   float64
	Odds       float64 // decimal
	Stake      float64
}

// Tier is a stake-size bracket resolved from the league.
type Tier struct {
	Name      string
	Label     string
	BetAmount float64
	Priority  int
}

// Opportunity is a validated arbitrage opportunity produced by the evaluator.
// ProfitPct is always the realized figure recomputed from the rounded stakes,
// never stored independently of the odds that produced it. The two legs always
// reference distinct accounts.
type Opportunity struct {
	ID          string
	MatchID     string
	MatchName   string
	League      string
	MarketType  MarketType
	MatchStatus MatchStatus
	MatchMinute int
	LegA        Leg
	LegB        Leg
	Tier        Tier
	TotalStake  float64
	ProfitPct   float64
	Profit      float64
	Status      OpportunityStatus
	DetectedAt  time.Time
	EvaluatedAt time.Time
}

// ValueLeg returns the higher-odds leg, which the execution protocol always
// places first. Ties go to LegA so the ordering is deterministic.
func (o Opportunity) ValueLeg() Leg {
	if o.LegB.Odds > o.LegA.Odds {
		return o.LegB
	}
	return o.LegA
}

// HedgeLeg returns the lower-odds leg, placed second.
func (o Opportunity) HedgeLeg() Leg {
	if o.LegB.Odds > o.LegA.Odds {
		return o.LegA
	}
	return o.LegB
}

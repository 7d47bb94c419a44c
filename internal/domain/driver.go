package domain

import "context"

// LegSpec is the bet a SiteDriver is asked to place: the opportunity leg plus
// the match context a bet slip needs.
type LegSpec struct {
	OpportunityID string
	MatchID       string
	MatchName     string
	Selection     string
	MarketType    MarketType
	Handicap      float64
	Odds          float64
	Stake         float64
}

// BetResult is the bookmaker's answer to a placement attempt. Status may be
// non-terminal (pending) when the bookmaker queues the ticket; the coordinator
// then polls until the acceptance bound expires.
type BetResult struct {
	TicketID    string
	Status      LegStatus
	ErrorReason string
}

// SiteDriver is the injected capability that actually operates a bookmaker
// account. Its browser/DOM mechanics are entirely outside this core.
type SiteDriver interface {
	// Login authenticates the account, optionally through the given proxy,
	// and returns the opaque session state blob.
	Login(ctx context.Context, creds Credentials, proxy *ProxyEndpoint) ([]byte, error)

	// PlaceBet submits one leg using an authenticated session.
	PlaceBet(ctx context.Context, sess *Session, leg LegSpec) (BetResult, error)

	// GetBalance returns the account's current balance.
	GetBalance(ctx context.Context, sess *Session) (float64, error)
}

// BetStatusChecker is optional. When a SiteDriver implements it, the
// coordinator polls CheckBet to resolve a non-terminal placement status
// instead of trusting the initial BetResult.
type BetStatusChecker interface {
	CheckBet(ctx context.Context, sess *Session, ticketID string) (LegStatus, error)
}

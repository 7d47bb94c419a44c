package domain

import "time"

// ExecStatus is the overall state of a two-leg execution. Aborted, partial,
// completed, and failed are terminal; no transition leaves a terminal state.
type ExecStatus string

const (
	ExecPending   ExecStatus = "pending"
	ExecExecuting ExecStatus = "executing"
	ExecAborted   ExecStatus = "aborted"   // leg 1 rejected, no exposure
	ExecPartial   ExecStatus = "partial"   // leg 1 placed, leg 2 failed: unhedged
	ExecCompleted ExecStatus = "completed" // both legs placed
	ExecFailed    ExecStatus = "failed"    // failed before any leg was placed
)

// Terminal reports whether the status admits no further transitions.
func (s ExecStatus) Terminal() bool {
	switch s {
	case ExecAborted, ExecPartial, ExecCompleted, ExecFailed:
		return true
	}
	return false
}

// LegStatus is the bookmaker-side state of one placed bet.
type LegStatus string

const (
	LegPending  LegStatus = "pending"
	LegAccepted LegStatus = "accepted"
	LegRunning  LegStatus = "running" // accepted but still subject to settlement checks
	LegRejected LegStatus = "rejected"
	LegError    LegStatus = "error"
)

// Terminal reports whether the bookmaker has given a final answer for the bet.
func (s LegStatus) Terminal() bool {
	switch s {
	case LegAccepted, LegRunning, LegRejected, LegError:
		return true
	}
	return false
}

// Placed reports whether the bet produced real-money exposure.
func (s LegStatus) Placed() bool {
	return s == LegAccepted || s == LegRunning
}

// LegRole distinguishes the value leg (placed first) from the hedge leg.
type LegRole string

const (
	RoleValue LegRole = "value"
	RoleHedge LegRole = "hedge"
)

// LegAttempt records one attempt to place one leg, whatever the outcome.
type LegAttempt struct {
	Role            LegRole
	AccountID       string
	Provider        string
	Selection       string
	MarketType      MarketType
	Handicap        float64
	Odds            float64
	Stake           float64
	TicketID        string
	Status          LegStatus
	ErrorReason     string
	PlacedAt        time.Time
	StatusUpdatedAt time.Time
}

// ExecutionRecord is the audit trail of one execution attempt for one
// opportunity. It is created when execution begins, mutated only by the
// coordinator, and immutable once Status is terminal.
type ExecutionRecord struct {
	ID                   string
	OpportunityID        string
	Legs                 []LegAttempt // value leg first
	Status               ExecStatus
	RequiresIntervention bool
	FailureReason        string
	StartedAt            time.Time
	CompletedAt          *time.Time
}

// ExecutionStats aggregates execution outcomes for reporting.
type ExecutionStats struct {
	Total          int64
	Completed      int64
	Partial        int64
	Aborted        int64
	Failed         int64
	Interventions  int64
	TotalStaked    float64
	ExpectedProfit float64
}

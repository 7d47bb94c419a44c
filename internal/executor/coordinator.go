// Package executor drives the two-leg execution protocol: value leg first,
// settle, hedge leg, with every attempt recorded and every terminal state
// persisted before the coordinator moves on.
package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/events"
	"github.com/aryasaputra/surebot/internal/session"
)

// Timing bounds the protocol's waits.
type Timing struct {
	// AcceptWait is the longest the coordinator waits for a bookmaker to
	// resolve a pending ticket.
	AcceptWait time.Duration
	// PollInterval is the pause between acceptance polls.
	PollInterval time.Duration
	// SettleDelay is the pause between a placed value leg and the hedge leg,
	// letting the first bookmaker register the bet.
	SettleDelay time.Duration
}

// DefaultTiming matches the protocol's standard bounds.
func DefaultTiming() Timing {
	return Timing{
		AcceptWait:   30 * time.Second,
		PollInterval: time.Second,
		SettleDelay:  500 * time.Millisecond,
	}
}

// Coordinator executes one opportunity at a time through the sequential
// two-leg protocol. A partial outcome is flagged for human intervention and
// never retried automatically: retrying the hedge against moved odds can
// double the exposure it is meant to cover.
type Coordinator struct {
	timing    Timing
	sessions  *session.Pool
	drivers   map[string]domain.SiteDriver
	oppStore  domain.OpportunityStore
	execStore domain.ExecutionStore
	audit     domain.AuditStore
	emitter   *events.Emitter
	limiter   domain.RateLimiter
	paper     bool
	logger    *slog.Logger

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// NewCoordinator creates a Coordinator. Stores and audit may be nil; drivers
// is keyed by provider name. paper short-circuits bet placement with
// synthetic accepted tickets.
func NewCoordinator(
	timing Timing,
	sessions *session.Pool,
	drivers map[string]domain.SiteDriver,
	oppStore domain.OpportunityStore,
	execStore domain.ExecutionStore,
	audit domain.AuditStore,
	emitter *events.Emitter,
	limiter domain.RateLimiter,
	paper bool,
	logger *slog.Logger,
) *Coordinator {
	if timing.AcceptWait <= 0 {
		timing = DefaultTiming()
	}
	return &Coordinator{
		timing:    timing,
		sessions:  sessions,
		drivers:   drivers,
		oppStore:  oppStore,
		execStore: execStore,
		audit:     audit,
		emitter:   emitter,
		limiter:   limiter,
		paper:     paper,
		logger:    logger.With(slog.String("component", "coordinator")),
		now:       time.Now,
		sleep:     sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}

// Execute runs the full protocol for one opportunity and returns the terminal
// execution record. The returned error covers infrastructure failures only;
// a rejected or partial execution is a recorded outcome, not an error.
func (c *Coordinator) Execute(ctx context.Context, opp domain.Opportunity) (domain.ExecutionRecord, error) {
	log := c.logger.With(
		slog.String("opp_id", opp.ID),
		slog.String("match", opp.MatchName),
	)

	rec := domain.ExecutionRecord{
		ID:            uuid.New().String(),
		OpportunityID: opp.ID,
		Status:        domain.ExecPending,
		StartedAt:     c.now().UTC(),
	}
	if c.execStore != nil {
		if err := c.execStore.Create(ctx, rec); err != nil {
			return rec, fmt.Errorf("executor: create record: %w", err)
		}
	}

	rec.Status = domain.ExecExecuting
	if c.execStore != nil {
		// Persisted before any leg goes out: a crash mid-protocol must never
		// leave a stored record claiming the execution is still pending.
		if err := c.execStore.MarkExecuting(ctx, rec.ID); err != nil {
			return rec, fmt.Errorf("executor: mark executing: %w", err)
		}
	}
	c.setOppStatus(ctx, opp.ID, domain.OppExecuting)
	log.Info("execution started", slog.String("execution_id", rec.ID))

	// Leg 1: the value leg. Its odds move first, so it goes first.
	value := c.placeLeg(ctx, rec.ID, domain.RoleValue, opp, opp.ValueLeg())
	c.recordLeg(ctx, &rec, value)

	if !value.Status.Placed() {
		rec.FailureReason = fmt.Sprintf("value leg %s: %s", value.Status, value.ErrorReason)
		status := domain.ExecAborted
		if value.Status == domain.LegError && value.TicketID == "" && value.PlacedAt.IsZero() {
			// Nothing ever reached the bookmaker.
			status = domain.ExecFailed
		}
		return c.finish(ctx, rec, opp, status, false, log)
	}

	if err := c.sleep(ctx, c.timing.SettleDelay); err != nil {
		// Shutdown between legs leaves real exposure on leg 1.
		rec.FailureReason = "cancelled between legs"
		return c.finish(ctx, rec, opp, domain.ExecPartial, true, log)
	}

	// Leg 2: the hedge. From here on a failure means unhedged exposure.
	hedge := c.placeLeg(ctx, rec.ID, domain.RoleHedge, opp, opp.HedgeLeg())
	c.recordLeg(ctx, &rec, hedge)

	if !hedge.Status.Placed() {
		rec.FailureReason = fmt.Sprintf("hedge leg %s: %s", hedge.Status, hedge.ErrorReason)
		return c.finish(ctx, rec, opp, domain.ExecPartial, true, log)
	}

	return c.finish(ctx, rec, opp, domain.ExecCompleted, false, log)
}

// placeLeg acquires the account session, submits the bet, and resolves a
// pending ticket by polling when the driver supports status checks. It never
// returns an error: every outcome is a LegAttempt.
func (c *Coordinator) placeLeg(ctx context.Context, execID string, role domain.LegRole, opp domain.Opportunity, leg domain.Leg) domain.LegAttempt {
	attempt := domain.LegAttempt{
		Role:       role,
		AccountID:  leg.AccountID,
		Provider:   leg.Provider,
		Selection:  leg.Selection,
		MarketType: leg.MarketType,
		Handicap:   leg.Handicap,
		Odds:       leg.Odds,
		Stake:      leg.Stake,
		Status:     domain.LegError,
	}
	fail := func(reason string) domain.LegAttempt {
		attempt.ErrorReason = reason
		attempt.StatusUpdatedAt = c.now().UTC()
		return attempt
	}

	if c.paper {
		attempt.TicketID = "paper-" + uuid.New().String()
		attempt.Status = domain.LegAccepted
		attempt.PlacedAt = c.now().UTC()
		attempt.StatusUpdatedAt = attempt.PlacedAt
		return attempt
	}

	driver, ok := c.drivers[leg.Provider]
	if !ok {
		return fail("no driver for provider " + leg.Provider)
	}

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx, "place:"+leg.Provider); err != nil {
			return fail("rate limit: " + err.Error())
		}
	}

	lease, err := c.sessions.Acquire(ctx, leg.AccountID)
	if err != nil {
		return fail("session: " + err.Error())
	}
	defer lease.Release()

	spec := domain.LegSpec{
		OpportunityID: opp.ID,
		MatchID:       opp.MatchID,
		MatchName:     opp.MatchName,
		Selection:     leg.Selection,
		MarketType:    leg.MarketType,
		Handicap:      leg.Handicap,
		Odds:          leg.Odds,
		Stake:         leg.Stake,
	}

	result, err := driver.PlaceBet(ctx, lease.Session(), spec)
	if errors.Is(err, domain.ErrSessionInvalid) {
		// One retry on a fresh login. The invalidated lease is released
		// inside Invalidate; re-acquire under the same exclusivity.
		lease.Invalidate(ctx)
		lease, err = c.sessions.Acquire(ctx, leg.AccountID)
		if err != nil {
			return fail("session relogin: " + err.Error())
		}
		defer lease.Release()
		result, err = driver.PlaceBet(ctx, lease.Session(), spec)
	}
	if err != nil {
		// The submission reached the bookmaker before failing; do not treat
		// this as if nothing was attempted.
		attempt.PlacedAt = c.now().UTC()
		return fail("place bet: " + err.Error())
	}

	attempt.TicketID = result.TicketID
	attempt.Status = result.Status
	attempt.ErrorReason = result.ErrorReason
	attempt.PlacedAt = c.now().UTC()
	attempt.StatusUpdatedAt = attempt.PlacedAt

	if !attempt.Status.Terminal() {
		attempt.Status, attempt.ErrorReason = c.awaitAcceptance(ctx, driver, lease.Session(), result.TicketID)
		attempt.StatusUpdatedAt = c.now().UTC()
	}
	return attempt
}

// awaitAcceptance polls a pending ticket until the bookmaker answers or the
// acceptance bound expires. A driver without status checks, or a timed-out
// wait, resolves to rejected: unconfirmed exposure is treated as none for
// leg 1 and as an intervention case for leg 2 by the caller.
func (c *Coordinator) awaitAcceptance(ctx context.Context, driver domain.SiteDriver, sess *domain.Session, ticketID string) (domain.LegStatus, string) {
	checker, ok := driver.(domain.BetStatusChecker)
	if !ok {
		return domain.LegRejected, "ticket pending and driver cannot check status"
	}

	deadline := c.now().Add(c.timing.AcceptWait)
	for c.now().Before(deadline) {
		if err := c.sleep(ctx, c.timing.PollInterval); err != nil {
			return domain.LegRejected, "cancelled while awaiting acceptance"
		}
		status, err := checker.CheckBet(ctx, sess, ticketID)
		if err != nil {
			c.logger.Warn("bet status check failed",
				slog.String("ticket_id", ticketID),
				slog.String("error", err.Error()))
			continue
		}
		if status.Terminal() {
			return status, ""
		}
	}
	return domain.LegRejected, fmt.Sprintf("acceptance wait %s expired", c.timing.AcceptWait)
}

func (c *Coordinator) recordLeg(ctx context.Context, rec *domain.ExecutionRecord, leg domain.LegAttempt) {
	rec.Legs = append(rec.Legs, leg)
	if c.execStore != nil {
		if err := c.execStore.RecordLeg(ctx, rec.ID, leg); err != nil {
			c.logger.Error("persist leg attempt",
				slog.String("execution_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}
	c.emitter.Emit(ctx, domain.EventLegStatusChanged, map[string]any{
		"execution_id": rec.ID,
		"role":         leg.Role,
		"account_id":   leg.AccountID,
		"status":       leg.Status,
		"ticket_id":    leg.TicketID,
		"reason":       leg.ErrorReason,
	})
}

// finish stamps the terminal state, persists it, and emits the completion
// event. Persistence failures are logged loudly but cannot un-place bets, so
// the record is still returned.
func (c *Coordinator) finish(ctx context.Context, rec domain.ExecutionRecord, opp domain.Opportunity, status domain.ExecStatus, intervention bool, log *slog.Logger) (domain.ExecutionRecord, error) {
	now := c.now().UTC()
	rec.Status = status
	rec.RequiresIntervention = intervention
	rec.CompletedAt = &now

	if c.execStore != nil {
		if err := c.execStore.Complete(ctx, rec); err != nil {
			log.Error("persist execution outcome",
				slog.String("execution_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}
	c.setOppStatus(ctx, opp.ID, oppStatusFor(status))

	if c.audit != nil {
		_ = c.audit.Log(ctx, "execution_"+string(status), map[string]any{
			"execution_id":  rec.ID,
			"opp_id":        opp.ID,
			"intervention":  intervention,
			"failure":       rec.FailureReason,
			"total_stake":   opp.TotalStake,
			"profit_pct":    opp.ProfitPct,
		})
	}
	c.emitter.Emit(ctx, domain.EventExecutionCompleted, map[string]any{
		"execution_id":          rec.ID,
		"opportunity_id":        opp.ID,
		"match":                 opp.MatchName,
		"status":                status,
		"requires_intervention": intervention,
		"profit":                opp.Profit,
		"reason":                rec.FailureReason,
	})

	lvl := slog.LevelInfo
	if intervention {
		lvl = slog.LevelError
	}
	log.Log(ctx, lvl, "execution finished",
		slog.String("execution_id", rec.ID),
		slog.String("status", string(status)),
		slog.Bool("requires_intervention", intervention),
		slog.String("reason", rec.FailureReason),
	)
	return rec, nil
}

func (c *Coordinator) setOppStatus(ctx context.Context, id string, status domain.OpportunityStatus) {
	if c.oppStore == nil {
		return
	}
	if err := c.oppStore.UpdateStatus(ctx, id, status); err != nil {
		c.logger.Warn("persist opportunity status",
			slog.String("opp_id", id),
			slog.String("status", string(status)),
			slog.String("error", err.Error()))
	}
}

func oppStatusFor(s domain.ExecStatus) domain.OpportunityStatus {
	switch s {
	case domain.ExecCompleted:
		return domain.OppCompleted
	case domain.ExecPartial:
		return domain.OppPartial
	case domain.ExecAborted:
		return domain.OppAborted
	default:
		return domain.OppFailed
	}
}

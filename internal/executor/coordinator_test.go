package executor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/arbitrage"
	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/session"
)

func newScreenEvaluator() *arbitrage.Evaluator {
	return arbitrage.NewEvaluator(arbitrage.Policy{
		MinProfitPct: 1,
		MaxProfitPct: 10,
		MaxMinuteHT:  40,
		MaxMinuteFT:  85,
		MatchFilter:  arbitrage.FilterAll,
	})
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type placeOutcome struct {
	res domain.BetResult
	err error
}

// scriptDriver serves scripted PlaceBet outcomes in order. It also satisfies
// the login path so the same instance backs the session pool.
type scriptDriver struct {
	mu       sync.Mutex
	outcomes []placeOutcome
	places   int
}

func (d *scriptDriver) Login(context.Context, domain.Credentials, *domain.ProxyEndpoint) ([]byte, error) {
	return []byte("state"), nil
}

func (d *scriptDriver) GetBalance(context.Context, *domain.Session) (float64, error) {
	return 1000, nil
}

func (d *scriptDriver) PlaceBet(context.Context, *domain.Session, domain.LegSpec) (domain.BetResult, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.places++
	if len(d.outcomes) == 0 {
		return domain.BetResult{TicketID: "t", Status: domain.LegAccepted}, nil
	}
	out := d.outcomes[0]
	d.outcomes = d.outcomes[1:]
	return out.res, out.err
}

// checkerDriver adds bet status polling on top of scriptDriver.
type checkerDriver struct {
	scriptDriver
	statuses []domain.LegStatus
	checks   int
}

func (d *checkerDriver) CheckBet(context.Context, *domain.Session, string) (domain.LegStatus, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.checks++
	if len(d.statuses) == 0 {
		return domain.LegPending, nil
	}
	s := d.statuses[0]
	d.statuses = d.statuses[1:]
	return s, nil
}

type memCreds struct{}

func (memCreds) Lookup(accountID string) (domain.Credentials, error) {
	provider := "ibc"
	if accountID == "acct-cmd" {
		provider = "cmd"
	}
	return domain.Credentials{AccountID: accountID, Provider: provider}, nil
}

type oppStatusStore struct {
	mu       sync.Mutex
	statuses []domain.OpportunityStatus
}

func (s *oppStatusStore) Insert(context.Context, domain.Opportunity) error { return nil }

func (s *oppStatusStore) UpdateStatus(_ context.Context, _ string, st domain.OpportunityStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses = append(s.statuses, st)
	return nil
}

func (s *oppStatusStore) GetByID(context.Context, string) (domain.Opportunity, error) {
	return domain.Opportunity{}, domain.ErrNotFound
}

func (s *oppStatusStore) ListByStatus(context.Context, domain.OpportunityStatus, domain.ListOpts) ([]domain.Opportunity, error) {
	return nil, nil
}

func (s *oppStatusStore) last() domain.OpportunityStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.statuses) == 0 {
		return ""
	}
	return s.statuses[len(s.statuses)-1]
}

type memExecStore struct {
	mu        sync.Mutex
	created   []domain.ExecutionRecord
	executing []string
	legs      []domain.LegAttempt
	final     []domain.ExecutionRecord
}

func (s *memExecStore) Create(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.created = append(s.created, rec)
	return nil
}

func (s *memExecStore) MarkExecuting(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.legs) > 0 {
		return errors.New("executing stamp arrived after a leg attempt")
	}
	s.executing = append(s.executing, id)
	return nil
}

func (s *memExecStore) RecordLeg(_ context.Context, _ string, leg domain.LegAttempt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.legs = append(s.legs, leg)
	return nil
}

func (s *memExecStore) Complete(_ context.Context, rec domain.ExecutionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.final = append(s.final, rec)
	return nil
}

func (s *memExecStore) GetByID(context.Context, string) (domain.ExecutionRecord, error) {
	return domain.ExecutionRecord{}, domain.ErrNotFound
}

func (s *memExecStore) ListRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}

func (s *memExecStore) ListInterventions(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}

func (s *memExecStore) Stats(context.Context, time.Time) (domain.ExecutionStats, error) {
	return domain.ExecutionStats{}, nil
}

func (s *memExecStore) ListTerminalBefore(context.Context, time.Time, time.Time, string, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}

func (s *memExecStore) DeleteTerminalBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func testOpportunity() domain.Opportunity {
	return domain.Opportunity{
		ID:        "opp-1",
		MatchID:   "m1",
		MatchName: "Arsenal vs Chelsea",
		LegA: domain.Leg{
			AccountID: "acct-ibc", Provider: "ibc", Selection: "home",
			MarketType: domain.MarketFTHandicap, Odds: 2.10, Stake: 495,
		},
		LegB: domain.Leg{
			AccountID: "acct-cmd", Provider: "cmd", Selection: "away",
			MarketType: domain.MarketFTHandicap, Odds: 2.05, Stake: 505,
		},
		TotalStake: 1000,
		ProfitPct:  3.53,
		Profit:     35.25,
		Status:     domain.OppPending,
		DetectedAt: time.Now().UTC(),
	}
}

func newTestCoordinator(t *testing.T, value, hedge domain.SiteDriver, paper bool) (*Coordinator, *memExecStore, *oppStatusStore) {
	t.Helper()
	drivers := map[string]domain.SiteDriver{"ibc": value, "cmd": hedge}
	pool := session.NewPool(
		session.Options{Validity: 24 * time.Hour},
		drivers, memCreds{}, nil, nil, nil, nil,
		testLogger(),
	)
	execStore := &memExecStore{}
	oppStore := &oppStatusStore{}
	c := NewCoordinator(
		Timing{AcceptWait: 5 * time.Second, PollInterval: time.Second, SettleDelay: 500 * time.Millisecond},
		pool, drivers, oppStore, execStore, nil, nil, nil, paper,
		testLogger(),
	)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c, execStore, oppStore
}

func TestExecuteCompleted(t *testing.T) {
	value := &scriptDriver{outcomes: []placeOutcome{{res: domain.BetResult{TicketID: "v1", Status: domain.LegAccepted}}}}
	hedge := &scriptDriver{outcomes: []placeOutcome{{res: domain.BetResult{TicketID: "h1", Status: domain.LegRunning}}}}
	c, execStore, oppStore := newTestCoordinator(t, value, hedge, false)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecCompleted, rec.Status)
	assert.False(t, rec.RequiresIntervention)
	require.NotNil(t, rec.CompletedAt)
	require.Len(t, rec.Legs, 2)
	assert.Equal(t, domain.RoleValue, rec.Legs[0].Role)
	assert.Equal(t, 2.10, rec.Legs[0].Odds)
	assert.Equal(t, domain.RoleHedge, rec.Legs[1].Role)
	assert.Equal(t, "v1", rec.Legs[0].TicketID)

	assert.Len(t, execStore.legs, 2)
	assert.Equal(t, domain.OppCompleted, oppStore.last())
}

func TestExecutePersistsExecutingBeforeLegs(t *testing.T) {
	value := &scriptDriver{}
	hedge := &scriptDriver{}
	c, execStore, _ := newTestCoordinator(t, value, hedge, false)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	// The header is created pending, then stamped executing in the store
	// before the first leg goes out. A crash mid-protocol must leave a
	// record that admits the protocol was underway.
	require.Len(t, execStore.created, 1)
	assert.Equal(t, domain.ExecPending, execStore.created[0].Status)
	require.Len(t, execStore.executing, 1)
	assert.Equal(t, rec.ID, execStore.executing[0])
}

func TestExecuteAbortedWhenValueLegRejected(t *testing.T) {
	value := &scriptDriver{outcomes: []placeOutcome{
		{res: domain.BetResult{Status: domain.LegRejected, ErrorReason: "odds changed"}},
	}}
	hedge := &scriptDriver{}
	c, execStore, oppStore := newTestCoordinator(t, value, hedge, false)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecAborted, rec.Status)
	assert.False(t, rec.RequiresIntervention)
	require.Len(t, rec.Legs, 1)
	assert.Equal(t, domain.LegRejected, rec.Legs[0].Status)

	// The hedge leg must never reach its bookmaker.
	assert.Equal(t, 0, hedge.places)
	assert.Equal(t, domain.OppAborted, oppStore.last())
	require.Len(t, execStore.final, 1)
	assert.Contains(t, execStore.final[0].FailureReason, "value leg")
}

func TestExecutePartialWhenHedgeFails(t *testing.T) {
	value := &scriptDriver{outcomes: []placeOutcome{{res: domain.BetResult{TicketID: "v1", Status: domain.LegAccepted}}}}
	hedge := &scriptDriver{outcomes: []placeOutcome{
		{res: domain.BetResult{Status: domain.LegRejected, ErrorReason: "stake over limit"}},
	}}
	c, _, oppStore := newTestCoordinator(t, value, hedge, false)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecPartial, rec.Status)
	assert.True(t, rec.RequiresIntervention)
	assert.Contains(t, rec.FailureReason, "hedge leg")
	require.Len(t, rec.Legs, 2)
	assert.Equal(t, domain.OppPartial, oppStore.last())
}

func TestExecuteFailedWhenNoDriver(t *testing.T) {
	value := &scriptDriver{}
	c, _, oppStore := newTestCoordinator(t, value, value, false)
	opp := testOpportunity()
	opp.LegA.Provider = "unknown"

	rec, err := c.Execute(context.Background(), opp)
	require.NoError(t, err)
	assert.Equal(t, domain.ExecFailed, rec.Status)
	assert.Equal(t, domain.OppFailed, oppStore.last())
}

func TestExecutePollsPendingTicket(t *testing.T) {
	value := &checkerDriver{
		scriptDriver: scriptDriver{outcomes: []placeOutcome{{res: domain.BetResult{TicketID: "v1", Status: domain.LegPending}}}},
		statuses:     []domain.LegStatus{domain.LegPending, domain.LegAccepted},
	}
	hedge := &scriptDriver{}
	c, _, _ := newTestCoordinator(t, value, hedge, false)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecCompleted, rec.Status)
	assert.Equal(t, domain.LegAccepted, rec.Legs[0].Status)
	assert.Equal(t, 2, value.checks)
}

func TestExecutePendingWithoutCheckerAborts(t *testing.T) {
	value := &scriptDriver{outcomes: []placeOutcome{{res: domain.BetResult{TicketID: "v1", Status: domain.LegPending}}}}
	hedge := &scriptDriver{}
	c, _, _ := newTestCoordinator(t, value, hedge, false)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecAborted, rec.Status)
	assert.Equal(t, 0, hedge.places)
}

func TestExecuteRetriesOnInvalidSession(t *testing.T) {
	value := &scriptDriver{outcomes: []placeOutcome{
		{err: domain.ErrSessionInvalid},
		{res: domain.BetResult{TicketID: "v2", Status: domain.LegAccepted}},
	}}
	hedge := &scriptDriver{}
	c, _, _ := newTestCoordinator(t, value, hedge, false)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecCompleted, rec.Status)
	assert.Equal(t, 2, value.places)
}

func TestExecutePaperMode(t *testing.T) {
	value := &scriptDriver{}
	hedge := &scriptDriver{}
	c, _, _ := newTestCoordinator(t, value, hedge, true)

	rec, err := c.Execute(context.Background(), testOpportunity())
	require.NoError(t, err)

	assert.Equal(t, domain.ExecCompleted, rec.Status)
	assert.Equal(t, 0, value.places)
	assert.Equal(t, 0, hedge.places)
	assert.Contains(t, rec.Legs[0].TicketID, "paper-")
}

func TestDedupFingerprint(t *testing.T) {
	d := NewDedup(time.Minute)
	opp := testOpportunity()

	assert.False(t, d.IsDuplicate(opp))
	assert.True(t, d.IsDuplicate(opp))

	// A different detection of the same edge is still a duplicate.
	again := testOpportunity()
	again.ID = "opp-2"
	assert.True(t, d.IsDuplicate(again))

	other := testOpportunity()
	other.MatchID = "m2"
	assert.False(t, d.IsDuplicate(other))
}

func TestRunnerScreensBeforeExecute(t *testing.T) {
	value := &scriptDriver{outcomes: []placeOutcome{{err: errors.New("should not be called")}}}
	c, execStore, oppStore := newTestCoordinator(t, value, value, false)

	opp := testOpportunity()
	opp.Status = domain.OppExecuting // stale: no longer pending

	r := NewRunner(nil, c, newScreenEvaluator(), oppStore, time.Minute, testLogger())
	r.process(context.Background(), opp)

	assert.Equal(t, 0, value.places)
	assert.Empty(t, execStore.created)
	assert.Equal(t, domain.OppRejected, oppStore.last())
}

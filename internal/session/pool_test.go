package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubDriver struct {
	logins   atomic.Int64
	loginErr error
}

func (d *stubDriver) Login(context.Context, domain.Credentials, *domain.ProxyEndpoint) ([]byte, error) {
	d.logins.Add(1)
	if d.loginErr != nil {
		return nil, d.loginErr
	}
	return []byte(`{"cookie":"abc"}`), nil
}

func (d *stubDriver) PlaceBet(context.Context, *domain.Session, domain.LegSpec) (domain.BetResult, error) {
	return domain.BetResult{}, errors.New("not used")
}

func (d *stubDriver) GetBalance(context.Context, *domain.Session) (float64, error) {
	return 0, errors.New("not used")
}

type mapCreds map[string]domain.Credentials

func (m mapCreds) Lookup(accountID string) (domain.Credentials, error) {
	c, ok := m[accountID]
	if !ok {
		return domain.Credentials{}, domain.ErrNotFound
	}
	return c, nil
}

func newTestPool(d *stubDriver) *Pool {
	creds := mapCreds{
		"acct-1": {AccountID: "acct-1", Provider: "ibc", Username: "u", Password: "p"},
	}
	return NewPool(
		Options{Validity: 24 * time.Hour},
		map[string]domain.SiteDriver{"ibc": d},
		creds,
		nil, nil, nil, nil,
		testLogger(),
	)
}

func TestAcquireReusesSessionWithinValidity(t *testing.T) {
	d := &stubDriver{}
	p := newTestPool(d)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	first := l1.Session().ID
	assert.Equal(t, domain.SessionActive, l1.Session().Status)
	assert.EqualValues(t, 1, l1.Session().UsageCount)
	l1.Release()

	l2, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, first, l2.Session().ID)
	assert.EqualValues(t, 2, l2.Session().UsageCount)
	l2.Release()

	// Two acquires, exactly one login.
	assert.EqualValues(t, 1, d.logins.Load())
}

func TestAcquireExclusivePerAccount(t *testing.T) {
	d := &stubDriver{}
	p := newTestPool(d)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)

	// Second checkout blocks until the first lease is released.
	acquired := make(chan *Lease)
	go func() {
		l, err := p.Acquire(ctx, "acct-1")
		require.NoError(t, err)
		acquired <- l
	}()

	select {
	case <-acquired:
		t.Fatal("second acquire succeeded while lease held")
	case <-time.After(50 * time.Millisecond):
	}

	l1.Release()
	select {
	case l2 := <-acquired:
		l2.Release()
	case <-time.After(time.Second):
		t.Fatal("second acquire never unblocked")
	}
}

func TestAcquireWaitBoundedByContext(t *testing.T) {
	d := &stubDriver{}
	p := newTestPool(d)

	l1, err := p.Acquire(context.Background(), "acct-1")
	require.NoError(t, err)
	defer l1.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err = p.Acquire(ctx, "acct-1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestInvalidateForcesRelogin(t *testing.T) {
	d := &stubDriver{}
	p := newTestPool(d)
	ctx := context.Background()

	l1, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	first := l1.Session().ID
	l1.Invalidate(ctx)

	l2, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	defer l2.Release()

	assert.NotEqual(t, first, l2.Session().ID)
	assert.EqualValues(t, 2, d.logins.Load())
}

func TestExpiredSessionTriggersRelogin(t *testing.T) {
	d := &stubDriver{}
	p := newTestPool(d)
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	l1, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	l1.Release()

	// Past the 24h validity window.
	p.now = func() time.Time { return base.Add(25 * time.Hour) }
	l2, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	defer l2.Release()

	assert.EqualValues(t, 2, d.logins.Load())
}

func TestLoginFailureSurfacesSentinel(t *testing.T) {
	d := &stubDriver{loginErr: errors.New("captcha wall")}
	p := newTestPool(d)

	_, err := p.Acquire(context.Background(), "acct-1")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLoginFailed)
	// One retry: two attempts total.
	assert.EqualValues(t, 2, d.logins.Load())
}

func TestUnknownAccount(t *testing.T) {
	p := newTestPool(&stubDriver{})
	_, err := p.Acquire(context.Background(), "acct-unknown")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestSweepExpiresIdleSessions(t *testing.T) {
	d := &stubDriver{}
	p := newTestPool(d)
	p.opts.MaxIdle = time.Hour
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	p.now = func() time.Time { return base }

	l, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	l.Release()

	// Idle past MaxIdle but inside validity; sweep drops it anyway.
	p.now = func() time.Time { return base.Add(2 * time.Hour) }
	p.sweepOnce(ctx)

	l2, err := p.Acquire(ctx, "acct-1")
	require.NoError(t, err)
	defer l2.Release()
	assert.EqualValues(t, 2, d.logins.Load())
}

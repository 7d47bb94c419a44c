// Package session manages authenticated bookmaker sessions: per-account
// exclusive checkout, reuse inside the validity window, login with proxy
// retry, a cross-process cache mirror, and idle expiry.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/proxy"
)

const (
	// loginLockTTL bounds how long a crashed process can hold the
	// cross-process login lock for an account.
	loginLockTTL = 2 * time.Minute

	// lockRetryDelay is the poll interval while another process logs in.
	lockRetryDelay = 500 * time.Millisecond
)

// Options configures a Pool.
type Options struct {
	// Validity is how long a fresh login stays reusable.
	Validity time.Duration
	// MaxIdle expires sessions unused for this long even when still valid.
	MaxIdle time.Duration
	// SweepInterval is how often the idle sweep runs.
	SweepInterval time.Duration
}

// entry is the per-account checkout slot. The sem channel has capacity one:
// holding the token is holding the account.
type entry struct {
	sem  chan struct{}
	sess *domain.Session
}

// Pool hands out sessions with per-account exclusivity. At most one caller
// holds an account at a time; a second Acquire blocks until release or its
// context expires. Drivers, cache, store, and locks are all optional except
// the driver for any provider actually used.
type Pool struct {
	opts    Options
	drivers map[string]domain.SiteDriver
	creds   domain.CredentialSource
	proxies *proxy.Rotator
	cache   domain.SessionCache
	store   domain.SessionStore
	locks   domain.LockManager
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	entries map[string]*entry
}

// NewPool creates a session pool. drivers is keyed by provider name.
func NewPool(
	opts Options,
	drivers map[string]domain.SiteDriver,
	creds domain.CredentialSource,
	proxies *proxy.Rotator,
	cache domain.SessionCache,
	store domain.SessionStore,
	locks domain.LockManager,
	logger *slog.Logger,
) *Pool {
	if opts.Validity <= 0 {
		opts.Validity = 24 * time.Hour
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	return &Pool{
		opts:    opts,
		drivers: drivers,
		creds:   creds,
		proxies: proxies,
		cache:   cache,
		store:   store,
		locks:   locks,
		logger:  logger.With(slog.String("component", "session")),
		now:     time.Now,
		entries: make(map[string]*entry),
	}
}

// Lease is an exclusive hold on one account's session. Release it exactly
// once; Invalidate releases implicitly.
type Lease struct {
	pool *Pool
	ent  *entry
	sess *domain.Session
	once sync.Once
}

// Session returns the held session.
func (l *Lease) Session() *domain.Session { return l.sess }

// Release returns the account to the pool.
func (l *Lease) Release() {
	l.once.Do(func() { <-l.ent.sem })
}

// Invalidate marks the held session unusable so the next Acquire performs a
// fresh login, then releases the account.
func (l *Lease) Invalidate(ctx context.Context) {
	l.sess.Status = domain.SessionInvalid
	if l.pool.cache != nil {
		_ = l.pool.cache.Delete(ctx, l.sess.AccountID)
	}
	if l.pool.store != nil {
		if err := l.pool.store.UpdateStatus(ctx, l.sess.ID, domain.SessionInvalid); err != nil {
			l.pool.logger.Warn("persist session invalidation",
				slog.String("account_id", l.sess.AccountID),
				slog.String("error", err.Error()))
		}
	}
	l.pool.logger.Info("session invalidated", slog.String("account_id", l.sess.AccountID))
	l.Release()
}

// Acquire checks out the account's session, logging in if no usable session
// exists. It blocks while another caller holds the account; the wait is
// bounded by ctx.
func (p *Pool) Acquire(ctx context.Context, accountID string) (*Lease, error) {
	ent := p.entry(accountID)

	select {
	case ent.sem <- struct{}{}:
	case <-ctx.Done():
		return nil, fmt.Errorf("session: checkout %s: %w", accountID, ctx.Err())
	}

	sess, err := p.ensure(ctx, accountID, ent)
	if err != nil {
		<-ent.sem
		return nil, err
	}

	now := p.now().UTC()
	sess.UsageCount++
	sess.LastUsedAt = now
	if p.cache != nil {
		_ = p.cache.Put(ctx, *sess, time.Until(sess.ExpiresAt))
	}
	return &Lease{pool: p, ent: ent, sess: sess}, nil
}

func (p *Pool) entry(accountID string) *entry {
	p.mu.Lock()
	defer p.mu.Unlock()
	ent, ok := p.entries[accountID]
	if !ok {
		ent = &entry{sem: make(chan struct{}, 1)}
		p.entries[accountID] = ent
	}
	return ent
}

// ensure returns a usable session for the account, reusing the local one,
// adopting a cached one, or logging in. Caller holds the account's semaphore.
func (p *Pool) ensure(ctx context.Context, accountID string, ent *entry) (*domain.Session, error) {
	now := p.now().UTC()
	if ent.sess.Usable(now) {
		return ent.sess, nil
	}

	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, accountID); err == nil && cached.Usable(now) {
			ent.sess = &cached
			p.logger.Info("session adopted from cache", slog.String("account_id", accountID))
			return ent.sess, nil
		}
	}

	sess, err := p.login(ctx, accountID)
	if err != nil {
		return nil, err
	}
	ent.sess = sess
	return sess, nil
}

// login authenticates the account under the cross-process login lock, with
// one proxy retry on failure.
func (p *Pool) login(ctx context.Context, accountID string) (*domain.Session, error) {
	unlock, err := p.acquireLoginLock(ctx, accountID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// Another process may have logged in while we waited on the lock.
	now := p.now().UTC()
	if p.cache != nil {
		if cached, err := p.cache.Get(ctx, accountID); err == nil && cached.Usable(now) {
			return &cached, nil
		}
	}

	creds, err := p.creds.Lookup(accountID)
	if err != nil {
		return nil, fmt.Errorf("session: credentials for %s: %w", accountID, err)
	}
	driver, ok := p.drivers[creds.Provider]
	if !ok {
		return nil, fmt.Errorf("session: no driver for provider %s", creds.Provider)
	}

	state, err := p.loginWithRetry(ctx, driver, creds)
	if err != nil {
		return nil, err
	}

	now = p.now().UTC()
	sess := &domain.Session{
		ID:        uuid.New().String(),
		AccountID: accountID,
		Provider:  creds.Provider,
		State:     state,
		Status:    domain.SessionActive,
		CreatedAt: now,
		ExpiresAt: now.Add(p.opts.Validity),
	}

	if p.store != nil {
		if err := p.store.Upsert(ctx, *sess); err != nil {
			p.logger.Warn("persist session",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()))
		}
	}
	if p.cache != nil {
		_ = p.cache.Put(ctx, *sess, p.opts.Validity)
	}

	p.logger.Info("logged in",
		slog.String("account_id", accountID),
		slog.String("provider", creds.Provider))
	return sess, nil
}

// loginWithRetry tries the login once, and once more with a different proxy
// if the first attempt fails. The failing proxy is marked so rotation skips
// it.
func (p *Pool) loginWithRetry(ctx context.Context, driver domain.SiteDriver, creds domain.Credentials) ([]byte, error) {
	var firstErr error
	for attempt := 0; attempt < 2; attempt++ {
		var ep *domain.ProxyEndpoint
		if p.proxies != nil {
			var err error
			ep, err = p.proxies.Next()
			if err != nil && !errors.Is(err, domain.ErrNoProxy) {
				return nil, err
			}
		}

		start := p.now()
		state, err := driver.Login(ctx, creds, ep)
		if err == nil {
			if p.proxies != nil && ep != nil {
				p.proxies.RecordResponseTime(ep.Address, p.now().Sub(start))
			}
			return state, nil
		}

		if p.proxies != nil && ep != nil {
			p.proxies.MarkFailed(ep.Address)
		}
		p.logger.Warn("login attempt failed",
			slog.String("account_id", creds.AccountID),
			slog.Int("attempt", attempt+1),
			slog.String("error", err.Error()))
		if firstErr == nil {
			firstErr = err
		}
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("session: login %s: %w", creds.AccountID, errors.Join(domain.ErrLoginFailed, firstErr))
}

// acquireLoginLock takes the distributed login lock for the account, polling
// while another process holds it. With no lock manager configured, local
// checkout exclusivity is the only guard.
func (p *Pool) acquireLoginLock(ctx context.Context, accountID string) (func(), error) {
	if p.locks == nil {
		return func() {}, nil
	}
	key := "session:login:" + accountID
	for {
		unlock, err := p.locks.Acquire(ctx, key, loginLockTTL)
		if err == nil {
			return unlock, nil
		}
		if !errors.Is(err, domain.ErrLockHeld) {
			return nil, fmt.Errorf("session: login lock %s: %w", accountID, err)
		}
		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("session: login lock %s: %w", accountID, ctx.Err())
		case <-time.After(lockRetryDelay):
		}
	}
}

// Sweep expires idle and out-of-window sessions in the background until the
// context is cancelled. Held accounts are skipped and picked up next pass.
func (p *Pool) Sweep(ctx context.Context) error {
	ticker := time.NewTicker(p.opts.SweepInterval)
	defer ticker.Stop()

	p.logger.Info("idle sweep started",
		slog.Duration("interval", p.opts.SweepInterval))

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			p.sweepOnce(ctx)
		}
	}
}

func (p *Pool) sweepOnce(ctx context.Context) {
	now := p.now().UTC()

	p.mu.Lock()
	accounts := make(map[string]*entry, len(p.entries))
	for id, ent := range p.entries {
		accounts[id] = ent
	}
	p.mu.Unlock()

	for id, ent := range accounts {
		select {
		case ent.sem <- struct{}{}:
		default:
			continue
		}

		if s := ent.sess; s != nil {
			expired := !now.Before(s.ExpiresAt)
			idle := p.opts.MaxIdle > 0 && !s.LastUsedAt.IsZero() &&
				now.Sub(s.LastUsedAt) > p.opts.MaxIdle
			if expired || idle {
				ent.sess = nil
				if p.cache != nil {
					_ = p.cache.Delete(ctx, id)
				}
				if p.store != nil {
					_ = p.store.UpdateStatus(ctx, s.ID, domain.SessionExpired)
				}
				p.logger.Info("session expired by sweep",
					slog.String("account_id", id),
					slog.Bool("idle", idle))
			}
		}
		<-ent.sem
	}
}

package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aryasaputra/surebot/internal/arbitrage"
	"github.com/aryasaputra/surebot/internal/crypto"
	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/executor"
	"github.com/aryasaputra/surebot/internal/feed"
	"github.com/aryasaputra/surebot/internal/notify"
	"github.com/aryasaputra/surebot/internal/proxy"
	"github.com/aryasaputra/surebot/internal/registry"
	"github.com/aryasaputra/surebot/internal/session"
)

// quoteBuffer sizes the raw-quote channel; a feed burst beyond this applies
// backpressure to the reader rather than dropping quotes.
const quoteBuffer = 256

// oppBuffer sizes the scanner-to-runner opportunity channel.
const oppBuffer = 32

// ExecuteMode runs the full detection and placement pipeline: quote feed,
// scanner, session pool, and the two-leg execution runner.
func (a *App) ExecuteMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting execute mode")

	g, ctx := errgroup.WithContext(ctx)

	evaluator := a.buildEvaluator()
	quoteCh := make(chan domain.RawQuote, quoteBuffer)
	oppCh := make(chan domain.Opportunity, oppBuffer)

	scanner := arbitrage.NewScanner(
		evaluator, quoteCh, oppCh,
		deps.OpportunityStore, deps.AuditStore, deps.Emitter, a.logger,
	)
	g.Go(func() error { return scanner.Run(ctx) })

	if err := a.startFeed(ctx, g, deps, quoteCh); err != nil {
		return fmt.Errorf("execute mode: %w", err)
	}

	pool, err := a.buildSessionPool(deps)
	if err != nil {
		return fmt.Errorf("execute mode: %w", err)
	}
	g.Go(func() error { return pool.Sweep(ctx) })

	coordinator := executor.NewCoordinator(
		executor.Timing{
			AcceptWait:   a.cfg.Execution.AcceptWait.Duration,
			PollInterval: a.cfg.Execution.PollInterval.Duration,
			SettleDelay:  a.cfg.Execution.SettleDelay.Duration,
		},
		pool, a.drivers,
		deps.OpportunityStore, deps.ExecutionStore, deps.AuditStore,
		deps.Emitter, deps.RateLimiter, a.cfg.Paper, a.logger,
	)
	runner := executor.NewRunner(
		oppCh, coordinator, evaluator, deps.OpportunityStore,
		a.cfg.Execution.DedupTTL.Duration, a.logger,
	)
	g.Go(func() error { return runner.Run(ctx) })

	a.startCommon(ctx, g, deps)

	return g.Wait()
}

// MonitorMode runs detection only: quotes are evaluated, persisted, and
// emitted, but nothing is ever placed. The fleet registry listens for worker
// heartbeats so operators can watch browser workers from here.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	g, ctx := errgroup.WithContext(ctx)

	evaluator := a.buildEvaluator()
	quoteCh := make(chan domain.RawQuote, quoteBuffer)
	oppCh := make(chan domain.Opportunity, oppBuffer)

	scanner := arbitrage.NewScanner(
		evaluator, quoteCh, oppCh,
		deps.OpportunityStore, deps.AuditStore, deps.Emitter, a.logger,
	)
	g.Go(func() error { return scanner.Run(ctx) })

	if err := a.startFeed(ctx, g, deps, quoteCh); err != nil {
		return fmt.Errorf("monitor mode: %w", err)
	}

	// Drain accepted opportunities; in monitor mode detection is the product.
	g.Go(func() error {
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case opp, ok := <-oppCh:
				if !ok {
					return nil
				}
				a.logger.InfoContext(ctx, "opportunity detected (monitor only)",
					slog.String("opportunity_id", opp.ID),
					slog.String("match", opp.MatchName),
					slog.Float64("profit_pct", opp.ProfitPct),
				)
			}
		}
	})

	reg := registry.New(a.cfg.Registry.FreshnessWindow.Duration, deps.WorkerStore, a.logger)
	g.Go(func() error { return reg.Listen(ctx, deps.SignalBus) })

	a.startCommon(ctx, g, deps)

	return g.Wait()
}

// FullMode runs everything: detection, execution, the worker fleet registry,
// archival, and notifications.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	g, ctx := errgroup.WithContext(ctx)

	evaluator := a.buildEvaluator()
	quoteCh := make(chan domain.RawQuote, quoteBuffer)
	oppCh := make(chan domain.Opportunity, oppBuffer)

	scanner := arbitrage.NewScanner(
		evaluator, quoteCh, oppCh,
		deps.OpportunityStore, deps.AuditStore, deps.Emitter, a.logger,
	)
	g.Go(func() error { return scanner.Run(ctx) })

	if err := a.startFeed(ctx, g, deps, quoteCh); err != nil {
		return fmt.Errorf("full mode: %w", err)
	}

	pool, err := a.buildSessionPool(deps)
	if err != nil {
		return fmt.Errorf("full mode: %w", err)
	}
	g.Go(func() error { return pool.Sweep(ctx) })

	coordinator := executor.NewCoordinator(
		executor.Timing{
			AcceptWait:   a.cfg.Execution.AcceptWait.Duration,
			PollInterval: a.cfg.Execution.PollInterval.Duration,
			SettleDelay:  a.cfg.Execution.SettleDelay.Duration,
		},
		pool, a.drivers,
		deps.OpportunityStore, deps.ExecutionStore, deps.AuditStore,
		deps.Emitter, deps.RateLimiter, a.cfg.Paper, a.logger,
	)
	runner := executor.NewRunner(
		oppCh, coordinator, evaluator, deps.OpportunityStore,
		a.cfg.Execution.DedupTTL.Duration, a.logger,
	)
	g.Go(func() error { return runner.Run(ctx) })

	reg := registry.New(a.cfg.Registry.FreshnessWindow.Duration, deps.WorkerStore, a.logger)
	g.Go(func() error { return reg.Listen(ctx, deps.SignalBus) })

	a.startCommon(ctx, g, deps)

	return g.Wait()
}

// startCommon adds the goroutines every mode runs: the self heartbeat, the
// notification listener, the stats reporter, and the archive loop when
// enabled. Unresolved interventions from a previous run are re-alerted once
// at startup so a restart never silently buries an unhedged stake.
func (a *App) startCommon(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	g.Go(func() error { return a.heartbeatLoop(ctx, deps) })

	listener := notify.NewListener(deps.SignalBus, deps.Notifier, a.logger)
	g.Go(func() error { return listener.Run(ctx) })

	g.Go(func() error {
		a.realertInterventions(ctx, deps)
		return a.statsLoop(ctx, deps)
	})

	if a.cfg.Archive.Enabled && deps.Archiver != nil {
		g.Go(func() error { return a.archiveLoop(ctx, deps) })
	}
}

// realertInterventions re-notifies any execution still flagged for manual
// intervention, typically left over from before a restart.
func (a *App) realertInterventions(ctx context.Context, deps *Dependencies) {
	recs, err := deps.ExecutionStore.ListInterventions(ctx, 20)
	if err != nil {
		a.logger.WarnContext(ctx, "intervention lookup failed", slog.String("error", err.Error()))
		return
	}
	for _, rec := range recs {
		a.logger.ErrorContext(ctx, "unresolved intervention on record",
			slog.String("execution_id", rec.ID),
			slog.String("opportunity_id", rec.OpportunityID),
			slog.String("reason", rec.FailureReason),
		)
		msg := fmt.Sprintf(
			"Unresolved from a previous run\nexecution: %s\nopportunity: %s\nreason: %s",
			rec.ID, rec.OpportunityID, rec.FailureReason,
		)
		if err := deps.Notifier.NotifyAll(ctx, "MANUAL INTERVENTION STILL OPEN", msg); err != nil {
			a.logger.Warn("intervention re-alert delivery failed",
				slog.String("execution_id", rec.ID),
				slog.String("error", err.Error()))
		}
	}
}

// statsLoop logs a daily-PnL style summary every hour, aggregated since the
// start of the current UTC day.
func (a *App) statsLoop(ctx context.Context, deps *Dependencies) error {
	ticker := time.NewTicker(time.Hour)
	defer ticker.Stop()

	report := func() {
		since := time.Now().UTC().Truncate(24 * time.Hour)
		stats, err := deps.ExecutionStore.Stats(ctx, since)
		if err != nil {
			a.logger.WarnContext(ctx, "execution stats query failed", slog.String("error", err.Error()))
			return
		}
		a.logger.InfoContext(ctx, "daily execution stats",
			slog.Int64("total", stats.Total),
			slog.Int64("completed", stats.Completed),
			slog.Int64("partial", stats.Partial),
			slog.Int64("aborted", stats.Aborted),
			slog.Int64("failed", stats.Failed),
			slog.Int64("interventions", stats.Interventions),
			slog.Float64("total_staked", stats.TotalStaked),
			slog.Float64("expected_profit", stats.ExpectedProfit),
		)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			report()
		}
	}
}

// startFeed starts the configured quote source writing into quoteCh.
func (a *App) startFeed(ctx context.Context, g *errgroup.Group, deps *Dependencies, quoteCh chan<- domain.RawQuote) error {
	switch a.cfg.Feed.Source {
	case "ws":
		wsFeed := feed.NewOddsFeed(a.cfg.Feed.WsURL, a.cfg.Feed.Markets, quoteCh, a.logger)
		g.Go(func() error { return wsFeed.Run(ctx) })
	case "bus":
		busFeed := feed.NewBusFeeder(deps.SignalBus, quoteCh, a.logger)
		g.Go(func() error { return busFeed.Run(ctx) })
	default:
		return fmt.Errorf("unknown feed source %q", a.cfg.Feed.Source)
	}
	return nil
}

// buildEvaluator translates the arbitrage config section into an evaluator
// policy.
func (a *App) buildEvaluator() *arbitrage.Evaluator {
	markets := make([]domain.MarketType, 0, len(a.cfg.Arbitrage.EnabledMarkets))
	for _, m := range a.cfg.Arbitrage.EnabledMarkets {
		markets = append(markets, domain.MarketType(m))
	}
	tiers := make([]domain.Tier, 0, len(a.cfg.Arbitrage.Tiers))
	for _, t := range a.cfg.Arbitrage.Tiers {
		tiers = append(tiers, domain.Tier{
			Name:      t.Name,
			Label:     t.Label,
			BetAmount: t.BetAmount,
			Priority:  t.Priority,
		})
	}

	return arbitrage.NewEvaluator(arbitrage.Policy{
		MinProfitPct:   a.cfg.Arbitrage.MinProfitPct,
		MaxProfitPct:   a.cfg.Arbitrage.MaxProfitPct,
		MaxMinuteHT:    a.cfg.Arbitrage.MaxMinuteHT,
		MaxMinuteFT:    a.cfg.Arbitrage.MaxMinuteFT,
		MatchFilter:    arbitrage.MatchFilter(a.cfg.Arbitrage.MatchFilter),
		EnabledMarkets: markets,
		Tiers:          tiers,
		TierLeagues:    a.cfg.Arbitrage.TierLeagues,
	})
}

// buildSessionPool constructs the session pool from the configured credential
// source and proxy list.
func (a *App) buildSessionPool(deps *Dependencies) (*session.Pool, error) {
	creds, err := a.buildCredentials()
	if err != nil {
		return nil, err
	}

	endpoints := make([]domain.ProxyEndpoint, 0, len(a.cfg.Proxies))
	for _, p := range a.cfg.Proxies {
		endpoints = append(endpoints, domain.ProxyEndpoint{
			Address:  p.Address,
			Username: p.Username,
			Password: p.Password,
		})
	}
	rotator := proxy.NewRotator(endpoints, a.logger)

	pool := session.NewPool(
		session.Options{
			Validity:      a.cfg.Session.Validity.Duration,
			MaxIdle:       a.cfg.Session.MaxIdle.Duration,
			SweepInterval: a.cfg.Session.SweepInterval.Duration,
		},
		a.drivers, creds, rotator,
		deps.SessionCache, deps.SessionStore, deps.LockManager,
		a.logger,
	)
	return pool, nil
}

// buildCredentials resolves the configured credential source: the encrypted
// vault file when set, otherwise inline config entries.
func (a *App) buildCredentials() (domain.CredentialSource, error) {
	if a.cfg.Accounts.VaultPath != "" {
		vault, err := crypto.OpenVault(a.cfg.Accounts.VaultPath, a.cfg.Accounts.VaultPassword)
		if err != nil {
			return nil, fmt.Errorf("open credentials vault: %w", err)
		}
		return vault, nil
	}
	return crypto.NewVault(a.cfg.Accounts.Inline)
}

// heartbeatLoop publishes this process's own heartbeat on the signal bus so
// a monitor-mode peer can track it alongside the browser workers.
func (a *App) heartbeatLoop(ctx context.Context, deps *Dependencies) error {
	id := a.cfg.WorkerID
	if id == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "unknown"
		}
		id = "engine-" + host
	}

	interval := a.cfg.Registry.HeartbeatInterval.Duration
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	beat := func() {
		deps.Emitter.Emit(ctx, domain.EventWorkerHeartbeat, map[string]any{
			"worker_id":    id,
			"type":         "engine",
			"status":       string(domain.WorkerProcessing),
			"current_task": a.cfg.Mode,
		})
	}
	beat()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			beat()
		}
	}
}

// archiveLoop periodically moves terminal executions older than the retention
// window into cold storage and prunes the archived rows.
func (a *App) archiveLoop(ctx context.Context, deps *Dependencies) error {
	interval := a.cfg.Archive.Interval.Duration
	retention := time.Duration(a.cfg.Archive.RetentionDays) * 24 * time.Hour

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	runOnce := func() {
		cutoff := time.Now().UTC().Add(-retention)
		archived, err := deps.Archiver.Archive(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive run failed", slog.String("error", err.Error()))
			return
		}
		if archived == 0 {
			return
		}
		pruned, err := deps.Archiver.Prune(ctx, cutoff)
		if err != nil {
			a.logger.ErrorContext(ctx, "archive prune failed", slog.String("error", err.Error()))
			return
		}
		a.logger.InfoContext(ctx, "archive run finished",
			slog.Int64("archived", archived),
			slog.Int64("pruned", pruned),
			slog.Time("cutoff", cutoff),
		)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			runOnce()
		}
	}
}

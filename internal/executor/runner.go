package executor

import (
	"context"
	"log/slog"
	"time"

	"github.com/aryasaputra/surebot/internal/arbitrage"
	"github.com/aryasaputra/surebot/internal/domain"
)

// Runner consumes ranked opportunities from the scanner and pushes each one
// through the coordinator, strictly one at a time. Before money moves it
// deduplicates the edge and re-screens the opportunity against policy, since
// quotes age between detection and dequeue.
type Runner struct {
	oppCh       <-chan domain.Opportunity
	coordinator *Coordinator
	evaluator   *arbitrage.Evaluator
	oppStore    domain.OpportunityStore
	dedup       *Dedup
	logger      *slog.Logger

	cleanupInterval time.Duration
}

// NewRunner creates a Runner reading from oppCh.
func NewRunner(
	oppCh <-chan domain.Opportunity,
	coordinator *Coordinator,
	evaluator *arbitrage.Evaluator,
	oppStore domain.OpportunityStore,
	dedupTTL time.Duration,
	logger *slog.Logger,
) *Runner {
	if dedupTTL <= 0 {
		dedupTTL = 2 * time.Minute
	}
	return &Runner{
		oppCh:           oppCh,
		coordinator:     coordinator,
		evaluator:       evaluator,
		oppStore:        oppStore,
		dedup:           NewDedup(dedupTTL),
		logger:          logger.With(slog.String("component", "runner")),
		cleanupInterval: 30 * time.Second,
	}
}

// Run processes opportunities until the context is cancelled, then drains
// whatever is already buffered so accepted opportunities are resolved to a
// recorded terminal state rather than silently dropped.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("runner started")
	defer r.logger.Info("runner stopped")

	cleanupTicker := time.NewTicker(r.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			r.drain()
			return ctx.Err()

		case opp, ok := <-r.oppCh:
			if !ok {
				return nil
			}
			r.process(ctx, opp)

		case <-cleanupTicker.C:
			r.dedup.Cleanup()
		}
	}
}

func (r *Runner) process(ctx context.Context, opp domain.Opportunity) {
	log := r.logger.With(
		slog.String("opp_id", opp.ID),
		slog.String("match", opp.MatchName),
	)

	if r.dedup.IsDuplicate(opp) {
		log.Debug("duplicate edge, skipping")
		r.rejectOpp(ctx, opp.ID)
		return
	}

	if d := r.evaluator.Screen(opp); !d.Accept {
		log.Info("pre-execution screen rejected",
			slog.String("reason", d.Reason))
		r.rejectOpp(ctx, opp.ID)
		return
	}

	if _, err := r.coordinator.Execute(ctx, opp); err != nil {
		log.Error("execution infrastructure failure",
			slog.String("error", err.Error()))
	}
}

func (r *Runner) rejectOpp(ctx context.Context, id string) {
	if r.oppStore == nil {
		return
	}
	if err := r.oppStore.UpdateStatus(ctx, id, domain.OppRejected); err != nil {
		r.logger.Warn("persist rejection",
			slog.String("opp_id", id),
			slog.String("error", err.Error()))
	}
}

// drain resolves opportunities already buffered in the channel after
// cancellation, each under a short-lived context so shutdown cannot hang on
// a bookmaker call.
func (r *Runner) drain() {
	for {
		select {
		case opp, ok := <-r.oppCh:
			if !ok {
				return
			}
			r.logger.Warn("draining opportunity after shutdown",
				slog.String("opp_id", opp.ID))
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			r.process(drainCtx, opp)
			cancel()
		default:
			return
		}
	}
}

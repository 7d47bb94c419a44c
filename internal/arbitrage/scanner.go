package arbitrage

import (
	"context"
	"log/slog"
	"sync"

	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/events"
)

// Scanner consumes raw quotes, evaluates them against policy, persists
// accepted opportunities, and hands them to the execution queue in ranked
// order. Rejections are emitted and logged but never surface as errors.
type Scanner struct {
	evaluator *Evaluator
	quoteCh   <-chan domain.RawQuote
	outCh     chan<- domain.Opportunity
	oppStore  domain.OpportunityStore
	audit     domain.AuditStore
	emitter   *events.Emitter
	logger    *slog.Logger

	mu      sync.Mutex
	backlog []domain.Opportunity
	kick    chan struct{}
}

// NewScanner creates a Scanner that reads from quoteCh and writes accepted
// opportunities to outCh. oppStore and audit may be nil in monitor setups.
func NewScanner(
	evaluator *Evaluator,
	quoteCh <-chan domain.RawQuote,
	outCh chan<- domain.Opportunity,
	oppStore domain.OpportunityStore,
	audit domain.AuditStore,
	emitter *events.Emitter,
	logger *slog.Logger,
) *Scanner {
	return &Scanner{
		evaluator: evaluator,
		quoteCh:   quoteCh,
		outCh:     outCh,
		oppStore:  oppStore,
		audit:     audit,
		emitter:   emitter,
		logger:    logger.With(slog.String("component", "scanner")),
		kick:      make(chan struct{}, 1),
	}
}

// Run processes quotes until the context is cancelled. The dispatch loop runs
// alongside so a burst of accepted opportunities is drained best-first
// instead of in arrival order.
func (s *Scanner) Run(ctx context.Context) error {
	s.logger.Info("scanner started")
	defer s.logger.Info("scanner stopped")

	go s.dispatch(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case q, ok := <-s.quoteCh:
			if !ok {
				return nil
			}
			s.process(ctx, q)
		}
	}
}

func (s *Scanner) process(ctx context.Context, q domain.RawQuote) {
	opp, decision := s.evaluator.Analyze(q)

	s.emitter.Emit(ctx, domain.EventOpportunityEvaluated, map[string]any{
		"match":    q.MatchName,
		"market":   q.MarketType,
		"accepted": decision.Accept,
		"reason":   decision.Reason,
		"opp_id":   opp.ID,
	})

	if !decision.Accept {
		s.logger.Debug("quote rejected",
			slog.String("match", q.MatchName),
			slog.String("reason", decision.Reason),
		)
		return
	}

	for _, w := range decision.Warnings {
		s.logger.Warn("opportunity warning",
			slog.String("opp_id", opp.ID),
			slog.String("warning", w),
		)
	}

	if s.oppStore != nil {
		if err := s.oppStore.Insert(ctx, opp); err != nil {
			// Without a durable record there is nothing to audit against;
			// skip rather than execute untracked.
			s.logger.Error("persist opportunity failed, dropping",
				slog.String("opp_id", opp.ID),
				slog.String("error", err.Error()),
			)
			return
		}
	}
	if s.audit != nil {
		_ = s.audit.Log(ctx, "opportunity_accepted", map[string]any{
			"opp_id":     opp.ID,
			"match":      opp.MatchName,
			"profit_pct": opp.ProfitPct,
			"tier":       opp.Tier.Name,
		})
	}

	s.logger.Info("opportunity accepted",
		slog.String("opp_id", opp.ID),
		slog.String("match", opp.MatchName),
		slog.Float64("profit_pct", opp.ProfitPct),
		slog.String("tier", opp.Tier.Name),
	)

	s.mu.Lock()
	s.backlog = append(s.backlog, opp)
	s.mu.Unlock()

	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// dispatch drains the backlog to outCh, always sending the best-ranked
// opportunity currently buffered.
func (s *Scanner) dispatch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.kick:
		}

		for {
			s.mu.Lock()
			if len(s.backlog) == 0 {
				s.mu.Unlock()
				break
			}
			Rank(s.backlog)
			next := s.backlog[0]
			s.backlog = s.backlog[1:]
			s.mu.Unlock()

			select {
			case s.outCh <- next:
			case <-ctx.Done():
				return
			}
		}
	}
}

package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/events"
)

// executionEvent is the payload shape of execution_completed events.
type executionEvent struct {
	ExecutionID          string  `json:"execution_id"`
	OpportunityID        string  `json:"opportunity_id"`
	Match                string  `json:"match"`
	Status               string  `json:"status"`
	RequiresIntervention bool    `json:"requires_intervention"`
	Profit               float64 `json:"profit"`
	Reason               string  `json:"reason"`
}

// opportunityEvent is the payload shape of opportunity_evaluated events.
type opportunityEvent struct {
	Match    string `json:"match"`
	Market   string `json:"market"`
	Accepted bool   `json:"accepted"`
	Reason   string `json:"reason"`
	OppID    string `json:"opp_id"`
}

// Listener consumes execution outcomes from the signal bus and alerts
// operators. Intervention cases bypass the event filter: an unhedged stake
// must always reach a human.
type Listener struct {
	bus      domain.SignalBus
	notifier *Notifier
	logger   *slog.Logger
}

// NewListener creates a Listener over the given bus and notifier.
func NewListener(bus domain.SignalBus, notifier *Notifier, logger *slog.Logger) *Listener {
	return &Listener{
		bus:      bus,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "notify_listener")),
	}
}

// Run consumes execution and opportunity events until the context is
// cancelled.
func (l *Listener) Run(ctx context.Context) error {
	execCh, err := l.bus.Subscribe(ctx, events.Channel(domain.EventExecutionCompleted))
	if err != nil {
		return err
	}
	oppCh, err := l.bus.Subscribe(ctx, events.Channel(domain.EventOpportunityEvaluated))
	if err != nil {
		return err
	}
	l.logger.Info("notify listener started")
	defer l.logger.Info("notify listener stopped")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case data, ok := <-execCh:
			if !ok {
				return nil
			}
			l.handleExecution(ctx, data)
		case data, ok := <-oppCh:
			if !ok {
				return nil
			}
			l.handleOpportunity(ctx, data)
		}
	}
}

// handleOpportunity notifies on accepted opportunities only; rejections are
// routine and stay in the logs.
func (l *Listener) handleOpportunity(ctx context.Context, data []byte) {
	payload, err := decodePayload(data)
	if err != nil {
		l.logger.Warn("bad event envelope", slog.String("error", err.Error()))
		return
	}
	var ev opportunityEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.OppID == "" || !ev.Accepted {
		return
	}

	title := "Opportunity detected"
	msg := fmt.Sprintf("%s\nmarket: %s\nopportunity: %s", ev.Match, ev.Market, ev.OppID)
	if err := l.notifier.Notify(ctx, domain.EventOpportunityEvaluated, title, msg); err != nil {
		l.logger.Warn("notification delivery failed",
			slog.String("opportunity_id", ev.OppID),
			slog.String("error", err.Error()))
	}
}

func (l *Listener) handleExecution(ctx context.Context, data []byte) {
	payload, err := decodePayload(data)
	if err != nil {
		l.logger.Warn("bad event envelope", slog.String("error", err.Error()))
		return
	}
	var ev executionEvent
	if err := json.Unmarshal(payload, &ev); err != nil || ev.ExecutionID == "" {
		return
	}

	if ev.RequiresIntervention {
		title := "MANUAL INTERVENTION REQUIRED"
		msg := fmt.Sprintf(
			"Unhedged exposure on %s\nexecution: %s\nreason: %s\nResolve the open leg by hand; this is never retried automatically.",
			ev.Match, ev.ExecutionID, ev.Reason,
		)
		if err := l.notifier.NotifyAll(ctx, title, msg); err != nil {
			l.logger.Error("intervention alert delivery failed",
				slog.String("execution_id", ev.ExecutionID),
				slog.String("error", err.Error()))
		}
		return
	}

	title := fmt.Sprintf("Execution %s", ev.Status)
	msg := fmt.Sprintf("%s\nexecution: %s\nprofit: %.2f", ev.Match, ev.ExecutionID, ev.Profit)
	if ev.Reason != "" {
		msg += "\nreason: " + ev.Reason
	}
	if err := l.notifier.Notify(ctx, domain.EventExecutionCompleted, title, msg); err != nil {
		l.logger.Warn("notification delivery failed",
			slog.String("execution_id", ev.ExecutionID),
			slog.String("error", err.Error()))
	}
}

// decodePayload unwraps an event envelope and re-marshals its payload for
// typed decoding.
func decodePayload(data []byte) ([]byte, error) {
	evt, err := events.Decode(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(evt.Payload)
}

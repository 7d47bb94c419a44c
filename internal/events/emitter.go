// Package events marshals structured events and publishes them on the signal
// bus, both as ephemeral pub/sub messages and as durable stream entries.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/aryasaputra/surebot/internal/domain"
)

// Channel returns the pub/sub channel for an event type.
func Channel(eventType string) string {
	return "events:" + eventType
}

// Stream is the durable stream all events are appended to.
const Stream = "events"

// Emitter publishes domain events. A nil Emitter is a no-op, so components
// can emit unconditionally.
type Emitter struct {
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewEmitter creates an Emitter over the given bus.
func NewEmitter(bus domain.SignalBus, logger *slog.Logger) *Emitter {
	return &Emitter{
		bus:    bus,
		logger: logger.With(slog.String("component", "events")),
	}
}

// Emit publishes one event. Failures are logged, not propagated: event
// delivery must never block or fail an execution step.
func (e *Emitter) Emit(ctx context.Context, eventType string, payload any) {
	if e == nil || e.bus == nil {
		return
	}
	evt := domain.Event{Type: eventType, At: time.Now().UTC(), Payload: payload}
	data, err := json.Marshal(evt)
	if err != nil {
		e.logger.Error("marshal event", slog.String("type", eventType), slog.String("error", err.Error()))
		return
	}
	if err := e.bus.Publish(ctx, Channel(eventType), data); err != nil {
		e.logger.Warn("publish event", slog.String("type", eventType), slog.String("error", err.Error()))
	}
	if err := e.bus.StreamAppend(ctx, Stream, data); err != nil {
		e.logger.Warn("append event", slog.String("type", eventType), slog.String("error", err.Error()))
	}
}

// Decode unmarshals an event envelope received from the bus.
func Decode(data []byte) (domain.Event, error) {
	var evt domain.Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return domain.Event{}, fmt.Errorf("events: decode: %w", err)
	}
	return evt, nil
}

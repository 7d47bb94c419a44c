// Package registry tracks worker fleet liveness. Workers report heartbeats
// over the signal bus; the registry upserts them and aggregates fleet health
// over a freshness window. Workers are never removed, only aged out of the
// active count, so a crashed worker stays visible until an operator looks.
package registry

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/aryasaputra/surebot/internal/domain"
	"github.com/aryasaputra/surebot/internal/events"
)

// Registry is the in-memory source of truth for worker state, optionally
// mirrored to a WorkerStore for restarts and offline inspection.
type Registry struct {
	window time.Duration
	store  domain.WorkerStore
	logger *slog.Logger
	now    func() time.Time

	mu      sync.RWMutex
	workers map[string]domain.Worker
}

// New creates a Registry with the given freshness window. store may be nil.
func New(window time.Duration, store domain.WorkerStore, logger *slog.Logger) *Registry {
	return &Registry{
		window:  window,
		store:   store,
		logger:  logger.With(slog.String("component", "registry")),
		now:     time.Now,
		workers: make(map[string]domain.Worker),
	}
}

// Heartbeat upserts a worker's state. First sight of a worker ID records its
// FirstSeen; subsequent beats update status, task, and LastHeartbeat.
func (r *Registry) Heartbeat(ctx context.Context, id, workerType string, status domain.WorkerStatus, currentTask string) {
	now := r.now().UTC()

	r.mu.Lock()
	w, ok := r.workers[id]
	if !ok {
		w = domain.Worker{ID: id, Type: workerType, FirstSeen: now}
	}
	w.Type = workerType
	w.Status = status
	w.CurrentTask = currentTask
	w.LastHeartbeat = now
	r.workers[id] = w
	r.mu.Unlock()

	if !ok {
		r.logger.Info("worker registered",
			slog.String("worker_id", id),
			slog.String("type", workerType))
	}

	if r.store != nil {
		if err := r.store.Upsert(ctx, w); err != nil {
			r.logger.Warn("persist worker heartbeat",
				slog.String("worker_id", id),
				slog.String("error", err.Error()))
		}
	}
}

// Get returns a worker by ID.
func (r *Registry) Get(id string) (domain.Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[id]
	return w, ok
}

// List returns all known workers, fresh and stale alike.
func (r *Registry) List() []domain.Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.Worker, 0, len(r.workers))
	for _, w := range r.workers {
		out = append(out, w)
	}
	return out
}

// Aggregate computes fleet health. Only workers whose last heartbeat falls
// inside the freshness window count toward the per-status tallies; the rest
// are reported as stale regardless of their last self-reported status.
func (r *Registry) Aggregate() domain.FleetHealth {
	cutoff := r.now().UTC().Add(-r.window)

	r.mu.RLock()
	defer r.mu.RUnlock()

	var h domain.FleetHealth
	for _, w := range r.workers {
		if w.LastHeartbeat.Before(cutoff) {
			h.Stale++
			continue
		}
		h.Active++
		switch w.Status {
		case domain.WorkerStandby:
			h.Standby++
		case domain.WorkerProcessing:
			h.Processing++
		case domain.WorkerError:
			h.Errored++
		case domain.WorkerCrashed:
			h.Crashed++
		}
	}
	return h
}

// heartbeatPayload is the wire shape workers publish on the heartbeat channel.
type heartbeatPayload struct {
	WorkerID    string `json:"worker_id"`
	Type        string `json:"type"`
	Status      string `json:"status"`
	CurrentTask string `json:"current_task,omitempty"`
}

// Listen consumes heartbeat events from the signal bus until the context is
// cancelled. Malformed payloads are logged and dropped.
func (r *Registry) Listen(ctx context.Context, bus domain.SignalBus) error {
	ch, err := bus.Subscribe(ctx, events.Channel(domain.EventWorkerHeartbeat))
	if err != nil {
		return err
	}
	r.logger.Info("heartbeat listener started")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := events.Decode(msg)
			if err != nil {
				r.logger.Warn("bad heartbeat envelope", slog.String("error", err.Error()))
				continue
			}
			raw, err := json.Marshal(evt.Payload)
			if err != nil {
				continue
			}
			var hb heartbeatPayload
			if err := json.Unmarshal(raw, &hb); err != nil || hb.WorkerID == "" {
				r.logger.Warn("bad heartbeat payload")
				continue
			}
			r.Heartbeat(ctx, hb.WorkerID, hb.Type, domain.WorkerStatus(hb.Status), hb.CurrentTask)
		}
	}
}

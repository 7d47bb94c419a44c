// Package proxy manages the pool of upstream proxies used for bookmaker
// traffic: round-robin rotation, failure tracking with automatic reset, and
// response-time bookkeeping.
package proxy

import (
	"log/slog"
	"sync"
	"time"

	"github.com/aryasaputra/surebot/internal/domain"
)

// Rotator hands out proxies round-robin, skipping endpoints marked failed.
// When every endpoint has failed the pool resets rather than starving
// callers; a pool of dead proxies is indistinguishable from a transient
// network blip and retrying is cheaper than halting.
type Rotator struct {
	logger *slog.Logger

	mu        sync.Mutex
	endpoints []*domain.ProxyEndpoint
	cursor    int
}

// NewRotator creates a Rotator over the configured endpoints. The slice is
// copied; callers cannot mutate pool state from outside.
func NewRotator(endpoints []domain.ProxyEndpoint, logger *slog.Logger) *Rotator {
	pool := make([]*domain.ProxyEndpoint, len(endpoints))
	for i := range endpoints {
		ep := endpoints[i]
		pool[i] = &ep
	}
	return &Rotator{
		endpoints: pool,
		logger:    logger.With(slog.String("component", "proxy")),
	}
}

// Next returns the next usable proxy in rotation order, or domain.ErrNoProxy
// when the pool is empty. If every endpoint is marked failed the failure
// flags are cleared and rotation starts over.
func (r *Rotator) Next() (*domain.ProxyEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.endpoints) == 0 {
		return nil, domain.ErrNoProxy
	}

	for i := 0; i < len(r.endpoints); i++ {
		ep := r.endpoints[r.cursor]
		r.cursor = (r.cursor + 1) % len(r.endpoints)
		if ep.Failed {
			continue
		}
		ep.Requests++
		ep.LastUsedAt = time.Now().UTC()
		return ep, nil
	}

	r.logger.Warn("all proxies failed, resetting pool",
		slog.Int("size", len(r.endpoints)))
	for _, ep := range r.endpoints {
		ep.Failed = false
	}

	ep := r.endpoints[r.cursor]
	r.cursor = (r.cursor + 1) % len(r.endpoints)
	ep.Requests++
	ep.LastUsedAt = time.Now().UTC()
	return ep, nil
}

// MarkFailed flags the endpoint with the given address so rotation skips it.
func (r *Rotator) MarkFailed(address string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ep := range r.endpoints {
		if ep.Address == address {
			ep.Failed = true
			ep.Failures++
			r.logger.Info("proxy marked failed",
				slog.String("address", address),
				slog.Int64("failures", ep.Failures))
			return
		}
	}
}

// RecordResponseTime folds a measured response time into the endpoint's
// running average.
func (r *Rotator) RecordResponseTime(address string, elapsed time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ep := range r.endpoints {
		if ep.Address != address {
			continue
		}
		ms := float64(elapsed.Milliseconds())
		if ep.AvgResponseMs == 0 {
			ep.AvgResponseMs = ms
		} else {
			// Running average weighted by request count.
			n := float64(ep.Requests)
			if n < 1 {
				n = 1
			}
			ep.AvgResponseMs = (ep.AvgResponseMs*(n-1) + ms) / n
		}
		return
	}
}

// Best returns the usable endpoint with the lowest average response time.
// Endpoints that have never been measured sort after measured ones.
func (r *Rotator) Best() (*domain.ProxyEndpoint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *domain.ProxyEndpoint
	for _, ep := range r.endpoints {
		if ep.Failed {
			continue
		}
		if best == nil {
			best = ep
			continue
		}
		switch {
		case best.AvgResponseMs == 0 && ep.AvgResponseMs > 0:
			best = ep
		case ep.AvgResponseMs > 0 && ep.AvgResponseMs < best.AvgResponseMs:
			best = ep
		}
	}
	if best == nil {
		return nil, domain.ErrNoProxy
	}
	best.Requests++
	best.LastUsedAt = time.Now().UTC()
	return best, nil
}

// Snapshot returns a copy of the pool state for status reporting.
func (r *Rotator) Snapshot() []domain.ProxyEndpoint {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.ProxyEndpoint, len(r.endpoints))
	for i, ep := range r.endpoints {
		out[i] = *ep
	}
	return out
}

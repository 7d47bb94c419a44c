package registry

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type captureStore struct {
	upserts []domain.Worker
}

func (c *captureStore) Upsert(_ context.Context, w domain.Worker) error {
	c.upserts = append(c.upserts, w)
	return nil
}

func (c *captureStore) List(context.Context) ([]domain.Worker, error) {
	return c.upserts, nil
}

func TestHeartbeatUpsert(t *testing.T) {
	store := &captureStore{}
	r := New(time.Minute, store, testLogger())
	ctx := context.Background()

	r.Heartbeat(ctx, "w1", "scraper", domain.WorkerStandby, "")

	w, ok := r.Get("w1")
	require.True(t, ok)
	assert.Equal(t, domain.WorkerStandby, w.Status)
	firstSeen := w.FirstSeen
	assert.False(t, firstSeen.IsZero())

	r.Heartbeat(ctx, "w1", "scraper", domain.WorkerProcessing, "match-42")

	w, _ = r.Get("w1")
	assert.Equal(t, domain.WorkerProcessing, w.Status)
	assert.Equal(t, "match-42", w.CurrentTask)
	assert.Equal(t, firstSeen, w.FirstSeen)
	assert.False(t, w.LastHeartbeat.Before(firstSeen))

	// Both beats hit the store.
	assert.Len(t, store.upserts, 2)
}

func TestAggregateFreshnessWindow(t *testing.T) {
	r := New(time.Minute, nil, testLogger())
	ctx := context.Background()

	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.Heartbeat(ctx, "old", "scraper", domain.WorkerStandby, "")

	r.now = func() time.Time { return base.Add(30 * time.Second) }
	r.Heartbeat(ctx, "busy", "executor", domain.WorkerProcessing, "opp-1")
	r.Heartbeat(ctx, "broken", "scraper", domain.WorkerError, "")

	// Two minutes on: "old" fell outside the window, the others are fresh.
	r.now = func() time.Time { return base.Add(80 * time.Second) }
	h := r.Aggregate()

	assert.Equal(t, 2, h.Active)
	assert.Equal(t, 1, h.Processing)
	assert.Equal(t, 1, h.Errored)
	assert.Equal(t, 0, h.Standby)
	assert.Equal(t, 1, h.Stale)

	// Stale workers stay listed.
	assert.Len(t, r.List(), 3)
}

func TestAggregateStaleRegardlessOfStatus(t *testing.T) {
	r := New(time.Minute, nil, testLogger())
	base := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)
	r.now = func() time.Time { return base }
	r.Heartbeat(context.Background(), "w1", "scraper", domain.WorkerProcessing, "task")

	r.now = func() time.Time { return base.Add(5 * time.Minute) }
	h := r.Aggregate()
	assert.Equal(t, 0, h.Active)
	assert.Equal(t, 0, h.Processing)
	assert.Equal(t, 1, h.Stale)
}

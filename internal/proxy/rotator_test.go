package proxy

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/domain"
)

func newTestRotator(addrs ...string) *Rotator {
	eps := make([]domain.ProxyEndpoint, len(addrs))
	for i, a := range addrs {
		eps[i] = domain.ProxyEndpoint{Address: a}
	}
	return NewRotator(eps, slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestNextRoundRobin(t *testing.T) {
	r := newTestRotator("p1:8080", "p2:8080", "p3:8080")

	var got []string
	for i := 0; i < 6; i++ {
		ep, err := r.Next()
		require.NoError(t, err)
		got = append(got, ep.Address)
	}
	assert.Equal(t, []string{"p1:8080", "p2:8080", "p3:8080", "p1:8080", "p2:8080", "p3:8080"}, got)
}

func TestNextSkipsFailed(t *testing.T) {
	r := newTestRotator("p1:8080", "p2:8080", "p3:8080")
	r.MarkFailed("p2:8080")

	var got []string
	for i := 0; i < 4; i++ {
		ep, err := r.Next()
		require.NoError(t, err)
		got = append(got, ep.Address)
	}
	assert.Equal(t, []string{"p1:8080", "p3:8080", "p1:8080", "p3:8080"}, got)
}

func TestNextResetsWhenAllFailed(t *testing.T) {
	r := newTestRotator("p1:8080", "p2:8080")
	r.MarkFailed("p1:8080")
	r.MarkFailed("p2:8080")

	ep, err := r.Next()
	require.NoError(t, err)
	assert.NotEmpty(t, ep.Address)

	// Failure counters survive the reset, flags do not.
	for _, s := range r.Snapshot() {
		assert.False(t, s.Failed)
		assert.Equal(t, int64(1), s.Failures)
	}
}

func TestNextEmptyPool(t *testing.T) {
	r := newTestRotator()
	_, err := r.Next()
	assert.ErrorIs(t, err, domain.ErrNoProxy)
}

func TestRecordResponseTimeRunningAverage(t *testing.T) {
	r := newTestRotator("p1:8080")

	ep, err := r.Next()
	require.NoError(t, err)
	r.RecordResponseTime(ep.Address, 100*time.Millisecond)

	_, err = r.Next()
	require.NoError(t, err)
	r.RecordResponseTime("p1:8080", 200*time.Millisecond)

	snap := r.Snapshot()[0]
	assert.InDelta(t, 150.0, snap.AvgResponseMs, 0.001)
}

func TestBestPrefersFastest(t *testing.T) {
	r := newTestRotator("slow:8080", "fast:8080", "unmeasured:8080")
	r.RecordResponseTime("slow:8080", 500*time.Millisecond)
	r.RecordResponseTime("fast:8080", 50*time.Millisecond)

	ep, err := r.Best()
	require.NoError(t, err)
	assert.Equal(t, "fast:8080", ep.Address)

	r.MarkFailed("fast:8080")
	ep, err = r.Best()
	require.NoError(t, err)
	assert.Equal(t, "slow:8080", ep.Address)
}

func TestBestAllFailed(t *testing.T) {
	r := newTestRotator("p1:8080")
	r.MarkFailed("p1:8080")
	_, err := r.Best()
	assert.ErrorIs(t, err, domain.ErrNoProxy)
}

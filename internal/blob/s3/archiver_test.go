package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aryasaputra/surebot/internal/domain"
)

// archiveExecStore holds terminal records sorted by (completed_at, id) and
// answers keyset-cursor pages the way the SQL store does.
type archiveExecStore struct {
	recs    []domain.ExecutionRecord
	deleted []domain.ExecutionRecord
}

func (s *archiveExecStore) ListTerminalBefore(_ context.Context, cutoff, after time.Time, afterID string, limit int) ([]domain.ExecutionRecord, error) {
	var out []domain.ExecutionRecord
	for _, r := range s.recs {
		if r.CompletedAt == nil || !r.CompletedAt.Before(cutoff) {
			continue
		}
		c := *r.CompletedAt
		if !(c.After(after) || (c.Equal(after) && r.ID > afterID)) {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *archiveExecStore) DeleteTerminalBefore(_ context.Context, cutoff time.Time) (int64, error) {
	var kept []domain.ExecutionRecord
	for _, r := range s.recs {
		if r.CompletedAt != nil && r.CompletedAt.Before(cutoff) {
			s.deleted = append(s.deleted, r)
			continue
		}
		kept = append(kept, r)
	}
	s.recs = kept
	return int64(len(s.deleted)), nil
}

func (s *archiveExecStore) Create(context.Context, domain.ExecutionRecord) error { return nil }
func (s *archiveExecStore) MarkExecuting(context.Context, string) error          { return nil }
func (s *archiveExecStore) RecordLeg(context.Context, string, domain.LegAttempt) error {
	return nil
}
func (s *archiveExecStore) Complete(context.Context, domain.ExecutionRecord) error { return nil }
func (s *archiveExecStore) GetByID(context.Context, string) (domain.ExecutionRecord, error) {
	return domain.ExecutionRecord{}, domain.ErrNotFound
}
func (s *archiveExecStore) ListRecent(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}
func (s *archiveExecStore) ListInterventions(context.Context, int) ([]domain.ExecutionRecord, error) {
	return nil, nil
}
func (s *archiveExecStore) Stats(context.Context, time.Time) (domain.ExecutionStats, error) {
	return domain.ExecutionStats{}, nil
}

var _ domain.ExecutionStore = (*archiveExecStore)(nil)

type memBlobStore struct {
	objects map[string][]byte
}

func newMemBlobStore() *memBlobStore {
	return &memBlobStore{objects: make(map[string][]byte)}
}

func (s *memBlobStore) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	s.objects[path] = b
	return nil
}

func (s *memBlobStore) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := s.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (s *memBlobStore) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (s *memBlobStore) Exists(_ context.Context, path string) (bool, error) {
	_, ok := s.objects[path]
	return ok, nil
}

// uploadedIDs decodes every stored JSONL object and returns the record ids.
func (s *memBlobStore) uploadedIDs(t *testing.T) map[string]bool {
	t.Helper()
	ids := make(map[string]bool)
	for path, b := range s.objects {
		dec := json.NewDecoder(bytes.NewReader(b))
		for dec.More() {
			var rec domain.ExecutionRecord
			require.NoError(t, dec.Decode(&rec), path)
			ids[rec.ID] = true
		}
	}
	return ids
}

func terminalRecords(n int, completed ...time.Time) []domain.ExecutionRecord {
	base := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	recs := make([]domain.ExecutionRecord, n)
	for i := range recs {
		at := base.Add(time.Duration(i) * time.Minute)
		if len(completed) > 0 {
			at = completed[0]
		}
		recs[i] = domain.ExecutionRecord{
			ID:          fmt.Sprintf("exec-%04d", i),
			Status:      domain.ExecCompleted,
			StartedAt:   at.Add(-time.Minute),
			CompletedAt: &at,
		}
	}
	return recs
}

func TestArchiveUploadsEveryRecordAcrossBatches(t *testing.T) {
	store := &archiveExecStore{recs: terminalRecords(1500)}
	blobs := newMemBlobStore()
	a := NewArchiver(blobs, blobs, store, nil)
	cutoff := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	archived, err := a.Archive(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), archived)
	assert.Len(t, blobs.objects, 2)
	assert.Empty(t, store.deleted, "archive must not delete anything")

	deleted, err := a.Prune(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(1500), deleted)

	// Nothing pruned may be missing from storage.
	ids := blobs.uploadedIDs(t)
	for _, rec := range store.deleted {
		assert.True(t, ids[rec.ID], "pruned %s without an uploaded copy", rec.ID)
	}
}

func TestArchivePagesThroughEqualTimestamps(t *testing.T) {
	// All records share one completion instant; only the id component of the
	// cursor can move the pages forward.
	at := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	store := &archiveExecStore{recs: terminalRecords(2500, at)}
	blobs := newMemBlobStore()
	a := NewArchiver(blobs, blobs, store, nil)

	archived, err := a.Archive(context.Background(), at.Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2500), archived)
	assert.Len(t, blobs.uploadedIDs(t), 2500)
}

func TestArchiveNothingEligible(t *testing.T) {
	store := &archiveExecStore{}
	blobs := newMemBlobStore()
	a := NewArchiver(blobs, blobs, store, nil)

	archived, err := a.Archive(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Zero(t, archived)
	assert.Empty(t, blobs.objects)
}

func TestPruneRefusedWithoutArchive(t *testing.T) {
	store := &archiveExecStore{recs: terminalRecords(10)}
	blobs := newMemBlobStore()
	a := NewArchiver(blobs, blobs, store, nil)

	_, err := a.Prune(context.Background(), time.Now().UTC())
	require.Error(t, err)
	assert.Len(t, store.recs, 10)
}

func TestPruneRefusedWhenObjectMissing(t *testing.T) {
	store := &archiveExecStore{recs: terminalRecords(10)}
	blobs := newMemBlobStore()
	a := NewArchiver(blobs, blobs, store, nil)
	cutoff := time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC)

	_, err := a.Archive(context.Background(), cutoff)
	require.NoError(t, err)

	// The uploaded object vanishing between archive and prune must block
	// deletion.
	blobs.objects = map[string][]byte{}
	_, err = a.Prune(context.Background(), cutoff)
	require.Error(t, err)
	assert.Len(t, store.recs, 10)
}

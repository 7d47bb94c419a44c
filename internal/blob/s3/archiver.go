package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aryasaputra/surebot/internal/domain"
)

// archiveBatchSize caps how many execution records one archive file holds.
const archiveBatchSize = 1000

// Archiver moves terminal execution records into cold storage as
// newline-delimited JSON, then prunes the archived rows from the primary
// store. Upload and prune are separate steps: rows are deleted only after
// the uploaded object is verified to exist.
type Archiver struct {
	writer     domain.BlobWriter
	reader     domain.BlobReader
	executions domain.ExecutionStore
	audit      domain.AuditStore

	lastPath string
}

// NewArchiver creates an Archiver.
func NewArchiver(
	writer domain.BlobWriter,
	reader domain.BlobReader,
	executions domain.ExecutionStore,
	audit domain.AuditStore,
) *Archiver {
	return &Archiver{
		writer:     writer,
		reader:     reader,
		executions: executions,
		audit:      audit,
	}
}

// Archive uploads all terminal executions completed before the cutoff, in
// batches, and returns the total count archived. Nothing is deleted here.
// The (cursor, cursorID) pair advances past each uploaded batch so every
// eligible record is fetched exactly once.
func (a *Archiver) Archive(ctx context.Context, before time.Time) (int64, error) {
	var total int64
	var cursor time.Time
	var cursorID string

	for {
		recs, err := a.executions.ListTerminalBefore(ctx, before, cursor, cursorID, archiveBatchSize)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive executions query: %w", err)
		}
		if len(recs) == 0 {
			return total, nil
		}

		buf, err := marshalJSONL(recs)
		if err != nil {
			return total, fmt.Errorf("s3blob: archive executions marshal: %w", err)
		}

		path := archivePath(recs[len(recs)-1].CompletedAt, total)
		if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
			return total, fmt.Errorf("s3blob: archive executions upload: %w", err)
		}
		a.lastPath = path

		count := int64(len(recs))
		total += count
		last := recs[len(recs)-1]
		if last.CompletedAt != nil {
			cursor = *last.CompletedAt
		}
		cursorID = last.ID

		if a.audit != nil {
			_ = a.audit.Log(ctx, "archive.executions", map[string]any{
				"path":   path,
				"count":  count,
				"before": before.Format(time.RFC3339),
			})
		}

		if count < archiveBatchSize {
			return total, nil
		}
	}
}

// Prune deletes terminal executions completed before the cutoff. It refuses
// to delete anything unless the most recently written archive object is
// confirmed present in storage.
func (a *Archiver) Prune(ctx context.Context, before time.Time) (int64, error) {
	if a.lastPath == "" {
		return 0, fmt.Errorf("s3blob: prune refused: nothing archived this run")
	}
	ok, err := a.reader.Exists(ctx, a.lastPath)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune verify %s: %w", a.lastPath, err)
	}
	if !ok {
		return 0, fmt.Errorf("s3blob: prune refused: archive %s not found", a.lastPath)
	}

	deleted, err := a.executions.DeleteTerminalBefore(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("s3blob: prune executions: %w", err)
	}

	if a.audit != nil {
		_ = a.audit.Log(ctx, "archive.prune", map[string]any{
			"deleted": deleted,
			"before":  before.Format(time.RFC3339),
		})
	}
	return deleted, nil
}

// archivePath builds the S3 key for one archive batch, partitioned by the
// completion day of the batch's newest record.
//
//	archive/executions/2026-08-30/offset-0.jsonl
func archivePath(completedAt *time.Time, offset int64) string {
	day := time.Now().UTC()
	if completedAt != nil {
		day = completedAt.UTC()
	}
	return fmt.Sprintf("archive/executions/%s/offset-%d.jsonl", day.Format("2006-01-02"), offset)
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// object per line.
func marshalJSONL(records []domain.ExecutionRecord) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

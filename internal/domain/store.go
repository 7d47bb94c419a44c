package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// OpportunityStore persists detected opportunities and their status.
type OpportunityStore interface {
	Insert(ctx context.Context, opp Opportunity) error
	UpdateStatus(ctx context.Context, id string, status OpportunityStatus) error
	GetByID(ctx context.Context, id string) (Opportunity, error)
	ListByStatus(ctx context.Context, status OpportunityStatus, opts ListOpts) ([]Opportunity, error)
}

// ExecutionStore persists execution records and their leg attempts. Every leg
// attempt is recorded regardless of outcome.
type ExecutionStore interface {
	Create(ctx context.Context, rec ExecutionRecord) error
	MarkExecuting(ctx context.Context, id string) error
	RecordLeg(ctx context.Context, executionID string, leg LegAttempt) error
	Complete(ctx context.Context, rec ExecutionRecord) error
	GetByID(ctx context.Context, id string) (ExecutionRecord, error)
	ListRecent(ctx context.Context, limit int) ([]ExecutionRecord, error)
	ListInterventions(ctx context.Context, limit int) ([]ExecutionRecord, error)
	Stats(ctx context.Context, since time.Time) (ExecutionStats, error)
	// ListTerminalBefore pages through terminal executions completed before
	// cutoff, oldest first. The (after, afterID) pair is an exclusive cursor
	// over (completed_at, id); pass a zero time and empty id for the first
	// page.
	ListTerminalBefore(ctx context.Context, cutoff time.Time, after time.Time, afterID string, limit int) ([]ExecutionRecord, error)
	DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// SessionStore persists session metadata for audit and warm restarts.
type SessionStore interface {
	Upsert(ctx context.Context, sess Session) error
	GetByAccount(ctx context.Context, accountID string) (Session, error)
	UpdateStatus(ctx context.Context, id string, status SessionStatus) error
	ListActive(ctx context.Context) ([]Session, error)
}

// WorkerStore persists worker registry snapshots.
type WorkerStore interface {
	Upsert(ctx context.Context, w Worker) error
	List(ctx context.Context) ([]Worker, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}

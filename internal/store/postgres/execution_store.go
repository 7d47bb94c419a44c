package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryasaputra/surebot/internal/domain"
)

// ExecutionStore implements domain.ExecutionStore using PostgreSQL. The
// header row is created when execution starts; leg attempts are appended as
// they happen so a crash mid-protocol still leaves a truthful trail.
type ExecutionStore struct {
	pool *pgxpool.Pool
}

// NewExecutionStore creates a new ExecutionStore.
func NewExecutionStore(pool *pgxpool.Pool) *ExecutionStore {
	return &ExecutionStore{pool: pool}
}

// Create inserts the execution header.
func (s *ExecutionStore) Create(ctx context.Context, rec domain.ExecutionRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO executions (id, opportunity_id, status, requires_intervention, failure_reason, started_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.ID, rec.OpportunityID, string(rec.Status), rec.RequiresIntervention,
		rec.FailureReason, rec.StartedAt, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution %s: %w", rec.ID, err)
	}
	return nil
}

// MarkExecuting stamps the executing state on the header so a crash
// mid-protocol never leaves a record that still claims to be pending.
func (s *ExecutionStore) MarkExecuting(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions SET status = $2 WHERE id = $1`,
		id, string(domain.ExecExecuting),
	)
	if err != nil {
		return fmt.Errorf("postgres: mark execution %s executing: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// RecordLeg appends one leg attempt to an execution.
func (s *ExecutionStore) RecordLeg(ctx context.Context, executionID string, leg domain.LegAttempt) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO execution_legs (execution_id, role, account_id, provider, selection, market_type,
			handicap, odds, stake, ticket_id, status, error_reason, placed_at, status_updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		executionID, string(leg.Role), leg.AccountID, leg.Provider, leg.Selection, string(leg.MarketType),
		leg.Handicap, leg.Odds, leg.Stake, leg.TicketID, string(leg.Status), leg.ErrorReason,
		nullTime(leg.PlacedAt), nullTime(leg.StatusUpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("postgres: insert execution leg %s: %w", executionID, err)
	}
	return nil
}

// Complete stamps the terminal state on the execution header.
func (s *ExecutionStore) Complete(ctx context.Context, rec domain.ExecutionRecord) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE executions
		SET status = $2, requires_intervention = $3, failure_reason = $4, completed_at = $5
		WHERE id = $1`,
		rec.ID, string(rec.Status), rec.RequiresIntervention, rec.FailureReason, rec.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: complete execution %s: %w", rec.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns an execution with its legs.
func (s *ExecutionStore) GetByID(ctx context.Context, id string) (domain.ExecutionRecord, error) {
	var rec domain.ExecutionRecord
	var status string
	err := s.pool.QueryRow(ctx, `
		SELECT id, opportunity_id, status, requires_intervention, failure_reason, started_at, completed_at
		FROM executions WHERE id = $1`, id,
	).Scan(&rec.ID, &rec.OpportunityID, &status, &rec.RequiresIntervention,
		&rec.FailureReason, &rec.StartedAt, &rec.CompletedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ExecutionRecord{}, domain.ErrNotFound
		}
		return domain.ExecutionRecord{}, fmt.Errorf("postgres: get execution %s: %w", id, err)
	}
	rec.Status = domain.ExecStatus(status)

	legs, err := s.legsFor(ctx, id)
	if err != nil {
		return domain.ExecutionRecord{}, err
	}
	rec.Legs = legs
	return rec, nil
}

func (s *ExecutionStore) legsFor(ctx context.Context, executionID string) ([]domain.LegAttempt, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT role, account_id, provider, selection, market_type, handicap, odds, stake,
			ticket_id, status, error_reason, placed_at, status_updated_at
		FROM execution_legs WHERE execution_id = $1 ORDER BY id`, executionID)
	if err != nil {
		return nil, fmt.Errorf("postgres: get execution legs %s: %w", executionID, err)
	}
	defer rows.Close()

	var legs []domain.LegAttempt
	for rows.Next() {
		var leg domain.LegAttempt
		var role, marketType, status string
		var placedAt, updatedAt *time.Time
		if err := rows.Scan(&role, &leg.AccountID, &leg.Provider, &leg.Selection, &marketType,
			&leg.Handicap, &leg.Odds, &leg.Stake, &leg.TicketID, &status, &leg.ErrorReason,
			&placedAt, &updatedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan execution leg: %w", err)
		}
		leg.Role = domain.LegRole(role)
		leg.MarketType = domain.MarketType(marketType)
		leg.Status = domain.LegStatus(status)
		if placedAt != nil {
			leg.PlacedAt = *placedAt
		}
		if updatedAt != nil {
			leg.StatusUpdatedAt = *updatedAt
		}
		legs = append(legs, leg)
	}
	return legs, rows.Err()
}

// ListRecent returns the most recent executions, legs included.
func (s *ExecutionStore) ListRecent(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	return s.list(ctx, `ORDER BY started_at DESC LIMIT $1`, limit)
}

// ListInterventions returns partial executions flagged for manual resolution,
// most recent first.
func (s *ExecutionStore) ListInterventions(ctx context.Context, limit int) ([]domain.ExecutionRecord, error) {
	return s.list(ctx, `WHERE requires_intervention ORDER BY started_at DESC LIMIT $1`, limit)
}

func (s *ExecutionStore) list(ctx context.Context, tail string, args ...any) ([]domain.ExecutionRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, opportunity_id, status, requires_intervention, failure_reason, started_at, completed_at
		FROM executions `+tail, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list executions: %w", err)
	}
	defer rows.Close()

	var list []domain.ExecutionRecord
	for rows.Next() {
		var rec domain.ExecutionRecord
		var status string
		if err := rows.Scan(&rec.ID, &rec.OpportunityID, &status, &rec.RequiresIntervention,
			&rec.FailureReason, &rec.StartedAt, &rec.CompletedAt); err != nil {
			return nil, fmt.Errorf("postgres: scan execution: %w", err)
		}
		rec.Status = domain.ExecStatus(status)
		list = append(list, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range list {
		legs, err := s.legsFor(ctx, list[i].ID)
		if err != nil {
			return nil, err
		}
		list[i].Legs = legs
	}
	return list, nil
}

// Stats aggregates execution outcomes since the given time. Staked totals
// count only legs that produced exposure; expected profit counts only fully
// hedged executions.
func (s *ExecutionStore) Stats(ctx context.Context, since time.Time) (domain.ExecutionStats, error) {
	var st domain.ExecutionStats
	err := s.pool.QueryRow(ctx, `
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = 'completed'),
			COUNT(*) FILTER (WHERE status = 'partial'),
			COUNT(*) FILTER (WHERE status = 'aborted'),
			COUNT(*) FILTER (WHERE status = 'failed'),
			COUNT(*) FILTER (WHERE requires_intervention)
		FROM executions WHERE started_at >= $1`, since,
	).Scan(&st.Total, &st.Completed, &st.Partial, &st.Aborted, &st.Failed, &st.Interventions)
	if err != nil {
		return domain.ExecutionStats{}, fmt.Errorf("postgres: execution stats: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(l.stake), 0)
		FROM execution_legs l
		JOIN executions e ON e.id = l.execution_id
		WHERE e.started_at >= $1 AND l.status IN ('accepted', 'running')`, since,
	).Scan(&st.TotalStaked)
	if err != nil {
		return domain.ExecutionStats{}, fmt.Errorf("postgres: staked total: %w", err)
	}

	err = s.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(o.profit), 0)
		FROM executions e
		JOIN opportunities o ON o.id = e.opportunity_id
		WHERE e.started_at >= $1 AND e.status = 'completed'`, since,
	).Scan(&st.ExpectedProfit)
	if err != nil {
		return domain.ExecutionStats{}, fmt.Errorf("postgres: expected profit: %w", err)
	}
	return st, nil
}

// ListTerminalBefore returns terminal executions completed before the cutoff,
// oldest first, for archival. (after, afterID) is an exclusive keyset cursor
// over (completed_at, id); the composite comparison keeps rows sharing a
// completion timestamp from being skipped at page boundaries.
func (s *ExecutionStore) ListTerminalBefore(ctx context.Context, cutoff time.Time, after time.Time, afterID string, limit int) ([]domain.ExecutionRecord, error) {
	return s.list(ctx, `
		WHERE completed_at IS NOT NULL AND completed_at < $1
			AND (completed_at, id) > ($2, $3)
			AND status IN ('completed', 'partial', 'aborted', 'failed')
		ORDER BY completed_at ASC, id ASC LIMIT $4`, cutoff, after, afterID, limit)
}

// DeleteTerminalBefore removes terminal executions completed before the
// cutoff, legs first. Returns the number of executions removed.
func (s *ExecutionStore) DeleteTerminalBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("postgres: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx, `
		DELETE FROM execution_legs WHERE execution_id IN (
			SELECT id FROM executions
			WHERE completed_at IS NOT NULL AND completed_at < $1
				AND status IN ('completed', 'partial', 'aborted', 'failed')
		)`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete execution legs: %w", err)
	}

	tag, err := tx.Exec(ctx, `
		DELETE FROM executions
		WHERE completed_at IS NOT NULL AND completed_at < $1
			AND status IN ('completed', 'partial', 'aborted', 'failed')`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete executions: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("postgres: commit delete: %w", err)
	}
	return tag.RowsAffected(), nil
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// Compile-time interface check.
var _ domain.ExecutionStore = (*ExecutionStore)(nil)

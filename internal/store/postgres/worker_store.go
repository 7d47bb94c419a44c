package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aryasaputra/surebot/internal/domain"
)

// WorkerStore implements domain.WorkerStore using PostgreSQL. Rows mirror the
// in-memory registry so fleet state survives restarts.
type WorkerStore struct {
	pool *pgxpool.Pool
}

// NewWorkerStore creates a new WorkerStore.
func NewWorkerStore(pool *pgxpool.Pool) *WorkerStore {
	return &WorkerStore{pool: pool}
}

// Upsert stores the latest heartbeat snapshot for a worker. FirstSeen is
// never overwritten once recorded.
func (s *WorkerStore) Upsert(ctx context.Context, w domain.Worker) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO workers (id, type, status, current_task, first_seen, last_heartbeat)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type,
			status = EXCLUDED.status,
			current_task = EXCLUDED.current_task,
			last_heartbeat = EXCLUDED.last_heartbeat`,
		w.ID, w.Type, string(w.Status), w.CurrentTask, w.FirstSeen, w.LastHeartbeat,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert worker %s: %w", w.ID, err)
	}
	return nil
}

// List returns all known workers.
func (s *WorkerStore) List(ctx context.Context) ([]domain.Worker, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, type, status, current_task, first_seen, last_heartbeat
		FROM workers ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list workers: %w", err)
	}
	defer rows.Close()

	var list []domain.Worker
	for rows.Next() {
		var w domain.Worker
		var status string
		if err := rows.Scan(&w.ID, &w.Type, &status, &w.CurrentTask, &w.FirstSeen, &w.LastHeartbeat); err != nil {
			return nil, fmt.Errorf("postgres: scan worker: %w", err)
		}
		w.Status = domain.WorkerStatus(status)
		list = append(list, w)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.WorkerStore = (*WorkerStore)(nil)

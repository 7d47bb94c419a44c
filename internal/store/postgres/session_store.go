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

// SessionStore implements domain.SessionStore using PostgreSQL. One row per
// account; a re-login replaces the previous session for that account.
type SessionStore struct {
	pool *pgxpool.Pool
}

// NewSessionStore creates a new SessionStore.
func NewSessionStore(pool *pgxpool.Pool) *SessionStore {
	return &SessionStore{pool: pool}
}

// Upsert stores a session keyed by its account.
func (s *SessionStore) Upsert(ctx context.Context, sess domain.Session) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (id, account_id, provider, state, status, usage_count, created_at, last_used_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (account_id) DO UPDATE SET
			id = EXCLUDED.id,
			provider = EXCLUDED.provider,
			state = EXCLUDED.state,
			status = EXCLUDED.status,
			usage_count = EXCLUDED.usage_count,
			created_at = EXCLUDED.created_at,
			last_used_at = EXCLUDED.last_used_at,
			expires_at = EXCLUDED.expires_at`,
		sess.ID, sess.AccountID, sess.Provider, sess.State, string(sess.Status),
		sess.UsageCount, sess.CreatedAt, nullTime(sess.LastUsedAt), sess.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert session %s: %w", sess.AccountID, err)
	}
	return nil
}

// GetByAccount returns the session for an account.
func (s *SessionStore) GetByAccount(ctx context.Context, accountID string) (domain.Session, error) {
	var sess domain.Session
	var status string
	var lastUsed *time.Time
	err := s.pool.QueryRow(ctx, `
		SELECT id, account_id, provider, state, status, usage_count, created_at, last_used_at, expires_at
		FROM sessions WHERE account_id = $1`, accountID,
	).Scan(&sess.ID, &sess.AccountID, &sess.Provider, &sess.State, &status,
		&sess.UsageCount, &sess.CreatedAt, &lastUsed, &sess.ExpiresAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("postgres: get session %s: %w", accountID, err)
	}
	sess.Status = domain.SessionStatus(status)
	if lastUsed != nil {
		sess.LastUsedAt = *lastUsed
	}
	return sess, nil
}

// UpdateStatus changes a session's lifecycle state by session ID.
func (s *SessionStore) UpdateStatus(ctx context.Context, id string, status domain.SessionStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE sessions SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("postgres: update session %s status: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListActive returns all sessions still marked active.
func (s *SessionStore) ListActive(ctx context.Context) ([]domain.Session, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, account_id, provider, state, status, usage_count, created_at, last_used_at, expires_at
		FROM sessions WHERE status = 'active' ORDER BY account_id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active sessions: %w", err)
	}
	defer rows.Close()

	var list []domain.Session
	for rows.Next() {
		var sess domain.Session
		var status string
		var lastUsed *time.Time
		if err := rows.Scan(&sess.ID, &sess.AccountID, &sess.Provider, &sess.State, &status,
			&sess.UsageCount, &sess.CreatedAt, &lastUsed, &sess.ExpiresAt); err != nil {
			return nil, fmt.Errorf("postgres: scan session: %w", err)
		}
		sess.Status = domain.SessionStatus(status)
		if lastUsed != nil {
			sess.LastUsedAt = *lastUsed
		}
		list = append(list, sess)
	}
	return list, rows.Err()
}

// Compile-time interface check.
var _ domain.SessionStore = (*SessionStore)(nil)

package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/aryasaputra/surebot/internal/domain"
)

// SessionCache implements domain.SessionCache using plain Redis keys with a
// TTL matched to the session's remaining validity. It lets a restarted
// process adopt an existing login instead of burning another one.
type SessionCache struct {
	rdb *redis.Client
}

// NewSessionCache creates a SessionCache backed by the given Client.
func NewSessionCache(c *Client) *SessionCache {
	return &SessionCache{rdb: c.Underlying()}
}

func sessionKey(accountID string) string {
	return "session:" + accountID
}

// Put stores the session under its account key with the given TTL.
func (sc *SessionCache) Put(ctx context.Context, sess domain.Session, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("redis: marshal session %s: %w", sess.AccountID, err)
	}
	if err := sc.rdb.Set(ctx, sessionKey(sess.AccountID), data, ttl).Err(); err != nil {
		return fmt.Errorf("redis: put session %s: %w", sess.AccountID, err)
	}
	return nil
}

// Get returns the cached session for an account, or domain.ErrNotFound.
func (sc *SessionCache) Get(ctx context.Context, accountID string) (domain.Session, error) {
	data, err := sc.rdb.Get(ctx, sessionKey(accountID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Session{}, domain.ErrNotFound
		}
		return domain.Session{}, fmt.Errorf("redis: get session %s: %w", accountID, err)
	}
	var sess domain.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return domain.Session{}, fmt.Errorf("redis: decode session %s: %w", accountID, err)
	}
	return sess, nil
}

// Delete removes the cached session for an account.
func (sc *SessionCache) Delete(ctx context.Context, accountID string) error {
	if err := sc.rdb.Del(ctx, sessionKey(accountID)).Err(); err != nil {
		return fmt.Errorf("redis: delete session %s: %w", accountID, err)
	}
	return nil
}

// Compile-time interface check.
var _ domain.SessionCache = (*SessionCache)(nil)

package domain

import (
	"context"
	"time"
)

// StreamMessage is one durable message read from an event stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus is the pub/sub and stream transport used for events, heartbeats,
// and cross-process signalling.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}

// LockManager provides distributed locks, used to keep two processes from
// logging into the same bookmaker account at once.
type LockManager interface {
	// Acquire returns an unlock function on success, ErrLockHeld if the lock
	// is taken.
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter throttles calls against a shared per-key budget. Bet placement
// uses it per provider so a burst of opportunities cannot hammer one
// bookmaker into flagging the accounts.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}

// SessionCache mirrors authenticated session state across processes so a
// restarted worker can reuse a login instead of burning another one.
type SessionCache interface {
	Put(ctx context.Context, sess Session, ttl time.Duration) error
	Get(ctx context.Context, accountID string) (Session, error)
	Delete(ctx context.Context, accountID string) error
}

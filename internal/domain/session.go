package domain

import "time"

// SessionStatus is the lifecycle state of an authenticated bookmaker session.
type SessionStatus string

const (
	SessionActive  SessionStatus = "active"
	SessionExpired SessionStatus = "expired"
	SessionInvalid SessionStatus = "invalid"
)

// Session is an authenticated, reusable connection state for one bookmaker
// account. State is an opaque blob produced by the SiteDriver at login
// (cookies, tokens); the core never inspects it. A session is never shared
// across two simultaneous operations for the same account.
type Session struct {
	ID         string
	AccountID  string
	Provider   string
	State      []byte
	Status     SessionStatus
	UsageCount int64
	CreatedAt  time.Time
	LastUsedAt time.Time
	ExpiresAt  time.Time
}

// Usable reports whether the session can be handed out without re-login.
func (s *Session) Usable(now time.Time) bool {
	return s != nil && s.Status == SessionActive && now.Before(s.ExpiresAt)
}

// Credentials identify one bookmaker account and how to log into it.
type Credentials struct {
	AccountID string `json:"account_id" toml:"account_id"`
	Provider  string `json:"provider" toml:"provider"`
	LoginURL  string `json:"login_url" toml:"login_url"`
	Username  string `json:"username" toml:"username"`
	Password  string `json:"password" toml:"password"`
}

// CredentialSource resolves account credentials at login time.
type CredentialSource interface {
	Lookup(accountID string) (Credentials, error)
}

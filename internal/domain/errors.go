package domain

import "errors"

var (
	ErrNotFound       = errors.New("not found")
	ErrAlreadyExists  = errors.New("already exists")
	ErrInvalidOdds    = errors.New("odds out of valid range")
	ErrInvalidFormat  = errors.New("unknown odds format")
	ErrLoginFailed    = errors.New("login failed")
	ErrSessionInvalid = errors.New("session invalid")
	ErrNoProxy        = errors.New("no proxy endpoint available")
	ErrCheckoutBusy   = errors.New("account session checked out")
	ErrLegTimeout     = errors.New("leg status not resolved within bound")
	ErrLockHeld       = errors.New("lock already held")
	ErrContextDone    = errors.New("context cancelled")
)

package backend

import "errors"

// Sentinel errors shared by all backend implementations. Callers branch
// with errors.Is; everything else is treated as a transient failure.
var (
	ErrNotAuthenticated   = errors.New("not signed in")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrEmailNotConfirmed  = errors.New("email not confirmed")
	ErrEmailTaken         = errors.New("email already registered")
	ErrNotAuthorized      = errors.New("not authorized")
	ErrAccountNotFound    = errors.New("no account with that email")
	ErrNotFound           = errors.New("not found")
)

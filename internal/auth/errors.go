package auth

import "errors"

// Sentinel errors for token handling.
var (
	ErrTokenInvalid = errors.New("auth: invalid token")
	ErrNoSecret     = errors.New("auth: signing secret not configured")
	ErrUnknownRole  = errors.New("auth: unknown role")
	ErrForbidden    = errors.New("auth: insufficient permissions")
)

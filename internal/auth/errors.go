package auth

import "errors"

var (
	// ErrUnauthorized covers every credential failure: unknown identifier,
	// wrong secret, disabled account, bad bearer token. Callers must not be
	// able to tell which check failed.
	ErrUnauthorized = errors.New("auth: unauthorized")

	// ErrRefreshInvalid is returned for an unknown, expired, revoked, or
	// hash-mismatched refresh token.
	ErrRefreshInvalid = errors.New("auth: refresh token invalid")

	ErrNotFound      = errors.New("auth: not found")
	ErrConflict      = errors.New("auth: conflict")
	ErrInvalidInput  = errors.New("auth: invalid input")
	ErrInvalidConfig = errors.New("auth: invalid config")

	// Token decode failures.
	ErrTokenExpired   = errors.New("auth: token expired")
	ErrTokenMalformed = errors.New("auth: token malformed")
)

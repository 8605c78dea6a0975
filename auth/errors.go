package auth

import "errors"

var (
	// ErrNotAuthenticated is returned when no refresh token is stored.
	ErrNotAuthenticated = errors.New("not authenticated; please login first")
	// ErrRefreshFailed wraps any failure of the refresh exchange.
	ErrRefreshFailed = errors.New("token refresh failed")
	// ErrSessionExpired is returned when the server declared the session expired.
	ErrSessionExpired = errors.New("session expired; please login again")
	// ErrAlreadyRetried is returned when a replayed request is rejected again.
	ErrAlreadyRetried = errors.New("request was already retried after a token refresh")
)

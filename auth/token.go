package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expirySafetyMargin treats a token as expired slightly before its exp claim.
const expirySafetyMargin = 5 * time.Minute

// ErrNoExpiry is returned when the access token carries no exp claim.
var ErrNoExpiry = errors.New("access token has no expiry claim")

// AccessTokenExpiry reads the exp claim of a JWT access token. The signature is not
// verified: the client has no key, and the value is only informational.
func AccessTokenExpiry(token string) (time.Time, error) {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}, fmt.Errorf("failed to parse access token: %w", err)
	}
	if claims.ExpiresAt == nil {
		return time.Time{}, ErrNoExpiry
	}
	return claims.ExpiresAt.Time, nil
}

// IsTokenValid reports whether the access token is still usable at now.
func IsTokenValid(token string, now time.Time) (bool, error) {
	if token == "" {
		return false, nil
	}
	expiresAt, err := AccessTokenExpiry(token)
	if err != nil {
		return false, err
	}
	return now.Add(expirySafetyMargin).Before(expiresAt), nil
}

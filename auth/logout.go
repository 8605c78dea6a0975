package auth

import (
	"net/url"
	"strings"
)

// SignInPath is the path of the sign-in view.
const SignInPath = "/auth/signin"

// LogoutReason tells observers why a session ended.
type LogoutReason string

const (
	// ReasonSessionExpired means the refresh exchange failed.
	ReasonSessionExpired LogoutReason = "session_expired"
	// ReasonTokenExpired means the server declared the token expired.
	ReasonTokenExpired LogoutReason = "token_expired"
	// ReasonSignedOut means the user signed out explicitly.
	ReasonSignedOut LogoutReason = "signed_out"
)

// LogoutEvent is delivered to forced-logout observers.
type LogoutEvent struct {
	Reason LogoutReason
	Err    error
}

// SignInURL returns the sign-in view under siteURL with the reason attached as a
// query parameter. An unparsable siteURL yields a relative URL.
func SignInURL(siteURL string, reason LogoutReason) string {
	q := url.Values{}
	if reason != "" {
		q.Set("reason", string(reason))
	}
	target := SignInPath
	if encoded := q.Encode(); encoded != "" {
		target += "?" + encoded
	}

	base, err := url.Parse(strings.TrimSpace(siteURL))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return target
	}
	ref, _ := url.Parse(target)
	return base.ResolveReference(ref).String()
}

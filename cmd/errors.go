package cmd

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/habedi/rebaton/auth"
	"github.com/habedi/rebaton/client"
	"github.com/habedi/rebaton/pkg/clierr"
)

// userError turns an error from the client into a CLI error with a message
// suitable for the terminal. action describes what was attempted.
func userError(action string, err error) error {
	if err == nil {
		return nil
	}
	var cliErr *clierr.Error
	if errors.As(err, &cliErr) {
		return err
	}

	switch {
	case errors.Is(err, auth.ErrNotAuthenticated):
		return clierr.New(clierr.Auth, "You are not signed in.", err)
	case errors.Is(err, auth.ErrSessionExpired), errors.Is(err, auth.ErrRefreshFailed):
		return clierr.New(clierr.Auth, "Your session has expired.", err)
	case errors.Is(err, auth.ErrAlreadyRetried):
		return clierr.New(clierr.Auth, "The server rejected the renewed session.", err)
	}

	var apiErr *client.APIError
	if errors.As(err, &apiErr) {
		msg := apiErr.Message
		if msg == "" {
			msg = http.StatusText(apiErr.StatusCode)
		}
		msg = fmt.Sprintf("%s: %s", action, msg)
		switch apiErr.StatusCode {
		case http.StatusNotFound:
			return clierr.New(clierr.NotFound, msg, err)
		case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
			return clierr.New(clierr.Validation, msg, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return clierr.New(clierr.Auth, msg, err)
		default:
			return clierr.New(clierr.Internal, msg, err)
		}
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return clierr.New(clierr.Network, fmt.Sprintf("%s: cannot reach the RebatOn API", action), err)
	}
	return clierr.New(clierr.Internal, fmt.Sprintf("%s: %v", action, err), err)
}

func validationError(err error) error {
	if err == nil {
		return nil
	}
	return clierr.New(clierr.Validation, err.Error(), err)
}

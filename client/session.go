package client

import (
	"context"
	"fmt"
	"time"

	"github.com/habedi/rebaton/auth"
	"github.com/habedi/rebaton/db"
	"github.com/rs/zerolog/log"
)

const (
	loginPath    = "/api/v1/auth/login"
	registerPath = "/api/v1/auth/register"
	logoutPath   = "/api/v1/auth/logout"
	mePath       = "/api/v1/auth/me"
)

// User is the authenticated account.
type User struct {
	ID        string    `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// RegisterInput carries the fields of a new account.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name,omitempty"`
}

type tokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Login exchanges email and password for a credential pair and stores it.
func (c *Client) Login(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return fmt.Errorf("email and password cannot be empty")
	}
	var pair tokenPair
	if err := c.Post(ctx, loginPath, map[string]string{"email": email, "password": password}, &pair); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	if err := c.Auth.StartSession(ctx, &db.Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		return fmt.Errorf("login failed: %w", err)
	}
	log.Info().Msg("Logged in successfully")
	return nil
}

// Register creates an account and stores the issued credential pair.
func (c *Client) Register(ctx context.Context, in RegisterInput) error {
	if in.Email == "" || in.Password == "" {
		return fmt.Errorf("email and password cannot be empty")
	}
	var pair tokenPair
	if err := c.Post(ctx, registerPath, in, &pair); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	if err := c.Auth.StartSession(ctx, &db.Credentials{AccessToken: pair.AccessToken, RefreshToken: pair.RefreshToken}); err != nil {
		return fmt.Errorf("registration failed: %w", err)
	}
	log.Info().Msg("Account registered successfully")
	return nil
}

// Logout tells the backend to revoke the session and purges local credentials.
// The local purge happens even when the backend call fails.
func (c *Client) Logout(ctx context.Context) error {
	creds, err := c.Auth.Storer.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load credentials: %w", err)
	}
	if !creds.Empty() {
		body := map[string]string{"refresh_token": creds.RefreshToken}
		if err := c.Post(ctx, logoutPath, body, nil); err != nil {
			log.Warn().Err(err).Msg("Backend logout failed, clearing local session anyway")
		}
	}
	return c.Auth.EndSession(ctx)
}

// Me returns the authenticated account.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var user User
	if err := c.Get(ctx, mePath, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Authenticated reports whether a refresh token is stored.
func (c *Client) Authenticated(ctx context.Context) (bool, error) {
	creds, err := c.Auth.Storer.Load(ctx)
	if err != nil {
		return false, err
	}
	return creds != nil && creds.RefreshToken != "", nil
}

// OnForcedLogout registers fn on the client's coordinator.
func (c *Client) OnForcedLogout(fn func(auth.LogoutEvent)) func() {
	return c.Auth.OnForcedLogout(fn)
}

package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/habedi/rebaton/auth"
	"github.com/habedi/rebaton/client"
	"github.com/habedi/rebaton/db"
	"github.com/habedi/rebaton/pkg/clierr"
	"github.com/habedi/rebaton/pkg/validation"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// prompter reads answers from the command's input. Passwords are read without
// echo when the input is a terminal.
type prompter struct {
	raw    io.Reader
	reader *bufio.Reader
	out    io.Writer
}

func newPrompter(cmd *cobra.Command) *prompter {
	in := cmd.InOrStdin()
	return &prompter{raw: in, reader: bufio.NewReader(in), out: cmd.OutOrStdout()}
}

// promptForInput prints prompt and returns the trimmed line that follows.
func (p *prompter) promptForInput(prompt string) (string, error) {
	fmt.Fprint(p.out, prompt)
	input, err := p.reader.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && input != "") {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	return strings.TrimSpace(input), nil
}

// promptForPassword prompts for a password securely and returns the trimmed string.
func (p *prompter) promptForPassword(prompt string) (string, error) {
	f, ok := p.raw.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return p.promptForInput(prompt)
	}
	fmt.Fprint(p.out, prompt)
	password, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(p.out) // Print a newline for better formatting
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return strings.TrimSpace(string(password)), nil
}

// loginCmd signs in with email and password and stores the issued credential pair.
func loginCmd(c *cli) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to RebatOn",
		Long:  "Sign in to RebatOn with your email and password. The session is kept in the local credential store.",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			var err error
			if email == "" {
				if email, err = p.promptForInput("Email: "); err != nil {
					return clierr.New(clierr.Internal, "Failed to read email.", err)
				}
			}
			if err := validation.ValidateEmail(email); err != nil {
				return validationError(err)
			}
			password, err := p.promptForPassword("Password: ")
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to read password.", err)
			}
			if err := validation.ValidateNonEmptyString("password", password); err != nil {
				return validationError(err)
			}

			ctx := cmd.Context()
			if err := c.client.Login(ctx, email, password); err != nil {
				return userError("Login failed", err)
			}
			c.cacheProfile(ctx)
			cmd.Printf("Signed in as %s.\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address of the account")
	return cmd
}

func registerCmd(c *cli) *cobra.Command {
	var email, name string

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create a RebatOn account and sign in",
		RunE: func(cmd *cobra.Command, args []string) error {
			p := newPrompter(cmd)
			var err error
			if email == "" {
				if email, err = p.promptForInput("Email: "); err != nil {
					return clierr.New(clierr.Internal, "Failed to read email.", err)
				}
			}
			if err := validation.ValidateEmail(email); err != nil {
				return validationError(err)
			}
			password, err := p.promptForPassword("Password: ")
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to read password.", err)
			}
			if err := validation.ValidatePassword(password); err != nil {
				return validationError(err)
			}
			confirm, err := p.promptForPassword("Confirm password: ")
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to read password.", err)
			}
			if confirm != password {
				return clierr.New(clierr.Validation, "Passwords do not match.", nil)
			}

			ctx := cmd.Context()
			if err := c.client.Register(ctx, client.RegisterInput{Email: email, Password: password, Name: name}); err != nil {
				return userError("Registration failed", err)
			}
			c.cacheProfile(ctx)
			cmd.Printf("Account created. Signed in as %s.\n", email)
			return nil
		},
	}

	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address of the new account")
	cmd.Flags().StringVarP(&name, "name", "n", "", "Display name of the new account")
	return cmd
}

func logoutCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := c.client.Logout(cmd.Context()); err != nil {
				return userError("Logout failed", err)
			}
			if err := db.ClearProfile(); err != nil {
				log.Warn().Err(err).Msg("Failed to clear cached profile")
			}
			cmd.Println("Signed out.")
			return nil
		},
	}
}

// statusCmd shows the local session state. With --remote it also asks the
// backend who is signed in, which refreshes the session when needed.
func statusCmd(c *cli) *cobra.Command {
	var remote bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cmd.Printf("API: %s\n", c.cfg.API.BaseURL)
			cmd.Printf("Credential store: %s\n", c.cfg.Store.Backend)

			ok, err := c.client.Authenticated(ctx)
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to read stored credentials.", err)
			}
			if !ok {
				cmd.Println("Not signed in.")
				return nil
			}

			if remote {
				if _, err := c.cacheProfile(ctx); err != nil {
					return userError("Failed to fetch account", err)
				}
			}
			if profile, err := db.GetProfile(); err == nil && profile != nil {
				cmd.Printf("Account: %s\n", describeProfile(profile))
			}

			token, err := c.client.Auth.AccessToken(ctx)
			if err != nil {
				return clierr.New(clierr.Internal, "Failed to read stored credentials.", err)
			}
			cmd.Printf("Access token: %s\n", describeExpiry(token, time.Now()))
			return nil
		},
	}

	cmd.Flags().BoolVarP(&remote, "remote", "r", false, "Fetch the account from the backend")
	return cmd
}

// cacheProfile fetches the signed-in account and caches it. Failures are logged
// and returned but never undo a successful sign-in.
func (c *cli) cacheProfile(ctx context.Context) (*db.Profile, error) {
	user, err := c.client.Me(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to fetch account")
		return nil, err
	}
	profile := &db.Profile{ID: user.ID, Email: user.Email, Name: user.Name, FetchedAt: time.Now()}
	if err := db.UpsertProfile(profile); err != nil {
		log.Warn().Err(err).Msg("Failed to cache profile")
	}
	return profile, nil
}

func describeProfile(p *db.Profile) string {
	if p.Name != "" {
		return fmt.Sprintf("%s (%s)", p.Email, p.Name)
	}
	return p.Email
}

func describeExpiry(token string, now time.Time) string {
	expiresAt, err := auth.AccessTokenExpiry(token)
	if err != nil {
		return "expiry unknown"
	}
	valid, _ := auth.IsTokenValid(token, now)
	if !valid {
		return fmt.Sprintf("expired or about to expire (%s), it will be renewed on the next request", expiresAt.Local().Format(time.RFC1123))
	}
	return fmt.Sprintf("valid until %s", expiresAt.Local().Format(time.RFC1123))
}

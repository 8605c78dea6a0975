package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/habedi/rebaton/auth"
	"github.com/habedi/rebaton/client"
	"github.com/habedi/rebaton/db"
	"github.com/habedi/rebaton/pkg/clierr"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// skipStoreAnnotation marks commands that run without the local store or the API client.
const skipStoreAnnotation = "rebaton/skip-store"

// cli holds the state shared by all commands of one invocation.
type cli struct {
	root *cobra.Command
	v    *viper.Viper

	configFile string
	cfg        *Config
	client     *client.Client
	deals      db.DealRepository
	closers    []func() error
}

func Execute() {
	c := newCLI()
	err := c.root.Execute()
	c.close()

	if err != nil {
		printError(c.root, err)
		os.Exit(1)
	}
}

func createRootCmd() *cobra.Command {
	return newCLI().root
}

func newCLI() *cli {
	c := &cli{v: newViper()}

	rootCmd := &cobra.Command{
		Use:           "rebaton",
		Short:         "A command-line client for RebatOn",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup(cmd)
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&c.configFile, "config", "c", "", "Path to the config file (default ~/.rebaton/config.yaml)")
	flags.String("base-url", "", "Base URL of the RebatOn API")
	flags.DurationP("timeout", "T", 0, "Timeout of a single API request")
	flags.String("store-backend", "", "Credential store backend [sqlite, redis]")
	flags.String("db-path", "", "Path to the local SQLite database")
	flags.IntP("threads", "t", 0, "Number of concurrent workers for sync operations")
	flags.BoolP("help", "h", false, "Show help for a command")
	if err := bindFlags(c.v, flags); err != nil {
		log.Error().Err(err).Msg("Failed to bind flags")
	}

	rootCmd.AddCommand(
		loginCmd(c),
		registerCmd(c),
		logoutCmd(c),
		statusCmd(c),
		dealsCmd(c),
		goalsCmd(c),
		walletCmd(c),
		notificationsCmd(c),
		versionCmd(),
	)

	rootCmd.CompletionOptions.HiddenDefaultCmd = true
	rootCmd.SetHelpCommand(&cobra.Command{
		Use:    "no-help",
		Hidden: true,
	})

	c.root = rootCmd
	return c
}

// setup loads the configuration and, unless the command opts out, opens the
// local store and builds the API client.
func (c *cli) setup(cmd *cobra.Command) error {
	cfg, err := loadConfig(c.v, c.configFile)
	if err != nil {
		return clierr.New(clierr.Validation, err.Error(), err)
	}
	c.cfg = cfg

	if cmd.Annotations[skipStoreAnnotation] == "true" {
		return nil
	}
	return c.connect(cmd.Context())
}

func (c *cli) connect(ctx context.Context) error {
	db.Path = c.cfg.Store.Path
	if err := db.InitDB(); err != nil {
		return clierr.New(clierr.Internal, "Failed to open the local database.", err)
	}
	c.closers = append(c.closers, db.CloseDB)
	c.deals = db.NewDealRepository(db.GetDB())

	var store auth.TokenStorer
	switch c.cfg.Store.Backend {
	case backendRedis:
		rdb, err := db.NewRedisClient(ctx, c.cfg.Store.RedisAddr, c.cfg.Store.RedisPassword, c.cfg.Store.RedisDB)
		if err != nil {
			return clierr.New(clierr.Network, "Failed to connect to the Redis credential store.", err)
		}
		c.closers = append(c.closers, rdb.Close)
		store = db.NewRedisCredentialRepository(rdb, c.cfg.Store.RedisPrefix)
	default:
		store = db.NewCredentialRepository(db.GetDB())
	}

	c.client = client.NewWithStore(c.cfg.API.BaseURL, store,
		client.WithTimeout(c.cfg.API.Timeout),
		client.WithUserAgent("rebaton-cli/"+version),
	)
	unsubscribe := c.client.OnForcedLogout(c.handleForcedLogout)
	c.closers = append(c.closers, func() error { unsubscribe(); return nil })

	log.Debug().Str("base_url", c.cfg.API.BaseURL).Str("store", c.cfg.Store.Backend).Msg("Client ready")
	return nil
}

// handleForcedLogout drops the cached profile and tells the user how to sign in again.
func (c *cli) handleForcedLogout(ev auth.LogoutEvent) {
	if err := db.ClearProfile(); err != nil {
		log.Warn().Err(err).Msg("Failed to clear cached profile")
	}
	fmt.Fprintf(c.root.ErrOrStderr(), "Your session has ended (%s). Run 'rebaton login' or sign in at %s\n",
		ev.Reason, auth.SignInURL(c.cfg.API.SiteURL, ev.Reason))
}

// requireSession fails fast when no credential pair is stored.
func (c *cli) requireSession(ctx context.Context) error {
	ok, err := c.client.Authenticated(ctx)
	if err != nil {
		return clierr.New(clierr.Internal, "Failed to read stored credentials.", err)
	}
	if !ok {
		return clierr.New(clierr.Auth, "You are not signed in.", auth.ErrNotAuthenticated)
	}
	return nil
}

// close releases resources in reverse order of acquisition.
func (c *cli) close() {
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil {
			log.Error().Err(err).Msg("Failed to release resource")
		}
	}
	c.closers = nil
}

func printError(cmd *cobra.Command, err error) {
	var cliErr *clierr.Error
	if !errors.As(err, &cliErr) {
		cmd.PrintErrln("Error:", err)
		return
	}
	log.Error().Err(cliErr.Err).Str("type", string(cliErr.Type)).Msg(cliErr.Message)
	cmd.PrintErrln("Error:", cliErr.Message)
	if hint := clierr.Hint(cliErr.Type); hint != "" {
		cmd.PrintErrln(hint)
	}
}

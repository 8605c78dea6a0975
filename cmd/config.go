package cmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/habedi/rebaton/client"
	"github.com/habedi/rebaton/pkg/validation"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	backendSQLite = "sqlite"
	backendRedis  = "redis"
)

// Config is the effective CLI configuration. Sources are applied in order:
// defaults, ~/.rebaton/config.yaml, REBATON_* environment variables, flags.
type Config struct {
	API   APIConfig   `mapstructure:"api"`
	Store StoreConfig `mapstructure:"store"`
	Sync  SyncConfig  `mapstructure:"sync"`
}

type APIConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	SiteURL string        `mapstructure:"site_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type StoreConfig struct {
	Backend       string `mapstructure:"backend"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`
}

type SyncConfig struct {
	Threads  int `mapstructure:"threads"`
	Pages    int `mapstructure:"pages"`
	PageSize int `mapstructure:"page_size"`
}

func configDir() string {
	return filepath.Join(os.Getenv("HOME"), ".rebaton")
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("api.base_url", client.DefaultBaseURL)
	v.SetDefault("api.site_url", "https://rebaton.com")
	v.SetDefault("api.timeout", client.DefaultTimeout)
	v.SetDefault("store.backend", backendSQLite)
	v.SetDefault("store.path", filepath.Join(configDir(), "rebaton.db"))
	v.SetDefault("store.redis_addr", "localhost:6379")
	v.SetDefault("store.redis_password", "")
	v.SetDefault("store.redis_db", 0)
	v.SetDefault("store.redis_prefix", "rebaton:")
	v.SetDefault("sync.threads", 5)
	v.SetDefault("sync.pages", 5)
	v.SetDefault("sync.page_size", 50)

	v.SetEnvPrefix("REBATON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

// bindFlags maps persistent flags onto configuration keys.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	bindings := map[string]string{
		"api.base_url":  "base-url",
		"api.timeout":   "timeout",
		"store.backend": "store-backend",
		"store.path":    "db-path",
		"sync.threads":  "threads",
	}
	for key, name := range bindings {
		if err := v.BindPFlag(key, flags.Lookup(name)); err != nil {
			return fmt.Errorf("failed to bind flag %s: %w", name, err)
		}
	}
	return nil
}

// loadConfig reads the optional config file and returns the validated config.
// An explicitly named file must exist; the default one may be absent.
func loadConfig(v *viper.Viper, configFile string) (*Config, error) {
	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(configDir())
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if configFile != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the values a command cannot work without.
func (c *Config) Validate() error {
	if err := validation.ValidateBaseURL(c.API.BaseURL); err != nil {
		return err
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api timeout must be positive, got %s", c.API.Timeout)
	}
	if err := validation.ValidateThreadCount(c.Sync.Threads); err != nil {
		return err
	}
	if err := validation.ValidatePageSize(c.Sync.PageSize); err != nil {
		return err
	}
	if c.Sync.Pages < 1 {
		return fmt.Errorf("sync pages must be at least 1, got %d", c.Sync.Pages)
	}
	if c.Store.Path == "" {
		return fmt.Errorf("store path cannot be empty")
	}
	switch c.Store.Backend {
	case backendSQLite:
	case backendRedis:
		if c.Store.RedisAddr == "" {
			return fmt.Errorf("redis address cannot be empty")
		}
	default:
		return fmt.Errorf("invalid store backend: %s (must be one of: %s, %s)", c.Store.Backend, backendSQLite, backendRedis)
	}
	return nil
}

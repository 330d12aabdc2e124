package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds everything the daemon and CLI need: credentials, paths and
// tunables. It is constructed once at startup and passed to constructors.
type Config struct {
	// GitHubToken authenticates pushes, clones and API calls.
	GitHubToken string `toml:"github_token"`
	// GitHubRepo is the owner/name of the push target. It seeds the
	// registry's main entry on first run; afterwards repos.txt wins.
	GitHubRepo string `toml:"github_repo"`

	HTTPAddr string `toml:"http_addr"`

	// PollInterval is how often the daemon refreshes pull-sources.
	// Zero disables the poller.
	PollInterval time.Duration `toml:"poll_interval"`

	// BaseDir roots all derived paths. Empty means ~/.gitchat.
	BaseDir string `toml:"base_dir"`

	// Optional path overrides; empty means derived from BaseDir.
	DatabasePath string `toml:"database_path"`
	WorktreeDir  string `toml:"worktree_dir"`
}

// DefaultHTTPAddr is where the gateway listens unless overridden.
const DefaultHTTPAddr = "localhost:8000"

const DefaultPollInterval = 60 * time.Second

// Default returns a config with all defaults applied for the given base dir.
// An empty baseDir resolves to ~/.gitchat.
func Default(baseDir string) *Config {
	if baseDir == "" {
		home, _ := os.UserHomeDir()
		baseDir = filepath.Join(home, ".gitchat")
	}
	return &Config{
		HTTPAddr:     DefaultHTTPAddr,
		PollInterval: DefaultPollInterval,
		BaseDir:      baseDir,
	}
}

// Load builds the effective config: defaults, then the toml file at
// <base>/config.toml if present, then a .env file in the working directory
// if present, then process environment variables. Later sources win.
func Load(baseDir string) (*Config, error) {
	cfg := Default(baseDir)

	path := cfg.FilePath()
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			return nil, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	// Best effort: a missing .env is not an error.
	_ = godotenv.Load()

	cfg.applyEnv()
	if cfg.HTTPAddr == "" {
		cfg.HTTPAddr = DefaultHTTPAddr
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		c.GitHubToken = v
	}
	if v := os.Getenv("GITHUB_REPO"); v != "" {
		c.GitHubRepo = v
	}
	if v := os.Getenv("MESSAGES_DIR"); v != "" {
		c.WorktreeDir = v
	}
	if v := os.Getenv("DATABASE_PATH"); v != "" {
		c.DatabasePath = v
	}
	if v := os.Getenv("GITCHAT_HTTP_ADDR"); v != "" {
		c.HTTPAddr = v
	}
}

// Save writes config to <base>/config.toml, creating parent dirs as needed.
func (c *Config) Save() error {
	path := c.FilePath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(c)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// Get returns a settable key's current value. Used by `gitchat setup --get`.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "github_token":
		return c.GitHubToken, nil
	case "github_repo":
		return c.GitHubRepo, nil
	case "http_addr":
		return c.HTTPAddr, nil
	case "base_dir":
		return c.BaseDir, nil
	case "database_path":
		return c.ResolveDatabasePath(), nil
	case "worktree_dir":
		return c.ResolveWorktreeDir(), nil
	default:
		return "", fmt.Errorf("unknown config key %q", key)
	}
}

// Set updates a settable key in memory. The caller is responsible for Save.
func (c *Config) Set(key, value string) error {
	switch key {
	case "github_token":
		c.GitHubToken = value
	case "github_repo":
		c.GitHubRepo = value
	case "http_addr":
		c.HTTPAddr = value
	case "database_path":
		c.DatabasePath = value
	case "worktree_dir":
		c.WorktreeDir = value
	default:
		return fmt.Errorf("unknown config key %q", key)
	}
	return nil
}

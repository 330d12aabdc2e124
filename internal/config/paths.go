package config

import (
	"os"
	"path/filepath"
)

// FilePath returns the config file path.
func (c *Config) FilePath() string {
	return filepath.Join(c.BaseDir, "config.toml")
}

// ResolveDatabasePath returns the SQLite database path.
func (c *Config) ResolveDatabasePath() string {
	if c.DatabasePath != "" {
		return c.DatabasePath
	}
	return filepath.Join(c.BaseDir, "chat.db")
}

// ResolveWorktreeDir returns the local clone of the main remote, where
// message files are written and committed.
func (c *Config) ResolveWorktreeDir() string {
	if c.WorktreeDir != "" {
		return c.WorktreeDir
	}
	return filepath.Join(c.BaseDir, "board")
}

// RemotesDir returns the directory holding local clones of pull-sources.
func (c *Config) RemotesDir() string {
	return filepath.Join(c.BaseDir, "remotes")
}

// ReposFilePath returns the repos.txt registry path.
func (c *Config) ReposFilePath() string {
	return filepath.Join(c.BaseDir, "repos.txt")
}

// LogDir returns the daemon log directory.
func (c *Config) LogDir() string {
	return filepath.Join(c.BaseDir, "logs")
}

// LogPath returns the daemon log file path.
func (c *Config) LogPath() string {
	return filepath.Join(c.LogDir(), "gitchatd.log")
}

// EnsureDirs creates the base directory tree with owner-only permissions.
func (c *Config) EnsureDirs() error {
	dirs := []string{
		c.BaseDir,
		c.RemotesDir(),
		c.LogDir(),
		filepath.Dir(c.ResolveDatabasePath()),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0700); err != nil {
			return err
		}
	}
	return nil
}

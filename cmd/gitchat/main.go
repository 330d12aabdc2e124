package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/board"
	"github.com/matheus3301/gitchat/internal/bus"
	"github.com/matheus3301/gitchat/internal/config"
	"github.com/matheus3301/gitchat/internal/daemon"
	"github.com/matheus3301/gitchat/internal/github"
	"github.com/matheus3301/gitchat/internal/gitx"
	"github.com/matheus3301/gitchat/internal/lock"
	"github.com/matheus3301/gitchat/internal/merge"
	"github.com/matheus3301/gitchat/internal/mirror"
	"github.com/matheus3301/gitchat/internal/registry"
	"github.com/matheus3301/gitchat/internal/remote"
	"github.com/matheus3301/gitchat/internal/store"
)

var dataDir string

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "gitchat",
	Short: "Git-backed message board",
}

// env bundles the components a direct (daemon-less) command needs.
// The caller must defer env.Close().
type env struct {
	cfg    *config.Config
	db     *store.DB
	reg    *registry.Registry
	syncer *remote.Syncer
	mirror *mirror.Mirror
	board  *board.Board
}

func (e *env) Close() {
	if e.db != nil {
		_ = e.db.Close()
	}
}

func newEnv() (*env, error) {
	cfg, err := config.Load(dataDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.EnsureDirs(); err != nil {
		return nil, err
	}

	db, err := store.Open(cfg.ResolveDatabasePath())
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}
	if _, err := db.Migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrating store: %w", err)
	}

	reg, err := registry.Load(cfg.ReposFilePath())
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("loading repos file: %w", err)
	}

	logger := zap.NewNop()
	syncer := remote.New(cfg.ResolveWorktreeDir(), cfg.RemotesDir(), remote.DefaultBranch,
		remote.Options{Token: cfg.GitHubToken}, logger)
	mir := mirror.New(cfg.ResolveWorktreeDir(), remote.DefaultBranch)

	return &env{
		cfg:    cfg,
		db:     db,
		reg:    reg,
		syncer: syncer,
		mirror: mir,
		board:  board.New(db, mir, syncer, bus.New(), logger),
	}, nil
}

// ensureWorktree prepares the mirror for commands that touch git.
func (e *env) ensureWorktree() error {
	main, _ := e.reg.Main()
	if err := e.syncer.EnsureWorktree(main); err != nil {
		return err
	}
	return e.syncer.EnsureIdentity("gitchat", "gitchat@localhost")
}

var pushCmd = &cobra.Command{
	Use:   "push",
	Short: "Commit pending messages and push to the main repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		all, _ := cmd.Flags().GetBool("all")
		message, _ := cmd.Flags().GetString("message")

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()
		if err := e.ensureWorktree(); err != nil {
			return err
		}

		if all {
			wt := e.cfg.ResolveWorktreeDir()
			if err := gitx.Add(wt, "."); err != nil {
				return err
			}
			staged, err := gitx.StagedFiles(wt)
			if err != nil {
				return err
			}
			if len(staged) > 0 {
				if message == "" {
					message = fmt.Sprintf("Sync %d file(s)", len(staged))
				}
				if _, err := gitx.Commit(wt, message, false); err != nil {
					return err
				}
				fmt.Printf("Committed %d file(s)\n", len(staged))
			}
		}

		if n, err := e.board.Recover(); err != nil {
			return fmt.Errorf("committing pending messages: %w", err)
		} else if n > 0 {
			fmt.Printf("Committed %d pending message(s)\n", n)
		}

		if _, ok := e.reg.Main(); !ok {
			return errors.New("no main repository configured; run `gitchat setup --repo owner/name` first")
		}

		res, err := e.syncer.Push(force)
		if err != nil {
			return fmt.Errorf("push failed: %w", err)
		}
		if !res.Pushed {
			fmt.Println("Nothing to push.")
			return nil
		}
		fmt.Printf("Pushed %s\n", res.CommitHash)
		return nil
	},
}

var pullCmd = &cobra.Command{
	Use:   "pull",
	Short: "Sync pull-sources and print the merged feed",
	RunE: func(cmd *cobra.Command, args []string) error {
		includeMain, _ := cmd.Flags().GetBool("include-main")
		limit, _ := cmd.Flags().GetInt("limit")

		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		engine := merge.NewEngine(e.db, e.reg, e.syncer, zap.NewNop())
		msgs, err := engine.Feed(includeMain, limit)
		if err != nil {
			return err
		}
		if len(msgs) == 0 {
			fmt.Println("No messages.")
			return nil
		}
		for _, m := range msgs {
			fmt.Printf("[%s] (%s) %s\n", m.Timestamp, m.OriginRepo, m.Content)
		}
		return nil
	},
}

// repos command

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "Manage the repository registry",
}

var reposListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		entries := e.reg.List()
		if len(entries) == 0 {
			fmt.Println("No repositories registered.")
			return nil
		}
		for _, entry := range entries {
			marker := " "
			if entry.Role == registry.RoleMain {
				marker = "*"
			}
			fmt.Printf("%s %s\n", marker, entry.Identifier)
		}
		return nil
	},
}

var reposAddCmd = &cobra.Command{
	Use:   "add <owner/name>",
	Short: "Register a repository (first one becomes main)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.reg.Add(args[0]); err != nil {
			return err
		}
		fmt.Printf("Added %s\n", args[0])
		return nil
	},
}

var reposRemoveCmd = &cobra.Command{
	Use:   "remove <owner/name>",
	Short: "Unregister a repository",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.reg.Remove(args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

var reposSetMainCmd = &cobra.Command{
	Use:   "set-main <owner/name>",
	Short: "Make a registered repository the push target",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		if err := e.reg.SetMain(args[0]); err != nil {
			return err
		}
		fmt.Printf("Main repository is now %s\n", args[0])
		return nil
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Configure the board and its main repository",
	RunE: func(cmd *cobra.Command, args []string) error {
		token, _ := cmd.Flags().GetString("token")
		repo, _ := cmd.Flags().GetString("repo")
		private, _ := cmd.Flags().GetBool("private")
		getKey, _ := cmd.Flags().GetString("get")
		setPair, _ := cmd.Flags().GetString("set")

		cfg, err := config.Load(dataDir)
		if err != nil {
			return err
		}

		if getKey != "" {
			v, err := cfg.Get(getKey)
			if err != nil {
				return err
			}
			fmt.Println(v)
			return nil
		}
		if setPair != "" {
			key, value, ok := strings.Cut(setPair, "=")
			if !ok {
				return errors.New("--set expects key=value")
			}
			if err := cfg.Set(key, value); err != nil {
				return err
			}
			return cfg.Save()
		}

		if token != "" {
			cfg.GitHubToken = token
		}
		if repo != "" {
			if err := registry.ValidateIdentifier(repo); err != nil {
				return err
			}
			cfg.GitHubRepo = repo
		}
		if cfg.GitHubToken == "" || cfg.GitHubRepo == "" {
			return errors.New("both --token and --repo are required on first setup")
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		gh := github.New(cfg.GitHubToken)
		owner, name, _ := strings.Cut(cfg.GitHubRepo, "/")
		if _, err := gh.GetRepo(ctx, owner, name); err != nil {
			var aerr *github.APIError
			if !errors.As(err, &aerr) || aerr.StatusCode != 404 {
				return fmt.Errorf("checking repository: %w", err)
			}
			user, err := gh.AuthenticatedUser(ctx)
			if err != nil {
				return fmt.Errorf("authenticating: %w", err)
			}
			if user != owner {
				return fmt.Errorf("repository %s not found and token cannot create repos for %q", cfg.GitHubRepo, owner)
			}
			if _, err := gh.CreateRepo(ctx, name, private); err != nil {
				return fmt.Errorf("creating repository: %w", err)
			}
			fmt.Printf("Created repository %s\n", cfg.GitHubRepo)
		}

		if err := cfg.Save(); err != nil {
			return err
		}
		if err := cfg.EnsureDirs(); err != nil {
			return err
		}

		reg, err := registry.Load(cfg.ReposFilePath())
		if err != nil {
			return err
		}
		if _, ok := reg.Main(); !ok {
			if err := reg.Add(cfg.GitHubRepo); err != nil {
				return err
			}
		}

		syncer := remote.New(cfg.ResolveWorktreeDir(), cfg.RemotesDir(), remote.DefaultBranch,
			remote.Options{Token: cfg.GitHubToken}, zap.NewNop())
		main, _ := reg.Main()
		if err := syncer.EnsureWorktree(main); err != nil {
			return fmt.Errorf("preparing worktree: %w", err)
		}
		if err := syncer.EnsureIdentity("gitchat", "gitchat@localhost"); err != nil {
			return err
		}

		fmt.Printf("Configured. Main repository: %s\n", cfg.GitHubRepo)
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the board daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")

		cfg, err := config.Load(dataDir)
		if err != nil {
			return err
		}
		app := fx.New(daemon.Module(daemon.Params{Config: cfg, HTTPAddr: addr}))
		app.Run()
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show local store and mirror statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		e, err := newEnv()
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.db.ComputeStats()
		if err != nil {
			return err
		}
		files, bytes := e.mirror.TreeStats()

		fmt.Printf("Messages:      %d\n", stats.TotalMessages)
		fmt.Printf("Last 24h:      %d\n", stats.Last24hCount)
		if stats.FirstTimestamp != "" {
			fmt.Printf("First message: %s\n", stats.FirstTimestamp)
			fmt.Printf("Last message:  %s\n", stats.LastTimestamp)
		}
		fmt.Printf("Mirror files:  %d (%d bytes)\n", files, bytes)
		fmt.Printf("Repositories:  %d\n", len(e.reg.List()))

		if held, pid := lock.Probe(e.cfg.BaseDir); held {
			fmt.Printf("Daemon:        running (pid %d)\n", pid)
		} else {
			fmt.Println("Daemon:        not running")
		}

		uncommitted, err := e.db.Uncommitted()
		if err == nil && len(uncommitted) > 0 {
			fmt.Printf("Pending:       %d message(s) not yet committed\n", len(uncommitted))
		}
		return nil
	},
}

func init() {
	pushCmd.Flags().BoolP("force", "f", false, "Push even when nothing is pending")
	pushCmd.Flags().BoolP("all", "a", false, "Stage and commit every change in the worktree first")
	pushCmd.Flags().StringP("message", "m", "", "Commit message to use with --all")
	pullCmd.Flags().Bool("include-main", false, "Also merge messages from the main repository clone")
	pullCmd.Flags().IntP("limit", "n", 0, "Maximum number of messages to print")

	reposCmd.AddCommand(reposListCmd)
	reposCmd.AddCommand(reposAddCmd)
	reposCmd.AddCommand(reposRemoveCmd)
	reposCmd.AddCommand(reposSetMainCmd)

	setupCmd.Flags().String("token", "", "GitHub personal access token")
	setupCmd.Flags().String("repo", "", "Main repository as owner/name")
	setupCmd.Flags().Bool("private", true, "Create the repository as private when missing")
	setupCmd.Flags().String("get", "", "Print a config value and exit")
	setupCmd.Flags().String("set", "", "Set a config value as key=value and exit")

	serveCmd.Flags().String("addr", "", "HTTP listen address (overrides config)")

	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default ~/.gitchat)")
	rootCmd.AddCommand(pushCmd)
	rootCmd.AddCommand(pullCmd)
	rootCmd.AddCommand(reposCmd)
	rootCmd.AddCommand(setupCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statsCmd)
}

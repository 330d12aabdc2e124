// Package daemon composes the board daemon out of its parts: store, mirror,
// remote syncer, pusher, poller and the HTTP gateway, wired with fx.
package daemon

import (
	"context"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/gitchat/internal/board"
	"github.com/matheus3301/gitchat/internal/bus"
	"github.com/matheus3301/gitchat/internal/config"
	"github.com/matheus3301/gitchat/internal/gateway"
	"github.com/matheus3301/gitchat/internal/github"
	"github.com/matheus3301/gitchat/internal/lock"
	"github.com/matheus3301/gitchat/internal/logging"
	"github.com/matheus3301/gitchat/internal/merge"
	"github.com/matheus3301/gitchat/internal/mirror"
	"github.com/matheus3301/gitchat/internal/poller"
	"github.com/matheus3301/gitchat/internal/pusher"
	"github.com/matheus3301/gitchat/internal/registry"
	"github.com/matheus3301/gitchat/internal/remote"
	"github.com/matheus3301/gitchat/internal/status"
	"github.com/matheus3301/gitchat/internal/store"
)

// Params holds the resolved configuration passed to the fx module.
type Params struct {
	Config *config.Config
	// HTTPAddr overrides the configured listen address when non-empty.
	HTTPAddr string
}

// Module returns the fx module for the daemon, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideTracker,
			provideLock,
			provideStore,
			provideRegistry,
			provideSyncer,
			provideMirror,
			provideBoard,
			provideGitHub,
			provideMergeEngine,
			providePusher,
			providePoller,
			provideGateway,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(p.Config.LogPath())
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideTracker(b *bus.Bus) *status.Tracker {
	return status.NewTracker(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := p.Config.EnsureDirs(); err != nil {
		return nil, err
	}
	logger.Info("acquiring data dir lock", zap.String("dir", p.Config.BaseDir))
	l, err := lock.Acquire(p.Config.BaseDir)
	if err != nil {
		return nil, err
	}
	logger.Info("data dir lock acquired")
	return l, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := p.Config.ResolveDatabasePath()
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideRegistry(p Params) (*registry.Registry, error) {
	reg, err := registry.Load(p.Config.ReposFilePath())
	if err != nil {
		return nil, err
	}
	// A configured github_repo becomes the main entry on first boot.
	if _, ok := reg.Main(); !ok && p.Config.GitHubRepo != "" {
		if err := reg.Add(p.Config.GitHubRepo); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

func provideSyncer(p Params, logger *zap.Logger) *remote.Syncer {
	return remote.New(
		p.Config.ResolveWorktreeDir(),
		p.Config.RemotesDir(),
		remote.DefaultBranch,
		remote.Options{Token: p.Config.GitHubToken},
		logger,
	)
}

func provideMirror(p Params) *mirror.Mirror {
	return mirror.New(p.Config.ResolveWorktreeDir(), remote.DefaultBranch)
}

func provideBoard(db *store.DB, m *mirror.Mirror, s *remote.Syncer, b *bus.Bus, logger *zap.Logger) *board.Board {
	return board.New(db, m, s, b, logger)
}

func provideGitHub(p Params) *github.Client {
	return github.New(p.Config.GitHubToken)
}

func provideMergeEngine(db *store.DB, reg *registry.Registry, s *remote.Syncer, logger *zap.Logger) *merge.Engine {
	return merge.NewEngine(db, reg, s, logger)
}

func providePusher(s *remote.Syncer, b *bus.Bus, logger *zap.Logger) *pusher.Pusher {
	return pusher.New(s, b, logger)
}

func providePoller(p Params, s *remote.Syncer, reg *registry.Registry, b *bus.Bus, logger *zap.Logger) *poller.Poller {
	return poller.New(s, reg, p.Config.PollInterval, b, logger)
}

func provideGateway(brd *board.Board, engine *merge.Engine, reg *registry.Registry, gh *github.Client, tracker *status.Tracker, logger *zap.Logger) *gateway.Server {
	return gateway.NewServer(brd, engine, reg, gh, tracker, logger)
}

func registerLifecycle(lc fx.Lifecycle, p Params, srv *Server, lk *lock.Lock, brd *board.Board, syncer *remote.Syncer, reg *registry.Registry, psh *pusher.Pusher, pol *poller.Poller, tracker *status.Tracker, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			main, _ := reg.Main()
			if err := syncer.EnsureWorktree(main); err != nil {
				return err
			}
			if err := syncer.EnsureIdentity("gitchat", "gitchat@localhost"); err != nil {
				return err
			}

			tracker.Start(context.Background())

			// Commit anything stranded by a previous crash before the
			// pusher starts syncing.
			if n, err := brd.Recover(); err != nil {
				logger.Warn("recovery failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("recovered stranded messages", zap.Int("count", n))
			}

			psh.Start(context.Background())
			pol.Start(context.Background())

			go func() {
				if err := srv.Start(); err != nil {
					logger.Error("http server error", zap.Error(err))
					_ = tracker.Transition(status.Error)
				}
			}()

			_ = tracker.Transition(status.Ready)
			logger.Info("daemon ready", zap.String("addr", srv.Addr()))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			pol.Stop()
			psh.Stop()
			tracker.Stop()
			srv.Stop(ctx)
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}

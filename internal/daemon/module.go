package daemon

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/matheus3301/chatsync/internal/api"
	"github.com/matheus3301/chatsync/internal/bus"
	"github.com/matheus3301/chatsync/internal/config"
	"github.com/matheus3301/chatsync/internal/directory"
	"github.com/matheus3301/chatsync/internal/inbox"
	"github.com/matheus3301/chatsync/internal/lock"
	"github.com/matheus3301/chatsync/internal/logging"
	"github.com/matheus3301/chatsync/internal/media"
	"github.com/matheus3301/chatsync/internal/notify"
	"github.com/matheus3301/chatsync/internal/provider/local"
	"github.com/matheus3301/chatsync/internal/session"
	"github.com/matheus3301/chatsync/internal/status"
	"github.com/matheus3301/chatsync/internal/storage"
	"github.com/matheus3301/chatsync/internal/store"
	"github.com/matheus3301/chatsync/internal/thread"
)

const (
	enrichConcurrency = 8
	notifyBuffer      = 16
	janitorInterval   = time.Minute
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	SocketPath string // optional override for testing; empty = use default

	// Config overrides the file and environment configuration when set.
	Config *config.Config
	// Launch is the notification the daemon was started from, if any.
	Launch *notify.Notification
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideConfig,
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideObjectStore,
			provideBackend,
			provideDirectory,
			provideSessionManager,
			provideThreads,
			provideMediaCache,
			provideLoader,
			provideActions,
			NewNavigator,
			NewDisplayer,
			provideNotifySource,
			provideRouter,
			provideHandler,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideConfig(p Params) (*config.Config, error) {
	if p.Config != nil {
		return p.Config, nil
	}
	cfg, err := config.Resolve(session.ConfigPath())
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}

func provideLogger(p Params, cfg *config.Config) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile, logging.Options{
		Level:   cfg.Log.Level,
		Console: !cfg.Log.Quiet,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the database is never opened by two daemons.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.DBPath(p.Profile)
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
		logger.Info("migrations applied", zap.Uint("from", result.From), zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideObjectStore(cfg *config.Config) (storage.ObjectStore, error) {
	return storage.NewS3Storage(storage.S3Config{
		Endpoint:        cfg.S3.Endpoint,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		Bucket:          cfg.S3.Bucket,
		Region:          cfg.S3.Region,
	})
}

func provideBackend(cfg *config.Config, db *store.DB, b *bus.Bus, objects storage.ObjectStore, logger *zap.Logger) *local.Backend {
	return local.New(db, b, objects, logger, local.Options{
		TokenTTL:    cfg.Provider.TokenTTL,
		RefreshLead: cfg.Provider.TokenRefreshLead,
		URLTTL:      cfg.Media.URLTTL,
	})
}

func provideDirectory(cfg *config.Config) *directory.Client {
	return directory.New(
		directory.WithBaseURL(cfg.Directory.BaseURL),
		directory.WithTimeout(cfg.Directory.Timeout),
	)
}

func provideSessionManager(cfg *config.Config, backend *local.Backend, dir *directory.Client, m *status.Machine, logger *zap.Logger) (*session.Manager, error) {
	if cfg.Provider.Mode != "local" {
		return nil, fmt.Errorf("unsupported provider mode %q", cfg.Provider.Mode)
	}
	return session.NewManager(backend, backend, dir, m, logger), nil
}

func provideThreads(cfg *config.Config, mgr *session.Manager, logger *zap.Logger) *thread.Registry {
	return thread.NewRegistry(mgr, cfg.Provider.PageSize, logger)
}

func provideMediaCache(cfg *config.Config, mgr *session.Manager, logger *zap.Logger) *media.Cache {
	return media.NewCache(mgr, media.Options{
		Capacity: cfg.Media.CacheCapacity,
		TTL:      cfg.Media.URLTTL,
	}, logger)
}

func provideLoader(mgr *session.Manager, logger *zap.Logger) *inbox.Loader {
	return inbox.NewLoader(mgr, mgr, inbox.NewEnricher(mgr, enrichConcurrency, logger), logger)
}

func provideActions(mgr *session.Manager, logger *zap.Logger) *inbox.Actions {
	return inbox.NewActions(mgr, logger)
}

func provideNotifySource(p Params) *notify.ChannelSource {
	src := notify.NewChannelSource(notifyBuffer)
	if p.Launch != nil {
		src.SetInitial(*p.Launch)
	}
	return src
}

func provideRouter(nav *Navigator, display *Displayer, logger *zap.Logger) *notify.Router {
	return notify.NewRouter(nav, display, logger)
}

func provideHandler(
	p Params,
	logger *zap.Logger,
	m *status.Machine,
	mgr *session.Manager,
	loader *inbox.Loader,
	actions *inbox.Actions,
	nav *Navigator,
	threads *thread.Registry,
	cache *media.Cache,
	src *notify.ChannelSource,
	router *notify.Router,
) http.Handler {
	return api.NewRouter(logger,
		api.NewSessionHandler(p.Profile, m, mgr, router),
		api.NewInboxHandler(loader, actions, nav, threads),
		api.NewThreadHandler(threads),
		api.NewMediaHandler(cache, mgr),
		api.NewNotifyHandler(src, router),
	)
}

type lifecycleParams struct {
	fx.In

	Server  *Server
	Lock    *lock.Lock
	DB      *store.DB
	Bus     *bus.Bus
	Backend *local.Backend
	Session *session.Manager
	Threads *thread.Registry
	Cache   *media.Cache
	Router  *notify.Router
	Source  *notify.ChannelSource
	Logger  *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, d lifecycleParams) {
	var (
		cancel context.CancelFunc
		wg     sync.WaitGroup
	)
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := d.Session.Boot(); err != nil {
				return err
			}
			d.Session.OnSignOut(d.Threads.CloseAll)
			d.Session.OnSignOut(d.Cache.Clear)

			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())

			// Navigation is usable once a client is ready to open threads.
			statusCh, unsub := d.Bus.Subscribe(status.KindStatusChanged, 16)
			wg.Go(func() {
				defer unsub()
				markReadyOnSession(ctx, statusCh, d.Router)
			})
			wg.Go(func() { _ = d.Router.Run(ctx) })
			wg.Go(func() { _ = d.Router.Listen(ctx, d.Source) })
			wg.Go(func() { janitor(ctx, d.Backend, d.Cache, d.Bus, d.Logger) })

			go func() {
				if err := d.Server.Start(); err != nil {
					d.Logger.Error("control API error", zap.Error(err))
				}
			}()

			d.Logger.Info("daemon started, sign-in required")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			d.Server.Stop(ctx)
			if err := d.Session.SignOut(); err != nil {
				d.Logger.Warn("sign out", zap.Error(err))
			}
			cancel()
			wg.Wait()
			if err := d.DB.Close(); err != nil {
				d.Logger.Warn("error closing store", zap.Error(err))
			}
			if err := d.Lock.Release(); err != nil {
				d.Logger.Warn("error releasing lock", zap.Error(err))
			}
			d.Logger.Info("daemon stopped")
			_ = d.Logger.Sync()
			return nil
		},
	})
}

func markReadyOnSession(ctx context.Context, events <-chan bus.Event, router *notify.Router) {
	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-events:
			if change, ok := evt.Payload.(status.StatusChange); ok && change.To == status.Ready {
				router.MarkReady()
			}
		}
	}
}

func janitor(ctx context.Context, backend *local.Backend, cache *media.Cache, b *bus.Bus, logger *zap.Logger) {
	ticker := time.NewTicker(janitorInterval)
	defer ticker.Stop()
	var dropped int64
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n, err := backend.PurgeExpiredTokens(); err != nil {
				logger.Warn("token purge failed", zap.Error(err))
			} else if n > 0 {
				logger.Info("expired tokens purged", zap.Int64("count", n))
			}
			if n := cache.EvictOldestIfOverCapacity(); n > 0 {
				logger.Debug("media cache trimmed", zap.Int("evicted", n))
			}
			if n := b.Dropped(); n > dropped {
				logger.Warn("bus deliveries dropped",
					zap.Int64("since_last", n-dropped),
					zap.Int("subscribers", b.Subscribers()),
				)
				dropped = n
			}
		}
	}
}

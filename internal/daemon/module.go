package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/sherry5707/Messaging/internal/api"
	"github.com/sherry5707/Messaging/internal/bus"
	"github.com/sherry5707/Messaging/internal/busbridge"
	"github.com/sherry5707/Messaging/internal/command"
	"github.com/sherry5707/Messaging/internal/config"
	"github.com/sherry5707/Messaging/internal/journal"
	"github.com/sherry5707/Messaging/internal/listdata"
	"github.com/sherry5707/Messaging/internal/lock"
	"github.com/sherry5707/Messaging/internal/logging"
	"github.com/sherry5707/Messaging/internal/metrics"
	"github.com/sherry5707/Messaging/internal/profile"
	"github.com/sherry5707/Messaging/internal/status"
	"github.com/sherry5707/Messaging/internal/store"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile    string
	Config     *config.Config
	BaseDir    string // optional override of the profile directory; empty = use default
	SocketPath string // optional override for testing; empty = use default
	Logger     *zap.Logger
}

func (p Params) dir() string {
	if p.BaseDir != "" {
		return p.BaseDir
	}
	return profile.Dir(p.Profile)
}

func (p Params) config() *config.Config {
	if p.Config != nil {
		return p.Config
	}
	return config.Default()
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideJournal,
			provideExecutor,
			provideListSource,
			provideCommandService,
			provideMetricsServer,
			provideBridge,
			NewServer,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if p.Logger != nil {
		return p.Logger, nil
	}
	cfg := p.config().Log
	return logging.New(logging.Options{
		Path:    profile.LogPath(p.Profile),
		Profile: p.Profile,
		Level:   cfg.Level,
		Stderr:  cfg.Stderr,
	})
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(p.dir())
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

// provideStore depends on the lock so the store is never opened by a second
// daemon.
func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := filepath.Join(p.dir(), "messaging.db")
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

func provideJournal(p Params, _ *lock.Lock) (*journal.Journal, error) {
	return journal.Open(filepath.Join(p.dir(), "journal"))
}

func provideExecutor(p Params, db *store.DB, b *bus.Bus, j *journal.Journal, logger *zap.Logger) *command.Executor {
	ec := p.config().Executor
	cfg := command.Config{
		MaxRetries:      ec.MaxRetries,
		RetryBackoff:    ec.RetryBackoff(),
		DeferredWorkers: ec.DeferredWorkers,
	}
	return command.NewExecutor(db, b, j, cfg, logger.Named("executor"))
}

func provideListSource(p Params, db *store.DB, b *bus.Bus, logger *zap.Logger) *listdata.Source {
	return listdata.NewSource(db, b, listdata.Options{
		FavoriteTimeout: p.config().ReadSide.FavoriteLookupTimeout(),
	}, logger.Named("listdata"))
}

func provideCommandService(p Params, ex *command.Executor, db *store.DB, lists *listdata.Source, m *status.Machine, b *bus.Bus, logger *zap.Logger) *api.CommandService {
	return api.NewCommandService(p.Profile, ex, db, lists, m, b, logger.Named("api"))
}

func provideMetricsServer(p Params, m *status.Machine, logger *zap.Logger) *metrics.Server {
	health := func() (string, bool) {
		s := m.Current()
		return string(s), s == status.Ready || s == status.Replaying
	}
	return metrics.NewServer(p.config().Metrics.Addr, health, logger.Named("metrics"))
}

// provideBridge returns nil when no NATS URL is configured.
func provideBridge(p Params, b *bus.Bus, logger *zap.Logger) (*busbridge.Bridge, error) {
	nc := p.config().NATS
	if nc.URL == "" {
		return nil, nil
	}
	conn, err := busbridge.Connect(nc.URL, logger)
	if err != nil {
		return nil, err
	}
	return busbridge.New(b, conn, busbridge.Config{
		URL:           nc.URL,
		SubjectPrefix: nc.SubjectPrefix,
		Profile:       p.Profile,
	}, logger.Named("busbridge")), nil
}

type lifecycleParams struct {
	fx.In

	Server   *Server
	Lock     *lock.Lock
	Store    *store.DB
	Executor *command.Executor
	Machine  *status.Machine
	Metrics  *metrics.Server
	Bridge   *busbridge.Bridge
	Logger   *zap.Logger
}

func registerLifecycle(lc fx.Lifecycle, lp lifecycleParams) {
	logger := lp.Logger
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			if err := lp.Metrics.Start(); err != nil {
				return err
			}
			if lp.Bridge != nil {
				lp.Bridge.Start(context.Background())
			}

			if err := lp.Machine.Transition(status.Replaying); err != nil {
				return err
			}
			// Serve during replay: submissions queue behind the journal.
			go func() {
				if err := lp.Server.Start(); err != nil {
					logger.Error("gRPC server error", zap.Error(err))
				}
			}()

			replayed, err := lp.Executor.Start(context.Background())
			if err != nil {
				_ = lp.Machine.Transition(status.Error)
				return fmt.Errorf("replay journal: %w", err)
			}
			logger.Info("executor started", zap.Int("replayed", replayed))
			return lp.Machine.Transition(status.Ready)
		},
		OnStop: func(ctx context.Context) error {
			_ = lp.Machine.Transition(status.Draining)
			lp.Server.Stop(ctx)
			if err := lp.Executor.Stop(ctx); err != nil {
				logger.Warn("executor stop", zap.Error(err))
			}
			if lp.Bridge != nil {
				lp.Bridge.Stop()
			}
			if err := lp.Metrics.Stop(ctx); err != nil {
				logger.Warn("metrics server stop", zap.Error(err))
			}
			if err := lp.Store.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lp.Lock.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			_ = lp.Machine.Transition(status.Stopped)
			logger.Info("daemon stopped")
			return nil
		},
	})
}

package app

import (
	"context"
	"errors"
	"time"

	"github.com/bizdesk/deskchat/internal/bus"
	"github.com/bizdesk/deskchat/internal/config"
	"github.com/bizdesk/deskchat/internal/lock"
	"github.com/bizdesk/deskchat/internal/logging"
	"github.com/bizdesk/deskchat/internal/outbox"
	"github.com/bizdesk/deskchat/internal/profile"
	"github.com/bizdesk/deskchat/internal/rest"
	"github.com/bizdesk/deskchat/internal/socket"
	"github.com/bizdesk/deskchat/internal/status"
	"github.com/bizdesk/deskchat/internal/store"
	intsync "github.com/bizdesk/deskchat/internal/sync"
	"github.com/bizdesk/deskchat/internal/tui"
	"github.com/bizdesk/deskchat/internal/tui/model"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
	Config  *config.Config
}

// Identity is the authenticated user, resolved at startup. When the server
// is unreachable the id cached from the previous session is used so the
// client can come up offline against local data.
type Identity struct {
	SelfID string
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("deskchat",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideREST,
			provideSocket,
			provideIdentity,
			provideSyncEngine,
			provideSender,
			provideViewModel,
			provideApp,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	if err := profile.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	return logging.New(profile.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(profile.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideStore(p Params, _ *lock.Lock, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.DBPath(p.Profile)
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

func provideREST(p Params, logger *zap.Logger) *rest.Client {
	return rest.NewClient(p.Config.ServerURL, p.Config.Token, logger)
}

func provideSocket(p Params, b *bus.Bus, m *status.Machine, logger *zap.Logger) (*socket.Client, error) {
	return socket.NewClient(p.Config.ServerURL, p.Config.Token, b, m, logger)
}

func provideIdentity(api *rest.Client, db *store.DB, logger *zap.Logger) (Identity, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	user, err := api.CurrentUser(ctx)
	if err == nil {
		if err := db.SetState("self_id", user.ID); err != nil {
			return Identity{}, err
		}
		return Identity{SelfID: user.ID}, nil
	}

	logger.Warn("identity fetch failed, trying cached identity", zap.Error(err))
	cached, stateErr := db.GetState("self_id")
	if stateErr != nil {
		return Identity{}, stateErr
	}
	if cached == "" {
		return Identity{}, errors.New("server unreachable and no cached identity")
	}
	return Identity{SelfID: cached}, nil
}

func provideSyncEngine(db *store.DB, b *bus.Bus, logger *zap.Logger, ident Identity) *intsync.Engine {
	return intsync.NewEngine(db, b, logger, ident.SelfID)
}

func provideSender(db *store.DB, sock *socket.Client, b *bus.Bus, logger *zap.Logger, ident Identity) *outbox.Sender {
	return outbox.NewSender(db, sock, b, logger, ident.SelfID)
}

func provideViewModel(db *store.DB, api *rest.Client) *model.ViewModel {
	return model.NewViewModel(db, api)
}

func provideApp(p Params, vm *model.ViewModel, sock *socket.Client, sender *outbox.Sender, m *status.Machine, b *bus.Bus, logger *zap.Logger) *tui.App {
	return tui.NewApp(vm, sock, sender, m, b, logger, p.Profile)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, db *store.DB, api *rest.Client, sock *socket.Client, engine *intsync.Engine, sender *outbox.Sender, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			engine.Start(context.Background())
			sender.Start(context.Background())

			// Connect and bootstrap in the background; the UI comes up
			// immediately against cached data and flips to Ready (or
			// Offline) when this settles.
			go func() {
				ctx := context.Background()
				if err := sock.Connect(ctx); err != nil {
					logger.Warn("socket connect failed, starting offline", zap.Error(err))
					return
				}
				_ = machine.Transition(status.Syncing)
				if err := engine.Bootstrap(ctx, api); err != nil {
					logger.Error("bootstrap failed", zap.Error(err))
					_ = machine.Transition(status.Offline)
					return
				}
				_ = machine.Transition(status.Ready)
			}()
			return nil
		},
		OnStop: func(_ context.Context) error {
			sender.Stop()
			engine.Stop()
			sock.Close()
			if err := db.Close(); err != nil {
				logger.Warn("error closing store", zap.Error(err))
			}
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("client stopped")
			return nil
		},
	})
}

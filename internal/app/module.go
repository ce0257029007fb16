// Package app composes the client: configuration, profile lock, persisted
// session store, backend access, domain services, and the TUI shell.
package app

import (
	"context"
	"time"

	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/peerflex/peerflex/internal/backend"
	"github.com/peerflex/peerflex/internal/bus"
	"github.com/peerflex/peerflex/internal/chatview"
	"github.com/peerflex/peerflex/internal/config"
	"github.com/peerflex/peerflex/internal/lock"
	"github.com/peerflex/peerflex/internal/logging"
	"github.com/peerflex/peerflex/internal/profile"
	"github.com/peerflex/peerflex/internal/services"
	"github.com/peerflex/peerflex/internal/status"
	"github.com/peerflex/peerflex/internal/store"
	"github.com/peerflex/peerflex/internal/tui"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
}

// Module returns the fx module for the client, composing all providers and
// lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("app",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideConfig,
			provideBus,
			provideStateMachine,
			provideLock,
			provideStore,
			provideClient,
			provideFeed,
			provideChatService,
			provideConnectionService,
			provideEventService,
			provideNotificationService,
			provideLocationService,
			provideProfileService,
			provideChatView,
			provideTUI,
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

func provideConfig() (*config.Config, error) {
	return config.Load(profile.ConfigPath())
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

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := profile.AppDBPath(p.Profile)
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

func provideClient(cfg *config.Config, logger *zap.Logger) *backend.Client {
	return backend.NewClient(cfg.BackendURL, cfg.AnonKey, logger)
}

func provideFeed(cfg *config.Config, client *backend.Client, machine *status.Machine, logger *zap.Logger) *backend.Feed {
	token := func() string {
		if s := client.CurrentSession(); s != nil {
			return s.AccessToken
		}
		return ""
	}
	return backend.NewFeed(cfg.BackendURL, cfg.AnonKey, token, machine, logger)
}

func provideChatService(client *backend.Client, feed *backend.Feed, logger *zap.Logger) *services.ChatService {
	return services.NewChatService(client, feed, logger)
}

func provideConnectionService(client *backend.Client, logger *zap.Logger) *services.ConnectionService {
	return services.NewConnectionService(client, logger)
}

func provideEventService(client *backend.Client, logger *zap.Logger) *services.EventService {
	return services.NewEventService(client, logger)
}

func provideNotificationService(client *backend.Client, feed *backend.Feed, logger *zap.Logger) *services.NotificationService {
	return services.NewNotificationService(client, feed, logger)
}

func provideLocationService(logger *zap.Logger) *services.LocationService {
	return services.NewLocationService(nil, 5*time.Second, logger)
}

func provideProfileService(client *backend.Client, logger *zap.Logger) *services.ProfileService {
	return services.NewProfileService(client, logger)
}

func provideChatView(chat *services.ChatService, b *bus.Bus, logger *zap.Logger) *chatview.View {
	return chatview.New(chat, b, logger)
}

func provideTUI(p Params, client *backend.Client, feed *backend.Feed, machine *status.Machine, b *bus.Bus, db *store.DB, view *chatview.View, events *services.EventService, connections *services.ConnectionService, notifications *services.NotificationService, me *services.ProfileService, locations *services.LocationService, logger *zap.Logger) *tui.App {
	return tui.NewApp(tui.Deps{
		Profile:       p.Profile,
		Client:        client,
		Feed:          feed,
		Machine:       machine,
		Bus:           b,
		Store:         db,
		View:          view,
		Events:        events,
		Connections:   connections,
		Notifications: notifications,
		Me:            me,
		Locations:     locations,
		Logger:        logger,
	})
}

func registerLifecycle(lc fx.Lifecycle, shutdowner fx.Shutdowner, app *tui.App, client *backend.Client, feed *backend.Feed, view *chatview.View, machine *status.Machine, db *store.DB, lk *lock.Lock, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Restore a persisted session so restarts skip the login form.
			saved, err := db.LoadSession()
			if err != nil {
				logger.Warn("session restore failed", zap.Error(err))
			} else if saved != nil && !saved.Expired() {
				client.SetSession(saved)
				logger.Info("session restored", zap.String("user", saved.UserID))
			}

			if client.CurrentSession() == nil {
				logger.Info("no session found, auth required")
				_ = machine.Transition(status.AuthRequired)
			}

			// The TUI owns the foreground; shut the app down when it exits.
			go func() {
				if err := app.Run(); err != nil {
					logger.Error("tui error", zap.Error(err))
				}
				_ = shutdowner.Shutdown()
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			app.Stop()
			view.Stop()
			feed.Close()
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

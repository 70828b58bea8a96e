// Package app assembles the screens, their backend, and background jobs
// from a Config. Both front-ends start from here.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/knightlife/internal/admin"
	"github.com/dukerupert/knightlife/internal/config"
	"github.com/dukerupert/knightlife/internal/database"
	"github.com/dukerupert/knightlife/internal/kv"
	"github.com/dukerupert/knightlife/internal/lifecycle"
	"github.com/dukerupert/knightlife/internal/remote"
	"github.com/dukerupert/knightlife/internal/schedule"
	"github.com/dukerupert/knightlife/internal/screen"
	"github.com/dukerupert/knightlife/internal/store"
	"github.com/dukerupert/knightlife/internal/supabase"
)

// sessionStore is a Getter that holds a connection.
type sessionStore interface {
	kv.Getter
	io.Closer
}

type App struct {
	Config    config.Config
	DB        *sql.DB
	Gate      *remote.Gate
	Barrier   *lifecycle.Barrier
	Screens   screen.Set
	Scheduler *schedule.Scheduler

	// EventsAdmin and SearchAdmin hold the admin flag of the single local
	// user. Web clients get their own gates from the Sessions pair.
	EventsAdmin    *admin.Gate
	SearchAdmin    *admin.Gate
	EventsSessions *admin.Sessions
	SearchSessions *admin.Sessions
	Affordance     admin.Affordance

	ctx       context.Context
	logger    *slog.Logger
	openRedis func(ctx context.Context, url, prefix string) (sessionStore, error)

	mu     sync.Mutex
	client *supabase.Client
	redis  sessionStore
}

// New opens the database and wires the screens. The backend itself is not
// constructed until Barrier is released and a screen first asks for it.
// notify may be nil.
func New(ctx context.Context, cfg config.Config, logger *slog.Logger, notify func(screen.Summary)) (*App, error) {
	db, err := database.Open(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	eventsOpts := admin.Options{
		Password:     cfg.Admin.EventsPassword,
		PasswordHash: cfg.Admin.EventsPasswordHash,
		TapThreshold: cfg.Admin.TapThreshold,
		TapWindow:    cfg.Admin.TapWindow,
	}
	searchOpts := admin.Options{
		Password:     cfg.Admin.SearchPassword,
		PasswordHash: cfg.Admin.SearchPasswordHash,
		TapThreshold: cfg.Admin.TapThreshold,
		TapWindow:    cfg.Admin.TapWindow,
	}

	a := &App{
		Config:         cfg,
		DB:             db,
		Barrier:        lifecycle.NewBarrier(),
		EventsAdmin:    admin.New(eventsOpts),
		SearchAdmin:    admin.New(searchOpts),
		EventsSessions: admin.NewSessions(eventsOpts, admin.DefaultSessionTTL),
		SearchSessions: admin.NewSessions(searchOpts, admin.DefaultSessionTTL),
		Affordance:     admin.Affordance{DevBuild: cfg.Admin.DevBuild, SecretKey: cfg.Admin.SecretKey},
		ctx:            ctx,
		logger:         logger,
		openRedis:      dialRedis,
	}

	a.Gate = remote.NewGate(a.construct,
		remote.WithBarrier(a.Barrier.Done()),
		remote.WithLogger(logger.With("component", "gate")),
	)
	a.Screens = screen.NewSet(screen.SetConfig{
		Gate:         a.Gate,
		EventsAdmin:  a.EventsAdmin,
		SearchAdmin:  a.SearchAdmin,
		ReadTimeout:  cfg.Backend.ReadTimeout,
		WriteTimeout: cfg.Backend.WriteTimeout,
		Logger:       logger.With("component", "screen"),
		Notify:       notify,
	})

	a.Scheduler, err = schedule.New(cfg.Refresh.Cron,
		[]schedule.Loader{a.Screens.Events, a.Screens.Search},
		logger.With("component", "schedule"))
	if err != nil {
		db.Close()
		return nil, err
	}
	return a, nil
}

// Ready releases the barrier and starts the refresh schedule.
func (a *App) Ready() error {
	a.Barrier.Release()
	if err := a.Scheduler.Start(a.ctx); err != nil {
		return fmt.Errorf("start schedule: %w", err)
	}
	return nil
}

// construct builds the backend named by the config.
func (a *App) construct(ctx context.Context) (remote.Backend, error) {
	kind := a.Config.BackendKind()
	a.logger.Info("constructing backend", "kind", kind)

	switch kind {
	case config.BackendLocal:
		return store.NewLocal(a.DB), nil
	case config.BackendSupabase:
	default:
		return nil, fmt.Errorf("unknown backend %q", kind)
	}

	storage, conn, err := a.sessionStorage(ctx)
	if err != nil {
		return nil, err
	}

	opts := supabase.DefaultOptions(a.Config.Supabase.URL, a.Config.Supabase.AnonKey, storage)
	opts.RefreshInterval = a.Config.Supabase.RefreshInterval
	opts.Logger = a.logger.With("component", "supabase")
	client, err := supabase.New(ctx, opts)
	if err != nil {
		if conn != nil {
			conn.Close()
		}
		return nil, err
	}
	client.Start(a.ctx)

	a.mu.Lock()
	prev := a.redis
	a.client = client
	a.redis = conn
	a.mu.Unlock()
	if prev != nil && prev != conn {
		prev.Close()
	}
	return client, nil
}

// sessionStorage returns the session store and, for Redis, the connection
// the caller must close once it is no longer used.
func (a *App) sessionStorage(ctx context.Context) (kv.Getter, sessionStore, error) {
	if url := a.Config.Session.RedisURL; url != "" {
		r, err := a.openRedis(ctx, url, a.Config.Session.RedisPrefix)
		if err != nil {
			return nil, nil, err
		}
		return r, r, nil
	}
	s, err := kv.NewSQLite(ctx, a.DB, a.Config.Session.Passphrase)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", supabase.ErrStorageUnavailable, err)
	}
	return s, nil, nil
}

func dialRedis(ctx context.Context, url, prefix string) (sessionStore, error) {
	r, err := kv.NewRedis(url, prefix)
	if err != nil {
		return nil, err
	}
	if err := r.Ping(ctx); err != nil {
		r.Close()
		return nil, fmt.Errorf("%w: %v", supabase.ErrStorageUnavailable, err)
	}
	return r, nil
}

// RunSessionCleanup drops idle web admin sessions until ctx is done.
func (a *App) RunSessionCleanup(ctx context.Context, interval time.Duration) {
	go a.EventsSessions.RunCleanup(ctx, interval)
	a.SearchSessions.RunCleanup(ctx, interval)
}

// Close stops background work and releases the database.
func (a *App) Close() error {
	a.Scheduler.Stop()
	a.Screens.Unmount()

	a.mu.Lock()
	client, r := a.client, a.redis
	a.mu.Unlock()

	if client != nil {
		client.Stop()
	}
	var errs []error
	if r != nil {
		errs = append(errs, r.Close())
	}
	errs = append(errs, a.DB.Close())
	return errors.Join(errs...)
}

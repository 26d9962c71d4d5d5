package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/izbachat/izba/internal/config"
	"github.com/izbachat/izba/internal/core"
	"github.com/izbachat/izba/internal/store"
	"github.com/izbachat/izba/internal/store/sqlite"
	transporthttp "github.com/izbachat/izba/internal/transport/http"
)

// App wires together the store, hub and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with the provided configuration.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	if err := seedRooms(st, cfg.DefaultRooms); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("seed rooms: %w", err)
	}

	hub := core.NewHub(st, logger, cfg.HistoryLimit)
	server := transporthttp.NewServer(hub, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// seedRooms creates the configured default public rooms. The store is wiped
// on startup, so these are always fresh.
func seedRooms(st store.Store, names []string) error {
	ctx := context.Background()
	for _, name := range names {
		if _, err := st.CreateRoom(ctx, name, store.VisibilityPublic); err != nil {
			if errors.Is(err, store.ErrRoomExists) {
				continue
			}
			return fmt.Errorf("create room %q: %w", name, err)
		}
	}
	return nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	go func() {
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	a.log.Info().Str("addr", a.server.Addr).Msg("server listening")

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the store and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

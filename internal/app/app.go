package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/Ladkan/MeChat/internal/auth"
	"github.com/Ladkan/MeChat/internal/config"
	"github.com/Ladkan/MeChat/internal/core"
	"github.com/Ladkan/MeChat/internal/store"
	"github.com/Ladkan/MeChat/internal/store/sqlite"
	transporthttp "github.com/Ladkan/MeChat/internal/transport/http"
)

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := openStore(ctx, cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	resolvers := []auth.Resolver{auth.NewSessionResolver(st, cfg.SessionCookie)}
	if cfg.JWTSecret != "" {
		resolvers = append(resolvers, auth.NewJWTResolver(&auth.JWTConfig{
			Secret:   []byte(cfg.JWTSecret),
			Issuer:   cfg.JWTIssuer,
			Audience: cfg.JWTAudience,
		}, ""))
		logger.Info().Msg("bearer token authentication enabled")
	}
	gate := auth.NewGate(resolvers...)

	var policy core.JoinPolicy = core.AllowAll{}
	if cfg.StrictJoin {
		policy = core.KnownRoomPolicy{Rooms: st}
	}

	hub := core.NewHub(st, policy, logger)
	server := transporthttp.NewServer(hub, gate, st, cfg, logger)

	return &App{
		server:          server,
		shutdownTimeout: cfg.ShutdownTimeout,
		hub:             hub,
		store:           st,
		log:             logger,
	}, nil
}

// Migrate applies the schema to the configured database and exits.
func Migrate(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) error {
	st, err := openStore(ctx, cfg.DatabasePath)
	if err != nil {
		return err
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("schema applied")
	return st.Close()
}

func openStore(ctx context.Context, path string) (*sqlite.SQLiteStore, error) {
	st, err := sqlite.New(path)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(context.Background())
	hubDone := make(chan struct{})
	go func() {
		defer close(hubDone)
		a.hub.Run(hubCtx)
	}()

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		stopHub()
		<-hubDone
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		// Shutdown does not track hijacked connections; stopping the hub closes
		// every client's event stream so the WebSocket handlers return.
		stopHub()
		<-hubDone
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}

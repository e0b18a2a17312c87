package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/cors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/raffchen/inventory/internal/api"
	"github.com/raffchen/inventory/internal/config"
	"github.com/raffchen/inventory/internal/db"
	"github.com/raffchen/inventory/internal/domain"
	"github.com/raffchen/inventory/internal/export"
	"github.com/raffchen/inventory/internal/ingestion"
	"github.com/raffchen/inventory/internal/lifecycle"
	"github.com/raffchen/inventory/internal/repository"
)

var migrateOnStart bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().BoolVar(&migrateOnStart, "migrate", false, "apply pending migrations before serving (postgres backend)")
}

// openStore opens the configured backend. The returned health check may be nil.
func openStore(ctx context.Context, c config.Config) (repository.Store, func(context.Context) error, error) {
	switch c.Store.Backend {
	case config.BackendBadger:
		bdb, err := db.OpenBadger(c.Store.Badger, log.Logger)
		if err != nil {
			return nil, nil, err
		}
		stopGC := db.StartBadgerGC(bdb, c.Store.Badger.GCInterval, log.Logger)
		health := func(context.Context) error {
			if bdb.IsClosed() {
				return errors.New("badger is closed")
			}
			return nil
		}
		return gcStore{Store: repository.NewBadgerStore(bdb), stopGC: stopGC}, health, nil

	case config.BackendPostgres:
		if migrateOnStart {
			if err := db.MigrateUp(c.Database); err != nil {
				return nil, nil, err
			}
		}
		conn, err := db.NewConnection(ctx, c.Database)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewPostgresStore(conn), conn.Pool.Ping, nil
	}
	return nil, nil, fmt.Errorf("unknown store backend %q", c.Store.Backend)
}

// gcStore joins the value log GC loop before the database closes.
type gcStore struct {
	repository.Store
	stopGC func()
}

func (s gcStore) Close() error {
	s.stopGC()
	return s.Store.Close()
}

func serve(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	store, health, err := openStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()

	logger := log.Logger
	coord := lifecycle.NewCoordinator(store, lifecycle.WithLogger(logger.With().Str("component", "lifecycle").Logger()))
	exporter := export.NewService(coord, export.WithLogger(logger.With().Str("component", "export").Logger()))
	importer := ingestion.NewService(coord, logger.With().Str("component", "import").Logger())

	gin.SetMode(gin.ReleaseMode)
	router := api.NewRouter(api.Deps{
		Records:  coord,
		Exporter: exporter,
		Importer: importer,
		Registry: domain.DefaultRegistry(),
		Logger:   logger.With().Str("component", "http").Logger(),
		Health:   health,
	})

	// Setup CORS
	corsHandler := cors.New(cors.Options{
		AllowedOrigins:   cfg.Server.AllowedOrigins,
		AllowCredentials: true,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		ExposedHeaders:   []string{api.TotalCountHeader, "Content-Disposition", "X-Request-ID"},
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      corsHandler.Handler(router),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", server.Addr).Str("backend", cfg.Store.Backend).Msg("starting inventory API")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(quit)

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-quit:
	case <-ctx.Done():
	}
	log.Info().Msg("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info().Msg("server exited")
	return nil
}

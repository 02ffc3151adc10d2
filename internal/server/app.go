// Package server wires the shelfsync server together: storage, blob backend,
// services and the HTTP API, and runs it until a shutdown signal arrives.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/dmitrijs2005/shelfsync/internal/logging"
	"github.com/dmitrijs2005/shelfsync/internal/server/blobs"
	"github.com/dmitrijs2005/shelfsync/internal/server/config"
	"github.com/dmitrijs2005/shelfsync/internal/server/httpapi"
	"github.com/dmitrijs2005/shelfsync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/shelfsync/internal/server/services"
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	store       repomanager.Store
	userService *services.UserService
	rowService  *services.RowService
	bookService *services.BookService
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger := logging.NewJSONSlogLogger(os.Stdout, slog.LevelInfo)

	store, err := openStore(ctx, c, logger)
	if err != nil {
		return nil, fmt.Errorf("db init error: %w", err)
	}

	b, err := blobs.NewFromConfig(ctx, c)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("blob store init error: %w", err)
	}

	us := services.NewUserService(store, c)
	rs := services.NewRowService(store)
	bs := services.NewBookService(store, b, rs, logger)

	return &App{config: c, logger: logger, store: store, userService: us, rowService: rs, bookService: bs}, nil
}

func openStore(ctx context.Context, c *config.Config, logger logging.Logger) (repomanager.Store, error) {
	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "No database configured, using in-memory store")
		return repomanager.NewMemoryStore(), nil
	}
	return repomanager.OpenPostgres(ctx, c.DatabaseDSN)
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) bootstrap(ctx context.Context) error {
	if app.config.BootstrapUser == "" {
		return nil
	}
	created, err := app.userService.EnsureUser(ctx, app.config.BootstrapUser, app.config.BootstrapPassword)
	if err != nil {
		return fmt.Errorf("bootstrap user: %w", err)
	}
	if created {
		app.logger.Info(ctx, "Created bootstrap user", "username", app.config.BootstrapUser)
	}
	return nil
}

// Run blocks until ctx is cancelled or a signal is received.
func (app *App) Run(ctx context.Context) error {
	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()
	defer func() {
		if err := app.store.Close(); err != nil {
			app.logger.Error(ctx, "close store", "error", err)
		}
	}()

	app.logger.Info(ctx, "Starting app...")
	app.initSignalHandler(cancelFunc)

	if err := app.bootstrap(ctx); err != nil {
		return err
	}

	s := httpapi.NewServer(app.config.ListenAddr, app.logger, app.userService, app.rowService, app.bookService, httpapi.Options{
		MaxUploadBytes:  app.config.MaxUploadBytes,
		ShutdownTimeout: app.config.ShutdownTimeout,
	})
	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		return err
	}
	return nil
}

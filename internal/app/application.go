package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"draftproxy/internal/api"
	"draftproxy/internal/config"
	"draftproxy/internal/eventlog"
	"draftproxy/internal/registry"
	"draftproxy/internal/websocket"
)

// Application coordinates all components. Initialization follows dependency
// order: Journal → Registry → Acceptor → API → HTTP.
type Application struct {
	config     *config.Config
	logger     *logrus.Logger
	journal    *eventlog.Journal
	registry   *registry.Registry
	wsHandler  *websocket.Handler
	apiServer  *api.Server
	httpServer *http.Server
}

// New builds an application from validated configuration.
func New(cfg *config.Config) (*Application, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	logger := cfg.NewLogger()

	switch cfg.Environment {
	case config.EnvProduction:
		gin.SetMode(gin.ReleaseMode)
	case config.EnvTest:
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.DebugMode)
	}

	journal, err := eventlog.New(cfg.EventLogPath, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open event journal: %w", err)
	}

	reg := registry.New(registry.Config{
		HeartbeatInterval:    cfg.HeartbeatInterval,
		DialTimeout:          cfg.ConnectionTimeout,
		MaxReconnectAttempts: cfg.MaxReconnectAttempts,
	}, journal, logger)

	wsHandler := websocket.NewHandler(reg, logger)
	apiServer := api.NewServer(reg, journal, wsHandler, logger)

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      apiServer.Engine(),
		ReadTimeout:  0, // WebSocket connections are long-lived
		WriteTimeout: 0,
	}

	return &Application{
		config:     cfg,
		logger:     logger,
		journal:    journal,
		registry:   reg,
		wsHandler:  wsHandler,
		apiServer:  apiServer,
		httpServer: httpServer,
	}, nil
}

// Logger returns the process logger.
func (app *Application) Logger() *logrus.Logger {
	return app.logger
}

// Start brings the HTTP listener up and verifies it is serving.
func (app *Application) Start(ctx context.Context) error {
	app.logger.WithField("addr", app.httpServer.Addr).Info("Starting draft proxy")

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	select {
	case err := <-serverErrCh:
		return err
	case <-time.After(100 * time.Millisecond):
		app.logger.Info("Draft proxy started")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop shuts everything down in reverse dependency order: stop accepting,
// disconnect every session and upstream link, then close the journal.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("Shutting down draft proxy")

	if err := app.httpServer.Shutdown(ctx); err != nil {
		app.logger.WithError(err).Warn("HTTP server shutdown error")
	}

	app.registry.Shutdown()

	if app.journal != nil {
		app.journal.Record("server_shutdown", "", "")
		if err := app.journal.Close(); err != nil {
			app.logger.WithError(err).Warn("Event journal close error")
		}
	}

	app.logger.Info("Draft proxy shutdown complete")
	return nil
}

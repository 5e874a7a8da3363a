package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
	appconfig "github.com/wolfman30/vetclinic-ai-platform/internal/config"
	"github.com/wolfman30/vetclinic-ai-platform/pkg/logging"
)

func main() {
	cfg, logger := mainconfig.Load()
	logger.Info("starting vetclinic-ai-platform API server",
		"env", cfg.Env,
		"port", cfg.Port,
		"memory_store", cfg.UseMemoryStore,
		"memory_queue", cfg.UseMemoryQueue,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("api server failed", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

func run(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger) error {
	awsCfg, err := mainconfig.OptionalAWS(ctx, cfg, logger)
	if err != nil {
		return err
	}
	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{AWS: awsCfg})
	if err != nil {
		return err
	}
	defer app.Close()

	bgCtx, cancelBackground := context.WithCancel(context.Background())
	waitBackground := app.StartBackground(bgCtx, app.AllBackground())

	srv := newServer(cfg, app.Handler(nil))
	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down server...")
	case err := <-errCh:
		cancelBackground()
		waitBackground()
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	err = srv.Shutdown(shutdownCtx)
	cancelBackground()
	waitBackground()
	return err
}

func newServer(cfg *appconfig.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

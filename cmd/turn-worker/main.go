package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/cmd/mainconfig"
	"github.com/wolfman30/vetclinic-ai-platform/internal/app/bootstrap"
)

func main() {
	cfg, logger := mainconfig.Load()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	awsCfg, err := mainconfig.OptionalAWS(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to load AWS config", "error", err)
		os.Exit(1)
	}
	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{AWS: awsCfg})
	if err != nil {
		logger.Error("failed to build turn worker", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	// Scheduled work runs in the lambda; this process only drains turns
	// and the outbox rows those turns write.
	wait := app.StartBackground(ctx, bootstrap.BackgroundOptions{Outbox: true, TurnWorker: true})
	logger.Info("turn worker started", "workers", cfg.WorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down turn worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("turn worker stopped")
	case <-doneCtx.Done():
		logger.Error("turn worker shutdown timed out", "error", doneCtx.Err())
	}
}

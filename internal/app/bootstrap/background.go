package bootstrap

import (
	"context"
	"sync"
	"time"

	"github.com/wolfman30/vetclinic-ai-platform/internal/conversation"
)

// BackgroundOptions selects the loops StartBackground runs.
type BackgroundOptions struct {
	Outbox    bool
	FollowUps bool
	Sweeper   bool
	// TurnWorker drains the queue in-process. Only useful with the memory queue.
	TurnWorker bool
}

// AllBackground runs every loop, which is what a single-process deployment wants.
func (a *App) AllBackground() BackgroundOptions {
	_, memoryQueue := a.Queue.(*conversation.MemoryQueue)
	return BackgroundOptions{Outbox: true, FollowUps: true, Sweeper: true, TurnWorker: memoryQueue}
}

// StartBackground launches the selected loops and returns a func that
// blocks until all of them stopped after ctx is cancelled.
func (a *App) StartBackground(ctx context.Context, opts BackgroundOptions) (wait func()) {
	var wg sync.WaitGroup
	run := func(name string, fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Logger.Info("background loop started", "loop", name)
			fn(ctx)
			a.Logger.Info("background loop stopped", "loop", name)
		}()
	}

	if opts.Outbox && a.Deliverer != nil {
		run("outbox", a.Deliverer.Start)
	}
	if opts.FollowUps {
		run("followups", a.FollowUpWorker().Start)
	}
	if opts.Sweeper {
		run("sweeper", a.runSweeper)
	}
	if opts.TurnWorker {
		worker := a.TurnWorker()
		run("turns", func(ctx context.Context) {
			worker.Start(ctx)
			worker.Wait()
		})
	}
	return wg.Wait
}

// SweepOnce runs one sweep over every channel.
func (a *App) SweepOnce(ctx context.Context) (conversation.SweepReport, error) {
	return a.Engine.Sweep(ctx, a.Replies, a.Config.SweepBatchSize)
}

func (a *App) runSweeper(ctx context.Context) {
	interval := a.Config.SweepInterval
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := a.SweepOnce(ctx); err != nil && ctx.Err() == nil {
				a.Logger.Error("conversation sweep failed", "error", err)
			}
		}
	}
}

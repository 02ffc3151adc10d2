package cli

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/engine"
	"github.com/dmitrijs2005/shelfsync/internal/client/jobs"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

// daemon is the wired background sync machinery of one App.
type daemon struct {
	runner      *jobs.Runner
	coordinator *engine.Coordinator
}

// scheduler opens the durable job queue shared with a running daemon.
func (a *App) scheduler() (*jobs.Queue, *engine.Scheduler) {
	queue := jobs.NewQueue(a.store.DB())
	return queue, engine.NewScheduler(queue)
}

func (a *App) newDaemon(ctx context.Context) (*daemon, error) {
	session, err := a.session(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := a.reconciler(session)
	if err != nil {
		return nil, err
	}

	queue, scheduler := a.scheduler()
	worker := engine.NewWorker(rec, a.settings, scheduler, a.syncLock(), a.log)
	runner := jobs.NewRunner(queue, a.log, a.cfg.JobPollInterval)
	worker.Register(runner)

	coordinator := engine.NewCoordinator(session, a.settings, a.store, a.library, scheduler, worker, a.log,
		engine.CoordinatorOptions{Debounce: a.cfg.DebounceDelay, PollInterval: a.cfg.ConfigPollInterval})

	return &daemon{runner: runner, coordinator: coordinator}, nil
}

func (r *root) daemonCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "daemon",
		Short: "Run background sync until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, cmd.ErrOrStderr(), func(ctx context.Context, a *App) error {
				d, err := a.newDaemon(ctx)
				if err != nil {
					return err
				}

				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error { return d.runner.Run(ctx) })
				g.Go(func() error { return a.store.Follow(ctx, a.cfg.ChangePollInterval) })

				if a.cfg.WatchLibrary {
					w, err := engine.NewLibraryWatcher(a.library, a.log)
					if err != nil {
						return err
					}
					if err := w.WatchBooks(ctx); err != nil {
						a.log.Warn(ctx, "cannot watch library", "error", err)
					}
					g.Go(func() error { return w.Run(ctx) })
				}

				d.coordinator.Start(ctx)
				a.log.Info(ctx, "daemon started", "data_dir", a.cfg.DataDir)

				<-ctx.Done()
				d.coordinator.Stop()
				if err := g.Wait(); err != nil {
					return fmt.Errorf("daemon: %w", err)
				}
				a.log.Info(context.WithoutCancel(ctx), "daemon stopped")
				return nil
			})
		},
	}
}

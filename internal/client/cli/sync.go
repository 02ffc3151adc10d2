package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/engine"
	"github.com/dmitrijs2005/shelfsync/internal/client/jobs"
	"github.com/dmitrijs2005/shelfsync/internal/client/services"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/spf13/cobra"
)

func parseTables(names []string) ([]wire.Table, error) {
	tables := make([]wire.Table, 0, len(names))
	for _, n := range names {
		t := wire.Table(n)
		if !t.Valid() {
			return nil, fmt.Errorf("%w: %s", common.ErrorInvalidTable, n)
		}
		tables = append(tables, t)
	}
	return tables, nil
}

func printResults(w io.Writer, results []services.Result) {
	for _, res := range results {
		fmt.Fprintln(w, res.String())
	}
}

func (r *root) syncCommand() *cobra.Command {
	var (
		names []string
		queue bool
	)
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one synchronization pass now",
		Long: "Reconciles the given tables (all by default) in the foreground.\n" +
			"With --queue the request is left on the job queue for a running daemon instead.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := parseTables(names)
			if err != nil {
				return err
			}
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				if queue {
					_, scheduler := a.scheduler()
					if _, err := scheduler.RequestSync(ctx, tables, jobs.Replace); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Sync queued.")
					return nil
				}

				session, err := a.session(ctx)
				if err != nil {
					return err
				}
				if !session.Config().Usable() {
					return errNotConfigured
				}
				rec, err := a.reconciler(session)
				if err != nil {
					return err
				}
				if len(tables) == 0 {
					tables = wire.SyncOrder
				}

				lock := a.syncLock()
				locked, err := lock.TryLock()
				if err != nil {
					return fmt.Errorf("acquire sync lock: %w", err)
				}
				if !locked {
					return errSyncInProgress
				}
				defer func() { _ = lock.Unlock() }()

				results, err := rec.SyncTables(ctx, tables)
				printResults(cmd.OutOrStdout(), results)
				if errors.Is(err, services.ErrNotConnected) {
					return fmt.Errorf("cannot reach %s", session.Config().Server)
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&names, "table", nil, "table to sync (book_data, bookmark, highlight, note); repeatable")
	cmd.Flags().BoolVar(&queue, "queue", false, "hand the request to the daemon through the job queue")
	return cmd
}

func (r *root) statusCommand() *cobra.Command {
	var check bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show configuration, pending changes and queued jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				out := cmd.OutOrStdout()
				cfg, err := a.settings.Load(ctx)
				if err != nil {
					return err
				}
				if cfg.Server == "" {
					fmt.Fprintln(out, "Server:    (not configured)")
				} else {
					fmt.Fprintf(out, "Server:    %s\n", cfg.Server)
					fmt.Fprintf(out, "User:      %s\n", cfg.User)
					fmt.Fprintf(out, "Frequency: %s\n", describeFrequency(cfg.Frequency))
				}

				if check {
					state := "not syncing"
					if cfg.Usable() {
						if session, err := a.session(ctx); err == nil {
							if _, ok := session.GetToken(ctx); ok {
								state = "connected"
							}
						}
					}
					fmt.Fprintf(out, "Session:   %s\n", state)
				}

				repos := a.store.Read()
				books, err := repos.Books.List(ctx)
				if err != nil {
					return err
				}
				mapped, err := repos.FileMap.List(ctx)
				if err != nil {
					return err
				}
				pending := 0
				for _, t := range wire.SyncOrder {
					ts, err := repos.Tombstones.List(ctx, t)
					if err != nil {
						return err
					}
					pending += len(ts)
				}
				fmt.Fprintf(out, "Books:     %d (%d known to the server)\n", len(books), len(mapped))
				fmt.Fprintf(out, "Deletes:   %d awaiting the server\n", pending)

				queue, scheduler := a.scheduler()
				if j, err := queue.Pending(ctx, engine.KeySyncNow); err != nil {
					return err
				} else if j != nil {
					fmt.Fprintf(out, "Queued:    sync at %s\n", j.RunAt.Format(time.RFC3339))
				}
				if at, ok, err := scheduler.NextTick(ctx); err != nil {
					return err
				} else if ok {
					fmt.Fprintf(out, "Next tick: %s\n", at.Format(time.RFC3339))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&check, "check", false, "log in to verify the server is reachable")
	return cmd
}

package cli

import (
	"context"
	"errors"
	"io"

	"github.com/dmitrijs2005/shelfsync/internal/client/config"
	"github.com/spf13/cobra"
)

var (
	errNotConfigured  = errors.New("no server configured, run `shelfsync configure` first")
	errSyncInProgress = errors.New("another sync is in progress")
)

type root struct {
	flags *config.Flags
	cfg   *config.Config
}

// NewRootCommand builds the shelfsync command tree.
func NewRootCommand(version string) *cobra.Command {
	r := &root{}
	cmd := &cobra.Command{
		Use:           "shelfsync",
		Short:         "Keep a reading library in sync across devices",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := r.flags.Load()
			if err != nil {
				return err
			}
			if version != "" {
				cfg.ClientVersion = "shelfsync/" + version
			}
			r.cfg = cfg
			return nil
		},
	}
	r.flags = config.RegisterFlags(cmd.PersistentFlags())

	cmd.AddCommand(
		r.configureCommand(),
		r.daemonCommand(),
		r.syncCommand(),
		r.statusCommand(),
		r.importCommand(),
		r.booksCommand(),
		r.catalogueCommand(),
		r.downloadCommand(),
	)
	return cmd
}

// withApp opens the App for the duration of fn. console mirrors logs.
func (r *root) withApp(cmd *cobra.Command, console io.Writer, fn func(ctx context.Context, a *App) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	a, err := NewApp(ctx, r.cfg, console)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

package cli

import (
	"context"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/shelfsync/internal/client/models"
	"github.com/dmitrijs2005/shelfsync/internal/common"
	"github.com/spf13/cobra"
)

func (r *root) configureCommand() *cobra.Command {
	var (
		server, user, frequency string
		keepPassword, clear     bool
	)
	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Set the sync server, user, password and frequency",
		Long: "Stores the sync target for this device. Unset flags keep their stored values.\n" +
			"The password is read from the terminal (or one line of stdin) and sealed with the device key.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				if clear {
					if err := a.settings.Clear(ctx); err != nil {
						return err
					}
					fmt.Fprintln(cmd.OutOrStdout(), "Server configuration removed.")
					return nil
				}

				current, err := a.settings.Load(ctx)
				if err != nil {
					return err
				}
				if !cmd.Flags().Changed("server") {
					server = current.Server
				}
				if !cmd.Flags().Changed("user") {
					user = current.User
				}
				freq := current.Frequency
				if cmd.Flags().Changed("frequency") {
					if freq, err = models.ParseSyncFrequency(frequency); err != nil {
						return err
					}
				}
				if server == "" || user == "" {
					return errors.New("--server and --user are required")
				}

				var password []byte
				if !keepPassword {
					if password, err = GetPassword(cmd.InOrStdin(), cmd.ErrOrStderr()); err != nil {
						return fmt.Errorf("read password: %w", err)
					}
					defer common.WipeByteArray(password)
				}

				cfg, err := a.settings.Configure(ctx, server, user, password, freq)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Configured %s as %s, sync frequency %s.\n", cfg.Server, cfg.User, describeFrequency(cfg.Frequency))
				if !cfg.Usable() {
					fmt.Fprintln(cmd.OutOrStdout(), "No password stored yet: sync stays disabled.")
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&server, "server", "", "server base URL, e.g. https://sync.example.com")
	cmd.Flags().StringVar(&user, "user", "", "user name")
	cmd.Flags().StringVar(&frequency, "frequency", "never", `periodic sync in minutes, or "never"`)
	cmd.Flags().BoolVar(&keepPassword, "keep-password", false, "do not prompt, keep the stored password")
	cmd.Flags().BoolVar(&clear, "clear", false, "remove the server configuration")
	return cmd
}

func describeFrequency(f models.SyncFrequency) string {
	if f.IsNever() {
		return "never"
	}
	return fmt.Sprintf("every %d min", f.Minutes)
}

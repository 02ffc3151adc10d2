package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"text/tabwriter"

	"github.com/dmitrijs2005/shelfsync/internal/filex"
	"github.com/spf13/cobra"
)

func parseFileID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid file id %q", s)
	}
	return id, nil
}

func (r *root) catalogueCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalogue",
		Short: "List the books stored on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				ctx, wc, err := a.connect(ctx)
				if err != nil {
					return err
				}
				entries, err := wc.Catalogue(ctx)
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "FILE ID\tFILE NAME")
				for _, e := range entries {
					fmt.Fprintf(tw, "%d\t%s\n", e.FileID, e.FileName)
				}
				return tw.Flush()
			})
		},
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "rm <fileId>",
		Short: "Delete a book from the server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				ctx, wc, err := a.connect(ctx)
				if err != nil {
					return err
				}
				if err := wc.DeleteCatalogue(ctx, id); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted file %d from the server.\n", id)
				return nil
			})
		},
	})
	return cmd
}

func (r *root) downloadCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "download <fileId> [dest]",
		Short: "Download a verified copy of a server book",
		Long: "Writes the book to dest. When dest is a directory, or omitted (the library dir),\n" +
			"the server's file name is used.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseFileID(args[0])
			if err != nil {
				return err
			}
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				dest := a.cfg.Library()
				if len(args) == 2 {
					dest = args[1]
				}
				intoDir := len(args) == 1
				if fi, err := os.Stat(dest); err == nil && fi.IsDir() {
					intoDir = true
				}
				if intoDir {
					dir, err := filex.EnsureDir(dest)
					if err != nil {
						return err
					}
					dest = filepath.Join(dir, fmt.Sprintf("book-%d", id))
				}

				ctx, wc, err := a.connect(ctx)
				if err != nil {
					return err
				}
				d, err := wc.DownloadBook(ctx, id, dest)
				if err != nil {
					return err
				}
				path := d.Path
				if intoDir && d.FileName != "" {
					named := filepath.Join(filepath.Dir(path), filex.SafeName(d.FileName))
					if !filex.Exists(named) && os.Rename(path, named) == nil {
						path = named
					}
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s (%d bytes, sha256 %s).\n", path, d.Size, d.SHA256)
				return nil
			})
		},
	}
}

package cli

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/dmitrijs2005/shelfsync/internal/client/services"
	"github.com/dmitrijs2005/shelfsync/internal/wire"
	"github.com/spf13/cobra"
)

func (r *root) importCommand() *cobra.Command {
	var meta services.BookMeta
	cmd := &cobra.Command{
		Use:   "import <file>",
		Short: "Add a book file to the local library",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				b, err := a.library.ImportBook(ctx, args[0], meta)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Imported %q as %s (%d bytes).\n", b.Title, b.BookID, b.Filesize)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&meta.Identifier, "identifier", "", "publication identifier (ISBN, URN); defaults to the title")
	cmd.Flags().StringVar(&meta.Title, "title", "", "title; defaults to the file name")
	cmd.Flags().StringVar(&meta.MediaType, "media-type", "", "media type; guessed from the extension when empty")
	return cmd
}

func (r *root) booksCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "books",
		Short: "List the local library",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				books, err := a.library.ListBooks(ctx)
				if err != nil {
					return err
				}
				if len(books) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No books.")
					return nil
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "BOOK ID\tTITLE\tPROGRESS\tUPDATED\tFILE")
				for _, b := range books {
					progress := b.Progress
					if progress == "" {
						progress = "-"
					}
					fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", b.BookID, b.Title, progress,
						time.UnixMilli(b.LastUpdated).Format(time.DateTime), b.PubFile)
				}
				return tw.Flush()
			})
		},
	}
	cmd.AddCommand(r.bookRemoveCommand(), r.progressCommand(), r.annotateCommand(), r.annotationsCommand(), r.unannotateCommand())
	return cmd
}

func (r *root) bookRemoveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "rm <bookId>",
		Short: "Delete a book and its annotations everywhere on the next sync",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				if err := a.library.DeleteBook(ctx, args[0]); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
				return nil
			})
		},
	}
}

func (r *root) progressCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "progress <bookId> <locator>",
		Short: "Record the reading position of a book",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				return a.library.UpdateProgress(ctx, args[0], args[1])
			})
		},
	}
}

func tableFlag(cmd *cobra.Command, dst *string) {
	cmd.Flags().StringVar(dst, "table", string(wire.TableNote), "bookmark, highlight or note")
}

func (r *root) annotateCommand() *cobra.Command {
	var (
		table string
		in    services.AnnotationInput
	)
	cmd := &cobra.Command{
		Use:   "annotate <bookId>",
		Short: "Add a bookmark, highlight or note",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				an, err := a.library.AddAnnotation(ctx, wire.Table(table), args[0], in)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s %d.\n", table, an.LocalID)
				return nil
			})
		},
	}
	tableFlag(cmd, &table)
	cmd.Flags().StringVar(&in.Locator, "locator", "", "position in the book")
	cmd.Flags().StringVar(&in.Text, "text", "", "note or highlighted text")
	cmd.Flags().StringVar(&in.Style, "style", "", "highlight style")
	_ = cmd.MarkFlagRequired("locator")
	return cmd
}

func (r *root) annotationsCommand() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "annotations <bookId>",
		Short: "List the annotations of a book",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				list, err := a.library.ListAnnotations(ctx, wire.Table(table), args[0])
				if err != nil {
					return err
				}
				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tLOCATOR\tTEXT\tSTYLE")
				for _, an := range list {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\n", an.LocalID, an.Locator, an.Text, an.Style)
				}
				return tw.Flush()
			})
		},
	}
	tableFlag(cmd, &table)
	return cmd
}

func (r *root) unannotateCommand() *cobra.Command {
	var table string
	cmd := &cobra.Command{
		Use:   "unannotate <bookId> <id>",
		Short: "Delete an annotation",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid annotation id %q", args[1])
			}
			return r.withApp(cmd, nil, func(ctx context.Context, a *App) error {
				return a.library.DeleteAnnotation(ctx, wire.Table(table), args[0], id)
			})
		},
	}
	tableFlag(cmd, &table)
	return cmd
}

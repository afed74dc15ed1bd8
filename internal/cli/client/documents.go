package client

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

// DocumentView is a stored document as listed by the documents command.
type DocumentView struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	ContentType string    `json:"content_type"`
	SizeBytes   int64     `json:"size_bytes"`
	Chunks      int       `json:"chunks"`
	CreatedAt   time.Time `json:"created_at"`
}

// DocumentsCmd creates the documents command group.
func DocumentsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "documents",
		Aliases: []string{"docs"},
		Short:   "Manage ingested documents",
	}

	cmd.AddCommand(documentsListCmd())
	cmd.AddCommand(documentsDeleteCmd())

	return cmd
}

func documentsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List ingested documents",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			docs, err := s.Ingest.List(cmd.Context())
			if err != nil {
				return err
			}

			views := documentViews(docs)
			if outputJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), views)
			}
			printDocuments(cmd.OutOrStdout(), views)
			return nil
		},
	}
}

func documentsDeleteCmd() *cobra.Command {
	var byName bool

	cmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a document and its chunks",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			id := args[0]
			if byName {
				id, err = deleteByName(cmd.Context(), s.Ingest, args[0])
				if err != nil {
					return err
				}
				if id == "" {
					return fmt.Errorf("document %q: %w", args[0], domain.ErrDocumentNotFound)
				}
			} else if err := s.Ingest.Delete(cmd.Context(), id); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Deleted document %s\n", id)
			return nil
		},
	}

	cmd.Flags().BoolVar(&byName, "name", false, "Treat the argument as a document name instead of an id")

	return cmd
}

func documentViews(docs []*domain.Document) []DocumentView {
	views := make([]DocumentView, 0, len(docs))
	for _, d := range docs {
		views = append(views, DocumentView{
			ID:          d.ID,
			Name:        d.Name,
			ContentType: string(d.ContentType),
			SizeBytes:   d.SizeBytes,
			Chunks:      d.ChunkCount,
			CreatedAt:   d.CreatedAt,
		})
	}
	return views
}

func printDocuments(w io.Writer, views []DocumentView) {
	if len(views) == 0 {
		fmt.Fprintln(w, "No documents ingested.")
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tTYPE\tCHUNKS\tINGESTED")
	for _, v := range views {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", v.ID, v.Name, v.ContentType, v.Chunks, v.CreatedAt.Format(time.RFC3339))
	}
	_ = tw.Flush()
}

package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

// CitationView is one source in the assembled context.
type CitationView struct {
	Index          int     `json:"index"`
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	DocumentName   string  `json:"document_name"`
	PageNumber     *int    `json:"page_number,omitempty"`
	HeadingContext *string `json:"heading_context,omitempty"`
	Excerpt        string  `json:"excerpt"`
}

// ContextView is the ask command output.
type ContextView struct {
	Query         string         `json:"query"`
	Strategy      string         `json:"strategy"`
	LowConfidence bool           `json:"low_confidence"`
	Context       string         `json:"context"`
	Citations     []CitationView `json:"citations"`
}

// AskCmd creates the ask command, which prints the context block that would
// be handed to a language model for query.
func AskCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:     "ask <query>",
		Aliases: []string{"context"},
		Short:   "Assemble answer context for a question",
		Long:    "Retrieves relevant chunks and prints them as a numbered context block with document names, pages and sections for citation.",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			out, err := s.Context.AskContext(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("context assembly failed: %w", err)
			}

			view := contextView(out)
			if outputJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			printContext(cmd.OutOrStdout(), view)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of chunks (default from HOMEBASE_SEARCH_LIMIT)")

	return cmd
}

func contextView(out *service.ContextOutput) ContextView {
	view := ContextView{
		Query:         out.Query,
		Strategy:      string(out.Strategy),
		LowConfidence: out.Strategy != service.StrategyHybrid,
		Context:       out.Prompt,
		Citations:     make([]CitationView, 0, len(out.Entries)),
	}
	for i, e := range out.Entries {
		view.Citations = append(view.Citations, CitationView{
			Index:          i + 1,
			ChunkID:        e.ChunkID,
			DocumentID:     e.DocumentID,
			DocumentName:   e.DocumentName,
			PageNumber:     e.PageNumber,
			HeadingContext: e.HeadingContext,
			Excerpt:        e.Excerpt,
		})
	}
	return view
}

func printContext(w io.Writer, view ContextView) {
	if len(view.Citations) == 0 {
		fmt.Fprintln(w, "No relevant documents found.")
		return
	}
	if view.LowConfidence {
		fmt.Fprintf(w, "Note: no direct matches for %q, context comes from %s results.\n\n", view.Query, view.Strategy)
	}
	fmt.Fprintln(w, view.Context)
	fmt.Fprintf(w, "\n%s\nSources:\n", strings.Repeat("-", 40))
	for _, c := range view.Citations {
		fmt.Fprintf(w, "[%d] %s", c.Index, c.DocumentName)
		if c.PageNumber != nil {
			fmt.Fprintf(w, ", page %d", *c.PageNumber)
		}
		fmt.Fprintln(w)
	}
}

package client

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

// SearchResultView is one retrieved chunk as printed by the search command.
type SearchResultView struct {
	ChunkID        string   `json:"chunk_id"`
	DocumentID     string   `json:"document_id"`
	ChunkIndex     int      `json:"chunk_index"`
	ChunkType      string   `json:"chunk_type"`
	PageNumber     *int     `json:"page_number,omitempty"`
	HeadingContext *string  `json:"heading_context,omitempty"`
	Similarity     *float64 `json:"similarity,omitempty"`
	Content        string   `json:"content"`
}

// SearchView is the search command output.
type SearchView struct {
	Query         string             `json:"query"`
	Strategy      string             `json:"strategy"`
	LowConfidence bool               `json:"low_confidence"`
	Results       []SearchResultView `json:"results"`
}

// SearchCmd creates the search command.
func SearchCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search ingested documents",
		Long:  "Runs hybrid lexical and vector retrieval, falling back to keyword search and then recent chunks when nothing matches.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			result, err := s.Retriever.Search(cmd.Context(), args[0], limit)
			if err != nil {
				return fmt.Errorf("search failed: %w", err)
			}

			view := searchView(args[0], result)
			if outputJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			printSearch(cmd.OutOrStdout(), view)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "Maximum number of results (default from HOMEBASE_SEARCH_LIMIT)")

	return cmd
}

func searchView(query string, result *service.SearchResult) SearchView {
	view := SearchView{
		Query:         strings.TrimSpace(query),
		Strategy:      string(result.Strategy),
		LowConfidence: result.Strategy != service.StrategyHybrid,
		Results:       make([]SearchResultView, 0, len(result.Chunks)),
	}
	for _, c := range result.Chunks {
		view.Results = append(view.Results, SearchResultView{
			ChunkID:        c.ChunkID,
			DocumentID:     c.DocumentID,
			ChunkIndex:     c.ChunkIndex,
			ChunkType:      c.ChunkType.String(),
			PageNumber:     c.PageNumber,
			HeadingContext: c.HeadingContext,
			Similarity:     c.Similarity,
			Content:        c.Content,
		})
	}
	return view
}

func printSearch(w io.Writer, view SearchView) {
	if len(view.Results) == 0 {
		fmt.Fprintln(w, "No results found.")
		return
	}

	fmt.Fprintf(w, "Found %d results (%s):\n", len(view.Results), view.Strategy)
	if view.LowConfidence {
		fmt.Fprintln(w, "Note: no direct matches, showing fallback results.")
	}
	fmt.Fprintln(w)

	for i, r := range view.Results {
		fmt.Fprintf(w, "%d. chunk %d of %s", i+1, r.ChunkIndex, r.DocumentID)
		if r.Similarity != nil {
			fmt.Fprintf(w, " (%.2f)", *r.Similarity)
		}
		fmt.Fprintln(w)
		if r.HeadingContext != nil && *r.HeadingContext != "" {
			fmt.Fprintf(w, "   Section: %s\n", *r.HeadingContext)
		}
		if r.PageNumber != nil {
			fmt.Fprintf(w, "   Page: %d\n", *r.PageNumber)
		}
		fmt.Fprintf(w, "   %s\n", truncate(strings.Join(strings.Fields(r.Content), " "), 160))
		if i < len(view.Results)-1 {
			fmt.Fprintln(w, strings.Repeat("-", 40))
		}
	}
}

package client

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

type documentLister interface {
	List(ctx context.Context) ([]*domain.Document, error)
}

type chunkCounter interface {
	CountChunks(ctx context.Context) (int, error)
}

type strategyCounter interface {
	CountByStrategy(ctx context.Context) (map[service.Strategy]int, error)
}

// StatsView summarises the store contents and how past searches were answered.
type StatsView struct {
	Backend    string         `json:"backend"`
	Documents  int            `json:"documents"`
	Chunks     int            `json:"chunks"`
	Embeddings bool           `json:"embeddings"`
	Searches   map[string]int `json:"searches,omitempty"`
}

// StatsCmd creates the stats command.
func StatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show store and search statistics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := openSession(cmd.Context(), cli.RuntimeOptions{})
			if err != nil {
				return err
			}
			defer s.Close()

			var logs strategyCounter
			if s.SearchLogs != nil {
				logs = s.SearchLogs
			}
			view, err := collectStats(cmd.Context(), s.Backend, s.Documents, s.Chunks, logs)
			if err != nil {
				return err
			}
			view.Embeddings = s.EmbeddingConfigured()

			if outputJSON(cmd) {
				return writeJSON(cmd.OutOrStdout(), view)
			}
			printStats(cmd.OutOrStdout(), view)
			return nil
		},
	}
}

func collectStats(ctx context.Context, backend string, docs documentLister, chunks chunkCounter, logs strategyCounter) (StatsView, error) {
	view := StatsView{Backend: backend}

	list, err := docs.List(ctx)
	if err != nil {
		return view, fmt.Errorf("failed to list documents: %w", err)
	}
	view.Documents = len(list)

	view.Chunks, err = chunks.CountChunks(ctx)
	if err != nil {
		return view, fmt.Errorf("failed to count chunks: %w", err)
	}

	if logs == nil {
		return view, nil
	}
	counts, err := logs.CountByStrategy(ctx)
	if err != nil {
		return view, fmt.Errorf("failed to count searches: %w", err)
	}
	view.Searches = make(map[string]int, len(counts))
	for strategy, n := range counts {
		view.Searches[string(strategy)] = n
	}
	return view, nil
}

func printStats(w io.Writer, view StatsView) {
	fmt.Fprintf(w, "Backend:    %s\n", view.Backend)
	fmt.Fprintf(w, "Documents:  %d\n", view.Documents)
	fmt.Fprintf(w, "Chunks:     %d\n", view.Chunks)
	if view.Embeddings {
		fmt.Fprintln(w, "Embeddings: enabled")
	} else {
		fmt.Fprintln(w, "Embeddings: disabled")
	}

	if view.Searches == nil {
		return
	}
	total := 0
	for _, n := range view.Searches {
		total += n
	}
	fmt.Fprintf(w, "Searches:   %d\n", total)
	for _, strategy := range []service.Strategy{service.StrategyHybrid, service.StrategyKeyword, service.StrategySample} {
		fmt.Fprintf(w, "  %-8s %d\n", strategy, view.Searches[string(strategy)])
	}
}

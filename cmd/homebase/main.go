package main

import (
	"fmt"
	"os"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/cli/client"
	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:   "homebase",
		Short: "Homebase CLI - Document ingestion and retrieval",
		Long: `Homebase CLI ingests company documents and retrieves cited context for questions.

Environment variables:
  HOMEBASE_DATABASE_URL     Postgres connection string (SQLite is used when unset)
  HOMEBASE_SQLITE_PATH      SQLite database file (default: data/homebase.db)
  HOMEBASE_OPENAI_API_KEY   Enables embeddings and vector search`,
		Version: version,
	}

	rootCmd.PersistentFlags().Bool("output", false, "Output as JSON")
	cli.AddHelpJSONFlag(rootCmd)

	rootCmd.AddCommand(client.IngestCmd())
	rootCmd.AddCommand(client.SearchCmd())
	rootCmd.AddCommand(client.AskCmd())
	rootCmd.AddCommand(client.ChunkCmd())
	rootCmd.AddCommand(client.DocumentsCmd())
	rootCmd.AddCommand(client.StatsCmd())

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

package main

import (
	"fmt"
	"os"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/cli/admin"
	"github.com/spf13/cobra"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "homebased",
		Short: "Homebase daemon",
		Long:  "Homebase daemon for running the document API server and managing the database schema",
	}

	cli.AddHelpJSONFlag(rootCmd)
	rootCmd.AddCommand(admin.ServeCmd())
	rootCmd.AddCommand(admin.MigrateCmd())

	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	cli.CheckHelpJSON(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

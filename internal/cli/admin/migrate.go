package admin

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/config"
	"github.com/atedays1/ate-days-homebase-sub000/internal/database"
	"github.com/atedays1/ate-days-homebase-sub000/internal/localstore"
)

// MigrateCmd returns the migrate command
func MigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Long:  "Apply pending schema migrations to the configured Postgres database, or create the SQLite store when no database URL is set",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			return runMigrate(cmd.Context(), cfg)
		},
	}
}

func runMigrate(ctx context.Context, cfg *config.Config) error {
	if cfg.HasPostgres() {
		version, err := database.Migrate(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		fmt.Printf("postgres schema at version %d\n", version)
		return nil
	}

	store, err := localstore.Open(cfg.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open sqlite store: %w", err)
	}
	defer store.Close()

	if err := store.Ping(ctx); err != nil {
		return err
	}
	log.Printf("sqlite store ready at %s", store.Path())
	fmt.Printf("sqlite schema ready at %s\n", store.Path())
	return nil
}

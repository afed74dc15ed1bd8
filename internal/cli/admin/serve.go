package admin

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/api/handlers"
	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/config"
	"github.com/atedays1/ate-days-homebase-sub000/internal/jobs"
	"github.com/atedays1/ate-days-homebase-sub000/internal/server"
)

// ServeCmd returns the serve command
func ServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		Long:  "Start the homebase API server, which ingests uploaded documents and answers search and context queries",
		RunE:  runServe,
	}

	cmd.Flags().StringP("port", "p", "", "Port to listen on (default from HOMEBASE_PORT)")
	cmd.Flags().Bool("no-migrate", false, "Skip automatic database migrations on startup")
	cmd.Flags().Bool("no-backfill", false, "Do not run the embedding backfill worker")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	shutdownTelemetry := cli.InitTelemetry(cfg)
	defer shutdownTelemetry()

	if portFlag, _ := cmd.Flags().GetString("port"); portFlag != "" {
		cfg.Port = portFlag
	}

	noMigrate, _ := cmd.Flags().GetBool("no-migrate")
	rt, err := cli.OpenRuntime(ctx, cfg, cli.RuntimeOptions{Migrate: !noMigrate})
	if err != nil {
		return err
	}
	defer rt.Close()

	var backfillWorker *jobs.Worker
	noBackfill, _ := cmd.Flags().GetBool("no-backfill")
	if rt.EmbeddingConfigured() && !noBackfill {
		backfillWorker = jobs.NewWorker("embedding backfill", rt.Backfill, cfg.BackfillInterval)
		go backfillWorker.Start(ctx)
	}

	router := server.NewRouter(server.RouterConfig{
		DocumentHandler: handlers.NewDocumentHandler(rt.Ingest),
		ContextHandler:  handlers.NewContextHandler(rt.Retriever, rt.Context),
		MaxUploadBytes:  cfg.MaxUploadBytes,
		HealthCheck:     rt.Ping,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Printf("starting server on port %s (%s store)", cfg.Port, rt.Backend)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serveErr <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-serveErr:
		return fmt.Errorf("server failed: %w", err)
	}
	log.Println("shutting down...")

	if backfillWorker != nil {
		backfillWorker.Stop()
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}

	log.Println("server exited")
	return nil
}

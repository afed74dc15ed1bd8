package client

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/atedays1/ate-days-homebase-sub000/internal/cli"
	"github.com/atedays1/ate-days-homebase-sub000/internal/config"
	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
	"github.com/atedays1/ate-days-homebase-sub000/internal/storage"
)

// IngestResultView is the printable outcome of ingesting one document.
type IngestResultView struct {
	Name       string `json:"name"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status"`
	Chunks     int    `json:"chunks,omitempty"`
	Embedded   int    `json:"embedded,omitempty"`
	Error      string `json:"error,omitempty"`
}

// documentStore is the slice of the ingest service the watcher uses.
type documentStore interface {
	IngestAll(ctx context.Context, inputs []service.IngestInput) []service.IngestResult
	List(ctx context.Context) ([]*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

// IngestCmd creates the ingest command.
func IngestCmd() *cobra.Command {
	var (
		force        bool
		watchMode    bool
		chunkSize    int
		chunkOverlap int
		minChunkSize int
	)

	cmd := &cobra.Command{
		Use:   "ingest [path|s3://bucket/prefix ...]",
		Short: "Ingest documents into the knowledge base",
		Long: `Extracts, chunks and embeds documents and stores them for retrieval.

Sources may be files, directories (walked recursively) or s3:// URIs. With no
arguments the configured documents directory (HOMEBASE_WATCH_DIR) is used.
Documents whose content is unchanged are skipped unless --force is given.

Examples:
  # Ingest everything under ./documents
  homebase ingest

  # Ingest one file and a bucket prefix
  homebase ingest Pricing.pdf s3://company-docs/handbook/

  # Keep ingesting as files change
  homebase ingest ./documents --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			override := func(cfg *config.Config) {
				if cmd.Flags().Changed("chunk-size") {
					cfg.ChunkSize = chunkSize
				}
				if cmd.Flags().Changed("chunk-overlap") {
					cfg.ChunkOverlap = chunkOverlap
				}
				if cmd.Flags().Changed("min-chunk-size") {
					cfg.MinChunkSize = minChunkSize
				}
			}

			s, err := openSession(ctx, cli.RuntimeOptions{Migrate: true}, override)
			if err != nil {
				return err
			}
			defer s.Close()

			if len(args) == 0 {
				args = []string{s.Config.WatchDir}
			}

			var store objectStore
			if s.Config.HasS3() {
				store, err = storage.NewS3Client(ctx, storage.S3ClientConfig{
					Endpoint:        s.Config.S3Endpoint,
					Region:          s.Config.S3Region,
					AccessKeyID:     s.Config.S3AccessKey,
					SecretAccessKey: s.Config.S3SecretKey,
					UsePathStyle:    s.Config.S3Endpoint != "",
				})
				if err != nil {
					return err
				}
			}

			sources, err := expandSources(ctx, store, args)
			if err != nil {
				return err
			}

			results := ingestSources(ctx, s.Ingest, store, sources, force)
			if err := printIngestResults(cmd.OutOrStdout(), results, outputJSON(cmd)); err != nil && !watchMode {
				return err
			}

			if !watchMode {
				return nil
			}

			var dirs []string
			for _, a := range args {
				if info, err := os.Stat(a); err == nil && info.IsDir() {
					dirs = append(dirs, a)
				}
			}
			if len(dirs) == 0 {
				return fmt.Errorf("--watch needs at least one local directory")
			}

			log.Printf("watching %v for changes", dirs)
			return watch(ctx, dirs, s.Config.WatchDebounce, func(ctx context.Context, changes []change) {
				results := applyChanges(ctx, s.Ingest, changes, force)
				_ = printIngestResults(cmd.OutOrStdout(), results, outputJSON(cmd))
			})
		},
	}

	cmd.Flags().BoolVarP(&force, "force", "f", false, "Re-ingest documents even when their content is unchanged")
	cmd.Flags().BoolVarP(&watchMode, "watch", "w", false, "Keep running and ingest files as they change")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", 0, "Target chunk size in characters (default from HOMEBASE_CHUNK_SIZE)")
	cmd.Flags().IntVar(&chunkOverlap, "chunk-overlap", 0, "Characters carried over between chunks (default from HOMEBASE_CHUNK_OVERLAP)")
	cmd.Flags().IntVar(&minChunkSize, "min-chunk-size", 0, "Chunks shorter than this are merged (default from HOMEBASE_MIN_CHUNK_SIZE)")

	return cmd
}

func expandSources(ctx context.Context, store objectStore, args []string) ([]source, error) {
	var (
		local   []string
		sources []source
	)
	for _, a := range args {
		if !storage.IsS3URI(a) {
			local = append(local, a)
			continue
		}
		if store == nil {
			return nil, fmt.Errorf("%s: s3 is not configured (set HOMEBASE_S3_ACCESS_KEY_ID and HOMEBASE_S3_SECRET_ACCESS_KEY)", a)
		}
		found, err := expandS3(ctx, store, a)
		if err != nil {
			return nil, err
		}
		sources = append(sources, found...)
	}

	found, err := expandLocal(local)
	if err != nil {
		return nil, err
	}
	return append(sources, found...), nil
}

func ingestSources(ctx context.Context, docs documentStore, store objectStore, sources []source, force bool) []IngestResultView {
	if len(sources) == 0 {
		return nil
	}

	batch, readers := inputs(ctx, store, sources, force)
	defer func() {
		for _, r := range readers {
			_ = r.Close()
		}
	}()

	results := docs.IngestAll(ctx, batch)
	views := make([]IngestResultView, 0, len(results))
	for _, r := range results {
		views = append(views, resultView(r))
	}
	return views
}

func resultView(r service.IngestResult) IngestResultView {
	v := IngestResultView{Name: r.Name}
	switch {
	case r.Err != nil:
		v.Status = "failed"
		v.Error = r.Err.Error()
	case r.Output.Skipped:
		v.Status = "unchanged"
	case r.Output.Replaced:
		v.Status = "replaced"
	default:
		v.Status = "ingested"
	}
	if r.Output != nil && r.Output.Document != nil {
		v.DocumentID = r.Output.Document.ID
		v.Chunks = r.Output.Chunks
		v.Embedded = r.Output.Embedded
	}
	return v
}

// applyChanges ingests changed files and drops documents whose file is gone.
func applyChanges(ctx context.Context, docs documentStore, changes []change, force bool) []IngestResultView {
	var (
		changed []source
		views   []IngestResultView
	)
	for _, c := range changes {
		if !c.Removed {
			changed = append(changed, source{Name: c.Name, Path: c.Path})
			continue
		}
		v := IngestResultView{Name: c.Name, Status: "removed"}
		id, err := deleteByName(ctx, docs, c.Name)
		switch {
		case err != nil:
			v.Status = "failed"
			v.Error = err.Error()
		case id == "":
			continue
		default:
			v.DocumentID = id
		}
		views = append(views, v)
	}
	return append(views, ingestSources(ctx, docs, nil, changed, force)...)
}

// deleteByName removes the document called name and returns its id, or ""
// when no such document exists.
func deleteByName(ctx context.Context, docs documentStore, name string) (string, error) {
	list, err := docs.List(ctx)
	if err != nil {
		return "", err
	}
	for _, d := range list {
		if d.Name == name {
			return d.ID, docs.Delete(ctx, d.ID)
		}
	}
	return "", nil
}

func printIngestResults(w io.Writer, results []IngestResultView, asJSON bool) error {
	failed := 0
	for _, r := range results {
		if r.Status == "failed" {
			failed++
		}
	}

	if asJSON {
		if err := writeJSON(w, results); err != nil {
			return err
		}
	} else {
		if len(results) == 0 {
			fmt.Fprintln(w, "No documents found.")
		}
		for _, r := range results {
			switch r.Status {
			case "failed":
				fmt.Fprintf(w, "✗ %s: %s\n", r.Name, r.Error)
			case "unchanged", "removed":
				fmt.Fprintf(w, "- %s (%s)\n", r.Name, r.Status)
			default:
				fmt.Fprintf(w, "✓ %s (%s, %d chunks, %d embedded)\n", r.Name, r.Status, r.Chunks, r.Embedded)
			}
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d documents failed", failed, len(results))
	}
	return nil
}

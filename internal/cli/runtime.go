package cli

import (
	"context"
	"fmt"
	"log"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/atedays1/ate-days-homebase-sub000/internal/config"
	"github.com/atedays1/ate-days-homebase-sub000/internal/database"
	"github.com/atedays1/ate-days-homebase-sub000/internal/jobs"
	"github.com/atedays1/ate-days-homebase-sub000/internal/localstore"
	"github.com/atedays1/ate-days-homebase-sub000/internal/openai"
	"github.com/atedays1/ate-days-homebase-sub000/internal/repository"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

// chunkStore is what both the Postgres and SQLite chunk repositories offer.
type chunkStore interface {
	service.ChunkStore
	jobs.PendingChunkRepository
}

// SearchLogStore records searches and summarises them by strategy.
type SearchLogStore interface {
	service.SearchLogRepository
	CountByStrategy(ctx context.Context) (map[service.Strategy]int, error)
}

// RuntimeOptions tweak how a Runtime is assembled.
type RuntimeOptions struct {
	// Migrate applies pending Postgres migrations before use. SQLite
	// always migrates on open.
	Migrate bool
}

// Runtime is the wired set of services shared by homebase and homebased.
type Runtime struct {
	Config     *config.Config
	Backend    string
	Ingest     *service.IngestService
	Retriever  *service.Retriever
	Context    *service.ContextService
	Backfill   *jobs.EmbeddingWorker
	Chunks     service.ChunkStore
	Documents  service.DocumentRepositoryInterface
	SearchLogs SearchLogStore // nil when search logging is disabled
	Ping       func(ctx context.Context) error

	embedder service.Embedder
	closers  []func()
}

// OpenRuntime connects to the configured store and builds the services.
func OpenRuntime(ctx context.Context, cfg *config.Config, opts RuntimeOptions) (*Runtime, error) {
	rt := &Runtime{Config: cfg}

	var (
		docs   service.DocumentRepositoryInterface
		chunks chunkStore
		tx     service.TxRunner
		logs   SearchLogStore
	)

	if cfg.HasPostgres() {
		if opts.Migrate {
			if _, err := database.Migrate(cfg.DatabaseURL); err != nil {
				return nil, err
			}
		}
		pool, err := database.NewPool(ctx, database.Config{
			URL:      cfg.DatabaseURL,
			MaxConns: cfg.DBMaxConns,
			MinConns: cfg.DBMinConns,
		})
		if err != nil {
			return nil, err
		}
		rt.closers = append(rt.closers, pool.Close)
		rt.Backend = "postgres"
		rt.Ping = pool.Ping
		log.Println("connected to database")

		docs = repository.NewDocumentRepository(pool)
		chunks = repository.NewChunkRepository(pool)
		tx = repository.NewTxRunner(pool)
		logs = repository.NewSearchLogRepository(pool)
	} else {
		store, err := localstore.Open(cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("failed to open sqlite store: %w", err)
		}
		rt.closers = append(rt.closers, func() { _ = store.Close() })
		rt.Backend = "sqlite"
		rt.Ping = store.Ping
		log.Printf("using sqlite store at %s", store.Path())

		docs = store.Documents()
		chunks = store.Chunks()
		tx = store
		logs = store.SearchLogs()
	}

	rt.Documents = docs
	rt.Chunks = chunks
	if cfg.SearchLog {
		rt.SearchLogs = logs
	}

	rt.embedder = service.NoopEmbedder{}
	if cfg.HasOpenAI() {
		rt.embedder = openai.NewClientWithConfig(openai.Config{
			APIKey:              cfg.OpenAIAPIKey,
			BaseURL:             cfg.OpenAIBaseURL,
			EmbeddingModel:      goopenai.EmbeddingModel(cfg.EmbeddingModel),
			EmbeddingDimensions: cfg.EmbeddingDimensions,
			RequestsPerSecond:   cfg.EmbeddingRPS,
		})
	} else {
		log.Println("openai not configured, vector search disabled")
	}

	rt.Ingest = service.NewIngestService(service.IngestConfig{
		Documents:        docs,
		TxRunner:         tx,
		Chunker:          service.NewChunker(cfg.ChunkConfig()),
		Embedder:         rt.embedder,
		MaxDocumentBytes: cfg.MaxUploadBytes,
		Concurrency:      cfg.IngestConcurrency,
	})

	retrieverCfg := cfg.RetrieverConfig()
	retrieverCfg.Store = chunks
	retrieverCfg.Embedder = service.NewCachedEmbedder(rt.embedder, cfg.EmbeddingCacheSize)
	if rt.SearchLogs != nil {
		retrieverCfg.SearchLog = rt.SearchLogs
	}
	rt.Retriever = service.NewRetriever(&retrieverCfg)
	rt.Context = service.NewContextService(rt.Retriever, docs)
	rt.Backfill = jobs.NewEmbeddingWorker(chunks, rt.embedder, 0)

	return rt, nil
}

// EmbeddingConfigured reports whether chunks and queries get embeddings.
func (rt *Runtime) EmbeddingConfigured() bool {
	return rt.embedder.IsConfigured()
}

// Close releases the store connection.
func (rt *Runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		rt.closers[i]()
	}
	rt.closers = nil
}

package jobs

import (
	"context"
	"fmt"
	"log"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

const (
	// MaxRetries is the number of failed attempts after which a chunk is left
	// without an embedding.
	MaxRetries = 3

	defaultBatchSize = 32
)

// PendingChunkRepository defines the persistence the backfill needs
type PendingChunkRepository interface {
	// ChunksMissingEmbedding returns chunks without an embedding that have
	// failed fewer than maxAttempts times.
	ChunksMissingEmbedding(ctx context.Context, limit, maxAttempts int) ([]*domain.PendingEmbedding, error)

	UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error

	// RecordEmbeddingFailure increments the attempt count and stores the error
	RecordEmbeddingFailure(ctx context.Context, chunkID string, errMsg string) error
}

// Embedder defines the interface for generating embeddings
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	IsConfigured() bool
}

// EmbeddingWorker embeds chunks that were stored without a vector, either
// because embedding failed during ingestion or no provider was configured then.
type EmbeddingWorker struct {
	repo      PendingChunkRepository
	embedder  Embedder
	batchSize int
}

// NewEmbeddingWorker creates a new EmbeddingWorker instance
func NewEmbeddingWorker(repo PendingChunkRepository, embedder Embedder, batchSize int) *EmbeddingWorker {
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	return &EmbeddingWorker{
		repo:      repo,
		embedder:  embedder,
		batchSize: batchSize,
	}
}

// ProcessJobs implements the JobProcessor interface
func (w *EmbeddingWorker) ProcessJobs(ctx context.Context) error {
	if !w.embedder.IsConfigured() {
		return nil
	}

	pending, err := w.repo.ChunksMissingEmbedding(ctx, w.batchSize, MaxRetries)
	if err != nil {
		return fmt.Errorf("failed to fetch pending chunks: %w", err)
	}

	if len(pending) == 0 {
		return nil
	}

	log.Printf("backfilling embeddings for %d chunks", len(pending))

	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.processChunk(ctx, p); err != nil {
			log.Printf("error embedding chunk %s: %v", p.ChunkID, err)
		}
	}

	return nil
}

func (w *EmbeddingWorker) processChunk(ctx context.Context, p *domain.PendingEmbedding) error {
	embedding, err := w.embedder.GenerateEmbedding(ctx, p.Content)
	if err != nil {
		return w.handleFailure(ctx, p, err)
	}

	if err := w.repo.UpdateChunkEmbedding(ctx, p.ChunkID, embedding); err != nil {
		return w.handleFailure(ctx, p, fmt.Errorf("failed to store embedding: %w", err))
	}
	return nil
}

// handleFailure records the attempt; the chunk drops out of the pending set
// once it reaches MaxRetries.
func (w *EmbeddingWorker) handleFailure(ctx context.Context, p *domain.PendingEmbedding, embedErr error) error {
	attempt := p.Attempts + 1
	errMsg := fmt.Sprintf("attempt %d: %v", attempt, embedErr)
	if err := w.repo.RecordEmbeddingFailure(ctx, p.ChunkID, errMsg); err != nil {
		return fmt.Errorf("failed to record embedding failure: %w", err)
	}

	if attempt >= MaxRetries {
		log.Printf("chunk %s exceeded max retries (%d), leaving it without an embedding", p.ChunkID, MaxRetries)
		return nil
	}

	log.Printf("chunk %s will be retried (attempt %d/%d)", p.ChunkID, attempt, MaxRetries)
	return nil
}

package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

const chunkColumns = `id, document_id, chunk_index, chunk_type, heading_context, page_number, content`

// ChunkRepository handles persistence and search of document chunks.
type ChunkRepository struct {
	db dbtx
}

func NewChunkRepository(pool *pgxpool.Pool) *ChunkRepository {
	return &ChunkRepository{db: pool}
}

func NewChunkRepositoryWithTx(tx pgx.Tx) *ChunkRepository {
	return &ChunkRepository{db: tx}
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []*domain.Chunk) error {
	_, err := r.db.Exec(ctx, `DELETE FROM document_chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return err
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.Exec(ctx,
			`INSERT INTO document_chunks
				(id, document_id, chunk_index, chunk_type, heading_context, page_number, content, overlap_prefix_len, embedding, created_at)
			 VALUES
				($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
			c.ID,
			documentID,
			c.Index,
			c.Type,
			c.HeadingContext,
			c.PageNumber,
			c.Content,
			c.OverlapPrefixLen,
			nullableVector(c.Embedding),
			createdAt,
		)
		if err != nil {
			return err
		}
	}

	return nil
}

// SearchLexical matches query as a case-insensitive substring, in storage order.
func (r *ChunkRepository) SearchLexical(ctx context.Context, query string, limit int) ([]service.RetrievedChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM document_chunks
		 WHERE content ILIKE $1
		 ORDER BY created_at, document_id, chunk_index
		 LIMIT $2`,
		containsPattern(query), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRetrievedChunks(rows, false)
}

// SearchVector returns chunks with cosine similarity of at least threshold.
func (r *ChunkRepository) SearchVector(ctx context.Context, embedding []float32, threshold float64, limit int) ([]service.RetrievedChunk, error) {
	vec := pgvector.NewVector(embedding)
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+`, 1 - (embedding <=> $1) AS similarity
		 FROM document_chunks
		 WHERE embedding IS NOT NULL AND 1 - (embedding <=> $1) >= $2
		 ORDER BY embedding <=> $1
		 LIMIT $3`,
		vec, threshold, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRetrievedChunks(rows, true)
}

// SearchKeywords returns chunks containing any of the keywords, newest first.
func (r *ChunkRepository) SearchKeywords(ctx context.Context, keywords []string, limit int) ([]service.RetrievedChunk, error) {
	if len(keywords) == 0 {
		return []service.RetrievedChunk{}, nil
	}

	patterns := make([]string, 0, len(keywords))
	for _, k := range keywords {
		patterns = append(patterns, containsPattern(k))
	}

	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM document_chunks
		 WHERE content ILIKE ANY($1)
		 ORDER BY created_at DESC, chunk_index
		 LIMIT $2`,
		patterns, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRetrievedChunks(rows, false)
}

// RecentChunks returns the most recently stored chunks.
func (r *ChunkRepository) RecentChunks(ctx context.Context, limit int) ([]service.RetrievedChunk, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+chunkColumns+`
		 FROM document_chunks
		 ORDER BY created_at DESC, chunk_index
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanRetrievedChunks(rows, false)
}

func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count)
	return count, err
}

// ChunksMissingEmbedding returns chunks without an embedding that have failed
// fewer than maxAttempts times, oldest first.
func (r *ChunkRepository) ChunksMissingEmbedding(ctx context.Context, limit, maxAttempts int) ([]*domain.PendingEmbedding, error) {
	rows, err := r.db.Query(ctx,
		`SELECT id, content, embedding_attempts
		 FROM document_chunks
		 WHERE embedding IS NULL AND embedding_attempts < $1
		 ORDER BY created_at, chunk_index
		 LIMIT $2`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]*domain.PendingEmbedding, 0)
	for rows.Next() {
		var p domain.PendingEmbedding
		if err := rows.Scan(&p.ChunkID, &p.Content, &p.Attempts); err != nil {
			return nil, err
		}
		results = append(results, &p)
	}
	return results, rows.Err()
}

func (r *ChunkRepository) UpdateChunkEmbedding(ctx context.Context, chunkID string, embedding []float32) error {
	_, err := r.db.Exec(ctx,
		`UPDATE document_chunks SET embedding = $2, embedding_error = NULL WHERE id = $1`,
		chunkID, pgvector.NewVector(embedding),
	)
	return err
}

func (r *ChunkRepository) RecordEmbeddingFailure(ctx context.Context, chunkID string, errMsg string) error {
	_, err := r.db.Exec(ctx,
		`UPDATE document_chunks
		 SET embedding_attempts = embedding_attempts + 1, embedding_error = $2
		 WHERE id = $1`,
		chunkID, errMsg,
	)
	return err
}

func scanRetrievedChunks(rows pgx.Rows, withSimilarity bool) ([]service.RetrievedChunk, error) {
	results := make([]service.RetrievedChunk, 0)
	for rows.Next() {
		var c service.RetrievedChunk
		var chunkType string
		dest := []any{&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &chunkType, &c.HeadingContext, &c.PageNumber, &c.Content}
		var similarity float64
		if withSimilarity {
			dest = append(dest, &similarity)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, err
		}
		c.ChunkType = domain.ChunkType(chunkType)
		if withSimilarity {
			s := similarity
			c.Similarity = &s
		}
		results = append(results, c)
	}
	return results, rows.Err()
}

func nullableVector(embedding []float32) *pgvector.Vector {
	if len(embedding) == 0 {
		return nil
	}
	v := pgvector.NewVector(embedding)
	return &v
}

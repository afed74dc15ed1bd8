package localstore

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"sort"
	"strings"
	"time"

	"modernc.org/sqlite"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

const chunkColumns = `id, document_id, chunk_index, chunk_type, heading_context, page_number, content`

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SQLite's own lower() and LIKE fold ASCII letters only. Content is matched
// through unicode_lower and patterns are lowered with strings.ToLower.
func init() {
	sqlite.MustRegisterDeterministicScalarFunction("unicode_lower", 1, unicodeLower)
}

func unicodeLower(_ *sqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

// ChunkRepository persists and searches chunks in SQLite.
type ChunkRepository struct {
	db querier
}

// ReplaceChunks deletes existing chunks for a document and inserts new ones.
func (r *ChunkRepository) ReplaceChunks(ctx context.Context, documentID string, chunks []*domain.Chunk) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM document_chunks WHERE document_id = ?`, documentID); err != nil {
		return fmt.Errorf("deleting chunks: %w", err)
	}

	for _, c := range chunks {
		createdAt := c.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		_, err := r.db.ExecContext(ctx, `
			INSERT INTO document_chunks
				(id, document_id, chunk_index, chunk_type, heading_context, page_number, content, overlap_prefix_len, embedding, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.ID, documentID, c.Index, string(c.Type), c.HeadingContext, c.PageNumber,
			c.Content, c.OverlapPrefixLen, float32SliceToBytes(c.Embedding), createdAt,
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %d: %w", c.Index, err)
		}
	}
	return nil
}

func (r *ChunkRepository) SearchLexical(ctx context.Context, query string, limit int) ([]service.RetrievedChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM document_chunks
		WHERE unicode_lower(content) LIKE ? ESCAPE '\'
		ORDER BY seq
		LIMIT ?`,
		containsPattern(query), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("lexical search: %w", err)
	}
	defer rows.Close()
	return scanRetrievedChunks(rows)
}

// SearchVector scores every stored embedding in process; the local store is
// meant for collections small enough for a linear scan.
func (r *ChunkRepository) SearchVector(ctx context.Context, embedding []float32, threshold float64, limit int) ([]service.RetrievedChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`, embedding
		FROM document_chunks
		WHERE embedding IS NOT NULL
		ORDER BY seq`,
	)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	results := make([]service.RetrievedChunk, 0)
	for rows.Next() {
		var c service.RetrievedChunk
		var chunkType string
		var blob []byte
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &chunkType, &c.HeadingContext, &c.PageNumber, &c.Content, &blob); err != nil {
			return nil, err
		}
		similarity := cosineSimilarity(embedding, bytesToFloat32Slice(blob))
		if similarity < threshold {
			continue
		}
		c.ChunkType = domain.ChunkType(chunkType)
		c.Similarity = &similarity
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	sort.SliceStable(results, func(i, j int) bool {
		return *results[i].Similarity > *results[j].Similarity
	})
	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// SearchKeywords returns chunks containing any keyword, newest first.
func (r *ChunkRepository) SearchKeywords(ctx context.Context, keywords []string, limit int) ([]service.RetrievedChunk, error) {
	if len(keywords) == 0 {
		return []service.RetrievedChunk{}, nil
	}

	clauses := make([]string, 0, len(keywords))
	args := make([]any, 0, len(keywords)+1)
	for _, k := range keywords {
		clauses = append(clauses, `unicode_lower(content) LIKE ? ESCAPE '\'`)
		args = append(args, containsPattern(k))
	}
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM document_chunks
		WHERE `+strings.Join(clauses, " OR ")+`
		ORDER BY seq DESC
		LIMIT ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("keyword search: %w", err)
	}
	defer rows.Close()
	return scanRetrievedChunks(rows)
}

func (r *ChunkRepository) RecentChunks(ctx context.Context, limit int) ([]service.RetrievedChunk, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+chunkColumns+`
		FROM document_chunks
		ORDER BY seq DESC
		LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("recent chunks: %w", err)
	}
	defer rows.Close()
	return scanRetrievedChunks(rows)
}

func (r *ChunkRepository) CountChunks(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM document_chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}

func (r *ChunkRepository) ChunksMissingEmbedding(ctx context.Context, limit, maxAttempts int) ([]*domain.PendingEmbedding, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, content, embedding_attempts
		FROM document_chunks
		WHERE embedding IS NULL AND embedding_attempts < ?
		ORDER BY seq
		LIMIT ?`,
		maxAttempts, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying pending embeddings: %w", err)
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
	_, err := r.db.ExecContext(ctx,
		`UPDATE document_chunks SET embedding = ?, embedding_error = NULL WHERE id = ?`,
		float32SliceToBytes(embedding), chunkID,
	)
	return err
}

func (r *ChunkRepository) RecordEmbeddingFailure(ctx context.Context, chunkID string, errMsg string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE document_chunks SET embedding_attempts = embedding_attempts + 1, embedding_error = ? WHERE id = ?`,
		errMsg, chunkID,
	)
	return err
}

func scanRetrievedChunks(rows *sql.Rows) ([]service.RetrievedChunk, error) {
	results := make([]service.RetrievedChunk, 0)
	for rows.Next() {
		var c service.RetrievedChunk
		var chunkType string
		if err := rows.Scan(&c.ChunkID, &c.DocumentID, &c.ChunkIndex, &chunkType, &c.HeadingContext, &c.PageNumber, &c.Content); err != nil {
			return nil, err
		}
		c.ChunkType = domain.ChunkType(chunkType)
		results = append(results, c)
	}
	return results, rows.Err()
}

func containsPattern(s string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(s)) + "%"
}

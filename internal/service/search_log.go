package service

import (
	"context"
	"log"
	"time"
)

// SearchLogResult captures a single result entry for logging.
type SearchLogResult struct {
	ChunkID    string   `json:"chunk_id"`
	DocumentID string   `json:"document_id"`
	Similarity *float64 `json:"similarity,omitempty"`
}

// SearchLogEntry captures a retrieval request and what it returned.
type SearchLogEntry struct {
	Query         string
	Strategy      Strategy
	Limit         int
	LexicalHits   int
	VectorHits    int
	VectorSkipped bool
	DurationMs    int
	Results       []SearchLogResult
}

// SearchLogRepository persists search logs for reviewing retrieval quality.
type SearchLogRepository interface {
	CreateSearchLog(ctx context.Context, entry SearchLogEntry) (string, error)
}

func newSearchLogEntry(query string, limit int, result *SearchResult, elapsed time.Duration) SearchLogEntry {
	entry := SearchLogEntry{
		Query:         query,
		Strategy:      result.Strategy,
		Limit:         limit,
		LexicalHits:   result.LexicalHits,
		VectorHits:    result.VectorHits,
		VectorSkipped: result.VectorSkipped,
		DurationMs:    int(elapsed.Milliseconds()),
		Results:       make([]SearchLogResult, 0, len(result.Chunks)),
	}
	for _, c := range result.Chunks {
		entry.Results = append(entry.Results, SearchLogResult{
			ChunkID:    c.ChunkID,
			DocumentID: c.DocumentID,
			Similarity: c.Similarity,
		})
	}
	return entry
}

// logSearch records a completed search. Failures are logged and never reach
// the caller.
func (r *Retriever) logSearch(ctx context.Context, entry SearchLogEntry) {
	if r.cfg.SearchLog == nil {
		return
	}
	if _, err := r.cfg.SearchLog.CreateSearchLog(context.WithoutCancel(ctx), entry); err != nil {
		log.Printf("retriever: failed to record search log: %v", err)
	}
}

package localstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

// SearchLogRepository records retrieval requests in SQLite.
type SearchLogRepository struct {
	db querier
}

// SearchLogs returns the search log repository backed by this store.
func (s *Store) SearchLogs() *SearchLogRepository {
	return &SearchLogRepository{db: s.db}
}

func (r *SearchLogRepository) CreateSearchLog(ctx context.Context, entry service.SearchLogEntry) (string, error) {
	results := entry.Results
	if results == nil {
		results = []service.SearchLogResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return "", fmt.Errorf("encoding search results: %w", err)
	}

	id := uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO search_logs
			(id, query, strategy, result_limit, lexical_hits, vector_hits, vector_skipped, results, result_count, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, entry.Query, string(entry.Strategy), entry.Limit, entry.LexicalHits, entry.VectorHits,
		entry.VectorSkipped, string(resultsJSON), len(results), entry.DurationMs, time.Now().UTC(),
	)
	if err != nil {
		return "", fmt.Errorf("inserting search log: %w", err)
	}
	return id, nil
}

// CountByStrategy returns how many logged searches ended with each strategy.
func (r *SearchLogRepository) CountByStrategy(ctx context.Context) (map[service.Strategy]int, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT strategy, COUNT(*) FROM search_logs GROUP BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("counting search logs: %w", err)
	}
	defer rows.Close()

	counts := make(map[service.Strategy]int)
	for rows.Next() {
		var (
			strategy string
			n        int
		)
		if err := rows.Scan(&strategy, &n); err != nil {
			return nil, err
		}
		counts[service.Strategy(strategy)] = n
	}
	return counts, rows.Err()
}

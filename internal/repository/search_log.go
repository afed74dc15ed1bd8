package repository

import (
	"context"
	"encoding/json"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

// SearchLogRepository stores retrieval logs for reviewing fallback searches.
type SearchLogRepository struct {
	pool *pgxpool.Pool
}

func NewSearchLogRepository(pool *pgxpool.Pool) *SearchLogRepository {
	return &SearchLogRepository{pool: pool}
}

func (r *SearchLogRepository) CreateSearchLog(ctx context.Context, entry service.SearchLogEntry) (string, error) {
	results := entry.Results
	if results == nil {
		results = []service.SearchLogResult{}
	}
	resultsJSON, err := json.Marshal(results)
	if err != nil {
		return "", err
	}

	var id string
	err = r.pool.QueryRow(ctx,
		`INSERT INTO search_logs (query, strategy, result_limit, lexical_hits, vector_hits, vector_skipped, results, result_count, duration_ms)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		 RETURNING id`,
		entry.Query,
		string(entry.Strategy),
		entry.Limit,
		entry.LexicalHits,
		entry.VectorHits,
		entry.VectorSkipped,
		resultsJSON,
		len(results),
		entry.DurationMs,
	).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

// CountByStrategy returns how many logged searches ended with each strategy.
func (r *SearchLogRepository) CountByStrategy(ctx context.Context) (map[service.Strategy]int, error) {
	rows, err := r.pool.Query(ctx, `SELECT strategy, COUNT(*) FROM search_logs GROUP BY strategy`)
	if err != nil {
		return nil, err
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

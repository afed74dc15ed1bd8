package service

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/telemetry"
)

// Strategy names the retrieval path that produced a result set. Anything
// other than StrategyHybrid is a low-confidence fallback.
type Strategy string

const (
	StrategyHybrid  Strategy = "hybrid"
	StrategyKeyword Strategy = "keyword"
	StrategySample  Strategy = "sample"
)

// RetrievedChunk is a stored chunk returned by one of the search paths.
// Similarity is only set by vector search.
type RetrievedChunk struct {
	ChunkID        string
	DocumentID     string
	ChunkIndex     int
	Content        string
	PageNumber     *int
	HeadingContext *string
	ChunkType      domain.ChunkType
	Similarity     *float64
}

// SearchResult is the output of a retrieval call.
type SearchResult struct {
	Chunks        []RetrievedChunk
	Strategy      Strategy
	LexicalHits   int
	VectorHits    int
	VectorSkipped bool
}

// ChunkStore is the read side of chunk persistence used by the retriever.
type ChunkStore interface {
	// SearchLexical returns chunks containing query as a case-insensitive
	// substring, in store order.
	SearchLexical(ctx context.Context, query string, limit int) ([]RetrievedChunk, error)
	// SearchVector returns chunks with cosine similarity >= threshold,
	// most similar first.
	SearchVector(ctx context.Context, embedding []float32, threshold float64, limit int) ([]RetrievedChunk, error)
	// SearchKeywords returns chunks containing any keyword, newest first.
	SearchKeywords(ctx context.Context, keywords []string, limit int) ([]RetrievedChunk, error)
	RecentChunks(ctx context.Context, limit int) ([]RetrievedChunk, error)
	CountChunks(ctx context.Context) (int, error)
}

// RetrieverConfig holds the store handle, the embedding client and the
// retrieval tunables. It is built once at startup and shared by reference.
type RetrieverConfig struct {
	Store ChunkStore
	// Embedder may be nil, which disables vector search.
	Embedder Embedder

	Limit               int
	LexicalLimit        int
	VectorLimit         int
	SimilarityThreshold float64
	KeywordPoolLimit    int
	KeywordResultLimit  int
	SampleLimit         int
	MinKeywordLength    int
	LexicalTimeout      time.Duration
	VectorTimeout       time.Duration

	// SearchLog records every successful search when set.
	SearchLog SearchLogRepository
}

// DefaultRetrieverConfig returns the default retrieval limits with no store.
func DefaultRetrieverConfig() RetrieverConfig {
	return RetrieverConfig{
		Limit:               15,
		LexicalLimit:        20,
		VectorLimit:         10,
		SimilarityThreshold: 0.3,
		KeywordPoolLimit:    50,
		KeywordResultLimit:  10,
		SampleLimit:         10,
		MinKeywordLength:    4,
		LexicalTimeout:      5 * time.Second,
		VectorTimeout:       10 * time.Second,
	}
}

func (c RetrieverConfig) withDefaults() RetrieverConfig {
	d := DefaultRetrieverConfig()
	if c.Limit <= 0 {
		c.Limit = d.Limit
	}
	if c.LexicalLimit <= 0 {
		c.LexicalLimit = d.LexicalLimit
	}
	if c.VectorLimit <= 0 {
		c.VectorLimit = d.VectorLimit
	}
	if c.SimilarityThreshold <= 0 {
		c.SimilarityThreshold = d.SimilarityThreshold
	}
	if c.KeywordPoolLimit <= 0 {
		c.KeywordPoolLimit = d.KeywordPoolLimit
	}
	if c.KeywordResultLimit <= 0 {
		c.KeywordResultLimit = d.KeywordResultLimit
	}
	if c.SampleLimit <= 0 {
		c.SampleLimit = d.SampleLimit
	}
	if c.MinKeywordLength <= 0 {
		c.MinKeywordLength = d.MinKeywordLength
	}
	if c.Embedder == nil {
		c.Embedder = NoopEmbedder{}
	}
	return c
}

// Retriever runs lexical and vector search concurrently and merges them
// lexical-first, falling back to keyword matching and then a recent sample.
type Retriever struct {
	cfg RetrieverConfig
}

// NewRetriever creates a Retriever, filling unset tunables with defaults.
func NewRetriever(cfg *RetrieverConfig) *Retriever {
	return &Retriever{cfg: cfg.withDefaults()}
}

// Config returns the effective configuration.
func (r *Retriever) Config() RetrieverConfig {
	return r.cfg
}

// Search retrieves up to limit chunks for query. A limit <= 0 uses the
// configured default. It returns ErrNoDocuments when nothing has been
// ingested and a wrapped ErrStoreUnavailable when the store cannot be read.
func (r *Retriever) Search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	start := time.Now()
	result, err := r.search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	if limit <= 0 {
		limit = r.cfg.Limit
	}
	r.logSearch(ctx, newSearchLogEntry(strings.TrimSpace(query), limit, result, time.Since(start)))
	return result, nil
}

func (r *Retriever) search(ctx context.Context, query string, limit int) (*SearchResult, error) {
	ctx, span := telemetry.StartSpan(ctx, "retriever.search", telemetry.SpanAttributes{
		Operation: "search",
	})
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, domain.ErrEmptyQuery
	}
	if limit <= 0 {
		limit = r.cfg.Limit
	}

	result := &SearchResult{VectorSkipped: !r.cfg.Embedder.IsConfigured()}

	var lexical, vector []RetrievedChunk
	var g errgroup.Group
	g.Go(func() error {
		lexical = r.searchLexical(ctx, query)
		return nil
	})
	if !result.VectorSkipped {
		g.Go(func() error {
			vector = r.searchVector(ctx, query)
			return nil
		})
	}
	_ = g.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result.LexicalHits = len(lexical)
	result.VectorHits = len(vector)

	if merged := mergeResults(lexical, vector, limit); len(merged) > 0 {
		result.Chunks = merged
		result.Strategy = StrategyHybrid
		span.SetTag("strategy", string(result.Strategy))
		return result, nil
	}

	count, err := r.cfg.Store.CountChunks(ctx)
	if err != nil {
		span.SetError(err)
		return nil, storeUnavailable(err)
	}
	if count == 0 {
		return nil, domain.ErrNoDocuments
	}

	if hits := r.keywordPass(ctx, query, limit); len(hits) > 0 {
		result.Chunks = hits
		result.Strategy = StrategyKeyword
		span.SetTag("strategy", string(result.Strategy))
		return result, nil
	}

	sample, err := r.cfg.Store.RecentChunks(ctx, minPositive(r.cfg.SampleLimit, limit))
	if err != nil {
		span.SetError(err)
		return nil, storeUnavailable(err)
	}
	log.Printf("retriever: no matches for query %q, returning %d sampled chunks", query, len(sample))
	result.Chunks = sample
	result.Strategy = StrategySample
	span.SetTag("strategy", string(result.Strategy))
	return result, nil
}

func (r *Retriever) searchLexical(ctx context.Context, query string) []RetrievedChunk {
	ctx, cancel := withOptionalTimeout(ctx, r.cfg.LexicalTimeout)
	defer cancel()

	hits, err := r.cfg.Store.SearchLexical(ctx, query, r.cfg.LexicalLimit)
	if err != nil {
		r.branchFailed(ctx, "lexical", query, err)
		return nil
	}
	return hits
}

func (r *Retriever) searchVector(ctx context.Context, query string) []RetrievedChunk {
	ctx, cancel := withOptionalTimeout(ctx, r.cfg.VectorTimeout)
	defer cancel()

	embedding, err := r.cfg.Embedder.GenerateEmbedding(ctx, query)
	if err != nil {
		r.branchFailed(ctx, "vector", query, fmt.Errorf("embed query: %w", err))
		return nil
	}

	hits, err := r.cfg.Store.SearchVector(ctx, embedding, r.cfg.SimilarityThreshold, r.cfg.VectorLimit)
	if err != nil {
		r.branchFailed(ctx, "vector", query, err)
		return nil
	}
	return hits
}

func (r *Retriever) branchFailed(ctx context.Context, branch, query string, err error) {
	log.Printf("retriever: %s search failed for query %q: %v", branch, query, err)
	telemetry.AddBreadcrumb(ctx, "search", fmt.Sprintf("%s search failed: %v", branch, err))
}

// keywordPass ranks a pool of candidate chunks by how many distinct query
// keywords they contain. Ties keep pool order.
func (r *Retriever) keywordPass(ctx context.Context, query string, limit int) []RetrievedChunk {
	keywords := ExtractKeywords(query, r.cfg.MinKeywordLength)
	if len(keywords) == 0 {
		return nil
	}

	pool, err := r.cfg.Store.SearchKeywords(ctx, keywords, r.cfg.KeywordPoolLimit)
	if err != nil {
		r.branchFailed(ctx, "keyword", query, err)
		return nil
	}

	type scored struct {
		chunk   RetrievedChunk
		matches int
	}
	ranked := make([]scored, 0, len(pool))
	for _, c := range pool {
		content := strings.ToLower(c.Content)
		matches := 0
		for _, kw := range keywords {
			if strings.Contains(content, kw) {
				matches++
			}
		}
		if matches > 0 {
			ranked = append(ranked, scored{chunk: c, matches: matches})
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].matches > ranked[j].matches
	})

	capacity := minPositive(r.cfg.KeywordResultLimit, limit)
	out := make([]RetrievedChunk, 0, capacity)
	for _, s := range ranked {
		if len(out) >= capacity {
			break
		}
		out = append(out, s.chunk)
	}
	return out
}

// mergeResults keeps every lexical hit in order, then appends vector hits
// not already present, truncated to limit.
func mergeResults(lexical, vector []RetrievedChunk, limit int) []RetrievedChunk {
	seen := make(map[string]struct{}, len(lexical)+len(vector))
	out := make([]RetrievedChunk, 0, minPositive(limit, len(lexical)+len(vector)))
	for _, list := range [][]RetrievedChunk{lexical, vector} {
		for _, c := range list {
			if len(out) >= limit {
				return out
			}
			if _, ok := seen[c.ChunkID]; ok {
				continue
			}
			seen[c.ChunkID] = struct{}{}
			out = append(out, c)
		}
	}
	return out
}

// ExtractKeywords lowercases the query, trims punctuation from each word and
// keeps distinct non-stop-words of at least minLength characters.
func ExtractKeywords(query string, minLength int) []string {
	seen := make(map[string]struct{})
	keywords := make([]string, 0, 4)
	for _, field := range strings.Fields(strings.ToLower(query)) {
		word := strings.TrimFunc(field, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsNumber(r)
		})
		if utf8.RuneCountInString(word) < minLength {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if _, dup := seen[word]; dup {
			continue
		}
		seen[word] = struct{}{}
		keywords = append(keywords, word)
	}
	return keywords
}

var stopWords = map[string]struct{}{
	"about": {}, "above": {}, "after": {}, "again": {}, "against": {}, "also": {},
	"been": {}, "before": {}, "being": {}, "below": {}, "between": {}, "both": {},
	"could": {}, "does": {}, "doing": {}, "down": {}, "during": {}, "each": {},
	"from": {}, "further": {}, "give": {}, "have": {}, "having": {}, "here": {},
	"into": {}, "just": {}, "know": {}, "more": {}, "most": {}, "much": {},
	"only": {}, "other": {}, "over": {}, "please": {}, "same": {}, "should": {},
	"show": {}, "some": {}, "such": {}, "tell": {}, "than": {}, "that": {},
	"their": {}, "them": {}, "then": {}, "there": {}, "these": {}, "they": {},
	"this": {}, "those": {}, "through": {}, "under": {}, "until": {}, "very": {},
	"want": {}, "were": {}, "what": {}, "when": {}, "where": {}, "which": {},
	"while": {}, "whom": {}, "whose": {}, "will": {}, "with": {}, "would": {},
	"your": {}, "yours": {},
}

func storeUnavailable(err error) error {
	return domain.NewDomainErrorWithCause(domain.ErrStoreUnavailable.Code, domain.ErrStoreUnavailable.Message, err)
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func minPositive(a, b int) int {
	if a <= 0 {
		return b
	}
	if b <= 0 || a < b {
		return a
	}
	return b
}

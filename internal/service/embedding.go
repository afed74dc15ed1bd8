package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

const defaultEmbeddingCacheSize = 1024

// Embedder generates embeddings for chunk content and queries
type Embedder interface {
	GenerateEmbedding(ctx context.Context, text string) ([]float32, error)
	IsConfigured() bool
}

// CachedEmbedder memoizes embeddings by content hash. Embeddings are a pure
// function of the text, so repeated queries skip the API.
type CachedEmbedder struct {
	next  Embedder
	cache *lru.Cache[string, []float32]
}

// NewCachedEmbedder wraps next with an LRU cache of the given size
func NewCachedEmbedder(next Embedder, size int) *CachedEmbedder {
	if size <= 0 {
		size = defaultEmbeddingCacheSize
	}
	cache, err := lru.New[string, []float32](size)
	if err != nil {
		cache, _ = lru.New[string, []float32](defaultEmbeddingCacheSize)
	}
	return &CachedEmbedder{next: next, cache: cache}
}

// GenerateEmbedding returns a copy of the cached vector or calls through
func (c *CachedEmbedder) GenerateEmbedding(ctx context.Context, text string) ([]float32, error) {
	key := contentHash(text)
	if cached, ok := c.cache.Get(key); ok {
		return copyVector(cached), nil
	}

	embedding, err := c.next.GenerateEmbedding(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Add(key, copyVector(embedding))
	return embedding, nil
}

// IsConfigured reports whether the wrapped embedder can serve requests
func (c *CachedEmbedder) IsConfigured() bool {
	return c.next.IsConfigured()
}

// Len returns the number of cached embeddings
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// NoopEmbedder is used when no embedding provider is configured. Retrieval
// then runs lexical-only and ingestion stores chunks without vectors.
type NoopEmbedder struct{}

func (NoopEmbedder) GenerateEmbedding(context.Context, string) ([]float32, error) {
	return nil, domain.ErrEmbeddingNotConfig
}

func (NoopEmbedder) IsConfigured() bool {
	return false
}

func contentHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func copyVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

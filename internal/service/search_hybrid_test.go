package service

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

// MockChunkStore mocks the chunk store
type MockChunkStore struct {
	mock.Mock
}

func (m *MockChunkStore) SearchLexical(ctx context.Context, query string, limit int) ([]RetrievedChunk, error) {
	args := m.Called(ctx, query, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RetrievedChunk), args.Error(1)
}

func (m *MockChunkStore) SearchVector(ctx context.Context, embedding []float32, threshold float64, limit int) ([]RetrievedChunk, error) {
	args := m.Called(ctx, embedding, threshold, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RetrievedChunk), args.Error(1)
}

func (m *MockChunkStore) SearchKeywords(ctx context.Context, keywords []string, limit int) ([]RetrievedChunk, error) {
	args := m.Called(ctx, keywords, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RetrievedChunk), args.Error(1)
}

func (m *MockChunkStore) RecentChunks(ctx context.Context, limit int) ([]RetrievedChunk, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]RetrievedChunk), args.Error(1)
}

func (m *MockChunkStore) CountChunks(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func chunk(id, content string) RetrievedChunk {
	return RetrievedChunk{
		ChunkID:    id,
		DocumentID: "doc-1",
		Content:    content,
		ChunkType:  domain.ChunkTypeText,
	}
}

func chunks(prefix string, n int) []RetrievedChunk {
	out := make([]RetrievedChunk, 0, n)
	for i := 0; i < n; i++ {
		out = append(out, chunk(fmt.Sprintf("%s-%d", prefix, i), "content"))
	}
	return out
}

func chunkIDs(cs []RetrievedChunk) []string {
	ids := make([]string, 0, len(cs))
	for _, c := range cs {
		ids = append(ids, c.ChunkID)
	}
	return ids
}

func retrieverConfig(store ChunkStore, embedder Embedder, cfg RetrieverConfig) *RetrieverConfig {
	cfg.Store = store
	cfg.Embedder = embedder
	return &cfg
}

func configuredEmbedder(query string, vec []float32, err error) *MockEmbedder {
	e := new(MockEmbedder)
	e.On("IsConfigured").Return(true)
	if err != nil {
		e.On("GenerateEmbedding", mock.Anything, query).Return(nil, err)
	} else {
		e.On("GenerateEmbedding", mock.Anything, query).Return(vec, nil)
	}
	return e
}

func TestRetriever_Search_EmptyQuery(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	result, err := r.Search(context.Background(), "   ", 0)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrEmptyQuery)
	store.AssertNotCalled(t, "SearchLexical", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_Search_LexicalFirstMerge(t *testing.T) {
	store := new(MockChunkStore)
	vec := []float32{0.1, 0.2}
	embedder := configuredEmbedder("basic plan cost", vec, nil)
	r := NewRetriever(retrieverConfig(store, embedder, DefaultRetrieverConfig()))

	a, b, c := chunk("a", "lexical a"), chunk("b", "both"), chunk("c", "vector c")
	store.On("SearchLexical", mock.Anything, "basic plan cost", 20).Return([]RetrievedChunk{a, b}, nil)
	store.On("SearchVector", mock.Anything, vec, 0.3, 10).Return([]RetrievedChunk{c, b}, nil)

	result, err := r.Search(context.Background(), "basic plan cost", 0)

	require.NoError(t, err)
	assert.Equal(t, StrategyHybrid, result.Strategy)
	assert.Equal(t, []string{"a", "b", "c"}, chunkIDs(result.Chunks))
	assert.Equal(t, 2, result.LexicalHits)
	assert.Equal(t, 2, result.VectorHits)
	assert.False(t, result.VectorSkipped)
	store.AssertNotCalled(t, "CountChunks", mock.Anything)
	store.AssertExpectations(t)
}

func TestRetriever_Search_TruncatesToLimit(t *testing.T) {
	store := new(MockChunkStore)
	vec := []float32{1}
	embedder := configuredEmbedder("query", vec, nil)
	r := NewRetriever(retrieverConfig(store, embedder, DefaultRetrieverConfig()))

	lexical := chunks("lex", 10)
	vector := chunks("vec", 10)
	store.On("SearchLexical", mock.Anything, "query", 20).Return(lexical, nil)
	store.On("SearchVector", mock.Anything, vec, 0.3, 10).Return(vector, nil)

	result, err := r.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	require.Len(t, result.Chunks, 15)
	assert.Equal(t, chunkIDs(lexical), chunkIDs(result.Chunks[:10]))
	assert.Equal(t, chunkIDs(vector[:5]), chunkIDs(result.Chunks[10:]))
}

func TestRetriever_Search_LexicalNeverDisplacedByVector(t *testing.T) {
	store := new(MockChunkStore)
	vec := []float32{1}
	embedder := configuredEmbedder("query", vec, nil)
	r := NewRetriever(retrieverConfig(store, embedder, DefaultRetrieverConfig()))

	lexical := chunks("lex", 20)
	store.On("SearchLexical", mock.Anything, "query", 20).Return(lexical, nil)
	store.On("SearchVector", mock.Anything, vec, 0.3, 10).Return(chunks("vec", 10), nil)

	result, err := r.Search(context.Background(), "query", 5)

	require.NoError(t, err)
	assert.Equal(t, chunkIDs(lexical[:5]), chunkIDs(result.Chunks))
}

func TestRetriever_Search_VectorFailureIsIsolated(t *testing.T) {
	store := new(MockChunkStore)
	embedder := configuredEmbedder("query", nil, errors.New("openai unavailable"))
	r := NewRetriever(retrieverConfig(store, embedder, DefaultRetrieverConfig()))

	store.On("SearchLexical", mock.Anything, "query", 20).Return([]RetrievedChunk{chunk("a", "x")}, nil)

	result, err := r.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, chunkIDs(result.Chunks))
	assert.Equal(t, 0, result.VectorHits)
	store.AssertNotCalled(t, "SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_Search_LexicalFailureIsIsolated(t *testing.T) {
	store := new(MockChunkStore)
	vec := []float32{1}
	embedder := configuredEmbedder("query", vec, nil)
	r := NewRetriever(retrieverConfig(store, embedder, DefaultRetrieverConfig()))

	store.On("SearchLexical", mock.Anything, "query", 20).Return(nil, errors.New("connection reset"))
	store.On("SearchVector", mock.Anything, vec, 0.3, 10).Return([]RetrievedChunk{chunk("v", "x")}, nil)

	result, err := r.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	assert.Equal(t, StrategyHybrid, result.Strategy)
	assert.Equal(t, []string{"v"}, chunkIDs(result.Chunks))
}

func TestRetriever_Search_LexicalTimeoutIsIsolated(t *testing.T) {
	store := new(MockChunkStore)
	vec := []float32{1}
	embedder := configuredEmbedder("query", vec, nil)
	cfg := DefaultRetrieverConfig()
	cfg.LexicalTimeout = 20 * time.Millisecond
	r := NewRetriever(retrieverConfig(store, embedder, cfg))

	store.On("SearchLexical", mock.Anything, "query", 20).
		Run(func(args mock.Arguments) {
			<-args.Get(0).(context.Context).Done()
		}).
		Return(nil, context.DeadlineExceeded)
	store.On("SearchVector", mock.Anything, vec, 0.3, 10).Return([]RetrievedChunk{chunk("v", "x")}, nil)

	result, err := r.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	assert.Equal(t, []string{"v"}, chunkIDs(result.Chunks))
}

func TestRetriever_Search_BranchesRunConcurrently(t *testing.T) {
	store := new(MockChunkStore)
	vec := []float32{1}
	embedder := configuredEmbedder("query", vec, nil)
	r := NewRetriever(retrieverConfig(store, embedder, DefaultRetrieverConfig()))

	vectorStarted := make(chan struct{})
	var lexicalSawVector atomic.Bool

	store.On("SearchLexical", mock.Anything, "query", 20).
		Run(func(args mock.Arguments) {
			select {
			case <-vectorStarted:
				lexicalSawVector.Store(true)
			case <-time.After(2 * time.Second):
			}
		}).
		Return([]RetrievedChunk{chunk("a", "x")}, nil)
	store.On("SearchVector", mock.Anything, vec, 0.3, 10).
		Run(func(args mock.Arguments) {
			close(vectorStarted)
		}).
		Return([]RetrievedChunk{chunk("v", "y")}, nil)

	result, err := r.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	assert.True(t, lexicalSawVector.Load(), "lexical search finished before the vector search started")
	assert.Equal(t, []string{"a", "v"}, chunkIDs(result.Chunks))
}

func TestRetriever_Search_SkipsVectorWhenNotConfigured(t *testing.T) {
	store := new(MockChunkStore)
	embedder := new(MockEmbedder)
	embedder.On("IsConfigured").Return(false)
	r := NewRetriever(retrieverConfig(store, embedder, DefaultRetrieverConfig()))

	store.On("SearchLexical", mock.Anything, "query", 20).Return([]RetrievedChunk{chunk("a", "x")}, nil)

	result, err := r.Search(context.Background(), "query", 0)

	require.NoError(t, err)
	assert.True(t, result.VectorSkipped)
	assert.Equal(t, []string{"a"}, chunkIDs(result.Chunks))
	embedder.AssertNotCalled(t, "GenerateEmbedding", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "SearchVector", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_Search_KeywordFallback(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))
	query := "What does the basic plan cost?"

	pool := []RetrievedChunk{
		chunk("c1", "Plans start cheap"),
		chunk("c2", "The basic plan cost is $10"),
		chunk("c3", "Unrelated text"),
		chunk("c4", "Basic support is included"),
	}
	store.On("SearchLexical", mock.Anything, query, 20).Return([]RetrievedChunk{}, nil)
	store.On("CountChunks", mock.Anything).Return(4, nil)
	store.On("SearchKeywords", mock.Anything, []string{"basic", "plan", "cost"}, 50).Return(pool, nil)

	result, err := r.Search(context.Background(), query, 0)

	require.NoError(t, err)
	assert.Equal(t, StrategyKeyword, result.Strategy)
	assert.Equal(t, []string{"c2", "c1", "c4"}, chunkIDs(result.Chunks))
	store.AssertNotCalled(t, "RecentChunks", mock.Anything, mock.Anything)
}

func TestRetriever_Search_KeywordFallbackCapped(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	pool := make([]RetrievedChunk, 0, 30)
	for i := 0; i < 30; i++ {
		pool = append(pool, chunk(fmt.Sprintf("k-%d", i), "pricing details"))
	}
	store.On("SearchLexical", mock.Anything, "pricing", 20).Return(nil, nil)
	store.On("CountChunks", mock.Anything).Return(30, nil)
	store.On("SearchKeywords", mock.Anything, []string{"pricing"}, 50).Return(pool, nil)

	result, err := r.Search(context.Background(), "pricing", 0)

	require.NoError(t, err)
	assert.Len(t, result.Chunks, 10)
	assert.Equal(t, "k-0", result.Chunks[0].ChunkID)
}

func TestRetriever_Search_SampleFallback(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	sample := chunks("recent", 3)
	store.On("SearchLexical", mock.Anything, "zzz qqq", 20).Return(nil, nil)
	store.On("CountChunks", mock.Anything).Return(3, nil)
	store.On("RecentChunks", mock.Anything, 10).Return(sample, nil)

	result, err := r.Search(context.Background(), "zzz qqq", 0)

	require.NoError(t, err)
	assert.Equal(t, StrategySample, result.Strategy)
	assert.Equal(t, chunkIDs(sample), chunkIDs(result.Chunks))
	store.AssertNotCalled(t, "SearchKeywords", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetriever_Search_SampleAfterEmptyKeywordPass(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	store.On("SearchLexical", mock.Anything, "warranty terms", 20).Return(nil, nil)
	store.On("CountChunks", mock.Anything).Return(2, nil)
	store.On("SearchKeywords", mock.Anything, []string{"warranty", "terms"}, 50).Return(nil, errors.New("timeout"))
	store.On("RecentChunks", mock.Anything, 10).Return(chunks("recent", 2), nil)

	result, err := r.Search(context.Background(), "warranty terms", 0)

	require.NoError(t, err)
	assert.Equal(t, StrategySample, result.Strategy)
	assert.Len(t, result.Chunks, 2)
}

func TestRetriever_Search_NoDocuments(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	store.On("SearchLexical", mock.Anything, "anything", 20).Return(nil, nil)
	store.On("CountChunks", mock.Anything).Return(0, nil)

	result, err := r.Search(context.Background(), "anything", 0)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrNoDocuments)
}

func TestRetriever_Search_StoreUnavailable(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	store.On("SearchLexical", mock.Anything, "anything", 20).Return(nil, errors.New("dial tcp: refused"))
	store.On("CountChunks", mock.Anything).Return(0, errors.New("dial tcp: refused"))

	result, err := r.Search(context.Background(), "anything", 0)

	assert.Nil(t, result)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	de, ok := domain.AsDomainError(err)
	require.True(t, ok)
	assert.Equal(t, domain.ErrCodeUnavailable, de.Code)
}

func TestRetriever_Search_CancelledContext(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store.On("SearchLexical", mock.Anything, "query", 20).Return(nil, context.Canceled)

	_, err := r.Search(ctx, "query", 0)

	assert.ErrorIs(t, err, context.Canceled)
}

func TestNewRetriever_AppliesDefaults(t *testing.T) {
	r := NewRetriever(&RetrieverConfig{Store: new(MockChunkStore), Limit: 5})

	cfg := r.Config()
	assert.Equal(t, 5, cfg.Limit)
	assert.Equal(t, 20, cfg.LexicalLimit)
	assert.Equal(t, 10, cfg.VectorLimit)
	assert.InDelta(t, 0.3, cfg.SimilarityThreshold, 1e-9)
	assert.Equal(t, 50, cfg.KeywordPoolLimit)
	assert.Equal(t, 4, cfg.MinKeywordLength)
}

func TestExtractKeywords(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  []string
	}{
		{"drops short and stop words", "What does the basic plan cost?", []string{"basic", "plan", "cost"}},
		{"lowercases and dedupes", "Pricing PRICING pricing!", []string{"pricing"}},
		{"keeps numbers", "invoice 2024 totals", []string{"invoice", "2024", "totals"}},
		{"trims punctuation", "(refund), \"policy\".", []string{"refund", "policy"}},
		{"nothing left", "is it on?", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractKeywords(tt.query, 4))
		})
	}
}

func TestMergeResults(t *testing.T) {
	lexical := []RetrievedChunk{chunk("a", ""), chunk("a", ""), chunk("b", "")}
	vector := []RetrievedChunk{chunk("b", ""), chunk("c", "")}

	assert.Equal(t, []string{"a", "b", "c"}, chunkIDs(mergeResults(lexical, vector, 15)))
	assert.Equal(t, []string{"a"}, chunkIDs(mergeResults(lexical, vector, 1)))
	assert.Empty(t, mergeResults(nil, nil, 15))
}

func TestRetriever_Search_KeywordFallbackPrefersMoreMatches(t *testing.T) {
	store := new(MockChunkStore)
	r := NewRetriever(retrieverConfig(store, nil, DefaultRetrieverConfig()))

	basic := chunk("basic", "Our basic plan costs $10/month")
	enterprise := chunk("enterprise", "Enterprise plan costs $500/month")
	store.On("SearchLexical", mock.Anything, "basic plan cost", 20).Return(nil, nil)
	store.On("CountChunks", mock.Anything).Return(2, nil)
	store.On("SearchKeywords", mock.Anything, []string{"basic", "plan", "cost"}, 50).
		Return([]RetrievedChunk{enterprise, basic}, nil)

	result, err := r.Search(context.Background(), "basic plan cost", 0)

	require.NoError(t, err)
	assert.Equal(t, StrategyKeyword, result.Strategy)
	assert.Equal(t, []string{"basic", "enterprise"}, chunkIDs(result.Chunks))
}

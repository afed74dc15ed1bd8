package service

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/atedays1/ate-days-homebase-sub000/internal/telemetry"
)

const (
	excerptMaxChars     = 200
	excerptEllipsis     = "..."
	unknownDocumentName = "Unknown document"
)

// DocumentNameLookup resolves display names for many documents at once
type DocumentNameLookup interface {
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// Searcher is the retrieval dependency of the context service
type Searcher interface {
	Search(ctx context.Context, query string, limit int) (*SearchResult, error)
}

// ContextEntry is one citation-ready chunk. Content is the full chunk text
// for the language model; Excerpt is a short form for citation display.
type ContextEntry struct {
	ChunkID        string
	DocumentID     string
	DocumentName   string
	Content        string
	PageNumber     *int
	HeadingContext *string
	Excerpt        string
}

// ContextOutput is the assembled context for a query
type ContextOutput struct {
	Query    string
	Strategy Strategy
	Entries  []ContextEntry
	Prompt   string
}

// ContextService turns retrieved chunks into context for answer generation
type ContextService struct {
	retriever Searcher
	docs      DocumentNameLookup
}

// NewContextService creates a new ContextService instance
func NewContextService(retriever Searcher, docs DocumentNameLookup) *ContextService {
	return &ContextService{
		retriever: retriever,
		docs:      docs,
	}
}

// Assemble attaches document names to chunks with a single batch lookup.
// Order is preserved.
func (s *ContextService) Assemble(ctx context.Context, chunks []RetrievedChunk) ([]ContextEntry, error) {
	if len(chunks) == 0 {
		return []ContextEntry{}, nil
	}

	ctx, span := telemetry.StartSpan(ctx, "context.assemble", telemetry.SpanAttributes{
		Operation: "assemble",
	})
	defer span.End()

	ids := make([]string, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for _, c := range chunks {
		if _, ok := seen[c.DocumentID]; ok {
			continue
		}
		seen[c.DocumentID] = struct{}{}
		ids = append(ids, c.DocumentID)
	}

	names, err := s.docs.NamesByIDs(ctx, ids)
	if err != nil {
		span.SetError(err)
		return nil, fmt.Errorf("failed to resolve document names: %w", err)
	}

	entries := make([]ContextEntry, 0, len(chunks))
	for _, c := range chunks {
		name, ok := names[c.DocumentID]
		if !ok || name == "" {
			name = unknownDocumentName
		}
		entries = append(entries, ContextEntry{
			ChunkID:        c.ChunkID,
			DocumentID:     c.DocumentID,
			DocumentName:   name,
			Content:        c.Content,
			PageNumber:     c.PageNumber,
			HeadingContext: c.HeadingContext,
			Excerpt:        Excerpt(c.Content),
		})
	}
	return entries, nil
}

// AskContext retrieves chunks for query and assembles them into a prompt block
func (s *ContextService) AskContext(ctx context.Context, query string, limit int) (*ContextOutput, error) {
	result, err := s.retriever.Search(ctx, query, limit)
	if err != nil {
		return nil, err
	}

	entries, err := s.Assemble(ctx, result.Chunks)
	if err != nil {
		return nil, err
	}

	return &ContextOutput{
		Query:    strings.TrimSpace(query),
		Strategy: result.Strategy,
		Entries:  entries,
		Prompt:   FormatContext(entries),
	}, nil
}

// Excerpt returns the first 200 characters of content, with an ellipsis
// when it was cut.
func Excerpt(content string) string {
	if utf8.RuneCountInString(content) <= excerptMaxChars {
		return content
	}
	runes := []rune(content)
	return string(runes[:excerptMaxChars]) + excerptEllipsis
}

// FormatContext renders entries as numbered sources:
//
//	[1] Pricing.pdf (page 2)
//	chunk text
func FormatContext(entries []ContextEntry) string {
	var b strings.Builder
	for i, e := range entries {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[%d] %s", i+1, e.DocumentName)
		if e.PageNumber != nil {
			fmt.Fprintf(&b, " (page %d)", *e.PageNumber)
		}
		if e.HeadingContext != nil && *e.HeadingContext != "" {
			fmt.Fprintf(&b, " - %s", *e.HeadingContext)
		}
		b.WriteString("\n")
		b.WriteString(e.Content)
	}
	return b.String()
}

package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/atedays1/ate-days-homebase-sub000/internal/api"
	"github.com/atedays1/ate-days-homebase-sub000/internal/api/middleware"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

const maxResultLimit = 50

type SearchService interface {
	Search(ctx context.Context, query string, limit int) (*service.SearchResult, error)
}

type ContextService interface {
	AskContext(ctx context.Context, query string, limit int) (*service.ContextOutput, error)
}

type ContextHandler struct {
	search    SearchService
	assembler ContextService
}

func NewContextHandler(search SearchService, assembler ContextService) *ContextHandler {
	return &ContextHandler{search: search, assembler: assembler}
}

type SearchRequest struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
}

type ChunkResponse struct {
	ChunkID        string   `json:"chunk_id"`
	DocumentID     string   `json:"document_id"`
	ChunkIndex     int      `json:"chunk_index"`
	ChunkType      string   `json:"chunk_type"`
	Content        string   `json:"content"`
	PageNumber     *int     `json:"page_number,omitempty"`
	HeadingContext *string  `json:"heading_context,omitempty"`
	Similarity     *float64 `json:"similarity,omitempty"`
}

// SearchResponse marks fallback results as low confidence so clients can
// hedge their answers.
type SearchResponse struct {
	Query         string           `json:"query"`
	Strategy      string           `json:"strategy"`
	LowConfidence bool             `json:"low_confidence"`
	Results       []*ChunkResponse `json:"results"`
}

type ContextEntryResponse struct {
	ChunkID        string  `json:"chunk_id"`
	DocumentID     string  `json:"document_id"`
	DocumentName   string  `json:"document_name"`
	Content        string  `json:"content"`
	Excerpt        string  `json:"excerpt"`
	PageNumber     *int    `json:"page_number,omitempty"`
	HeadingContext *string `json:"heading_context,omitempty"`
}

type ContextResponse struct {
	Query         string                  `json:"query"`
	Strategy      string                  `json:"strategy"`
	LowConfidence bool                    `json:"low_confidence"`
	Entries       []*ContextEntryResponse `json:"entries"`
	Prompt        string                  `json:"prompt"`
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (*SearchRequest, bool) {
	var req SearchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.Error(w, http.StatusBadRequest, "invalid request body")
		return nil, false
	}

	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		api.Error(w, http.StatusBadRequest, "query is required")
		return nil, false
	}
	if req.Limit < 0 {
		api.Error(w, http.StatusBadRequest, "limit must not be negative")
		return nil, false
	}
	if req.Limit > maxResultLimit {
		req.Limit = maxResultLimit
	}
	return &req, true
}

func (h *ContextHandler) Search(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	result, err := h.search.Search(r.Context(), req.Query, req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	responses := make([]*ChunkResponse, len(result.Chunks))
	for i, c := range result.Chunks {
		responses[i] = &ChunkResponse{
			ChunkID:        c.ChunkID,
			DocumentID:     c.DocumentID,
			ChunkIndex:     c.ChunkIndex,
			ChunkType:      string(c.ChunkType),
			Content:        c.Content,
			PageNumber:     c.PageNumber,
			HeadingContext: c.HeadingContext,
			Similarity:     c.Similarity,
		}
	}

	w.Header().Set(middleware.StrategyHeader, string(result.Strategy))
	api.Success(w, http.StatusOK, SearchResponse{
		Query:         req.Query,
		Strategy:      string(result.Strategy),
		LowConfidence: result.Strategy != service.StrategyHybrid,
		Results:       responses,
	})
}

func (h *ContextHandler) Context(w http.ResponseWriter, r *http.Request) {
	req, ok := decodeQuery(w, r)
	if !ok {
		return
	}

	out, err := h.assembler.AskContext(r.Context(), req.Query, req.Limit)
	if err != nil {
		api.HandleError(w, err)
		return
	}

	entries := make([]*ContextEntryResponse, len(out.Entries))
	for i, e := range out.Entries {
		entries[i] = &ContextEntryResponse{
			ChunkID:        e.ChunkID,
			DocumentID:     e.DocumentID,
			DocumentName:   e.DocumentName,
			Content:        e.Content,
			Excerpt:        e.Excerpt,
			PageNumber:     e.PageNumber,
			HeadingContext: e.HeadingContext,
		}
	}

	w.Header().Set(middleware.StrategyHeader, string(out.Strategy))
	api.Success(w, http.StatusOK, ContextResponse{
		Query:         out.Query,
		Strategy:      string(out.Strategy),
		LowConfidence: out.Strategy != service.StrategyHybrid,
		Entries:       entries,
		Prompt:        out.Prompt,
	})
}

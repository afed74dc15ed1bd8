package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atedays1/ate-days-homebase-sub000/internal/api"
	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/pagination"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

// multipartMemory is how much of an upload is buffered in memory before
// spilling to a temporary file.
const multipartMemory = 8 << 20

type DocumentService interface {
	Ingest(ctx context.Context, input service.IngestInput) (*service.IngestOutput, error)
	Get(ctx context.Context, id string) (*domain.Document, error)
	List(ctx context.Context) ([]*domain.Document, error)
	Delete(ctx context.Context, id string) error
}

type DocumentHandler struct {
	svc DocumentService
}

func NewDocumentHandler(svc DocumentService) *DocumentHandler {
	return &DocumentHandler{svc: svc}
}

type DocumentResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	ContentType string `json:"content_type"`
	SourceHash  string `json:"source_hash"`
	SizeBytes   int64  `json:"size_bytes"`
	ChunkCount  int    `json:"chunk_count"`
	CreatedAt   string `json:"created_at"`
}

type IngestResponse struct {
	Document *DocumentResponse `json:"document"`
	Chunks   int               `json:"chunks"`
	Embedded int               `json:"embedded"`
	Skipped  bool              `json:"skipped"`
	Replaced bool              `json:"replaced"`
}

type DocumentListResponse struct {
	Documents []*DocumentResponse `json:"documents"`
	Cursor    string              `json:"cursor,omitempty"`
	HasMore   bool                `json:"has_more"`
}

func documentToResponse(d *domain.Document) *DocumentResponse {
	return &DocumentResponse{
		ID:          d.ID,
		Name:        d.Name,
		ContentType: string(d.ContentType),
		SourceHash:  d.SourceHash,
		SizeBytes:   d.SizeBytes,
		ChunkCount:  d.ChunkCount,
		CreatedAt:   d.CreatedAt.UTC().Format(time.RFC3339),
	}
}

// Upload ingests a multipart upload. The file goes in the "file" field;
// "content_type" overrides detection from the filename and "force=true"
// re-ingests unchanged content.
func (h *DocumentHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			api.Error(w, http.StatusRequestEntityTooLarge, "document too large")
			return
		}
		api.Error(w, http.StatusBadRequest, "invalid multipart body")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		api.Error(w, http.StatusBadRequest, "file is required")
		return
	}
	defer file.Close()

	name := strings.TrimSpace(r.FormValue("name"))
	if name == "" {
		name = header.Filename
	}

	var contentType domain.ContentType
	if raw := r.FormValue("content_type"); raw != "" {
		contentType, err = domain.ParseContentType(raw)
		if err != nil {
			api.HandleError(w, err)
			return
		}
	}

	force, _ := strconv.ParseBool(r.FormValue("force"))

	out, err := h.svc.Ingest(r.Context(), service.IngestInput{
		Name:        name,
		ContentType: contentType,
		Body:        file,
		Force:       force,
	})
	if err != nil {
		api.HandleError(w, err)
		return
	}

	status := http.StatusCreated
	if out.Skipped {
		status = http.StatusOK
	}
	api.Success(w, status, &IngestResponse{
		Document: documentToResponse(out.Document),
		Chunks:   out.Chunks,
		Embedded: out.Embedded,
		Skipped:  out.Skipped,
		Replaced: out.Replaced,
	})
}

// List returns documents newest first. "limit" and "cursor" page through
// the listing; without a limit every document is returned.
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			api.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}

	docs, err := h.svc.List(r.Context())
	if err != nil {
		api.HandleError(w, err)
		return
	}

	page, err := pagination.Paginate(docs, r.URL.Query().Get("cursor"), limit,
		func(d *domain.Document) string { return d.ID },
		func(d *domain.Document) time.Time { return d.CreatedAt },
	)
	if err != nil {
		api.Error(w, http.StatusBadRequest, err.Error())
		return
	}

	responses := make([]*DocumentResponse, len(page.Items))
	for i, d := range page.Items {
		responses[i] = documentToResponse(d)
	}
	api.Success(w, http.StatusOK, DocumentListResponse{
		Documents: responses,
		Cursor:    page.Cursor,
		HasMore:   page.HasMore,
	})
}

func (h *DocumentHandler) Get(w http.ResponseWriter, r *http.Request) {
	doc, err := h.svc.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, err)
		return
	}
	api.Success(w, http.StatusOK, documentToResponse(doc))
}

func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		api.HandleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

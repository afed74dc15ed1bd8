package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/service"
)

type MockDocumentService struct {
	mock.Mock
}

func (m *MockDocumentService) Ingest(ctx context.Context, input service.IngestInput) (*service.IngestOutput, error) {
	args := m.Called(ctx, input)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.IngestOutput), args.Error(1)
}

func (m *MockDocumentService) Get(ctx context.Context, id string) (*domain.Document, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Document), args.Error(1)
}

func (m *MockDocumentService) List(ctx context.Context) ([]*domain.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Document), args.Error(1)
}

func (m *MockDocumentService) Delete(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func testDocument(id, name string) *domain.Document {
	return &domain.Document{
		ID:          id,
		Name:        name,
		ContentType: domain.ContentTypeText,
		SourceHash:  "abc123",
		SizeBytes:   64,
		ChunkCount:  2,
		CreatedAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func multipartRequest(t *testing.T, filename, content string, fields map[string]string) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	if filename != "" {
		part, err := mw.CreateFormFile("file", filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/documents", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add(key, value)
	return req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
}

func decodeData(t *testing.T, body []byte) map[string]interface{} {
	t.Helper()
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &resp))
	data, ok := resp["data"].(map[string]interface{})
	require.True(t, ok)
	return data
}

func TestDocumentHandler_Upload_Success(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	var body string
	mockSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(input service.IngestInput) bool {
		data, err := io.ReadAll(input.Body)
		if err != nil {
			return false
		}
		body = string(data)
		return input.Name == "pricing.md" && input.ContentType == "" && !input.Force
	})).Return(&service.IngestOutput{Document: testDocument("doc-1", "pricing.md"), Chunks: 2, Embedded: 2}, nil)

	req := multipartRequest(t, "pricing.md", "# Pricing\n\nBasic costs $10.", nil)
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "# Pricing\n\nBasic costs $10.", body)
	data := decodeData(t, w.Body.Bytes())
	assert.Equal(t, float64(2), data["chunks"])
	assert.Equal(t, false, data["skipped"])
	doc := data["document"].(map[string]interface{})
	assert.Equal(t, "doc-1", doc["id"])
	assert.Equal(t, "2026-01-02T03:04:05Z", doc["created_at"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Upload_FieldsOverride(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Ingest", mock.Anything, mock.MatchedBy(func(input service.IngestInput) bool {
		return input.Name == "notes" && input.ContentType == domain.ContentTypeText && input.Force
	})).Return(&service.IngestOutput{Document: testDocument("doc-2", "notes"), Chunks: 1, Replaced: true}, nil)

	req := multipartRequest(t, "upload.bin", "plain words", map[string]string{
		"name":         "notes",
		"content_type": "text",
		"force":        "true",
	})
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	data := decodeData(t, w.Body.Bytes())
	assert.Equal(t, true, data["replaced"])
	mockSvc.AssertExpectations(t)
}

func TestDocumentHandler_Upload_SkippedReturnsOK(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Ingest", mock.Anything, mock.Anything).
		Return(&service.IngestOutput{Document: testDocument("doc-1", "pricing.md"), Chunks: 2, Skipped: true}, nil)

	req := multipartRequest(t, "pricing.md", "same content", nil)
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w.Body.Bytes())
	assert.Equal(t, true, data["skipped"])
}

func TestDocumentHandler_Upload_MissingFile(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	req := multipartRequest(t, "", "", map[string]string{"name": "x"})
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Upload_NotMultipart(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	req := httptest.NewRequest(http.MethodPost, "/documents", bytes.NewReader([]byte(`{"name":"x"}`)))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Upload_InvalidContentType(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	req := multipartRequest(t, "a.md", "text", map[string]string{"content_type": "exe"})
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentHandler_Upload_UnsupportedExtension(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Ingest", mock.Anything, mock.Anything).Return(nil, domain.ErrUnsupportedContentType)

	req := multipartRequest(t, "tool.exe", "MZ", nil)
	w := httptest.NewRecorder()

	handler.Upload(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentHandler_Upload_TooLarge(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	req := multipartRequest(t, "big.txt", string(bytes.Repeat([]byte("a"), 4096)), nil)
	w := httptest.NewRecorder()
	req.Body = http.MaxBytesReader(w, req.Body, 512)

	handler.Upload(w, req)

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	mockSvc.AssertNotCalled(t, "Ingest", mock.Anything, mock.Anything)
}

func TestDocumentHandler_List(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("List", mock.Anything).Return([]*domain.Document{
		testDocument("doc-1", "a.md"),
		testDocument("doc-2", "b.md"),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w.Body.Bytes())
	docs := data["documents"].([]interface{})
	require.Len(t, docs, 2)
	assert.Equal(t, "a.md", docs[0].(map[string]interface{})["name"])
}

func TestDocumentHandler_List_Paginated(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("List", mock.Anything).Return([]*domain.Document{
		testDocument("doc-1", "a.md"),
		testDocument("doc-2", "b.md"),
		testDocument("doc-3", "c.md"),
	}, nil)

	req := httptest.NewRequest(http.MethodGet, "/documents?limit=2", nil)
	w := httptest.NewRecorder()
	handler.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data := decodeData(t, w.Body.Bytes())
	assert.Len(t, data["documents"].([]interface{}), 2)
	assert.Equal(t, true, data["has_more"])
	cursor, ok := data["cursor"].(string)
	require.True(t, ok)

	req = httptest.NewRequest(http.MethodGet, "/documents?limit=2&cursor="+cursor, nil)
	w = httptest.NewRecorder()
	handler.List(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	data = decodeData(t, w.Body.Bytes())
	docs := data["documents"].([]interface{})
	require.Len(t, docs, 1)
	assert.Equal(t, "c.md", docs[0].(map[string]interface{})["name"])
	assert.Equal(t, false, data["has_more"])
	assert.NotContains(t, data, "cursor")
}

func TestDocumentHandler_List_BadPaging(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)
	mockSvc.On("List", mock.Anything).Return([]*domain.Document{testDocument("doc-1", "a.md")}, nil)

	for _, target := range []string{"/documents?limit=0", "/documents?limit=abc", "/documents?cursor=%21%21"} {
		req := httptest.NewRequest(http.MethodGet, target, nil)
		w := httptest.NewRecorder()

		handler.List(w, req)

		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestDocumentHandler_List_Error(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("List", mock.Anything).Return(nil, assert.AnError)

	req := httptest.NewRequest(http.MethodGet, "/documents", nil)
	w := httptest.NewRecorder()

	handler.List(w, req)

	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestDocumentHandler_Get(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Get", mock.Anything, "doc-1").Return(testDocument("doc-1", "a.md"), nil)
	mockSvc.On("Get", mock.Anything, "missing").Return(nil, domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	handler.Get(w, withURLParam(httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil), "id", "doc-1"))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.Get(w, withURLParam(httptest.NewRequest(http.MethodGet, "/documents/missing", nil), "id", "missing"))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDocumentHandler_Delete(t *testing.T) {
	mockSvc := new(MockDocumentService)
	handler := NewDocumentHandler(mockSvc)

	mockSvc.On("Delete", mock.Anything, "doc-1").Return(nil)
	mockSvc.On("Delete", mock.Anything, "missing").Return(domain.ErrDocumentNotFound)

	w := httptest.NewRecorder()
	handler.Delete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/documents/doc-1", nil), "id", "doc-1"))
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = httptest.NewRecorder()
	handler.Delete(w, withURLParam(httptest.NewRequest(http.MethodDelete, "/documents/missing", nil), "id", "missing"))
	assert.Equal(t, http.StatusNotFound, w.Code)
	mockSvc.AssertExpectations(t)
}

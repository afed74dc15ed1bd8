package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestID_GeneratesAndPropagates(t *testing.T) {
	var seen string
	handler := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.NotEmpty(t, seen)
	assert.Equal(t, seen, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, "abc", seen)
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))
}

func captureLog(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	out, flags := log.Writer(), log.Flags()
	log.SetOutput(&buf)
	log.SetFlags(0)
	t.Cleanup(func() {
		log.SetOutput(out)
		log.SetFlags(flags)
	})
	return &buf
}

func TestAccessLog_WritesJSONEntry(t *testing.T) {
	buf := captureLog(t)

	r := chi.NewRouter()
	r.Use(RequestID)
	r.Use(AccessLog)
	r.Get("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set(StrategyHeader, "keyword")
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hello"))
	})

	req := httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil)
	req.Header.Set("X-Forwarded-For", "10.0.0.1, 10.0.0.2")
	r.ServeHTTP(httptest.NewRecorder(), req)

	var entry accessLogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, http.MethodGet, entry.Method)
	assert.Equal(t, "/documents/doc-1", entry.Path)
	assert.Equal(t, "/documents/{id}", entry.Route)
	assert.Equal(t, http.StatusTeapot, entry.Status)
	assert.Equal(t, 5, entry.Bytes)
	assert.Equal(t, "keyword", entry.Strategy)
	assert.Equal(t, "10.0.0.1", entry.RemoteAddr)
	assert.NotEmpty(t, entry.RequestID)
}

func TestAccessLog_DefaultsStatusOK(t *testing.T) {
	buf := captureLog(t)

	handler := AccessLog(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.RemoteAddr = "192.168.1.5:4000"
	handler.ServeHTTP(httptest.NewRecorder(), req)

	var entry accessLogEntry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimSpace(buf.String())), &entry))
	assert.Equal(t, http.StatusOK, entry.Status)
	assert.Equal(t, "192.168.1.5", entry.RemoteAddr)
	assert.Empty(t, entry.Route)
}

func TestMaxBodyBytes(t *testing.T) {
	handler := MaxBodyBytes(8)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, err := io.ReadAll(r.Body); err != nil {
			w.WriteHeader(http.StatusRequestEntityTooLarge)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("short")))
	assert.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too long")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	// Unknown length is still capped while reading.
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("far too long"))
	req.ContentLength = -1
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

func TestMaxBodyBytes_Disabled(t *testing.T) {
	handler := MaxBodyBytes(0)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, "anything goes", string(data))
	}))

	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodPost, "/", strings.NewReader("anything goes")))
}

func TestSentryMiddleware_PassesThroughWithoutClient(t *testing.T) {
	r := chi.NewRouter()
	r.Use(SentryMiddleware)
	r.Get("/documents/{id}", func(w http.ResponseWriter, r *http.Request) {
		assert.NotNil(t, sentry.GetHubFromContext(r.Context()))
		w.WriteHeader(http.StatusNoContent)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/documents/doc-1", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestSentryMiddleware_RepanicsAfterRecording(t *testing.T) {
	handler := SentryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	assert.Panics(t, func() {
		handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	})
}

func TestHTTPStatusToSpanStatus(t *testing.T) {
	tests := []struct {
		status   int
		expected sentry.SpanStatus
	}{
		{http.StatusOK, sentry.SpanStatusOK},
		{http.StatusCreated, sentry.SpanStatusOK},
		{http.StatusBadRequest, sentry.SpanStatusInvalidArgument},
		{http.StatusNotFound, sentry.SpanStatusNotFound},
		{http.StatusRequestEntityTooLarge, sentry.SpanStatusOutOfRange},
		{http.StatusTooManyRequests, sentry.SpanStatusResourceExhausted},
		{http.StatusServiceUnavailable, sentry.SpanStatusUnavailable},
		{http.StatusGatewayTimeout, sentry.SpanStatusDeadlineExceeded},
		{http.StatusInternalServerError, sentry.SpanStatusInternalError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, httpStatusToSpanStatus(tt.status), "status %d", tt.status)
	}
}

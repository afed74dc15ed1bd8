package service

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
	"github.com/atedays1/ate-days-homebase-sub000/internal/extract"
	"github.com/atedays1/ate-days-homebase-sub000/internal/telemetry"
)

const (
	defaultMaxDocumentBytes  = 50 << 20
	defaultIngestConcurrency = 4
)

// DocumentRepositoryInterface defines the repository interface for document persistence
type DocumentRepositoryInterface interface {
	Create(ctx context.Context, d *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	// GetByName returns domain.ErrDocumentNotFound when no document has the name.
	GetByName(ctx context.Context, name string) (*domain.Document, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]*domain.Document, error)
	NamesByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// ChunkRepositoryInterface defines the write side of chunk persistence
type ChunkRepositoryInterface interface {
	ReplaceChunks(ctx context.Context, documentID string, chunks []*domain.Chunk) error
}

// DocumentExtractor turns an uploaded body into plain text
type DocumentExtractor interface {
	Extract(ctx context.Context, contentType domain.ContentType, data []byte) (*extract.Extraction, error)
}

// UUIDGenerator defines interface for UUID generation (for testing)
type UUIDGenerator interface {
	NewString() string
}

// DefaultUUIDGenerator is the default UUID generator using google/uuid
type DefaultUUIDGenerator struct{}

// NewString generates a new UUID string
func (g *DefaultUUIDGenerator) NewString() string {
	return uuid.NewString()
}

// IngestConfig wires the ingestion pipeline
type IngestConfig struct {
	Documents        DocumentRepositoryInterface
	TxRunner         TxRunner
	Extractor        DocumentExtractor
	Chunker          *Chunker
	Embedder         Embedder
	UUIDGen          UUIDGenerator
	MaxDocumentBytes int64
	Concurrency      int
}

// IngestService extracts, chunks, embeds and stores documents
type IngestService struct {
	docs        DocumentRepositoryInterface
	txRunner    TxRunner
	extractor   DocumentExtractor
	chunker     *Chunker
	embedder    Embedder
	uuidGen     UUIDGenerator
	maxBytes    int64
	concurrency int
	now         func() time.Time
}

// NewIngestService creates a new IngestService instance
func NewIngestService(cfg IngestConfig) *IngestService {
	s := &IngestService{
		docs:        cfg.Documents,
		txRunner:    cfg.TxRunner,
		extractor:   cfg.Extractor,
		chunker:     cfg.Chunker,
		embedder:    cfg.Embedder,
		uuidGen:     cfg.UUIDGen,
		maxBytes:    cfg.MaxDocumentBytes,
		concurrency: cfg.Concurrency,
		now:         func() time.Time { return time.Now().UTC() },
	}
	if s.extractor == nil {
		s.extractor = extract.New()
	}
	if s.chunker == nil {
		s.chunker = NewChunker(DefaultChunkConfig())
	}
	if s.embedder == nil {
		s.embedder = NoopEmbedder{}
	}
	if s.uuidGen == nil {
		s.uuidGen = &DefaultUUIDGenerator{}
	}
	if s.maxBytes <= 0 {
		s.maxBytes = defaultMaxDocumentBytes
	}
	if s.concurrency <= 0 {
		s.concurrency = defaultIngestConcurrency
	}
	return s
}

// IngestInput represents one document to ingest. ContentType is inferred from
// Name when empty.
type IngestInput struct {
	Name        string
	ContentType domain.ContentType
	Body        io.Reader
	Force       bool
}

// IngestOutput describes what happened to a document
type IngestOutput struct {
	Document *domain.Document
	Chunks   int
	Embedded int
	// Skipped is set when the content hash matched the stored document.
	Skipped bool
	// Replaced is set when a prior document with the same name was removed.
	Replaced bool
}

// IngestResult pairs an input name with its outcome in a batch
type IngestResult struct {
	Name   string
	Output *IngestOutput
	Err    error
}

// Ingest runs one document through extraction, chunking and embedding, then
// stores it. A document with the same name is replaced in the same transaction.
func (s *IngestService) Ingest(ctx context.Context, input IngestInput) (*IngestOutput, error) {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Ingest", telemetry.SpanAttributes{
		DocumentName: input.Name,
		Operation:    "ingest",
	})
	defer span.End()

	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message, errors.New("name"))
	}
	if input.Body == nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, domain.ErrMissingRequiredField.Message, errors.New("body"))
	}

	contentType := input.ContentType
	if contentType == "" {
		ct, err := domain.ContentTypeFromFilename(name)
		if err != nil {
			return nil, err
		}
		contentType = ct
	} else if !domain.IsValidContentType(contentType) {
		return nil, domain.ErrUnsupportedContentType
	}

	data, err := extract.ReadAll(input.Body, s.maxBytes)
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "failed to read document", err)
	}
	hash := sourceHash(data)

	existing, err := s.docs.GetByName(ctx, name)
	if err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
		span.SetError(err)
		return nil, fmt.Errorf("failed to look up document %q: %w", name, err)
	}
	if err != nil {
		existing = nil
	}

	if existing != nil && existing.SourceHash == hash && !input.Force {
		log.Printf("ingest: %s unchanged, skipping", name)
		return &IngestOutput{Document: existing, Chunks: existing.ChunkCount, Skipped: true}, nil
	}

	extraction, err := s.extractor.Extract(ctx, contentType, data)
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	now := s.now()
	doc := domain.NewDocument(s.uuidGen.NewString(), name, contentType, hash, extraction.Text, extraction.Pages, now)
	doc.SizeBytes = int64(len(data))
	if err := domain.ValidateDocument(doc); err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrCodeValidation, "invalid document", err)
	}
	span.SetTag("document_id", doc.ID)

	records := s.chunker.ChunkPages(extraction.Text, extraction.Pages)
	chunks, embedded, err := s.buildChunks(ctx, doc.ID, records, now)
	if err != nil {
		span.SetError(err)
		return nil, err
	}
	doc.ChunkCount = len(chunks)

	err = s.txRunner.WithTx(ctx, func(repos TxRepositories) error {
		if existing != nil {
			if err := repos.Documents().Delete(ctx, existing.ID); err != nil && !errors.Is(err, domain.ErrDocumentNotFound) {
				return fmt.Errorf("failed to remove previous version: %w", err)
			}
		}
		if err := repos.Documents().Create(ctx, doc); err != nil {
			return fmt.Errorf("failed to create document: %w", err)
		}
		if err := repos.Chunks().ReplaceChunks(ctx, doc.ID, chunks); err != nil {
			return fmt.Errorf("failed to store chunks: %w", err)
		}
		return nil
	})
	if err != nil {
		span.SetError(err)
		return nil, err
	}

	log.Printf("ingest: %s stored as %s (%d chunks, %d embedded)", name, doc.ID, len(chunks), embedded)

	return &IngestOutput{
		Document: doc,
		Chunks:   len(chunks),
		Embedded: embedded,
		Replaced: existing != nil,
	}, nil
}

// buildChunks embeds records one at a time. A failed embedding leaves the
// vector empty for the backfill worker instead of failing the document.
func (s *IngestService) buildChunks(ctx context.Context, documentID string, records []domain.ChunkRecord, now time.Time) ([]*domain.Chunk, int, error) {
	chunks := make([]*domain.Chunk, 0, len(records))
	embedded := 0
	configured := s.embedder.IsConfigured()

	for _, rec := range records {
		var embedding []float32
		if configured {
			vec, err := s.embedder.GenerateEmbedding(ctx, rec.Content)
			switch {
			case err == nil:
				embedding = vec
				embedded++
			case ctx.Err() != nil:
				return nil, 0, ctx.Err()
			default:
				log.Printf("ingest: embedding chunk %d of %s failed: %v", rec.ChunkIndex, documentID, err)
			}
		}

		c := domain.NewChunkFromRecord(s.uuidGen.NewString(), documentID, rec, embedding, now)
		if err := domain.ValidateChunk(c); err != nil {
			return nil, 0, fmt.Errorf("invalid chunk %d: %w", rec.ChunkIndex, err)
		}
		chunks = append(chunks, c)
	}
	return chunks, embedded, nil
}

// IngestAll ingests inputs concurrently. Every input gets a result in input
// order; one failing document does not stop the others.
func (s *IngestService) IngestAll(ctx context.Context, inputs []IngestInput) []IngestResult {
	results := make([]IngestResult, len(inputs))

	var g errgroup.Group
	g.SetLimit(s.concurrency)
	for i, input := range inputs {
		i, input := i, input
		g.Go(func() error {
			out, err := s.Ingest(ctx, input)
			results[i] = IngestResult{Name: input.Name, Output: out, Err: err}
			if err != nil {
				log.Printf("ingest: %s failed: %v", input.Name, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	return results
}

// Get returns a stored document
func (s *IngestService) Get(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.ErrDocumentNotFound
	}
	return s.docs.GetByID(ctx, id)
}

// List returns all stored documents with their chunk counts
func (s *IngestService) List(ctx context.Context) ([]*domain.Document, error) {
	return s.docs.List(ctx)
}

// Delete removes a document and, by cascade, its chunks
func (s *IngestService) Delete(ctx context.Context, id string) error {
	ctx, span := telemetry.StartSpan(ctx, "IngestService.Delete", telemetry.SpanAttributes{
		DocumentID: id,
		Operation:  "delete",
	})
	defer span.End()

	if strings.TrimSpace(id) == "" {
		return domain.ErrDocumentNotFound
	}
	if err := s.docs.Delete(ctx, id); err != nil {
		span.SetError(err)
		return err
	}
	return nil
}

func sourceHash(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}

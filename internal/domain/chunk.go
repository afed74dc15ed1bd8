package domain

import (
	"fmt"
	"time"
)

// ChunkType tags the structural kind of a chunk
type ChunkType string

const (
	ChunkTypeText  ChunkType = "text"
	ChunkTypeTable ChunkType = "table"
	ChunkTypeList  ChunkType = "list"
	ChunkTypeCode  ChunkType = "code"
)

// IsValidChunkType checks if a ChunkType is valid
func IsValidChunkType(t ChunkType) bool {
	switch t {
	case ChunkTypeText, ChunkTypeTable, ChunkTypeList, ChunkTypeCode:
		return true
	}
	return false
}

// ParseChunkType converts a stored value into a ChunkType
func ParseChunkType(value string) (ChunkType, error) {
	t := ChunkType(value)
	if !IsValidChunkType(t) {
		return "", fmt.Errorf("invalid chunk type: %q", value)
	}
	return t, nil
}

// IsAtomic reports whether chunks of this type are never split and never
// receive overlap from a neighbouring chunk.
func (t ChunkType) IsAtomic() bool {
	switch t {
	case ChunkTypeTable, ChunkTypeList, ChunkTypeCode:
		return true
	case ChunkTypeText:
		return false
	}
	return false
}

func (t ChunkType) String() string {
	return string(t)
}

// ChunkRecord is the chunker's output for one chunk, before it is persisted.
type ChunkRecord struct {
	Content        string
	ChunkIndex     int
	HeadingContext *string
	ChunkType      ChunkType
	PageNumber     *int
	// OverlapPrefixLen is the number of leading characters of Content copied
	// from the previous chunk.
	OverlapPrefixLen int
}

// Chunk represents a persisted, retrievable slice of a document.
type Chunk struct {
	ID               string
	DocumentID       string
	Index            int
	Type             ChunkType
	HeadingContext   *string
	PageNumber       *int
	Content          string
	OverlapPrefixLen int
	Embedding        []float32
	CreatedAt        time.Time
}

// NewChunkFromRecord builds a Chunk owned by documentID from a chunker record
func NewChunkFromRecord(id, documentID string, rec ChunkRecord, embedding []float32, createdAt time.Time) *Chunk {
	return &Chunk{
		ID:               id,
		DocumentID:       documentID,
		Index:            rec.ChunkIndex,
		Type:             rec.ChunkType,
		HeadingContext:   rec.HeadingContext,
		PageNumber:       rec.PageNumber,
		Content:          rec.Content,
		OverlapPrefixLen: rec.OverlapPrefixLen,
		Embedding:        embedding,
		CreatedAt:        createdAt,
	}
}

// ValidateChunk validates a Chunk instance
func ValidateChunk(c *Chunk) error {
	if c == nil {
		return fmt.Errorf("chunk cannot be nil")
	}

	if c.ID == "" {
		return fmt.Errorf("chunk ID is required")
	}

	if c.DocumentID == "" {
		return fmt.Errorf("chunk DocumentID is required")
	}

	if c.Index < 0 {
		return fmt.Errorf("chunk Index cannot be negative")
	}

	if !IsValidChunkType(c.Type) {
		return fmt.Errorf("chunk Type is invalid: %s", c.Type)
	}

	if c.Content == "" {
		return fmt.Errorf("chunk Content is required")
	}

	return nil
}

// PendingEmbedding is a stored chunk whose embedding has not been generated yet
type PendingEmbedding struct {
	ChunkID  string
	Content  string
	Attempts int
}

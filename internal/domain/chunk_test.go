package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkTypeConstants(t *testing.T) {
	tests := []struct {
		name     string
		typeVal  ChunkType
		expected string
		atomic   bool
	}{
		{"Text", ChunkTypeText, "text", false},
		{"Table", ChunkTypeTable, "table", true},
		{"List", ChunkTypeList, "list", true},
		{"Code", ChunkTypeCode, "code", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, tt.typeVal.String())
			assert.Equal(t, tt.atomic, tt.typeVal.IsAtomic())
			assert.True(t, IsValidChunkType(tt.typeVal))
		})
	}
}

func TestParseChunkType(t *testing.T) {
	ct, err := ParseChunkType("table")
	require.NoError(t, err)
	assert.Equal(t, ChunkTypeTable, ct)

	_, err = ParseChunkType("image")
	assert.Error(t, err)

	assert.False(t, ChunkType("image").IsAtomic())
}

func TestNewChunkFromRecord(t *testing.T) {
	heading := "Pricing"
	page := 3
	now := time.Now()
	rec := ChunkRecord{
		Content:          "[...] tail\n\nbody",
		ChunkIndex:       4,
		HeadingContext:   &heading,
		ChunkType:        ChunkTypeText,
		PageNumber:       &page,
		OverlapPrefixLen: 12,
	}

	c := NewChunkFromRecord("c1", "d1", rec, []float32{0.1, 0.2}, now)

	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, "d1", c.DocumentID)
	assert.Equal(t, 4, c.Index)
	assert.Equal(t, ChunkTypeText, c.Type)
	require.NotNil(t, c.HeadingContext)
	assert.Equal(t, "Pricing", *c.HeadingContext)
	require.NotNil(t, c.PageNumber)
	assert.Equal(t, 3, *c.PageNumber)
	assert.Equal(t, 12, c.OverlapPrefixLen)
	assert.Equal(t, []float32{0.1, 0.2}, c.Embedding)
	assert.Equal(t, now, c.CreatedAt)
	assert.NoError(t, ValidateChunk(c))
}

func TestValidateChunk(t *testing.T) {
	valid := func() *Chunk {
		return &Chunk{ID: "c1", DocumentID: "d1", Index: 0, Type: ChunkTypeText, Content: "hello"}
	}

	tests := []struct {
		name    string
		mutate  func(c *Chunk)
		wantErr string
	}{
		{"missing ID", func(c *Chunk) { c.ID = "" }, "ID is required"},
		{"missing document", func(c *Chunk) { c.DocumentID = "" }, "DocumentID is required"},
		{"negative index", func(c *Chunk) { c.Index = -1 }, "cannot be negative"},
		{"bad type", func(c *Chunk) { c.Type = "image" }, "Type is invalid"},
		{"empty content", func(c *Chunk) { c.Content = "" }, "Content is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := ValidateChunk(c)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	assert.Error(t, ValidateChunk(nil))
}

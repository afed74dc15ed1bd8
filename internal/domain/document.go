package domain

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// ContentType represents the source format of an uploaded document
type ContentType string

const (
	ContentTypePDF         ContentType = "pdf"
	ContentTypeSpreadsheet ContentType = "spreadsheet"
	ContentTypeCSV         ContentType = "csv"
	ContentTypeText        ContentType = "text"
)

// PageSegment is one page (PDF) or sheet (spreadsheet) of extracted text
type PageSegment struct {
	PageNumber int
	Text       string
}

// Document represents an uploaded document and its extracted text
type Document struct {
	ID          string
	Name        string
	ContentType ContentType
	SourceHash  string
	SizeBytes   int64
	Text        string
	Pages       []PageSegment
	// ChunkCount is filled by listings; it is not stored on the document row.
	ChunkCount  int
	CreatedAt   time.Time
}

// NewDocument creates a new Document instance
func NewDocument(id, name string, contentType ContentType, sourceHash, text string, pages []PageSegment, createdAt time.Time) *Document {
	return &Document{
		ID:          id,
		Name:        name,
		ContentType: contentType,
		SourceHash:  sourceHash,
		Text:        text,
		Pages:       pages,
		CreatedAt:   createdAt,
	}
}

// ValidateDocument validates a Document instance
func ValidateDocument(d *Document) error {
	if d == nil {
		return fmt.Errorf("document cannot be nil")
	}

	if d.ID == "" {
		return fmt.Errorf("document ID is required")
	}

	if strings.TrimSpace(d.Name) == "" {
		return fmt.Errorf("document Name is required")
	}

	if !IsValidContentType(d.ContentType) {
		return fmt.Errorf("document ContentType is invalid: %s", d.ContentType)
	}

	for _, p := range d.Pages {
		if p.PageNumber <= 0 {
			return fmt.Errorf("document page numbers must be positive, got %d", p.PageNumber)
		}
	}

	return nil
}

// IsValidContentType checks if a ContentType is one of the supported formats
func IsValidContentType(t ContentType) bool {
	switch t {
	case ContentTypePDF, ContentTypeSpreadsheet, ContentTypeCSV, ContentTypeText:
		return true
	}
	return false
}

// ParseContentType converts a user-supplied value into a ContentType
func ParseContentType(value string) (ContentType, error) {
	t := ContentType(strings.ToLower(strings.TrimSpace(value)))
	if !IsValidContentType(t) {
		return "", NewDomainErrorWithCause(ErrCodeValidation, "unsupported content type", fmt.Errorf("%q", value))
	}
	return t, nil
}

// ContentTypeFromFilename infers the content type from a file extension
func ContentTypeFromFilename(name string) (ContentType, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".pdf":
		return ContentTypePDF, nil
	case ".xlsx", ".xlsm":
		return ContentTypeSpreadsheet, nil
	case ".csv":
		return ContentTypeCSV, nil
	case ".txt", ".md", ".markdown", ".text":
		return ContentTypeText, nil
	}
	return "", ErrUnsupportedContentType
}

package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is matches sentinel domain errors by code and message so wrapped copies
// created with NewDomainErrorWithCause still satisfy errors.Is.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     nil,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// AsDomainError extracts a DomainError from an error chain
func AsDomainError(err error) (*DomainError, bool) {
	var de *DomainError
	if errors.As(err, &de) {
		return de, true
	}
	return nil, false
}

// Common domain error codes
const (
	ErrCodeValidation    = "VALIDATION_ERROR"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeNoDocuments   = "NO_DOCUMENTS"
	ErrCodeInternalError = "INTERNAL_ERROR"
	ErrCodeUnavailable   = "UNAVAILABLE"
)

// Validation errors
var (
	ErrEmptyQuery             = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrUnsupportedContentType = NewDomainError(ErrCodeValidation, "unsupported content type")
	ErrMissingRequiredField   = NewDomainError(ErrCodeValidation, "missing required field")
)

// Not found errors
var (
	ErrDocumentNotFound = NewDomainError(ErrCodeNotFound, "document not found")
)

// ErrNoDocuments signals that the store holds no chunks at all, which callers
// should report differently from a query that matched nothing.
var ErrNoDocuments = NewDomainError(ErrCodeNoDocuments, "no documents have been ingested")

// Infrastructure errors
var (
	ErrStoreUnavailable   = NewDomainError(ErrCodeUnavailable, "chunk store unavailable")
	ErrExtractionFailed   = NewDomainError(ErrCodeValidation, "document extraction failed")
	ErrEmbeddingNotConfig = NewDomainError(ErrCodeUnavailable, "embedding client not configured")
)

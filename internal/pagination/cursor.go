// Package pagination pages ordered listings with opaque cursors.
package pagination

import (
	"encoding/base64"
	"errors"
	"strings"
	"time"
)

// MaxLimit caps the page size a caller may request.
const MaxLimit = 100

// Cursor represents a decoded pagination cursor
type Cursor struct {
	LastID    string
	Timestamp time.Time
}

// PageResult represents a paginated result set
type PageResult[T any] struct {
	Items   []T    `json:"items"`
	Cursor  string `json:"cursor,omitempty"`
	HasMore bool   `json:"has_more"`
}

var ErrInvalidCursor = errors.New("invalid cursor format")

// EncodeCursor creates a base64-encoded cursor from the last item ID and timestamp
func EncodeCursor(lastID string, timestamp time.Time) string {
	if lastID == "" {
		return ""
	}
	raw := lastID + "|" + timestamp.UTC().Format(time.RFC3339Nano)
	return base64.RawURLEncoding.EncodeToString([]byte(raw))
}

// DecodeCursor decodes a cursor. An empty cursor decodes to nil.
func DecodeCursor(cursor string) (*Cursor, error) {
	if cursor == "" {
		return nil, nil
	}

	decoded, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	id, ts, ok := strings.Cut(string(decoded), "|")
	if !ok || id == "" {
		return nil, ErrInvalidCursor
	}

	timestamp, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return nil, ErrInvalidCursor
	}

	return &Cursor{LastID: id, Timestamp: timestamp}, nil
}

// Paginate returns the page of items that follows cursor. Items must already
// be ordered newest first. When the cursor's item no longer exists the page
// resumes at the first item older than the cursor timestamp. A limit of zero
// or less returns everything after the cursor.
func Paginate[T any](items []T, cursor string, limit int, getID func(T) string, getTimestamp func(T) time.Time) (PageResult[T], error) {
	c, err := DecodeCursor(cursor)
	if err != nil {
		return PageResult[T]{}, err
	}

	start := 0
	if c != nil {
		start = len(items)
		for i, item := range items {
			if getID(item) == c.LastID {
				start = i + 1
				break
			}
			if getTimestamp(item).Before(c.Timestamp) {
				start = i
				break
			}
		}
	}

	if limit > MaxLimit {
		limit = MaxLimit
	}
	rest := items[start:]
	if limit <= 0 || limit >= len(rest) {
		return PageResult[T]{Items: rest}, nil
	}

	page := rest[:limit]
	last := page[len(page)-1]
	return PageResult[T]{
		Items:   page,
		Cursor:  EncodeCursor(getID(last), getTimestamp(last)),
		HasMore: true,
	}, nil
}

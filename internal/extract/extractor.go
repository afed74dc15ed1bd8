package extract

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/ledongthuc/pdf"
	"github.com/xuri/excelize/v2"

	"github.com/atedays1/ate-days-homebase-sub000/internal/domain"
)

const utf8BOM = "\ufeff"

// Extraction is the raw text of a document plus its page or sheet segments.
// Pages is empty for formats without pagination.
type Extraction struct {
	Text  string
	Pages []domain.PageSegment
}

// Extractor converts uploaded bytes into plain text for chunking.
type Extractor struct{}

// New creates an Extractor.
func New() *Extractor {
	return &Extractor{}
}

// Extract dispatches on the content type. Spreadsheets and CSV files are
// rendered as markdown pipe tables so the chunker keeps them atomic.
func (e *Extractor) Extract(ctx context.Context, contentType domain.ContentType, data []byte) (*Extraction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var (
		out *Extraction
		err error
	)
	switch contentType {
	case domain.ContentTypeText:
		out = extractText(data)
	case domain.ContentTypeCSV:
		out, err = extractCSV(data)
	case domain.ContentTypeSpreadsheet:
		out, err = extractSpreadsheet(ctx, data)
	case domain.ContentTypePDF:
		out, err = extractPDF(ctx, data)
	default:
		return nil, domain.ErrUnsupportedContentType
	}
	if err != nil {
		return nil, domain.NewDomainErrorWithCause(domain.ErrExtractionFailed.Code, domain.ErrExtractionFailed.Message, err)
	}
	return out, nil
}

func extractText(data []byte) *Extraction {
	text := strings.TrimPrefix(string(data), utf8BOM)
	return &Extraction{Text: strings.ToValidUTF8(text, "\uFFFD")}
}

func extractCSV(data []byte) (*Extraction, error) {
	r := csv.NewReader(bytes.NewReader(bytes.TrimPrefix(data, []byte(utf8BOM))))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to parse csv: %w", err)
	}
	return &Extraction{Text: RenderTable(rows)}, nil
}

func extractSpreadsheet(ctx context.Context, data []byte) (*Extraction, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	out := &Extraction{}
	parts := make([]string, 0, 4)
	for i, sheet := range f.GetSheetList() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		rows, err := f.GetRows(sheet)
		if err != nil {
			return nil, fmt.Errorf("failed to read sheet %q: %w", sheet, err)
		}
		table := RenderTable(rows)
		if table == "" {
			continue
		}

		text := "## " + sheet + "\n\n" + table
		out.Pages = append(out.Pages, domain.PageSegment{PageNumber: i + 1, Text: text})
		parts = append(parts, text)
	}
	out.Text = strings.Join(parts, "\n\n")
	return out, nil
}

func extractPDF(ctx context.Context, data []byte) (out *Extraction, err error) {
	// the pdf reader panics on some malformed inputs
	defer func() {
		if r := recover(); r != nil {
			out, err = nil, fmt.Errorf("malformed pdf: %v", r)
		}
	}()

	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("failed to open pdf: %w", err)
	}

	out = &Extraction{}
	parts := make([]string, 0, r.NumPage())
	for i := 1; i <= r.NumPage(); i++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		page := r.Page(i)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to read pdf page %d: %w", i, err)
		}
		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		out.Pages = append(out.Pages, domain.PageSegment{PageNumber: i, Text: text})
		parts = append(parts, text)
	}
	out.Text = strings.Join(parts, "\n\n")
	return out, nil
}

// RenderTable renders rows as a markdown pipe table using the first non-empty
// row as the header. Empty input renders as an empty string.
func RenderTable(rows [][]string) string {
	kept := make([][]string, 0, len(rows))
	width := 0
	for _, row := range rows {
		if isBlankRow(row) {
			continue
		}
		kept = append(kept, row)
		if len(row) > width {
			width = len(row)
		}
	}
	if len(kept) == 0 {
		return ""
	}

	var b strings.Builder
	writeRow := func(row []string) {
		b.WriteString("|")
		for i := 0; i < width; i++ {
			cell := ""
			if i < len(row) {
				cell = escapeCell(row[i])
			}
			b.WriteString(" ")
			b.WriteString(cell)
			b.WriteString(" |")
		}
	}

	writeRow(kept[0])
	b.WriteString("\n|")
	for i := 0; i < width; i++ {
		b.WriteString("---|")
	}
	for _, row := range kept[1:] {
		b.WriteString("\n")
		writeRow(row)
	}
	return b.String()
}

func isBlankRow(row []string) bool {
	for _, cell := range row {
		if strings.TrimSpace(cell) != "" {
			return false
		}
	}
	return true
}

func escapeCell(cell string) string {
	cell = strings.TrimSpace(cell)
	cell = strings.ReplaceAll(cell, "\r\n", " ")
	cell = strings.ReplaceAll(cell, "\n", " ")
	return strings.ReplaceAll(cell, "|", `\|`)
}

// ReadAll reads a document body with an upper bound on its size.
func ReadAll(r io.Reader, maxBytes int64) ([]byte, error) {
	if maxBytes <= 0 {
		return io.ReadAll(r)
	}
	data, err := io.ReadAll(io.LimitReader(r, maxBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > maxBytes {
		return nil, fmt.Errorf("document exceeds %d bytes", maxBytes)
	}
	return data, nil
}
